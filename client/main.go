package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wfunc/duelarena/network"
)

// send formats and sends a message to the WebSocket server.
func send(c *websocket.Conn, msgID uint16, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	packet, err := network.Encode(msgID, data)
	if err != nil {
		return err
	}
	return c.WriteMessage(websocket.BinaryMessage, packet)
}

// command turns one line of input into a packet.
func command(line string) (uint16, interface{}, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return 0, nil, false
	}
	switch fields[0] {
	case "challenge":
		if len(fields) < 2 {
			return 0, nil, false
		}
		seconds := 120
		if len(fields) > 2 {
			if n, err := strconv.Atoi(fields[2]); err == nil {
				seconds = n
			}
		}
		return network.MsgTypeChallenge, map[string]interface{}{"target": fields[1], "time_limit_seconds": seconds}, true
	case "accept", "decline":
		if len(fields) < 2 {
			return 0, nil, false
		}
		msgID := uint16(network.MsgTypeAcceptDuel)
		if fields[0] == "decline" {
			msgID = network.MsgTypeDeclineDuel
		}
		return msgID, map[string]string{"request_id": fields[1]}, true
	case "join":
		if len(fields) < 2 {
			return 0, nil, false
		}
		return network.MsgTypeJoinTournament, map[string]string{"type": fields[1]}, true
	case "leave":
		return network.MsgTypeLeaveTournament, map[string]string{}, true
	}
	return 0, nil, false
}

func main() {
	addr := flag.String("addr", "localhost:8080", "server address")
	id := flag.String("id", "", "participant ID")
	flag.Parse()
	if *id == "" {
		log.Fatal("-id is required")
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws"}
	log.Printf("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	done := make(chan struct{})

	// Read loop
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				log.Println("Read error:", err)
				return
			}
			p, err := network.Decode(message)
			if err != nil {
				log.Printf("Received invalid packet of size %d", len(message))
				continue
			}
			log.Printf("<- RECV (ID: %d): %s", p.MsgID, string(p.Data))
		}
	}()

	if err := send(c, network.MsgTypeLogin, map[string]string{"participant_id": *id}); err != nil {
		log.Println("Write error:", err)
		return
	}

	log.Println("Commands: challenge <target> [seconds], accept <request>, decline <request>, join <type>, leave")

	lines := make(chan string)
	go func() {
		reader := bufio.NewScanner(os.Stdin)
		for reader.Scan() {
			lines <- reader.Text()
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Println("Write close error:", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		case line := <-lines:
			msgID, payload, ok := command(line)
			if !ok {
				log.Printf("Unknown command: %q", line)
				continue
			}
			if err := send(c, msgID, payload); err != nil {
				log.Println("Write error:", err)
				return
			}
		}
	}
}
