// broadcast/relay.go
package broadcast

import (
	"context"
	"encoding/json"

	"github.com/wfunc/duelarena/arena"
	"github.com/wfunc/duelarena/logger"
	"github.com/wfunc/duelarena/network"
	"github.com/wfunc/duelarena/session"
)

var kindMessages = map[Kind]uint16{
	RequestSent:        network.MsgTypeRequestSent,
	DuelAccepted:       network.MsgTypeDuelAccepted,
	DuelDeclined:       network.MsgTypeDuelDeclined,
	DuelEnded:          network.MsgTypeDuelEnded,
	MatchReady:         network.MsgTypeMatchReady,
	MatchComplete:      network.MsgTypeMatchComplete,
	TournamentStarted:  network.MsgTypeTournamentStarted,
	TournamentComplete: network.MsgTypeTournamentComplete,
}

// MessageID returns the wire message ID for an event kind.
func MessageID(k Kind) uint16 {
	if id, ok := kindMessages[k]; ok {
		return id
	}
	return network.MsgTypeEvent
}

// SessionFinder looks up the open sessions of a participant.
type SessionFinder interface {
	GetByParticipant(participantID arena.ParticipantID) []*session.Session
}

// SessionRelay delivers hub events to the sessions of the participants they
// concern.
type SessionRelay struct {
	sessions SessionFinder
}

func NewSessionRelay(sessions SessionFinder) *SessionRelay {
	return &SessionRelay{sessions: sessions}
}

// Run relays events from sub until ctx is done or the subscription closes.
func (r *SessionRelay) Run(ctx context.Context, sub *Subscription) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-sub.C:
			if !ok {
				return nil
			}
			r.Deliver(e)
		}
	}
}

// Deliver sends one event to every session of every involved participant.
func (r *SessionRelay) Deliver(e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		logger.Log.Errorf("Error marshalling %s event: %v", e.Kind, err)
		return
	}
	msgID := MessageID(e.Kind)
	for _, p := range e.Involved() {
		for _, s := range r.sessions.GetByParticipant(p) {
			if err := s.Send(msgID, data); err != nil {
				logger.Log.Warnf("Failed to relay %s to session %s: %v", e.Kind, s.GetID(), err)
			}
		}
	}
}
