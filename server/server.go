package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/wfunc/duelarena/broadcast"
	"github.com/wfunc/duelarena/config"
	"github.com/wfunc/duelarena/duel"
	"github.com/wfunc/duelarena/logger"
	"github.com/wfunc/duelarena/monitor"
	"github.com/wfunc/duelarena/network"
	"github.com/wfunc/duelarena/participant"
	"github.com/wfunc/duelarena/persistence"
	arenarpc "github.com/wfunc/duelarena/rpc"
	"github.com/wfunc/duelarena/services"
	"github.com/wfunc/duelarena/session"
	"github.com/wfunc/duelarena/timer"
	"github.com/wfunc/duelarena/tournament"
	"golang.org/x/sync/errgroup"
)

type GameServer struct {
	cfg            *config.Config
	upgrader       websocket.Upgrader
	clock          clockwork.Clock
	sessionManager *session.Manager
	hub            *broadcast.Hub
	index          *participant.Index
	tracker        *duel.Tracker
	negotiator     *duel.Negotiator
	orchestrator   *tournament.Orchestrator
	timers         *timer.TimerManager
	monitor        *monitor.Monitor
	relay          *broadcast.SessionRelay
	playerService  *services.PlayerService
	shutdownChan   chan struct{}
	shutdownOnce   sync.Once
}

// NewGameServer wires the arena core to its collaborators. db may be nil, in
// which case bets, rewards, ratings and records are not persisted.
func NewGameServer(cfg *config.Config, db persistence.Database) *GameServer {
	clock := clockwork.NewRealClock()
	s := &GameServer{
		cfg:            cfg,
		clock:          clock,
		sessionManager: session.NewManager(),
		hub:            broadcast.NewHub(),
		index:          participant.NewIndex(),
		timers:         timer.NewTimerManager(clock, 0),
		monitor:        monitor.NewMonitor("duelarena", nil),
		shutdownChan:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}
	s.relay = broadcast.NewSessionRelay(s.sessionManager)

	duelCfg := duel.Config{
		Clock:     clock,
		Index:     s.index,
		Publisher: s.hub,
		Combat:    services.NewCombatRelay(s.sessionManager),
		Positions: s.sessionManager,
	}
	orchCfg := tournament.Config{
		Types:           tournamentTypes(cfg.Tournaments),
		Index:           s.index,
		Publisher:       s.hub,
		Clock:           clock,
		Scheduler:       s.timers,
		RetentionWindow: cfg.Arena.RetentionWindow,
	}
	if db != nil {
		s.playerService = services.NewPlayerService(db)
		records := services.NewRecordService(db)
		duelCfg.Economy = s.playerService
		duelCfg.Ranking = s.playerService
		duelCfg.Recorder = records
		orchCfg.Rewards = s.playerService
		orchCfg.Archiver = records
	}

	s.tracker = duel.NewTracker(duelCfg)
	s.negotiator = duel.NewNegotiator(s.tracker, s.sessionManager, cfg.Arena.RequestWindow)
	s.orchestrator = tournament.NewOrchestrator(orchCfg)
	return s
}

func tournamentTypes(in map[string]config.TournamentConfig) map[string]tournament.TypeConfig {
	out := make(map[string]tournament.TypeConfig, len(in))
	for name, t := range in {
		out[name] = tournament.TypeConfig{
			PrizePool:         t.PrizePool,
			PrizeDistribution: t.PrizeDistribution,
			MaxParticipants:   t.MaxParticipants,
		}
	}
	return out
}

// Run serves websocket clients, the rpc match executor and metrics until ctx
// is cancelled or one of them fails.
func (s *GameServer) Run(ctx context.Context) error {
	rpcServer, err := arenarpc.NewServer(s.cfg.Server.RPCAddress)
	if err != nil {
		return err
	}
	var players arenarpc.PlayerStats
	if s.playerService != nil {
		players = s.playerService
	}
	if err := rpcServer.Register(arenarpc.ServiceName, arenarpc.NewArenaService(s.tracker, s.orchestrator, players)); err != nil {
		rpcServer.Stop()
		return err
	}

	interval := s.cfg.Arena.SweepInterval
	sweepID := s.timers.AddTimer(interval, interval, s.sweep)

	g, gCtx := errgroup.WithContext(ctx)

	relaySub := s.hub.Subscribe(s.cfg.Arena.EventBuffer)
	monitorSub := s.hub.Subscribe(s.cfg.Arena.EventBuffer)
	g.Go(func() error { return s.relay.Run(gCtx, relaySub) })
	g.Go(func() error { return s.monitor.Run(gCtx, monitorSub) })
	g.Go(func() error { return s.monitor.Serve(gCtx, s.cfg.Server.MetricsAddress) })
	g.Go(rpcServer.Start)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	httpServer := &http.Server{Addr: s.cfg.Server.HTTPAddress, Handler: mux}
	g.Go(func() error {
		logger.Log.Infof("Game server listening on %s", s.cfg.Server.HTTPAddress)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		s.timers.RemoveTimer(sweepID)
		rpcServer.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		s.Shutdown()
		return err
	})

	return g.Wait()
}

// Shutdown stops background work and disconnects clients.
func (s *GameServer) Shutdown() {
	s.shutdownOnce.Do(func() {
		close(s.shutdownChan)
		s.timers.Stop()
		s.orchestrator.Close()
		s.hub.Close()
	})
}

// sweep expires stale requests, ends overdue duels and refreshes gauges.
func (s *GameServer) sweep() {
	s.negotiator.SweepExpired()
	for _, r := range s.tracker.SweepTimeouts() {
		logger.Log.Infof("Duel %s between %s and %s timed out", r.DuelID, r.Challenger, r.Target)
	}

	s.monitor.SetPendingRequests(s.negotiator.Pending())
	s.monitor.SetActiveDuels(s.tracker.Count())
	s.monitor.SetActiveTournaments(s.orchestrator.ActiveCount())
	s.monitor.SetOnlineParticipants(s.sessionManager.Count())
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(network.NewWSConnection(conn))
}

func (s *GameServer) handleConnection(conn network.Connection) {
	if s.cfg.Server.HeartbeatInterval > 0 {
		conn.SetHeartbeat(s.cfg.Server.HeartbeatInterval)
	}
	sess := session.NewSession(uuid.New().String(), conn)
	s.sessionManager.Add(sess)

	logger.Log.Infof("New connection from %s, session ID: %s", conn.RemoteAddr(), sess.GetID())

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s", conn.RemoteAddr(), sess.GetID())
		s.sessionManager.Remove(sess.GetID())
		conn.Close()
	}()

	for {
		select {
		case <-s.shutdownChan:
			return
		default:
			packet, err := conn.ReadPacket()
			if err != nil {
				return
			}
			start := time.Now()
			s.monitor.IncMessagesReceived()
			s.handlePacket(sess, packet)
			s.monitor.ObserveMessageLatency(time.Since(start))
		}
	}
}
