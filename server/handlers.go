package server

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/wfunc/duelarena/arena"
	"github.com/wfunc/duelarena/duel"
	"github.com/wfunc/duelarena/logger"
	"github.com/wfunc/duelarena/network"
	"github.com/wfunc/duelarena/session"
)

type loginRequest struct {
	ParticipantID arena.ParticipantID `json:"participant_id"`
}

type challengeRequest struct {
	Target           arena.ParticipantID `json:"target"`
	TimeLimitSeconds int                 `json:"time_limit_seconds"`
	AllowPotions     bool                `json:"allow_potions"`
	AllowSkills      bool                `json:"allow_skills"`
	BetAmount        int64               `json:"bet_amount"`
	Category         arena.DuelCategory  `json:"category"`
}

type requestRef struct {
	RequestID string `json:"request_id"`
}

type tournamentRef struct {
	TournamentID string `json:"tournament_id,omitempty"`
	// Type joins the active tournament of that type when no ID is given.
	Type string `json:"type,omitempty"`
}

type errorReply struct {
	MsgID uint16   `json:"msg_id"`
	Kind  string   `json:"kind"`
	Error string   `json:"error"`
	IDs   []string `json:"ids,omitempty"`
}

func (s *GameServer) handlePacket(sess *session.Session, packet *network.Packet) {
	switch packet.MsgID {
	case network.MsgTypeHeartbeat:
		sess.Set("heartbeat", time.Now())
	case network.MsgTypeLogin:
		s.handleLogin(sess, packet)
	case network.MsgTypeChallenge:
		s.handleChallenge(sess, packet)
	case network.MsgTypeAcceptDuel:
		s.handleAcceptDuel(sess, packet)
	case network.MsgTypeDeclineDuel:
		s.handleDeclineDuel(sess, packet)
	case network.MsgTypeJoinTournament:
		s.handleJoinTournament(sess, packet)
	case network.MsgTypeLeaveTournament:
		s.handleLeaveTournament(sess, packet)
	case network.MsgTypeUpdatePosition:
		s.handleUpdatePosition(sess, packet)
	default:
		logger.Log.Infof("Unknown message type: %d", packet.MsgID)
	}
}

func (s *GameServer) handleLogin(sess *session.Session, packet *network.Packet) {
	var req loginRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil || req.ParticipantID == "" {
		s.sendError(sess, packet.MsgID, arena.NewError(arena.ErrInvalidArgument, "Login", "participant_id"))
		return
	}
	s.sessionManager.Bind(sess.GetID(), req.ParticipantID)
	logger.Log.Infof("Session %s logged in as %s", sess.GetID(), req.ParticipantID)
	s.reply(sess, packet.MsgID, req)
}

// participant returns the logged-in participant or reports an error.
func (s *GameServer) participant(sess *session.Session, msgID uint16, op string) (arena.ParticipantID, bool) {
	p := sess.Participant()
	if p == "" {
		s.sendError(sess, msgID, arena.NewError(arena.ErrNotFound, op, "participant"))
		return "", false
	}
	return p, true
}

func (s *GameServer) handleChallenge(sess *session.Session, packet *network.Packet) {
	challenger, ok := s.participant(sess, packet.MsgID, "SendRequest")
	if !ok {
		return
	}
	var req challengeRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		s.sendError(sess, packet.MsgID, arena.NewError(arena.ErrInvalidArgument, "SendRequest", "payload"))
		return
	}

	settings := duel.Settings{
		TimeLimit:    time.Duration(req.TimeLimitSeconds) * time.Second,
		AllowPotions: req.AllowPotions,
		AllowSkills:  req.AllowSkills,
		BetAmount:    req.BetAmount,
		Category:     req.Category,
	}
	requestID, err := s.negotiator.SendRequest(challenger, req.Target, settings)
	if err != nil {
		s.sendError(sess, packet.MsgID, err)
		return
	}
	s.reply(sess, packet.MsgID, requestRef{RequestID: requestID})
}

func (s *GameServer) handleAcceptDuel(sess *session.Session, packet *network.Packet) {
	accepter, ok := s.participant(sess, packet.MsgID, "Accept")
	if !ok {
		return
	}
	var req requestRef
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		s.sendError(sess, packet.MsgID, arena.NewError(arena.ErrInvalidArgument, "Accept", "payload"))
		return
	}

	duelID, err := s.negotiator.Accept(req.RequestID, accepter)
	if err != nil {
		s.sendError(sess, packet.MsgID, err)
		return
	}
	s.reply(sess, packet.MsgID, map[string]string{"duel_id": duelID})
}

func (s *GameServer) handleDeclineDuel(sess *session.Session, packet *network.Packet) {
	decliner, ok := s.participant(sess, packet.MsgID, "Decline")
	if !ok {
		return
	}
	var req requestRef
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		s.sendError(sess, packet.MsgID, arena.NewError(arena.ErrInvalidArgument, "Decline", "payload"))
		return
	}

	if err := s.negotiator.Decline(req.RequestID, decliner); err != nil {
		s.sendError(sess, packet.MsgID, err)
		return
	}
	s.reply(sess, packet.MsgID, req)
}

func (s *GameServer) resolveTournament(ref tournamentRef) (string, bool) {
	if ref.TournamentID != "" {
		return ref.TournamentID, true
	}
	if engine, ok := s.orchestrator.ActiveFor(ref.Type); ok {
		return engine.ID(), true
	}
	return "", false
}

func (s *GameServer) handleJoinTournament(sess *session.Session, packet *network.Packet) {
	p, ok := s.participant(sess, packet.MsgID, "Register")
	if !ok {
		return
	}
	var ref tournamentRef
	if err := json.Unmarshal(packet.Data, &ref); err != nil {
		s.sendError(sess, packet.MsgID, arena.NewError(arena.ErrInvalidArgument, "Register", "payload"))
		return
	}
	id, found := s.resolveTournament(ref)
	if !found {
		s.sendError(sess, packet.MsgID, arena.NewError(arena.ErrNotFound, "Register", ref.Type))
		return
	}

	if err := s.orchestrator.Register(id, p); err != nil {
		s.sendError(sess, packet.MsgID, err)
		return
	}
	s.reply(sess, packet.MsgID, tournamentRef{TournamentID: id})
}

func (s *GameServer) handleLeaveTournament(sess *session.Session, packet *network.Packet) {
	p, ok := s.participant(sess, packet.MsgID, "Withdraw")
	if !ok {
		return
	}
	var ref tournamentRef
	if err := json.Unmarshal(packet.Data, &ref); err != nil {
		s.sendError(sess, packet.MsgID, arena.NewError(arena.ErrInvalidArgument, "Withdraw", "payload"))
		return
	}
	if ref.TournamentID == "" {
		if current, member := s.index.BracketOf(p); member {
			ref.TournamentID = current
		}
	}

	if err := s.orchestrator.Withdraw(ref.TournamentID, p); err != nil {
		s.sendError(sess, packet.MsgID, err)
		return
	}
	s.reply(sess, packet.MsgID, ref)
}

func (s *GameServer) handleUpdatePosition(sess *session.Session, packet *network.Packet) {
	p := sess.Participant()
	if p == "" {
		return
	}
	// 决斗中位置由服务器管理
	if s.tracker.IsInDuel(p) {
		return
	}
	var pos arena.Position
	if err := json.Unmarshal(packet.Data, &pos); err != nil {
		logger.Log.Debugf("Bad position update from session %s: %v", sess.GetID(), err)
		return
	}
	s.sessionManager.SetPosition(p, pos)
}

func (s *GameServer) reply(sess *session.Session, msgID uint16, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Log.Errorf("Error marshalling reply %d: %v", msgID, err)
		return
	}
	if err := sess.Send(msgID, data); err != nil {
		logger.Log.Warnf("Failed to reply to session %s: %v", sess.GetID(), err)
	}
}

func (s *GameServer) sendError(sess *session.Session, msgID uint16, err error) {
	resp := errorReply{MsgID: msgID, Kind: err.Error(), Error: err.Error(), IDs: arena.IDsOf(err)}
	var ae *arena.Error
	if errors.As(err, &ae) {
		resp.Kind = ae.Kind.Error()
	}
	logger.Log.Debugf("Session %s request %d rejected: %v", sess.GetID(), msgID, err)
	s.reply(sess, network.MsgTypeError, resp)
}
