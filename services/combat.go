package services

import (
	"encoding/json"

	"github.com/wfunc/duelarena/arena"
	"github.com/wfunc/duelarena/logger"
	"github.com/wfunc/duelarena/network"
	"github.com/wfunc/duelarena/session"
)

// SessionFinder looks up the open sessions of a participant.
type SessionFinder interface {
	GetByParticipant(participantID arena.ParticipantID) []*session.Session
}

// CombatRelay hands duels to the clients, which simulate combat and report
// the result back through the rpc EndDuel call.
type CombatRelay struct {
	sessions SessionFinder
}

func NewCombatRelay(sessions SessionFinder) *CombatRelay {
	return &CombatRelay{sessions: sessions}
}

type duelStart struct {
	DuelID   string              `json:"duel_id"`
	Opponent arena.ParticipantID `json:"opponent"`
}

// ReportDuelStart 通知双方开始决斗（客户端回满血）
func (c *CombatRelay) ReportDuelStart(duelID string, p1, p2 arena.ParticipantID) {
	c.send(p1, duelStart{DuelID: duelID, Opponent: p2})
	c.send(p2, duelStart{DuelID: duelID, Opponent: p1})
}

func (c *CombatRelay) ReportDuelEnd(duelID string, winner arena.ParticipantID) {
	logger.Log.Debugf("Combat for duel %s closed, winner %q", duelID, winner)
}

func (c *CombatRelay) send(p arena.ParticipantID, msg duelStart) {
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Log.Errorf("Error marshalling duel start: %v", err)
		return
	}
	for _, s := range c.sessions.GetByParticipant(p) {
		if err := s.Send(network.MsgTypeDuelStart, data); err != nil {
			logger.Log.Warnf("Failed to send duel start to session %s: %v", s.GetID(), err)
		}
	}
}
