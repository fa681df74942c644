// duel/types.go
package duel

import (
	"time"

	"github.com/wfunc/duelarena/arena"
)

// Settings are fixed when the request is sent and cannot change once the
// duel starts.
type Settings struct {
	TimeLimit    time.Duration      `json:"time_limit"`
	AllowPotions bool               `json:"allow_potions"`
	AllowSkills  bool               `json:"allow_skills"`
	BetAmount    int64              `json:"bet_amount"`
	Category     arena.DuelCategory `json:"category"`
}

// Validate rejects non-positive time limits, negative bets and unknown
// categories.
func (s Settings) Validate() error {
	if s.TimeLimit <= 0 {
		return arena.NewError(arena.ErrInvalidArgument, "Settings", "time_limit")
	}
	if s.BetAmount < 0 {
		return arena.NewError(arena.ErrInvalidArgument, "Settings", "bet_amount")
	}
	if !s.Category.Valid() {
		return arena.NewError(arena.ErrInvalidArgument, "Settings", "category")
	}
	return nil
}

// Request is an outstanding challenge awaiting the target's answer.
type Request struct {
	ID         string
	Challenger arena.ParticipantID
	Target     arena.ParticipantID
	Settings   Settings
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// Duel is an accepted, in-progress duel.
type Duel struct {
	ID                string
	Challenger        arena.ParticipantID
	Target            arena.ParticipantID
	Settings          Settings
	StartedAt         time.Time
	Deadline          time.Time
	OriginalPositions map[arena.ParticipantID]arena.Position
}

func (d *Duel) clone() Duel {
	c := *d
	c.OriginalPositions = make(map[arena.ParticipantID]arena.Position, len(d.OriginalPositions))
	for k, v := range d.OriginalPositions {
		c.OriginalPositions[k] = v
	}
	return c
}

// Involves reports whether p is one of the two duelists.
func (d *Duel) Involves(p arena.ParticipantID) bool {
	return p == d.Challenger || p == d.Target
}

func (d *Duel) other(p arena.ParticipantID) arena.ParticipantID {
	if p == d.Challenger {
		return d.Target
	}
	return d.Challenger
}

// End reasons.
const (
	ReasonResult  = "result"
	ReasonTimeout = "timeout"
)

// Result describes how a duel ended. Winner and Loser are empty for a draw.
type Result struct {
	DuelID     string
	Challenger arena.ParticipantID
	Target     arena.ParticipantID
	Winner     arena.ParticipantID
	Loser      arena.ParticipantID
	Settings   Settings
	Reason     string
	StartedAt  time.Time
	EndedAt    time.Time
}

// Draw reports whether the duel ended without a winner.
func (r Result) Draw() bool {
	return r.Winner == ""
}
