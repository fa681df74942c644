// bracket/types.go
package bracket

import (
	"github.com/wfunc/duelarena/arena"
	"github.com/wfunc/duelarena/state"
)

// Lifecycle states of a bracket.
const (
	StateRegistering state.State = "registering"
	StateSeeding     state.State = "seeding"
	StateRoundActive state.State = "round_active"
	StateComplete    state.State = "complete"
	StateErrored     state.State = "errored"
)

// Kind is the elimination format.
type Kind string

const (
	SingleElimination Kind = "single_elimination"
	DoubleElimination Kind = "double_elimination"
)

// Match pairs two sides within a round. Sides are lists so team modes can
// reuse the structure.
type Match struct {
	ID         string                `json:"id"`
	Round      int                   `json:"round"`
	Slot       int                   `json:"slot"`
	Side1      []arena.ParticipantID `json:"side1"`
	Side2      []arena.ParticipantID `json:"side2"`
	WinnerSide int                   `json:"winner_side"`
	Complete   bool                  `json:"complete"`
}

func (m *Match) clone() Match {
	c := *m
	c.Side1 = append([]arena.ParticipantID(nil), m.Side1...)
	c.Side2 = append([]arena.ParticipantID(nil), m.Side2...)
	return c
}

// Winners returns the winning side, or nil while the match is open.
func (m *Match) Winners() []arena.ParticipantID {
	switch m.WinnerSide {
	case 1:
		return m.Side1
	case 2:
		return m.Side2
	}
	return nil
}

// Losers returns the losing side, or nil while the match is open.
func (m *Match) Losers() []arena.ParticipantID {
	switch m.WinnerSide {
	case 1:
		return m.Side2
	case 2:
		return m.Side1
	}
	return nil
}

// Placement is a participant's final standing. Participants eliminated in
// the same round share a rank. EliminatedRound is 0 for the champion.
type Placement struct {
	Participant     arena.ParticipantID `json:"participant"`
	Rank            int                 `json:"rank"`
	EliminatedRound int                 `json:"eliminated_round"`
}

// Reward is the prize granted to one placement.
type Reward struct {
	Participant arena.ParticipantID `json:"participant"`
	Rank        int                 `json:"rank"`
	Amount      int64               `json:"amount"`
}

// RewardGranter pays out tournament prizes.
type RewardGranter interface {
	GrantReward(p arena.ParticipantID, amount int64)
}

// Snapshot is a read-only copy of a bracket, used for queries and archival.
type Snapshot struct {
	ID                string                `json:"id"`
	Type              string                `json:"type"`
	Kind              Kind                  `json:"kind"`
	State             state.State           `json:"state"`
	Round             int                   `json:"round"`
	MaxParticipants   int                   `json:"max_participants"`
	PrizePool         int64                 `json:"prize_pool"`
	PrizeDistribution []float64             `json:"prize_distribution"`
	Participants      []arena.ParticipantID `json:"participants"`
	Matches           []Match               `json:"matches"`
	Placements        []Placement           `json:"placements,omitempty"`
	Rewards           []Reward              `json:"rewards,omitempty"`
	Failure           string                `json:"failure,omitempty"`
}
