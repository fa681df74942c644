// broadcast/events.go
package broadcast

import (
	"time"

	"github.com/wfunc/duelarena/arena"
)

// Kind names a logical event emitted by the arena core.
type Kind string

const (
	RequestSent        Kind = "request_sent"
	DuelAccepted       Kind = "duel_accepted"
	DuelDeclined       Kind = "duel_declined"
	DuelEnded          Kind = "duel_ended"
	MatchReady         Kind = "match_ready"
	MatchComplete      Kind = "match_complete"
	TournamentStarted  Kind = "tournament_started"
	TournamentComplete Kind = "tournament_complete"
)

// Event is the transport-agnostic notification relayed to clients. Unused
// fields stay zero.
type Event struct {
	Kind         Kind                  `json:"kind"`
	At           time.Time             `json:"at"`
	RequestID    string                `json:"request_id,omitempty"`
	DuelID       string                `json:"duel_id,omitempty"`
	Category     string                `json:"category,omitempty"`
	Challenger   arena.ParticipantID   `json:"challenger,omitempty"`
	Target       arena.ParticipantID   `json:"target,omitempty"`
	Winner       arena.ParticipantID   `json:"winner,omitempty"`
	Loser        arena.ParticipantID   `json:"loser,omitempty"`
	Reason       string                `json:"reason,omitempty"`
	TournamentID string                `json:"tournament_id,omitempty"`
	MatchID      string                `json:"match_id,omitempty"`
	Round        int                   `json:"round,omitempty"`
	Side1        []arena.ParticipantID `json:"side1,omitempty"`
	Side2        []arena.ParticipantID `json:"side2,omitempty"`
	WinnerSide   int                   `json:"winner_side,omitempty"`
	Participants []arena.ParticipantID `json:"participants,omitempty"`
}

// Involved returns every participant the event concerns, without duplicates.
func (e Event) Involved() []arena.ParticipantID {
	seen := make(map[arena.ParticipantID]bool)
	var out []arena.ParticipantID
	add := func(ids ...arena.ParticipantID) {
		for _, id := range ids {
			if id != "" && !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	add(e.Challenger, e.Target, e.Winner, e.Loser)
	add(e.Side1...)
	add(e.Side2...)
	add(e.Participants...)
	return out
}
