// duel/interfaces.go
package duel

import "github.com/wfunc/duelarena/arena"

// CombatProvider deals damage and heals duelists. It reports the winner back
// through Tracker.EndDuel.
type CombatProvider interface {
	ReportDuelStart(duelID string, p1, p2 arena.ParticipantID)
	ReportDuelEnd(duelID string, winner arena.ParticipantID)
}

// EconomyProvider settles bet duels.
type EconomyProvider interface {
	TransferBet(winner, loser arena.ParticipantID, amount int64)
}

// RankingProvider updates ratings after ranked duels.
type RankingProvider interface {
	UpdateRating(winner, loser arena.ParticipantID)
}

// PositionStore reads and restores participant positions.
type PositionStore interface {
	Position(p arena.ParticipantID) arena.Position
	Restore(p arena.ParticipantID, pos arena.Position)
}

// ResultRecorder keeps a record of finished duels.
type ResultRecorder interface {
	RecordDuel(result Result)
}
