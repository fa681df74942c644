// arena/types.go
package arena

import "fmt"

// ParticipantID is the opaque handle of a competitor. The session layer owns
// the mapping from this ID to a live connection.
type ParticipantID string

// Position is a participant's world location, captured when a duel begins so
// it can be restored afterwards.
type Position struct {
	MapID string  `json:"map_id"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
}

// DuelCategory selects the post-processing applied when a duel ends.
type DuelCategory int

const (
	CategoryNormal DuelCategory = iota
	CategoryRanked
	CategoryBet
	CategoryTournament
)

func (c DuelCategory) String() string {
	switch c {
	case CategoryNormal:
		return "normal"
	case CategoryRanked:
		return "ranked"
	case CategoryBet:
		return "bet"
	case CategoryTournament:
		return "tournament"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// Valid reports whether c is one of the known categories.
func (c DuelCategory) Valid() bool {
	return c >= CategoryNormal && c <= CategoryTournament
}
