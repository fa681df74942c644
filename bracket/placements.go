// bracket/placements.go
package bracket

import (
	"math"

	"github.com/wfunc/duelarena/arena"
	"github.com/wfunc/duelarena/logger"
)

const ppm = 1_000_000

// partsPerMillion converts a prize fraction to integer units so payouts
// floor exact values: 100 * 0.29 pays 29, not 28.
func partsPerMillion(f float64) int64 {
	return int64(math.Round(f * ppm))
}

type cohort struct {
	round   int
	members []arena.ParticipantID
}

// cohortsLocked groups participants best-to-worst: the champion, then the
// losers of each round from the final backwards, each in slot order.
func (e *Engine) cohortsLocked() []cohort {
	out := []cohort{{round: 0, members: []arena.ParticipantID{e.winnerLocked()}}}
	for r := e.round; r >= 1; r-- {
		c := cohort{round: r}
		for _, m := range e.roundMatchesLocked(r) {
			c.members = append(c.members, m.Losers()...)
		}
		out = append(out, c)
	}
	return out
}

func (e *Engine) placementsLocked() []Placement {
	var out []Placement
	for _, c := range e.cohortsLocked() {
		rank := len(out) + 1
		for _, p := range c.members {
			out = append(out, Placement{Participant: p, Rank: rank, EliminatedRound: c.round})
		}
	}
	return out
}

func (e *Engine) terminalErrLocked(op string) error {
	switch s := e.machine.GetCurrentState(); s {
	case StateComplete:
		return nil
	case StateErrored:
		return arena.NewError(arena.ErrBracketErrored, op, e.id)
	default:
		return arena.NewError(arena.ErrWrongState, op, e.id, string(s))
	}
}

// Placements returns the final standings of a completed bracket.
func (e *Engine) Placements() ([]Placement, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if err := e.terminalErrLocked("Placements"); err != nil {
		return nil, err
	}
	return e.placementsLocked(), nil
}

// GetPlacements returns participants best-to-worst. Participants tied in a
// cohort keep their bracket slot order.
func (e *Engine) GetPlacements() ([]arena.ParticipantID, error) {
	placements, err := e.Placements()
	if err != nil {
		return nil, err
	}
	out := make([]arena.ParticipantID, len(placements))
	for i, p := range placements {
		out[i] = p.Participant
	}
	return out, nil
}

// DistributeRewards pays prizes for a completed bracket, once. A cohort
// occupying placement indices [i, i+k) shares the summed fractions of those
// indices equally; the total paid never exceeds the prize pool.
func (e *Engine) DistributeRewards() ([]Reward, error) {
	const op = "DistributeRewards"

	e.mutex.Lock()
	if err := e.terminalErrLocked(op); err != nil {
		e.mutex.Unlock()
		return nil, err
	}
	if e.rewarded != nil {
		e.mutex.Unlock()
		return nil, arena.NewError(arena.ErrAlreadyComplete, op, e.id)
	}

	remaining := e.prizePool
	rewards := make([]Reward, 0, len(e.participants))
	index := 0
	rank := 1
	for _, c := range e.cohortsLocked() {
		k := len(c.members)
		var pooled int64
		for j := index; j < index+k && j < len(e.distribution); j++ {
			pooled += partsPerMillion(e.distribution[j])
		}
		share := int64(0)
		if k > 0 {
			share = e.prizePool * pooled / (ppm * int64(k))
		}
		for _, p := range c.members {
			amount := share
			if amount > remaining {
				amount = remaining
			}
			remaining -= amount
			rewards = append(rewards, Reward{Participant: p, Rank: rank, Amount: amount})
		}
		index += k
		rank += k
	}
	e.rewarded = rewards
	e.mutex.Unlock()

	if e.rewards != nil {
		for _, r := range rewards {
			if r.Amount <= 0 {
				continue
			}
			e.dispatch(func() {
				defer func() {
					if rec := recover(); rec != nil {
						logger.Log.Errorf("Reward grant for %s in bracket %s panicked: %v", r.Participant, e.id, rec)
					}
				}()
				e.rewards.GrantReward(r.Participant, r.Amount)
			})
		}
	}
	return append([]Reward(nil), rewards...), nil
}
