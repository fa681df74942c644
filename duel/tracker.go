// duel/tracker.go
package duel

import (
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/wfunc/duelarena/arena"
	"github.com/wfunc/duelarena/broadcast"
	"github.com/wfunc/duelarena/logger"
	"github.com/wfunc/duelarena/participant"
)

// Config wires a Tracker to its clock, the shared membership index and the
// optional collaborators. Nil collaborators are skipped.
type Config struct {
	Clock     clockwork.Clock
	Index     *participant.Index
	Publisher broadcast.Publisher
	Combat    CombatProvider
	Economy   EconomyProvider
	Ranking   RankingProvider
	Positions PositionStore
	Recorder  ResultRecorder

	// Dispatch runs collaborator calls. Defaults to a new goroutine per call.
	Dispatch func(func())
}

// Tracker owns in-progress duels and their termination.
type Tracker struct {
	clock     clockwork.Clock
	index     *participant.Index
	publisher broadcast.Publisher
	combat    CombatProvider
	economy   EconomyProvider
	ranking   RankingProvider
	positions PositionStore
	recorder  ResultRecorder
	dispatch  func(func())

	duels map[string]*Duel
	mutex sync.RWMutex
}

func NewTracker(cfg Config) *Tracker {
	t := &Tracker{
		clock:     cfg.Clock,
		index:     cfg.Index,
		publisher: cfg.Publisher,
		combat:    cfg.Combat,
		economy:   cfg.Economy,
		ranking:   cfg.Ranking,
		positions: cfg.Positions,
		recorder:  cfg.Recorder,
		dispatch:  cfg.Dispatch,
		duels:     make(map[string]*Duel),
	}
	if t.clock == nil {
		t.clock = clockwork.NewRealClock()
	}
	if t.index == nil {
		t.index = participant.NewIndex()
	}
	if t.publisher == nil {
		t.publisher = broadcast.Discard
	}
	if t.dispatch == nil {
		t.dispatch = func(f func()) { go f() }
	}
	return t
}

// begin turns an accepted request into an active duel.
func (t *Tracker) begin(op string, req *Request) (*Duel, error) {
	now := t.clock.Now()
	d := &Duel{
		ID:                uuid.NewString(),
		Challenger:        req.Challenger,
		Target:            req.Target,
		Settings:          req.Settings,
		StartedAt:         now,
		Deadline:          now.Add(req.Settings.TimeLimit),
		OriginalPositions: make(map[arena.ParticipantID]arena.Position, 2),
	}
	if t.positions != nil {
		d.OriginalPositions[d.Challenger] = t.positions.Position(d.Challenger)
		d.OriginalPositions[d.Target] = t.positions.Position(d.Target)
	}

	t.mutex.Lock()
	if err := t.index.ClaimDuel(d.ID, d.Challenger, d.Target); err != nil {
		t.mutex.Unlock()
		return nil, arena.NewError(arena.ErrAlreadyDueling, op, arena.IDsOf(err)...)
	}
	t.duels[d.ID] = d
	t.mutex.Unlock()

	logger.Log.Infof("Duel %s started: %s vs %s (%s, deadline %s)",
		d.ID, d.Challenger, d.Target, d.Settings.Category, d.Deadline.Format("15:04:05"))

	if t.combat != nil {
		t.call(func() { t.combat.ReportDuelStart(d.ID, d.Challenger, d.Target) })
	}
	return d, nil
}

// EndDuel finishes a duel. An empty winner is an explicit draw; otherwise the
// winner must be one of the two duelists.
func (t *Tracker) EndDuel(duelID string, winner arena.ParticipantID) error {
	t.mutex.Lock()
	d, exists := t.duels[duelID]
	if !exists {
		t.mutex.Unlock()
		return arena.NewError(arena.ErrNotFound, "EndDuel", duelID)
	}
	if winner != "" && !d.Involves(winner) {
		t.mutex.Unlock()
		return arena.NewError(arena.ErrInvalidArgument, "EndDuel", duelID, string(winner))
	}
	t.removeLocked(d)
	t.mutex.Unlock()

	t.finish(d, winner, ReasonResult)
	return nil
}

// SweepTimeouts ends every duel past its deadline as a draw and returns the
// results.
func (t *Tracker) SweepTimeouts() []Result {
	now := t.clock.Now()

	t.mutex.Lock()
	var expired []*Duel
	for _, d := range t.duels {
		if now.After(d.Deadline) {
			t.removeLocked(d)
			expired = append(expired, d)
		}
	}
	t.mutex.Unlock()

	results := make([]Result, 0, len(expired))
	for _, d := range expired {
		results = append(results, t.finish(d, "", ReasonTimeout))
	}
	return results
}

// IsInDuel reports whether p is a duelist in any active duel.
func (t *Tracker) IsInDuel(p arena.ParticipantID) bool {
	_, ok := t.index.DuelOf(p)
	return ok
}

// GetActiveDuel returns a snapshot of p's active duel.
func (t *Tracker) GetActiveDuel(p arena.ParticipantID) (Duel, bool) {
	duelID, ok := t.index.DuelOf(p)
	if !ok {
		return Duel{}, false
	}
	return t.Get(duelID)
}

// Get returns a snapshot of the duel with the given ID.
func (t *Tracker) Get(duelID string) (Duel, bool) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	d, exists := t.duels[duelID]
	if !exists {
		return Duel{}, false
	}
	return d.clone(), true
}

// Count returns the number of active duels.
func (t *Tracker) Count() int {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return len(t.duels)
}

func (t *Tracker) removeLocked(d *Duel) {
	delete(t.duels, d.ID)
	t.index.ReleaseDuel(d.ID, d.Challenger, d.Target)
}

func (t *Tracker) finish(d *Duel, winner arena.ParticipantID, reason string) Result {
	result := Result{
		DuelID:     d.ID,
		Challenger: d.Challenger,
		Target:     d.Target,
		Winner:     winner,
		Settings:   d.Settings,
		Reason:     reason,
		StartedAt:  d.StartedAt,
		EndedAt:    t.clock.Now(),
	}
	if winner != "" {
		result.Loser = d.other(winner)
	}

	if result.Draw() {
		logger.Log.Infof("Duel %s ended in a draw (%s)", d.ID, reason)
	} else {
		logger.Log.Infof("Duel %s won by %s over %s", d.ID, result.Winner, result.Loser)
	}

	t.publisher.Publish(broadcast.Event{
		Kind:       broadcast.DuelEnded,
		At:         result.EndedAt,
		DuelID:     d.ID,
		Category:   d.Settings.Category.String(),
		Challenger: d.Challenger,
		Target:     d.Target,
		Winner:     result.Winner,
		Loser:      result.Loser,
		Reason:     reason,
	})

	if t.combat != nil {
		t.call(func() { t.combat.ReportDuelEnd(d.ID, winner) })
	}
	if !result.Draw() {
		switch d.Settings.Category {
		case arena.CategoryRanked:
			if t.ranking != nil {
				t.call(func() { t.ranking.UpdateRating(result.Winner, result.Loser) })
			}
		case arena.CategoryBet:
			if t.economy != nil && d.Settings.BetAmount > 0 {
				t.call(func() { t.economy.TransferBet(result.Winner, result.Loser, d.Settings.BetAmount) })
			}
		}
	}
	if t.positions != nil {
		for p, pos := range d.OriginalPositions {
			t.call(func() { t.positions.Restore(p, pos) })
		}
	}
	if t.recorder != nil {
		t.call(func() { t.recorder.RecordDuel(result) })
	}
	return result
}

// call runs f through the dispatcher; a panicking collaborator is logged
// instead of taking the process down.
func (t *Tracker) call(f func()) {
	t.dispatch(func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Log.Errorf("Duel collaborator panicked: %v", r)
			}
		}()
		f()
	})
}
