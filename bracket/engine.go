// bracket/engine.go
package bracket

import (
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/wfunc/duelarena/arena"
	"github.com/wfunc/duelarena/broadcast"
	"github.com/wfunc/duelarena/logger"
	"github.com/wfunc/duelarena/participant"
	"github.com/wfunc/duelarena/state"
)

// Config describes one bracket instance and its collaborators.
type Config struct {
	ID                string
	Type              string
	Kind              Kind
	MaxParticipants   int
	PrizePool         int64
	PrizeDistribution []float64

	Index     *participant.Index
	Publisher broadcast.Publisher
	Rewards   RewardGranter
	Clock     clockwork.Clock
	Rand      *rand.Rand

	// Dispatch runs reward grants. Defaults to a new goroutine per call.
	Dispatch func(func())
	// OnFinish is called once, outside the bracket lock, when the bracket
	// reaches Complete or Errored.
	OnFinish func(*Engine)
}

// Engine runs one single-elimination bracket. A single mutex covers
// registration, match completion and round advancement.
type Engine struct {
	id           string
	typ          string
	kind         Kind
	max          int
	prizePool    int64
	distribution []float64

	index     *participant.Index
	publisher broadcast.Publisher
	rewards   RewardGranter
	clock     clockwork.Clock
	rng       *rand.Rand
	dispatch  func(func())
	onFinish  func(*Engine)

	machine      *state.BaseStateMachine
	participants []arena.ParticipantID
	matches      []*Match
	matchByID    map[string]*Match
	round        int
	rewarded     []Reward
	failure      string
	mutex        sync.Mutex
}

// NewEngine validates cfg and returns a bracket open for registration.
func NewEngine(cfg Config) (*Engine, error) {
	const op = "NewEngine"

	if cfg.Kind == "" {
		cfg.Kind = SingleElimination
	}
	if cfg.Kind != SingleElimination {
		return nil, arena.NewError(arena.ErrInvalidArgument, op, string(cfg.Kind))
	}
	if cfg.MaxParticipants < 2 {
		return nil, arena.NewError(arena.ErrInvalidArgument, op, "max_participants", strconv.Itoa(cfg.MaxParticipants))
	}
	if cfg.PrizePool < 0 {
		return nil, arena.NewError(arena.ErrInvalidArgument, op, "prize_pool")
	}
	sum := 0.0
	for _, f := range cfg.PrizeDistribution {
		if f < 0 {
			return nil, arena.NewError(arena.ErrInvalidArgument, op, "prize_distribution")
		}
		sum += f
	}
	if sum > 1+1e-9 {
		return nil, arena.NewError(arena.ErrInvalidArgument, op, "prize_distribution", fmt.Sprintf("sum=%g", sum))
	}

	e := &Engine{
		id:           cfg.ID,
		typ:          cfg.Type,
		kind:         cfg.Kind,
		max:          cfg.MaxParticipants,
		prizePool:    cfg.PrizePool,
		distribution: append([]float64(nil), cfg.PrizeDistribution...),
		index:        cfg.Index,
		publisher:    cfg.Publisher,
		rewards:      cfg.Rewards,
		clock:        cfg.Clock,
		rng:          cfg.Rand,
		dispatch:     cfg.Dispatch,
		onFinish:     cfg.OnFinish,
		matchByID:    make(map[string]*Match),
	}
	if e.id == "" {
		e.id = uuid.NewString()
	}
	if e.index == nil {
		e.index = participant.NewIndex()
	}
	if e.publisher == nil {
		e.publisher = broadcast.Discard
	}
	if e.clock == nil {
		e.clock = clockwork.NewRealClock()
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if e.dispatch == nil {
		e.dispatch = func(f func()) { go f() }
	}

	e.machine = state.NewBaseStateMachine(StateRegistering)
	e.machine.AddTransition(StateRegistering, StateSeeding, nil)
	e.machine.AddTransition(StateSeeding, StateRoundActive, nil)
	e.machine.AddTransition(StateRoundActive, StateRoundActive, nil)
	e.machine.AddTransition(StateRoundActive, StateComplete, nil)
	e.machine.AddTransition(StateSeeding, StateErrored, nil)
	e.machine.AddTransition(StateRoundActive, StateErrored, nil)
	e.machine.OnEnter(StateRoundActive, func(_, _ state.State) {
		logger.Log.Infof("Bracket %s entered round %d", e.id, e.round)
	})
	return e, nil
}

func (e *Engine) ID() string { return e.id }

func (e *Engine) Type() string { return e.typ }

func (e *Engine) State() state.State { return e.machine.GetCurrentState() }

// Round returns the current round number, 0 before Start.
func (e *Engine) Round() int {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.round
}

// Participants returns the registered participants in registration order
// before Start and in seeded order after.
func (e *Engine) Participants() []arena.ParticipantID {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return append([]arena.ParticipantID(nil), e.participants...)
}

// Register adds p to the bracket.
func (e *Engine) Register(p arena.ParticipantID) error {
	const op = "Register"

	if p == "" {
		return arena.NewError(arena.ErrInvalidArgument, op, e.id)
	}

	e.mutex.Lock()
	defer e.mutex.Unlock()

	if s := e.machine.GetCurrentState(); s != StateRegistering {
		return arena.NewError(arena.ErrWrongState, op, e.id, string(s))
	}
	for _, existing := range e.participants {
		if existing == p {
			return arena.NewError(arena.ErrAlreadyRegistered, op, e.id, string(p))
		}
	}
	if len(e.participants) >= e.max {
		return arena.NewError(arena.ErrBracketFull, op, e.id, string(p))
	}
	if err := e.index.JoinBracket(e.id, p); err != nil {
		var ae *arena.Error
		if errors.As(err, &ae) {
			return arena.NewError(ae.Kind, op, ae.IDs...)
		}
		return err
	}

	e.participants = append(e.participants, p)
	logger.Log.Debugf("Participant %s registered in bracket %s (%d/%d)", p, e.id, len(e.participants), e.max)
	return nil
}

// Withdraw removes a registration before the bracket starts.
func (e *Engine) Withdraw(p arena.ParticipantID) error {
	const op = "Withdraw"

	e.mutex.Lock()
	defer e.mutex.Unlock()

	if s := e.machine.GetCurrentState(); s != StateRegistering {
		return arena.NewError(arena.ErrWrongState, op, e.id, string(s))
	}
	for i, existing := range e.participants {
		if existing == p {
			e.participants = append(e.participants[:i], e.participants[i+1:]...)
			e.index.LeaveBracket(e.id, p)
			return nil
		}
	}
	return arena.NewError(arena.ErrNotFound, op, e.id, string(p))
}

// Start seeds the registered participants and opens round 1. The count must
// be a power of two; byes are not assigned.
func (e *Engine) Start() error {
	const op = "Start"

	e.mutex.Lock()

	if s := e.machine.GetCurrentState(); s != StateRegistering {
		e.mutex.Unlock()
		return arena.NewError(arena.ErrWrongState, op, e.id, string(s))
	}
	n := len(e.participants)
	if n < 2 {
		e.mutex.Unlock()
		return arena.NewError(arena.ErrInsufficientParticipants, op, e.id, strconv.Itoa(n))
	}
	if need := NextPowerOfTwo(n); need != n {
		e.mutex.Unlock()
		return arena.NewError(arena.ErrAwaitingMoreParticipants, op, e.id, fmt.Sprintf("%d/%d", n, need))
	}

	if err := e.machine.ChangeState(StateSeeding); err != nil {
		e.mutex.Unlock()
		return arena.NewError(arena.ErrWrongState, op, e.id)
	}
	e.rng.Shuffle(n, func(i, j int) {
		e.participants[i], e.participants[j] = e.participants[j], e.participants[i]
	})

	e.round = 1
	ready := e.generateRoundLocked(e.participants)
	if err := e.machine.ChangeState(StateRoundActive); err != nil {
		e.mutex.Unlock()
		return arena.NewError(arena.ErrWrongState, op, e.id)
	}
	seeded := append([]arena.ParticipantID(nil), e.participants...)
	e.mutex.Unlock()

	logger.Log.Infof("Bracket %s started with %d participants", e.id, n)
	// 先通知开赛, 再推送首轮对阵
	e.publisher.Publish(broadcast.Event{
		Kind:         broadcast.TournamentStarted,
		At:           e.clock.Now(),
		TournamentID: e.id,
		Round:        1,
		Participants: seeded,
	})
	e.publishReady(ready)
	return nil
}

// CompleteMatch records the winning side (1 or 2) of a match. When it is the
// last open match of the round, the next round is generated or the bracket
// completes.
func (e *Engine) CompleteMatch(matchID string, winningSide int) error {
	const op = "CompleteMatch"

	if winningSide != 1 && winningSide != 2 {
		return arena.NewError(arena.ErrInvalidArgument, op, matchID, strconv.Itoa(winningSide))
	}

	e.mutex.Lock()

	switch s := e.machine.GetCurrentState(); s {
	case StateRoundActive:
	case StateErrored:
		e.mutex.Unlock()
		return arena.NewError(arena.ErrBracketErrored, op, e.id, matchID)
	default:
		e.mutex.Unlock()
		return arena.NewError(arena.ErrWrongState, op, e.id, string(s))
	}

	m, exists := e.matchByID[matchID]
	if !exists {
		e.mutex.Unlock()
		return arena.NewError(arena.ErrNotFound, op, matchID)
	}
	if m.Complete {
		e.mutex.Unlock()
		return arena.NewError(arena.ErrAlreadyComplete, op, matchID)
	}

	m.WinnerSide = winningSide
	m.Complete = true
	now := e.clock.Now()
	completed := broadcast.Event{
		Kind:         broadcast.MatchComplete,
		At:           now,
		TournamentID: e.id,
		MatchID:      m.ID,
		Round:        m.Round,
		Side1:        append([]arena.ParticipantID(nil), m.Side1...),
		Side2:        append([]arena.ParticipantID(nil), m.Side2...),
		WinnerSide:   winningSide,
	}

	ready, finished := e.advanceLocked()
	var final broadcast.Event
	if finished && e.machine.GetCurrentState() == StateComplete {
		final = broadcast.Event{
			Kind:         broadcast.TournamentComplete,
			At:           now,
			TournamentID: e.id,
			Winner:       e.winnerLocked(),
			Participants: append([]arena.ParticipantID(nil), e.participants...),
		}
	}
	e.mutex.Unlock()

	e.publisher.Publish(completed)
	e.publishReady(ready)
	if final.Kind != "" {
		logger.Log.Infof("Bracket %s complete, champion %s", e.id, final.Winner)
		e.publisher.Publish(final)
	}
	if finished && e.onFinish != nil {
		e.onFinish(e)
	}
	return nil
}

// advanceLocked moves past the current round once all its matches are
// complete. It returns newly generated matches and whether the bracket
// reached a terminal state.
func (e *Engine) advanceLocked() ([]Match, bool) {
	current := e.roundMatchesLocked(e.round)
	winners := make([]arena.ParticipantID, 0, len(current))
	for _, m := range current {
		if !m.Complete {
			return nil, false
		}
		w := m.Winners()
		if len(w) != 1 {
			e.failLocked(fmt.Sprintf("match %s has %d winners", m.ID, len(w)))
			return nil, true
		}
		winners = append(winners, w[0])
	}

	switch {
	case len(winners) == 1:
		if err := e.machine.ChangeState(StateComplete); err != nil {
			e.failLocked("cannot complete: " + err.Error())
			return nil, true
		}
		e.index.LeaveBracket(e.id, e.participants...)
		return nil, true
	case len(winners) == 0 || len(winners)%2 != 0:
		e.failLocked(fmt.Sprintf("round %d produced %d winners", e.round, len(winners)))
		return nil, true
	}

	e.round++
	ready := e.generateRoundLocked(winners)
	if err := e.machine.ChangeState(StateRoundActive); err != nil {
		e.failLocked("cannot advance: " + err.Error())
		return nil, true
	}
	return ready, false
}

// generateRoundLocked pairs adjacent slots (2i, 2i+1) into matches of the
// current round.
func (e *Engine) generateRoundLocked(slots []arena.ParticipantID) []Match {
	ready := make([]Match, 0, len(slots)/2)
	for i := 0; i+1 < len(slots); i += 2 {
		m := &Match{
			ID:    fmt.Sprintf("%s-R%dM%d", e.id, e.round, i/2+1),
			Round: e.round,
			Slot:  i / 2,
			Side1: []arena.ParticipantID{slots[i]},
			Side2: []arena.ParticipantID{slots[i+1]},
		}
		e.matches = append(e.matches, m)
		e.matchByID[m.ID] = m
		ready = append(ready, m.clone())
	}
	return ready
}

func (e *Engine) failLocked(reason string) {
	e.failure = reason
	if err := e.machine.ChangeState(StateErrored); err != nil {
		logger.Log.Errorf("Bracket %s could not enter errored state: %v", e.id, err)
	}
	e.index.LeaveBracket(e.id, e.participants...)
	logger.Log.Errorf("Bracket %s errored: %s", e.id, reason)
}

func (e *Engine) publishReady(ready []Match) {
	now := e.clock.Now()
	for _, m := range ready {
		e.publisher.Publish(broadcast.Event{
			Kind:         broadcast.MatchReady,
			At:           now,
			TournamentID: e.id,
			MatchID:      m.ID,
			Round:        m.Round,
			Side1:        m.Side1,
			Side2:        m.Side2,
		})
	}
}

func (e *Engine) roundMatchesLocked(round int) []*Match {
	var out []*Match
	for _, m := range e.matches {
		if m.Round == round {
			out = append(out, m)
		}
	}
	return out
}

func (e *Engine) winnerLocked() arena.ParticipantID {
	final := e.roundMatchesLocked(e.round)
	if len(final) != 1 || !final[0].Complete {
		return ""
	}
	return final[0].Winners()[0]
}

// Winner returns the champion once the bracket is complete.
func (e *Engine) Winner() (arena.ParticipantID, bool) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.machine.GetCurrentState() != StateComplete {
		return "", false
	}
	return e.winnerLocked(), true
}

// Matches returns every match generated so far in round and slot order.
func (e *Engine) Matches() []Match {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	out := make([]Match, 0, len(e.matches))
	for _, m := range e.matches {
		out = append(out, m.clone())
	}
	return out
}

// CurrentRoundMatches returns the matches of the current round.
func (e *Engine) CurrentRoundMatches() []Match {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	var out []Match
	for _, m := range e.roundMatchesLocked(e.round) {
		out = append(out, m.clone())
	}
	return out
}

// Match returns a single match by ID.
func (e *Engine) Match(matchID string) (Match, bool) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	m, exists := e.matchByID[matchID]
	if !exists {
		return Match{}, false
	}
	return m.clone(), true
}

// Snapshot copies the bracket for queries and archival.
func (e *Engine) Snapshot() Snapshot {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	s := Snapshot{
		ID:                e.id,
		Type:              e.typ,
		Kind:              e.kind,
		State:             e.machine.GetCurrentState(),
		Round:             e.round,
		MaxParticipants:   e.max,
		PrizePool:         e.prizePool,
		PrizeDistribution: append([]float64(nil), e.distribution...),
		Participants:      append([]arena.ParticipantID(nil), e.participants...),
		Rewards:           append([]Reward(nil), e.rewarded...),
		Failure:           e.failure,
	}
	for _, m := range e.matches {
		s.Matches = append(s.Matches, m.clone())
	}
	if s.State == StateComplete {
		s.Placements = e.placementsLocked()
	}
	return s
}

// NextPowerOfTwo returns the smallest power of two >= n, and at least 2.
func NextPowerOfTwo(n int) int {
	p := 2
	for p < n {
		p <<= 1
	}
	return p
}
