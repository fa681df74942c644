package tournament

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/wfunc/duelarena/arena"
	"github.com/wfunc/duelarena/bracket"
	"github.com/wfunc/duelarena/broadcast"
)

type scheduled struct {
	delay    time.Duration
	callback func()
}

// MockScheduler records timers and fires them on demand.
type MockScheduler struct {
	mu     sync.Mutex
	timers []scheduled
}

func (m *MockScheduler) AddTimer(delay, interval time.Duration, callback func()) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timers = append(m.timers, scheduled{delay: delay, callback: callback})
	return int64(len(m.timers))
}

func (m *MockScheduler) fireAll() {
	m.mu.Lock()
	timers := m.timers
	m.timers = nil
	m.mu.Unlock()
	for _, t := range timers {
		t.callback()
	}
}

type MockArchiver struct {
	mu        sync.Mutex
	snapshots []bracket.Snapshot
	failures  int
}

func (m *MockArchiver) ArchiveTournament(s bracket.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures > 0 {
		m.failures--
		return errors.New("database unavailable")
	}
	m.snapshots = append(m.snapshots, s)
	return nil
}

type MockGranter struct {
	mu      sync.Mutex
	granted map[arena.ParticipantID]int64
}

func (m *MockGranter) GrantReward(p arena.ParticipantID, amount int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.granted[p] += amount
}

type MockPublisher struct {
	mu     sync.Mutex
	events []broadcast.Event
}

func (m *MockPublisher) Publish(e broadcast.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
}

func (m *MockPublisher) kinds() []broadcast.Kind {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []broadcast.Kind
	for _, e := range m.events {
		if e.Kind == broadcast.TournamentStarted || e.Kind == broadcast.TournamentComplete {
			out = append(out, e.Kind)
		}
	}
	return out
}

type fixture struct {
	orch      *Orchestrator
	scheduler *MockScheduler
	archiver  *MockArchiver
	granter   *MockGranter
	publisher *MockPublisher
}

func newFixture() *fixture {
	f := &fixture{
		scheduler: &MockScheduler{},
		archiver:  &MockArchiver{},
		granter:   &MockGranter{granted: make(map[arena.ParticipantID]int64)},
		publisher: &MockPublisher{},
	}
	f.orch = NewOrchestrator(Config{
		Types: map[string]TypeConfig{
			"weekly": {PrizePool: 1000, PrizeDistribution: []float64{0.5, 0.25, 0.25}, MaxParticipants: 4},
			"daily":  {PrizePool: 100, PrizeDistribution: []float64{1}},
		},
		Publisher:       f.publisher,
		Rewards:         f.granter,
		Clock:           clockwork.NewFakeClock(),
		Scheduler:       f.scheduler,
		Archiver:        f.archiver,
		RetentionWindow: time.Minute,
		NewRand:         func() *rand.Rand { return rand.New(rand.NewSource(3)) },
		Dispatch:        func(fn func()) { fn() },
	})
	return f
}

func playOut(t *testing.T, e *bracket.Engine) {
	t.Helper()
	for e.State() == bracket.StateRoundActive {
		for _, m := range e.CurrentRoundMatches() {
			if !m.Complete {
				if err := e.CompleteMatch(m.ID, 1); err != nil {
					t.Fatalf("CompleteMatch failed: %v", err)
				}
			}
		}
	}
}

func TestCreateTournament(t *testing.T) {
	f := newFixture()

	if _, err := f.orch.CreateTournament("monthly", 4); !errors.Is(err, arena.ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument for an unknown type, got: %v", err)
	}

	weekly, err := f.orch.CreateTournament("weekly", 0)
	if err != nil {
		t.Fatalf("CreateTournament failed: %v", err)
	}
	if got := weekly.Snapshot().MaxParticipants; got != 4 {
		t.Errorf("Expected type default of 4 participants, got %d", got)
	}
	if got := weekly.Snapshot().PrizePool; got != 1000 {
		t.Errorf("Expected prize pool 1000, got %d", got)
	}

	_, err = f.orch.CreateTournament("weekly", 8)
	if !errors.Is(err, arena.ErrDuplicateTournamentType) {
		t.Fatalf("Expected ErrDuplicateTournamentType, got: %v", err)
	}
	if !errors.Is(err, arena.ErrAlreadyInProgress) {
		t.Error("Duplicate type should also match ErrAlreadyInProgress")
	}

	daily, err := f.orch.CreateTournament("daily", 0)
	if err != nil {
		t.Fatalf("A different type should be allowed, got: %v", err)
	}
	if got := daily.Snapshot().MaxParticipants; got != DefaultMaxParticipants {
		t.Errorf("Expected %d participants, got %d", DefaultMaxParticipants, got)
	}

	if f.orch.ActiveCount() != 2 {
		t.Errorf("Expected 2 active tournaments, got %d", f.orch.ActiveCount())
	}
	active := f.orch.Active()
	if active[0] != daily || active[1] != weekly {
		t.Error("Active should be ordered by type")
	}
	if diff := cmp.Diff([]string{"daily", "weekly"}, f.orch.Types()); diff != "" {
		t.Errorf("Types mismatch (-want +got):\n%s", diff)
	}
}

func TestStartTournament(t *testing.T) {
	f := newFixture()

	if err := f.orch.StartTournament("missing"); !errors.Is(err, arena.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got: %v", err)
	}

	e, _ := f.orch.CreateTournament("weekly", 0)
	f.orch.Register(e.ID(), "P1")
	f.orch.Register(e.ID(), "P2")
	f.orch.Register(e.ID(), "P3")

	if err := f.orch.StartTournament(e.ID()); !errors.Is(err, arena.ErrAwaitingMoreParticipants) {
		t.Fatalf("Expected ErrAwaitingMoreParticipants, got: %v", err)
	}
	if len(f.publisher.kinds()) != 0 {
		t.Error("A failed start must not be announced")
	}

	if err := f.orch.Register(e.ID(), "P4"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := f.orch.StartTournament(e.ID()); err != nil {
		t.Fatalf("StartTournament failed: %v", err)
	}
	if diff := cmp.Diff([]broadcast.Kind{broadcast.TournamentStarted}, f.publisher.kinds()); diff != "" {
		t.Errorf("Events mismatch (-want +got):\n%s", diff)
	}
}

func TestTournamentLifecycle(t *testing.T) {
	f := newFixture()

	e, err := f.orch.CreateTournament("weekly", 0)
	if err != nil {
		t.Fatalf("CreateTournament failed: %v", err)
	}
	for i := 1; i <= 4; i++ {
		if err := f.orch.Register(e.ID(), arena.ParticipantID(fmt.Sprintf("P%d", i))); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}
	if err := f.orch.StartTournament(e.ID()); err != nil {
		t.Fatalf("StartTournament failed: %v", err)
	}

	round1 := e.CurrentRoundMatches()
	if err := f.orch.CompleteMatch(e.ID(), round1[0].ID, 1); err != nil {
		t.Fatalf("CompleteMatch failed: %v", err)
	}
	if err := f.orch.CompleteMatch(e.ID(), "nope", 1); !errors.Is(err, arena.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown match, got: %v", err)
	}
	playOut(t, e)

	if f.orch.ActiveCount() != 0 {
		t.Errorf("Completed tournament should leave the active set, got %d", f.orch.ActiveCount())
	}
	if _, ok := f.orch.Get(e.ID()); !ok {
		t.Error("Completed tournament should stay readable until archival")
	}

	var total int64
	for _, amount := range f.granter.granted {
		total += amount
	}
	if total != 1000 {
		t.Errorf("Expected 1000 granted, got %d", total)
	}
	winner, _ := e.Winner()
	if f.granter.granted[winner] != 500 {
		t.Errorf("Expected champion to receive 500, got %d", f.granter.granted[winner])
	}

	if len(f.scheduler.timers) != 1 || f.scheduler.timers[0].delay != time.Minute {
		t.Fatalf("Expected one archival timer after 1m, got %+v", f.scheduler.timers)
	}

	next, err := f.orch.CreateTournament("weekly", 0)
	if err != nil {
		t.Fatalf("Expected a new weekly tournament after completion, got: %v", err)
	}
	if err := f.orch.Register(next.ID(), winner); err != nil {
		t.Errorf("Champion should be free to join the next tournament, got: %v", err)
	}

	f.scheduler.fireAll()
	if _, ok := f.orch.Get(e.ID()); ok {
		t.Error("Archived tournament should be dropped")
	}
	if len(f.archiver.snapshots) != 1 {
		t.Fatalf("Expected 1 archived snapshot, got %d", len(f.archiver.snapshots))
	}
	snap := f.archiver.snapshots[0]
	if snap.State != bracket.StateComplete || len(snap.Placements) != 4 || len(snap.Rewards) != 4 {
		t.Errorf("Unexpected archived snapshot: state=%s placements=%d rewards=%d", snap.State, len(snap.Placements), len(snap.Rewards))
	}
	if f.orch.Retained() != 1 {
		t.Errorf("Expected only the new tournament retained, got %d", f.orch.Retained())
	}
}

func TestArchiveRetriesAfterFailure(t *testing.T) {
	f := newFixture()
	f.archiver.failures = 1

	e, _ := f.orch.CreateTournament("daily", 2)
	f.orch.Register(e.ID(), "P1")
	f.orch.Register(e.ID(), "P2")
	if err := f.orch.StartTournament(e.ID()); err != nil {
		t.Fatalf("StartTournament failed: %v", err)
	}
	playOut(t, e)

	f.scheduler.fireAll()
	if _, ok := f.orch.Get(e.ID()); !ok {
		t.Fatal("Tournament should be kept when archiving fails")
	}
	if len(f.archiver.snapshots) != 0 {
		t.Errorf("Expected no archived snapshot yet, got %d", len(f.archiver.snapshots))
	}
	if len(f.scheduler.timers) != 1 || f.scheduler.timers[0].delay != time.Minute {
		t.Fatalf("Expected archival to be rescheduled after 1m, got %+v", f.scheduler.timers)
	}

	f.scheduler.fireAll()
	if _, ok := f.orch.Get(e.ID()); ok {
		t.Error("Tournament should be dropped once archived")
	}
	if len(f.archiver.snapshots) != 1 {
		t.Errorf("Expected 1 archived snapshot, got %d", len(f.archiver.snapshots))
	}
	if len(f.scheduler.timers) != 0 {
		t.Errorf("Expected no further timers, got %d", len(f.scheduler.timers))
	}
}

func TestConcurrentCreateSameType(t *testing.T) {
	f := newFixture()

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.orch.CreateTournament("daily", 2); err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if created != 1 {
		t.Errorf("Expected exactly one tournament created, got %d", created)
	}
}

func TestUnknownTournament(t *testing.T) {
	f := newFixture()

	if err := f.orch.Register("missing", "P1"); !errors.Is(err, arena.ErrNotFound) {
		t.Errorf("Expected ErrNotFound from Register, got: %v", err)
	}
	if err := f.orch.Withdraw("missing", "P1"); !errors.Is(err, arena.ErrNotFound) {
		t.Errorf("Expected ErrNotFound from Withdraw, got: %v", err)
	}
	if err := f.orch.CompleteMatch("missing", "m", 1); !errors.Is(err, arena.ErrNotFound) {
		t.Errorf("Expected ErrNotFound from CompleteMatch, got: %v", err)
	}
}
