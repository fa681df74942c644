package duel

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/wfunc/duelarena/arena"
	"github.com/wfunc/duelarena/broadcast"
	"github.com/wfunc/duelarena/participant"
)

type fakeCollaborators struct {
	mu        sync.Mutex
	starts    []string
	ends      map[string]arena.ParticipantID
	bets      []string
	ratings   []string
	restored  map[arena.ParticipantID]arena.Position
	positions map[arena.ParticipantID]arena.Position
	recorded  []Result
	events    []broadcast.Event
}

func newFakeCollaborators() *fakeCollaborators {
	return &fakeCollaborators{
		ends:      make(map[string]arena.ParticipantID),
		restored:  make(map[arena.ParticipantID]arena.Position),
		positions: make(map[arena.ParticipantID]arena.Position),
	}
}

func (f *fakeCollaborators) ReportDuelStart(duelID string, p1, p2 arena.ParticipantID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, duelID)
}

func (f *fakeCollaborators) ReportDuelEnd(duelID string, winner arena.ParticipantID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ends[duelID] = winner
}

func (f *fakeCollaborators) TransferBet(winner, loser arena.ParticipantID, amount int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bets = append(f.bets, string(winner)+">"+string(loser))
}

func (f *fakeCollaborators) UpdateRating(winner, loser arena.ParticipantID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ratings = append(f.ratings, string(winner)+">"+string(loser))
}

func (f *fakeCollaborators) Position(p arena.ParticipantID) arena.Position {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.positions[p]
}

func (f *fakeCollaborators) Restore(p arena.ParticipantID, pos arena.Position) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restored[p] = pos
}

func (f *fakeCollaborators) RecordDuel(result Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, result)
}

func (f *fakeCollaborators) Publish(e broadcast.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
}

func (f *fakeCollaborators) kinds() []broadcast.Kind {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []broadcast.Kind
	for _, e := range f.events {
		out = append(out, e.Kind)
	}
	return out
}

type fixture struct {
	clock      *clockwork.FakeClock
	fakes      *fakeCollaborators
	tracker    *Tracker
	negotiator *Negotiator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClock()
	fakes := newFakeCollaborators()
	tracker := NewTracker(Config{
		Clock:     clock,
		Index:     participant.NewIndex(),
		Publisher: fakes,
		Combat:    fakes,
		Economy:   fakes,
		Ranking:   fakes,
		Positions: fakes,
		Recorder:  fakes,
		Dispatch:  func(f func()) { f() },
	})
	return &fixture{
		clock:      clock,
		fakes:      fakes,
		tracker:    tracker,
		negotiator: NewNegotiator(tracker, nil, 0),
	}
}

func normalSettings() Settings {
	return Settings{TimeLimit: 300 * time.Second, AllowSkills: true, Category: arena.CategoryNormal}
}

func (fx *fixture) startDuel(t *testing.T, a, b arena.ParticipantID, settings Settings) string {
	t.Helper()
	reqID, err := fx.negotiator.SendRequest(a, b, settings)
	if err != nil {
		t.Fatalf("SendRequest failed: %v", err)
	}
	duelID, err := fx.negotiator.Accept(reqID, b)
	if err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	return duelID
}

func TestSendRequest_Validation(t *testing.T) {
	fx := newFixture(t)

	if _, err := fx.negotiator.SendRequest("a", "a", normalSettings()); !errors.Is(err, arena.ErrInvalidArgument) || !errors.Is(err, arena.ErrSelfDuel) {
		t.Errorf("Expected self duel to be an invalid argument, got: %v", err)
	}

	bad := normalSettings()
	bad.TimeLimit = 0
	if _, err := fx.negotiator.SendRequest("a", "b", bad); !errors.Is(err, arena.ErrInvalidArgument) {
		t.Errorf("Expected zero time limit to be rejected, got: %v", err)
	}

	bad = normalSettings()
	bad.BetAmount = -1
	if _, err := fx.negotiator.SendRequest("a", "b", bad); !errors.Is(err, arena.ErrInvalidArgument) {
		t.Errorf("Expected negative bet to be rejected, got: %v", err)
	}
}

func TestSendRequest_UnknownParticipant(t *testing.T) {
	fx := newFixture(t)
	n := NewNegotiator(fx.tracker, registryOf("a"), 0)

	_, err := n.SendRequest("a", "ghost", normalSettings())
	if !errors.Is(err, arena.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got: %v", err)
	}
	if diff := cmp.Diff([]string{"ghost"}, arena.IDsOf(err)); diff != "" {
		t.Errorf("IDs mismatch (-want +got):\n%s", diff)
	}
}

type registryOf arena.ParticipantID

func (r registryOf) IsValid(id arena.ParticipantID) bool { return id == arena.ParticipantID(r) }

func TestSendRequest_Duplicate(t *testing.T) {
	fx := newFixture(t)

	if _, err := fx.negotiator.SendRequest("a", "b", normalSettings()); err != nil {
		t.Fatalf("First request failed: %v", err)
	}
	if _, err := fx.negotiator.SendRequest("a", "b", normalSettings()); !errors.Is(err, arena.ErrDuplicateRequest) {
		t.Errorf("Expected ErrDuplicateRequest, got: %v", err)
	}

	// the reverse direction is a different ordered pair
	if _, err := fx.negotiator.SendRequest("b", "a", normalSettings()); err != nil {
		t.Errorf("Reverse request should be allowed, got: %v", err)
	}
	if fx.negotiator.Pending() != 2 {
		t.Errorf("Expected 2 pending requests, got %d", fx.negotiator.Pending())
	}
}

func TestSendRequest_ReplacesExpiredPair(t *testing.T) {
	fx := newFixture(t)

	first, _ := fx.negotiator.SendRequest("a", "b", normalSettings())
	fx.clock.Advance(31 * time.Second)

	second, err := fx.negotiator.SendRequest("a", "b", normalSettings())
	if err != nil {
		t.Fatalf("Expected a new request once the old one expired, got: %v", err)
	}
	if _, ok := fx.negotiator.Get(first); ok {
		t.Error("Expired request should have been replaced")
	}
	if _, ok := fx.negotiator.Get(second); !ok {
		t.Error("New request should be stored")
	}
}

func TestAccept_Expiry(t *testing.T) {
	tests := []struct {
		name    string
		wait    time.Duration
		wantErr error
	}{
		{"within window", 29 * time.Second, nil},
		{"past window", 31 * time.Second, arena.ErrExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t)
			reqID, _ := fx.negotiator.SendRequest("a", "b", normalSettings())
			req, _ := fx.negotiator.Get(reqID)
			if want := req.CreatedAt.Add(30 * time.Second); !req.ExpiresAt.Equal(want) {
				t.Fatalf("Expected expiry %v, got %v", want, req.ExpiresAt)
			}

			fx.clock.Advance(tt.wait)
			_, err := fx.negotiator.Accept(reqID, "b")

			if tt.wantErr == nil && err != nil {
				t.Fatalf("Expected accept to succeed, got: %v", err)
			}
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Expected %v, got: %v", tt.wantErr, err)
				}
				if fx.negotiator.Pending() != 0 {
					t.Error("Expired request should be removed on access")
				}
			}
		})
	}
}

func TestAccept_WrongPartyAndNotFound(t *testing.T) {
	fx := newFixture(t)
	reqID, _ := fx.negotiator.SendRequest("a", "b", normalSettings())

	if _, err := fx.negotiator.Accept(reqID, "a"); !errors.Is(err, arena.ErrWrongParty) {
		t.Errorf("Expected ErrWrongParty, got: %v", err)
	}
	if err := fx.negotiator.Decline(reqID, "c"); !errors.Is(err, arena.ErrWrongParty) {
		t.Errorf("Expected ErrWrongParty on decline, got: %v", err)
	}
	if _, err := fx.negotiator.Accept("missing", "b"); !errors.Is(err, arena.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got: %v", err)
	}
	if fx.negotiator.Pending() != 1 {
		t.Error("Rejected accept must leave the request in place")
	}
}

func TestAccept_CreatesDuel(t *testing.T) {
	fx := newFixture(t)
	fx.fakes.positions["a"] = arena.Position{MapID: "town", X: 1}
	fx.fakes.positions["b"] = arena.Position{MapID: "town", X: 2}

	reqID, _ := fx.negotiator.SendRequest("a", "b", normalSettings())
	duelID, err := fx.negotiator.Accept(reqID, "b")
	if err != nil {
		t.Fatalf("Accept failed: %v", err)
	}

	if fx.negotiator.Pending() != 0 {
		t.Error("Accepted request should be removed")
	}
	d, ok := fx.tracker.GetActiveDuel("a")
	if !ok || d.ID != duelID {
		t.Fatalf("Expected a to be in duel %s", duelID)
	}
	if want := d.StartedAt.Add(300 * time.Second); !d.Deadline.Equal(want) {
		t.Errorf("Expected deadline %v, got %v", want, d.Deadline)
	}
	if d.OriginalPositions["b"].X != 2 {
		t.Errorf("Expected b's position to be snapshotted, got %+v", d.OriginalPositions["b"])
	}
	if !fx.tracker.IsInDuel("b") || fx.tracker.IsInDuel("c") {
		t.Error("IsInDuel mismatch")
	}
	if len(fx.fakes.starts) != 1 || fx.fakes.starts[0] != duelID {
		t.Errorf("Expected combat start for %s, got %v", duelID, fx.fakes.starts)
	}
	if diff := cmp.Diff([]broadcast.Kind{broadcast.RequestSent, broadcast.DuelAccepted}, fx.fakes.kinds()); diff != "" {
		t.Errorf("Events mismatch (-want +got):\n%s", diff)
	}
}

func TestDecline(t *testing.T) {
	fx := newFixture(t)
	reqID, _ := fx.negotiator.SendRequest("a", "b", normalSettings())

	if err := fx.negotiator.Decline(reqID, "b"); err != nil {
		t.Fatalf("Decline failed: %v", err)
	}
	if fx.tracker.IsInDuel("a") {
		t.Error("Decline must not start a duel")
	}
	if _, err := fx.negotiator.Accept(reqID, "b"); !errors.Is(err, arena.ErrNotFound) {
		t.Errorf("Expected declined request to be gone, got: %v", err)
	}
}

func TestMutualExclusivity(t *testing.T) {
	fx := newFixture(t)

	ab, _ := fx.negotiator.SendRequest("a", "b", normalSettings())
	ba, _ := fx.negotiator.SendRequest("b", "a", normalSettings())
	ca, _ := fx.negotiator.SendRequest("c", "a", normalSettings())

	duelID, err := fx.negotiator.Accept(ab, "b")
	if err != nil {
		t.Fatalf("Accept failed: %v", err)
	}

	if _, err := fx.negotiator.Accept(ba, "a"); !errors.Is(err, arena.ErrAlreadyDueling) {
		t.Errorf("Expected crossed request accept to fail with ErrAlreadyDueling, got: %v", err)
	}
	if _, err := fx.negotiator.Accept(ca, "a"); !errors.Is(err, arena.ErrAlreadyDueling) {
		t.Errorf("Expected third party accept to fail with ErrAlreadyDueling, got: %v", err)
	}
	if _, err := fx.negotiator.SendRequest("a", "d", normalSettings()); !errors.Is(err, arena.ErrAlreadyDueling) {
		t.Errorf("Expected SendRequest by a dueling participant to fail, got: %v", err)
	}
	if _, err := fx.negotiator.SendRequest("d", "b", normalSettings()); !errors.Is(err, arena.ErrAlreadyDueling) {
		t.Errorf("Expected SendRequest to a dueling participant to fail, got: %v", err)
	}

	if err := fx.tracker.EndDuel(duelID, "a"); err != nil {
		t.Fatalf("EndDuel failed: %v", err)
	}
	if _, err := fx.negotiator.SendRequest("a", "d", normalSettings()); err != nil {
		t.Errorf("Expected a to be free after the duel ended, got: %v", err)
	}
}

func TestSweepExpired(t *testing.T) {
	fx := newFixture(t)
	fx.negotiator.SendRequest("a", "b", normalSettings())
	fx.clock.Advance(20 * time.Second)
	fresh, _ := fx.negotiator.SendRequest("c", "d", normalSettings())

	fx.clock.Advance(11 * time.Second)
	if removed := fx.negotiator.SweepExpired(); removed != 1 {
		t.Fatalf("Expected 1 swept request, got %d", removed)
	}
	if _, ok := fx.negotiator.Get(fresh); !ok {
		t.Error("Unexpired request should survive the sweep")
	}
	if got := fx.negotiator.RequestsFor("a"); len(got) != 0 {
		t.Errorf("Expected no requests for a, got %d", len(got))
	}
}

func TestEndDuel_Outcomes(t *testing.T) {
	tests := []struct {
		name        string
		settings    Settings
		winner      arena.ParticipantID
		wantLoser   arena.ParticipantID
		wantRatings int
		wantBets    int
	}{
		{"normal win", normalSettings(), "a", "b", 0, 0},
		{"ranked win", Settings{TimeLimit: time.Minute, Category: arena.CategoryRanked}, "b", "a", 1, 0},
		{"ranked draw", Settings{TimeLimit: time.Minute, Category: arena.CategoryRanked}, "", "", 0, 0},
		{"bet win", Settings{TimeLimit: time.Minute, Category: arena.CategoryBet, BetAmount: 50}, "a", "b", 0, 1},
		{"zero bet", Settings{TimeLimit: time.Minute, Category: arena.CategoryBet}, "a", "b", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t)
			fx.fakes.positions["a"] = arena.Position{MapID: "town", X: 5}
			duelID := fx.startDuel(t, "a", "b", tt.settings)

			if err := fx.tracker.EndDuel(duelID, tt.winner); err != nil {
				t.Fatalf("EndDuel failed: %v", err)
			}

			if len(fx.fakes.recorded) != 1 {
				t.Fatalf("Expected one recorded result, got %d", len(fx.fakes.recorded))
			}
			result := fx.fakes.recorded[0]
			if result.Winner != tt.winner || result.Loser != tt.wantLoser {
				t.Errorf("Expected winner %q loser %q, got %q %q", tt.winner, tt.wantLoser, result.Winner, result.Loser)
			}
			if len(fx.fakes.ratings) != tt.wantRatings {
				t.Errorf("Expected %d rating updates, got %d", tt.wantRatings, len(fx.fakes.ratings))
			}
			if len(fx.fakes.bets) != tt.wantBets {
				t.Errorf("Expected %d bet transfers, got %d", tt.wantBets, len(fx.fakes.bets))
			}
			if fx.fakes.restored["a"].X != 5 {
				t.Errorf("Expected a to be restored, got %+v", fx.fakes.restored["a"])
			}
			if got, ok := fx.fakes.ends[duelID]; !ok || got != tt.winner {
				t.Errorf("Expected combat end with winner %q, got %q (%v)", tt.winner, got, ok)
			}
			if fx.tracker.IsInDuel("a") || fx.tracker.IsInDuel("b") {
				t.Error("Participants should be released")
			}
		})
	}
}

func TestEndDuel_Errors(t *testing.T) {
	fx := newFixture(t)
	duelID := fx.startDuel(t, "a", "b", normalSettings())

	if err := fx.tracker.EndDuel(duelID, "c"); !errors.Is(err, arena.ErrInvalidArgument) {
		t.Errorf("Expected outsider winner to be rejected, got: %v", err)
	}
	if fx.tracker.Count() != 1 {
		t.Fatal("Rejected EndDuel must keep the duel active")
	}

	if err := fx.tracker.EndDuel(duelID, ""); err != nil {
		t.Fatalf("Explicit draw failed: %v", err)
	}
	if err := fx.tracker.EndDuel(duelID, ""); !errors.Is(err, arena.ErrNotFound) {
		t.Errorf("Expected second EndDuel to return ErrNotFound, got: %v", err)
	}
}

func TestSweepTimeouts_Draw(t *testing.T) {
	fx := newFixture(t)
	duelID := fx.startDuel(t, "a", "b", normalSettings())

	fx.clock.Advance(300 * time.Second)
	if results := fx.tracker.SweepTimeouts(); len(results) != 0 {
		t.Fatalf("Duel at its deadline should not time out yet, got %d results", len(results))
	}

	fx.clock.Advance(time.Second)
	results := fx.tracker.SweepTimeouts()
	if len(results) != 1 {
		t.Fatalf("Expected 1 timed out duel, got %d", len(results))
	}
	if results[0].DuelID != duelID || !results[0].Draw() || results[0].Reason != ReasonTimeout {
		t.Errorf("Expected timeout draw for %s, got %+v", duelID, results[0])
	}
	if fx.tracker.Count() != 0 {
		t.Error("Timed out duel should be removed")
	}
}

func TestConcurrentAccepts(t *testing.T) {
	fx := newFixture(t)

	var ids []string
	for _, c := range []arena.ParticipantID{"c1", "c2", "c3", "c4", "c5"} {
		id, err := fx.negotiator.SendRequest(c, "target", normalSettings())
		if err != nil {
			t.Fatalf("SendRequest failed: %v", err)
		}
		ids = append(ids, id)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := fx.negotiator.Accept(id, "target"); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}(id)
	}
	wg.Wait()

	if accepted != 1 {
		t.Errorf("Expected exactly one accepted duel for the shared target, got %d", accepted)
	}
	if fx.tracker.Count() != 1 {
		t.Errorf("Expected 1 active duel, got %d", fx.tracker.Count())
	}
}

func TestTracker_CollaboratorPanicIsContained(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tracker := NewTracker(Config{
		Clock:    clock,
		Ranking:  panickingRanking{},
		Dispatch: func(f func()) { f() },
	})
	n := NewNegotiator(tracker, nil, time.Minute)

	reqID, _ := n.SendRequest("a", "b", Settings{TimeLimit: time.Minute, Category: arena.CategoryRanked})
	duelID, _ := n.Accept(reqID, "b")

	if err := tracker.EndDuel(duelID, "a"); err != nil {
		t.Fatalf("EndDuel failed: %v", err)
	}
}

type panickingRanking struct{}

func (panickingRanking) UpdateRating(winner, loser arena.ParticipantID) { panic("rating store down") }
