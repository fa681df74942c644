// duel/negotiator.go
package duel

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wfunc/duelarena/arena"
	"github.com/wfunc/duelarena/broadcast"
	"github.com/wfunc/duelarena/logger"
	"github.com/wfunc/duelarena/participant"
)

// DefaultRequestWindow is how long a challenge stays open.
const DefaultRequestWindow = 30 * time.Second

type pairKey struct {
	challenger arena.ParticipantID
	target     arena.ParticipantID
}

// Negotiator runs the request -> accept/decline protocol. Requests are keyed
// by ordered pair, so A->B and B->A may coexist.
type Negotiator struct {
	tracker  *Tracker
	registry participant.Registry
	window   time.Duration

	requests map[string]*Request
	byPair   map[pairKey]string
	mutex    sync.Mutex
}

// NewNegotiator creates a negotiator that hands accepted requests to tracker.
// A nil registry accepts every participant; a non-positive window uses
// DefaultRequestWindow.
func NewNegotiator(tracker *Tracker, registry participant.Registry, window time.Duration) *Negotiator {
	if registry == nil {
		registry = participant.AllowAll{}
	}
	if window <= 0 {
		window = DefaultRequestWindow
	}
	return &Negotiator{
		tracker:  tracker,
		registry: registry,
		window:   window,
		requests: make(map[string]*Request),
		byPair:   make(map[pairKey]string),
	}
}

// SendRequest opens a challenge from challenger to target and returns its ID.
func (n *Negotiator) SendRequest(challenger, target arena.ParticipantID, settings Settings) (string, error) {
	const op = "SendRequest"

	if challenger == target {
		return "", arena.NewError(arena.ErrSelfDuel, op, string(challenger))
	}
	if err := settings.Validate(); err != nil {
		return "", err
	}
	for _, p := range []arena.ParticipantID{challenger, target} {
		if !n.registry.IsValid(p) {
			return "", arena.NewError(arena.ErrNotFound, op, string(p))
		}
	}

	n.mutex.Lock()
	defer n.mutex.Unlock()

	for _, p := range []arena.ParticipantID{challenger, target} {
		if duelID, ok := n.tracker.index.DuelOf(p); ok {
			return "", arena.NewError(arena.ErrAlreadyDueling, op, string(p), duelID)
		}
	}

	now := n.tracker.clock.Now()
	key := pairKey{challenger, target}
	if existingID, exists := n.byPair[key]; exists {
		existing := n.requests[existingID]
		if !now.After(existing.ExpiresAt) {
			return "", arena.NewError(arena.ErrDuplicateRequest, op, string(challenger), string(target), existingID)
		}
		n.removeLocked(existing)
	}

	req := &Request{
		ID:         uuid.NewString(),
		Challenger: challenger,
		Target:     target,
		Settings:   settings,
		CreatedAt:  now,
		ExpiresAt:  now.Add(n.window),
	}
	n.requests[req.ID] = req
	n.byPair[key] = req.ID

	logger.Log.Debugf("Duel request %s: %s -> %s", req.ID, challenger, target)
	n.tracker.publisher.Publish(broadcast.Event{
		Kind:       broadcast.RequestSent,
		At:         now,
		RequestID:  req.ID,
		Category:   settings.Category.String(),
		Challenger: challenger,
		Target:     target,
	})
	return req.ID, nil
}

// Accept consumes the request and starts the duel, returning its ID.
func (n *Negotiator) Accept(requestID string, accepter arena.ParticipantID) (string, error) {
	const op = "Accept"

	n.mutex.Lock()
	defer n.mutex.Unlock()

	req, err := n.consumableLocked(op, requestID, accepter)
	if err != nil {
		return "", err
	}

	d, err := n.tracker.begin(op, req)
	if err != nil {
		return "", err
	}
	n.removeLocked(req)

	n.tracker.publisher.Publish(broadcast.Event{
		Kind:       broadcast.DuelAccepted,
		At:         d.StartedAt,
		RequestID:  req.ID,
		DuelID:     d.ID,
		Category:   d.Settings.Category.String(),
		Challenger: d.Challenger,
		Target:     d.Target,
	})
	return d.ID, nil
}

// Decline discards the request without starting a duel.
func (n *Negotiator) Decline(requestID string, decliner arena.ParticipantID) error {
	const op = "Decline"

	n.mutex.Lock()
	defer n.mutex.Unlock()

	req, err := n.consumableLocked(op, requestID, decliner)
	if err != nil {
		return err
	}
	n.removeLocked(req)

	logger.Log.Debugf("Duel request %s declined by %s", req.ID, decliner)
	n.tracker.publisher.Publish(broadcast.Event{
		Kind:       broadcast.DuelDeclined,
		At:         n.tracker.clock.Now(),
		RequestID:  req.ID,
		Challenger: req.Challenger,
		Target:     req.Target,
	})
	return nil
}

// SweepExpired drops every request past its expiry and returns how many
// were removed.
func (n *Negotiator) SweepExpired() int {
	now := n.tracker.clock.Now()

	n.mutex.Lock()
	defer n.mutex.Unlock()

	removed := 0
	for _, req := range n.requests {
		if now.After(req.ExpiresAt) {
			n.removeLocked(req)
			removed++
		}
	}
	if removed > 0 {
		logger.Log.Debugf("Swept %d expired duel requests", removed)
	}
	return removed
}

// Get returns a copy of the request.
func (n *Negotiator) Get(requestID string) (Request, bool) {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	req, exists := n.requests[requestID]
	if !exists {
		return Request{}, false
	}
	return *req, true
}

// RequestsFor lists the requests p sent or received, oldest first.
func (n *Negotiator) RequestsFor(p arena.ParticipantID) []Request {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	var out []Request
	for _, req := range n.requests {
		if req.Challenger == p || req.Target == p {
			out = append(out, *req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Pending returns the number of outstanding requests.
func (n *Negotiator) Pending() int {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	return len(n.requests)
}

func (n *Negotiator) consumableLocked(op, requestID string, actor arena.ParticipantID) (*Request, error) {
	req, exists := n.requests[requestID]
	if !exists {
		return nil, arena.NewError(arena.ErrNotFound, op, requestID)
	}
	if n.tracker.clock.Now().After(req.ExpiresAt) {
		n.removeLocked(req)
		return nil, arena.NewError(arena.ErrExpired, op, requestID)
	}
	if actor != req.Target {
		return nil, arena.NewError(arena.ErrWrongParty, op, requestID, string(actor))
	}
	return req, nil
}

func (n *Negotiator) removeLocked(req *Request) {
	delete(n.requests, req.ID)
	key := pairKey{req.Challenger, req.Target}
	if n.byPair[key] == req.ID {
		delete(n.byPair, key)
	}
}
