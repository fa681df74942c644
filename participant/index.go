// participant/index.go
package participant

import (
	"sync"

	"github.com/wfunc/duelarena/arena"
)

type membership struct {
	duelID    string
	bracketID string
}

// Index records which duel and which bracket each participant is committed
// to. A participant is in at most one of each at a time.
type Index struct {
	members map[arena.ParticipantID]*membership
	mutex   sync.RWMutex
}

func NewIndex() *Index {
	return &Index{
		members: make(map[arena.ParticipantID]*membership),
	}
}

// ClaimDuel commits a and b to duelID, or fails without changes if either is
// already in a duel.
func (idx *Index) ClaimDuel(duelID string, a, b arena.ParticipantID) error {
	idx.mutex.Lock()
	defer idx.mutex.Unlock()

	for _, p := range []arena.ParticipantID{a, b} {
		if m, ok := idx.members[p]; ok && m.duelID != "" {
			return arena.NewError(arena.ErrAlreadyDueling, "ClaimDuel", string(p), m.duelID)
		}
	}
	idx.entry(a).duelID = duelID
	idx.entry(b).duelID = duelID
	return nil
}

// ReleaseDuel clears the duel membership of the given participants if it
// still points at duelID.
func (idx *Index) ReleaseDuel(duelID string, participants ...arena.ParticipantID) {
	idx.mutex.Lock()
	defer idx.mutex.Unlock()

	for _, p := range participants {
		if m, ok := idx.members[p]; ok && m.duelID == duelID {
			m.duelID = ""
			idx.prune(p)
		}
	}
}

// DuelOf returns the duel p is committed to.
func (idx *Index) DuelOf(p arena.ParticipantID) (string, bool) {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()

	m, ok := idx.members[p]
	if !ok || m.duelID == "" {
		return "", false
	}
	return m.duelID, true
}

// JoinBracket commits p to bracketID. Joining the same bracket twice is an
// ErrAlreadyRegistered, joining a second bracket an ErrAlreadyInProgress.
func (idx *Index) JoinBracket(bracketID string, p arena.ParticipantID) error {
	idx.mutex.Lock()
	defer idx.mutex.Unlock()

	if m, ok := idx.members[p]; ok && m.bracketID != "" {
		if m.bracketID == bracketID {
			return arena.NewError(arena.ErrAlreadyRegistered, "JoinBracket", string(p), bracketID)
		}
		return arena.NewError(arena.ErrAlreadyInProgress, "JoinBracket", string(p), m.bracketID)
	}
	idx.entry(p).bracketID = bracketID
	return nil
}

// LeaveBracket clears p's bracket membership if it still points at bracketID.
func (idx *Index) LeaveBracket(bracketID string, participants ...arena.ParticipantID) {
	idx.mutex.Lock()
	defer idx.mutex.Unlock()

	for _, p := range participants {
		if m, ok := idx.members[p]; ok && m.bracketID == bracketID {
			m.bracketID = ""
			idx.prune(p)
		}
	}
}

// BracketOf returns the bracket p is registered in.
func (idx *Index) BracketOf(p arena.ParticipantID) (string, bool) {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()

	m, ok := idx.members[p]
	if !ok || m.bracketID == "" {
		return "", false
	}
	return m.bracketID, true
}

// Len returns the number of participants with any membership.
func (idx *Index) Len() int {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()
	return len(idx.members)
}

func (idx *Index) entry(p arena.ParticipantID) *membership {
	m, ok := idx.members[p]
	if !ok {
		m = &membership{}
		idx.members[p] = m
	}
	return m
}

func (idx *Index) prune(p arena.ParticipantID) {
	if m := idx.members[p]; m != nil && m.duelID == "" && m.bracketID == "" {
		delete(idx.members, p)
	}
}
