// participant/registry.go
package participant

import "github.com/wfunc/duelarena/arena"

// Registry resolves participant IDs to validity. The session layer owns the
// real implementation.
type Registry interface {
	IsValid(id arena.ParticipantID) bool
}

// AllowAll accepts every non-empty ID.
type AllowAll struct{}

func (AllowAll) IsValid(id arena.ParticipantID) bool {
	return id != ""
}
