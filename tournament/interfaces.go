package tournament

import (
	"time"

	"github.com/wfunc/duelarena/bracket"
)

// Scheduler defers work such as archival. timer.TimerManager satisfies it.
// Defined here to keep tournament free of the timer package.
type Scheduler interface {
	AddTimer(delay, interval time.Duration, callback func()) int64
}

// Archiver persists a finished bracket before it is dropped from memory.
type Archiver interface {
	ArchiveTournament(snapshot bracket.Snapshot) error
}
