// arena/errors.go
package arena

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every error returned by the duel, bracket and tournament
// packages unwraps to one of these.
var (
	ErrNotFound                 = errors.New("not found")
	ErrExpired                  = errors.New("expired")
	ErrAlreadyInProgress        = errors.New("already in progress")
	ErrDuplicateRequest         = errors.New("duplicate duel request")
	ErrBracketFull              = errors.New("bracket is full")
	ErrInsufficientParticipants = errors.New("insufficient participants")
	ErrAwaitingMoreParticipants = errors.New("awaiting more participants")
	ErrWrongState               = errors.New("operation not allowed in current state")
	ErrInvalidArgument          = errors.New("invalid argument")
	ErrAlreadyRegistered        = errors.New("already registered")
	ErrBracketErrored           = errors.New("bracket errored")

	ErrAlreadyDueling          = fmt.Errorf("%w: already dueling", ErrAlreadyInProgress)
	ErrDuplicateTournamentType = fmt.Errorf("%w: tournament type already active", ErrAlreadyInProgress)
	ErrSelfDuel                = fmt.Errorf("%w: cannot duel yourself", ErrInvalidArgument)
	ErrWrongParty              = fmt.Errorf("%w: not the addressed participant", ErrInvalidArgument)
	ErrAlreadyComplete         = fmt.Errorf("%w: already complete", ErrWrongState)
)

// Error carries the kind of a rejected operation together with the IDs that
// caused it, so a transport can render a specific message.
type Error struct {
	Kind error
	Op   string
	IDs  []string
}

// NewError builds an *Error for op.
func NewError(kind error, op string, ids ...string) *Error {
	return &Error{Kind: kind, Op: op, IDs: ids}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if len(e.IDs) > 0 {
		b.WriteString(" [")
		b.WriteString(strings.Join(e.IDs, ", "))
		b.WriteString("]")
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// IDsOf returns the offending IDs attached to err, if any.
func IDsOf(err error) []string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.IDs
	}
	return nil
}
