package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrStaleUpdate marks a diff whose update id does not exceed the book
	// state. Stale updates are dropped and counted, never retried.
	ErrStaleUpdate = errors.New("order book update is stale")
	// ErrBookNotReady marks a message for a pair whose book is not
	// initialized yet. Such messages are buffered, not dropped.
	ErrBookNotReady = errors.New("order book is not initialized yet")
	// ErrUpdateOutOfSequence marks a diff whose sequence range starts beyond
	// the next expected update id, meaning at least one diff was missed. The
	// diff must not be applied; past a threshold the book has to be resynced
	// from a fresh snapshot.
	ErrUpdateOutOfSequence = errors.New("order book update is out of sequence")
	ErrNotASnapshot        = errors.New("message is not a snapshot")
)

// ParseError marks a malformed exchange payload. It is not transient: the
// message is dropped and surfaced to metrics instead of being retried.
type ParseError struct {
	Venue string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: malformed payload: %v", e.Venue, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// TransientError marks a recoverable I/O failure. Callers back off and
// retry this class only.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
