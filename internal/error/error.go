package error

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrSchema            = errors.New("table schema mismatch")
	ErrLockTimeout       = errors.New("exclusive region not acquired")
)

var ErrNothingCheckedOut = errors.New("no asset checked out")

var (
	ErrInvalidConfig         = errors.New("invalid configuration")
	ErrInvalidWindow         = errors.New("invalid time window")
	ErrMixedScheduleType     = errors.New("schedule is only supported with one type of interval")
	ErrInvalidCronExpression = errors.New("invalid cron expression")
)

var (
	ErrSubmission = errors.New("submission failed")
	ErrGaveUp     = errors.New("winning probe could not be confirmed")
)

// Kind groups errors by how a caller should react to them.
type Kind int

const (
	KindUnknown Kind = iota
	// KindNotFound: a backing table or asset source is absent.
	KindNotFound
	// KindExhausted: nothing eligible right now; retry on a later tick.
	KindExhausted
	// KindInvariant: a programming error; never caught and continued.
	KindInvariant
	// KindInvalid: bad configuration or table layout; fatal before the loop starts.
	KindInvalid
	// KindTerminal: the deliberate give-up exit.
	KindTerminal
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindExhausted:
		return "exhausted"
	case KindInvariant:
		return "invariant"
	case KindInvalid:
		return "invalid"
	case KindTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// KindOf classifies err by the sentinel it wraps.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrResourceExhausted):
		return KindExhausted
	case errors.Is(err, ErrNothingCheckedOut):
		return KindInvariant
	case errors.Is(err, ErrSchema), errors.Is(err, ErrInvalidConfig), errors.Is(err, ErrInvalidWindow),
		errors.Is(err, ErrMixedScheduleType), errors.Is(err, ErrInvalidCronExpression):
		return KindInvalid
	case errors.Is(err, ErrGaveUp):
		return KindTerminal
	default:
		return KindUnknown
	}
}

// Recoverable reports whether the scheduler may skip the current tick and carry on.
// Only invariant violations and the give-up exit end the loop; a table whose layout broke
// while running is skipped like a missing one, since configuration is checked before the loop.
func Recoverable(err error) bool {
	switch KindOf(err) {
	case KindInvariant, KindTerminal:
		return false
	default:
		return true
	}
}

func New(err error, str string) error {
	return fmt.Errorf("%w: %s", err, str)
}
