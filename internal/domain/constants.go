package domain

import "time"

// State represents the current position of the orchestration flow.
//
// A flow starts Idle and returns to it after every losing probe. Halted and GaveUp are terminal:
// once reached, no further submissions are made for the lifetime of the process.
type State string

const (
	// Idle indicates the flow is waiting for the next scheduler tick.
	Idle State = "idle"

	// Probing indicates a low-stakes probe submission is in flight.
	// Probes draw from the dummy identity pool and never consume a real identity or receipt.
	Probing State = "probing"

	// Confirming indicates a real submission is in flight after a winning probe.
	Confirming State = "confirming"

	// RetryWait indicates the flow is backing off after a real submission failed to confirm a win.
	RetryWait State = "retry_wait"

	// Halted indicates a real submission confirmed a win.
	// The flag is permanent: every later tick is a no-op.
	Halted State = "halted"

	// GaveUp indicates every confirm attempt after a winning probe failed.
	// The process is expected to terminate.
	GaveUp State = "gave_up"
)

// Terminal reports whether no further ticks may do work from this state.
func (s State) Terminal() bool {
	return s == Halted || s == GaveUp
}

// Mode selects whether a submission is a throwaway probe or a committing real entry.
type Mode string

const (
	Probe Mode = "probe"
	Real  Mode = "real"
)

// Result is the tri-state verdict of one submission attempt.
type Result string

const (
	Won     Result = "won"
	Lost    Result = "lost"
	Errored Result = "error"
)

const (
	// DEFAULT_CHECK_INTERVAL is how often the scheduler checks whether a tick is due.
	DEFAULT_CHECK_INTERVAL = 5 * time.Second

	// DEFAULT_MAX_USES caps how many real submissions a single identity may back.
	DEFAULT_MAX_USES = 10

	// DEFAULT_COOLDOWN is the minimum time between two uses of the same real identity.
	DEFAULT_COOLDOWN = 24 * time.Hour

	// DEFAULT_CONFIRM_BACKOFF is the wait between a failed confirm and its retry.
	DEFAULT_CONFIRM_BACKOFF = 20 * time.Minute

	// DEFAULT_CONFIRM_RETRIES is how many extra confirm attempts follow a failed one.
	DEFAULT_CONFIRM_RETRIES = 1

	// DEFAULT_SUBMIT_TIMEOUT bounds a single call into the submission driver.
	DEFAULT_SUBMIT_TIMEOUT = 5 * time.Minute

	// DEFAULT_LOCK_POLL is the retry period while waiting for a busy table lock.
	DEFAULT_LOCK_POLL = 50 * time.Millisecond

	// DEFAULT_TIME_LAYOUT renders last-used timestamps written back to a table.
	DEFAULT_TIME_LAYOUT = time.RFC3339

	// DATE_LAYOUT is the date-only form accepted when reading older tables.
	DATE_LAYOUT = "2006-01-02"
)
