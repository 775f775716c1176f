package domain

import "time"

// Retry defines what happens when a real submission fails to confirm a winning probe.
type Retry struct {
	// Count is the number of extra confirm attempts allowed before giving up.
	Count int

	// Backoff is the wait before each extra confirm attempt.
	Backoff time.Duration
}
