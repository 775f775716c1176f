package flow

import (
	"sync"

	"github.com/osmike/sweeper/internal/domain"
)

// state guards the current position of the machine.
type state struct {
	mu     sync.Mutex
	status domain.State
}

func (s *state) get() domain.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// trySet moves to next only if the current state is one of allowed.
//
// Returns:
//   - true if the transition happened; false otherwise.
func (s *state) trySet(allowed []domain.State, next domain.State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range allowed {
		if s.status == a {
			s.status = next
			return true
		}
	}
	return false
}

var (
	fromIdle       = []domain.State{domain.Idle}
	fromConfirming = []domain.State{domain.Confirming}
	fromRetryWait  = []domain.State{domain.RetryWait}
	// A tick may bail out to Idle from any non-terminal position.
	toIdle = []domain.State{domain.Probing, domain.Confirming, domain.RetryWait}
	// Confirming is entered after a winning probe or at the end of a backoff.
	toConfirming = []domain.State{domain.Probing, domain.RetryWait}
)
