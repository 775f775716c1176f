// Package lock provides exclusive regions over named resources.
//
// A region guarantees that at most one caller at a time runs inside it for a given name.
// FileRegion extends the guarantee across processes with an OS advisory lock on a sidecar
// "<name>.lock" file; MemRegion keeps it within one process and needs no filesystem.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/osmike/sweeper/internal/domain"
)

// Region runs fn while holding the exclusive lock for name.
//
// The lock is released on every exit path, including a panic inside fn.
// A cancelled ctx aborts the wait for a busy lock but never interrupts fn.
type Region interface {
	Do(ctx context.Context, name string, fn func() error) error
}

// MemRegion is an in-process Region backed by one mutex per name.
type MemRegion struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewMemRegion creates an empty in-memory region.
func NewMemRegion() *MemRegion {
	return &MemRegion{locks: make(map[string]chan struct{})}
}

func (r *MemRegion) slot(name string) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.locks[name]
	if !ok {
		ch = make(chan struct{}, 1)
		r.locks[name] = ch
	}
	return ch
}

// Do implements Region.
func (r *MemRegion) Do(ctx context.Context, name string, fn func() error) error {
	ch := r.slot(name)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-ch }()

	return fn()
}

// FileRegion is a cross-process Region.
//
// Callers inside one process are serialized by a MemRegion first, so the OS lock is only
// contended between processes.
type FileRegion struct {
	local *MemRegion
	poll  time.Duration
}

// NewFileRegion creates a region that locks "<name>.lock" files.
//
// Parameters:
//   - poll: retry period while another process holds the lock.
//     Default is DEFAULT_LOCK_POLL if set to 0.
func NewFileRegion(poll time.Duration) *FileRegion {
	if poll <= 0 {
		poll = domain.DEFAULT_LOCK_POLL
	}
	return &FileRegion{local: NewMemRegion(), poll: poll}
}

// Do implements Region.
func (r *FileRegion) Do(ctx context.Context, name string, fn func() error) error {
	return r.local.Do(ctx, name, func() error {
		f, err := acquire(ctx, name+".lock", r.poll)
		if err != nil {
			return err
		}
		defer release(f)

		return fn()
	})
}
