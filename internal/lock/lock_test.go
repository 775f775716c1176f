package lock

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exclusive(t *testing.T, r Region, name string) {
	t.Helper()

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := r.Do(context.Background(), name, func() error {
				n := inside.Add(1)
				for {
					m := maxInside.Load()
					if n <= m || maxInside.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				inside.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside.Load())
}

func TestMemRegion_Exclusive(t *testing.T) {
	exclusive(t, NewMemRegion(), "table")
}

func TestFileRegion_Exclusive(t *testing.T) {
	exclusive(t, NewFileRegion(time.Millisecond), filepath.Join(t.TempDir(), "table.csv"))
}

func TestMemRegion_IndependentNames(t *testing.T) {
	r := NewMemRegion()
	done := make(chan struct{})

	err := r.Do(context.Background(), "a", func() error {
		go func() {
			_ = r.Do(context.Background(), "b", func() error { return nil })
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-time.After(time.Second):
			return errors.New("region b blocked by region a")
		}
	})
	assert.NoError(t, err)
}

func TestMemRegion_ReleasedOnErrorAndPanic(t *testing.T) {
	r := NewMemRegion()
	boom := errors.New("boom")

	assert.ErrorIs(t, r.Do(context.Background(), "x", func() error { return boom }), boom)
	assert.Panics(t, func() {
		_ = r.Do(context.Background(), "x", func() error { panic("bad row") })
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.Do(ctx, "x", func() error { return nil }))
}

func TestMemRegion_CancelledWait(t *testing.T) {
	r := NewMemRegion()
	hold := make(chan struct{})
	entered := make(chan struct{})

	go func() {
		_ = r.Do(context.Background(), "x", func() error {
			close(entered)
			<-hold
			return nil
		})
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := r.Do(ctx, "x", func() error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(hold)
}
