//go:build unix

package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	errs "github.com/osmike/sweeper/internal/error"

	"golang.org/x/sys/unix"
)

// acquire opens path and takes an exclusive flock on it, polling until it is free or ctx is done.
func acquire(ctx context.Context, path string, poll time.Duration) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	for {
		err = unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EINTR) {
			_ = f.Close()
			return nil, fmt.Errorf("flock %s: %w", path, err)
		}

		select {
		case <-ctx.Done():
			_ = f.Close()
			return nil, errs.New(errs.ErrLockTimeout, fmt.Sprintf("%s: %v", path, ctx.Err()))
		case <-time.After(poll):
		}
	}
}

func release(f *os.File) {
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
	_ = f.Close()
}
