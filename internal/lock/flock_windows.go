//go:build windows

package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	errs "github.com/osmike/sweeper/internal/error"

	"golang.org/x/sys/windows"
)

// acquire opens path and takes an exclusive LockFileEx on its first byte, polling until it is free or ctx is done.
func acquire(ctx context.Context, path string, poll time.Duration) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	flags := uint32(windows.LOCKFILE_EXCLUSIVE_LOCK | windows.LOCKFILE_FAIL_IMMEDIATELY)
	for {
		ol := new(windows.Overlapped)
		err = windows.LockFileEx(windows.Handle(f.Fd()), flags, 0, 1, 0, ol)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, windows.ERROR_LOCK_VIOLATION) {
			_ = f.Close()
			return nil, fmt.Errorf("lock %s: %w", path, err)
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
	ol := new(windows.Overlapped)
	_ = windows.UnlockFileEx(windows.Handle(f.Fd()), 0, 1, 0, ol)
	_ = f.Close()
}
