// Package ledger persists identity records in a CSV table and hands them out under exclusive access.
package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/osmike/sweeper/internal/domain"
	errs "github.com/osmike/sweeper/internal/error"
	"github.com/osmike/sweeper/internal/lock"

	"go.uber.org/zap"
)

// Store is a durable table of identity records.
//
// Every read-select-write cycle runs inside the exclusive region named by the table's
// absolute path, so concurrent callers (goroutines or other processes sharing the file)
// never interleave a read with another caller's write.
type Store struct {
	path   string
	cols   Columns
	region lock.Region
	log    *zap.Logger
}

// New creates a Store over the CSV file at path.
//
// Parameters:
//   - path: location of the table; it is not created if missing.
//   - cols: header names the table must carry.
//   - region: exclusive region implementation; lock.NewFileRegion in production.
//   - log: logger; zap.NewNop() is used if nil.
func New(path string, cols Columns, region lock.Region, log *zap.Logger) (*Store, error) {
	if path == "" {
		return nil, errs.New(errs.ErrInvalidConfig, "empty table path")
	}
	if cols.Key == "" || cols.LastUsed == "" {
		return nil, errs.New(errs.ErrInvalidConfig, fmt.Sprintf("table %s: key and last-used columns are required", path))
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		path:   abs,
		cols:   cols,
		region: region,
		log:    log.With(zap.String("table", abs)),
	}, nil
}

// Path returns the absolute location of the table.
func (s *Store) Path() string {
	return s.path
}

// Load reads the current rows without taking the exclusive lock.
//
// Returns:
//   - Ordered non-blank rows.
//   - ErrNotFound if the table file does not exist, ErrSchema if a required column is missing.
func (s *Store) Load(ctx context.Context) ([]domain.Record, error) {
	t, err := s.read()
	if err != nil {
		return nil, err
	}
	return t.rows, nil
}

// WithExclusiveAccess runs one atomic load-select-persist cycle.
//
// fn is invoked exactly once with the current non-blank rows. The rows it returns replace the
// table completely before the lock is released. If fn selects nothing, the table is left as is
// and ErrResourceExhausted is returned.
//
// Returns:
//   - The selected record as persisted.
//   - ErrNotFound, ErrSchema, ErrResourceExhausted, ErrLockTimeout or an I/O error otherwise.
func (s *Store) WithExclusiveAccess(ctx context.Context, fn domain.SelectFn) (domain.Record, error) {
	var selected domain.Record

	err := s.region.Do(ctx, s.path, func() error {
		t, err := s.read()
		if err != nil {
			return err
		}

		sel, updated, err := fn(t.rows)
		if err != nil {
			return err
		}
		if sel == nil {
			return errs.New(errs.ErrResourceExhausted, s.path)
		}

		t.rows = updated
		if err := s.write(t); err != nil {
			return err
		}
		selected = *sel
		return nil
	})
	if err != nil {
		s.log.Warn("exclusive selection failed", zap.Error(err))
		return domain.Record{}, err
	}

	s.log.Info("record selected",
		zap.String("identity", selected.Key),
		zap.Int("usage_count", selected.UsageCount),
		zap.Time("last_used", selected.LastUsed),
	)
	return selected, nil
}

func (s *Store) read() (*table, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.log.Error("table not found")
		return nil, errs.New(errs.ErrNotFound, s.path)
	}
	if err != nil {
		return nil, fmt.Errorf("open table: %w", err)
	}
	defer f.Close()

	t, err := decode(f, s.cols)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	return t, nil
}

// write replaces the table through a temp file in the same directory, so a crash mid-write
// leaves either the old or the new table, never a truncated one.
func (s *Store) write(t *table) error {
	var buf bytes.Buffer
	if err := encode(&buf, t, s.cols); err != nil {
		return fmt.Errorf("encode table: %w", err)
	}

	mode := fs.FileMode(0o644)
	if st, err := os.Stat(s.path); err == nil {
		mode = st.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("create temp table: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp table: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp table: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), mode); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}
