// Package asset hands out receipt files and retires them once the entry that used them went through.
package asset

import (
	"errors"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/osmike/sweeper/internal/domain"
	errs "github.com/osmike/sweeper/internal/error"

	"go.uber.org/zap"
)

// Order decides which available file Checkout returns.
type Order string

const (
	// First returns the first file of the sorted directory listing.
	First Order = "first"
	// Random returns a uniformly random file.
	Random Order = "random"
)

// Config describes one receipt source.
type Config struct {
	// FreshDir holds the receipts still available.
	FreshDir string

	// UsedDir receives committed receipts. Leave empty for sources that are never committed.
	UsedDir string

	// Order selects between first-by-listing and random checkout.
	Order Order

	// Create makes both directories on construction if they do not exist.
	Create bool
}

// Cursor tracks at most one checked-out receipt from a directory.
//
// A receipt moves to the used directory only through Commit, which callers invoke after the
// entry that consumed it is confirmed. On every other path the receipt stays available.
type Cursor struct {
	cfg  Config
	log  *zap.Logger
	intn func(n int) int

	mu      sync.Mutex
	current *domain.Asset
}

// New creates a Cursor.
//
// Returns:
//   - ErrInvalidConfig if FreshDir is empty.
//   - An I/O error if Create is set and a directory cannot be made.
func New(cfg Config, log *zap.Logger) (*Cursor, error) {
	if cfg.FreshDir == "" {
		return nil, errs.New(errs.ErrInvalidConfig, "empty receipt directory")
	}
	if cfg.Order == "" {
		cfg.Order = First
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Create {
		for _, dir := range []string{cfg.FreshDir, cfg.UsedDir} {
			if dir == "" {
				continue
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create %s: %w", dir, err)
			}
		}
	}

	c := &Cursor{
		cfg:  cfg,
		log:  log.With(zap.String("fresh_dir", cfg.FreshDir)),
		intn: rand.IntN,
	}
	c.log.Info("receipt cursor ready", zap.String("used_dir", cfg.UsedDir), zap.String("order", string(cfg.Order)))
	return c, nil
}

// Available returns the names of the receipts in the fresh directory, sorted.
func (c *Cursor) Available() ([]string, error) {
	entries, err := os.ReadDir(c.cfg.FreshDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errs.New(errs.ErrNotFound, fmt.Sprintf("receipt directory %s", c.cfg.FreshDir))
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", c.cfg.FreshDir, err)
	}

	var names []string
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Checkout picks a receipt and remembers it as the current one.
//
// A previous checkout that was never committed is replaced; the file it named was not moved
// and is still available.
//
// Returns:
//   - The receipt with its absolute path.
//   - ErrNotFound if the directory is missing or holds no receipt.
func (c *Cursor) Checkout() (domain.Asset, error) {
	names, err := c.Available()
	if err != nil {
		c.log.Error("receipt source unavailable", zap.Error(err))
		return domain.Asset{}, err
	}
	if len(names) == 0 {
		err := errs.New(errs.ErrNotFound, fmt.Sprintf("no receipts in %s", c.cfg.FreshDir))
		c.log.Error("no receipts left", zap.Error(err))
		return domain.Asset{}, err
	}

	name := names[0]
	if c.cfg.Order == Random {
		name = names[c.intn(len(names))]
	}
	abs, err := filepath.Abs(filepath.Join(c.cfg.FreshDir, name))
	if err != nil {
		return domain.Asset{}, err
	}

	a := domain.Asset{Name: name, Path: abs}
	c.mu.Lock()
	c.current = &a
	c.mu.Unlock()

	c.log.Info("receipt checked out", zap.String("receipt", name), zap.Int("available", len(names)))
	return a, nil
}

// Commit moves the current receipt into the used directory.
//
// Returns:
//   - ErrNothingCheckedOut if there is no outstanding checkout, including right after a Commit.
//     The filesystem is not touched in that case.
//   - An I/O error if the move fails; the checkout is kept so the caller may retry.
func (c *Cursor) Commit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return errs.New(errs.ErrNothingCheckedOut, c.cfg.FreshDir)
	}
	if c.cfg.UsedDir == "" {
		return errs.New(errs.ErrInvalidConfig, fmt.Sprintf("receipt source %s has no used directory", c.cfg.FreshDir))
	}

	dst := filepath.Join(c.cfg.UsedDir, c.current.Name)
	if err := os.Rename(c.current.Path, dst); err != nil {
		return fmt.Errorf("move receipt %s: %w", c.current.Name, err)
	}
	c.log.Info("receipt committed", zap.String("receipt", c.current.Name), zap.String("destination", dst))
	c.current = nil
	return nil
}

// Release forgets the current receipt without moving it.
func (c *Cursor) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		c.log.Debug("receipt released", zap.String("receipt", c.current.Name))
	}
	c.current = nil
}

// Current returns the outstanding checkout, if any.
func (c *Cursor) Current() (domain.Asset, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return domain.Asset{}, false
	}
	return *c.current, true
}

// Dir returns the fresh directory.
func (c *Cursor) Dir() string {
	return c.cfg.FreshDir
}
