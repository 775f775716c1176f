package asset

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	errs "github.com/osmike/sweeper/internal/error"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newTestCursor(t *testing.T, order Order, files ...string) (*Cursor, string, string) {
	t.Helper()
	root := t.TempDir()
	fresh := filepath.Join(root, "fresh")
	used := filepath.Join(root, "used")

	c, err := New(Config{FreshDir: fresh, UsedDir: used, Order: order, Create: true}, nil)
	require.NoError(t, err)
	for _, f := range files {
		require.NoError(t, os.WriteFile(filepath.Join(fresh, f), []byte(f), 0o644))
	}
	return c, fresh, used
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestCursor_CheckoutFirstByListing(t *testing.T) {
	c, fresh, _ := newTestCursor(t, First, "b.jpg", "a.jpg", ".DS_Store")

	a, err := c.Checkout()
	require.NoError(t, err)
	assert.Equal(t, "a.jpg", a.Name)
	assert.Equal(t, filepath.Join(fresh, "a.jpg"), a.Path)

	// Checkout alone moves nothing.
	assert.ElementsMatch(t, []string{"a.jpg", "b.jpg", ".DS_Store"}, listDir(t, fresh))
}

func TestCursor_CheckoutRandom(t *testing.T) {
	c, _, _ := newTestCursor(t, Random, "a.jpg", "b.jpg", "c.jpg")
	c.intn = func(n int) int { return n - 1 }

	a, err := c.Checkout()
	require.NoError(t, err)
	assert.Equal(t, "c.jpg", a.Name)
}

func TestCursor_CheckoutEmptyOrMissing(t *testing.T) {
	c, _, _ := newTestCursor(t, First)
	_, err := c.Checkout()
	assert.ErrorIs(t, err, errs.ErrNotFound)

	missing, err := New(Config{FreshDir: filepath.Join(t.TempDir(), "nope")}, nil)
	require.NoError(t, err)
	_, err = missing.Checkout()
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestCursor_CommitMovesOnce(t *testing.T) {
	c, fresh, used := newTestCursor(t, First, "a.jpg", "b.jpg")

	_, err := c.Checkout()
	require.NoError(t, err)
	require.NoError(t, c.Commit())

	assert.Equal(t, []string{"b.jpg"}, listDir(t, fresh))
	assert.Equal(t, []string{"a.jpg"}, listDir(t, used))

	err = c.Commit()
	assert.ErrorIs(t, err, errs.ErrNothingCheckedOut)
	assert.Equal(t, errs.KindInvariant, errs.KindOf(err))
	assert.Equal(t, []string{"b.jpg"}, listDir(t, fresh))
	assert.Equal(t, []string{"a.jpg"}, listDir(t, used))
}

func TestCursor_CommitWithoutCheckout(t *testing.T) {
	c, _, _ := newTestCursor(t, First, "a.jpg")
	assert.ErrorIs(t, c.Commit(), errs.ErrNothingCheckedOut)
}

func TestCursor_ReleaseKeepsReceipt(t *testing.T) {
	c, fresh, used := newTestCursor(t, First, "a.jpg")

	_, err := c.Checkout()
	require.NoError(t, err)
	c.Release()

	_, ok := c.Current()
	assert.False(t, ok)
	assert.ErrorIs(t, c.Commit(), errs.ErrNothingCheckedOut)
	assert.Equal(t, []string{"a.jpg"}, listDir(t, fresh))
	assert.Empty(t, listDir(t, used))
}

func TestCursor_CommitWithoutUsedDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dummy.png"), nil, 0o644))
	c, err := New(Config{FreshDir: dir, Order: Random}, nil)
	require.NoError(t, err)

	_, err = c.Checkout()
	require.NoError(t, err)
	assert.ErrorIs(t, c.Commit(), errs.ErrInvalidConfig)
	assert.Equal(t, []string{"dummy.png"}, listDir(t, dir))
}

func TestWatch_LogsArrivals(t *testing.T) {
	dir := t.TempDir()
	core, logs := observer.New(zap.InfoLevel)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, dir, zap.New(core)) }()

	// Give the watcher time to register before creating the file.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.jpg"), nil, 0o644))

	assert.Eventually(t, func() bool {
		return logs.FilterMessage("receipt added").Len() > 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
