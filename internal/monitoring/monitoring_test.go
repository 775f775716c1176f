package monitoring

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/osmike/sweeper/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2025, 6, 1, 7, 1, 0, 0, time.UTC)

func attempt(id string, offset time.Duration, result domain.Result) domain.AttemptDTO {
	return domain.AttemptDTO{
		ID:            id,
		RunID:         "run-1",
		Mode:          domain.Real,
		Identity:      "a@example.com",
		Asset:         "r1.jpg",
		Result:        result,
		StartAt:       start.Add(offset),
		ExecutionTime: 1500 * time.Millisecond,
		State:         domain.Confirming,
	}
}

func TestMonitoring_OrderedByStart(t *testing.T) {
	m := New()
	m.SaveMetrics(attempt("b", time.Minute, domain.Lost))
	m.SaveMetrics(attempt("a", 0, domain.Won))

	got := m.GetMetrics()
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
}

func TestMonitoring_ConcurrentSaves(t *testing.T) {
	m := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.SaveMetrics(attempt(string(rune('A'+i)), time.Duration(i)*time.Second, domain.Lost))
		}(i)
	}
	wg.Wait()
	assert.Len(t, m.GetMetrics(), 50)
}

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "history.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLite_RoundTrip(t *testing.T) {
	s := newTestSQLite(t)

	failed := attempt("x", 2*time.Minute, domain.Errored)
	failed.Error = "timeout"
	s.SaveMetrics(failed)
	s.SaveMetrics(attempt("y", time.Minute, domain.Lost))
	require.NoError(t, s.Err())

	got := s.GetMetrics()
	require.Len(t, got, 2)
	assert.Equal(t, "y", got[0].ID)
	assert.Equal(t, domain.Real, got[0].Mode)
	assert.Equal(t, domain.Confirming, got[0].State)
	assert.Equal(t, 1500*time.Millisecond, got[0].ExecutionTime)
	assert.True(t, start.Add(time.Minute).Equal(got[0].StartAt))
	assert.Equal(t, "timeout", got[1].Error)
}

func TestSQLite_UpsertAndRecent(t *testing.T) {
	s := newTestSQLite(t)
	for i, id := range []string{"a", "b", "c"} {
		s.SaveMetrics(attempt(id, time.Duration(i)*time.Minute, domain.Lost))
	}
	s.SaveMetrics(attempt("b", time.Minute, domain.Won))

	recent, err := s.Recent(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "b", recent[0].ID)
	assert.Equal(t, domain.Won, recent[0].Result)
	assert.Equal(t, "c", recent[1].ID)

	all, err := s.Recent(0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSQLite_ReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := OpenSQLite(path, nil)
	require.NoError(t, err)
	s.SaveMetrics(attempt("a", 0, domain.Won))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path, nil)
	require.NoError(t, err)
	defer s.Close()
	assert.Len(t, s.GetMetrics(), 1)
}

var (
	_ domain.Monitoring = (*Monitoring)(nil)
	_ domain.Monitoring = (*SQLite)(nil)
)
