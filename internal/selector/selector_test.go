package selector

import (
	"testing"
	"time"

	"github.com/osmike/sweeper/internal/domain"
	errs "github.com/osmike/sweeper/internal/error"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 6, 1, 7, 1, 0, 0, time.UTC)

func rec(key string, uses int, lastUsed time.Time) domain.Record {
	return domain.Record{Key: key, UsageCount: uses, LastUsed: lastUsed, Fields: map[string]string{"Email": key}}
}

func policyA() FirstEligible {
	return FirstEligible{MaxUses: 10, Cooldown: 24 * time.Hour}
}

func TestFirstEligible_Cooldown(t *testing.T) {
	p := policyA()

	_, err := p.Pick([]domain.Record{rec("a", 0, now.Add(-(24*time.Hour - time.Second)))}, now)
	assert.ErrorIs(t, err, errs.ErrResourceExhausted)

	i, err := p.Pick([]domain.Record{rec("a", 0, now.Add(-(24*time.Hour + time.Second)))}, now)
	require.NoError(t, err)
	assert.Equal(t, 0, i)

	i, err = p.Pick([]domain.Record{rec("a", 0, now.Add(-24*time.Hour))}, now)
	require.NoError(t, err)
	assert.Equal(t, 0, i, "exactly one cool-down ago is eligible")
}

func TestFirstEligible_Cap(t *testing.T) {
	p := policyA()
	rows := []domain.Record{
		rec("capped", 10, time.Time{}),
		rec("over", 11, now.Add(-1000*time.Hour)),
	}
	_, err := p.Pick(rows, now)
	assert.ErrorIs(t, err, errs.ErrResourceExhausted)
}

func TestFirstEligible_StoredOrder(t *testing.T) {
	p := policyA()
	rows := []domain.Record{
		rec("recent", 0, now.Add(-time.Hour)),
		rec("second", 5, now.Add(-48*time.Hour)),
		rec("third", 0, time.Time{}),
	}
	i, err := p.Pick(rows, now)
	require.NoError(t, err)
	assert.Equal(t, "second", rows[i].Key)
}

func TestFirstEligible_SkipsMalformed(t *testing.T) {
	p := policyA()
	bad := rec("bad", 0, time.Time{})
	bad.Malformed = assert.AnError
	rows := []domain.Record{bad, rec("good", 1, time.Time{})}

	i, err := p.Pick(rows, now)
	require.NoError(t, err)
	assert.Equal(t, 1, i)
}

func TestFirstEligible_Scenario(t *testing.T) {
	rows := []domain.Record{
		rec("A", 9, now.Add(-25*time.Hour)),
		rec("B", 10, now.Add(-30*time.Hour)),
	}
	sel, updated, err := Func(policyA(), now)(rows)
	require.NoError(t, err)
	require.NotNil(t, sel)

	assert.Equal(t, "A", sel.Key)
	assert.Equal(t, 10, sel.UsageCount)
	assert.Equal(t, now, sel.LastUsed)
	assert.True(t, sel.Dirty())

	assert.Equal(t, 10, updated[1].UsageCount)
	assert.Equal(t, now.Add(-30*time.Hour), updated[1].LastUsed)
	assert.False(t, updated[1].Dirty())
}

func TestLeastRecentlyUsed_NeverUsedWins(t *testing.T) {
	t1 := now.Add(-72 * time.Hour)
	t2 := now.Add(-48 * time.Hour)
	t3 := now.Add(-24 * time.Hour)
	p := LeastRecentlyUsed{}

	rows := []domain.Record{rec("t3", 0, t3), rec("t1", 0, t1), rec("never", 0, time.Time{}), rec("t2", 0, t2)}
	i, err := p.Pick(rows, now)
	require.NoError(t, err)
	assert.Equal(t, "never", rows[i].Key)

	rows = []domain.Record{rec("t3", 0, t3), rec("t1", 0, t1), rec("t2", 0, t2)}
	i, err = p.Pick(rows, now)
	require.NoError(t, err)
	assert.Equal(t, "t1", rows[i].Key)
}

func TestLeastRecentlyUsed_FirstNeverUsedInOrder(t *testing.T) {
	rows := []domain.Record{rec("old", 0, now.Add(-time.Hour)), rec("n1", 0, time.Time{}), rec("n2", 0, time.Time{})}
	i, err := LeastRecentlyUsed{}.Pick(rows, now)
	require.NoError(t, err)
	assert.Equal(t, "n1", rows[i].Key)
}

func TestLeastRecentlyUsed_TieGoesToEarlierRow(t *testing.T) {
	ts := now.Add(-time.Hour)
	rows := []domain.Record{rec("first", 0, ts), rec("second", 0, ts)}
	i, err := LeastRecentlyUsed{}.Pick(rows, now)
	require.NoError(t, err)
	assert.Equal(t, 0, i)
}

func TestLeastRecentlyUsed_MalformedIsNeverUsed(t *testing.T) {
	bad := rec("bad", 0, time.Time{})
	bad.Malformed = assert.AnError
	rows := []domain.Record{rec("old", 0, now.Add(-100*time.Hour)), bad}
	i, err := LeastRecentlyUsed{}.Pick(rows, now)
	require.NoError(t, err)
	assert.Equal(t, "bad", rows[i].Key)
}

func TestLeastRecentlyUsed_Empty(t *testing.T) {
	_, err := LeastRecentlyUsed{}.Pick(nil, now)
	assert.ErrorIs(t, err, errs.ErrResourceExhausted)
}

func TestFunc_LeastRecentlyUsedDoesNotCount(t *testing.T) {
	rows := []domain.Record{rec("dummy", 3, time.Time{})}
	sel, _, err := Func(LeastRecentlyUsed{}, now)(rows)
	require.NoError(t, err)
	assert.Equal(t, 3, sel.UsageCount)
	assert.Equal(t, now, sel.LastUsed)
}

func TestFunc_ExhaustedReturnsNoSelection(t *testing.T) {
	rows := []domain.Record{rec("capped", 10, time.Time{})}
	sel, updated, err := Func(policyA(), now)(rows)
	assert.ErrorIs(t, err, errs.ErrResourceExhausted)
	assert.Nil(t, sel)
	assert.False(t, updated[0].Dirty())
}
