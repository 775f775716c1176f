package scheduler

import (
	"testing"
	"time"

	errs "github.com/osmike/sweeper/internal/error"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseField(t *testing.T) {
	cases := []struct {
		field    string
		min, max int
		want     []int
	}{
		{"*", 0, 3, []int{0, 1, 2, 3}},
		{"*/15", 0, 59, []int{0, 15, 30, 45}},
		{"6-8", 0, 23, []int{6, 7, 8}},
		{"0-10/5", 0, 59, []int{0, 5, 10}},
		{"5,1,5", 0, 59, []int{1, 5}},
	}
	for _, c := range cases {
		got, err := parseField(c.field, c.min, c.max)
		require.NoError(t, err, c.field)
		assert.Equal(t, c.want, got, c.field)
	}

	for _, bad := range []string{"60", "*/0", "8-6", "a", "5/2", "1-"} {
		_, err := parseField(bad, 0, 59)
		assert.Error(t, err, bad)
	}
}

func TestParseCron_Invalid(t *testing.T) {
	for _, expr := range []string{"", "* * * *", "* 24 * * *", "* * 0 * *", "* * * * 7"} {
		_, err := ParseCron(expr)
		assert.ErrorIs(t, err, errs.ErrInvalidCronExpression, expr)
	}
}

func TestCronSchedule_Next(t *testing.T) {
	cs, err := ParseCron("1 6-8 * * *")
	require.NoError(t, err)

	at := func(d, h, m int) time.Time { return time.Date(2025, 6, d, h, m, 0, 0, time.Local) }

	assert.Equal(t, at(1, 6, 1), cs.Next(at(1, 0, 0)))
	assert.Equal(t, at(1, 8, 1), cs.Next(at(1, 7, 30)))
	assert.Equal(t, at(1, 8, 1), cs.Next(at(1, 7, 1)), "strictly after")
	assert.Equal(t, at(2, 6, 1), cs.Next(at(1, 8, 1)))
}

func TestCronSchedule_Next_Calendar(t *testing.T) {
	leap, err := ParseCron("0 12 29 2 *")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2028, 2, 29, 12, 0, 0, 0, time.UTC), leap.Next(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)))

	mondays, err := ParseCron("30 9 * * 1")
	require.NoError(t, err)
	// 2025-06-01 is a Sunday.
	assert.Equal(t, time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC), mondays.Next(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)))

	never, err := ParseCron("0 0 31 2 *")
	require.NoError(t, err)
	assert.True(t, never.Next(time.Now()).IsZero())
}
