package scheduler

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	errs "github.com/osmike/sweeper/internal/error"
)

// CronSchedule is a parsed five-field cron expression.
// Each field holds the sorted allowed values.
type CronSchedule struct {
	Minutes  []int // 0-59
	Hours    []int // 0-23
	Days     []int // 1-31
	Months   []int // 1-12
	Weekdays []int // 0-6, Sunday = 0
}

// parseField parses one cron field.
//
// Supported syntax:
//   - "*": every value in [min, max].
//   - "*/N" and "X-Y/N": every Nth value of the full or given range.
//   - "X-Y": every value between X and Y inclusive.
//   - "X,Y,Z": a list of any of the above.
func parseField(field string, min int, max int) ([]int, error) {
	var values []int

	for _, part := range strings.Split(field, ",") {
		lo, hi, step := min, max, 1

		if base, s, ok := strings.Cut(part, "/"); ok {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("invalid step in field: %s", part)
			}
			step = n
			part = base
		}

		switch {
		case part == "*":
		case strings.Contains(part, "-"):
			a, b, _ := strings.Cut(part, "-")
			start, err1 := strconv.Atoi(a)
			end, err2 := strconv.Atoi(b)
			if err1 != nil || err2 != nil || start > end || start < min || end > max {
				return nil, fmt.Errorf("invalid range: %s", part)
			}
			lo, hi = start, end
		default:
			val, err := strconv.Atoi(part)
			if err != nil || val < min || val > max {
				return nil, fmt.Errorf("invalid value: %s", part)
			}
			if step != 1 {
				return nil, fmt.Errorf("step needs a range: %s", field)
			}
			lo, hi = val, val
		}

		for i := lo; i <= hi; i += step {
			values = append(values, i)
		}
	}

	slices.Sort(values)
	return slices.Compact(values), nil
}

// ParseCron parses "minute hour day-of-month month weekday".
//
// Returns:
//   - ErrInvalidCronExpression wrapping the offending field on bad syntax.
func ParseCron(cronExpr string) (*CronSchedule, error) {
	parts := strings.Fields(cronExpr)
	if len(parts) != 5 {
		return nil, errs.New(errs.ErrInvalidCronExpression, fmt.Sprintf("%q: want 5 fields", cronExpr))
	}

	cs := &CronSchedule{}
	fields := []struct {
		name     string
		min, max int
		dst      *[]int
	}{
		{"minutes", 0, 59, &cs.Minutes},
		{"hours", 0, 23, &cs.Hours},
		{"days", 1, 31, &cs.Days},
		{"months", 1, 12, &cs.Months},
		{"weekdays", 0, 6, &cs.Weekdays},
	}

	for i, f := range fields {
		vals, err := parseField(parts[i], f.min, f.max)
		if err != nil {
			return nil, errs.New(errs.ErrInvalidCronExpression, fmt.Sprintf("%s field: %v", f.name, err))
		}
		*f.dst = vals
	}
	return cs, nil
}

// Next returns the first matching minute strictly after t, in t's location.
// Day-of-month and weekday must both match. A zero time means nothing matches within five years.
func (cs *CronSchedule) Next(t time.Time) time.Time {
	loc := t.Location()
	y, m, d := t.Date()

	for i := 0; i < 5*366; i++ {
		day := time.Date(y, m, d+i, 0, 0, 0, 0, loc)
		if !slices.Contains(cs.Months, int(day.Month())) ||
			!slices.Contains(cs.Days, day.Day()) ||
			!slices.Contains(cs.Weekdays, int(day.Weekday())) {
			continue
		}
		for _, h := range cs.Hours {
			for _, min := range cs.Minutes {
				at := time.Date(day.Year(), day.Month(), day.Day(), h, min, 0, 0, loc)
				if at.After(t) {
					return at
				}
			}
		}
	}
	return time.Time{}
}
