// Package window answers whether a moment falls inside a daily time-of-day window.
package window

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	errs "github.com/osmike/sweeper/internal/error"
)

const day = 24 * time.Hour

// Window is a daily interval [Start, End) measured from local midnight.
//
// When Start is after End the window wraps past midnight (e.g., 22:00–06:00).
// When Start equals End the window covers the whole day; the zero Window is always open.
type Window struct {
	Start time.Duration
	End   time.Duration
}

// Parse builds a Window from "HH:MM" or "HH:MM:SS" bounds.
// Two empty bounds yield the always-open window.
func Parse(start, end string) (Window, error) {
	if start == "" && end == "" {
		return Window{}, nil
	}
	s, err := parseClock(start)
	if err != nil {
		return Window{}, errs.New(errs.ErrInvalidWindow, fmt.Sprintf("start %q: %v", start, err))
	}
	e, err := parseClock(end)
	if err != nil {
		return Window{}, errs.New(errs.ErrInvalidWindow, fmt.Sprintf("end %q: %v", end, err))
	}
	return Window{Start: s, End: e}, nil
}

func parseClock(v string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(v), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("want HH:MM or HH:MM:SS")
	}
	limits := []int{23, 59, 59}
	units := []time.Duration{time.Hour, time.Minute, time.Second}

	var d time.Duration
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > limits[i] {
			return 0, fmt.Errorf("bad field %q", p)
		}
		d += time.Duration(n) * units[i]
	}
	return d, nil
}

// Contains reports whether t's local clock time lies inside the window.
func (w Window) Contains(t time.Time) bool {
	if w.Start == w.End {
		return true
	}
	clock := sinceMidnight(t)
	if w.Start < w.End {
		return clock >= w.Start && clock < w.End
	}
	return clock >= w.Start || clock < w.End
}

// NextOpen returns the earliest moment at or after t that lies inside the window.
func (w Window) NextOpen(t time.Time) time.Time {
	if w.Contains(t) {
		return t
	}
	clock := sinceMidnight(t)
	wait := w.Start - clock
	if wait < 0 {
		wait += day
	}
	return t.Add(wait)
}

func (w Window) String() string {
	if w.Start == w.End {
		return "always"
	}
	return fmt.Sprintf("%s-%s", format(w.Start), format(w.End))
}

func sinceMidnight(t time.Time) time.Duration {
	h, m, s := t.Clock()
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second +
		time.Duration(t.Nanosecond())
}

func format(d time.Duration) string {
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	if s == 0 {
		return fmt.Sprintf("%02d:%02d", h, m)
	}
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
