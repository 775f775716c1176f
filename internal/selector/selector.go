// Package selector implements the policies that pick the next identity from a table.
//
// Policies are pure: they look at an in-memory slice and a point in time and return an index.
// Persistence is left to the ledger, which calls the policy through Func under its exclusive lock.
package selector

import (
	"fmt"
	"time"

	"github.com/osmike/sweeper/internal/domain"
	errs "github.com/osmike/sweeper/internal/error"

	"go.uber.org/zap"
)

// Policy picks the index of the next record to use.
type Policy interface {
	// Pick returns the index of the chosen row, or ErrResourceExhausted.
	Pick(rows []domain.Record, now time.Time) (int, error)

	// CountsUse reports whether a selection increments the usage count.
	CountsUse() bool
}

// FirstEligible selects the first row in stored order that is under the cap and out of cool-down.
//
// It guards the scarce real identities: a row at MaxUses, or used less than Cooldown ago, is
// never handed out. Rows whose bookkeeping columns cannot be parsed are skipped.
type FirstEligible struct {
	MaxUses  int
	Cooldown time.Duration
	Log      *zap.Logger
}

// Pick implements Policy.
func (p FirstEligible) Pick(rows []domain.Record, now time.Time) (int, error) {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}

	for i := range rows {
		r := &rows[i]
		if r.Malformed != nil {
			log.Warn("skipping malformed record", zap.String("identity", r.Key), zap.Error(r.Malformed))
			continue
		}
		if r.UsageCount >= p.MaxUses {
			continue
		}
		if !r.NeverUsed() && now.Sub(r.LastUsed) < p.Cooldown {
			continue
		}
		return i, nil
	}

	return -1, errs.New(errs.ErrResourceExhausted,
		fmt.Sprintf("all records at cap (%d) or used within cool-down (%s)", p.MaxUses, p.Cooldown))
}

// CountsUse implements Policy.
func (p FirstEligible) CountsUse() bool {
	return true
}

// LeastRecentlyUsed selects the row that has gone unused the longest, with no cap.
//
// A never-used row wins outright: the first one in stored order is taken without looking further.
// A row with an unreadable timestamp counts as never used. Among timestamped rows the oldest wins,
// ties going to the earlier row.
type LeastRecentlyUsed struct {
	Log *zap.Logger
}

// Pick implements Policy.
func (p LeastRecentlyUsed) Pick(rows []domain.Record, _ time.Time) (int, error) {
	if len(rows) == 0 {
		return -1, errs.New(errs.ErrResourceExhausted, "no valid rows")
	}
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}

	best := -1
	for i := range rows {
		r := &rows[i]
		if r.Malformed != nil {
			log.Warn("unreadable last-used timestamp, treating as never used",
				zap.String("identity", r.Key), zap.Error(r.Malformed))
			return i, nil
		}
		if r.NeverUsed() {
			return i, nil
		}
		if best < 0 || r.LastUsed.Before(rows[best].LastUsed) {
			best = i
		}
	}
	return best, nil
}

// CountsUse implements Policy.
func (p LeastRecentlyUsed) CountsUse() bool {
	return false
}

// Func adapts a Policy to the ledger's selection callback.
//
// The chosen row is marked used at now (its usage count grows by one when the policy counts
// uses); every other row is passed through untouched.
func Func(p Policy, now time.Time) domain.SelectFn {
	return func(rows []domain.Record) (*domain.Record, []domain.Record, error) {
		i, err := p.Pick(rows, now)
		if err != nil {
			return nil, rows, err
		}
		rows[i].MarkUsed(now, p.CountsUse())
		selected := rows[i]
		return &selected, rows, nil
	}
}
