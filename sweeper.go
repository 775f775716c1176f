// Package sweeper wires the pieces of a contest auto-entry loop together.
//
// A run probes the entry form with throwaway identities and receipts on a schedule. Only a
// winning probe spends a real identity and a real receipt; a confirmed win halts the loop for
// good, and a winning probe that cannot be confirmed makes the loop give up.
//
// Example usage:
//
//	cfg, _ := config.Load("sweeper.yaml")
//	app, err := sweeper.New(cfg, logger, sweeper.Options{})
//	if err != nil {
//		return err
//	}
//	defer app.Close()
//	return app.Run(ctx)
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/osmike/sweeper/internal/asset"
	"github.com/osmike/sweeper/internal/config"
	"github.com/osmike/sweeper/internal/domain"
	"github.com/osmike/sweeper/internal/driver"
	errs "github.com/osmike/sweeper/internal/error"
	"github.com/osmike/sweeper/internal/flow"
	"github.com/osmike/sweeper/internal/ledger"
	"github.com/osmike/sweeper/internal/lock"
	"github.com/osmike/sweeper/internal/monitoring"
	"github.com/osmike/sweeper/internal/scheduler"
	"github.com/osmike/sweeper/internal/selector"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Record is one identity row of a table.
type Record = domain.Record

// Attempt is what a Submitter receives for one form entry.
type Attempt = domain.Attempt

// Outcome is a Submitter's tri-state verdict.
type Outcome = domain.Outcome

// Submitter drives the external entry form.
type Submitter = domain.Submitter

// State is the position of the orchestration machine.
type State = domain.State

// AttemptDTO is one finished attempt as kept in the history.
type AttemptDTO = domain.AttemptDTO

// Monitoring defines an interface for collecting and retrieving the attempt history.
type Monitoring = domain.Monitoring

// PoolName selects the real or the probe identity pool.
type PoolName string

const (
	RealPool  PoolName = "real"
	ProbePool PoolName = "probe"
)

// Options override collaborators New would otherwise build from the configuration.
type Options struct {
	// Submitter replaces the browser driver.
	Submitter Submitter

	// Monitoring replaces the history store built from history.path.
	Monitoring Monitoring

	// Region replaces the cross-process file lock.
	Region lock.Region
}

// App is a fully wired sweeper.
type App struct {
	cfg *config.Config
	log *zap.Logger

	real, probe       *ledger.Store
	realPolicy        selector.Policy
	probePolicy       selector.Policy
	realRct, probeRct *asset.Cursor

	mon     Monitoring
	history *monitoring.SQLite
	driver  *driver.FormDriver

	machine   *flow.Machine
	scheduler *scheduler.Scheduler
	runID     string
}

// New validates cfg and builds every component.
//
// Returns:
//   - ErrInvalidConfig (or a more specific configuration error) if cfg does not validate.
//   - An I/O error if a receipt directory or the history database cannot be opened.
func New(cfg *config.Config, log *zap.Logger, opts Options) (*App, error) {
	if cfg == nil {
		return nil, errs.New(errs.ErrInvalidConfig, "nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}

	a := &App{cfg: cfg, log: log, runID: uuid.NewString()}
	a.log = a.log.With(zap.String("run", a.runID))

	region := opts.Region
	if region == nil {
		region = lock.NewFileRegion(domain.DEFAULT_LOCK_POLL)
	}

	var err error
	if a.real, err = ledger.New(cfg.Real.Table, cfg.Real.Columns(), region, a.log.Named("ledger")); err != nil {
		return nil, err
	}
	if a.probe, err = ledger.New(cfg.Probe.Table, cfg.Probe.Columns(), region, a.log.Named("ledger")); err != nil {
		return nil, err
	}
	// A table may be missing at startup and appear later, but its header must already fit.
	for _, st := range []*ledger.Store{a.real, a.probe} {
		if _, err := st.Load(context.Background()); errors.Is(err, errs.ErrSchema) {
			return nil, err
		}
	}
	a.realPolicy = selector.FirstEligible{MaxUses: cfg.Real.MaxUses, Cooldown: cfg.Real.CooldownDuration(), Log: a.log.Named("selector")}
	a.probePolicy = selector.LeastRecentlyUsed{Log: a.log.Named("selector")}

	if a.realRct, err = asset.New(cfg.RealReceipts(), a.log.Named("asset")); err != nil {
		return nil, err
	}
	if a.probeRct, err = asset.New(cfg.ProbeReceipts(), a.log.Named("asset")); err != nil {
		return nil, err
	}

	a.mon = opts.Monitoring
	if a.mon == nil {
		if cfg.History.Path != "" {
			if a.history, err = monitoring.OpenSQLite(cfg.History.Path, a.log.Named("monitoring")); err != nil {
				return nil, err
			}
			a.mon = a.history
		} else {
			a.mon = monitoring.New()
		}
	}

	sub := opts.Submitter
	if sub == nil {
		dc, err := cfg.DriverConfig()
		if err != nil {
			return nil, a.closeWith(err)
		}
		if a.driver, err = driver.New(dc, a.log.Named("driver")); err != nil {
			return nil, a.closeWith(err)
		}
		sub = a.driver
	}

	a.machine, err = flow.New(flow.Config{
		Real:          flow.Source{Pool: a.real, Policy: a.realPolicy, Receipts: a.realRct},
		Probe:         flow.Source{Pool: a.probe, Policy: a.probePolicy, Receipts: a.probeRct},
		Submitter:     sub,
		Monitoring:    a.mon,
		Retry:         cfg.Retry(),
		SubmitTimeout: cfg.SubmitTimeout(),
		RunID:         a.runID,
		Log:           a.log.Named("flow"),
	})
	if err != nil {
		return nil, a.closeWith(err)
	}

	sc, err := cfg.SchedulerConfig()
	if err != nil {
		return nil, a.closeWith(err)
	}
	if sc.Window, err = cfg.Window(); err != nil {
		return nil, a.closeWith(err)
	}
	sc.Log = a.log.Named("scheduler")
	if a.scheduler, err = scheduler.New(sc, a.machine); err != nil {
		return nil, a.closeWith(err)
	}
	return a, nil
}

// Run drives the schedule and watches the real receipts until ctx ends, the machine halts or
// it gives up.
//
// Returns:
//   - nil on cancellation or after a confirmed win.
//   - ErrGaveUp when a winning probe could not be confirmed.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return a.scheduler.Run(gctx)
	})
	g.Go(func() error {
		// The watcher only feeds the log; losing it must not stop the loop.
		if err := asset.Watch(gctx, a.realRct.Dir(), a.log.Named("asset")); err != nil {
			a.log.Warn("receipt watcher stopped", zap.Error(err))
		}
		return nil
	})
	return g.Wait()
}

// Tick runs a single orchestration step outside the schedule.
func (a *App) Tick(ctx context.Context) (State, error) {
	return a.machine.Tick(ctx)
}

// Halted reports whether a confirmed win stopped the machine.
func (a *App) Halted() bool {
	return a.machine.Halted()
}

// Pick draws one identity from pool at now under the same exclusive access the loop uses.
// The selection is persisted exactly as a loop selection would be.
func (a *App) Pick(ctx context.Context, pool PoolName, now time.Time) (Record, error) {
	switch pool {
	case RealPool:
		return a.real.WithExclusiveAccess(ctx, selector.Func(a.realPolicy, now))
	case ProbePool:
		return a.probe.WithExclusiveAccess(ctx, selector.Func(a.probePolicy, now))
	default:
		return Record{}, errs.New(errs.ErrInvalidConfig, fmt.Sprintf("unknown pool %q", pool))
	}
}

// Receipts lists the available real and probe receipts.
func (a *App) Receipts() (fresh, dummy []string, err error) {
	if fresh, err = a.realRct.Available(); err != nil {
		return nil, nil, err
	}
	if dummy, err = a.probeRct.Available(); err != nil {
		return nil, nil, err
	}
	return fresh, dummy, nil
}

// History returns up to limit recent attempts, oldest first. A limit of zero or less returns all.
func (a *App) History(limit int) ([]AttemptDTO, error) {
	if a.history != nil {
		return a.history.Recent(limit)
	}
	all := a.mon.GetMetrics()
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

// NextRun returns when the schedule is next due. Call it before Run.
func (a *App) NextRun() time.Time {
	return a.scheduler.NextRun()
}

// Close releases the browser and the history database.
func (a *App) Close() error {
	return a.closeWith(nil)
}

func (a *App) closeWith(err error) error {
	var errList []error
	if err != nil {
		errList = append(errList, err)
	}
	if a.driver != nil {
		errList = append(errList, a.driver.Close())
	}
	if a.history != nil {
		errList = append(errList, a.history.Close())
		a.history = nil
	}
	return errors.Join(errList...)
}
