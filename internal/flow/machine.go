// Package flow drives one orchestration step: probe, then confirm with real resources.
package flow

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/osmike/sweeper/internal/domain"
	errs "github.com/osmike/sweeper/internal/error"
	"github.com/osmike/sweeper/internal/selector"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Pool hands out one identity per call under exclusive access. *ledger.Store satisfies it.
type Pool interface {
	WithExclusiveAccess(ctx context.Context, fn domain.SelectFn) (domain.Record, error)
}

// Receipts hands out receipt files. *asset.Cursor satisfies it.
type Receipts interface {
	Checkout() (domain.Asset, error)
	Commit() error
	Release()
}

// Source pairs an identity pool with its selection policy and its receipts.
type Source struct {
	Pool     Pool
	Policy   selector.Policy
	Receipts Receipts
}

func (s Source) valid() bool {
	return s.Pool != nil && s.Policy != nil && s.Receipts != nil
}

// Config holds the collaborators and tunables of a Machine.
type Config struct {
	// Real backs confirm attempts: capped identities and receipts that are committed once used.
	Real Source

	// Probe backs throwaway attempts: an uncapped pool and receipts that are never committed.
	Probe Source

	Submitter  domain.Submitter
	Monitoring domain.Monitoring

	// Retry bounds the confirm attempts that follow a failed one. A zero Count allows a single
	// confirm attempt; a zero Backoff retries at once.
	Retry domain.Retry

	// SubmitTimeout bounds each call into the Submitter. Default is DEFAULT_SUBMIT_TIMEOUT.
	SubmitTimeout time.Duration

	// RunID is stamped on every stored attempt.
	RunID string

	// Now and Sleep default to the wall clock and a ctx-aware timer.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error

	Log *zap.Logger
}

// Machine is the orchestration state machine.
//
// A tick probes with a dummy identity and receipt. Only a winning probe spends real resources:
// a confirm attempt that wins halts the machine for good, and when every allowed confirm attempt
// fails the machine gives up. Both outcomes are permanent for the lifetime of the Machine.
type Machine struct {
	cfg Config
	log *zap.Logger

	// tick serializes Tick calls.
	tick sync.Mutex

	state  state
	halted atomic.Bool
	gaveUp atomic.Bool
}

// New validates cfg and returns an Idle Machine.
func New(cfg Config) (*Machine, error) {
	if !cfg.Real.valid() || !cfg.Probe.valid() {
		return nil, errs.New(errs.ErrInvalidConfig, "real and probe sources need a pool, a policy and receipts")
	}
	if cfg.Submitter == nil {
		return nil, errs.New(errs.ErrInvalidConfig, "no submitter")
	}
	if cfg.Retry.Count < 0 || cfg.Retry.Backoff < 0 {
		return nil, errs.New(errs.ErrInvalidConfig, fmt.Sprintf("negative confirm retry %+v", cfg.Retry))
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = domain.DEFAULT_SUBMIT_TIMEOUT
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleep
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}

	m := &Machine{cfg: cfg, log: cfg.Log.With(zap.String("run", cfg.RunID))}
	m.state.status = domain.Idle
	return m, nil
}

// State returns the current state.
func (m *Machine) State() domain.State {
	return m.state.get()
}

// Halted reports whether a real submission confirmed a win.
func (m *Machine) Halted() bool {
	return m.halted.Load()
}

// Tick runs one orchestration step and returns the state it ended in.
//
// Returns:
//   - Idle with a nil error after a losing or failed probe.
//   - Idle with ErrResourceExhausted or ErrNotFound when probe resources are unavailable; the
//     caller skips this tick.
//   - Halted with a nil error once a confirm attempt won, on this tick or any earlier one.
//   - GaveUp with ErrGaveUp when no confirm attempt won, on this tick or any earlier one.
//   - Idle with ctx.Err() when ctx ends mid-step, and Idle with an invariant error if a receipt
//     commit finds nothing checked out.
func (m *Machine) Tick(ctx context.Context) (domain.State, error) {
	m.tick.Lock()
	defer m.tick.Unlock()

	if m.halted.Load() {
		m.log.Info("halted after a confirmed win, skipping tick")
		return domain.Halted, nil
	}
	if m.gaveUp.Load() {
		return domain.GaveUp, errs.New(errs.ErrGaveUp, "machine already gave up")
	}

	m.state.trySet(fromIdle, domain.Probing)
	out, err := m.probe(ctx)
	if err != nil {
		m.state.trySet(toIdle, domain.Idle)
		m.log.Warn("probe skipped", zap.Error(err))
		return domain.Idle, err
	}
	if out.Result != domain.Won {
		m.state.trySet(toIdle, domain.Idle)
		return domain.Idle, nil
	}

	m.log.Info("probe won, confirming with a real identity")
	m.state.trySet(toConfirming, domain.Confirming)

	for attempt := 0; ; attempt++ {
		out, err := m.confirm(ctx)
		if err != nil {
			m.state.trySet(toIdle, domain.Idle)
			return domain.Idle, err
		}

		if out.Result == domain.Won {
			m.halted.Store(true)
			m.state.trySet(fromConfirming, domain.Halted)
			m.log.Info("win confirmed, halting")
			return domain.Halted, nil
		}
		if ctx.Err() != nil {
			m.state.trySet(toIdle, domain.Idle)
			return domain.Idle, ctx.Err()
		}

		if attempt >= m.cfg.Retry.Count {
			m.gaveUp.Store(true)
			m.state.trySet(fromConfirming, domain.GaveUp)
			m.log.Error("giving up, no confirm attempt won", zap.Int("attempts", attempt+1))
			return domain.GaveUp, errs.New(errs.ErrGaveUp, fmt.Sprintf("%d confirm attempts lost", attempt+1))
		}

		m.state.trySet(fromConfirming, domain.RetryWait)
		m.log.Warn("confirm attempt did not win, backing off",
			zap.String("result", string(out.Result)),
			zap.Duration("backoff", m.cfg.Retry.Backoff),
			zap.Int("retry", attempt+1),
		)
		if err := m.cfg.Sleep(ctx, m.cfg.Retry.Backoff); err != nil {
			m.state.trySet(toIdle, domain.Idle)
			return domain.Idle, err
		}
		m.state.trySet(fromRetryWait, domain.Confirming)
	}
}

// probe submits once with probe resources. Only resource errors are returned;
// a failed submission is an Errored outcome.
func (m *Machine) probe(ctx context.Context) (domain.Outcome, error) {
	src := m.cfg.Probe

	identity, err := src.Pool.WithExclusiveAccess(ctx, selector.Func(src.Policy, m.cfg.Now()))
	if err != nil {
		return domain.Outcome{}, err
	}
	receipt, err := src.Receipts.Checkout()
	if err != nil {
		return domain.Outcome{}, err
	}
	defer src.Receipts.Release()

	return m.submit(ctx, domain.Probe, identity, receipt), nil
}

// confirm submits once with real resources. Failing to draw them counts as a lost attempt.
// The receipt is checked out first; drawing the identity spends a use against its cap.
// The receipt is committed whenever the form accepted the entry and kept otherwise.
func (m *Machine) confirm(ctx context.Context) (domain.Outcome, error) {
	src := m.cfg.Real

	receipt, err := src.Receipts.Checkout()
	if err != nil {
		m.log.Error("no real receipt for confirm attempt", zap.Error(err))
		return domain.Outcome{Result: domain.Lost, Reason: err}, nil
	}
	identity, err := src.Pool.WithExclusiveAccess(ctx, selector.Func(src.Policy, m.cfg.Now()))
	if err != nil {
		src.Receipts.Release()
		m.log.Error("no real identity for confirm attempt", zap.String("receipt", receipt.Name), zap.Error(err))
		return domain.Outcome{Result: domain.Lost, Reason: err}, nil
	}

	out := m.submit(ctx, domain.Real, identity, receipt)
	if out.Result == domain.Errored {
		src.Receipts.Release()
		return out, nil
	}

	if err := src.Receipts.Commit(); err != nil {
		if errs.KindOf(err) == errs.KindInvariant {
			return out, err
		}
		m.log.Error("receipt not moved to used directory", zap.String("receipt", receipt.Name), zap.Error(err))
		src.Receipts.Release()
	}
	return out, nil
}

func (m *Machine) submit(ctx context.Context, mode domain.Mode, identity domain.Record, receipt domain.Asset) domain.Outcome {
	attempt := domain.Attempt{
		ID:       uuid.NewString(),
		Mode:     mode,
		Identity: identity,
		Asset:    receipt,
	}

	sctx, cancel := context.WithTimeout(ctx, m.cfg.SubmitTimeout)
	defer cancel()

	startAt := m.cfg.Now()
	began := time.Now()
	out := m.cfg.Submitter.Submit(sctx, attempt)
	elapsed := time.Since(began)

	switch out.Result {
	case domain.Won, domain.Lost, domain.Errored:
	default:
		out = domain.Failed(errs.New(errs.ErrSubmission, fmt.Sprintf("unknown result %q", out.Result)))
	}

	dto := domain.AttemptDTO{
		ID:            attempt.ID,
		RunID:         m.cfg.RunID,
		Mode:          mode,
		Identity:      identity.Key,
		Asset:         receipt.Name,
		Result:        out.Result,
		Detail:        out.Detail,
		StartAt:       startAt,
		ExecutionTime: elapsed,
		State:         m.state.get(),
	}
	if out.Reason != nil {
		dto.Error = out.Reason.Error()
	}
	if m.cfg.Monitoring != nil {
		m.cfg.Monitoring.SaveMetrics(dto)
	}

	fields := []zap.Field{
		zap.String("attempt", attempt.ID),
		zap.String("mode", string(mode)),
		zap.String("identity", identity.Key),
		zap.String("receipt", receipt.Name),
		zap.String("result", string(out.Result)),
		zap.Duration("duration", elapsed),
	}
	if out.Reason != nil {
		m.log.Warn("attempt failed", append(fields, zap.Error(out.Reason))...)
	} else {
		m.log.Info("attempt finished", fields...)
	}
	return out
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
