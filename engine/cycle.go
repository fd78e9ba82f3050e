package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rustyeddy/scalper/internal/logger"
	"github.com/rustyeddy/scalper/journal"
	"github.com/rustyeddy/scalper/market"
	"github.com/rustyeddy/scalper/state"
)

// Result is what RunCycle reports back to the scheduler.
type Result struct {
	Decision
	Started  time.Time
	Duration time.Duration
}

// Runner performs one load, fetch, decide, persist cycle per call.
type Runner struct {
	Machine  *Machine
	Source   market.Source
	Store    state.Store
	Ledger   journal.Ledger
	Notifier Notifier

	Lookback     time.Duration
	FetchTimeout time.Duration

	// Now is the clock used for timing. Defaults to time.Now.
	Now func() time.Time

	mu sync.Mutex
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// RunCycle runs one cycle. An invocation that overlaps a running cycle
// returns OutcomeSkipped immediately.
//
// Every failure is returned as a *CycleError and leaves the stored state as
// it was. On a close the ledger record is written before the snapshot; if
// the snapshot write then fails, the next cycle finds the record and settles
// the position from it instead of evaluating a new bar.
func (r *Runner) RunCycle(ctx context.Context) (Result, error) {
	sym := r.Machine.Instrument
	if !r.mu.TryLock() {
		logger.Warn(ctx, "cycle still running, skipping", "instrument", sym)
		return Result{Decision: Decision{Outcome: OutcomeSkipped}, Started: r.now()}, nil
	}
	defer r.mu.Unlock()

	started := r.now()
	op := logger.StartOperation(ctx, "cycle", "instrument", sym)
	ctx = op.Context()

	d, err := r.run(ctx)
	res := Result{Decision: d, Started: started, Duration: r.now().Sub(started)}
	if err != nil {
		var ce *CycleError
		stage := ""
		if errors.As(err, &ce) {
			stage = string(ce.Stage)
		}
		op.EndWithError(err, "stage", stage)
		logger.ErrorWithErr(ctx, "cycle failed", err, "instrument", sym, "stage", stage)
		return res, err
	}

	op.End("outcome", string(d.Outcome))
	r.logDecision(ctx, d)
	return res, nil
}

func (r *Runner) run(ctx context.Context) (Decision, error) {
	sym := r.Machine.Instrument

	st, err := r.Store.Load(ctx)
	if err != nil {
		return Decision{}, stageErr(StageLoad, err)
	}

	if st.Position != nil {
		rec, ok, err := r.recordedClose(ctx, *st.Position)
		if err != nil {
			return Decision{}, stageErr(StageLedger, err)
		}
		if ok {
			d := r.Machine.Settle(st, rec)
			if err := r.Store.Save(ctx, d.Next); err != nil {
				return d, stageErr(StagePersist, err)
			}
			logger.Trade(ctx, sym, "settled",
				"trade_id", rec.TradeID,
				"reason", rec.Reason,
				"pnl", rec.RealizedPL,
				"balance", d.Next.Balance,
			)
			return d, nil
		}
	}

	bars, err := r.fetch(ctx, sym)
	if err != nil {
		return Decision{}, stageErr(StageFetch, err)
	}
	if err := market.Validate(bars); err != nil {
		return Decision{}, stageErr(StageCompute, err)
	}

	d, err := r.Machine.Step(st, bars)
	if err != nil {
		return Decision{}, stageErr(StageTransition, err)
	}

	if d.Closed != nil {
		if err := r.Ledger.Append(ctx, *d.Closed); err != nil {
			return d, stageErr(StageLedger, err)
		}
		logger.Trade(ctx, sym, "closed",
			"trade_id", d.Closed.TradeID,
			"direction", d.Closed.Direction.String(),
			"reason", d.Closed.Reason,
			"exit_price", d.Closed.ExitPrice,
			"pnl", d.Closed.RealizedPL,
			"balance", d.Closed.BalanceAfter,
		)
	}

	if d.Changed {
		if err := r.Store.Save(ctx, d.Next); err != nil {
			return d, stageErr(StagePersist, err)
		}
	}

	if d.Opened != nil && r.Notifier != nil {
		r.Notifier.Opened(ctx, sym, d)
	}
	return d, nil
}

// recordedClose finds a ledger record for p left by a cycle whose state
// write failed after the append.
func (r *Runner) recordedClose(ctx context.Context, p state.Position) (journal.TradeRecord, bool, error) {
	f, ok := r.Ledger.(journal.Finder)
	if !ok {
		return journal.TradeRecord{}, false, nil
	}
	rec, err := f.FindTrade(ctx, Key(p))
	if errors.Is(err, journal.ErrNotFound) {
		return journal.TradeRecord{}, false, nil
	}
	if err != nil {
		return journal.TradeRecord{}, false, err
	}
	return rec, true, nil
}

func (r *Runner) fetch(ctx context.Context, sym string) ([]market.Bar, error) {
	fctx := ctx
	if r.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, r.FetchTimeout)
		defer cancel()
	}

	op := logger.StartOperation(fctx, "fetch", "instrument", sym)
	bars, err := r.Source.Bars(op.Context(), sym, r.Lookback)
	if err != nil {
		op.EndWithError(err)
		return nil, err
	}
	op.End("bars", len(bars))
	return bars, nil
}

func (r *Runner) logDecision(ctx context.Context, d Decision) {
	sym := r.Machine.Instrument
	kv := []any{}
	if !d.Bar.Time.IsZero() {
		kv = append(kv, "bar_time", d.Bar.Time, "close", d.Bar.Close)
	}
	if d.Signal.Ready {
		kv = append(kv, "volatility", d.Signal.Volatility, "trend", d.Signal.Trend)
	}
	if d.CooldownLeft > 0 {
		kv = append(kv, "cooldown_left", d.CooldownLeft.String())
	}
	if d.Reason != "" {
		kv = append(kv, "reason", d.Reason)
	}
	kv = append(kv, "balance", d.Next.Balance)
	logger.Decision(ctx, sym, string(d.Outcome), kv...)
}
