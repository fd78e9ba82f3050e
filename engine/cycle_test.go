package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rustyeddy/scalper/journal"
	"github.com/rustyeddy/scalper/market"
	"github.com/rustyeddy/scalper/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memLedger struct {
	mu   sync.Mutex
	recs []journal.TradeRecord
	err  error
}

func (l *memLedger) Append(_ context.Context, rec journal.TradeRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	for _, r := range l.recs {
		if r.TradeID == rec.TradeID {
			return nil
		}
	}
	l.recs = append(l.recs, rec)
	return nil
}

func (l *memLedger) FindTrade(_ context.Context, key journal.TradeKey) (journal.TradeRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range l.recs {
		if key.Matches(r) {
			return r, nil
		}
	}
	return journal.TradeRecord{}, journal.ErrNotFound
}

func (l *memLedger) records() []journal.TradeRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]journal.TradeRecord(nil), l.recs...)
}

// failingStore wraps a MemoryStore and fails on demand.
type failingStore struct {
	*state.MemoryStore
	loadErr error
	saveErr error
}

func (f *failingStore) Load(ctx context.Context) (state.State, error) {
	if f.loadErr != nil {
		return state.State{}, f.loadErr
	}
	return f.MemoryStore.Load(ctx)
}

func (f *failingStore) Save(ctx context.Context, s state.State) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.MemoryStore.Save(ctx, s)
}

type recordingNotifier struct {
	mu     sync.Mutex
	opened []Decision
}

func (n *recordingNotifier) Opened(_ context.Context, _ string, d Decision) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.opened = append(n.opened, d)
}

func staticSource(bars ...market.Bar) market.Source {
	return market.SourceFunc(func(context.Context, string, time.Duration) ([]market.Bar, error) {
		return bars, nil
	})
}

type fixture struct {
	runner   *Runner
	store    *failingStore
	ledger   *memLedger
	notifier *recordingNotifier
}

func newFixture(t *testing.T, src market.Source) *fixture {
	t.Helper()

	f := &fixture{
		store:    &failingStore{MemoryStore: state.NewMemoryStore(1200)},
		ledger:   &memLedger{},
		notifier: &recordingNotifier{},
	}
	f.runner = &Runner{
		Machine:      testMachine(ready(12, 100)),
		Source:       src,
		Store:        f.store,
		Ledger:       f.ledger,
		Notifier:     f.notifier,
		Lookback:     250 * time.Minute,
		FetchTimeout: time.Second,
	}
	return f
}

func (f *fixture) seed(t *testing.T, s state.State) {
	t.Helper()
	require.NoError(t, f.store.MemoryStore.Save(context.Background(), s))
}

func (f *fixture) stored(t *testing.T) state.State {
	t.Helper()
	s, err := f.store.MemoryStore.Load(context.Background())
	require.NoError(t, err)
	return s
}

func stageOf(t *testing.T, err error) Stage {
	t.Helper()
	var ce *CycleError
	require.True(t, errors.As(err, &ce), "want *CycleError, got %v", err)
	return ce.Stage
}

func TestRunCycleOpensAndNotifies(t *testing.T) {
	t.Parallel()

	f := newFixture(t, staticSource(bar(0, 99, 101.2, 98.9, 101)))
	res, err := f.runner.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeOpened, res.Outcome)
	s := f.stored(t)
	require.NotNil(t, s.Position)
	assert.Equal(t, 101.0, s.Position.EntryPrice)
	require.Len(t, f.notifier.opened, 1)
	assert.Equal(t, s.Position.ID, f.notifier.opened[0].Opened.ID)
	assert.Greater(t, f.notifier.opened[0].PlannedRisk, 0.0)
	assert.Empty(t, f.ledger.records())
}

func TestRunCycleClosesWritesLedgerThenState(t *testing.T) {
	t.Parallel()

	f := newFixture(t, staticSource(bar(5, 101, 101.06, 100.80, 100.9)))
	f.seed(t, openLong(1200))

	res, err := f.runner.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeClosed, res.Outcome)

	recs := f.ledger.records()
	require.Len(t, recs, 1)
	assert.Equal(t, 101.05, recs[0].ExitPrice)

	s := f.stored(t)
	assert.Nil(t, s.Position)
	assert.InDelta(t, 1205.0, s.Balance, 1e-9)
	assert.Equal(t, recs[0].BalanceAfter, s.Balance)
	assert.Empty(t, f.notifier.opened)
}

func TestRunCycleNoOpsLeaveStateAlone(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		seed    state.State
		bars    []market.Bar
		outcome Outcome
	}{
		{"no_data", state.Default(1200), nil, OutcomeNoData},
		{"holding", openLong(1200), []market.Bar{bar(1, 101, 101.02, 100.9, 101)}, OutcomeHolding},
		{"ambiguous", state.Default(1200), []market.Bar{bar(0, 101, 101.2, 100.9, 101)}, OutcomeAmbiguous},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, staticSource(tt.bars...))
			f.seed(t, tt.seed)

			res, err := f.runner.RunCycle(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.outcome, res.Outcome)
			assert.Equal(t, 1, f.store.Saves(), "only the seed write")
			assert.Equal(t, tt.seed.Balance, f.stored(t).Balance)
		})
	}
}

func TestRunCycleStageErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	good := staticSource(bar(0, 99, 101.2, 98.9, 101))

	t.Run("load", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, good)
		f.store.loadErr = boom
		_, err := f.runner.RunCycle(context.Background())
		assert.Equal(t, StageLoad, stageOf(t, err))
		assert.ErrorIs(t, err, boom)
	})

	t.Run("fetch", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, market.SourceFunc(func(context.Context, string, time.Duration) ([]market.Bar, error) {
			return nil, boom
		}))
		_, err := f.runner.RunCycle(context.Background())
		assert.Equal(t, StageFetch, stageOf(t, err))
		assert.Equal(t, 0, f.store.Saves())
	})

	t.Run("compute", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, staticSource(bar(1, 99, 101, 98, 100), bar(0, 99, 101, 98, 100)))
		_, err := f.runner.RunCycle(context.Background())
		assert.Equal(t, StageCompute, stageOf(t, err))
		assert.ErrorIs(t, err, market.ErrMalformed)
	})

	t.Run("transition", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, good)
		bad := openLong(1200)
		bad.Position.StopLoss = -1
		f.seed(t, bad)
		_, err := f.runner.RunCycle(context.Background())
		assert.Equal(t, StageTransition, stageOf(t, err))
		assert.ErrorIs(t, err, state.ErrCorrupt)
	})

	t.Run("persist", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, good)
		f.store.saveErr = boom
		_, err := f.runner.RunCycle(context.Background())
		assert.Equal(t, StagePersist, stageOf(t, err))
		assert.True(t, f.stored(t).Flat())
		assert.Empty(t, f.notifier.opened, "no notification for an entry that was not saved")
	})
}

func TestRunCycleLedgerFailureSkipsSave(t *testing.T) {
	t.Parallel()

	f := newFixture(t, staticSource(bar(5, 101, 101.06, 100.80, 100.9)))
	f.seed(t, openLong(1200))
	f.ledger.err = errors.New("disk full")

	_, err := f.runner.RunCycle(context.Background())
	assert.Equal(t, StageLedger, stageOf(t, err))

	s := f.stored(t)
	require.NotNil(t, s.Position, "position must stay open when the ledger write fails")
	assert.Equal(t, 1200.0, s.Balance)
	assert.Equal(t, 1, f.store.Saves())

	// The next cycle closes the same trade once the ledger recovers.
	f.ledger.mu.Lock()
	f.ledger.err = nil
	f.ledger.mu.Unlock()
	res, err := f.runner.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeClosed, res.Outcome)
	assert.Len(t, f.ledger.records(), 1)
}

func TestRunCycleSaveFailureAfterLedgerDoesNotDoubleBook(t *testing.T) {
	t.Parallel()

	f := newFixture(t, staticSource(bar(5, 101, 101.06, 100.80, 100.9)))
	f.seed(t, openLong(1200))
	f.store.saveErr = errors.New("read-only")

	_, err := f.runner.RunCycle(context.Background())
	assert.Equal(t, StagePersist, stageOf(t, err))
	require.Len(t, f.ledger.records(), 1)

	f.store.saveErr = nil
	res, err := f.runner.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSettled, res.Outcome)
	assert.Len(t, f.ledger.records(), 1)
	assert.InDelta(t, 1205.0, f.stored(t).Balance, 1e-9)
}

func TestRunCycleSettlesRecordedCloseAfterSaveFailure(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	next := bar(5, 101, 101.06, 100.95, 101.0)
	src := market.SourceFunc(func(context.Context, string, time.Duration) ([]market.Bar, error) {
		mu.Lock()
		defer mu.Unlock()
		return []market.Bar{next}, nil
	})
	f := newFixture(t, src)
	f.seed(t, openLong(1200))
	f.store.saveErr = errors.New("read-only")

	_, err := f.runner.RunCycle(context.Background())
	assert.Equal(t, StagePersist, stageOf(t, err))
	recs := f.ledger.records()
	require.Len(t, recs, 1)
	assert.Equal(t, journal.ReasonTakeProfit, recs[0].Reason)

	// Only the stop loss is inside this bar.
	mu.Lock()
	next = bar(6, 101, 101.0, 100.80, 100.9)
	mu.Unlock()
	f.store.saveErr = nil

	res, err := f.runner.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSettled, res.Outcome)
	assert.Equal(t, journal.ReasonTakeProfit, res.Reason)

	s := f.stored(t)
	assert.Nil(t, s.Position)
	assert.InDelta(t, 1205.0, s.Balance, 1e-9)
	require.NotNil(t, s.LastExitTime)
	assert.Equal(t, recs[0].ExitTime, *s.LastExitTime)
	assert.Len(t, f.ledger.records(), 1)
}

func TestRunCycleLedgerLookupFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, staticSource())
	f.seed(t, openLong(1200))
	f.runner.Ledger = lookupFailingLedger{memLedger: f.ledger}

	_, err := f.runner.RunCycle(context.Background())
	assert.Equal(t, StageLedger, stageOf(t, err))
	assert.NotNil(t, f.stored(t).Position)
}

type lookupFailingLedger struct {
	*memLedger
}

func (lookupFailingLedger) FindTrade(context.Context, journal.TradeKey) (journal.TradeRecord, error) {
	return journal.TradeRecord{}, errors.New("ledger unreadable")
}

func TestRunCycleFetchTimeout(t *testing.T) {
	t.Parallel()

	f := newFixture(t, market.SourceFunc(func(ctx context.Context, _ string, _ time.Duration) ([]market.Bar, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}))
	f.runner.FetchTimeout = 10 * time.Millisecond

	_, err := f.runner.RunCycle(context.Background())
	assert.Equal(t, StageFetch, stageOf(t, err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunCycleSkipsWhenRunning(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	release := make(chan struct{})
	f := newFixture(t, market.SourceFunc(func(context.Context, string, time.Duration) ([]market.Bar, error) {
		close(entered)
		<-release
		return nil, nil
	}))

	done := make(chan Result)
	go func() {
		res, _ := f.runner.RunCycle(context.Background())
		done <- res
	}()

	<-entered
	res, err := f.runner.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, res.Outcome)

	close(release)
	assert.Equal(t, OutcomeNoData, (<-done).Outcome)
}

func TestCycleErrorMessage(t *testing.T) {
	t.Parallel()

	err := stageErr(StageFetch, errors.New("connection refused"))
	assert.Equal(t, "cycle fetch: connection refused", err.Error())
}
