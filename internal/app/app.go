// Package app builds the engine and its collaborators from a Config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rustyeddy/scalper/config"
	"github.com/rustyeddy/scalper/engine"
	"github.com/rustyeddy/scalper/indicators"
	"github.com/rustyeddy/scalper/internal/logger"
	"github.com/rustyeddy/scalper/journal"
	"github.com/rustyeddy/scalper/market"
	"github.com/rustyeddy/scalper/market/alpaca"
	"github.com/rustyeddy/scalper/market/csvsource"
	"github.com/rustyeddy/scalper/market/oanda"
	"github.com/rustyeddy/scalper/market/polygon"
	"github.com/rustyeddy/scalper/risk"
	"github.com/rustyeddy/scalper/scheduler"
	"github.com/rustyeddy/scalper/state"
)

// Resetter is implemented by stores that can discard their snapshot.
type Resetter interface {
	Reset() error
}

type App struct {
	Config  *config.Config
	Source  market.Source
	Store   state.Store
	Journal journal.Journal
	Runner  *engine.Runner

	closers []io.Closer
}

// LoggerConfig maps the log section onto the logger. LOG_* environment
// variables take precedence.
func LoggerConfig(cfg *config.Config) logger.Config {
	return logger.ApplyEnv(logger.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Tracing: cfg.Log.Tracing,
	})
}

// New wires every component. The market source is built lazily by callers
// that only need the store or the journal, so a missing API key does not
// break "state show" or "journal list".
func New(cfg *config.Config) (*App, error) {
	a, err := NewStorage(cfg)
	if err != nil {
		return nil, err
	}

	src, err := NewSource(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Source = src

	params := engine.Params{
		Instrument: cfg.Instrument,
		Policy: risk.Policy{
			Leverage:      cfg.Account.Leverage,
			TakeProfitPct: cfg.Strategy.TakeProfitPct,
			StopLossPct:   cfg.Strategy.StopLossPct,
		},
		VolatilityMin: cfg.Strategy.VolatilityMin,
		VolatilityMax: cfg.Strategy.VolatilityMax,
		Cooldown:      cfg.Cooldown(),
	}
	if err := params.Validate(); err != nil {
		a.Close()
		return nil, err
	}

	a.Runner = &engine.Runner{
		Machine:      engine.NewMachine(params, NewIndicators(cfg)),
		Source:       src,
		Store:        a.Store,
		Ledger:       a.Journal,
		Notifier:     engine.LogNotifier{},
		Lookback:     cfg.Lookback(),
		FetchTimeout: cfg.FetchTimeout(),
	}
	return a, nil
}

// NewStorage opens only the state store and the journal.
func NewStorage(cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	store, err := NewStore(cfg)
	if err != nil {
		return nil, err
	}
	a.Store = store
	if c, ok := store.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	j, err := NewJournal(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Journal = j
	a.closers = append(a.closers, j)
	return a, nil
}

func NewIndicators(cfg *config.Config) indicators.Engine {
	return indicators.Engine{
		VolatilityWindow: cfg.Indicators.VolatilityWindow,
		Method:           indicators.VolatilityMethod(cfg.Indicators.VolatilityMethod),
		ResampleInterval: cfg.ResampleInterval(),
		EMASpan:          cfg.Indicators.EMASpan,
	}
}

func NewSource(cfg *config.Config) (market.Source, error) {
	switch cfg.Market.Source {
	case "polygon":
		key := cfg.PolygonAPIKey()
		if key == "" {
			return nil, fmt.Errorf("polygon: environment variable %s is not set", cfg.Market.Polygon.APIKeyEnv)
		}
		c := polygon.New(key, cfg.Market.Polygon.RequestsPerMinute)
		if cfg.Market.Polygon.BaseURL != "" {
			c.BaseURL = cfg.Market.Polygon.BaseURL
		}
		c.Interval = cfg.BarInterval()
		return c, nil
	case "alpaca":
		key, secret := cfg.AlpacaCredentials()
		s, err := alpaca.New(key, secret, cfg.Market.Alpaca.Feed)
		if err != nil {
			return nil, err
		}
		s.Interval = cfg.BarInterval()
		return s, nil
	case "oanda":
		tok := cfg.OandaToken()
		if tok == "" {
			return nil, fmt.Errorf("oanda: environment variable %s is not set", cfg.Market.Oanda.TokenEnv)
		}
		s := oanda.New(tok, cfg.Market.Oanda.Practice)
		if cfg.Market.Oanda.Price != "" {
			s.Price = oanda.PriceComponent(cfg.Market.Oanda.Price)
		}
		s.Interval = cfg.BarInterval()
		return s, nil
	case "csv":
		return csvsource.New(cfg.Market.CSVPath, cfg.BarInterval()), nil
	default:
		return nil, fmt.Errorf("unknown market source %q", cfg.Market.Source)
	}
}

func NewStore(cfg *config.Config) (state.Store, error) {
	switch cfg.State.Type {
	case "file":
		return state.NewFileStore(cfg.State.Path, cfg.Account.InitialBalance), nil
	case "sqlite":
		return state.NewSQLiteStore(cfg.State.DBPath, cfg.Account.InitialBalance)
	default:
		return nil, fmt.Errorf("unknown state type %q", cfg.State.Type)
	}
}

func NewJournal(cfg *config.Config) (journal.Journal, error) {
	switch cfg.Journal.Type {
	case "csv":
		return journal.NewCSV(cfg.Journal.TradesFile)
	case "sqlite":
		return journal.NewSQLite(cfg.Journal.DBPath)
	default:
		return nil, fmt.Errorf("unknown journal type %q", cfg.Journal.Type)
	}
}

// Scheduler runs the cycle on the configured schedule.
func (a *App) Scheduler(maxRuns int, immediate bool) *scheduler.Scheduler {
	return &scheduler.Scheduler{
		Interval:  a.Config.ScheduleInterval(),
		Align:     a.Config.Schedule.Align,
		Offset:    a.Config.ScheduleOffset(),
		Immediate: immediate,
		MaxRuns:   maxRuns,
		Job: func(ctx context.Context) error {
			_, err := a.Runner.RunCycle(ctx)
			return err
		},
	}
}

// ResetState discards the stored snapshot.
func (a *App) ResetState() error {
	r, ok := a.Store.(Resetter)
	if !ok {
		return fmt.Errorf("state store %T cannot be reset", a.Store)
	}
	return r.Reset()
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
