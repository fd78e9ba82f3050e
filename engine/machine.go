// Package engine runs the FLAT/OPEN position lifecycle. Machine is the pure
// transition function; Runner wraps it with data fetch and persistence.
package engine

import (
	"fmt"
	"time"

	"github.com/rustyeddy/scalper/indicators"
	"github.com/rustyeddy/scalper/internal/id"
	"github.com/rustyeddy/scalper/journal"
	"github.com/rustyeddy/scalper/market"
	"github.com/rustyeddy/scalper/risk"
	"github.com/rustyeddy/scalper/state"
)

// Outcome names what a cycle did.
type Outcome string

const (
	OutcomeSkipped             Outcome = "skipped"
	OutcomeNoData              Outcome = "no_data"
	OutcomeHolding             Outcome = "holding"
	OutcomeClosed              Outcome = "closed"
	OutcomeSettled             Outcome = "settled"
	OutcomeCoolingDown         Outcome = "cooling_down"
	OutcomeNoSignal            Outcome = "no_signal"
	OutcomeVolatilityOutOfBand Outcome = "volatility_out_of_band"
	OutcomeAmbiguous           Outcome = "ambiguous"
	OutcomeInsufficientBalance Outcome = "insufficient_balance"
	OutcomeOpened              Outcome = "opened"
)

// Indicators computes the signal for a bar window.
type Indicators interface {
	Compute(bars []market.Bar) indicators.Signal
}

// Params are the entry and exit rules.
type Params struct {
	Instrument    string
	Policy        risk.Policy
	VolatilityMin float64
	VolatilityMax float64
	Cooldown      time.Duration
}

func (p Params) Validate() error {
	if p.Instrument == "" {
		return fmt.Errorf("instrument is required")
	}
	if err := p.Policy.Validate(); err != nil {
		return err
	}
	if p.VolatilityMin < 0 || p.VolatilityMax < p.VolatilityMin {
		return fmt.Errorf("volatility band [%v,%v] is invalid", p.VolatilityMin, p.VolatilityMax)
	}
	if p.Cooldown < 0 {
		return fmt.Errorf("cooldown must be >= 0, got %s", p.Cooldown)
	}
	return nil
}

// Decision is the result of one Step. Next is the state to persist when
// Changed is true. Closed and Opened are set on the matching transitions.
type Decision struct {
	Outcome Outcome
	Bar     market.Bar
	Signal  indicators.Signal

	Next    state.State
	Changed bool

	Closed *journal.TradeRecord
	Opened *state.Position

	CooldownLeft time.Duration
	Reason       string

	// Set when a position is opened.
	PlannedRisk float64
	PlannedRR   float64
}

type Machine struct {
	Params
	Indicators Indicators

	// NewID returns the id for a position entered at t.
	NewID func(t time.Time) string
}

func NewMachine(p Params, ind Indicators) *Machine {
	return &Machine{Params: p, Indicators: ind, NewID: id.At}
}

// Step evaluates one cycle against the latest bar of bars, which must be
// ascending. The input state is not modified.
//
// With a position open only the exit is checked; entry is never evaluated in
// the same Step, so a position cannot open and close in one cycle.
func (m *Machine) Step(s state.State, bars []market.Bar) (Decision, error) {
	bar, ok := market.Last(bars)
	if !ok {
		return Decision{Outcome: OutcomeNoData, Next: s}, nil
	}

	if s.Position != nil {
		if err := s.Position.Validate(); err != nil {
			return Decision{}, fmt.Errorf("%w: %v", state.ErrCorrupt, err)
		}
		return m.exit(s, bar), nil
	}
	return m.entry(s, bars, bar), nil
}

func (m *Machine) exit(s state.State, bar market.Bar) Decision {
	p := *s.Position
	d := Decision{Outcome: OutcomeHolding, Bar: bar, Next: s}

	price, reason, ok := exitLevel(p, bar)
	if !ok {
		return d
	}

	pl := risk.RealizedPL(p.Direction, p.EntryPrice, price, p.Quantity)
	exitTime := bar.Time
	next := state.State{
		Balance:      s.Balance + pl,
		LastExitTime: &exitTime,
	}

	d.Outcome = OutcomeClosed
	d.Next = next
	d.Changed = true
	d.Reason = reason
	d.Closed = &journal.TradeRecord{
		TradeID:      tradeID(p),
		Instrument:   m.Instrument,
		Direction:    p.Direction,
		EntryTime:    p.EntryTime,
		ExitTime:     exitTime,
		EntryPrice:   p.EntryPrice,
		ExitPrice:    price,
		Quantity:     p.Quantity,
		RealizedPL:   pl,
		BalanceAfter: next.Balance,
		Reason:       reason,
	}
	return d
}

func (m *Machine) entry(s state.State, bars []market.Bar, bar market.Bar) Decision {
	d := Decision{Bar: bar, Next: s}

	// Cooldown is measured against the bar clock, not the wall clock.
	if left := s.CooldownRemaining(bar.Time, m.Cooldown); left > 0 {
		d.Outcome = OutcomeCoolingDown
		d.CooldownLeft = left
		return d
	}

	d.Signal = m.Indicators.Compute(bars)
	if !d.Signal.Ready {
		d.Outcome = OutcomeNoSignal
		return d
	}
	if d.Signal.Volatility < m.VolatilityMin || d.Signal.Volatility > m.VolatilityMax {
		d.Outcome = OutcomeVolatilityOutOfBand
		return d
	}

	dir, ok := direction(bar, d.Signal.Trend)
	if !ok {
		d.Outcome = OutcomeAmbiguous
		return d
	}

	check := risk.Evaluate(m.Policy, risk.Inputs{Balance: s.Balance, EntryPrice: bar.Close, Direction: dir})
	if !check.Allowed {
		d.Outcome = OutcomeInsufficientBalance
		d.Reason = check.Reason()
		return d
	}

	pos := state.Position{
		ID:         m.NewID(bar.Time),
		Direction:  dir,
		EntryTime:  bar.Time,
		EntryPrice: bar.Close,
		Quantity:   check.Sizing.Quantity,
		TakeProfit: check.Sizing.TakeProfit,
		StopLoss:   check.Sizing.StopLoss,
	}
	next := s.Clone()
	next.Position = &pos

	d.Outcome = OutcomeOpened
	d.Next = next
	d.Changed = true
	d.Opened = &pos
	d.PlannedRisk = check.PlannedRisk
	d.PlannedRR = check.PlannedRR
	return d
}

// Settle applies a close that is already in the ledger to s, whose open
// position it belongs to. No bar is consulted: the recorded exit stands.
func (m *Machine) Settle(s state.State, rec journal.TradeRecord) Decision {
	exitTime := rec.ExitTime
	return Decision{
		Outcome: OutcomeSettled,
		Next: state.State{
			Balance:      s.Balance + rec.RealizedPL,
			LastExitTime: &exitTime,
		},
		Changed: true,
		Reason:  rec.Reason,
	}
}

// Key is the ledger key p closes into.
func Key(p state.Position) journal.TradeKey {
	return journal.TradeKey{TradeID: tradeID(p), EntryTime: p.EntryTime, Direction: p.Direction}
}

// tradeID is p's id, or for a position stored without one an id derived
// from its entry so a retried close maps to the same record.
func tradeID(p state.Position) string {
	if p.ID != "" {
		return p.ID
	}
	return p.EntryTime.UTC().Format("20060102T150405Z") + "-" + string(p.Direction)
}
