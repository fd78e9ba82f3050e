package risk

import (
	"math"

	"github.com/rustyeddy/scalper/market"
)

type Inputs struct {
	Balance    float64
	EntryPrice float64
	Direction  market.Direction
}

type Result struct {
	Quantity   float64
	Notional   float64
	TakeProfit float64
	StopLoss   float64
}

// Quantity sizes a position as (balance * leverage) / price. Fractional
// quantities are kept. Non-positive inputs size to zero.
func Quantity(balance, leverage, price float64) float64 {
	if balance <= 0 || leverage <= 0 || price <= 0 {
		return 0
	}
	q := balance * leverage / price
	if math.IsInf(q, 0) || math.IsNaN(q) {
		return 0
	}
	return q
}

// Levels returns the take-profit and stop-loss prices for an entry.
// LONG takes profit above and stops below; SHORT is mirrored.
func Levels(dir market.Direction, entry, tpPct, slPct float64) (tp, sl float64) {
	s := dir.Sign()
	tp = entry * (1 + s*tpPct)
	sl = entry * (1 - s*slPct)
	return tp, sl
}

// Calculate sizes an entry under p.
func Calculate(p Policy, in Inputs) Result {
	qty := Quantity(in.Balance, p.Leverage, in.EntryPrice)
	tp, sl := Levels(in.Direction, in.EntryPrice, p.TakeProfitPct, p.StopLossPct)
	return Result{
		Quantity:   qty,
		Notional:   qty * in.EntryPrice,
		TakeProfit: tp,
		StopLoss:   sl,
	}
}
