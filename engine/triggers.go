package engine

import (
	"github.com/rustyeddy/scalper/journal"
	"github.com/rustyeddy/scalper/market"
	"github.com/rustyeddy/scalper/state"
)

func hitTakeProfit(p state.Position, bar market.Bar) bool {
	if p.Direction == market.Short {
		return bar.Low <= p.TakeProfit
	}
	return bar.High >= p.TakeProfit
}

func hitStopLoss(p state.Position, bar market.Bar) bool {
	if p.Direction == market.Short {
		return bar.High >= p.StopLoss
	}
	return bar.Low <= p.StopLoss
}

// exitLevel reports whether bar closes p, and at which level.
//
// A single bar cannot tell us whether its high or its low printed first, so
// when both levels are inside the bar the take-profit is assumed. This is an
// optimistic approximation; a finer bar interval narrows the window in which
// it matters.
func exitLevel(p state.Position, bar market.Bar) (price float64, reason string, ok bool) {
	switch {
	case hitTakeProfit(p, bar):
		return p.TakeProfit, journal.ReasonTakeProfit, true
	case hitStopLoss(p, bar):
		return p.StopLoss, journal.ReasonStopLoss, true
	default:
		return 0, "", false
	}
}

// direction picks LONG when the close is above both the trend and the
// bar's open, SHORT when below both. Anything else has no edge.
func direction(bar market.Bar, trend float64) (market.Direction, bool) {
	switch {
	case bar.Close > trend && bar.Close > bar.Open:
		return market.Long, true
	case bar.Close < trend && bar.Close < bar.Open:
		return market.Short, true
	default:
		return "", false
	}
}
