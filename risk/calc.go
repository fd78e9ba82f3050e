package risk

import (
	"math"

	"github.com/rustyeddy/scalper/market"
)

// RealizedPL is the profit booked when a position of qty opened at entry
// is closed at exit.
func RealizedPL(dir market.Direction, entry, exit, qty float64) float64 {
	return dir.Sign() * (exit - entry) * qty
}

func RR(entry, stop, takeProfit float64) float64 {
	risk := math.Abs(entry - stop)
	reward := math.Abs(takeProfit - entry)
	if risk == 0 {
		return 0
	}
	return reward / risk
}

// PlannedRisk is the loss booked if the stop is hit.
func PlannedRisk(qty, entry, stop float64) float64 {
	return qty * math.Abs(entry-stop)
}
