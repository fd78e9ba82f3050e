// Package indicators derives the volatility and trend readings the entry
// rules consume. Everything here is a pure function of the bar window.
package indicators

import (
	"math"
	"time"

	"github.com/rustyeddy/scalper/market"
)

// VolatilityMethod selects how per-bar movement is measured.
type VolatilityMethod string

const (
	// RangeMethod averages High - Low.
	RangeMethod VolatilityMethod = "range"
	// TrueRangeMethod averages the true range, which also counts gaps from
	// the previous close.
	TrueRangeMethod VolatilityMethod = "true_range"
)

// Signal is the indicator reading for the most recent bar. When Ready is
// false the window was too short and callers must not enter.
type Signal struct {
	Volatility float64
	Trend      float64
	Ready      bool
	Buckets    int
}

// Engine computes Signals from a bar window.
type Engine struct {
	VolatilityWindow int
	Method           VolatilityMethod
	ResampleInterval time.Duration
	EMASpan          int
}

// Compute returns the Signal for bars, which must be ascending.
func (e Engine) Compute(bars []market.Bar) Signal {
	sig := Signal{Volatility: math.NaN(), Trend: math.NaN()}

	var (
		vol float64
		err error
	)
	if e.Method == TrueRangeMethod {
		vol, err = TrueRangeMean(bars, e.VolatilityWindow)
	} else {
		vol, err = RangeMean(bars, e.VolatilityWindow)
	}
	if err == nil {
		sig.Volatility = vol
	}

	closes := Resample(bars, e.ResampleInterval)
	sig.Buckets = len(closes)
	if trend, err := EMAFunc(closes, e.EMASpan); err == nil {
		sig.Trend = trend
	}

	sig.Ready = !math.IsNaN(sig.Volatility) && !math.IsNaN(sig.Trend)
	return sig
}
