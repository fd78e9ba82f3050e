package indicators

import (
	"time"

	"github.com/rustyeddy/scalper/market"
)

// Resample buckets closes into interval-wide bins aligned to wall-clock
// boundaries and returns the last close of each bin. Bins with no bars
// between the first and last bin carry the previous bin's close forward.
func Resample(bars []market.Bar, interval time.Duration) []float64 {
	if len(bars) == 0 || interval <= 0 {
		return nil
	}

	first := bars[0].Time.Truncate(interval)
	last := bars[len(bars)-1].Time.Truncate(interval)
	n := int(last.Sub(first)/interval) + 1
	if n <= 0 {
		return nil
	}

	closes := make([]float64, n)
	filled := make([]bool, n)
	for _, b := range bars {
		idx := int(b.Time.Truncate(interval).Sub(first) / interval)
		if idx < 0 || idx >= n {
			continue
		}
		closes[idx] = b.Close
		filled[idx] = true
	}

	for i := 1; i < n; i++ {
		if !filled[i] {
			closes[i] = closes[i-1]
		}
	}
	return closes
}
