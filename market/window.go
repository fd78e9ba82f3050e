package market

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// ErrMalformed marks a bar window that violates the Source contract.
var ErrMalformed = errors.New("malformed bar window")

// Normalize sorts bars ascending and drops duplicate timestamps, keeping the
// first occurrence. The input slice is not modified.
func Normalize(bars []Bar) []Bar {
	out := make([]Bar, len(bars))
	copy(out, bars)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })

	dedup := out[:0]
	for i, b := range out {
		if i > 0 && b.Time.Equal(dedup[len(dedup)-1].Time) {
			continue
		}
		dedup = append(dedup, b)
	}
	return dedup
}

// Completed drops trailing bars whose interval has not closed at now.
func Completed(bars []Bar, interval time.Duration, now time.Time) []Bar {
	n := len(bars)
	for n > 0 && bars[n-1].ClosesAt(interval).After(now) {
		n--
	}
	return bars[:n]
}

// Since keeps the bars that open at or after cutoff.
func Since(bars []Bar, cutoff time.Time) []Bar {
	i := sort.Search(len(bars), func(i int) bool { return !bars[i].Time.Before(cutoff) })
	return bars[i:]
}

// Validate checks ordering and price sanity of a window.
func Validate(bars []Bar) error {
	for i, b := range bars {
		if b.Time.IsZero() {
			return fmt.Errorf("%w: bar %d has no timestamp", ErrMalformed, i)
		}
		for _, p := range []float64{b.Open, b.High, b.Low, b.Close} {
			if p <= 0 || math.IsNaN(p) || math.IsInf(p, 0) {
				return fmt.Errorf("%w: bar %d at %s has price %v", ErrMalformed, i, b.Time.Format(time.RFC3339), p)
			}
		}
		if b.High < b.Low {
			return fmt.Errorf("%w: bar %d at %s has high %v below low %v", ErrMalformed, i, b.Time.Format(time.RFC3339), b.High, b.Low)
		}
		if i > 0 && !b.Time.After(bars[i-1].Time) {
			return fmt.Errorf("%w: bar %d at %s is not after %s", ErrMalformed, i, b.Time.Format(time.RFC3339), bars[i-1].Time.Format(time.RFC3339))
		}
	}
	return nil
}

// Last returns the most recent bar.
func Last(bars []Bar) (Bar, bool) {
	if len(bars) == 0 {
		return Bar{}, false
	}
	return bars[len(bars)-1], true
}
