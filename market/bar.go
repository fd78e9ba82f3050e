package market

import "time"

// Bar is one interval's open/high/low/close summary. Time is the interval
// open, matching the vendors this package reads from.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Range returns High - Low.
func (b Bar) Range() float64 {
	return b.High - b.Low
}

// ClosesAt reports when the bar's interval ends.
func (b Bar) ClosesAt(interval time.Duration) time.Time {
	return b.Time.Add(interval)
}
