package indicators

import "fmt"

// EMA is a streaming exponential moving average with alpha = 2/(span+1).
// It is seeded with the first value rather than an SMA, so a value exists
// after one update; Ready reports when span values have been seen.
type EMA struct {
	n     int
	alpha float64

	seen  int
	value float64

	name string
}

func NewEMA(span int) *EMA {
	if span <= 0 {
		panic("EMA span must be > 0")
	}
	return &EMA{
		n:     span,
		alpha: 2.0 / float64(span+1),
		name:  fmt.Sprintf("EMA(%d)", span),
	}
}

func (e *EMA) Name() string     { return e.name }
func (e *EMA) Warmup() int      { return e.n }
func (e *EMA) Ready() bool      { return e.seen >= e.n }
func (e *EMA) Seen() int        { return e.seen }
func (e *EMA) Float64() float64 { return e.value }

func (e *EMA) Reset() {
	e.seen = 0
	e.value = 0
}

func (e *EMA) Update(x float64) {
	e.seen++
	if e.seen == 1 {
		e.value = x
		return
	}
	e.value = e.alpha*x + (1.0-e.alpha)*e.value
}

// EMAFunc runs an EMA over values and returns the final value. A short
// series is not an error: the trend is defined from the first value.
func EMAFunc(values []float64, span int) (float64, error) {
	if span <= 0 {
		return 0, fmt.Errorf("span must be positive, got %d", span)
	}
	if len(values) == 0 {
		return 0, fmt.Errorf("no values")
	}

	ema := NewEMA(span)
	for _, v := range values {
		ema.Update(v)
	}
	return ema.Float64(), nil
}
