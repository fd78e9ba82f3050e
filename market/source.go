package market

import (
	"context"
	"time"
)

// Source supplies the recent bar window for one instrument.
//
// Implementations return bars ascending by Time with no duplicate
// timestamps. An empty slice with a nil error means "no data"; errors are
// reserved for transport and decoding failures.
//
// Implementations must never return a bar whose interval has not closed;
// Completed trims the in-progress bar vendors include.
type Source interface {
	Bars(ctx context.Context, symbol string, lookback time.Duration) ([]Bar, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, symbol string, lookback time.Duration) ([]Bar, error)

func (f SourceFunc) Bars(ctx context.Context, symbol string, lookback time.Duration) ([]Bar, error) {
	return f(ctx, symbol, lookback)
}
