// Package alpaca reads historical stock bars from the Alpaca market data API.
package alpaca

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"github.com/rustyeddy/scalper/market"
)

// barsGetter is the part of marketdata.Client used here.
type barsGetter interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
}

// Source implements market.Source.
type Source struct {
	md       barsGetter
	Feed     marketdata.Feed
	Interval time.Duration

	Now func() time.Time
}

func New(apiKey, apiSecret, feed string) (*Source, error) {
	if apiKey == "" || apiSecret == "" {
		return nil, fmt.Errorf("alpaca: missing credentials")
	}
	client := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	})
	f, err := parseFeed(feed)
	if err != nil {
		return nil, err
	}
	return &Source{md: client, Feed: f, Interval: time.Minute}, nil
}

// parseFeed maps a feed name onto the client's feed. Empty means IEX.
func parseFeed(feed string) (marketdata.Feed, error) {
	switch strings.ToLower(feed) {
	case "", "iex":
		return marketdata.IEX, nil
	case "sip":
		return marketdata.SIP, nil
	default:
		return "", fmt.Errorf("alpaca: unknown feed %q", feed)
	}
}

func timeFrame(d time.Duration) (marketdata.TimeFrame, error) {
	switch {
	case d%(24*time.Hour) == 0:
		return marketdata.NewTimeFrame(int(d/(24*time.Hour)), marketdata.Day), nil
	case d%time.Hour == 0:
		return marketdata.NewTimeFrame(int(d/time.Hour), marketdata.Hour), nil
	case d%time.Minute == 0:
		return marketdata.NewTimeFrame(int(d/time.Minute), marketdata.Min), nil
	default:
		return marketdata.TimeFrame{}, fmt.Errorf("alpaca: unsupported bar interval %s", d)
	}
}

// Bars returns the closed bars of the last lookback. The SDK call takes no
// context, so a canceled ctx abandons the request rather than aborting it.
func (s *Source) Bars(ctx context.Context, symbol string, lookback time.Duration) ([]market.Bar, error) {
	if symbol == "" {
		return nil, fmt.Errorf("alpaca: missing symbol")
	}
	if lookback <= 0 {
		return nil, fmt.Errorf("alpaca: lookback must be > 0")
	}

	interval := s.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	tf, err := timeFrame(interval)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}

	req := marketdata.GetBarsRequest{
		TimeFrame: tf,
		Start:     now.Add(-lookback),
		End:       now,
		Feed:      s.Feed,
	}

	type result struct {
		bars []marketdata.Bar
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		bars, err := s.md.GetBars(strings.ToUpper(symbol), req)
		ch <- result{bars, err}
	}()

	var res result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.err != nil {
		return nil, fmt.Errorf("alpaca get bars: %w", res.err)
	}

	out := make([]market.Bar, 0, len(res.bars))
	for _, b := range res.bars {
		out = append(out, market.Bar{
			Time:   b.Timestamp.UTC(),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: float64(b.Volume),
		})
	}

	out = market.Normalize(out)
	return market.Completed(out, interval, now), nil
}
