// Package oanda reads instrument candles from the OANDA v20 REST API.
// Index CFDs such as NAS100_USD track the same underlying as QQQ and
// trade around the clock.
package oanda

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rustyeddy/scalper/market"
)

const (
	PracticeURL = "https://api-fxpractice.oanda.com"
	LiveURL     = "https://api-fxtrade.oanda.com"

	// maxCount is the most candles one request may return.
	maxCount = 5000
)

// PriceComponent selects which side of the book candles are built from.
type PriceComponent string

const (
	MidPrice PriceComponent = "M"
	BidPrice PriceComponent = "B"
	AskPrice PriceComponent = "A"
)

type Source struct {
	BaseURL  string
	Token    string
	Price    PriceComponent
	Interval time.Duration
	HTTP     *http.Client

	// Now defaults to time.Now.
	Now func() time.Time
}

func New(token string, practice bool) *Source {
	base := LiveURL
	if practice {
		base = PracticeURL
	}
	return &Source{
		BaseURL:  base,
		Token:    token,
		Price:    MidPrice,
		Interval: time.Minute,
		HTTP:     &http.Client{Timeout: 30 * time.Second},
	}
}

type ohlc struct {
	O string `json:"o"`
	H string `json:"h"`
	L string `json:"l"`
	C string `json:"c"`
}

type apiCandle struct {
	Complete bool   `json:"complete"`
	Volume   int    `json:"volume"`
	Time     string `json:"time"`
	Mid      *ohlc  `json:"mid,omitempty"`
	Bid      *ohlc  `json:"bid,omitempty"`
	Ask      *ohlc  `json:"ask,omitempty"`
}

type candlesResponse struct {
	Instrument  string      `json:"instrument"`
	Granularity string      `json:"granularity"`
	Candles     []apiCandle `json:"candles"`
}

func (s *Source) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Bars returns the completed candles for instrument that closed within
// lookback. Incomplete candles are dropped.
func (s *Source) Bars(ctx context.Context, instrument string, lookback time.Duration) ([]market.Bar, error) {
	if instrument == "" {
		return nil, fmt.Errorf("instrument is required")
	}
	gran, err := granularity(s.Interval)
	if err != nil {
		return nil, err
	}
	if n := int(lookback / s.Interval); n > maxCount {
		return nil, fmt.Errorf("lookback %s needs %d candles, max is %d", lookback, n, maxCount)
	}

	price := s.Price
	if price == "" {
		price = MidPrice
	}

	now := s.now()
	params := url.Values{}
	params.Set("price", string(price))
	params.Set("granularity", gran)
	params.Set("from", now.Add(-lookback).UTC().Format(time.RFC3339))

	apiURL := fmt.Sprintf("%s/v3/instruments/%s/candles?%s", s.BaseURL, instrument, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.Token)
	req.Header.Set("Accept-Datetime-Format", "RFC3339")

	httpc := s.HTTP
	if httpc == nil {
		httpc = http.DefaultClient
	}
	resp, err := httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("oanda candles http %d: %s", resp.StatusCode, string(body))
	}

	var apiResp candlesResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	bars := make([]market.Bar, 0, len(apiResp.Candles))
	for _, ac := range apiResp.Candles {
		if !ac.Complete {
			continue
		}
		b, err := toBar(ac, price)
		if err != nil {
			return nil, err
		}
		bars = append(bars, b)
	}

	bars = market.Normalize(bars)
	return market.Completed(bars, s.Interval, now), nil
}

func toBar(ac apiCandle, price PriceComponent) (market.Bar, error) {
	t, err := time.Parse(time.RFC3339Nano, ac.Time)
	if err != nil {
		return market.Bar{}, fmt.Errorf("parse time %s: %w", ac.Time, err)
	}

	var p *ohlc
	switch price {
	case BidPrice:
		p = ac.Bid
	case AskPrice:
		p = ac.Ask
	default:
		p = ac.Mid
	}
	if p == nil {
		return market.Bar{}, fmt.Errorf("candle %s has no %q prices", ac.Time, price)
	}

	var v [4]float64
	for i, raw := range []string{p.O, p.H, p.L, p.C} {
		v[i], err = strconv.ParseFloat(raw, 64)
		if err != nil {
			return market.Bar{}, fmt.Errorf("candle %s: %w", ac.Time, err)
		}
	}

	return market.Bar{
		Time:   t.UTC(),
		Open:   v[0],
		High:   v[1],
		Low:    v[2],
		Close:  v[3],
		Volume: float64(ac.Volume),
	}, nil
}

// granularity maps a bar interval onto an OANDA granularity code.
func granularity(d time.Duration) (string, error) {
	switch d {
	case 5 * time.Second:
		return "S5", nil
	case 10 * time.Second:
		return "S10", nil
	case 15 * time.Second:
		return "S15", nil
	case 30 * time.Second:
		return "S30", nil
	case time.Minute:
		return "M1", nil
	case 2 * time.Minute:
		return "M2", nil
	case 4 * time.Minute:
		return "M4", nil
	case 5 * time.Minute:
		return "M5", nil
	case 10 * time.Minute:
		return "M10", nil
	case 15 * time.Minute:
		return "M15", nil
	case 30 * time.Minute:
		return "M30", nil
	case time.Hour:
		return "H1", nil
	}
	return "", fmt.Errorf("no oanda granularity for %s", d)
}
