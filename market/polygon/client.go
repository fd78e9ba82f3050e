// Package polygon reads minute aggregates from the Polygon REST API.
package polygon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/rustyeddy/scalper/market"
)

const DefaultBaseURL = "https://api.polygon.io"

// Client implements market.Source over /v2/aggs. The free tier allows five
// requests per minute; Limiter keeps the client under that.
type Client struct {
	BaseURL  string
	APIKey   string
	HTTP     *http.Client
	Limiter  *rate.Limiter
	Interval time.Duration // bar size, default one minute

	Now func() time.Time
}

// New returns a client limited to requestsPerMinute. Zero disables the
// limiter.
func New(apiKey string, requestsPerMinute int) *Client {
	c := &Client{
		BaseURL:  DefaultBaseURL,
		APIKey:   apiKey,
		HTTP:     &http.Client{Timeout: 30 * time.Second},
		Interval: time.Minute,
	}
	if requestsPerMinute > 0 {
		c.Limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1)
	}
	return c
}

type aggsResp struct {
	Ticker       string `json:"ticker"`
	Status       string `json:"status"`
	ResultsCount int    `json:"resultsCount"`
	Results      []struct {
		T  int64   `json:"t"`
		O  float64 `json:"o"`
		H  float64 `json:"h"`
		L  float64 `json:"l"`
		C  float64 `json:"c"`
		V  float64 `json:"v"`
		VW float64 `json:"vw"`
		N  int     `json:"n"`
	} `json:"results"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Bars returns the closed bars of the last lookback, ascending.
func (c *Client) Bars(ctx context.Context, symbol string, lookback time.Duration) ([]market.Bar, error) {
	if c.APIKey == "" {
		return nil, fmt.Errorf("polygon: missing api key")
	}
	if c.BaseURL == "" {
		return nil, fmt.Errorf("polygon: missing base url")
	}
	if symbol == "" {
		return nil, fmt.Errorf("polygon: missing symbol")
	}
	if lookback <= 0 {
		return nil, fmt.Errorf("polygon: lookback must be > 0")
	}

	interval := c.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	mult, span, err := timespan(interval)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if c.Now != nil {
		now = c.Now()
	}
	from := now.Add(-lookback)

	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, err
	}
	u.Path = fmt.Sprintf("/v2/aggs/ticker/%s/range/%d/%s/%d/%d",
		strings.ToUpper(symbol), mult, span, from.UnixMilli(), now.UnixMilli())

	q := u.Query()
	q.Set("adjusted", "true")
	q.Set("sort", "asc")
	q.Set("limit", "50000")
	q.Set("apiKey", c.APIKey)
	u.RawQuery = q.Encode()

	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return nil, fmt.Errorf("polygon aggs http %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var ar aggsResp
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return nil, fmt.Errorf("polygon aggs decode: %w", err)
	}
	if ar.Status == "ERROR" {
		msg := ar.Error
		if msg == "" {
			msg = ar.Message
		}
		return nil, fmt.Errorf("polygon aggs: %s", msg)
	}

	// No results is "no data", not a failure: weekends, halts, pre-market.
	if len(ar.Results) == 0 {
		return []market.Bar{}, nil
	}

	bars := make([]market.Bar, 0, len(ar.Results))
	for _, r := range ar.Results {
		bars = append(bars, market.Bar{
			Time:   time.UnixMilli(r.T).UTC(),
			Open:   r.O,
			High:   r.H,
			Low:    r.L,
			Close:  r.C,
			Volume: r.V,
		})
	}

	bars = market.Normalize(bars)
	return market.Completed(bars, interval, now), nil
}

// timespan maps a bar interval onto Polygon's multiplier and timespan.
func timespan(d time.Duration) (int, string, error) {
	switch {
	case d%(24*time.Hour) == 0:
		return int(d / (24 * time.Hour)), "day", nil
	case d%time.Hour == 0:
		return int(d / time.Hour), "hour", nil
	case d%time.Minute == 0:
		return int(d / time.Minute), "minute", nil
	case d%time.Second == 0:
		return int(d / time.Second), "second", nil
	default:
		return 0, "", fmt.Errorf("polygon: unsupported bar interval %s", d)
	}
}
