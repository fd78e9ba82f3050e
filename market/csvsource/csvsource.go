// Package csvsource serves bars from a canonical candle CSV file:
//
//	time,instrument,granularity,complete,volume,o,h,l,c
//
// where time is RFC3339 or RFC3339Nano. A header row is allowed, empty or
// short rows are skipped, and so are rows with complete=false.
package csvsource

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/scalper/market"
)

// Source implements market.Source over a file. The file is re-read on
// every call so an external writer can keep appending to it.
type Source struct {
	Path     string
	Interval time.Duration

	// Now anchors the lookback window. When nil the window ends at the
	// close of the last bar in the file, which suits replaying history.
	Now func() time.Time
}

func New(path string, interval time.Duration) *Source {
	return &Source{Path: path, Interval: interval}
}

func (s *Source) Bars(ctx context.Context, symbol string, lookback time.Duration) ([]market.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(s.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	bars, err := Read(f, symbol)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Path, err)
	}
	bars = market.Normalize(bars)
	if len(bars) == 0 {
		return bars, nil
	}

	interval := s.Interval
	if interval <= 0 {
		interval = time.Minute
	}

	var now time.Time
	if s.Now != nil {
		now = s.Now()
		bars = market.Completed(bars, interval, now)
	} else {
		now = bars[len(bars)-1].ClosesAt(interval)
	}
	return market.Since(bars, now.Add(-lookback)), nil
}

// Read parses candle rows for symbol. An empty symbol keeps every row.
func Read(r io.Reader, symbol string) ([]market.Bar, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	want := normalizeSymbol(symbol)

	var (
		out      []market.Bar
		sawFirst bool
	)
	for line := 1; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		if len(row) == 0 {
			continue
		}

		// Allow a single header row
		if !sawFirst {
			sawFirst = true
			if strings.EqualFold(strings.TrimSpace(row[0]), "time") {
				continue
			}
		}

		b, inst, ok, err := parseCandleRow(row)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if !ok {
			continue
		}
		if want != "" && normalizeSymbol(inst) != want {
			continue
		}
		out = append(out, b)
	}
}

func parseCandleRow(row []string) (market.Bar, string, bool, error) {
	if len(row) < 9 {
		return market.Bar{}, "", false, nil
	}

	ts := strings.TrimSpace(row[0])
	if ts == "" {
		return market.Bar{}, "", false, nil
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		t2, err2 := time.Parse(time.RFC3339Nano, ts)
		if err2 != nil {
			return market.Bar{}, "", false, fmt.Errorf("bad time %q: %w", ts, err)
		}
		t = t2
	}

	complete, err := strconv.ParseBool(strings.TrimSpace(row[3]))
	if err != nil {
		return market.Bar{}, "", false, fmt.Errorf("bad complete %q: %w", row[3], err)
	}
	if !complete {
		return market.Bar{}, "", false, nil
	}

	var v [5]float64
	for i, name := range []string{"volume", "o", "h", "l", "c"} {
		raw := strings.TrimSpace(row[4+i])
		v[i], err = strconv.ParseFloat(raw, 64)
		if err != nil {
			return market.Bar{}, "", false, fmt.Errorf("bad %s %q: %w", name, raw, err)
		}
	}

	return market.Bar{
		Time:   t.UTC(),
		Volume: v[0],
		Open:   v[1],
		High:   v[2],
		Low:    v[3],
		Close:  v[4],
	}, strings.TrimSpace(row[1]), true, nil
}

// normalizeSymbol lets EUR_USD, EUR/USD and eurusd match.
func normalizeSymbol(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.NewReplacer("_", "", "/", "", "-", "").Replace(s)
}

// Header is the candle CSV layout Read understands.
var Header = []string{"time", "instrument", "granularity", "complete", "volume", "o", "h", "l", "c"}

// Write emits bars for symbol in the layout Read parses. Every bar is
// written as complete.
func Write(w io.Writer, symbol string, interval time.Duration, bars []market.Bar) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}

	gran := interval.String()
	for _, b := range bars {
		row := []string{
			b.Time.UTC().Format(time.RFC3339),
			symbol,
			gran,
			"true",
			strconv.FormatFloat(b.Volume, 'f', -1, 64),
			strconv.FormatFloat(b.Open, 'f', -1, 64),
			strconv.FormatFloat(b.High, 'f', -1, 64),
			strconv.FormatFloat(b.Low, 'f', -1, 64),
			strconv.FormatFloat(b.Close, 'f', -1, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
