package journal

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/scalper/market"
)

// Header is the ledger's column set, written once at the top of the file.
var Header = []string{
	"trade_id", "instrument", "entry_time", "exit_time", "type",
	"entry_price", "exit_price", "qty", "pnl", "final_balance", "reason",
}

// requiredColumns are present in every ledger file, including ones written
// before trade_id, instrument and reason were added.
var requiredColumns = []string{
	"entry_time", "exit_time", "type",
	"entry_price", "exit_price", "qty", "pnl", "final_balance",
}

// Column precision. Cash columns are rounded to cents.
const (
	pricePlaces = 4
	qtyPlaces   = 4
	cashPlaces  = 2
)

// CSV appends trades to a single file. Each Append opens the file in
// append mode, so the file stays valid if the process dies between
// cycles. Rows follow the header already in the file, so an older ledger
// keeps its layout.
type CSV struct {
	path string

	mu      sync.Mutex
	loaded  bool
	columns []string
	ids     map[string]bool
	entries map[string]bool // rows without a trade id, by entryKey
}

func NewCSV(path string) (*CSV, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &CSV{path: path}, nil
}

func (j *CSV) Path() string { return j.path }

func (j *CSV) Append(ctx context.Context, t TradeRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.load(); err != nil {
		return err
	}
	if j.ids[t.TradeID] || j.entries[entryKey(t)] {
		return nil
	}

	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		j.columns = Header
		if err := w.Write(Header); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Write(row(t, j.columns)); err != nil {
		f.Close()
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	if t.TradeID != "" && j.hasColumn("trade_id") {
		j.ids[t.TradeID] = true
	} else {
		j.entries[entryKey(t)] = true
	}
	return nil
}

// load reads the file's header and the keys of the trades already in it.
func (j *CSV) load() error {
	if j.loaded {
		return nil
	}
	header, recs, err := readCSV(j.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	j.columns = header
	if len(j.columns) == 0 {
		j.columns = Header
	}
	j.ids = make(map[string]bool, len(recs))
	j.entries = make(map[string]bool)
	for _, r := range recs {
		if r.TradeID != "" {
			j.ids[r.TradeID] = true
		} else {
			j.entries[entryKey(r)] = true
		}
	}
	j.loaded = true
	return nil
}

func (j *CSV) hasColumn(name string) bool {
	for _, c := range j.columns {
		if c == name {
			return true
		}
	}
	return false
}

func entryKey(t TradeRecord) string {
	return t.EntryTime.UTC().Format(time.RFC3339Nano) + "|" + string(t.Direction)
}

func (j *CSV) ListTrades(ctx context.Context) ([]TradeRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	recs, err := ReadCSV(j.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return recs, err
}

func (j *CSV) GetTrade(ctx context.Context, tradeID string) (TradeRecord, error) {
	recs, err := j.ListTrades(ctx)
	if err != nil {
		return TradeRecord{}, err
	}
	for _, r := range recs {
		if r.TradeID == tradeID {
			return r, nil
		}
	}
	return TradeRecord{}, fmt.Errorf("%w: %q", ErrNotFound, tradeID)
}

func (j *CSV) FindTrade(ctx context.Context, key TradeKey) (TradeRecord, error) {
	recs, err := j.ListTrades(ctx)
	if err != nil {
		return TradeRecord{}, err
	}
	for _, r := range recs {
		if key.Matches(r) {
			return r, nil
		}
	}
	return TradeRecord{}, ErrNotFound
}

func (j *CSV) Close() error { return nil }

// row lays t out in the given column order. Unknown columns are left
// empty.
func row(t TradeRecord, columns []string) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		switch c {
		case "trade_id":
			out[i] = t.TradeID
		case "instrument":
			out[i] = t.Instrument
		case "entry_time":
			out[i] = t.EntryTime.UTC().Format(time.RFC3339)
		case "exit_time":
			out[i] = t.ExitTime.UTC().Format(time.RFC3339)
		case "type":
			out[i] = string(t.Direction)
		case "entry_price":
			out[i] = fixed(t.EntryPrice, pricePlaces)
		case "exit_price":
			out[i] = fixed(t.ExitPrice, pricePlaces)
		case "qty":
			out[i] = fixed(t.Quantity, qtyPlaces)
		case "pnl":
			out[i] = fixed(t.RealizedPL, cashPlaces)
		case "final_balance":
			out[i] = fixed(t.BalanceAfter, cashPlaces)
		case "reason":
			out[i] = t.Reason
		}
	}
	return out
}

func fixed(x float64, places int32) string {
	return decimal.NewFromFloat(x).StringFixed(places)
}

// ReadCSV parses a ledger file. Values come back at the precision they
// were written with. Files without the trade_id, instrument or reason
// columns load with those fields empty.
func ReadCSV(path string) ([]TradeRecord, error) {
	_, recs, err := readCSV(path)
	return recs, err
}

func readCSV(path string) ([]string, []TradeRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%s: header: %w", path, err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}
	for _, h := range requiredColumns {
		if _, ok := col[h]; !ok {
			return nil, nil, fmt.Errorf("%s: missing column %q", path, h)
		}
	}

	var out []TradeRecord
	for line := 2; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}

		t, err := parseRow(rec, col)
		if err != nil {
			return nil, nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		out = append(out, t)
	}
	return header, out, nil
}

func parseRow(rec []string, col map[string]int) (TradeRecord, error) {
	get := func(name string) string {
		i, ok := col[name]
		if !ok {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var (
		t   TradeRecord
		err error
	)
	t.TradeID = get("trade_id")
	t.Instrument = get("instrument")
	t.Reason = get("reason")
	if t.Direction, err = market.ParseDirection(get("type")); err != nil {
		return t, err
	}
	if t.EntryTime, err = market.ParseTime(get("entry_time")); err != nil {
		return t, fmt.Errorf("entry_time: %w", err)
	}
	if t.ExitTime, err = market.ParseTime(get("exit_time")); err != nil {
		return t, fmt.Errorf("exit_time: %w", err)
	}

	for name, dst := range map[string]*float64{
		"entry_price":   &t.EntryPrice,
		"exit_price":    &t.ExitPrice,
		"qty":           &t.Quantity,
		"pnl":           &t.RealizedPL,
		"final_balance": &t.BalanceAfter,
	} {
		d, err := decimal.NewFromString(get(name))
		if err != nil {
			return t, fmt.Errorf("%s: %w", name, err)
		}
		*dst = d.InexactFloat64()
	}
	return t, nil
}
