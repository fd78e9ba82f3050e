package journal

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rustyeddy/scalper/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readRows(t *testing.T, path string) [][]string {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	rows, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSVHeaderWrittenOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "trading_journal.csv")

	j, err := NewCSV(path)
	require.NoError(t, err)
	require.NoError(t, j.Append(ctx, winningTrade()))

	// A second writer on the same file must not repeat the header.
	j2, err := NewCSV(path)
	require.NoError(t, err)
	require.NoError(t, j2.Append(ctx, losingTrade()))

	rows := readRows(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, Header, rows[0])
	assert.Equal(t, "01HXA7Q8J3M4R5S6T7V8W9X0YZ", rows[1][0])
	assert.Equal(t, "01HXAB2C3D4E5F6G7H8J9K0M1N", rows[2][0])
}

func TestCSVRowFormatting(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "trades.csv")
	j, err := NewCSV(path)
	require.NoError(t, err)
	require.NoError(t, j.Append(context.Background(), winningTrade()))

	rows := readRows(t, path)
	require.Len(t, rows, 2)
	want := []string{
		"01HXA7Q8J3M4R5S6T7V8W9X0YZ",
		"QQQ",
		"2024-05-06T14:31:00Z",
		"2024-05-06T14:44:00Z",
		"LONG",
		"440.1200",
		"440.3401",
		"54.5306",
		"12.00",
		"1212.00",
		"take_profit",
	}
	assert.Equal(t, want, rows[1])
}

func TestCSVAppendIsIdempotentByTradeID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "trades.csv")

	j, err := NewCSV(path)
	require.NoError(t, err)
	require.NoError(t, j.Append(ctx, winningTrade()))
	require.NoError(t, j.Append(ctx, winningTrade()))

	// A fresh writer learns existing ids from the file.
	j2, err := NewCSV(path)
	require.NoError(t, err)
	require.NoError(t, j2.Append(ctx, winningTrade()))

	assert.Len(t, readRows(t, path), 2)
}

func TestCSVReadBack(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	j, err := NewCSV(filepath.Join(t.TempDir(), "sub", "trades.csv"))
	require.NoError(t, err)

	empty, err := j.ListTrades(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, j.Append(ctx, winningTrade()))
	require.NoError(t, j.Append(ctx, losingTrade()))

	recs, err := j.ListTrades(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	got := recs[1]
	want := losingTrade()
	assert.Equal(t, want.TradeID, got.TradeID)
	assert.Equal(t, want.Direction, got.Direction)
	assert.True(t, want.EntryTime.Equal(got.EntryTime))
	assert.True(t, want.ExitTime.Equal(got.ExitTime))
	assert.InDelta(t, 441.6615, got.ExitPrice, 1e-9)
	assert.InDelta(t, 54.966, got.Quantity, 1e-9)
	assert.InDelta(t, -36.36, got.RealizedPL, 1e-9)
	assert.Equal(t, ReasonStopLoss, got.Reason)

	byID, err := j.GetTrade(ctx, want.TradeID)
	require.NoError(t, err)
	assert.Equal(t, want.TradeID, byID.TradeID)

	_, err = j.GetTrade(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, j.Close())
}

func TestReadCSVRejectsBadRows(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	header := strings.Join(Header, ",")
	tests := []struct {
		name string
		body string
	}{
		{"bad_direction", "a,QQQ,2024-05-06T14:31:00Z,2024-05-06T14:44:00Z,UP,1,1,1,1,1,take_profit"},
		{"bad_time", "a,QQQ,yesterday,2024-05-06T14:44:00Z,LONG,1,1,1,1,1,take_profit"},
		{"bad_number", "a,QQQ,2024-05-06T14:31:00Z,2024-05-06T14:44:00Z,LONG,x,1,1,1,1,take_profit"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(dir, tt.name+".csv")
			require.NoError(t, os.WriteFile(path, []byte(header+"\n"+tt.body+"\n"), 0o644))

			_, err := ReadCSV(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), ":2:")
		})
	}
}

func TestCSVAppendCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	j, err := NewCSV(filepath.Join(t.TempDir(), "trades.csv"))
	require.NoError(t, err)
	assert.Error(t, j.Append(ctx, winningTrade()))
}

// legacyLedger is the eight-column layout without trade_id, instrument or
// reason, with times written without an offset.
const legacyLedger = `entry_time,exit_time,type,entry_price,exit_price,qty,pnl,final_balance
2024-05-06T13:40:00,2024-05-06T13:47:00,LONG,440.12,440.34,54.5299,12.0,1212.0
`

func TestReadCSVLegacyLayout(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "trading_journal.csv")
	require.NoError(t, os.WriteFile(path, []byte(legacyLedger), 0o644))

	recs, err := ReadCSV(path)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	r := recs[0]
	assert.Empty(t, r.TradeID)
	assert.Empty(t, r.Instrument)
	assert.Empty(t, r.Reason)
	assert.Equal(t, market.Long, r.Direction)
	assert.Equal(t, time.Date(2024, 5, 6, 13, 40, 0, 0, time.UTC), r.EntryTime)
	assert.Equal(t, time.Date(2024, 5, 6, 13, 47, 0, 0, time.UTC), r.ExitTime)
	assert.Equal(t, 12.0, r.RealizedPL)
	assert.Equal(t, 1212.0, r.BalanceAfter)
}

func TestCSVAppendKeepsLegacyLayout(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "trading_journal.csv")
	require.NoError(t, os.WriteFile(path, []byte(legacyLedger), 0o644))

	j, err := NewCSV(path)
	require.NoError(t, err)

	// Re-appending the trade already in the file is a no-op.
	old := TradeRecord{
		TradeID:   "20240506T134000Z-LONG",
		Direction: market.Long,
		EntryTime: time.Date(2024, 5, 6, 13, 40, 0, 0, time.UTC),
	}
	require.NoError(t, j.Append(ctx, old))
	require.NoError(t, j.Append(ctx, losingTrade()))
	require.NoError(t, j.Append(ctx, losingTrade()))

	rows := readRows(t, path)
	require.Len(t, rows, 3)
	assert.Len(t, rows[2], 8)
	assert.Equal(t, "2024-05-06T15:20:00Z", rows[2][0])
	assert.Equal(t, "SHORT", rows[2][2])

	recs, err := ReadCSV(path)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	found, err := j.FindTrade(ctx, TradeKey{TradeID: "20240506T134000Z-LONG", EntryTime: old.EntryTime, Direction: market.Long})
	require.NoError(t, err)
	assert.Equal(t, 1212.0, found.BalanceAfter)

	_, err = j.FindTrade(ctx, TradeKey{TradeID: "none", EntryTime: old.EntryTime, Direction: market.Short})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReadCSVMissingRequiredColumn(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "trades.csv")
	require.NoError(t, os.WriteFile(path, []byte("entry_time,exit_time,type\n"), 0o644))

	_, err := ReadCSV(path)
	assert.ErrorContains(t, err, `missing column "entry_price"`)
}
