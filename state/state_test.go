package state

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rustyeddy/scalper/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	entryTime = time.Date(2024, 5, 6, 14, 31, 0, 0, time.UTC)
	exitTime  = time.Date(2024, 5, 6, 13, 2, 0, 0, time.UTC)
)

// openState has prices that do not survive a naive %f round trip.
func openState() State {
	last := exitTime
	return State{
		Balance: 1234.5678901234567,
		Position: &Position{
			ID:         "01HXA7Q8J3M4R5S6T7V8W9X0YZ",
			Direction:  market.Short,
			EntryTime:  entryTime,
			EntryPrice: 101.23456789012345,
			Quantity:   1200 * 20 / 101.23456789012345,
			TakeProfit: 101.23456789012345 * (1 - 0.0005),
			StopLoss:   101.23456789012345 * (1 + 0.0015),
		},
		LastExitTime: &last,
	}
}

func assertSameState(t *testing.T, want, got State) {
	t.Helper()

	assert.Equal(t, want.Balance, got.Balance)
	if want.LastExitTime == nil {
		assert.Nil(t, got.LastExitTime)
	} else {
		require.NotNil(t, got.LastExitTime)
		assert.True(t, want.LastExitTime.Equal(*got.LastExitTime))
	}
	if want.Position == nil {
		assert.Nil(t, got.Position)
		return
	}
	require.NotNil(t, got.Position)
	w, g := want.Position, got.Position
	assert.Equal(t, w.ID, g.ID)
	assert.Equal(t, w.Direction, g.Direction)
	assert.True(t, w.EntryTime.Equal(g.EntryTime))
	// Exact equality: prices round-trip to full precision.
	assert.Equal(t, w.EntryPrice, g.EntryPrice)
	assert.Equal(t, w.Quantity, g.Quantity)
	assert.Equal(t, w.TakeProfit, g.TakeProfit)
	assert.Equal(t, w.StopLoss, g.StopLoss)
}

func TestDefault(t *testing.T) {
	t.Parallel()

	s := Default(1200)
	assert.Equal(t, 1200.0, s.Balance)
	assert.True(t, s.Flat())
	assert.Nil(t, s.LastExitTime)
}

func TestCooldownRemaining(t *testing.T) {
	t.Parallel()

	last := exitTime
	s := State{LastExitTime: &last}

	assert.Equal(t, 30*time.Minute, s.CooldownRemaining(last, 30*time.Minute))
	assert.Equal(t, time.Minute, s.CooldownRemaining(last.Add(29*time.Minute), 30*time.Minute))
	assert.Zero(t, s.CooldownRemaining(last.Add(30*time.Minute), 30*time.Minute))
	assert.Zero(t, s.CooldownRemaining(last.Add(2*time.Hour), 30*time.Minute))
	assert.Zero(t, Default(1).CooldownRemaining(last, 30*time.Minute))
}

func TestValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, openState().Validate())

	s := openState()
	s.Position.Direction = "SIDEWAYS"
	assert.Error(t, s.Validate())

	s = openState()
	s.Position.Quantity = 0
	assert.Error(t, s.Validate())

	s = openState()
	s.Position.EntryTime = time.Time{}
	assert.Error(t, s.Validate())
}

func TestClone(t *testing.T) {
	t.Parallel()

	s := openState()
	c := s.Clone()
	c.Position.StopLoss = 1
	*c.LastExitTime = time.Time{}

	assert.NotEqual(t, 1.0, s.Position.StopLoss)
	assert.False(t, s.LastExitTime.IsZero())
}

func TestFileStoreMissingFileIsDefault(t *testing.T) {
	t.Parallel()

	fs := NewFileStore(filepath.Join(t.TempDir(), "trading_state.json"), 1200)
	s, err := fs.Load(context.Background())
	require.NoError(t, err)
	assertSameState(t, Default(1200), s)
}

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fs := NewFileStore(filepath.Join(t.TempDir(), "nested", "trading_state.json"), 1200)

	want := openState()
	require.NoError(t, fs.Save(ctx, want))

	got, err := fs.Load(ctx)
	require.NoError(t, err)
	assertSameState(t, want, got)

	// Flat state with no cooldown.
	require.NoError(t, fs.Save(ctx, Default(999.5)))
	got, err = fs.Load(ctx)
	require.NoError(t, err)
	assertSameState(t, Default(999.5), got)
}

func TestFileStoreFieldNames(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "trading_state.json")
	require.NoError(t, NewFileStore(path, 0).Save(context.Background(), openState()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw, "balance")
	assert.Contains(t, raw, "last_exit_time")

	trade, ok := raw["active_trade"].(map[string]any)
	require.True(t, ok)
	for _, k := range []string{"type", "entry_time", "entry_price", "qty", "tp", "sl"} {
		assert.Contains(t, trade, k)
	}
	assert.Equal(t, "SHORT", trade["type"])
}

func TestFileStoreReadsFlatDocument(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "trading_state.json")
	doc := `{"balance": 1187.43, "active_trade": null, "last_exit_time": "2024-05-06T13:02:00Z"}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	s, err := NewFileStore(path, 1200).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1187.43, s.Balance)
	assert.True(t, s.Flat())
	require.NotNil(t, s.LastExitTime)
	assert.True(t, exitTime.Equal(*s.LastExitTime))
}

func TestFileStoreReadsNaiveTimestamps(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "trading_state.json")
	doc := `{
    "balance": 1205.0,
    "active_trade": {
        "type": "LONG",
        "entry_time": "2024-05-06T13:40:00",
        "entry_price": 440.12,
        "qty": 54.5299,
        "tp": 440.34006,
        "sl": 439.45982
    },
    "last_exit_time": "2024-05-06T13:02:00"
}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	s, err := NewFileStore(path, 1200).Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, s.Position)
	assert.Equal(t, "", s.Position.ID)
	assert.Equal(t, market.Long, s.Position.Direction)
	assert.Equal(t, time.Date(2024, 5, 6, 13, 40, 0, 0, time.UTC), s.Position.EntryTime)
	require.NotNil(t, s.LastExitTime)
	assert.Equal(t, time.Date(2024, 5, 6, 13, 2, 0, 0, time.UTC), *s.LastExitTime)

	// A save rewrites the times with an offset and they load back the same.
	require.NoError(t, NewFileStore(path, 1200).Save(context.Background(), s))
	again, err := NewFileStore(path, 1200).Load(context.Background())
	require.NoError(t, err)
	assert.True(t, s.Position.EntryTime.Equal(again.Position.EntryTime))
	assert.True(t, s.LastExitTime.Equal(*again.LastExitTime))
}

func TestFileStoreCorrupt(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tests := []struct {
		name string
		doc  string
	}{
		{"not_json", "{balance"},
		{"bad_position", `{"balance": 1, "active_trade": {"type": "LONG", "qty": 0}}`},
		{"bad_entry_time", `{"balance": 1, "active_trade": {"type": "LONG", "entry_time": "yesterday", "entry_price": 1, "qty": 1, "tp": 1, "sl": 1}}`},
		{"bad_exit_time", `{"balance": 1, "active_trade": null, "last_exit_time": "13:02"}`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(dir, tt.name+".json")
			require.NoError(t, os.WriteFile(path, []byte(tt.doc), 0o644))

			_, err := NewFileStore(path, 1200).Load(context.Background())
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestFileStoreReset(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fs := NewFileStore(filepath.Join(t.TempDir(), "s.json"), 1200)
	require.NoError(t, fs.Save(ctx, openState()))
	require.NoError(t, fs.Reset())
	require.NoError(t, fs.Reset())

	s, err := fs.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1200.0, s.Balance)
}

func TestFileStoreCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fs := NewFileStore(filepath.Join(t.TempDir(), "s.json"), 1200)
	assert.Error(t, fs.Save(ctx, Default(1)))
	_, err := fs.Load(ctx)
	assert.Error(t, err)
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewMemoryStore(1200)

	s, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1200.0, s.Balance)

	want := openState()
	require.NoError(t, m.Save(ctx, want))
	want.Position.Quantity = 1 // must not leak into the store

	got, err := m.Load(ctx)
	require.NoError(t, err)
	assertSameState(t, openState(), got)
	assert.Equal(t, 1, m.Saves())

	require.NoError(t, m.Reset())
	got, err = m.Load(ctx)
	require.NoError(t, err)
	assert.True(t, got.Flat())
}
