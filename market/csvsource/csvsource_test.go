package csvsource

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `time,instrument,granularity,complete,volume,o,h,l,c
2024-05-06T14:30:00Z,QQQ,M1,true,1000,440.00,440.30,439.90,440.20
2024-05-06T14:30:00Z,SPY,M1,true,900,510.00,510.30,509.90,510.20
2024-05-06T14:31:00Z,QQQ,M1,true,1100,440.20,440.50,440.10,440.40
2024-05-06T14:32:00Z,QQQ,M1,true,1200,440.40,440.60,440.30,440.50
2024-05-06T14:33:00Z,QQQ,M1,false,300,440.50,440.55,440.45,440.52

2024-05-06T14:34:00Z,QQQ
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "qqq.csv")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	return path
}

func TestReadFiltersSymbolAndIncomplete(t *testing.T) {
	t.Parallel()

	bars, err := Read(strings.NewReader(sample), "qqq")
	require.NoError(t, err)
	require.Len(t, bars, 3)

	assert.Equal(t, time.Date(2024, 5, 6, 14, 30, 0, 0, time.UTC), bars[0].Time)
	assert.Equal(t, 440.00, bars[0].Open)
	assert.Equal(t, 440.30, bars[0].High)
	assert.Equal(t, 439.90, bars[0].Low)
	assert.Equal(t, 440.20, bars[0].Close)
	assert.Equal(t, 1000.0, bars[0].Volume)

	all, err := Read(strings.NewReader(sample), "")
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestReadBadRow(t *testing.T) {
	t.Parallel()

	_, err := Read(strings.NewReader("2024-05-06T14:30:00Z,QQQ,M1,true,1,x,1,1,1\n"), "QQQ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
	assert.Contains(t, err.Error(), "bad o")

	_, err = Read(strings.NewReader("noon,QQQ,M1,true,1,1,1,1,1\n"), "QQQ")
	assert.Error(t, err)
}

func TestNormalizeSymbol(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "EURUSD", normalizeSymbol("EUR_USD"))
	assert.Equal(t, "EURUSD", normalizeSymbol("eur/usd"))
	assert.Equal(t, "QQQ", normalizeSymbol(" qqq "))
}

func TestBarsAnchoredToLastBar(t *testing.T) {
	t.Parallel()

	s := New(writeSample(t), time.Minute)

	// Last complete bar closes 14:33; two minutes back starts at 14:31.
	bars, err := s.Bars(context.Background(), "QQQ", 2*time.Minute)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 14, bars[0].Time.Hour())
	assert.Equal(t, 31, bars[0].Time.Minute())
}

func TestBarsWithClock(t *testing.T) {
	t.Parallel()

	s := New(writeSample(t), time.Minute)
	s.Now = func() time.Time { return time.Date(2024, 5, 6, 14, 32, 30, 0, time.UTC) }

	// 14:32 has not closed at 14:32:30.
	bars, err := s.Bars(context.Background(), "QQQ", time.Hour)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 31, bars[1].Time.Minute())
}

func TestBarsUnknownSymbol(t *testing.T) {
	t.Parallel()

	bars, err := New(writeSample(t), time.Minute).Bars(context.Background(), "IWM", time.Hour)
	require.NoError(t, err)
	assert.Empty(t, bars)
}

func TestBarsMissingFile(t *testing.T) {
	t.Parallel()

	_, err := New(filepath.Join(t.TempDir(), "nope.csv"), time.Minute).Bars(context.Background(), "QQQ", time.Hour)
	assert.Error(t, err)
}

func TestWriteReadsBack(t *testing.T) {
	t.Parallel()

	in, err := Read(strings.NewReader(sample), "QQQ")
	require.NoError(t, err)

	var buf strings.Builder
	require.NoError(t, Write(&buf, "QQQ", time.Minute, in))
	assert.True(t, strings.HasPrefix(buf.String(), "time,instrument,granularity,complete,volume,o,h,l,c\n"))

	out, err := Read(strings.NewReader(buf.String()), "QQQ")
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
