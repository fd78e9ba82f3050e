// Package journal is the append-only ledger of closed trades.
package journal

import (
	"context"
	"errors"
	"time"

	"github.com/rustyeddy/scalper/market"
)

// Exit reasons.
const (
	ReasonTakeProfit = "take_profit"
	ReasonStopLoss   = "stop_loss"
)

// ErrNotFound is returned by GetTrade for an unknown id.
var ErrNotFound = errors.New("trade not found")

// TradeRecord is one closed trade. Records are never changed once written.
type TradeRecord struct {
	TradeID      string
	Instrument   string
	Direction    market.Direction
	EntryTime    time.Time
	ExitTime     time.Time
	EntryPrice   float64
	ExitPrice    float64
	Quantity     float64
	RealizedPL   float64
	BalanceAfter float64
	Reason       string
}

// Ledger accepts closed trades. Appending a TradeID that is already
// present is a no-op, so a cycle retried after a partial failure cannot
// double-book a trade.
type Ledger interface {
	Append(ctx context.Context, rec TradeRecord) error
}

// TradeKey identifies the record a position closes into. Records written
// without a trade id are matched on entry time and direction.
type TradeKey struct {
	TradeID   string
	EntryTime time.Time
	Direction market.Direction
}

func (k TradeKey) Matches(r TradeRecord) bool {
	if k.TradeID != "" && r.TradeID != "" {
		return k.TradeID == r.TradeID
	}
	return r.EntryTime.Equal(k.EntryTime) && r.Direction == k.Direction
}

// Finder looks up the record for a position that may already have been
// closed. It returns ErrNotFound when there is none.
type Finder interface {
	FindTrade(ctx context.Context, key TradeKey) (TradeRecord, error)
}

// Journal is a Ledger that can also be read back.
type Journal interface {
	Ledger
	Finder
	ListTrades(ctx context.Context) ([]TradeRecord, error)
	GetTrade(ctx context.Context, tradeID string) (TradeRecord, error)
	Close() error
}
