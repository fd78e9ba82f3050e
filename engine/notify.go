package engine

import (
	"context"

	"github.com/rustyeddy/scalper/internal/logger")

// Notifier is told about new positions. It is informational: a failing
// notifier never fails the cycle. d.Opened is always set.
type Notifier interface {
	Opened(ctx context.Context, instrument string, d Decision)
}

// LogNotifier writes an "opened" trade event to the structured log.
type LogNotifier struct{}

func (LogNotifier) Opened(ctx context.Context, instrument string, d Decision) {
	p := d.Opened
	logger.Trade(ctx, instrument, "opened",
		"trade_id", p.ID,
		"direction", p.Direction.String(),
		"entry_time", p.EntryTime,
		"entry_price", p.EntryPrice,
		"qty", p.Quantity,
		"tp", p.TakeProfit,
		"sl", p.StopLoss,
		"planned_risk", d.PlannedRisk,
		"planned_rr", d.PlannedRR,
	)
}
