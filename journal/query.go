package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/scalper/market"
)

const selectTrades = `
	SELECT trade_id, instrument, direction, entry_time, exit_time, entry_price, exit_price, quantity, realized_pl, balance_after, reason
	FROM trades`

type scanner interface {
	Scan(dest ...any) error
}

func scanTrade(s scanner) (TradeRecord, error) {
	var (
		rec TradeRecord
		dir string
	)
	err := s.Scan(
		&rec.TradeID,
		&rec.Instrument,
		&dir,
		&rec.EntryTime,
		&rec.ExitTime,
		&rec.EntryPrice,
		&rec.ExitPrice,
		&rec.Quantity,
		&rec.RealizedPL,
		&rec.BalanceAfter,
		&rec.Reason,
	)
	rec.Direction = market.Direction(dir)
	return rec, err
}

// GetTrade returns a single trade record by ID.
func (j *SQLite) GetTrade(ctx context.Context, tradeID string) (TradeRecord, error) {
	row := j.db.QueryRowContext(ctx, selectTrades+`
		WHERE trade_id = ?`, tradeID)

	rec, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TradeRecord{}, fmt.Errorf("%w: %q", ErrNotFound, tradeID)
		}
		return TradeRecord{}, err
	}
	return rec, nil
}

// FindTrade returns the record key closes into.
func (j *SQLite) FindTrade(ctx context.Context, key TradeKey) (TradeRecord, error) {
	recs, err := j.query(ctx, selectTrades+`
		WHERE trade_id = ? OR (direction = ? AND entry_time = ?)
		ORDER BY exit_time ASC`, key.TradeID, string(key.Direction), key.EntryTime.UTC())
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

// ListTrades returns every trade in exit order.
func (j *SQLite) ListTrades(ctx context.Context) ([]TradeRecord, error) {
	return j.query(ctx, selectTrades+`
		ORDER BY exit_time ASC, trade_id ASC`)
}

// ListTradesClosedBetween returns trades whose exit_time is within [start, end).
func (j *SQLite) ListTradesClosedBetween(ctx context.Context, start, end time.Time) ([]TradeRecord, error) {
	return j.query(ctx, selectTrades+`
		WHERE exit_time >= ? AND exit_time < ?
		ORDER BY exit_time ASC, trade_id ASC`, start.UTC(), end.UTC())
}

func (j *SQLite) query(ctx context.Context, q string, args ...any) ([]TradeRecord, error) {
	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		rec, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
