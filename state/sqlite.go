package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rustyeddy/scalper/market"
)

const Schema = `
CREATE TABLE IF NOT EXISTS engine_state (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	balance REAL NOT NULL,
	last_exit_time DATETIME,
	position_id TEXT,
	direction TEXT,
	entry_time DATETIME,
	entry_price REAL,
	quantity REAL,
	take_profit REAL,
	stop_loss REAL,
	updated_at DATETIME NOT NULL
);
`

// SQLiteStore keeps the snapshot as the single row of engine_state.
type SQLiteStore struct {
	db             *sql.DB
	initialBalance float64
}

func NewSQLiteStore(path string, initialBalance float64) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db, initialBalance: initialBalance}, nil
}

func (s *SQLiteStore) Load(ctx context.Context) (State, error) {
	var (
		balance    float64
		lastExit   sql.NullTime
		positionID sql.NullString
		direction  sql.NullString
		entryTime  sql.NullTime
		entry      sql.NullFloat64
		qty        sql.NullFloat64
		tp         sql.NullFloat64
		sl         sql.NullFloat64
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT balance, last_exit_time, position_id, direction, entry_time, entry_price, quantity, take_profit, stop_loss
		FROM engine_state
		WHERE id = 1`).Scan(
		&balance, &lastExit, &positionID, &direction, &entryTime, &entry, &qty, &tp, &sl,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Default(s.initialBalance), nil
	}
	if err != nil {
		return State{}, fmt.Errorf("load state: %w", err)
	}

	st := State{Balance: balance}
	if lastExit.Valid {
		t := lastExit.Time.UTC()
		st.LastExitTime = &t
	}
	if direction.Valid {
		st.Position = &Position{
			ID:         positionID.String,
			Direction:  market.Direction(direction.String),
			EntryTime:  entryTime.Time.UTC(),
			EntryPrice: entry.Float64,
			Quantity:   qty.Float64,
			TakeProfit: tp.Float64,
			StopLoss:   sl.Float64,
		}
	}
	if err := st.Validate(); err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return st, nil
}

func (s *SQLiteStore) Save(ctx context.Context, st State) error {
	var (
		lastExit   sql.NullTime
		positionID sql.NullString
		direction  sql.NullString
		entryTime  sql.NullTime
		entry      sql.NullFloat64
		qty        sql.NullFloat64
		tp         sql.NullFloat64
		sl         sql.NullFloat64
	)
	if st.LastExitTime != nil {
		lastExit = sql.NullTime{Time: st.LastExitTime.UTC(), Valid: true}
	}
	if p := st.Position; p != nil {
		positionID = sql.NullString{String: p.ID, Valid: true}
		direction = sql.NullString{String: string(p.Direction), Valid: true}
		entryTime = sql.NullTime{Time: p.EntryTime.UTC(), Valid: true}
		entry = sql.NullFloat64{Float64: p.EntryPrice, Valid: true}
		qty = sql.NullFloat64{Float64: p.Quantity, Valid: true}
		tp = sql.NullFloat64{Float64: p.TakeProfit, Valid: true}
		sl = sql.NullFloat64{Float64: p.StopLoss, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO engine_state
		(id, balance, last_exit_time, position_id, direction, entry_time, entry_price, quantity, take_profit, stop_loss, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			balance = excluded.balance,
			last_exit_time = excluded.last_exit_time,
			position_id = excluded.position_id,
			direction = excluded.direction,
			entry_time = excluded.entry_time,
			entry_price = excluded.entry_price,
			quantity = excluded.quantity,
			take_profit = excluded.take_profit,
			stop_loss = excluded.stop_loss,
			updated_at = excluded.updated_at`,
		st.Balance, lastExit, positionID, direction, entryTime, entry, qty, tp, sl, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Reset() error {
	_, err := s.db.Exec(`DELETE FROM engine_state`)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
