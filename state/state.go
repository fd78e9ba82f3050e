// Package state holds the engine's persisted snapshot: balance, the open
// position if any, and the last exit time that drives the cooldown.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rustyeddy/scalper/market"
)

// ErrCorrupt is returned when a stored snapshot cannot be decoded or fails
// validation.
var ErrCorrupt = errors.New("state: corrupt snapshot")

// Position is the single open trade. Quantity and both exit levels are
// fixed at entry.
type Position struct {
	ID         string           `json:"id,omitempty"`
	Direction  market.Direction `json:"type"`
	EntryTime  time.Time        `json:"entry_time"`
	EntryPrice float64          `json:"entry_price"`
	Quantity   float64          `json:"qty"`
	TakeProfit float64          `json:"tp"`
	StopLoss   float64          `json:"sl"`
}

// UnmarshalJSON also accepts an entry_time without a zone offset, read as
// UTC, which is how older snapshots were written.
func (p *Position) UnmarshalJSON(data []byte) error {
	type plain Position
	aux := struct {
		*plain
		EntryTime string `json:"entry_time"`
	}{plain: (*plain)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	p.EntryTime = time.Time{}
	if aux.EntryTime == "" {
		return nil
	}
	t, err := market.ParseTime(aux.EntryTime)
	if err != nil {
		return fmt.Errorf("entry_time: %w", err)
	}
	p.EntryTime = t
	return nil
}

func (p Position) Validate() error {
	if !p.Direction.Valid() {
		return fmt.Errorf("position direction %q", p.Direction)
	}
	if p.EntryTime.IsZero() {
		return errors.New("position entry time is zero")
	}
	for name, v := range map[string]float64{
		"entry_price": p.EntryPrice,
		"qty":         p.Quantity,
		"tp":          p.TakeProfit,
		"sl":          p.StopLoss,
	} {
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("position %s must be positive, got %v", name, v)
		}
	}
	return nil
}

// State is the whole persisted snapshot.
type State struct {
	Balance      float64    `json:"balance"`
	Position     *Position  `json:"active_trade"`
	LastExitTime *time.Time `json:"last_exit_time"`
}

func (s *State) UnmarshalJSON(data []byte) error {
	type plain State
	aux := struct {
		*plain
		LastExitTime *string `json:"last_exit_time"`
	}{plain: (*plain)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	s.LastExitTime = nil
	if aux.LastExitTime == nil || *aux.LastExitTime == "" {
		return nil
	}
	t, err := market.ParseTime(*aux.LastExitTime)
	if err != nil {
		return fmt.Errorf("last_exit_time: %w", err)
	}
	s.LastExitTime = &t
	return nil
}

// Default is the snapshot used when nothing has been stored yet.
func Default(initialBalance float64) State {
	return State{Balance: initialBalance}
}

func (s State) Flat() bool { return s.Position == nil }

// CooldownRemaining returns how long entries stay blocked at now. Zero
// means an entry may be evaluated.
func (s State) CooldownRemaining(now time.Time, cooldown time.Duration) time.Duration {
	if s.LastExitTime == nil || cooldown <= 0 {
		return 0
	}
	left := s.LastExitTime.Add(cooldown).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

func (s State) Validate() error {
	if math.IsNaN(s.Balance) || math.IsInf(s.Balance, 0) {
		return fmt.Errorf("balance %v", s.Balance)
	}
	if s.Position != nil {
		if err := s.Position.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a deep copy so callers can mutate without aliasing a
// stored snapshot.
func (s State) Clone() State {
	out := State{Balance: s.Balance}
	if s.Position != nil {
		p := *s.Position
		out.Position = &p
	}
	if s.LastExitTime != nil {
		t := *s.LastExitTime
		out.LastExitTime = &t
	}
	return out
}

// Store loads and saves the snapshot. Load on an empty store returns the
// default snapshot, not an error.
type Store interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, s State) error
}
