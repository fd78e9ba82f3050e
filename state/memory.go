package state

import (
	"context"
	"sync"
)

// MemoryStore is a Store that lives for the process.
type MemoryStore struct {
	mu    sync.Mutex
	s     *State
	init  float64
	saves int
}

func NewMemoryStore(initialBalance float64) *MemoryStore {
	return &MemoryStore{init: initialBalance}
}

func (m *MemoryStore) Load(ctx context.Context) (State, error) {
	if err := ctx.Err(); err != nil {
		return State{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.s == nil {
		return Default(m.init), nil
	}
	return m.s.Clone(), nil
}

func (m *MemoryStore) Save(ctx context.Context, s State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := s.Clone()
	m.s = &c
	m.saves++
	return nil
}

func (m *MemoryStore) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = nil
	return nil
}

// Saves counts successful writes.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
