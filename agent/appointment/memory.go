package appointment

import (
	"context"
	"sync"
)

// MemoryStore keeps the appointment book in process.
type MemoryStore struct {
	mu   sync.RWMutex
	rows book
}

func NewMemoryStore(slots ...Slot) *MemoryStore {
	return &MemoryStore{rows: book(slots).clone()}
}

func (m *MemoryStore) Find(_ context.Context, f Filter) ([]Slot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rows.find(f), nil
}

func (m *MemoryStore) Claim(_ context.Context, k Key, patient int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows.claim(k, patient)
}

func (m *MemoryStore) Release(_ context.Context, k Key, patient int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows.release(k, patient)
}

func (m *MemoryStore) Move(_ context.Context, from, to Key, patient int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows.move(from, to, patient)
}

// Snapshot returns a copy of every row in storage order.
func (m *MemoryStore) Snapshot() []Slot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rows.clone()
}
