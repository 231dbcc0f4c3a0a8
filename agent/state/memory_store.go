package state

import (
	"context"
	"sync"
)

// MemoryStore keeps checkpoints in process. Values are copied on the way in and out.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]*SessionState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]*SessionState)}
}

func (m *MemoryStore) Load(_ context.Context, threadID string) (*SessionState, error) {
	if _, err := threadKey("", threadID); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[threadID]
	if !ok {
		return nil, ErrStateNotFound
	}
	return st.Clone(), nil
}

func (m *MemoryStore) Save(_ context.Context, st *SessionState) error {
	if _, err := encodeState(st); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[st.ThreadID] = st.Clone()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, threadID string) error {
	if _, err := threadKey("", threadID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, threadID)
	return nil
}
