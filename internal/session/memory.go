package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps states in process memory. Everything is lost on
// restart, so a user mid-step starts that step over.
type MemoryStore struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	states map[int64]entry
}

type entry struct {
	state   State
	expires time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:    ttl,
		now:    time.Now,
		states: make(map[int64]entry),
	}
}

func (m *MemoryStore) Get(_ context.Context, userID int64) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.states[userID]
	if !ok {
		return State{}, nil
	}
	if m.ttl > 0 && m.now().After(e.expires) {
		delete(m.states, userID)
		return State{}, nil
	}
	return e.state, nil
}

func (m *MemoryStore) Set(_ context.Context, userID int64, state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !state.Active() {
		delete(m.states, userID)
		return nil
	}
	m.states[userID] = entry{state: state, expires: m.now().Add(m.ttl)}
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.states, userID)
	return nil
}
