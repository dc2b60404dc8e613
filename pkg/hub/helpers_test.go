package hub

import (
	"errors"
	"sync"
	"time"
)

// memStore records every snapshot it is asked to save.
type memStore struct {
	mu    sync.Mutex
	saves int
	last  map[string]AgentRecord
	fail  bool
}

func (m *memStore) Save(snapshot map[string]AgentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.fail {
		return errors.New("disk full")
	}
	m.last = snapshot
	return nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func (m *memStore) lastSnapshot() map[string]AgentRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestRegistry(store *memStore) *Registry {
	return NewRegistry(store, nil, WithClock(func() time.Time { return fixedNow }))
}
