package lease

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Locker. It only excludes holders within one process.
type Memory struct {
	mu   sync.Mutex
	held map[string]memoryEntry
	seq  uint64
	now  func() time.Time
}

type memoryEntry struct {
	token   uint64
	expires time.Time
}

// NewMemory constructs an in-process Locker.
func NewMemory() *Memory {
	return &Memory{held: make(map[string]memoryEntry), now: time.Now}
}

// TryAcquire takes name if it is free or its previous lease expired.
func (m *Memory) TryAcquire(_ context.Context, name string, ttl time.Duration) (Release, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if e, ok := m.held[name]; ok && now.Before(e.expires) {
		return nil, false, nil
	}
	m.seq++
	token := m.seq
	m.held[name] = memoryEntry{token: token, expires: now.Add(ttl)}

	return func(context.Context) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		if e, ok := m.held[name]; ok && e.token == token {
			delete(m.held, name)
		}
		return nil
	}, true, nil
}
