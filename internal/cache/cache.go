// Package cache holds the last aggregated audit stats between scheduled refreshes.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/and161185/sendergate/internal/model"
)

// StatsCache stores one AuditStats snapshot.
type StatsCache interface {
	// Get returns the snapshot, or ok=false when none is stored or it expired.
	Get(ctx context.Context) (stats model.AuditStats, ok bool, err error)
	// Put stores a snapshot for ttl.
	Put(ctx context.Context, stats model.AuditStats, ttl time.Duration) error
}

// Memory is a process-local StatsCache.
type Memory struct {
	mu      sync.RWMutex
	stats   model.AuditStats
	expires time.Time
	now     func() time.Time
}

// NewMemory constructs an empty process-local cache.
func NewMemory() *Memory { return &Memory{now: time.Now} }

func (m *Memory) Get(context.Context) (model.AuditStats, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.expires.IsZero() || !m.now().Before(m.expires) {
		return model.AuditStats{}, false, nil
	}
	return cloneStats(m.stats), true, nil
}

func (m *Memory) Put(_ context.Context, stats model.AuditStats, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = cloneStats(stats)
	m.expires = m.now().Add(ttl)
	return nil
}

func cloneStats(s model.AuditStats) model.AuditStats {
	out := s
	out.ByAction = make(map[model.Action]int64, len(s.ByAction))
	for k, v := range s.ByAction {
		out.ByAction[k] = v
	}
	return out
}
