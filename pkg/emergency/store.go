package emergency

import (
	"context"
	"sort"
	"sync"
)

// IncidentStore persists dispatched incidents.
type IncidentStore interface {
	Save(ctx context.Context, inc Incident) error
	// Recent returns up to limit incidents, newest first.
	Recent(ctx context.Context, limit int) ([]Incident, error)
}

// MemoryStore keeps the latest incidents in memory.
type MemoryStore struct {
	mu        sync.RWMutex
	incidents []Incident
	max       int
}

// NewMemoryStore keeps at most max incidents (0 = 1000).
func NewMemoryStore(max int) *MemoryStore {
	if max <= 0 {
		max = 1000
	}
	return &MemoryStore{max: max}
}

// Save appends inc, dropping the oldest entries past capacity.
func (m *MemoryStore) Save(_ context.Context, inc Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.incidents = append(m.incidents, inc)
	if len(m.incidents) > m.max {
		m.incidents = append([]Incident(nil), m.incidents[len(m.incidents)-m.max:]...)
	}
	return nil
}

// Recent returns up to limit incidents, newest first. limit <= 0 returns all.
func (m *MemoryStore) Recent(_ context.Context, limit int) ([]Incident, error) {
	m.mu.RLock()
	out := make([]Incident, len(m.incidents))
	copy(out, m.incidents)
	m.mu.RUnlock()

	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Len returns the number of stored incidents.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.incidents)
}

func sortNewestFirst(incidents []Incident) {
	sort.SliceStable(incidents, func(i, j int) bool {
		return incidents[i].CreatedAt.After(incidents[j].CreatedAt)
	})
}
