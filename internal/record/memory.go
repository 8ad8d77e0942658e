package record

import (
	"context"
	"sync"
)

// Memory is the fallback recorder when nothing durable is configured.
type Memory struct {
	mu    sync.RWMutex
	items []MatchRecord
	limit int
}

func NewMemory(limit int) *Memory {
	if limit <= 0 {
		limit = 50
	}
	return &Memory{limit: limit}
}

func (m *Memory) Record(ctx context.Context, rec MatchRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, rec)
	if len(m.items) > m.limit {
		m.items = append([]MatchRecord(nil), m.items[len(m.items)-m.limit:]...)
	}
	return nil
}

func (m *Memory) Recent(ctx context.Context, limit int) ([]MatchRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 || limit > len(m.items) {
		limit = len(m.items)
	}
	out := make([]MatchRecord, 0, limit)
	for i := len(m.items) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.items[i])
	}
	return out, nil
}
