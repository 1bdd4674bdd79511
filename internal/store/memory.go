package store

import (
	"context"
	"sort"
	"sync"
)

// Memory is the fallback store used in tests and when no DATABASE_URL is
// configured. Unlike sessions, saved snapshots are shared across rooms, so
// it carries its own lock.
type Memory struct {
	mu      sync.RWMutex
	saves   map[string]SavedRecord
	exports map[string]ExportRecord
}

func NewMemory() *Memory {
	return &Memory{
		saves:   make(map[string]SavedRecord),
		exports: make(map[string]ExportRecord),
	}
}

func (m *Memory) SaveSnapshot(_ context.Context, rec SavedRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves[rec.ID] = rec
	return nil
}

func (m *Memory) ListSnapshots(_ context.Context) ([]SavedSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]SavedSummary, 0, len(m.saves))
	for _, r := range m.saves {
		out = append(out, SavedSummary{
			ID: r.ID, Code: r.Code, Mode: r.Mode, SavedAt: r.SavedAt, Size: len(r.Payload),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SavedAt.After(out[j].SavedAt) })
	return out, nil
}

func (m *Memory) LoadSnapshot(_ context.Context, id string) (SavedRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.saves[id]
	if !ok {
		return SavedRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *Memory) SaveExport(_ context.Context, rec ExportRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exports[rec.ID] = rec
	return nil
}
