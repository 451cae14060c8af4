package store

import (
	"context"
	"sync"
	"time"

	"github.com/feedbackops/kbsync/internal/types"
)

// MemoryStore is an in-memory Store used by tests and dry runs. It mirrors
// the SQLite implementation's semantics, including immediate visibility of
// each write.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]types.PublishedRecord
	runs    []types.RunSummary
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]types.PublishedRecord)}
}

func (m *MemoryStore) ListPublished(_ context.Context) ([]types.PublishedRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.PublishedRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	return out, nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (*types.PublishedRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (m *MemoryStore) Upsert(_ context.Context, rec types.PublishedRecord) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.Key] = rec
	return nil
}

func (m *MemoryStore) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key)
	return nil
}

func (m *MemoryStore) Purge(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string]types.PublishedRecord)
	return nil
}

func (m *MemoryStore) RecordRun(_ context.Context, run types.RunSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func (m *MemoryStore) LastRun(_ context.Context) (*types.RunSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.runs) == 0 {
		return nil, ErrNotFound
	}
	run := m.runs[len(m.runs)-1]
	return &run, nil
}

func (m *MemoryStore) Close() error { return nil }
