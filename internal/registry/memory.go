package registry

import (
	"context"
	"sync"
	"time"

	"github.com/Lllllllleong/projectconverter/internal/models"
)

// MemoryStore keeps entries in process memory. Entries are lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]models.DownloadEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]models.DownloadEntry)}
}

func (m *MemoryStore) Put(_ context.Context, id string, e models.DownloadEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[id] = e
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (models.DownloadEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok {
		return models.DownloadEntry{}, ErrNotFound
	}
	return e, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

func (m *MemoryStore) Expired(_ context.Context, now time.Time) ([]Expired, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Expired
	for id, e := range m.entries {
		if !now.Before(e.ExpiresAt) {
			out = append(out, Expired{ID: id, Entry: e})
		}
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
