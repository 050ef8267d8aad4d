package trash

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryRecord struct {
	label     string
	deletedAt *time.Time
}

type memoryKey struct {
	kind Kind
	id   int64
}

// MemoryRepository is an in-memory Repository for tests and local runs.
type MemoryRepository struct {
	mu      sync.Mutex
	records map[memoryKey]*memoryRecord
	now     func() time.Time
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[memoryKey]*memoryRecord), now: time.Now}
}

// Put registers a live record.
func (m *MemoryRepository) Put(kind Kind, id int64, label string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[memoryKey{kind, id}] = &memoryRecord{label: label}
}

// Exists reports whether the record is still stored, live or trashed.
func (m *MemoryRepository) Exists(kind Kind, id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[memoryKey{kind, id}]
	return ok
}

func (m *MemoryRepository) SoftDelete(_ context.Context, kind Kind, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[memoryKey{kind, id}]
	if !ok || rec.deletedAt != nil {
		return ErrNotFound
	}
	now := m.now()
	rec.deletedAt = &now
	return nil
}

func (m *MemoryRepository) Restore(_ context.Context, kind Kind, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[memoryKey{kind, id}]
	if !ok || rec.deletedAt == nil {
		return ErrNotFound
	}
	rec.deletedAt = nil
	return nil
}

func (m *MemoryRepository) Purge(_ context.Context, kind Kind, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memoryKey{kind, id}
	rec, ok := m.records[key]
	if !ok || rec.deletedAt == nil {
		return ErrNotFound
	}
	delete(m.records, key)
	return nil
}

func (m *MemoryRepository) Trashed(_ context.Context, kind Kind) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for key, rec := range m.records {
		if key.kind != kind || rec.deletedAt == nil {
			continue
		}
		out = append(out, Entry{Kind: kind, ID: key.id, Label: rec.label, DeletedAt: *rec.deletedAt})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DeletedAt.Equal(out[j].DeletedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].DeletedAt.After(out[j].DeletedAt)
	})
	return out, nil
}
