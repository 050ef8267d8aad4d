package bulkimport

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepository keeps upload records in memory.
type MemoryRepository struct {
	mu      sync.Mutex
	nextID  int64
	uploads map[int64]Upload
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{uploads: make(map[int64]Upload)}
}

func (m *MemoryRepository) Create(_ context.Context, up Upload) (Upload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	up.ID = m.nextID
	if up.UploadedAt.IsZero() {
		up.UploadedAt = time.Now()
	}
	m.uploads[up.ID] = up
	return up, nil
}

func (m *MemoryRepository) Get(_ context.Context, id int64) (Upload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	up, ok := m.uploads[id]
	if !ok {
		return Upload{}, ErrNotFound
	}
	return up, nil
}

func (m *MemoryRepository) List(_ context.Context, limit int) ([]Upload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Upload, 0, len(m.uploads))
	for _, up := range m.uploads {
		out = append(out, up)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryRepository) Save(_ context.Context, up Upload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.uploads[up.ID]; !ok {
		return ErrNotFound
	}
	m.uploads[up.ID] = up
	return nil
}
