package shared

import (
	"context"
	"sync"
	"time"
)

// MemoryActivity keeps activity entries in memory. It backs tests and
// CLIENTDOC_TEST_MODE runs.
type MemoryActivity struct {
	mu      sync.Mutex
	entries []ActivityLog
}

// Record appends the entry.
func (m *MemoryActivity) Record(_ context.Context, log ActivityLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if log.At.IsZero() {
		log.At = time.Now()
	}
	log.ID = int64(len(m.entries) + 1)
	m.entries = append(m.entries, log)
	return nil
}

// Recent returns the newest entries first.
func (m *MemoryActivity) Recent(_ context.Context, limit int) ([]ActivityLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 10
	}
	out := make([]ActivityLog, 0, limit)
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}

// Actions lists recorded actions in order.
func (m *MemoryActivity) Actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Action
	}
	return out
}

// Details lists recorded details in order.
func (m *MemoryActivity) Details() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Details
	}
	return out
}
