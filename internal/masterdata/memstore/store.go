// Package memstore is an in-memory masterdata.Repository for tests and
// local tooling.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/odyssey-erp/clientdoc/internal/masterdata"
)

// Store keeps master data in maps guarded by a mutex.
type Store struct {
	mu         sync.Mutex
	nextID     int64
	buyers     map[int64]masterdata.Buyer
	locations  map[int64]masterdata.Location
	items      map[int64]masterdata.Item
	categories map[int64]masterdata.Category

	// Lookups counts name lookups that reached the store.
	Lookups int
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		buyers:     make(map[int64]masterdata.Buyer),
		locations:  make(map[int64]masterdata.Location),
		items:      make(map[int64]masterdata.Item),
		categories: make(map[int64]masterdata.Category),
	}
}

var _ masterdata.Repository = (*Store)(nil)

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func same(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func (s *Store) BuyerByName(_ context.Context, name string) (masterdata.Buyer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Lookups++
	for _, id := range sortedIDs(s.buyers) {
		b := s.buyers[id]
		if b.DeletedAt == nil && same(b.Name, name) {
			return b, nil
		}
	}
	return masterdata.Buyer{}, masterdata.ErrNotFound
}

func (s *Store) LocationByName(_ context.Context, name string) (masterdata.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Lookups++
	for _, id := range sortedIDs(s.locations) {
		l := s.locations[id]
		if l.DeletedAt == nil && same(l.Name, name) {
			return l, nil
		}
	}
	return masterdata.Location{}, masterdata.ErrNotFound
}

func (s *Store) ItemByName(_ context.Context, name string) (masterdata.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Lookups++
	for _, id := range sortedIDs(s.items) {
		it := s.items[id]
		if it.DeletedAt == nil && same(it.Name, name) {
			return it, nil
		}
	}
	return masterdata.Item{}, masterdata.ErrNotFound
}

func (s *Store) GetBuyer(_ context.Context, id int64) (masterdata.Buyer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buyers[id]
	if !ok {
		return masterdata.Buyer{}, masterdata.ErrNotFound
	}
	return b, nil
}

func (s *Store) GetLocation(_ context.Context, id int64) (masterdata.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locations[id]
	if !ok {
		return masterdata.Location{}, masterdata.ErrNotFound
	}
	return l, nil
}

func (s *Store) GetItem(_ context.Context, id int64) (masterdata.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return masterdata.Item{}, masterdata.ErrNotFound
	}
	return it, nil
}

func (s *Store) ListBuyers(context.Context) ([]masterdata.Buyer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []masterdata.Buyer
	for _, id := range sortedIDs(s.buyers) {
		if b := s.buyers[id]; b.DeletedAt == nil {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) ListLocations(context.Context) ([]masterdata.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []masterdata.Location
	for _, id := range sortedIDs(s.locations) {
		if l := s.locations[id]; l.DeletedAt == nil {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) ListItems(context.Context) ([]masterdata.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []masterdata.Item
	for _, id := range sortedIDs(s.items) {
		if it := s.items[id]; it.DeletedAt == nil {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) UpsertBuyer(_ context.Context, b masterdata.Buyer) (masterdata.Buyer, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, id := range sortedIDs(s.buyers) {
		existing := s.buyers[id]
		if existing.DeletedAt == nil && same(existing.Name, b.Name) {
			b.ID, b.Name, b.CreatedAt, b.UpdatedAt = id, existing.Name, existing.CreatedAt, now
			s.buyers[id] = b
			return b, false, nil
		}
	}
	b.ID, b.CreatedAt, b.UpdatedAt = s.id(), now, now
	s.buyers[b.ID] = b
	return b, true, nil
}

func (s *Store) UpsertLocation(_ context.Context, l masterdata.Location) (masterdata.Location, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, id := range sortedIDs(s.locations) {
		existing := s.locations[id]
		if existing.DeletedAt == nil && same(existing.Name, l.Name) {
			if l.StateCode == "" {
				l.StateCode = existing.StateCode
			}
			l.ID, l.Name, l.CreatedAt, l.UpdatedAt = id, existing.Name, existing.CreatedAt, now
			s.locations[id] = l
			return l, false, nil
		}
	}
	l.ID, l.CreatedAt, l.UpdatedAt = s.id(), now, now
	s.locations[l.ID] = l
	return l, true, nil
}

func (s *Store) UpsertItem(_ context.Context, it masterdata.Item) (masterdata.Item, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, id := range sortedIDs(s.items) {
		existing := s.items[id]
		if existing.DeletedAt == nil && same(existing.Name, it.Name) {
			it.ID, it.Name, it.CreatedAt, it.UpdatedAt = id, existing.Name, existing.CreatedAt, now
			s.items[id] = it
			return it, false, nil
		}
	}
	it.ID, it.CreatedAt, it.UpdatedAt = s.id(), now, now
	s.items[it.ID] = it
	return it, true, nil
}

func (s *Store) CategoryByNameOrCreate(_ context.Context, name string) (masterdata.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.categories {
		if c.Name == name {
			return c, nil
		}
	}
	c := masterdata.Category{ID: s.id(), Name: name}
	s.categories[c.ID] = c
	return c, nil
}

func (s *Store) UpdateBuyer(_ context.Context, b masterdata.Buyer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.buyers[b.ID]
	if !ok || existing.DeletedAt != nil {
		return masterdata.ErrNotFound
	}
	b.CreatedAt, b.UpdatedAt = existing.CreatedAt, time.Now()
	s.buyers[b.ID] = b
	return nil
}

func (s *Store) UpdateLocation(_ context.Context, l masterdata.Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.locations[l.ID]
	if !ok || existing.DeletedAt != nil {
		return masterdata.ErrNotFound
	}
	l.CreatedAt, l.UpdatedAt = existing.CreatedAt, time.Now()
	s.locations[l.ID] = l
	return nil
}

func (s *Store) UpdateItem(_ context.Context, it masterdata.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.items[it.ID]
	if !ok || existing.DeletedAt != nil {
		return masterdata.ErrNotFound
	}
	it.CreatedAt, it.UpdatedAt = existing.CreatedAt, time.Now()
	s.items[it.ID] = it
	return nil
}

// SoftDeleteItem marks an item deleted; used by tests exercising trash flows.
func (s *Store) SoftDeleteItem(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if it, ok := s.items[id]; ok {
		now := time.Now()
		it.DeletedAt = &now
		s.items[id] = it
	}
}

func sortedIDs[T any](m map[int64]T) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
