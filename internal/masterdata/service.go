package masterdata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/odyssey-erp/clientdoc/internal/shared"
)

// Service exposes master data with a cached name lookup path used by the
// importer and the invoice forms.
type Service struct {
	repo     Repository
	cache    *Cache
	activity shared.ActivityRecorder
	logger   *slog.Logger
}

// NewService constructs the master data service. cache and activity may be nil.
func NewService(repo Repository, cache *Cache, activity shared.ActivityRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, activity: activity, logger: logger}
}

// FindBuyer resolves a buyer by case-insensitive name.
func (s *Service) FindBuyer(ctx context.Context, name string) (Buyer, error) {
	var out Buyer
	err := s.lookup(ctx, "buyer", name, &out, func(ctx context.Context) (any, error) {
		return s.repo.BuyerByName(ctx, name)
	})
	return out, err
}

// FindLocation resolves a store location by case-insensitive name.
func (s *Service) FindLocation(ctx context.Context, name string) (Location, error) {
	var out Location
	err := s.lookup(ctx, "location", name, &out, func(ctx context.Context) (any, error) {
		return s.repo.LocationByName(ctx, name)
	})
	return out, err
}

// FindItem resolves a catalog item by case-insensitive name.
func (s *Service) FindItem(ctx context.Context, name string) (Item, error) {
	var out Item
	err := s.lookup(ctx, "item", name, &out, func(ctx context.Context) (any, error) {
		return s.repo.ItemByName(ctx, name)
	})
	return out, err
}

func (s *Service) lookup(ctx context.Context, kind, name string, dest any, loader func(context.Context) (any, error)) error {
	key := nameKey(name)
	if key == "" {
		return ErrNotFound
	}
	cacheKey, err := s.cache.BuildKey(ctx, kind, key)
	if err != nil {
		s.logger.Warn("masterdata cache unavailable", slog.String("kind", kind), slog.Any("error", err))
		value, lerr := loader(ctx)
		if lerr != nil {
			return lerr
		}
		return roundTrip(value, dest)
	}
	return s.cache.FetchJSON(ctx, cacheKey, dest, loader)
}

func (s *Service) Buyer(ctx context.Context, id int64) (Buyer, error) {
	return s.repo.GetBuyer(ctx, id)
}

func (s *Service) Location(ctx context.Context, id int64) (Location, error) {
	return s.repo.GetLocation(ctx, id)
}

func (s *Service) Item(ctx context.Context, id int64) (Item, error) {
	return s.repo.GetItem(ctx, id)
}

func (s *Service) ListBuyers(ctx context.Context) ([]Buyer, error) {
	return s.repo.ListBuyers(ctx)
}

func (s *Service) ListLocations(ctx context.Context) ([]Location, error) {
	return s.repo.ListLocations(ctx)
}

func (s *Service) ListItems(ctx context.Context) ([]Item, error) {
	return s.repo.ListItems(ctx)
}

// UpsertBuyer creates or updates a buyer matched by name.
func (s *Service) UpsertBuyer(ctx context.Context, b Buyer) (Buyer, bool, error) {
	b.applyDefaults()
	if b.Name == "" {
		return Buyer{}, false, ErrNameRequired
	}
	out, created, err := s.repo.UpsertBuyer(ctx, b)
	if err != nil {
		return Buyer{}, false, fmt.Errorf("masterdata: upsert buyer: %w", err)
	}
	s.Invalidate(ctx)
	return out, created, nil
}

// UpsertLocation creates or updates a location matched by name.
func (s *Service) UpsertLocation(ctx context.Context, l Location) (Location, bool, error) {
	l.applyDefaults()
	if l.Name == "" {
		return Location{}, false, ErrNameRequired
	}
	out, created, err := s.repo.UpsertLocation(ctx, l)
	if err != nil {
		return Location{}, false, fmt.Errorf("masterdata: upsert location: %w", err)
	}
	s.Invalidate(ctx)
	return out, created, nil
}

// UpsertItem creates or updates an item matched by name. A non-empty
// category is get-or-created first.
func (s *Service) UpsertItem(ctx context.Context, it Item, category string) (Item, bool, error) {
	it.applyDefaults()
	if it.Name == "" {
		return Item{}, false, ErrNameRequired
	}
	if category = NormaliseName(category); category != "" {
		c, err := s.repo.CategoryByNameOrCreate(ctx, category)
		if err != nil {
			return Item{}, false, fmt.Errorf("masterdata: category %q: %w", category, err)
		}
		it.CategoryID = &c.ID
		it.CategoryName = c.Name
	}
	out, created, err := s.repo.UpsertItem(ctx, it)
	if err != nil {
		return Item{}, false, fmt.Errorf("masterdata: upsert item: %w", err)
	}
	s.Invalidate(ctx)
	return out, created, nil
}

// SaveBuyer is the interactive create path; it records activity.
func (s *Service) SaveBuyer(ctx context.Context, b Buyer) (Buyer, error) {
	out, created, err := s.UpsertBuyer(ctx, b)
	if err != nil {
		return Buyer{}, err
	}
	s.record(ctx, created, "Buyer", out.Name)
	return out, nil
}

func (s *Service) SaveLocation(ctx context.Context, l Location) (Location, error) {
	out, created, err := s.UpsertLocation(ctx, l)
	if err != nil {
		return Location{}, err
	}
	s.record(ctx, created, "Location", out.Name)
	return out, nil
}

func (s *Service) SaveItem(ctx context.Context, it Item, category string) (Item, error) {
	out, created, err := s.UpsertItem(ctx, it, category)
	if err != nil {
		return Item{}, err
	}
	s.record(ctx, created, "Item", out.Name)
	return out, nil
}

// UpdateBuyer edits a buyer by id.
func (s *Service) UpdateBuyer(ctx context.Context, b Buyer) error {
	b.applyDefaults()
	if b.Name == "" {
		return ErrNameRequired
	}
	if err := s.repo.UpdateBuyer(ctx, b); err != nil {
		return err
	}
	s.Invalidate(ctx)
	s.record(ctx, false, "Buyer", b.Name)
	return nil
}

func (s *Service) UpdateLocation(ctx context.Context, l Location) error {
	l.applyDefaults()
	if l.Name == "" {
		return ErrNameRequired
	}
	if err := s.repo.UpdateLocation(ctx, l); err != nil {
		return err
	}
	s.Invalidate(ctx)
	s.record(ctx, false, "Location", l.Name)
	return nil
}

func (s *Service) UpdateItem(ctx context.Context, it Item, category string) error {
	it.applyDefaults()
	if it.Name == "" {
		return ErrNameRequired
	}
	if category = NormaliseName(category); category != "" {
		c, err := s.repo.CategoryByNameOrCreate(ctx, category)
		if err != nil {
			return fmt.Errorf("masterdata: category %q: %w", category, err)
		}
		it.CategoryID = &c.ID
	}
	if err := s.repo.UpdateItem(ctx, it); err != nil {
		return err
	}
	s.Invalidate(ctx)
	s.record(ctx, false, "Item", it.Name)
	return nil
}

// Invalidate drops every cached lookup. Failures only warn; stale entries
// expire with the cache TTL.
func (s *Service) Invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("masterdata cache bump failed", slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, created bool, kind, name string) {
	action := "Edit " + kind
	if created {
		action = "Create " + kind
	}
	shared.RecordActivity(ctx, s.activity, s.logger, action, fmt.Sprintf("%s '%s'", strings.ToLower(kind), name))
}

// IsNotFound reports whether err is a master data miss.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
