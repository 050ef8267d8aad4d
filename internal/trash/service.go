package trash

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/clientdoc/internal/shared"
)

// Invalidator drops cached master-data lookups.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// Service applies trash operations and records them in the activity feed.
type Service struct {
	repo     Repository
	cache    Invalidator
	activity shared.ActivityRecorder
	logger   *slog.Logger
}

// NewService constructs the trash service. cache and activity may be nil.
func NewService(repo Repository, cache Invalidator, activity shared.ActivityRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, activity: activity, logger: logger}
}

// Delete moves a live record to the trash.
func (s *Service) Delete(ctx context.Context, kind Kind, id int64) error {
	return s.apply(ctx, kind, id, s.repo.SoftDelete, "Delete", "Moved %s #%d to trash")
}

// Restore brings a trashed record back.
func (s *Service) Restore(ctx context.Context, kind Kind, id int64) error {
	return s.apply(ctx, kind, id, s.repo.Restore, "Restore", "Restored %s #%d")
}

// HardDelete permanently removes a trashed record.
func (s *Service) HardDelete(ctx context.Context, kind Kind, id int64) error {
	return s.apply(ctx, kind, id, s.repo.Purge, "Permanent Delete", "Permanently deleted %s #%d")
}

func (s *Service) apply(ctx context.Context, kind Kind, id int64, op func(context.Context, Kind, int64) error, action, details string) error {
	if _, err := ParseKind(string(kind)); err != nil {
		return err
	}
	if err := op(ctx, kind, id); err != nil {
		return err
	}
	if kind.Master() && s.cache != nil {
		s.cache.Invalidate(ctx)
	}
	shared.RecordActivity(ctx, s.activity, s.logger, action, fmt.Sprintf(details, kind, id))
	s.logger.Info("trash "+action, slog.String("kind", string(kind)), slog.Int64("id", id))
	return nil
}

// List returns the trashed invoices, locations and items.
func (s *Service) List(ctx context.Context) (Bin, error) {
	var (
		bin Bin
		err error
	)
	if bin.Invoices, err = s.repo.Trashed(ctx, KindInvoice); err != nil {
		return Bin{}, fmt.Errorf("trash: list invoices: %w", err)
	}
	if bin.Locations, err = s.repo.Trashed(ctx, KindLocation); err != nil {
		return Bin{}, fmt.Errorf("trash: list locations: %w", err)
	}
	if bin.Items, err = s.repo.Trashed(ctx, KindItem); err != nil {
		return Bin{}, fmt.Errorf("trash: list items: %w", err)
	}
	return bin, nil
}
