package bulkimport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/odyssey-erp/clientdoc/internal/shared"
	"github.com/odyssey-erp/clientdoc/internal/sheets"
)

// UploadsDir holds the stored workbooks.
const UploadsDir = "bulk_uploads"

// Store keeps uploaded workbooks.
type Store interface {
	Save(dir, ext string, r io.Reader) (string, error)
	ReadFile(ref string) ([]byte, error)
}

// ServiceConfig wires a Service.
type ServiceConfig struct {
	Repo     Repository
	Files    Store
	Invoices *InvoiceImporter
	Masters  MasterWriter
	Activity shared.ActivityRecorder
	Logger   *slog.Logger
}

// Service stores uploads and processes them.
type Service struct {
	repo     Repository
	files    Store
	invoices *InvoiceImporter
	masters  MasterWriter
	activity shared.ActivityRecorder
	logger   *slog.Logger
}

// NewService constructs the bulk import service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		repo:     cfg.Repo,
		files:    cfg.Files,
		invoices: cfg.Invoices,
		masters:  cfg.Masters,
		activity: cfg.Activity,
		logger:   cfg.Logger,
	}
}

// Upload stores the workbook and records a pending upload.
func (s *Service) Upload(ctx context.Context, filename string, kind sheets.Kind, r io.Reader) (Upload, error) {
	if !strings.EqualFold(filepath.Ext(filename), ".xlsx") {
		return Upload{}, ErrUnsupportedType
	}
	ref, err := s.files.Save(UploadsDir, ".xlsx", r)
	if err != nil {
		return Upload{}, fmt.Errorf("bulkimport: store upload: %w", err)
	}
	up, err := s.repo.Create(ctx, Upload{
		Type:   kind,
		File:   ref,
		Log:    "Type: " + kind.Title(),
		Status: StatusPending,
	})
	if err != nil {
		return Upload{}, fmt.Errorf("bulkimport: create upload: %w", err)
	}
	return up, nil
}

// Get returns an upload record.
func (s *Service) Get(ctx context.Context, id int64) (Upload, error) {
	return s.repo.Get(ctx, id)
}

// List returns the latest uploads.
func (s *Service) List(ctx context.Context, limit int) ([]Upload, error) {
	return s.repo.List(ctx, limit)
}

// Process runs the upload and persists its log, counts and status. The
// record is saved even when the run fails.
func (s *Service) Process(ctx context.Context, id int64) (Upload, error) {
	up, err := s.repo.Get(ctx, id)
	if err != nil {
		return Upload{}, err
	}
	header := "Type: " + up.Type.Title()

	res, runErr := s.run(ctx, up)
	up.Created, up.Updated, up.Errors = res.Created, res.Updated, res.Errors
	up.Log = strings.Join(append([]string{header}, res.Log...), "\n")
	up.Status = StatusProcessed
	if runErr != nil {
		up.Status = StatusFailed
		up.Log += fmt.Sprintf("\nError processing file: %v", runErr)
		s.logger.Error("bulk upload failed", slog.Int64("upload_id", id), slog.Any("error", runErr))
	}
	if err := s.repo.Save(ctx, up); err != nil {
		return up, fmt.Errorf("bulkimport: save upload: %w", err)
	}

	shared.RecordActivity(ctx, s.activity, s.logger, "Bulk Upload",
		fmt.Sprintf("%s upload #%d: %d created, %d updated, %d errors", up.Type.Title(), up.ID, up.Created, up.Updated, up.Errors))
	s.logger.Info("bulk upload processed",
		slog.Int64("upload_id", id),
		slog.String("type", string(up.Type)),
		slog.Int("created", up.Created),
		slog.Int("updated", up.Updated),
		slog.Int("errors", up.Errors))
	return up, runErr
}

func (s *Service) run(ctx context.Context, up Upload) (Result, error) {
	data, err := s.files.ReadFile(up.File)
	if err != nil {
		return Result{}, fmt.Errorf("read upload: %w", err)
	}
	rows, err := sheets.ReadRows(bytes.NewReader(data))
	if err != nil {
		return Result{}, err
	}
	switch up.Type {
	case sheets.KindInvoice:
		if s.invoices == nil {
			return Result{}, fmt.Errorf("invoice importer not configured")
		}
		return s.invoices.Import(ctx, rows), nil
	default:
		return ImportMasters(ctx, s.masters, up.Type, rows)
	}
}
