// Package bulkimport turns uploaded spreadsheets into master data and
// invoices, one isolated transaction per logical invoice.
package bulkimport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/odyssey-erp/clientdoc/internal/sheets"
)

// Status tracks an upload record.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusProcessed Status = "Processed"
	StatusFailed    Status = "Failed"
)

var (
	ErrNotFound        = errors.New("bulkimport: upload not found")
	ErrUnsupportedType = errors.New("bulkimport: please upload a valid .xlsx file")
	ErrAlreadyRunning  = errors.New("bulkimport: upload is already being processed")
)

// Upload is the audit record of one uploaded workbook.
type Upload struct {
	ID         int64       `json:"id"`
	Type       sheets.Kind `json:"upload_type"`
	File       string      `json:"file"`
	Log        string      `json:"log"`
	Status     Status      `json:"status"`
	Created    int         `json:"created"`
	Updated    int         `json:"updated"`
	Errors     int         `json:"errors"`
	UploadedAt time.Time   `json:"uploaded_at"`
}

// Result aggregates one processing run.
type Result struct {
	Created int
	Updated int
	Errors  int
	Log     []string
}

func (r *Result) logf(format string, args ...any) {
	r.Log = append(r.Log, fmt.Sprintf(format, args...))
}

// Repository persists upload records.
type Repository interface {
	Create(ctx context.Context, up Upload) (Upload, error)
	Get(ctx context.Context, id int64) (Upload, error)
	List(ctx context.Context, limit int) ([]Upload, error)
	Save(ctx context.Context, up Upload) error
}
