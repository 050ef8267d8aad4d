// Package trash moves records in and out of the soft-delete bin and purges
// them for good.
package trash

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind names a record type that can be trashed.
type Kind string

const (
	KindInvoice      Kind = "invoice"
	KindLocation     Kind = "location"
	KindItem         Kind = "item"
	KindChallan      Kind = "dc"
	KindTransport    Kind = "transport"
	KindConfirmation Kind = "confirmation"
	KindBuyer        Kind = "buyer"
)

var (
	ErrNotFound    = errors.New("trash: record not found")
	ErrUnknownKind = errors.New("trash: unknown record kind")
	ErrConflict    = errors.New("trash: restoring would duplicate a live record")
)

// Kinds lists every trashable kind.
var Kinds = []Kind{KindInvoice, KindLocation, KindItem, KindChallan, KindTransport, KindConfirmation, KindBuyer}

// ParseKind validates a kind tag.
func ParseKind(raw string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, raw)
}

// Master reports whether the kind is master data behind the lookup cache.
func (k Kind) Master() bool {
	switch k {
	case KindLocation, KindItem, KindBuyer:
		return true
	}
	return false
}

// table maps a kind onto its backing table and label column.
func (k Kind) table() (name, label string) {
	switch k {
	case KindInvoice:
		return "invoices", "COALESCE(NULLIF(tally_number, ''), app_number, id::text)"
	case KindLocation:
		return "store_locations", "name"
	case KindItem:
		return "items", "name"
	case KindChallan:
		return "delivery_challans", "invoice_id::text"
	case KindTransport:
		return "transport_charges", "invoice_id::text"
	case KindConfirmation:
		return "confirmation_documents", "invoice_id::text"
	case KindBuyer:
		return "buyers", "name"
	}
	return "", ""
}

// Entry is one trashed record.
type Entry struct {
	Kind      Kind      `json:"kind"`
	ID        int64     `json:"id"`
	Label     string    `json:"label"`
	DeletedAt time.Time `json:"deleted_at"`
}

// Bin is the content of the trash view.
type Bin struct {
	Invoices  []Entry `json:"invoices"`
	Locations []Entry `json:"locations"`
	Items     []Entry `json:"items"`
}

// Repository flips and clears deleted_at by kind. Each call reports
// ErrNotFound when no row in the required state matches.
type Repository interface {
	SoftDelete(ctx context.Context, kind Kind, id int64) error
	Restore(ctx context.Context, kind Kind, id int64) error
	Purge(ctx context.Context, kind Kind, id int64) error
	Trashed(ctx context.Context, kind Kind) ([]Entry, error)
}
