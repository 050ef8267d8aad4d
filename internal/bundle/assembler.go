// Package bundle assembles the per-invoice confirmation PDF: the ordered
// document slots followed by the packed-goods image pages.
package bundle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// SlotKind names one logical document in a bundle.
type SlotKind string

const (
	SlotInvoice   SlotKind = "invoice"
	SlotChallan   SlotKind = "dc"
	SlotTransport SlotKind = "transport"
	SlotPO        SlotKind = "po"
	SlotEmail     SlotKind = "email"
)

var (
	// DefaultOrder is used when a finalize request names no order.
	DefaultOrder = []SlotKind{SlotInvoice, SlotChallan, SlotTransport, SlotPO, SlotEmail}
	// BulkOrder is the fixed order used by spreadsheet imports.
	BulkOrder = []SlotKind{SlotInvoice, SlotChallan, SlotTransport, SlotEmail, SlotPO}
)

// ErrEmptyBundle reports that no slot and no image produced a page.
var ErrEmptyBundle = errors.New("bundle: nothing to assemble")

var errEmptySource = errors.New("empty document")

// ParseOrder reads a comma separated slot list. Unknown tokens are ignored
// and repeated slots keep their first position. An empty value yields
// DefaultOrder.
func ParseOrder(raw string) []SlotKind {
	if strings.TrimSpace(raw) == "" {
		return append([]SlotKind(nil), DefaultOrder...)
	}
	seen := make(map[SlotKind]bool, len(DefaultOrder))
	out := make([]SlotKind, 0, len(DefaultOrder))
	for _, tok := range strings.Split(raw, ",") {
		slot := SlotKind(strings.ToLower(strings.TrimSpace(tok)))
		switch slot {
		case SlotInvoice, SlotChallan, SlotTransport, SlotPO, SlotEmail:
		default:
			continue
		}
		if seen[slot] {
			continue
		}
		seen[slot] = true
		out = append(out, slot)
	}
	return out
}

// Source resolves one slot to PDF bytes at assembly time.
type Source struct {
	Slot SlotKind
	Load func(ctx context.Context) ([]byte, error)
}

// Skip records why a slot was left out of the bundle.
type Skip struct {
	Slot   SlotKind `json:"slot"`
	Reason string   `json:"reason"`
}

// Result is an assembled bundle.
type Result struct {
	PDF      []byte     `json:"-"`
	Included []SlotKind `json:"included"`
	Images   bool       `json:"images"`
	Skipped  []Skip     `json:"skipped,omitempty"`
}

// Assembler validates and merges PDF parts.
type Assembler struct {
	conf *model.Configuration
}

var disableConfigDir sync.Once

// NewAssembler builds an assembler with relaxed validation so scanned or
// hand-exported uploads still merge.
func NewAssembler() *Assembler {
	disableConfigDir.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &Assembler{conf: conf}
}

// Valid reports whether data parses as a PDF.
func (a *Assembler) Valid(data []byte) error {
	if len(data) == 0 {
		return errEmptySource
	}
	return api.Validate(bytes.NewReader(data), a.conf)
}

// Assemble resolves sources in order, skipping any that fail to load or
// validate, then appends gallery last. gallery may be nil.
func (a *Assembler) Assemble(ctx context.Context, sources []Source, gallery []byte) (Result, error) {
	var (
		res   Result
		parts [][]byte
	)
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		data, err := src.Load(ctx)
		if err == nil {
			err = a.Valid(data)
		}
		if err != nil {
			res.Skipped = append(res.Skipped, Skip{Slot: src.Slot, Reason: err.Error()})
			continue
		}
		parts = append(parts, data)
		res.Included = append(res.Included, src.Slot)
	}
	if len(gallery) > 0 {
		parts = append(parts, gallery)
		res.Images = true
	}
	if len(parts) == 0 {
		return res, ErrEmptyBundle
	}
	merged, err := a.merge(parts)
	if err != nil {
		return res, err
	}
	res.PDF = merged
	return res, nil
}

func (a *Assembler) merge(parts [][]byte) ([]byte, error) {
	if len(parts) == 1 {
		return parts[0], nil
	}
	readers := make([]io.ReadSeeker, len(parts))
	for i, p := range parts {
		readers[i] = bytes.NewReader(p)
	}
	out := &bytes.Buffer{}
	if err := api.MergeRaw(readers, out, false, a.conf); err != nil {
		return nil, fmt.Errorf("bundle: merge: %w", err)
	}
	return out.Bytes(), nil
}
