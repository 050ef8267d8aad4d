package bundle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/odyssey-erp/clientdoc/internal/invoices"
	"github.com/odyssey-erp/clientdoc/internal/render"
)

// DocumentRenderer produces a PDF for one printable document kind.
type DocumentRenderer interface {
	Render(ctx context.Context, kind render.DocKind, doc invoices.Document, company render.CompanyProfile) ([]byte, error)
}

// Store reads uploads and writes the finished bundle.
type Store interface {
	FileReader
	WriteFile(ref string, data []byte) error
}

// Observer receives bundle outcomes.
type Observer interface {
	ObserveBundle(outcome string, elapsed time.Duration)
}

// Finalizer builds, stores and links the confirmation bundle of an invoice.
type Finalizer struct {
	invoices  *invoices.Service
	renderer  DocumentRenderer
	store     Store
	assembler *Assembler
	company   render.CompanyProfile
	observer  Observer
	logger    *slog.Logger
}

// NewFinalizer wires a Finalizer. observer may be nil.
func NewFinalizer(svc *invoices.Service, renderer DocumentRenderer, store Store, company render.CompanyProfile, observer Observer, logger *slog.Logger) *Finalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Finalizer{
		invoices:  svc,
		renderer:  renderer,
		store:     store,
		assembler: NewAssembler(),
		company:   company,
		observer:  observer,
		logger:    logger,
	}
}

// Company returns the profile printed on rendered documents.
func (f *Finalizer) Company() render.CompanyProfile { return f.company }

// BundleRef is the storage reference of an invoice's bundle. The identifier
// is flattened to one path element, so "TS/23-24/001" becomes "TS-23-24-001".
func BundleRef(inv invoices.Invoice) string {
	return fmt.Sprintf("confirmations/confirmation_invoice_%s.pdf", fileSafe(inv.DisplayNumber()))
}

func fileSafe(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-', r == '_', r == '.':
			return r
		}
		return '-'
	}, strings.TrimSpace(id))
}

// Finalize is the interactive path: the confirmation stage must be reachable.
func (f *Finalizer) Finalize(ctx context.Context, invoiceID int64, order []SlotKind) (Result, error) {
	view, err := f.invoices.OpenConfirmationStage(ctx, invoiceID)
	if err != nil {
		return Result{}, err
	}
	return f.build(ctx, invoiceID, view.Confirmation, order)
}

// FinalizeImported is the bulk path. It does not check the stage guard.
func (f *Finalizer) FinalizeImported(ctx context.Context, invoiceID int64) (Result, error) {
	c, err := f.invoices.Confirmation(ctx, invoiceID)
	if err != nil && !errors.Is(err, invoices.ErrNotFound) {
		return Result{}, err
	}
	return f.build(ctx, invoiceID, c, BulkOrder)
}

func (f *Finalizer) build(ctx context.Context, invoiceID int64, c invoices.Confirmation, order []SlotKind) (res Result, err error) {
	start := time.Now()
	defer func() {
		if f.observer == nil {
			return
		}
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		f.observer.ObserveBundle(outcome, time.Since(start))
	}()

	if _, err := f.invoices.Recalculate(ctx, invoiceID); err != nil {
		return Result{}, fmt.Errorf("bundle: recalculate: %w", err)
	}
	doc, err := f.invoices.Document(ctx, invoiceID)
	if err != nil {
		return Result{}, fmt.Errorf("bundle: load document: %w", err)
	}
	gallery, err := ComposeGallery(c.Images, f.store)
	if err != nil {
		return Result{}, err
	}
	res, err = f.assembler.Assemble(ctx, f.sources(doc, c, order), gallery)
	if err != nil {
		return res, err
	}
	for _, skip := range res.Skipped {
		f.logger.Info("bundle slot skipped",
			slog.Int64("invoice_id", invoiceID),
			slog.String("slot", string(skip.Slot)),
			slog.String("reason", skip.Reason))
	}

	ref := BundleRef(doc.Invoice)
	if err := f.store.WriteFile(ref, res.PDF); err != nil {
		return res, fmt.Errorf("bundle: write %s: %w", ref, err)
	}
	if err := f.invoices.MarkFinalized(ctx, invoiceID, ref); err != nil {
		return res, err
	}
	return res, nil
}

// sources resolves each slot. Uploaded invoice and DC files override the
// rendered document when they validate; transport is always rendered.
func (f *Finalizer) sources(doc invoices.Document, c invoices.Confirmation, order []SlotKind) []Source {
	out := make([]Source, 0, len(order))
	for _, slot := range order {
		switch slot {
		case SlotInvoice:
			out = append(out, f.override(slot, c.UploadedInvoice, f.rendered(render.KindInvoice, doc)))
		case SlotChallan:
			var fallback func(context.Context) ([]byte, error)
			if doc.Invoice.DeliveryChallan != nil {
				fallback = f.rendered(render.KindChallan, doc)
			}
			out = append(out, f.override(slot, c.UploadedDC, fallback))
		case SlotTransport:
			load := missing("no transport charges recorded")
			if doc.Invoice.Transport != nil {
				load = f.rendered(render.KindTransport, doc)
			}
			out = append(out, Source{Slot: slot, Load: load})
		case SlotPO:
			out = append(out, f.override(slot, c.POFile, nil))
		case SlotEmail:
			out = append(out, f.override(slot, c.ApprovalEmailFile, nil))
		}
	}
	return out
}

func (f *Finalizer) rendered(kind render.DocKind, doc invoices.Document) func(context.Context) ([]byte, error) {
	return func(ctx context.Context) ([]byte, error) {
		return f.renderer.Render(ctx, kind, doc, f.company)
	}
}

func (f *Finalizer) override(slot SlotKind, ref *string, fallback func(context.Context) ([]byte, error)) Source {
	return Source{Slot: slot, Load: func(ctx context.Context) ([]byte, error) {
		if ref != nil && *ref != "" {
			data, err := f.store.ReadFile(*ref)
			if err == nil {
				err = f.assembler.Valid(data)
			}
			if err == nil {
				return data, nil
			}
			if fallback == nil {
				return nil, fmt.Errorf("uploaded %s unusable: %w", slot, err)
			}
			f.logger.Warn("uploaded file unusable, rendering instead",
				slog.String("slot", string(slot)), slog.String("ref", *ref), slog.Any("error", err))
		}
		if fallback == nil {
			return nil, errors.New("nothing uploaded")
		}
		return fallback(ctx)
	}}
}

func missing(reason string) func(context.Context) ([]byte, error) {
	return func(context.Context) ([]byte, error) { return nil, errors.New(reason) }
}
