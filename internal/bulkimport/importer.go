package bulkimport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/odyssey-erp/clientdoc/internal/bundle"
	"github.com/odyssey-erp/clientdoc/internal/invoices"
	"github.com/odyssey-erp/clientdoc/internal/masterdata"
	"github.com/odyssey-erp/clientdoc/internal/sheets"
	"github.com/odyssey-erp/clientdoc/internal/storage"
)

// Media dirs for imported attachments.
const (
	DocsDir   = "confirmation_docs"
	ImagesDir = "packed_images"
)

// Catalog resolves master data by case-insensitive name.
type Catalog interface {
	FindBuyer(ctx context.Context, name string) (masterdata.Buyer, error)
	FindLocation(ctx context.Context, name string) (masterdata.Location, error)
	FindItem(ctx context.Context, name string) (masterdata.Item, error)
}

// Importer copies spreadsheet paths into media storage.
type Importer interface {
	ImportLocal(dir, src string) (string, error)
}

// Finalizer bundles an imported invoice.
type Finalizer interface {
	FinalizeImported(ctx context.Context, invoiceID int64) (bundle.Result, error)
}

// GroupObserver counts group outcomes.
type GroupObserver interface {
	ObserveImportGroup(outcome string)
}

// InvoiceImporterConfig wires an InvoiceImporter.
type InvoiceImporterConfig struct {
	Repo      invoices.Repository
	Invoices  *invoices.Service
	Catalog   Catalog
	Files     Importer
	Finalizer Finalizer
	Observer  GroupObserver
	Logger    *slog.Logger
}

// InvoiceImporter applies grouped invoice rows.
type InvoiceImporter struct {
	repo      invoices.Repository
	invoices  *invoices.Service
	catalog   Catalog
	files     Importer
	finalizer Finalizer
	observer  GroupObserver
	logger    *slog.Logger
}

// NewInvoiceImporter constructs an InvoiceImporter.
func NewInvoiceImporter(cfg InvoiceImporterConfig) *InvoiceImporter {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &InvoiceImporter{
		repo:      cfg.Repo,
		invoices:  cfg.Invoices,
		catalog:   cfg.Catalog,
		files:     cfg.Files,
		finalizer: cfg.Finalizer,
		observer:  cfg.Observer,
		logger:    cfg.Logger,
	}
}

type locationMissingError struct{ name string }

func (e *locationMissingError) Error() string {
	return fmt.Sprintf("Location '%s' not found", e.name)
}

// groupOutcome is what one committed group produced.
type groupOutcome struct {
	invoiceID int64
	created   bool
	number    string
}

// Import groups the rows and applies each group in its own transaction.
// A failing group is logged and never stops the rest of the batch.
func (im *InvoiceImporter) Import(ctx context.Context, rows []sheets.Row) Result {
	groups, res := GroupRows(rows)
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			res.logf("Rows %s: Group Error - %v", g.Indices(), err)
			res.Errors++
			continue
		}
		var lines []string
		out, err := im.importGroup(ctx, g, &lines)
		res.Log = append(res.Log, lines...)
		if err != nil {
			var missing *locationMissingError
			if errors.As(err, &missing) {
				res.logf("Rows %s: Failed - %s", g.Indices(), missing.Error())
			} else {
				res.logf("Rows %s: Group Error - %v", g.Indices(), err)
				im.logger.Error("bulk import group failed", slog.String("group", g.Key), slog.Any("error", err))
			}
			res.Errors++
			im.observe("failed")
			continue
		}
		if out.created {
			res.Created++
			im.observe("created")
		} else {
			res.Updated++
			im.observe("updated")
		}

		if g.WantsPDF() && im.finalizer != nil {
			if _, err := im.finalizer.FinalizeImported(ctx, out.invoiceID); err != nil {
				res.logf("Invoice #%d: PDF Failed (%v)", out.invoiceID, err)
				im.logger.Warn("bulk bundle failed", slog.Int64("invoice_id", out.invoiceID), slog.Any("error", err))
			} else {
				res.logf("Invoice #%d: PDF Generated (Bundled)", out.invoiceID)
			}
		}
	}
	return res
}

func (im *InvoiceImporter) observe(outcome string) {
	if im.observer != nil {
		im.observer.ObserveImportGroup(outcome)
	}
}

func (im *InvoiceImporter) importGroup(ctx context.Context, g Group, lines *[]string) (groupOutcome, error) {
	logf := func(format string, args ...any) { *lines = append(*lines, fmt.Sprintf(format, args...)) }
	first := g.first()

	loc, err := im.catalog.FindLocation(ctx, first.Location)
	if errors.Is(err, masterdata.ErrNotFound) {
		return groupOutcome{}, &locationMissingError{name: first.Location}
	}
	if err != nil {
		return groupOutcome{}, fmt.Errorf("find location: %w", err)
	}
	var buyerID *int64
	if first.Buyer != "" {
		buyer, err := im.catalog.FindBuyer(ctx, first.Buyer)
		switch {
		case err == nil:
			buyerID = &buyer.ID
		case errors.Is(err, masterdata.ErrNotFound):
			logf("Row %d: Warning - Buyer '%s' not found", first.Index, first.Buyer)
		default:
			return groupOutcome{}, fmt.Errorf("find buyer: %w", err)
		}
	}

	// Items are resolved before the transaction; lookups go through the cache.
	items := make(map[int]masterdata.Item, len(g.Rows))
	for _, r := range g.Rows {
		item, err := im.catalog.FindItem(ctx, r.Item)
		switch {
		case err == nil:
			items[r.Index] = item
		case errors.Is(err, masterdata.ErrNotFound):
			logf("Row %d: Warning - Item '%s' not found. Skipped.", r.Index, r.Item)
		default:
			return groupOutcome{}, fmt.Errorf("find item %q: %w", r.Item, err)
		}
	}

	var out groupOutcome
	err = im.repo.WithTx(ctx, func(ctx context.Context, tx invoices.TxRepository) error {
		inv, created, err := im.upsertInvoice(ctx, tx, first, loc.ID, buyerID)
		if err != nil {
			return err
		}
		out = groupOutcome{invoiceID: inv.ID, created: created, number: inv.DisplayNumber()}

		for _, r := range g.Rows {
			item, ok := items[r.Index]
			if !ok {
				continue
			}
			if err := im.upsertLine(ctx, tx, inv.ID, item, r); err != nil {
				return fmt.Errorf("row %d: %w", r.Index, err)
			}
		}

		status := inv.Status
		if first.DCNotes != "" || first.DeliveryNote != "" || first.DeliveryNoteDate != nil {
			dc, err := tx.GetOrCreateChallan(ctx, inv.ID)
			if err != nil {
				return fmt.Errorf("get challan: %w", err)
			}
			if first.DCNotes != "" {
				notes := first.DCNotes
				dc.Notes = &notes
			}
			if err := tx.SaveChallan(ctx, dc); err != nil {
				return fmt.Errorf("save challan: %w", err)
			}
			status = invoices.AfterChallanSaved(status)
		}
		if first.Transport != "" {
			amount, ok := rate(first.Transport)
			if !ok || amount.IsNegative() {
				logf("Row %d: Warning - Invalid Transport Charge (%q)", first.Index, first.Transport)
			} else {
				tc, err := tx.GetOrCreateTransport(ctx, inv.ID)
				if err != nil {
					return fmt.Errorf("get transport: %w", err)
				}
				tc.Charges = amount.Round(2)
				tc.Description = optional(first.TransportDesc)
				if err := tx.SaveTransport(ctx, tc); err != nil {
					return fmt.Errorf("save transport: %w", err)
				}
				status = invoices.AfterTransportSaved(status)
			}
		}
		if status != inv.Status {
			if err := tx.UpdateStatus(ctx, inv.ID, status); err != nil {
				return fmt.Errorf("update status: %w", err)
			}
		}

		// Totals only after the transport charge is attached.
		if _, err := im.invoices.RecalculateTx(ctx, tx, inv.ID); err != nil {
			return fmt.Errorf("recalculate: %w", err)
		}
		return im.attach(ctx, tx, inv.ID, first, logf)
	})
	if err != nil {
		return groupOutcome{}, err
	}
	// Only committed groups are reported as written.
	if out.created {
		logf("Rows %s: Created Invoice #%d", g.Indices(), out.invoiceID)
	} else {
		logf("Rows %s: Updated Invoice %s", g.Indices(), out.number)
	}
	return out, nil
}

func (im *InvoiceImporter) upsertInvoice(ctx context.Context, tx invoices.TxRepository, first invoiceRow, locationID int64, buyerID *int64) (invoices.Invoice, bool, error) {
	if first.Tally != "" {
		inv, err := tx.FindByTallyNumber(ctx, first.Tally)
		switch {
		case err == nil:
			inv.LocationID = locationID
			if buyerID != nil {
				inv.BuyerID = buyerID
			}
			if first.Date != nil {
				inv.Date = *first.Date
			}
			inv.Header = merge(inv.Header, first.header(false))
			if err := tx.Update(ctx, inv); err != nil {
				return invoices.Invoice{}, false, fmt.Errorf("update invoice: %w", err)
			}
			return inv, false, nil
		case !errors.Is(err, invoices.ErrNotFound):
			return invoices.Invoice{}, false, fmt.Errorf("find invoice: %w", err)
		}
	}

	date := time.Now()
	if first.Date != nil {
		date = *first.Date
	}
	inv := invoices.Invoice{
		TallyNumber: optional(first.Tally),
		BuyerID:     buyerID,
		LocationID:  locationID,
		Date:        date,
		Status:      invoices.StatusDraft,
		Header:      first.header(true),
	}
	id, err := tx.Create(ctx, inv)
	if err != nil {
		return invoices.Invoice{}, false, fmt.Errorf("create invoice: %w", err)
	}
	if err := tx.SetAppNumber(ctx, id, invoices.AppNumber(id)); err != nil {
		return invoices.Invoice{}, false, fmt.Errorf("set app number: %w", err)
	}
	inv.ID = id
	return inv, true, nil
}

// upsertLine collapses legacy duplicates for the item, then writes the
// single authoritative line. Later rows for the same item win.
func (im *InvoiceImporter) upsertLine(ctx context.Context, tx invoices.TxRepository, invoiceID int64, item masterdata.Item, r invoiceRow) error {
	existing, err := tx.LinesForItem(ctx, invoiceID, item.ID)
	if err != nil {
		return fmt.Errorf("lines for item: %w", err)
	}
	if len(existing) > 1 {
		if _, err := tx.DeleteLinesForItem(ctx, invoiceID, item.ID); err != nil {
			return fmt.Errorf("collapse duplicates: %w", err)
		}
	}
	in := invoices.LineInput{
		ItemID:      item.ID,
		Quantity:    quantity(r.Quantity),
		Description: optional(r.Description),
	}
	if price, ok := rate(r.UnitRate); ok {
		in.Price = &price
	}
	_, _, err = tx.UpsertLine(ctx, invoices.BuildLine(invoiceID, item, in))
	return err
}

func (im *InvoiceImporter) attach(ctx context.Context, tx invoices.TxRepository, invoiceID int64, first invoiceRow, logf func(string, ...any)) error {
	c, err := tx.GetOrRestoreConfirmation(ctx, invoiceID)
	if err != nil {
		return fmt.Errorf("get confirmation: %w", err)
	}
	for _, doc := range first.Docs {
		ref, ok := im.copyIn(DocsDir, doc.Path, "File", logf)
		if !ok {
			continue
		}
		if err := tx.SetConfirmationFile(ctx, c.ID, doc.Slot, &ref); err != nil {
			return fmt.Errorf("set %s file: %w", doc.Slot, err)
		}
	}

	known := make(map[string]bool, len(c.Images))
	for _, img := range c.Images {
		known[img.Image] = true
	}
	position := len(c.Images)
	for _, path := range first.Images {
		ref, ok := im.copyIn(ImagesDir, path, "Image", logf)
		if !ok || known[ref] {
			continue
		}
		if _, err := tx.AddPackedImage(ctx, invoices.PackedImage{ConfirmationID: c.ID, Image: ref, Position: position}); err != nil {
			return fmt.Errorf("add packed image: %w", err)
		}
		known[ref] = true
		position++
	}
	return nil
}

func (im *InvoiceImporter) copyIn(dir, path, label string, logf func(string, ...any)) (string, bool) {
	if im.files == nil {
		logf("%s not loaded (no media storage): %s", label, path)
		return "", false
	}
	ref, err := im.files.ImportLocal(dir, path)
	switch {
	case errors.Is(err, storage.ErrSourceMissing):
		logf("%s not found: %s", label, path)
		return "", false
	case err != nil:
		logf("Failed to load %s %s: %v", strings.ToLower(label), path, err)
		return "", false
	}
	return ref, true
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
