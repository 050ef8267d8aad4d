package invoices

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/odyssey-erp/clientdoc/internal/masterdata"
	"github.com/odyssey-erp/clientdoc/internal/shared"
)

// FileRemover deletes stored media by reference.
type FileRemover interface {
	Remove(ref string) error
}

// ServiceConfig carries optional collaborators.
type ServiceConfig struct {
	CompanyStateCode string
	Logger           *slog.Logger
	Files            FileRemover
	Feed             shared.ActivityFeed
}

// Service drives the invoice workflow.
type Service struct {
	repo         Repository
	catalog      Catalog
	activity     shared.ActivityRecorder
	feed         shared.ActivityFeed
	files        FileRemover
	companyState string
	logger       *slog.Logger
}

// NewService creates a new service.
func NewService(repo Repository, catalog Catalog, activity shared.ActivityRecorder, cfg ServiceConfig) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.CompanyStateCode == "" {
		cfg.CompanyStateCode = "29"
	}
	return &Service{
		repo:         repo,
		catalog:      catalog,
		activity:     activity,
		feed:         cfg.Feed,
		files:        cfg.Files,
		companyState: cfg.CompanyStateCode,
		logger:       cfg.Logger,
	}
}

// AppNumber formats the app-generated invoice number.
func AppNumber(id int64) string {
	return fmt.Sprintf("Tsol-%05d", id)
}

// CompanyStateCode is the state code invoices are issued from.
func (s *Service) CompanyStateCode() string { return s.companyState }

// Create creates a draft invoice with its lines in one transaction. Any
// invalid line rolls the whole invoice back.
func (s *Service) Create(ctx context.Context, in CreateInvoiceInput) (Invoice, error) {
	if err := s.checkParties(ctx, in.LocationID, in.BuyerID); err != nil {
		return Invoice{}, err
	}

	var (
		id    int64
		count int
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		date := time.Now()
		if in.Date != nil {
			date = *in.Date
		}
		inv := Invoice{
			TallyNumber: trimmed(in.TallyNumber),
			BuyerID:     in.BuyerID,
			LocationID:  in.LocationID,
			Date:        date,
			Status:      StatusDraft,
		}
		var err error
		id, err = tx.Create(ctx, inv)
		if err != nil {
			return fmt.Errorf("create invoice: %w", err)
		}
		if err := tx.SetAppNumber(ctx, id, AppNumber(id)); err != nil {
			return fmt.Errorf("set app number: %w", err)
		}
		count, err = s.applyLines(ctx, tx, id, in.Lines, false)
		if err != nil {
			return err
		}
		_, err = s.RecalculateTx(ctx, tx, id)
		return err
	})
	if err != nil {
		return Invoice{}, err
	}

	shared.RecordActivity(ctx, s.activity, s.logger, "Create Invoice", fmt.Sprintf("Created Invoice %d with %d items", id, count))
	return s.repo.Get(ctx, id)
}

// Update replaces header fields and lines. Lines not present in the input,
// or flagged for deletion, are removed.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInvoiceInput) (Invoice, error) {
	if err := s.checkParties(ctx, in.LocationID, in.BuyerID); err != nil {
		return Invoice{}, err
	}

	var display string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		inv.LocationID = in.LocationID
		inv.BuyerID = in.BuyerID
		inv.TallyNumber = trimmed(in.TallyNumber)
		if in.Date != nil {
			inv.Date = *in.Date
		}
		inv.PlaceOfSupply = trimmed(in.PlaceOfSupply)
		inv.Header = in.Header
		if err := tx.Update(ctx, inv); err != nil {
			return fmt.Errorf("update invoice: %w", err)
		}
		if _, err := s.applyLines(ctx, tx, id, in.Lines, true); err != nil {
			return err
		}
		display = inv.DisplayNumber()
		_, err = s.RecalculateTx(ctx, tx, id)
		return err
	})
	if err != nil {
		return Invoice{}, err
	}

	shared.RecordActivity(ctx, s.activity, s.logger, "Edit Invoice", fmt.Sprintf("Updated Invoice %s details", display))
	return s.repo.Get(ctx, id)
}

func (s *Service) checkParties(ctx context.Context, locationID int64, buyerID *int64) error {
	if _, err := s.catalog.Location(ctx, locationID); err != nil {
		if errors.Is(err, masterdata.ErrNotFound) {
			return ErrLocationNotFound
		}
		return fmt.Errorf("get location: %w", err)
	}
	if buyerID != nil {
		if _, err := s.catalog.Buyer(ctx, *buyerID); err != nil {
			if errors.Is(err, masterdata.ErrNotFound) {
				return ErrBuyerNotFound
			}
			return fmt.Errorf("get buyer: %w", err)
		}
	}
	return nil
}

// applyLines upserts one line per item. With replace set, lines whose item
// is absent from inputs are deleted.
func (s *Service) applyLines(ctx context.Context, tx TxRepository, invoiceID int64, inputs []LineInput, replace bool) (int, error) {
	kept := make(map[int64]bool, len(inputs))
	for i, in := range inputs {
		if in.Delete {
			continue
		}
		if in.ItemID <= 0 {
			return 0, fmt.Errorf("%w: line %d: item required", ErrInvalidLine, i+1)
		}
		if kept[in.ItemID] {
			return 0, fmt.Errorf("%w: line %d: item %d listed twice", ErrInvalidLine, i+1, in.ItemID)
		}
		if in.Quantity < 0 || (in.QuantityBilled != nil && *in.QuantityBilled < 0) || (in.QuantityShipped != nil && *in.QuantityShipped < 0) {
			return 0, fmt.Errorf("%w: line %d: quantity must not be negative", ErrInvalidLine, i+1)
		}
		if in.Price != nil && in.Price.IsNegative() {
			return 0, fmt.Errorf("%w: line %d: price must not be negative", ErrInvalidLine, i+1)
		}
		item, err := s.catalog.Item(ctx, in.ItemID)
		if err != nil {
			if errors.Is(err, masterdata.ErrNotFound) {
				return 0, fmt.Errorf("%w: line %d: item %d not found", ErrInvalidLine, i+1, in.ItemID)
			}
			return 0, fmt.Errorf("get item: %w", err)
		}
		if _, _, err := tx.UpsertLine(ctx, BuildLine(invoiceID, item, in)); err != nil {
			return 0, fmt.Errorf("upsert line %d: %w", i+1, err)
		}
		kept[in.ItemID] = true
	}

	if replace {
		existing, err := tx.Lines(ctx, invoiceID)
		if err != nil {
			return 0, err
		}
		for _, l := range existing {
			if !kept[l.ItemID] {
				if err := tx.DeleteLine(ctx, invoiceID, l.ID); err != nil {
					return 0, fmt.Errorf("delete line: %w", err)
				}
			}
		}
	}
	return len(kept), nil
}

// BuildLine fills quantity, price and GST defaults for an item line.
func BuildLine(invoiceID int64, item masterdata.Item, in LineInput) Line {
	line := Line{
		InvoiceID:       invoiceID,
		ItemID:          item.ID,
		Quantity:        in.Quantity,
		QuantityBilled:  in.Quantity,
		QuantityShipped: in.Quantity,
		Price:           item.Price,
		GSTRate:         item.GSTRate,
		Description:     trimmed(in.Description),
	}
	if in.QuantityBilled != nil {
		line.QuantityBilled = *in.QuantityBilled
	}
	if in.QuantityShipped != nil {
		line.QuantityShipped = *in.QuantityShipped
	}
	if in.Price != nil {
		line.Price = *in.Price
	}
	if line.GSTRate.IsZero() {
		line.GSTRate = masterdata.DefaultGSTRate
	}
	return line
}

// OpenChallanStage get-or-creates the delivery challan.
func (s *Service) OpenChallanStage(ctx context.Context, id int64) (Invoice, DeliveryChallan, error) {
	var (
		inv Invoice
		dc  DeliveryChallan
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		if inv, err = tx.GetForUpdate(ctx, id); err != nil {
			return err
		}
		dc, err = tx.GetOrCreateChallan(ctx, id)
		return err
	})
	return inv, dc, err
}

// SaveChallan saves the delivery challan and moves a draft to DC.
func (s *Service) SaveChallan(ctx context.Context, id int64, in ChallanInput) (Invoice, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		dc, err := tx.GetOrCreateChallan(ctx, id)
		if err != nil {
			return fmt.Errorf("get challan: %w", err)
		}
		dc.Notes = trimmed(in.Notes)
		if err := tx.SaveChallan(ctx, dc); err != nil {
			return fmt.Errorf("save challan: %w", err)
		}
		return advance(ctx, tx, inv, AfterChallanSaved(inv.Status))
	})
	if err != nil {
		return Invoice{}, err
	}
	shared.RecordActivity(ctx, s.activity, s.logger, "Edit DC", fmt.Sprintf("Updated DC for Invoice %d", id))
	return s.repo.Get(ctx, id)
}

// OpenTransportStage checks the guard and only then get-or-creates the
// transport record, so a refused visit changes nothing.
func (s *Service) OpenTransportStage(ctx context.Context, id int64) (Invoice, TransportCharges, error) {
	var (
		inv Invoice
		tc  TransportCharges
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		if inv, err = tx.GetForUpdate(ctx, id); err != nil {
			return err
		}
		if err := Gate(StageTransport, inv.Status); err != nil {
			return err
		}
		tc, err = tx.GetOrCreateTransport(ctx, id)
		return err
	})
	return inv, tc, err
}

// SaveTransport saves transport charges, advances to TRANSPORT and refreshes totals.
func (s *Service) SaveTransport(ctx context.Context, id int64, in TransportInput) (Invoice, error) {
	if in.Charges.IsNegative() {
		return Invoice{}, fmt.Errorf("%w: charges must not be negative", ErrInvalidInput)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := Gate(StageTransport, inv.Status); err != nil {
			return err
		}
		tc, err := tx.GetOrCreateTransport(ctx, id)
		if err != nil {
			return fmt.Errorf("get transport: %w", err)
		}
		tc.Charges = in.Charges.Round(2)
		tc.Description = trimmed(in.Description)
		if err := tx.SaveTransport(ctx, tc); err != nil {
			return fmt.Errorf("save transport: %w", err)
		}
		if err := advance(ctx, tx, inv, AfterTransportSaved(inv.Status)); err != nil {
			return err
		}
		_, err = s.RecalculateTx(ctx, tx, id)
		return err
	})
	if err != nil {
		return Invoice{}, err
	}
	shared.RecordActivity(ctx, s.activity, s.logger, "Edit Transport", fmt.Sprintf("Updated Transport Charges for Invoice %d", id))
	return s.repo.Get(ctx, id)
}

// OpenConfirmationStage checks the guard, get-or-restores the confirmation
// and lists the documents available for the bundle.
func (s *Service) OpenConfirmationStage(ctx context.Context, id int64) (ConfirmationView, error) {
	var view ConfirmationView
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := Gate(StageConfirmation, inv.Status); err != nil {
			return err
		}
		c, err := tx.GetOrRestoreConfirmation(ctx, id)
		if err != nil {
			return fmt.Errorf("get confirmation: %w", err)
		}
		view = ConfirmationView{Invoice: inv, Confirmation: c, Checklist: Checklist(inv, c)}
		return nil
	})
	return view, err
}

// Checklist lists bundle documents: the invoice always, satellites when
// present and uploads when attached.
func Checklist(inv Invoice, c Confirmation) []ChecklistEntry {
	out := []ChecklistEntry{{ID: "invoice", Name: "Tax Invoice (Auto-Generated)"}}
	if inv.DeliveryChallan != nil {
		out = append(out, ChecklistEntry{ID: "dc", Name: "Delivery Challan (Auto-Generated)"})
	}
	if inv.Transport != nil {
		out = append(out, ChecklistEntry{ID: "transport", Name: "Transport Charges (Auto-Generated)"})
	}
	if c.POFile != nil {
		out = append(out, ChecklistEntry{ID: "po", Name: "PO Copy (Uploaded)"})
	}
	if c.ApprovalEmailFile != nil {
		out = append(out, ChecklistEntry{ID: "email", Name: "Approval Email (Uploaded)"})
	}
	return out
}

// withConfirmation runs fn on the confirmation of an invoice past the guard.
func (s *Service) withConfirmation(ctx context.Context, id int64, fn func(context.Context, TxRepository, Confirmation) error) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := Gate(StageConfirmation, inv.Status); err != nil {
			return err
		}
		c, err := tx.GetOrRestoreConfirmation(ctx, id)
		if err != nil {
			return fmt.Errorf("get confirmation: %w", err)
		}
		return fn(ctx, tx, c)
	})
}

// AttachConfirmationFile stores ref in the given slot.
func (s *Service) AttachConfirmationFile(ctx context.Context, id int64, slot FileSlot, ref string) (Confirmation, error) {
	if slot.Column() == "" {
		return Confirmation{}, fmt.Errorf("%w: unknown file slot %q", ErrInvalidInput, slot)
	}
	err := s.withConfirmation(ctx, id, func(ctx context.Context, tx TxRepository, c Confirmation) error {
		return tx.SetConfirmationFile(ctx, c.ID, slot, &ref)
	})
	if err != nil {
		return Confirmation{}, err
	}
	return s.repo.Confirmation(ctx, id)
}

// RemoveConfirmationFile clears a slot and deletes the stored file once no
// other confirmation references it.
func (s *Service) RemoveConfirmationFile(ctx context.Context, id int64, slot FileSlot) error {
	if slot.Column() == "" {
		return fmt.Errorf("%w: unknown file slot %q", ErrInvalidInput, slot)
	}
	var old *string
	err := s.withConfirmation(ctx, id, func(ctx context.Context, tx TxRepository, c Confirmation) error {
		old = c.File(slot)
		if old == nil {
			return nil
		}
		return tx.SetConfirmationFile(ctx, c.ID, slot, nil)
	})
	if err != nil {
		return err
	}
	if old == nil {
		return nil
	}
	inUse, err := s.repo.ConfirmationFileRefInUse(ctx, *old)
	if err != nil {
		s.logger.Warn("check confirmation file reference", slog.String("ref", *old), slog.Any("error", err))
		return nil
	}
	if !inUse {
		s.removeFile(*old)
	}
	return nil
}

// AddPackedImage appends an image to the confirmation.
func (s *Service) AddPackedImage(ctx context.Context, id int64, ref string, notes *string) (PackedImage, error) {
	var img PackedImage
	err := s.withConfirmation(ctx, id, func(ctx context.Context, tx TxRepository, c Confirmation) error {
		var err error
		img, err = tx.AddPackedImage(ctx, PackedImage{
			ConfirmationID: c.ID,
			Image:          ref,
			Notes:          trimmed(notes),
			Position:       len(c.Images),
		})
		return err
	})
	return img, err
}

// UpdatePackedImageNotes edits the caption of an image.
func (s *Service) UpdatePackedImageNotes(ctx context.Context, imageID int64, notes *string) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdatePackedImageNotes(ctx, imageID, trimmed(notes))
	})
}

// DeletePackedImage removes the image and its file once no other image uses it.
func (s *Service) DeletePackedImage(ctx context.Context, imageID int64) error {
	var img PackedImage
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		img, err = tx.DeletePackedImage(ctx, imageID)
		return err
	})
	if err != nil {
		return err
	}
	inUse, err := s.repo.ImageRefInUse(ctx, img.Image)
	if err != nil {
		s.logger.Warn("check image reference", slog.String("ref", img.Image), slog.Any("error", err))
		return nil
	}
	if !inUse {
		s.removeFile(img.Image)
	}
	return nil
}

func (s *Service) removeFile(ref string) {
	if s.files == nil || ref == "" {
		return
	}
	if err := s.files.Remove(ref); err != nil {
		s.logger.Warn("remove stored file", slog.String("ref", ref), slog.Any("error", err))
	}
}

// Recalculate recomputes and stores invoice totals.
func (s *Service) Recalculate(ctx context.Context, id int64) (Totals, error) {
	var totals Totals
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		totals, err = s.RecalculateTx(ctx, tx, id)
		return err
	})
	return totals, err
}

// RecalculateTx recomputes totals inside an open transaction.
func (s *Service) RecalculateTx(ctx context.Context, tx TxRepository, id int64) (Totals, error) {
	inv, err := tx.GetForUpdate(ctx, id)
	if err != nil {
		return Totals{}, err
	}
	lines, err := tx.Lines(ctx, id)
	if err != nil {
		return Totals{}, fmt.Errorf("load lines: %w", err)
	}
	var stateCode string
	loc, err := s.catalog.Location(ctx, inv.LocationID)
	switch {
	case err == nil:
		stateCode = loc.StateCode
	case !errors.Is(err, masterdata.ErrNotFound):
		return Totals{}, fmt.Errorf("get location: %w", err)
	}
	totals := ComputeTotals(inv, lines, inv.Transport, stateCode, s.companyState)
	if err := tx.UpdateTotals(ctx, id, totals); err != nil {
		return Totals{}, fmt.Errorf("update totals: %w", err)
	}
	return totals, nil
}

// MarkFinalized links the written bundle and moves the invoice to FINALIZED
// in one transaction.
func (s *Service) MarkFinalized(ctx context.Context, id int64, bundleRef string) error {
	var display string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		c, err := tx.GetOrRestoreConfirmation(ctx, id)
		if err != nil {
			return fmt.Errorf("get confirmation: %w", err)
		}
		if err := tx.SetCombinedPDF(ctx, c.ID, bundleRef); err != nil {
			return fmt.Errorf("set combined pdf: %w", err)
		}
		display = inv.DisplayNumber()
		return advance(ctx, tx, inv, AfterBundleWritten(inv.Status))
	})
	if err != nil {
		return err
	}
	shared.RecordActivity(ctx, s.activity, s.logger, "Finalize Invoice", fmt.Sprintf("Finalized Invoice %s", display))
	return nil
}

func advance(ctx context.Context, tx TxRepository, inv Invoice, next Status) error {
	if next == inv.Status {
		return nil
	}
	if err := tx.UpdateStatus(ctx, inv.ID, next); err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return nil
}

// Get returns a live invoice.
func (s *Service) Get(ctx context.Context, id int64) (Invoice, error) {
	return s.repo.Get(ctx, id)
}

// Lines returns the lines of an invoice.
func (s *Service) Lines(ctx context.Context, id int64) ([]Line, error) {
	return s.repo.Lines(ctx, id)
}

// Confirmation returns the live confirmation of an invoice.
func (s *Service) Confirmation(ctx context.Context, id int64) (Confirmation, error) {
	return s.repo.Confirmation(ctx, id)
}

// List returns invoices matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Invoice, int, error) {
	return s.repo.List(ctx, filter)
}

// Document assembles the print view of an invoice.
func (s *Service) Document(ctx context.Context, id int64) (Document, error) {
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return Document{}, err
	}
	lines, err := s.repo.Lines(ctx, id)
	if err != nil {
		return Document{}, fmt.Errorf("load lines: %w", err)
	}
	loc, err := s.catalog.Location(ctx, inv.LocationID)
	if err != nil && !errors.Is(err, masterdata.ErrNotFound) {
		return Document{}, fmt.Errorf("get location: %w", err)
	}
	doc := Document{
		Invoice:    inv,
		Number:     inv.DisplayNumber(),
		Location:   loc,
		InterState: PlaceOfSupply(inv, loc.StateCode, s.companyState) != s.companyState,
	}
	if inv.BuyerID != nil {
		buyer, err := s.catalog.Buyer(ctx, *inv.BuyerID)
		switch {
		case err == nil:
			doc.Buyer = &buyer
		case !errors.Is(err, masterdata.ErrNotFound):
			return Document{}, fmt.Errorf("get buyer: %w", err)
		}
	}
	for _, l := range lines {
		dl := DocumentLine{Line: l, ItemName: fmt.Sprintf("Item #%d", l.ItemID)}
		item, err := s.catalog.Item(ctx, l.ItemID)
		switch {
		case err == nil:
			dl.ItemName, dl.HSNCode, dl.Unit, dl.Description = item.Name, item.HSNCode, item.Unit, item.Description
		case !errors.Is(err, masterdata.ErrNotFound):
			return Document{}, fmt.Errorf("get item: %w", err)
		}
		if l.Description != nil {
			dl.Description = *l.Description
		}
		dl.TaxableAmt = l.Taxable().Round(2)
		dl.TaxAmt = l.Taxable().Mul(l.GSTRate).Round(2)
		doc.TotalQuantity += l.Quantity
		doc.Lines = append(doc.Lines, dl)
	}
	return doc, nil
}

// Dashboard is the overview shown on the landing page.
type Dashboard struct {
	Stats
	Recent   []Invoice            `json:"invoices"`
	Activity []shared.ActivityLog `json:"recent_logs"`
}

// Dashboard returns counts, the latest invoices and the latest activity.
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return Dashboard{}, fmt.Errorf("invoice stats: %w", err)
	}
	recent, _, err := s.repo.List(ctx, ListFilter{Sort: "-date", Limit: 10})
	if err != nil {
		return Dashboard{}, fmt.Errorf("recent invoices: %w", err)
	}
	out := Dashboard{Stats: stats, Recent: recent}
	if s.feed != nil {
		if out.Activity, err = s.feed.Recent(ctx, 10); err != nil {
			s.logger.Warn("load recent activity", slog.Any("error", err))
		}
	}
	return out, nil
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}
