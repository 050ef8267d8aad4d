package invoices

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/clientdoc/internal/platform/db"
)

// GetForUpdate locks and returns a live invoice with its satellites.
func (t *txRepository) GetForUpdate(ctx context.Context, id int64) (Invoice, error) {
	return loadInvoice(ctx, t.tx, `id = $1 FOR UPDATE`, id)
}

// FindByTallyNumber matches the tally number case-insensitively.
func (t *txRepository) FindByTallyNumber(ctx context.Context, tally string) (Invoice, error) {
	return loadInvoice(ctx, t.tx, `lower(tally_number) = lower($1) ORDER BY id LIMIT 1 FOR UPDATE`, strings.TrimSpace(tally))
}

// Create inserts a new invoice and returns its id.
func (t *txRepository) Create(ctx context.Context, inv Invoice) (int64, error) {
	query := `
		INSERT INTO invoices (
			tally_number, app_number, buyer_id, location_id, date, status, place_of_supply,
			buyers_order_no, buyers_order_date, dispatch_doc_no, dispatched_through, destination,
			delivery_note, delivery_note_date, payment_terms, reference_no_date, other_references,
			terms_of_delivery, remark
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING id
	`
	var id int64
	err := t.tx.QueryRow(ctx, query,
		inv.TallyNumber, inv.AppNumber, inv.BuyerID, inv.LocationID, inv.Date, inv.Status, inv.PlaceOfSupply,
		inv.BuyersOrderNo, inv.BuyersOrderDate, inv.DispatchDocNo, inv.DispatchedThrough, inv.Destination,
		inv.DeliveryNote, inv.DeliveryNoteDate, inv.PaymentTerms, inv.ReferenceNoDate, inv.OtherReferences,
		inv.TermsOfDelivery, inv.Remark,
	).Scan(&id)
	if db.IsUniqueViolation(err) {
		return 0, ErrDuplicateTally
	}
	return id, err
}

// Update writes header fields. Status and totals have their own setters.
func (t *txRepository) Update(ctx context.Context, inv Invoice) error {
	query := `
		UPDATE invoices SET
			tally_number = $1, buyer_id = $2, location_id = $3, date = $4, place_of_supply = $5,
			buyers_order_no = $6, buyers_order_date = $7, dispatch_doc_no = $8, dispatched_through = $9,
			destination = $10, delivery_note = $11, delivery_note_date = $12, payment_terms = $13,
			reference_no_date = $14, other_references = $15, terms_of_delivery = $16, remark = $17,
			updated_at = NOW()
		WHERE id = $18 AND deleted_at IS NULL
	`
	tag, err := t.tx.Exec(ctx, query,
		inv.TallyNumber, inv.BuyerID, inv.LocationID, inv.Date, inv.PlaceOfSupply,
		inv.BuyersOrderNo, inv.BuyersOrderDate, inv.DispatchDocNo, inv.DispatchedThrough,
		inv.Destination, inv.DeliveryNote, inv.DeliveryNoteDate, inv.PaymentTerms,
		inv.ReferenceNoDate, inv.OtherReferences, inv.TermsOfDelivery, inv.Remark,
		inv.ID,
	)
	if db.IsUniqueViolation(err) {
		return ErrDuplicateTally
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepository) SetAppNumber(ctx context.Context, id int64, number string) error {
	_, err := t.tx.Exec(ctx, `UPDATE invoices SET app_number = $1 WHERE id = $2`, number, id)
	return err
}

func (t *txRepository) UpdateStatus(ctx context.Context, id int64, status Status) error {
	_, err := t.tx.Exec(ctx, `UPDATE invoices SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	return err
}

func (t *txRepository) UpdateTotals(ctx context.Context, id int64, totals Totals) error {
	_, err := t.tx.Exec(ctx, `UPDATE invoices SET taxable_value = $1, cgst_total = $2, sgst_total = $3, igst_total = $4, grand_total = $5, updated_at = NOW() WHERE id = $6`,
		totals.TaxableValue, totals.CGST, totals.SGST, totals.IGST, totals.Grand, id)
	return err
}

// Lines

func (t *txRepository) Lines(ctx context.Context, invoiceID int64) ([]Line, error) {
	return queryLines(ctx, t.tx, `invoice_id = $1`, invoiceID)
}

func (t *txRepository) LinesForItem(ctx context.Context, invoiceID, itemID int64) ([]Line, error) {
	return queryLines(ctx, t.tx, `invoice_id = $1 AND item_id = $2`, invoiceID, itemID)
}

func (t *txRepository) DeleteLinesForItem(ctx context.Context, invoiceID, itemID int64) (int64, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM invoice_items WHERE invoice_id = $1 AND item_id = $2`, invoiceID, itemID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// UpsertLine writes the single line for (invoice, item) and reports whether it was inserted.
func (t *txRepository) UpsertLine(ctx context.Context, line Line) (Line, bool, error) {
	query := `
		INSERT INTO invoice_items (invoice_id, item_id, quantity, quantity_billed, quantity_shipped, price, gst_rate, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (invoice_id, item_id) DO UPDATE SET
			quantity = EXCLUDED.quantity,
			quantity_billed = EXCLUDED.quantity_billed,
			quantity_shipped = EXCLUDED.quantity_shipped,
			price = EXCLUDED.price,
			gst_rate = EXCLUDED.gst_rate,
			description = EXCLUDED.description
		RETURNING id, (xmax = 0)
	`
	var inserted bool
	err := t.tx.QueryRow(ctx, query,
		line.InvoiceID, line.ItemID, line.Quantity, line.QuantityBilled, line.QuantityShipped,
		line.Price, line.GSTRate, line.Description,
	).Scan(&line.ID, &inserted)
	return line, inserted, err
}

func (t *txRepository) DeleteLine(ctx context.Context, invoiceID, lineID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM invoice_items WHERE id = $1 AND invoice_id = $2`, lineID, invoiceID)
	return err
}

// Satellites. Get-or-create also restores a trashed row so the one-to-one
// constraint is never violated.

func (t *txRepository) GetOrCreateChallan(ctx context.Context, invoiceID int64) (DeliveryChallan, error) {
	var dc DeliveryChallan
	err := t.tx.QueryRow(ctx, `
		INSERT INTO delivery_challans (invoice_id) VALUES ($1)
		ON CONFLICT (invoice_id) DO UPDATE SET deleted_at = NULL
		RETURNING id, invoice_id, notes, created_at, deleted_at`, invoiceID).
		Scan(&dc.ID, &dc.InvoiceID, &dc.Notes, &dc.CreatedAt, &dc.DeletedAt)
	return dc, err
}

func (t *txRepository) SaveChallan(ctx context.Context, dc DeliveryChallan) error {
	_, err := t.tx.Exec(ctx, `UPDATE delivery_challans SET notes = $1 WHERE id = $2`, dc.Notes, dc.ID)
	return err
}

func (t *txRepository) GetOrCreateTransport(ctx context.Context, invoiceID int64) (TransportCharges, error) {
	var tc TransportCharges
	err := t.tx.QueryRow(ctx, `
		INSERT INTO transport_charges (invoice_id) VALUES ($1)
		ON CONFLICT (invoice_id) DO UPDATE SET deleted_at = NULL
		RETURNING id, invoice_id, charges, description, created_at, deleted_at`, invoiceID).
		Scan(&tc.ID, &tc.InvoiceID, &tc.Charges, &tc.Description, &tc.CreatedAt, &tc.DeletedAt)
	return tc, err
}

func (t *txRepository) SaveTransport(ctx context.Context, tc TransportCharges) error {
	_, err := t.tx.Exec(ctx, `UPDATE transport_charges SET charges = $1, description = $2 WHERE id = $3`, tc.Charges, tc.Description, tc.ID)
	return err
}

// Confirmation

func (t *txRepository) GetOrRestoreConfirmation(ctx context.Context, invoiceID int64) (Confirmation, error) {
	c, err := scanConfirmation(t.tx.QueryRow(ctx, `
		INSERT INTO confirmation_documents (invoice_id) VALUES ($1)
		ON CONFLICT (invoice_id) DO UPDATE SET deleted_at = NULL
		RETURNING `+confirmationColumns, invoiceID))
	if err != nil {
		return Confirmation{}, err
	}
	c.Images, err = loadImages(ctx, t.tx, c.ID)
	return c, err
}

func (t *txRepository) SetConfirmationFile(ctx context.Context, confirmationID int64, slot FileSlot, ref *string) error {
	column := slot.Column()
	if column == "" {
		return fmt.Errorf("%w: unknown file slot %q", ErrInvalidInput, slot)
	}
	_, err := t.tx.Exec(ctx, `UPDATE confirmation_documents SET `+column+` = $1 WHERE id = $2`, ref, confirmationID)
	return err
}

func (t *txRepository) SetCombinedPDF(ctx context.Context, confirmationID int64, ref string) error {
	_, err := t.tx.Exec(ctx, `UPDATE confirmation_documents SET combined_pdf = $1 WHERE id = $2`, ref, confirmationID)
	return err
}

func (t *txRepository) AddPackedImage(ctx context.Context, img PackedImage) (PackedImage, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO packed_images (confirmation_id, image, notes, position) VALUES ($1, $2, $3, $4) RETURNING id`,
		img.ConfirmationID, img.Image, img.Notes, img.Position).Scan(&img.ID)
	return img, err
}

func (t *txRepository) UpdatePackedImageNotes(ctx context.Context, id int64, notes *string) error {
	tag, err := t.tx.Exec(ctx, `UPDATE packed_images SET notes = $1 WHERE id = $2`, notes, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrImageNotFound
	}
	return nil
}

func (t *txRepository) DeletePackedImage(ctx context.Context, id int64) (PackedImage, error) {
	var img PackedImage
	err := t.tx.QueryRow(ctx, `DELETE FROM packed_images WHERE id = $1 RETURNING id, confirmation_id, image, notes, position`, id).
		Scan(&img.ID, &img.ConfirmationID, &img.Image, &img.Notes, &img.Position)
	if errors.Is(err, pgx.ErrNoRows) {
		return PackedImage{}, ErrImageNotFound
	}
	return img, err
}
