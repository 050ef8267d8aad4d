package invoices

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/clientdoc/internal/platform/db"
)

// Repository defines invoice persistence.
type Repository interface {
	// Read operations
	Get(ctx context.Context, id int64) (Invoice, error)
	Lines(ctx context.Context, invoiceID int64) ([]Line, error)
	Confirmation(ctx context.Context, invoiceID int64) (Confirmation, error)
	GetPackedImage(ctx context.Context, id int64) (PackedImage, error)
	ImageRefInUse(ctx context.Context, ref string) (bool, error)
	ConfirmationFileRefInUse(ctx context.Context, ref string) (bool, error)
	List(ctx context.Context, filter ListFilter) ([]Invoice, int, error)
	Stats(ctx context.Context) (Stats, error)

	// Write operations (transactional)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional write operations.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (Invoice, error)
	FindByTallyNumber(ctx context.Context, tally string) (Invoice, error)
	Create(ctx context.Context, inv Invoice) (int64, error)
	Update(ctx context.Context, inv Invoice) error
	SetAppNumber(ctx context.Context, id int64, number string) error
	UpdateStatus(ctx context.Context, id int64, status Status) error
	UpdateTotals(ctx context.Context, id int64, totals Totals) error

	Lines(ctx context.Context, invoiceID int64) ([]Line, error)
	LinesForItem(ctx context.Context, invoiceID, itemID int64) ([]Line, error)
	DeleteLinesForItem(ctx context.Context, invoiceID, itemID int64) (int64, error)
	UpsertLine(ctx context.Context, line Line) (Line, bool, error)
	DeleteLine(ctx context.Context, invoiceID, lineID int64) error

	GetOrCreateChallan(ctx context.Context, invoiceID int64) (DeliveryChallan, error)
	SaveChallan(ctx context.Context, dc DeliveryChallan) error
	GetOrCreateTransport(ctx context.Context, invoiceID int64) (TransportCharges, error)
	SaveTransport(ctx context.Context, tc TransportCharges) error

	GetOrRestoreConfirmation(ctx context.Context, invoiceID int64) (Confirmation, error)
	SetConfirmationFile(ctx context.Context, confirmationID int64, slot FileSlot, ref *string) error
	SetCombinedPDF(ctx context.Context, confirmationID int64, ref string) error
	AddPackedImage(ctx context.Context, img PackedImage) (PackedImage, error)
	UpdatePackedImageNotes(ctx context.Context, id int64, notes *string) error
	DeletePackedImage(ctx context.Context, id int64) (PackedImage, error)
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// repository implements Repository using pgxpool.
type repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

// txRepository implements TxRepository.
type txRepository struct {
	tx pgx.Tx
}

// WithTx wraps callback in repeatable-read transaction.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const invoiceColumns = `
	id, tally_number, app_number, buyer_id, location_id, date, status, place_of_supply,
	buyers_order_no, buyers_order_date, dispatch_doc_no, dispatched_through, destination,
	delivery_note, delivery_note_date, payment_terms, reference_no_date, other_references,
	terms_of_delivery, remark,
	taxable_value, cgst_total, sgst_total, igst_total, grand_total,
	created_at, updated_at, deleted_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(
		&inv.ID, &inv.TallyNumber, &inv.AppNumber, &inv.BuyerID, &inv.LocationID, &inv.Date, &inv.Status, &inv.PlaceOfSupply,
		&inv.BuyersOrderNo, &inv.BuyersOrderDate, &inv.DispatchDocNo, &inv.DispatchedThrough, &inv.Destination,
		&inv.DeliveryNote, &inv.DeliveryNoteDate, &inv.PaymentTerms, &inv.ReferenceNoDate, &inv.OtherReferences,
		&inv.TermsOfDelivery, &inv.Remark,
		&inv.TaxableValue, &inv.CGST, &inv.SGST, &inv.IGST, &inv.Grand,
		&inv.CreatedAt, &inv.UpdatedAt, &inv.DeletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, ErrNotFound
	}
	return inv, err
}

// loadInvoice reads a live invoice together with its live satellites.
func loadInvoice(ctx context.Context, q querier, where string, args ...any) (Invoice, error) {
	inv, err := scanInvoice(q.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE deleted_at IS NULL AND `+where, args...))
	if err != nil {
		return Invoice{}, err
	}
	if err := attachSatellites(ctx, q, &inv); err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

func attachSatellites(ctx context.Context, q querier, inv *Invoice) error {
	var dc DeliveryChallan
	err := q.QueryRow(ctx, `SELECT id, invoice_id, notes, created_at, deleted_at FROM delivery_challans WHERE invoice_id = $1 AND deleted_at IS NULL`, inv.ID).
		Scan(&dc.ID, &dc.InvoiceID, &dc.Notes, &dc.CreatedAt, &dc.DeletedAt)
	switch {
	case err == nil:
		inv.DeliveryChallan = &dc
	case !errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("load challan: %w", err)
	}

	var tc TransportCharges
	err = q.QueryRow(ctx, `SELECT id, invoice_id, charges, description, created_at, deleted_at FROM transport_charges WHERE invoice_id = $1 AND deleted_at IS NULL`, inv.ID).
		Scan(&tc.ID, &tc.InvoiceID, &tc.Charges, &tc.Description, &tc.CreatedAt, &tc.DeletedAt)
	switch {
	case err == nil:
		inv.Transport = &tc
	case !errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("load transport: %w", err)
	}
	return nil
}

func queryLines(ctx context.Context, q querier, where string, args ...any) ([]Line, error) {
	rows, err := q.Query(ctx, `SELECT id, invoice_id, item_id, quantity, quantity_billed, quantity_shipped, price, gst_rate, description
		FROM invoice_items WHERE `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.InvoiceID, &l.ItemID, &l.Quantity, &l.QuantityBilled, &l.QuantityShipped, &l.Price, &l.GSTRate, &l.Description); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

const confirmationColumns = `id, invoice_id, po_file, approval_email_file, uploaded_invoice, uploaded_dc, combined_pdf, created_at, deleted_at`

func scanConfirmation(row pgx.Row) (Confirmation, error) {
	var c Confirmation
	err := row.Scan(&c.ID, &c.InvoiceID, &c.POFile, &c.ApprovalEmailFile, &c.UploadedInvoice, &c.UploadedDC, &c.CombinedPDF, &c.CreatedAt, &c.DeletedAt)
	return c, err
}

func loadImages(ctx context.Context, q querier, confirmationID int64) ([]PackedImage, error) {
	rows, err := q.Query(ctx, `SELECT id, confirmation_id, image, notes, position FROM packed_images WHERE confirmation_id = $1 ORDER BY position, id`, confirmationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	images := []PackedImage{}
	for rows.Next() {
		var img PackedImage
		if err := rows.Scan(&img.ID, &img.ConfirmationID, &img.Image, &img.Notes, &img.Position); err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

// Get retrieves a live invoice with its satellites.
func (r *repository) Get(ctx context.Context, id int64) (Invoice, error) {
	return loadInvoice(ctx, r.pool, `id = $1`, id)
}

// Lines returns the invoice lines in insertion order.
func (r *repository) Lines(ctx context.Context, invoiceID int64) ([]Line, error) {
	return queryLines(ctx, r.pool, `invoice_id = $1`, invoiceID)
}

// Confirmation returns the live confirmation with its images.
func (r *repository) Confirmation(ctx context.Context, invoiceID int64) (Confirmation, error) {
	c, err := scanConfirmation(r.pool.QueryRow(ctx, `SELECT `+confirmationColumns+` FROM confirmation_documents WHERE invoice_id = $1 AND deleted_at IS NULL`, invoiceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Confirmation{}, ErrNotFound
	}
	if err != nil {
		return Confirmation{}, err
	}
	c.Images, err = loadImages(ctx, r.pool, c.ID)
	return c, err
}

// GetPackedImage returns a packed image by id.
func (r *repository) GetPackedImage(ctx context.Context, id int64) (PackedImage, error) {
	var img PackedImage
	err := r.pool.QueryRow(ctx, `SELECT id, confirmation_id, image, notes, position FROM packed_images WHERE id = $1`, id).
		Scan(&img.ID, &img.ConfirmationID, &img.Image, &img.Notes, &img.Position)
	if errors.Is(err, pgx.ErrNoRows) {
		return PackedImage{}, ErrImageNotFound
	}
	return img, err
}

// ImageRefInUse reports whether any packed image still points at ref.
func (r *repository) ImageRefInUse(ctx context.Context, ref string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM packed_images WHERE image = $1)`, ref).Scan(&exists)
	return exists, err
}

// ConfirmationFileRefInUse reports whether any confirmation, trashed ones
// included, still points at ref from one of its uploaded file slots.
func (r *repository) ConfirmationFileRefInUse(ctx context.Context, ref string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (
		SELECT 1 FROM confirmation_documents
		WHERE $1 IN (po_file, approval_email_file, uploaded_invoice, uploaded_dc))`, ref).Scan(&exists)
	return exists, err
}

var sortColumns = map[string]string{
	"date":  "i.date ASC, i.id ASC",
	"-date": "i.date DESC, i.id DESC",
	"id":    "i.id ASC",
	"-id":   "i.id DESC",
	"az":    "i.tally_number ASC NULLS LAST, i.id ASC",
	"za":    "i.tally_number DESC NULLS LAST, i.id DESC",
}

// List returns live invoices matching the filter and the total count.
func (r *repository) List(ctx context.Context, filter ListFilter) ([]Invoice, int, error) {
	var (
		conds = []string{"i.deleted_at IS NULL"}
		args  []any
	)
	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+strings.ToLower(q)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf(`(lower(COALESCE(i.tally_number, '')) LIKE $%d OR lower(COALESCE(i.app_number, '')) LIKE $%d OR lower(l.name) LIKE $%d OR to_char(i.date, 'YYYY-MM-DD') LIKE $%d)`, n, n, n, n))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("i.status = $%d", len(args)))
	}
	where := strings.Join(conds, " AND ")
	from := ` FROM invoices i JOIN store_locations l ON l.id = i.location_id WHERE ` + where

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+from, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	order, ok := sortColumns[filter.Sort]
	if !ok {
		order = sortColumns["-date"]
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit, filter.Offset)
	query := `SELECT ` + prefixed("i", invoiceColumns) + from +
		fmt.Sprintf(" ORDER BY %s LIMIT $%d OFFSET $%d", order, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, inv)
	}
	return out, total, rows.Err()
}

// Stats counts live invoices.
func (r *repository) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*), COUNT(*) FILTER (WHERE status = $1) FROM invoices WHERE deleted_at IS NULL`, StatusFinalized).
		Scan(&s.Total, &s.Finalized)
	return s, err
}

func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
