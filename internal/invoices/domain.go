// Package invoices owns the sales invoice, its satellite records and the
// stage-by-stage workflow that leads to a finalized document bundle.
package invoices

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/clientdoc/internal/masterdata"
)

// Status represents the lifecycle of an invoice.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusDC        Status = "DC"
	StatusTransport Status = "TRANSPORT"
	StatusFinalized Status = "FINALIZED"
)

// Header holds the free-form fields printed on the invoice header.
type Header struct {
	BuyersOrderNo     string     `json:"buyers_order_no"`
	BuyersOrderDate   *time.Time `json:"buyers_order_date,omitempty"`
	DispatchDocNo     string     `json:"dispatch_doc_no"`
	DispatchedThrough string     `json:"dispatched_through"`
	Destination       string     `json:"destination"`
	DeliveryNote      string     `json:"delivery_note"`
	DeliveryNoteDate  *time.Time `json:"delivery_note_date,omitempty"`
	PaymentTerms      string     `json:"payment_terms"`
	ReferenceNoDate   string     `json:"reference_no_date"`
	OtherReferences   string     `json:"other_references"`
	TermsOfDelivery   string     `json:"terms_of_delivery"`
	Remark            string     `json:"remark"`
}

// Totals are the computed monetary amounts of an invoice.
type Totals struct {
	TaxableValue decimal.Decimal `json:"taxable_value"`
	CGST         decimal.Decimal `json:"cgst_total"`
	SGST         decimal.Decimal `json:"sgst_total"`
	IGST         decimal.Decimal `json:"igst_total"`
	Grand        decimal.Decimal `json:"grand_total"`
}

// Tax returns the sum of all tax components.
func (t Totals) Tax() decimal.Decimal {
	return t.CGST.Add(t.SGST).Add(t.IGST)
}

// Invoice is a sales invoice. Satellite records are nil when absent.
type Invoice struct {
	ID            int64     `json:"id"`
	TallyNumber   *string   `json:"tally_number,omitempty"`
	AppNumber     *string   `json:"app_number,omitempty"`
	BuyerID       *int64    `json:"buyer_id,omitempty"`
	LocationID    int64     `json:"location_id"`
	Date          time.Time `json:"date"`
	Status        Status    `json:"status"`
	PlaceOfSupply *string   `json:"place_of_supply,omitempty"`
	Header
	Totals

	DeliveryChallan *DeliveryChallan  `json:"delivery_challan,omitempty"`
	Transport       *TransportCharges `json:"transport,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// DisplayNumber is the tally number, else the app number, else the id.
func (inv Invoice) DisplayNumber() string {
	if inv.TallyNumber != nil && *inv.TallyNumber != "" {
		return *inv.TallyNumber
	}
	if inv.AppNumber != nil && *inv.AppNumber != "" {
		return *inv.AppNumber
	}
	return strconv.FormatInt(inv.ID, 10)
}

// Line is one item row of an invoice. At most one line exists per item.
type Line struct {
	ID              int64           `json:"id"`
	InvoiceID       int64           `json:"invoice_id"`
	ItemID          int64           `json:"item_id"`
	Quantity        int             `json:"quantity"`
	QuantityBilled  int             `json:"quantity_billed"`
	QuantityShipped int             `json:"quantity_shipped"`
	Price           decimal.Decimal `json:"price"`
	GSTRate         decimal.Decimal `json:"gst_rate"`
	Description     *string         `json:"description,omitempty"`
}

// Taxable is QuantityBilled x Price.
func (l Line) Taxable() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.QuantityBilled)))
}

// DeliveryChallan is the delivery challan satellite.
type DeliveryChallan struct {
	ID        int64      `json:"id"`
	InvoiceID int64      `json:"invoice_id"`
	Notes     *string    `json:"notes,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// TransportCharges is the transport satellite.
type TransportCharges struct {
	ID          int64           `json:"id"`
	InvoiceID   int64           `json:"invoice_id"`
	Charges     decimal.Decimal `json:"charges"`
	Description *string         `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	DeletedAt   *time.Time      `json:"deleted_at,omitempty"`
}

// Confirmation carries uploaded overrides, packed images and the final bundle.
// File references are relative to the media root.
type Confirmation struct {
	ID                int64         `json:"id"`
	InvoiceID         int64         `json:"invoice_id"`
	POFile            *string       `json:"po_file,omitempty"`
	ApprovalEmailFile *string       `json:"approval_email_file,omitempty"`
	UploadedInvoice   *string       `json:"uploaded_invoice,omitempty"`
	UploadedDC        *string       `json:"uploaded_dc,omitempty"`
	CombinedPDF       *string       `json:"combined_pdf,omitempty"`
	Images            []PackedImage `json:"images"`
	CreatedAt         time.Time     `json:"created_at"`
	DeletedAt         *time.Time    `json:"deleted_at,omitempty"`
}

// File returns the reference held in slot.
func (c Confirmation) File(slot FileSlot) *string {
	switch slot {
	case FilePO:
		return c.POFile
	case FileEmail:
		return c.ApprovalEmailFile
	case FileInvoice:
		return c.UploadedInvoice
	case FileDC:
		return c.UploadedDC
	}
	return nil
}

// PackedImage is a photo of packed goods attached to a confirmation.
type PackedImage struct {
	ID             int64   `json:"id"`
	ConfirmationID int64   `json:"confirmation_id"`
	Image          string  `json:"image"`
	Notes          *string `json:"notes,omitempty"`
	Position       int     `json:"position"`
}

// FileSlot names an uploadable confirmation file.
type FileSlot string

const (
	FilePO      FileSlot = "po"
	FileEmail   FileSlot = "email"
	FileInvoice FileSlot = "invoice"
	FileDC      FileSlot = "dc"
)

// ParseFileSlot validates a slot name.
func ParseFileSlot(raw string) (FileSlot, error) {
	switch slot := FileSlot(raw); slot {
	case FilePO, FileEmail, FileInvoice, FileDC:
		return slot, nil
	}
	return "", fmt.Errorf("%w: unknown file slot %q", ErrInvalidInput, raw)
}

// Column returns the confirmation column backing the slot.
func (s FileSlot) Column() string {
	switch s {
	case FilePO:
		return "po_file"
	case FileEmail:
		return "approval_email_file"
	case FileInvoice:
		return "uploaded_invoice"
	case FileDC:
		return "uploaded_dc"
	}
	return ""
}

// ChecklistEntry is one document offered for the bundle order.
type ChecklistEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ConfirmationView is what the confirmation stage shows.
type ConfirmationView struct {
	Invoice      Invoice          `json:"invoice"`
	Confirmation Confirmation     `json:"confirmation"`
	Checklist    []ChecklistEntry `json:"available_files"`
}

// DocumentLine is a line with catalog data resolved for printing.
type DocumentLine struct {
	Line
	ItemName    string          `json:"item_name"`
	HSNCode     string          `json:"hsn_code"`
	Unit        string          `json:"unit"`
	TaxableAmt  decimal.Decimal `json:"taxable"`
	TaxAmt      decimal.Decimal `json:"tax"`
	Description string          `json:"description"`
}

// Document is the print view of an invoice and its satellites.
type Document struct {
	Invoice       Invoice             `json:"invoice"`
	Number        string              `json:"number"`
	Buyer         *masterdata.Buyer   `json:"buyer,omitempty"`
	Location      masterdata.Location `json:"location"`
	Lines         []DocumentLine      `json:"lines"`
	TotalQuantity int                 `json:"total_quantity"`
	InterState    bool                `json:"inter_state"`
}

// Catalog resolves master data referenced by invoices.
type Catalog interface {
	Buyer(ctx context.Context, id int64) (masterdata.Buyer, error)
	Location(ctx context.Context, id int64) (masterdata.Location, error)
	Item(ctx context.Context, id int64) (masterdata.Item, error)
}

// LineInput is one submitted invoice line.
type LineInput struct {
	ItemID          int64            `json:"item_id" validate:"required,gt=0"`
	Quantity        int              `json:"quantity" validate:"gte=0"`
	QuantityBilled  *int             `json:"quantity_billed,omitempty" validate:"omitempty,gte=0"`
	QuantityShipped *int             `json:"quantity_shipped,omitempty" validate:"omitempty,gte=0"`
	Price           *decimal.Decimal `json:"price,omitempty"`
	Description     *string          `json:"description,omitempty"`
	Delete          bool             `json:"delete,omitempty"`
}

// CreateInvoiceInput is the payload for a new draft invoice.
type CreateInvoiceInput struct {
	LocationID  int64       `json:"location_id" validate:"required,gt=0"`
	BuyerID     *int64      `json:"buyer_id,omitempty"`
	TallyNumber *string     `json:"tally_number,omitempty"`
	Date        *time.Time  `json:"date,omitempty"`
	Lines       []LineInput `json:"lines" validate:"dive"`
}

// UpdateInvoiceInput replaces the header and lines of an invoice.
type UpdateInvoiceInput struct {
	LocationID    int64       `json:"location_id" validate:"required,gt=0"`
	BuyerID       *int64      `json:"buyer_id,omitempty"`
	TallyNumber   *string     `json:"tally_number,omitempty"`
	Date          *time.Time  `json:"date,omitempty"`
	PlaceOfSupply *string     `json:"place_of_supply,omitempty" validate:"omitempty,len=2,numeric"`
	Header        Header      `json:"header"`
	Lines         []LineInput `json:"lines" validate:"dive"`
}

// ChallanInput edits the delivery challan.
type ChallanInput struct {
	Notes *string `json:"notes,omitempty"`
}

// TransportInput edits the transport charges.
type TransportInput struct {
	Charges     decimal.Decimal `json:"charges"`
	Description *string         `json:"description,omitempty"`
}

// ListFilter narrows invoice listings.
type ListFilter struct {
	Query  string
	Status Status
	Sort   string
	Limit  int
	Offset int
}

// Stats summarises invoice counts for the dashboard.
type Stats struct {
	Total     int `json:"total_invoices"`
	Finalized int `json:"total_finalized"`
}
