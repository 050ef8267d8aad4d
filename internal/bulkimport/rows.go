package bulkimport

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/clientdoc/internal/invoices"
	"github.com/odyssey-erp/clientdoc/internal/sheets"
)

// Invoice sheet columns, 0-indexed.
const (
	colBuyer = iota
	colLocation
	colItem
	colDescription
	colQuantity
	colUnitRate
	colSGST
	colCGST
	colIGST
	colTransport
	colTotal
	colGenerate
	colGeneratePDF
	colTally
	colDate
	colBuyersOrderNo
	colBuyersOrderDate
	colDispatchDocNo
	colDispatchedThrough
	colDestination
	colDeliveryNote
	colDeliveryNoteDate
	colPaymentTerms
	colReferenceNo
	colOtherReferences
	colTermsOfDelivery
	colRemark
	colDCNotes
	colTransportDesc
	colDocInvoice
	colDocDC
	colDocPO
	colDocEmail
	colImageFirst
)

const imageSlots = 5

// Defaults written on invoices the sheet creates.
const (
	DefaultPaymentTerms    = "30 Days"
	DefaultOtherReferences = "EMAIL Approval"
)

// invoiceRow is a parsed line of the invoice sheet.
type invoiceRow struct {
	Index       int
	Buyer       string
	Location    string
	Item        string
	Description string
	Quantity    string
	UnitRate    string
	Transport   string
	GeneratePDF bool
	Tally       string
	Date        *time.Time

	BuyersOrderNo     string
	BuyersOrderDate   *time.Time
	DispatchDocNo     string
	DispatchedThrough string
	Destination       string
	DeliveryNote      string
	DeliveryNoteDate  *time.Time
	PaymentTerms      string
	ReferenceNo       string
	OtherReferences   string
	TermsOfDelivery   string
	Remark            string
	DCNotes           string
	TransportDesc     string

	Docs   []attachment
	Images []string
}

type attachment struct {
	Slot invoices.FileSlot
	Path string
}

func yes(v string) bool {
	return strings.EqualFold(strings.TrimSpace(v), "yes")
}

func parseInvoiceRow(r sheets.Row) invoiceRow {
	row := invoiceRow{
		Index:       r.Index,
		Buyer:       r.Cell(colBuyer),
		Location:    r.Cell(colLocation),
		Item:        r.Cell(colItem),
		Description: r.Cell(colDescription),
		Quantity:    r.Cell(colQuantity),
		UnitRate:    r.Cell(colUnitRate),
		Transport:   r.Cell(colTransport),
		GeneratePDF: yes(r.Cell(colGeneratePDF)),
		Tally:       r.Cell(colTally),
		Date:        r.Date(colDate),

		BuyersOrderNo:     r.Cell(colBuyersOrderNo),
		BuyersOrderDate:   r.Date(colBuyersOrderDate),
		DispatchDocNo:     r.Cell(colDispatchDocNo),
		DispatchedThrough: r.Cell(colDispatchedThrough),
		Destination:       r.Cell(colDestination),
		DeliveryNote:      r.Cell(colDeliveryNote),
		DeliveryNoteDate:  r.Date(colDeliveryNoteDate),
		PaymentTerms:      r.Cell(colPaymentTerms),
		ReferenceNo:       r.Cell(colReferenceNo),
		OtherReferences:   r.Cell(colOtherReferences),
		TermsOfDelivery:   r.Cell(colTermsOfDelivery),
		Remark:            r.Cell(colRemark),
		DCNotes:           r.Cell(colDCNotes),
		TransportDesc:     r.Cell(colTransportDesc),
	}
	// PO and approval email first, then the overrides.
	for _, a := range []attachment{
		{invoices.FilePO, r.Cell(colDocPO)},
		{invoices.FileEmail, r.Cell(colDocEmail)},
		{invoices.FileInvoice, r.Cell(colDocInvoice)},
		{invoices.FileDC, r.Cell(colDocDC)},
	} {
		if a.Path != "" {
			row.Docs = append(row.Docs, a)
		}
	}
	for i := 0; i < imageSlots; i++ {
		if p := r.Cell(colImageFirst + i); p != "" {
			row.Images = append(row.Images, p)
		}
	}
	return row
}

// quantity parses an integer quantity. Anything unparseable counts as 1.
func quantity(raw string) int {
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil && f == math.Trunc(f) && !math.IsInf(f, 0) {
		return int(f)
	}
	return 1
}

// rate parses a sheet money value; ok is false when it is absent or invalid.
func rate(raw string) (decimal.Decimal, bool) {
	if raw == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// header returns the header values present on the row. With defaults set,
// absent payment terms and references get the standard values.
func (r invoiceRow) header(defaults bool) invoices.Header {
	h := invoices.Header{
		BuyersOrderNo:     r.BuyersOrderNo,
		BuyersOrderDate:   r.BuyersOrderDate,
		DispatchDocNo:     r.DispatchDocNo,
		DispatchedThrough: r.DispatchedThrough,
		Destination:       r.Destination,
		DeliveryNote:      r.DeliveryNote,
		DeliveryNoteDate:  r.DeliveryNoteDate,
		PaymentTerms:      r.PaymentTerms,
		ReferenceNoDate:   r.ReferenceNo,
		OtherReferences:   r.OtherReferences,
		TermsOfDelivery:   r.TermsOfDelivery,
		Remark:            r.Remark,
	}
	if defaults {
		now := time.Now()
		if h.BuyersOrderDate == nil {
			h.BuyersOrderDate = &now
		}
		if h.DeliveryNoteDate == nil {
			h.DeliveryNoteDate = &now
		}
		if h.PaymentTerms == "" {
			h.PaymentTerms = DefaultPaymentTerms
		}
		if h.OtherReferences == "" {
			h.OtherReferences = DefaultOtherReferences
		}
	}
	return h
}

// merge overwrites fields of h that the sheet supplies.
func merge(h invoices.Header, from invoices.Header) invoices.Header {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&h.BuyersOrderNo, from.BuyersOrderNo)
	set(&h.DispatchDocNo, from.DispatchDocNo)
	set(&h.DispatchedThrough, from.DispatchedThrough)
	set(&h.Destination, from.Destination)
	set(&h.DeliveryNote, from.DeliveryNote)
	set(&h.PaymentTerms, from.PaymentTerms)
	set(&h.ReferenceNoDate, from.ReferenceNoDate)
	set(&h.OtherReferences, from.OtherReferences)
	set(&h.TermsOfDelivery, from.TermsOfDelivery)
	set(&h.Remark, from.Remark)
	if from.BuyersOrderDate != nil {
		h.BuyersOrderDate = from.BuyersOrderDate
	}
	if from.DeliveryNoteDate != nil {
		h.DeliveryNoteDate = from.DeliveryNoteDate
	}
	return h
}
