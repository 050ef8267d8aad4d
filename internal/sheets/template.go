// Package sheets builds the bulk-upload spreadsheets and reads uploaded ones.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/clientdoc/internal/masterdata"
)

// Kind selects the spreadsheet layout.
type Kind string

const (
	KindBuyer    Kind = "buyer"
	KindItem     Kind = "item"
	KindLocation Kind = "location"
	KindInvoice  Kind = "invoice"
)

// ErrUnknownKind rejects an unsupported upload type.
var ErrUnknownKind = errors.New("sheets: unknown upload type")

// ParseKind validates an upload type. Empty input means invoice.
func ParseKind(raw string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(raw))); k {
	case "":
		return KindInvoice, nil
	case KindBuyer, KindItem, KindLocation, KindInvoice:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, raw)
}

// Title is the kind in title case, as used in sheet and file names.
func (k Kind) Title() string {
	return cases.Title(language.English).String(string(k))
}

// ReferenceSheet is the hidden sheet backing the invoice dropdowns.
const ReferenceSheet = "Reference Data"

const (
	lastTemplateRow = 500
	headerFill      = "808080"
	firstHeaderFill = "0070C0"
)

type layout struct {
	headers []string
	widths  []float64
}

var layouts = map[Kind]layout{
	KindBuyer: {
		headers: []string{"Buyer Name*", "Address", "GSTIN", "State", "Phone", "Email"},
		widths:  []float64{30, 40, 20, 20, 20, 30},
	},
	KindItem: {
		headers: []string{"Item Name*", "Category", "Article/SKU", "Description", "Price*", "GST Rate (0.18)*", "HSN Code", "Unit (Nos)"},
		widths:  []float64{30, 20, 20, 40, 15, 15, 15, 15},
	},
	KindLocation: {
		headers: []string{"Location Name*", "Site Code", "Address", "City", "State", "GSTIN", "Priority"},
		widths:  []float64{30, 15, 40, 20, 20, 20, 15},
	},
	KindInvoice: invoiceLayout(),
}

// InvoiceHeaders is the column contract of the invoice upload.
var InvoiceHeaders = []string{
	"Buyer Name", "Location Name", "Item Name", "Item Description", "Quantity", "Unit Rate",
	"SGST", "CGST", "IGST", "Transport Charges", "Total Amount",
	"Generate Invoice (Yes/No)", "Generate PDF (Yes/No)",
	"Tally Invoice No. (Identifier)", "Invoce Date",
	"Buyer's Order No.", "Buyer's Order Date (YYYY-MM-DD)",
	"Dispatch Doc No.", "Dispatched Through", "Destination",
	"Delivery Note", "Delivery Note Date (YYYY-MM-DD)",
	"Mode/Terms of Payment", "Reference No. & Date", "Other References",
	"Terms of Delivery", "Remarks", "DC Notes", "Transport Description",
	"Doc-1 Invoice (Path)", "Doc-2 DC (Path)", "Doc-3 Buyer Po (Path)", "Doc 4 Email approal (Path)",
	"Doc-images-1", "Doc-images-2", "Doc-images-3", "Doc-images-4", "Doc-images-5",
}

func invoiceLayout() layout {
	widths := make([]float64, len(InvoiceHeaders))
	for i := range widths {
		widths[i] = 25
	}
	widths[0], widths[1], widths[2], widths[3] = 30, 30, 30, 40
	return layout{headers: InvoiceHeaders, widths: widths}
}

var invoiceComments = []excelize.Comment{
	{Cell: "A1", Text: "Select Buyer from dropdown or ensure exact name match."},
	{Cell: "B1", Text: "Select Location (Ship To) from dropdown."},
	{Cell: "C1", Text: "Select Item. Description/Price auto-fill if left blank."},
	{Cell: "J1", Text: "Fill amount to auto-generate Transport Bill."},
	{Cell: "L1", Text: "Must be 'Yes' to process row."},
	{Cell: "M1", Text: "Must be 'Yes' to bundle PDFs."},
	{Cell: "N1", Text: "Unique ID. Leave blank to auto-generate (Tsol-XXXXX). Use same ID on multiple rows to group items."},
	{Cell: "U1", Text: "If filled, Delivery Challan (DC) is auto-created."},
	{Cell: "V1", Text: "If filled, Delivery Challan (DC) is auto-created."},
	{Cell: "AB1", Text: "Notes for DC. If filled, DC is auto-created."},
	{Cell: "AD1", Text: `Absolute file path (e.g. C:\Docs\Inv.pdf). Overrides auto-gen invoice.`},
	{Cell: "AG1", Text: "Absolute file path for Approval Email PDF."},
}

// Catalog is the master data written into exports and invoice dropdowns.
type Catalog struct {
	Buyers    []masterdata.Buyer
	Locations []masterdata.Location
	Items     []masterdata.Item
}

// CatalogSource lists master data.
type CatalogSource interface {
	ListBuyers(ctx context.Context) ([]masterdata.Buyer, error)
	ListLocations(ctx context.Context) ([]masterdata.Location, error)
	ListItems(ctx context.Context) ([]masterdata.Item, error)
}

// LoadCatalog reads every live master record from src.
func LoadCatalog(ctx context.Context, src CatalogSource) (Catalog, error) {
	var (
		c   Catalog
		err error
	)
	if c.Buyers, err = src.ListBuyers(ctx); err != nil {
		return Catalog{}, fmt.Errorf("sheets: list buyers: %w", err)
	}
	if c.Locations, err = src.ListLocations(ctx); err != nil {
		return Catalog{}, fmt.Errorf("sheets: list locations: %w", err)
	}
	if c.Items, err = src.ListItems(ctx); err != nil {
		return Catalog{}, fmt.Errorf("sheets: list items: %w", err)
	}
	return c, nil
}

// Filename is the attachment name of a generated workbook.
func Filename(kind Kind, export bool, now time.Time) string {
	mode := "Template"
	if export {
		mode = "Export"
	}
	return fmt.Sprintf("Bulk_%s_%s_%s.xlsx", kind.Title(), mode, now.Format("2006-01-02_15-04"))
}

// SheetTitle is the name of the main worksheet.
func SheetTitle(kind Kind, export bool) string {
	if export {
		return kind.Title() + " Data"
	}
	return kind.Title() + " Template"
}

// Build creates the template, or with export set, the template plus one row
// per master record. Invoice workbooks also carry the hidden reference sheet,
// the dropdowns and the unit-rate lookup.
func Build(kind Kind, export bool, catalog Catalog) (*excelize.File, error) {
	lay, ok := layouts[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	f := excelize.NewFile()
	sheet := SheetTitle(kind, export)
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		_ = f.Close()
		return nil, err
	}

	if err := writeHeader(f, sheet, lay); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("sheets: header: %w", err)
	}
	if kind == KindInvoice {
		for _, c := range invoiceComments {
			c.Author = "System"
			if err := f.AddComment(sheet, c); err != nil {
				_ = f.Close()
				return nil, fmt.Errorf("sheets: comment %s: %w", c.Cell, err)
			}
		}
	}
	if export {
		if err := writeRows(f, sheet, kind, catalog); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("sheets: export rows: %w", err)
		}
	}
	if kind == KindInvoice {
		if err := addInvoiceHelpers(f, sheet, catalog); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("sheets: invoice helpers: %w", err)
		}
	}
	return f, nil
}

func writeHeader(f *excelize.File, sheet string, lay layout) error {
	header := make([]any, len(lay.headers))
	for i, h := range lay.headers {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}

	grey, err := f.NewStyle(headerStyle(headerFill))
	if err != nil {
		return err
	}
	blue, err := f.NewStyle(headerStyle(firstHeaderFill))
	if err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(lay.headers), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, grey); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", "A1", blue); err != nil {
		return err
	}

	for i, w := range lay.widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, col, col, w); err != nil {
			return err
		}
	}
	return nil
}

func headerStyle(fill string) *excelize.Style {
	return &excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{fill}},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	}
}

func writeRows(f *excelize.File, sheet string, kind Kind, catalog Catalog) error {
	var rows [][]any
	switch kind {
	case KindBuyer:
		for _, b := range catalog.Buyers {
			rows = append(rows, []any{b.Name, b.Address, b.GSTIN, b.State, b.Phone, b.Email})
		}
	case KindItem:
		for _, it := range catalog.Items {
			rows = append(rows, []any{
				it.Name, it.CategoryName, it.ArticleCode, it.Description,
				it.Price.InexactFloat64(), it.GSTRate.InexactFloat64(), it.HSNCode, it.Unit,
			})
		}
	case KindLocation:
		for _, l := range catalog.Locations {
			rows = append(rows, []any{l.Name, l.SiteCode, l.Address, l.City, l.State, l.GSTIN, l.Priority})
		}
	}
	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &rows[i]); err != nil {
			return err
		}
	}
	return nil
}

func addInvoiceHelpers(f *excelize.File, sheet string, catalog Catalog) error {
	if _, err := f.NewSheet(ReferenceSheet); err != nil {
		return err
	}
	for i, b := range catalog.Buyers {
		if err := f.SetCellValue(ReferenceSheet, fmt.Sprintf("A%d", i+1), b.Name); err != nil {
			return err
		}
	}
	for i, l := range catalog.Locations {
		if err := f.SetCellValue(ReferenceSheet, fmt.Sprintf("B%d", i+1), l.Name); err != nil {
			return err
		}
	}
	for i, it := range catalog.Items {
		row := []any{it.Name, it.Price.InexactFloat64(), it.GSTRate.InexactFloat64()}
		if err := f.SetSheetRow(ReferenceSheet, fmt.Sprintf("C%d", i+1), &row); err != nil {
			return err
		}
	}
	if err := f.SetSheetVisible(ReferenceSheet, false); err != nil {
		return err
	}

	lists := []struct {
		name, col, target string
		n                 int
	}{
		{"BuyerList", "A", "A", len(catalog.Buyers)},
		{"LocList", "B", "B", len(catalog.Locations)},
		{"ItemList", "C", "C", len(catalog.Items)},
	}
	for _, l := range lists {
		if l.n == 0 {
			continue
		}
		if err := f.SetDefinedName(&excelize.DefinedName{
			Name:     l.name,
			RefersTo: fmt.Sprintf("'%s'!$%s$1:$%s$%d", ReferenceSheet, l.col, l.col, l.n),
		}); err != nil {
			return err
		}
		dv := excelize.NewDataValidation(true)
		dv.Sqref = fmt.Sprintf("%s2:%s%d", l.target, l.target, lastTemplateRow)
		dv.SetSqrefDropList(l.name)
		if err := f.AddDataValidation(sheet, dv); err != nil {
			return err
		}
	}

	lookupEnd := len(catalog.Items) + 1
	for r := 2; r <= lastTemplateRow; r++ {
		formula := fmt.Sprintf(`IFERROR(VLOOKUP(C%d,'%s'!$C$1:$E$%d,2,FALSE),"")`, r, ReferenceSheet, lookupEnd)
		if err := f.SetCellFormula(sheet, fmt.Sprintf("F%d", r), formula); err != nil {
			return err
		}
	}

	for _, col := range []string{"L", "M"} {
		dv := excelize.NewDataValidation(false)
		dv.Sqref = fmt.Sprintf("%s2:%s%d", col, col, lastTemplateRow)
		if err := dv.SetDropList([]string{"Yes", "No"}); err != nil {
			return err
		}
		if err := f.AddDataValidation(sheet, dv); err != nil {
			return err
		}
	}

	defaults := map[string]string{
		"L2": "Yes",
		"M2": "Yes",
		"W2": "30 Days",
		"Y2": "EMAIL Approval",
	}
	for cell, v := range defaults {
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return err
		}
	}
	return nil
}
