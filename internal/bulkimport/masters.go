package bulkimport

import (
	"context"
	"fmt"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/clientdoc/internal/masterdata"
	"github.com/odyssey-erp/clientdoc/internal/sheets"
)

// MasterWriter upserts master records by name.
type MasterWriter interface {
	UpsertBuyer(ctx context.Context, b masterdata.Buyer) (masterdata.Buyer, bool, error)
	UpsertLocation(ctx context.Context, l masterdata.Location) (masterdata.Location, bool, error)
	UpsertItem(ctx context.Context, it masterdata.Item, category string) (masterdata.Item, bool, error)
}

// ImportMasters applies a buyer, item or location sheet. Rows with an empty
// first cell are ignored.
func ImportMasters(ctx context.Context, w MasterWriter, kind sheets.Kind, rows []sheets.Row) (Result, error) {
	var res Result
	for _, r := range rows {
		if r.Cell(0) == "" {
			continue
		}
		var (
			name    string
			created bool
			err     error
			label   string
		)
		switch kind {
		case sheets.KindBuyer:
			label = "Buyer"
			var b masterdata.Buyer
			b, created, err = w.UpsertBuyer(ctx, buyerFromRow(r))
			name = b.Name
		case sheets.KindItem:
			label = "Item"
			var it masterdata.Item
			it, created, err = w.UpsertItem(ctx, itemFromRow(r), r.Cell(1))
			name = it.Name
		case sheets.KindLocation:
			label = "Location"
			var l masterdata.Location
			l, created, err = w.UpsertLocation(ctx, locationFromRow(r))
			name = l.Name
		default:
			return res, fmt.Errorf("%w: %q", sheets.ErrUnknownKind, kind)
		}
		if err != nil {
			res.logf("Row %d: Error - %v", r.Index, err)
			res.Errors++
			continue
		}
		verb := "Updated"
		if created {
			verb = "Created"
			res.Created++
		} else {
			res.Updated++
		}
		res.logf("Row %d: %s %s '%s'", r.Index, verb, label, name)
	}
	return res, nil
}

func buyerFromRow(r sheets.Row) masterdata.Buyer {
	return masterdata.Buyer{
		Name:    r.Cell(0),
		Address: r.Cell(1),
		GSTIN:   r.Cell(2),
		State:   r.Cell(3),
		Phone:   r.Cell(4),
		Email:   r.Cell(5),
	}
}

func itemFromRow(r sheets.Row) masterdata.Item {
	price, ok := rate(r.Cell(4))
	if !ok {
		price = decimal.Zero
	}
	gst, ok := rate(r.Cell(5))
	if !ok {
		gst = masterdata.DefaultGSTRate
	}
	return masterdata.Item{
		Name:        r.Cell(0),
		ArticleCode: r.Cell(2),
		Description: r.Cell(3),
		Price:       price,
		GSTRate:     gst,
		HSNCode:     r.Cell(6),
		Unit:        r.Cell(7),
	}
}

func locationFromRow(r sheets.Row) masterdata.Location {
	gstin := r.Cell(5)
	return masterdata.Location{
		Name:      r.Cell(0),
		SiteCode:  r.Cell(1),
		Address:   r.Cell(2),
		City:      r.Cell(3),
		State:     r.Cell(4),
		StateCode: stateCode(gstin),
		GSTIN:     gstin,
		Priority:  r.Cell(6),
	}
}

// stateCode is the two-digit prefix of a GSTIN, or "".
func stateCode(gstin string) string {
	if len(gstin) < 2 {
		return ""
	}
	for _, c := range gstin[:2] {
		if !unicode.IsDigit(c) {
			return ""
		}
	}
	return gstin[:2]
}
