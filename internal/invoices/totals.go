package invoices

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/clientdoc/internal/masterdata"
)

var two = decimal.NewFromInt(2)

// PlaceOfSupply picks the invoice override, then the location state code,
// then the company state code.
func PlaceOfSupply(inv Invoice, locationStateCode, companyStateCode string) string {
	if inv.PlaceOfSupply != nil && strings.TrimSpace(*inv.PlaceOfSupply) != "" {
		return strings.TrimSpace(*inv.PlaceOfSupply)
	}
	if code := strings.TrimSpace(locationStateCode); code != "" {
		return code
	}
	return companyStateCode
}

// ComputeTotals applies the GST formula to the lines and transport charges.
// Inter-state supply is charged as IGST; otherwise tax splits into CGST and SGST.
func ComputeTotals(inv Invoice, lines []Line, transport *TransportCharges, locationStateCode, companyStateCode string) Totals {
	taxable := decimal.Zero
	tax := decimal.Zero
	for _, l := range lines {
		amount := l.Taxable()
		taxable = taxable.Add(amount)
		tax = tax.Add(amount.Mul(l.GSTRate))
	}
	if transport != nil && transport.DeletedAt == nil && transport.Charges.IsPositive() {
		taxable = taxable.Add(transport.Charges)
		tax = tax.Add(transport.Charges.Mul(masterdata.DefaultGSTRate))
	}

	out := Totals{
		TaxableValue: taxable.Round(2),
		CGST:         decimal.Zero,
		SGST:         decimal.Zero,
		IGST:         decimal.Zero,
	}
	tax = tax.Round(2)
	if PlaceOfSupply(inv, locationStateCode, companyStateCode) != companyStateCode {
		out.IGST = tax
	} else {
		out.CGST = tax.Div(two).Round(2)
		out.SGST = tax.Sub(out.CGST)
	}
	out.Grand = out.TaxableValue.Add(out.Tax())
	return out
}
