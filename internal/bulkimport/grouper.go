package bulkimport

import (
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/odyssey-erp/clientdoc/internal/sheets"
)

// Group is the set of rows that become one invoice.
type Group struct {
	Key  string
	Rows []invoiceRow
}

// Indices lists the sheet rows of the group, e.g. "2, 3".
func (g Group) Indices() string {
	parts := make([]string, len(g.Rows))
	for i, r := range g.Rows {
		parts[i] = strconv.Itoa(r.Index)
	}
	return strings.Join(parts, ", ")
}

// WantsPDF reports whether any row asks for the bundle.
func (g Group) WantsPDF() bool {
	for _, r := range g.Rows {
		if r.GeneratePDF {
			return true
		}
	}
	return false
}

func (g Group) first() invoiceRow { return g.Rows[0] }

// GroupRows filters eligible rows and groups them by tally number. Rows
// without one each get a singleton group. Groups keep first-seen order.
// Rows missing location, item or a positive quantity count as errors; rows not marked
// for generation are skipped without counting.
func GroupRows(rows []sheets.Row) ([]Group, Result) {
	var (
		res    Result
		groups []Group
		byKey  = map[string]int{}
	)
	for _, raw := range rows {
		if !yes(raw.Cell(colGenerate)) {
			res.logf("Row %d: Skipped (Generate != Yes)", raw.Index)
			continue
		}
		row := parseInvoiceRow(raw)
		if row.Location == "" || row.Item == "" || row.Quantity == "" || quantity(row.Quantity) <= 0 {
			res.logf("Row %d: Skipped (Missing essential Item/Location data)", raw.Index)
			res.Errors++
			continue
		}

		key := "UNIQUE::" + uuid.NewString()
		if row.Tally != "" {
			key = "TALLY::" + strings.ToLower(row.Tally)
		}
		idx, ok := byKey[key]
		if !ok {
			idx = len(groups)
			byKey[key] = idx
			groups = append(groups, Group{Key: key})
		}
		groups[idx].Rows = append(groups[idx].Rows, row)
	}
	return groups, res
}
