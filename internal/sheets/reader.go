package sheets

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// Row is one data row of an uploaded sheet. Index is the 1-based sheet row.
type Row struct {
	Index int
	Cells []string
}

// Cell returns the trimmed value of column i (0-based), or "".
func (r Row) Cell(i int) string {
	if i < 0 || i >= len(r.Cells) {
		return ""
	}
	return strings.TrimSpace(r.Cells[i])
}

// Date parses column i as YYYY-MM-DD or an Excel serial date. Empty or
// unparseable values yield nil.
func (r Row) Date(i int) *time.Time {
	return ParseDate(r.Cell(i))
}

// ParseDate accepts YYYY-MM-DD, a timestamp with that prefix, or a serial.
func ParseDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02", "2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	if serial, err := strconv.ParseFloat(raw, 64); err == nil && serial > 0 {
		if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
			return &t
		}
	}
	return nil
}

func (r Row) empty() bool {
	for _, c := range r.Cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// ReadRows reads the active worksheet, skipping the header row and rows
// whose cells are all empty. Values are raw so dates arrive as serials.
func ReadRows(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("sheets: open workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	raw, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("sheets: read %q: %w", sheet, err)
	}
	var rows []Row
	for i, cells := range raw {
		if i == 0 {
			continue
		}
		row := Row{Index: i + 1, Cells: cells}
		if row.empty() {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}
