package export

import (
	"fmt"
	"strings"
)

// Format names a supported output.
type Format string

const (
	FormatCSV Format = "csv"
	FormatPDF Format = "pdf"
)

// ParseFormat accepts "csv" or "pdf" in any case; empty means CSV.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatPDF:
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", raw)
	}
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatPDF {
		return "application/pdf"
	}
	return "text/csv; charset=utf-8"
}

// Table is tabular export content. Rows are positional and must match Columns.
type Table struct {
	Title   string
	Columns []string
	Rows    [][]string
}

// Render encodes the table in the requested format.
func Render(format Format, table Table) ([]byte, error) {
	if len(table.Columns) == 0 {
		return nil, fmt.Errorf("export requires at least one column")
	}
	for i, row := range table.Rows {
		if len(row) != len(table.Columns) {
			return nil, fmt.Errorf("row %d has %d cells, want %d", i, len(row), len(table.Columns))
		}
	}

	switch format {
	case FormatPDF:
		return renderPDF(table)
	case FormatCSV:
		return renderCSV(table)
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}
