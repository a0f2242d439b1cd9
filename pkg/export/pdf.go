package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const (
	pageWidth  = 277.0 // A4 landscape minus margins
	rowHeight  = 7.0
	headHeight = 8.0
)

func renderPDF(table Table) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 12, 10)
	pdf.SetAutoPageBreak(true, 12)
	pdf.AddPage()

	if table.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, table.Title, "", 1, "L", false, 0, "")
		pdf.Ln(3)
	}

	colWidth := pageWidth / float64(len(table.Columns))
	header := func() {
		pdf.SetFont("Arial", "B", 10)
		pdf.SetFillColor(230, 230, 230)
		for _, col := range table.Columns {
			pdf.CellFormat(colWidth, headHeight, col, "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 9)
	}
	header()

	_, pageHeight := pdf.GetPageSize()
	_, _, _, bottom := pdf.GetMargins()
	for _, row := range table.Rows {
		if pdf.GetY()+rowHeight > pageHeight-bottom {
			pdf.AddPage()
			header()
		}
		for _, cell := range row {
			pdf.CellFormat(colWidth, rowHeight, cell, "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	if len(table.Rows) == 0 {
		pdf.SetFont("Arial", "I", 9)
		pdf.CellFormat(0, rowHeight, "No sessions scheduled.", "", 1, "L", false, 0, "")
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
