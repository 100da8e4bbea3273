package backup

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// MIME types of the two artifact kinds.
const (
	MimeTypeCSV = "text/csv"
	MimeTypePDF = "application/pdf"
)

// tableRenderer is the default ArtifactRenderer. The CSV output is the
// restore wire format; the PDF is a human-readable table and is never read
// back by the pipeline.
type tableRenderer struct{}

// NewTableRenderer creates the default artifact renderer.
func NewTableRenderer() ArtifactRenderer {
	return &tableRenderer{}
}

// RenderCSV renders a header row followed by the data rows.
func (r *tableRenderer) RenderCSV(headers []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(headers); err != nil {
		return nil, NewStorageError("failed to write CSV header", err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return nil, NewStorageError("failed to write CSV row", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, NewStorageError("failed to flush CSV artifact", err)
	}
	return buf.Bytes(), nil
}

// RenderPDF renders a landscape table with a title, a shaded header row and
// alternating row striping.
func (r *tableRenderer) RenderPDF(title string, headers []string, rows [][]string) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetTitle(title, false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 10, title, "", 1, "L", false, 0, "")
	pdf.Ln(2)

	pageWidth, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	usable := pageWidth - left - right
	colWidth := usable / float64(len(headers))

	pdf.SetFont("Helvetica", "B", 8)
	pdf.SetFillColor(220, 220, 220)
	for _, h := range headers {
		pdf.CellFormat(colWidth, 7, h, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 8)
	for i, row := range rows {
		if i%2 == 1 {
			pdf.SetFillColor(245, 245, 245)
		} else {
			pdf.SetFillColor(255, 255, 255)
		}
		for _, cell := range row {
			pdf.CellFormat(colWidth, 6, truncateCell(cell, 28), "1", 0, "L", true, 0, "")
		}
		pdf.Ln(-1)
	}

	pdf.SetFont("Helvetica", "I", 7)
	pdf.Ln(3)
	pdf.CellFormat(0, 5, fmt.Sprintf("%d rows", len(rows)), "", 1, "L", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, NewStorageError("failed to render PDF artifact", err)
	}
	return buf.Bytes(), nil
}

func truncateCell(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
