package report

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"
)

// A4 portrait layout in millimetres.
const (
	marginLeft = 20.0
	marginTop  = 20.0
	lineHeight = 7.0
	pageBottom = 280.0
)

// RenderPDF draws r.Lines() onto as many A4 pages as needed.
func RenderPDF(r Report) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(r.Title(), true)
	pdf.SetFont("Helvetica", "", 10)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()
	y := marginTop
	for i, line := range r.Lines() {
		if y > pageBottom {
			pdf.AddPage()
			y = marginTop
		}
		if i == 0 {
			pdf.SetFont("Helvetica", "B", 12)
			pdf.Text(marginLeft, y, tr(line))
			pdf.SetFont("Helvetica", "", 10)
			y += 2 * lineHeight
			continue
		}
		pdf.Text(marginLeft, y, tr(line))
		y += lineHeight
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render report pdf: %w", err)
	}
	return buf.Bytes(), nil
}
