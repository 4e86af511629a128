package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// SnapshotDocument carries the fields rendered into a proposal PDF.
type SnapshotDocument struct {
	Title       string
	Description string
	Content     string
	Version     int
	CreatedAt   time.Time
	WordCount   int
}

// PDFExporter renders proposal snapshots into printable PDFs.
type PDFExporter struct {
	companyName string
}

// NewPDFExporter creates an exporter branding pages with the company name.
func NewPDFExporter(companyName string) *PDFExporter {
	return &PDFExporter{companyName: companyName}
}

// RenderSnapshot creates a PDF of a single version snapshot.
func (e *PDFExporter) RenderSnapshot(doc SnapshotDocument) ([]byte, error) {
	if strings.TrimSpace(doc.Title) == "" {
		return nil, fmt.Errorf("pdf requires a title")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 20, 15)
	pdf.AddPage()

	if e.companyName != "" {
		pdf.SetFont("Arial", "I", 9)
		pdf.CellFormat(0, 6, e.companyName, "", 1, "R", false, 0, "")
		pdf.Ln(2)
	}

	pdf.SetFont("Arial", "B", 16)
	pdf.MultiCell(0, 8, doc.Title, "", "L", false)
	pdf.Ln(1)

	pdf.SetFont("Arial", "", 9)
	meta := fmt.Sprintf("Version %d - %s - %d words", doc.Version, doc.CreatedAt.Format("2 Jan 2006 15:04"), doc.WordCount)
	pdf.CellFormat(0, 5, meta, "", 1, "L", false, 0, "")
	pdf.Ln(3)

	if doc.Description != "" {
		pdf.SetFont("Arial", "I", 10)
		pdf.MultiCell(0, 5, doc.Description, "", "L", false)
		pdf.Ln(3)
	}

	pdf.SetFont("Arial", "", 11)
	for _, paragraph := range strings.Split(doc.Content, "\n") {
		if strings.TrimSpace(paragraph) == "" {
			pdf.Ln(4)
			continue
		}
		pdf.MultiCell(0, 6, paragraph, "", "L", false)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
