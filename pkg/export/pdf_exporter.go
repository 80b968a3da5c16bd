package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// MetaRow is a labelled value printed in the document header block.
type MetaRow struct {
	Label string
	Value string
}

// DocumentSection groups a heading with either free text or a table.
type DocumentSection struct {
	Heading    string
	Paragraphs []string
	Table      Table
}

// Document describes a printable certificate-style PDF.
type Document struct {
	Title    string
	Subtitle string
	Meta     []MetaRow
	Sections []DocumentSection
	Footer   string
}

// PDFExporter renders documents into A4 PDFs.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// RenderDocument creates a PDF with a header block and sectioned body.
func (e *PDFExporter) RenderDocument(doc Document) ([]byte, error) {
	if doc.Title == "" {
		return nil, fmt.Errorf("pdf requires a title")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 10, strings.ToUpper(doc.Title), "", 1, "C", false, 0, "")
	if doc.Subtitle != "" {
		pdf.SetFont("Arial", "", 11)
		pdf.CellFormat(0, 7, doc.Subtitle, "", 1, "C", false, 0, "")
	}
	pdf.Ln(4)

	if len(doc.Meta) > 0 {
		for _, row := range doc.Meta {
			pdf.SetFont("Arial", "B", 9)
			pdf.CellFormat(55, 6, row.Label, "1", 0, "", false, 0, "")
			pdf.SetFont("Arial", "", 9)
			pdf.CellFormat(135, 6, row.Value, "1", 1, "", false, 0, "")
		}
		pdf.Ln(4)
	}

	for _, section := range doc.Sections {
		if section.Heading != "" {
			pdf.SetFont("Arial", "B", 11)
			pdf.CellFormat(0, 8, section.Heading, "", 1, "", false, 0, "")
		}
		for _, paragraph := range section.Paragraphs {
			pdf.SetFont("Arial", "", 9)
			pdf.MultiCell(0, 5, paragraph, "", "", false)
			pdf.Ln(1)
		}
		if len(section.Table.Headers) > 0 {
			e.renderTable(pdf, section.Table)
		}
		pdf.Ln(3)
	}

	if doc.Footer != "" {
		pdf.Ln(2)
		pdf.SetFont("Arial", "I", 8)
		pdf.MultiCell(0, 4, doc.Footer, "", "", false)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *PDFExporter) renderTable(pdf *gofpdf.Fpdf, table Table) {
	pdf.SetFont("Arial", "B", 9)
	colWidth := 190.0 / float64(len(table.Headers))
	for _, header := range table.Headers {
		pdf.CellFormat(colWidth, 7, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 8)
	for _, row := range table.Rows {
		for _, header := range table.Headers {
			pdf.CellFormat(colWidth, 6, row[header], "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}
}
