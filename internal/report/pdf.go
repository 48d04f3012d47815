package report

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf/v2"

	"github.com/gsaplatform/orchestrator/internal/domain"
)

// BuildPDF renders one page per dataset's pathway table as a simple
// tabular summary.
func BuildPDF(release string, result domain.AnalysisResult) ([]byte, error) {
	names := sortedResultNames(result.Results)
	if len(names) == 0 {
		return nil, fmt.Errorf("report: analysis result has no datasets")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Gene Set Analysis Report", false)

	for _, name := range names {
		pdf.AddPage()
		pdf.SetFont("Arial", "B", 16)
		pdf.CellFormat(0, 10, "Gene Set Analysis Report", "", 1, "C", false, 0, "")
		pdf.SetFont("Arial", "", 11)
		pdf.CellFormat(0, 8, fmt.Sprintf("Dataset: %s  |  Pathway release: %s", name, release), "", 1, "L", false, 0, "")
		pdf.Ln(4)

		writePDFTable(pdf, result.Results[name])
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("report: render PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func writePDFTable(pdf *gofpdf.Fpdf, tsv string) {
	rows := strings.Split(strings.TrimRight(tsv, "\n"), "\n")
	if len(rows) == 0 {
		return
	}

	colWidth := 45.0
	pdf.SetFont("Arial", "B", 10)
	for _, cell := range strings.Split(rows[0], "\t") {
		pdf.CellFormat(colWidth, 7, cell, "1", 0, "L", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, line := range rows[1:] {
		if line == "" {
			continue
		}
		for _, cell := range strings.Split(line, "\t") {
			pdf.CellFormat(colWidth, 6, cell, "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}
}
