// Package report builds the spreadsheet and PDF artifacts the Report
// Generator produces from a completed AnalysisResult: one worksheet or
// page per dataset's pathway table, rendered from the kernel's
// tab-delimited output.
package report

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/gsaplatform/orchestrator/internal/domain"
)

// BuildXLSX renders one worksheet per dataset in result.Results,
// returning the workbook bytes.
func BuildXLSX(result domain.AnalysisResult) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	names := sortedResultNames(result.Results)
	if len(names) == 0 {
		return nil, fmt.Errorf("report: analysis result has no datasets")
	}

	for i, name := range names {
		sheet := sheetName(name)
		if i == 0 {
			f.SetSheetName("Sheet1", sheet)
		} else if _, err := f.NewSheet(sheet); err != nil {
			return nil, fmt.Errorf("report: add sheet %q: %w", sheet, err)
		}
		if err := writeTable(f, sheet, result.Results[name]); err != nil {
			return nil, fmt.Errorf("report: write sheet %q: %w", sheet, err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("report: serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeTable(f *excelize.File, sheet, tsv string) error {
	rows := strings.Split(strings.TrimRight(tsv, "\n"), "\n")
	for r, line := range rows {
		if line == "" {
			continue
		}
		for c, cell := range strings.Split(line, "\t") {
			axis, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, axis, cell); err != nil {
				return err
			}
		}
	}
	return nil
}

// sheetName truncates and sanitizes a dataset name to Excel's 31-char
// sheet-name limit and forbidden-character set.
func sheetName(name string) string {
	replacer := strings.NewReplacer("/", "-", "\\", "-", "?", "", "*", "", "[", "(", "]", ")", ":", "-")
	clean := replacer.Replace(name)
	if len(clean) > 31 {
		clean = clean[:31]
	}
	if clean == "" {
		clean = "Sheet"
	}
	return clean
}

func sortedResultNames(results map[string]string) []string {
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
