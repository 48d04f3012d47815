package kernel

import (
	"fmt"
	"strconv"
	"strings"
)

// ExpressionMatrix is the parsed form of a Dataset's tab-delimited data
// field: a header row of sample labels (leading tab) followed by rows
// beginning with a gene/protein identifier.
type ExpressionMatrix struct {
	Genes   []string
	Samples []string
	Values  [][]float64 // Values[gene_index][sample_index]
}

// ParseMatrix parses the tab-delimited wire format described in the
// external-interfaces data format conventions.
func ParseMatrix(data string) (ExpressionMatrix, error) {
	lines := strings.Split(strings.TrimRight(data, "\n"), "\n")
	if len(lines) < 2 {
		return ExpressionMatrix{}, fmt.Errorf("kernel: expression matrix needs a header row and at least one gene row")
	}

	header := strings.Split(lines[0], "\t")
	if len(header) < 2 {
		return ExpressionMatrix{}, fmt.Errorf("kernel: header row must lead with an empty cell followed by sample labels")
	}
	samples := header[1:]

	m := ExpressionMatrix{Samples: samples}
	for i, line := range lines[1:] {
		if line == "" {
			continue
		}
		cells := strings.Split(line, "\t")
		if len(cells) != len(header) {
			return ExpressionMatrix{}, fmt.Errorf("kernel: row %d has %d columns, want %d", i+1, len(cells), len(header))
		}
		m.Genes = append(m.Genes, cells[0])
		row := make([]float64, len(samples))
		for j, cell := range cells[1:] {
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return ExpressionMatrix{}, fmt.Errorf("kernel: row %d col %d: %w", i+1, j+1, err)
			}
			row[j] = v
		}
		m.Values = append(m.Values, row)
	}
	return m, nil
}

// SampleIndex returns the column index of a sample label, or -1.
func (m ExpressionMatrix) SampleIndex(sample string) int {
	for i, s := range m.Samples {
		if s == sample {
			return i
		}
	}
	return -1
}

// GroupIndices partitions matrix column indices into two groups using
// the design's per-sample analysisGroup label, matched positionally
// against the design's own sample order (validated equal to the
// matrix's column order at admission). Samples whose label matches
// neither group1 nor group2 are ignored (e.g. a third covariate
// stratum not part of this comparison).
func GroupIndices(designSamples []string, analysisGroup []string, group1, group2 string) (g1, g2 []int) {
	for i := range designSamples {
		if i >= len(analysisGroup) {
			continue
		}
		switch analysisGroup[i] {
		case group1:
			g1 = append(g1, i)
		case group2:
			g2 = append(g2, i)
		}
	}
	return g1, g2
}
