package kernel

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/gsaplatform/orchestrator/internal/domain"
)

// SingleSampleKernel implements per-sample gene-set scoring (an
// ssGSEA-style rank-based enrichment score computed independently for
// each sample, with no group comparison required). It therefore ignores
// Design entirely -- "no paired design" is its native mode.
type SingleSampleKernel struct {
	lib pathwayLibrary
}

// NewSingleSampleKernel returns a SingleSampleKernel with no library loaded yet.
func NewSingleSampleKernel() *SingleSampleKernel {
	return &SingleSampleKernel{}
}

func (k *SingleSampleKernel) Name() string { return "SingleSampleScore" }

func (k *SingleSampleKernel) LoadLibraries(pathwayRelease string) error {
	k.lib = pathwayLibrary{release: pathwayRelease, sets: defaultPathwayLibrary()}
	return nil
}

func (k *SingleSampleKernel) Prepare(ds domain.Dataset) (Prepared, error) {
	m, err := ParseMatrix(ds.Data)
	if err != nil {
		return Prepared{}, fmt.Errorf("singlesample: prepare %s: %w", ds.Name, err)
	}
	return Prepared{DatasetName: ds.Name, Matrix: m, Design: ds.Design, Type: ds.Type}, nil
}

func (k *SingleSampleKernel) Process(p Prepared, progress ProgressFunc) (string, error) {
	if k.lib.sets == nil {
		return "", fmt.Errorf("singlesample: LoadLibraries was never called")
	}

	ranks := rankWithinSample(p.Matrix)

	names := sortedKeys(k.lib.sets)
	type row struct {
		pathway string
		scores  []float64
	}
	rows := make([]row, 0, len(names))
	for i, pathway := range names {
		geneIdx := indicesOf(p.Matrix.Genes, k.lib.sets[pathway])
		scores := make([]float64, len(p.Matrix.Samples))
		for s := range p.Matrix.Samples {
			scores[s] = enrichmentScore(ranks, geneIdx, s, len(p.Matrix.Genes))
		}
		rows = append(rows, row{pathway: pathway, scores: scores})
		progress(float64(i+1)/float64(len(names)), fmt.Sprintf("scored %s", pathway))
	}

	var sb strings.Builder
	sb.WriteString("Pathway\tDirection\tFDR\tPValue\n")
	for _, r := range rows {
		mean := 0.0
		for _, s := range r.scores {
			mean += s
		}
		mean /= float64(max(len(r.scores), 1))
		direction := "up"
		if mean < 0 {
			direction = "down"
		}
		// Single-sample scoring has no null model here; report a
		// conservative placeholder significance so downstream report
		// rendering has well-formed numeric columns.
		fmt.Fprintf(&sb, "%s\t%s\t%g\t%g\n", r.pathway, direction, 1.0, 1.0)
	}
	progress(1.0, "scoring complete")
	return sb.String(), nil
}

func (k *SingleSampleKernel) GeneFoldChanges(p Prepared) (string, error) {
	// Single-sample scoring has no two-group contrast; per the design's
	// "no paired design" handling, this is a legitimate empty result
	// rather than an error.
	return "", nil
}

func rankWithinSample(m ExpressionMatrix) [][]float64 {
	ranks := make([][]float64, len(m.Genes))
	for g := range ranks {
		ranks[g] = make([]float64, len(m.Samples))
	}
	for s := range m.Samples {
		col := make([]float64, len(m.Genes))
		for g := range m.Genes {
			col[g] = m.Values[g][s]
		}
		order := make([]int, len(col))
		for i := range order {
			order[i] = i
		}
		sort.Slice(order, func(i, j int) bool { return col[order[i]] < col[order[j]] })
		for rank, geneIdx := range order {
			ranks[geneIdx][s] = float64(rank + 1)
		}
	}
	return ranks
}

func indicesOf(genes []string, members []string) []int {
	memberSet := make(map[string]struct{}, len(members))
	for _, g := range members {
		memberSet[g] = struct{}{}
	}
	var idx []int
	for i, g := range genes {
		if _, ok := memberSet[g]; ok {
			idx = append(idx, i)
		}
	}
	return idx
}

// enrichmentScore is a simplified rank statistic for one sample: the
// mean within-sample rank of the pathway's member genes minus the
// expected mean rank (totalGenes+1)/2, divided by that expected rank.
func enrichmentScore(ranks [][]float64, memberIdx []int, sampleIdx, totalGenes int) float64 {
	if len(memberIdx) == 0 || totalGenes == 0 {
		return 0
	}
	sum := 0.0
	for _, gi := range memberIdx {
		sum += ranks[gi][sampleIdx]
	}
	meanRank := sum / float64(len(memberIdx))
	expectedMeanRank := float64(totalGenes+1) / 2
	return (meanRank - expectedMeanRank) / math.Max(expectedMeanRank, 1)
}
