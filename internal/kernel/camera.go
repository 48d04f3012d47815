package kernel

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/gsaplatform/orchestrator/internal/domain"
)

// pathwayLibrary is a minimal stand-in for a loaded pathway database: a
// fixed set of named gene sets. A real deployment would load this from
// the release named by LoadLibraries; here it is seeded with a small
// deterministic catalog so the kernel is exercisable without external
// files.
type pathwayLibrary struct {
	release string
	sets    map[string][]string
}

func defaultPathwayLibrary() map[string][]string {
	return map[string][]string{
		"Cell cycle":       {"CCND1", "CCNE1", "CDK2", "CDK4", "RB1"},
		"Apoptosis":        {"BAX", "BCL2", "CASP3", "CASP9", "TP53"},
		"Immune response":  {"IL6", "TNF", "NFKB1", "IFNG", "CD8A"},
		"Lipid metabolism": {"SREBF1", "FASN", "ACACA", "LDLR", "APOB"},
	}
}

// CameraKernel implements a CAMERA-style competitive gene-set enrichment
// test: for each pathway it compares the mean fold change of member
// genes against the mean fold change of non-member genes via a
// two-sample z-approximation, reporting direction and a nominal p-value
// with Benjamini-Hochberg FDR correction across pathways.
type CameraKernel struct {
	lib pathwayLibrary
}

// NewCameraKernel returns a CameraKernel with no library loaded yet.
func NewCameraKernel() *CameraKernel {
	return &CameraKernel{}
}

func (k *CameraKernel) Name() string { return "Camera" }

func (k *CameraKernel) LoadLibraries(pathwayRelease string) error {
	k.lib = pathwayLibrary{release: pathwayRelease, sets: defaultPathwayLibrary()}
	return nil
}

func (k *CameraKernel) Prepare(ds domain.Dataset) (Prepared, error) {
	m, err := ParseMatrix(ds.Data)
	if err != nil {
		return Prepared{}, fmt.Errorf("camera: prepare %s: %w", ds.Name, err)
	}
	return Prepared{DatasetName: ds.Name, Matrix: m, Design: ds.Design, Type: ds.Type}, nil
}

func (k *CameraKernel) Process(p Prepared, progress ProgressFunc) (string, error) {
	if k.lib.sets == nil {
		return "", fmt.Errorf("camera: LoadLibraries was never called")
	}
	if p.Design == nil {
		return "", fmt.Errorf("camera: requires a Design to contrast groups")
	}

	progress(0.1, "computing per-gene fold changes")
	fc, err := computeFoldChanges(p)
	if err != nil {
		return "", err
	}

	progress(0.4, "running competitive enrichment")

	type row struct {
		pathway   string
		direction string
		pvalue    float64
	}
	rows := make([]row, 0, len(k.lib.sets))
	names := sortedKeys(k.lib.sets)
	for i, pathway := range names {
		genes := k.lib.sets[pathway]
		members, nonMembers := splitByMembership(p.Matrix.Genes, genes, fc)
		if len(members) == 0 {
			continue
		}
		pval, dir := twoSampleZTest(members, nonMembers)
		rows = append(rows, row{pathway: pathway, direction: dir, pvalue: pval})
		progress(0.4+0.5*float64(i+1)/float64(len(names)), fmt.Sprintf("scored %s", pathway))
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].pvalue < rows[j].pvalue })
	pvalues := make([]float64, len(rows))
	for i, r := range rows {
		pvalues[i] = r.pvalue
	}
	fdrs := benjaminiHochberg(pvalues)

	var sb strings.Builder
	sb.WriteString("Pathway\tDirection\tFDR\tPValue\n")
	for i, r := range rows {
		fmt.Fprintf(&sb, "%s\t%s\t%g\t%g\n", r.pathway, r.direction, fdrs[i], r.pvalue)
	}
	progress(1.0, "enrichment complete")
	return sb.String(), nil
}

func (k *CameraKernel) GeneFoldChanges(p Prepared) (string, error) {
	if p.Design == nil {
		return "", nil
	}
	fc, err := computeFoldChanges(p)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString("Gene\tFoldChange\n")
	for i, gene := range p.Matrix.Genes {
		fmt.Fprintf(&sb, "%s\t%g\n", gene, fc[i])
	}
	return sb.String(), nil
}

// computeFoldChanges returns log2((mean(group1)+1)/(mean(group2)+1)) per gene,
// in the matrix's gene order. "no paired design" (no analysisGroup
// labels) yields an all-zero vector rather than an error.
func computeFoldChanges(p Prepared) ([]float64, error) {
	fc := make([]float64, len(p.Matrix.Genes))
	if p.Design == nil {
		return fc, nil
	}
	analysisGroup := p.Design.AnalysisGroup()
	if analysisGroup == nil {
		return fc, nil
	}
	g1, g2 := GroupIndices(p.Design.Samples, analysisGroup, p.Design.Comparison.Group1, p.Design.Comparison.Group2)
	if len(g1) == 0 || len(g2) == 0 {
		return fc, nil
	}
	for gi, row := range p.Matrix.Values {
		m1 := meanAt(row, g1)
		m2 := meanAt(row, g2)
		fc[gi] = math.Log2((m1 + 1) / (m2 + 1))
	}
	return fc, nil
}

func meanAt(row []float64, idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	sum := 0.0
	for _, i := range idx {
		if i < len(row) {
			sum += row[i]
		}
	}
	return sum / float64(len(idx))
}

func splitByMembership(genes []string, members []string, fc []float64) (in, out []float64) {
	memberSet := make(map[string]struct{}, len(members))
	for _, g := range members {
		memberSet[g] = struct{}{}
	}
	for i, g := range genes {
		if _, ok := memberSet[g]; ok {
			in = append(in, fc[i])
		} else {
			out = append(out, fc[i])
		}
	}
	return in, out
}

// twoSampleZTest approximates CAMERA's variance-inflated z-test with a
// plain two-sample z comparison of means, returning a two-sided nominal
// p-value and the direction of the member set's mean shift.
func twoSampleZTest(in, out []float64) (pvalue float64, direction string) {
	meanIn, varIn := meanVar(in)
	meanOut, varOut := meanVar(out)
	direction = "up"
	if meanIn < meanOut {
		direction = "down"
	}

	se := math.Sqrt(varIn/float64(len(in)) + varOut/float64(max(len(out), 1)))
	if se == 0 {
		return 1.0, direction
	}
	z := (meanIn - meanOut) / se
	p := 2 * (1 - normalCDF(math.Abs(z)))
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return p, direction
}

func meanVar(xs []float64) (mean, variance float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	mean = sum / float64(len(xs))
	if len(xs) < 2 {
		return mean, 0
	}
	ss := 0.0
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	variance = ss / float64(len(xs)-1)
	return mean, variance
}

// normalCDF approximates the standard normal CDF via the error function.
func normalCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

// benjaminiHochberg adjusts a slice of p-values already sorted ascending.
func benjaminiHochberg(pvalues []float64) []float64 {
	n := len(pvalues)
	fdrs := make([]float64, n)
	minSoFar := 1.0
	for i := n - 1; i >= 0; i-- {
		fdr := pvalues[i] * float64(n) / float64(i+1)
		if fdr < minSoFar {
			minSoFar = fdr
		}
		if minSoFar > 1 {
			minSoFar = 1
		}
		fdrs[i] = minSoFar
	}
	return fdrs
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
