package kernel

import (
	"strings"
	"testing"

	"github.com/gsaplatform/orchestrator/internal/domain"
)

func fixtureDataset() domain.Dataset {
	data := "\tS1\tS2\tS3\tS4\n" +
		"CCND1\t10.0\t11.0\t1.0\t1.2\n" +
		"CCNE1\t9.0\t8.5\t1.1\t0.9\n" +
		"BAX\t1.0\t1.1\t10.0\t11.0\n" +
		"BCL2\t1.2\t0.8\t9.5\t10.5\n" +
		"NOISE1\t5.0\t5.1\t5.2\t4.9\n"

	return domain.Dataset{
		Name: "fixture",
		Type: domain.DatasetTypeRNASeqNorm,
		Data: data,
		Design: &domain.Design{
			Samples:    []string{"S1", "S2", "S3", "S4"},
			Comparison: domain.Comparison{Group1: "treated", Group2: "control"},
			Groups: map[string][]string{
				"analysisGroup": {"treated", "treated", "control", "control"},
			},
		},
	}
}

func progressRecorder(t *testing.T) (ProgressFunc, *[]float64) {
	var seen []float64
	return func(fraction float64, message string) {
		if fraction < 0 || fraction > 1 {
			t.Errorf("progress fraction %v out of [0,1]", fraction)
		}
		seen = append(seen, fraction)
	}, &seen
}

func TestCameraKernelProcess(t *testing.T) {
	k := NewCameraKernel()
	if err := k.LoadLibraries("test-release"); err != nil {
		t.Fatalf("LoadLibraries: %v", err)
	}

	prepared, err := k.Prepare(fixtureDataset())
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	progress, seen := progressRecorder(t)
	out, err := k.Process(prepared, progress)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !strings.HasPrefix(out, "Pathway\tDirection\tFDR\tPValue\n") {
		t.Fatalf("unexpected table header: %q", out)
	}
	if len(*seen) == 0 {
		t.Error("expected at least one progress callback")
	}
	if !strings.Contains(out, "Cell cycle") {
		t.Errorf("expected Cell cycle pathway row in output, got %q", out)
	}
}

func TestCameraKernelProcessWithoutLoadLibraries(t *testing.T) {
	k := NewCameraKernel()
	prepared, err := k.Prepare(fixtureDataset())
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if _, err := k.Process(prepared, func(float64, string) {}); err == nil {
		t.Fatal("expected error when LoadLibraries was never called")
	}
}

func TestCameraKernelProcessWithoutDesign(t *testing.T) {
	k := NewCameraKernel()
	_ = k.LoadLibraries("test-release")

	ds := fixtureDataset()
	ds.Design = nil
	prepared, err := k.Prepare(ds)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if _, err := k.Process(prepared, func(float64, string) {}); err == nil {
		t.Fatal("expected error when Design is nil")
	}
}

func TestCameraKernelGeneFoldChanges(t *testing.T) {
	k := NewCameraKernel()
	_ = k.LoadLibraries("test-release")
	prepared, err := k.Prepare(fixtureDataset())
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	out, err := k.GeneFoldChanges(prepared)
	if err != nil {
		t.Fatalf("GeneFoldChanges: %v", err)
	}
	if !strings.HasPrefix(out, "Gene\tFoldChange\n") {
		t.Fatalf("unexpected table header: %q", out)
	}
	if !strings.Contains(out, "CCND1") {
		t.Errorf("expected CCND1 row in output, got %q", out)
	}
}

func TestCameraKernelGeneFoldChangesNoPairedDesign(t *testing.T) {
	k := NewCameraKernel()
	_ = k.LoadLibraries("test-release")

	ds := fixtureDataset()
	ds.Design.Groups = nil
	prepared, err := k.Prepare(ds)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	out, err := k.GeneFoldChanges(prepared)
	if err != nil {
		t.Fatalf("GeneFoldChanges: %v", err)
	}
	if !strings.Contains(out, "CCND1\t0") {
		t.Errorf("expected zero fold change with no paired design, got %q", out)
	}
}

func TestBenjaminiHochbergMonotonic(t *testing.T) {
	pvalues := []float64{0.001, 0.01, 0.02, 0.5, 0.9}
	fdrs := benjaminiHochberg(pvalues)
	for i := 1; i < len(fdrs); i++ {
		if fdrs[i] < fdrs[i-1] {
			t.Errorf("fdrs not monotonic non-decreasing: %v", fdrs)
		}
	}
	for _, f := range fdrs {
		if f < 0 || f > 1 {
			t.Errorf("fdr %v out of [0,1]", f)
		}
	}
}

func TestNormalCDFSymmetry(t *testing.T) {
	if got := normalCDF(0); got < 0.49 || got > 0.51 {
		t.Errorf("normalCDF(0) = %v, want ~0.5", got)
	}
	if got := normalCDF(3); got < 0.99 {
		t.Errorf("normalCDF(3) = %v, want close to 1", got)
	}
}
