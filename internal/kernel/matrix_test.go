package kernel

import "testing"

func TestParseMatrix(t *testing.T) {
	data := "\tS1\tS2\tS3\n" +
		"CCND1\t1.0\t2.0\t3.0\n" +
		"BAX\t4.0\t5.0\t6.0\n"

	m, err := ParseMatrix(data)
	if err != nil {
		t.Fatalf("ParseMatrix: %v", err)
	}
	if len(m.Samples) != 3 {
		t.Fatalf("samples = %v, want 3", m.Samples)
	}
	if len(m.Genes) != 2 {
		t.Fatalf("genes = %v, want 2", m.Genes)
	}
	if m.Values[0][2] != 3.0 {
		t.Errorf("Values[0][2] = %v, want 3.0", m.Values[0][2])
	}
	if m.Genes[1] != "BAX" {
		t.Errorf("Genes[1] = %q, want BAX", m.Genes[1])
	}
}

func TestParseMatrixTooFewRows(t *testing.T) {
	_, err := ParseMatrix("\tS1\tS2\n")
	if err == nil {
		t.Fatal("expected error for a header-only matrix")
	}
}

func TestParseMatrixBadHeader(t *testing.T) {
	_, err := ParseMatrix("onlyonecolumn\nCCND1\t1.0\n")
	if err == nil {
		t.Fatal("expected error for a header with no sample columns")
	}
}

func TestParseMatrixRowWidthMismatch(t *testing.T) {
	data := "\tS1\tS2\n" +
		"CCND1\t1.0\n"
	_, err := ParseMatrix(data)
	if err == nil {
		t.Fatal("expected error for a row with the wrong column count")
	}
}

func TestParseMatrixBadValue(t *testing.T) {
	data := "\tS1\tS2\n" +
		"CCND1\t1.0\tnotanumber\n"
	_, err := ParseMatrix(data)
	if err == nil {
		t.Fatal("expected error for a non-numeric cell")
	}
}

func TestSampleIndex(t *testing.T) {
	m := ExpressionMatrix{Samples: []string{"S1", "S2", "S3"}}
	if m.SampleIndex("S2") != 1 {
		t.Errorf("SampleIndex(S2) = %d, want 1", m.SampleIndex("S2"))
	}
	if m.SampleIndex("missing") != -1 {
		t.Errorf("SampleIndex(missing) = %d, want -1", m.SampleIndex("missing"))
	}
}

func TestGroupIndices(t *testing.T) {
	samples := []string{"S1", "S2", "S3", "S4", "S5"}
	labels := []string{"treated", "control", "treated", "control", "other"}

	g1, g2 := GroupIndices(samples, labels, "treated", "control")
	if got, want := g1, []int{0, 2}; !equalInts(got, want) {
		t.Errorf("g1 = %v, want %v", got, want)
	}
	if got, want := g2, []int{1, 3}; !equalInts(got, want) {
		t.Errorf("g2 = %v, want %v", got, want)
	}
}

func TestGroupIndicesShortLabelSlice(t *testing.T) {
	samples := []string{"S1", "S2", "S3"}
	labels := []string{"treated"}

	g1, g2 := GroupIndices(samples, labels, "treated", "control")
	if len(g1) != 1 || g1[0] != 0 {
		t.Errorf("g1 = %v, want [0]", g1)
	}
	if len(g2) != 0 {
		t.Errorf("g2 = %v, want empty", g2)
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
