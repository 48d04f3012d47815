package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gsaplatform/orchestrator/internal/domain"
)

func testExamples() []domain.ExternalData {
	return []domain.ExternalData{
		{
			ID:          "gse-demo-001",
			Title:       "Demo RNA-seq cohort",
			Type:        domain.DatasetTypeRNASeqNorm,
			Group:       "oncology",
			Description: "A small illustrative RNA-seq dataset contrasting tumor and normal tissue.",
			SampleMetadata: map[string][]string{
				"condition": {"tumor", "normal"},
			},
		},
		{
			ID:          "gse-demo-002",
			Title:       "Demo proteomics cohort",
			Type:        domain.DatasetTypeProteomicsInt,
			Group:       "immunology",
			Description: "A small illustrative proteomics dataset comparing vehicle and compound treatment.",
			SampleMetadata: map[string][]string{
				"treatment": {"vehicle", "compound"},
			},
		},
	}
}

func TestCatalogIndex_SearchByTitle(t *testing.T) {
	idx, err := New(testExamples())
	require.NoError(t, err)
	defer idx.Close()

	ids, err := idx.Search("proteomics", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"gse-demo-002"}, ids)
}

func TestCatalogIndex_SearchBySampleMetadata(t *testing.T) {
	idx, err := New(testExamples())
	require.NoError(t, err)
	defer idx.Close()

	ids, err := idx.Search("tumor", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"gse-demo-001"}, ids)
}

func TestCatalogIndex_SearchNoMatch(t *testing.T) {
	idx, err := New(testExamples())
	require.NoError(t, err)
	defer idx.Close()

	ids, err := idx.Search("nonexistent-term-xyz", 10)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestCatalogIndex_SearchDefaultSize(t *testing.T) {
	idx, err := New(testExamples())
	require.NoError(t, err)
	defer idx.Close()

	ids, err := idx.Search("demo", 0)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestCatalogIndex_EmptyCatalog(t *testing.T) {
	idx, err := New(nil)
	require.NoError(t, err)
	defer idx.Close()

	ids, err := idx.Search("anything", 10)
	require.NoError(t, err)
	assert.Empty(t, ids)
}
