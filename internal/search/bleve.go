// Package search builds the in-memory SearchIndex over the
// example-dataset catalog: title, description, group, and
// sample_metadata values, tokenized once at boot and read-only
// thereafter. The API never rebuilds it at request time.
package search

import (
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/gsaplatform/orchestrator/internal/domain"
)

// CatalogIndex is a single in-memory bleve index over the
// example-dataset catalog.
type CatalogIndex struct {
	idx bleve.Index
}

// New builds the index from the given examples. It is built once, at
// API startup; there is no update path after that.
func New(examples []domain.ExternalData) (*CatalogIndex, error) {
	idx, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("search: create index: %w", err)
	}

	batch := idx.NewBatch()
	for _, ex := range examples {
		batch.Index(ex.ID, exampleToDoc(ex))
	}
	if err := idx.Batch(batch); err != nil {
		return nil, fmt.Errorf("search: index catalog: %w", err)
	}

	return &CatalogIndex{idx: idx}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = "standard"

	keywordField := bleve.NewKeywordFieldMapping()

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("title", textField)
	doc.AddFieldMappingsAt("description", textField)
	doc.AddFieldMappingsAt("group", keywordField)
	doc.AddFieldMappingsAt("sample_metadata", textField)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	return m
}

func exampleToDoc(ex domain.ExternalData) map[string]interface{} {
	var metadataValues []string
	for _, values := range ex.SampleMetadata {
		metadataValues = append(metadataValues, values...)
	}
	return map[string]interface{}{
		"title":           ex.Title,
		"description":     ex.Description,
		"group":           ex.Group,
		"sample_metadata": metadataValues,
	}
}

// Search runs a free-text query over title, description, group, and
// sample_metadata values, returning ranked dataset ids.
func (c *CatalogIndex) Search(query string, size int) ([]string, error) {
	if size <= 0 {
		size = 20
	}
	q := bleve.NewQueryStringQuery(query)
	req := bleve.NewSearchRequest(q)
	req.Size = size

	result, err := c.idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search: query %q: %w", query, err)
	}

	ids := make([]string, 0, len(result.Hits))
	for _, hit := range result.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

// Close releases the index's resources.
func (c *CatalogIndex) Close() error {
	return c.idx.Close()
}
