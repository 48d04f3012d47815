// Package catalog serves the static lookups backing the /methods,
// /types, and /data/sources endpoints: which kernels are selectable,
// which dataset shapes are accepted, and which external resources the
// Dataset Loader can fetch.
package catalog

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gsaplatform/orchestrator/internal/domain"
	"github.com/gsaplatform/orchestrator/internal/kernel"
)

// Catalog holds the static listings, built once at startup from the
// kernel registry (for methods) and fixed tables (for /data/sources and
// /data/examples).
type Catalog struct {
	mu          sync.RWMutex
	methods     map[string]domain.Method
	dataTypes   []domain.DataType
	datasources map[string]domain.ExternalDatasource
	examples    map[string]domain.ExternalData
}

// New builds a Catalog. kernels is the registry of bound statistical
// procedures; its registered names drive the /methods listing, so a
// method only ever appears once its kernel is actually wired.
func New(kernels *kernel.Registry) *Catalog {
	c := &Catalog{
		methods:     make(map[string]domain.Method),
		datasources: make(map[string]domain.ExternalDatasource),
		examples:    make(map[string]domain.ExternalData),
	}
	c.loadMethods(kernels)
	c.loadDataTypes()
	c.loadDatasources()
	c.loadExamples()
	return c
}

func (c *Catalog) loadMethods(kernels *kernel.Registry) {
	defs := map[string]domain.Method{
		"Camera": {
			Name:        "Camera",
			Description: "Competitive gene-set enrichment contrasting two comparison groups.",
			DataTypes: []domain.DatasetType{
				domain.DatasetTypeRNASeqNorm,
				domain.DatasetTypeMicroarrayNorm,
				domain.DatasetTypeProteomicsInt,
			},
			Parameters: []domain.MethodParameter{
				{Name: "pathway_release", Scope: domain.ParameterScopeCommon, Type: domain.ParameterTypeString, Required: false, Default: "reactome-v80"},
			},
		},
		"SingleSampleScore": {
			Name:        "SingleSampleScore",
			Description: "Per-sample rank-based gene-set enrichment score; no comparison groups required.",
			DataTypes: []domain.DatasetType{
				domain.DatasetTypeRNASeqNorm,
				domain.DatasetTypeProteomicsSC,
				domain.DatasetTypeMicroarrayNorm,
			},
		},
		"RiboTE": {
			Name:        "RiboTE",
			Description: "Translational efficiency contrast for ribosome-profiling data.",
			DataTypes: []domain.DatasetType{
				domain.DatasetTypeRNASeqCounts,
				domain.DatasetTypeRNASeqNorm,
			},
			Parameters: []domain.MethodParameter{
				{Name: "pathway_release", Scope: domain.ParameterScopeCommon, Type: domain.ParameterTypeString, Required: false, Default: "reactome-v80"},
			},
		},
	}

	registered := make(map[string]struct{})
	for _, name := range kernels.Names() {
		registered[name] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for name, method := range defs {
		if _, ok := registered[name]; ok {
			c.methods[name] = method
		}
	}
}

func (c *Catalog) loadDataTypes() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dataTypes = []domain.DataType{
		{Type: domain.DatasetTypeRNASeqCounts, Description: "Raw RNA-seq read counts per gene."},
		{Type: domain.DatasetTypeRNASeqNorm, Description: "Normalized RNA-seq expression values per gene."},
		{Type: domain.DatasetTypeProteomicsInt, Description: "Protein intensity values from a proteomics assay."},
		{Type: domain.DatasetTypeProteomicsSC, Description: "Single-cell proteomics abundance values."},
		{Type: domain.DatasetTypeMicroarrayNorm, Description: "Normalized microarray probe intensities."},
	}
}

func (c *Catalog) loadDatasources() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ds := range []domain.ExternalDatasource{
		{ResourceID: "gse-demo-001", Title: "Demo RNA-seq cohort", Description: "A small illustrative RNA-seq dataset for smoke-testing the pipeline."},
		{ResourceID: "gse-demo-002", Title: "Demo proteomics cohort", Description: "A small illustrative proteomics dataset."},
	} {
		c.datasources[ds.ResourceID] = ds
	}
}

// loadExamples seeds the example-dataset catalog the SearchIndex is built
// from at boot. In a full deployment this table would be read from a
// curated whitelist/blacklist file pair; these entries stand in for that
// file until one is configured.
func (c *Catalog) loadExamples() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ex := range []domain.ExternalData{
		{
			ID:          "gse-demo-001",
			Title:       "Demo RNA-seq cohort",
			Type:        domain.DatasetTypeRNASeqNorm,
			Group:       "oncology",
			SampleIDs:   []string{"S1", "S2", "S3", "S4"},
			SampleMetadata: map[string][]string{
				"condition": {"tumor", "tumor", "normal", "normal"},
			},
			Description: "A small illustrative RNA-seq dataset contrasting tumor and normal tissue, for smoke-testing the pipeline.",
		},
		{
			ID:          "gse-demo-002",
			Title:       "Demo proteomics cohort",
			Type:        domain.DatasetTypeProteomicsInt,
			Group:       "immunology",
			SampleIDs:   []string{"P1", "P2", "P3", "P4"},
			SampleMetadata: map[string][]string{
				"treatment": {"vehicle", "vehicle", "compound", "compound"},
			},
			Description: "A small illustrative proteomics dataset comparing vehicle and compound treatment.",
		},
	} {
		c.examples[ex.ID] = ex
	}
}

// Methods returns the selectable kernels, sorted by name for a stable
// listing.
func (c *Catalog) Methods() []domain.Method {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Method, 0, len(c.methods))
	for _, m := range c.methods {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Method returns one catalog entry by name, or an error if unknown.
func (c *Catalog) Method(name string) (domain.Method, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.methods[name]
	if !ok {
		return domain.Method{}, fmt.Errorf("catalog: method %q not found", name)
	}
	return m, nil
}

// DataTypes returns the accepted dataset shapes.
func (c *Catalog) DataTypes() []domain.DataType {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.DataType, len(c.dataTypes))
	copy(out, c.dataTypes)
	return out
}

// Datasources returns the external resources the Dataset Loader can fetch.
func (c *Catalog) Datasources() []domain.ExternalDatasource {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.ExternalDatasource, 0, len(c.datasources))
	for _, ds := range c.datasources {
		out = append(out, ds)
	}
	return out
}

// Datasource returns one external resource by id, or an error if unknown.
func (c *Catalog) Datasource(resourceID string) (domain.ExternalDatasource, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ds, ok := c.datasources[resourceID]
	if !ok {
		return domain.ExternalDatasource{}, fmt.Errorf("catalog: resource %q not found", resourceID)
	}
	return ds, nil
}

// Examples returns the example-dataset catalog used both to serve
// /data/examples and to build the SearchIndex at boot.
func (c *Catalog) Examples() []domain.ExternalData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.ExternalData, 0, len(c.examples))
	for _, ex := range c.examples {
		out = append(out, ex)
	}
	return out
}

// Example returns one example dataset by id, or an error if unknown.
func (c *Catalog) Example(id string) (domain.ExternalData, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ex, ok := c.examples[id]
	if !ok {
		return domain.ExternalData{}, fmt.Errorf("catalog: example %q not found", id)
	}
	return ex, nil
}
