// Package domain holds the entities shared across the API, workers, and
// the Blackboard: jobs, analysis inputs/results, datasets, and reports.
package domain

import "time"

// JobKind identifies which queue and worker role a Job belongs to.
type JobKind string

const (
	JobKindAnalysis JobKind = "analysis"
	JobKindDataset  JobKind = "dataset"
	JobKindReport   JobKind = "report"
)

// JobState is the lifecycle state of a Job. It is monotonic: running ->
// {complete, failed}, with no transition out of a terminal state.
type JobState string

const (
	JobStateRunning  JobState = "running"
	JobStateComplete JobState = "complete"
	JobStateFailed   JobState = "failed"
)

// DatasetType enumerates the accepted shapes of an inline Dataset's data
// matrix.
type DatasetType string

const (
	DatasetTypeRNASeqCounts   DatasetType = "rnaseq_counts"
	DatasetTypeRNASeqNorm     DatasetType = "rnaseq_norm"
	DatasetTypeProteomicsInt  DatasetType = "proteomics_int"
	DatasetTypeProteomicsSC   DatasetType = "proteomics_sc"
	DatasetTypeMicroarrayNorm DatasetType = "microarray_norm"
)

// ParameterScope controls which stage of the pipeline a Parameter affects.
type ParameterScope string

const (
	ParameterScopeAnalysis ParameterScope = "analysis"
	ParameterScopeDataset  ParameterScope = "dataset"
	ParameterScopeCommon   ParameterScope = "common"
)

// ParameterType is the declared type of a method's parameter, used to
// coerce the wire string value at admission time.
type ParameterType string

const (
	ParameterTypeInt    ParameterType = "int"
	ParameterTypeFloat  ParameterType = "float"
	ParameterTypeString ParameterType = "string"
	ParameterTypeBool   ParameterType = "bool"
)

// Parameter is a single name/value pair carried on the wire as strings,
// with a scope indicating which stage of the pipeline consumes it.
type Parameter struct {
	Name  string         `json:"name"`
	Value string         `json:"value"`
	Scope ParameterScope `json:"scope,omitempty"`
}

// Job is the durable record tracked on the Blackboard for every unit of
// work admitted through the API. Status, progress, and error fields are
// mutated only by the worker that owns the job or by the API on terminal
// transitions it detects (e.g. the stall sweeper).
type Job struct {
	JobID       string    `json:"id"`
	Kind        JobKind   `json:"kind"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	State       JobState  `json:"state"`
	Progress    float64   `json:"progress"`
	Description string    `json:"description"`
	PayloadRef  string    `json:"payload_ref,omitempty"`
	ResultRef   string    `json:"result_ref,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// Design describes the assignment of samples to comparison groups and any
// additional covariate strata, for one Dataset.
type Design struct {
	Samples    []string            `json:"samples"`
	Comparison Comparison          `json:"comparison"`
	Groups     map[string][]string `json:"groups,omitempty"` // analysisGroup and any extra covariates, each parallel to Samples
}

// Comparison names the two groups being contrasted. Both must appear
// among the values of Design.Groups["analysisGroup"].
type Comparison struct {
	Group1 string `json:"group1"`
	Group2 string `json:"group2"`
}

// touch stamps UpdatedAt, letting the sweeper measure staleness against
// the last write regardless of which field actually changed.
func (j *Job) touch(t time.Time) { j.UpdatedAt = t }

// AnalysisGroup returns the per-sample group label array, or nil if the
// design carries no paired structure — absence is treated as "no paired
// design", not an error.
func (d Design) AnalysisGroup() []string {
	return d.Groups["analysisGroup"]
}

// Dataset is one inline expression matrix submitted as part of an
// AnalysisInput. Data is copied by value into the queued work item and is
// never mutated afterward.
type Dataset struct {
	Name       string      `json:"name"`
	Type       DatasetType `json:"type"`
	Data       string      `json:"data"` // tab-delimited matrix, rows = genes, cols = samples
	Design     *Design     `json:"design,omitempty"`
	Parameters []Parameter `json:"parameters,omitempty"`
}

// AnalysisInput is the normalized, validated request body for POST
// /analysis. It is serialized immutably into the analysis queue's work
// item.
type AnalysisInput struct {
	AnalysisID *string     `json:"analysis_id,omitempty"` // ignored if client-set
	MethodName string      `json:"method_name"`
	Datasets   []Dataset   `json:"datasets"`
	Parameters []Parameter `json:"parameters,omitempty"`
}

// ExternalData is the catalog record produced by the Dataset Loader for
// one external resource. Read-only once populated.
type ExternalData struct {
	ID                string              `json:"id"`
	Title              string              `json:"title"`
	Type               DatasetType         `json:"type"`
	Group              string              `json:"group,omitempty"`
	SampleIDs          []string            `json:"sample_ids"`
	SampleMetadata     map[string][]string `json:"sample_metadata,omitempty"` // name -> values, parallel to SampleIDs
	DefaultParameters  []Parameter         `json:"default_parameters,omitempty"`
	Description        string              `json:"description,omitempty"`
}

// AnalysisResult is written once by the Analysis Worker on success and is
// immutable thereafter.
type AnalysisResult struct {
	Release      string                 `json:"release"`
	Results      map[string]string      `json:"results"`                 // dataset name -> tab-delimited pathway matrix
	FoldChanges  map[string]string      `json:"fold_changes,omitempty"`  // dataset name -> tab-delimited fold-change table
	ReactomeLinks map[string]string     `json:"reactome_links,omitempty"`
	Mappings     map[string]string      `json:"mappings,omitempty"`
}

// ReportArtifact is one generated output file, keyed under
// report:{job_id}:{name} on the Blackboard.
type ReportArtifact struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Mimetype string `json:"mimetype"`
}

// ReportRequest is the message body published onto the report queue.
// ReportJobID is allocated by the publisher before the message is sent,
// distinct from AnalysisJobID: a report job references a completed
// analysis job but is tracked under its own id and status record.
type ReportRequest struct {
	ReportJobID   string   `json:"report_job_id"`
	AnalysisJobID string   `json:"analysis_job_id"`
	Artifacts     []string `json:"artifacts"` // subset of "XLSX", "PDF", "EMAIL"
	NotifyEmail   string   `json:"notify_email,omitempty"`
}

// ReportStatus is the Blackboard record tracked for a report job.
type ReportStatus struct {
	JobID       string           `json:"id"`
	State       JobState         `json:"state"`
	Progress    float64          `json:"progress"`
	Description string           `json:"description"`
	Reports     []ReportArtifact `json:"reports,omitempty"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

func (s *ReportStatus) touch(t time.Time) { s.UpdatedAt = t }

// DatasetLoadRequest is the message body published onto the dataset queue.
type DatasetLoadRequest struct {
	ResourceID string      `json:"resource_id"`
	Parameters []Parameter `json:"parameters,omitempty"`
}

// DatasetLoadingStatus is the Blackboard record tracked for a dataset-load
// job. DatasetID is set only once the load reaches "complete"; it names a
// separate artifact from the loading job itself.
type DatasetLoadingStatus struct {
	LoadID      string    `json:"id"`
	State       JobState  `json:"state"`
	Progress    float64   `json:"progress"`
	Description string    `json:"description"`
	DatasetID   string    `json:"dataset_id,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (s *DatasetLoadingStatus) touch(t time.Time) { s.UpdatedAt = t }

// Method is a catalog entry describing one selectable inner kernel.
type Method struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	DataTypes   []DatasetType       `json:"data_types"`
	Parameters  []MethodParameter   `json:"parameters,omitempty"`
}

// MethodParameter declares one parameter a Method accepts, used both to
// render the catalog and to validate/coerce admitted requests.
type MethodParameter struct {
	Name     string         `json:"name"`
	Scope    ParameterScope `json:"scope"`
	Type     ParameterType  `json:"type"`
	Enum     []string       `json:"enum,omitempty"`
	Required bool           `json:"required,omitempty"`
	Default  string         `json:"default,omitempty"`
}

// DataType is a catalog entry describing one accepted dataset shape.
type DataType struct {
	Type        DatasetType `json:"type"`
	Description string      `json:"description"`
}

// ExternalDatasource is a catalog entry describing one resource the
// Dataset Loader can fetch.
type ExternalDatasource struct {
	ResourceID  string `json:"resource_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}
