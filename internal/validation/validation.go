// Package validation implements the admission-time checks POST
// /analysis and POST /data/load run before a job is ever enqueued:
// shape validation, method-catalog lookup, cross-field consistency, and
// parameter scope resolution/coercion.
package validation

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gsaplatform/orchestrator/internal/apperr"
	"github.com/gsaplatform/orchestrator/internal/catalog"
	"github.com/gsaplatform/orchestrator/internal/domain"
)

// AnalysisInput validates and normalizes a request body against the
// method catalog, returning a *apperr.Error with the correct HTTP
// status (400/404/406) on any failure.
func AnalysisInput(cat *catalog.Catalog, in *domain.AnalysisInput) error {
	if in.MethodName == "" {
		return apperr.Validation(http.StatusBadRequest, "method_name is required")
	}
	if len(in.Datasets) == 0 {
		return apperr.Validation(http.StatusBadRequest, "at least one dataset is required")
	}

	method, err := cat.Method(in.MethodName)
	if err != nil {
		return apperr.Validation(http.StatusNotFound, "method %q is not in the method catalog", in.MethodName)
	}

	if err := checkDuplicateDatasetNames(in.Datasets); err != nil {
		return err
	}

	accepted := make(map[domain.DatasetType]struct{}, len(method.DataTypes))
	for _, t := range method.DataTypes {
		accepted[t] = struct{}{}
	}

	for i := range in.Datasets {
		ds := &in.Datasets[i]
		if ds.Name == "" {
			return apperr.Validation(http.StatusBadRequest, "dataset[%d].name is required", i)
		}
		if ds.Data == "" {
			return apperr.Validation(http.StatusBadRequest, "dataset %q has no data", ds.Name)
		}
		if _, ok := accepted[ds.Type]; !ok {
			return apperr.Validation(http.StatusNotAcceptable, "method %q does not accept dataset type %q", in.MethodName, ds.Type)
		}
		if ds.Design != nil {
			if err := checkDesignConsistency(ds); err != nil {
				return err
			}
		}
	}

	if err := checkParameters(method, in.Parameters, domain.ParameterScopeAnalysis); err != nil {
		return err
	}
	for i := range in.Datasets {
		if err := checkParameters(method, in.Datasets[i].Parameters, domain.ParameterScopeDataset); err != nil {
			return err
		}
	}

	return nil
}

func checkDuplicateDatasetNames(datasets []domain.Dataset) error {
	seen := make(map[string]struct{}, len(datasets))
	for _, ds := range datasets {
		if _, ok := seen[ds.Name]; ok {
			return apperr.Validation(http.StatusNotAcceptable, "duplicate dataset name %q", ds.Name)
		}
		seen[ds.Name] = struct{}{}
	}
	return nil
}

// checkDesignConsistency enforces design sample count vs matrix column
// count, and that group1/group2 each appear among the analysisGroup
// labels -- the §4.1 406 cross-field checks.
func checkDesignConsistency(ds *domain.Dataset) error {
	design := ds.Design
	matrixColumns := countMatrixColumns(ds.Data)
	if matrixColumns >= 0 && len(design.Samples) != matrixColumns {
		return apperr.Validation(http.StatusNotAcceptable,
			"dataset %q: design declares %d samples but the matrix has %d columns", ds.Name, len(design.Samples), matrixColumns)
	}

	analysisGroup := design.AnalysisGroup()
	if analysisGroup == nil {
		return nil
	}
	if len(analysisGroup) != len(design.Samples) {
		return apperr.Validation(http.StatusNotAcceptable,
			"dataset %q: analysisGroup has %d entries but design has %d samples", ds.Name, len(analysisGroup), len(design.Samples))
	}

	present := make(map[string]struct{}, len(analysisGroup))
	for _, label := range analysisGroup {
		present[label] = struct{}{}
	}
	if _, ok := present[design.Comparison.Group1]; !ok {
		return apperr.Validation(http.StatusNotAcceptable, "dataset %q: group1 %q not present in analysisGroup", ds.Name, design.Comparison.Group1)
	}
	if _, ok := present[design.Comparison.Group2]; !ok {
		return apperr.Validation(http.StatusNotAcceptable, "dataset %q: group2 %q not present in analysisGroup", ds.Name, design.Comparison.Group2)
	}
	return nil
}

// countMatrixColumns returns the sample-column count of a tab-delimited
// matrix's header row, or -1 if the data has no header row to check.
func countMatrixColumns(data string) int {
	end := len(data)
	for i, r := range data {
		if r == '\n' {
			end = i
			break
		}
	}
	if end == 0 {
		return -1
	}
	header := data[:end]
	cols := 0
	for i := 0; i <= len(header); i++ {
		if i == len(header) || header[i] == '\t' {
			cols++
		}
	}
	return cols - 1
}

// checkParameters validates parameters of the given scope against the
// method's declared enum/required constraints and declared type.
// Unknown parameter names are ignored, with a logged warning.
func checkParameters(method domain.Method, params []domain.Parameter, scope domain.ParameterScope) error {
	declared := make(map[string]domain.MethodParameter, len(method.Parameters))
	for _, p := range method.Parameters {
		declared[p.Name] = p
	}

	seen := make(map[string]struct{}, len(params))
	for _, p := range params {
		if p.Scope != "" && p.Scope != scope {
			continue
		}
		def, ok := declared[p.Name]
		if !ok {
			slog.Warn("ignoring unknown parameter", "method", method.Name, "parameter", p.Name, "scope", scope)
			continue
		}
		seen[p.Name] = struct{}{}
		if len(def.Enum) > 0 && !containsString(def.Enum, p.Value) {
			return apperr.Validation(http.StatusNotAcceptable, "parameter %q has invalid value %q", p.Name, p.Value)
		}
		var convErr error
		switch def.Type {
		case domain.ParameterTypeInt:
			_, convErr = strconv.Atoi(p.Value)
		case domain.ParameterTypeFloat:
			_, convErr = strconv.ParseFloat(p.Value, 64)
		case domain.ParameterTypeBool:
			_, convErr = strconv.ParseBool(p.Value)
		}
		if convErr != nil {
			return apperr.Validation(http.StatusNotAcceptable, "parameter %q value %q is not a valid %s", p.Name, p.Value, def.Type)
		}
	}

	for _, def := range method.Parameters {
		if def.Scope != scope || !def.Required {
			continue
		}
		if _, ok := seen[def.Name]; !ok {
			return apperr.Validation(http.StatusNotAcceptable, "required parameter %q is missing", def.Name)
		}
	}
	return nil
}

func containsString(xs []string, v string) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

// DatasetLoadRequest validates a POST /data/load/{resource_id} body.
func DatasetLoadRequest(cat *catalog.Catalog, resourceID string, req *domain.DatasetLoadRequest) error {
	if resourceID == "" {
		return apperr.Validation(http.StatusBadRequest, "resource_id is required")
	}
	if _, err := cat.Datasource(resourceID); err != nil {
		return apperr.Validation(http.StatusNotFound, "resource %q is not in the datasource catalog", resourceID)
	}
	_ = req
	return nil
}
