package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDesign_AnalysisGroup(t *testing.T) {
	t.Run("present", func(t *testing.T) {
		d := Design{Groups: map[string][]string{"analysisGroup": {"A", "A", "B"}}}
		assert.Equal(t, []string{"A", "A", "B"}, d.AnalysisGroup())
	})

	t.Run("absent is nil not error", func(t *testing.T) {
		d := Design{}
		assert.Nil(t, d.AnalysisGroup())
	})
}

func TestAnalysisInput_RoundTrip(t *testing.T) {
	in := AnalysisInput{
		MethodName: "Camera",
		Datasets: []Dataset{
			{
				Name: "ds1",
				Type: DatasetTypeRNASeqCounts,
				Data: "\tS1\tS2\nGENE1\t1\t2\n",
				Design: &Design{
					Samples:    []string{"S1", "S2"},
					Comparison: Comparison{Group1: "A", Group2: "B"},
					Groups:     map[string][]string{"analysisGroup": {"A", "B"}},
				},
			},
		},
		Parameters: []Parameter{{Name: "fdr", Value: "0.05", Scope: ParameterScopeAnalysis}},
	}

	raw, err := json.Marshal(in)
	require.NoError(t, err)

	var out AnalysisInput
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, in, out)
}

func TestJob_TerminalStatesAreDistinctFromRunning(t *testing.T) {
	assert.NotEqual(t, JobStateRunning, JobStateComplete)
	assert.NotEqual(t, JobStateRunning, JobStateFailed)
}
