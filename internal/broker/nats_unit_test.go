package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStreamName(t *testing.T) {
	tests := []struct {
		queue string
		want  string
	}{
		{QueueAnalysis, "Q_analysis"},
		{QueueDataset, "Q_dataset"},
		{QueueReport, "Q_report"},
	}

	for _, tt := range tests {
		t.Run(tt.queue, func(t *testing.T) {
			assert.Equal(t, tt.want, streamName(tt.queue))
		})
	}
}

func TestSubject(t *testing.T) {
	tests := []struct {
		queue string
		want  string
	}{
		{QueueAnalysis, "gsa.analysis"},
		{QueueDataset, "gsa.dataset"},
		{QueueReport, "gsa.report"},
	}

	for _, tt := range tests {
		t.Run(tt.queue, func(t *testing.T) {
			assert.Equal(t, tt.want, subject(tt.queue))
		})
	}
}

func TestQueueNamesAreDistinct(t *testing.T) {
	seen := map[string]bool{}
	for _, q := range []string{QueueAnalysis, QueueDataset, QueueReport} {
		assert.False(t, seen[q], "duplicate queue name %q", q)
		seen[q] = true
	}
}

func TestBroker_CloseNilConn(t *testing.T) {
	b := &Broker{}
	assert.NotPanics(t, func() {
		b.Close()
	})
}
