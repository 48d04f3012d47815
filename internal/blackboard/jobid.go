package blackboard

import (
	"context"
	"fmt"
)

// kindPrefixes maps a job kind to the prefix used when minting job ids,
// matching the convention observed across the admission endpoints
// ("Analysis" ⧺ counter, "Load" ⧺ counter, "Report" ⧺ counter).
var kindPrefixes = map[string]string{
	"analysis": "Analysis",
	"dataset":  "Load",
	"report":   "Report",
}

// NewJobID allocates job_id = prefix(kind) ⧺ atomic_increment(counter:kind).
// job_id is globally unique within the retention window because the
// counter only ever increases.
func (b *Blackboard) NewJobID(ctx context.Context, kind string) (string, error) {
	prefix, ok := kindPrefixes[kind]
	if !ok {
		return "", fmt.Errorf("blackboard: unknown job kind %q", kind)
	}
	n, err := b.AtomicIncrement(ctx, CounterKey(kind), 0)
	if err != nil {
		return "", fmt.Errorf("blackboard: allocate %s job id: %w", kind, err)
	}
	return fmt.Sprintf("%s%08d", prefix, n), nil
}
