// Package worker implements the three consuming roles described by the
// system design -- the Analysis Worker, the Dataset Loader, and the
// Report Generator -- plus the stall sweeper that reclaims jobs no
// Broker redelivery will ever revive. Each role pulls one message at a
// time from its own queue with manual acknowledgement, mirroring the
// teacher's subscribe-then-pipeline processor shape.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gsaplatform/orchestrator/internal/blackboard"
)

// touchable is implemented by every status record the sweeper inspects
// for staleness; casUpdate stamps it on every write so "no progress
// update for T" has a timestamp to measure against.
type touchable interface {
	touch(time.Time)
}

// casUpdate reads the JSON record at key, applies mutate to a decoded
// copy, and writes it back through compare_and_set so a redelivered
// message racing the sweeper (or another retry of the same job_id)
// cannot roll the record back to an earlier state -- the monotonicity
// invariant every status transition in this system depends on. It
// returns the mutated value so a caller can mirror the transition
// elsewhere (the durable Postgres row, a progress push) without a
// second read.
func casUpdate[T any](ctx context.Context, bb *blackboard.Blackboard, key string, ttl time.Duration, mutate func(*T)) (T, error) {
	var zero T
	raw, err := bb.Get(ctx, key)
	if err != nil {
		return zero, fmt.Errorf("worker: read %s: %w", key, err)
	}
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return zero, fmt.Errorf("worker: decode %s: %w", key, err)
	}
	mutate(&v)
	if t, ok := any(&v).(touchable); ok {
		t.touch(time.Now())
	}
	next, err := json.Marshal(v)
	if err != nil {
		return zero, fmt.Errorf("worker: encode %s: %w", key, err)
	}
	if err := bb.CompareAndSet(ctx, key, raw, string(next), ttl); err != nil {
		return zero, fmt.Errorf("worker: compare-and-set %s: %w", key, err)
	}
	return v, nil
}

// getJSON reads and decodes the JSON record at key into a fresh *T,
// returning the raw string alongside it for a caller that needs both
// (e.g. to confirm terminal state before skipping a stale retry).
func getJSON[T any](ctx context.Context, bb *blackboard.Blackboard, key string) (T, string, error) {
	var v T
	raw, err := bb.Get(ctx, key)
	if err != nil {
		return v, "", err
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return v, "", fmt.Errorf("worker: decode %s: %w", key, err)
	}
	return v, raw, nil
}

// rateLimiter enforces the P_update interval on progress writes: the
// kernel's progress callback may fire far more often than the
// Blackboard should be written to.
type rateLimiter struct {
	interval time.Duration
	last     time.Time
}

func newRateLimiter(interval time.Duration) *rateLimiter {
	return &rateLimiter{interval: interval}
}

// allow reports whether enough time has passed since the last allowed
// call. fraction 1.0 (terminal progress) always passes through so the
// final update is never dropped by the rate limit.
func (r *rateLimiter) allow(fraction float64) bool {
	now := time.Now()
	if fraction >= 1.0 || now.Sub(r.last) >= r.interval {
		r.last = now
		return true
	}
	return false
}
