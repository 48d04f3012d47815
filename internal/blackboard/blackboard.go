// Package blackboard implements the job-orchestration system's sole
// shared-mutable-state store: a key/value surface with TTL, atomic
// counters, compare-and-set, and optional publish/subscribe, backed by
// Redis for the hot path, Postgres for a durable audit trail, and S3 for
// binary blobs too large for either.
package blackboard

import (
	"context"
	"time"
)

// Store is the narrow capability the rest of the system consumes. A
// deployment variant may shard state across a cluster; callers never see
// the routing, only this interface.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	GetJSON(ctx context.Context, key string, out any) error
	Put(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	AtomicIncrement(ctx context.Context, counter string, ttl time.Duration) (int64, error)
	CompareAndSet(ctx context.Context, key, expected, newValue string, ttl time.Duration) error
	Publish(ctx context.Context, channel string, message []byte) error
}

// Blackboard composes the hot Redis store, the durable Postgres audit
// trail, and the S3 blob store behind the single Store capability plus
// blob helpers. Every status mutation goes through Redis's
// compare_and_set first; the Postgres row is updated best-effort
// afterward and is never the source of truth for an in-flight job.
type Blackboard struct {
	Hot   *RedisStore
	Durable *JobStore
	Blobs *BlobStore
}

func New(hot *RedisStore, durable *JobStore, blobs *BlobStore) *Blackboard {
	return &Blackboard{Hot: hot, Durable: durable, Blobs: blobs}
}

func (b *Blackboard) Get(ctx context.Context, key string) (string, error) {
	return b.Hot.Get(ctx, key)
}

func (b *Blackboard) GetJSON(ctx context.Context, key string, out any) error {
	return b.Hot.GetJSON(ctx, key, out)
}

func (b *Blackboard) Put(ctx context.Context, key string, value any, ttl time.Duration) error {
	return b.Hot.Put(ctx, key, value, ttl)
}

func (b *Blackboard) Delete(ctx context.Context, key string) error {
	return b.Hot.Delete(ctx, key)
}

func (b *Blackboard) AtomicIncrement(ctx context.Context, counter string, ttl time.Duration) (int64, error) {
	return b.Hot.AtomicIncrement(ctx, counter, ttl)
}

func (b *Blackboard) CompareAndSet(ctx context.Context, key, expected, newValue string, ttl time.Duration) error {
	return b.Hot.CompareAndSet(ctx, key, expected, newValue, ttl)
}

func (b *Blackboard) Publish(ctx context.Context, channel string, message []byte) error {
	return b.Hot.Publish(ctx, channel, message)
}

// PSubscribe delegates to the hot store's pattern subscription.
func (b *Blackboard) PSubscribe(ctx context.Context, pattern string) <-chan string {
	return b.Hot.PSubscribe(ctx, pattern)
}

// CheckRateLimit guards an admission endpoint against a single client
// hammering it: at most limit requests per window, keyed by caller.
func (b *Blackboard) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return b.Hot.CheckRateLimit(ctx, key, limit, window)
}

func (b *Blackboard) TrackRunning(ctx context.Context, kind, jobID string) error {
	return b.Hot.TrackRunning(ctx, RunningSetKey(kind), jobID)
}

func (b *Blackboard) UntrackRunning(ctx context.Context, kind, jobID string) error {
	return b.Hot.UntrackRunning(ctx, RunningSetKey(kind), jobID)
}

func (b *Blackboard) RunningIDs(ctx context.Context, kind string) ([]string, error) {
	return b.Hot.RunningIDs(ctx, RunningSetKey(kind))
}

// Key layout, matching the persisted-state section of the design.
const (
	prefixCounter = "counter:"
	prefixStatus  = "status:"
	prefixResult  = "result:"
	prefixDataset = "dataset:"
	prefixReport  = "report:"
	prefixRate    = "rate:"
	prefixRunning = "running:"
)

func CounterKey(kind string) string               { return prefixCounter + kind }
func StatusKey(jobID string) string                { return prefixStatus + jobID }
func ResultMetaKey(jobID string) string            { return prefixResult + jobID }
func DatasetRecordKey(datasetID string) string     { return prefixDataset + datasetID }
func ReportArtifactMetaKey(jobID, name string) string { return prefixReport + jobID + ":" + name }

// RateLimitKey names the sliding-window counter for one admission
// endpoint and caller.
func RateLimitKey(endpoint, caller string) string { return prefixRate + endpoint + ":" + caller }

// RunningSetKey names the set of in-flight job ids of the given kind,
// used by the stall sweeper to enumerate candidates without a keyspace
// scan.
func RunningSetKey(kind string) string { return prefixRunning + kind }

// progressChannelPrefix names the per-job live-push pub/sub channel a
// worker publishes a JSON-encoded progress payload to; the API process
// pattern-subscribes across every job id and bridges each message into
// the WebSocket hub.
const progressChannelPrefix = "progress:"

// ProgressChannel names the pub/sub channel one job's progress updates
// are published to.
func ProgressChannel(jobID string) string { return progressChannelPrefix + jobID }

// ProgressChannelPattern names the wildcard pattern that matches every
// job's progress channel, for a single subscriber to bridge them all.
func ProgressChannelPattern() string { return progressChannelPrefix + "*" }
