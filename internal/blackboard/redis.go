package blackboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("blackboard: not found")

// ErrCompareAndSetMismatch is returned by CompareAndSet when the stored
// value does not match the expected value.
var ErrCompareAndSetMismatch = errors.New("blackboard: compare-and-set mismatch")

// RedisStore is the hot leg of the Blackboard: status records, counters,
// and push notifications all live here, with TTL-based eviction.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed store from a redis:// URL.
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("blackboard: parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("blackboard: ping redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Get retrieves the raw string stored under key.
func (r *RedisStore) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("blackboard: get %q: %w", key, err)
	}
	return val, nil
}

// GetJSON retrieves and unmarshals the JSON document stored under key.
func (r *RedisStore) GetJSON(ctx context.Context, key string, out any) error {
	val, err := r.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return fmt.Errorf("blackboard: decode %q: %w", key, err)
	}
	return nil
}

// Put stores value (JSON-encoded unless it is already a string or []byte)
// under key with the given TTL. ttl <= 0 means no expiration.
func (r *RedisStore) Put(ctx context.Context, key string, value any, ttl time.Duration) error {
	var data any
	switch v := value.(type) {
	case string:
		data = v
	case []byte:
		data = v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("blackboard: marshal %q: %w", key, err)
		}
		data = encoded
	}

	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("blackboard: put %q: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("blackboard: delete %q: %w", key, err)
	}
	return nil
}

// atomicIncrementScript makes INCR + PEXPIRE NX atomic: counters are never
// re-armed with a later TTL by a concurrent caller.
var atomicIncrementScript = redis.NewScript(`
	local key = KEYS[1]
	local ttl_ms = tonumber(ARGV[1])
	local value = redis.call('INCR', key)
	if ttl_ms > 0 and value == 1 then
		redis.call('PEXPIRE', key, ttl_ms)
	end
	return value
`)

// AtomicIncrement increments counter and returns the new value. The first
// call to create a counter arms an optional TTL; ttl <= 0 means the
// counter never expires.
func (r *RedisStore) AtomicIncrement(ctx context.Context, counter string, ttl time.Duration) (int64, error) {
	result, err := atomicIncrementScript.Run(ctx, r.client, []string{counter}, ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("blackboard: atomic increment %q: %w", counter, err)
	}
	return result, nil
}

// compareAndSetScript only writes new_value when the stored value exactly
// equals expected (or the key is absent and expected is empty), preserving
// the monotonic job-state invariant under concurrent worker retries.
var compareAndSetScript = redis.NewScript(`
	local key = KEYS[1]
	local expected = ARGV[1]
	local new_value = ARGV[2]
	local ttl_ms = tonumber(ARGV[3])
	local current = redis.call('GET', key)
	if current == false then
		current = ''
	end
	if current ~= expected then
		return 0
	end
	if ttl_ms > 0 then
		redis.call('SET', key, new_value, 'PX', ttl_ms)
	else
		redis.call('SET', key, new_value)
	end
	return 1
`)

// CompareAndSet atomically replaces key's value with newValue only if the
// current value equals expected (pass "" for expected to require absence).
// It returns ErrCompareAndSetMismatch if the stored value has diverged.
func (r *RedisStore) CompareAndSet(ctx context.Context, key, expected, newValue string, ttl time.Duration) error {
	result, err := compareAndSetScript.Run(ctx, r.client, []string{key}, expected, newValue, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("blackboard: compare-and-set %q: %w", key, err)
	}
	if result == 0 {
		return ErrCompareAndSetMismatch
	}
	return nil
}

// rateLimitScript implements a sliding-window limiter: expire entries
// older than the window, count what remains, and admit the current
// request only if that count is still under limit. The member written
// for each request is unique (timestamp plus a random suffix) so
// concurrent requests in the same millisecond don't collide in the set.
var rateLimitScript = redis.NewScript(`
	local key = KEYS[1]
	local now_ms = tonumber(ARGV[1])
	local window_ms = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	redis.call('ZREMRANGEBYSCORE', key, '-inf', now_ms - window_ms)
	local count = redis.call('ZCARD', key)
	if count >= limit then
		return 0
	end
	redis.call('ZADD', key, now_ms, now_ms .. '-' .. math.random(1000000))
	redis.call('PEXPIRE', key, window_ms)
	return 1
`)

// CheckRateLimit reports whether one more request against key is allowed
// within limit requests per window, using a Redis sorted set to track
// request timestamps.
func (r *RedisStore) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	nowMS := time.Now().UnixMilli()
	allowed, err := rateLimitScript.Run(ctx, r.client, []string{key}, nowMS, window.Milliseconds(), limit).Int()
	if err != nil {
		return false, fmt.Errorf("blackboard: check rate limit %q: %w", key, err)
	}
	return allowed == 1, nil
}

// TrackRunning adds jobID to the running-set for kind, so the stall
// sweeper can enumerate in-flight jobs without scanning the whole
// keyspace.
func (r *RedisStore) TrackRunning(ctx context.Context, key, jobID string) error {
	if err := r.client.SAdd(ctx, key, jobID).Err(); err != nil {
		return fmt.Errorf("blackboard: track running %q in %q: %w", jobID, key, err)
	}
	return nil
}

// UntrackRunning removes jobID from the running-set for kind, called
// once a job reaches a terminal state.
func (r *RedisStore) UntrackRunning(ctx context.Context, key, jobID string) error {
	if err := r.client.SRem(ctx, key, jobID).Err(); err != nil {
		return fmt.Errorf("blackboard: untrack running %q in %q: %w", jobID, key, err)
	}
	return nil
}

// RunningIDs returns the ids currently tracked in the running-set for key.
func (r *RedisStore) RunningIDs(ctx context.Context, key string) ([]string, error) {
	ids, err := r.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("blackboard: list running ids in %q: %w", key, err)
	}
	return ids, nil
}

// Publish pushes message to channel for live subscribers (e.g. the API's
// optional WebSocket push). Best-effort: progress updates are not
// required to be durable.
func (r *RedisStore) Publish(ctx context.Context, channel string, message []byte) error {
	if err := r.client.Publish(ctx, channel, message).Err(); err != nil {
		return fmt.Errorf("blackboard: publish %q: %w", channel, err)
	}
	return nil
}

// Subscribe returns a channel of messages published to channel. Callers
// must drain it until ctx is done.
func (r *RedisStore) Subscribe(ctx context.Context, channel string) <-chan string {
	sub := r.client.Subscribe(ctx, channel)
	out := make(chan string)
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				out <- msg.Payload
			}
		}
	}()
	return out
}

// PSubscribe returns a channel of messages published to any channel
// matching pattern (e.g. "progress:*"), used by the API process to
// bridge every worker's per-job progress channel into the live-push
// hub without subscribing to each job_id individually. Callers must
// drain it until ctx is done.
func (r *RedisStore) PSubscribe(ctx context.Context, pattern string) <-chan string {
	sub := r.client.PSubscribe(ctx, pattern)
	out := make(chan string)
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				out <- msg.Payload
			}
		}
	}()
	return out
}
