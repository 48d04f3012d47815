package blackboard

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := NewRedisStore(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRedisStore_PutGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "status:Analysis00000001", map[string]string{"state": "running"}, time.Minute))

	var out map[string]string
	require.NoError(t, store.GetJSON(ctx, "status:Analysis00000001", &out))
	assert.Equal(t, "running", out["state"])
}

func TestRedisStore_Get_MissingKey(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_AtomicIncrement_Monotonic(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var last int64
	for i := 0; i < 10; i++ {
		n, err := store.AtomicIncrement(ctx, "counter:analysis", 0)
		require.NoError(t, err)
		assert.Greater(t, n, last)
		last = n
	}
	assert.Equal(t, int64(10), last)
}

func TestRedisStore_CompareAndSet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// First write requires absence (expected == "").
	require.NoError(t, store.CompareAndSet(ctx, "status:Analysis00000001", "", "running", time.Minute))

	// A transition that matches the current value succeeds.
	require.NoError(t, store.CompareAndSet(ctx, "status:Analysis00000001", "running", "complete", time.Minute))

	// A stale writer racing against the above now sees a mismatch.
	err := store.CompareAndSet(ctx, "status:Analysis00000001", "running", "failed", time.Minute)
	assert.ErrorIs(t, err, ErrCompareAndSetMismatch)

	got, err := store.Get(ctx, "status:Analysis00000001")
	require.NoError(t, err)
	assert.Equal(t, "complete", got, "the racing writer must not have rolled back a terminal state")
}

func TestRedisStore_CheckRateLimit_AdmitsUpToLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := store.CheckRateLimit(ctx, "rate:analysis:127.0.0.1", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should be admitted", i)
	}

	allowed, err := store.CheckRateLimit(ctx, "rate:analysis:127.0.0.1", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed, "the 4th request within the window should be rejected")
}

func TestRedisStore_CheckRateLimit_WindowExpires(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	allowed, err := store.CheckRateLimit(ctx, "rate:analysis:10.0.0.1", 1, 50*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = store.CheckRateLimit(ctx, "rate:analysis:10.0.0.1", 1, 50*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, allowed)

	time.Sleep(100 * time.Millisecond)
	allowed, err = store.CheckRateLimit(ctx, "rate:analysis:10.0.0.1", 1, 50*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, allowed, "the window should have expired the earlier entry")
}

func TestRedisStore_PublishSubscribe(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := store.Subscribe(ctx, "progress:Analysis00000001")

	// miniredis delivers synchronously once a subscriber is registered;
	// give the subscribe goroutine a moment to attach.
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, store.Publish(ctx, "progress:Analysis00000001", []byte(`{"progress":0.5}`)))

	select {
	case msg := <-received:
		assert.JSONEq(t, `{"progress":0.5}`, msg)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published message")
	}
}
