package availability

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	mu     sync.Mutex
	keys   map[string]bool
	err    error
	exists int
}

func newFakeClient() *fakeClient {
	return &fakeClient{keys: make(map[string]bool)}
}

func (f *fakeClient) Exists(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exists++
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	var n int64
	for _, k := range keys {
		if f.keys[k] {
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeClient) Set(_ context.Context, key string, _ any, _ time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys[key] = true
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeClient) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if f.keys[k] {
			delete(f.keys, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeClient) lookups() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exists
}

func TestAll(t *testing.T) {
	t.Parallel()

	yes := func() bool { return true }
	no := func() bool { return false }
	calls := 0
	counted := func() bool { calls++; return true }

	require.True(t, All()())
	require.True(t, All(yes, nil, yes)())
	require.False(t, All(yes, no, counted)())
	require.Zero(t, calls)
}

func TestContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	p := Context(ctx)
	require.True(t, p())
	cancel()
	require.False(t, p())
}

func TestFlagKey(t *testing.T) {
	t.Parallel()

	require.Equal(t, "chunkgen:region:world:available", FlagKey("", "world"))
	require.Equal(t, "test:region:nether:available", FlagKey("test", "nether"))
}

func TestRedisFlagFollowsKey(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	flag := NewRedisFlag(client, FlagKey("", "world"), RedisFlagConfig{})
	ctx := context.Background()

	require.False(t, flag.Available())
	require.NoError(t, flag.Mark(ctx))
	require.True(t, flag.Predicate()())
	require.NoError(t, flag.Clear(ctx))
	require.False(t, flag.Available())
}

func TestRedisFlagCachesWithinRefresh(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	flag := NewRedisFlag(client, "k", RedisFlagConfig{Refresh: time.Minute})
	now := time.Unix(1700000000, 0)
	flag.now = func() time.Time { return now }

	require.NoError(t, flag.Mark(context.Background()))
	require.True(t, flag.Available())
	require.True(t, flag.Available())
	require.Equal(t, 1, client.lookups())

	// An external delete is only noticed after the refresh interval.
	client.Del(context.Background(), "k")
	require.True(t, flag.Available())
	now = now.Add(2 * time.Minute)
	require.False(t, flag.Available())
	require.Equal(t, 2, client.lookups())
}

func TestRedisFlagFailsClosed(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	client.keys["k"] = true
	client.err = errors.New("connection refused")
	flag := NewRedisFlag(client, "k", RedisFlagConfig{})

	require.False(t, flag.Available())
	require.Equal(t, "k", flag.Key())
}
