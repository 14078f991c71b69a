package directory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeRedis implements the few commands the cache uses; anything else
// panics through the nil embedded interface.
type fakeRedis struct {
	redis.Cmdable

	mu      sync.Mutex
	data    map[string]string
	ttls    map[string]time.Duration
	readErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return redis.NewStringResult("", f.readErr)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	}
	f.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

type countingDirectory struct {
	mu    sync.Mutex
	calls int
	roles map[string][]string
	err   error
}

func (c *countingDirectory) RolesOf(_ context.Context, userID string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.roles[userID], nil
}

func TestCachedDirectory_ReadThrough(t *testing.T) {
	rdb := newFakeRedis()
	next := &countingDirectory{roles: map[string][]string{"mia": {"Manager"}}}
	d := NewCachedDirectory(next, rdb, time.Minute, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		roles, err := d.RolesOf(ctx, "mia")
		require.NoError(t, err)
		assert.Equal(t, []string{"Manager"}, roles)
	}
	assert.Equal(t, 1, next.calls)
	assert.Equal(t, `["Manager"]`, rdb.data["approvals:roles:mia"])
	assert.Equal(t, time.Minute, rdb.ttls["approvals:roles:mia"])

	require.NoError(t, d.Invalidate(ctx, "mia"))
	_, err := d.RolesOf(ctx, "mia")
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
}

func TestCachedDirectory_FallsThroughOnCacheErrors(t *testing.T) {
	rdb := newFakeRedis()
	rdb.readErr = errors.New("connection refused")
	next := &countingDirectory{roles: map[string][]string{"carl": {"Controller"}}}
	d := NewCachedDirectory(next, rdb, 0, zap.NewNop())

	roles, err := d.RolesOf(context.Background(), "carl")
	require.NoError(t, err)
	assert.Equal(t, []string{"Controller"}, roles)
	assert.Equal(t, DefaultTTL, rdb.ttls["approvals:roles:carl"])
}

func TestCachedDirectory_DiscardsMalformedEntries(t *testing.T) {
	rdb := newFakeRedis()
	rdb.data["approvals:roles:cora"] = "not json"
	next := &countingDirectory{roles: map[string][]string{"cora": {"CEO"}}}
	d := NewCachedDirectory(next, rdb, time.Minute, zap.NewNop())

	roles, err := d.RolesOf(context.Background(), "cora")
	require.NoError(t, err)
	assert.Equal(t, []string{"CEO"}, roles)
	assert.Equal(t, `["CEO"]`, rdb.data["approvals:roles:cora"])
}

func TestCachedDirectory_DoesNotCacheFailures(t *testing.T) {
	rdb := newFakeRedis()
	boom := errors.New("directory offline")
	d := NewCachedDirectory(&countingDirectory{err: boom}, rdb, time.Minute, zap.NewNop())

	_, err := d.RolesOf(context.Background(), "mia")
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, rdb.data)
}

func TestConnectRedis_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := ConnectRedis(ctx, RedisConfig{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond})
	assert.Error(t, err)
}
