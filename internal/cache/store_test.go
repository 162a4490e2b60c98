package cache

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fixia-backend/internal/config"
)

func splitAddr(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	return host, port, err
}

func newTestStore(t *testing.T) (KeyValueStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client)
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestRedisStore_SetAndGet(t *testing.T) {
	// Arrange
	store, _ := newTestStore(t)
	ctx := context.Background()

	// Act
	err := store.Set(ctx, "greeting", []byte("hello"), time.Minute)
	require.NoError(t, err)
	value, found, err := store.Get(ctx, "greeting")

	// Assert
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("hello"), value)
}

func TestRedisStore_GetMissing(t *testing.T) {
	// Arrange
	store, _ := newTestStore(t)

	// Act
	value, found, err := store.Get(context.Background(), "absent")

	// Assert - a missing key is a miss, not an error
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, value)
}

func TestRedisStore_Expiry(t *testing.T) {
	// Arrange
	store, mr := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "ephemeral", []byte("x"), time.Minute))

	// Act - advance past the TTL
	mr.FastForward(2 * time.Minute)
	_, found, err := store.Get(ctx, "ephemeral")

	// Assert
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisStore_SetWithoutExpiry(t *testing.T) {
	// Arrange
	store, mr := newTestStore(t)
	ctx := context.Background()

	// Act - negative TTL means no expiry
	require.NoError(t, store.Set(ctx, "durable", []byte("x"), -1))
	mr.FastForward(24 * time.Hour)
	_, found, err := store.Get(ctx, "durable")

	// Assert
	require.NoError(t, err)
	assert.True(t, found)
}

func TestRedisStore_Del(t *testing.T) {
	// Arrange
	store, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "doomed", []byte("x"), time.Minute))

	// Act
	deleted, err := store.Del(ctx, "doomed")
	require.NoError(t, err)
	deletedAgain, err := store.Del(ctx, "doomed")

	// Assert
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.False(t, deletedAgain)
}

func TestRedisStore_Exists(t *testing.T) {
	// Arrange
	store, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "present", []byte("x"), time.Minute))

	// Act + Assert
	ok, err := store.Exists(ctx, "present")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Exists(ctx, "absent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_IncrAndExpire(t *testing.T) {
	// Arrange
	store, mr := newTestStore(t)
	ctx := context.Background()

	// Act - counters increment atomically and expire with the window
	first, err := store.Incr(ctx, "counter")
	require.NoError(t, err)
	second, err := store.Incr(ctx, "counter")
	require.NoError(t, err)

	set, err := store.Expire(ctx, "counter", time.Minute)
	require.NoError(t, err)

	ttl, err := store.TTL(ctx, "counter")
	require.NoError(t, err)

	// Assert
	assert.Equal(t, int64(1), first)
	assert.Equal(t, int64(2), second)
	assert.True(t, set)
	assert.Greater(t, ttl, time.Duration(0))

	mr.FastForward(2 * time.Minute)
	restarted, err := store.Incr(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(1), restarted)
}

func TestRedisStore_FlushAll(t *testing.T) {
	// Arrange
	store, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, store.Set(ctx, "b", []byte("2"), time.Minute))

	// Act
	require.NoError(t, store.FlushAll(ctx))

	// Assert
	_, found, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestNoopStore_AlwaysMisses(t *testing.T) {
	// Arrange
	store := NewNoopStore()
	ctx := context.Background()

	// Act - writes succeed but nothing is retained
	require.NoError(t, store.Set(ctx, "key", []byte("value"), time.Minute))
	value, found, err := store.Get(ctx, "key")

	// Assert
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, value)

	deleted, err := store.Del(ctx, "key")
	require.NoError(t, err)
	assert.False(t, deleted)

	ok, err := store.Exists(ctx, "key")
	require.NoError(t, err)
	assert.False(t, ok)

	ttl, err := store.TTL(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, time.Duration(-1), ttl)
}

func TestNoopStore_IncrNeverAccumulates(t *testing.T) {
	// Arrange
	store := NewNoopStore()
	ctx := context.Background()

	// Act + Assert - every call looks like a fresh counter, so rate limits
	// backed by the no-op store always allow the request
	for i := 0; i < 10; i++ {
		count, err := store.Incr(ctx, "counter")
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	}
}

func TestNewStore_DisabledUsesNoop(t *testing.T) {
	// Arrange
	cfg := config.Default().Redis
	cfg.Disabled = true

	// Act
	store := NewStore(cfg, config.Development, zap.NewNop())

	// Assert
	assert.False(t, Durable(store))
}

func TestNewStore_TestEnvironmentUsesNoop(t *testing.T) {
	// Arrange - in the test environment without the opt-in flag the factory
	// must not reach for a real backend
	cfg := config.Default().Redis
	cfg.TestEnabled = false

	// Act
	store := NewStore(cfg, config.Test, zap.NewNop())

	// Assert
	assert.False(t, Durable(store))
}

func TestNewStore_TestOptInConnects(t *testing.T) {
	// Arrange
	mr := miniredis.RunT(t)
	cfg := config.Default().Redis
	cfg.TestEnabled = true
	host, port, err := splitAddr(mr.Addr())
	require.NoError(t, err)
	cfg.Host = host
	cfg.Port = port

	// Act
	store := NewStore(cfg, config.Test, zap.NewNop())
	defer store.Close()

	// Assert
	assert.True(t, Durable(store))
	assert.NoError(t, store.Ping(context.Background()))
}

func TestNewStore_UnreachableFallsBackToNoop(t *testing.T) {
	// Arrange - a port nothing listens on
	cfg := config.Default().Redis
	cfg.Host = "127.0.0.1"
	cfg.Port = 1
	cfg.DialTimeout = 100 * time.Millisecond

	// Act
	store := NewStore(cfg, config.Development, zap.NewNop())

	// Assert
	assert.False(t, Durable(store))
}
