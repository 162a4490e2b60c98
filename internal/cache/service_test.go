package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fixia-backend/internal/config"
	"fixia-backend/internal/repository"
)

func newTestService(t *testing.T) (*Service, *miniredis.Miniredis) {
	t.Helper()
	store, mr := newTestStore(t)
	return NewService(store, config.Default().Cache, zap.NewNop()), mr
}

// brokenStore fails every operation, standing in for a Redis outage after a
// healthy start.
type brokenStore struct{}

var errStoreDown = errors.New("connection refused")

func (brokenStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errStoreDown
}
func (brokenStore) Set(context.Context, string, []byte, time.Duration) error { return errStoreDown }
func (brokenStore) Del(context.Context, string) (bool, error)                { return false, errStoreDown }
func (brokenStore) Exists(context.Context, string) (bool, error)             { return false, errStoreDown }
func (brokenStore) TTL(context.Context, string) (time.Duration, error)       { return 0, errStoreDown }
func (brokenStore) Expire(context.Context, string, time.Duration) (bool, error) {
	return false, errStoreDown
}
func (brokenStore) Incr(context.Context, string) (int64, error) { return 0, errStoreDown }
func (brokenStore) FlushAll(context.Context) error               { return errStoreDown }
func (brokenStore) Ping(context.Context) error                   { return errStoreDown }
func (brokenStore) Close() error                                 { return nil }

func TestService_SetAndGet(t *testing.T) {
	// Arrange
	svc, _ := newTestService(t)
	ctx := context.Background()

	// Act
	ok := svc.Set(ctx, "user:1", map[string]any{"name": "Ada"}, time.Minute)
	value := svc.Get(ctx, "user:1")

	// Assert - structured values round-trip through JSON
	assert.True(t, ok)
	require.NotNil(t, value)
	decoded, isMap := value.(map[string]any)
	require.True(t, isMap)
	assert.Equal(t, "Ada", decoded["name"])
}

func TestService_GetMissReturnsNil(t *testing.T) {
	// Arrange
	svc, _ := newTestService(t)

	// Act + Assert
	assert.Nil(t, svc.Get(context.Background(), "absent"))
}

func TestService_StringsStoredRaw(t *testing.T) {
	// Arrange
	svc, _ := newTestService(t)
	ctx := context.Background()

	// Act
	svc.Set(ctx, "token", "plain-string", time.Minute)
	value := svc.Get(ctx, "token")

	// Assert - strings skip JSON encoding on write and come back verbatim
	assert.Equal(t, "plain-string", value)
}

func TestService_UndecodableEntryReturnsRawString(t *testing.T) {
	// Arrange - plant a value that is not valid JSON
	svc, mr := newTestService(t)
	require.NoError(t, mr.Set("corrupt", "{not json"))

	// Act
	value := svc.Get(context.Background(), "corrupt")

	// Assert
	assert.Equal(t, "{not json", value)
}

func TestService_FailSafeOnStoreErrors(t *testing.T) {
	// Arrange
	svc := NewService(brokenStore{}, config.Default().Cache, zap.NewNop())
	ctx := context.Background()

	// Act + Assert - every operation degrades instead of surfacing the error
	assert.Nil(t, svc.Get(ctx, "key"))
	assert.False(t, svc.Set(ctx, "key", "value", time.Minute))
	assert.False(t, svc.Del(ctx, "key"))
	assert.False(t, svc.Exists(ctx, "key"))
	assert.False(t, svc.ClearAll(ctx))
}

func TestService_GetOrSetComputesOnceThenServesCached(t *testing.T) {
	// Arrange
	svc, _ := newTestService(t)
	ctx := context.Background()
	calls := 0
	compute := func(context.Context) (any, error) {
		calls++
		return map[string]any{"id": "svc-1"}, nil
	}

	// Act
	first, err1 := svc.GetOrSet(ctx, "detail", time.Minute, compute)
	second, err2 := svc.GetOrSet(ctx, "detail", time.Minute, compute)

	// Assert
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)
}

func TestService_GetOrSetPropagatesComputeError(t *testing.T) {
	// Arrange
	svc, _ := newTestService(t)
	wantErr := errors.New("database down")

	// Act
	value, err := svc.GetOrSet(context.Background(), "key", time.Minute, func(context.Context) (any, error) {
		return nil, wantErr
	})

	// Assert - compute errors pass through, nothing is cached
	assert.ErrorIs(t, err, wantErr)
	assert.Nil(t, value)
	assert.False(t, svc.Exists(context.Background(), "key"))
}

func TestService_GetOrSetRunsComputeWhenStoreIsDown(t *testing.T) {
	// Arrange - the cache being broken must not break the read path
	svc := NewService(brokenStore{}, config.Default().Cache, zap.NewNop())

	// Act
	value, err := svc.GetOrSet(context.Background(), "key", time.Minute, func(context.Context) (any, error) {
		return "computed", nil
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "computed", value)
}

type profile struct {
	Name string `json:"name"`
	Age  int    `json:"age"`
}

func TestTyped_RoundTrip(t *testing.T) {
	// Arrange
	svc, _ := newTestService(t)
	ctx := context.Background()
	svc.Set(ctx, "profile", profile{Name: "Ada", Age: 36}, time.Minute)

	// Act
	got, ok := Typed[profile](ctx, svc, "profile")

	// Assert
	assert.True(t, ok)
	assert.Equal(t, profile{Name: "Ada", Age: 36}, got)
}

func TestTyped_MissAndDecodeFailure(t *testing.T) {
	// Arrange
	svc, mr := newTestService(t)
	ctx := context.Background()
	require.NoError(t, mr.Set("corrupt", "{not json"))

	// Act + Assert
	_, ok := Typed[profile](ctx, svc, "absent")
	assert.False(t, ok)

	_, ok = Typed[profile](ctx, svc, "corrupt")
	assert.False(t, ok)
}

func TestGetOrSetTyped_Memoizes(t *testing.T) {
	// Arrange
	svc, _ := newTestService(t)
	ctx := context.Background()
	calls := 0

	compute := func(context.Context) (profile, error) {
		calls++
		return profile{Name: "Ada", Age: 36}, nil
	}

	// Act
	first, err1 := GetOrSetTyped(ctx, svc, "profile", time.Minute, compute)
	second, err2 := GetOrSetTyped(ctx, svc, "profile", time.Minute, compute)

	// Assert
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)
}

func TestGetOrSetTyped_NilResultNotCached(t *testing.T) {
	// Arrange
	svc, _ := newTestService(t)
	ctx := context.Background()
	calls := 0
	compute := func(context.Context) (*profile, error) {
		calls++
		return nil, nil
	}

	// Act
	first, err1 := GetOrSetTyped(ctx, svc, "profile", time.Minute, compute)
	second, err2 := GetOrSetTyped(ctx, svc, "profile", time.Minute, compute)

	// Assert - a nil result must not be pinned as a JSON null, so the next
	// call computes again instead of serving a zero-value hit
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Nil(t, first)
	assert.Nil(t, second)
	assert.Equal(t, 2, calls)
	assert.False(t, svc.Exists(ctx, "profile"))
}

func TestService_InvalidateUserClearsDerivedKeys(t *testing.T) {
	// Arrange
	svc, _ := newTestService(t)
	ctx := context.Background()
	keys := svc.Keys()
	svc.Set(ctx, keys.User("u1"), "profile", time.Minute)
	svc.Set(ctx, keys.UserServices("u1"), "services", time.Minute)
	svc.Set(ctx, keys.UserSession("u1"), "session", time.Minute)

	// Act
	svc.InvalidateUser(ctx, "u1")

	// Assert
	assert.False(t, svc.Exists(ctx, keys.User("u1")))
	assert.False(t, svc.Exists(ctx, keys.UserServices("u1")))
	assert.False(t, svc.Exists(ctx, keys.UserSession("u1")))
}

func TestService_InvalidateServicesClearsKnownKeys(t *testing.T) {
	// Arrange
	svc, _ := newTestService(t)
	ctx := context.Background()
	keys := svc.Keys()
	filtered := repository.ServiceFilters{CategoryID: "plumbing"}
	svc.Set(ctx, keys.ServiceDetail("s1"), "detail", time.Minute)
	svc.Set(ctx, keys.ServicesList(nil), "unfiltered", time.Minute)
	svc.Set(ctx, keys.ServicesList(filtered), "filtered", time.Minute)
	svc.Set(ctx, keys.Favorites("u1"), "favs", time.Minute)

	// Act
	svc.InvalidateServices(ctx, "s1", "u1")

	// Assert - the fixed key set is cleared; filtered listing variants are
	// not matched and age out by TTL instead
	assert.False(t, svc.Exists(ctx, keys.ServiceDetail("s1")))
	assert.False(t, svc.Exists(ctx, keys.ServicesList(nil)))
	assert.False(t, svc.Exists(ctx, keys.Favorites("u1")))
	assert.True(t, svc.Exists(ctx, keys.ServicesList(filtered)))
}

func TestService_InvalidateServicesClearsDefaultListing(t *testing.T) {
	// Arrange - cache the default browse listing exactly the way the list
	// handler keys it: a zero-value filter struct, not a nil filter
	svc, _ := newTestService(t)
	ctx := context.Background()
	keys := svc.Keys()
	handlerKey := keys.ServicesList(repository.ServiceFilters{})
	svc.Set(ctx, handlerKey, []string{"s1"}, time.Minute)
	require.True(t, svc.Exists(ctx, handlerKey))

	// Act
	svc.InvalidateServices(ctx, "s1", "u1")

	// Assert - a service write must not leave the default listing stale
	assert.False(t, svc.Exists(ctx, handlerKey))
}

func TestService_RateLimitCountsDown(t *testing.T) {
	// Arrange
	svc, _ := newTestService(t)
	ctx := context.Background()
	key := svc.Keys().RateLimit("1.2.3.4", "/api/services")

	// Act + Assert - limit 3 per minute: three allowed with decreasing
	// remaining, then denied
	first := svc.RateLimit(ctx, key, 3, time.Minute)
	assert.True(t, first.Allowed)
	assert.Equal(t, 2, first.Remaining)

	second := svc.RateLimit(ctx, key, 3, time.Minute)
	assert.True(t, second.Allowed)
	assert.Equal(t, 1, second.Remaining)

	third := svc.RateLimit(ctx, key, 3, time.Minute)
	assert.True(t, third.Allowed)
	assert.Equal(t, 0, third.Remaining)

	fourth := svc.RateLimit(ctx, key, 3, time.Minute)
	assert.False(t, fourth.Allowed)
	assert.Equal(t, 0, fourth.Remaining)
	assert.Greater(t, fourth.ResetTime, time.Now().Unix()-1)
}

func TestService_RateLimitWindowResets(t *testing.T) {
	// Arrange
	svc, mr := newTestService(t)
	ctx := context.Background()
	key := svc.Keys().RateLimit("u1", "/api/services")
	for i := 0; i < 3; i++ {
		svc.RateLimit(ctx, key, 2, time.Minute)
	}
	denied := svc.RateLimit(ctx, key, 2, time.Minute)
	require.False(t, denied.Allowed)

	// Act - let the window elapse
	mr.FastForward(2 * time.Minute)
	afterReset := svc.RateLimit(ctx, key, 2, time.Minute)

	// Assert
	assert.True(t, afterReset.Allowed)
	assert.Equal(t, 1, afterReset.Remaining)
}

func TestService_RateLimitFailsOpen(t *testing.T) {
	// Arrange - a broken store must never deny traffic
	svc := NewService(brokenStore{}, config.Default().Cache, zap.NewNop())

	// Act
	result := svc.RateLimit(context.Background(), "rate_limit:1.2.3.4:/api/x", 2, time.Minute)

	// Assert
	assert.True(t, result.Allowed)
	assert.Equal(t, 1, result.Remaining)
}

func TestService_DomainHelpers(t *testing.T) {
	// Arrange
	svc, _ := newTestService(t)
	ctx := context.Background()

	// Act + Assert
	assert.True(t, svc.CacheUser(ctx, "u1", map[string]any{"name": "Ada"}))
	assert.NotNil(t, svc.CachedUser(ctx, "u1"))

	assert.True(t, svc.CacheServiceDetail(ctx, "s1", map[string]any{"title": "Fix sink"}))
	assert.NotNil(t, svc.CachedServiceDetail(ctx, "s1"))

	filters := map[string]any{"category": "plumbing"}
	assert.True(t, svc.CacheServicesList(ctx, filters, []string{"s1"}))
	assert.NotNil(t, svc.CachedServicesList(ctx, filters))

	assert.True(t, svc.CacheCategories(ctx, []string{"plumbing", "electrical"}))
	assert.NotNil(t, svc.CachedCategories(ctx))
}
