// Package cache implements the caching layer: a key-value store adapter
// with a Redis and a no-op variant, and a typed cache service with
// domain-specific helpers and a store-backed rate limiter.
//
// Every service method except the compute callback in GetOrSet is
// fail-safe: store errors degrade to "no cache" and are logged, never
// returned to callers. Caching is a speedup, not a correctness dependency.
package cache

import (
	"context"
	"encoding/json"
	"reflect"
	"time"

	"go.uber.org/zap"

	"fixia-backend/internal/config"
)

// Service provides high-level typed caching operations on top of a
// KeyValueStore. It owns the store instance it was constructed with.
type Service struct {
	store  KeyValueStore
	keys   Keys
	ttl    config.CacheConfig
	logger *zap.Logger
}

// NewService creates the cache service. One instance is shared per process.
func NewService(store KeyValueStore, cfg config.CacheConfig, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		keys:   NewKeys(cfg.KeyPrefix),
		ttl:    cfg,
		logger: logger,
	}
}

// Keys exposes the key builder so consumers derive keys consistently.
func (s *Service) Keys() Keys {
	return s.keys
}

// TTL exposes the configured TTL tiers.
func (s *Service) TTL() config.CacheConfig {
	return s.ttl
}

// Get returns the value stored under key, or nil on a miss. Values are
// decoded from JSON; if decoding fails the raw string is returned instead
// of an error. Store errors are treated as misses.
func (s *Service) Get(ctx context.Context, key string) any {
	raw, found, err := s.store.Get(ctx, key)
	if err != nil {
		s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return nil
	}
	if !found {
		return nil
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return string(raw)
	}
	return value
}

// Set stores value under key with the given TTL, serializing non-string
// values to JSON. Returns false on any store or encoding error.
func (s *Service) Set(ctx context.Context, key string, value any, ttl time.Duration) bool {
	data, err := marshalValue(value)
	if err != nil {
		s.logger.Warn("cache set: value not serializable", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := s.store.Set(ctx, key, data, ttl); err != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// Del removes key from the cache. Returns false if the key was absent or
// the store errored.
func (s *Service) Del(ctx context.Context, key string) bool {
	deleted, err := s.store.Del(ctx, key)
	if err != nil {
		s.logger.Warn("cache del failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return deleted
}

// Exists reports whether key is present in the cache.
func (s *Service) Exists(ctx context.Context, key string) bool {
	ok, err := s.store.Exists(ctx, key)
	if err != nil {
		s.logger.Warn("cache exists failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return ok
}

// GetOrSet returns the cached value for key, or invokes compute, caches a
// non-nil result under key with the given TTL, and returns it. Errors from
// compute propagate unchanged; cache failures never prevent compute from
// running.
//
// Known limitation: there is no single-flight coalescing. Concurrent
// callers that all miss on the same key each invoke compute, and the last
// write wins.
func (s *Service) GetOrSet(ctx context.Context, key string, ttl time.Duration, compute func(context.Context) (any, error)) (any, error) {
	if value := s.Get(ctx, key); value != nil {
		return value, nil
	}

	value, err := compute(ctx)
	if err != nil {
		return nil, err
	}
	if value != nil {
		s.Set(ctx, key, value, ttl)
	}
	return value, nil
}

// Typed returns the cached value under key decoded into T. The second
// return is false on miss, decode failure or store error.
func Typed[T any](ctx context.Context, s *Service, key string) (T, bool) {
	var value T
	raw, found, err := s.store.Get(ctx, key)
	if err != nil {
		s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return value, false
	}
	if !found {
		return value, false
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		s.logger.Warn("cache entry not decodable", zap.String("key", key), zap.Error(err))
		return value, false
	}
	return value, true
}

// GetOrSetTyped is GetOrSet with a typed compute callback. Like GetOrSet,
// a nil result is not cached: pinning a JSON null in the store would turn
// later lookups into zero-value hits.
func GetOrSetTyped[T any](ctx context.Context, s *Service, key string, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	if value, ok := Typed[T](ctx, s, key); ok {
		return value, nil
	}

	value, err := compute(ctx)
	if err != nil {
		return value, err
	}
	if !isNil(value) {
		s.Set(ctx, key, value, ttl)
	}
	return value, nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return rv.IsNil()
	}
	return false
}

// Domain helpers. Thin conveniences over Get/Set/Del with deterministic
// key templates.

// CacheUser caches a user profile for the medium tier.
func (s *Service) CacheUser(ctx context.Context, userID string, user any) bool {
	return s.Set(ctx, s.keys.User(userID), user, s.ttl.MediumTTL)
}

// CachedUser returns the cached profile for userID, or nil.
func (s *Service) CachedUser(ctx context.Context, userID string) any {
	return s.Get(ctx, s.keys.User(userID))
}

// InvalidateUser removes a user's derived cache entries: profile, owned
// services list and session.
func (s *Service) InvalidateUser(ctx context.Context, userID string) {
	s.Del(ctx, s.keys.User(userID))
	s.Del(ctx, s.keys.UserServices(userID))
	s.Del(ctx, s.keys.UserSession(userID))
}

// CacheServiceDetail caches a service detail payload.
func (s *Service) CacheServiceDetail(ctx context.Context, serviceID string, svc any) bool {
	return s.Set(ctx, s.keys.ServiceDetail(serviceID), svc, s.ttl.MediumTTL)
}

// CachedServiceDetail returns the cached detail for serviceID, or nil.
func (s *Service) CachedServiceDetail(ctx context.Context, serviceID string) any {
	return s.Get(ctx, s.keys.ServiceDetail(serviceID))
}

// CacheServicesList caches a filtered marketplace listing for the short tier.
func (s *Service) CacheServicesList(ctx context.Context, filters any, list any) bool {
	return s.Set(ctx, s.keys.ServicesList(filters), list, s.ttl.ShortTTL)
}

// CachedServicesList returns the cached listing for filters, or nil.
func (s *Service) CachedServicesList(ctx context.Context, filters any) any {
	return s.Get(ctx, s.keys.ServicesList(filters))
}

// CacheCategories caches the category catalog for the very-long tier.
func (s *Service) CacheCategories(ctx context.Context, categories any) bool {
	return s.Set(ctx, s.keys.Categories(), categories, s.ttl.VeryLongTTL)
}

// CachedCategories returns the cached category catalog, or nil.
func (s *Service) CachedCategories(ctx context.Context) any {
	return s.Get(ctx, s.keys.Categories())
}

// InvalidateServices removes the derived cache entries affected by a
// service write: the service's detail entry, the owner's derived entries
// and the unfiltered listing.
//
// This deletes a fixed set of known keys. Filtered listing variants
// (ServicesList with non-nil filters) are NOT matched and may stay stale
// until their TTL elapses. Whether that is a deliberate simplification or
// a gap is an open product question; it is kept as-is rather than replaced
// with a wildcard scan.
func (s *Service) InvalidateServices(ctx context.Context, serviceID, userID string) {
	if serviceID != "" {
		s.Del(ctx, s.keys.ServiceDetail(serviceID))
	}
	if userID != "" {
		s.InvalidateUser(ctx, userID)
		s.Del(ctx, s.keys.Favorites(userID))
	}
	s.Del(ctx, s.keys.ServicesList(nil))
}

// RateLimitResult reports the outcome of a rate-limit check.
type RateLimitResult struct {
	Allowed   bool  `json:"allowed"`
	Remaining int   `json:"remaining"`
	ResetTime int64 `json:"resetTime"` // epoch seconds
}

// RateLimit applies a sliding-window limit on key: at most limit calls per
// window. The counter increment is a single atomic store operation, so
// concurrent callers cannot lose updates. Fails open: any store error
// yields an allowed result, prioritizing availability over enforcement.
func (s *Service) RateLimit(ctx context.Context, key string, limit int, window time.Duration) RateLimitResult {
	failOpen := RateLimitResult{
		Allowed:   true,
		Remaining: limit - 1,
		ResetTime: time.Now().Add(window).Unix(),
	}

	count, err := s.store.Incr(ctx, key)
	if err != nil {
		s.logger.Warn("rate limit check failed, allowing request", zap.String("key", key), zap.Error(err))
		return failOpen
	}
	if count == 1 {
		if _, err := s.store.Expire(ctx, key, window); err != nil {
			s.logger.Warn("rate limit window not set, allowing request", zap.String("key", key), zap.Error(err))
			return failOpen
		}
	}

	reset := time.Now().Add(window)
	if ttl, err := s.store.TTL(ctx, key); err == nil && ttl > 0 {
		reset = time.Now().Add(ttl)
	}

	if int(count) > limit {
		return RateLimitResult{
			Allowed:   false,
			Remaining: 0,
			ResetTime: reset.Unix(),
		}
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return RateLimitResult{
		Allowed:   true,
		Remaining: remaining,
		ResetTime: reset.Unix(),
	}
}

// ClearAll flushes the entire store. Administrative use only.
func (s *Service) ClearAll(ctx context.Context) bool {
	if err := s.store.FlushAll(ctx); err != nil {
		s.logger.Warn("cache flush failed", zap.Error(err))
		return false
	}
	return true
}

func marshalValue(value any) ([]byte, error) {
	if str, ok := value.(string); ok {
		return []byte(str), nil
	}
	return json.Marshal(value)
}
