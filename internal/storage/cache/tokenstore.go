// Package cache decorates a token repository with a Redis cache:
// read-aside on lookups, write-through on rotation.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tinywideclouds/go-push-ingestion-service/internal/tokens"
	"github.com/tinywideclouds/go-push-ingestion-service/pkg/push"
)

// CacheClient defines the subset of Redis commands we need.
type CacheClient interface {
	// Get returns the value or an error if not found.
	Get(ctx context.Context, key string, dest interface{}) error
	// Set stores the value with a TTL.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// SetNX stores the value only if the key is absent.
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
	// Del removes the key.
	Del(ctx context.Context, key string) error
}

// CachedTokenStore adds read-aside caching of current tokens to any
// tokens.Repository. History is never cached.
type CachedTokenStore struct {
	realStore tokens.Repository
	cache     CacheClient
	ttl       time.Duration
	logger    *slog.Logger
}

func NewCachedTokenStore(realStore tokens.Repository, cache CacheClient, ttl time.Duration, logger *slog.Logger) *CachedTokenStore {
	return &CachedTokenStore{
		realStore: realStore,
		cache:     cache,
		ttl:       ttl,
		logger:    logger.With("component", "CachedTokenStore"),
	}
}

// --- READ PATH (Read-Aside) ---

// Current fills a miss with SetNX: a reader that loaded the token before a
// concurrent Replace must not overwrite the entry Replace wrote.
func (s *CachedTokenStore) Current(ctx context.Context, deviceID string) (push.Token, error) {
	key := s.cacheKey(deviceID)

	var cached push.Token
	if err := s.cache.Get(ctx, key, &cached); err == nil && !cached.IsZero() {
		return cached, nil
	}

	fresh, err := s.realStore.Current(ctx, deviceID)
	if err != nil {
		return push.Token{}, err
	}

	// Caching is an optimization; a Redis outage just means DB reads.
	if _, err := s.cache.SetNX(ctx, key, fresh, s.ttl); err != nil {
		s.logger.Debug("Cache populate failed", "device_id", deviceID, "err", err)
	}
	return fresh, nil
}

// --- WRITE PATH (Write-Through) ---

func (s *CachedTokenStore) Replace(ctx context.Context, next push.Token) (push.TokenChange, error) {
	change, err := s.realStore.Replace(ctx, next)
	if err != nil {
		return push.TokenChange{}, err
	}
	if !change.Changed {
		return change, nil
	}

	key := s.cacheKey(next.DeviceID)
	if err := s.cache.Set(ctx, key, change.Current, s.ttl); err != nil {
		// Without the new entry, at least drop the superseded one.
		s.logger.Warn("Cache write-through failed", "device_id", next.DeviceID, "err", err)
		if err := s.cache.Del(ctx, key); err != nil {
			s.logger.Warn("Cache invalidation failed", "device_id", next.DeviceID, "err", err)
		}
	}
	return change, nil
}

func (s *CachedTokenStore) History(ctx context.Context, deviceID string) ([]push.Token, error) {
	return s.realStore.History(ctx, deviceID)
}

func (s *CachedTokenStore) cacheKey(deviceID string) string {
	return fmt.Sprintf("push:tokens:%s", deviceID)
}
