package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	cachedStoreLogPrefix = "client:cached_store"

	defaultKeyPrefix = "api-dispatcher:client"
	defaultTTL       = 5 * time.Minute

	// notFound is cached for lookups that found no client.
	notFound = "null"
)

// CachedStoreOpts configures CachedStore. Zero values use defaults.
type CachedStoreOpts struct {
	KeyPrefix string
	TTL       time.Duration
}

// CachedStore caches another Store in Redis. Misses are cached too. Redis
// failures fall through to the wrapped store. Concurrent misses for the same
// key share one lookup.
type CachedStore struct {
	redis     redis.UniversalClient
	next      Store
	keyPrefix string
	ttl       time.Duration
	flight    singleflight.Group
}

// NewRedisClient creates a Redis client for addr.
func NewRedisClient(addr, password string) redis.UniversalClient {
	return redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:      []string{addr},
		Password:   password,
		MaxRetries: 2,
	})
}

// NewCachedStore creates a new CachedStore. Pass nil for opts to use defaults.
func NewCachedStore(rdb redis.UniversalClient, next Store, opts *CachedStoreOpts) *CachedStore {
	s := &CachedStore{redis: rdb, next: next, keyPrefix: defaultKeyPrefix, ttl: defaultTTL}
	if opts != nil {
		if opts.KeyPrefix != "" {
			s.keyPrefix = opts.KeyPrefix
		}
		if opts.TTL > 0 {
			s.ttl = opts.TTL
		}
	}
	return s
}

// Key returns the cache key of a lookup.
func (s *CachedStore) Key(field, value string) string {
	return fmt.Sprintf("%s:%s:%s", s.keyPrefix, field, value)
}

// GetByField returns the cached client, loading it from the wrapped store on a miss.
func (s *CachedStore) GetByField(ctx context.Context, field, value string) (map[string]any, error) {
	key := s.Key(field, value)

	cached, err := s.redis.Get(ctx, key).Result()
	switch {
	case err == nil:
		if cached == notFound {
			return nil, nil
		}
		var client map[string]any
		if err := json.Unmarshal([]byte(cached), &client); err == nil {
			return client, nil
		}
		slog.Warn(fmt.Sprintf("%s - discarding corrupt cache entry %s", cachedStoreLogPrefix, key))
	case !errors.Is(err, redis.Nil):
		slog.Warn(fmt.Sprintf("%s - cache read failed for %s: %v", cachedStoreLogPrefix, key, err))
	}

	return s.fill(ctx, key, field, value)
}

// fill loads a client from the wrapped store and caches the result. Every
// caller gets its own copy of the shared result.
func (s *CachedStore) fill(ctx context.Context, key, field, value string) (map[string]any, error) {
	v, err, _ := s.flight.Do(key, func() (any, error) {
		client, err := s.next.GetByField(ctx, field, value)
		if err != nil {
			return nil, err
		}

		payload := []byte(notFound)
		if client != nil {
			if payload, err = json.Marshal(client); err != nil {
				return client, nil
			}
		}
		if err := s.redis.Set(ctx, key, payload, s.ttl).Err(); err != nil {
			slog.Warn(fmt.Sprintf("%s - cache write failed for %s: %v", cachedStoreLogPrefix, key, err))
		}
		return client, nil
	})
	if err != nil {
		return nil, err
	}
	client, _ := v.(map[string]any)
	if client == nil {
		return nil, nil
	}
	return maps.Clone(client), nil
}

// Invalidate removes the cached lookup.
func (s *CachedStore) Invalidate(ctx context.Context, field, value string) error {
	if err := s.redis.Del(ctx, s.Key(field, value)).Err(); err != nil {
		return fmt.Errorf("%s - failed to invalidate %s=%s: %w", cachedStoreLogPrefix, field, value, err)
	}
	return nil
}
