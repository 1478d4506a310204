package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cert-registry/internal/models"
)

// ErrCacheMiss is returned when a key is not in the cache
var ErrCacheMiss = errors.New("cache miss")

// VerifyCache is a read-through cache for certificate verification
// lookups, the hottest read path. Entries are invalidated on transfer so
// a verify never reports a stale owner longer than the TTL.
type VerifyCache struct {
	redis *RedisCache
	ttl   time.Duration
}

// NewVerifyCache creates a verification cache with the given TTL
func NewVerifyCache(redis *RedisCache, ttl time.Duration) *VerifyCache {
	return &VerifyCache{redis: redis, ttl: ttl}
}

// Key returns the cache key for a serial number.
// Format: verify:<serial-number>. Serial bytes are case-sensitive in
// address derivation, so the key must not fold case either.
func (c *VerifyCache) Key(serialNumber string) string {
	return fmt.Sprintf("verify:%s", serialNumber)
}

// Get returns the cached certificate for a serial number, or ErrCacheMiss
func (c *VerifyCache) Get(ctx context.Context, serialNumber string) (*models.Certificate, error) {
	data, err := c.redis.Get(ctx, c.Key(serialNumber))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to read verify cache: %w", err)
	}

	var cert models.Certificate
	if err := json.Unmarshal([]byte(data), &cert); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached certificate: %w", err)
	}
	return &cert, nil
}

// Set caches a certificate under its serial number
func (c *VerifyCache) Set(ctx context.Context, cert *models.Certificate) error {
	data, err := json.Marshal(cert)
	if err != nil {
		return fmt.Errorf("failed to marshal certificate: %w", err)
	}
	return c.redis.Set(ctx, c.Key(cert.SerialNumber), data, c.ttl)
}

// Invalidate drops the cached entry for a serial number
func (c *VerifyCache) Invalidate(ctx context.Context, serialNumber string) error {
	return c.redis.Del(ctx, c.Key(serialNumber))
}
