package replay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const defaultKeyPrefix = "gpsjwt:nonce:"

// RedisCache is a Cache shared between verifier instances. SETNX makes the
// compare-and-insert atomic across processes.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// RedisOption customizes a RedisCache.
type RedisOption func(*RedisCache)

// WithKeyPrefix overrides the key namespace.
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *RedisCache) {
		r.prefix = prefix
	}
}

// NewRedisCache wraps an existing client.
func NewRedisCache(client redis.UniversalClient, opts ...RedisOption) (*RedisCache, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	r := &RedisCache{
		client: client,
		prefix: defaultKeyPrefix,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Claim implements Cache. The key lives until the token expires.
func (r *RedisCache) Claim(ctx context.Context, nonce string, expiresAt time.Time) (bool, error) {
	ttl := expiresAt.Sub(r.now())
	if ttl < time.Second {
		ttl = time.Second
	}
	ok, err := r.client.SetNX(ctx, r.prefix+nonce, expiresAt.Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", nonce, err)
	}
	return ok, nil
}
