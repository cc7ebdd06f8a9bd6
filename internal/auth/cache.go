package auth

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache memoizes credential lookups for a bounded time.
type Cache interface {
	Get(ctx context.Context, token string) (Credential, bool, error)
	Set(ctx context.Context, c Credential, ttl time.Duration) error
	Delete(ctx context.Context, token string) error
}

const cacheKeyPrefix = "call_inbox:credential:"

// RedisCache keeps validated credentials in Redis so the gate skips the
// database on hot paths such as feed reconnects. Keys carry the token digest.
type RedisCache struct {
	rdb redis.Cmdable
}

func NewRedisCache(rdb redis.Cmdable) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func (c *RedisCache) Get(ctx context.Context, token string) (Credential, bool, error) {
	raw, err := c.rdb.Get(ctx, cacheKeyPrefix+tokenDigest(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Credential{}, false, nil
	}
	if err != nil {
		return Credential{}, false, err
	}
	var cred Credential
	if err := json.Unmarshal(raw, &cred); err != nil {
		return Credential{}, false, err
	}
	cred.Token = token
	return cred, true, nil
}

func (c *RedisCache) Set(ctx context.Context, cred Credential, ttl time.Duration) error {
	raw, err := json.Marshal(cred)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, cacheKeyPrefix+tokenDigest(cred.Token), raw, ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, token string) error {
	return c.rdb.Del(ctx, cacheKeyPrefix+tokenDigest(token)).Err()
}
