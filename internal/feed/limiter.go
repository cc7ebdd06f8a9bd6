package feed

import (
	"context"
	"time"

	"call-inbox/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// ConnLimiter caps concurrent feed connections per credential.
type ConnLimiter interface {
	Acquire(ctx context.Context, key string) (release func(), ok bool, err error)
}

// RedisConnLimiter shares the cap across replicas. The slot TTL bounds how
// long a crashed process can leak a slot.
type RedisConnLimiter struct {
	rdb   *redis.Client
	limit int
	ttl   time.Duration
}

func NewRedisConnLimiter(rdb *redis.Client, limit int) *RedisConnLimiter {
	return &RedisConnLimiter{rdb: rdb, limit: limit, ttl: 6 * time.Hour}
}

func (l *RedisConnLimiter) Acquire(ctx context.Context, key string) (func(), bool, error) {
	k := "call_inbox:feed_conns:" + key
	ok, err := utils.AcquireConcurrencyCap(ctx, l.rdb, k, l.limit, l.ttl)
	if err != nil || !ok {
		return func() {}, ok, err
	}
	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = utils.ReleaseConcurrencyCap(ctx, l.rdb, k)
	}
	return release, true, nil
}
