package worker

import (
	"context"
	"time"

	"voice-orchestrator/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// RedisGuard claims job keys with SET NX so a key runs on one instance only.
type RedisGuard struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisGuard(rdb *redis.Client, prefix string, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisGuard{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (g *RedisGuard) Claim(ctx context.Context, key string) (bool, error) {
	return utils.ClaimOnce(ctx, g.rdb, g.prefix+key, g.ttl)
}
