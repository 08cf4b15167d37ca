package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// RedisKeyPrefix namespaces limiter entries in Redis.
const RedisKeyPrefix = "ratelimit:"

// Redis is a sliding-window Limiter over a Redis sorted set, shared by all
// instances of the service. Each attempt is a member scored by its
// nanosecond timestamp; the window is trimmed on every call.
type Redis struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
}

// NewRedis returns a limiter allowing limit events per rolling window.
func NewRedis(rdb *redis.Client, limit int, window time.Duration) *Redis {
	return &Redis{rdb: rdb, limit: limit, window: window}
}

// Allow trims expired entries, tentatively records this attempt and counts
// the window atomically. If the attempt overflows the limit its entry is
// removed again so rejected requests do not consume capacity.
func (r *Redis) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := RedisKeyPrefix + key
	now := time.Now()
	member := uuid.NewString()
	cutoff := strconv.FormatInt(now.Add(-r.window).UnixNano(), 10)

	pipe := r.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", cutoff)
	pipe.ZAdd(ctx, redisKey, &redis.Z{Score: float64(now.UnixNano()), Member: member})
	countCmd := pipe.ZCard(ctx, redisKey)
	pipe.Expire(ctx, redisKey, r.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limiter: %w", err)
	}

	if countCmd.Val() > int64(r.limit) {
		if err := r.rdb.ZRem(ctx, redisKey, member).Err(); err != nil {
			return false, fmt.Errorf("rate limiter: %w", err)
		}
		return false, nil
	}
	return true, nil
}
