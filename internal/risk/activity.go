package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const activityKeyPrefix = "bridgescope:activity:"

// RedisActivity tracks per-wallet bridge activity in Redis sorted sets, one
// set per wallet scored by event timestamp. Old members are pruned on every
// write so the sets stay bounded to the window.
type RedisActivity struct {
	rdb    redis.UniversalClient
	window time.Duration
}

// NewRedisActivity wraps an existing Redis client.
func NewRedisActivity(rdb redis.UniversalClient, window time.Duration) *RedisActivity {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &RedisActivity{rdb: rdb, window: window}
}

func activityKey(address string) string {
	return activityKeyPrefix + address
}

// Record adds one transfer touching the wallet at ts.
func (a *RedisActivity) Record(ctx context.Context, address, transferID string, ts time.Time) error {
	key := activityKey(address)
	pipe := a.rdb.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(ts.Unix()), Member: transferID})
	cutoff := time.Now().Add(-a.window).Unix()
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%d", cutoff))
	pipe.Expire(ctx, key, a.window+time.Hour)
	_, err := pipe.Exec(ctx)
	return err
}

// CountRecent counts transfers touching the wallet within the window ending
// now.
func (a *RedisActivity) CountRecent(ctx context.Context, address string, window time.Duration) (int64, error) {
	if window <= 0 {
		window = a.window
	}
	cutoff := time.Now().Add(-window).Unix()
	return a.rdb.ZCount(ctx, activityKey(address), fmt.Sprintf("%d", cutoff), "+inf").Result()
}
