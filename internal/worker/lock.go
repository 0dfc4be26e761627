package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLocker implements the exclusive constraint with SET NX and a TTL so
// a crashed worker cannot hold a pair locked forever.
type RedisLocker struct {
	rdb    *redis.Client
	logger *slog.Logger
}

func NewRedisLocker(rdb *redis.Client, logger *slog.Logger) *RedisLocker {
	return &RedisLocker{rdb: rdb, logger: logger}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.rdb.SetNX(ctx, key, "1", ttl).Result()
}

func (l *RedisLocker) Release(ctx context.Context, key string) {
	if err := l.rdb.Del(ctx, key).Err(); err != nil {
		l.logger.Error("failed to release lock", "key", key, "error", err)
	}
}
