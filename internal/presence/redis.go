package presence

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const leaseKeyPrefix = "falai:presence:"

// RedisLease stores presence leases as redis keys with a TTL, so liveness
// is shared across every client pointed at the same redis and expiry needs
// no reaper of its own: a key that is not refreshed simply disappears.
type RedisLease struct {
	rdb *redis.Client
}

// NewRedisLease connects to redis and verifies the connection.
func NewRedisLease(ctx context.Context, addr string, db int) (*RedisLease, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return &RedisLease{rdb: rdb}, nil
}

func (l *RedisLease) Acquire(ctx context.Context, userID string, ttl time.Duration) error {
	return l.rdb.Set(ctx, leaseKeyPrefix+userID, "1", ttl).Err()
}

func (l *RedisLease) Refresh(ctx context.Context, userID string, ttl time.Duration) error {
	return l.Acquire(ctx, userID, ttl)
}

func (l *RedisLease) Release(ctx context.Context, userID string) error {
	return l.rdb.Del(ctx, leaseKeyPrefix+userID).Err()
}

func (l *RedisLease) Alive(ctx context.Context, userID string) (bool, error) {
	n, err := l.rdb.Exists(ctx, leaseKeyPrefix+userID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Close releases the redis connection.
func (l *RedisLease) Close() error {
	return l.rdb.Close()
}
