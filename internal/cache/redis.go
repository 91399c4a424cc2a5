package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func NewRedisClient(cfg RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// RedisDenylist shares revocations between replicas. Keys expire with the token.
type RedisDenylist struct {
	rdb redis.Cmdable
	now func() time.Time
}

func NewRedisDenylist(rdb redis.Cmdable) *RedisDenylist {
	return &RedisDenylist{rdb: rdb, now: time.Now}
}

func (d *RedisDenylist) Revoke(ctx context.Context, jti string, until time.Time) error {
	ttl := until.Sub(d.now())

	// already expired tokens need no entry
	if ttl <= 0 {
		return nil
	}

	return d.rdb.Set(ctx, denylistKey(jti), 1, ttl).Err()
}

func (d *RedisDenylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := d.rdb.Exists(ctx, denylistKey(jti)).Result()

	if err != nil {
		return false, err
	}

	return n > 0, nil
}
