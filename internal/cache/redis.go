package cache

import (
	"context"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "trackd:cache:"

type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedis(addr, password string, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Redis{
		rdb: redis.NewClient(&redis.Options{Addr: addr, Password: password}),
		ttl: ttl,
	}
}

func (r *Redis) Put(ctx context.Context, key, value string) error {
	return r.rdb.Set(ctx, redisKeyPrefix+key, value, r.ttl).Err()
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := r.rdb.Get(ctx, redisKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, redisKeyPrefix+key).Err()
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
