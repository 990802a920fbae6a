package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func (s *redisStore) Check(ctx context.Context, key string) (bool, error) {
	// SET NX replies nil when the key already exists.
	err := s.client.SetArgs(ctx, s.prefix+key, time.Now().Unix(), redis.SetArgs{
		Mode: "NX",
		TTL:  s.ttl,
	}).Err()
	switch {
	case errors.Is(err, redis.Nil):
		return true, nil
	case err != nil:
		return false, err
	}
	return false, nil
}

func (s *redisStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}
