// Package idempotency deduplicates client-supplied request keys.
//
// Primary backend: Redis SETNX with TTL.
// Fallback: Postgres INSERT ... ON CONFLICT on table idempotency_keys.
// If neither is available, an in-memory store is used (development only).
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const DefaultTTL = 24 * time.Hour

// Store checks whether a key has been seen and marks it.
type Store interface {
	// Check returns true if key was already seen within the TTL.
	// If not seen, it atomically marks it.
	Check(ctx context.Context, key string) (duplicate bool, err error)
	// Release forgets key. Call it when the guarded operation failed so a
	// retry with the same key runs again.
	Release(ctx context.Context, key string) error
}

type Options struct {
	Redis      *redis.Client
	Pool       *pgxpool.Pool
	TTL        time.Duration
	Prefix     string
	Production bool
}

// NewStore picks the best available backend: Redis > Postgres > in-memory.
// In production the in-memory fallback is refused.
func NewStore(opts Options) (Store, error) {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Prefix == "" {
		opts.Prefix = "forum:idempotent:"
	}
	if opts.Redis != nil {
		return &redisStore{client: opts.Redis, ttl: opts.TTL, prefix: opts.Prefix}, nil
	}
	if opts.Pool != nil {
		return &postgresStore{db: opts.Pool, ttl: opts.TTL}, nil
	}
	if opts.Production {
		return nil, errors.New("production requires REDIS_URL or DATABASE_URL for idempotency; in-memory store is not allowed")
	}
	return newMemoryStore(opts.TTL), nil
}
