package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// execer is the part of *pgxpool.Pool the store needs.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type postgresStore struct {
	db  execer
	ttl time.Duration
}

// Check inserts the key, or refreshes it when the stored row has expired.
// Zero affected rows means a live duplicate.
func (s *postgresStore) Check(ctx context.Context, key string) (bool, error) {
	const q = `INSERT INTO idempotency_keys (key, created_at)
	           VALUES ($1, now())
	           ON CONFLICT (key) DO UPDATE SET created_at = now()
	           WHERE idempotency_keys.created_at < now() - make_interval(secs => $2)`

	tag, err := s.db.Exec(ctx, q, key, s.ttl.Seconds())
	if err != nil {
		return false, fmt.Errorf("idempotency check: %w", err)
	}
	return tag.RowsAffected() == 0, nil
}

func (s *postgresStore) Release(ctx context.Context, key string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE key = $1`, key); err != nil {
		return fmt.Errorf("idempotency release: %w", err)
	}
	return nil
}
