package cache

import (
	"context"

	"go.uber.org/zap"
)

// Publisher is satisfied by *nats.Conn.
type Publisher interface {
	Publish(subj string, data []byte) error
}

// Invalidator drops a key locally and tells peer instances to do the same.
type Invalidator struct {
	cache   ThreadCache
	pub     Publisher
	subject string
	log     *zap.Logger
}

// NewInvalidator accepts a nil cache or publisher; the missing half is skipped.
func NewInvalidator(c ThreadCache, pub Publisher, subject string, log *zap.Logger) *Invalidator {
	if log == nil {
		log = zap.NewNop()
	}
	if subject == "" {
		subject = InvalidateSubject
	}
	return &Invalidator{cache: c, pub: pub, subject: subject, log: log}
}

// Invalidate never fails the caller; problems are logged.
func (i *Invalidator) Invalidate(ctx context.Context, key string) {
	if i == nil {
		return
	}
	if i.cache != nil {
		if err := i.cache.Delete(ctx, key); err != nil {
			i.log.Warn("cache delete failed", zap.String("key", key), zap.Error(err))
		}
	}
	if i.pub != nil {
		if err := i.pub.Publish(i.subject, []byte(key)); err != nil {
			i.log.Warn("cache invalidation publish failed", zap.String("key", key), zap.Error(err))
		}
	}
}
