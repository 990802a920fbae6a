package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/example/acadmate/internal/platform/analytics"
	"github.com/example/acadmate/internal/platform/api"
	"github.com/example/acadmate/internal/platform/auth"
	"github.com/example/acadmate/internal/platform/httpserver"
	"github.com/example/acadmate/internal/platform/idempotency"
	"github.com/example/acadmate/services/forum/internal/cache"
	"github.com/example/acadmate/services/forum/internal/chatbot"
	"github.com/example/acadmate/services/forum/internal/store"
)

// Asker answers free-form questions. *chatbot.Client implements it.
type Asker interface {
	Ask(ctx context.Context, question string) (*chatbot.Answer, error)
}

// Deps is everything the forum handlers use. Only Store is required.
type Deps struct {
	Store       store.ForumStore
	Cache       cache.ThreadCache
	Invalidator *cache.Invalidator
	Analytics   *analytics.Publisher
	Idempotency idempotency.Store
	Chatbot     Asker
	Log         *zap.Logger
	Now         func() time.Time
}

func (d Deps) logger() *zap.Logger {
	if d.Log == nil {
		return zap.NewNop()
	}
	return d.Log
}

func (d Deps) now() time.Time {
	if d.Now == nil {
		return time.Now().UTC()
	}
	return d.Now().UTC()
}

func (d Deps) invalidateThread(ctx context.Context, discussionID string) {
	key := cache.ThreadKey(discussionID)
	if d.Invalidator != nil {
		d.Invalidator.Invalidate(ctx, key)
		return
	}
	if d.Cache != nil {
		if err := d.Cache.Delete(ctx, key); err != nil {
			d.logger().Warn("thread cache delete failed", zap.String("key", key), zap.Error(err))
		}
	}
}

func requestID(r *http.Request) string {
	return httpserver.RequestIDFromContext(r.Context())
}

// callerOr401 returns the authenticated caller or writes 401.
func callerOr401(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		api.Unauthorized(w, "UNAUTHORIZED", "authentication required", requestID(r))
		return auth.Identity{}, false
	}
	return id, true
}

// writeStoreError maps store sentinels to HTTP errors and logs anything else.
func (d Deps) writeStoreError(w http.ResponseWriter, r *http.Request, err error, op string) {
	rid := requestID(r)
	switch {
	case errors.Is(err, store.ErrDiscussionNotFound):
		api.NotFound(w, "DISCUSSION_NOT_FOUND", "discussion not found", rid)
	case errors.Is(err, store.ErrCommentNotFound):
		api.NotFound(w, "COMMENT_NOT_FOUND", "comment not found", rid)
	case errors.Is(err, store.ErrParentNotFound):
		api.NotFound(w, "PARENT_NOT_FOUND", "parent comment not found", rid)
	case errors.Is(err, store.ErrParentMismatch):
		api.BadRequest(w, "PARENT_MISMATCH", "parent comment belongs to another discussion", rid, nil)
	case errors.Is(err, store.ErrInvalidCursor):
		api.BadRequest(w, "INVALID_CURSOR", "cursor is malformed", rid, nil)
	default:
		d.logger().Error(op+" failed", zap.String("request_id", rid), zap.Error(err))
		api.Internal(w, rid)
	}
}
