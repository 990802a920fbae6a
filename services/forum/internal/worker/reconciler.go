// Package worker runs the forum's background jobs: counter reconciliation
// on a timer and on request over JetStream.
package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/example/acadmate/services/forum/internal/store"
)

// CounterStore is the part of store.ForumStore reconciliation needs.
type CounterStore interface {
	DiscussionIDs(ctx context.Context) ([]string, error)
	RecountCounters(ctx context.Context, discussionID string) (store.CounterFix, error)
}

// Reconciler recounts every discussion's counters on a fixed interval and
// rewrites the ones that drifted.
type Reconciler struct {
	Log      *zap.Logger
	Store    CounterStore
	Interval time.Duration
}

func NewReconciler(log *zap.Logger, st CounterStore, interval time.Duration) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Reconciler{Log: log, Store: st, Interval: interval}
}

func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
				r.Log.Warn("reconcile pass failed", zap.Error(err))
			}
		}
	}
}

// RunOnce recounts all discussions and returns the fixes it applied. A
// failure on one discussion is logged and does not stop the pass.
func (r *Reconciler) RunOnce(ctx context.Context) ([]store.CounterFix, error) {
	ids, err := r.Store.DiscussionIDs(ctx)
	if err != nil {
		return nil, err
	}
	var fixed []store.CounterFix
	for _, id := range ids {
		if ctx.Err() != nil {
			return fixed, ctx.Err()
		}
		fix, err := r.Store.RecountCounters(ctx, id)
		if errors.Is(err, store.ErrDiscussionNotFound) {
			continue
		}
		if err != nil {
			r.Log.Warn("recount failed", zap.String("discussion_id", id), zap.Error(err))
			continue
		}
		if fix.Changed() {
			logFix(r.Log, fix)
			fixed = append(fixed, fix)
		}
	}
	r.Log.Info("reconcile pass done", zap.Int("discussions", len(ids)), zap.Int("fixed", len(fixed)))
	return fixed, nil
}

func logFix(log *zap.Logger, fix store.CounterFix) {
	log.Info("counter drift corrected",
		zap.String("discussion_id", fix.DiscussionID),
		zap.Int("comments_before", fix.CommentsBefore),
		zap.Int("comments_after", fix.CommentsAfter),
		zap.Int("votes_before", fix.VotesBefore),
		zap.Int("votes_after", fix.VotesAfter),
	)
}
