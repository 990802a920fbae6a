package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/acadmate/services/forum/internal/store"
)

const (
	// Stream holds forum.* work requests.
	Stream           = "FORUM"
	SubjectReconcile = "forum.reconcile"
	consumerDurable  = "forum_reconcile"
)

// ReconcileRequest asks for one discussion's counters to be recounted.
type ReconcileRequest struct {
	DiscussionID string `json:"discussion_id"`
}

// JSPublisher is the slice of nats.JetStreamContext PublishReconcile needs.
type JSPublisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// PublishReconcile queues a recount of discussionID.
func PublishReconcile(js JSPublisher, discussionID string) error {
	discussionID = strings.TrimSpace(discussionID)
	if discussionID == "" {
		return errors.New("discussion id is required")
	}
	data, err := json.Marshal(ReconcileRequest{DiscussionID: discussionID})
	if err != nil {
		return err
	}
	if _, err := js.Publish(SubjectReconcile, data); err != nil {
		return fmt.Errorf("publish %s: %w", SubjectReconcile, err)
	}
	return nil
}

type disposition int

const (
	dispAck disposition = iota
	dispNak
	dispTerm
)

func (d disposition) String() string {
	switch d {
	case dispAck:
		return "ack"
	case dispNak:
		return "nak"
	default:
		return "term"
	}
}

type reconcileConsumer struct {
	store CounterStore
	log   *zap.Logger
	batch int
	wait  time.Duration
}

// process handles one message body. Malformed payloads are terminated so
// they are not redelivered.
func (c *reconcileConsumer) process(ctx context.Context, data []byte) disposition {
	var req ReconcileRequest
	if err := json.Unmarshal(data, &req); err != nil || strings.TrimSpace(req.DiscussionID) == "" {
		c.log.Warn("reconcile: invalid request", zap.ByteString("payload", data), zap.Error(err))
		return dispTerm
	}
	fix, err := c.store.RecountCounters(ctx, req.DiscussionID)
	switch {
	case errors.Is(err, store.ErrDiscussionNotFound):
		return dispAck
	case err != nil:
		c.log.Warn("reconcile: recount failed", zap.String("discussion_id", req.DiscussionID), zap.Error(err))
		return dispNak
	}
	if fix.Changed() {
		logFix(c.log, fix)
	}
	return dispAck
}

func (c *reconcileConsumer) settle(m *nats.Msg, d disposition) {
	var err error
	switch d {
	case dispAck:
		err = m.Ack()
	case dispNak:
		err = m.Nak()
	default:
		err = m.Term()
	}
	if err != nil {
		c.log.Warn("reconcile: settle failed", zap.String("disposition", d.String()), zap.Error(err))
	}
}

func (c *reconcileConsumer) loop(ctx context.Context, sub *nats.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := sub.Fetch(c.batch, nats.MaxWait(c.wait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			c.log.Warn("reconcile: fetch failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		for _, m := range msgs {
			c.settle(m, c.process(ctx, m.Data))
		}
	}
}

// StartReconcileConsumer binds a durable pull consumer on forum.reconcile
// and processes requests until ctx is done.
func StartReconcileConsumer(ctx context.Context, js nats.JetStreamContext, st CounterStore, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	sub, err := js.PullSubscribe(SubjectReconcile, consumerDurable)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", SubjectReconcile, err)
	}
	c := &reconcileConsumer{store: st, log: log, batch: 20, wait: 2 * time.Second}
	go func() {
		defer func() { _ = sub.Unsubscribe() }()
		c.loop(ctx, sub)
	}()
	return nil
}
