package analytics

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

type fakeJS struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (f *fakeJS) PublishAsync(subj string, data []byte, _ ...nats.PubOpt) (nats.PubAckFuture, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.subjects = append(f.subjects, subj)
	f.payloads = append(f.payloads, data)
	return nil, nil
}

func TestPublish_NilSafe(t *testing.T) {
	var p *Publisher
	p.Publish(SubjectVoteToggled, "vote_toggled", "u1", nil)
	New(nil, nil).Publish(SubjectVoteToggled, "vote_toggled", "u1", nil)
}

func TestPublish_Envelope(t *testing.T) {
	js := &fakeJS{}
	p := New(js, nil)
	p.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	p.Publish(SubjectCommentCreated, "comment_created", "u1", map[string]any{"discussion_id": "d1"})

	if len(js.subjects) != 1 || js.subjects[0] != SubjectCommentCreated {
		t.Fatalf("unexpected subjects: %v", js.subjects)
	}
	var ev Event
	if err := json.Unmarshal(js.payloads[0], &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.EventID == "" || ev.EventName != "comment_created" || ev.UserID != "u1" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.Properties["discussion_id"] != "d1" {
		t.Fatalf("expected discussion_id property, got %v", ev.Properties)
	}
	if !ev.OccurredAt.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected occurred_at: %s", ev.OccurredAt)
	}
}

func TestPublish_ErrorSwallowed(t *testing.T) {
	js := &fakeJS{err: errors.New("no responders")}
	New(js, nil).Publish(SubjectDiscussionDeleted, "discussion_deleted", "", nil)
	if len(js.subjects) != 0 {
		t.Fatal("expected nothing recorded")
	}
}
