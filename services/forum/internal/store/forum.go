// Package store persists discussions, comments and votes, and keeps the
// denormalized counters on a discussion in step with the records they count.
package store

import (
	"context"
	"errors"
	"time"
)

// Author is a profile snapshot taken when a record is created.
type Author struct {
	UID         string `json:"uid"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email,omitempty"`
	PhotoURL    string `json:"photoURL,omitempty"`
}

type Discussion struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	Author       Author    `json:"author"`
	FileURLs     []string  `json:"fileUrls"`
	VoteCount    int       `json:"voteCount"`
	CommentCount int       `json:"commentCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Comment is a flat comment record. ParentID is nil for top-level comments.
type Comment struct {
	ID           string    `json:"id"`
	DiscussionID string    `json:"discussionId"`
	ParentID     *string   `json:"parentId"`
	Content      string    `json:"content"`
	Author       Author    `json:"author"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type Vote struct {
	ID           string    `json:"id"`
	DiscussionID string    `json:"discussionId"`
	UserID       string    `json:"userId"`
	CreatedAt    time.Time `json:"createdAt"`
}

// VoteKey is the deterministic id of the single vote a user may hold on a discussion.
func VoteKey(discussionID, userID string) string {
	return discussionID + "_" + userID
}

// DiscussionPatch carries the fields to change. nil means unchanged.
type DiscussionPatch struct {
	Title    *string
	Content  *string
	FileURLs *[]string
}

func (p DiscussionPatch) Empty() bool {
	return p.Title == nil && p.Content == nil && p.FileURLs == nil
}

type ListDiscussionsParams struct {
	Limit     int
	Cursor    string
	AuthorUID string
}

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

func (p ListDiscussionsParams) limit() int {
	if p.Limit <= 0 {
		return DefaultListLimit
	}
	if p.Limit > MaxListLimit {
		return MaxListLimit
	}
	return p.Limit
}

// DiscussionDeletion reports what a discussion delete removed besides the discussion itself.
type DiscussionDeletion struct {
	Comments int `json:"comments"`
	Votes    int `json:"votes"`
}

// CounterFix is the outcome of recounting one discussion.
type CounterFix struct {
	DiscussionID   string `json:"discussionId"`
	CommentsBefore int    `json:"commentsBefore"`
	CommentsAfter  int    `json:"commentsAfter"`
	VotesBefore    int    `json:"votesBefore"`
	VotesAfter     int    `json:"votesAfter"`
}

func (f CounterFix) Changed() bool {
	return f.CommentsBefore != f.CommentsAfter || f.VotesBefore != f.VotesAfter
}

// ForumStore is the persistence contract of the forum. Every method that
// writes a record adjusts the owning discussion's counters in the same
// atomic unit.
type ForumStore interface {
	CreateDiscussion(ctx context.Context, d Discussion) (Discussion, error)
	GetDiscussion(ctx context.Context, id string) (Discussion, error)
	ListDiscussions(ctx context.Context, p ListDiscussionsParams) ([]Discussion, string, error)
	UpdateDiscussion(ctx context.Context, id string, patch DiscussionPatch) (Discussion, error)
	DeleteDiscussion(ctx context.Context, id string) (DiscussionDeletion, error)

	CreateComment(ctx context.Context, c Comment) (Comment, error)
	GetComment(ctx context.Context, id string) (Comment, error)
	ListComments(ctx context.Context, discussionID string) ([]Comment, error)
	UpdateComment(ctx context.Context, id, content string) (Comment, error)
	// DeleteCommentTree removes the comment and every reply below it and
	// returns how many records were removed.
	DeleteCommentTree(ctx context.Context, id string) (int, error)

	// ToggleVote flips the caller's vote and returns the new state and count.
	ToggleVote(ctx context.Context, discussionID, userID string) (bool, int, error)
	HasVoted(ctx context.Context, discussionID, userID string) (bool, error)

	RecountCounters(ctx context.Context, discussionID string) (CounterFix, error)
	DiscussionIDs(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
}

// Sentinel errors
var (
	ErrDiscussionNotFound = errors.New("discussion not found")
	ErrCommentNotFound    = errors.New("comment not found")
	ErrParentNotFound     = errors.New("parent comment not found")
	ErrParentMismatch     = errors.New("parent comment belongs to another discussion")
	ErrInvalidCursor      = errors.New("invalid cursor")
)

// NormalizeTimestamps fills a missing createdAt with now and a missing
// updatedAt with createdAt. Both results are UTC.
func NormalizeTimestamps(createdAt, updatedAt, now time.Time) (time.Time, time.Time) {
	if createdAt.IsZero() {
		createdAt = now
	}
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}
	return createdAt.UTC(), updatedAt.UTC()
}

// Normalize applies NormalizeTimestamps to the comment and folds an empty
// parent id into nil.
func (c Comment) Normalize(now time.Time) Comment {
	c.CreatedAt, c.UpdatedAt = NormalizeTimestamps(c.CreatedAt, c.UpdatedAt, now)
	if c.ParentID != nil && *c.ParentID == "" {
		c.ParentID = nil
	}
	return c
}

func (d Discussion) Normalize(now time.Time) Discussion {
	d.CreatedAt, d.UpdatedAt = NormalizeTimestamps(d.CreatedAt, d.UpdatedAt, now)
	if d.FileURLs == nil {
		d.FileURLs = []string{}
	}
	return d
}
