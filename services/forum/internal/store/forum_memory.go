package store

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryForumStore is a development and test implementation. One mutex
// section covers each record write together with its counter update.
type InMemoryForumStore struct {
	mu          sync.RWMutex
	discussions map[string]Discussion
	comments    map[string]Comment
	votes       map[string]Vote

	now  func() time.Time
	last time.Time
}

func NewInMemoryForumStore() *InMemoryForumStore {
	return &InMemoryForumStore{
		discussions: make(map[string]Discussion),
		comments:    make(map[string]Comment),
		votes:       make(map[string]Vote),
		now:         time.Now,
	}
}

// tick returns a strictly increasing microsecond timestamp. Caller holds mu.
func (s *InMemoryForumStore) tick() time.Time {
	t := s.now().UTC().Truncate(time.Microsecond)
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	s.last = t
	return t
}

func cloneDiscussion(d Discussion) Discussion {
	d.FileURLs = slices.Clone(d.FileURLs)
	if d.FileURLs == nil {
		d.FileURLs = []string{}
	}
	return d
}

func cloneComment(c Comment) Comment {
	if c.ParentID != nil {
		pid := *c.ParentID
		c.ParentID = &pid
	}
	return c
}

func (s *InMemoryForumStore) CreateDiscussion(_ context.Context, d Discussion) (Discussion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d.ID = uuid.New().String()
	d.VoteCount = 0
	d.CommentCount = 0
	d.CreatedAt = s.tick()
	d.UpdatedAt = d.CreatedAt
	d = cloneDiscussion(d)
	s.discussions[d.ID] = d
	return cloneDiscussion(d), nil
}

func (s *InMemoryForumStore) GetDiscussion(_ context.Context, id string) (Discussion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.discussions[id]
	if !ok {
		return Discussion{}, ErrDiscussionNotFound
	}
	return cloneDiscussion(d), nil
}

func (s *InMemoryForumStore) ListDiscussions(_ context.Context, p ListDiscussionsParams) ([]Discussion, string, error) {
	var (
		cursorTime time.Time
		cursorID   string
	)
	if p.Cursor != "" {
		var err error
		if cursorTime, cursorID, err = decodeCursor(p.Cursor); err != nil {
			return nil, "", err
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []Discussion
	for _, d := range s.discussions {
		if p.AuthorUID != "" && d.Author.UID != p.AuthorUID {
			continue
		}
		if cursorID != "" && !beforeCursor(d, cursorTime, cursorID) {
			continue
		}
		all = append(all, d)
	}
	sort.Slice(all, func(i, j int) bool { return newerFirst(all[i], all[j]) })

	limit := p.limit()
	var next string
	if len(all) > limit {
		all = all[:limit]
		last := all[limit-1]
		next = encodeCursor(last.CreatedAt, last.ID)
	}
	out := make([]Discussion, len(all))
	for i, d := range all {
		out[i] = cloneDiscussion(d)
	}
	return out, next, nil
}

func (s *InMemoryForumStore) UpdateDiscussion(_ context.Context, id string, patch DiscussionPatch) (Discussion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.discussions[id]
	if !ok {
		return Discussion{}, ErrDiscussionNotFound
	}
	if patch.Title != nil {
		d.Title = *patch.Title
	}
	if patch.Content != nil {
		d.Content = *patch.Content
	}
	if patch.FileURLs != nil {
		d.FileURLs = slices.Clone(*patch.FileURLs)
	}
	d.UpdatedAt = s.tick()
	d = cloneDiscussion(d)
	s.discussions[id] = d
	return cloneDiscussion(d), nil
}

func (s *InMemoryForumStore) DeleteDiscussion(_ context.Context, id string) (DiscussionDeletion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.discussions[id]; !ok {
		return DiscussionDeletion{}, ErrDiscussionNotFound
	}
	var out DiscussionDeletion
	for cid, c := range s.comments {
		if c.DiscussionID == id {
			delete(s.comments, cid)
			out.Comments++
		}
	}
	for vid, v := range s.votes {
		if v.DiscussionID == id {
			delete(s.votes, vid)
			out.Votes++
		}
	}
	delete(s.discussions, id)
	return out, nil
}

func (s *InMemoryForumStore) CreateComment(_ context.Context, c Comment) (Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.discussions[c.DiscussionID]
	if !ok {
		return Comment{}, ErrDiscussionNotFound
	}
	if c.ParentID != nil && *c.ParentID == "" {
		c.ParentID = nil
	}
	if c.ParentID != nil {
		parent, ok := s.comments[*c.ParentID]
		if !ok {
			return Comment{}, ErrParentNotFound
		}
		if parent.DiscussionID != c.DiscussionID {
			return Comment{}, ErrParentMismatch
		}
	}

	c = cloneComment(c)
	c.ID = uuid.New().String()
	c.CreatedAt = s.tick()
	c.UpdatedAt = c.CreatedAt
	s.comments[c.ID] = c

	d.CommentCount++
	s.discussions[d.ID] = d
	return cloneComment(c), nil
}

func (s *InMemoryForumStore) GetComment(_ context.Context, id string) (Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.comments[id]
	if !ok {
		return Comment{}, ErrCommentNotFound
	}
	return cloneComment(c), nil
}

// ListComments returns the discussion's comments in no particular order.
func (s *InMemoryForumStore) ListComments(_ context.Context, discussionID string) ([]Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []Comment{}
	for _, c := range s.comments {
		if c.DiscussionID == discussionID {
			out = append(out, cloneComment(c))
		}
	}
	return out, nil
}

func (s *InMemoryForumStore) UpdateComment(_ context.Context, id, content string) (Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.comments[id]
	if !ok {
		return Comment{}, ErrCommentNotFound
	}
	c.Content = content
	c.UpdatedAt = s.tick()
	s.comments[id] = c
	return cloneComment(c), nil
}

func (s *InMemoryForumStore) DeleteCommentTree(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	root, ok := s.comments[id]
	if !ok {
		return 0, ErrCommentNotFound
	}

	ids, err := collectSubtree(id, func(parentIDs []string) ([]string, error) {
		parents := make(map[string]struct{}, len(parentIDs))
		for _, p := range parentIDs {
			parents[p] = struct{}{}
		}
		var kids []string
		for _, c := range s.comments {
			if c.DiscussionID != root.DiscussionID || c.ParentID == nil {
				continue
			}
			if _, ok := parents[*c.ParentID]; ok {
				kids = append(kids, c.ID)
			}
		}
		return kids, nil
	})
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, cid := range ids {
		if _, ok := s.comments[cid]; ok {
			delete(s.comments, cid)
			removed++
		}
	}
	if d, ok := s.discussions[root.DiscussionID]; ok {
		d.CommentCount = max(d.CommentCount-removed, 0)
		s.discussions[d.ID] = d
	}
	return removed, nil
}

func (s *InMemoryForumStore) ToggleVote(_ context.Context, discussionID, userID string) (bool, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.discussions[discussionID]
	if !ok {
		return false, 0, ErrDiscussionNotFound
	}

	key := VoteKey(discussionID, userID)
	voted := false
	if _, exists := s.votes[key]; exists {
		delete(s.votes, key)
		d.VoteCount = max(d.VoteCount-1, 0)
	} else {
		s.votes[key] = Vote{ID: key, DiscussionID: discussionID, UserID: userID, CreatedAt: s.tick()}
		d.VoteCount++
		voted = true
	}
	s.discussions[discussionID] = d
	return voted, d.VoteCount, nil
}

func (s *InMemoryForumStore) HasVoted(_ context.Context, discussionID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.discussions[discussionID]; !ok {
		return false, ErrDiscussionNotFound
	}
	_, ok := s.votes[VoteKey(discussionID, userID)]
	return ok, nil
}

func (s *InMemoryForumStore) RecountCounters(_ context.Context, discussionID string) (CounterFix, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.discussions[discussionID]
	if !ok {
		return CounterFix{}, ErrDiscussionNotFound
	}
	fix := CounterFix{DiscussionID: discussionID, CommentsBefore: d.CommentCount, VotesBefore: d.VoteCount}
	for _, c := range s.comments {
		if c.DiscussionID == discussionID {
			fix.CommentsAfter++
		}
	}
	for _, v := range s.votes {
		if v.DiscussionID == discussionID {
			fix.VotesAfter++
		}
	}
	if fix.Changed() {
		d.CommentCount = fix.CommentsAfter
		d.VoteCount = fix.VotesAfter
		s.discussions[discussionID] = d
	}
	return fix, nil
}

func (s *InMemoryForumStore) DiscussionIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.discussions))
	for id := range s.discussions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *InMemoryForumStore) Ping(context.Context) error { return nil }
