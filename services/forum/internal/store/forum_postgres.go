package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresForumStore persists the forum in Postgres. Record writes and
// their counter updates share one transaction, and writers on the same
// discussion serialize on its row lock.
type PostgresForumStore struct {
	pool *pgxpool.Pool
	psql sq.StatementBuilderType
	now  func() time.Time
}

func NewPostgresForumStore(pool *pgxpool.Pool) *PostgresForumStore {
	return &PostgresForumStore{
		pool: pool,
		psql: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		now:  time.Now,
	}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const discussionColumns = `id, title, content, author_uid, author_display_name, author_email,
	author_photo_url, file_urls, vote_count, comment_count, created_at, updated_at`

const commentColumns = `id, discussion_id, parent_id, content, author_uid, author_display_name,
	author_photo_url, created_at, updated_at`

func (s *PostgresForumStore) scanDiscussion(row pgx.Row) (Discussion, error) {
	var d Discussion
	err := row.Scan(&d.ID, &d.Title, &d.Content, &d.Author.UID, &d.Author.DisplayName, &d.Author.Email,
		&d.Author.PhotoURL, &d.FileURLs, &d.VoteCount, &d.CommentCount, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return Discussion{}, err
	}
	return d.Normalize(s.now()), nil
}

func (s *PostgresForumStore) scanComment(row pgx.Row) (Comment, error) {
	var (
		c       Comment
		updated *time.Time
	)
	err := row.Scan(&c.ID, &c.DiscussionID, &c.ParentID, &c.Content, &c.Author.UID, &c.Author.DisplayName,
		&c.Author.PhotoURL, &c.CreatedAt, &updated)
	if err != nil {
		return Comment{}, err
	}
	if updated != nil {
		c.UpdatedAt = *updated
	}
	return c.Normalize(s.now()), nil
}

// lockDiscussion takes the row lock that serializes writers on one discussion.
func lockDiscussion(ctx context.Context, q querier, id string) error {
	var got string
	err := q.QueryRow(ctx, `SELECT id FROM discussions WHERE id = $1 FOR UPDATE`, id).Scan(&got)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrDiscussionNotFound
	}
	return err
}

func (s *PostgresForumStore) CreateDiscussion(ctx context.Context, d Discussion) (Discussion, error) {
	if d.FileURLs == nil {
		d.FileURLs = []string{}
	}
	q := `INSERT INTO discussions (id, title, content, author_uid, author_display_name, author_email,
	          author_photo_url, file_urls)
	      VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	      RETURNING ` + discussionColumns
	out, err := s.scanDiscussion(s.pool.QueryRow(ctx, q, uuid.NewString(), d.Title, d.Content,
		d.Author.UID, d.Author.DisplayName, d.Author.Email, d.Author.PhotoURL, d.FileURLs))
	if err != nil {
		return Discussion{}, fmt.Errorf("insert discussion: %w", err)
	}
	return out, nil
}

func (s *PostgresForumStore) GetDiscussion(ctx context.Context, id string) (Discussion, error) {
	q := `SELECT ` + discussionColumns + ` FROM discussions WHERE id = $1`
	d, err := s.scanDiscussion(s.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Discussion{}, ErrDiscussionNotFound
	}
	if err != nil {
		return Discussion{}, fmt.Errorf("get discussion: %w", err)
	}
	return d, nil
}

func (s *PostgresForumStore) ListDiscussions(ctx context.Context, p ListDiscussionsParams) ([]Discussion, string, error) {
	limit := p.limit()
	b := s.psql.Select(discussionColumns).
		From("discussions").
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit + 1))
	if p.AuthorUID != "" {
		b = b.Where(sq.Eq{"author_uid": p.AuthorUID})
	}
	if p.Cursor != "" {
		t, id, err := decodeCursor(p.Cursor)
		if err != nil {
			return nil, "", err
		}
		b = b.Where(sq.Expr("(created_at, id) < (?, ?)", t, id))
	}
	q, args, err := b.ToSql()
	if err != nil {
		return nil, "", fmt.Errorf("build list query: %w", err)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, "", fmt.Errorf("list discussions: %w", err)
	}
	defer rows.Close()

	out := []Discussion{}
	for rows.Next() {
		d, err := s.scanDiscussion(rows)
		if err != nil {
			return nil, "", fmt.Errorf("scan discussion: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("list discussions: %w", err)
	}

	var next string
	if len(out) > limit {
		out = out[:limit]
		last := out[limit-1]
		next = encodeCursor(last.CreatedAt, last.ID)
	}
	return out, next, nil
}

func (s *PostgresForumStore) UpdateDiscussion(ctx context.Context, id string, patch DiscussionPatch) (Discussion, error) {
	b := s.psql.Update("discussions").
		Set("updated_at", sq.Expr("now()")).
		Where(sq.Eq{"id": id}).
		Suffix("RETURNING " + discussionColumns)
	if patch.Title != nil {
		b = b.Set("title", *patch.Title)
	}
	if patch.Content != nil {
		b = b.Set("content", *patch.Content)
	}
	if patch.FileURLs != nil {
		urls := *patch.FileURLs
		if urls == nil {
			urls = []string{}
		}
		b = b.Set("file_urls", urls)
	}
	q, args, err := b.ToSql()
	if err != nil {
		return Discussion{}, fmt.Errorf("build update query: %w", err)
	}
	d, err := s.scanDiscussion(s.pool.QueryRow(ctx, q, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return Discussion{}, ErrDiscussionNotFound
	}
	if err != nil {
		return Discussion{}, fmt.Errorf("update discussion: %w", err)
	}
	return d, nil
}

func (s *PostgresForumStore) DeleteDiscussion(ctx context.Context, id string) (DiscussionDeletion, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return DiscussionDeletion{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockDiscussion(ctx, tx, id); err != nil {
		return DiscussionDeletion{}, err
	}

	var out DiscussionDeletion
	tag, err := tx.Exec(ctx, `DELETE FROM comments WHERE discussion_id = $1`, id)
	if err != nil {
		return DiscussionDeletion{}, fmt.Errorf("delete comments: %w", err)
	}
	out.Comments = int(tag.RowsAffected())

	tag, err = tx.Exec(ctx, `DELETE FROM votes WHERE discussion_id = $1`, id)
	if err != nil {
		return DiscussionDeletion{}, fmt.Errorf("delete votes: %w", err)
	}
	out.Votes = int(tag.RowsAffected())

	if _, err := tx.Exec(ctx, `DELETE FROM discussions WHERE id = $1`, id); err != nil {
		return DiscussionDeletion{}, fmt.Errorf("delete discussion: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return DiscussionDeletion{}, err
	}
	return out, nil
}

func (s *PostgresForumStore) CreateComment(ctx context.Context, c Comment) (Comment, error) {
	if c.ParentID != nil && *c.ParentID == "" {
		c.ParentID = nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Comment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockDiscussion(ctx, tx, c.DiscussionID); err != nil {
		return Comment{}, err
	}
	if c.ParentID != nil {
		var parentDiscussion string
		err := tx.QueryRow(ctx, `SELECT discussion_id FROM comments WHERE id = $1`, *c.ParentID).Scan(&parentDiscussion)
		if errors.Is(err, pgx.ErrNoRows) {
			return Comment{}, ErrParentNotFound
		}
		if err != nil {
			return Comment{}, fmt.Errorf("get parent comment: %w", err)
		}
		if parentDiscussion != c.DiscussionID {
			return Comment{}, ErrParentMismatch
		}
	}

	q := `INSERT INTO comments (id, discussion_id, parent_id, content, author_uid, author_display_name, author_photo_url)
	      VALUES ($1, $2, $3, $4, $5, $6, $7)
	      RETURNING ` + commentColumns
	out, err := s.scanComment(tx.QueryRow(ctx, q, uuid.NewString(), c.DiscussionID, c.ParentID, c.Content,
		c.Author.UID, c.Author.DisplayName, c.Author.PhotoURL))
	if err != nil {
		return Comment{}, fmt.Errorf("insert comment: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE discussions SET comment_count = comment_count + 1 WHERE id = $1`, c.DiscussionID); err != nil {
		return Comment{}, fmt.Errorf("increment comment_count: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Comment{}, err
	}
	return out, nil
}

func (s *PostgresForumStore) GetComment(ctx context.Context, id string) (Comment, error) {
	q := `SELECT ` + commentColumns + ` FROM comments WHERE id = $1`
	c, err := s.scanComment(s.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Comment{}, ErrCommentNotFound
	}
	if err != nil {
		return Comment{}, fmt.Errorf("get comment: %w", err)
	}
	return c, nil
}

// ListComments filters on discussion_id only; ordering is left to the caller.
func (s *PostgresForumStore) ListComments(ctx context.Context, discussionID string) ([]Comment, error) {
	q := `SELECT ` + commentColumns + ` FROM comments WHERE discussion_id = $1`
	rows, err := s.pool.Query(ctx, q, discussionID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	out := []Comment{}
	for rows.Next() {
		c, err := s.scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return out, nil
}

func (s *PostgresForumStore) UpdateComment(ctx context.Context, id, content string) (Comment, error) {
	q := `UPDATE comments SET content = $1, updated_at = now() WHERE id = $2 RETURNING ` + commentColumns
	c, err := s.scanComment(s.pool.QueryRow(ctx, q, content, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Comment{}, ErrCommentNotFound
	}
	if err != nil {
		return Comment{}, fmt.Errorf("update comment: %w", err)
	}
	return c, nil
}

func (s *PostgresForumStore) DeleteCommentTree(ctx context.Context, id string) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var discussionID string
	err = tx.QueryRow(ctx, `SELECT discussion_id FROM comments WHERE id = $1`, id).Scan(&discussionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrCommentNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get comment: %w", err)
	}
	// A missing discussion leaves nothing to decrement but the subtree still goes.
	if err := lockDiscussion(ctx, tx, discussionID); err != nil && !errors.Is(err, ErrDiscussionNotFound) {
		return 0, err
	}

	ids, err := collectSubtree(id, func(parentIDs []string) ([]string, error) {
		rows, err := tx.Query(ctx,
			`SELECT id FROM comments WHERE discussion_id = $1 AND parent_id = ANY($2)`,
			discussionID, parentIDs)
		if err != nil {
			return nil, err
		}
		return pgx.CollectRows(rows, pgx.RowTo[string])
	})
	if err != nil {
		return 0, fmt.Errorf("collect replies: %w", err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM comments WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("delete comments: %w", err)
	}
	removed := int(tag.RowsAffected())

	if _, err := tx.Exec(ctx,
		`UPDATE discussions SET comment_count = GREATEST(comment_count - $1, 0) WHERE id = $2`,
		removed, discussionID); err != nil {
		return 0, fmt.Errorf("decrement comment_count: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return removed, nil
}

func (s *PostgresForumStore) ToggleVote(ctx context.Context, discussionID, userID string) (bool, int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockDiscussion(ctx, tx, discussionID); err != nil {
		return false, 0, err
	}

	key := VoteKey(discussionID, userID)
	tag, err := tx.Exec(ctx, `DELETE FROM votes WHERE id = $1`, key)
	if err != nil {
		return false, 0, fmt.Errorf("delete vote: %w", err)
	}
	voted, delta := false, -1
	if tag.RowsAffected() == 0 {
		if _, err := tx.Exec(ctx,
			`INSERT INTO votes (id, discussion_id, user_id) VALUES ($1, $2, $3)`,
			key, discussionID, userID); err != nil {
			return false, 0, fmt.Errorf("insert vote: %w", err)
		}
		voted, delta = true, 1
	}

	var count int
	err = tx.QueryRow(ctx,
		`UPDATE discussions SET vote_count = GREATEST(vote_count + $1, 0) WHERE id = $2 RETURNING vote_count`,
		delta, discussionID).Scan(&count)
	if err != nil {
		return false, 0, fmt.Errorf("adjust vote_count: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, 0, err
	}
	return voted, count, nil
}

func (s *PostgresForumStore) HasVoted(ctx context.Context, discussionID, userID string) (bool, error) {
	var discussionExists, voted bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM discussions WHERE id = $1),
		        EXISTS(SELECT 1 FROM votes WHERE id = $2)`,
		discussionID, VoteKey(discussionID, userID)).Scan(&discussionExists, &voted)
	if err != nil {
		return false, fmt.Errorf("vote status: %w", err)
	}
	if !discussionExists {
		return false, ErrDiscussionNotFound
	}
	return voted, nil
}

func (s *PostgresForumStore) RecountCounters(ctx context.Context, discussionID string) (CounterFix, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return CounterFix{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	fix := CounterFix{DiscussionID: discussionID}
	err = tx.QueryRow(ctx,
		`SELECT comment_count, vote_count FROM discussions WHERE id = $1 FOR UPDATE`,
		discussionID).Scan(&fix.CommentsBefore, &fix.VotesBefore)
	if errors.Is(err, pgx.ErrNoRows) {
		return CounterFix{}, ErrDiscussionNotFound
	}
	if err != nil {
		return CounterFix{}, fmt.Errorf("read counters: %w", err)
	}

	err = tx.QueryRow(ctx,
		`SELECT (SELECT count(*) FROM comments WHERE discussion_id = $1),
		        (SELECT count(*) FROM votes WHERE discussion_id = $1)`,
		discussionID).Scan(&fix.CommentsAfter, &fix.VotesAfter)
	if err != nil {
		return CounterFix{}, fmt.Errorf("count records: %w", err)
	}

	if fix.Changed() {
		if _, err := tx.Exec(ctx,
			`UPDATE discussions SET comment_count = $1, vote_count = $2 WHERE id = $3`,
			fix.CommentsAfter, fix.VotesAfter, discussionID); err != nil {
			return CounterFix{}, fmt.Errorf("write counters: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return CounterFix{}, err
	}
	return fix, nil
}

func (s *PostgresForumStore) DiscussionIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM discussions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list discussion ids: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *PostgresForumStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
