package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/example/acadmate/internal/platform/auth"
	"github.com/example/acadmate/internal/platform/idempotency"
	"github.com/example/acadmate/services/forum/internal/cache"
	"github.com/example/acadmate/services/forum/internal/store"
)

// setupReq builds a request with chi URL params and an optional caller in context.
func setupReq(method, url string, body string, params map[string]string, id auth.Identity) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, url, bytes.NewBufferString(body))
	} else {
		req = httptest.NewRequest(method, url, nil)
	}
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	if id.UID != "" {
		ctx = auth.WithIdentity(ctx, id)
	}
	return req.WithContext(ctx)
}

var (
	alice = auth.Identity{UID: "alice", DisplayName: "Alice"}
	bob   = auth.Identity{UID: "bob", DisplayName: "Bob"}
	admin = auth.Identity{UID: "root", DisplayName: "Root", Role: "admin"}
	anon  = auth.Identity{}
)

func serve(h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v (body %q)", err, rr.Body.String())
	}
	return v
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	return env.Error.Code
}

func newDeps(t *testing.T) (Deps, *store.InMemoryForumStore) {
	t.Helper()
	st := store.NewInMemoryForumStore()
	c, err := cache.NewTTLCache(0, nil, "")
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	idem, err := idempotency.NewStore(idempotency.Options{})
	if err != nil {
		t.Fatalf("idempotency: %v", err)
	}
	return Deps{Store: st, Cache: c, Idempotency: idem}, st
}

func seedDiscussion(t *testing.T, st store.ForumStore, owner auth.Identity) store.Discussion {
	t.Helper()
	d, err := st.CreateDiscussion(context.Background(), store.Discussion{
		Title:   "Exam prep",
		Content: "How is everyone preparing?",
		Author:  authorOf(owner),
	})
	if err != nil {
		t.Fatalf("seed discussion: %v", err)
	}
	return d
}

func seedComment(t *testing.T, st store.ForumStore, discussionID string, parent *store.Comment, owner auth.Identity) store.Comment {
	t.Helper()
	c := store.Comment{DiscussionID: discussionID, Content: "reply", Author: authorOf(owner)}
	if parent != nil {
		pid := parent.ID
		c.ParentID = &pid
	}
	out, err := st.CreateComment(context.Background(), c)
	if err != nil {
		t.Fatalf("seed comment: %v", err)
	}
	return out
}

func TestCreateDiscussion(t *testing.T) {
	d, _ := newDeps(t)
	req := setupReq(http.MethodPost, "/v1/discussions",
		`{"title":"  Linear algebra  ","content":"Eigenvalues are confusing me","fileUrls":["https://files.example.com/a.pdf"]}`,
		nil, alice)

	rr := serve(CreateDiscussion(d), req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	disc := decode[store.Discussion](t, rr)
	if disc.Title != "Linear algebra" {
		t.Fatalf("expected trimmed title, got %q", disc.Title)
	}
	if disc.Author.UID != "alice" || disc.Author.DisplayName != "Alice" {
		t.Fatalf("unexpected author: %+v", disc.Author)
	}
	if disc.VoteCount != 0 || disc.CommentCount != 0 {
		t.Fatalf("expected zero counters, got %+v", disc)
	}
	if len(disc.FileURLs) != 1 {
		t.Fatalf("expected 1 file url, got %v", disc.FileURLs)
	}
}

func TestCreateDiscussion_Unauthorized(t *testing.T) {
	d, _ := newDeps(t)
	req := setupReq(http.MethodPost, "/v1/discussions", `{"title":"abc","content":"long enough content"}`, nil, anon)
	rr := serve(CreateDiscussion(d), req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestCreateDiscussion_Validation(t *testing.T) {
	cases := map[string]string{
		"short title":   `{"title":"ab","content":"long enough content"}`,
		"short content": `{"title":"abc","content":"   short   "}`,
		"bad url":       `{"title":"abc","content":"long enough content","fileUrls":["ftp://x/y"]}`,
		"too many urls": `{"title":"abc","content":"long enough content","fileUrls":["http://a","http://a","http://a","http://a","http://a","http://a","http://a","http://a","http://a","http://a","http://a"]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			d, _ := newDeps(t)
			rr := serve(CreateDiscussion(d), setupReq(http.MethodPost, "/v1/discussions", body, nil, alice))
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
			}
			if code := errorCode(t, rr); code != "VALIDATION_FAILED" {
				t.Fatalf("expected VALIDATION_FAILED, got %s", code)
			}
		})
	}
}

func TestCreateDiscussion_InvalidJSON(t *testing.T) {
	d, _ := newDeps(t)
	rr := serve(CreateDiscussion(d), setupReq(http.MethodPost, "/v1/discussions", `{not json`, nil, alice))
	if rr.Code != http.StatusBadRequest || errorCode(t, rr) != "INVALID_JSON" {
		t.Fatalf("expected 400 INVALID_JSON, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestGetDiscussion_RendersMarkdown(t *testing.T) {
	d, st := newDeps(t)
	disc, err := st.CreateDiscussion(context.Background(), store.Discussion{
		Title: "Markdown", Content: "**bold** statement", Author: authorOf(alice),
	})
	if err != nil {
		t.Fatal(err)
	}
	rr := serve(GetDiscussion(d), setupReq(http.MethodGet, "/v1/discussions/"+disc.ID, "", map[string]string{"id": disc.ID}, anon))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	resp := decode[discussionResponse](t, rr)
	if !strings.Contains(resp.ContentHTML, "<strong>bold</strong>") {
		t.Fatalf("expected rendered markdown, got %q", resp.ContentHTML)
	}
}

func TestGetDiscussion_NotFound(t *testing.T) {
	d, _ := newDeps(t)
	rr := serve(GetDiscussion(d), setupReq(http.MethodGet, "/v1/discussions/nope", "", map[string]string{"id": "nope"}, anon))
	if rr.Code != http.StatusNotFound || errorCode(t, rr) != "DISCUSSION_NOT_FOUND" {
		t.Fatalf("expected 404 DISCUSSION_NOT_FOUND, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestListDiscussions(t *testing.T) {
	d, st := newDeps(t)
	seedDiscussion(t, st, alice)
	seedDiscussion(t, st, bob)
	seedDiscussion(t, st, alice)

	rr := serve(ListDiscussions(d), setupReq(http.MethodGet, "/v1/discussions?limit=2", "", nil, anon))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	page := decode[listDiscussionsResponse](t, rr)
	if len(page.Discussions) != 2 || page.NextCursor == "" {
		t.Fatalf("expected 2 items and a cursor, got %d %q", len(page.Discussions), page.NextCursor)
	}

	rr = serve(ListDiscussions(d), setupReq(http.MethodGet, "/v1/discussions?limit=2&cursor="+page.NextCursor, "", nil, anon))
	rest := decode[listDiscussionsResponse](t, rr)
	if len(rest.Discussions) != 1 || rest.NextCursor != "" {
		t.Fatalf("expected last page of 1, got %d %q", len(rest.Discussions), rest.NextCursor)
	}

	rr = serve(ListDiscussions(d), setupReq(http.MethodGet, "/v1/discussions?author=bob", "", nil, anon))
	byBob := decode[listDiscussionsResponse](t, rr)
	if len(byBob.Discussions) != 1 || byBob.Discussions[0].Author.UID != "bob" {
		t.Fatalf("expected only bob's discussion, got %+v", byBob.Discussions)
	}
}

func TestListDiscussions_BadParams(t *testing.T) {
	d, _ := newDeps(t)
	rr := serve(ListDiscussions(d), setupReq(http.MethodGet, "/v1/discussions?cursor=%21%21", "", nil, anon))
	if rr.Code != http.StatusBadRequest || errorCode(t, rr) != "INVALID_CURSOR" {
		t.Fatalf("expected 400 INVALID_CURSOR, got %d: %s", rr.Code, rr.Body.String())
	}
	rr = serve(ListDiscussions(d), setupReq(http.MethodGet, "/v1/discussions?limit=abc", "", nil, anon))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rr.Code)
	}
}

func TestUpdateDiscussion_Authorization(t *testing.T) {
	d, st := newDeps(t)
	disc := seedDiscussion(t, st, alice)
	params := map[string]string{"id": disc.ID}

	rr := serve(UpdateDiscussion(d), setupReq(http.MethodPut, "/", `{"title":"Hijacked"}`, params, bob))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-author, got %d", rr.Code)
	}

	rr = serve(UpdateDiscussion(d), setupReq(http.MethodPut, "/", `{"title":"Moderated title"}`, params, admin))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d: %s", rr.Code, rr.Body.String())
	}
	updated := decode[store.Discussion](t, rr)
	if updated.Title != "Moderated title" || updated.Content != disc.Content {
		t.Fatalf("unexpected update result: %+v", updated)
	}
}

func TestUpdateDiscussion_ValidatesBeforeExistence(t *testing.T) {
	d, _ := newDeps(t)
	params := map[string]string{"id": "missing"}

	rr := serve(UpdateDiscussion(d), setupReq(http.MethodPut, "/", `{}`, params, alice))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty patch, got %d", rr.Code)
	}
	rr = serve(UpdateDiscussion(d), setupReq(http.MethodPut, "/", `{"title":"Valid title"}`, params, alice))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestDeleteDiscussion_Cascade(t *testing.T) {
	d, st := newDeps(t)
	ctx := context.Background()
	disc := seedDiscussion(t, st, alice)
	root := seedComment(t, st, disc.ID, nil, bob)
	seedComment(t, st, disc.ID, &root, alice)
	if _, _, err := st.ToggleVote(ctx, disc.ID, "bob"); err != nil {
		t.Fatal(err)
	}
	params := map[string]string{"id": disc.ID}

	rr := serve(DeleteDiscussion(d), setupReq(http.MethodDelete, "/", "", params, bob))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-author, got %d", rr.Code)
	}

	rr = serve(DeleteDiscussion(d), setupReq(http.MethodDelete, "/", "", params, alice))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	out := decode[map[string]any](t, rr)
	if out["comments"] != float64(2) || out["votes"] != float64(1) {
		t.Fatalf("unexpected cascade counts: %v", out)
	}
	if _, err := st.GetDiscussion(ctx, disc.ID); !errors.Is(err, store.ErrDiscussionNotFound) {
		t.Fatalf("expected discussion gone, got %v", err)
	}
	if _, err := st.GetComment(ctx, root.ID); !errors.Is(err, store.ErrCommentNotFound) {
		t.Fatalf("expected comments gone, got %v", err)
	}
}

func TestToggleVote_Parity(t *testing.T) {
	d, st := newDeps(t)
	disc := seedDiscussion(t, st, alice)
	params := map[string]string{"id": disc.ID}

	for i, want := range []voteResponse{{Voted: true, VoteCount: 1}, {Voted: false, VoteCount: 0}, {Voted: true, VoteCount: 1}} {
		rr := serve(ToggleVote(d), setupReq(http.MethodPost, "/", "", params, bob))
		if rr.Code != http.StatusOK {
			t.Fatalf("toggle %d: expected 200, got %d", i, rr.Code)
		}
		if got := decode[voteResponse](t, rr); got != want {
			t.Fatalf("toggle %d: expected %+v, got %+v", i, want, got)
		}
	}
}

func TestToggleVote_Unauthenticated(t *testing.T) {
	d, st := newDeps(t)
	disc := seedDiscussion(t, st, alice)

	rr := serve(ToggleVote(d), setupReq(http.MethodPost, "/", "", map[string]string{"id": disc.ID}, anon))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	got, _ := st.GetDiscussion(context.Background(), disc.ID)
	if got.VoteCount != 0 {
		t.Fatalf("expected vote count untouched, got %d", got.VoteCount)
	}
}

func TestToggleVote_IdempotencyKey(t *testing.T) {
	d, st := newDeps(t)
	disc := seedDiscussion(t, st, alice)
	params := map[string]string{"id": disc.ID}

	send := func(key string) *httptest.ResponseRecorder {
		req := setupReq(http.MethodPost, "/", "", params, bob)
		req.Header.Set("Idempotency-Key", key)
		return serve(ToggleVote(d), req)
	}

	first := send("k1")
	if got := decode[voteResponse](t, first); !got.Voted || got.VoteCount != 1 {
		t.Fatalf("first: unexpected %+v", got)
	}
	replay := send("k1")
	if replay.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatal("expected replay header")
	}
	if got := decode[voteResponse](t, replay); !got.Voted || got.VoteCount != 1 {
		t.Fatalf("replay must not toggle, got %+v", got)
	}
	next := send("k2")
	if got := decode[voteResponse](t, next); got.Voted || got.VoteCount != 0 {
		t.Fatalf("new key must toggle, got %+v", got)
	}
}

type flakyVoteStore struct {
	store.ForumStore
	failures int
}

func (s *flakyVoteStore) ToggleVote(ctx context.Context, discussionID, userID string) (bool, int, error) {
	if s.failures > 0 {
		s.failures--
		return false, 0, errors.New("connection reset")
	}
	return s.ForumStore.ToggleVote(ctx, discussionID, userID)
}

func TestToggleVote_RetryAfterFailureIsApplied(t *testing.T) {
	d, st := newDeps(t)
	disc := seedDiscussion(t, st, alice)
	d.Store = &flakyVoteStore{ForumStore: st, failures: 1}
	params := map[string]string{"id": disc.ID}

	send := func() *httptest.ResponseRecorder {
		req := setupReq(http.MethodPost, "/", "", params, bob)
		req.Header.Set("Idempotency-Key", "k1")
		return serve(ToggleVote(d), req)
	}

	if rr := send(); rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 from failing store, got %d", rr.Code)
	}
	retry := send()
	if retry.Code != http.StatusOK {
		t.Fatalf("expected 200 on retry, got %d", retry.Code)
	}
	if retry.Header().Get("Idempotent-Replayed") != "" {
		t.Fatal("retry after a failed toggle must not be treated as a replay")
	}
	if got := decode[voteResponse](t, retry); !got.Voted || got.VoteCount != 1 {
		t.Fatalf("expected vote to be applied, got %+v", got)
	}

	replay := send()
	if replay.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatal("expected replay once the toggle succeeded")
	}
}

func TestToggleVote_NotFound(t *testing.T) {
	d, _ := newDeps(t)
	rr := serve(ToggleVote(d), setupReq(http.MethodPost, "/", "", map[string]string{"id": "ghost"}, bob))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestVoteStatus(t *testing.T) {
	d, st := newDeps(t)
	disc := seedDiscussion(t, st, alice)
	params := map[string]string{"id": disc.ID}

	rr := serve(VoteStatus(d), setupReq(http.MethodGet, "/", "", params, bob))
	if got := decode[map[string]bool](t, rr); got["voted"] {
		t.Fatal("expected not voted")
	}
	serve(ToggleVote(d), setupReq(http.MethodPost, "/", "", params, bob))
	rr = serve(VoteStatus(d), setupReq(http.MethodGet, "/", "", params, bob))
	if got := decode[map[string]bool](t, rr); !got["voted"] {
		t.Fatal("expected voted")
	}
}
