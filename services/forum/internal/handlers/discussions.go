package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/acadmate/internal/platform/analytics"
	"github.com/example/acadmate/internal/platform/api"
	"github.com/example/acadmate/internal/platform/auth"
	"github.com/example/acadmate/internal/platform/markdown"
	"github.com/example/acadmate/services/forum/internal/store"
)

type createDiscussionRequest struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	FileURLs []string `json:"fileUrls"`
}

type updateDiscussionRequest struct {
	Title    *string   `json:"title"`
	Content  *string   `json:"content"`
	FileURLs *[]string `json:"fileUrls"`
}

type discussionResponse struct {
	store.Discussion
	ContentHTML string `json:"contentHtml"`
}

type listDiscussionsResponse struct {
	Discussions []store.Discussion `json:"discussions"`
	NextCursor  string             `json:"nextCursor,omitempty"`
}

type voteResponse struct {
	Voted     bool `json:"voted"`
	VoteCount int  `json:"voteCount"`
}

func authorOf(id auth.Identity) store.Author {
	name := strings.TrimSpace(id.DisplayName)
	if name == "" {
		name = "Anonymous"
	}
	return store.Author{UID: id.UID, DisplayName: name, Email: id.Email, PhotoURL: id.PhotoURL}
}

// ListDiscussions returns discussions newest first.
// Query: limit, cursor, author.
func ListDiscussions(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		p := store.ListDiscussionsParams{
			Cursor:    q.Get("cursor"),
			AuthorUID: strings.TrimSpace(q.Get("author")),
		}
		if raw := q.Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				api.ValidationFailed(w, requestID(r), map[string]string{"limit": "must be a positive integer"})
				return
			}
			p.Limit = n
		}

		items, next, err := d.Store.ListDiscussions(r.Context(), p)
		if err != nil {
			d.writeStoreError(w, r, err, "list discussions")
			return
		}
		if items == nil {
			items = []store.Discussion{}
		}
		api.WriteJSON(w, http.StatusOK, listDiscussionsResponse{Discussions: items, NextCursor: next})
	}
}

func CreateDiscussion(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerOr401(w, r)
		if !ok {
			return
		}
		var req createDiscussionRequest
		if err := api.DecodeJSON(w, r, &req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "invalid JSON body", requestID(r), nil)
			return
		}

		fe := fieldErrors{}
		title := fe.checkLength("title", req.Title, titleMin, titleMax)
		content := fe.checkLength("content", req.Content, contentMin, contentMax)
		files := fe.checkFileURLs(req.FileURLs)
		if len(fe) > 0 {
			api.ValidationFailed(w, requestID(r), fe)
			return
		}

		disc, err := d.Store.CreateDiscussion(r.Context(), store.Discussion{
			Title:    title,
			Content:  content,
			Author:   authorOf(caller),
			FileURLs: files,
		})
		if err != nil {
			d.writeStoreError(w, r, err, "create discussion")
			return
		}
		d.Analytics.Publish(analytics.SubjectDiscussionCreated, "discussion_created", caller.UID, map[string]any{
			"discussion_id": disc.ID,
			"file_count":    len(disc.FileURLs),
		})
		api.WriteJSON(w, http.StatusCreated, disc)
	}
}

func GetDiscussion(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		disc, err := d.Store.GetDiscussion(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			d.writeStoreError(w, r, err, "get discussion")
			return
		}
		api.WriteJSON(w, http.StatusOK, discussionResponse{Discussion: disc, ContentHTML: markdown.Render(disc.Content)})
	}
}

// UpdateDiscussion patches title, content or fileUrls. Author or admin only.
func UpdateDiscussion(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerOr401(w, r)
		if !ok {
			return
		}
		var req updateDiscussionRequest
		if err := api.DecodeJSON(w, r, &req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "invalid JSON body", requestID(r), nil)
			return
		}

		fe := fieldErrors{}
		var patch store.DiscussionPatch
		if req.Title != nil {
			t := fe.checkLength("title", *req.Title, titleMin, titleMax)
			patch.Title = &t
		}
		if req.Content != nil {
			c := fe.checkLength("content", *req.Content, contentMin, contentMax)
			patch.Content = &c
		}
		if req.FileURLs != nil {
			f := fe.checkFileURLs(*req.FileURLs)
			patch.FileURLs = &f
		}
		if patch.Empty() {
			fe["body"] = "at least one of title, content or fileUrls is required"
		}
		if len(fe) > 0 {
			api.ValidationFailed(w, requestID(r), fe)
			return
		}

		id := chi.URLParam(r, "id")
		existing, err := d.Store.GetDiscussion(r.Context(), id)
		if err != nil {
			d.writeStoreError(w, r, err, "get discussion")
			return
		}
		if !caller.CanModify(existing.Author.UID) {
			api.Forbidden(w, "FORBIDDEN", "only the author or an admin can edit this discussion", requestID(r))
			return
		}

		updated, err := d.Store.UpdateDiscussion(r.Context(), id, patch)
		if err != nil {
			d.writeStoreError(w, r, err, "update discussion")
			return
		}
		api.WriteJSON(w, http.StatusOK, updated)
	}
}

// DeleteDiscussion removes the discussion with all its comments and votes.
func DeleteDiscussion(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerOr401(w, r)
		if !ok {
			return
		}
		id := chi.URLParam(r, "id")
		existing, err := d.Store.GetDiscussion(r.Context(), id)
		if err != nil {
			d.writeStoreError(w, r, err, "get discussion")
			return
		}
		if !caller.CanModify(existing.Author.UID) {
			api.Forbidden(w, "FORBIDDEN", "only the author or an admin can delete this discussion", requestID(r))
			return
		}

		removed, err := d.Store.DeleteDiscussion(r.Context(), id)
		if err != nil {
			d.writeStoreError(w, r, err, "delete discussion")
			return
		}
		d.invalidateThread(r.Context(), id)
		d.Analytics.Publish(analytics.SubjectDiscussionDeleted, "discussion_deleted", caller.UID, map[string]any{
			"discussion_id":    id,
			"comments_removed": removed.Comments,
			"votes_removed":    removed.Votes,
		})
		api.WriteJSON(w, http.StatusOK, map[string]any{
			"deleted":  true,
			"comments": removed.Comments,
			"votes":    removed.Votes,
		})
	}
}

// ToggleVote flips the caller's vote. A repeated Idempotency-Key replays
// the current state instead of toggling again.
func ToggleVote(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerOr401(w, r)
		if !ok {
			return
		}
		id := chi.URLParam(r, "id")

		var idemKey string
		if key := strings.TrimSpace(r.Header.Get("Idempotency-Key")); key != "" && d.Idempotency != nil {
			idemKey = "vote:" + id + ":" + caller.UID + ":" + key
			dup, err := d.Idempotency.Check(r.Context(), idemKey)
			if err != nil {
				d.logger().Error("idempotency check failed", zap.String("request_id", requestID(r)), zap.Error(err))
				api.Internal(w, requestID(r))
				return
			}
			if dup {
				d.replayVote(w, r, id, caller.UID)
				return
			}
		}

		voted, count, err := d.Store.ToggleVote(r.Context(), id, caller.UID)
		if err != nil {
			// Nothing was toggled, so a retry with the same key must run.
			if idemKey != "" {
				if rerr := d.Idempotency.Release(context.WithoutCancel(r.Context()), idemKey); rerr != nil {
					d.logger().Warn("idempotency release failed", zap.String("request_id", requestID(r)), zap.Error(rerr))
				}
			}
			d.writeStoreError(w, r, err, "toggle vote")
			return
		}
		d.Analytics.Publish(analytics.SubjectVoteToggled, "vote_toggled", caller.UID, map[string]any{
			"discussion_id": id,
			"voted":         voted,
			"vote_count":    count,
		})
		api.WriteJSON(w, http.StatusOK, voteResponse{Voted: voted, VoteCount: count})
	}
}

func (d Deps) replayVote(w http.ResponseWriter, r *http.Request, discussionID, uid string) {
	voted, err := d.Store.HasVoted(r.Context(), discussionID, uid)
	if err != nil {
		d.writeStoreError(w, r, err, "vote status")
		return
	}
	disc, err := d.Store.GetDiscussion(r.Context(), discussionID)
	if err != nil {
		d.writeStoreError(w, r, err, "get discussion")
		return
	}
	w.Header().Set("Idempotent-Replayed", "true")
	api.WriteJSON(w, http.StatusOK, voteResponse{Voted: voted, VoteCount: disc.VoteCount})
}

func VoteStatus(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerOr401(w, r)
		if !ok {
			return
		}
		voted, err := d.Store.HasVoted(r.Context(), chi.URLParam(r, "id"), caller.UID)
		if err != nil {
			d.writeStoreError(w, r, err, "vote status")
			return
		}
		api.WriteJSON(w, http.StatusOK, map[string]bool{"voted": voted})
	}
}
