package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/acadmate/internal/platform/analytics"
	"github.com/example/acadmate/internal/platform/api"
	"github.com/example/acadmate/internal/platform/markdown"
	"github.com/example/acadmate/services/forum/internal/cache"
	"github.com/example/acadmate/services/forum/internal/store"
	"github.com/example/acadmate/services/forum/internal/thread"
)

const commentsUnavailable = "comments are temporarily unavailable"

type createCommentRequest struct {
	DiscussionID string  `json:"discussionId"`
	Content      string  `json:"content"`
	ParentID     *string `json:"parentId"`
}

type updateCommentRequest struct {
	Content string `json:"content"`
}

type threadResponse struct {
	Comments   []*thread.Node `json:"comments"`
	TotalCount int            `json:"totalCount"`
	Warning    string         `json:"warning,omitempty"`
}

// ListComments returns the discussion's comments as a reply tree. A store
// failure yields an empty tree with a warning rather than an error.
func ListComments(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		discussionID := chi.URLParam(r, "discussionId")
		key := cache.ThreadKey(discussionID)

		// gen is read before the store so a write landing in between keeps
		// this response out of the cache.
		var gen uint64
		cacheable := false
		if d.Cache != nil {
			var cached threadResponse
			hit, err := d.Cache.Get(r.Context(), key, &cached)
			if err != nil {
				d.logger().Warn("thread cache read failed", zap.String("key", key), zap.Error(err))
			}
			if hit {
				if cached.Comments == nil {
					cached.Comments = []*thread.Node{}
				}
				api.WriteJSON(w, http.StatusOK, cached)
				return
			}
			if gen, err = d.Cache.Generation(r.Context(), key); err != nil {
				d.logger().Warn("thread cache generation failed", zap.String("key", key), zap.Error(err))
			} else {
				cacheable = true
			}
		}

		comments, err := d.Store.ListComments(r.Context(), discussionID)
		if err != nil {
			d.logger().Warn("list comments failed, serving empty thread",
				zap.String("discussion_id", discussionID),
				zap.String("request_id", requestID(r)),
				zap.Error(err),
			)
			api.WriteJSON(w, http.StatusOK, threadResponse{Comments: []*thread.Node{}, Warning: commentsUnavailable})
			return
		}

		roots, total := thread.Build(comments, d.now())
		thread.Walk(roots, func(n *thread.Node, _ int) {
			n.ContentHTML = markdown.Render(n.Content)
		})
		if roots == nil {
			roots = []*thread.Node{}
		}
		resp := threadResponse{Comments: roots, TotalCount: total}

		if cacheable {
			if err := d.Cache.Set(r.Context(), key, gen, resp); err != nil {
				d.logger().Warn("thread cache write failed", zap.String("key", key), zap.Error(err))
			}
		}
		api.WriteJSON(w, http.StatusOK, resp)
	}
}

func CreateComment(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerOr401(w, r)
		if !ok {
			return
		}
		var req createCommentRequest
		if err := api.DecodeJSON(w, r, &req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "invalid JSON body", requestID(r), nil)
			return
		}

		fe := fieldErrors{}
		discussionID := strings.TrimSpace(req.DiscussionID)
		if discussionID == "" {
			fe["discussionId"] = "is required"
		}
		content := fe.checkLength("content", req.Content, commentMin, commentMax)
		if len(fe) > 0 {
			api.ValidationFailed(w, requestID(r), fe)
			return
		}
		var parentID *string
		if req.ParentID != nil {
			if p := strings.TrimSpace(*req.ParentID); p != "" {
				parentID = &p
			}
		}

		c, err := d.Store.CreateComment(r.Context(), store.Comment{
			DiscussionID: discussionID,
			ParentID:     parentID,
			Content:      content,
			Author:       authorOf(caller),
		})
		if err != nil {
			d.writeStoreError(w, r, err, "create comment")
			return
		}
		d.invalidateThread(r.Context(), discussionID)
		d.Analytics.Publish(analytics.SubjectCommentCreated, "comment_created", caller.UID, map[string]any{
			"discussion_id": discussionID,
			"comment_id":    c.ID,
			"is_reply":      c.ParentID != nil,
		})
		api.WriteJSON(w, http.StatusCreated, c)
	}
}

func UpdateComment(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerOr401(w, r)
		if !ok {
			return
		}
		var req updateCommentRequest
		if err := api.DecodeJSON(w, r, &req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "invalid JSON body", requestID(r), nil)
			return
		}
		fe := fieldErrors{}
		content := fe.checkLength("content", req.Content, commentMin, commentMax)
		if len(fe) > 0 {
			api.ValidationFailed(w, requestID(r), fe)
			return
		}

		id := chi.URLParam(r, "id")
		existing, err := d.Store.GetComment(r.Context(), id)
		if err != nil {
			d.writeStoreError(w, r, err, "get comment")
			return
		}
		if !caller.CanModify(existing.Author.UID) {
			api.Forbidden(w, "FORBIDDEN", "only the author or an admin can edit this comment", requestID(r))
			return
		}

		updated, err := d.Store.UpdateComment(r.Context(), id, content)
		if err != nil {
			d.writeStoreError(w, r, err, "update comment")
			return
		}
		d.invalidateThread(r.Context(), updated.DiscussionID)
		api.WriteJSON(w, http.StatusOK, updated)
	}
}

// DeleteComment removes the comment and all replies below it.
func DeleteComment(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerOr401(w, r)
		if !ok {
			return
		}
		id := chi.URLParam(r, "id")
		existing, err := d.Store.GetComment(r.Context(), id)
		if err != nil {
			d.writeStoreError(w, r, err, "get comment")
			return
		}
		if !caller.CanModify(existing.Author.UID) {
			api.Forbidden(w, "FORBIDDEN", "only the author or an admin can delete this comment", requestID(r))
			return
		}

		n, err := d.Store.DeleteCommentTree(r.Context(), id)
		if err != nil {
			d.writeStoreError(w, r, err, "delete comment")
			return
		}
		d.invalidateThread(r.Context(), existing.DiscussionID)
		d.Analytics.Publish(analytics.SubjectCommentDeleted, "comment_deleted", caller.UID, map[string]any{
			"discussion_id": existing.DiscussionID,
			"comment_id":    id,
			"removed":       n,
		})
		api.WriteJSON(w, http.StatusOK, map[string]int{"deleted": n})
	}
}
