package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/example/acadmate/internal/platform/auth"
	"github.com/example/acadmate/internal/platform/httpserver"
)

// UserOrIP keys rate limiting by the authenticated user, falling back to
// the client address.
func UserOrIP(r *http.Request) string {
	if uid, ok := auth.UserIDFromContext(r.Context()); ok {
		return "user:" + uid
	}
	return "ip:" + httpserver.ClientIP(r)
}

// Mount registers the forum API under /v1. Writes pass through limiter
// when it is non-nil.
func Mount(r chi.Router, d Deps, verifier auth.JWTVerifier, limiter *httpserver.RateLimiter) {
	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(auth.OptionalUser(verifier))
			r.Get("/discussions", ListDiscussions(d))
			r.Get("/discussions/{id}", GetDiscussion(d))
			r.Get("/comments/discussion/{discussionId}", ListComments(d))
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireUser(verifier))
			r.Get("/discussions/{id}/vote-status", VoteStatus(d))

			r.Group(func(r chi.Router) {
				if limiter != nil {
					r.Use(limiter.Middleware)
				}
				r.Post("/discussions", CreateDiscussion(d))
				r.Put("/discussions/{id}", UpdateDiscussion(d))
				r.Delete("/discussions/{id}", DeleteDiscussion(d))
				r.Post("/discussions/{id}/vote", ToggleVote(d))

				r.Post("/comments", CreateComment(d))
				r.Put("/comments/{id}", UpdateComment(d))
				r.Delete("/comments/{id}", DeleteComment(d))

				r.Post("/chat/ask", AskChatbot(d))
			})
		})
	})
}
