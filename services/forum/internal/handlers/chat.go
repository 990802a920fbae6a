package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/example/acadmate/internal/platform/api"
	"github.com/example/acadmate/services/forum/internal/chatbot"
)

type askRequest struct {
	Question string `json:"question"`
}

// AskChatbot relays a question to the chatbot upstream.
func AskChatbot(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerOr401(w, r)
		if !ok {
			return
		}
		var req askRequest
		if err := api.DecodeJSON(w, r, &req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "invalid JSON body", requestID(r), nil)
			return
		}
		fe := fieldErrors{}
		q := fe.checkLength("question", req.Question, 1, questionMax)
		if len(fe) > 0 {
			api.ValidationFailed(w, requestID(r), fe)
			return
		}
		if d.Chatbot == nil {
			api.Unavailable(w, "UPSTREAM_UNAVAILABLE", "chatbot is not configured", requestID(r))
			return
		}

		ans, err := d.Chatbot.Ask(r.Context(), q)
		if err != nil {
			level := d.logger().Warn
			if !errors.Is(err, chatbot.ErrUnavailable) {
				level = d.logger().Info
			}
			level("chatbot ask failed", zap.String("uid", caller.UID), zap.String("request_id", requestID(r)), zap.Error(err))
			api.Unavailable(w, "UPSTREAM_UNAVAILABLE", "chatbot is unavailable, try again later", requestID(r))
			return
		}
		api.WriteJSON(w, http.StatusOK, ans)
	}
}
