package auth

import (
	"net/http"

	"github.com/example/acadmate/internal/platform/api"
	"github.com/example/acadmate/internal/platform/httpserver"
)

// RequireAdmin allows request only if RequireUser already injected role=admin into context.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := ctxIdentity(r)
		if !id.IsAdmin() {
			api.Forbidden(w, "FORBIDDEN", "Admin role required", httpserver.RequestIDFromContext(r.Context()))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func ctxIdentity(r *http.Request) (Identity, bool) {
	id, ok := r.Context().Value(ctxKeyIdentity{}).(Identity)
	return id, ok
}
