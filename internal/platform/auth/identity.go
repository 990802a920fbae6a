package auth

import (
	"context"
	"strings"
)

// Identity is the caller as resolved from a verified token.
type Identity struct {
	UID         string
	DisplayName string
	Email       string
	PhotoURL    string
	Role        string
}

func (id Identity) IsAdmin() bool {
	return strings.EqualFold(strings.TrimSpace(id.Role), "admin")
}

// CanModify reports whether the caller may edit or delete a record owned by ownerUID.
func (id Identity) CanModify(ownerUID string) bool {
	if id.UID == "" {
		return false
	}
	return id.UID == ownerUID || id.IsAdmin()
}

type ctxKeyIdentity struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity{}, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKeyIdentity{}).(Identity)
	if !ok || id.UID == "" {
		return Identity{}, false
	}
	return id, true
}

func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := IdentityFromContext(ctx)
	return id.UID, ok
}

// WithUserID injects a bare user id into context. Useful for testing.
func WithUserID(ctx context.Context, uid string) context.Context {
	id, _ := ctx.Value(ctxKeyIdentity{}).(Identity)
	id.UID = uid
	return WithIdentity(ctx, id)
}

func RoleFromContext(ctx context.Context) (string, bool) {
	id, _ := ctx.Value(ctxKeyIdentity{}).(Identity)
	if strings.TrimSpace(id.Role) == "" {
		return "", false
	}
	return id.Role, true
}
