package auth

import (
	"context"

	"github.com/google/uuid"
)

// Identity is the authenticated principal behind a request.
type Identity struct {
	UserID uuid.UUID
	Email  string
	Role   string
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns nil when the request is anonymous.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}
