package auth

import (
	"context"

	"github.com/vidstream/backend/internal/models"
)

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying the authenticated user.
func WithIdentity(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, identityKey{}, user.Public())
}

// IdentityFromContext returns the authenticated user attached by the session middleware.
func IdentityFromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(identityKey{}).(models.User)
	return user, ok
}
