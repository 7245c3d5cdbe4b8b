package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/vidstream/backend/internal/apperr"
	"github.com/vidstream/backend/internal/auth"
	"github.com/vidstream/backend/internal/logging"
	"github.com/vidstream/backend/internal/models"
	"github.com/vidstream/backend/internal/repositories"
)

// Cookie names carrying session tokens.
const (
	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"
)

// AccessVerifier validates access tokens.
type AccessVerifier interface {
	VerifyAccess(raw string) (auth.AccessClaims, error)
}

// IdentityLoader loads the identity named by a verified token.
type IdentityLoader interface {
	FindByID(ctx context.Context, id string) (models.User, error)
}

// Authenticate requires a valid access token from the accessToken cookie or an
// Authorization bearer header, and attaches the caller's identity to the request context.
func Authenticate(tokens AccessVerifier, users IdentityLoader, fail ErrorResponder) func(http.Handler) http.Handler {
	fail = responder(fail)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := tokens.VerifyAccess(accessToken(r))
			if err != nil {
				logging.FromContext(r.Context()).Debug("access token rejected", "error", err)
				fail(w, r, err)
				return
			}

			user, err := users.FindByID(r.Context(), claims.UserID())
			if err != nil {
				fail(w, r, identityError(err))
				return
			}

			ctx := auth.WithIdentity(r.Context(), user)
			ctx = logging.WithLogger(ctx, logging.FromContext(ctx).With("user_id", user.ID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func accessToken(r *http.Request) string {
	if cookie, err := r.Cookie(AccessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func identityError(err error) error {
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		return auth.ErrIdentityNotFound
	case errors.Is(err, repositories.ErrUnavailable):
		return apperr.Unavailable("database unavailable", err)
	default:
		return apperr.Wrap(apperr.KindInternal, "internal server error", err)
	}
}
