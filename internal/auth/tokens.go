package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/vidstream/backend/internal/apperr"
	"github.com/vidstream/backend/internal/models"
	"github.com/vidstream/backend/internal/repositories"
)

var (
	// ErrTokenMissing indicates no token was presented.
	ErrTokenMissing = apperr.InvalidCredential("unauthorized request")
	// ErrTokenExpired indicates the token's expiry has passed.
	ErrTokenExpired = apperr.InvalidCredential("token expired")
	// ErrTokenMalformed indicates the token could not be decoded or its signature is invalid.
	ErrTokenMalformed = apperr.InvalidCredential("invalid token")
	// ErrTokenMismatch indicates a refresh token that is no longer the identity's current one.
	ErrTokenMismatch = apperr.InvalidCredential("refresh token is expired or used")
	// ErrIdentityNotFound indicates the token references an identity that no longer exists.
	ErrIdentityNotFound = apperr.InvalidCredential("invalid token")
)

// IdentityStore is the slice of the user repository the token service depends on.
type IdentityStore interface {
	FindByID(ctx context.Context, id string) (models.User, error)
	SetRefreshToken(ctx context.Context, userID, token string) error
	SwapRefreshToken(ctx context.Context, userID, current, next string) (bool, error)
}

// TokenConfig holds the signing secrets and lifetimes for each token class.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

// AccessClaims are embedded in access tokens. The subject is the user id.
type AccessClaims struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	jwt.RegisteredClaims
}

// UserID returns the identity the token was issued to.
func (c AccessClaims) UserID() string { return c.Subject }

// TokenService issues, verifies, and rotates HS256 access and refresh tokens. The
// most recently issued refresh token is persisted on the identity; any other refresh
// token is rejected.
type TokenService struct {
	cfg   TokenConfig
	store IdentityStore
	now   func() time.Time
}

// NewTokenService constructs a TokenService backed by store.
func NewTokenService(cfg TokenConfig, store IdentityStore) *TokenService {
	if store == nil {
		panic("auth: identity store must not be nil")
	}
	return &TokenService{cfg: cfg, store: store, now: time.Now}
}

// Issue signs a fresh token pair for user and persists the refresh token, replacing
// any previous one.
func (s *TokenService) Issue(ctx context.Context, user models.User) (models.SessionTokens, error) {
	tokens, err := s.sign(user)
	if err != nil {
		return models.SessionTokens{}, err
	}
	if err := s.store.SetRefreshToken(ctx, user.ID, tokens.RefreshToken); err != nil {
		return models.SessionTokens{}, storeFailure("persist refresh token", err)
	}
	return tokens, nil
}

func (s *TokenService) sign(user models.User) (models.SessionTokens, error) {
	if user.ID == "" {
		return models.SessionTokens{}, errors.New("user id must be provided")
	}

	now := s.now().UTC()
	access := AccessClaims{
		Username:         user.Username,
		Email:            user.Email,
		FullName:         user.FullName,
		RegisteredClaims: s.registered(user.ID, now, s.cfg.AccessTTL),
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, access).SignedString([]byte(s.cfg.AccessSecret))
	if err != nil {
		return models.SessionTokens{}, fmt.Errorf("sign access token: %w", err)
	}

	refresh := s.registered(user.ID, now, s.cfg.RefreshTTL)
	refreshToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refresh).SignedString([]byte(s.cfg.RefreshSecret))
	if err != nil {
		return models.SessionTokens{}, fmt.Errorf("sign refresh token: %w", err)
	}

	return models.SessionTokens{
		AccessToken:      accessToken,
		AccessExpiresAt:  access.ExpiresAt.Time,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: refresh.ExpiresAt.Time,
	}, nil
}

func (s *TokenService) registered(subject string, now time.Time, ttl time.Duration) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    s.cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}
}

// VerifyAccess decodes and validates an access token.
func (s *TokenService) VerifyAccess(raw string) (AccessClaims, error) {
	if raw == "" {
		return AccessClaims{}, ErrTokenMissing
	}
	var claims AccessClaims
	if err := s.parse(raw, s.cfg.AccessSecret, &claims); err != nil {
		return AccessClaims{}, err
	}
	return claims, nil
}

// Rotate exchanges the identity's current refresh token for a new pair. A token that
// decodes correctly but is not, or is no longer, the stored one fails with
// ErrTokenMismatch.
func (s *TokenService) Rotate(ctx context.Context, raw string) (models.SessionTokens, error) {
	if raw == "" {
		return models.SessionTokens{}, ErrTokenMissing
	}
	var claims jwt.RegisteredClaims
	if err := s.parse(raw, s.cfg.RefreshSecret, &claims); err != nil {
		return models.SessionTokens{}, err
	}

	user, err := s.store.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.SessionTokens{}, ErrIdentityNotFound
		}
		return models.SessionTokens{}, storeFailure("load identity", err)
	}
	if user.RefreshToken == "" || subtle.ConstantTimeCompare([]byte(user.RefreshToken), []byte(raw)) != 1 {
		return models.SessionTokens{}, ErrTokenMismatch
	}

	tokens, err := s.sign(user)
	if err != nil {
		return models.SessionTokens{}, err
	}
	// The swap only succeeds while raw is still stored, so of two concurrent rotations
	// of the same token exactly one wins.
	swapped, err := s.store.SwapRefreshToken(ctx, user.ID, raw, tokens.RefreshToken)
	if err != nil {
		return models.SessionTokens{}, storeFailure("rotate refresh token", err)
	}
	if !swapped {
		return models.SessionTokens{}, ErrTokenMismatch
	}
	return tokens, nil
}

// Revoke clears the stored refresh token so no previously issued one can be rotated.
func (s *TokenService) Revoke(ctx context.Context, userID string) error {
	if err := s.store.SetRefreshToken(ctx, userID, ""); err != nil {
		return storeFailure("clear refresh token", err)
	}
	return nil
}

func (s *TokenService) parse(raw, secret string, claims jwt.Claims) error {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	}
	if s.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.cfg.Issuer))
	}
	token, err := jwt.NewParser(opts...).ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case err != nil || !token.Valid:
		return ErrTokenMalformed
	}
	if sub, _ := claims.GetSubject(); sub == "" {
		return ErrTokenMalformed
	}
	return nil
}

func storeFailure(op string, err error) error {
	if errors.Is(err, repositories.ErrUnavailable) {
		return apperr.Unavailable("identity store unavailable", fmt.Errorf("%s: %w", op, err))
	}
	if errors.Is(err, repositories.ErrNotFound) {
		return ErrIdentityNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
