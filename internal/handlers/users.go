package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vidstream/backend/internal/auth"
	"github.com/vidstream/backend/internal/middleware"
	"github.com/vidstream/backend/internal/models"
	"github.com/vidstream/backend/internal/services"
)

// CookieOptions controls the session cookies set on login and refresh.
type CookieOptions struct {
	Secure bool
	Domain string
}

// UserHandler implements account and authentication endpoints.
type UserHandler struct {
	Accounts AccountService
	Uploads  Uploads
	Cookies  CookieOptions
}

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type updateAccountRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
}

type loginResponse struct {
	User             models.User `json:"user"`
	AccessToken      string      `json:"accessToken"`
	RefreshToken     string      `json:"refreshToken"`
	AccessExpiresAt  time.Time   `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time   `json:"refreshExpiresAt"`
}

// Register handles POST /users/register.
func (h UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	form, err := h.Uploads.receive(w, r, registerFields)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	defer form.Cleanup()

	user, err := h.Accounts.Register(r.Context(), services.RegisterInput{
		Username:   form.value("username"),
		Email:      form.value("email"),
		Password:   form.value("password"),
		FullName:   form.value("fullName"),
		AvatarPath: form.path("avatar"),
		CoverPath:  form.path("coverImage"),
	})
	if err != nil {
		RespondError(w, r, err)
		return
	}
	respondData(r.Context(), w, http.StatusCreated, "user registered successfully", user)
}

// Login handles POST /users/login. Either username or email identifies the account.
func (h UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, r, err)
		return
	}
	identifier := req.Username
	if strings.TrimSpace(identifier) == "" {
		identifier = req.Email
	}

	user, tokens, err := h.Accounts.Login(r.Context(), identifier, req.Password)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	h.setSessionCookies(w, tokens)
	respondData(r.Context(), w, http.StatusOK, "user logged in successfully", loginResponse{
		User:             user,
		AccessToken:      tokens.AccessToken,
		RefreshToken:     tokens.RefreshToken,
		AccessExpiresAt:  tokens.AccessExpiresAt,
		RefreshExpiresAt: tokens.RefreshExpiresAt,
	})
}

// Logout handles POST /users/logout.
func (h UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	user, ok := identity(w, r)
	if !ok {
		return
	}
	if err := h.Accounts.Logout(r.Context(), user.ID); err != nil {
		RespondError(w, r, err)
		return
	}
	h.clearSessionCookies(w)
	respondData(r.Context(), w, http.StatusOK, "user logged out", struct{}{})
}

// Refresh handles POST /users/refresh-token. The refresh token is read from its cookie,
// falling back to the request body.
func (h UserHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var token string
	if cookie, err := r.Cookie(middleware.RefreshTokenCookie); err == nil {
		token = cookie.Value
	}
	if token == "" && r.ContentLength != 0 {
		var req refreshRequest
		if err := decodeJSON(r, &req); err != nil {
			RespondError(w, r, err)
			return
		}
		token = req.RefreshToken
	}
	if strings.TrimSpace(token) == "" {
		RespondError(w, r, auth.ErrTokenMissing)
		return
	}

	tokens, err := h.Accounts.Refresh(r.Context(), token)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	h.setSessionCookies(w, tokens)
	respondData(r.Context(), w, http.StatusOK, "access token refreshed", tokens)
}

// ChangePassword handles POST /users/change-password.
func (h UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := identity(w, r)
	if !ok {
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, r, err)
		return
	}
	if err := h.Accounts.ChangePassword(r.Context(), user.ID, req.OldPassword, req.NewPassword); err != nil {
		RespondError(w, r, err)
		return
	}
	respondData(r.Context(), w, http.StatusOK, "password changed successfully", struct{}{})
}

// CurrentUser handles GET /users/current-user.
func (h UserHandler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	user, ok := identity(w, r)
	if !ok {
		return
	}
	current, err := h.Accounts.CurrentUser(r.Context(), user.ID)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	respondData(r.Context(), w, http.StatusOK, "current user fetched", current)
}

// UpdateAccount handles PATCH /users/update-account.
func (h UserHandler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	user, ok := identity(w, r)
	if !ok {
		return
	}
	var req updateAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, r, err)
		return
	}
	updated, err := h.Accounts.UpdateAccount(r.Context(), user.ID, req.FullName, req.Email)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	respondData(r.Context(), w, http.StatusOK, "account details updated", updated)
}

// UpdateAvatar handles PATCH /users/avatar.
func (h UserHandler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	h.replaceImage(w, r, "avatar", avatarFields, h.Accounts.UpdateAvatar)
}

// UpdateCoverImage handles PATCH /users/cover-image.
func (h UserHandler) UpdateCoverImage(w http.ResponseWriter, r *http.Request) {
	h.replaceImage(w, r, "coverImage", coverImageFields, h.Accounts.UpdateCoverImage)
}

func (h UserHandler) replaceImage(
	w http.ResponseWriter,
	r *http.Request,
	field string,
	fields []string,
	update func(ctx context.Context, userID, path string) (models.User, error),
) {
	user, ok := identity(w, r)
	if !ok {
		return
	}
	form, err := h.Uploads.receive(w, r, fields)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	defer form.Cleanup()

	updated, err := update(r.Context(), user.ID, form.path(field))
	if err != nil {
		RespondError(w, r, err)
		return
	}
	respondData(r.Context(), w, http.StatusOK, field+" updated successfully", updated)
}

// ChannelProfile handles GET /users/c/{username}.
func (h UserHandler) ChannelProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := identity(w, r)
	if !ok {
		return
	}
	profile, err := h.Accounts.ChannelProfile(r.Context(), user.ID, chi.URLParam(r, "username"))
	if err != nil {
		RespondError(w, r, err)
		return
	}
	respondData(r.Context(), w, http.StatusOK, "channel profile fetched", profile)
}

// WatchHistory handles GET /users/history.
func (h UserHandler) WatchHistory(w http.ResponseWriter, r *http.Request) {
	user, ok := identity(w, r)
	if !ok {
		return
	}
	videos, err := h.Accounts.WatchHistory(r.Context(), user.ID)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	respondData(r.Context(), w, http.StatusOK, "watch history fetched", videos)
}

func (h UserHandler) setSessionCookies(w http.ResponseWriter, tokens models.SessionTokens) {
	http.SetCookie(w, h.cookie(middleware.AccessTokenCookie, tokens.AccessToken, tokens.AccessExpiresAt))
	http.SetCookie(w, h.cookie(middleware.RefreshTokenCookie, tokens.RefreshToken, tokens.RefreshExpiresAt))
}

func (h UserHandler) clearSessionCookies(w http.ResponseWriter) {
	for _, name := range []string{middleware.AccessTokenCookie, middleware.RefreshTokenCookie} {
		cookie := h.cookie(name, "", time.Unix(0, 0))
		cookie.MaxAge = -1
		http.SetCookie(w, cookie)
	}
}

func (h UserHandler) cookie(name, value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   h.Cookies.Domain,
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.Cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// identity returns the authenticated caller, responding with an error when absent.
func identity(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	user, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		RespondError(w, r, auth.ErrTokenMissing)
		return models.User{}, false
	}
	return user, true
}
