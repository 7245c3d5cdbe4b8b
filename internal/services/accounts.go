package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/vidstream/backend/internal/apperr"
	"github.com/vidstream/backend/internal/logging"
	"github.com/vidstream/backend/internal/media"
	"github.com/vidstream/backend/internal/metrics"
	"github.com/vidstream/backend/internal/models"
	"github.com/vidstream/backend/internal/repositories"
)

// PasswordCost is the bcrypt work factor applied to stored passwords.
const PasswordCost = 10

// Accounts implements registration, authentication and profile workflows.
type Accounts struct {
	Users   UserStore
	Tokens  TokenIssuer
	Media   MediaUploader
	NowFunc func() time.Time
}

// RegisterInput carries the fields of a registration request. File paths point at
// uploads already spooled to local disk.
type RegisterInput struct {
	Username   string `json:"username" validate:"required,excludes=@"`
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required"`
	FullName   string `json:"fullName" validate:"required"`
	AvatarPath string `json:"avatar" validate:"required"`
	CoverPath  string `json:"coverImage"`
}

// Register creates a new identity. Username and email are lowercased and must both be
// unused; the avatar upload must succeed.
func (a Accounts) Register(ctx context.Context, in RegisterInput) (user models.User, err error) {
	ctx, span := logging.StartSpan(ctx, "accounts.register")
	defer func() {
		metrics.AuthRegistrationsTotal.WithLabelValues(metrics.Outcome(err)).Inc()
		span.End(err)
	}()

	in.Username = strings.ToLower(strings.TrimSpace(in.Username))
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.FullName = strings.TrimSpace(in.FullName)
	if strings.TrimSpace(in.Password) == "" {
		in.Password = ""
	}
	if err := validateInput(in); err != nil {
		return models.User{}, err
	}

	taken, err := a.Users.ExistsByUsernameOrEmail(ctx, in.Username, in.Email)
	if err != nil {
		return models.User{}, storeErr(err, "user not found")
	}
	if taken {
		return models.User{}, apperr.Duplicate("user with email or username already exists")
	}

	avatar, err := a.Media.Upload(ctx, in.AvatarPath, media.KindImage)
	if err != nil {
		return models.User{}, err
	}
	var cover media.Asset
	if in.CoverPath != "" {
		if cover, err = a.Media.Upload(ctx, in.CoverPath, media.KindImage); err != nil {
			a.discard(ctx, avatar.PublicID)
			return models.User{}, err
		}
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), PasswordCost)
	if err != nil {
		a.discard(ctx, avatar.PublicID, cover.PublicID)
		return models.User{}, apperr.Wrap(apperr.KindInternal, "internal server error", err)
	}

	now := nowUTC(a.NowFunc)
	user = models.User{
		ID:           uuid.NewString(),
		Username:     in.Username,
		Email:        in.Email,
		FullName:     in.FullName,
		Avatar:       avatar.URL,
		AvatarID:     avatar.PublicID,
		CoverImage:   cover.URL,
		CoverImageID: cover.PublicID,
		WatchHistory: []string{},
		Password:     string(hashed),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.Users.Create(ctx, user); err != nil {
		a.discard(ctx, avatar.PublicID, cover.PublicID)
		if errors.Is(err, repositories.ErrConflict) {
			return models.User{}, apperr.Duplicate("user with email or username already exists")
		}
		return models.User{}, storeErr(err, "user not found")
	}

	logging.FromContext(ctx).Info("user registered", "userId", user.ID)
	return user.Public(), nil
}

// Login authenticates by username or email and issues a fresh token pair.
func (a Accounts) Login(ctx context.Context, identifier, password string) (user models.User, tokens models.SessionTokens, err error) {
	ctx, span := logging.StartSpan(ctx, "accounts.login")
	defer func() {
		metrics.AuthLoginsTotal.WithLabelValues(metrics.Outcome(err)).Inc()
		span.End(err)
	}()

	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if identifier == "" {
		return models.User{}, models.SessionTokens{}, apperr.Validation("username or email is required",
			apperr.FieldError{Field: "username", Message: "username or email is required"})
	}
	if password == "" {
		return models.User{}, models.SessionTokens{}, apperr.Validation("password is required",
			apperr.FieldError{Field: "password", Message: "password is required"})
	}

	user, err = a.Users.FindByLogin(ctx, identifier)
	if err != nil {
		return models.User{}, models.SessionTokens{}, storeErr(err, "user does not exist")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return models.User{}, models.SessionTokens{}, apperr.InvalidCredential("invalid user credentials")
	}

	tokens, err = a.Tokens.Issue(ctx, user)
	if err != nil {
		return models.User{}, models.SessionTokens{}, storeErr(err, "user does not exist")
	}
	return user.Public(), tokens, nil
}

// Refresh rotates a refresh token into a new pair.
func (a Accounts) Refresh(ctx context.Context, refreshToken string) (tokens models.SessionTokens, err error) {
	ctx, span := logging.StartSpan(ctx, "accounts.refresh")
	defer func() {
		metrics.AuthTokenRefreshTotal.WithLabelValues(metrics.Outcome(err)).Inc()
		span.End(err)
	}()
	tokens, err = a.Tokens.Rotate(ctx, strings.TrimSpace(refreshToken))
	if err != nil {
		return models.SessionTokens{}, storeErr(err, "user not found")
	}
	return tokens, nil
}

// Logout invalidates the identity's refresh token.
func (a Accounts) Logout(ctx context.Context, userID string) (err error) {
	ctx, span := logging.StartSpan(ctx, "accounts.logout", "user_id", userID)
	defer func() { span.End(err) }()

	if err := a.Tokens.Revoke(ctx, userID); err != nil {
		return storeErr(err, "user not found")
	}
	return nil
}

// ChangePassword replaces the password after verifying the old one.
func (a Accounts) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) (err error) {
	ctx, span := logging.StartSpan(ctx, "accounts.change_password")
	defer func() { span.End(err) }()

	if oldPassword == "" || strings.TrimSpace(newPassword) == "" {
		return apperr.Validation("old and new passwords are required")
	}

	user, err := a.Users.FindByID(ctx, userID)
	if err != nil {
		return storeErr(err, "user not found")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(oldPassword)) != nil {
		return apperr.InvalidCredential("invalid old password")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), PasswordCost)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "internal server error", err)
	}
	if err := a.Users.SetPassword(ctx, user.ID, string(hashed), nowUTC(a.NowFunc)); err != nil {
		return storeErr(err, "user not found")
	}
	return nil
}

// CurrentUser returns the public shape of the identity.
func (a Accounts) CurrentUser(ctx context.Context, userID string) (models.User, error) {
	user, err := a.Users.FindByID(ctx, userID)
	if err != nil {
		return models.User{}, storeErr(err, "user not found")
	}
	return user.Public(), nil
}

type accountDetails struct {
	FullName string `json:"fullName" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
}

// UpdateAccount changes the display name and email.
func (a Accounts) UpdateAccount(ctx context.Context, userID, fullName, email string) (models.User, error) {
	in := accountDetails{
		FullName: strings.TrimSpace(fullName),
		Email:    strings.ToLower(strings.TrimSpace(email)),
	}
	if err := validateInput(in); err != nil {
		return models.User{}, err
	}

	if err := a.Users.UpdateProfile(ctx, userID, in.FullName, in.Email, nowUTC(a.NowFunc)); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return models.User{}, apperr.Duplicate("email is already in use")
		}
		return models.User{}, storeErr(err, "user not found")
	}
	return a.CurrentUser(ctx, userID)
}

// UpdateAvatar uploads a new avatar and removes the previous one.
func (a Accounts) UpdateAvatar(ctx context.Context, userID, path string) (models.User, error) {
	return a.replaceImage(ctx, userID, path, "avatar", func(u models.User) models.MediaRef {
		return models.MediaRef{URL: u.Avatar, PublicID: u.AvatarID}
	}, a.Users.SetAvatar)
}

// UpdateCoverImage uploads a new cover image and removes the previous one.
func (a Accounts) UpdateCoverImage(ctx context.Context, userID, path string) (models.User, error) {
	return a.replaceImage(ctx, userID, path, "coverImage", func(u models.User) models.MediaRef {
		return models.MediaRef{URL: u.CoverImage, PublicID: u.CoverImageID}
	}, a.Users.SetCoverImage)
}

func (a Accounts) replaceImage(
	ctx context.Context,
	userID, path, field string,
	current func(models.User) models.MediaRef,
	store func(ctx context.Context, userID string, ref models.MediaRef, at time.Time) error,
) (models.User, error) {
	if path == "" {
		return models.User{}, missingFile(field)
	}

	user, err := a.Users.FindByID(ctx, userID)
	if err != nil {
		return models.User{}, storeErr(err, "user not found")
	}
	previous := current(user)

	asset, err := a.Media.Upload(ctx, path, media.KindImage)
	if err != nil {
		return models.User{}, err
	}
	if err := store(ctx, userID, asset.MediaRef, nowUTC(a.NowFunc)); err != nil {
		a.discard(ctx, asset.PublicID)
		return models.User{}, storeErr(err, "user not found")
	}

	a.discard(ctx, previous.PublicID)
	return a.CurrentUser(ctx, userID)
}

// ChannelProfile returns the channel view of username as seen by viewerID.
func (a Accounts) ChannelProfile(ctx context.Context, viewerID, username string) (models.ChannelProfile, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return models.ChannelProfile{}, apperr.Validation("username is missing",
			apperr.FieldError{Field: "username", Message: "username is missing"})
	}
	profile, err := a.Users.ChannelProfile(ctx, username, viewerID)
	if err != nil {
		return models.ChannelProfile{}, storeErr(err, "channel does not exist")
	}
	return profile, nil
}

// WatchHistory lists the videos the identity watched, most recent first.
func (a Accounts) WatchHistory(ctx context.Context, userID string) ([]models.Video, error) {
	videos, err := a.Users.WatchHistory(ctx, userID)
	if err != nil {
		return nil, storeErr(err, "user not found")
	}
	return videos, nil
}

// discard removes uploaded media that is no longer referenced. Failures are logged only.
func (a Accounts) discard(ctx context.Context, publicIDs ...string) {
	discardMedia(ctx, a.Media, publicIDs...)
}

func discardMedia(ctx context.Context, store MediaUploader, publicIDs ...string) {
	for _, id := range publicIDs {
		if id == "" {
			continue
		}
		if err := store.Delete(ctx, id); err != nil {
			logging.FromContext(ctx).Warn("failed to delete media", "publicId", id, "error", err)
		}
	}
}
