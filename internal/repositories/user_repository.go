package repositories

import (
	"context"
	"strings"
	"time"

	"github.com/vidstream/backend/internal/models"
)

// UserRepository defines the data access contract for users. Each setter writes only
// its own columns.
type UserRepository interface {
	Create(ctx context.Context, user models.User) error
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByUsername(ctx context.Context, username string) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByLogin(ctx context.Context, identifier string) (models.User, error)
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)
	UpdateProfile(ctx context.Context, userID, fullName, email string, at time.Time) error
	SetPassword(ctx context.Context, userID, hash string, at time.Time) error
	SetAvatar(ctx context.Context, userID string, ref models.MediaRef, at time.Time) error
	SetCoverImage(ctx context.Context, userID string, ref models.MediaRef, at time.Time) error
	SetRefreshToken(ctx context.Context, userID, token string) error
	SwapRefreshToken(ctx context.Context, userID, current, next string) (bool, error)
	AddToWatchHistory(ctx context.Context, userID, videoID string, watchedAt time.Time) error
	WatchHistory(ctx context.Context, userID string) ([]models.Video, error)
	ChannelProfile(ctx context.Context, username, viewerID string) (models.ChannelProfile, error)
}

// isEmailLogin reports whether a login identifier names an email rather than a username.
func isEmailLogin(identifier string) bool {
	return strings.Contains(identifier, "@")
}
