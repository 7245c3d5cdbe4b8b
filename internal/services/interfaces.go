package services

import (
	"context"
	"time"

	"github.com/vidstream/backend/internal/media"
	"github.com/vidstream/backend/internal/models"
)

// UserStore captures the persistence operations required by account workflows.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByLogin(ctx context.Context, identifier string) (models.User, error)
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)
	UpdateProfile(ctx context.Context, userID, fullName, email string, at time.Time) error
	SetPassword(ctx context.Context, userID, hash string, at time.Time) error
	SetAvatar(ctx context.Context, userID string, ref models.MediaRef, at time.Time) error
	SetCoverImage(ctx context.Context, userID string, ref models.MediaRef, at time.Time) error
	AddToWatchHistory(ctx context.Context, userID, videoID string, watchedAt time.Time) error
	WatchHistory(ctx context.Context, userID string) ([]models.Video, error)
	ChannelProfile(ctx context.Context, username, viewerID string) (models.ChannelProfile, error)
}

// UserLookup resolves identities referenced by other workflows.
type UserLookup interface {
	FindByID(ctx context.Context, id string) (models.User, error)
}

// WatchRecorder records videos in a viewer's watch history.
type WatchRecorder interface {
	AddToWatchHistory(ctx context.Context, userID, videoID string, watchedAt time.Time) error
}

// TokenIssuer issues and rotates session tokens.
type TokenIssuer interface {
	Issue(ctx context.Context, user models.User) (models.SessionTokens, error)
	Rotate(ctx context.Context, refreshToken string) (models.SessionTokens, error)
	Revoke(ctx context.Context, userID string) error
}

// MediaUploader stores uploaded files and removes them again.
type MediaUploader interface {
	Upload(ctx context.Context, path string, kind media.Kind) (media.Asset, error)
	Delete(ctx context.Context, publicID string) error
}

// SubscriptionStore persists subscriber -> channel edges.
type SubscriptionStore interface {
	Toggle(ctx context.Context, edge models.Subscription) (models.SubscriptionState, error)
	ListSubscribers(ctx context.Context, channelID string, page models.PageRequest) (models.Page[models.SubscriberEntry], error)
	ListChannels(ctx context.Context, subscriberID string, page models.PageRequest) (models.Page[models.ChannelEntry], error)
}

// VideoStore persists videos.
type VideoStore interface {
	Create(ctx context.Context, video models.Video) error
	FindByID(ctx context.Context, id string) (models.Video, error)
	List(ctx context.Context, query models.VideoQuery) (models.Page[models.Video], error)
	Update(ctx context.Context, video models.Video) error
	Delete(ctx context.Context, id string) error
	IncrementViews(ctx context.Context, id string) (int64, error)
}

// PlaylistStore persists playlists and their membership.
type PlaylistStore interface {
	Create(ctx context.Context, playlist models.Playlist) error
	FindOwned(ctx context.Context, id, ownerID string) (models.Playlist, error)
	ListByOwner(ctx context.Context, ownerID string) ([]models.OwnedPlaylist, error)
	Detail(ctx context.Context, id string) (models.PlaylistDetail, error)
	AddVideo(ctx context.Context, id, ownerID, videoID string, at time.Time) error
	RemoveVideo(ctx context.Context, id, ownerID, videoID string, at time.Time) error
	Update(ctx context.Context, id, ownerID, name, description string, at time.Time) error
	Delete(ctx context.Context, id, ownerID string) (models.Playlist, error)
}
