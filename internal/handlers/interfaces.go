package handlers

import (
	"context"

	"github.com/vidstream/backend/internal/models"
	"github.com/vidstream/backend/internal/services"
)

// AccountService captures the account workflows exposed over HTTP.
type AccountService interface {
	Register(ctx context.Context, in services.RegisterInput) (models.User, error)
	Login(ctx context.Context, identifier, password string) (models.User, models.SessionTokens, error)
	Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error)
	Logout(ctx context.Context, userID string) error
	ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error
	CurrentUser(ctx context.Context, userID string) (models.User, error)
	UpdateAccount(ctx context.Context, userID, fullName, email string) (models.User, error)
	UpdateAvatar(ctx context.Context, userID, path string) (models.User, error)
	UpdateCoverImage(ctx context.Context, userID, path string) (models.User, error)
	ChannelProfile(ctx context.Context, viewerID, username string) (models.ChannelProfile, error)
	WatchHistory(ctx context.Context, userID string) ([]models.Video, error)
}

// SubscriptionService captures the subscription workflows exposed over HTTP.
type SubscriptionService interface {
	Toggle(ctx context.Context, subscriberID, channelID string) (models.SubscriptionState, error)
	Subscribers(ctx context.Context, channelID string, page models.PageRequest) (models.Page[models.SubscriberEntry], error)
	SubscribedChannels(ctx context.Context, subscriberID string, page models.PageRequest) (models.Page[models.ChannelEntry], error)
}

// PlaylistService captures the playlist workflows exposed over HTTP.
type PlaylistService interface {
	Create(ctx context.Context, ownerID, name, description string) (models.Playlist, error)
	ListByOwner(ctx context.Context, userID string) ([]models.OwnedPlaylist, error)
	Detail(ctx context.Context, playlistID string) (models.PlaylistDetail, error)
	AddVideo(ctx context.Context, ownerID, playlistID, videoID string) (models.Playlist, error)
	RemoveVideo(ctx context.Context, ownerID, playlistID, videoID string) (models.Playlist, error)
	Update(ctx context.Context, ownerID, playlistID, name, description string) (models.Playlist, error)
	Delete(ctx context.Context, ownerID, playlistID string) (models.Playlist, error)
}

// VideoService captures the video workflows exposed over HTTP.
type VideoService interface {
	Publish(ctx context.Context, ownerID string, in services.VideoInput) (models.Video, error)
	Get(ctx context.Context, videoID string) (models.Video, error)
	List(ctx context.Context, in services.ListVideosInput) (models.Page[models.Video], error)
	Update(ctx context.Context, ownerID, videoID string, in services.VideoInput) (models.Video, error)
	Delete(ctx context.Context, ownerID, videoID string) (models.Video, error)
	TogglePublish(ctx context.Context, ownerID, videoID string) (models.Video, error)
	Watch(ctx context.Context, viewerID, videoID string) (models.Video, error)
}
