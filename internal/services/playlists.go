package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vidstream/backend/internal/apperr"
	"github.com/vidstream/backend/internal/logging"
	"github.com/vidstream/backend/internal/models"
	"github.com/vidstream/backend/internal/repositories"
)

// Playlists implements owner-scoped playlist management and the playlist detail view.
// A playlist owned by someone else is reported as not found.
type Playlists struct {
	Store   PlaylistStore
	Videos  VideoStore
	Users   UserLookup
	NowFunc func() time.Time
}

type playlistDetails struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description" validate:"required"`
}

func newPlaylistDetails(name, description string) (playlistDetails, error) {
	in := playlistDetails{Name: strings.TrimSpace(name), Description: strings.TrimSpace(description)}
	return in, validateInput(in)
}

// Create makes an empty playlist owned by ownerID.
func (p Playlists) Create(ctx context.Context, ownerID, name, description string) (models.Playlist, error) {
	in, err := newPlaylistDetails(name, description)
	if err != nil {
		return models.Playlist{}, err
	}

	now := nowUTC(p.NowFunc)
	playlist := models.Playlist{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Description: in.Description,
		OwnerID:     ownerID,
		Videos:      []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := p.Store.Create(ctx, playlist); err != nil {
		return models.Playlist{}, storeErr(err, "user not found")
	}
	return playlist, nil
}

// ListByOwner returns every playlist of userID with its owner summary.
func (p Playlists) ListByOwner(ctx context.Context, userID string) ([]models.OwnedPlaylist, error) {
	userID, err := parseID("user id", userID)
	if err != nil {
		return nil, err
	}
	if _, err := p.Users.FindByID(ctx, userID); err != nil {
		return nil, storeErr(err, "user not found")
	}
	playlists, err := p.Store.ListByOwner(ctx, userID)
	if err != nil {
		return nil, storeErr(err, "user not found")
	}
	return playlists, nil
}

// Detail returns the joined playlist view with member videos in playlist order.
func (p Playlists) Detail(ctx context.Context, playlistID string) (models.PlaylistDetail, error) {
	playlistID, err := parseID("playlist id", playlistID)
	if err != nil {
		return models.PlaylistDetail{}, err
	}
	detail, err := p.Store.Detail(ctx, playlistID)
	if err != nil {
		return models.PlaylistDetail{}, storeErr(err, "playlist not found")
	}
	return detail, nil
}

// AddVideo appends videoID to the playlist. Membership is a set: adding a video that
// is already present fails with Duplicate.
func (p Playlists) AddVideo(ctx context.Context, ownerID, playlistID, videoID string) (playlist models.Playlist, err error) {
	ctx, span := logging.StartSpan(ctx, "playlists.add_video", "playlist_id", playlistID, "video_id", videoID)
	defer func() { span.End(err) }()

	if playlistID, err = parseID("playlist id", playlistID); err != nil {
		return models.Playlist{}, err
	}
	if videoID, err = parseID("video id", videoID); err != nil {
		return models.Playlist{}, err
	}

	if _, err := p.Store.FindOwned(ctx, playlistID, ownerID); err != nil {
		return models.Playlist{}, storeErr(err, "playlist not found")
	}
	if _, err := p.Videos.FindByID(ctx, videoID); err != nil {
		return models.Playlist{}, storeErr(err, "video not found")
	}

	if err := p.Store.AddVideo(ctx, playlistID, ownerID, videoID, nowUTC(p.NowFunc)); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return models.Playlist{}, apperr.Duplicate("video already exists in playlist")
		}
		return models.Playlist{}, storeErr(err, "playlist not found")
	}
	return p.owned(ctx, playlistID, ownerID)
}

// RemoveVideo drops videoID from the playlist. Removing a video that is not a member
// succeeds and leaves the playlist unchanged.
func (p Playlists) RemoveVideo(ctx context.Context, ownerID, playlistID, videoID string) (models.Playlist, error) {
	playlistID, err := parseID("playlist id", playlistID)
	if err != nil {
		return models.Playlist{}, err
	}
	if videoID, err = parseID("video id", videoID); err != nil {
		return models.Playlist{}, err
	}

	if err := p.Store.RemoveVideo(ctx, playlistID, ownerID, videoID, nowUTC(p.NowFunc)); err != nil {
		return models.Playlist{}, storeErr(err, "playlist not found")
	}
	return p.owned(ctx, playlistID, ownerID)
}

// Update changes a playlist's name and description.
func (p Playlists) Update(ctx context.Context, ownerID, playlistID, name, description string) (models.Playlist, error) {
	playlistID, err := parseID("playlist id", playlistID)
	if err != nil {
		return models.Playlist{}, err
	}
	in, err := newPlaylistDetails(name, description)
	if err != nil {
		return models.Playlist{}, err
	}
	if err := p.Store.Update(ctx, playlistID, ownerID, in.Name, in.Description, nowUTC(p.NowFunc)); err != nil {
		return models.Playlist{}, storeErr(err, "playlist not found")
	}
	return p.owned(ctx, playlistID, ownerID)
}

// Delete removes a playlist and returns it.
func (p Playlists) Delete(ctx context.Context, ownerID, playlistID string) (models.Playlist, error) {
	playlistID, err := parseID("playlist id", playlistID)
	if err != nil {
		return models.Playlist{}, err
	}
	deleted, err := p.Store.Delete(ctx, playlistID, ownerID)
	if err != nil {
		return models.Playlist{}, storeErr(err, "playlist not found")
	}
	return deleted, nil
}

func (p Playlists) owned(ctx context.Context, playlistID, ownerID string) (models.Playlist, error) {
	playlist, err := p.Store.FindOwned(ctx, playlistID, ownerID)
	if err != nil {
		return models.Playlist{}, storeErr(err, "playlist not found")
	}
	return playlist, nil
}
