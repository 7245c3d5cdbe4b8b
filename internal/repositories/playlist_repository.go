package repositories

import (
	"context"
	"time"

	"github.com/vidstream/backend/internal/models"
)

// PlaylistRepository exposes data access for playlists. Mutations are scoped to the
// owner and report ErrNotFound when the playlist is missing or owned by someone else.
type PlaylistRepository interface {
	Create(ctx context.Context, playlist models.Playlist) error
	FindOwned(ctx context.Context, id, ownerID string) (models.Playlist, error)
	ListByOwner(ctx context.Context, ownerID string) ([]models.OwnedPlaylist, error)
	Detail(ctx context.Context, id string) (models.PlaylistDetail, error)
	AddVideo(ctx context.Context, id, ownerID, videoID string, at time.Time) error
	RemoveVideo(ctx context.Context, id, ownerID, videoID string, at time.Time) error
	Update(ctx context.Context, id, ownerID, name, description string, at time.Time) error
	Delete(ctx context.Context, id, ownerID string) (models.Playlist, error)
}
