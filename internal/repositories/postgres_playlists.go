package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/vidstream/backend/internal/db"
	"github.com/vidstream/backend/internal/models"
)

// PostgresPlaylistRepository provides PostgreSQL-backed persistence for playlists.
type PostgresPlaylistRepository struct {
	store pgStore
}

var _ PlaylistRepository = (*PostgresPlaylistRepository)(nil)

// NewPostgresPlaylistRepository constructs a playlist repository backed by PostgreSQL.
func NewPostgresPlaylistRepository(pool db.Pool, timeout time.Duration) *PostgresPlaylistRepository {
	return &PostgresPlaylistRepository{store: pgStore{pool: pool, timeout: timeout}}
}

const playlistVideoIDs = `
    ARRAY(SELECT pv.video_id::TEXT FROM playlist_videos pv WHERE pv.playlist_id = p.id ORDER BY pv.position)`

// Create persists a new, empty playlist.
func (r *PostgresPlaylistRepository) Create(ctx context.Context, playlist models.Playlist) error {
	ctx, conn, release, err := r.store.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	_, err = conn.Exec(ctx, `
        INSERT INTO playlists (id, owner_id, name, description, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, playlist.ID, playlist.OwnerID, playlist.Name, playlist.Description, playlist.CreatedAt, playlist.UpdatedAt)
	if err != nil {
		if pgErrorCode(err) == pgForeignKeyViolation {
			return ErrNotFound
		}
		return storeError("insert playlist", err)
	}
	return nil
}

// FindOwned fetches a playlist with its ordered video ids when ownerID owns it.
func (r *PostgresPlaylistRepository) FindOwned(ctx context.Context, id, ownerID string) (models.Playlist, error) {
	ctx, conn, release, err := r.store.acquire(ctx)
	if err != nil {
		return models.Playlist{}, err
	}
	defer release()

	var p models.Playlist
	err = conn.QueryRow(ctx, `
        SELECT p.id, p.owner_id, p.name, p.description, p.created_at, p.updated_at, `+playlistVideoIDs+`
        FROM playlists p
        WHERE p.id = $1 AND p.owner_id = $2
    `, id, ownerID).Scan(&p.ID, &p.OwnerID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt, &p.Videos)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Playlist{}, ErrNotFound
		}
		return models.Playlist{}, storeError("select playlist", err)
	}
	if p.Videos == nil {
		p.Videos = []string{}
	}
	return p, nil
}

// ListByOwner returns every playlist owned by ownerID, newest first, with the owner summary.
func (r *PostgresPlaylistRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.OwnedPlaylist, error) {
	ctx, conn, release, err := r.store.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := conn.Query(ctx, `
        SELECT p.id, p.owner_id, p.name, p.description, p.created_at, p.updated_at, `+playlistVideoIDs+`,
            u.username, u.full_name, u.avatar_url
        FROM playlists p
        JOIN users u ON u.id = p.owner_id
        WHERE p.owner_id = $1
        ORDER BY p.created_at DESC, p.id DESC
    `, ownerID)
	if err != nil {
		return nil, storeError("query playlists", err)
	}
	playlists, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.OwnedPlaylist, error) {
		var p models.OwnedPlaylist
		err := row.Scan(&p.ID, &p.OwnerID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt, &p.Videos,
			&p.Owner.Username, &p.Owner.FullName, &p.Owner.Avatar)
		p.Owner.ID = p.OwnerID
		if p.Videos == nil {
			p.Videos = []string{}
		}
		return p, err
	})
	if err != nil {
		return nil, storeError("scan playlists", err)
	}
	return playlists, nil
}

// Detail loads the joined playlist view: owner summary plus each member video in order.
// Header and members are fetched in one batch.
func (r *PostgresPlaylistRepository) Detail(ctx context.Context, id string) (models.PlaylistDetail, error) {
	ctx, conn, release, err := r.store.acquire(ctx)
	if err != nil {
		return models.PlaylistDetail{}, err
	}
	defer release()

	batch := &pgx.Batch{}
	batch.Queue(`
        SELECT p.id, p.name, p.description, p.created_at, u.id, u.username, u.full_name, u.avatar_url
        FROM playlists p
        JOIN users u ON u.id = p.owner_id
        WHERE p.id = $1
    `, id)
	batch.Queue(`
        SELECT v.id, v.title, v.thumbnail_url, v.thumbnail_public_id, v.duration, v.video_url, v.video_public_id
        FROM playlist_videos pv
        JOIN videos v ON v.id = pv.video_id
        WHERE pv.playlist_id = $1
        ORDER BY pv.position
    `, id)

	results := conn.SendBatch(ctx, batch)
	defer results.Close()

	var d models.PlaylistDetail
	err = results.QueryRow().Scan(&d.ID, &d.Name, &d.Description, &d.CreatedAt,
		&d.Owner.ID, &d.Owner.Username, &d.Owner.FullName, &d.Owner.Avatar)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.PlaylistDetail{}, ErrNotFound
		}
		return models.PlaylistDetail{}, storeError("select playlist detail", err)
	}
	rows, err := results.Query()
	if err != nil {
		return models.PlaylistDetail{}, storeError("query playlist videos", err)
	}
	d.Videos, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.PlaylistVideo, error) {
		var v models.PlaylistVideo
		err := row.Scan(&v.ID, &v.Title, &v.Thumbnail.URL, &v.Thumbnail.PublicID, &v.Duration,
			&v.VideoFile.URL, &v.VideoFile.PublicID)
		return v, err
	})
	if err != nil {
		return models.PlaylistDetail{}, storeError("scan playlist videos", err)
	}
	if d.Videos == nil {
		d.Videos = []models.PlaylistVideo{}
	}
	return d, nil
}

// AddVideo appends videoID to the playlist. A video already present yields ErrConflict;
// a missing video or a playlist not owned by ownerID yields ErrNotFound.
func (r *PostgresPlaylistRepository) AddVideo(ctx context.Context, id, ownerID, videoID string, at time.Time) error {
	ctx, conn, release, err := r.store.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	err = pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
            UPDATE playlists SET updated_at = $3 WHERE id = $1 AND owner_id = $2
        `, id, ownerID, at)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		_, err = tx.Exec(ctx, `
            INSERT INTO playlist_videos (playlist_id, video_id, position, added_at)
            SELECT $1, $2, COALESCE(max(position), 0) + 1, $3
            FROM playlist_videos WHERE playlist_id = $1
        `, id, videoID, at)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		switch pgErrorCode(err) {
		case pgUniqueViolation:
			return ErrConflict
		case pgForeignKeyViolation:
			return ErrNotFound
		}
		return storeError("add playlist video", err)
	}
	return nil
}

// RemoveVideo drops videoID from the playlist. Removing an absent video is a no-op.
func (r *PostgresPlaylistRepository) RemoveVideo(ctx context.Context, id, ownerID, videoID string, at time.Time) error {
	ctx, conn, release, err := r.store.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	err = pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
            UPDATE playlists SET updated_at = $3 WHERE id = $1 AND owner_id = $2
        `, id, ownerID, at)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		_, err = tx.Exec(ctx, `DELETE FROM playlist_videos WHERE playlist_id = $1 AND video_id = $2`, id, videoID)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return storeError("remove playlist video", err)
	}
	return nil
}

// Update renames a playlist owned by ownerID.
func (r *PostgresPlaylistRepository) Update(ctx context.Context, id, ownerID, name, description string, at time.Time) error {
	ctx, conn, release, err := r.store.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	tag, err := conn.Exec(ctx, `
        UPDATE playlists SET name = $3, description = $4, updated_at = $5
        WHERE id = $1 AND owner_id = $2
    `, id, ownerID, name, description, at)
	if err != nil {
		return storeError("update playlist", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a playlist owned by ownerID and returns what was deleted.
func (r *PostgresPlaylistRepository) Delete(ctx context.Context, id, ownerID string) (models.Playlist, error) {
	ctx, conn, release, err := r.store.acquire(ctx)
	if err != nil {
		return models.Playlist{}, err
	}
	defer release()

	var p models.Playlist
	err = conn.QueryRow(ctx, `
        DELETE FROM playlists WHERE id = $1 AND owner_id = $2
        RETURNING id, owner_id, name, description, created_at, updated_at
    `, id, ownerID).Scan(&p.ID, &p.OwnerID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Playlist{}, ErrNotFound
		}
		return models.Playlist{}, storeError("delete playlist", err)
	}
	p.Videos = []string{}
	return p, nil
}
