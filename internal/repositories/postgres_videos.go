package repositories

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/vidstream/backend/internal/db"
	"github.com/vidstream/backend/internal/models"
)

// PostgresVideoRepository provides PostgreSQL-backed persistence for videos.
type PostgresVideoRepository struct {
	store pgStore
}

var _ VideoRepository = (*PostgresVideoRepository)(nil)

// NewPostgresVideoRepository constructs a video repository backed by PostgreSQL.
func NewPostgresVideoRepository(pool db.Pool, timeout time.Duration) *PostgresVideoRepository {
	return &PostgresVideoRepository{store: pgStore{pool: pool, timeout: timeout}}
}

// videoColumns expects videos aliased as v and their owner as o.
const videoColumns = `
    v.id, v.owner_id, v.title, v.description, v.video_url, v.video_public_id,
    v.thumbnail_url, v.thumbnail_public_id, v.duration, v.is_published, v.views,
    v.created_at, v.updated_at, o.username, o.full_name, o.avatar_url`

// videoSortColumns whitelists the ORDER BY expressions accepted from callers.
var videoSortColumns = map[string]string{
	models.VideoSortCreatedAt: "v.created_at",
	models.VideoSortTitle:     "v.title",
	models.VideoSortViews:     "v.views",
	models.VideoSortDuration:  "v.duration",
}

func scanVideo(row pgx.CollectableRow) (models.Video, error) {
	var (
		video models.Video
		owner models.UserSummary
	)
	err := row.Scan(
		&video.ID, &video.OwnerID, &video.Title, &video.Description,
		&video.VideoFile.URL, &video.VideoFile.PublicID,
		&video.Thumbnail.URL, &video.Thumbnail.PublicID,
		&video.Duration, &video.IsPublished, &video.Views,
		&video.CreatedAt, &video.UpdatedAt,
		&owner.Username, &owner.FullName, &owner.Avatar,
	)
	if err != nil {
		return models.Video{}, err
	}
	owner.ID = video.OwnerID
	video.Owner = &owner
	return video, nil
}

// Create persists a new video record.
func (r *PostgresVideoRepository) Create(ctx context.Context, video models.Video) error {
	ctx, conn, release, err := r.store.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	_, err = conn.Exec(ctx, `
        INSERT INTO videos (id, owner_id, title, description, video_url, video_public_id,
            thumbnail_url, thumbnail_public_id, duration, is_published, views, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
    `, video.ID, video.OwnerID, video.Title, video.Description, video.VideoFile.URL, video.VideoFile.PublicID,
		video.Thumbnail.URL, video.Thumbnail.PublicID, video.Duration, video.IsPublished, video.Views,
		video.CreatedAt, video.UpdatedAt)
	if err != nil {
		switch pgErrorCode(err) {
		case pgUniqueViolation:
			return ErrConflict
		case pgForeignKeyViolation:
			return ErrNotFound
		}
		return storeError("insert video", err)
	}
	return nil
}

// FindByID fetches a video joined with its owner.
func (r *PostgresVideoRepository) FindByID(ctx context.Context, id string) (models.Video, error) {
	ctx, conn, release, err := r.store.acquire(ctx)
	if err != nil {
		return models.Video{}, err
	}
	defer release()

	rows, err := conn.Query(ctx, `
        SELECT `+videoColumns+`
        FROM videos v
        JOIN users o ON o.id = v.owner_id
        WHERE v.id = $1
    `, id)
	if err != nil {
		return models.Video{}, storeError("select video", err)
	}
	video, err := pgx.CollectExactlyOneRow(rows, scanVideo)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Video{}, ErrNotFound
		}
		return models.Video{}, storeError("scan video", err)
	}
	return video, nil
}

// List returns one page of an owner's videos. The total count and the page are sent
// as a single batch.
func (r *PostgresVideoRepository) List(ctx context.Context, query models.VideoQuery) (models.Page[models.Video], error) {
	page := query.Page
	column, ok := videoSortColumns[query.SortBy]
	if !ok {
		column = videoSortColumns[models.VideoSortCreatedAt]
	}
	direction := "ASC"
	if query.SortDesc {
		direction = "DESC"
	}

	ctx, conn, release, err := r.store.acquire(ctx)
	if err != nil {
		return models.Page[models.Video]{}, err
	}
	defer release()

	const filter = `v.owner_id = $1 AND ($2 = '' OR v.title ILIKE $2)`
	pattern := ""
	if search := strings.TrimSpace(query.Search); search != "" {
		pattern = "%" + likeEscaper.Replace(search) + "%"
	}

	batch := &pgx.Batch{}
	batch.Queue(`SELECT count(*) FROM videos v WHERE `+filter, query.OwnerID, pattern)
	batch.Queue(`
        SELECT `+videoColumns+`
        FROM videos v
        JOIN users o ON o.id = v.owner_id
        WHERE `+filter+`
        ORDER BY `+column+` `+direction+`, v.id `+direction+`
        OFFSET $3 LIMIT $4
    `, query.OwnerID, pattern, page.Skip(), page.Limit)

	results := conn.SendBatch(ctx, batch)
	defer results.Close()

	var total int
	if err := results.QueryRow().Scan(&total); err != nil {
		return models.Page[models.Video]{}, storeError("count videos", err)
	}
	rows, err := results.Query()
	if err != nil {
		return models.Page[models.Video]{}, storeError("query videos", err)
	}
	videos, err := pgx.CollectRows(rows, scanVideo)
	if err != nil {
		return models.Page[models.Video]{}, storeError("scan videos", err)
	}
	return models.NewPage(page, total, videos), nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Update persists the mutable fields of a video.
func (r *PostgresVideoRepository) Update(ctx context.Context, video models.Video) error {
	ctx, conn, release, err := r.store.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	tag, err := conn.Exec(ctx, `
        UPDATE videos
        SET title = $2, description = $3, video_url = $4, video_public_id = $5,
            thumbnail_url = $6, thumbnail_public_id = $7, duration = $8, is_published = $9, updated_at = $10
        WHERE id = $1
    `, video.ID, video.Title, video.Description, video.VideoFile.URL, video.VideoFile.PublicID,
		video.Thumbnail.URL, video.Thumbnail.PublicID, video.Duration, video.IsPublished, video.UpdatedAt)
	if err != nil {
		return storeError("update video", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a video record.
func (r *PostgresVideoRepository) Delete(ctx context.Context, id string) error {
	ctx, conn, release, err := r.store.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	tag, err := conn.Exec(ctx, `DELETE FROM videos WHERE id = $1`, id)
	if err != nil {
		return storeError("delete video", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementViews adds one view to the video and returns the new count.
func (r *PostgresVideoRepository) IncrementViews(ctx context.Context, id string) (int64, error) {
	ctx, conn, release, err := r.store.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	var views int64
	err = conn.QueryRow(ctx, `UPDATE videos SET views = views + 1 WHERE id = $1 RETURNING views`, id).Scan(&views)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, storeError("increment views", err)
	}
	return views, nil
}
