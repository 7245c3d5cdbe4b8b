package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vidstream/backend/internal/db"
	"github.com/vidstream/backend/internal/models"
)

// pgStore holds the pool and per-operation deadline shared by the PostgreSQL repositories.
type pgStore struct {
	pool    db.Pool
	timeout time.Duration
}

// acquire bounds ctx by the store timeout and checks out a connection. The returned
// release func must be called once the caller is done with the connection.
func (s pgStore) acquire(ctx context.Context) (context.Context, *pgxpool.Conn, func(), error) {
	cancel := func() {}
	if s.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
	}
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		cancel()
		return nil, nil, nil, storeError("acquire connection", err)
	}
	return ctx, conn, func() {
		conn.Release()
		cancel()
	}, nil
}

// PostgresUserRepository provides PostgreSQL-backed persistence for users.
type PostgresUserRepository struct {
	store pgStore
}

var _ UserRepository = (*PostgresUserRepository)(nil)

// NewPostgresUserRepository constructs a user repository backed by PostgreSQL.
func NewPostgresUserRepository(pool db.Pool, timeout time.Duration) *PostgresUserRepository {
	return &PostgresUserRepository{store: pgStore{pool: pool, timeout: timeout}}
}

const userColumns = `
    u.id, u.username, u.email, u.full_name, u.avatar_url, u.avatar_id, u.cover_url, u.cover_id,
    u.password_hash, u.refresh_token, u.created_at, u.updated_at,
    ARRAY(SELECT w.video_id::TEXT FROM watch_history w WHERE w.user_id = u.id ORDER BY w.watched_at DESC)`

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID, &user.Username, &user.Email, &user.FullName,
		&user.Avatar, &user.AvatarID, &user.CoverImage, &user.CoverImageID,
		&user.Password, &user.RefreshToken, &user.CreatedAt, &user.UpdatedAt,
		&user.WatchHistory,
	)
	if err != nil {
		return models.User{}, err
	}
	if user.WatchHistory == nil {
		user.WatchHistory = []string{}
	}
	return user, nil
}

// Create persists a new user record.
func (r *PostgresUserRepository) Create(ctx context.Context, user models.User) error {
	ctx, conn, release, err := r.store.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	_, err = conn.Exec(ctx, `
        INSERT INTO users (id, username, email, full_name, avatar_url, avatar_id, cover_url, cover_id,
            password_hash, refresh_token, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
    `, user.ID, user.Username, user.Email, user.FullName, user.Avatar, user.AvatarID,
		user.CoverImage, user.CoverImageID, user.Password, user.RefreshToken, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if pgErrorCode(err) == pgUniqueViolation {
			return ErrConflict
		}
		return storeError("insert user", err)
	}
	return nil
}

func (r *PostgresUserRepository) findOne(ctx context.Context, op, where string, arg any) (models.User, error) {
	ctx, conn, release, err := r.store.acquire(ctx)
	if err != nil {
		return models.User{}, err
	}
	defer release()

	user, err := scanUser(conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users u WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, storeError(op, err)
	}
	return user, nil
}

// FindByID fetches a user by identifier.
func (r *PostgresUserRepository) FindByID(ctx context.Context, id string) (models.User, error) {
	return r.findOne(ctx, "select user by id", "u.id = $1", id)
}

// FindByUsername fetches a user by their lowercase username.
func (r *PostgresUserRepository) FindByUsername(ctx context.Context, username string) (models.User, error) {
	return r.findOne(ctx, "select user by username", "u.username = $1", username)
}

// FindByEmail fetches a user by their email address.
func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return r.findOne(ctx, "select user by email", "u.email = $1", email)
}

// FindByLogin resolves identifier as an email when it contains '@' and as a username
// otherwise. Usernames cannot contain '@', so the two never collide.
func (r *PostgresUserRepository) FindByLogin(ctx context.Context, identifier string) (models.User, error) {
	if isEmailLogin(identifier) {
		return r.FindByEmail(ctx, identifier)
	}
	return r.FindByUsername(ctx, identifier)
}

// ExistsByUsernameOrEmail reports whether either identifier is already taken.
func (r *PostgresUserRepository) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	ctx, conn, release, err := r.store.acquire(ctx)
	if err != nil {
		return false, err
	}
	defer release()

	var exists bool
	err = conn.QueryRow(ctx, `
        SELECT EXISTS (SELECT 1 FROM users WHERE username = $1 OR email = $2)
    `, username, email).Scan(&exists)
	if err != nil {
		return false, storeError("check user exists", err)
	}
	return exists, nil
}

// updateUser applies set to the row of userID. Only the named columns are written, so
// concurrent updates of different fields never overwrite each other.
func (r *PostgresUserRepository) updateUser(ctx context.Context, op, userID, set string, args ...any) error {
	ctx, conn, release, err := r.store.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	tag, err := conn.Exec(ctx, `UPDATE users SET `+set+` WHERE id = $1`, append([]any{userID}, args...)...)
	if err != nil {
		if pgErrorCode(err) == pgUniqueViolation {
			return ErrConflict
		}
		return storeError(op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateProfile changes the display name and email.
func (r *PostgresUserRepository) UpdateProfile(ctx context.Context, userID, fullName, email string, at time.Time) error {
	return r.updateUser(ctx, "update profile", userID, `full_name = $2, email = $3, updated_at = $4`, fullName, email, at)
}

// SetPassword replaces the stored password hash.
func (r *PostgresUserRepository) SetPassword(ctx context.Context, userID, hash string, at time.Time) error {
	return r.updateUser(ctx, "set password", userID, `password_hash = $2, updated_at = $3`, hash, at)
}

func (r *PostgresUserRepository) SetAvatar(ctx context.Context, userID string, ref models.MediaRef, at time.Time) error {
	return r.updateUser(ctx, "set avatar", userID, `avatar_url = $2, avatar_id = $3, updated_at = $4`, ref.URL, ref.PublicID, at)
}

func (r *PostgresUserRepository) SetCoverImage(ctx context.Context, userID string, ref models.MediaRef, at time.Time) error {
	return r.updateUser(ctx, "set cover image", userID, `cover_url = $2, cover_id = $3, updated_at = $4`, ref.URL, ref.PublicID, at)
}

// SetRefreshToken stores the user's current refresh token. An empty token revokes it.
func (r *PostgresUserRepository) SetRefreshToken(ctx context.Context, userID, token string) error {
	return r.updateUser(ctx, "set refresh token", userID, `refresh_token = $2`, token)
}

// SwapRefreshToken replaces current with next only while current is still the stored
// token. It reports false when another rotation or a logout got there first.
func (r *PostgresUserRepository) SwapRefreshToken(ctx context.Context, userID, current, next string) (bool, error) {
	if current == "" {
		return false, nil
	}
	ctx, conn, release, err := r.store.acquire(ctx)
	if err != nil {
		return false, err
	}
	defer release()

	tag, err := conn.Exec(ctx, `
        UPDATE users SET refresh_token = $3 WHERE id = $1 AND refresh_token = $2
    `, userID, current, next)
	if err != nil {
		return false, storeError("swap refresh token", err)
	}
	return tag.RowsAffected() == 1, nil
}

// AddToWatchHistory records that the user watched the video. Each video appears once;
// watching it again moves it to the front.
func (r *PostgresUserRepository) AddToWatchHistory(ctx context.Context, userID, videoID string, watchedAt time.Time) error {
	ctx, conn, release, err := r.store.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	_, err = conn.Exec(ctx, `
        INSERT INTO watch_history (user_id, video_id, watched_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (user_id, video_id) DO UPDATE SET watched_at = excluded.watched_at
    `, userID, videoID, watchedAt)
	if err != nil {
		if pgErrorCode(err) == pgForeignKeyViolation {
			return ErrNotFound
		}
		return storeError("insert watch history", err)
	}
	return nil
}

// WatchHistory returns the user's watched videos, most recent first, joined with owners.
func (r *PostgresUserRepository) WatchHistory(ctx context.Context, userID string) ([]models.Video, error) {
	ctx, conn, release, err := r.store.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := conn.Query(ctx, `
        SELECT `+videoColumns+`
        FROM watch_history w
        JOIN videos v ON v.id = w.video_id
        JOIN users o ON o.id = v.owner_id
        WHERE w.user_id = $1
        ORDER BY w.watched_at DESC
    `, userID)
	if err != nil {
		return nil, storeError("query watch history", err)
	}
	videos, err := pgx.CollectRows(rows, scanVideo)
	if err != nil {
		return nil, storeError("scan watch history", err)
	}
	return videos, nil
}

// ChannelProfile loads the public channel view for username, including subscription
// counts and whether viewerID subscribes to it.
func (r *PostgresUserRepository) ChannelProfile(ctx context.Context, username, viewerID string) (models.ChannelProfile, error) {
	ctx, conn, release, err := r.store.acquire(ctx)
	if err != nil {
		return models.ChannelProfile{}, err
	}
	defer release()

	var profile models.ChannelProfile
	err = conn.QueryRow(ctx, `
        SELECT u.id, u.username, u.email, u.full_name, u.avatar_url, u.cover_url,
            (SELECT count(*) FROM subscriptions s WHERE s.channel_id = u.id),
            (SELECT count(*) FROM subscriptions s WHERE s.subscriber_id = u.id),
            EXISTS (SELECT 1 FROM subscriptions s WHERE s.channel_id = u.id AND s.subscriber_id::TEXT = $2)
        FROM users u
        WHERE u.username = $1
    `, username, viewerID).Scan(
		&profile.ID, &profile.Username, &profile.Email, &profile.FullName,
		&profile.Avatar, &profile.CoverImage,
		&profile.SubscribersCount, &profile.SubscribedToCount, &profile.IsSubscribed,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ChannelProfile{}, ErrNotFound
		}
		return models.ChannelProfile{}, storeError("select channel profile", err)
	}
	return profile, nil
}
