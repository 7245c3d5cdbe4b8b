package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/vidstream/backend/internal/db"
	"github.com/vidstream/backend/internal/models"
)

// PostgresSubscriptionRepository provides PostgreSQL-backed persistence for subscriptions.
type PostgresSubscriptionRepository struct {
	store pgStore
}

var _ SubscriptionRepository = (*PostgresSubscriptionRepository)(nil)

// NewPostgresSubscriptionRepository constructs a subscription repository backed by PostgreSQL.
func NewPostgresSubscriptionRepository(pool db.Pool, timeout time.Duration) *PostgresSubscriptionRepository {
	return &PostgresSubscriptionRepository{store: pgStore{pool: pool, timeout: timeout}}
}

// Toggle removes the edge when it exists and creates it otherwise. Each statement is
// atomic on its own and the unique pair constraint absorbs concurrent inserts, so the
// store never holds more than one edge per pair.
func (r *PostgresSubscriptionRepository) Toggle(ctx context.Context, edge models.Subscription) (models.SubscriptionState, error) {
	ctx, conn, release, err := r.store.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	tag, err := conn.Exec(ctx, `
        DELETE FROM subscriptions WHERE subscriber_id = $1 AND channel_id = $2
    `, edge.SubscriberID, edge.ChannelID)
	if err != nil {
		return "", storeError("delete subscription", err)
	}
	if tag.RowsAffected() > 0 {
		return models.Unsubscribed, nil
	}

	_, err = conn.Exec(ctx, `
        INSERT INTO subscriptions (id, subscriber_id, channel_id, created_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (subscriber_id, channel_id) DO NOTHING
    `, edge.ID, edge.SubscriberID, edge.ChannelID, edge.CreatedAt)
	if err != nil {
		switch pgErrorCode(err) {
		case pgForeignKeyViolation:
			return "", ErrNotFound
		case pgCheckViolation:
			return "", ErrConflict
		}
		return "", storeError("insert subscription", err)
	}
	return models.Subscribed, nil
}

// ListSubscribers returns one page of the users subscribed to channelID, newest first.
func (r *PostgresSubscriptionRepository) ListSubscribers(ctx context.Context, channelID string, page models.PageRequest) (models.Page[models.SubscriberEntry], error) {
	entries, total, err := r.listEdges(ctx, "channel_id", "subscriber_id", channelID, page)
	if err != nil {
		return models.Page[models.SubscriberEntry]{}, err
	}
	items := make([]models.SubscriberEntry, 0, len(entries))
	for _, e := range entries {
		items = append(items, models.SubscriberEntry{ID: e.id, CreatedAt: e.createdAt, Subscriber: e.user})
	}
	return models.NewPage(page, total, items), nil
}

// ListChannels returns one page of the channels subscriberID follows, newest first.
func (r *PostgresSubscriptionRepository) ListChannels(ctx context.Context, subscriberID string, page models.PageRequest) (models.Page[models.ChannelEntry], error) {
	entries, total, err := r.listEdges(ctx, "subscriber_id", "channel_id", subscriberID, page)
	if err != nil {
		return models.Page[models.ChannelEntry]{}, err
	}
	items := make([]models.ChannelEntry, 0, len(entries))
	for _, e := range entries {
		items = append(items, models.ChannelEntry{ID: e.id, CreatedAt: e.createdAt, Channel: e.user})
	}
	return models.NewPage(page, total, items), nil
}

type edgeRow struct {
	id        string
	createdAt time.Time
	user      models.UserSummary
}

// listEdges filters subscriptions on matchColumn and joins the user on the other end
// through joinColumn. Both column names are fixed by the callers above.
func (r *PostgresSubscriptionRepository) listEdges(ctx context.Context, matchColumn, joinColumn, id string, page models.PageRequest) ([]edgeRow, int, error) {
	ctx, conn, release, err := r.store.acquire(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer release()

	batch := &pgx.Batch{}
	batch.Queue(fmt.Sprintf(`SELECT count(*) FROM subscriptions WHERE %s = $1`, matchColumn), id)
	batch.Queue(fmt.Sprintf(`
        SELECT s.id, s.created_at, u.id, u.username, u.email, u.full_name, u.avatar_url
        FROM subscriptions s
        JOIN users u ON u.id = s.%s
        WHERE s.%s = $1
        ORDER BY s.created_at DESC, s.id DESC
        OFFSET $2 LIMIT $3
    `, joinColumn, matchColumn), id, page.Skip(), page.Limit)

	results := conn.SendBatch(ctx, batch)
	defer results.Close()

	var total int
	if err := results.QueryRow().Scan(&total); err != nil {
		return nil, 0, storeError("count subscriptions", err)
	}
	rows, err := results.Query()
	if err != nil {
		return nil, 0, storeError("query subscriptions", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (edgeRow, error) {
		var e edgeRow
		err := row.Scan(&e.id, &e.createdAt, &e.user.ID, &e.user.Username, &e.user.Email, &e.user.FullName, &e.user.Avatar)
		return e, err
	})
	if err != nil {
		return nil, 0, storeError("scan subscriptions", err)
	}
	return entries, total, nil
}
