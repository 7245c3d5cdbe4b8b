package repositories

import (
	"context"

	"github.com/vidstream/backend/internal/models"
)

// SubscriptionRepository defines data access for subscriber -> channel edges.
type SubscriptionRepository interface {
	Toggle(ctx context.Context, edge models.Subscription) (models.SubscriptionState, error)
	ListSubscribers(ctx context.Context, channelID string, page models.PageRequest) (models.Page[models.SubscriberEntry], error)
	ListChannels(ctx context.Context, subscriberID string, page models.PageRequest) (models.Page[models.ChannelEntry], error)
}
