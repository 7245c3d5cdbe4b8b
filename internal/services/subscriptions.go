package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/vidstream/backend/internal/apperr"
	"github.com/vidstream/backend/internal/logging"
	"github.com/vidstream/backend/internal/metrics"
	"github.com/vidstream/backend/internal/models"
	"github.com/vidstream/backend/internal/repositories"
)

// Subscriptions implements the subscribe toggle and the paginated subscription views.
type Subscriptions struct {
	Users   UserLookup
	Edges   SubscriptionStore
	NowFunc func() time.Time
}

// Toggle subscribes subscriberID to channelID, or unsubscribes when the edge exists.
func (s Subscriptions) Toggle(ctx context.Context, subscriberID, channelID string) (state models.SubscriptionState, err error) {
	ctx, span := logging.StartSpan(ctx, "subscriptions.toggle", "channel_id", channelID)
	defer func() { span.End(err) }()

	subscriberID, err = parseID("subscriber id", subscriberID)
	if err != nil {
		return "", err
	}
	channelID, err = parseID("channel id", channelID)
	if err != nil {
		return "", err
	}
	if subscriberID == channelID {
		return "", apperr.SelfReference("you cannot subscribe to your own channel")
	}

	if _, err := s.Users.FindByID(ctx, channelID); err != nil {
		return "", storeErr(err, "channel not found")
	}

	state, err = s.Edges.Toggle(ctx, models.Subscription{
		ID:           uuid.NewString(),
		SubscriberID: subscriberID,
		ChannelID:    channelID,
		CreatedAt:    nowUTC(s.NowFunc),
	})
	if err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return "", apperr.SelfReference("you cannot subscribe to your own channel")
		}
		return "", storeErr(err, "channel not found")
	}

	metrics.SubscriptionTogglesTotal.WithLabelValues(string(state)).Inc()
	logging.FromContext(ctx).Info("subscription toggled", "channelId", channelID, "state", state)
	return state, nil
}

// Subscribers lists the users subscribed to channelID, newest first.
func (s Subscriptions) Subscribers(ctx context.Context, channelID string, page models.PageRequest) (models.Page[models.SubscriberEntry], error) {
	channelID, err := parseID("channel id", channelID)
	if err != nil {
		return models.Page[models.SubscriberEntry]{}, err
	}
	if _, err := s.Users.FindByID(ctx, channelID); err != nil {
		return models.Page[models.SubscriberEntry]{}, storeErr(err, "channel not found")
	}

	result, err := s.Edges.ListSubscribers(ctx, channelID, page.Normalize(models.DefaultLimit))
	if err != nil {
		return models.Page[models.SubscriberEntry]{}, storeErr(err, "channel not found")
	}
	return result, nil
}

// SubscribedChannels lists the channels subscriberID follows, newest first.
func (s Subscriptions) SubscribedChannels(ctx context.Context, subscriberID string, page models.PageRequest) (models.Page[models.ChannelEntry], error) {
	subscriberID, err := parseID("subscriber id", subscriberID)
	if err != nil {
		return models.Page[models.ChannelEntry]{}, err
	}
	if _, err := s.Users.FindByID(ctx, subscriberID); err != nil {
		return models.Page[models.ChannelEntry]{}, storeErr(err, "subscriber not found")
	}

	result, err := s.Edges.ListChannels(ctx, subscriberID, page.Normalize(models.DefaultLimit))
	if err != nil {
		return models.Page[models.ChannelEntry]{}, storeErr(err, "subscriber not found")
	}
	return result, nil
}
