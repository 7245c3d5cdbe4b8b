package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vidstream/backend/internal/models"
)

// SubscriptionHandler implements channel subscription endpoints.
type SubscriptionHandler struct {
	Subscriptions SubscriptionService
}

type toggleResponse struct {
	ChannelID string                   `json:"channelId"`
	State     models.SubscriptionState `json:"state"`
}

// Toggle handles POST /subscriptions/c/{channelId}.
func (h SubscriptionHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	user, ok := identity(w, r)
	if !ok {
		return
	}
	channelID := chi.URLParam(r, "channelId")
	state, err := h.Subscriptions.Toggle(r.Context(), user.ID, channelID)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	respondData(r.Context(), w, http.StatusOK, string(state)+" successfully", toggleResponse{ChannelID: channelID, State: state})
}

// Subscribers handles GET /subscriptions/c/{channelId}.
func (h SubscriptionHandler) Subscribers(w http.ResponseWriter, r *http.Request) {
	page, err := h.Subscriptions.Subscribers(r.Context(), chi.URLParam(r, "channelId"), pageRequest(r))
	if err != nil {
		RespondError(w, r, err)
		return
	}
	respondData(r.Context(), w, http.StatusOK, "subscribers fetched", page)
}

// Channels handles GET /subscriptions/u/{subscriberId}.
func (h SubscriptionHandler) Channels(w http.ResponseWriter, r *http.Request) {
	page, err := h.Subscriptions.SubscribedChannels(r.Context(), chi.URLParam(r, "subscriberId"), pageRequest(r))
	if err != nil {
		RespondError(w, r, err)
		return
	}
	respondData(r.Context(), w, http.StatusOK, "subscribed channels fetched", page)
}
