package handlers

import (
	"context"
	"net/http"
	"time"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler responds with service health information.
type HealthHandler struct {
	Store   Pinger
	Timeout time.Duration
}

// Handle implements GET /healthz. A configured store is pinged and reported as degraded
// when unreachable.
func (h HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		respondJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	if err := h.Store.Ping(ctx); err != nil {
		respondJSON(r.Context(), w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "store": "unreachable"})
		return
	}
	respondJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok", "store": "ok"})
}
