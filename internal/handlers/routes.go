package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vidstream/backend/internal/apperr"
	"github.com/vidstream/backend/internal/middleware"
)

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Logger        *slog.Logger
	Accounts      AccountService
	Subscriptions SubscriptionService
	Playlists     PlaylistService
	Videos        VideoService
	Tokens        middleware.AccessVerifier
	Identities    middleware.IdentityLoader
	AuthLimiter   middleware.RateLimiter
	Uploads       Uploads
	Cookies       CookieOptions
	Health        Pinger
	Metrics       prometheus.Gatherer
}

// NewRouter wires every endpoint under /api/v1 plus /healthz and /metrics.
func NewRouter(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	users := UserHandler{Accounts: deps.Accounts, Uploads: deps.Uploads, Cookies: deps.Cookies}
	subscriptions := SubscriptionHandler{Subscriptions: deps.Subscriptions}
	playlists := PlaylistHandler{Playlists: deps.Playlists}
	videos := VideoHandler{Videos: deps.Videos, Uploads: deps.Uploads}
	health := HealthHandler{Store: deps.Health}

	authenticate := middleware.Authenticate(deps.Tokens, deps.Identities, RespondError)
	limit := func(scope string) func(http.Handler) http.Handler {
		return middleware.RateLimit(deps.AuthLimiter, scope, RespondError)
	}

	router := chi.NewRouter()
	router.Use(
		chimw.RealIP,
		middleware.RequestLogger(logger),
		middleware.Metrics,
	)
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		RespondError(w, r, apperr.NotFound("route not found"))
	})

	router.Get("/healthz", health.Handle)
	if deps.Metrics != nil {
		router.Handle("/metrics", promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Route("/users", func(r chi.Router) {
			r.With(limit("register")).Post("/register", users.Register)
			r.With(limit("login")).Post("/login", users.Login)
			r.With(limit("refresh")).Post("/refresh-token", users.Refresh)

			r.Group(func(r chi.Router) {
				r.Use(authenticate)
				r.Post("/logout", users.Logout)
				r.Post("/change-password", users.ChangePassword)
				r.Get("/current-user", users.CurrentUser)
				r.Patch("/update-account", users.UpdateAccount)
				r.Patch("/avatar", users.UpdateAvatar)
				r.Patch("/cover-image", users.UpdateCoverImage)
				r.Get("/c/{username}", users.ChannelProfile)
				r.Get("/history", users.WatchHistory)
			})
		})

		r.Route("/subscriptions", func(r chi.Router) {
			r.Use(authenticate)
			r.Post("/c/{channelId}", subscriptions.Toggle)
			r.Get("/c/{channelId}", subscriptions.Subscribers)
			r.Get("/u/{subscriberId}", subscriptions.Channels)
		})

		r.Route("/playlists", func(r chi.Router) {
			r.Get("/user/{userId}", playlists.ListByOwner)
			r.Group(func(r chi.Router) {
				r.Use(authenticate)
				r.Post("/", playlists.Create)
				r.Get("/{playlistId}", playlists.Detail)
				r.Patch("/{playlistId}", playlists.Update)
				r.Delete("/{playlistId}", playlists.Delete)
				r.Post("/{playlistId}/videos/{videoId}", playlists.AddVideo)
				r.Delete("/{playlistId}/videos/{videoId}", playlists.RemoveVideo)
			})
		})

		r.Route("/videos", func(r chi.Router) {
			r.Use(authenticate)
			r.Get("/", videos.List)
			r.Post("/", videos.Publish)
			r.Get("/{videoId}", videos.Get)
			r.Patch("/{videoId}", videos.Update)
			r.Delete("/{videoId}", videos.Delete)
			r.Patch("/{videoId}/publish", videos.TogglePublish)
			r.Post("/{videoId}/watch", videos.Watch)
		})
	})

	return router
}
