package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vidstream/backend/internal/auth"
	"github.com/vidstream/backend/internal/config"
	"github.com/vidstream/backend/internal/db"
	"github.com/vidstream/backend/internal/handlers"
	"github.com/vidstream/backend/internal/media"
	"github.com/vidstream/backend/internal/middleware"
	"github.com/vidstream/backend/internal/repositories"
	"github.com/vidstream/backend/internal/services"
	"github.com/vidstream/backend/internal/storage"
)

type dependencies struct {
	handlers.Dependencies
	objects storage.ObjectStorage
}

type repositorySet struct {
	users         repositories.UserRepository
	videos        repositories.VideoRepository
	subscriptions repositories.SubscriptionRepository
	playlists     repositories.PlaylistRepository
	health        handlers.Pinger
}

// buildDependencies wires together concrete implementations used by the HTTP handlers.
// The returned cleanup releases the database pool and storage clients.
func buildDependencies(ctx context.Context, cfg config.Config, logger *slog.Logger) (dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	repos, closeRepos, err := openRepositories(ctx, cfg)
	if err != nil {
		return dependencies{}, cleanup, err
	}
	closers = append(closers, closeRepos)

	objects, closeObjects, err := storage.Open(ctx, cfg.Media)
	if err != nil {
		cleanup()
		return dependencies{}, func() {}, fmt.Errorf("open media storage: %w", err)
	}
	closers = append(closers, func() {
		if err := closeObjects(); err != nil {
			logger.Warn("close media storage", "error", err)
		}
	})

	uploader := media.NewStore(objects, media.NewFFProbe(cfg.FFProbePath), cfg.Media.Timeout)
	tokens := auth.NewTokenService(auth.TokenConfig{
		AccessSecret:  cfg.Tokens.AccessSecret,
		RefreshSecret: cfg.Tokens.RefreshSecret,
		AccessTTL:     cfg.Tokens.AccessTTL,
		RefreshTTL:    cfg.Tokens.RefreshTTL,
		Issuer:        cfg.Tokens.Issuer,
	}, repos.users)

	deps := dependencies{
		Dependencies: handlers.Dependencies{
			Logger: logger,
			Accounts: services.Accounts{
				Users:  repos.users,
				Tokens: tokens,
				Media:  uploader,
			},
			Subscriptions: services.Subscriptions{
				Users: repos.users,
				Edges: repos.subscriptions,
			},
			Playlists: services.Playlists{
				Store:  repos.playlists,
				Videos: repos.videos,
				Users:  repos.users,
			},
			Videos: services.Videos{
				Store:   repos.videos,
				Users:   repos.users,
				History: repos.users,
				Media:   uploader,
			},
			Tokens:      tokens,
			Identities:  repos.users,
			AuthLimiter: middleware.NewIPRateLimiter(cfg.AuthRateLimit, time.Minute, cfg.AuthRateLimit, 10*time.Minute),
			Uploads:     handlers.Uploads{Dir: cfg.UploadDir, MaxBytes: cfg.MaxUploadBytes},
			Cookies:     handlers.CookieOptions{Secure: cfg.CookieSecure, Domain: cfg.CookieDomain},
			Health:      repos.health,
		},
		objects: objects,
	}
	return deps, cleanup, nil
}

func openRepositories(ctx context.Context, cfg config.Config) (repositorySet, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		store := repositories.NewMemoryStore()
		return repositorySet{
			users:         store.Users(),
			videos:        store.Videos(),
			subscriptions: store.Subscriptions(),
			playlists:     store.Playlists(),
			health:        store,
		}, func() {}, nil
	case config.StoreDriverPostgres, "":
		pool, err := db.Connect(ctx, cfg.DatabaseURL, cfg.DatabaseConns)
		if err != nil {
			return repositorySet{}, func() {}, err
		}
		return repositorySet{
			users:         repositories.NewPostgresUserRepository(pool, cfg.StoreTimeout),
			videos:        repositories.NewPostgresVideoRepository(pool, cfg.StoreTimeout),
			subscriptions: repositories.NewPostgresSubscriptionRepository(pool, cfg.StoreTimeout),
			playlists:     repositories.NewPostgresPlaylistRepository(pool, cfg.StoreTimeout),
			health:        pool,
		}, pool.Close, nil
	default:
		return repositorySet{}, func() {}, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
