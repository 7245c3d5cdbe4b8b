// Package media uploads user media to object storage and removes it again.
package media

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vidstream/backend/internal/apperr"
	"github.com/vidstream/backend/internal/logging"
	"github.com/vidstream/backend/internal/metrics"
	"github.com/vidstream/backend/internal/models"
	"github.com/vidstream/backend/internal/storage"
)

// Kind selects how an uploaded file is stored and whether its duration is probed.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// DurationProber measures the playback length of a local media file.
type DurationProber interface {
	Duration(ctx context.Context, path string) (int, error)
}

// Asset is the durable reference returned for an uploaded file.
type Asset struct {
	models.MediaRef
	Duration int
}

// Store uploads local files to an object storage backend. Every backend call is
// bounded by the configured timeout, and failures surface as apperr.KindUnavailable.
type Store struct {
	backend storage.ObjectStorage
	prober  DurationProber
	timeout time.Duration
	newKey  func() string
}

// NewStore constructs a Store. A zero timeout leaves calls bounded only by ctx.
func NewStore(backend storage.ObjectStorage, prober DurationProber, timeout time.Duration) *Store {
	if backend == nil {
		panic("media: object storage backend must not be nil")
	}
	return &Store{
		backend: backend,
		prober:  prober,
		timeout: timeout,
		newKey:  uuid.NewString,
	}
}

// Upload stores the file at path and returns its public reference. Video uploads also
// carry their duration in seconds.
func (s *Store) Upload(ctx context.Context, path string, kind Kind) (asset Asset, err error) {
	defer func() {
		metrics.MediaUploadsTotal.WithLabelValues(string(kind), metrics.Outcome(err)).Inc()
	}()

	file, err := os.Open(path)
	if err != nil {
		return Asset{}, fmt.Errorf("open upload: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return Asset{}, fmt.Errorf("stat upload: %w", err)
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	ext := strings.ToLower(filepath.Ext(path))
	key := fmt.Sprintf("%ss/%s%s", kind, s.newKey(), ext)

	if kind == KindVideo {
		if s.prober == nil {
			return Asset{}, unavailable("probe duration", errors.New("no duration prober configured"))
		}
		asset.Duration, err = s.prober.Duration(ctx, path)
		if err != nil {
			return Asset{}, unavailable("probe duration", err)
		}
	}

	if err := s.backend.Put(ctx, key, file, info.Size(), mime.TypeByExtension(ext)); err != nil {
		return Asset{}, unavailable("put object", err)
	}

	logging.FromContext(ctx).Info("media uploaded", "kind", kind, "public_id", key, "bytes", info.Size())

	asset.URL = s.backend.URL(key)
	asset.PublicID = key
	return asset, nil
}

// Delete removes a previously uploaded object. An empty public id is a no-op.
func (s *Store) Delete(ctx context.Context, publicID string) error {
	if publicID == "" {
		return nil
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	if err := s.backend.Delete(ctx, publicID); err != nil {
		return unavailable("delete object", err)
	}
	return nil
}

func (s *Store) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func unavailable(op string, err error) error {
	return apperr.Unavailable("media store unavailable", fmt.Errorf("%s: %w", op, err))
}
