// Package storage provides object storage backends for uploaded media.
package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/vidstream/backend/internal/config"
)

// ObjectStorage defines the object operations the media store needs from a backend.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
	// URL returns the public location of key.
	URL(key string) string
	Bucket() string
}

// Open constructs the backend selected by cfg.Backend. The returned close function
// releases any client resources and is never nil.
func Open(ctx context.Context, cfg config.MediaConfig) (ObjectStorage, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case config.MediaBackendS3, "":
		s, err := NewS3Storage(ctx, cfg)
		if err != nil {
			return nil, noop, err
		}
		return s, noop, nil
	case config.MediaBackendMinIO:
		m, err := NewMinioStorage(cfg)
		if err != nil {
			return nil, noop, err
		}
		return m, noop, nil
	case config.MediaBackendGCS:
		g, err := NewGCSStorage(ctx, cfg)
		if err != nil {
			return nil, noop, err
		}
		return g, g.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown media backend %q", cfg.Backend)
	}
}

func joinURL(base, key string) string {
	for len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	for len(key) > 0 && key[0] == '/' {
		key = key[1:]
	}
	return base + "/" + key
}
