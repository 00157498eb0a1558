package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/vidtalk-engine/internal/config"
)

// ErrNotExist is wrapped by Open when the object is missing.
var ErrNotExist = fs.ErrNotExist

// ErrNoURL is returned by URL when the backend cannot address objects over HTTP.
var ErrNoURL = errors.New("storage: no public URL configured")

// ObjectStore abstracts the bucket holding uploaded videos and derived audio.
// Keys are slash-separated, e.g. videos/{id}/audio.mp3.
type ObjectStore interface {
	// Save stores the object read from body.
	Save(ctx context.Context, key string, body io.Reader, contentType string) error

	// Open returns a reader for the object.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// URL returns an HTTP URL the object can be downloaded from: a public
	// URL when one is configured, otherwise a presigned one.
	URL(ctx context.Context, key string) (string, error)

	// Exists checks if the object exists.
	Exists(ctx context.Context, key string) bool

	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error

	// Type returns "local" or "s3".
	Type() string
}

// New creates an ObjectStore based on config. localDir and localURL configure
// the filesystem backend used when S3 is not enabled. Returns an error if S3
// is configured but unreachable.
func New(cfg config.S3Config, localDir, localURL string, log zerolog.Logger) (ObjectStore, error) {
	if !cfg.Enabled() {
		return NewLocalStore(localDir, localURL), nil
	}

	s3store, err := NewS3Store(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("S3 init failed: %w", err)
	}

	// Startup validation: verify credentials and bucket access
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s3store.HeadBucket(ctx); err != nil {
		return nil, fmt.Errorf("S3 startup check failed (bucket=%q endpoint=%q): %w",
			cfg.Bucket, cfg.Endpoint, err)
	}
	log.Info().Str("bucket", cfg.Bucket).Str("endpoint", cfg.Endpoint).Msg("S3 connection verified")

	return s3store, nil
}
