// Package blobstore stores attachment payloads outside the database.
// Requests reference attachments by key; the dispatch worker loads the
// payload just before building the outgoing message.
package blobstore

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// ErrNotFound is returned when a requested attachment does not exist.
var ErrNotFound = errors.New("blobstore: attachment not found")

// Store defines the interface for attachment storage backends.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Config holds configuration for creating a Store.
type Config struct {
	Type       string // "local" or "s3"
	Path       string // base directory for local store
	S3Bucket   string
	S3Prefix   string
	S3Endpoint string
	S3Region   string
}

// New creates a Store based on the provided configuration.
// If Type is empty or unsupported, it defaults to local storage and logs a warning.
func New(cfg Config, logger zerolog.Logger) (Store, error) {
	switch cfg.Type {
	case "local":
		return NewLocalStore(cfg.Path)
	case "s3":
		return NewS3StoreFromConfig(cfg)
	default:
		logger.Warn().
			Str("type", cfg.Type).
			Msg("unsupported or empty blobstore type, defaulting to local")
		return NewLocalStore(cfg.Path)
	}
}
