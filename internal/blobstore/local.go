package blobstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// LocalStore keeps attachments as files under a base directory. Keys are
// engine-generated UUIDs, so they are used directly as filenames.
type LocalStore struct {
	basePath string
}

// NewLocalStore creates a LocalStore at the given base path, creating the
// directory if it does not exist.
func NewLocalStore(basePath string) (*LocalStore, error) {
	if err := os.MkdirAll(basePath, 0o750); err != nil {
		return nil, fmt.Errorf("blobstore: create base directory: %w", err)
	}
	return &LocalStore{basePath: basePath}, nil
}

// Put writes attachment data using an atomic write pattern, so a crash
// mid-write never leaves a truncated attachment behind.
func (s *LocalStore) Put(_ context.Context, key string, data []byte) error {
	finalPath := filepath.Join(s.basePath, key)

	tmp, err := os.CreateTemp(s.basePath, ".tmp-"+key+"-*")
	if err != nil {
		return fmt.Errorf("blobstore: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("blobstore: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("blobstore: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, finalPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("blobstore: rename temp file: %w", err)
	}
	return nil
}

// Get reads attachment data. Returns ErrNotFound if the key does not exist.
func (s *LocalStore) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.basePath, key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("blobstore: read file: %w", err)
	}
	return data, nil
}

// Delete removes an attachment. Returns nil if the key does not exist.
func (s *LocalStore) Delete(_ context.Context, key string) error {
	err := os.Remove(filepath.Join(s.basePath, key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("blobstore: remove file: %w", err)
	}
	return nil
}
