package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by Download when the key does not exist.
var ErrNotFound = errors.New("object not found")

// ObjectStorage defines the interface for export destinations
type ObjectStorage interface {
	// Upload writes an object, replacing any existing one
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download opens an object for reading
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// GetURL returns the URL or path for accessing an object
	GetURL(key string) string

	// Delete deletes an object
	Delete(ctx context.Context, key string) error

	// Exists checks if an object exists
	Exists(ctx context.Context, key string) (bool, error)
}
