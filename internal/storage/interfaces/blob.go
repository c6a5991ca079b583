package interfaces

import (
	"context"
	"io"
)

// BlobStorage defines the interface for blob/object storage operations
type BlobStorage interface {
	// Put stores a blob with the given key, replacing any existing blob
	Put(ctx context.Context, key string, data io.Reader) error

	// Get retrieves a blob by key
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes a blob by key
	Delete(ctx context.Context, key string) error

	// Exists checks if a blob exists
	Exists(ctx context.Context, key string) (bool, error)

	// Close releases the underlying client
	Close() error
}
