// Package objstore lists and reads objects under a prefix from blob storage.
package objstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("objstore: object not found")

// ObjectInfo is the listing metadata of one object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Store is a read-only view of a blob container.
type Store interface {
	// List returns every object whose key starts with prefix.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	// Get downloads the whole object.
	Get(ctx context.Context, key string) ([]byte, error)
	// Location is a human readable root, used in logs and diagnostics.
	Location() string
}
