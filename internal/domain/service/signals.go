package service

import (
	"context"
	"time"

	"SignalView/internal/domain/models"
)

// Classifier maps a probability to a trading signal.
type Classifier interface {
	Classify(p float64) (models.Signal, error)
}

// SnapshotProvider serves cached snapshots of the configured source.
type SnapshotProvider interface {
	GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch func(context.Context) (*models.Snapshot, error)) (*models.Snapshot, error)
	Invalidate(key string)
	InvalidatePrefix(prefix string) int
}
