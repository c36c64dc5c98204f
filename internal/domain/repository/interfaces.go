package repository

import (
	"context"
	"time"

	"SignalView/internal/domain/models"
)

// ReadOptions narrow what a source decodes from one file.
type ReadOptions struct {
	// Columns hints the wanted columns. Sources may return more.
	Columns []string
	// Since is a pushdown hint; zero means no bound. Rows older than
	// Since may still be returned and are filtered downstream.
	Since time.Time
}

// Source is a prediction table that can be enumerated file by file.
type Source interface {
	// Name is the identity used in cache keys and logs.
	Name() string
	// ListFiles returns live data files, newest first.
	ListFiles(ctx context.Context) ([]models.DataFileRef, error)
	// ReadFile decodes one data file in its native schema.
	ReadFile(ctx context.Context, ref models.DataFileRef, opts ReadOptions) (*models.Batch, error)
}

// FileBudgeter caps how many files one fetch may read from a source.
type FileBudgeter interface {
	FileBudget(lookback time.Duration) int
}

type Metrics interface {
	RecordFetch(source, outcome string, seconds float64)
	RecordFileOutcome(source, status string)
	RecordCache(result string)
	RecordSnapshotRows(source string, rows int)
}
