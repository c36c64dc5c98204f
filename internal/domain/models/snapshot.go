package models

import (
	"time"

	"github.com/google/uuid"
)

// Source kinds.
const (
	SourceKindDelta      = "delta"
	SourceKindListing    = "listing"
	SourceKindClickHouse = "clickhouse"
)

// SourceDescriptor identifies a prediction table. It is built once at startup
// and never mutated.
type SourceDescriptor struct {
	Kind           string
	Name           string
	Location       string
	Columns        []string
	OrderingColumn string
	FileExtension  string
	LogDir         string
}

// DataFileRef is one readable unit of a source: a parquet object or a table
// partition. Min/MaxEventTime are zero when the backend does not know them.
type DataFileRef struct {
	Path         string    `json:"path"`
	LastModified time.Time `json:"last_modified"`
	Size         int64     `json:"size"`
	Version      int64     `json:"version"`
	MinEventTime time.Time `json:"min_event_time,omitempty"`
	MaxEventTime time.Time `json:"max_event_time,omitempty"`
	// PartitionValues are columns stored in the path instead of the file.
	PartitionValues map[string]string `json:"partition_values,omitempty"`
}

// HasMaxEventTime reports whether backend metadata bounds the file.
func (r DataFileRef) HasMaxEventTime() bool {
	return !r.MaxEventTime.IsZero()
}

// Batch is the decoded content of one data file, in its native schema.
// Rows[i][j] belongs to Columns[j]. Timestamps are time.Time in UTC.
type Batch struct {
	Source  string
	Columns []string
	Rows    [][]any
}

// ColumnIndex returns the position of a column or -1.
func (b *Batch) ColumnIndex(name string) int {
	for i, c := range b.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// File statuses reported in diagnostics.
const (
	FileRead      = "read"
	FileSkipped   = "skipped"
	FilePruned    = "pruned"
	FileUnvisited = "unvisited"
)

// FileOutcome records what happened to one listed file during a fetch.
type FileOutcome struct {
	Path   string `json:"path"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
	Rows   int    `json:"rows"`
}

// Snapshot is an immutable result of one fetch.
type Snapshot struct {
	Key          string          `json:"key"`
	FetchID      uuid.UUID       `json:"fetch_id"`
	Source       string          `json:"source"`
	Rows         []PredictionRow `json:"rows"`
	ComputedAt   time.Time       `json:"computed_at"`
	FilesListed  int             `json:"files_listed"`
	FilesRead    int             `json:"files_read"`
	FilesSkipped int             `json:"files_skipped"`
	Diagnostics  []FileOutcome   `json:"diagnostics,omitempty"`
}

// Latest returns the newest row, if any.
func (s *Snapshot) Latest() (PredictionRow, bool) {
	if s == nil || len(s.Rows) == 0 {
		return PredictionRow{}, false
	}
	return s.Rows[0], true
}

// SnapshotParams are the knobs of one snapshot computation. LookbackSet
// marks Lookback as explicit, so a zero Lookback means unbounded instead of
// the configured default.
type SnapshotParams struct {
	Columns     []string
	Lookback    time.Duration
	LookbackSet bool
	RowCap      int
	Refresh     bool
}
