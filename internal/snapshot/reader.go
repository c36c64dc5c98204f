// Package snapshot builds bounded, newest-first snapshots of a prediction
// table without loading the whole table.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"SignalView/internal/domain/models"
	domrepo "SignalView/internal/domain/repository"
	applogger "SignalView/pkg/logger"
)

// Fetch outcomes reported to metrics.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Reader runs the list, read, project, filter, accumulate pipeline over one
// source.
type Reader struct {
	src             domrepo.Source
	columns         []string
	ordering        string
	fetchTimeout    time.Duration
	trustWriteOrder bool
	metrics         domrepo.Metrics
	l               *applogger.Logger
	now             func() time.Time
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithFetchTimeout bounds one Read call.
func WithFetchTimeout(d time.Duration) ReaderOption {
	return func(r *Reader) { r.fetchTimeout = d }
}

// WithTrustWriteOrder lets last-modified stand in for a file's newest
// event time when deciding to stop early.
func WithTrustWriteOrder(v bool) ReaderOption {
	return func(r *Reader) { r.trustWriteOrder = v }
}

func WithMetrics(m domrepo.Metrics) ReaderOption {
	return func(r *Reader) { r.metrics = m }
}

func WithLogger(l *applogger.Logger) ReaderOption {
	return func(r *Reader) {
		if l != nil {
			r.l = l
		}
	}
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) ReaderOption {
	return func(r *Reader) { r.now = now }
}

// NewReader validates the descriptor and builds a reader.
func NewReader(src domrepo.Source, desc models.SourceDescriptor, opts ...ReaderOption) (*Reader, error) {
	if src == nil {
		return nil, ConfigError("source is nil")
	}
	if desc.OrderingColumn == "" {
		return nil, ConfigError("ordering column is empty")
	}
	if !containsString(desc.Columns, desc.OrderingColumn) {
		return nil, ConfigError("columns %v do not include ordering column %q", desc.Columns, desc.OrderingColumn)
	}
	r := &Reader{
		src:      src,
		columns:  append([]string(nil), desc.Columns...),
		ordering: desc.OrderingColumn,
		l:        applogger.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// SourceName is the identity of the underlying source.
func (r *Reader) SourceName() string { return r.src.Name() }

// Columns returns the default projection.
func (r *Reader) Columns() []string { return append([]string(nil), r.columns...) }

// Read computes a fresh snapshot. Partial results are never returned.
func (r *Reader) Read(ctx context.Context, p models.SnapshotParams) (*models.Snapshot, error) {
	start := time.Now()
	snap, err := r.read(ctx, p)
	if r.metrics != nil {
		outcome := OutcomeOK
		if err != nil {
			outcome = string(KindOf(err))
			if outcome == "" {
				outcome = OutcomeError
			}
		}
		r.metrics.RecordFetch(r.src.Name(), outcome, time.Since(start).Seconds())
		if snap != nil {
			r.metrics.RecordSnapshotRows(r.src.Name(), len(snap.Rows))
		}
	}
	if err != nil {
		r.l.Warn("snapshot fetch failed",
			applogger.String("source", r.src.Name()),
			applogger.Duration("elapsed", time.Since(start)),
			applogger.Error(err),
		)
		return nil, err
	}
	r.l.Info("snapshot fetched",
		applogger.String("source", r.src.Name()),
		applogger.String("fetch_id", snap.FetchID.String()),
		applogger.Int("rows", len(snap.Rows)),
		applogger.Int("files_listed", snap.FilesListed),
		applogger.Int("files_read", snap.FilesRead),
		applogger.Int("files_skipped", snap.FilesSkipped),
		applogger.Duration("elapsed", time.Since(start)),
	)
	return snap, nil
}

func (r *Reader) read(ctx context.Context, p models.SnapshotParams) (*models.Snapshot, error) {
	n := p.RowCap
	if n <= 0 {
		return nil, ConfigError("row cap must be positive, got %d", n)
	}
	if p.Lookback < 0 {
		return nil, ConfigError("lookback cannot be negative")
	}
	columns := p.Columns
	if len(columns) == 0 {
		columns = r.columns
	}
	if !containsString(columns, r.ordering) {
		return nil, ConfigError("columns %v do not include ordering column %q", columns, r.ordering)
	}

	if r.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.fetchTimeout)
		defer cancel()
	}

	files, err := r.src.ListFiles(ctx)
	if err != nil {
		if cerr := r.ctxError(ctx, "listing files"); cerr != nil {
			return nil, cerr
		}
		return nil, NewError(KindSourceUnavailable, err, "list %s", r.src.Name())
	}
	if len(files) == 0 {
		return nil, NewError(KindSourceEmpty, nil, "%s has no data files", r.src.Name())
	}

	now := r.now().UTC()
	cutoff := Cutoff(p.Lookback, now)
	budget := len(files)
	if b, ok := r.src.(domrepo.FileBudgeter); ok {
		if fb := b.FileBudget(p.Lookback); fb > 0 && fb < budget {
			budget = fb
		}
	}

	var (
		running   []models.PredictionRow
		outcomes  = make([]models.FileOutcome, 0, len(files))
		attempted int
		read      int
		skipped   int
		lastErr   error
	)
	record := func(o models.FileOutcome) {
		outcomes = append(outcomes, o)
		if r.metrics != nil {
			r.metrics.RecordFileOutcome(r.src.Name(), o.Status)
		}
	}
	stopAt := func(i int, reason string) {
		for _, f := range files[i:] {
			record(models.FileOutcome{Path: f.Path, Status: models.FileUnvisited, Reason: reason})
		}
	}

	bounds := r.remainingBounds(files)
	for i, f := range files {
		if cerr := r.ctxError(ctx, "reading files"); cerr != nil {
			return nil, cerr
		}
		if !cutoff.IsZero() && f.HasMaxEventTime() && f.MaxEventTime.Before(cutoff) {
			record(models.FileOutcome{Path: f.Path, Status: models.FilePruned, Reason: "newest row older than lookback"})
			continue
		}
		if floor := Floor(running, n); !floor.IsZero() {
			if ub := bounds[i]; !ub.IsZero() && ub.Before(floor) {
				stopAt(i, "row cap reached")
				break
			}
			if ub, ok := r.upperBound(f); ok && ub.Before(floor) {
				record(models.FileOutcome{Path: f.Path, Status: models.FilePruned, Reason: "newest row older than row cap floor"})
				continue
			}
		}
		if attempted >= budget {
			stopAt(i, "file budget exhausted")
			break
		}
		attempted++

		batch, err := r.src.ReadFile(ctx, f, domrepo.ReadOptions{Columns: columns, Since: cutoff})
		if err != nil {
			if cerr := r.ctxError(ctx, "reading "+f.Path); cerr != nil {
				return nil, cerr
			}
			lastErr = err
			skipped++
			r.l.Warn("skipping unreadable file",
				applogger.String("source", r.src.Name()),
				applogger.String("file", f.Path),
				applogger.Error(err),
			)
			record(models.FileOutcome{Path: f.Path, Status: models.FileSkipped, Reason: err.Error()})
			continue
		}

		proj, missing := Project(batch, columns)
		if containsString(missing, r.ordering) {
			if read == 0 {
				return nil, NewError(KindMissingOrderingColumn, nil,
					"column %q not found in %s; available columns: %v", r.ordering, f.Path, batch.Columns)
			}
			skipped++
			r.l.Warn("skipping file without ordering column",
				applogger.String("source", r.src.Name()),
				applogger.String("file", f.Path),
				applogger.String("column", r.ordering),
			)
			record(models.FileOutcome{Path: f.Path, Status: models.FileSkipped, Reason: "missing ordering column"})
			continue
		}
		if len(missing) > 0 {
			r.l.Debug("file lacks some columns",
				applogger.String("file", f.Path),
				applogger.Strings("missing", missing),
			)
		}

		rows, dropped := DecodeRows(proj, r.ordering)
		if dropped > 0 {
			r.l.Debug("dropped rows with unreadable event time",
				applogger.String("file", f.Path),
				applogger.Int("dropped", dropped),
			)
		}
		rows = Filter(rows, p.Lookback, now)
		running = Accumulate(running, rows, n)
		read++
		record(models.FileOutcome{Path: f.Path, Status: models.FileRead, Rows: len(rows)})
	}

	if read == 0 && attempted > 0 {
		return nil, NewError(KindSourceUnavailable, lastErr, "none of %d attempted files could be read", attempted)
	}

	return &models.Snapshot{
		FetchID:      uuid.New(),
		Source:       r.src.Name(),
		Rows:         Finalize(running),
		ComputedAt:   now,
		FilesListed:  len(files),
		FilesRead:    read,
		FilesSkipped: skipped,
		Diagnostics:  outcomes,
	}, nil
}

// upperBound is the newest event time a file can hold, when known.
func (r *Reader) upperBound(f models.DataFileRef) (time.Time, bool) {
	if f.HasMaxEventTime() {
		return f.MaxEventTime, true
	}
	if r.trustWriteOrder && !f.LastModified.IsZero() {
		return f.LastModified, true
	}
	return time.Time{}, false
}

// remainingBounds returns, for each position, the newest event time any
// file from there to the end can hold. Zero means some file in that suffix
// has no known bound.
func (r *Reader) remainingBounds(files []models.DataFileRef) []time.Time {
	out := make([]time.Time, len(files))
	var (
		hi      time.Time
		unknown bool
	)
	for i := len(files) - 1; i >= 0; i-- {
		ub, ok := r.upperBound(files[i])
		if !ok {
			unknown = true
		}
		if !unknown {
			if ub.After(hi) {
				hi = ub
			}
			out[i] = hi
		}
	}
	return out
}

func (r *Reader) ctxError(ctx context.Context, stage string) error {
	err := ctx.Err()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return NewError(KindFetchTimeout, err, "%s exceeded %s while %s", r.src.Name(), r.fetchTimeout, stage)
	default:
		return fmt.Errorf("snapshot %s: %w", r.src.Name(), err)
	}
}

func containsString(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
