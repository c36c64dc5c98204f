package snapshot

import (
	"context"
	"errors"
	"sync"
	"time"

	"SignalView/internal/domain/models"
	domrepo "SignalView/internal/domain/repository"
)

var base = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

var testColumns = []string{"symbol", "event_time_ts", "proba_up", "model_run_id"}

func testDescriptor() models.SourceDescriptor {
	return models.SourceDescriptor{
		Kind:           models.SourceKindListing,
		Name:           "preds",
		Columns:        testColumns,
		OrderingColumn: "event_time_ts",
	}
}

// fakeSource serves canned batches keyed by path.
type fakeSource struct {
	mu      sync.Mutex
	files   []models.DataFileRef
	batches map[string]*models.Batch
	errs    map[string]error
	listErr error
	block   bool
	reads   []string
	since   []time.Time
}

func newFakeSource() *fakeSource {
	return &fakeSource{batches: map[string]*models.Batch{}, errs: map[string]error{}}
}

func (s *fakeSource) add(ref models.DataFileRef, b *models.Batch) {
	b.Source = ref.Path
	s.files = append(s.files, ref)
	s.batches[ref.Path] = b
}

func (s *fakeSource) fail(path string, err error) {
	s.files = append(s.files, models.DataFileRef{Path: path})
	s.errs[path] = err
}

func (s *fakeSource) Name() string { return "preds" }

func (s *fakeSource) ListFiles(context.Context) ([]models.DataFileRef, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]models.DataFileRef(nil), s.files...), nil
}

func (s *fakeSource) ReadFile(ctx context.Context, ref models.DataFileRef, opts domrepo.ReadOptions) (*models.Batch, error) {
	s.mu.Lock()
	s.reads = append(s.reads, ref.Path)
	s.since = append(s.since, opts.Since)
	s.mu.Unlock()
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err := s.errs[ref.Path]; err != nil {
		return nil, err
	}
	b, ok := s.batches[ref.Path]
	if !ok {
		return nil, errors.New("no such file")
	}
	cp := &models.Batch{Source: b.Source, Columns: b.Columns, Rows: make([][]any, len(b.Rows))}
	for i, r := range b.Rows {
		cp.Rows[i] = append([]any(nil), r...)
	}
	return cp, nil
}

func (s *fakeSource) readPaths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.reads...)
}

// budgetSource adds a fixed file budget.
type budgetSource struct {
	*fakeSource
	budget int
}

func (s budgetSource) FileBudget(time.Duration) int { return s.budget }

// seqBatch has n rows one minute apart ending at newest, newest first.
func seqBatch(symbol string, newest time.Time, n int) *models.Batch {
	b := &models.Batch{Columns: []string{"symbol", "event_time_ts", "proba_up"}}
	for i := 0; i < n; i++ {
		b.Rows = append(b.Rows, []any{symbol, newest.Add(-time.Duration(i) * time.Minute), 0.5})
	}
	return b
}

func rowsAt(times ...time.Time) []models.PredictionRow {
	out := make([]models.PredictionRow, len(times))
	for i, t := range times {
		out[i] = models.PredictionRow{EventTime: t}
	}
	return out
}

type fakeMetrics struct {
	mu       sync.Mutex
	outcomes []string
	files    map[string]int
	cache    map[string]int
	rows     int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{files: map[string]int{}, cache: map[string]int{}}
}

func (m *fakeMetrics) RecordFetch(_, outcome string, _ float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func (m *fakeMetrics) RecordFileOutcome(_, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[status]++
}

func (m *fakeMetrics) RecordCache(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[result]++
}

func (m *fakeMetrics) RecordSnapshotRows(_ string, rows int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = rows
}
