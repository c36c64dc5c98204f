package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"SignalView/internal/domain/models"
	domsvc "SignalView/internal/domain/service"
	applogger "SignalView/pkg/logger"
	"SignalView/pkg/util"
)

// modelRunIDWidth is how much of model_run_id the KPI summary shows.
const modelRunIDWidth = 24

// SnapshotReader computes uncached snapshots.
type SnapshotReader interface {
	Read(ctx context.Context, p models.SnapshotParams) (*models.Snapshot, error)
	SourceName() string
	Columns() []string
}

// SnapshotDefaults fill unset request parameters.
type SnapshotDefaults struct {
	RowCap   int
	Lookback time.Duration
	TTL      time.Duration
}

// SnapshotUseCase serves cached, labeled snapshots of one source.
type SnapshotUseCase struct {
	reader     SnapshotReader
	cache      domsvc.SnapshotProvider
	classifier domsvc.Classifier
	defaults   SnapshotDefaults
	l          *applogger.Logger
}

func NewSnapshotUseCase(reader SnapshotReader, cache domsvc.SnapshotProvider, classifier domsvc.Classifier, defaults SnapshotDefaults) *SnapshotUseCase {
	if defaults.TTL <= 0 {
		defaults.TTL = 30 * time.Second
	}
	if defaults.RowCap <= 0 {
		defaults.RowCap = 2000
	}
	return &SnapshotUseCase{
		reader:     reader,
		cache:      cache,
		classifier: classifier,
		defaults:   defaults,
		l:          applogger.Nop(),
	}
}

// SetLogger injects a structured logger.
func (uc *SnapshotUseCase) SetLogger(l *applogger.Logger) {
	if l != nil {
		uc.l = l
	}
}

// Source is the name of the served source.
func (uc *SnapshotUseCase) Source() string { return uc.reader.SourceName() }

// Params applies defaults to a request.
func (uc *SnapshotUseCase) Params(p models.SnapshotParams) models.SnapshotParams {
	if p.RowCap <= 0 {
		p.RowCap = uc.defaults.RowCap
	}
	if !p.LookbackSet {
		p.Lookback = uc.defaults.Lookback
		p.LookbackSet = true
	}
	if len(p.Columns) == 0 {
		p.Columns = uc.reader.Columns()
	}
	return p
}

// Key is the cache identity of a parameter set: source, columns, lookback
// and row cap.
func (uc *SnapshotUseCase) Key(p models.SnapshotParams) string {
	p = uc.Params(p)
	return fmt.Sprintf("%s|cols=%s|lookback=%s|cap=%d",
		uc.reader.SourceName(), strings.Join(p.Columns, ","), p.Lookback, p.RowCap)
}

// GetSnapshot returns the snapshot for p, fetching it at most once per TTL.
func (uc *SnapshotUseCase) GetSnapshot(ctx context.Context, p models.SnapshotParams) (*models.Snapshot, error) {
	p = uc.Params(p)
	key := uc.Key(p)
	if p.Refresh {
		uc.cache.Invalidate(key)
	}
	return uc.cache.GetOrFetch(ctx, key, uc.defaults.TTL, func(ctx context.Context) (*models.Snapshot, error) {
		return uc.reader.Read(ctx, p)
	})
}

// Label classifies each row. Rows without a probability get no signal;
// out of range probabilities are labeled INVALID.
func (uc *SnapshotUseCase) Label(rows []models.PredictionRow) []models.LabeledRow {
	out := make([]models.LabeledRow, len(rows))
	for i, r := range rows {
		out[i] = models.LabeledRow{PredictionRow: r, Signal: uc.signalOf(r)}
	}
	return out
}

// KPIs summarizes the snapshot for p.
func (uc *SnapshotUseCase) KPIs(ctx context.Context, p models.SnapshotParams) (*models.KPIs, error) {
	snap, err := uc.GetSnapshot(ctx, p)
	if err != nil {
		return nil, err
	}
	return uc.Summarize(snap), nil
}

// Summarize computes KPIs of an already fetched snapshot.
func (uc *SnapshotUseCase) Summarize(snap *models.Snapshot) *models.KPIs {
	k := &models.KPIs{
		RowsLoaded:   len(snap.Rows),
		Distribution: map[models.Signal]int{},
		ComputedAt:   snap.ComputedAt,
		Source:       snap.Source,
	}
	for _, r := range snap.Rows {
		if s := uc.signalOf(r); s != models.SignalNone {
			k.Distribution[s]++
		}
	}
	latest, ok := snap.Latest()
	if !ok {
		return k
	}
	t := latest.EventTime
	k.LatestEventTime = &t
	if latest.ProbaUp != nil {
		p := *latest.ProbaUp
		k.LatestProba = &p
		k.LatestSignal = uc.signalOf(latest)
	}
	if latest.ModelRunID != nil {
		k.ModelRunID = util.Truncate(*latest.ModelRunID, modelRunIDWidth)
	}
	return k
}

// Series returns (event time, proba_up) pairs in ascending time, optionally
// for one symbol.
func (uc *SnapshotUseCase) Series(ctx context.Context, p models.SnapshotParams, symbol string) ([]models.SeriesPoint, error) {
	snap, err := uc.GetSnapshot(ctx, p)
	if err != nil {
		return nil, err
	}
	out := make([]models.SeriesPoint, 0, len(snap.Rows))
	for _, r := range snap.Rows {
		if r.ProbaUp == nil {
			continue
		}
		if symbol != "" && r.Symbol != symbol {
			continue
		}
		out = append(out, models.SeriesPoint{EventTime: r.EventTime, ProbaUp: *r.ProbaUp, Symbol: r.Symbol})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].EventTime.Before(out[j].EventTime) })
	return out, nil
}

// Invalidate forces the next request for p to refetch.
func (uc *SnapshotUseCase) Invalidate(p models.SnapshotParams) {
	uc.cache.Invalidate(uc.Key(p))
}

// InvalidateSource drops every cached snapshot of a source. An empty name
// means the served source. Other names are ignored.
func (uc *SnapshotUseCase) InvalidateSource(source string) int {
	if source == "" {
		source = uc.reader.SourceName()
	}
	if source != uc.reader.SourceName() {
		return 0
	}
	n := uc.cache.InvalidatePrefix(source + "|")
	uc.l.Info("snapshot cache invalidated",
		applogger.String("source", source),
		applogger.Int("entries", n),
	)
	return n
}

func (uc *SnapshotUseCase) signalOf(r models.PredictionRow) models.Signal {
	if r.ProbaUp == nil {
		return models.SignalNone
	}
	s, err := uc.classifier.Classify(*r.ProbaUp)
	if err != nil {
		return models.SignalInvalid
	}
	return s
}
