package repository

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"SignalView/internal/domain/models"
	domrepo "SignalView/internal/domain/repository"
	applogger "SignalView/pkg/logger"
	"SignalView/pkg/objstore"
	"SignalView/pkg/util"
)

// ErrNoDeltaLog is returned when the table has no readable transaction log.
var ErrNoDeltaLog = errors.New("delta: transaction log not found")

var (
	commitRe     = regexp.MustCompile(`^(\d{20})\.json$`)
	checkpointRe = regexp.MustCompile(`^(\d{20})\.checkpoint(?:\.\d{10}\.\d{10})?\.parquet$`)
)

var checkpointColumns = []string{"add.path", "add.size", "add.modificationTime", "add.stats"}

// DeltaSource lists the live files of a Delta table by replaying its
// transaction log (checkpoint + newer JSON commits).
type DeltaSource struct {
	store    objstore.Store
	name     string
	prefix   string
	logDir   string
	ordering string
	l        *applogger.Logger
}

func NewDeltaSource(store objstore.Store, desc models.SourceDescriptor, prefix string) *DeltaSource {
	logDir := desc.LogDir
	if logDir == "" {
		logDir = "_delta_log"
	}
	return &DeltaSource{
		store:    store,
		name:     desc.Name,
		prefix:   strings.Trim(prefix, "/"),
		logDir:   logDir,
		ordering: desc.OrderingColumn,
		l:        applogger.Nop(),
	}
}

// SetLogger injects a structured logger.
func (s *DeltaSource) SetLogger(l *applogger.Logger) {
	if l != nil {
		s.l = l
	}
}

func (s *DeltaSource) Name() string { return s.name }

type deltaFile struct {
	ref     models.DataFileRef
	version int64
}

func (s *DeltaSource) ListFiles(ctx context.Context) ([]models.DataFileRef, error) {
	logPrefix := s.join(s.logDir) + "/"
	objs, err := s.store.List(ctx, logPrefix)
	if err != nil {
		return nil, fmt.Errorf("list delta log: %w", err)
	}

	commits := map[int64]string{}
	checkpoints := map[int64][]string{}
	for _, o := range objs {
		base := path.Base(o.Key)
		if m := commitRe.FindStringSubmatch(base); m != nil {
			v, _ := strconv.ParseInt(m[1], 10, 64)
			commits[v] = o.Key
			continue
		}
		if m := checkpointRe.FindStringSubmatch(base); m != nil {
			v, _ := strconv.ParseInt(m[1], 10, 64)
			checkpoints[v] = append(checkpoints[v], o.Key)
		}
	}
	if len(commits) == 0 && len(checkpoints) == 0 {
		return nil, fmt.Errorf("%w under %s", ErrNoDeltaLog, logPrefix)
	}

	live := map[string]deltaFile{}
	start := int64(-1)
	if v, ok := s.lastCheckpoint(ctx, logPrefix); ok {
		parts := checkpoints[v]
		if len(parts) == 0 {
			return nil, fmt.Errorf("delta checkpoint %d listed in _last_checkpoint but missing", v)
		}
		sort.Strings(parts)
		for _, p := range parts {
			if err := s.loadCheckpoint(ctx, p, v, live); err != nil {
				return nil, err
			}
		}
		start = v
	}

	versions := make([]int64, 0, len(commits))
	for v := range commits {
		if v > start {
			versions = append(versions, v)
		}
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })
	for _, v := range versions {
		if err := s.applyCommit(ctx, commits[v], v, live); err != nil {
			return nil, err
		}
	}

	out := make([]deltaFile, 0, len(live))
	for _, f := range live {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.version != b.version {
			return a.version > b.version
		}
		if !a.ref.LastModified.Equal(b.ref.LastModified) {
			return a.ref.LastModified.After(b.ref.LastModified)
		}
		return a.ref.Path > b.ref.Path
	})

	refs := make([]models.DataFileRef, len(out))
	for i, f := range out {
		refs[i] = f.ref
	}
	s.l.Debug("delta log replayed",
		applogger.String("source", s.name),
		applogger.Int("commits", len(versions)),
		applogger.Int64("checkpoint", start),
		applogger.Int("live_files", len(refs)),
	)
	return refs, nil
}

func (s *DeltaSource) ReadFile(ctx context.Context, ref models.DataFileRef, opts domrepo.ReadOptions) (*models.Batch, error) {
	b, err := s.store.Get(ctx, ref.Path)
	if err != nil {
		return nil, err
	}
	batch, err := DecodeParquet(ref.Path, b, opts.Columns)
	if err != nil {
		return nil, err
	}
	addPartitionColumns(batch, ref.PartitionValues, opts.Columns)
	return batch, nil
}

func (s *DeltaSource) lastCheckpoint(ctx context.Context, logPrefix string) (int64, bool) {
	b, err := s.store.Get(ctx, logPrefix+"_last_checkpoint")
	if err != nil {
		if !errors.Is(err, objstore.ErrNotFound) {
			s.l.Warn("delta _last_checkpoint unreadable, replaying commits",
				applogger.String("source", s.name), applogger.Error(err))
		}
		return 0, false
	}
	v := gjson.GetBytes(b, "version")
	if !v.Exists() {
		return 0, false
	}
	return v.Int(), true
}

func (s *DeltaSource) loadCheckpoint(ctx context.Context, key string, version int64, live map[string]deltaFile) error {
	b, err := s.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("read checkpoint %s: %w", key, err)
	}
	batch, err := DecodeParquet(key, b, checkpointColumns)
	if err != nil {
		return fmt.Errorf("decode checkpoint %s: %w", key, err)
	}
	pathIdx := batch.ColumnIndex("add.path")
	if pathIdx < 0 {
		return fmt.Errorf("checkpoint %s has no add.path column", key)
	}
	sizeIdx := batch.ColumnIndex("add.size")
	modIdx := batch.ColumnIndex("add.modificationTime")
	statsIdx := batch.ColumnIndex("add.stats")

	for _, row := range batch.Rows {
		p, _ := row[pathIdx].(string)
		if p == "" {
			continue
		}
		f := deltaFile{version: version}
		f.ref.Path = s.resolve(p)
		f.ref.Version = version
		if sizeIdx >= 0 {
			f.ref.Size, _ = row[sizeIdx].(int64)
		}
		if modIdx >= 0 {
			if ms, ok := row[modIdx].(int64); ok {
				f.ref.LastModified = time.UnixMilli(ms).UTC()
			}
		}
		if statsIdx >= 0 {
			if st, ok := row[statsIdx].(string); ok {
				f.ref.MinEventTime, f.ref.MaxEventTime = s.statsBounds(st)
			}
		}
		live[f.ref.Path] = f
	}
	return nil
}

func (s *DeltaSource) applyCommit(ctx context.Context, key string, version int64, live map[string]deltaFile) error {
	b, err := s.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("read commit %s: %w", key, err)
	}
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !gjson.Valid(line) {
			return fmt.Errorf("commit %s: invalid json action", key)
		}
		action := gjson.Parse(line)
		if add := action.Get("add"); add.Exists() {
			p := add.Get("path").String()
			if p == "" {
				continue
			}
			f := deltaFile{version: version}
			f.ref.Path = s.resolve(p)
			f.ref.Version = version
			f.ref.Size = add.Get("size").Int()
			if ms := add.Get("modificationTime"); ms.Exists() {
				f.ref.LastModified = time.UnixMilli(ms.Int()).UTC()
			}
			if st := add.Get("stats"); st.Exists() {
				f.ref.MinEventTime, f.ref.MaxEventTime = s.statsBounds(st.String())
			}
			if pv := add.Get("partitionValues"); pv.IsObject() {
				f.ref.PartitionValues = map[string]string{}
				pv.ForEach(func(k, v gjson.Result) bool {
					f.ref.PartitionValues[k.String()] = v.String()
					return true
				})
			}
			live[f.ref.Path] = f
			continue
		}
		if rm := action.Get("remove"); rm.Exists() {
			delete(live, s.resolve(rm.Get("path").String()))
		}
	}
	return nil
}

// statsPrecision is the resolution of timestamps in add.stats.
const statsPrecision = time.Millisecond

// statsBounds extracts min/max of the ordering column from add.stats.
// Missing or unparsable stats give zero times, meaning "unknown". The max
// is rounded up so it never falls below a row the file holds.
func (s *DeltaSource) statsBounds(stats string) (time.Time, time.Time) {
	if stats == "" || !gjson.Valid(stats) {
		return time.Time{}, time.Time{}
	}
	key := gjsonEscape(s.ordering)
	var lo, hi time.Time
	if v := gjson.Get(stats, "minValues."+key); v.Exists() {
		lo, _ = util.ParseTime(v.String())
	}
	if v := gjson.Get(stats, "maxValues."+key); v.Exists() {
		if t, ok := util.ParseTime(v.String()); ok {
			// stats are truncated to milliseconds
			hi = t.Add(statsPrecision)
		}
	}
	return lo, hi
}

// resolve turns a log path (relative, URL-encoded) into a store key.
func (s *DeltaSource) resolve(p string) string {
	if strings.Contains(p, "://") {
		if u, err := url.Parse(p); err == nil {
			return strings.TrimPrefix(u.Path, "/")
		}
	}
	if dec, err := url.PathUnescape(p); err == nil {
		p = dec
	}
	return s.join(p)
}

func (s *DeltaSource) join(p string) string {
	if s.prefix == "" {
		return p
	}
	return s.prefix + "/" + p
}

func gjsonEscape(key string) string {
	r := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`, "|", `\|`, "#", `\#`, "@", `\@`)
	return r.Replace(key)
}

// addPartitionColumns appends wanted partition columns the file itself lacks.
func addPartitionColumns(batch *models.Batch, values map[string]string, want []string) {
	if len(values) == 0 {
		return
	}
	for _, col := range want {
		v, ok := values[col]
		if !ok || batch.ColumnIndex(col) >= 0 {
			continue
		}
		batch.Columns = append(batch.Columns, col)
		for i := range batch.Rows {
			batch.Rows[i] = append(batch.Rows[i], v)
		}
	}
}
