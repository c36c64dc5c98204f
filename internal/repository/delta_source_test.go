package repository

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalView/internal/domain/models"
	domrepo "SignalView/internal/domain/repository"
	"SignalView/pkg/objstore"
)

func commitName(v int64) string {
	return fmt.Sprintf("preds/_delta_log/%020d.json", v)
}

func addAction(path string, modified time.Time, minT, maxT time.Time) string {
	stats := fmt.Sprintf(`{"numRecords":1,"minValues":{"event_time_ts":%q},"maxValues":{"event_time_ts":%q}}`,
		minT.Format(time.RFC3339Nano), maxT.Format(time.RFC3339Nano))
	return fmt.Sprintf(`{"add":{"path":%q,"size":10,"modificationTime":%d,"dataChange":true,"stats":%q}}`,
		path, modified.UnixMilli(), stats)
}

func removeAction(path string) string {
	return fmt.Sprintf(`{"remove":{"path":%q,"deletionTimestamp":1,"dataChange":true}}`, path)
}

func writeCommit(t *testing.T, fsys afero.Fs, v int64, actions ...string) {
	t.Helper()
	body := `{"commitInfo":{"operation":"WRITE"}}` + "\n" + strings.Join(actions, "\n") + "\n"
	writeFile(t, fsys, commitName(v), []byte(body), base)
}

func newDelta(fsys afero.Fs) *DeltaSource {
	return NewDeltaSource(objstore.NewFSStore(fsys, storeRoot), descriptor(models.SourceKindDelta), "preds")
}

func TestDeltaSourceReplaysCommits(t *testing.T) {
	mem := afero.NewMemMapFs()
	writeCommit(t, mem, 0,
		`{"protocol":{"minReaderVersion":1,"minWriterVersion":2}}`,
		`{"metaData":{"id":"x","format":{"provider":"parquet"}}}`,
		addAction("part-0.parquet", base.Add(-3*time.Hour), base.Add(-4*time.Hour), base.Add(-3*time.Hour)),
		addAction("part-1.parquet", base.Add(-2*time.Hour), base.Add(-3*time.Hour), base.Add(-2*time.Hour)),
	)
	writeCommit(t, mem, 1,
		removeAction("part-0.parquet"),
		addAction("part-2.parquet", base.Add(-time.Hour), base.Add(-2*time.Hour), base.Add(-time.Hour)),
	)
	writeCommit(t, mem, 2,
		addAction("sym%3DBTC/part-3.parquet", base, base.Add(-time.Hour), base),
	)

	refs, err := newDelta(mem).ListFiles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"preds/sym=BTC/part-3.parquet",
		"preds/part-2.parquet",
		"preds/part-1.parquet",
	}, paths(refs))

	assert.Equal(t, int64(2), refs[0].Version)
	assert.True(t, refs[1].MaxEventTime.Equal(base.Add(-time.Hour+time.Millisecond)))
	assert.True(t, refs[1].MinEventTime.Equal(base.Add(-2*time.Hour)))
	assert.True(t, refs[2].LastModified.Equal(base.Add(-2*time.Hour)))
	assert.Equal(t, int64(10), refs[2].Size)
}

func TestDeltaSourceReAddAfterRemove(t *testing.T) {
	mem := afero.NewMemMapFs()
	writeCommit(t, mem, 0, addAction("a.parquet", base, base, base))
	writeCommit(t, mem, 1, removeAction("a.parquet"))
	writeCommit(t, mem, 2, addAction("a.parquet", base, base, base))

	refs, err := newDelta(mem).ListFiles(context.Background())
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, int64(2), refs[0].Version)
}

func TestDeltaSourceMissingStats(t *testing.T) {
	mem := afero.NewMemMapFs()
	writeCommit(t, mem, 0, `{"add":{"path":"a.parquet","size":1,"modificationTime":0,"stats":"{\"numRecords\":3}"}}`)

	refs, err := newDelta(mem).ListFiles(context.Background())
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.False(t, refs[0].HasMaxEventTime())
}

func TestDeltaSourceNoLog(t *testing.T) {
	mem := afero.NewMemMapFs()
	writeFile(t, mem, "preds/a.parquet", []byte("x"), base)

	_, err := newDelta(mem).ListFiles(context.Background())
	assert.ErrorIs(t, err, ErrNoDeltaLog)
}

func TestDeltaSourceCorruptCommit(t *testing.T) {
	mem := afero.NewMemMapFs()
	writeFile(t, mem, commitName(0), []byte("{not json\n"), base)

	_, err := newDelta(mem).ListFiles(context.Background())
	assert.Error(t, err)
}

type checkpointAdd struct {
	Path             string `parquet:"path"`
	Size             int64  `parquet:"size"`
	ModificationTime int64  `parquet:"modificationTime"`
	Stats            string `parquet:"stats"`
}

type checkpointRow struct {
	Add checkpointAdd `parquet:"add"`
}

func TestDeltaSourceStartsFromCheckpoint(t *testing.T) {
	mem := afero.NewMemMapFs()
	// Commits up to the checkpoint are superseded by it.
	writeCommit(t, mem, 0, addAction("stale.parquet", base, base, base))
	writeCommit(t, mem, 1, addAction("a.parquet", base, base, base))

	cp := encodeParquet(t, []checkpointRow{
		{Add: checkpointAdd{Path: "a.parquet", Size: 5, ModificationTime: base.Add(-2 * time.Hour).UnixMilli(),
			Stats: `{"maxValues":{"event_time_ts":"2025-02-28T22:00:00Z"}}`}},
		{Add: checkpointAdd{Path: "b.parquet", Size: 6, ModificationTime: base.Add(-time.Hour).UnixMilli()}},
	})
	writeFile(t, mem, "preds/_delta_log/00000000000000000001.checkpoint.parquet", cp, base)
	writeFile(t, mem, "preds/_delta_log/_last_checkpoint", []byte(`{"version":1,"size":2}`), base)
	writeCommit(t, mem, 2, removeAction("b.parquet"), addAction("c.parquet", base, base, base))

	refs, err := newDelta(mem).ListFiles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"preds/c.parquet", "preds/a.parquet"}, paths(refs))
	assert.Equal(t, int64(1), refs[1].Version)
	assert.Equal(t, int64(5), refs[1].Size)
	assert.True(t, refs[1].MaxEventTime.Equal(base.Add(-2*time.Hour+time.Millisecond)))
}

func TestDeltaSourceStatsMaxCoversTruncatedRows(t *testing.T) {
	mem := afero.NewMemMapFs()
	// the newest row is 0.7ms past the recorded max
	rowMax := base.Add(700 * time.Microsecond)
	writeCommit(t, mem, 0, addAction("a.parquet", base, base.Add(-time.Hour), rowMax.Truncate(time.Millisecond)))

	refs, err := newDelta(mem).ListFiles(context.Background())
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.False(t, refs[0].MaxEventTime.Before(rowMax))
	assert.True(t, refs[0].MinEventTime.Equal(base.Add(-time.Hour)))
}

func TestDeltaSourceReadFileAddsPartitionColumns(t *testing.T) {
	mem := afero.NewMemMapFs()
	type noSymbol struct {
		EventTime int64    `parquet:"event_time_ts,timestamp(millisecond)"`
		ProbaUp   *float64 `parquet:"proba_up,optional"`
	}
	writeFile(t, mem, "preds/sym=ETH/p.parquet", encodeParquet(t, []noSymbol{
		{EventTime: base.UnixMilli(), ProbaUp: proba(0.7)},
	}), base)

	ref := models.DataFileRef{Path: "preds/sym=ETH/p.parquet", PartitionValues: map[string]string{"symbol": "ETH"}}
	batch, err := newDelta(mem).ReadFile(context.Background(), ref,
		domrepo.ReadOptions{Columns: []string{"symbol", "event_time_ts", "proba_up"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"event_time_ts", "proba_up", "symbol"}, batch.Columns)
	require.Len(t, batch.Rows, 1)
	assert.Equal(t, []any{base, 0.7, "ETH"}, batch.Rows[0])
}
