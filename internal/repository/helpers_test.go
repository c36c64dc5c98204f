package repository

import (
	"bytes"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"SignalView/internal/domain/models"
)

var base = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

// storeRoot is where test files live in the in-memory filesystem.
const storeRoot = "data"

type predRow struct {
	Symbol     string   `parquet:"symbol"`
	EventTime  int64    `parquet:"event_time_ts,timestamp(millisecond)"`
	ProbaUp    *float64 `parquet:"proba_up,optional"`
	ModelRunID string   `parquet:"model_run_id"`
}

func proba(v float64) *float64 { return &v }

func predRows(symbol string, newest time.Time, n int) []predRow {
	rows := make([]predRow, n)
	for i := range rows {
		rows[i] = predRow{
			Symbol:     symbol,
			EventTime:  newest.Add(-time.Duration(i) * time.Minute).UnixMilli(),
			ProbaUp:    proba(0.5),
			ModelRunID: "run-1",
		}
	}
	return rows
}

func encodeParquet[T any](t *testing.T, rows []T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, parquet.Write(&buf, rows))
	return buf.Bytes()
}

// writeFile stores b under key relative to storeRoot.
func writeFile(t *testing.T, fsys afero.Fs, key string, b []byte, modified time.Time) {
	t.Helper()
	p := storeRoot + "/" + key
	require.NoError(t, afero.WriteFile(fsys, p, b, 0o644))
	require.NoError(t, fsys.Chtimes(p, modified, modified))
}

func descriptor(kind string) models.SourceDescriptor {
	return models.SourceDescriptor{
		Kind:           kind,
		Name:           "preds",
		Columns:        []string{"symbol", "event_time_ts", "proba_up", "model_run_id"},
		OrderingColumn: "event_time_ts",
	}
}

func paths(refs []models.DataFileRef) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.Path
	}
	return out
}
