package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeParquet(t *testing.T) {
	rows := predRows("BTC", base, 3)
	rows[1].ProbaUp = nil
	b := encodeParquet(t, rows)

	batch, err := DecodeParquet("f.parquet", b, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"symbol", "event_time_ts", "proba_up", "model_run_id"}, batch.Columns)
	require.Len(t, batch.Rows, 3)

	ts := batch.ColumnIndex("event_time_ts")
	pr := batch.ColumnIndex("proba_up")
	sym := batch.ColumnIndex("symbol")
	assert.Equal(t, base, batch.Rows[0][ts])
	assert.Equal(t, base.Add(-2*time.Minute), batch.Rows[2][ts])
	assert.Equal(t, 0.5, batch.Rows[0][pr])
	assert.Nil(t, batch.Rows[1][pr])
	assert.Equal(t, "BTC", batch.Rows[2][sym])
}

func TestDecodeParquetWantedColumns(t *testing.T) {
	b := encodeParquet(t, predRows("BTC", base, 2))

	batch, err := DecodeParquet("f.parquet", b, []string{"proba_up", "missing", "symbol"})
	require.NoError(t, err)
	assert.Equal(t, []string{"proba_up", "symbol"}, batch.Columns)
	require.Len(t, batch.Rows, 2)
	assert.Equal(t, []any{0.5, "BTC"}, batch.Rows[0])
}

func TestDecodeParquetGarbage(t *testing.T) {
	_, err := DecodeParquet("bad.parquet", []byte("not parquet"), nil)
	assert.Error(t, err)
}
