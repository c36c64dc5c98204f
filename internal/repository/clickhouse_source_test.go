package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalView/internal/domain/models"
	domrepo "SignalView/internal/domain/repository"
)

// sqlResult is one canned result set.
type sqlResult struct {
	columns []string
	types   []reflect.Type
	rows    [][]driver.Value
}

// sqlScript is a database/sql connector that answers queries from a func
// and records what it was asked.
type sqlScript struct {
	mu      sync.Mutex
	queries []string
	args    [][]any
	answer  func(query string, args []any) (*sqlResult, error)
}

func (s *sqlScript) Connect(context.Context) (driver.Conn, error) { return &sqlConn{s: s}, nil }
func (s *sqlScript) Driver() driver.Driver                        { return sqlDriver{} }

func (s *sqlScript) calls() ([]string, [][]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...), append([][]any(nil), s.args...)
}

type sqlDriver struct{}

func (sqlDriver) Open(string) (driver.Conn, error) { return nil, errors.New("open through sql.OpenDB") }

type sqlConn struct{ s *sqlScript }

func (c *sqlConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("prepare not supported") }
func (c *sqlConn) Close() error                        { return nil }
func (c *sqlConn) Begin() (driver.Tx, error)           { return nil, errors.New("tx not supported") }

func (c *sqlConn) QueryContext(_ context.Context, q string, args []driver.NamedValue) (driver.Rows, error) {
	vals := make([]any, len(args))
	for i, a := range args {
		vals[i] = a.Value
	}
	c.s.mu.Lock()
	c.s.queries = append(c.s.queries, q)
	c.s.args = append(c.s.args, vals)
	c.s.mu.Unlock()

	res, err := c.s.answer(q, vals)
	if err != nil {
		return nil, err
	}
	return &sqlRows{res: res}, nil
}

type sqlRows struct {
	res *sqlResult
	i   int
}

func (r *sqlRows) Columns() []string                     { return r.res.columns }
func (r *sqlRows) Close() error                          { return nil }
func (r *sqlRows) ColumnTypeScanType(i int) reflect.Type { return r.res.types[i] }

func (r *sqlRows) Next(dest []driver.Value) error {
	if r.i >= len(r.res.rows) {
		return io.EOF
	}
	copy(dest, r.res.rows[r.i])
	r.i++
	return nil
}

func newTestCHSource(t *testing.T, answer func(string, []any) (*sqlResult, error)) (*CHSource, *sqlScript) {
	t.Helper()
	script := &sqlScript{answer: answer}
	db := sql.OpenDB(script)
	t.Cleanup(func() { _ = db.Close() })
	src, err := newCHSource(db, descriptor(models.SourceKindClickHouse), "ml.predictions")
	require.NoError(t, err)
	return src, script
}

var (
	timeType    = reflect.TypeOf(time.Time{})
	stringType  = reflect.TypeOf("")
	nullFloat   = reflect.TypeOf((*float64)(nil))
	uint8Type   = reflect.TypeOf(uint8(0))
	uint64Type  = reflect.TypeOf(uint64(0))
	partitionAt = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
)

func TestCHSourceRejectsBadIdentifiers(t *testing.T) {
	db := sql.OpenDB(&sqlScript{})
	defer db.Close()

	_, err := newCHSource(db, descriptor(models.SourceKindClickHouse), "preds; DROP TABLE x")
	assert.Error(t, err)

	desc := descriptor(models.SourceKindClickHouse)
	desc.OrderingColumn = "event time"
	_, err = newCHSource(db, desc, "ml.predictions")
	assert.Error(t, err)
}

func TestCHSourceListFiles(t *testing.T) {
	src, script := newTestCHSource(t, func(string, []any) (*sqlResult, error) {
		return &sqlResult{
			columns: []string{"day", "n", "lo", "hi"},
			types:   []reflect.Type{timeType, uint64Type, timeType, timeType},
			rows: [][]driver.Value{
				{partitionAt, int64(3), partitionAt.Add(time.Hour), partitionAt.Add(5 * time.Hour)},
				{partitionAt.AddDate(0, 0, -1), int64(7), partitionAt.Add(-20 * time.Hour), partitionAt.Add(-time.Minute)},
			},
		}, nil
	})

	refs, err := src.ListFiles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"partition=2025-03-01", "partition=2025-02-28"}, paths(refs))
	assert.Equal(t, int64(3), refs[0].Size)
	assert.True(t, refs[0].MaxEventTime.Equal(partitionAt.Add(5*time.Hour)))
	assert.True(t, refs[1].MinEventTime.Equal(partitionAt.Add(-20*time.Hour)))

	queries, _ := script.calls()
	require.Len(t, queries, 1)
	assert.Contains(t, queries[0], "toDate(event_time_ts) AS day")
	assert.Contains(t, queries[0], "FROM ml.predictions")
	assert.Contains(t, queries[0], "ORDER BY day DESC")
}

func TestCHSourceListFilesQueryError(t *testing.T) {
	src, _ := newTestCHSource(t, func(string, []any) (*sqlResult, error) {
		return nil, errors.New("code: 60, table does not exist")
	})

	_, err := src.ListFiles(context.Background())
	assert.ErrorContains(t, err, "list partitions")
}

func predictionResult() *sqlResult {
	proba := 0.72
	return &sqlResult{
		columns: []string{"symbol", "event_time_ts", "proba_up", "pred_up"},
		types:   []reflect.Type{stringType, timeType, nullFloat, uint8Type},
		rows: [][]driver.Value{
			{"BTC", partitionAt.Add(2 * time.Hour), proba, int64(1)},
			{"ETH", partitionAt.Add(time.Hour), nil, int64(0)},
		},
	}
}

func TestCHSourceReadFileWithPredicate(t *testing.T) {
	src, script := newTestCHSource(t, func(string, []any) (*sqlResult, error) {
		return predictionResult(), nil
	})
	since := partitionAt.Add(30 * time.Minute)

	batch, err := src.ReadFile(context.Background(), models.DataFileRef{Path: "partition=2025-03-01"}, domrepo.ReadOptions{Since: since})
	require.NoError(t, err)
	assert.Equal(t, []string{"symbol", "event_time_ts", "proba_up", "pred_up"}, batch.Columns)
	require.Len(t, batch.Rows, 2)
	assert.Equal(t, []any{"BTC", partitionAt.Add(2 * time.Hour), 0.72, int64(1)}, batch.Rows[0])
	assert.Nil(t, batch.Rows[1][2])
	assert.Equal(t, int64(0), batch.Rows[1][3])

	queries, args := script.calls()
	require.Len(t, queries, 1)
	assert.Contains(t, queries[0], "event_time_ts >= ?")
	require.Len(t, args[0], 2)
	assert.True(t, args[0][0].(time.Time).Equal(partitionAt))
	assert.True(t, args[0][1].(time.Time).Equal(since))
}

func TestCHSourceReadFileDropsFailingPredicate(t *testing.T) {
	src, script := newTestCHSource(t, func(q string, _ []any) (*sqlResult, error) {
		if strings.Contains(q, ">= ?") {
			return nil, errors.New("code: 386, no supertype for DateTime64 and String")
		}
		return predictionResult(), nil
	})

	batch, err := src.ReadFile(context.Background(), models.DataFileRef{Path: "partition=2025-03-01"},
		domrepo.ReadOptions{Since: partitionAt.Add(time.Hour)})
	require.NoError(t, err)
	assert.Len(t, batch.Rows, 2)

	queries, args := script.calls()
	require.Len(t, queries, 2)
	assert.Contains(t, queries[0], ">= ?")
	assert.NotContains(t, queries[1], ">= ?")
	assert.Len(t, args[1], 1)
}

func TestCHSourceReadFileWithoutSince(t *testing.T) {
	src, script := newTestCHSource(t, func(string, []any) (*sqlResult, error) {
		return predictionResult(), nil
	})

	_, err := src.ReadFile(context.Background(), models.DataFileRef{Path: "partition=2025-03-01"}, domrepo.ReadOptions{})
	require.NoError(t, err)
	queries, _ := script.calls()
	require.Len(t, queries, 1)
	assert.Contains(t, queries[0], "WHERE toDate(event_time_ts) = ?")
	assert.NotContains(t, queries[0], ">=")
}

func TestCHSourceReadFileBadPartition(t *testing.T) {
	src, script := newTestCHSource(t, func(string, []any) (*sqlResult, error) {
		return predictionResult(), nil
	})

	_, err := src.ReadFile(context.Background(), models.DataFileRef{Path: "part-0.parquet"}, domrepo.ReadOptions{})
	assert.ErrorContains(t, err, "bad partition ref")
	queries, _ := script.calls()
	assert.Empty(t, queries)
}

func TestNormalizeScanned(t *testing.T) {
	local := time.Date(2025, 3, 1, 7, 0, 0, 0, time.FixedZone("ICT", 7*3600))
	s := "BTC"
	f := 0.4
	u := uint64(42)
	b := true

	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"time to utc", local, local.UTC()},
		{"time pointer", &local, local.UTC()},
		{"nil time pointer", (*time.Time)(nil), nil},
		{"string pointer", &s, "BTC"},
		{"nil string pointer", (*string)(nil), nil},
		{"float pointer", &f, 0.4},
		{"nil float pointer", (*float64)(nil), nil},
		{"int8", int8(-3), int64(-3)},
		{"uint32", uint32(7), int64(7)},
		{"uint64 pointer", &u, int64(42)},
		{"nil uint8 pointer", (*uint8)(nil), nil},
		{"float32", float32(0.5), float64(0.5)},
		{"bool pointer", &b, true},
		{"plain values", int64(9), int64(9)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizeScanned(tt.in)
			if want, ok := tt.want.(time.Time); ok {
				gt, ok := got.(time.Time)
				require.True(t, ok)
				assert.True(t, want.Equal(gt))
				assert.Equal(t, time.UTC, gt.Location())
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
