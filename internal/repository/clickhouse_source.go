package repository

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"SignalView/internal/domain/models"
	domrepo "SignalView/internal/domain/repository"
	pkgch "SignalView/pkg/clickhouse"
	applogger "SignalView/pkg/logger"
)

const partitionPrefix = "partition="

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// CHSource reads predictions from a ClickHouse table. Each day of the
// ordering column is one data file.
type CHSource struct {
	db       *sql.DB
	name     string
	table    string
	ordering string
	l        *applogger.Logger
}

func NewCHSource(ch *pkgch.Client, desc models.SourceDescriptor, table string) (*CHSource, error) {
	return newCHSource(ch.DB(), desc, table)
}

func newCHSource(db *sql.DB, desc models.SourceDescriptor, table string) (*CHSource, error) {
	if !identRe.MatchString(table) {
		return nil, fmt.Errorf("invalid clickhouse table %q", table)
	}
	if !identRe.MatchString(desc.OrderingColumn) {
		return nil, fmt.Errorf("invalid ordering column %q", desc.OrderingColumn)
	}
	return &CHSource{
		db:       db,
		name:     desc.Name,
		table:    table,
		ordering: desc.OrderingColumn,
		l:        applogger.Nop(),
	}, nil
}

// SetLogger injects a structured logger.
func (s *CHSource) SetLogger(l *applogger.Logger) {
	if l != nil {
		s.l = l
	}
}

func (s *CHSource) Name() string { return s.name }

func (s *CHSource) ListFiles(ctx context.Context) ([]models.DataFileRef, error) {
	const qtpl = `
        SELECT toDate(%[1]s) AS day, count() AS n, min(%[1]s) AS lo, max(%[1]s) AS hi
        FROM %[2]s
        GROUP BY day
        ORDER BY day DESC
    `
	q := fmt.Sprintf(qtpl, s.ordering, s.table)
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		s.l.Error("clickhouse list partitions query error",
			applogger.String("table", s.table),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	defer rows.Close()

	var refs []models.DataFileRef
	for rows.Next() {
		var (
			day    time.Time
			n      uint64
			lo, hi time.Time
		)
		if err := rows.Scan(&day, &n, &lo, &hi); err != nil {
			return nil, fmt.Errorf("scan partition: %w", err)
		}
		refs = append(refs, models.DataFileRef{
			Path:         partitionPrefix + day.UTC().Format("2006-01-02"),
			LastModified: hi.UTC(),
			Size:         int64(n),
			MinEventTime: lo.UTC(),
			MaxEventTime: hi.UTC(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return refs, nil
}

func (s *CHSource) ReadFile(ctx context.Context, ref models.DataFileRef, opts domrepo.ReadOptions) (*models.Batch, error) {
	day, err := time.Parse("2006-01-02", strings.TrimPrefix(ref.Path, partitionPrefix))
	if err != nil {
		return nil, fmt.Errorf("bad partition ref %q: %w", ref.Path, err)
	}

	base := fmt.Sprintf("SELECT * FROM %s WHERE toDate(%s) = ?", s.table, s.ordering)
	if !opts.Since.IsZero() {
		batch, err := s.query(ctx, ref.Path, base+fmt.Sprintf(" AND %s >= ?", s.ordering), day, opts.Since)
		if err == nil {
			return batch, nil
		}
		// Predicate dropped; rows are filtered downstream.
		s.l.Warn("clickhouse predicate query failed, retrying without it",
			applogger.String("table", s.table),
			applogger.String("partition", ref.Path),
			applogger.Error(err),
		)
	}
	return s.query(ctx, ref.Path, base, day)
}

func (s *CHSource) query(ctx context.Context, name, q string, args ...any) (*models.Batch, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", name, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns %s: %w", name, err)
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("column types %s: %w", name, err)
	}

	batch := &models.Batch{Source: name, Columns: cols}
	for rows.Next() {
		dest := make([]any, len(cols))
		for i, ct := range types {
			dest[i] = reflect.New(ct.ScanType()).Interface()
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", name, err)
		}
		out := make([]any, len(cols))
		for i, d := range dest {
			out[i] = normalizeScanned(reflect.ValueOf(d).Elem().Interface())
		}
		batch.Rows = append(batch.Rows, out)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows %s: %w", name, err)
	}
	return batch, nil
}

// normalizeScanned maps driver values onto the decoder's value set:
// string, int64, float64, bool, time.Time or nil.
func normalizeScanned(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case time.Time:
		return x.UTC()
	case *time.Time:
		if x == nil {
			return nil
		}
		return x.UTC()
	case string, int64, float64, bool:
		return x
	case *string:
		if x == nil {
			return nil
		}
		return *x
	case *float64:
		if x == nil {
			return nil
		}
		return *x
	case *int64:
		if x == nil {
			return nil
		}
		return *x
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.Bool:
		return rv.Bool()
	case reflect.String:
		return rv.String()
	}
	return fmt.Sprint(rv.Interface())
}
