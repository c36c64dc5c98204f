package repository

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/deprecated"

	"SignalView/internal/domain/models"
)

const readBatchRows = 512

// julianUnixEpoch is the Julian day number of 1970-01-01.
const julianUnixEpoch = 2440588

type valueConv func(parquet.Value) any

type decodeColumn struct {
	name  string
	index int
	conv  valueConv
}

// DecodeParquet decodes a parquet object into a batch. Nested leaves are
// named by their dotted path ("add.path"). When want is non-empty only those
// columns are decoded; columns absent from the file are simply not returned.
// Repeated leaves keep their first value.
func DecodeParquet(name string, b []byte, want []string) (*models.Batch, error) {
	f, err := parquet.OpenFile(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return nil, fmt.Errorf("open parquet %s: %w", name, err)
	}
	schema := f.Schema()

	cols, err := decodeColumns(schema, want)
	if err != nil {
		return nil, fmt.Errorf("parquet %s: %w", name, err)
	}
	batch := &models.Batch{Source: name, Columns: make([]string, len(cols))}
	byIndex := make(map[int]int, len(cols))
	for i, c := range cols {
		batch.Columns[i] = c.name
		byIndex[c.index] = i
	}
	if len(cols) == 0 {
		return batch, nil
	}

	buf := make([]parquet.Row, readBatchRows)
	for _, rg := range f.RowGroups() {
		rows := rg.Rows()
		for {
			n, readErr := rows.ReadRows(buf)
			for _, row := range buf[:n] {
				out := make([]any, len(cols))
				seen := make([]bool, len(cols))
				for _, v := range row {
					pos, ok := byIndex[v.Column()]
					if !ok || seen[pos] {
						continue
					}
					seen[pos] = true
					if v.IsNull() {
						continue
					}
					out[pos] = cols[pos].conv(v)
				}
				batch.Rows = append(batch.Rows, out)
			}
			if readErr != nil {
				if errors.Is(readErr, io.EOF) {
					break
				}
				_ = rows.Close()
				return nil, fmt.Errorf("read parquet %s: %w", name, readErr)
			}
		}
		if err := rows.Close(); err != nil {
			return nil, fmt.Errorf("close parquet rows %s: %w", name, err)
		}
	}
	return batch, nil
}

func decodeColumns(schema *parquet.Schema, want []string) ([]decodeColumn, error) {
	var names []string
	if len(want) > 0 {
		names = want
	} else {
		for _, path := range schema.Columns() {
			names = append(names, strings.Join(path, "."))
		}
	}

	out := make([]decodeColumn, 0, len(names))
	for _, n := range names {
		leaf, ok := schema.Lookup(strings.Split(n, ".")...)
		if !ok {
			continue
		}
		out = append(out, decodeColumn{name: n, index: leaf.ColumnIndex, conv: converterFor(leaf.Node)})
	}
	return out, nil
}

func converterFor(node parquet.Node) valueConv {
	typ := node.Type()
	if lt := typ.LogicalType(); lt != nil {
		switch {
		case lt.Timestamp != nil:
			unit := lt.Timestamp.Unit
			switch {
			case unit.Nanos != nil:
				return int64Time(time.Nanosecond)
			case unit.Micros != nil:
				return int64Time(time.Microsecond)
			default:
				return int64Time(time.Millisecond)
			}
		case lt.Date != nil:
			return func(v parquet.Value) any {
				return time.Unix(int64(v.Int32())*86400, 0).UTC()
			}
		}
	}
	if ct := typ.ConvertedType(); ct != nil {
		switch *ct {
		case deprecated.TimestampMillis:
			return int64Time(time.Millisecond)
		case deprecated.TimestampMicros:
			return int64Time(time.Microsecond)
		case deprecated.Date:
			return func(v parquet.Value) any {
				return time.Unix(int64(v.Int32())*86400, 0).UTC()
			}
		}
	}
	return plainValue
}

func int64Time(unit time.Duration) valueConv {
	return func(v parquet.Value) any {
		n := v.Int64()
		switch unit {
		case time.Nanosecond:
			return time.Unix(0, n).UTC()
		case time.Microsecond:
			return time.UnixMicro(n).UTC()
		default:
			return time.UnixMilli(n).UTC()
		}
	}
}

func plainValue(v parquet.Value) any {
	switch v.Kind() {
	case parquet.Boolean:
		return v.Boolean()
	case parquet.Int32:
		return int64(v.Int32())
	case parquet.Int64:
		return v.Int64()
	case parquet.Int96:
		return int96Time(v.Int96())
	case parquet.Float:
		return float64(v.Float())
	case parquet.Double:
		return v.Double()
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return string(v.ByteArray())
	default:
		return nil
	}
}

// int96Time decodes the legacy Impala timestamp: nanoseconds of day in the
// low 8 bytes, Julian day in the high 4.
func int96Time(x deprecated.Int96) time.Time {
	nanos := int64(x[1])<<32 | int64(x[0])
	days := int64(x[2]) - julianUnixEpoch
	return time.Unix(days*86400, nanos).UTC()
}
