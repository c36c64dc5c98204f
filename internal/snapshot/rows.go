package snapshot

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"SignalView/internal/domain/models"
	"SignalView/pkg/util"
)

// Well known prediction columns.
const (
	ColSymbol      = "symbol"
	ColInterval    = "interval"
	ColProbaUp     = "proba_up"
	ColPredUp      = "pred_up"
	ColModelRunID  = "model_run_id"
	ColScoringTime = "scoring_time"
)

// DecodeRows turns a projected batch into prediction rows. Rows whose
// ordering value is null or cannot be read as a time are dropped and
// counted.
func DecodeRows(b *models.Batch, ordering string) ([]models.PredictionRow, int) {
	ti := b.ColumnIndex(ordering)
	if ti < 0 {
		return nil, len(b.Rows)
	}

	out := make([]models.PredictionRow, 0, len(b.Rows))
	dropped := 0
	for _, raw := range b.Rows {
		ts, ok := asTime(raw[ti])
		if !ok {
			dropped++
			continue
		}
		r := models.PredictionRow{EventTime: ts, SourceFile: b.Source}
		for j, col := range b.Columns {
			if j == ti {
				continue
			}
			v := raw[j]
			switch col {
			case ColSymbol:
				r.Symbol = asString(v)
			case ColInterval:
				r.Interval = asString(v)
			case ColProbaUp:
				if f, ok := asFloat(v); ok {
					r.ProbaUp = &f
				}
			case ColPredUp:
				if n, ok := asInt(v); ok {
					r.PredUp = &n
				}
			case ColModelRunID:
				if v != nil {
					s := asString(v)
					r.ModelRunID = &s
				}
			case ColScoringTime:
				if t, ok := asTime(v); ok {
					r.ScoringTime = &t
				}
			default:
				if r.Extra == nil {
					r.Extra = make(map[string]any)
				}
				r.Extra[col] = v
			}
		}
		out = append(out, r)
	}
	return out, dropped
}

func asTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		if x.IsZero() {
			return time.Time{}, false
		}
		return x.UTC(), true
	case string:
		return util.ParseTime(x)
	case int64:
		return util.EpochToTime(x), true
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return time.Time{}, false
		}
		return util.EpochToTime(int64(x)), true
	}
	return time.Time{}, false
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}

func asInt(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case float64:
		if math.IsNaN(x) || x != math.Trunc(x) {
			return 0, false
		}
		return int64(x), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		return n, err == nil
	}
	return 0, false
}

func asString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprint(v)
}
