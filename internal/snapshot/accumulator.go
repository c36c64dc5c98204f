package snapshot

import (
	"sort"
	"time"

	"SignalView/internal/domain/models"
)

// Accumulate folds a batch into the running top-n (event time descending).
// Ties keep arrival order: rows already held win over the new batch, and
// rows within a batch keep their batch order. running must already be
// sorted; the result never exceeds n rows.
func Accumulate(running, batch []models.PredictionRow, n int) []models.PredictionRow {
	if n <= 0 {
		return running[:0]
	}
	sort.SliceStable(batch, func(i, j int) bool {
		return batch[i].EventTime.After(batch[j].EventTime)
	})

	size := len(running) + len(batch)
	if size > n {
		size = n
	}
	out := make([]models.PredictionRow, 0, size)
	i, j := 0, 0
	for len(out) < n && (i < len(running) || j < len(batch)) {
		switch {
		case j >= len(batch):
			out = append(out, running[i])
			i++
		case i >= len(running):
			out = append(out, batch[j])
			j++
		case batch[j].EventTime.After(running[i].EventTime):
			out = append(out, batch[j])
			j++
		default:
			out = append(out, running[i])
			i++
		}
	}
	return out
}

// Floor is the event time of the n-th row once the accumulator is full;
// zero otherwise.
func Floor(running []models.PredictionRow, n int) time.Time {
	if n <= 0 || len(running) < n {
		return time.Time{}
	}
	return running[n-1].EventTime
}

// Finalize assigns the dense 0..len-1 index.
func Finalize(rows []models.PredictionRow) []models.PredictionRow {
	for i := range rows {
		rows[i].Index = i
	}
	return rows
}
