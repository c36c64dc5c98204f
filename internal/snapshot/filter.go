package snapshot

import (
	"time"

	"SignalView/internal/domain/models"
)

// Cutoff returns now - lookback in UTC, or zero when lookback is unset.
func Cutoff(lookback time.Duration, now time.Time) time.Time {
	if lookback <= 0 {
		return time.Time{}
	}
	return now.UTC().Add(-lookback)
}

// Filter drops rows older than now - lookback. A zero lookback keeps every
// row. The input slice is reused.
func Filter(rows []models.PredictionRow, lookback time.Duration, now time.Time) []models.PredictionRow {
	cutoff := Cutoff(lookback, now)
	if cutoff.IsZero() {
		return rows
	}
	out := rows[:0]
	for _, r := range rows {
		if r.EventTime.IsZero() || r.EventTime.Before(cutoff) {
			continue
		}
		out = append(out, r)
	}
	return out
}
