package snapshot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalView/internal/domain/models"
)

func TestAccumulateBoundedAndSorted(t *testing.T) {
	var running []models.PredictionRow
	for f := 0; f < 5; f++ {
		batch := make([]models.PredictionRow, 0, 30)
		for i := 0; i < 30; i++ {
			// interleave files so that every batch overlaps the running set
			batch = append(batch, models.PredictionRow{EventTime: base.Add(time.Duration(i*5+f) * time.Minute)})
		}
		running = Accumulate(running, batch, 40)
		require.LessOrEqual(t, len(running), 40)
	}
	require.Len(t, running, 40)
	for i := 1; i < len(running); i++ {
		assert.False(t, running[i].EventTime.After(running[i-1].EventTime), "row %d out of order", i)
	}
	assert.Equal(t, base.Add(149*time.Minute), running[0].EventTime)
}

func TestAccumulateRunningWinsTies(t *testing.T) {
	tie := base.Add(time.Hour)
	running := []models.PredictionRow{{EventTime: tie, Symbol: "first"}}
	batch := []models.PredictionRow{{EventTime: tie, Symbol: "second"}, {EventTime: tie, Symbol: "third"}}

	got := Accumulate(running, batch, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Symbol)
	assert.Equal(t, "second", got[1].Symbol)
}

func TestAccumulateDuplicateBatchesDeterministic(t *testing.T) {
	mk := func() []models.PredictionRow {
		return []models.PredictionRow{
			{EventTime: base, Symbol: "a"},
			{EventTime: base.Add(time.Minute), Symbol: "b"},
			{EventTime: base, Symbol: "c"},
		}
	}
	first := Accumulate(Accumulate(nil, mk(), 4), mk(), 4)
	second := Accumulate(Accumulate(nil, mk(), 4), mk(), 4)
	assert.Equal(t, first, second)
	assert.Equal(t, []string{"b", "b", "a", "a"}, symbols(first))
}

func TestAccumulateZeroCap(t *testing.T) {
	got := Accumulate(rowsAt(base), rowsAt(base.Add(time.Minute)), 0)
	assert.Empty(t, got)
}

func TestFloor(t *testing.T) {
	rows := rowsAt(base.Add(2*time.Minute), base.Add(time.Minute), base)
	assert.True(t, Floor(rows, 4).IsZero())
	assert.Equal(t, base, Floor(rows, 3))
	assert.Equal(t, base.Add(time.Minute), Floor(rows, 2))
}

func TestFinalizeDenseIndex(t *testing.T) {
	rows := Finalize(rowsAt(base.Add(time.Minute), base))
	assert.Equal(t, 0, rows[0].Index)
	assert.Equal(t, 1, rows[1].Index)
}

func symbols(rows []models.PredictionRow) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Symbol
	}
	return out
}
