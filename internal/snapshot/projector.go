package snapshot

import "SignalView/internal/domain/models"

// Project keeps the desired columns present in the batch, in desired order,
// and reports the desired columns the batch lacks.
func Project(b *models.Batch, desired []string) (*models.Batch, []string) {
	idx := make([]int, 0, len(desired))
	cols := make([]string, 0, len(desired))
	var missing []string
	for _, c := range desired {
		i := b.ColumnIndex(c)
		if i < 0 {
			missing = append(missing, c)
			continue
		}
		idx = append(idx, i)
		cols = append(cols, c)
	}

	out := &models.Batch{Source: b.Source, Columns: cols, Rows: make([][]any, len(b.Rows))}
	for r, row := range b.Rows {
		pr := make([]any, len(idx))
		for j, i := range idx {
			if i < len(row) {
				pr[j] = row[i]
			}
		}
		out.Rows[r] = pr
	}
	return out, missing
}
