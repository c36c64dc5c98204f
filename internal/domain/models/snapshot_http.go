package models

// Requests for snapshot HTTP endpoints.

type SnapshotRequest struct {
	RowCap   int    `query:"row_cap" json:"row_cap" validate:"gte=0,lte=100000"`
	Lookback string `query:"lookback" json:"lookback"`
	Limit    int    `query:"limit" json:"limit" validate:"gte=0,lte=100000"`
	Refresh  bool   `query:"refresh" json:"refresh"`
}

type KPIRequest struct {
	RowCap   int    `query:"row_cap" json:"row_cap" validate:"gte=0,lte=100000"`
	Lookback string `query:"lookback" json:"lookback"`
}

type SeriesRequest struct {
	RowCap   int    `query:"row_cap" json:"row_cap" validate:"gte=0,lte=100000"`
	Lookback string `query:"lookback" json:"lookback"`
	Symbol   string `query:"symbol" json:"symbol"`
}

type InvalidateRequest struct {
	Source string `query:"source" json:"source"`
}

// SnapshotResponse is the payload of GET /api/snapshot.
type SnapshotResponse struct {
	Key          string        `json:"key"`
	FetchID      string        `json:"fetch_id"`
	Source       string        `json:"source"`
	ComputedAt   string        `json:"computed_at"`
	RowsLoaded   int           `json:"rows_loaded"`
	FilesListed  int           `json:"files_listed"`
	FilesRead    int           `json:"files_read"`
	FilesSkipped int           `json:"files_skipped"`
	Rows         []LabeledRow  `json:"rows"`
	Diagnostics  []FileOutcome `json:"diagnostics,omitempty"`
}
