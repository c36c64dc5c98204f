package models

import "time"

// PredictionRow is one scored prediction. EventTime is always set and in UTC.
type PredictionRow struct {
	Index       int            `json:"index"`
	Symbol      string         `json:"symbol,omitempty"`
	Interval    string         `json:"interval,omitempty"`
	EventTime   time.Time      `json:"event_time_ts"`
	ProbaUp     *float64       `json:"proba_up,omitempty"`
	PredUp      *int64         `json:"pred_up,omitempty"`
	ModelRunID  *string        `json:"model_run_id,omitempty"`
	ScoringTime *time.Time     `json:"scoring_time,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
	SourceFile  string         `json:"source_file,omitempty"`
}

// Signal is the action derived from a probability.
type Signal string

const (
	SignalBuy     Signal = "BUY"
	SignalSell    Signal = "SELL"
	SignalHold    Signal = "HOLD"
	SignalInvalid Signal = "INVALID"
	SignalNone    Signal = ""
)

// LabeledRow pairs a row with its signal. Signal is empty when the row has
// no probability.
type LabeledRow struct {
	PredictionRow
	Signal Signal `json:"signal,omitempty"`
}

// SeriesPoint is one (time, probability) pair for charting.
type SeriesPoint struct {
	EventTime time.Time `json:"event_time_ts"`
	ProbaUp   float64   `json:"proba_up"`
	Symbol    string    `json:"symbol,omitempty"`
}

// KPIs summarizes a snapshot.
type KPIs struct {
	LatestProba     *float64       `json:"latest_proba,omitempty"`
	LatestSignal    Signal         `json:"latest_signal,omitempty"`
	RowsLoaded      int            `json:"rows_loaded"`
	LatestEventTime *time.Time     `json:"latest_event_time,omitempty"`
	Distribution    map[Signal]int `json:"signal_distribution"`
	ModelRunID      string         `json:"model_run_id,omitempty"`
	ComputedAt      time.Time      `json:"computed_at"`
	Source          string         `json:"source"`
}
