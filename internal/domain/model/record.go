package model

import "time"

// Record is an accepted submission ready for the ranking store.
// Rows are keyed by (Name, Mode, Year, Month).
type Record struct {
	ID          string
	Name        string
	Mode        Mode
	Score       int64
	Accuracy    float64
	Year        int
	Month       int
	Metadata    Metadata
	SubmittedAt time.Time
}

// Period returns the calendar year and month a record at t belongs to.
func Period(t time.Time) (year, month int) {
	return t.Year(), int(t.Month())
}

// RankedEntry is a record annotated with its board position.
type RankedEntry struct {
	Rank     int            `json:"rank"`
	Name     string         `json:"name"`
	Score    int64          `json:"score"`
	Accuracy float64        `json:"accuracy"`
	Metadata map[string]any `json:"metadata,omitempty"`
	At       time.Time      `json:"submittedAt"`
}
