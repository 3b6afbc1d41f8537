package models

import "time"

type TurnRecord struct {
	ID         int       `json:"id" db:"id"`
	Question   string    `json:"question" db:"question"`
	Insight    string    `json:"insight" db:"insight"`
	SQLQueries []string  `json:"sql_queries" db:"sql_queries"`
	RowCount   int       `json:"row_count" db:"row_count"`
	ChartID    *string   `json:"chart_id,omitempty" db:"chart_id"`
	RoundTrips int       `json:"round_trips" db:"round_trips"`
	DurationMs int64     `json:"duration_ms" db:"duration_ms"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
