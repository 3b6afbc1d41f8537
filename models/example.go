package models

// SQLExample is a question paired with the SQL that answers it, used as a
// few-shot hint in the system prompt.
type SQLExample struct {
	ID       string  `json:"id"`
	Question string  `json:"question"`
	SQL      string  `json:"sql"`
	Score    float32 `json:"score,omitempty"`
}
