package models

type QueryResult struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	Truncated bool     `json:"truncated,omitempty"`
}

func (r *QueryResult) RowCount() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}

// SQLToolResult is what the SQL tool reports back to the model: either a
// result or an error description, never both.
type SQLToolResult struct {
	ResultDF *QueryResult `json:"result_df,omitempty"`
	Error    string       `json:"error,omitempty"`
}
