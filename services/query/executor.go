package query

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"time"

	"hdbinsights/db"
	"hdbinsights/models"

	"github.com/rs/zerolog"
)

const DefaultMaxRows = 1000

var ErrEmptyQuery = errors.New("no SQL query provided")

// ExecutionError reports a statement the engine rejected or failed to run.
type ExecutionError struct {
	Message string
	Hint    string
	Err     error
}

func (e *ExecutionError) Error() string {
	if e.Hint != "" {
		return e.Message + "\n" + e.Hint
	}
	return e.Message
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Executor runs single read-only statements against the resale dataset.
// Every call opens and closes its own connection.
type Executor struct {
	source  db.DataSource
	table   string
	maxRows int
	logger  zerolog.Logger
}

func NewExecutor(source db.DataSource, table string, maxRows int, logger zerolog.Logger) *Executor {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	return &Executor{
		source:  source,
		table:   table,
		maxRows: maxRows,
		logger:  logger.With().Str("component", "query").Logger(),
	}
}

func (e *Executor) MaxRows() int {
	return e.maxRows
}

// Run executes the statement and reports the outcome as tool data. It never
// returns an error to the caller.
func (e *Executor) Run(ctx context.Context, sqlText string) models.SQLToolResult {
	result, err := e.Execute(ctx, sqlText)
	if err != nil {
		var execErr *ExecutionError
		switch {
		case errors.Is(err, ErrEmptyQuery):
			return models.SQLToolResult{Error: "No SQL query provided"}
		case errors.As(err, &execErr):
			return models.SQLToolResult{Error: "Error executing SQL query: " + execErr.Error()}
		default:
			return models.SQLToolResult{Error: err.Error()}
		}
	}
	return models.SQLToolResult{ResultDF: result}
}

func (e *Executor) Execute(ctx context.Context, sqlText string) (*models.QueryResult, error) {
	statement, err := validateStatement(sqlText)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	e.logger.Info().Str("sql", statement).Msg("Executing SQL query")

	conn, err := e.source.Open(ctx)
	if err != nil {
		return nil, &ExecutionError{Message: err.Error(), Err: err}
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, statement)
	if err != nil {
		execErr := &ExecutionError{Message: err.Error(), Err: err}
		if column := unknownColumn(err.Error()); column != "" {
			execErr.Hint = e.columnHint(ctx, conn, column)
		}
		e.logger.Warn().Err(err).Msg("SQL query failed")
		return nil, execErr
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, &ExecutionError{Message: fmt.Sprintf("failed to get columns: %v", err), Err: err}
	}

	result := &models.QueryResult{
		Columns: uniqueColumns(cols),
		Rows:    [][]any{},
	}

	for rows.Next() {
		if len(result.Rows) == e.maxRows {
			result.Truncated = true
			break
		}

		values := make([]any, len(cols))
		pointers := make([]any, len(cols))
		for i := range values {
			pointers[i] = &values[i]
		}

		if err := rows.Scan(pointers...); err != nil {
			return nil, &ExecutionError{Message: fmt.Sprintf("failed to scan row: %v", err), Err: err}
		}

		for i := range values {
			values[i] = normalizeValue(values[i])
		}
		result.Rows = append(result.Rows, values)
	}

	if err := rows.Err(); err != nil {
		return nil, &ExecutionError{Message: fmt.Sprintf("error iterating rows: %v", err), Err: err}
	}

	e.logger.Info().
		Int("rows", len(result.Rows)).
		Int("columns", len(result.Columns)).
		Bool("truncated", result.Truncated).
		Dur("elapsed", time.Since(start)).
		Msg("SQL query completed")

	return result, nil
}

// uniqueColumns suffixes repeated names: price, price_2, price_3.
func uniqueColumns(cols []string) []string {
	seen := make(map[string]int, len(cols))
	taken := make(map[string]bool, len(cols))
	for _, c := range cols {
		taken[c] = true
	}

	out := make([]string, len(cols))
	for i, c := range cols {
		seen[c]++
		if seen[c] == 1 {
			out[i] = c
			continue
		}

		n := seen[c]
		name := c + "_" + strconv.Itoa(n)
		for taken[name] {
			n++
			name = c + "_" + strconv.Itoa(n)
		}
		seen[c] = n
		taken[name] = true
		out[i] = name
	}
	return out
}

type float64er interface {
	Float64() float64
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(val)
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil
		}
		return val
	case float32:
		return normalizeValue(float64(val))
	case *big.Int:
		if val == nil {
			return nil
		}
		if val.IsInt64() {
			return val.Int64()
		}
		return val.String()
	case time.Time:
		return val.Format(time.RFC3339)
	case float64er:
		return normalizeValue(val.Float64())
	default:
		return val
	}
}
