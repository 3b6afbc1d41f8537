package chart

import (
	"context"

	"hdbinsights/models"
)

// Render is what a successful execution produces: the serialized figure and
// its PNG rendering.
type Render struct {
	FigureJSON []byte
	PNG        []byte
}

// Sandbox executes chart code against a query result. Failures of the code
// itself are reported as *ExecutionError.
type Sandbox interface {
	Run(ctx context.Context, code string, data *models.QueryResult) (*Render, error)
}

type ExecutionError struct {
	Message   string
	Traceback string
}

func (e *ExecutionError) Error() string {
	return e.Message
}
