package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"hdbinsights/services/llm"
)

const (
	SQLToolName           = "execute_sql_query"
	VisualisationToolName = "execute_visualisation_code"
)

// ToolKind is the closed set of tools the model can call. Anything the
// model names outside this set resolves to ToolUnknown.
type ToolKind int

const (
	ToolUnknown ToolKind = iota
	ToolSQL
	ToolVisualisation
)

func (k ToolKind) String() string {
	switch k {
	case ToolSQL:
		return SQLToolName
	case ToolVisualisation:
		return VisualisationToolName
	default:
		return "unknown"
	}
}

func ResolveTool(name string) ToolKind {
	switch strings.TrimSpace(name) {
	case SQLToolName:
		return ToolSQL
	case VisualisationToolName:
		return ToolVisualisation
	default:
		return ToolUnknown
	}
}

type SQLToolInput struct {
	SQLQuery string `json:"sql_query" jsonschema:"required,description=The DuckDB SQL query to be executed."`
}

type VisualisationToolInput struct {
	Instructions string `json:"instructions" jsonschema:"required,description=What the chart should show: chart type and which columns go on which axis."`
}

func toolDeclarations() []llm.ToolSpec {
	return []llm.ToolSpec{
		{
			Name:        SQLToolName,
			Description: "Execute the DuckDB SQL query and return the results.",
			Parameters:  llm.SchemaFor[SQLToolInput](),
		},
		{
			Name:        VisualisationToolName,
			Description: "Generate instructions for Python code to visualize the SQL query results. Uses the most recent successful query result.",
			Parameters:  llm.SchemaFor[VisualisationToolInput](),
		},
	}
}

func parseToolInput[T any](toolName, arguments string) (T, error) {
	var params T
	if strings.TrimSpace(arguments) == "" {
		arguments = "{}"
	}
	if err := json.Unmarshal([]byte(arguments), &params); err != nil {
		return params, fmt.Errorf("failed to parse %s arguments: %v", toolName, err)
	}
	return params, nil
}

func toolError(message string) string {
	raw, _ := json.Marshal(map[string]string{"error": message})
	return string(raw)
}
