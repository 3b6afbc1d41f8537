package chart

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/samber/lo"
)

// Figure is the plotly chart description as written by fig.to_json().
type Figure struct {
	Data   []map[string]any `json:"data"`
	Layout map[string]any   `json:"layout,omitempty"`
}

func ParseFigure(raw []byte) (*Figure, error) {
	var fig Figure
	if err := json.Unmarshal(raw, &fig); err != nil {
		return nil, fmt.Errorf("failed to parse chart description: %w", err)
	}
	if fig.Data == nil {
		return nil, fmt.Errorf("chart description has no data")
	}
	return &fig, nil
}

func LoadFigure(path string) (*Figure, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read chart description: %w", err)
	}
	return ParseFigure(raw)
}

func (f *Figure) Save(path string) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to marshal chart description: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write chart description: %w", err)
	}
	return nil
}

// TraceTypes lists each trace's type; plotly treats a missing type as scatter.
func (f *Figure) TraceTypes() []string {
	return lo.Map(f.Data, func(trace map[string]any, _ int) string {
		if t, ok := trace["type"].(string); ok && t != "" {
			return t
		}
		return "scatter"
	})
}
