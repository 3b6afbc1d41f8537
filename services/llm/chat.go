package llm

import (
	"context"
	"errors"

	"hdbinsights/models"
)

var ErrNoChoices = errors.New("model returned no choices")

// ChatModel is a single request/response exchange with a hosted model.
// Implementations must be safe for concurrent use.
type ChatModel interface {
	Generate(ctx context.Context, req Request) (*models.AgentMessage, error)
}

type Request struct {
	Model       string
	Messages    []models.AgentMessage
	Tools       []ToolSpec
	Temperature *float64
	MaxTokens   int
}

// ToolSpec declares a callable tool. Parameters is a JSON schema object.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

func Temperature(t float64) *float64 {
	return &t
}

// splitSystem returns the concatenated content of the leading system
// messages and the remaining conversation.
func splitSystem(messages []models.AgentMessage) (string, []models.AgentMessage) {
	system := ""
	i := 0
	for ; i < len(messages) && messages[i].Role == models.RoleSystem; i++ {
		if system != "" {
			system += "\n\n"
		}
		system += messages[i].Content
	}
	return system, messages[i:]
}
