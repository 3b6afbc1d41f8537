package models

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

type AgentMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolCall is a tool invocation requested by the model. Arguments holds the
// raw JSON argument string exactly as the model produced it.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type AskRequest struct {
	Question string `json:"question"`
}

// TurnOutput is the payload handed to the presentation layer at the end of a turn.
type TurnOutput struct {
	Insight       string       `json:"insight"`
	ResultDF      *QueryResult `json:"result_df"`
	Visualisation *string      `json:"visualisation"`
	ChartID       string       `json:"chart_id,omitempty"`
}
