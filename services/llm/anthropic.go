package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"hdbinsights/models"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

const defaultAnthropicMaxTokens = 4096

type AnthropicModel struct {
	client       *anthropic.Client
	defaultModel string
	logger       zerolog.Logger
}

func NewAnthropicModel(apiKey, defaultModel string, logger zerolog.Logger) *AnthropicModel {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	return &AnthropicModel{
		client:       &client,
		defaultModel: defaultModel,
		logger:       logger.With().Str("component", "llm").Str("provider", "anthropic").Logger(),
	}
}

func (m *AnthropicModel) Generate(ctx context.Context, req Request) (*models.AgentMessage, error) {
	model := req.Model
	if model == "" {
		model = m.defaultModel
	}

	maxTokens := int64(defaultAnthropicMaxTokens)
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}

	system, conversation := splitSystem(req.Messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages:  toAnthropicMessages(conversation),
		Tools:     toAnthropicTools(req.Tools),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}

	m.logger.Debug().
		Str("model", model).
		Int("messages", len(params.Messages)).
		Int("tools", len(params.Tools)).
		Msg("Calling model")

	response, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to call Anthropic API: %w", err)
	}

	msg := &models.AgentMessage{Role: models.RoleAssistant}
	for _, block := range response.Content {
		switch block := block.AsAny().(type) {
		case anthropic.TextBlock:
			msg.Content += block.Text
		case anthropic.ToolUseBlock:
			msg.ToolCalls = append(msg.ToolCalls, models.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: string(block.Input),
			})
		}
	}

	m.logger.Debug().
		Str("stop_reason", string(response.StopReason)).
		Int("tool_calls", len(msg.ToolCalls)).
		Msg("Model responded")

	return msg, nil
}

func toAnthropicTools(specs []ToolSpec) []anthropic.ToolUnionParam {
	var tools []anthropic.ToolUnionParam
	for _, spec := range specs {
		tools = append(tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        spec.Name,
				Description: anthropic.String(spec.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: spec.Parameters["properties"],
					Required:   requiredFields(spec.Parameters),
				},
			},
		})
	}
	return tools
}

// toAnthropicMessages maps the transcript onto alternating user/assistant
// turns. Consecutive tool results are folded into one user message.
func toAnthropicMessages(messages []models.AgentMessage) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	var pendingResults []anthropic.ContentBlockParamUnion

	flush := func() {
		if len(pendingResults) > 0 {
			out = append(out, anthropic.NewUserMessage(pendingResults...))
			pendingResults = nil
		}
	}

	for _, msg := range messages {
		switch msg.Role {
		case models.RoleUser:
			flush()
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case models.RoleAssistant:
			flush()
			blocks := []anthropic.ContentBlockParamUnion{}
			if msg.Content != "" {
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfText: &anthropic.TextBlockParam{Text: msg.Content},
				})
			}
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    tc.ID,
						Name:  tc.Name,
						Input: toolInput(tc.Arguments),
					},
				})
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		case models.RoleTool:
			pendingResults = append(pendingResults, anthropic.ContentBlockParamUnion{
				OfToolResult: &anthropic.ToolResultBlockParam{
					ToolUseID: msg.ToolCallID,
					Content: []anthropic.ToolResultBlockParamContentUnion{
						{OfText: &anthropic.TextBlockParam{Text: msg.Content}},
					},
				},
			})
		}
	}
	flush()

	return out
}

func toolInput(arguments string) any {
	if json.Valid([]byte(arguments)) {
		return json.RawMessage(arguments)
	}
	return map[string]any{}
}

func requiredFields(schema map[string]any) []string {
	switch required := schema["required"].(type) {
	case []string:
		return required
	case []any:
		return lo.FilterMap(required, func(v any, _ int) (string, bool) {
			name, ok := v.(string)
			return name, ok
		})
	default:
		return nil
	}
}
