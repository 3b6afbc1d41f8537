package llm

import (
	"context"
	"errors"
	"testing"

	"hdbinsights/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type fakeLLM struct {
	resp     *llms.ContentResponse
	err      error
	messages []llms.MessageContent
	opts     llms.CallOptions
}

func (f *fakeLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = messages
	for _, opt := range options {
		opt(&f.opts)
	}
	return f.resp, f.err
}

func (f *fakeLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return "", errors.New("not implemented")
}

func TestLangchainModelGenerate(t *testing.T) {
	fake := &fakeLLM{
		resp: &llms.ContentResponse{
			Choices: []*llms.ContentChoice{{
				ToolCalls: []llms.ToolCall{{
					ID:   "call_1",
					Type: "function",
					FunctionCall: &llms.FunctionCall{
						Name:      "execute_sql_query",
						Arguments: `{"sql_query":"SELECT 1"}`,
					},
				}},
			}},
		},
	}
	model := NewLangchainModel(fake, zerolog.Nop())

	msg, err := model.Generate(context.Background(), Request{
		Model: "deepseek/deepseek-chat-v3.1:free",
		Messages: []models.AgentMessage{
			{Role: models.RoleSystem, Content: "system"},
			{Role: models.RoleUser, Content: "How many rows?"},
		},
		Tools:       []ToolSpec{{Name: "execute_sql_query", Description: "run sql", Parameters: map[string]any{"type": "object"}}},
		Temperature: Temperature(0.2),
	})
	require.NoError(t, err)

	assert.Equal(t, models.RoleAssistant, msg.Role)
	require.Len(t, msg.ToolCalls, 1)
	assert.Equal(t, models.ToolCall{ID: "call_1", Name: "execute_sql_query", Arguments: `{"sql_query":"SELECT 1"}`}, msg.ToolCalls[0])

	assert.Equal(t, "deepseek/deepseek-chat-v3.1:free", fake.opts.Model)
	assert.InDelta(t, 0.2, fake.opts.Temperature, 1e-9)
	require.Len(t, fake.opts.Tools, 1)
	assert.Equal(t, "execute_sql_query", fake.opts.Tools[0].Function.Name)
	require.Len(t, fake.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, fake.messages[0].Role)
}

func TestLangchainModelErrors(t *testing.T) {
	t.Run("no choices", func(t *testing.T) {
		model := NewLangchainModel(&fakeLLM{resp: &llms.ContentResponse{}}, zerolog.Nop())
		_, err := model.Generate(context.Background(), Request{})
		assert.ErrorIs(t, err, ErrNoChoices)
	})

	t.Run("client failure", func(t *testing.T) {
		boom := errors.New("rate limited")
		model := NewLangchainModel(&fakeLLM{err: boom}, zerolog.Nop())
		_, err := model.Generate(context.Background(), Request{})
		assert.ErrorIs(t, err, boom)
	})
}

func TestToLangchainMessages(t *testing.T) {
	transcript := []models.AgentMessage{
		{Role: models.RoleSystem, Content: "system"},
		{Role: models.RoleUser, Content: "question"},
		{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{
			{ID: "a", Name: "execute_sql_query", Arguments: `{}`},
			{ID: "b", Name: "execute_visualisation_code", Arguments: `{}`},
		}},
		{Role: models.RoleTool, ToolCallID: "a", Name: "execute_sql_query", Content: `{"result_df":{}}`},
		{Role: models.RoleTool, ToolCallID: "b", Name: "execute_visualisation_code", Content: `{"success":false}`},
	}

	out := toLangchainMessages(transcript)
	require.Len(t, out, 5)

	assert.Equal(t, llms.ChatMessageTypeAI, out[2].Role)
	require.Len(t, out[2].Parts, 2)
	call, ok := out[2].Parts[1].(llms.ToolCall)
	require.True(t, ok)
	assert.Equal(t, "b", call.ID)

	assert.Equal(t, llms.ChatMessageTypeTool, out[3].Role)
	resp, ok := out[3].Parts[0].(llms.ToolCallResponse)
	require.True(t, ok)
	assert.Equal(t, "a", resp.ToolCallID)
	assert.Equal(t, `{"result_df":{}}`, resp.Content)
}
