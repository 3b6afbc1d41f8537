package chart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"hdbinsights/models"
	"hdbinsights/services/llm"

	"github.com/rs/zerolog"
)

const DefaultMaxAttempts = 3

type Options struct {
	Model       string
	Temperature float64
	MaxAttempts int
}

// Generator asks a model for plotly code, runs it and persists the chart,
// feeding execution failures back to the model for a bounded number of
// attempts.
type Generator struct {
	model     llm.ChatModel
	sandbox   Sandbox
	store     *ArtifactStore
	validator *CodeValidator
	opts      Options
	logger    zerolog.Logger
}

func NewGenerator(model llm.ChatModel, sandbox Sandbox, store *ArtifactStore, opts Options, logger zerolog.Logger) *Generator {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	return &Generator{
		model:     model,
		sandbox:   sandbox,
		store:     store,
		validator: NewCodeValidator(DefaultAllowedImports),
		opts:      opts,
		logger:    logger.With().Str("component", "chart").Logger(),
	}
}

func (g *Generator) Store() *ArtifactStore {
	return g.store
}

func (g *Generator) Generate(ctx context.Context, data *models.QueryResult, instructions string) models.ChartOutcome {
	if data == nil {
		return models.ChartOutcome{Error: "no query result available to visualise"}
	}

	payload, err := json.MarshalIndent(map[string]any{"result_df": data}, "", "  ")
	if err != nil {
		return models.ChartOutcome{Error: fmt.Sprintf("failed to serialize query result: %v", err)}
	}

	messages := []models.AgentMessage{
		{Role: models.RoleUser, Content: buildChartPrompt(string(payload), instructions)},
	}

	var last models.ChartOutcome
	for attempt := 1; attempt <= g.opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			last = models.ChartOutcome{Error: fmt.Sprintf("chart generation cancelled: %v", err)}
			break
		}

		log := g.logger.With().Int("attempt", attempt).Logger()

		reply, err := g.model.Generate(ctx, llm.Request{
			Model:       g.opts.Model,
			Messages:    messages,
			Temperature: llm.Temperature(g.opts.Temperature),
		})
		if err != nil {
			log.Error().Err(err).Msg("Failed to generate chart code")
			last = models.ChartOutcome{Error: fmt.Sprintf("failed to generate chart code: %v", err)}
			continue
		}

		code := stripCodeFences(reply.Content)
		log.Debug().Str("code", code).Msg("Generated chart code")

		render, err := g.execute(ctx, code, data)
		if err == nil {
			outcome, saveErr := g.store.Save(render)
			if saveErr != nil {
				log.Error().Err(saveErr).Msg("Failed to persist chart")
				return models.ChartOutcome{Error: saveErr.Error(), Code: code}
			}
			outcome.Code = code
			log.Info().Str("chart_id", outcome.UUID).Msg("Chart generated")
			return outcome
		}

		last = failureOutcome(err)
		log.Warn().Str("error", last.Error).Msg("Chart code failed")

		messages = append(messages,
			models.AgentMessage{Role: models.RoleAssistant, Content: reply.Content},
			models.AgentMessage{Role: models.RoleUser, Content: buildFixPrompt(last.Error, code)},
		)
	}

	if last.Error == "" {
		last.Error = "chart generation failed"
	}
	return last
}

func (g *Generator) execute(ctx context.Context, code string, data *models.QueryResult) (*Render, error) {
	if err := g.validator.Validate(code); err != nil {
		return nil, err
	}
	return g.sandbox.Run(ctx, code, data)
}

func failureOutcome(err error) models.ChartOutcome {
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return models.ChartOutcome{Error: execErr.Message, Traceback: execErr.Traceback}
	}
	return models.ChartOutcome{Error: err.Error()}
}
