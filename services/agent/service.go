package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"hdbinsights/models"
	"hdbinsights/services/llm"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

const (
	DefaultMaxRoundTrips = 8

	roundTripsExhaustedInsight = "I could not complete this analysis within the allowed number of steps. " +
		"Any data or chart retrieved so far is shown below; try asking a more specific question."

	turnTimedOutInsight = "I ran out of time before finishing this analysis. " +
		"Any data or chart retrieved so far is shown below; try asking a narrower question."
)

type QueryRunner interface {
	Run(ctx context.Context, sql string) models.SQLToolResult
}

type ChartGenerator interface {
	Generate(ctx context.Context, data *models.QueryResult, instructions string) models.ChartOutcome
}

type ExampleRetriever interface {
	SimilarExamples(ctx context.Context, question string, k int) ([]models.SQLExample, error)
}

type Options struct {
	Model         string
	Temperature   float64
	MaxRoundTrips int
	TurnTimeout   time.Duration
	Table         string
	CurrentYear   int
	ExampleCount  int
}

type Service struct {
	model    llm.ChatModel
	queries  QueryRunner
	charts   ChartGenerator
	examples ExampleRetriever
	tools    []llm.ToolSpec
	opts     Options
	logger   zerolog.Logger
}

func NewService(model llm.ChatModel, queries QueryRunner, charts ChartGenerator, opts Options, logger zerolog.Logger) *Service {
	if opts.MaxRoundTrips <= 0 {
		opts.MaxRoundTrips = DefaultMaxRoundTrips
	}
	if opts.Table == "" {
		opts.Table = DefaultTable
	}
	if opts.CurrentYear == 0 {
		opts.CurrentYear = time.Now().Year()
	}

	return &Service{
		model:   model,
		queries: queries,
		charts:  charts,
		tools:   toolDeclarations(),
		opts:    opts,
		logger:  logger.With().Str("component", "agent").Logger(),
	}
}

// WithExamples enables few-shot retrieval; k examples are added to the
// system prompt of every turn.
func (s *Service) WithExamples(retriever ExampleRetriever, k int) *Service {
	s.examples = retriever
	s.opts.ExampleCount = k
	return s
}

// Turn is the result of one question plus the bookkeeping callers may log.
type Turn struct {
	Output     models.TurnOutput
	RoundTrips int
	SQLQueries []string
	Exhausted  bool
	TimedOut   bool
	Transcript []models.AgentMessage
}

type State int

const (
	StateAwaitingModel State = iota
	StateDispatchingTools
	StateDone
)

func (s State) String() string {
	switch s {
	case StateAwaitingModel:
		return "AWAITING_MODEL"
	case StateDispatchingTools:
		return "DISPATCHING_TOOLS"
	case StateDone:
		return "DONE"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// turnState is private to one Ask call and never shared.
type turnState struct {
	state      State
	transcript []models.AgentMessage
	pending    []models.ToolCall
	result     *models.QueryResult
	chart      *models.ChartOutcome
	insight    string
	roundTrips int
	sqlQueries []string
	exhausted  bool
	timedOut   bool
}

func (s *Service) Ask(ctx context.Context, question string) (*Turn, error) {
	if s.opts.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.TurnTimeout)
		defer cancel()
	}

	start := time.Now()
	s.logger.Info().Str("question", question).Msg("Starting agent turn")

	t := &turnState{
		state: StateAwaitingModel,
		transcript: []models.AgentMessage{
			{Role: models.RoleSystem, Content: s.systemPrompt(ctx, question)},
			{Role: models.RoleUser, Content: question},
		},
	}

	for t.state != StateDone {
		switch t.state {
		case StateAwaitingModel:
			if err := s.awaitModel(ctx, t); err != nil {
				return nil, err
			}
		case StateDispatchingTools:
			s.dispatchTools(ctx, t)
		}
	}

	turn := &Turn{
		Output:     s.assemble(t),
		RoundTrips: t.roundTrips,
		SQLQueries: t.sqlQueries,
		Exhausted:  t.exhausted,
		TimedOut:   t.timedOut,
		Transcript: t.transcript,
	}

	s.logger.Info().
		Int("round_trips", t.roundTrips).
		Bool("timed_out", t.timedOut).
		Bool("has_result", turn.Output.ResultDF != nil).
		Bool("has_chart", turn.Output.Visualisation != nil).
		Dur("elapsed", time.Since(start)).
		Msg("Agent turn completed")

	return turn, nil
}

func (s *Service) awaitModel(ctx context.Context, t *turnState) error {
	if t.roundTrips >= s.opts.MaxRoundTrips {
		s.logger.Warn().Int("round_trips", t.roundTrips).Msg("Round trip limit reached, ending turn")
		t.insight = roundTripsExhaustedInsight
		t.exhausted = true
		t.state = StateDone
		return nil
	}
	if err := ctx.Err(); err != nil {
		return s.endOnContext(t, err)
	}

	reply, err := s.model.Generate(ctx, llm.Request{
		Model:       s.opts.Model,
		Messages:    t.transcript,
		Tools:       s.tools,
		Temperature: llm.Temperature(s.opts.Temperature),
	})
	t.roundTrips++
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return s.endOnContext(t, ctxErr)
		}
		s.logger.Error().Err(err).Msg("Failed to call model")
		return fmt.Errorf("failed to call model: %w", err)
	}

	reply.Role = models.RoleAssistant
	t.transcript = append(t.transcript, *reply)

	if len(reply.ToolCalls) == 0 {
		t.insight = reply.Content
		t.state = StateDone
		return nil
	}

	s.logger.Info().
		Strs("tools", lo.Map(reply.ToolCalls, func(c models.ToolCall, _ int) string { return c.Name })).
		Msg("Model requested tools")

	t.pending = reply.ToolCalls
	t.state = StateDispatchingTools
	return nil
}

// endOnContext finishes the turn with whatever was retrieved when the turn
// deadline passes. Cancellation by the caller is still an error.
func (s *Service) endOnContext(t *turnState, ctxErr error) error {
	if !errors.Is(ctxErr, context.DeadlineExceeded) {
		return fmt.Errorf("agent turn aborted: %w", ctxErr)
	}
	s.logger.Warn().Int("round_trips", t.roundTrips).Msg("Turn deadline reached, ending turn")
	t.insight = turnTimedOutInsight
	t.timedOut = true
	t.pending = nil
	t.state = StateDone
	return nil
}

func (s *Service) dispatchTools(ctx context.Context, t *turnState) {
	for _, call := range t.pending {
		content := s.executeTool(ctx, t, call)
		t.transcript = append(t.transcript, models.AgentMessage{
			Role:       models.RoleTool,
			ToolCallID: call.ID,
			Name:       call.Name,
			Content:    content,
		})
	}
	t.pending = nil
	t.state = StateAwaitingModel
}

func (s *Service) executeTool(ctx context.Context, t *turnState, call models.ToolCall) string {
	log := s.logger.With().Str("tool", call.Name).Str("tool_call_id", call.ID).Logger()

	switch ResolveTool(call.Name) {
	case ToolSQL:
		params, err := parseToolInput[SQLToolInput](SQLToolName, call.Arguments)
		if err != nil {
			log.Warn().Err(err).Msg("Invalid tool arguments")
			return toolError(err.Error())
		}

		t.sqlQueries = append(t.sqlQueries, params.SQLQuery)
		res := s.queries.Run(ctx, params.SQLQuery)
		if res.ResultDF != nil {
			t.result = res.ResultDF
			log.Info().Int("rows", res.ResultDF.RowCount()).Msg("SQL executed")
		} else {
			log.Warn().Str("error", res.Error).Msg("SQL failed")
		}
		return marshalToolResult(res)

	case ToolVisualisation:
		params, err := parseToolInput[VisualisationToolInput](VisualisationToolName, call.Arguments)
		if err != nil {
			log.Warn().Err(err).Msg("Invalid tool arguments")
			return toolError(err.Error())
		}

		if t.result == nil {
			log.Warn().Msg("Visualisation requested before any query result")
			return marshalToolResult(models.ChartOutcome{
				Error: "No query result available. Call " + SQLToolName + " successfully before requesting a visualisation.",
			})
		}

		outcome := s.charts.Generate(ctx, t.result, params.Instructions)
		if outcome.Success {
			t.chart = &outcome
			log.Info().Str("chart_id", outcome.UUID).Msg("Visualisation created")
		} else {
			log.Warn().Str("error", outcome.Error).Msg("Visualisation failed")
		}
		return marshalToolResult(outcome)

	default:
		if call.Name == "" {
			log.Warn().Msg("Tool call missing name, ignoring")
			return "Tool call missing name."
		}
		log.Warn().Msg("Unknown tool requested")
		return fmt.Sprintf("Tool %q does not exist. Available tools: %s, %s.", call.Name, SQLToolName, VisualisationToolName)
	}
}

func (s *Service) assemble(t *turnState) models.TurnOutput {
	out := models.TurnOutput{
		Insight:  t.insight,
		ResultDF: t.result,
	}
	if t.chart != nil {
		path := t.chart.FigPath
		out.Visualisation = &path
		out.ChartID = t.chart.UUID
	}
	return out
}

func (s *Service) systemPrompt(ctx context.Context, question string) string {
	var examples []models.SQLExample
	if s.examples != nil && s.opts.ExampleCount > 0 {
		found, err := s.examples.SimilarExamples(ctx, question, s.opts.ExampleCount)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Example retrieval failed, continuing without examples")
		} else {
			examples = found
		}
	}
	return BuildSystemPrompt(s.opts.Table, ResaleSchema(s.opts.Table), s.opts.CurrentYear, examples)
}

func marshalToolResult(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return toolError(fmt.Sprintf("failed to serialize tool result: %v", err))
	}
	return string(raw)
}
