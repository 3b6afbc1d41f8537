package app

import (
	"context"
	"fmt"

	"hdbinsights/config"
	"hdbinsights/db"
	"hdbinsights/services"
	"hdbinsights/services/agent"
	"hdbinsights/services/chart"
	"hdbinsights/services/examples"
	"hdbinsights/services/llm"
	"hdbinsights/services/query"

	"github.com/rs/zerolog"
)

// App holds the wired services shared by the server and the CLI.
type App struct {
	Agent    *agent.Service
	Executor *query.Executor
	Charts   *chart.Generator
	Store    *chart.ArtifactStore
	Turns    *services.TurnService

	turnRepo *db.PostgresTurnRepository
}

// New wires every service from configuration. An unreachable turn history
// database fails startup; unavailable example retrieval only logs a warning.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	source, err := db.NewDataSource(cfg.DataEngine, cfg.DataSource)
	if err != nil {
		return nil, fmt.Errorf("failed to configure data source: %w", err)
	}
	executor := query.NewExecutor(source, cfg.DataTable, cfg.MaxRows, logger)

	agentModel, err := llm.NewFromConfig(cfg, cfg.AgentModel, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent model: %w", err)
	}
	chartModel, err := llm.NewFromConfig(cfg, cfg.ChartModel, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create chart model: %w", err)
	}

	store := chart.NewArtifactStore(cfg.OutputDir)
	generator := chart.NewGenerator(
		chartModel,
		chart.NewPythonSandbox(cfg.PythonPath, cfg.ChartTimeout, logger).WithModulePaths(cfg.PythonModulePath...),
		store,
		chart.Options{
			Model:       cfg.ChartModel,
			Temperature: cfg.ChartTemperature,
			MaxAttempts: cfg.ChartMaxAttempts,
		},
		logger,
	)

	agentService := agent.NewService(agentModel, executor, generator, agent.Options{
		Model:         cfg.AgentModel,
		Temperature:   cfg.AgentTemperature,
		MaxRoundTrips: cfg.MaxRoundTrips,
		TurnTimeout:   cfg.TurnTimeout,
		Table:         cfg.DataTable,
		CurrentYear:   cfg.CurrentYear,
	}, logger)

	if cfg.ExamplesEnabled() {
		retriever, err := examples.NewService(ctx, cfg.PineconeAPIKey, cfg.OpenAIAPIKey, cfg.PineconeIndexName, cfg.PineconeNamespace, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("Example retrieval unavailable, continuing without it")
		} else {
			agentService.WithExamples(retriever, cfg.ExampleCount)
		}
	}

	a := &App{
		Agent:    agentService,
		Executor: executor,
		Charts:   generator,
		Store:    store,
	}

	if cfg.TurnLogDatabaseURL != "" {
		repo, err := db.NewPostgresTurnRepository(cfg.TurnLogDatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize turn database: %w", err)
		}
		if err := repo.Migrate(ctx); err != nil {
			repo.Close()
			return nil, err
		}
		a.turnRepo = repo
		a.Turns = services.NewTurnService(repo, logger)
	}

	logger.Info().
		Str("provider", cfg.LLMProvider).
		Str("engine", cfg.DataEngine).
		Str("table", cfg.DataTable).
		Bool("turn_history", a.Turns != nil).
		Msg("Services initialized")

	return a, nil
}

func (a *App) Close() error {
	if a.turnRepo != nil {
		return a.turnRepo.Close()
	}
	return nil
}
