package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"hdbinsights/services/query"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	ProviderOpenRouter = "openrouter"
	ProviderOpenAI     = "openai"
	ProviderAnthropic  = "anthropic"

	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
)

type Config struct {
	Port      string
	LogLevel  string
	LogFormat string

	LLMProvider      string
	OpenRouterAPIKey string
	OpenAIAPIKey     string
	AnthropicAPIKey  string
	LLMBaseURL       string
	AgentModel       string
	ChartModel       string
	AgentTemperature float64
	ChartTemperature float64

	DataEngine string
	DataSource string
	DataTable  string
	MaxRows    int

	OutputDir        string
	PythonPath       string
	PythonModulePath []string
	ChartTimeout     time.Duration
	ChartMaxAttempts int

	MaxRoundTrips int
	TurnTimeout   time.Duration
	CurrentYear   int

	TurnLogDatabaseURL string

	PineconeAPIKey    string
	PineconeIndexName string
	PineconeNamespace string
	ExampleCount      int
}

// Load reads an optional .env file and resolves every setting from the
// environment, falling back to defaults.
func Load() *Config {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	return &Config{
		Port:      v.GetString("PORT"),
		LogLevel:  v.GetString("LOG_LEVEL"),
		LogFormat: v.GetString("LOG_FORMAT"),

		LLMProvider:      strings.ToLower(v.GetString("LLM_PROVIDER")),
		OpenRouterAPIKey: v.GetString("OPENROUTER_API_KEY"),
		OpenAIAPIKey:     v.GetString("OPENAI_API_KEY"),
		AnthropicAPIKey:  v.GetString("ANTHROPIC_API_KEY"),
		LLMBaseURL:       v.GetString("LLM_BASE_URL"),
		AgentModel:       v.GetString("AGENT_MODEL"),
		ChartModel:       v.GetString("CHART_MODEL"),
		AgentTemperature: v.GetFloat64("AGENT_TEMPERATURE"),
		ChartTemperature: v.GetFloat64("CHART_TEMPERATURE"),

		DataEngine: strings.ToLower(v.GetString("DATA_ENGINE")),
		DataSource: v.GetString("DATA_SOURCE"),
		DataTable:  v.GetString("DATA_TABLE"),
		MaxRows:    v.GetInt("MAX_ROWS"),

		OutputDir:        v.GetString("OUTPUT_DIR"),
		PythonPath:       v.GetString("PYTHON_PATH"),
		PythonModulePath: filepath.SplitList(v.GetString("PYTHON_MODULE_PATH")),
		ChartTimeout:     v.GetDuration("CHART_TIMEOUT"),
		ChartMaxAttempts: v.GetInt("CHART_MAX_ATTEMPTS"),

		MaxRoundTrips: v.GetInt("MAX_ROUND_TRIPS"),
		TurnTimeout:   v.GetDuration("TURN_TIMEOUT"),
		CurrentYear:   v.GetInt("CURRENT_YEAR"),

		TurnLogDatabaseURL: v.GetString("TURN_LOG_DB_URL"),

		PineconeAPIKey:    v.GetString("PINECONE_API_KEY"),
		PineconeIndexName: v.GetString("PINECONE_INDEX_NAME"),
		PineconeNamespace: v.GetString("PINECONE_NAMESPACE"),
		ExampleCount:      v.GetInt("EXAMPLE_COUNT"),
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")

	v.SetDefault("LLM_PROVIDER", ProviderOpenRouter)
	v.SetDefault("AGENT_MODEL", "deepseek/deepseek-chat-v3.1:free")
	v.SetDefault("CHART_MODEL", "qwen/qwen-2.5-coder-32b-instruct:free")
	v.SetDefault("AGENT_TEMPERATURE", 0.2)
	v.SetDefault("CHART_TEMPERATURE", 0.1)

	v.SetDefault("DATA_ENGINE", "duckdb")
	v.SetDefault("DATA_SOURCE", "database/HDB_data.db")
	v.SetDefault("DATA_TABLE", "resale_data_2017_to_2025")
	v.SetDefault("MAX_ROWS", query.DefaultMaxRows)

	v.SetDefault("OUTPUT_DIR", "visualisation_outputs")
	v.SetDefault("PYTHON_PATH", "python3")
	v.SetDefault("CHART_TIMEOUT", 60*time.Second)
	v.SetDefault("CHART_MAX_ATTEMPTS", 3)

	v.SetDefault("MAX_ROUND_TRIPS", 8)
	v.SetDefault("TURN_TIMEOUT", 3*time.Minute)
	v.SetDefault("CURRENT_YEAR", time.Now().Year())

	v.SetDefault("PINECONE_INDEX_NAME", "hdb-sql-examples")
	v.SetDefault("PINECONE_NAMESPACE", "resale-examples")
	v.SetDefault("EXAMPLE_COUNT", 3)
}

// LLMAPIKey returns the key matching the selected provider.
func (c *Config) LLMAPIKey() string {
	switch c.LLMProvider {
	case ProviderAnthropic:
		return c.AnthropicAPIKey
	case ProviderOpenAI:
		return c.OpenAIAPIKey
	default:
		return c.OpenRouterAPIKey
	}
}

// ExamplesEnabled reports whether few-shot example retrieval can be wired.
func (c *Config) ExamplesEnabled() bool {
	return c.PineconeAPIKey != "" && c.OpenAIAPIKey != ""
}

func (c *Config) Validate() error {
	switch c.LLMProvider {
	case ProviderOpenRouter:
		if c.OpenRouterAPIKey == "" {
			return fmt.Errorf("OPENROUTER_API_KEY environment variable is required")
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY environment variable is required")
		}
	case ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY environment variable is required")
		}
	default:
		return fmt.Errorf("unsupported LLM_PROVIDER %q", c.LLMProvider)
	}

	if c.DataSource == "" {
		return fmt.Errorf("DATA_SOURCE environment variable is required")
	}
	if c.MaxRows <= 0 || c.MaxRows > query.DefaultMaxRows {
		return fmt.Errorf("MAX_ROWS must be between 1 and %d, got %d", query.DefaultMaxRows, c.MaxRows)
	}
	if c.ChartMaxAttempts <= 0 {
		return fmt.Errorf("CHART_MAX_ATTEMPTS must be positive, got %d", c.ChartMaxAttempts)
	}
	if c.MaxRoundTrips <= 0 {
		return fmt.Errorf("MAX_ROUND_TRIPS must be positive, got %d", c.MaxRoundTrips)
	}

	return nil
}
