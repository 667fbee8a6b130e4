// Package config loads chainkit settings from a YAML file and CHAINKIT_*
// environment variables. Environment values win over the file, the file wins
// over the defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/chainkit/logging"
)

// Environment variables read by ApplyEnv.
const (
	EnvProvider       = "CHAINKIT_PROVIDER"
	EnvModel          = "CHAINKIT_MODEL"
	EnvAPIKey         = "CHAINKIT_API_KEY"
	EnvBaseURL        = "CHAINKIT_BASE_URL"
	EnvTemperature    = "CHAINKIT_TEMPERATURE"
	EnvMaxTokens      = "CHAINKIT_MAX_TOKENS"
	EnvStreaming      = "CHAINKIT_STREAMING"
	EnvEmbeddingModel = "CHAINKIT_EMBEDDING_MODEL"
	EnvMaxSessions    = "CHAINKIT_MAX_SESSIONS"
	EnvDBPath         = "CHAINKIT_DB_PATH"
	EnvReportDir      = "CHAINKIT_REPORT_DIR"
	EnvLogLevel       = "CHAINKIT_LOG_LEVEL"
	EnvLogFormat      = "CHAINKIT_LOG_FORMAT"
)

// Supported model providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderMock      = "mock"
)

// Config is the complete chainkit configuration.
type Config struct {
	Model  ModelConfig  `yaml:"model"`
	Stream StreamConfig `yaml:"stream"`
	Tools  ToolsConfig  `yaml:"tools"`
	Log    LogConfig    `yaml:"log"`
}

// ModelConfig selects and tunes the chat model.
type ModelConfig struct {
	Provider       string  `yaml:"provider"` // "openai", "anthropic" or "mock"
	Name           string  `yaml:"name,omitempty"`
	APIKey         string  `yaml:"api_key,omitempty"` // falls back to the SDK's own env variable
	BaseURL        string  `yaml:"base_url,omitempty"`
	Temperature    float64 `yaml:"temperature"`
	MaxTokens      int64   `yaml:"max_tokens,omitempty"`
	Streaming      bool    `yaml:"streaming"`
	EmbeddingModel string  `yaml:"embedding_model,omitempty"`
}

// StreamConfig tunes the streaming bridge.
type StreamConfig struct {
	MaxConcurrentSessions int `yaml:"max_concurrent_sessions"`
}

// ToolsConfig configures the bundled tools.
type ToolsConfig struct {
	DBPath    string `yaml:"db_path,omitempty"`
	ReportDir string `yaml:"report_dir,omitempty"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"` // "json" or "text"
	AddSource bool   `yaml:"add_source,omitempty"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Model: ModelConfig{
			Provider:    ProviderOpenAI,
			Temperature: 0,
			Streaming:   true,
		},
		Stream: StreamConfig{MaxConcurrentSessions: 10},
		Tools: ToolsConfig{
			DBPath:    "db.sqlite",
			ReportDir: ".",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds a Config from the defaults, the YAML file at path (skipped when
// path is empty) and the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// ApplyEnv overrides fields from the environment using getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	c.Model.Provider = strings.ToLower(firstNonEmpty(getenv(EnvProvider), c.Model.Provider))
	c.Model.Name = firstNonEmpty(getenv(EnvModel), c.Model.Name)
	c.Model.APIKey = firstNonEmpty(getenv(EnvAPIKey), c.Model.APIKey)
	c.Model.BaseURL = firstNonEmpty(getenv(EnvBaseURL), c.Model.BaseURL)
	c.Model.EmbeddingModel = firstNonEmpty(getenv(EnvEmbeddingModel), c.Model.EmbeddingModel)
	c.Tools.DBPath = firstNonEmpty(getenv(EnvDBPath), c.Tools.DBPath)
	c.Tools.ReportDir = firstNonEmpty(getenv(EnvReportDir), c.Tools.ReportDir)
	c.Log.Level = firstNonEmpty(getenv(EnvLogLevel), c.Log.Level)
	c.Log.Format = firstNonEmpty(getenv(EnvLogFormat), c.Log.Format)

	if v := getenv(EnvTemperature); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTemperature, err)
		}
		c.Model.Temperature = f
	}

	if v := getenv(EnvMaxTokens); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxTokens, err)
		}
		c.Model.MaxTokens = n
	}

	if v := getenv(EnvStreaming); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvStreaming, err)
		}
		c.Model.Streaming = b
	}

	if v := getenv(EnvMaxSessions); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxSessions, err)
		}
		c.Stream.MaxConcurrentSessions = n
	}

	return nil
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	var errs []error

	switch c.Model.Provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderMock:
	default:
		errs = append(errs, fmt.Errorf("model.provider: unsupported provider %q", c.Model.Provider))
	}

	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		errs = append(errs, fmt.Errorf("model.temperature: %v out of range [0, 2]", c.Model.Temperature))
	}

	if c.Model.MaxTokens < 0 {
		errs = append(errs, errors.New("model.max_tokens: must not be negative"))
	}

	if c.Stream.MaxConcurrentSessions < 0 {
		errs = append(errs, errors.New("stream.max_concurrent_sessions: must not be negative"))
	}

	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format: unsupported format %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// NewLogger builds the structured logger described by c.
func (c LogConfig) NewLogger() *logging.StructuredLogger {
	return logging.NewSlogLogger(logging.ParseLevel(c.Level), strings.ToLower(c.Format), c.AddSource)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
