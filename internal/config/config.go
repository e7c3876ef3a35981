// Package config loads the Scribe server configuration from YAML with
// environment variable expansion and sensible defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure for Scribe.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Engine    EngineConfig    `yaml:"engine"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Skills    SkillsConfig    `yaml:"skills"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// ReadHeaderTimeout bounds how long the server waits for request headers.
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`

	// ShutdownTimeout bounds graceful shutdown on SIGTERM.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type StorageConfig struct {
	// Path is the SQLite database file. ":memory:" keeps everything
	// in-process, which is what the tests use.
	Path string `yaml:"path"`
}

type EngineConfig struct {
	// Provider selects the execution engine: "anthropic", "openai",
	// or "scripted" (dev/testing).
	Provider string `yaml:"provider"`

	// Model is the model identifier passed to the provider.
	Model string `yaml:"model"`

	// APIKey authenticates with the provider. Usually set via
	// ${ANTHROPIC_API_KEY} or ${OPENAI_API_KEY} expansion.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider endpoint (proxies, local gateways).
	BaseURL string `yaml:"base_url"`

	// MaxTokens caps the completion length per LLM round trip.
	MaxTokens int `yaml:"max_tokens"`

	// MaxToolRounds caps how many tool-use cycles one run may perform.
	MaxToolRounds int `yaml:"max_tool_rounds"`

	// SystemPrompt is prepended to every run.
	SystemPrompt string `yaml:"system_prompt"`
}

type ArtifactsConfig struct {
	// Root is the directory under which per-conversation artifact
	// directories are created.
	Root string `yaml:"root"`

	// FallbackDir receives artifacts written outside any request scope
	// (CLI invocations). Defaults under the OS temp dir.
	FallbackDir string `yaml:"fallback_dir"`

	// MaxSizeBytes refuses to serve files larger than this. Zero means
	// no limit.
	MaxSizeBytes int64 `yaml:"max_size_bytes"`
}

type SkillsConfig struct {
	// Dir is the root directory scanned for SKILL.md definitions.
	Dir string `yaml:"dir"`

	// Watch enables filesystem watching so edits to skill files are
	// picked up without a restart.
	Watch bool `yaml:"watch"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TracingConfig struct {
	// Endpoint is the OTLP gRPC collector address. Empty disables tracing.
	Endpoint string `yaml:"endpoint"`

	Environment  string  `yaml:"environment"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Insecure     bool    `yaml:"insecure"`
}

// Load reads and parses the configuration file. A .env file next to the
// process, if present, is loaded first so ${VAR} expansion in the YAML
// can see it.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

// Default returns a configuration with all defaults applied and no file
// read. Used when the server starts without a config file.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadHeaderTimeout == 0 {
		cfg.Server.ReadHeaderTimeout = 10 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "scribe.db"
	}
	if cfg.Engine.Provider == "" {
		cfg.Engine.Provider = "anthropic"
	}
	if cfg.Engine.MaxTokens == 0 {
		cfg.Engine.MaxTokens = 4096
	}
	if cfg.Engine.MaxToolRounds == 0 {
		cfg.Engine.MaxToolRounds = 8
	}
	if cfg.Artifacts.Root == "" {
		cfg.Artifacts.Root = "artifacts"
	}
	if cfg.Skills.Dir == "" {
		cfg.Skills.Dir = "skills"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Tracing.SamplingRate == 0 {
		cfg.Tracing.SamplingRate = 1.0
	}
}
