// Package config handles loading and validating the wattson configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for the wattson daemon.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Registry   RegistryConfig   `mapstructure:"registry"`
	Grammar    GrammarConfig    `mapstructure:"grammar"`
	Generative GenerativeConfig `mapstructure:"generative"`
	Validation ValidationConfig `mapstructure:"validation"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds the health/metrics server settings.
type ServerConfig struct {
	HealthPort int `mapstructure:"health_port"`
}

// RegistryConfig configures the machine/SEU registry read contract.
type RegistryConfig struct {
	// Endpoint is the registry's machine-list URL. Empty disables
	// refresh; the hardcoded fallback list is used.
	Endpoint        string        `mapstructure:"endpoint"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	Timeout         time.Duration `mapstructure:"timeout"`
	Token           string        `mapstructure:"token"`
}

// GrammarConfig configures the tier-2 grammar NLU service.
type GrammarConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// GenerativeConfig configures the tier-3 local LLM backend. The endpoint
// may be OpenAI-compatible chat completions or Ollama /api/generate.
type GenerativeConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Model    string        `mapstructure:"model"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ValidationConfig holds the zero-trust gate's tunables.
type ValidationConfig struct {
	GenerativeThreshold float64 `mapstructure:"generative_threshold"`
	GrammarThreshold    float64 `mapstructure:"grammar_threshold"`
	HeuristicThreshold  float64 `mapstructure:"heuristic_threshold"`
	FuzzyCutoff         float64 `mapstructure:"fuzzy_cutoff"`
	SuggestionFloor     float64 `mapstructure:"suggestion_floor"`
	AmbiguityBand       float64 `mapstructure:"ambiguity_band"`
	MaxSuggestions      int     `mapstructure:"max_suggestions"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// Load reads the configuration from file, environment variables, and defaults.
// If configFile is non-empty it is used directly; otherwise the standard
// search order applies: ./wattson.yaml, ./configs/wattson.yaml, /etc/wattson/wattson.yaml.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.health_port", 8081)
	v.SetDefault("registry.endpoint", "")
	v.SetDefault("registry.refresh_interval", time.Hour)
	v.SetDefault("registry.timeout", 10*time.Second)
	v.SetDefault("grammar.endpoint", "http://localhost:12101/api/text-to-intent")
	v.SetDefault("grammar.timeout", 2*time.Second)
	v.SetDefault("generative.endpoint", "http://localhost:11434/api/generate")
	v.SetDefault("generative.model", "llama3.2:1b")
	v.SetDefault("generative.timeout", 5*time.Second)
	v.SetDefault("validation.generative_threshold", 0.85)
	v.SetDefault("validation.grammar_threshold", 0.85)
	v.SetDefault("validation.heuristic_threshold", 0.50)
	v.SetDefault("validation.fuzzy_cutoff", 0.72)
	v.SetDefault("validation.suggestion_floor", 0.40)
	v.SetDefault("validation.ambiguity_band", 0.05)
	v.SetDefault("validation.max_suggestions", 3)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Config file
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("wattson")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/wattson")
	}

	// Environment variables: WATTSON_SERVER_HEALTH_PORT, WATTSON_GENERATIVE_MODEL, etc.
	v.SetEnvPrefix("WATTSON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (optional — env vars and defaults are sufficient)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		slog.Info("no config file found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Resolve env var references in sensitive fields (e.g., "${REGISTRY_TOKEN}")
	cfg.Registry.Token = resolveEnvRef(cfg.Registry.Token)

	return &cfg, nil
}

// resolveEnvRef replaces "${VAR_NAME}" patterns with the corresponding env var value.
func resolveEnvRef(val string) string {
	if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
		envKey := val[2 : len(val)-1]
		if envVal := os.Getenv(envKey); envVal != "" {
			return envVal
		}
	}
	return val
}

// SetupLogging configures the global slog logger based on config.
func SetupLogging(cfg LoggingConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
