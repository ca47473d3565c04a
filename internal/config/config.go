// Package config loads and validates the orchestrator's configuration
// (spec §6): environment-sourced, validated at startup, fails fast with a
// descriptive error on any violation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	LLM     LLMConfig     `yaml:"llm"`
	Gateway GatewayConfig `yaml:"gateway"`
	Session SessionConfig `yaml:"session"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the gateway bind address.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// LLMConfig configures the LLM adapter (§4.A).
type LLMConfig struct {
	Provider           string        `yaml:"provider"` // openai | anthropic
	APIKey             string        `yaml:"api_key"`
	Model              string        `yaml:"model"`
	MaxTokens          int           `yaml:"max_tokens"`
	Temperature        float64       `yaml:"temperature"`
	TimeoutMs          int           `yaml:"timeout_ms"`
	MaxRetries         int           `yaml:"max_retries"`
	RetryDelayMs       int           `yaml:"retry_delay_ms"`
	MaxSystemPromptLen int           `yaml:"max_system_prompt_length"`
	CircuitThreshold   int           `yaml:"circuit_failure_threshold"`
	CircuitResetMs     int           `yaml:"circuit_reset_timeout_ms"`
	MaxRounds          int           `yaml:"max_rounds"`
	RequestTimeoutMs   int           `yaml:"request_timeout_ms"`
	ToolTimeoutMs      int           `yaml:"tool_timeout_ms"`
}

// GatewayConfig configures the Connection Gateway (§4.H).
type GatewayConfig struct {
	PingIntervalMs  int    `yaml:"ping_interval_ms"`
	MaxConnections  int    `yaml:"max_connections"`
	MessageQueueSize int   `yaml:"message_queue_size"`
	CORSOrigin      string `yaml:"cors_origin"`
}

// SessionConfig configures the Session Store (§4.F).
type SessionConfig struct {
	MaxHistoryLength  int `yaml:"max_history_length"`
	SessionTimeoutMs  int `yaml:"session_timeout_ms"`
	CleanupIntervalMs int `yaml:"cleanup_interval_ms"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // json|text
}

// Defaults returns a Config populated with the spec's documented defaults.
func Defaults() Config {
	return Config{
		Server: ServerConfig{Port: 8080, Host: "0.0.0.0"},
		LLM: LLMConfig{
			Provider:           "anthropic",
			MaxTokens:          1024,
			Temperature:        0.7,
			TimeoutMs:          30_000,
			MaxRetries:         3,
			RetryDelayMs:       1_000,
			MaxSystemPromptLen: 16_000,
			CircuitThreshold:   5,
			CircuitResetMs:     30_000,
			MaxRounds:          5,
			RequestTimeoutMs:   60_000,
			ToolTimeoutMs:      10_000,
		},
		Gateway: GatewayConfig{
			PingIntervalMs:   30_000,
			MaxConnections:   1000,
			MessageQueueSize: 1000,
			CORSOrigin:       "*",
		},
		Session: SessionConfig{
			MaxHistoryLength:  100,
			SessionTimeoutMs:  30 * 60 * 1000,
			CleanupIntervalMs: 5 * 60 * 1000,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// Load reads a YAML config file (if path is non-empty and exists), applies
// environment-variable overrides, and validates the result. Missing file is
// not an error: defaults + env vars still apply. The overrides cover PORT,
// HOST, LLM_PROVIDER, LLM_API_KEY, LLM_MODEL, LLM_MAX_TOKENS,
// LLM_TEMPERATURE, LOG_LEVEL, LOG_FORMAT, CORS_ORIGIN and MAX_CONNECTIONS
// only; the remaining keys (LLM timeout/retry knobs, ping interval, message
// queue size, session settings) come from the file or the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if strings.TrimSpace(path) != "" {
		if data, err := os.ReadFile(path); err == nil {
			expanded := os.ExpandEnv(string(data))
			if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}
	if v := os.Getenv("HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("LLM_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LLM.MaxTokens = n
		}
	}
	if v := os.Getenv("LLM_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.LLM.Temperature = f
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("CORS_ORIGIN"); v != "" {
		cfg.Gateway.CORSOrigin = v
	}
	if v := os.Getenv("MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.MaxConnections = n
		}
	}
}

// ValidationError aggregates every validation violation found, so startup
// fails fast with one descriptive error instead of one-at-a-time.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
var validProviders = map[string]bool{"openai": true, "anthropic": true}

// Validate checks cfg against the rules in spec §6 and returns a
// *ValidationError listing every violation, or nil if cfg is valid.
func Validate(cfg *Config) error {
	var problems []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port must be in 1..65535, got %d", cfg.Server.Port))
	}
	if !validProviders[cfg.LLM.Provider] {
		problems = append(problems, fmt.Sprintf("llm.provider must be one of openai|anthropic, got %q", cfg.LLM.Provider))
	}
	if validProviders[cfg.LLM.Provider] && strings.TrimSpace(cfg.LLM.APIKey) == "" {
		problems = append(problems, fmt.Sprintf("llm.api_key is required for provider %q", cfg.LLM.Provider))
	}
	if !validLogLevels[strings.ToLower(cfg.Logging.Level)] {
		problems = append(problems, fmt.Sprintf("logging.level must be one of debug|info|warn|error, got %q", cfg.Logging.Level))
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		problems = append(problems, fmt.Sprintf("llm.temperature must be in 0..2, got %v", cfg.LLM.Temperature))
	}
	if cfg.Gateway.MaxConnections <= 0 {
		problems = append(problems, fmt.Sprintf("gateway.max_connections must be > 0, got %d", cfg.Gateway.MaxConnections))
	}
	if cfg.LLM.MaxTokens < 100 || cfg.LLM.MaxTokens > 4096 {
		problems = append(problems, fmt.Sprintf("llm.max_tokens must be in 100..4096, got %d", cfg.LLM.MaxTokens))
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// Durations converts millisecond config fields to time.Duration for
// callers that want them directly.
func (c *LLMConfig) Timeout() time.Duration      { return time.Duration(c.TimeoutMs) * time.Millisecond }
func (c *LLMConfig) RetryDelay() time.Duration   { return time.Duration(c.RetryDelayMs) * time.Millisecond }
func (c *LLMConfig) CircuitReset() time.Duration { return time.Duration(c.CircuitResetMs) * time.Millisecond }
func (c *LLMConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}
func (c *LLMConfig) ToolTimeout() time.Duration { return time.Duration(c.ToolTimeoutMs) * time.Millisecond }

func (c *GatewayConfig) PingInterval() time.Duration {
	return time.Duration(c.PingIntervalMs) * time.Millisecond
}

func (c *SessionConfig) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutMs) * time.Millisecond
}
func (c *SessionConfig) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalMs) * time.Millisecond
}
