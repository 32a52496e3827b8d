// Package config loads dialogmesh settings from defaults, an optional YAML
// file and DIALOGMESH_ prefixed environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/dialogmesh/accumulator"
	"github.com/hupe1980/dialogmesh/bus"
	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/engine"
	"github.com/hupe1980/dialogmesh/executor"
	"github.com/hupe1980/dialogmesh/fsm"
	"github.com/hupe1980/dialogmesh/logging"
	"github.com/hupe1980/dialogmesh/session"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "DIALOGMESH_"

// Model providers.
const (
	ProviderNone      = "none"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

type Config struct {
	Policy   PolicyConfig   `yaml:"policy"`
	Session  SessionConfig  `yaml:"session"`
	Bus      BusConfig      `yaml:"bus"`
	Executor ExecutorConfig `yaml:"executor"`
	Store    StoreConfig    `yaml:"store"`
	Model    ModelConfig    `yaml:"model"`
	Log      LogConfig      `yaml:"log"`
}

type PolicyConfig struct {
	AutoCompleteThreshold  float64 `yaml:"auto_complete_threshold" env:"AUTO_COMPLETE_THRESHOLD"`
	MaxClarificationRounds int     `yaml:"max_clarification_rounds" env:"MAX_CLARIFICATION_ROUNDS"`
	RequireConfirmation    bool    `yaml:"require_confirmation" env:"REQUIRE_CONFIRMATION"`
	EmptyTurn              string  `yaml:"empty_turn" env:"EMPTY_TURN"`
}

type SessionConfig struct {
	HistoryCap         int           `yaml:"history_cap" env:"SESSION_HISTORY_CAP"`
	TTL                time.Duration `yaml:"ttl" env:"SESSION_TTL"`
	MaxSessions        int           `yaml:"max_sessions" env:"MAX_SESSIONS"`
	MaxConcurrentTurns int           `yaml:"max_concurrent_turns" env:"MAX_CONCURRENT_TURNS"`
}

type BusConfig struct {
	HistoryCap  int `yaml:"history_cap" env:"BUS_HISTORY_CAP"`
	HistoryKeep int `yaml:"history_keep" env:"BUS_HISTORY_KEEP"`
}

type ExecutorConfig struct {
	AgentTimeout  time.Duration `yaml:"agent_timeout" env:"AGENT_TIMEOUT"`
	MaxAgentCalls int           `yaml:"max_agent_calls" env:"MAX_AGENT_CALLS"`
}

type StoreConfig struct {
	// SQLitePath enables snapshot persistence. Empty keeps sessions in
	// memory only.
	SQLitePath string `yaml:"sqlite_path" env:"SQLITE_PATH"`
}

type ModelConfig struct {
	Provider    string  `yaml:"provider" env:"MODEL_PROVIDER"`
	Name        string  `yaml:"name" env:"MODEL_NAME"`
	Temperature float64 `yaml:"temperature" env:"MODEL_TEMPERATURE"`
	// APIKey falls back to the provider SDK's own environment lookup.
	APIKey string `yaml:"api_key,omitempty" env:"MODEL_API_KEY"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

func DefaultConfig() Config {
	return Config{
		Policy: PolicyConfig{
			AutoCompleteThreshold:  accumulator.DefaultThreshold,
			MaxClarificationRounds: fsm.DefaultMaxClarificationRounds,
			EmptyTurn:              string(fsm.EmptyTurnEscalate),
		},
		Session: SessionConfig{
			HistoryCap:         core.DefaultHistoryCap,
			TTL:                session.DefaultTTL,
			MaxSessions:        session.DefaultMaxSessions,
			MaxConcurrentTurns: 64,
		},
		Bus: BusConfig{
			HistoryCap:  bus.DefaultHistoryCap,
			HistoryKeep: bus.DefaultHistoryKeep,
		},
		Executor: ExecutorConfig{
			AgentTimeout:  executor.DefaultAgentTimeout,
			MaxAgentCalls: executor.DefaultMaxAgentCalls,
		},
		Model: ModelConfig{
			Provider:    ProviderNone,
			Temperature: 0.2,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load layers defaults, the YAML file at path (skipped when empty) and the
// process environment, then validates the result.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if err := loadYAMLFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := ApplyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFromFile reads a YAML file on top of the defaults.
func LoadFromFile(path string) (Config, error) {
	cfg := DefaultConfig()
	if err := loadYAMLFile(path, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides cfg with DIALOGMESH_ variables from the process
// environment. Unset variables leave the current values untouched.
func ApplyEnv(cfg *Config) error {
	return ApplyEnvFrom(cfg, nil)
}

// ApplyEnvFrom is ApplyEnv reading from environ instead of the process
// environment. A nil map reads the process environment.
func ApplyEnvFrom(cfg *Config, environ map[string]string) error {
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	return nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if t := c.Policy.AutoCompleteThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("policy.auto_complete_threshold must be within [0,1], got %v", t))
	}
	if c.Policy.MaxClarificationRounds < 0 {
		errs = append(errs, errors.New("policy.max_clarification_rounds must not be negative"))
	}
	switch fsm.EmptyTurnPolicy(c.Policy.EmptyTurn) {
	case fsm.EmptyTurnEscalate, fsm.EmptyTurnReask:
	default:
		errs = append(errs, fmt.Errorf("policy.empty_turn must be %q or %q, got %q", fsm.EmptyTurnEscalate, fsm.EmptyTurnReask, c.Policy.EmptyTurn))
	}
	if c.Session.HistoryCap <= 0 {
		errs = append(errs, errors.New("session.history_cap must be positive"))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("session.ttl must be positive"))
	}
	if c.Session.MaxSessions <= 0 {
		errs = append(errs, errors.New("session.max_sessions must be positive"))
	}
	if c.Session.MaxConcurrentTurns < 0 {
		errs = append(errs, errors.New("session.max_concurrent_turns must not be negative"))
	}
	if c.Bus.HistoryCap <= 0 {
		errs = append(errs, errors.New("bus.history_cap must be positive"))
	}
	if c.Bus.HistoryKeep <= 0 || c.Bus.HistoryKeep > c.Bus.HistoryCap {
		errs = append(errs, errors.New("bus.history_keep must be positive and not exceed bus.history_cap"))
	}
	if c.Executor.AgentTimeout <= 0 {
		errs = append(errs, errors.New("executor.agent_timeout must be positive"))
	}
	if c.Executor.MaxAgentCalls <= 0 {
		errs = append(errs, errors.New("executor.max_agent_calls must be positive"))
	}
	switch c.Model.Provider {
	case "", ProviderNone, ProviderAnthropic, ProviderOpenAI:
	default:
		errs = append(errs, fmt.Errorf("model.provider %q is not supported", c.Model.Provider))
	}
	if t := c.Model.Temperature; t < 0 || t > 2 {
		errs = append(errs, fmt.Errorf("model.temperature must be within [0,2], got %v", t))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or text, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// EngineConfig converts the policy settings into an engine.Config.
func (c Config) EngineConfig() engine.Config {
	return engine.Config{
		AutoCompleteThreshold:  c.Policy.AutoCompleteThreshold,
		MaxClarificationRounds: c.Policy.MaxClarificationRounds,
		RequireConfirmation:    c.Policy.RequireConfirmation,
		EmptyTurnPolicy:        fsm.EmptyTurnPolicy(c.Policy.EmptyTurn),
		HistoryCap:             c.Session.HistoryCap,
		SessionTTL:             c.Session.TTL,
		AgentTimeout:           c.Executor.AgentTimeout,
		MaxAgentCalls:          c.Executor.MaxAgentCalls,
		MaxConcurrentTurns:     c.Session.MaxConcurrentTurns,
	}
}

// Logger builds the configured DialogLogger.
func (c Config) Logger() *logging.DialogLogger {
	return logging.NewSlogLogger(logging.ParseLevel(c.Log.Level), c.Log.Format, false)
}
