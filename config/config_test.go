package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/dialogmesh/fsm"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.8, cfg.Policy.AutoCompleteThreshold)
	assert.Equal(t, 3, cfg.Policy.MaxClarificationRounds)
	assert.Equal(t, 30*time.Minute, cfg.Session.TTL)
	assert.Equal(t, ProviderNone, cfg.Model.Provider)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dialogmesh.yaml")
	data := `
policy:
  auto_complete_threshold: 0.6
  require_confirmation: true
  empty_turn: reask
session:
  ttl: 5m
executor:
  agent_timeout: 2s
store:
  sqlite_path: /tmp/sessions.db
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 0.6, cfg.Policy.AutoCompleteThreshold)
	assert.True(t, cfg.Policy.RequireConfirmation)
	assert.Equal(t, "reask", cfg.Policy.EmptyTurn)
	assert.Equal(t, 5*time.Minute, cfg.Session.TTL)
	assert.Equal(t, 2*time.Second, cfg.Executor.AgentTimeout)
	assert.Equal(t, "/tmp/sessions.db", cfg.Store.SQLitePath)
	// untouched keys keep their defaults
	assert.Equal(t, 3, cfg.Policy.MaxClarificationRounds)
	assert.Equal(t, 16, cfg.Executor.MaxAgentCalls)
}

func TestLoadFromFile_Errors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("policy: ["), 0o600))
	_, err = LoadFromFile(path)
	assert.Error(t, err)
}

func TestApplyEnvFrom(t *testing.T) {
	cfg := DefaultConfig()
	err := ApplyEnvFrom(&cfg, map[string]string{
		"DIALOGMESH_AUTO_COMPLETE_THRESHOLD":  "0.5",
		"DIALOGMESH_MAX_CLARIFICATION_ROUNDS": "5",
		"DIALOGMESH_SESSION_TTL":              "1h",
		"DIALOGMESH_MODEL_PROVIDER":           "anthropic",
		"DIALOGMESH_LOG_FORMAT":               "text",
		"UNRELATED":                           "ignored",
	})
	require.NoError(t, err)

	assert.Equal(t, 0.5, cfg.Policy.AutoCompleteThreshold)
	assert.Equal(t, 5, cfg.Policy.MaxClarificationRounds)
	assert.Equal(t, time.Hour, cfg.Session.TTL)
	assert.Equal(t, ProviderAnthropic, cfg.Model.Provider)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, 50, cfg.Session.HistoryCap)
}

func TestApplyEnvFrom_InvalidValue(t *testing.T) {
	cfg := DefaultConfig()
	err := ApplyEnvFrom(&cfg, map[string]string{"DIALOGMESH_MAX_AGENT_CALLS": "many"})
	assert.Error(t, err)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dialogmesh.yaml")
	require.NoError(t, os.WriteFile(path, []byte("policy:\n  max_clarification_rounds: 2\n"), 0o600))
	t.Setenv("DIALOGMESH_MAX_CLARIFICATION_ROUNDS", "4")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Policy.MaxClarificationRounds)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"threshold above one", func(c *Config) { c.Policy.AutoCompleteThreshold = 1.5 }},
		{"negative rounds", func(c *Config) { c.Policy.MaxClarificationRounds = -1 }},
		{"unknown empty turn policy", func(c *Config) { c.Policy.EmptyTurn = "ignore" }},
		{"zero history cap", func(c *Config) { c.Session.HistoryCap = 0 }},
		{"keep above cap", func(c *Config) { c.Bus.HistoryKeep = c.Bus.HistoryCap + 1 }},
		{"zero timeout", func(c *Config) { c.Executor.AgentTimeout = 0 }},
		{"unknown provider", func(c *Config) { c.Model.Provider = "mystery" }},
		{"unknown log format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestEngineConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy.EmptyTurn = "reask"
	cfg.Policy.RequireConfirmation = true

	ec := cfg.EngineConfig()
	assert.Equal(t, fsm.EmptyTurnReask, ec.EmptyTurnPolicy)
	assert.True(t, ec.RequireConfirmation)
	assert.Equal(t, cfg.Executor.AgentTimeout, ec.AgentTimeout)
	assert.Equal(t, cfg.Session.HistoryCap, ec.HistoryCap)
}
