package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, 15, cfg.Agent.MaxSteps)
	assert.Equal(t, "./agents", cfg.Agent.AgentsDir)
	assert.Equal(t, "./workspace", cfg.Agent.WorkspaceDir)
	assert.Equal(t, "./mcp.yaml", cfg.Agent.MCPConfig)
	assert.Equal(t, 120*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.False(t, cfg.Tracer.Enabled)
	require.NoError(t, Validate(cfg))
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults().Agent.MaxSteps, cfg.Agent.MaxSteps)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
agent:
  max_steps: 25
  agents_dir: /opt/agents
llm:
  model: MiniMax-M2
  api_key: sk-live
logger:
  level: debug
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Agent.MaxSteps)
	assert.Equal(t, "/opt/agents", cfg.Agent.AgentsDir)
	assert.Equal(t, "MiniMax-M2", cfg.LLM.Model)
	assert.Equal(t, "sk-live", cfg.LLM.APIKey)
	assert.Equal(t, "debug", cfg.Logger.Level)
	// Untouched fields keep defaults.
	assert.Equal(t, "./workspace", cfg.Agent.WorkspaceDir)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(":::"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SENTINEL_LLM_API_KEY", "sk-env")
	t.Setenv("SENTINEL_LLM_MODEL", "env-model")
	t.Setenv("SENTINEL_LOGGER_LEVEL", "warn")
	t.Setenv("SENTINEL_TRACER_ENABLED", "true")
	t.Setenv("SENTINEL_AGENTS_DIR", "/env/agents")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)

	assert.Equal(t, "sk-env", cfg.LLM.APIKey)
	assert.Equal(t, "env-model", cfg.LLM.Model)
	assert.Equal(t, "warn", cfg.Logger.Level)
	assert.True(t, cfg.Tracer.Enabled)
	assert.Equal(t, "/env/agents", cfg.Agent.AgentsDir)
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	cfg.Agent.MaxSteps = 0
	assert.Error(t, Validate(cfg))

	cfg = Defaults()
	cfg.LLM.Timeout = 0
	assert.Error(t, Validate(cfg))
}
