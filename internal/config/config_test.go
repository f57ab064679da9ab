package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Defaults, cfg.Defaults)
	assert.Equal(t, "claude", cfg.Planner.BinaryPath)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
defaults:
  max_tasks: 50
  max_depth: 3
  abort_on_failure: false
  concurrency: 2
logging:
  level: debug
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Defaults.MaxTasks)
	assert.Equal(t, 3, cfg.Defaults.MaxDepth)
	assert.False(t, cfg.Defaults.AbortOnFailure)
	assert.Equal(t, 2, cfg.Defaults.Concurrency)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// untouched fields keep their defaults
	assert.Equal(t, "claude", cfg.Planner.BinaryPath)
}

func TestLoad_EnvOverridesApplyAfterFile(t *testing.T) {
	t.Setenv("TASKGRAPH_LOG_LEVEL", "error")
	t.Setenv("TASKGRAPH_PLANNER_BINARY", "/usr/local/bin/agent")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Logging.Level)
	assert.Equal(t, "/usr/local/bin/agent", cfg.Planner.BinaryPath)
}

func TestValidate_RejectsUnknownLogLevel(t *testing.T) {
	cfg := Default()
	cfg.Logging.Level = "verbose"
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsNonPositiveLimits(t *testing.T) {
	cfg := Default()
	cfg.Defaults.MaxTasks = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Defaults.Concurrency = -1
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsEnabledStoreWithoutPath(t *testing.T) {
	cfg := Default()
	cfg.Store.Enabled = true
	cfg.Store.DBPath = ""
	assert.Error(t, cfg.Validate())
}

func TestLoad_InvalidYAMLPropagatesValidationError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("defaults:\n  max_tasks: -5\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}
