package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "execution.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaultsForOmittedFields(t *testing.T) {
	path := writeTempConfig(t, "models:\n  provider: anthropic\n  default: claude-3.5-sonnet\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.StepLimit)
	assert.Equal(t, 2, cfg.MaxInvalidRetries)
	assert.Equal(t, 3, cfg.MaxToolFailures)
	assert.Equal(t, 2, cfg.MaxRepeatedSuccesses)
	assert.Equal(t, "anthropic", cfg.Models.Provider)
	assert.Equal(t, "claude-3.5-sonnet", cfg.Models.Default)
}

func TestLoadOverridesDefaultsFromYAML(t *testing.T) {
	path := writeTempConfig(t, `
step_limit: 20
max_tool_failures: 5
hard_timeout_ms: 5000
models:
  provider: openai
  default: gpt-4o
  high: gpt-4o
features:
  instruction_suggestion: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.StepLimit)
	assert.Equal(t, 5, cfg.MaxToolFailures)
	assert.Equal(t, 5*time.Second, cfg.HardTimeout)
	assert.Equal(t, "gpt-4o", cfg.Models.High)
	assert.True(t, cfg.Features.InstructionSuggestion)
}

func TestLoadEnvOverlayTakesPrecedenceOverYAML(t *testing.T) {
	path := writeTempConfig(t, "step_limit: 20\nmodels:\n  provider: anthropic\n  default: claude-3.5-sonnet\n")
	t.Setenv("AGENTCORE_STEP_LIMIT", "7")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.StepLimit)
}

func TestLoadRejectsSchemaViolation(t *testing.T) {
	path := writeTempConfig(t, "step_limit: 0\nmodels:\n  provider: anthropic\n  default: claude-3.5-sonnet\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	path := writeTempConfig(t, "models:\n  provider: unknown-llm\n  default: x\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestModelClassIDFallsBackToDefault(t *testing.T) {
	cfg := Default()
	cfg.Models.Default = "claude-3.5-sonnet"
	assert.Equal(t, "claude-3.5-sonnet", cfg.ModelClassID("small"))
	cfg.Models.Small = "claude-3-haiku"
	assert.Equal(t, "claude-3-haiku", cfg.ModelClassID("small"))
}
