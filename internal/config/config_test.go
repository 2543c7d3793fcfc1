package config

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/olemp/code-agent/pkg/agent"
)

func envFunc(env map[string]string) func(string) string {
	return func(key string) string { return env[key] }
}

func TestLoadFromEnvDefaults(t *testing.T) {
	cfg, err := LoadFromEnv(envFunc(map[string]string{"GITHUB_TOKEN": "token"}))
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.ListenAddr)
	require.Equal(t, "/webhook", cfg.WebhookPath)
	require.Equal(t, 2, cfg.MaxWorkers)
	require.Equal(t, agent.Claude, cfg.Run.DefaultAgent)
	require.Equal(t, "/claude", cfg.Run.ClaudeTrigger)
	require.Equal(t, "/codex", cfg.Run.CodexTrigger)
	require.Equal(t, 600, cfg.Run.TimeoutSeconds)
	require.Equal(t, int64(1<<20), cfg.Run.MaxFileSizeBytes)
	require.Zero(t, cfg.Run.MaxWorkspaceBytes)
	require.True(t, cfg.Run.TruncationEnabled)
	require.Equal(t, "claude", cfg.Claude.Command)
	require.Equal(t, "codex", cfg.Codex.Command)
}

func TestLoadFromEnvRequiresToken(t *testing.T) {
	_, err := LoadFromEnv(envFunc(map[string]string{}))
	require.Error(t, err)
}

func TestLoadFromEnvLists(t *testing.T) {
	cfg, err := LoadFromEnv(envFunc(map[string]string{
		"GITHUB_TOKEN":     "token",
		"TRIGGER_LABELS":   "ai, help wanted ,",
		"EXCLUDE_PATTERNS": "docs/,*.snap",
		"CODEX_ARGS":       "--full-auto",
	}))
	require.NoError(t, err)
	require.Equal(t, []string{"ai", "help wanted"}, cfg.Run.TriggerLabels)
	require.Equal(t, []string{"docs/", "*.snap"}, cfg.Run.ExcludePatterns)
	require.Equal(t, []string{"--full-auto"}, cfg.Codex.Args)
}

func TestLoadFromEnvRejectsUnknownDefaultAgent(t *testing.T) {
	_, err := LoadFromEnv(envFunc(map[string]string{
		"GITHUB_TOKEN":  "token",
		"DEFAULT_AGENT": "gemini",
	}))
	require.Error(t, err)
}

func TestLoadFromEnvWorkspaceBudget(t *testing.T) {
	cfg, err := LoadFromEnv(envFunc(map[string]string{
		"GITHUB_TOKEN":        "token",
		"MAX_WORKSPACE_BYTES": "2048",
	}))
	require.NoError(t, err)
	require.Equal(t, int64(2048), cfg.Run.MaxWorkspaceBytes)

	_, err = LoadFromEnv(envFunc(map[string]string{
		"GITHUB_TOKEN":        "token",
		"MAX_WORKSPACE_BYTES": "-1",
	}))
	require.Error(t, err)
}

func TestRunConfigCloneIsIndependent(t *testing.T) {
	cfg, err := LoadFromEnv(envFunc(map[string]string{
		"GITHUB_TOKEN":   "token",
		"TRIGGER_LABELS": "ai",
	}))
	require.NoError(t, err)

	run := cfg.RunConfig()
	run.TriggerLabels[0] = "changed"
	run.TimeoutSeconds = 5

	require.Equal(t, []string{"ai"}, cfg.Run.TriggerLabels)
	require.Equal(t, 600, cfg.Run.TimeoutSeconds)
}

func TestSecrets(t *testing.T) {
	cfg, err := LoadFromEnv(envFunc(map[string]string{
		"GITHUB_TOKEN":   "ghp_token",
		"WEBHOOK_SECRET": "hook",
	}))
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"ghp_token", "hook"}, cfg.Secrets())
}
