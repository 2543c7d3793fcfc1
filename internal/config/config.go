package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sethvargo/go-envconfig"

	"github.com/olemp/code-agent/pkg/agent"
)

// Config holds process-wide runtime configuration.
type Config struct {
	ListenAddr    string  `env:"LISTEN_ADDR, default=:8080"`
	WebhookPath   string  `env:"WEBHOOK_PATH, default=/webhook"`
	WebhookSecret string  `env:"WEBHOOK_SECRET"`
	IPAllowlist   string  `env:"IP_ALLOWLIST"`
	GitHubToken   string  `env:"GITHUB_TOKEN, required"`
	GitHubAPIURL  string  `env:"GITHUB_API_URL"`
	GitHubRPS     float64 `env:"GITHUB_RPS, default=10"`
	BotLogin      string  `env:"BOT_LOGIN, default=github-actions[bot]"`
	RepoCloneBase string  `env:"REPO_CLONE_BASE, default=./workdir"`
	MaxWorkers    int     `env:"MAX_WORKERS, default=2"`
	LogLevel      string  `env:"LOG_LEVEL, default=info"`
	LogFormat     string  `env:"LOG_FORMAT, default=text"`

	Claude AgentConfig `env:", prefix=CLAUDE_"`
	Codex  AgentConfig `env:", prefix=CODEX_"`

	// Run holds the defaults copied into every run before overrides apply.
	Run RunConfig
}

// AgentConfig describes how one agent CLI is invoked.
type AgentConfig struct {
	Command string   `env:"COMMAND"`
	Args    []string `env:"ARGS"`
	APIKey  string   `env:"API_KEY"`
}

// RunConfig is the run-scoped configuration. Each run gets its own copy and
// override blocks found in issue bodies are applied to that copy only.
type RunConfig struct {
	DefaultAgent       agent.Kind `env:"DEFAULT_AGENT, default=claude" yaml:"default_agent"`
	TriggerLabels      []string   `env:"TRIGGER_LABELS" yaml:"trigger_labels"`
	ClaudeTrigger      string     `env:"CLAUDE_TRIGGER, default=/claude" yaml:"-"`
	CodexTrigger       string     `env:"CODEX_TRIGGER, default=/codex" yaml:"-"`
	TimeoutSeconds     int        `env:"AGENT_TIMEOUT_SECONDS, default=600" yaml:"timeout_seconds"`
	MaxContextTokens   int        `env:"MAX_CONTEXT_TOKENS" yaml:"max_context_tokens"`
	MaxHistoryItems    int        `env:"MAX_HISTORY_ITEMS" yaml:"max_history_items"`
	MaxChangedFiles    int        `env:"MAX_CHANGED_FILES" yaml:"max_changed_files"`
	TruncationEnabled  bool       `env:"TRUNCATION_ENABLED, default=true" yaml:"truncation_enabled"`
	IncludePatterns    []string   `env:"INCLUDE_PATTERNS" yaml:"include_patterns"`
	ExcludePatterns    []string   `env:"EXCLUDE_PATTERNS" yaml:"exclude_patterns"`
	PrioritizePatterns []string   `env:"PRIORITIZE_PATTERNS" yaml:"prioritize_patterns"`
	ExcludedExtensions []string   `env:"EXCLUDED_EXTENSIONS" yaml:"excluded_extensions"`
	MaxFileSizeBytes   int64      `env:"MAX_FILE_SIZE_BYTES, default=1048576" yaml:"max_file_size_bytes"`
	// MaxWorkspaceBytes, when positive, runs the agent in a filtered copy of
	// the checkout holding the highest-priority files within this many bytes.
	MaxWorkspaceBytes  int64      `env:"MAX_WORKSPACE_BYTES" yaml:"max_workspace_bytes"`
	ClaudeModel        string     `env:"CLAUDE_MODEL" yaml:"claude_model"`
	CodexModel         string     `env:"CODEX_MODEL" yaml:"codex_model"`
}

// Clone returns a copy that shares no slices with c.
func (c RunConfig) Clone() *RunConfig {
	out := c
	out.TriggerLabels = append([]string(nil), c.TriggerLabels...)
	out.IncludePatterns = append([]string(nil), c.IncludePatterns...)
	out.ExcludePatterns = append([]string(nil), c.ExcludePatterns...)
	out.PrioritizePatterns = append([]string(nil), c.PrioritizePatterns...)
	out.ExcludedExtensions = append([]string(nil), c.ExcludedExtensions...)
	return &out
}

// Validate checks values that overrides are allowed to change.
func (c RunConfig) Validate() error {
	if _, err := agent.ParseKind(string(c.DefaultAgent)); err != nil {
		return fmt.Errorf("default_agent: %w", err)
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout_seconds must be positive, got %d", c.TimeoutSeconds)
	}
	if c.MaxContextTokens < 0 || c.MaxHistoryItems < 0 || c.MaxChangedFiles < 0 || c.MaxFileSizeBytes < 0 || c.MaxWorkspaceBytes < 0 {
		return fmt.Errorf("limits must not be negative")
	}
	return nil
}

// Model returns the model configured for k, if any.
func (c RunConfig) Model(k agent.Kind) string {
	if k == agent.Codex {
		return c.CodexModel
	}
	return c.ClaudeModel
}

// Agent returns the CLI settings for k.
func (c Config) Agent(k agent.Kind) AgentConfig {
	if k == agent.Codex {
		return c.Codex
	}
	return c.Claude
}

// RunConfig returns a fresh run-scoped copy of the defaults.
func (c Config) RunConfig() *RunConfig {
	return c.Run.Clone()
}

// Load loads configuration from environment variables.
func Load() (Config, error) {
	return LoadFromEnv(os.Getenv)
}

// LoadFromEnv loads configuration from a getenv-like function.
func LoadFromEnv(getenv func(string) string) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(context.Background(), &envconfig.Config{
		Target:   &cfg,
		Lookuper: getenvLookuper(getenv),
	}); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	cfg.Run.TriggerLabels = cleanList(cfg.Run.TriggerLabels)
	cfg.Run.IncludePatterns = cleanList(cfg.Run.IncludePatterns)
	cfg.Run.ExcludePatterns = cleanList(cfg.Run.ExcludePatterns)
	cfg.Run.PrioritizePatterns = cleanList(cfg.Run.PrioritizePatterns)
	cfg.Run.ExcludedExtensions = cleanList(cfg.Run.ExcludedExtensions)
	cfg.Claude.Args = cleanList(cfg.Claude.Args)
	cfg.Codex.Args = cleanList(cfg.Codex.Args)
	if cfg.Claude.Command == "" {
		cfg.Claude.Command = "claude"
	}
	if cfg.Codex.Command == "" {
		cfg.Codex.Command = "codex"
	}
	if cfg.WebhookPath == "" {
		cfg.WebhookPath = "/webhook"
	}
	if err := cfg.Run.Validate(); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// Secrets returns configured credential values that must never be posted.
func (c Config) Secrets() []string {
	var out []string
	for _, s := range []string{c.GitHubToken, c.WebhookSecret, c.Claude.APIKey, c.Codex.APIKey} {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// getenvLookuper adapts a getenv function to envconfig. Empty values count as unset.
type getenvLookuper func(string) string

func (f getenvLookuper) Lookup(key string) (string, bool) {
	val := f(key)
	return val, val != ""
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
