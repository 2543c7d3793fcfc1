package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/olemp/code-agent/internal/config"
	"github.com/olemp/code-agent/internal/server"
	"github.com/olemp/code-agent/internal/service/queue"
	"github.com/olemp/code-agent/internal/service/workflow"
	"github.com/olemp/code-agent/pkg/agent"
	"github.com/olemp/code-agent/pkg/allowlist"
	"github.com/olemp/code-agent/pkg/github"
	"github.com/olemp/code-agent/pkg/gitutil"
	"github.com/olemp/code-agent/pkg/logging"
)

func main() {
	var printConfig bool
	var outputFormat string
	flag.BoolVar(&printConfig, "print-config", false, "print resolved configuration and exit")
	flag.StringVar(&outputFormat, "format", "text", "output format: text or json")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if printConfig {
		if err := writeConfig(os.Stdout, cfg, outputFormat); err != nil {
			fmt.Fprintf(os.Stderr, "print config: %v\n", err)
			os.Exit(1)
		}
		return
	}

	logger := logging.New(cfg.LogFormat == "json", logging.ParseLevel(cfg.LogLevel))
	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "error", fmt.Sprintf("%+v", err))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *logging.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx = logger.WithContext(ctx)

	ipAllowlist, err := allowlist.Parse(cfg.IPAllowlist)
	if err != nil {
		return fmt.Errorf("allowlist: %w", err)
	}
	ghClient, err := github.NewClient(ctx, cfg.GitHubToken, github.Options{
		BaseURL:           cfg.GitHubAPIURL,
		RequestsPerSecond: cfg.GitHubRPS,
	})
	if err != nil {
		return fmt.Errorf("github client: %w", err)
	}
	gitClient := gitutil.Client{AuthorName: strings.TrimSuffix(cfg.BotLogin, "[bot]"), AuthorEmail: botEmail(cfg.BotLogin)}

	engine := workflow.NewEngine(cfg, ghClient, gitClient, buildAgents(cfg), logger)
	q := queue.New(cfg.MaxWorkers, func(ctx context.Context, job queue.Job) error {
		return engine.Handle(ctx, job.Event)
	})
	q.Start(ctx, cfg.MaxWorkers)

	srv := server.New(cfg, ipAllowlist, q, logger)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.ListenAddr, "webhook_path", cfg.WebhookPath, "workers", cfg.MaxWorkers)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	}

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
	cancel()
	q.Stop()
	return nil
}

// buildAgents creates one CLI agent per kind, passing each its API key.
func buildAgents(cfg config.Config) []agent.Agent {
	keyEnv := map[agent.Kind]string{
		agent.Claude: "ANTHROPIC_API_KEY",
		agent.Codex:  "OPENAI_API_KEY",
	}
	agents := make([]agent.Agent, 0, len(agent.Kinds))
	for _, k := range agent.Kinds {
		ac := cfg.Agent(k)
		var env []string
		if ac.APIKey != "" {
			env = append(env, keyEnv[k]+"="+ac.APIKey)
		}
		agents = append(agents, agent.NewCLIAgent(k, agent.CLIConfig{Command: ac.Command, Args: ac.Args, Env: env}))
	}
	return agents
}

func botEmail(login string) string {
	name := strings.TrimSuffix(login, "[bot]")
	if name == "" {
		return ""
	}
	return name + "@users.noreply.github.com"
}

func writeConfig(w io.Writer, cfg config.Config, format string) error {
	redacted := cfg
	for _, s := range []*string{&redacted.GitHubToken, &redacted.WebhookSecret, &redacted.Claude.APIKey, &redacted.Codex.APIKey} {
		if *s != "" {
			*s = "***"
		}
	}
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(redacted)
	}
	_, err := fmt.Fprintf(w, "listen_addr=%s\nwebhook_path=%s\ndefault_agent=%s\ntrigger_labels=%s\nmax_workers=%d\n",
		redacted.ListenAddr, redacted.WebhookPath, redacted.Run.DefaultAgent,
		strings.Join(redacted.Run.TriggerLabels, ","), redacted.MaxWorkers)
	return err
}
