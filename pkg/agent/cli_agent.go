package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
)

// CLIAgent runs the claude or codex command line tool.
type CLIAgent struct {
	kind    Kind
	command string
	args    []string
	env     []string
}

// CLIConfig configures a CLIAgent.
type CLIConfig struct {
	// Command is the binary to execute. Empty uses the agent name.
	Command string
	// Args are extra arguments placed before the generated ones.
	Args []string
	// Env is appended to the process environment.
	Env []string
}

// NewCLIAgent creates an agent for kind.
func NewCLIAgent(kind Kind, cfg CLIConfig) *CLIAgent {
	cmd := cfg.Command
	if cmd == "" {
		cmd = string(kind)
	}
	return &CLIAgent{kind: kind, command: cmd, args: cfg.Args, env: cfg.Env}
}

// Kind implements Agent.
func (a *CLIAgent) Kind() Kind {
	return a.kind
}

// Execute implements Agent.
func (a *CLIAgent) Execute(ctx context.Context, req Request) (Result, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := a.buildArgs(req)
	cmd := exec.CommandContext(ctx, a.command, args...)
	cmd.Dir = req.WorkDir
	cmd.Env = append(os.Environ(), a.env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	clog.InfoContextf(ctx, "[%s] executing: workdir=%s prompt_length=%d timeout=%s", a.kind, req.WorkDir, len(req.Prompt), timeout)
	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)
	clog.InfoContextf(ctx, "[%s] completed in %v: stdout=%d stderr=%d err=%v", a.kind, elapsed, stdout.Len(), stderr.Len(), err)

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{}, fmt.Errorf("%w: %s after %v", ErrTimeout, a.kind, timeout)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Result{}, &ExitError{Kind: a.kind, Code: exitErr.ExitCode(), Stderr: strings.TrimSpace(stderr.String())}
		}
		return Result{}, fmt.Errorf("run %s: %w", a.kind, err)
	}

	output := stdout.String()
	if a.kind == Claude {
		output, err = parseClaudeOutput(stdout.Bytes())
		if err != nil {
			return Result{}, err
		}
	}
	return Result{Output: strings.TrimSpace(output), Stderr: stderr.String(), Duration: elapsed}, nil
}

func (a *CLIAgent) buildArgs(req Request) []string {
	args := make([]string, 0, len(a.args)+10)
	args = append(args, a.args...)
	switch a.kind {
	case Codex:
		args = append(args, "exec", "--full-auto", "--sandbox", "workspace-write")
		if req.Model != "" {
			args = append(args, "--model", req.Model)
		}
		prompt := req.Prompt
		if strings.TrimSpace(req.SystemPrompt) != "" {
			prompt = req.SystemPrompt + "\n\n---\n\n" + req.Prompt
		}
		args = append(args, prompt)
	default:
		args = append(args, "--output-format", "json", "--allowedTools", strings.Join(DefaultAllowedTools, ","))
		if req.Model != "" {
			args = append(args, "--model", req.Model)
		}
		if strings.TrimSpace(req.SystemPrompt) != "" {
			args = append(args, "--append-system-prompt", req.SystemPrompt)
		}
		args = append(args, "-p", req.Prompt)
	}
	return args
}

// parseClaudeOutput extracts the result text from claude's JSON output.
// Non-JSON output is returned as text.
func parseClaudeOutput(output []byte) (string, error) {
	var raw struct {
		Result  string `json:"result"`
		Error   string `json:"error"`
		IsError bool   `json:"is_error"`
	}
	if err := json.Unmarshal(output, &raw); err != nil {
		return string(output), nil
	}
	if raw.Error != "" {
		return "", fmt.Errorf("claude reported an error: %s", raw.Error)
	}
	if raw.IsError {
		return "", fmt.Errorf("claude reported an error: %s", raw.Result)
	}
	return raw.Result, nil
}
