// Package agent runs external coding agent CLIs against a workspace.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Agent executes one prompt in a workspace.
type Agent interface {
	Kind() Kind
	Execute(ctx context.Context, req Request) (Result, error)
}

// Request contains the inputs of one agent execution.
type Request struct {
	// Prompt is passed to the CLI as its instruction argument.
	Prompt string
	// SystemPrompt carries repository instructions, when the CLI supports it.
	SystemPrompt string
	// WorkDir is the repository checkout the agent edits.
	WorkDir string
	// Model overrides the CLI default model.
	Model string
	// Timeout bounds the execution. Zero means DefaultTimeout.
	Timeout time.Duration
}

// Result is the raw outcome of a successful execution.
type Result struct {
	Output   string
	Stderr   string
	Duration time.Duration
}

// DefaultTimeout applies when a request carries no timeout.
const DefaultTimeout = 10 * time.Minute

// DefaultAllowedTools is the operation allow-list granted to agents.
var DefaultAllowedTools = []string{"Bash", "Edit", "Write"}

// ErrTimeout is returned when the agent does not finish in time. Timed out
// runs are never retried.
var ErrTimeout = errors.New("agent execution timed out")

// ExitError reports a non-zero exit of the agent process.
type ExitError struct {
	Kind   Kind
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s exited with code %d", e.Kind, e.Code)
	}
	return fmt.Sprintf("%s exited with code %d: %s", e.Kind, e.Code, e.Stderr)
}

// TimeoutFromSeconds converts a configured timeout in seconds.
func TimeoutFromSeconds(seconds int) time.Duration {
	if seconds <= 0 {
		return DefaultTimeout
	}
	return time.Duration(int64(seconds)*1000) * time.Millisecond
}
