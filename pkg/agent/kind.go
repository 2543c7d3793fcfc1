package agent

import "fmt"

// Kind selects which external coding agent runs.
type Kind string

const (
	Claude Kind = "claude"
	Codex  Kind = "codex"
)

// Kinds lists the agents in command priority order.
var Kinds = []Kind{Claude, Codex}

// Valid reports whether k names a known agent.
func (k Kind) Valid() bool {
	return k == Claude || k == Codex
}

// ParseKind converts a configuration value into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown agent %q", s)
	}
	return k, nil
}

// CommitPrefix is prepended to commit messages and PR titles produced by k.
func (k Kind) CommitPrefix() string {
	return string(k) + ": "
}
