// Package gitutil wraps the git binary for clone, commit and push.
package gitutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strings"
)

// Client runs git commands.
type Client struct {
	GitBinary string
	// AuthorName and AuthorEmail set the commit identity when non-empty.
	AuthorName  string
	AuthorEmail string
}

func (c Client) gitBinary() string {
	if c.GitBinary == "" {
		return "git"
	}
	return c.GitBinary
}

// Clone clones a repository into dir. A non-empty branch is checked out.
func (c Client) Clone(ctx context.Context, repoURL, dir, branch string) error {
	args := []string{"clone"}
	if branch != "" {
		args = append(args, "--branch", branch)
	}
	args = append(args, repoURL, dir)
	_, err := c.runDir(ctx, "", args...)
	return err
}

// CheckoutBranch checks out a branch from base.
func (c Client) CheckoutBranch(ctx context.Context, dir, branch, base string) error {
	if base == "" {
		_, err := c.runDir(ctx, dir, "checkout", "-B", branch)
		return err
	}
	_, err := c.runDir(ctx, dir, "checkout", "-B", branch, base)
	return err
}

// CommitPaths stages the given paths, including deletions, and commits them.
// committed is false when nothing ended up staged, for example because the
// changes were already committed in dir. It is a no-op when paths is empty.
func (c Client) CommitPaths(ctx context.Context, dir, message string, paths []string) (committed bool, err error) {
	if len(paths) == 0 {
		return false, nil
	}
	args := append([]string{"add", "-A", "--"}, paths...)
	if _, err := c.runDir(ctx, dir, args...); err != nil {
		return false, err
	}
	staged, err := c.hasStaged(ctx, dir)
	if err != nil || !staged {
		return false, err
	}
	if _, err := c.runDir(ctx, dir, "commit", "-m", message); err != nil {
		return false, err
	}
	return true, nil
}

// hasStaged reports whether the index differs from HEAD.
func (c Client) hasStaged(ctx context.Context, dir string) (bool, error) {
	_, err := c.runDir(ctx, dir, "diff", "--cached", "--quiet")
	if err == nil {
		return false, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return true, nil
	}
	return false, err
}

// Push pushes a branch to origin.
func (c Client) Push(ctx context.Context, dir, branch string) error {
	_, err := c.runDir(ctx, dir, "push", "origin", "HEAD:refs/heads/"+branch)
	return err
}

func (c Client) runDir(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, c.gitBinary(), args...)
	cmd.Dir = dir
	// Paths handed to git are file names, never globs or magic pathspecs.
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "GIT_LITERAL_PATHSPECS=1")
	if c.AuthorName != "" {
		cmd.Env = append(cmd.Env, "GIT_AUTHOR_NAME="+c.AuthorName, "GIT_COMMITTER_NAME="+c.AuthorName)
	}
	if c.AuthorEmail != "" {
		cmd.Env = append(cmd.Env, "GIT_AUTHOR_EMAIL="+c.AuthorEmail, "GIT_COMMITTER_EMAIL="+c.AuthorEmail)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", args[0], err, redactLine(strings.TrimSpace(stderr.String())))
	}
	return stdout.String(), nil
}

// InjectToken adds token authentication to a repository URL.
func InjectToken(rawURL, token string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	parsed.User = url.UserPassword("x-access-token", token)
	return parsed.String(), nil
}

// RedactToken removes token information from URLs for logs.
func RedactToken(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	if parsed.User != nil {
		parsed.User = url.User("x-access-token")
	}
	return parsed.String()
}

func redactLine(s string) string {
	fields := strings.Fields(s)
	for i, f := range fields {
		if strings.Contains(f, "://") && strings.Contains(f, "@") {
			fields[i] = RedactToken(strings.Trim(f, "'\""))
		}
	}
	return strings.Join(fields, " ")
}
