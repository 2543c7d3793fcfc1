// Package prompt assembles the agent prompt from the triggering conversation.
package prompt

import (
	"context"
	"fmt"
	"strings"

	"github.com/olemp/code-agent/internal/controller/webhook"
	"github.com/olemp/code-agent/pkg/github"
)

// Budget limits how much conversation context goes into a prompt.
// Zero values mean unlimited.
type Budget struct {
	MaxContextTokens      int
	MaxHistoryItems       int
	MaxChangedFilesListed int
	TruncationEnabled     bool
}

// Source fetches conversation data from the hosting platform.
type Source interface {
	GetIssue(ctx context.Context, owner, repo string, number int) (github.Issue, error)
	ListIssueComments(ctx context.Context, owner, repo string, number int) ([]github.Comment, error)
	ListReviewComments(ctx context.Context, owner, repo string, number int) ([]github.Comment, error)
	ListPullRequestFiles(ctx context.Context, owner, repo string, number int) ([]string, error)
}

// Assembler builds prompts for one agent.
type Assembler struct {
	Source    Source
	Estimator Estimator
	// BotLogin is the automation's own account; its comments are quoted.
	BotLogin string
	// CommandPrefix is the current agent's command, stripped from history items.
	CommandPrefix string
}

// Sections holds the optional prompt parts before layout.
type Sections struct {
	History      string
	Context      string
	ChangedFiles string
}

// Assemble returns the prompt for ev. The instruction is always kept verbatim.
func (a *Assembler) Assemble(ctx context.Context, ev webhook.Event, instruction string, budget Budget) (string, error) {
	if _, ok := ev.(webhook.IssueOpened); ok {
		return instruction, nil
	}
	sections, err := a.Gather(ctx, ev, instruction, budget)
	if err != nil {
		return "", err
	}
	return a.Layout(sections, instruction, budget), nil
}

// Gather fetches and formats the optional sections, applying item limits.
func (a *Assembler) Gather(ctx context.Context, ev webhook.Event, instruction string, budget Budget) (Sections, error) {
	repo := ev.Repo()
	owner, name, err := SplitFullName(repo.FullName)
	if err != nil {
		return Sections{}, err
	}

	parent, err := a.Source.GetIssue(ctx, owner, name, ev.Number())
	if err != nil {
		return Sections{}, fmt.Errorf("fetch parent #%d: %w", ev.Number(), err)
	}

	var history []github.Comment
	if review, ok := ev.(webhook.PullRequestReviewCommentCreated); ok {
		all, err := a.Source.ListReviewComments(ctx, owner, name, ev.Number())
		if err != nil {
			return Sections{}, fmt.Errorf("fetch review thread: %w", err)
		}
		history = sameThread(all, review.ThreadRootID())
	} else {
		history, err = a.Source.ListIssueComments(ctx, owner, name, ev.Number())
		if err != nil {
			return Sections{}, fmt.Errorf("fetch comments: %w", err)
		}
	}

	var s Sections
	s.History = a.formatHistory(history, instruction, budget.MaxHistoryItems)
	s.Context = formatParent(parent)

	if review, ok := ev.(webhook.PullRequestReviewCommentCreated); ok {
		note := "Comment on file " + review.Comment.Path
		if review.Comment.Line != nil {
			note += fmt.Sprintf(" at line %d", *review.Comment.Line)
		}
		s.Context = joinNonEmpty("\n\n", s.Context, note)
	}

	if ev.PullRequestScoped() {
		files, err := a.Source.ListPullRequestFiles(ctx, owner, name, ev.Number())
		if err != nil {
			return Sections{}, fmt.Errorf("fetch changed files: %w", err)
		}
		if n := budget.MaxChangedFilesListed; n > 0 && len(files) > n {
			files = files[:n]
		}
		lines := make([]string, 0, len(files))
		for _, f := range files {
			lines = append(lines, "- "+f)
		}
		s.ChangedFiles = strings.Join(lines, "\n")
	}
	return s, nil
}

// Layout joins sections and instruction, truncating the sections when the
// budget requires it.
func (a *Assembler) Layout(s Sections, instruction string, budget Budget) string {
	optional := joinSections(s)
	full := compose(optional, instruction)
	if !budget.TruncationEnabled || budget.MaxContextTokens <= 0 {
		return full
	}
	est := a.estimator()
	if est.Estimate(full) <= budget.MaxContextTokens {
		return full
	}
	available := budget.MaxContextTokens - est.Estimate(instruction) - SeparatorAllowance
	return compose(truncateToTokens(optional, available, est), instruction)
}

func (a *Assembler) estimator() Estimator {
	if a.Estimator == nil {
		return CharEstimator{}
	}
	return a.Estimator
}

func (a *Assembler) formatHistory(comments []github.Comment, instruction string, limit int) string {
	items := make([]string, 0, len(comments))
	for _, c := range comments {
		if item, ok := a.formatItem(c, instruction); ok {
			items = append(items, item)
		}
	}
	if limit > 0 && len(items) > limit {
		items = items[len(items)-limit:]
	}
	var sb strings.Builder
	for _, item := range items {
		sb.WriteString(item)
		sb.WriteString("\n\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (a *Assembler) formatItem(c github.Comment, instruction string) (string, bool) {
	body := strings.TrimSpace(c.Body)
	if body == "" {
		return "", false
	}
	if a.CommandPrefix != "" && strings.HasPrefix(body, a.CommandPrefix) {
		rest := strings.TrimSpace(strings.TrimPrefix(body, a.CommandPrefix))
		if rest == "" || rest == strings.TrimSpace(instruction) {
			return "", false
		}
		return rest, true
	}
	if a.BotLogin != "" && strings.EqualFold(c.User, a.BotLogin) {
		return quote(body), true
	}
	return body, true
}

func quote(text string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = "> " + l
	}
	return strings.Join(lines, "\n")
}

func formatParent(issue github.Issue) string {
	return joinNonEmpty("\n\n", strings.TrimSpace(issue.Title), strings.TrimSpace(issue.Body))
}

func sameThread(comments []github.Comment, root int64) []github.Comment {
	var out []github.Comment
	for _, c := range comments {
		if c.ID == root || c.InReplyToID == root {
			out = append(out, c)
		}
	}
	return out
}

func joinSections(s Sections) string {
	var parts []string
	if s.History != "" {
		parts = append(parts, "[History]\n"+s.History)
	}
	if s.Context != "" {
		parts = append(parts, "[Context]\n"+s.Context)
	}
	if s.ChangedFiles != "" {
		parts = append(parts, "[Changed Files]\n"+s.ChangedFiles)
	}
	return strings.Join(parts, "\n\n")
}

func compose(optional, instruction string) string {
	if optional == "" {
		return instruction
	}
	return optional + "\n\n---\n\n" + instruction
}

func joinNonEmpty(sep string, parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

// SplitFullName splits "owner/repo".
func SplitFullName(full string) (string, string, error) {
	parts := strings.Split(full, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo full name: %s", full)
	}
	return parts[0], parts[1], nil
}
