// Package workflow runs a coding agent for one classified webhook event.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/olemp/code-agent/internal/config"
	"github.com/olemp/code-agent/internal/controller/webhook"
	"github.com/olemp/code-agent/internal/metrics"
	"github.com/olemp/code-agent/internal/service/prompt"
	"github.com/olemp/code-agent/internal/service/trigger"
	"github.com/olemp/code-agent/pkg/agent"
	"github.com/olemp/code-agent/pkg/changeset"
	"github.com/olemp/code-agent/pkg/github"
	"github.com/olemp/code-agent/pkg/gitutil"
	"github.com/olemp/code-agent/pkg/logging"
	"github.com/olemp/code-agent/pkg/redact"
	"github.com/olemp/code-agent/pkg/snapshot"
)

// GitHubClient defines GitHub API methods needed by the engine.
type GitHubClient interface {
	prompt.Source
	GetPR(ctx context.Context, owner, repo string, number int) (github.PR, error)
	CreatePR(ctx context.Context, owner, repo string, req github.PRRequest) (github.PR, error)
	CreateIssueComment(ctx context.Context, owner, repo string, number int, body string) error
	ReplyToReviewComment(ctx context.Context, owner, repo string, number int, commentID int64, body string) error
	ReactToIssue(ctx context.Context, owner, repo string, number int, content string) error
	ReactToIssueComment(ctx context.Context, owner, repo string, commentID int64, content string) error
	ReactToReviewComment(ctx context.Context, owner, repo string, commentID int64, content string) error
}

// GitClient defines git operations needed by the engine.
type GitClient interface {
	Clone(ctx context.Context, repoURL, dir, branch string) error
	CheckoutBranch(ctx context.Context, dir, branch, base string) error
	CommitPaths(ctx context.Context, dir, message string, paths []string) (bool, error)
	Push(ctx context.Context, dir, branch string) error
}

// RepoSubdir is the subdirectory within the workspace where the repository is cloned.
const RepoSubdir = "repo"

// FilteredSubdir holds the size-limited copy the agent works in when
// MaxWorkspaceBytes is set.
const FilteredSubdir = "filtered"

// BranchPrefix prefixes branches created for issues.
const BranchPrefix = "code-agent/"

// maxCommentRunes keeps posted comments below GitHub's body limit.
const maxCommentRunes = 60000

const emptyWorkspaceMessage = "No files remain in the workspace after filtering, so the agent was not started. " +
	"Check the include and exclude patterns of this repository."

// Engine executes webhook workflows.
type Engine struct {
	cfg       config.Config
	gh        GitHubClient
	git       GitClient
	agents    map[agent.Kind]agent.Agent
	estimator prompt.Estimator
	masker    *redact.Masker
	now       func() time.Time
	logger    *logging.Logger
}

// NewEngine creates a new workflow engine.
func NewEngine(cfg config.Config, gh GitHubClient, git GitClient, agents []agent.Agent, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	byKind := make(map[agent.Kind]agent.Agent, len(agents))
	for _, a := range agents {
		byKind[a.Kind()] = a
	}
	return &Engine{
		cfg:       cfg,
		gh:        gh,
		git:       git,
		agents:    byKind,
		estimator: prompt.CharEstimator{},
		masker:    redact.New(cfg.Secrets()...),
		now:       time.Now,
		logger:    logger,
	}
}

// run carries the state of one agent run.
type run struct {
	event    webhook.Event
	decision *trigger.Decision
	cfg      *config.RunConfig
	owner    string
	repo     string
	prScoped bool
	// branch receives the commit: the PR head for PR-scoped runs, a new
	// branch otherwise.
	branch  string
	repoDir string
}

// Handle classifies raw, resolves a trigger and runs the selected agent.
// Events that do not trigger a run return nil.
func (e *Engine) Handle(ctx context.Context, raw webhook.RawEvent) error {
	log := e.logger.With("delivery_id", raw.DeliveryID, "event", raw.Name, "action", raw.Action)

	ev, ok := webhook.Classify(raw)
	if !ok {
		log.Debug("skipping event: unsupported kind")
		return nil
	}
	metrics.EventClassified(string(ev.Kind()))

	if e.isAutomation(ev.Author()) {
		log.Debug("skipping event: authored by automation", "author", ev.Author().Login)
		return nil
	}
	owner, repo, err := prompt.SplitFullName(ev.Repo().FullName)
	if err != nil {
		log.Warn("skipping event: bad repository", "error", err)
		return err
	}

	runCfg := e.cfg.RunConfig()
	decision := trigger.Resolve(log.WithContext(ctx), ev, raw, runCfg)
	if decision == nil {
		log.Debug("skipping event: no trigger", "kind", ev.Kind())
		return nil
	}
	metrics.TriggerDecision(string(decision.Agent), decision.Source)

	r := &run{
		event:    ev,
		decision: decision,
		cfg:      runCfg,
		owner:    owner,
		repo:     repo,
		prScoped: ev.PullRequestScoped(),
	}

	wfLog := log.StartWorkflow(string(ev.Kind()),
		"repo", ev.Repo().FullName,
		"number", ev.Number(),
		"agent", decision.Agent,
		"source", decision.Source,
		"author", ev.Author().Login,
	)
	ctx = wfLog.WithContext(ctx)
	err = e.handle(ctx, r)
	wfLog.EndWorkflow(err)
	return err
}

func (e *Engine) handle(ctx context.Context, r *run) error {
	log := logging.FromContext(ctx)
	ag, ok := e.agents[r.decision.Agent]
	if !ok {
		return log.WrapError("select-agent", "lookup", fmt.Errorf("agent %s is not configured", r.decision.Agent))
	}

	done := log.Step("acknowledge")
	err := e.acknowledge(ctx, r)
	done(err)
	if err != nil {
		return log.WrapError("acknowledge", "add reaction", err)
	}

	if err := e.execute(ctx, r, ag); err != nil {
		if errors.Is(err, agent.ErrTimeout) {
			metrics.AgentRun(string(r.decision.Agent), metrics.OutcomeTimeout)
		} else {
			metrics.AgentRun(string(r.decision.Agent), metrics.OutcomeFailed)
		}
		if postErr := e.reply(ctx, r, "Automation failed: "+e.masker.String(rootCause(err).Error())); postErr != nil {
			log.Error("failed to post failure comment", "error", postErr)
		}
		return err
	}
	return nil
}

func (e *Engine) execute(ctx context.Context, r *run, ag agent.Agent) error {
	log := logging.FromContext(ctx)
	workspace := filepath.Join(e.cfg.RepoCloneBase, fmt.Sprintf("%s-%s-%d-%d", r.owner, r.repo, r.event.Number(), e.now().UnixNano()))
	r.repoDir = filepath.Join(workspace, RepoSubdir)
	defer func() {
		if err := os.RemoveAll(workspace); err != nil {
			log.Warn("failed to remove workspace", "path", workspace, "error", err)
		}
	}()

	done := log.Step("prepare-workspace", "workspace", workspace)
	err := e.prepare(ctx, r)
	done(err)
	if err != nil {
		return log.WrapError("prepare-workspace", "clone", err)
	}

	done = log.Step("snapshot-baseline")
	filter := filterConfig(r.cfg)
	detector := changeset.NewDetector(r.repoDir, filter)
	baseline, err := detector.Baseline(ctx)
	done(err)
	if err != nil {
		return log.WrapError("snapshot-baseline", "capture", err)
	}
	metrics.SnapshotFiles(baseline.Len())
	if baseline.Empty() {
		return e.stopEmpty(ctx, r, "snapshot-baseline")
	}

	agentDir := r.repoDir
	if r.cfg.MaxWorkspaceBytes > 0 {
		agentDir = filepath.Join(workspace, FilteredSubdir)
		done = log.Step("filter-workspace", "max_bytes", r.cfg.MaxWorkspaceBytes)
		var copied int
		detector, copied, err = filteredWorkspace(ctx, baseline, r.repoDir, agentDir, r.cfg.MaxWorkspaceBytes, filter)
		done(err)
		if err != nil {
			return log.WrapError("filter-workspace", "copy", err)
		}
		if copied == 0 {
			return e.stopEmpty(ctx, r, "filter-workspace")
		}
	}

	done = log.Step("assemble-prompt")
	assembler := &prompt.Assembler{
		Source:        e.gh,
		Estimator:     e.estimator,
		BotLogin:      e.cfg.BotLogin,
		CommandPrefix: trigger.CommandPrefix(r.decision.Agent, r.cfg),
	}
	text, err := assembler.Assemble(ctx, r.event, r.decision.Instruction, budget(r.cfg))
	done(err)
	if err != nil {
		return log.WrapError("assemble-prompt", "fetch context", err)
	}

	done = log.Step("run-agent", "prompt_length", len(text))
	result, err := ag.Execute(ctx, agent.Request{
		Prompt:       text,
		SystemPrompt: agent.LoadRepoInstructions(r.repoDir),
		WorkDir:      agentDir,
		Model:        r.cfg.Model(r.decision.Agent),
		Timeout:      agent.TimeoutFromSeconds(r.cfg.TimeoutSeconds),
	})
	done(err)
	if err != nil {
		return log.WrapError("run-agent", "execute", err)
	}

	done = log.Step("detect-changes")
	changes, err := detector.Changes(ctx)
	done(err)
	if err != nil {
		return log.WrapError("detect-changes", "capture", err)
	}
	metrics.ChangedFiles(changes.Len())
	log.StepInfo("detect-changes", "diff",
		"added", len(changes.Added()),
		"modified", len(changes.Modified()),
		"deleted", len(changes.Deleted()),
	)

	if changes.Empty() {
		done = log.Step("post-output")
		err = e.reply(ctx, r, e.outputComment(ctx, r.decision.Agent, result.Output))
		done(err)
		if err != nil {
			return log.WrapError("post-output", "comment", err)
		}
		metrics.AgentRun(string(r.decision.Agent), metrics.OutcomeCommented)
		return nil
	}

	if agentDir != r.repoDir {
		if err := snapshot.SyncPaths(ctx, agentDir, r.repoDir, changes.Paths()); err != nil {
			return log.WrapError("detect-changes", "sync filtered workspace", err)
		}
	}

	done = log.Step("commit-and-push", "changed_files", changes.Len(), "branch", r.branch)
	committed, err := e.git.CommitPaths(ctx, r.repoDir, commitMessage(r.decision), changes.Paths())
	if err == nil {
		if !committed {
			log.StepInfo("commit-and-push", "nothing left to stage, pushing existing commits")
		}
		err = e.git.Push(ctx, r.repoDir, r.branch)
	}
	done(err)
	if err != nil {
		return log.WrapError("commit-and-push", "git", err)
	}

	output := e.mask(ctx, result.Output, maxCommentRunes/2)
	if r.prScoped {
		done = log.Step("report")
		err = e.reply(ctx, r, strings.TrimSpace(fmt.Sprintf("Pushed %s to `%s`.\n\n%s", fileCount(changes.Len()), r.branch, output)))
		done(err)
		if err != nil {
			return log.WrapError("report", "comment", err)
		}
		metrics.AgentRun(string(r.decision.Agent), metrics.OutcomePushed)
		return nil
	}

	done = log.Step("create-pr")
	pr, err := e.gh.CreatePR(ctx, r.owner, r.repo, github.PRRequest{
		Title: r.decision.Agent.CommitPrefix() + r.event.Title(),
		Body:  pullRequestBody(r.event.Number(), changes, output),
		Head:  r.branch,
		Base:  r.event.Repo().DefaultBranch,
	})
	done(err)
	if err != nil {
		return log.WrapError("create-pr", "create", err)
	}
	metrics.AgentRun(string(r.decision.Agent), metrics.OutcomePullRequest)

	if err := e.reply(ctx, r, fmt.Sprintf("Opened #%d with the proposed changes: %s", pr.Number, pr.URL)); err != nil {
		log.Warn("failed to link pull request", "error", err)
	}
	return nil
}

// stopEmpty reports that no files are left for the agent and ends the run.
func (e *Engine) stopEmpty(ctx context.Context, r *run, step string) error {
	log := logging.FromContext(ctx)
	log.StepInfo(step, "stopping before agent run", "reason", snapshot.ErrEmpty.Error())
	metrics.AgentRun(string(r.decision.Agent), metrics.OutcomeEmpty)
	if err := e.reply(ctx, r, emptyWorkspaceMessage); err != nil {
		return log.WrapError(step, "post warning", err)
	}
	return nil
}

// filteredWorkspace copies the highest-priority files of base from src into
// dst within limit bytes and returns a detector with its baseline taken on dst.
// The repository .gitignore is always carried over so both checkouts ignore
// the same files.
func filteredWorkspace(ctx context.Context, base snapshot.Snapshot, src, dst string, limit int64, filter snapshot.FilterConfig) (*changeset.Detector, int, error) {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return nil, 0, err
	}
	res, err := snapshot.CopyFiltered(ctx, base, src, dst, limit)
	if err != nil {
		return nil, 0, err
	}
	if err := snapshot.SyncPaths(ctx, src, dst, []string{".gitignore"}); err != nil {
		return nil, 0, err
	}
	logging.FromContext(ctx).StepInfo("filter-workspace", "copied",
		"files", len(res.Copied), "skipped", len(res.Skipped), "bytes", res.TotalBytes)
	d := changeset.NewDetector(dst, filter)
	if _, err := d.Baseline(ctx); err != nil {
		return nil, 0, err
	}
	return d, len(res.Copied), nil
}

// prepare clones the repository and checks out the branch the run writes to.
func (e *Engine) prepare(ctx context.Context, r *run) error {
	if err := os.MkdirAll(filepath.Dir(r.repoDir), 0o755); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}
	cloneURL, err := gitutil.InjectToken(r.event.Repo().CloneURL, e.cfg.GitHubToken)
	if err != nil {
		return fmt.Errorf("build clone url: %w", err)
	}

	if r.prScoped {
		head, err := e.headBranch(ctx, r)
		if err != nil {
			return err
		}
		r.branch = head
		return e.git.Clone(ctx, cloneURL, r.repoDir, head)
	}

	if err := e.git.Clone(ctx, cloneURL, r.repoDir, r.event.Repo().DefaultBranch); err != nil {
		return err
	}
	r.branch = fmt.Sprintf("%sissue-%d-%d", BranchPrefix, r.event.Number(), e.now().Unix())
	return e.git.CheckoutBranch(ctx, r.repoDir, r.branch, "")
}

func (e *Engine) headBranch(ctx context.Context, r *run) (string, error) {
	if ev, ok := r.event.(webhook.PullRequestReviewCommentCreated); ok && ev.PullRequest.Head.Ref != "" {
		return ev.PullRequest.Head.Ref, nil
	}
	pr, err := e.gh.GetPR(ctx, r.owner, r.repo, r.event.Number())
	if err != nil {
		return "", err
	}
	if pr.HeadRef == "" {
		return "", fmt.Errorf("pull request #%d has no head branch", r.event.Number())
	}
	return pr.HeadRef, nil
}

func (e *Engine) acknowledge(ctx context.Context, r *run) error {
	switch ev := r.event.(type) {
	case webhook.IssueOpened:
		return e.gh.ReactToIssue(ctx, r.owner, r.repo, ev.Issue.Number, github.ReactionEyes)
	case webhook.IssueCommentCreated:
		return e.gh.ReactToIssueComment(ctx, r.owner, r.repo, ev.Comment.ID, github.ReactionEyes)
	case webhook.PullRequestCommentCreated:
		return e.gh.ReactToIssueComment(ctx, r.owner, r.repo, ev.Comment.ID, github.ReactionEyes)
	case webhook.PullRequestReviewCommentCreated:
		return e.gh.ReactToReviewComment(ctx, r.owner, r.repo, ev.Comment.ID, github.ReactionEyes)
	}
	return nil
}

// reply posts body in the review thread for inline comments and in the
// conversation otherwise.
func (e *Engine) reply(ctx context.Context, r *run, body string) error {
	if ev, ok := r.event.(webhook.PullRequestReviewCommentCreated); ok {
		return e.gh.ReplyToReviewComment(ctx, r.owner, r.repo, ev.PullRequest.Number, ev.ThreadRootID(), body)
	}
	return e.gh.CreateIssueComment(ctx, r.owner, r.repo, r.event.Number(), body)
}

// isAutomation reports whether u is this service or another bot.
func (e *Engine) isAutomation(u webhook.User) bool {
	if u.IsBot() {
		return true
	}
	return e.cfg.BotLogin != "" && strings.EqualFold(u.Login, e.cfg.BotLogin)
}

func (e *Engine) outputComment(ctx context.Context, kind agent.Kind, output string) string {
	if strings.TrimSpace(output) == "" {
		return fmt.Sprintf("%s finished without changing any files.", kind)
	}
	return e.mask(ctx, output, maxCommentRunes)
}

// mask replaces secrets in output before cutting it to limit runes, so a
// secret straddling the cut is never partially posted.
func (e *Engine) mask(ctx context.Context, output string, limit int) string {
	masked, applied := e.masker.Text(strings.TrimSpace(output))
	if len(applied.Names) > 0 {
		logging.FromContext(ctx).Info("masked agent output", "rules", applied.Names)
	}
	return truncateRunes(masked, limit)
}

func filterConfig(c *config.RunConfig) snapshot.FilterConfig {
	return snapshot.FilterConfig{
		Include:            c.IncludePatterns,
		Exclude:            c.ExcludePatterns,
		Prioritize:         c.PrioritizePatterns,
		MaxFileSizeBytes:   c.MaxFileSizeBytes,
		ExcludedExtensions: c.ExcludedExtensions,
	}
}

func budget(c *config.RunConfig) prompt.Budget {
	return prompt.Budget{
		MaxContextTokens:      c.MaxContextTokens,
		MaxHistoryItems:       c.MaxHistoryItems,
		MaxChangedFilesListed: c.MaxChangedFiles,
		TruncationEnabled:     c.TruncationEnabled,
	}
}

func commitMessage(d *trigger.Decision) string {
	summary := strings.TrimSpace(d.Instruction)
	if i := strings.IndexByte(summary, '\n'); i >= 0 {
		summary = strings.TrimSpace(summary[:i])
	}
	if runes := []rune(summary); len(runes) > 72 {
		summary = string(runes[:72])
	}
	return d.Agent.CommitPrefix() + summary
}

func pullRequestBody(issue int, changes changeset.ChangeSet, output string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Closes #%d\n\n", issue)
	for _, c := range changes.Changes {
		fmt.Fprintf(&sb, "- %s `%s`\n", c.Kind, c.Path)
	}
	if output != "" {
		sb.WriteString("\n")
		sb.WriteString(output)
	}
	return sb.String()
}

func fileCount(n int) string {
	if n == 1 {
		return "1 changed file"
	}
	return fmt.Sprintf("%d changed files", n)
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + "\n\n[... output truncated ...]"
}

// rootCause strips workflow step wrapping so failure comments stay readable.
func rootCause(err error) error {
	var wfErr *logging.WorkflowError
	for errors.As(err, &wfErr) {
		err = wfErr.Err
	}
	return err
}
