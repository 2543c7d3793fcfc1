package prompt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/olemp/code-agent/internal/controller/webhook"
	"github.com/olemp/code-agent/pkg/github"
)

type fakeSource struct {
	issue          github.Issue
	comments       []github.Comment
	reviewComments []github.Comment
	files          []string
	err            error
	calls          []string
}

func (f *fakeSource) GetIssue(ctx context.Context, owner, repo string, number int) (github.Issue, error) {
	f.calls = append(f.calls, fmt.Sprintf("GetIssue %s/%s#%d", owner, repo, number))
	return f.issue, f.err
}

func (f *fakeSource) ListIssueComments(ctx context.Context, owner, repo string, number int) ([]github.Comment, error) {
	f.calls = append(f.calls, "ListIssueComments")
	return f.comments, nil
}

func (f *fakeSource) ListReviewComments(ctx context.Context, owner, repo string, number int) ([]github.Comment, error) {
	f.calls = append(f.calls, "ListReviewComments")
	return f.reviewComments, nil
}

func (f *fakeSource) ListPullRequestFiles(ctx context.Context, owner, repo string, number int) ([]string, error) {
	f.calls = append(f.calls, "ListPullRequestFiles")
	return f.files, nil
}

var repo = webhook.Repository{FullName: "org/repo"}

func TestAssembleIssueOpenedIsInstruction(t *testing.T) {
	a := &Assembler{}
	got, err := a.Assemble(context.Background(), webhook.IssueOpened{Repository: repo}, "do the thing", Budget{})
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if got != "do the thing" {
		t.Fatalf("Assemble() = %q", got)
	}
}

func TestAssembleIssueCommentHistory(t *testing.T) {
	src := &fakeSource{
		issue: github.Issue{Title: "Typo in header", Body: "Header says Helo."},
		comments: []github.Comment{
			{User: "alice", Body: "The button is broken."},
			{User: "bob", Body: "   "},
			{User: "code-agent[bot]", Body: "Working on it.\nDone."},
			{User: "alice", Body: "/claude please fix the typo"},
			{User: "carol", Body: "/claude also update docs"},
		},
	}
	a := &Assembler{Source: src, BotLogin: "code-agent[bot]", CommandPrefix: "/claude"}
	ev := webhook.IssueCommentCreated{Repository: repo, Issue: webhook.Issue{Number: 7}}

	got, err := a.Assemble(context.Background(), ev, "please fix the typo", Budget{})
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	want := "[History]\nThe button is broken.\n\n> Working on it.\n> Done.\n\nalso update docs" +
		"\n\n[Context]\nTypo in header\n\nHeader says Helo." +
		"\n\n---\n\nplease fix the typo"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("prompt mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"GetIssue org/repo#7", "ListIssueComments"}, src.calls); diff != "" {
		t.Fatalf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestAssembleLoopPrevention(t *testing.T) {
	for _, instruction := range []string{"fix it", "a\nmulti-line\ninstruction", "x"} {
		src := &fakeSource{comments: []github.Comment{{User: "dev", Body: "/codex " + instruction}}}
		a := &Assembler{Source: src, CommandPrefix: "/codex"}
		ev := webhook.IssueCommentCreated{Repository: repo}
		got, err := a.Assemble(context.Background(), ev, instruction, Budget{})
		if err != nil {
			t.Fatalf("Assemble() error = %v", err)
		}
		if got != instruction {
			t.Fatalf("triggering comment leaked into history: %q", got)
		}
	}
}

func TestAssemblePullRequestCommentListsChangedFiles(t *testing.T) {
	src := &fakeSource{files: []string{"a.go", "b.go", "c.go"}}
	a := &Assembler{Source: src}
	ev := webhook.PullRequestCommentCreated{Repository: repo, Issue: webhook.Issue{Number: 2}}

	got, err := a.Assemble(context.Background(), ev, "tidy", Budget{MaxChangedFilesListed: 2})
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	want := "[Changed Files]\n- a.go\n- b.go\n\n---\n\ntidy"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("prompt mismatch (-want +got):\n%s", diff)
	}
}

func TestAssembleReviewCommentUsesThread(t *testing.T) {
	line := 12
	src := &fakeSource{
		issue: github.Issue{Title: "Refactor"},
		reviewComments: []github.Comment{
			{ID: 1, Body: "other thread"},
			{ID: 5, Body: "root of thread"},
			{ID: 6, InReplyToID: 5, Body: "reply in thread"},
			{ID: 7, InReplyToID: 1, Body: "reply elsewhere"},
		},
		files: []string{"pkg/a.go"},
	}
	a := &Assembler{Source: src}
	ev := webhook.PullRequestReviewCommentCreated{
		Repository:  repo,
		PullRequest: webhook.PullRequest{Number: 3},
		Comment:     webhook.Comment{ID: 8, InReplyToID: 5, Path: "pkg/a.go", Line: &line},
	}

	got, err := a.Assemble(context.Background(), ev, "rename it", Budget{})
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	want := "[History]\nroot of thread\n\nreply in thread" +
		"\n\n[Context]\nRefactor\n\nComment on file pkg/a.go at line 12" +
		"\n\n[Changed Files]\n- pkg/a.go" +
		"\n\n---\n\nrename it"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("prompt mismatch (-want +got):\n%s", diff)
	}
}

func TestAssembleKeepsMostRecentHistory(t *testing.T) {
	src := &fakeSource{comments: []github.Comment{{Body: "one"}, {Body: "two"}, {Body: "three"}}}
	a := &Assembler{Source: src}
	got, err := a.Assemble(context.Background(), webhook.IssueCommentCreated{Repository: repo}, "go", Budget{MaxHistoryItems: 2})
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if got != "[History]\ntwo\n\nthree\n\n---\n\ngo" {
		t.Fatalf("Assemble() = %q", got)
	}
}

func TestAssembleFetchFailurePropagates(t *testing.T) {
	boom := errors.New("api down")
	a := &Assembler{Source: &fakeSource{err: boom}}
	_, err := a.Assemble(context.Background(), webhook.IssueCommentCreated{Repository: repo}, "go", Budget{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped fetch error, got %v", err)
	}
}

func TestAssembleInvalidRepoName(t *testing.T) {
	a := &Assembler{Source: &fakeSource{}}
	ev := webhook.IssueCommentCreated{Repository: webhook.Repository{FullName: "broken"}}
	if _, err := a.Assemble(context.Background(), ev, "go", Budget{}); err == nil {
		t.Fatalf("expected error for invalid repo name")
	}
}

func longHistory(n int) []github.Comment {
	out := make([]github.Comment, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, github.Comment{Body: fmt.Sprintf("Comment number %d explains a detail. It goes on for a while.", i)})
	}
	return out
}

func TestAssembleTruncatesButPreservesInstruction(t *testing.T) {
	instruction := "keep this instruction intact, every word of it"
	for _, max := range []int{40, 100, 250} {
		a := &Assembler{Source: &fakeSource{comments: longHistory(50)}}
		got, err := a.Assemble(context.Background(), webhook.IssueCommentCreated{Repository: repo}, instruction,
			Budget{MaxContextTokens: max, TruncationEnabled: true})
		if err != nil {
			t.Fatalf("Assemble() error = %v", err)
		}
		if !strings.HasSuffix(got, instruction) {
			t.Fatalf("max=%d: instruction lost: %q", max, got)
		}
		if est := (CharEstimator{}).Estimate(got); est > max && got != instruction {
			t.Fatalf("max=%d: estimate %d over budget", max, est)
		}
		if got != instruction && !strings.Contains(got, TruncationMarker) {
			t.Fatalf("max=%d: missing truncation marker", max)
		}
	}
}

func TestAssembleInstructionLargerThanBudget(t *testing.T) {
	instruction := strings.Repeat("word ", 100)
	a := &Assembler{Source: &fakeSource{comments: longHistory(5)}}
	got, err := a.Assemble(context.Background(), webhook.IssueCommentCreated{Repository: repo}, instruction,
		Budget{MaxContextTokens: 10, TruncationEnabled: true})
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if got != instruction {
		t.Fatalf("expected instruction alone, got %q", got)
	}
}

func TestAssembleTruncationDisabled(t *testing.T) {
	a := &Assembler{Source: &fakeSource{comments: longHistory(50)}}
	got, err := a.Assemble(context.Background(), webhook.IssueCommentCreated{Repository: repo}, "go",
		Budget{MaxContextTokens: 10, TruncationEnabled: false})
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if strings.Contains(got, TruncationMarker) || !strings.Contains(got, "Comment number 49") {
		t.Fatalf("expected untruncated prompt")
	}
}

func TestAssembleUsesCustomEstimator(t *testing.T) {
	calls := 0
	est := EstimatorFunc(func(s string) int {
		calls++
		return len(strings.Fields(s))
	})
	a := &Assembler{Source: &fakeSource{comments: longHistory(3)}, Estimator: est}
	_, err := a.Assemble(context.Background(), webhook.IssueCommentCreated{Repository: repo}, "go",
		Budget{MaxContextTokens: 1000, TruncationEnabled: true})
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if calls == 0 {
		t.Fatalf("custom estimator was not consulted")
	}
}

func TestCharEstimatorRoundsUp(t *testing.T) {
	tests := map[string]int{"": 0, "a": 1, "abcd": 1, "abcde": 2, "héllo": 2}
	for in, want := range tests {
		if got := (CharEstimator{}).Estimate(in); got != want {
			t.Errorf("Estimate(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestTruncatePrefersSentenceBoundary(t *testing.T) {
	perChar := EstimatorFunc(func(s string) int { return len(s) })
	budget := len(TruncationMarker) + 20

	got := truncateToTokens("Alpha beta gamma. Delta epsilon zeta eta theta iota kappa lambda", budget, perChar)
	if got != "Alpha beta gamma."+TruncationMarker {
		t.Fatalf("sentence cut = %q", got)
	}

	got = truncateToTokens("Alpha. Beta gamma delta epsilon zeta eta theta iota kappa lambda", budget, perChar)
	if got != "Alpha. Beta gamma de"+TruncationMarker {
		t.Fatalf("raw cut = %q", got)
	}

	if got := truncateToTokens("short", budget, perChar); got != "short" {
		t.Fatalf("text under budget must not change, got %q", got)
	}
}
