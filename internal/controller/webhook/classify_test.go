package webhook

import "testing"

func TestClassify(t *testing.T) {
	plainIssue := &Issue{Number: 1, Title: "t", Body: "b"}
	prIssue := &Issue{Number: 2, PullRequest: &PullRequestMarker{URL: "https://api.github.com/repos/o/r/pulls/2"}}
	comment := &Comment{ID: 5, Body: "hi"}
	reviewComment := &Comment{ID: 6, Body: "nit", Path: "main.go"}
	pr := &PullRequest{Number: 3}

	tests := []struct {
		name   string
		raw    RawEvent
		want   Kind
		wantOK bool
	}{
		{"issue opened", RawEvent{Action: "opened", Issue: plainIssue}, KindIssueOpened, true},
		{"opened with pr shim", RawEvent{Action: "opened", Issue: prIssue}, "", false},
		{"issue comment", RawEvent{Action: "created", Issue: plainIssue, Comment: comment}, KindIssueCommentCreated, true},
		{"pr conversation comment", RawEvent{Action: "created", Issue: prIssue, Comment: comment}, KindPullRequestCommentCreated, true},
		{"review comment", RawEvent{Action: "created", PullRequest: pr, Comment: reviewComment}, KindPullRequestReviewCommentCreated, true},
		{"review comment without path", RawEvent{Action: "created", PullRequest: pr, Comment: comment}, "", false},
		{"created without comment", RawEvent{Action: "created", Issue: plainIssue}, "", false},
		{"edited comment", RawEvent{Action: "edited", Issue: plainIssue, Comment: comment}, "", false},
		{"labeled", RawEvent{Action: "labeled", Issue: plainIssue, Label: &Label{Name: "claude"}}, "", false},
		{"empty payload", RawEvent{}, "", false},
		{"issue wins over pull request", RawEvent{Action: "created", Issue: plainIssue, PullRequest: pr, Comment: reviewComment}, KindIssueCommentCreated, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Classify(tt.raw)
			if ok != tt.wantOK {
				t.Fatalf("Classify() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				if got != nil {
					t.Fatalf("unsupported event must return nil, got %T", got)
				}
				return
			}
			if got.Kind() != tt.want {
				t.Fatalf("Classify() kind = %s, want %s", got.Kind(), tt.want)
			}
		})
	}
}

func TestClassifiedAccessors(t *testing.T) {
	line := 42
	ev, ok := Classify(RawEvent{
		Action:      "created",
		PullRequest: &PullRequest{Number: 9, Title: "Refactor", Body: "pr body", Labels: []Label{{Name: "codex"}}},
		Comment:     &Comment{ID: 11, InReplyToID: 10, Body: "/codex tidy", Path: "pkg/a.go", Line: &line},
	})
	if !ok {
		t.Fatalf("expected review comment to classify")
	}
	review, isReview := ev.(PullRequestReviewCommentCreated)
	if !isReview {
		t.Fatalf("unexpected type %T", ev)
	}
	if review.ThreadRootID() != 10 {
		t.Fatalf("ThreadRootID() = %d, want 10", review.ThreadRootID())
	}
	if ev.Number() != 9 || ev.Title() != "Refactor" || ev.TriggerText() != "/codex tidy" {
		t.Fatalf("unexpected accessors: %d %q %q", ev.Number(), ev.Title(), ev.TriggerText())
	}
	if !ev.PullRequestScoped() {
		t.Fatalf("review comments are pull request scoped")
	}
	if names := ev.LabelNames(); len(names) != 1 || names[0] != "codex" {
		t.Fatalf("LabelNames() = %v", names)
	}
}

func TestIssueOpenedTriggerTextIsBody(t *testing.T) {
	ev, ok := Classify(RawEvent{Action: "opened", Issue: &Issue{Number: 1, Body: "/claude go"}})
	if !ok {
		t.Fatalf("expected classification")
	}
	if ev.TriggerText() != "/claude go" {
		t.Fatalf("TriggerText() = %q", ev.TriggerText())
	}
}
