package webhook

// Kind names a supported event variant.
type Kind string

const (
	KindIssueOpened                     Kind = "issue_opened"
	KindIssueCommentCreated             Kind = "issue_comment_created"
	KindPullRequestCommentCreated       Kind = "pull_request_comment_created"
	KindPullRequestReviewCommentCreated Kind = "pull_request_review_comment_created"
)

// Event is a classified webhook event. The set of implementations is closed.
type Event interface {
	Kind() Kind
	Repo() Repository
	// Number is the issue or pull request number the event belongs to.
	Number() int
	Title() string
	Body() string
	LabelNames() []string
	// TriggerText is the text scanned for commands: the issue body when an
	// issue is opened, the comment body otherwise.
	TriggerText() string
	// PullRequestScoped reports whether changed files belong in the prompt.
	PullRequestScoped() bool
	Author() User

	sealed()
}

// IssueOpened is a newly opened issue.
type IssueOpened struct {
	Repository Repository
	Issue      Issue
	Sender     User
}

// IssueCommentCreated is a new comment on a plain issue.
type IssueCommentCreated struct {
	Repository Repository
	Issue      Issue
	Comment    Comment
	Sender     User
}

// PullRequestCommentCreated is a new comment on a pull request conversation.
type PullRequestCommentCreated struct {
	Repository Repository
	Issue      Issue
	Comment    Comment
	Sender     User
}

// PullRequestReviewCommentCreated is a new inline review comment.
type PullRequestReviewCommentCreated struct {
	Repository  Repository
	PullRequest PullRequest
	Comment     Comment
	Sender      User
}

// Classify maps a raw payload to exactly one event variant. Predicates are
// checked in order and the first match wins; ok is false for anything else.
func Classify(raw RawEvent) (Event, bool) {
	switch {
	case raw.Action == "opened" && raw.Issue != nil && !raw.Issue.IsPullRequest():
		return IssueOpened{Repository: raw.Repository, Issue: *raw.Issue, Sender: raw.Sender}, true
	case raw.Action == "created" && raw.Issue != nil && !raw.Issue.IsPullRequest() && raw.Comment != nil:
		return IssueCommentCreated{Repository: raw.Repository, Issue: *raw.Issue, Comment: *raw.Comment, Sender: raw.Sender}, true
	case raw.Action == "created" && raw.Issue != nil && raw.Issue.IsPullRequest() && raw.Comment != nil:
		return PullRequestCommentCreated{Repository: raw.Repository, Issue: *raw.Issue, Comment: *raw.Comment, Sender: raw.Sender}, true
	case raw.Action == "created" && raw.PullRequest != nil && raw.Comment != nil && raw.Comment.Path != "":
		return PullRequestReviewCommentCreated{Repository: raw.Repository, PullRequest: *raw.PullRequest, Comment: *raw.Comment, Sender: raw.Sender}, true
	}
	return nil, false
}

func labelNames(labels []Label) []string {
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		out = append(out, l.Name)
	}
	return out
}

func (IssueOpened) Kind() Kind              { return KindIssueOpened }
func (e IssueOpened) Repo() Repository      { return e.Repository }
func (e IssueOpened) Number() int           { return e.Issue.Number }
func (e IssueOpened) Title() string         { return e.Issue.Title }
func (e IssueOpened) Body() string          { return e.Issue.Body }
func (e IssueOpened) LabelNames() []string  { return labelNames(e.Issue.Labels) }
func (e IssueOpened) TriggerText() string   { return e.Issue.Body }
func (IssueOpened) PullRequestScoped() bool { return false }
func (e IssueOpened) Author() User          { return e.Issue.User }
func (IssueOpened) sealed()                 {}

func (IssueCommentCreated) Kind() Kind              { return KindIssueCommentCreated }
func (e IssueCommentCreated) Repo() Repository      { return e.Repository }
func (e IssueCommentCreated) Number() int           { return e.Issue.Number }
func (e IssueCommentCreated) Title() string         { return e.Issue.Title }
func (e IssueCommentCreated) Body() string          { return e.Issue.Body }
func (e IssueCommentCreated) LabelNames() []string  { return labelNames(e.Issue.Labels) }
func (e IssueCommentCreated) TriggerText() string   { return e.Comment.Body }
func (IssueCommentCreated) PullRequestScoped() bool { return false }
func (e IssueCommentCreated) Author() User          { return e.Comment.User }
func (IssueCommentCreated) sealed()                 {}

func (PullRequestCommentCreated) Kind() Kind              { return KindPullRequestCommentCreated }
func (e PullRequestCommentCreated) Repo() Repository      { return e.Repository }
func (e PullRequestCommentCreated) Number() int           { return e.Issue.Number }
func (e PullRequestCommentCreated) Title() string         { return e.Issue.Title }
func (e PullRequestCommentCreated) Body() string          { return e.Issue.Body }
func (e PullRequestCommentCreated) LabelNames() []string  { return labelNames(e.Issue.Labels) }
func (e PullRequestCommentCreated) TriggerText() string   { return e.Comment.Body }
func (PullRequestCommentCreated) PullRequestScoped() bool { return true }
func (e PullRequestCommentCreated) Author() User          { return e.Comment.User }
func (PullRequestCommentCreated) sealed()                 {}

func (PullRequestReviewCommentCreated) Kind() Kind              { return KindPullRequestReviewCommentCreated }
func (e PullRequestReviewCommentCreated) Repo() Repository      { return e.Repository }
func (e PullRequestReviewCommentCreated) Number() int           { return e.PullRequest.Number }
func (e PullRequestReviewCommentCreated) Title() string         { return e.PullRequest.Title }
func (e PullRequestReviewCommentCreated) Body() string          { return e.PullRequest.Body }
func (e PullRequestReviewCommentCreated) LabelNames() []string  { return labelNames(e.PullRequest.Labels) }
func (e PullRequestReviewCommentCreated) TriggerText() string   { return e.Comment.Body }
func (PullRequestReviewCommentCreated) PullRequestScoped() bool { return true }
func (e PullRequestReviewCommentCreated) Author() User          { return e.Comment.User }
func (PullRequestReviewCommentCreated) sealed()                 {}

// ThreadRootID returns the id of the review thread the comment belongs to.
func (e PullRequestReviewCommentCreated) ThreadRootID() int64 {
	if e.Comment.InReplyToID != 0 {
		return e.Comment.InReplyToID
	}
	return e.Comment.ID
}
