// Package github wraps the GitHub REST API calls used by agent runs.
package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	gh "github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const defaultRPS = 10

// Client talks to the GitHub API.
type Client struct {
	client  *gh.Client
	limiter *rate.Limiter
}

// Options configures a Client.
type Options struct {
	// BaseURL overrides the API endpoint, e.g. for GitHub Enterprise or tests.
	BaseURL string
	// RequestsPerSecond throttles outgoing calls. Zero uses the default.
	RequestsPerSecond float64
	// HTTPClient is used instead of an oauth2 client when set.
	HTTPClient *http.Client
}

// Issue holds issue or pull request conversation data.
type Issue struct {
	Number int
	State  string
	Title  string
	Body   string
	Labels []string
	Author string
}

// Comment holds an issue comment or review comment.
type Comment struct {
	ID          int64
	User        string
	UserType    string
	Body        string
	InReplyToID int64
}

// PR holds pull request data.
type PR struct {
	Number  int
	Title   string
	Body    string
	State   string
	HeadRef string
	BaseRef string
	URL     string
}

// PRRequest is used to create a PR.
type PRRequest struct {
	Title string
	Body  string
	Head  string
	Base  string
}

// ReactionEyes acknowledges that a request was picked up.
const ReactionEyes = "eyes"

// NewClient creates a GitHub API client authenticated with token.
func NewClient(ctx context.Context, token string, opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(ctx, ts)
	}
	client := gh.NewClient(httpClient)
	if opts.BaseURL != "" {
		base := opts.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		parsed, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("failed to parse base URL: %w", err)
		}
		client.BaseURL = parsed
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRPS
	}
	return &Client{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}, nil
}

func (c *Client) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

// GetIssue retrieves issue details. Pull requests are returned as issues too.
func (c *Client) GetIssue(ctx context.Context, owner, repo string, number int) (Issue, error) {
	if err := c.wait(ctx); err != nil {
		return Issue{}, err
	}
	issue, _, err := c.client.Issues.Get(ctx, owner, repo, number)
	if err != nil {
		return Issue{}, fmt.Errorf("failed to get issue #%d: %w", number, err)
	}
	labels := make([]string, 0, len(issue.Labels))
	for _, l := range issue.Labels {
		labels = append(labels, l.GetName())
	}
	return Issue{
		Number: issue.GetNumber(),
		State:  issue.GetState(),
		Title:  issue.GetTitle(),
		Body:   issue.GetBody(),
		Labels: labels,
		Author: issue.GetUser().GetLogin(),
	}, nil
}

// ListIssueComments lists every comment on an issue in creation order.
func (c *Client) ListIssueComments(ctx context.Context, owner, repo string, number int) ([]Comment, error) {
	var out []Comment
	opts := &gh.IssueListCommentsOptions{
		Sort:        gh.String("created"),
		Direction:   gh.String("asc"),
		ListOptions: gh.ListOptions{PerPage: 100},
	}
	for {
		if err := c.wait(ctx); err != nil {
			return nil, err
		}
		comments, resp, err := c.client.Issues.ListComments(ctx, owner, repo, number, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list comments for #%d: %w", number, err)
		}
		for _, cm := range comments {
			out = append(out, Comment{
				ID:       cm.GetID(),
				User:     cm.GetUser().GetLogin(),
				UserType: cm.GetUser().GetType(),
				Body:     cm.GetBody(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

// ListReviewComments lists every review comment on a pull request in creation order.
func (c *Client) ListReviewComments(ctx context.Context, owner, repo string, number int) ([]Comment, error) {
	var out []Comment
	opts := &gh.PullRequestListCommentsOptions{
		Sort:        "created",
		Direction:   "asc",
		ListOptions: gh.ListOptions{PerPage: 100},
	}
	for {
		if err := c.wait(ctx); err != nil {
			return nil, err
		}
		comments, resp, err := c.client.PullRequests.ListComments(ctx, owner, repo, number, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list review comments for #%d: %w", number, err)
		}
		for _, cm := range comments {
			out = append(out, Comment{
				ID:          cm.GetID(),
				User:        cm.GetUser().GetLogin(),
				UserType:    cm.GetUser().GetType(),
				Body:        cm.GetBody(),
				InReplyToID: cm.GetInReplyTo(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

// ListPullRequestFiles lists the paths changed by a pull request.
func (c *Client) ListPullRequestFiles(ctx context.Context, owner, repo string, number int) ([]string, error) {
	var out []string
	opts := &gh.ListOptions{PerPage: 100}
	for {
		if err := c.wait(ctx); err != nil {
			return nil, err
		}
		files, resp, err := c.client.PullRequests.ListFiles(ctx, owner, repo, number, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list files for #%d: %w", number, err)
		}
		for _, f := range files {
			out = append(out, f.GetFilename())
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

// GetPR retrieves pull request details.
func (c *Client) GetPR(ctx context.Context, owner, repo string, number int) (PR, error) {
	if err := c.wait(ctx); err != nil {
		return PR{}, err
	}
	pr, _, err := c.client.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		return PR{}, fmt.Errorf("failed to get PR #%d: %w", number, err)
	}
	return toPR(pr), nil
}

// CreatePR opens a pull request.
func (c *Client) CreatePR(ctx context.Context, owner, repo string, req PRRequest) (PR, error) {
	if err := c.wait(ctx); err != nil {
		return PR{}, err
	}
	pr, _, err := c.client.PullRequests.Create(ctx, owner, repo, &gh.NewPullRequest{
		Title: gh.String(req.Title),
		Body:  gh.String(req.Body),
		Head:  gh.String(req.Head),
		Base:  gh.String(req.Base),
	})
	if err != nil {
		return PR{}, fmt.Errorf("failed to create PR: %w", err)
	}
	return toPR(pr), nil
}

// CreateIssueComment posts a comment to an issue or pull request conversation.
func (c *Client) CreateIssueComment(ctx context.Context, owner, repo string, number int, body string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	if _, _, err := c.client.Issues.CreateComment(ctx, owner, repo, number, &gh.IssueComment{Body: gh.String(body)}); err != nil {
		return fmt.Errorf("failed to create comment on #%d: %w", number, err)
	}
	return nil
}

// ReplyToReviewComment posts a reply in the thread of a review comment.
func (c *Client) ReplyToReviewComment(ctx context.Context, owner, repo string, number int, commentID int64, body string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	if _, _, err := c.client.PullRequests.CreateCommentInReplyTo(ctx, owner, repo, number, body, commentID); err != nil {
		return fmt.Errorf("failed to reply to review comment %d: %w", commentID, err)
	}
	return nil
}

// ReactToIssue adds a reaction to an issue.
func (c *Client) ReactToIssue(ctx context.Context, owner, repo string, number int, content string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	if _, _, err := c.client.Reactions.CreateIssueReaction(ctx, owner, repo, number, content); err != nil {
		return fmt.Errorf("failed to react to issue #%d: %w", number, err)
	}
	return nil
}

// ReactToIssueComment adds a reaction to an issue comment.
func (c *Client) ReactToIssueComment(ctx context.Context, owner, repo string, commentID int64, content string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	if _, _, err := c.client.Reactions.CreateIssueCommentReaction(ctx, owner, repo, commentID, content); err != nil {
		return fmt.Errorf("failed to react to comment %d: %w", commentID, err)
	}
	return nil
}

// ReactToReviewComment adds a reaction to a pull request review comment.
func (c *Client) ReactToReviewComment(ctx context.Context, owner, repo string, commentID int64, content string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	if _, _, err := c.client.Reactions.CreatePullRequestCommentReaction(ctx, owner, repo, commentID, content); err != nil {
		return fmt.Errorf("failed to react to review comment %d: %w", commentID, err)
	}
	return nil
}

func toPR(pr *gh.PullRequest) PR {
	return PR{
		Number:  pr.GetNumber(),
		Title:   pr.GetTitle(),
		Body:    pr.GetBody(),
		State:   pr.GetState(),
		HeadRef: pr.GetHead().GetRef(),
		BaseRef: pr.GetBase().GetRef(),
		URL:     pr.GetHTMLURL(),
	}
}
