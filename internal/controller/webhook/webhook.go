package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/go-github/v57/github"
)

// Header names sent by GitHub with every delivery.
const (
	HeaderEvent    = "X-GitHub-Event"
	HeaderDelivery = "X-GitHub-Delivery"
)

// User is the author of an issue, pull request or comment.
type User struct {
	Login string `json:"login"`
	Type  string `json:"type"`
}

// IsBot reports whether the account is a GitHub App or bot user.
func (u User) IsBot() bool {
	return u.Type == "Bot"
}

// Label is an issue or pull request label.
type Label struct {
	Name string `json:"name"`
}

// Repository holds repository metadata.
type Repository struct {
	FullName      string `json:"full_name"`
	Name          string `json:"name"`
	CloneURL      string `json:"clone_url"`
	DefaultBranch string `json:"default_branch"`
	Owner         User   `json:"owner"`
}

// PullRequestMarker is present on issues that are pull request conversations.
type PullRequestMarker struct {
	URL string `json:"url"`
}

// Issue holds the issue fields read by classification and resolution.
type Issue struct {
	Number      int                `json:"number"`
	State       string             `json:"state"`
	Title       string             `json:"title"`
	Body        string             `json:"body"`
	Labels      []Label            `json:"labels"`
	User        User               `json:"user"`
	PullRequest *PullRequestMarker `json:"pull_request"`
}

// IsPullRequest reports whether the issue is the conversation of a pull request.
func (i *Issue) IsPullRequest() bool {
	return i != nil && i.PullRequest != nil
}

// BranchRef is a head or base reference of a pull request.
type BranchRef struct {
	Ref string `json:"ref"`
	SHA string `json:"sha"`
}

// PullRequest holds PR fields used by the service.
type PullRequest struct {
	Number int       `json:"number"`
	State  string    `json:"state"`
	Title  string    `json:"title"`
	Body   string    `json:"body"`
	Labels []Label   `json:"labels"`
	User   User      `json:"user"`
	Head   BranchRef `json:"head"`
	Base   BranchRef `json:"base"`
}

// Comment is an issue comment or a pull request review comment.
type Comment struct {
	ID          int64  `json:"id"`
	Body        string `json:"body"`
	Path        string `json:"path"`
	Line        *int   `json:"line"`
	InReplyToID int64  `json:"in_reply_to_id"`
	User        User   `json:"user"`
}

// RawEvent is the decoded webhook payload. Absent objects stay nil.
type RawEvent struct {
	Name        string       `json:"-"`
	DeliveryID  string       `json:"-"`
	Action      string       `json:"action"`
	Issue       *Issue       `json:"issue"`
	PullRequest *PullRequest `json:"pull_request"`
	Comment     *Comment     `json:"comment"`
	Label       *Label       `json:"label"`
	Repository  Repository   `json:"repository"`
	Sender      User         `json:"sender"`
}

// ErrInvalidSignature is returned when the payload signature does not match the secret.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// ParseRequest validates and decodes a webhook delivery. An empty secret
// skips signature validation.
func ParseRequest(r *http.Request, secret []byte) (RawEvent, error) {
	name := github.WebHookType(r)
	if name == "" {
		return RawEvent{}, fmt.Errorf("missing %s header", HeaderEvent)
	}
	payload, err := github.ValidatePayload(r, secret)
	if err != nil {
		if len(secret) > 0 {
			return RawEvent{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		return RawEvent{}, fmt.Errorf("read payload: %w", err)
	}
	raw, err := Decode(payload)
	if err != nil {
		return RawEvent{}, err
	}
	raw.Name = name
	raw.DeliveryID = github.DeliveryID(r)
	return raw, nil
}

// Decode parses a JSON webhook payload.
func Decode(payload []byte) (RawEvent, error) {
	var raw RawEvent
	dec := json.NewDecoder(bytes.NewReader(payload))
	if err := dec.Decode(&raw); err != nil {
		return RawEvent{}, fmt.Errorf("decode payload: %w", err)
	}
	return raw, nil
}
