package action

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/andywolf/triagebot/internal/config"
	"github.com/andywolf/triagebot/internal/github"
)

// EventSource resolves the trigger of the current run.
type EventSource interface {
	Event(ctx context.Context) (*Event, error)
}

// StaticEvent is an EventSource that always returns the same event.
type StaticEvent struct {
	E *Event
}

func (s StaticEvent) Event(context.Context) (*Event, error) {
	if s.E == nil {
		return nil, fmt.Errorf("action: no event")
	}
	return s.E, nil
}

// EnvSource reads the trigger from the GitHub Actions runner environment:
// GITHUB_EVENT_NAME, GITHUB_EVENT_PATH, GITHUB_REPOSITORY, GITHUB_ACTOR
// and GITHUB_WORKFLOW. Owner, repo and issue number overrides from the run
// configuration take precedence.
type EnvSource struct {
	Overrides config.RepositoryConfig

	// Getenv and ReadFile default to the os package.
	Getenv   func(string) string
	ReadFile func(string) ([]byte, error)
}

// webhookPayload is the subset of webhook payload fields used to classify
// and describe an event.
type webhookPayload struct {
	Action string `json:"action"`
	Number int    `json:"number"`
	Issue  *struct {
		Number int `json:"number"`
	} `json:"issue"`
	PullRequest *struct {
		Number int `json:"number"`
	} `json:"pull_request"`
	Label *struct {
		Name string `json:"name"`
	} `json:"label"`
	Assignee *struct {
		Login string `json:"login"`
	} `json:"assignee"`
	Comment *struct {
		Body string `json:"body"`
	} `json:"comment"`
	Sender *struct {
		Login string `json:"login"`
	} `json:"sender"`
	Ref           string         `json:"ref"`
	RefType       string         `json:"ref_type"`
	ClientPayload map[string]any `json:"client_payload"`
	Inputs        map[string]any `json:"inputs"`
}

func (s EnvSource) getenv(key string) string {
	if s.Getenv != nil {
		return s.Getenv(key)
	}
	return os.Getenv(key)
}

// Event implements EventSource.
func (s EnvSource) Event(context.Context) (*Event, error) {
	name := s.getenv("GITHUB_EVENT_NAME")
	if name == "" {
		return nil, fmt.Errorf("action: GITHUB_EVENT_NAME is not set")
	}

	var payload webhookPayload
	if path := s.getenv("GITHUB_EVENT_PATH"); path != "" {
		readFile := s.ReadFile
		if readFile == nil {
			readFile = os.ReadFile
		}
		data, err := readFile(path)
		if err != nil {
			return nil, fmt.Errorf("action: reading event payload: %w", err)
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("action: parsing event payload %s: %w", path, err)
		}
	}

	repo, err := s.repo()
	if err != nil {
		return nil, err
	}

	f := Fields{
		Name:     name,
		Action:   payload.Action,
		Repo:     repo,
		Actor:    s.getenv("GITHUB_ACTOR"),
		Workflow: s.getenv("GITHUB_WORKFLOW"),
		Ref:      payload.Ref,
		RefType:  payload.RefType,
	}
	if payload.Sender != nil && payload.Sender.Login != "" {
		f.Actor = payload.Sender.Login
	}
	if payload.Label != nil {
		f.Label = payload.Label.Name
	}
	if payload.Assignee != nil {
		f.Assignee = payload.Assignee.Login
	}
	if payload.Comment != nil {
		f.CommentBody = payload.Comment.Body
	}

	switch name {
	case "repository_dispatch":
		f.DispatchType = payload.Action
		f.Payload = payload.ClientPayload
	case "workflow_dispatch":
		f.Payload = payload.Inputs
	case "create":
		// A create event's ref is the bare name; normalize to a full ref.
		if payload.RefType == "tag" {
			f.Ref = "refs/tags/" + payload.Ref
		}
	}

	switch name {
	case "issues", "pull_request", "pull_request_target", "issue_comment":
		if n := s.issueNumber(&payload); n > 0 {
			f.Issue = &github.IssueRef{Repo: repo, Number: n}
		}
	}

	return NewEvent(f), nil
}

func (s EnvSource) repo() (github.RepoRef, error) {
	if s.Overrides.Owner != "" && s.Overrides.Repo != "" {
		return github.RepoRef{Owner: s.Overrides.Owner, Name: s.Overrides.Repo}, nil
	}
	full := s.getenv("GITHUB_REPOSITORY")
	if full == "" {
		return github.RepoRef{}, fmt.Errorf("action: GITHUB_REPOSITORY is not set and no owner/repo inputs were given")
	}
	repo, err := github.ParseRepoRef(full)
	if err != nil {
		return github.RepoRef{}, fmt.Errorf("action: GITHUB_REPOSITORY: %w", err)
	}
	return repo, nil
}

func (s EnvSource) issueNumber(p *webhookPayload) int {
	switch {
	case s.Overrides.IssueNumber > 0:
		return s.Overrides.IssueNumber
	case p.Issue != nil && p.Issue.Number > 0:
		return p.Issue.Number
	case p.PullRequest != nil && p.PullRequest.Number > 0:
		return p.PullRequest.Number
	default:
		return p.Number
	}
}
