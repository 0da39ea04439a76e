package github

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RepoRef identifies a repository.
type RepoRef struct {
	Owner string
	Name  string
}

func (r RepoRef) String() string {
	return r.Owner + "/" + r.Name
}

// IsZero reports whether the reference is unset.
func (r RepoRef) IsZero() bool {
	return r.Owner == "" && r.Name == ""
}

// ParseRepoRef parses "owner/name".
func ParseRepoRef(s string) (RepoRef, error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return RepoRef{}, fmt.Errorf("invalid repository %q: want owner/name", s)
	}
	return RepoRef{Owner: owner, Name: name}, nil
}

// IssueRef identifies one issue or pull request.
type IssueRef struct {
	Repo   RepoRef
	Number int
}

func (r IssueRef) String() string {
	return fmt.Sprintf("%s#%d", r.Repo, r.Number)
}

// ParseIssueRef parses "owner/name#12", "#12" or "12". Short forms resolve
// against def.
func ParseIssueRef(s string, def RepoRef) (IssueRef, error) {
	s = strings.TrimSpace(s)
	repo := def
	numPart := strings.TrimPrefix(s, "#")

	if before, after, ok := strings.Cut(s, "#"); ok && before != "" {
		r, err := ParseRepoRef(before)
		if err != nil {
			return IssueRef{}, err
		}
		repo = r
		numPart = after
	}

	n, err := strconv.Atoi(numPart)
	if err != nil || n <= 0 {
		return IssueRef{}, fmt.Errorf("invalid issue reference %q", s)
	}
	if repo.IsZero() {
		return IssueRef{}, fmt.Errorf("issue reference %q has no repository", s)
	}
	return IssueRef{Repo: repo, Number: n}, nil
}

// User is an issue author, commenter or actor.
type User struct {
	Login string `json:"login"`
	Type  string `json:"type"`
}

// IsBot reports whether the account is a bot or app.
func (u User) IsBot() bool {
	return u.Type == "Bot" || strings.HasSuffix(u.Login, "[bot]")
}

// Milestone is the subset of milestone fields the bots use.
type Milestone struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
}

// Reactions holds reaction counts. Upvotes are "+1" reactions.
type Reactions struct {
	Upvotes   int `json:"+1"`
	Downvotes int `json:"-1"`
	Total     int `json:"total_count"`
}

// StateReason is the reason recorded when closing or reopening an issue.
type StateReason string

const (
	ReasonCompleted  StateReason = "completed"
	ReasonNotPlanned StateReason = "not_planned"
	ReasonReopened   StateReason = "reopened"
)

// Issue is a snapshot of an issue or pull request. It is never cached
// across runs; callers fetch it fresh when they need current state.
type Issue struct {
	Number        int
	Title         string
	Body          string
	Author        User
	Assignees     []string
	Labels        []string
	Milestone     *Milestone
	NumComments   int
	Reactions     Reactions
	Open          bool
	StateReason   StateReason
	Locked        bool
	IsPullRequest bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ClosedAt      *time.Time
}

// HasLabel reports whether the issue carries label.
func (i *Issue) HasLabel(label string) bool {
	for _, l := range i.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// HasAssignee reports whether login is assigned.
func (i *Issue) HasAssignee(login string) bool {
	for _, a := range i.Assignees {
		if strings.EqualFold(a, login) {
			return true
		}
	}
	return false
}

// issueJSON is the REST wire shape of an issue.
type issueJSON struct {
	Number      int         `json:"number"`
	Title       string      `json:"title"`
	Body        string      `json:"body"`
	User        User        `json:"user"`
	Assignees   []User      `json:"assignees"`
	Labels      []labelJSON `json:"labels"`
	Milestone   *Milestone  `json:"milestone"`
	Comments    int         `json:"comments"`
	Reactions   Reactions   `json:"reactions"`
	State       string      `json:"state"`
	StateReason StateReason `json:"state_reason"`
	Locked      bool        `json:"locked"`
	PullRequest *struct{}   `json:"pull_request"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	ClosedAt    *time.Time  `json:"closed_at"`
}

type labelJSON struct {
	Name string `json:"name"`
}

func (w *issueJSON) toIssue() *Issue {
	issue := &Issue{
		Number:        w.Number,
		Title:         w.Title,
		Body:          w.Body,
		Author:        w.User,
		Milestone:     w.Milestone,
		NumComments:   w.Comments,
		Reactions:     w.Reactions,
		Open:          w.State == "open",
		StateReason:   w.StateReason,
		Locked:        w.Locked,
		IsPullRequest: w.PullRequest != nil,
		CreatedAt:     w.CreatedAt,
		UpdatedAt:     w.UpdatedAt,
		ClosedAt:      w.ClosedAt,
	}

	seen := make(map[string]bool)
	for _, a := range w.Assignees {
		if !seen["@"+a.Login] {
			seen["@"+a.Login] = true
			issue.Assignees = append(issue.Assignees, a.Login)
		}
	}
	for _, l := range w.Labels {
		if !seen[l.Name] {
			seen[l.Name] = true
			issue.Labels = append(issue.Labels, l.Name)
		}
	}
	return issue
}

// Comment is an issue comment.
type Comment struct {
	ID        int64     `json:"id"`
	Author    User      `json:"user"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// IssueEvent is an entry of an issue's event history.
type IssueEvent struct {
	Event     string
	Actor     User
	Label     string
	Milestone string // milestone title for milestoned/demilestoned
	CreatedAt time.Time
}

type issueEventJSON struct {
	Event     string     `json:"event"`
	Actor     User       `json:"actor"`
	Label     *labelJSON `json:"label"`
	Milestone *struct {
		Title string `json:"title"`
	} `json:"milestone"`
	CreatedAt time.Time `json:"created_at"`
}

func (w *issueEventJSON) toEvent() *IssueEvent {
	ev := &IssueEvent{Event: w.Event, Actor: w.Actor, CreatedAt: w.CreatedAt}
	if w.Label != nil {
		ev.Label = w.Label.Name
	}
	if w.Milestone != nil {
		ev.Milestone = w.Milestone.Title
	}
	return ev
}
