// Package action turns one GitHub Actions trigger into one call of a bot's
// lifecycle handler, and escalates whatever goes wrong.
package action

import (
	"fmt"
	"maps"
	"strconv"
	"strings"

	"github.com/andywolf/triagebot/internal/github"
)

// EventKind classifies a trigger by the handler it maps to.
type EventKind int

const (
	KindUnknown EventKind = iota
	KindOpened
	KindReopened
	KindClosed
	KindLabeled
	KindUnlabeled
	KindAssigned
	KindUnassigned
	KindCommented
	KindMilestoned
	KindDemilestoned
	KindEdited
	KindTagCreated
	KindCronTriggered
	KindDeployment
)

var kindNames = map[EventKind]string{
	KindUnknown:       "unknown",
	KindOpened:        "opened",
	KindReopened:      "reopened",
	KindClosed:        "closed",
	KindLabeled:       "labeled",
	KindUnlabeled:     "unlabeled",
	KindAssigned:      "assigned",
	KindUnassigned:    "unassigned",
	KindCommented:     "commented",
	KindMilestoned:    "milestoned",
	KindDemilestoned:  "demilestoned",
	KindEdited:        "edited",
	KindTagCreated:    "tag-created",
	KindCronTriggered: "triggered",
	KindDeployment:    "deployment",
}

func (k EventKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// issueActions maps the action of issues and pull_request events.
var issueActions = map[string]EventKind{
	"opened":           KindOpened,
	"ready_for_review": KindOpened,
	"reopened":         KindReopened,
	"closed":           KindClosed,
	"labeled":          KindLabeled,
	"unlabeled":        KindUnlabeled,
	"assigned":         KindAssigned,
	"unassigned":       KindUnassigned,
	"edited":           KindEdited,
	"milestoned":       KindMilestoned,
	"demilestoned":     KindDemilestoned,
}

// Classify maps a GitHub event name and its payload's action, ref_type and
// ref to an EventKind. Anything unrecognized is KindUnknown.
func Classify(name, action, refType, ref string) EventKind {
	switch name {
	case "issues", "pull_request", "pull_request_target":
		return issueActions[action]
	case "issue_comment":
		return KindCommented
	case "create":
		if refType == "tag" {
			return KindTagCreated
		}
	case "push":
		if strings.HasPrefix(ref, "refs/tags/") {
			return KindTagCreated
		}
	case "schedule", "workflow_dispatch", "repository_dispatch":
		return KindCronTriggered
	case "deployment", "deployment_status":
		return KindDeployment
	}
	return KindUnknown
}

// Fields are the values an Event is built from.
type Fields struct {
	// Kind is derived with Classify when left as KindUnknown.
	Kind EventKind

	Name     string // GitHub event name, e.g. "issues"
	Action   string // payload action
	Repo     github.RepoRef
	Issue    *github.IssueRef
	Actor    string
	Workflow string

	Label        string
	Assignee     string
	CommentBody  string
	RefType      string
	Ref          string
	DispatchType string
	Payload      map[string]any // repository_dispatch client_payload or workflow_dispatch inputs
}

// Event is one classified trigger. It cannot be modified after NewEvent;
// accessors return copies.
type Event struct {
	f Fields
}

// NewEvent builds an Event from f.
func NewEvent(f Fields) *Event {
	if f.Kind == KindUnknown {
		f.Kind = Classify(f.Name, f.Action, f.RefType, f.Ref)
	}
	if f.Issue != nil {
		ref := *f.Issue
		f.Issue = &ref
	}
	f.Payload = maps.Clone(f.Payload)
	return &Event{f: f}
}

func (e *Event) Kind() EventKind         { return e.f.Kind }
func (e *Event) Name() string            { return e.f.Name }
func (e *Event) Action() string          { return e.f.Action }
func (e *Event) Repo() github.RepoRef    { return e.f.Repo }
func (e *Event) Actor() string           { return e.f.Actor }
func (e *Event) Workflow() string        { return e.f.Workflow }
func (e *Event) Label() string           { return e.f.Label }
func (e *Event) Assignee() string        { return e.f.Assignee }
func (e *Event) CommentBody() string     { return e.f.CommentBody }
func (e *Event) DispatchType() string    { return e.f.DispatchType }
func (e *Event) Payload() map[string]any { return maps.Clone(e.f.Payload) }

// Issue returns the issue the event concerns, or nil for repository-level
// triggers.
func (e *Event) Issue() *github.IssueRef {
	if e.f.Issue == nil {
		return nil
	}
	ref := *e.f.Issue
	return &ref
}

// TagRef returns the tag name of a tag event, without refs/tags/.
func (e *Event) TagRef() string {
	return strings.TrimPrefix(e.f.Ref, "refs/tags/")
}

// PayloadString returns a payload value formatted as a string.
func (e *Event) PayloadString(key string) string {
	v, ok := e.f.Payload[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// PayloadInt returns a numeric payload value. Numeric strings are accepted.
func (e *Event) PayloadInt(key string) (int, bool) {
	n, err := strconv.Atoi(e.PayloadString(key))
	if err != nil {
		return 0, false
	}
	return n, true
}

func (e *Event) String() string {
	s := e.f.Name
	if e.f.Action != "" {
		s += "." + e.f.Action
	}
	if e.f.Issue != nil {
		return s + " on " + e.f.Issue.String()
	}
	return s + " on " + e.f.Repo.String()
}

// Context is a summary of the event for diagnostics.
func (e *Event) Context() map[string]any {
	ctx := map[string]any{
		"kind":     e.f.Kind.String(),
		"event":    e.f.Name,
		"repo":     e.f.Repo.String(),
		"actor":    e.f.Actor,
		"workflow": e.f.Workflow,
	}
	optional := map[string]string{
		"action":        e.f.Action,
		"label":         e.f.Label,
		"assignee":      e.f.Assignee,
		"ref":           e.f.Ref,
		"dispatch_type": e.f.DispatchType,
	}
	for k, v := range optional {
		if v != "" {
			ctx[k] = v
		}
	}
	if e.f.Issue != nil {
		ctx["issue"] = e.f.Issue.String()
	}
	if len(e.f.Payload) > 0 {
		ctx["payload"] = maps.Clone(e.f.Payload)
	}
	return ctx
}
