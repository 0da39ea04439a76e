package action

import "context"

// Bot is a caller bot. It implements any subset of the handler interfaces
// below; the dispatcher calls the one matching the event kind, if present.
type Bot interface {
	Name() string
}

type OpenedHandler interface {
	OnOpened(ctx context.Context, ev *Event) error
}

type ReopenedHandler interface {
	OnReopened(ctx context.Context, ev *Event) error
}

type ClosedHandler interface {
	OnClosed(ctx context.Context, ev *Event) error
}

// LabeledHandler is called with the added label in ev.Label().
type LabeledHandler interface {
	OnLabeled(ctx context.Context, ev *Event) error
}

type UnlabeledHandler interface {
	OnUnlabeled(ctx context.Context, ev *Event) error
}

// AssignedHandler is called with the new assignee in ev.Assignee().
type AssignedHandler interface {
	OnAssigned(ctx context.Context, ev *Event) error
}

type UnassignedHandler interface {
	OnUnassigned(ctx context.Context, ev *Event) error
}

// CommentedHandler is called with the comment text in ev.CommentBody().
type CommentedHandler interface {
	OnCommented(ctx context.Context, ev *Event) error
}

type MilestonedHandler interface {
	OnMilestoned(ctx context.Context, ev *Event) error
}

type DemilestonedHandler interface {
	OnDemilestoned(ctx context.Context, ev *Event) error
}

type EditedHandler interface {
	OnEdited(ctx context.Context, ev *Event) error
}

// TagCreatedHandler is called with the tag in ev.TagRef() and the pusher
// in ev.Actor().
type TagCreatedHandler interface {
	OnTagCreated(ctx context.Context, ev *Event) error
}

// TriggeredHandler handles schedule, workflow_dispatch and
// repository_dispatch runs.
type TriggeredHandler interface {
	OnTriggered(ctx context.Context, ev *Event) error
}

type DeploymentHandler interface {
	OnDeployment(ctx context.Context, ev *Event) error
}

// handlerFunc is a bound handler method.
type handlerFunc func(ctx context.Context, ev *Event) error

// handlerFor returns bot's handler for kind, or nil when the bot does not
// implement it.
func handlerFor(bot Bot, kind EventKind) handlerFunc {
	switch kind {
	case KindOpened:
		if h, ok := bot.(OpenedHandler); ok {
			return h.OnOpened
		}
	case KindReopened:
		if h, ok := bot.(ReopenedHandler); ok {
			return h.OnReopened
		}
	case KindClosed:
		if h, ok := bot.(ClosedHandler); ok {
			return h.OnClosed
		}
	case KindLabeled:
		if h, ok := bot.(LabeledHandler); ok {
			return h.OnLabeled
		}
	case KindUnlabeled:
		if h, ok := bot.(UnlabeledHandler); ok {
			return h.OnUnlabeled
		}
	case KindAssigned:
		if h, ok := bot.(AssignedHandler); ok {
			return h.OnAssigned
		}
	case KindUnassigned:
		if h, ok := bot.(UnassignedHandler); ok {
			return h.OnUnassigned
		}
	case KindCommented:
		if h, ok := bot.(CommentedHandler); ok {
			return h.OnCommented
		}
	case KindMilestoned:
		if h, ok := bot.(MilestonedHandler); ok {
			return h.OnMilestoned
		}
	case KindDemilestoned:
		if h, ok := bot.(DemilestonedHandler); ok {
			return h.OnDemilestoned
		}
	case KindEdited:
		if h, ok := bot.(EditedHandler); ok {
			return h.OnEdited
		}
	case KindTagCreated:
		if h, ok := bot.(TagCreatedHandler); ok {
			return h.OnTagCreated
		}
	case KindCronTriggered:
		if h, ok := bot.(TriggeredHandler); ok {
			return h.OnTriggered
		}
	case KindDeployment:
		if h, ok := bot.(DeploymentHandler); ok {
			return h.OnDeployment
		}
	}
	return nil
}
