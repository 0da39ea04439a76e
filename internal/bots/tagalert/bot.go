// Package tagalert fails the run, and so alerts maintainers, when a
// forbidden tag is pushed.
package tagalert

import (
	"context"
	"fmt"

	"github.com/andywolf/triagebot/internal/action"
	"github.com/andywolf/triagebot/internal/config"
)

const Name = "tag-alert"

// BadTagError reports a push of the forbidden tag.
type BadTagError struct {
	Actor string
	Tag   string
}

func (e *BadTagError) Error() string {
	return fmt.Sprintf("Warning: @%s pushed bad tag %s", e.Actor, e.Tag)
}

// Bot watches tag creation for one forbidden tag name.
type Bot struct {
	tagName string
}

var _ action.TagCreatedHandler = (*Bot)(nil)

// New creates a bot that rejects tagName.
func New(tagName string) *Bot {
	return &Bot{tagName: tagName}
}

// FromInputs reads the required tag-name input.
func FromInputs(in *config.Inputs) (*Bot, error) {
	tag, err := in.Required("tag-name")
	if err != nil {
		return nil, err
	}
	return New(tag), nil
}

func (b *Bot) Name() string { return Name }

func (b *Bot) OnTagCreated(_ context.Context, ev *action.Event) error {
	if ev.TagRef() == b.tagName {
		return &BadTagError{Actor: ev.Actor(), Tag: ev.TagRef()}
	}
	return nil
}
