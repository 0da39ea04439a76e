// Package stalecloser runs the feature-request lifecycle as a bot.
package stalecloser

import (
	"context"
	"fmt"
	"time"

	"github.com/andywolf/triagebot/internal/action"
	"github.com/andywolf/triagebot/internal/featurerequest"
)

// Name is the bot name used in logs, telemetry and escalation titles.
const Name = "stale-closer"

// Bot routes issue events and scheduled runs to a featurerequest.Machine.
type Bot struct {
	machine *featurerequest.Machine
}

var (
	_ action.LabeledHandler    = (*Bot)(nil)
	_ action.MilestonedHandler = (*Bot)(nil)
	_ action.TriggeredHandler  = (*Bot)(nil)
)

// New creates the bot.
func New(m *featurerequest.Machine) *Bot {
	return &Bot{machine: m}
}

func (b *Bot) Name() string { return Name }

func (b *Bot) OnLabeled(ctx context.Context, ev *action.Event) error {
	return b.machine.OnLabel(ctx, ev.Issue().Number, ev.Label())
}

func (b *Bot) OnMilestoned(ctx context.Context, ev *action.Event) error {
	return b.machine.OnMilestone(ctx, ev.Issue().Number)
}

// OnTriggered applies a delayed promotion for feature-request-promote
// dispatches and sweeps the candidate milestone for every other trigger.
func (b *Bot) OnTriggered(ctx context.Context, ev *action.Event) error {
	if ev.DispatchType() == featurerequest.PromoteEventType {
		number, ok := ev.PayloadInt("issue_number")
		if !ok || number <= 0 {
			return fmt.Errorf("%s dispatch without a valid issue_number", featurerequest.PromoteEventType)
		}
		notBefore, err := time.Parse(time.RFC3339, ev.PayloadString("not_before"))
		if err != nil {
			return fmt.Errorf("%s dispatch for #%d: bad not_before: %w", featurerequest.PromoteEventType, number, err)
		}
		return b.machine.PromoteScheduled(ctx, number, notBefore)
	}

	_, err := b.machine.Sweep(ctx)
	return err
}
