// Package releasemonitor dispatches released-<quality> events to a
// repository whenever a new build of a product quality is published.
package releasemonitor

import (
	"context"
	"errors"
	"fmt"

	"github.com/andywolf/triagebot/internal/action"
	"github.com/andywolf/triagebot/internal/blob"
	"github.com/andywolf/triagebot/internal/config"
	"github.com/andywolf/triagebot/internal/github"
	"github.com/andywolf/triagebot/internal/logging"
)

const (
	Name = "latest-release-monitor"

	DefaultContainer = "latest-releases"
)

// DefaultQualities are checked in this order.
var DefaultQualities = []string{"insider", "stable"}

// Options configures a Bot.
type Options struct {
	// Target receives the released-<quality> dispatches.
	Target    github.API
	Store     blob.Store
	Fetcher   ReleaseFetcher
	Container string
	Qualities []string
	Logger    logging.Logger
}

// Bot compares the latest release of each quality with the last one seen.
type Bot struct {
	opts Options
}

var _ action.TriggeredHandler = (*Bot)(nil)

// New creates the bot, filling defaults.
func New(opts Options) *Bot {
	if opts.Container == "" {
		opts.Container = DefaultContainer
	}
	if len(opts.Qualities) == 0 {
		opts.Qualities = DefaultQualities
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	return &Bot{opts: opts}
}

// Settings are the monitor's process inputs.
type Settings struct {
	Target    *github.RepoRef // nil means the triggering repository
	Container string
	Qualities []string
	UpdateURL string
}

// LoadSettings reads targetRepository, blobContainerName, qualities and
// updateURL. All are optional.
func LoadSettings(in *config.Inputs) (Settings, error) {
	s := Settings{
		Container: in.Optional("blobContainerName"),
		Qualities: in.OptionalList("qualities"),
		UpdateURL: in.Optional("updateURL"),
	}
	if raw := in.Optional("targetRepository"); raw != "" {
		ref, err := github.ParseRepoRef(raw)
		if err != nil {
			return s, &config.ConfigError{Input: "targetRepository", Reason: err.Error()}
		}
		s.Target = &ref
	}
	return s, nil
}

func (b *Bot) Name() string { return Name }

// OnTriggered checks every quality in order and stops at the first failure.
func (b *Bot) OnTriggered(ctx context.Context, _ *action.Event) error {
	for _, q := range b.opts.Qualities {
		if err := b.update(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func blobName(quality string) string {
	return "latest-" + quality
}

func (b *Bot) update(ctx context.Context, quality string) error {
	lastKnown, err := b.opts.Store.DownloadText(ctx, blobName(quality), b.opts.Container)
	if err != nil && !errors.Is(err, blob.ErrNotFound) {
		return fmt.Errorf("reading last known %s release: %w", quality, err)
	}

	latest, err := b.opts.Fetcher.Latest(ctx, quality)
	if err != nil {
		return err
	}
	if latest == "" || latest == lastKnown {
		b.opts.Logger.Debugf("no new %s release (last known %q)", quality, lastKnown)
		return nil
	}

	b.opts.Logger.Infof("found a new release of %s: %s", quality, latest)
	if err := b.opts.Store.UploadText(ctx, blobName(quality), latest, b.opts.Container); err != nil {
		return fmt.Errorf("saving %s release %s: %w", quality, latest, err)
	}
	if err := b.opts.Target.Dispatch(ctx, "released-"+quality, nil); err != nil {
		return fmt.Errorf("dispatching released-%s to %s: %w", quality, b.opts.Target.Repo(), err)
	}
	return nil
}
