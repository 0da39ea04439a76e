package cli

import (
	"github.com/spf13/cobra"

	"github.com/andywolf/triagebot/internal/action"
	"github.com/andywolf/triagebot/internal/bots/releasemonitor"
	"github.com/andywolf/triagebot/internal/bots/stalecloser"
	"github.com/andywolf/triagebot/internal/bots/tagalert"
	"github.com/andywolf/triagebot/internal/featurerequest"
)

var staleCloserCmd = &cobra.Command{
	Use:   "stale-closer",
	Short: "Move feature requests through the candidate milestone",
	Long: `Promote labeled feature requests into the candidate milestone, post the
init comment when they enter it, and on scheduled runs accept, warn or
close candidates depending on their upvotes and age.

Example:
  triagebot stale-closer --policy feature-requests`,
	RunE: runBot(func(rt *runtime, cmd *cobra.Command) (action.Bot, error) {
		cfg, err := featurerequest.LoadConfig(rt.inputs)
		if err != nil {
			return nil, err
		}
		if policy := rt.inputs.Optional("policy"); policy != "" {
			if err := featurerequest.ApplyRepoPolicy(cmd.Context(), rt.api, policy, &cfg); err != nil {
				return nil, err
			}
		}
		m := featurerequest.New(rt.api, cfg,
			featurerequest.WithReporter(rt.sink),
			featurerequest.WithLogger(rt.logger),
		)
		return stalecloser.New(m), nil
	}),
}

var tagAlertCmd = &cobra.Command{
	Use:   "tag-alert",
	Short: "Fail the run when a forbidden tag is pushed",
	RunE: runBot(func(rt *runtime, _ *cobra.Command) (action.Bot, error) {
		bot, err := tagalert.FromInputs(rt.inputs)
		if err != nil {
			return nil, err
		}
		return bot, nil
	}),
}

var releaseMonitorCmd = &cobra.Command{
	Use:   "latest-release-monitor",
	Short: "Dispatch released-<quality> when a new build is published",
	RunE: runBot(func(rt *runtime, cmd *cobra.Command) (action.Bot, error) {
		settings, err := releasemonitor.LoadSettings(rt.inputs)
		if err != nil {
			return nil, err
		}
		store, err := rt.blobStore(cmd.Context())
		if err != nil {
			return nil, err
		}
		target := rt.api
		if settings.Target != nil {
			target = rt.api.ForRepo(*settings.Target)
		}
		return releasemonitor.New(releasemonitor.Options{
			Target:    target,
			Store:     store,
			Fetcher:   releasemonitor.NewHTTPFetcher(settings.UpdateURL, rt.logger),
			Container: settings.Container,
			Qualities: settings.Qualities,
			Logger:    rt.logger,
		}), nil
	}),
}

// botFactory builds a bot from a ready runtime.
type botFactory func(rt *runtime, cmd *cobra.Command) (action.Bot, error)

// runBot wraps a factory as a cobra RunE: build the runtime, build the bot,
// dispatch once. Setup failures are escalated like handler failures, and
// the rate limit is logged once either way.
func runBot(build botFactory) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		rt, err := newRuntime(ctx, cmd, cmd.Name())
		if err != nil {
			return err
		}
		defer rt.Close()

		bot, err := build(rt, cmd)
		if err != nil {
			rt.sink.ReportFailure(ctx, err.Error(), true)
			rt.sink.LogRateLimit(ctx)
			return err
		}
		return rt.dispatch(ctx, bot)
	}
}

func init() {
	staleCloserCmd.Flags().String("policy", "", "repository config file overriding comments and labels")
	tagAlertCmd.Flags().String("tag-name", "", "tag that must never be pushed")
	releaseMonitorCmd.Flags().String("targetRepository", "", "owner/name receiving released-<quality> dispatches")
	releaseMonitorCmd.Flags().String("blobContainerName", releasemonitor.DefaultContainer, "bucket holding the last known versions")

	rootCmd.AddCommand(botCmds()...)
}

func botCmds() []*cobra.Command {
	return []*cobra.Command{staleCloserCmd, tagAlertCmd, releaseMonitorCmd}
}

// botNames lists the bot commands, for version output.
func botNames() []string {
	var names []string
	for _, c := range botCmds() {
		names = append(names, c.Name())
	}
	return names
}
