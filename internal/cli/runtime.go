package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/andywolf/triagebot/internal/action"
	"github.com/andywolf/triagebot/internal/blob"
	"github.com/andywolf/triagebot/internal/cloud/gcp"
	"github.com/andywolf/triagebot/internal/config"
	"github.com/andywolf/triagebot/internal/escalation"
	"github.com/andywolf/triagebot/internal/github"
	"github.com/andywolf/triagebot/internal/logging"
	"github.com/andywolf/triagebot/internal/security"
	"github.com/andywolf/triagebot/internal/telemetry"
)

// getenv is replaced in tests.
var getenv = os.Getenv

// runtime is everything one bot run needs, built from the process inputs.
type runtime struct {
	bot      string
	inputs   *config.Inputs
	cfg      *config.Config
	runID    string
	logger   logging.Logger
	api      github.API
	recorder telemetry.Recorder
	sink     *escalation.Sink
	closers  []func() error
}

// loadInputs resolves inputs from the environment, the optional inputs and
// dotenv files, and cmd's flags.
func loadInputs(cmd *cobra.Command) (*config.Inputs, error) {
	in := config.NewInputs()
	if envFile != "" {
		if err := in.LoadEnvFile(envFile); err != nil {
			return nil, err
		}
	}
	if cfgFile != "" {
		if err := in.LoadFile(cfgFile); err != nil {
			return nil, err
		}
	}
	if err := in.BindFlags(cmd.LocalFlags()); err != nil {
		return nil, err
	}
	if readonly {
		in.Set("readonly", "true")
	}
	return in, nil
}

// newRuntime builds the client, telemetry recorder and escalation sink for
// bot. Close must be called when the run ends.
func newRuntime(ctx context.Context, cmd *cobra.Command, bot string) (*runtime, error) {
	in, err := loadInputs(cmd)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(in)
	if err != nil {
		return nil, err
	}

	rt := &runtime{bot: bot, inputs: in, cfg: cfg, runID: runID()}
	rt.logger = logging.New(
		logging.WithRunID(rt.runID),
		logging.WithLabels(map[string]string{"bot": bot}),
		logging.WithVerbose(verbose),
	)

	repo, err := triggeringRepo(cfg.Repository)
	if err != nil {
		return nil, err
	}

	tokens, privateKey, err := rt.tokenSource(ctx)
	if err != nil {
		return nil, err
	}
	client, err := github.NewClient(github.Config{
		BaseURL:     cfg.GitHub.APIURL,
		Repo:        repo,
		TokenSource: tokens,
		Readonly:    cfg.GitHub.Readonly,
		Logger:      rt.logger,
	})
	if err != nil {
		return nil, err
	}
	rt.api = client

	if rt.recorder, err = rt.newRecorder(ctx); err != nil {
		rt.Close()
		return nil, err
	}

	diagnostics, err := diagnosticsRef(cfg.Diagnostics)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.sink = escalation.New(escalation.Config{
		API:         client,
		Diagnostics: diagnostics,
		Bot:         bot,
		Workflow:    getenv("GITHUB_WORKFLOW"),
		RunID:       rt.runID,
		Recorder:    rt.recorder,
		Logger:      rt.logger,
		Scrubber:    security.NewScrubber(cfg.GitHub.Token, privateKey, cfg.Storage.Key),
		InActions:   getenv("GITHUB_ACTIONS") == "true",
	})
	return rt, nil
}

// runID is the Actions run id, or a fresh UUID outside Actions.
func runID() string {
	if id := getenv("GITHUB_RUN_ID"); id != "" {
		return id
	}
	return uuid.New().String()
}

func triggeringRepo(overrides config.RepositoryConfig) (github.RepoRef, error) {
	if overrides.Owner != "" && overrides.Repo != "" {
		return github.RepoRef{Owner: overrides.Owner, Name: overrides.Repo}, nil
	}
	full := getenv("GITHUB_REPOSITORY")
	if full == "" {
		return github.RepoRef{}, &config.ConfigError{Input: "repo", Reason: "GITHUB_REPOSITORY is not set and no owner/repo inputs were given"}
	}
	return github.ParseRepoRef(full)
}

func diagnosticsRef(d config.DiagnosticsConfig) (github.IssueRef, error) {
	ref := github.IssueRef{Number: d.IssueNumber}
	if d.Repo != "" {
		repo, err := github.ParseRepoRef(d.Repo)
		if err != nil {
			return ref, &config.ConfigError{Input: "errorLogRepo", Reason: err.Error()}
		}
		ref.Repo = repo
	}
	return ref, nil
}

// tokenSource returns the API credentials and, for App auth, the private
// key so it can be scrubbed from reports.
func (rt *runtime) tokenSource(ctx context.Context) (oauth2.TokenSource, string, error) {
	gh := rt.cfg.GitHub
	if !gh.UsesApp() {
		return github.StaticToken(gh.Token), "", nil
	}

	privateKey := gh.PrivateKey
	if privateKey == "" {
		secrets, err := gcp.NewSecretManagerClient(ctx, rt.cfg.Telemetry.Project)
		if err != nil {
			return nil, "", err
		}
		defer secrets.Close()
		if privateKey, err = secrets.FetchSecret(ctx, gh.PrivateKeySecret); err != nil {
			return nil, "", fmt.Errorf("fetching GitHub App private key: %w", err)
		}
	}

	tm, err := github.NewTokenManager(ctx, gh.AppID, gh.InstallationID, []byte(privateKey),
		github.WithTokenExchanger(github.NewTokenExchanger(github.WithBaseURL(gh.APIURL))))
	if err != nil {
		return nil, "", fmt.Errorf("GitHub App auth: %w", err)
	}
	return tm, privateKey, nil
}

func (rt *runtime) newRecorder(ctx context.Context) (telemetry.Recorder, error) {
	t := rt.cfg.Telemetry
	switch {
	case t.Disabled:
		return telemetry.Nop(), nil
	case t.File != "":
		sink, err := telemetry.NewFileSink(t.File)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, sink.Close)
		return sink, nil
	default:
		rec, err := gcp.NewCloudRecorder(ctx, t.Project, t.LogName, map[string]string{"bot": rt.bot, "run_id": rt.runID})
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, rec.Close)
		return rec, nil
	}
}

// blobStore returns the local directory store when storageDir is set and
// Cloud Storage otherwise.
func (rt *runtime) blobStore(ctx context.Context) (blob.Store, error) {
	if dir := rt.cfg.Storage.Dir; dir != "" {
		return &blob.FileStore{Root: dir}, nil
	}
	return gcp.NewStorageStore(ctx, rt.cfg.Storage.Key)
}

// dispatch runs bot once against the triggering event.
func (rt *runtime) dispatch(ctx context.Context, bot action.Bot) error {
	var diagnostics *github.IssueRef
	if d := rt.sink.Diagnostics(); d.Number > 0 {
		diagnostics = &d
	}
	d := action.NewDispatcher(action.Config{
		Bot:         bot,
		Source:      action.EnvSource{Overrides: rt.cfg.Repository, Getenv: getenv},
		Escalator:   rt.sink,
		Diagnostics: diagnostics,
		Logger:      rt.logger,
	})
	return d.Run(ctx)
}

// Close flushes logs and releases telemetry destinations.
func (rt *runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		errs = append(errs, rt.closers[i]())
	}
	rt.closers = nil
	if rt.logger != nil {
		errs = append(errs, rt.logger.Flush())
	}
	return errors.Join(errs...)
}
