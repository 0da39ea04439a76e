package featurerequest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andywolf/triagebot/internal/config"
)

// Markers prefix every comment the machine posts so later runs can find
// them. They must never change: existing issues carry them.
const (
	CreateMarker = "<!-- 6d457af9-96bd-47a8-a0e8-ecf120dfffc1 -->"
	WarnMarker   = "<!-- 7e568b0a-a7ce-58b9-b1f9-fd0231e000d2 -->"
	RejectMarker = "<!-- 8f679c1b-b8df-69ca-c20a-0e1342f111e3 -->"
	AcceptMarker = "<!-- 9078ab2c-c9e0-7adb-d31b-1f23430222f4 -->"
)

// Config is the declarative feature-request policy.
type Config struct {
	CandidateMilestone     int
	CandidateMilestoneName string
	BacklogMilestone       int // 0 disables the accept path

	Label               string
	UpvotesRequired     int
	NumCommentsOverride int
	LabelsToExclude     []string

	InitComment   string // optional
	WarnComment   string
	AcceptComment string // optional
	RejectComment string
	RejectLabel   string // optional

	WarnDelay      time.Duration
	CloseDelay     time.Duration
	MilestoneDelay time.Duration
}

// LoadConfig reads the policy from process inputs.
func LoadConfig(in *config.Inputs) (Config, error) {
	var cfg Config
	var err error

	if cfg.CandidateMilestone, err = in.RequiredInt("candidateMilestoneID"); err != nil {
		return cfg, err
	}
	if cfg.CandidateMilestoneName, err = in.Required("candidateMilestoneName"); err != nil {
		return cfg, err
	}
	if cfg.BacklogMilestone, err = in.OptionalInt("backlogMilestoneID", 0); err != nil {
		return cfg, err
	}
	if cfg.Label, err = in.Required("featureRequestLabel"); err != nil {
		return cfg, err
	}
	if cfg.UpvotesRequired, err = in.RequiredInt("upvotesRequired"); err != nil {
		return cfg, err
	}
	if cfg.NumCommentsOverride, err = in.RequiredInt("numCommentsOverride"); err != nil {
		return cfg, err
	}
	cfg.LabelsToExclude = in.OptionalList("labelsToExclude")

	cfg.InitComment = in.Optional("initComment")
	if cfg.WarnComment, err = in.Required("warnComment"); err != nil {
		return cfg, err
	}
	cfg.AcceptComment = in.Optional("acceptComment")
	if cfg.RejectComment, err = in.Required("rejectComment"); err != nil {
		return cfg, err
	}
	cfg.RejectLabel = in.Optional("rejectLabel")

	if cfg.WarnDelay, err = in.RequiredDays("warnDays"); err != nil {
		return cfg, err
	}
	if cfg.CloseDelay, err = in.RequiredDays("closeDays"); err != nil {
		return cfg, err
	}
	seconds, err := in.OptionalInt("milestoneDelaySeconds", 0)
	if err != nil {
		return cfg, err
	}
	cfg.MilestoneDelay = time.Duration(seconds) * time.Second

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the policy for contradictions.
func (c Config) Validate() error {
	switch {
	case c.CandidateMilestone <= 0:
		return &config.ConfigError{Input: "candidateMilestoneID", Reason: "must be a positive milestone number"}
	case c.CandidateMilestoneName == "":
		return &config.ConfigError{Input: "candidateMilestoneName", Reason: "is required"}
	case c.BacklogMilestone < 0:
		return &config.ConfigError{Input: "backlogMilestoneID", Reason: "must not be negative"}
	case c.BacklogMilestone == c.CandidateMilestone:
		return &config.ConfigError{Input: "backlogMilestoneID", Reason: "must differ from the candidate milestone"}
	case c.Label == "":
		return &config.ConfigError{Input: "featureRequestLabel", Reason: "is required"}
	case c.UpvotesRequired < 0:
		return &config.ConfigError{Input: "upvotesRequired", Reason: "must not be negative"}
	case c.NumCommentsOverride < 0:
		return &config.ConfigError{Input: "numCommentsOverride", Reason: "must not be negative"}
	case c.WarnDelay < 0:
		return &config.ConfigError{Input: "warnDays", Reason: "must not be negative"}
	case c.CloseDelay < c.WarnDelay:
		return &config.ConfigError{Input: "closeDays", Reason: fmt.Sprintf("must be at least warnDays (%s)", c.WarnDelay)}
	case c.MilestoneDelay < 0:
		return &config.ConfigError{Input: "milestoneDelaySeconds", Reason: "must not be negative"}
	}
	return nil
}

// acceptEnabled reports whether popular candidates are moved to the backlog.
func (c Config) acceptEnabled() bool {
	return c.BacklogMilestone > 0 && c.AcceptComment != ""
}

// Policy is the optional repository config file that overrides the
// comments and label lists given as inputs. Unset fields keep the inputs.
type Policy struct {
	InitComment     *string  `json:"initComment" yaml:"initComment"`
	WarnComment     *string  `json:"warnComment" yaml:"warnComment"`
	AcceptComment   *string  `json:"acceptComment" yaml:"acceptComment"`
	RejectComment   *string  `json:"rejectComment" yaml:"rejectComment"`
	RejectLabel     *string  `json:"rejectLabel" yaml:"rejectLabel"`
	LabelsToExclude []string `json:"labelsToExclude" yaml:"labelsToExclude"`
}

// ApplyRepoPolicy overlays the repository policy file name, if present, onto
// cfg. A missing file leaves cfg unchanged.
func ApplyRepoPolicy(ctx context.Context, fetcher config.FileFetcher, name string, cfg *Config) error {
	var p Policy
	if err := config.ReadRepoConfig(ctx, fetcher, name, &p); err != nil {
		if errors.Is(err, config.ErrConfigNotFound) {
			return nil
		}
		return err
	}

	for dst, src := range map[*string]*string{
		&cfg.InitComment:   p.InitComment,
		&cfg.WarnComment:   p.WarnComment,
		&cfg.AcceptComment: p.AcceptComment,
		&cfg.RejectComment: p.RejectComment,
		&cfg.RejectLabel:   p.RejectLabel,
	} {
		if src != nil {
			*dst = *src
		}
	}
	if p.LabelsToExclude != nil {
		cfg.LabelsToExclude = p.LabelsToExclude
	}
	return cfg.Validate()
}
