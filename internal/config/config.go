package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// DefaultAPIURL is the public GitHub REST endpoint.
const DefaultAPIURL = "https://api.github.com"

// Config is the typed run configuration shared by every bot.
type Config struct {
	GitHub      GitHubConfig
	Repository  RepositoryConfig
	Diagnostics DiagnosticsConfig
	Telemetry   TelemetryConfig
	Storage     StorageConfig
}

// GitHubConfig holds API access settings. Either Token or the App fields are set.
type GitHubConfig struct {
	Token            string
	AppID            int64
	InstallationID   int64
	PrivateKey       string // PEM
	PrivateKeySecret string // Secret Manager resource name
	APIURL           string
	Readonly         bool
}

// UsesApp reports whether GitHub App authentication is configured.
func (g GitHubConfig) UsesApp() bool {
	return g.AppID != 0
}

// RepositoryConfig overrides the repository and issue taken from the event.
type RepositoryConfig struct {
	Owner       string
	Repo        string
	IssueNumber int
}

// DiagnosticsConfig names where escalated failures are reported.
type DiagnosticsConfig struct {
	Repo        string // owner/name; defaults to the triggering repository
	IssueNumber int    // 0 files a new issue per failure
}

// TelemetryConfig selects the telemetry destination.
type TelemetryConfig struct {
	File     string // JSONL file path
	LogName  string // Cloud Logging log name
	Project  string // GCP project for Cloud Logging and Secret Manager
	Disabled bool
}

// StorageConfig selects the blob store.
type StorageConfig struct {
	Key string // service-account JSON for GCS; empty uses ADC
	Dir string // local directory store, used instead of GCS when set
}

// Load builds the run configuration from inputs.
func Load(in *Inputs) (*Config, error) {
	cfg := &Config{}
	var err error

	cfg.GitHub.Token = in.Optional("token")
	cfg.GitHub.PrivateKey = in.Optional("app_private_key")
	cfg.GitHub.PrivateKeySecret = in.Optional("app_private_key_secret")
	cfg.GitHub.APIURL = in.Optional("api_url")
	if cfg.GitHub.AppID, err = optionalInt64(in, "app_id"); err != nil {
		return nil, err
	}
	if cfg.GitHub.InstallationID, err = optionalInt64(in, "app_installation_id"); err != nil {
		return nil, err
	}
	if cfg.GitHub.Readonly, err = in.OptionalBool("readonly"); err != nil {
		return nil, err
	}

	cfg.Repository.Owner = in.Optional("owner")
	cfg.Repository.Repo = in.Optional("repo")
	if cfg.Repository.IssueNumber, err = in.OptionalInt("issue_number", 0); err != nil {
		return nil, err
	}

	cfg.Diagnostics.Repo = in.Optional("errorLogRepo")
	if cfg.Diagnostics.IssueNumber, err = in.OptionalInt("errorLogIssue", 0); err != nil {
		return nil, err
	}

	cfg.Telemetry.File = in.Optional("telemetryFile")
	cfg.Telemetry.LogName = in.Optional("telemetryLog")
	cfg.Telemetry.Project = in.Optional("gcpProject")

	cfg.Storage.Key = in.Optional("storageKey")
	cfg.Storage.Dir = in.Optional("storageDir")

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func optionalInt64(in *Inputs, name string) (int64, error) {
	raw := in.Optional(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, &ConfigError{Input: name, Reason: fmt.Sprintf("not an integer: %q", raw)}
	}
	return n, nil
}

// applyDefaults sets default values for unset fields
func applyDefaults(cfg *Config) {
	if cfg.GitHub.APIURL == "" {
		cfg.GitHub.APIURL = DefaultAPIURL
	}
	cfg.GitHub.APIURL = strings.TrimSuffix(cfg.GitHub.APIURL, "/")

	if cfg.Telemetry.File == "" && cfg.Telemetry.LogName == "" {
		cfg.Telemetry.Disabled = true
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	hasToken := c.GitHub.Token != ""
	hasApp := c.GitHub.AppID != 0 || c.GitHub.InstallationID != 0

	if !hasToken && !hasApp {
		return &ConfigError{Input: "token", Reason: "a token or GitHub App credentials are required"}
	}
	if hasToken && hasApp {
		return &ConfigError{Input: "app_id", Reason: "token and GitHub App credentials are mutually exclusive"}
	}
	if hasApp {
		if c.GitHub.AppID == 0 {
			return &ConfigError{Input: "app_id", Reason: "GitHub App ID is required"}
		}
		if c.GitHub.InstallationID == 0 {
			return &ConfigError{Input: "app_installation_id", Reason: "GitHub App installation ID is required"}
		}
		if c.GitHub.PrivateKey == "" && c.GitHub.PrivateKeySecret == "" {
			return &ConfigError{Input: "app_private_key", Reason: "GitHub App private key or secret name is required"}
		}
	}

	if _, err := url.ParseRequestURI(c.GitHub.APIURL); err != nil {
		return &ConfigError{Input: "api_url", Reason: fmt.Sprintf("invalid URL: %v", err)}
	}

	if c.Repository.IssueNumber < 0 {
		return &ConfigError{Input: "issue_number", Reason: "must not be negative"}
	}
	if (c.Repository.Owner == "") != (c.Repository.Repo == "") {
		return &ConfigError{Input: "repo", Reason: "owner and repo must be set together"}
	}

	if c.Diagnostics.Repo != "" && strings.Count(c.Diagnostics.Repo, "/") != 1 {
		return &ConfigError{Input: "errorLogRepo", Reason: fmt.Sprintf("must be owner/name, got %q", c.Diagnostics.Repo)}
	}

	if c.Telemetry.LogName != "" && c.Telemetry.Project == "" {
		return &ConfigError{Input: "gcpProject", Reason: "required when telemetryLog is set"}
	}

	return nil
}
