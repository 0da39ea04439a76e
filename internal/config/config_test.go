package config

import (
	"errors"
	"strings"
	"testing"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid token config",
			config: Config{
				GitHub: GitHubConfig{Token: "t", APIURL: DefaultAPIURL},
			},
			wantErr: false,
		},
		{
			name: "valid app config",
			config: Config{
				GitHub: GitHubConfig{AppID: 1, InstallationID: 2, PrivateKeySecret: "projects/p/secrets/k", APIURL: DefaultAPIURL},
			},
			wantErr: false,
		},
		{
			name:    "missing credentials",
			config:  Config{GitHub: GitHubConfig{APIURL: DefaultAPIURL}},
			wantErr: true,
			errMsg:  "a token or GitHub App credentials are required",
		},
		{
			name: "token and app",
			config: Config{
				GitHub: GitHubConfig{Token: "t", AppID: 1, InstallationID: 2, PrivateKey: "pem", APIURL: DefaultAPIURL},
			},
			wantErr: true,
			errMsg:  "mutually exclusive",
		},
		{
			name: "app without installation",
			config: Config{
				GitHub: GitHubConfig{AppID: 1, PrivateKey: "pem", APIURL: DefaultAPIURL},
			},
			wantErr: true,
			errMsg:  "installation ID is required",
		},
		{
			name: "app without key",
			config: Config{
				GitHub: GitHubConfig{AppID: 1, InstallationID: 2, APIURL: DefaultAPIURL},
			},
			wantErr: true,
			errMsg:  "private key",
		},
		{
			name: "owner without repo",
			config: Config{
				GitHub:     GitHubConfig{Token: "t", APIURL: DefaultAPIURL},
				Repository: RepositoryConfig{Owner: "octo"},
			},
			wantErr: true,
			errMsg:  "owner and repo must be set together",
		},
		{
			name: "malformed diagnostics repo",
			config: Config{
				GitHub:      GitHubConfig{Token: "t", APIURL: DefaultAPIURL},
				Diagnostics: DiagnosticsConfig{Repo: "nope"},
			},
			wantErr: true,
			errMsg:  "must be owner/name",
		},
		{
			name: "cloud log without project",
			config: Config{
				GitHub:    GitHubConfig{Token: "t", APIURL: DefaultAPIURL},
				Telemetry: TelemetryConfig{LogName: "triage"},
			},
			wantErr: true,
			errMsg:  "required when telemetryLog is set",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.errMsg)
					return
				}
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("Validate() error = %q, want containing %q", err.Error(), tt.errMsg)
				}
				var cfgErr *ConfigError
				if !errors.As(err, &cfgErr) {
					t.Errorf("Validate() error type = %T, want *ConfigError", err)
				}
			} else if err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("INPUT_TOKEN", "secret")
	t.Setenv("INPUT_READONLY", "true")
	t.Setenv("INPUT_ISSUE_NUMBER", "17")
	t.Setenv("INPUT_ERRORLOGISSUE", "9")
	t.Setenv("INPUT_API_URL", "https://ghe.example.com/api/v3/")

	cfg, err := Load(NewInputs())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.GitHub.Token != "secret" {
		t.Errorf("Token = %q, want secret", cfg.GitHub.Token)
	}
	if !cfg.GitHub.Readonly {
		t.Error("Readonly = false, want true")
	}
	if cfg.Repository.IssueNumber != 17 {
		t.Errorf("IssueNumber = %d, want 17", cfg.Repository.IssueNumber)
	}
	if cfg.Diagnostics.IssueNumber != 9 {
		t.Errorf("Diagnostics.IssueNumber = %d, want 9", cfg.Diagnostics.IssueNumber)
	}
	if cfg.GitHub.APIURL != "https://ghe.example.com/api/v3" {
		t.Errorf("APIURL = %q", cfg.GitHub.APIURL)
	}
	if !cfg.Telemetry.Disabled {
		t.Error("Telemetry.Disabled = false, want true when no destination is set")
	}
}

func TestLoad_MalformedNumber(t *testing.T) {
	t.Setenv("INPUT_TOKEN", "secret")
	t.Setenv("INPUT_ISSUE_NUMBER", "twelve")

	_, err := Load(NewInputs())
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Load() error = %v, want *ConfigError", err)
	}
	if cfgErr.Input != "issue_number" {
		t.Errorf("Input = %q, want issue_number", cfgErr.Input)
	}
}

func TestLoad_DefaultAPIURL(t *testing.T) {
	t.Setenv("INPUT_TOKEN", "secret")

	cfg, err := Load(NewInputs())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.GitHub.APIURL != DefaultAPIURL {
		t.Errorf("APIURL = %q, want %q", cfg.GitHub.APIURL, DefaultAPIURL)
	}
}
