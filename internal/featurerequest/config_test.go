package featurerequest

import (
	"context"
	"errors"
	"io/fs"
	"reflect"
	"testing"
	"time"

	"github.com/andywolf/triagebot/internal/config"
)

func validInputs() *config.Inputs {
	in := config.NewInputs()
	for k, v := range map[string]string{
		"candidateMilestoneID":   "11",
		"candidateMilestoneName": "Backlog Candidates",
		"featureRequestLabel":    "feature-request",
		"upvotesRequired":        "5",
		"numCommentsOverride":    "10",
		"labelsToExclude":        "on-hold, needs-design",
		"warnComment":            "needs upvotes",
		"rejectComment":          "closing",
		"warnDays":               "14",
		"closeDays":              "30",
	} {
		in.Set(k, v)
	}
	return in
}

func TestLoadConfig(t *testing.T) {
	in := validInputs()
	in.Set("milestoneDelaySeconds", "90")

	cfg, err := LoadConfig(in)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.CandidateMilestone != 11 || cfg.UpvotesRequired != 5 || cfg.NumCommentsOverride != 10 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.WarnDelay != 14*day || cfg.CloseDelay != 30*day || cfg.MilestoneDelay != 90*time.Second {
		t.Errorf("delays = %v %v %v", cfg.WarnDelay, cfg.CloseDelay, cfg.MilestoneDelay)
	}
	if want := []string{"on-hold", "needs-design"}; !reflect.DeepEqual(cfg.LabelsToExclude, want) {
		t.Errorf("LabelsToExclude = %v, want %v", cfg.LabelsToExclude, want)
	}
	if cfg.acceptEnabled() {
		t.Error("accept path enabled without a backlog milestone")
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name      string
		set       map[string]string
		wantInput string
	}{
		{name: "missing label", set: map[string]string{"featureRequestLabel": ""}, wantInput: "featureRequestLabel"},
		{name: "close before warn", set: map[string]string{"closeDays": "7"}, wantInput: "closeDays"},
		{name: "backlog equals candidate", set: map[string]string{"backlogMilestoneID": "11"}, wantInput: "backlogMilestoneID"},
		{name: "negative delay", set: map[string]string{"milestoneDelaySeconds": "-1"}, wantInput: "milestoneDelaySeconds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInputs()
			for k, v := range tt.set {
				in.Set(k, v)
			}

			_, err := LoadConfig(in)

			var cfgErr *config.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("LoadConfig error = %v, want *config.ConfigError", err)
			}
			if cfgErr.Input != tt.wantInput {
				t.Errorf("Input = %q, want %q", cfgErr.Input, tt.wantInput)
			}
		})
	}
}

func TestLoadConfig_MalformedNumber(t *testing.T) {
	in := validInputs()
	in.Set("upvotesRequired", "five")

	if _, err := LoadConfig(in); err == nil {
		t.Fatal("expected error for non-numeric upvotesRequired")
	}
}

func TestApplyRepoPolicy(t *testing.T) {
	ctx := context.Background()
	files := config.FileFetcherFunc(func(_ context.Context, path string) ([]byte, error) {
		switch path {
		case ".github/feature-requests.json":
			return []byte(`{
				// maintainers tune these without touching the workflow
				"warnComment": "Still no upvotes?",
				"labelsToExclude": ["roadmap"]
			}`), nil
		case ".github/broken.yml":
			return []byte("warnComment: [unterminated"), nil
		}
		return nil, fs.ErrNotExist
	})

	cfg := testConfig()
	if err := ApplyRepoPolicy(ctx, files, "feature-requests", &cfg); err != nil {
		t.Fatalf("ApplyRepoPolicy: %v", err)
	}
	if cfg.WarnComment != "Still no upvotes?" || !reflect.DeepEqual(cfg.LabelsToExclude, []string{"roadmap"}) {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.RejectComment != testConfig().RejectComment {
		t.Errorf("unset field changed: %q", cfg.RejectComment)
	}

	missing := testConfig()
	if err := ApplyRepoPolicy(ctx, files, "absent", &missing); err != nil {
		t.Errorf("missing policy file: %v", err)
	}

	var parseErr *config.ConfigParseError
	if err := ApplyRepoPolicy(ctx, files, ".github/broken.yml", &cfg); !errors.As(err, &parseErr) {
		t.Errorf("broken policy = %v, want *config.ConfigParseError", err)
	}
}
