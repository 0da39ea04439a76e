package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestInputs_Required(t *testing.T) {
	t.Setenv("INPUT_LABEL", "feature-request")
	t.Setenv("INPUT_EMPTY", "   ")

	in := NewInputs()

	got, err := in.Required("label")
	if err != nil {
		t.Fatalf("Required(label) error: %v", err)
	}
	if got != "feature-request" {
		t.Errorf("Required(label) = %q, want feature-request", got)
	}

	for _, name := range []string{"missing", "empty"} {
		_, err := in.Required(name)
		var cfgErr *ConfigError
		if !errors.As(err, &cfgErr) {
			t.Errorf("Required(%s) error = %v, want *ConfigError", name, err)
			continue
		}
		if cfgErr.Input != name {
			t.Errorf("ConfigError.Input = %q, want %q", cfgErr.Input, name)
		}
	}
}

func TestInputs_NameNormalization(t *testing.T) {
	t.Setenv("INPUT_UPVOTES_REQUIRED", "5")
	t.Setenv("INPUT_CANDIDATEMILESTONEID", "107")
	t.Setenv("INPUT_TAG_NAME", "latest")

	in := NewInputs()

	if got := in.Optional("upvotes required"); got != "5" {
		t.Errorf("Optional(upvotes required) = %q, want 5", got)
	}
	if got := in.Optional("candidateMilestoneID"); got != "107" {
		t.Errorf("Optional(candidateMilestoneID) = %q, want 107", got)
	}
	if got := in.Optional("tag-name"); got != "latest" {
		t.Errorf("Optional(tag-name) = %q, want latest", got)
	}
}

func TestInputs_Optional(t *testing.T) {
	in := NewInputs()
	if got := in.Optional("not-set-anywhere"); got != "" {
		t.Errorf("Optional() = %q, want empty", got)
	}
}

func TestInputs_Typed(t *testing.T) {
	t.Setenv("INPUT_WARNDAYS", "1.5")
	t.Setenv("INPUT_UPVOTES", "20")
	t.Setenv("INPUT_BAD", "x")
	t.Setenv("INPUT_EXCLUDE", "a, b,,c ")
	t.Setenv("INPUT_FLAG", "true")

	in := NewInputs()

	d, err := in.RequiredDays("warnDays")
	if err != nil {
		t.Fatalf("RequiredDays error: %v", err)
	}
	if d != 36*time.Hour {
		t.Errorf("RequiredDays = %v, want 36h", d)
	}

	n, err := in.RequiredInt("upvotes")
	if err != nil || n != 20 {
		t.Errorf("RequiredInt = %d, %v; want 20, nil", n, err)
	}

	n, err = in.OptionalInt("unset", 7)
	if err != nil || n != 7 {
		t.Errorf("OptionalInt(unset) = %d, %v; want 7, nil", n, err)
	}

	if _, err := in.RequiredInt("bad"); err == nil {
		t.Error("RequiredInt(bad) expected error")
	}
	if _, err := in.RequiredDays("bad"); err == nil {
		t.Error("RequiredDays(bad) expected error")
	}
	if _, err := in.OptionalBool("bad"); err == nil {
		t.Error("OptionalBool(bad) expected error")
	}

	if got := in.OptionalList("exclude"); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("OptionalList = %v, want [a b c]", got)
	}
	if got := in.OptionalList("unset"); got != nil {
		t.Errorf("OptionalList(unset) = %v, want nil", got)
	}

	b, err := in.OptionalBool("flag")
	if err != nil || !b {
		t.Errorf("OptionalBool(flag) = %v, %v; want true, nil", b, err)
	}
}

func TestInputs_Precedence(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "inputs.yaml")
	if err := os.WriteFile(file, []byte("token: from-file\nlabel: file-label\nwarnDays: 3\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("INPUT_LABEL", "env-label")
	t.Setenv("INPUT_WARNDAYS", "4")

	in := NewInputs()
	if err := in.LoadFile(file); err != nil {
		t.Fatalf("LoadFile error: %v", err)
	}

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("warnDays", "", "")
	if err := in.BindFlags(fs); err != nil {
		t.Fatalf("BindFlags error: %v", err)
	}
	if err := fs.Parse([]string{"--warnDays=5"}); err != nil {
		t.Fatal(err)
	}

	if got := in.Optional("token"); got != "from-file" {
		t.Errorf("token = %q, want from-file", got)
	}
	if got := in.Optional("label"); got != "env-label" {
		t.Errorf("label = %q, want env-label (env beats file)", got)
	}
	if got := in.Optional("warnDays"); got != "5" {
		t.Errorf("warnDays = %q, want 5 (flag beats env)", got)
	}
}

func TestInputs_LoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, ".env")
	if err := os.WriteFile(file, []byte("INPUT_DOTENV_ONLY=dotenv\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("INPUT_DOTENV_ONLY", "")
	os.Unsetenv("INPUT_DOTENV_ONLY")

	in := NewInputs()
	if err := in.LoadEnvFile(file); err != nil {
		t.Fatalf("LoadEnvFile error: %v", err)
	}
	if got := in.Optional("dotenv_only"); got != "dotenv" {
		t.Errorf("Optional(dotenv_only) = %q, want dotenv", got)
	}

	if err := in.LoadEnvFile(filepath.Join(dir, "missing")); err == nil {
		t.Error("LoadEnvFile(missing) expected error")
	}
}
