package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"testing"
)

type mapFetcher map[string]string

func (m mapFetcher) ReadFile(_ context.Context, path string) ([]byte, error) {
	content, ok := m[path]
	if !ok {
		return nil, fmt.Errorf("read %s: %w", path, fs.ErrNotExist)
	}
	return []byte(content), nil
}

type notFoundErr struct{}

func (notFoundErr) Error() string  { return "404 Not Found" }
func (notFoundErr) NotFound() bool { return true }

func TestRepoConfigPath(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"classifier", ".github/classifier.json"},
		{"classifier.yml", "classifier.yml"},
		{".github/commands.jsonc", ".github/commands.jsonc"},
	}
	for _, tt := range tests {
		if got := RepoConfigPath(tt.input); got != tt.want {
			t.Errorf("RepoConfigPath(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestReadRepoConfig_JSONWithComments(t *testing.T) {
	fetcher := mapFetcher{
		".github/classifier.json": `{
			// editor area
			"editor": {"assignLabel": "editor-core", "assign": ["alice"]},
			"terminal": {"comment": "thanks", },
		}`,
	}

	var got BehaviorMap
	if err := ReadRepoConfig(context.Background(), fetcher, "classifier", &got); err != nil {
		t.Fatalf("ReadRepoConfig error: %v", err)
	}
	if got["editor"].AssignLabel != "editor-core" {
		t.Errorf("editor.AssignLabel = %q", got["editor"].AssignLabel)
	}
	if len(got["editor"].Assign) != 1 || got["editor"].Assign[0] != "alice" {
		t.Errorf("editor.Assign = %v", got["editor"].Assign)
	}
	if got["terminal"].Comment != "thanks" {
		t.Errorf("terminal.Comment = %q", got["terminal"].Comment)
	}
}

func TestReadRepoConfig_YAML(t *testing.T) {
	fetcher := mapFetcher{
		".github/areas.yml": "editor:\n  assignLabel: editor-core\n",
	}

	var got BehaviorMap
	if err := ReadRepoConfig(context.Background(), fetcher, ".github/areas.yml", &got); err != nil {
		t.Fatalf("ReadRepoConfig error: %v", err)
	}
	if got["editor"].AssignLabel != "editor-core" {
		t.Errorf("editor.AssignLabel = %q", got["editor"].AssignLabel)
	}
}

func TestReadRepoConfig_NotFound(t *testing.T) {
	var out BehaviorMap

	err := ReadRepoConfig(context.Background(), mapFetcher{}, "missing", &out)
	if !errors.Is(err, ErrConfigNotFound) {
		t.Errorf("error = %v, want ErrConfigNotFound", err)
	}

	apiFetcher := FileFetcherFunc(func(context.Context, string) ([]byte, error) {
		return nil, fmt.Errorf("get contents: %w", notFoundErr{})
	})
	err = ReadRepoConfig(context.Background(), apiFetcher, "missing", &out)
	if !errors.Is(err, ErrConfigNotFound) {
		t.Errorf("error = %v, want ErrConfigNotFound for NotFound() errors", err)
	}
}

func TestReadRepoConfig_ParseError(t *testing.T) {
	fetcher := mapFetcher{".github/broken.json": `{"editor": [`}

	var out BehaviorMap
	err := ReadRepoConfig(context.Background(), fetcher, "broken", &out)
	var parseErr *ConfigParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("error = %v, want *ConfigParseError", err)
	}
	if parseErr.Path != ".github/broken.json" {
		t.Errorf("Path = %q", parseErr.Path)
	}
}

func TestReadRepoConfig_FetchError(t *testing.T) {
	boom := errors.New("connection reset")
	fetcher := FileFetcherFunc(func(context.Context, string) ([]byte, error) { return nil, boom })

	var out BehaviorMap
	err := ReadRepoConfig(context.Background(), fetcher, "x", &out)
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want wrapped %v", err, boom)
	}
	if errors.Is(err, ErrConfigNotFound) {
		t.Error("transport failure must not map to ErrConfigNotFound")
	}
}
