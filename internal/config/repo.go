package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// FileFetcher reads a file from the triggering repository's default branch.
type FileFetcher interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
}

// FileFetcherFunc adapts a function to FileFetcher.
type FileFetcherFunc func(ctx context.Context, path string) ([]byte, error)

func (f FileFetcherFunc) ReadFile(ctx context.Context, path string) ([]byte, error) {
	return f(ctx, path)
}

// Behavior is the default repository config entry: what to do when a key
// (an area, a keyword) matches.
type Behavior struct {
	AssignLabel string   `json:"assignLabel,omitempty" yaml:"assignLabel,omitempty"`
	Comment     string   `json:"comment,omitempty" yaml:"comment,omitempty"`
	Assign      []string `json:"assign,omitempty" yaml:"assign,omitempty"`
}

// BehaviorMap maps a key to its Behavior.
type BehaviorMap map[string]Behavior

// RepoConfigPath expands a bare config name to .github/<name>.json.
func RepoConfigPath(name string) string {
	if !strings.Contains(name, "/") && path.Ext(name) == "" {
		return ".github/" + name + ".json"
	}
	return name
}

// ReadRepoConfig fetches a config file from the repository and decodes it into
// out. JSON files may carry comments; .yaml and .yml files are decoded as YAML.
// It returns ErrConfigNotFound when the file does not exist and a
// *ConfigParseError when it cannot be decoded. Nothing is cached.
func ReadRepoConfig(ctx context.Context, fetcher FileFetcher, name string, out interface{}) error {
	p := RepoConfigPath(name)

	data, err := fetcher.ReadFile(ctx, p)
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%s: %w", p, ErrConfigNotFound)
		}
		return fmt.Errorf("fetching config %s: %w", p, err)
	}

	switch strings.ToLower(path.Ext(p)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, out); err != nil {
			return &ConfigParseError{Path: p, Err: err}
		}
	default:
		if err := json.Unmarshal(jsonc.ToJSON(data), out); err != nil {
			return &ConfigParseError{Path: p, Err: err}
		}
	}
	return nil
}

func isNotFound(err error) bool {
	if errors.Is(err, fs.ErrNotExist) {
		return true
	}
	var nf interface{ NotFound() bool }
	return errors.As(err, &nf) && nf.NotFound()
}
