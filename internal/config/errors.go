package config

import (
	"errors"
	"fmt"
)

// ErrConfigNotFound is returned when a repository config file does not exist.
var ErrConfigNotFound = errors.New("repository config not found")

// ConfigError reports a missing or malformed process input.
type ConfigError struct {
	Input  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("input %q: %s", e.Input, e.Reason)
}

// ConfigParseError reports a repository config file that could not be parsed.
type ConfigParseError struct {
	Path string
	Err  error
}

func (e *ConfigParseError) Error() string {
	return fmt.Sprintf("parsing config %s: %v", e.Path, e.Err)
}

func (e *ConfigParseError) Unwrap() error {
	return e.Err
}
