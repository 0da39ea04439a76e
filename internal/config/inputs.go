package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Inputs resolves named process inputs for one run.
//
// Values are looked up, in order of precedence, from changed command-line
// flags, INPUT_<NAME> environment variables (the GitHub Actions convention:
// name upper-cased, spaces replaced by underscores) and an optional inputs
// file. Each run owns its own viper instance.
type Inputs struct {
	v *viper.Viper
}

// NewInputs creates an input resolver backed by the process environment.
func NewInputs() *Inputs {
	v := viper.New()
	v.SetEnvPrefix("INPUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(" ", "_"))
	v.AutomaticEnv()
	return &Inputs{v: v}
}

// LoadFile reads a YAML or JSON inputs file. Keys are input names.
func (in *Inputs) LoadFile(path string) error {
	in.v.SetConfigFile(path)
	if err := in.v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading inputs file %s: %w", path, err)
	}
	return nil
}

// LoadEnvFile loads INPUT_* variables from a dotenv file. Variables already
// present in the environment are left alone.
func (in *Inputs) LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	return nil
}

// BindFlags binds every flag in fs as an input of the same name.
func (in *Inputs) BindFlags(fs *pflag.FlagSet) error {
	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if bindErr != nil {
			return
		}
		if err := in.v.BindPFlag(f.Name, f); err != nil {
			bindErr = fmt.Errorf("binding flag %s: %w", f.Name, err)
		}
	})
	return bindErr
}

// Set overrides an input for the rest of the run.
func (in *Inputs) Set(name, value string) {
	in.v.Set(name, value)
}

func (in *Inputs) lookup(name string) string {
	value := strings.TrimSpace(in.v.GetString(name))
	if value == "" && strings.Contains(name, "-") {
		// Shells cannot export INPUT_TAG-NAME; accept INPUT_TAG_NAME too.
		value = strings.TrimSpace(in.v.GetString(strings.ReplaceAll(name, "-", "_")))
	}
	return value
}

// Required returns the named input or a *ConfigError when it is absent or empty.
func (in *Inputs) Required(name string) (string, error) {
	value := in.lookup(name)
	if value == "" {
		return "", &ConfigError{Input: name, Reason: "required input is not set"}
	}
	return value, nil
}

// Optional returns the named input, or "" when unset.
func (in *Inputs) Optional(name string) string {
	return in.lookup(name)
}

// RequiredInt parses a required integer input.
func (in *Inputs) RequiredInt(name string) (int, error) {
	raw, err := in.Required(name)
	if err != nil {
		return 0, err
	}
	return parseInt(name, raw)
}

// OptionalInt parses an integer input, returning def when unset.
func (in *Inputs) OptionalInt(name string, def int) (int, error) {
	raw := in.Optional(name)
	if raw == "" {
		return def, nil
	}
	return parseInt(name, raw)
}

func parseInt(name, raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &ConfigError{Input: name, Reason: fmt.Sprintf("not an integer: %q", raw)}
	}
	return n, nil
}

// RequiredDays parses a required number of days (fractions allowed) as a duration.
func (in *Inputs) RequiredDays(name string) (time.Duration, error) {
	raw, err := in.Required(name)
	if err != nil {
		return 0, err
	}
	days, err := strconv.ParseFloat(raw, 64)
	if err != nil || days < 0 {
		return 0, &ConfigError{Input: name, Reason: fmt.Sprintf("not a non-negative number of days: %q", raw)}
	}
	return time.Duration(days * float64(24*time.Hour)), nil
}

// OptionalList splits a comma separated input. Empty items are dropped.
func (in *Inputs) OptionalList(name string) []string {
	raw := in.Optional(name)
	if raw == "" {
		return nil
	}
	var items []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// OptionalBool parses a boolean input; unset is false.
func (in *Inputs) OptionalBool(name string) (bool, error) {
	raw := in.Optional(name)
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, &ConfigError{Input: name, Reason: fmt.Sprintf("not a boolean: %q", raw)}
	}
	return b, nil
}
