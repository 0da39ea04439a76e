// Package version reports how the running triagebot binary was built.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Set with -ldflags "-X github.com/andywolf/triagebot/internal/version.Version=v1.0.0".
// Empty Commit and BuildDate fall back to the VCS stamp the go tool embeds.
var (
	Version   = "dev"
	Commit    = ""
	BuildDate = ""
)

// readBuildInfo is replaced in tests.
var readBuildInfo = debug.ReadBuildInfo

// Build describes the running binary.
type Build struct {
	Version  string
	Commit   string
	Date     string
	Modified bool // built from a dirty checkout
	Go       string
}

// Current returns the build metadata. Values set through ldflags win over
// the embedded build info.
func Current() Build {
	b := Build{Version: Version, Commit: Commit, Date: BuildDate, Go: runtime.Version()}
	if info, ok := readBuildInfo(); ok {
		if b.Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
			b.Version = info.Main.Version
		}
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				if b.Commit == "" {
					b.Commit = s.Value
				}
			case "vcs.time":
				if b.Date == "" {
					b.Date = s.Value
				}
			case "vcs.modified":
				b.Modified = s.Value == "true"
			}
		}
	}
	if b.Commit == "" {
		b.Commit = "unknown"
	}
	if b.Date == "" {
		b.Date = "unknown"
	}
	return b
}

// ShortCommit is the first seven characters of the commit, marked when the
// checkout was dirty.
func (b Build) ShortCommit() string {
	c := b.Commit
	if len(c) > 7 {
		c = c[:7]
	}
	if b.Modified {
		c += "-dirty"
	}
	return c
}

// Short returns the version alone, e.g. "v1.2.3" or "dev".
func Short() string {
	return Current().Version
}

// Info returns one line, e.g.
// "triagebot v1.2.3 (commit: abc1234, built: 2026-01-15T10:30:00Z, go: go1.24.1)".
func Info() string {
	b := Current()
	return fmt.Sprintf("triagebot %s (commit: %s, built: %s, go: %s)", b.Version, b.ShortCommit(), b.Date, b.Go)
}

// Full returns the verbose output, including the bots this binary runs.
func Full(bots []string) string {
	b := Current()
	var s strings.Builder
	fmt.Fprintf(&s, "triagebot %s\n", b.Version)
	fmt.Fprintf(&s, "  Commit:     %s\n", b.Commit)
	if b.Modified {
		s.WriteString("  Modified:   true\n")
	}
	fmt.Fprintf(&s, "  Built:      %s\n", b.Date)
	fmt.Fprintf(&s, "  Go version: %s\n", b.Go)
	fmt.Fprintf(&s, "  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&s, "  Bots:       %s", strings.Join(bots, ", "))
	return s.String()
}
