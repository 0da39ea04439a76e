// Package logging provides the structured run logger shared by every bot.
//
// Entries are single JSON lines in the shape the GCP Cloud Logging agent
// understands (severity, message, timestamp, labels), which also reads fine
// in a GitHub Actions log.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"sync"
	"time"
)

// Severity levels for structured logs
type Severity string

const (
	SeverityDebug   Severity = "DEBUG"
	SeverityInfo    Severity = "INFO"
	SeverityWarning Severity = "WARNING"
	SeverityError   Severity = "ERROR"
)

// LogEntry is one structured log line.
type LogEntry struct {
	Severity  Severity               `json:"severity"`
	Message   string                 `json:"message"`
	Timestamp string                 `json:"timestamp"`
	RunID     string                 `json:"run_id,omitempty"`
	Labels    map[string]string      `json:"labels,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Logger is the logging surface the framework depends on.
type Logger interface {
	Log(severity Severity, message string, fields map[string]interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warningf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Flush() error
}

// StructuredLogger writes LogEntry lines to a writer. It is safe for
// concurrent use.
type StructuredLogger struct {
	writer  io.Writer
	runID   string
	labels  map[string]string
	verbose bool
	now     func() time.Time
	mu      sync.Mutex
}

// Option configures a StructuredLogger
type Option func(*StructuredLogger)

// WithWriter sets the destination writer (default os.Stderr)
func WithWriter(w io.Writer) Option {
	return func(l *StructuredLogger) {
		l.writer = w
	}
}

// WithRunID tags every entry with the run identifier
func WithRunID(id string) Option {
	return func(l *StructuredLogger) {
		l.runID = id
	}
}

// WithLabels adds custom labels to all log entries
func WithLabels(labels map[string]string) Option {
	return func(l *StructuredLogger) {
		for k, v := range labels {
			l.labels[k] = v
		}
	}
}

// WithVerbose enables DEBUG entries.
func WithVerbose(verbose bool) Option {
	return func(l *StructuredLogger) {
		l.verbose = verbose
	}
}

// WithNowFunc sets a custom time function for testing.
func WithNowFunc(fn func() time.Time) Option {
	return func(l *StructuredLogger) {
		l.now = fn
	}
}

// New creates a StructuredLogger.
func New(opts ...Option) *StructuredLogger {
	l := &StructuredLogger{
		writer: os.Stderr,
		labels: map[string]string{
			"component": "triagebot",
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Log writes a structured log entry
func (l *StructuredLogger) Log(severity Severity, message string, fields map[string]interface{}) {
	if severity == SeverityDebug && !l.verbose {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry := LogEntry{
		Severity:  severity,
		Message:   Sanitize(message),
		Timestamp: l.now().UTC().Format(time.RFC3339Nano),
		RunID:     l.runID,
		Labels:    l.labels,
		Fields:    fields,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(l.writer, `{"severity":"ERROR","message":"failed to marshal log entry: %v"}`+"\n", err)
		return
	}
	fmt.Fprintf(l.writer, "%s\n", data)
}

func (l *StructuredLogger) Debugf(format string, args ...interface{}) {
	l.Log(SeverityDebug, fmt.Sprintf(format, args...), nil)
}

func (l *StructuredLogger) Infof(format string, args ...interface{}) {
	l.Log(SeverityInfo, fmt.Sprintf(format, args...), nil)
}

func (l *StructuredLogger) Warningf(format string, args ...interface{}) {
	l.Log(SeverityWarning, fmt.Sprintf(format, args...), nil)
}

func (l *StructuredLogger) Errorf(format string, args ...interface{}) {
	l.Log(SeverityError, fmt.Sprintf(format, args...), nil)
}

// Flush syncs the writer when it supports it.
func (l *StructuredLogger) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if syncer, ok := l.writer.(interface{ Sync() error }); ok {
		return syncer.Sync()
	}
	return nil
}

var _ Logger = (*StructuredLogger)(nil)

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return New(WithWriter(io.Discard))
}

var tokenPattern = regexp.MustCompile(`\b(gh[opsru]_[A-Za-z0-9]{20,}|github_pat_[A-Za-z0-9_]{20,})`)

// Sanitize redacts GitHub tokens and bearer credentials from a log message.
func Sanitize(s string) string {
	s = tokenPattern.ReplaceAllString(s, "[REDACTED_GITHUB_TOKEN]")
	return bearerPattern.ReplaceAllString(s, "Bearer [REDACTED]")
}

var bearerPattern = regexp.MustCompile(`Bearer [A-Za-z0-9._\-]+`)
