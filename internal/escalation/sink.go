// Package escalation reports bot failures to a diagnostics issue and records
// telemetry. Nothing in this package returns an error to its caller: a
// failure to escalate is logged and the run carries on to exit.
package escalation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/andywolf/triagebot/internal/github"
	"github.com/andywolf/triagebot/internal/logging"
	"github.com/andywolf/triagebot/internal/security"
	"github.com/andywolf/triagebot/internal/telemetry"
)

// usageWarnThreshold is the quota fraction above which usage is logged as a warning.
const usageWarnThreshold = 0.5

// rateLimitCategories are reported by LogRateLimit, in order.
var rateLimitCategories = []string{"core", "graphql", "search"}

// Config configures a Sink.
type Config struct {
	// API is scoped to the triggering repository.
	API github.API

	// Diagnostics is where failures are posted. A zero Repo means the
	// triggering repository; a zero Number files a new issue per failure.
	Diagnostics github.IssueRef

	Bot      string
	Workflow string
	RunID    string

	// Issue is the issue the run was triggered for, if any.
	Issue *github.IssueRef

	// EventContext is rendered, scrubbed, into a hidden block of the
	// diagnostics comment.
	EventContext any

	Recorder telemetry.Recorder
	Logger   logging.Logger
	Scrubber *security.Scrubber

	// Stdout receives workflow commands. Defaults to os.Stdout.
	Stdout io.Writer

	// InActions enables the ::error:: workflow command.
	InActions bool
}

// Sink is the escalation and telemetry sink of one run.
type Sink struct {
	cfg Config
	now func() time.Time

	mu           sync.Mutex
	issue        *github.IssueRef
	eventContext any
}

// New creates a Sink from cfg.
func New(cfg Config) *Sink {
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = telemetry.Nop()
	}
	if cfg.Scrubber == nil {
		cfg.Scrubber = security.NewScrubber()
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.API != nil && cfg.Diagnostics.Repo.IsZero() {
		cfg.Diagnostics.Repo = cfg.API.Repo()
	}
	return &Sink{cfg: cfg, now: time.Now, issue: cfg.Issue, eventContext: cfg.EventContext}
}

// BindEvent sets the issue and event context included in later reports.
func (s *Sink) BindEvent(issue *github.IssueRef, eventContext any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issue = issue
	s.eventContext = eventContext
}

func (s *Sink) bound() (*github.IssueRef, any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issue, s.eventContext
}

// Diagnostics returns the diagnostics issue target.
func (s *Sink) Diagnostics() github.IssueRef {
	return s.cfg.Diagnostics
}

// ReportFailure logs message and, when makeIssue is set, posts it to the
// diagnostics issue. Errors while posting are logged only.
func (s *Sink) ReportFailure(ctx context.Context, message string, makeIssue bool) {
	message = s.cfg.Scrubber.Scrub(message)
	s.cfg.Logger.Log(logging.SeverityError, message, map[string]interface{}{
		"bot":      s.cfg.Bot,
		"workflow": s.cfg.Workflow,
	})

	if s.cfg.InActions {
		fmt.Fprintf(s.cfg.Stdout, "::error::%s\n", escapeWorkflowData(message))
	}

	issue, eventContext := s.bound()
	s.RecordEvent(ctx, issue, "escalated", map[string]string{"message": truncate(message, 256)})

	if !makeIssue {
		return
	}
	if s.cfg.API == nil {
		s.cfg.Logger.Warningf("escalation: no API client, not posting failure")
		return
	}

	body := s.renderBody(message, issue, eventContext)
	diag := s.cfg.Diagnostics
	api := s.cfg.API
	if diag.Repo != api.Repo() {
		api = api.ForRepo(diag.Repo)
	}

	if diag.Number > 0 {
		if err := api.PostComment(ctx, diag.Number, body); err != nil {
			s.cfg.Logger.Errorf("escalation: posting to %s: %v", diag, err)
		}
		return
	}

	title := fmt.Sprintf("%s failed", s.botName())
	if issue != nil {
		title = fmt.Sprintf("%s failed on %s", s.botName(), issue)
	}
	created, err := api.CreateIssue(ctx, title, body)
	if err != nil {
		s.cfg.Logger.Errorf("escalation: filing issue in %s: %v", diag.Repo, err)
		return
	}
	if created != nil {
		s.cfg.Logger.Infof("escalation: filed %s#%d", diag.Repo, created.Number)
	}
}

func (s *Sink) botName() string {
	if s.cfg.Bot != "" {
		return s.cfg.Bot
	}
	return "triagebot"
}

func (s *Sink) renderBody(message string, issue *github.IssueRef, eventContext any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Workflow: %s\n\n", s.cfg.Workflow)
	fmt.Fprintf(&b, "Error: %s\n\n", message)
	if issue != nil {
		fmt.Fprintf(&b, "Issue: %s\n\n", issue)
	}
	if s.cfg.API != nil {
		fmt.Fprintf(&b, "Repo: %s\n\n", s.cfg.API.Repo())
	}
	if s.cfg.RunID != "" {
		fmt.Fprintf(&b, "Run: %s\n\n", s.cfg.RunID)
	}

	if eventContext != nil {
		var raw bytes.Buffer
		enc := json.NewEncoder(&raw)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(eventContext); err != nil {
			raw.Reset()
			fmt.Fprintf(&raw, "unrenderable context: %v", err)
		}
		b.WriteString("<!-- Context:\n")
		b.WriteString(escapeHTMLComment(s.cfg.Scrubber.Scrub(strings.TrimSpace(raw.String()))))
		b.WriteString("\n-->\n")
	}
	return b.String()
}

// RecordEvent records a telemetry event. Failures are logged and dropped.
func (s *Sink) RecordEvent(ctx context.Context, ref *github.IssueRef, name string, properties map[string]string) {
	rec := telemetry.NewRecord(name, properties)
	rec.Timestamp = s.now().UTC()
	rec.RunID = s.cfg.RunID
	rec.Bot = s.cfg.Bot
	if ref != nil {
		rec.Issue = ref.String()
	}

	if err := s.cfg.Recorder.Record(ctx, rec); err != nil {
		s.cfg.Logger.Warningf("telemetry: recording %q: %v", name, err)
	}
}

// LogRateLimit logs the client's quota snapshot and per-category usage.
func (s *Sink) LogRateLimit(ctx context.Context) {
	if s.cfg.API == nil {
		return
	}

	rl := s.cfg.API.CurrentRateLimit()
	s.cfg.Logger.Log(logging.SeverityInfo, "rate limit", map[string]interface{}{
		"calls":     rl.Calls,
		"remaining": rl.Remaining,
		"limit":     rl.Limit,
		"reset_at":  rl.ResetAt.UTC().Format(time.RFC3339),
	})

	limits, err := s.cfg.API.RateLimits(ctx)
	if err != nil {
		s.cfg.Logger.Warningf("rate limit: fetching categories: %v", err)
		return
	}

	for _, name := range rateLimitCategories {
		l, ok := limits[name]
		if !ok || l.Limit == 0 {
			continue
		}
		usage := 1 - float64(l.Remaining)/float64(l.Limit)
		switch {
		case usage > usageWarnThreshold:
			s.cfg.Logger.Warningf("Usage at %.2f for %s", usage, name)
		case usage > 0:
			s.cfg.Logger.Infof("Usage at %.2f for %s", usage, name)
		}
	}
}

// escapeHTMLComment keeps text from terminating the surrounding comment.
func escapeHTMLComment(s string) string {
	s = strings.ReplaceAll(s, "<!--", "<@--")
	return strings.ReplaceAll(s, "-->", "--@>")
}

// escapeWorkflowData encodes characters that would end a workflow command.
func escapeWorkflowData(s string) string {
	s = strings.ReplaceAll(s, "%", "%25")
	s = strings.ReplaceAll(s, "\r", "%0D")
	return strings.ReplaceAll(s, "\n", "%0A")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
