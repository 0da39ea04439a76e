// Package featurerequest moves feature-request issues through a candidate
// milestone: promotion when labeled, an init comment on entry, then a
// periodic sweep that accepts popular requests and warns, rejects and
// closes the rest.
package featurerequest

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/andywolf/triagebot/internal/github"
	"github.com/andywolf/triagebot/internal/logging"
	"github.com/andywolf/triagebot/internal/template"
)

// PromoteEventType is the repository_dispatch event type used to apply a
// delayed promotion.
const PromoteEventType = "feature-request-promote"

// rejectLabelColor is used when the reject label has to be created.
const rejectLabelColor = "ededed"

// Transition names, as recorded in telemetry.
const (
	TransitionScheduled  = "scheduled"
	TransitionCandidate  = "candidate"
	TransitionInitPosted = "init-posted"
	TransitionWarned     = "warned"
	TransitionRejected   = "rejected"
	TransitionAccepted   = "accepted"
)

// Reporter receives transitions and per-issue sweep failures.
type Reporter interface {
	RecordEvent(ctx context.Context, ref *github.IssueRef, name string, properties map[string]string)
	ReportFailure(ctx context.Context, message string, makeIssue bool)
}

type nopReporter struct{}

func (nopReporter) RecordEvent(context.Context, *github.IssueRef, string, map[string]string) {}
func (nopReporter) ReportFailure(context.Context, string, bool)                              {}

// Machine applies a Config to the issues of one repository.
type Machine struct {
	api      github.API
	cfg      Config
	reporter Reporter
	logger   logging.Logger
	now      func() time.Time
}

// Option configures a Machine.
type Option func(*Machine)

// WithReporter sets where transitions and sweep failures go.
func WithReporter(r Reporter) Option {
	return func(m *Machine) {
		m.reporter = r
	}
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(m *Machine) {
		m.logger = l
	}
}

// WithClock sets the time source used for delays.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		m.now = now
	}
}

// New creates a Machine.
func New(api github.API, cfg Config, opts ...Option) *Machine {
	m := &Machine{
		api:      api,
		cfg:      cfg,
		reporter: nopReporter{},
		logger:   logging.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Machine) ref(number int) *github.IssueRef {
	return &github.IssueRef{Repo: m.api.Repo(), Number: number}
}

func (m *Machine) record(ctx context.Context, number int, transition string, props map[string]string) {
	m.logger.Infof("%s: %s", m.ref(number), transition)
	m.reporter.RecordEvent(ctx, m.ref(number), transition, props)
}

func (m *Machine) excluded(issue *github.Issue) bool {
	for _, l := range m.cfg.LabelsToExclude {
		if issue.HasLabel(l) {
			return true
		}
	}
	return false
}

func (m *Machine) engagementMet(issue *github.Issue) bool {
	return issue.Reactions.Upvotes >= m.cfg.UpvotesRequired || issue.NumComments >= m.cfg.NumCommentsOverride
}

// eligible reports whether an untriaged issue may enter the candidate
// milestone. Maintainer-authored requests are left to their authors.
func (m *Machine) eligible(ctx context.Context, issue *github.Issue) (bool, error) {
	if !issue.Open || issue.Milestone != nil || !issue.HasLabel(m.cfg.Label) || m.excluded(issue) {
		return false, nil
	}
	if !m.engagementMet(issue) {
		return false, nil
	}
	writer, err := m.api.HasWriteAccess(ctx, issue.Author.Login)
	if err != nil {
		return false, err
	}
	return !writer, nil
}

// OnLabel handles the feature-request label being applied to an issue. An
// eligible issue enters the candidate milestone, immediately or through a
// PromoteEventType dispatch when a milestone delay is configured.
func (m *Machine) OnLabel(ctx context.Context, number int, label string) error {
	if label != m.cfg.Label {
		return nil
	}

	issue, err := m.api.GetIssue(ctx, number)
	if err != nil {
		return err
	}
	ok, err := m.eligible(ctx, issue)
	if err != nil || !ok {
		return err
	}

	if m.cfg.MilestoneDelay <= 0 {
		return m.promote(ctx, number)
	}

	notBefore := m.now().Add(m.cfg.MilestoneDelay).UTC()
	payload := map[string]any{
		"issue_number": number,
		"not_before":   notBefore.Format(time.RFC3339),
	}
	if err := m.api.Dispatch(ctx, PromoteEventType, payload); err != nil {
		return fmt.Errorf("scheduling promotion of #%d: %w", number, err)
	}
	m.record(ctx, number, TransitionScheduled, map[string]string{"not_before": notBefore.Format(time.RFC3339)})
	return nil
}

// PromoteScheduled applies a promotion scheduled by OnLabel. Eligibility is
// checked again on fresh state. A hint delivered before notBefore is
// dropped; the next Sweep promotes the issue once the delay has passed.
func (m *Machine) PromoteScheduled(ctx context.Context, number int, notBefore time.Time) error {
	if m.now().Before(notBefore) {
		m.logger.Debugf("%s: promotion not due until %s, leaving it to the sweep", m.ref(number), notBefore.Format(time.RFC3339))
		return nil
	}

	issue, err := m.api.GetIssue(ctx, number)
	if err != nil {
		return err
	}
	ok, err := m.eligible(ctx, issue)
	if err != nil || !ok {
		return err
	}
	return m.promote(ctx, number)
}

func (m *Machine) promote(ctx context.Context, number int) error {
	if err := m.api.SetMilestone(ctx, number, m.cfg.CandidateMilestone); err != nil {
		return fmt.Errorf("moving #%d to %q: %w", number, m.cfg.CandidateMilestoneName, err)
	}
	m.record(ctx, number, TransitionCandidate, nil)
	return nil
}

// OnMilestone posts the init comment when an issue enters the candidate
// milestone. Duplicate deliveries post it at most once.
func (m *Machine) OnMilestone(ctx context.Context, number int) error {
	if m.cfg.InitComment == "" {
		return nil
	}

	issue, err := m.api.GetIssue(ctx, number)
	if err != nil {
		return err
	}
	if !issue.Open || issue.Milestone == nil || issue.Milestone.Number != m.cfg.CandidateMilestone {
		return nil
	}

	st, err := m.readMarkers(ctx, number)
	if err != nil {
		return err
	}
	if !st.initAt.IsZero() {
		return nil
	}
	return m.postInit(ctx, issue)
}

// body renders a comment with its marker. Comments may use the issue
// placeholders plus upvotesRequired, warnDays, closeDays and milestone.
func (m *Machine) body(marker, text string, issue *github.Issue) string {
	vars := template.Merge(template.IssueVars(issue), map[string]string{
		"upvotesRequired": strconv.Itoa(m.cfg.UpvotesRequired),
		"warnDays":        strconv.FormatFloat(m.cfg.WarnDelay.Hours()/24, 'f', -1, 64),
		"closeDays":       strconv.FormatFloat(m.cfg.CloseDelay.Hours()/24, 'f', -1, 64),
		"milestone":       m.cfg.CandidateMilestoneName,
	})
	return marker + "\n" + template.Render(text, vars)
}

func (m *Machine) postInit(ctx context.Context, issue *github.Issue) error {
	number := issue.Number
	if err := m.api.PostComment(ctx, number, m.body(CreateMarker, m.cfg.InitComment, issue)); err != nil {
		return fmt.Errorf("posting init comment on #%d: %w", number, err)
	}
	m.record(ctx, number, TransitionInitPosted, nil)
	return nil
}

// markerState is what the machine's own past comments say about an issue.
type markerState struct {
	initAt   time.Time
	warnAt   time.Time
	rejectAt time.Time
}

func (m *Machine) readMarkers(ctx context.Context, number int) (markerState, error) {
	var st markerState
	for c, err := range m.api.Comments(ctx, number) {
		if err != nil {
			return st, fmt.Errorf("reading comments of #%d: %w", number, err)
		}
		if strings.Contains(c.Body, CreateMarker) && c.CreatedAt.After(st.initAt) {
			st.initAt = c.CreatedAt
		}
		if strings.Contains(c.Body, WarnMarker) && c.CreatedAt.After(st.warnAt) {
			st.warnAt = c.CreatedAt
		}
		if strings.Contains(c.Body, RejectMarker) && c.CreatedAt.After(st.rejectAt) {
			st.rejectAt = c.CreatedAt
		}
	}
	return st, nil
}

// enteredCandidate returns when the issue was last milestoned into the
// candidate milestone, or the zero time.
func (m *Machine) enteredCandidate(ctx context.Context, number int) (time.Time, error) {
	var at time.Time
	for ev, err := range m.api.Events(ctx, number) {
		if err != nil {
			return at, fmt.Errorf("reading events of #%d: %w", number, err)
		}
		if ev.Event == "milestoned" && ev.Milestone == m.cfg.CandidateMilestoneName && ev.CreatedAt.After(at) {
			at = ev.CreatedAt
		}
	}
	return at, nil
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Processed   int
	Skipped     int
	Failed      int
	Transitions map[string]int
}

// SweepError lists the issues a sweep could not act on. Each was already
// reported individually.
type SweepError struct {
	Failures map[int]error
}

// Escalated reports that every failure was posted as it happened.
func (e *SweepError) Escalated() bool { return true }

func (e *SweepError) Error() string {
	numbers := make([]int, 0, len(e.Failures))
	for n := range e.Failures {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	var b strings.Builder
	fmt.Fprintf(&b, "sweep failed on %d issue(s)", len(numbers))
	for _, n := range numbers {
		fmt.Fprintf(&b, "; #%d: %v", n, e.Failures[n])
	}
	return b.String()
}

// Unwrap returns the per-issue errors.
func (e *SweepError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, err := range e.Failures {
		errs = append(errs, err)
	}
	return errs
}

// SweepQuery returns the search expression used by Sweep.
func (m *Machine) SweepQuery() string {
	q := fmt.Sprintf(`is:open is:issue milestone:"%s" label:"%s"`, m.cfg.CandidateMilestoneName, m.cfg.Label)
	for _, l := range m.cfg.LabelsToExclude {
		q += fmt.Sprintf(` -label:"%s"`, l)
	}
	return q
}

// PendingQuery returns the search expression for labeled requests not yet
// in any milestone. Sweep uses it to apply delayed promotions.
func (m *Machine) PendingQuery() string {
	q := fmt.Sprintf(`is:open is:issue no:milestone label:"%s"`, m.cfg.Label)
	for _, l := range m.cfg.LabelsToExclude {
		q += fmt.Sprintf(` -label:"%s"`, l)
	}
	return q
}

// sweep is the state of one Sweep call.
type sweep struct {
	res      SweepResult
	failures map[int]error
	seen     map[int]bool
}

// Sweep acts on every open candidate feature request. With a milestone
// delay configured it first promotes labeled requests whose delay has
// passed. A failure on one issue is reported and the sweep moves on; a
// failed page fetch ends the sweep with its *github.QueryError.
func (m *Machine) Sweep(ctx context.Context) (SweepResult, error) {
	sw := &sweep{
		res:      SweepResult{Transitions: make(map[string]int)},
		failures: make(map[int]error),
		seen:     make(map[int]bool),
	}

	if m.cfg.MilestoneDelay > 0 {
		if err := m.each(ctx, sw, m.PendingQuery(), m.promoteDue); err != nil {
			return sw.res, err
		}
	}
	if err := m.each(ctx, sw, m.SweepQuery(), m.actOn); err != nil {
		return sw.res, err
	}

	res := sw.res
	m.logger.Infof("sweep: %d acted on, %d unchanged, %d failed", res.Processed, res.Skipped, res.Failed)
	if len(sw.failures) > 0 {
		return res, &SweepError{Failures: sw.failures}
	}
	return res, nil
}

// each applies act to every issue query returns that this sweep has not
// already visited.
func (m *Machine) each(ctx context.Context, sw *sweep, query string, act func(context.Context, int) (string, error)) error {
	for page, err := range m.api.Query(ctx, query) {
		if err != nil {
			return err
		}
		for _, found := range page {
			if err := ctx.Err(); err != nil {
				return err
			}
			if sw.seen[found.Number] {
				continue
			}
			sw.seen[found.Number] = true

			transition, err := act(ctx, found.Number)
			switch {
			case err != nil:
				sw.res.Failed++
				sw.failures[found.Number] = err
				m.reporter.ReportFailure(ctx, fmt.Sprintf("%s: %v", m.ref(found.Number), err), true)
			case transition == "":
				sw.res.Skipped++
			default:
				sw.res.Processed++
				sw.res.Transitions[transition]++
			}
		}
	}
	return nil
}

// promoteDue promotes an eligible request labeled at least MilestoneDelay ago.
func (m *Machine) promoteDue(ctx context.Context, number int) (string, error) {
	issue, err := m.api.GetIssue(ctx, number)
	if err != nil {
		return "", err
	}
	ok, err := m.eligible(ctx, issue)
	if err != nil || !ok {
		return "", err
	}

	var labeledAt time.Time
	for ev, err := range m.api.Events(ctx, number) {
		if err != nil {
			return "", fmt.Errorf("reading events of #%d: %w", number, err)
		}
		if ev.Event == "labeled" && ev.Label == m.cfg.Label && ev.CreatedAt.After(labeledAt) {
			labeledAt = ev.CreatedAt
		}
	}
	if labeledAt.IsZero() || m.now().Sub(labeledAt) < m.cfg.MilestoneDelay {
		return "", nil
	}
	return TransitionCandidate, m.promote(ctx, number)
}

// actOn advances one issue and returns the transition taken, or "".
func (m *Machine) actOn(ctx context.Context, number int) (string, error) {
	issue, err := m.api.GetIssue(ctx, number)
	if err != nil {
		return "", err
	}
	if !issue.Open || issue.Milestone == nil || issue.Milestone.Number != m.cfg.CandidateMilestone ||
		!issue.HasLabel(m.cfg.Label) || m.excluded(issue) {
		m.logger.Warningf("%s: query returned an issue that is no longer a candidate", m.ref(number))
		return "", nil
	}

	if m.cfg.acceptEnabled() && issue.Reactions.Upvotes >= m.cfg.UpvotesRequired {
		return TransitionAccepted, m.accept(ctx, issue)
	}
	if m.engagementMet(issue) {
		m.logger.Debugf("%s: engagement met, leaving for maintainers", m.ref(number))
		return "", nil
	}

	st, err := m.readMarkers(ctx, number)
	if err != nil {
		return "", err
	}
	if !st.rejectAt.IsZero() {
		// An earlier sweep commented but did not finish closing.
		return TransitionRejected, m.closeRejected(ctx, issue)
	}
	if st.initAt.IsZero() && m.cfg.InitComment != "" {
		return TransitionInitPosted, m.postInit(ctx, issue)
	}

	entered, err := m.enteredCandidate(ctx, number)
	if err != nil {
		return "", err
	}
	if entered.IsZero() {
		entered = st.initAt
	}
	if entered.IsZero() {
		m.logger.Warningf("%s: cannot tell when it entered the candidate milestone", m.ref(number))
		return "", nil
	}

	now := m.now()
	elapsed := now.Sub(entered)

	if st.warnAt.IsZero() {
		if elapsed < m.cfg.WarnDelay {
			return "", nil
		}
		if err := m.api.PostComment(ctx, number, m.body(WarnMarker, m.cfg.WarnComment, issue)); err != nil {
			return "", fmt.Errorf("posting warning on #%d: %w", number, err)
		}
		m.record(ctx, number, TransitionWarned, map[string]string{"days": fmt.Sprintf("%.1f", elapsed.Hours()/24)})
		return TransitionWarned, nil
	}

	if elapsed < m.cfg.CloseDelay || now.Sub(st.warnAt) < m.cfg.CloseDelay-m.cfg.WarnDelay {
		return "", nil
	}
	return TransitionRejected, m.reject(ctx, issue)
}

func (m *Machine) accept(ctx context.Context, issue *github.Issue) error {
	number := issue.Number
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := m.api.SetMilestone(gctx, number, m.cfg.BacklogMilestone); err != nil {
			return fmt.Errorf("moving #%d to the backlog: %w", number, err)
		}
		return nil
	})
	g.Go(func() error {
		if err := m.api.PostComment(gctx, number, m.body(AcceptMarker, m.cfg.AcceptComment, issue)); err != nil {
			return fmt.Errorf("posting accept comment on #%d: %w", number, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	m.record(ctx, number, TransitionAccepted, nil)
	return nil
}

// reject posts the rejection comment, then closes. The comment is the
// record of the decision: once it exists, later sweeps only retry the close.
func (m *Machine) reject(ctx context.Context, issue *github.Issue) error {
	if err := m.api.PostComment(ctx, issue.Number, m.body(RejectMarker, m.cfg.RejectComment, issue)); err != nil {
		return fmt.Errorf("posting rejection on #%d: %w", issue.Number, err)
	}
	return m.closeRejected(ctx, issue)
}

func (m *Machine) closeRejected(ctx context.Context, issue *github.Issue) error {
	number := issue.Number
	if err := m.api.CloseIssue(ctx, number, github.ReasonNotPlanned); err != nil {
		return fmt.Errorf("closing #%d: %w", number, err)
	}
	m.record(ctx, number, TransitionRejected, nil)
	if m.cfg.RejectLabel == "" || issue.HasLabel(m.cfg.RejectLabel) {
		return nil
	}
	if err := m.ensureLabel(ctx, m.cfg.RejectLabel); err != nil {
		return err
	}
	if err := m.api.AddLabel(ctx, number, m.cfg.RejectLabel); err != nil {
		return fmt.Errorf("labeling closed #%d: %w", number, err)
	}
	return nil
}

// ensureLabel defines name in the repository when it is missing.
func (m *Machine) ensureLabel(ctx context.Context, name string) error {
	exists, err := m.api.RepoHasLabel(ctx, name)
	if err != nil {
		return fmt.Errorf("looking up label %q: %w", name, err)
	}
	if exists {
		return nil
	}
	if err := m.api.CreateLabel(ctx, name, rejectLabelColor, ""); err != nil {
		return fmt.Errorf("creating label %q: %w", name, err)
	}
	m.logger.Infof("created missing label %q", name)
	return nil
}
