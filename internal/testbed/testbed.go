// Package testbed is an in-memory implementation of github.API for bot tests.
//
// A Testbed holds issues, comments, timeline events, labels, milestones and
// files for any number of repositories. Every mutation is applied to that
// state and recorded, so tests can assert on both the resulting issue and
// the exact calls made. Failures can be injected per operation and issue.
package testbed

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/andywolf/triagebot/internal/github"
)

// BotUser authors every comment the testbed posts on behalf of a bot.
var BotUser = github.User{Login: "triagebot[bot]", Type: "Bot"}

// Mutation is one recorded mutating call.
type Mutation struct {
	Op     string
	Repo   github.RepoRef
	Number int
	Arg    string
}

func (m Mutation) String() string {
	if m.Arg == "" {
		return fmt.Sprintf("%s %s#%d", m.Op, m.Repo, m.Number)
	}
	return fmt.Sprintf("%s %s#%d %s", m.Op, m.Repo, m.Number, m.Arg)
}

// Dispatch is one recorded repository_dispatch.
type Dispatch struct {
	Repo      github.RepoRef
	EventType string
	Payload   any
}

type failure struct {
	op     string
	number int // 0 matches any issue
	err    error
}

type repoState struct {
	issues     map[int]*github.Issue
	comments   map[int][]*github.Comment
	events     map[int][]*github.IssueEvent
	labels     map[string]bool
	milestones map[int]string
	files      map[string][]byte
}

type state struct {
	mu sync.Mutex

	repos         map[github.RepoRef]*repoState
	writers       map[string]bool
	mutations     []Mutation
	dispatched    []Dispatch
	queries       []string
	failures      []failure
	queryFailures map[int]error
	queryRunner   func(expression string) []*github.Issue
	rateLimits    map[string]github.RateLimit
	pageSize      int
	calls         int
	nextCommentID int64
	now           func() time.Time
}

// Testbed is a github.API scoped to one repository of a shared in-memory
// state. ForRepo views another repository of the same state.
type Testbed struct {
	repo github.RepoRef
	st   *state
}

var _ github.API = (*Testbed)(nil)

// Option configures a Testbed.
type Option func(*Testbed)

// WithWriters grants write access to logins.
func WithWriters(logins ...string) Option {
	return func(t *Testbed) {
		for _, l := range logins {
			t.st.writers[l] = true
		}
	}
}

// WithLabels defines repository labels.
func WithLabels(names ...string) Option {
	return func(t *Testbed) {
		for _, n := range names {
			t.repoState().labels[n] = true
		}
	}
}

// WithMilestone defines a milestone.
func WithMilestone(number int, title string) Option {
	return func(t *Testbed) {
		t.repoState().milestones[number] = title
	}
}

// WithFile adds a file to the default branch.
func WithFile(path string, content []byte) Option {
	return func(t *Testbed) {
		t.repoState().files[path] = content
	}
}

// WithPageSize sets the number of issues per Query page (default 100).
func WithPageSize(n int) Option {
	return func(t *Testbed) {
		t.st.pageSize = n
	}
}

// WithNow sets the clock used for comment, event and close timestamps.
func WithNow(fn func() time.Time) Option {
	return func(t *Testbed) {
		t.st.now = fn
	}
}

// WithQueryRunner replaces the built-in search matcher.
func WithQueryRunner(fn func(expression string) []*github.Issue) Option {
	return func(t *Testbed) {
		t.st.queryRunner = fn
	}
}

// WithRateLimits sets what RateLimits returns.
func WithRateLimits(limits map[string]github.RateLimit) Option {
	return func(t *Testbed) {
		t.st.rateLimits = limits
	}
}

// New creates a Testbed for repo.
func New(repo github.RepoRef, opts ...Option) *Testbed {
	t := &Testbed{
		repo: repo,
		st: &state{
			repos:         make(map[github.RepoRef]*repoState),
			writers:       make(map[string]bool),
			queryFailures: make(map[int]error),
			pageSize:      100,
			now:           time.Now,
		},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// repoState returns the state of t's repository. The caller holds st.mu
// or is still constructing t.
func (t *Testbed) repoState() *repoState {
	return t.st.repoFor(t.repo)
}

func (s *state) repoFor(repo github.RepoRef) *repoState {
	rs, ok := s.repos[repo]
	if !ok {
		rs = &repoState{
			issues:     make(map[int]*github.Issue),
			comments:   make(map[int][]*github.Comment),
			events:     make(map[int][]*github.IssueEvent),
			labels:     make(map[string]bool),
			milestones: make(map[int]string),
			files:      make(map[string][]byte),
		}
		s.repos[repo] = rs
	}
	return rs
}

// AddIssue seeds an issue. It is open unless ClosedAt or StateReason is set.
func (t *Testbed) AddIssue(issue github.Issue) *Testbed {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()

	if issue.ClosedAt == nil && issue.StateReason == "" {
		issue.Open = true
	}
	if issue.CreatedAt.IsZero() {
		issue.CreatedAt = t.st.now()
	}
	if issue.UpdatedAt.IsZero() {
		issue.UpdatedAt = issue.CreatedAt
	}
	rs := t.repoState()
	issue.NumComments = max(issue.NumComments, len(rs.comments[issue.Number]))
	rs.issues[issue.Number] = cloneIssue(&issue)
	return t
}

// AddComment seeds a comment on an issue.
func (t *Testbed) AddComment(number int, author github.User, body string, at time.Time) *github.Comment {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	return t.addCommentLocked(number, author, body, at)
}

func (t *Testbed) addCommentLocked(number int, author github.User, body string, at time.Time) *github.Comment {
	t.st.nextCommentID++
	c := &github.Comment{ID: t.st.nextCommentID, Author: author, Body: body, CreatedAt: at}
	rs := t.repoState()
	rs.comments[number] = append(rs.comments[number], c)
	if issue, ok := rs.issues[number]; ok {
		issue.NumComments++
	}
	copied := *c
	return &copied
}

// AddEvent seeds a timeline event on an issue.
func (t *Testbed) AddEvent(number int, ev github.IssueEvent) {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	rs := t.repoState()
	rs.events[number] = append(rs.events[number], &ev)
}

// FailOn makes operation op fail with err. number 0 matches every issue.
// Operation names are the github.API method names.
func (t *Testbed) FailOn(op string, number int, err error) {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	t.st.failures = append(t.st.failures, failure{op: op, number: number, err: err})
}

// ClearFailures removes every failure injected with FailOn.
func (t *Testbed) ClearFailures() {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	t.st.failures = nil
}

// FailQueryPage makes fetching the given 1-based Query page fail.
func (t *Testbed) FailQueryPage(page int, err error) {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	t.st.queryFailures[page] = err
}

// Issue returns a copy of the current issue state, or nil.
func (t *Testbed) Issue(number int) *github.Issue {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	issue, ok := t.repoState().issues[number]
	if !ok {
		return nil
	}
	return cloneIssue(issue)
}

// CommentsOn returns copies of an issue's comments.
func (t *Testbed) CommentsOn(number int) []github.Comment {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	var out []github.Comment
	for _, c := range t.repoState().comments[number] {
		out = append(out, *c)
	}
	return out
}

// Mutations returns every mutating call in order, across repositories.
func (t *Testbed) Mutations() []Mutation {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	return slices.Clone(t.st.mutations)
}

// Dispatched returns every repository_dispatch in order.
func (t *Testbed) Dispatched() []Dispatch {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	return slices.Clone(t.st.dispatched)
}

// Queries returns the search expressions issued.
func (t *Testbed) Queries() []string {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	return slices.Clone(t.st.queries)
}

// Calls returns the number of API calls made.
func (t *Testbed) Calls() int {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	return t.st.calls
}

// begin counts a call and returns an injected failure, if any. The caller
// holds st.mu.
func (t *Testbed) begin(op string, number int) error {
	t.st.calls++
	for _, f := range t.st.failures {
		if f.op == op && (f.number == 0 || f.number == number) {
			return f.err
		}
	}
	return nil
}

func (t *Testbed) record(op string, number int, arg string) {
	t.st.mutations = append(t.st.mutations, Mutation{Op: op, Repo: t.repo, Number: number, Arg: arg})
}

func notFound(what string) error {
	return &github.APIError{StatusCode: http.StatusNotFound, Message: what + " Not Found"}
}

func (t *Testbed) issueLocked(number int) (*github.Issue, error) {
	issue, ok := t.repoState().issues[number]
	if !ok {
		return nil, fmt.Errorf("getting issue %d: %w", number, notFound("Issue"))
	}
	return issue, nil
}

func (t *Testbed) Repo() github.RepoRef {
	return t.repo
}

func (t *Testbed) ForRepo(repo github.RepoRef) github.API {
	return &Testbed{repo: repo, st: t.st}
}

func (t *Testbed) GetIssue(_ context.Context, number int) (*github.Issue, error) {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	if err := t.begin("GetIssue", number); err != nil {
		return nil, err
	}
	issue, err := t.issueLocked(number)
	if err != nil {
		return nil, err
	}
	return cloneIssue(issue), nil
}

func (t *Testbed) CreateIssue(_ context.Context, title, body string) (*github.Issue, error) {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	if err := t.begin("CreateIssue", 0); err != nil {
		return nil, err
	}

	rs := t.repoState()
	number := 1
	for n := range rs.issues {
		number = max(number, n+1)
	}
	now := t.st.now()
	issue := &github.Issue{
		Number:    number,
		Title:     title,
		Body:      body,
		Author:    BotUser,
		Open:      true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	rs.issues[number] = issue
	t.record("CreateIssue", number, title)
	return cloneIssue(issue), nil
}

func (t *Testbed) AddLabel(_ context.Context, number int, label string) error {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	if err := t.begin("AddLabel", number); err != nil {
		return err
	}
	if !t.repoState().labels[label] {
		return fmt.Errorf("adding label %q to #%d: label is not defined in %s", label, number, t.repo)
	}
	issue, err := t.issueLocked(number)
	if err != nil {
		return err
	}
	if !issue.HasLabel(label) {
		issue.Labels = append(issue.Labels, label)
	}
	t.record("AddLabel", number, label)
	return nil
}

func (t *Testbed) RemoveLabel(_ context.Context, number int, label string) error {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	if err := t.begin("RemoveLabel", number); err != nil {
		return err
	}
	if issue, ok := t.repoState().issues[number]; ok {
		issue.Labels = slices.DeleteFunc(issue.Labels, func(l string) bool { return l == label })
	}
	t.record("RemoveLabel", number, label)
	return nil
}

func (t *Testbed) AddAssignee(_ context.Context, number int, login string) error {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	if err := t.begin("AddAssignee", number); err != nil {
		return err
	}
	issue, err := t.issueLocked(number)
	if err != nil {
		return err
	}
	if !issue.HasAssignee(login) {
		issue.Assignees = append(issue.Assignees, login)
	}
	t.record("AddAssignee", number, login)
	return nil
}

func (t *Testbed) RemoveAssignee(_ context.Context, number int, login string) error {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	if err := t.begin("RemoveAssignee", number); err != nil {
		return err
	}
	if issue, ok := t.repoState().issues[number]; ok {
		issue.Assignees = slices.DeleteFunc(issue.Assignees, func(a string) bool { return a == login })
	}
	t.record("RemoveAssignee", number, login)
	return nil
}

func (t *Testbed) PostComment(_ context.Context, number int, body string) error {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	if err := t.begin("PostComment", number); err != nil {
		return err
	}
	if _, err := t.issueLocked(number); err != nil {
		return err
	}
	t.addCommentLocked(number, BotUser, body, t.st.now())
	t.record("PostComment", number, body)
	return nil
}

func (t *Testbed) CloseIssue(_ context.Context, number int, reason github.StateReason) error {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	if err := t.begin("CloseIssue", number); err != nil {
		return err
	}
	issue, err := t.issueLocked(number)
	if err != nil {
		return err
	}
	now := t.st.now()
	issue.Open = false
	issue.StateReason = reason
	issue.ClosedAt = &now
	t.record("CloseIssue", number, string(reason))
	return nil
}

func (t *Testbed) SetMilestone(_ context.Context, number, milestone int) error {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	if err := t.begin("SetMilestone", number); err != nil {
		return err
	}
	title, ok := t.repoState().milestones[milestone]
	if !ok {
		return &github.APIError{
			StatusCode: http.StatusUnprocessableEntity,
			Message:    "Validation Failed",
			Errors:     []github.ValidationError{{Resource: "Issue", Field: "milestone", Code: "invalid"}},
		}
	}
	issue, err := t.issueLocked(number)
	if err != nil {
		return err
	}
	issue.Milestone = &github.Milestone{Number: milestone, Title: title}
	rs := t.repoState()
	rs.events[number] = append(rs.events[number], &github.IssueEvent{
		Event:     "milestoned",
		Actor:     BotUser,
		Milestone: title,
		CreatedAt: t.st.now(),
	})
	t.record("SetMilestone", number, fmt.Sprint(milestone))
	return nil
}

func (t *Testbed) Comments(_ context.Context, number int) iter.Seq2[*github.Comment, error] {
	return func(yield func(*github.Comment, error) bool) {
		t.st.mu.Lock()
		err := t.begin("Comments", number)
		var snapshot []github.Comment
		for _, c := range t.repoState().comments[number] {
			snapshot = append(snapshot, *c)
		}
		t.st.mu.Unlock()

		if err != nil {
			yield(nil, err)
			return
		}
		for i := range snapshot {
			if !yield(&snapshot[i], nil) {
				return
			}
		}
	}
}

func (t *Testbed) Events(_ context.Context, number int) iter.Seq2[*github.IssueEvent, error] {
	return func(yield func(*github.IssueEvent, error) bool) {
		t.st.mu.Lock()
		err := t.begin("Events", number)
		var snapshot []github.IssueEvent
		for _, e := range t.repoState().events[number] {
			snapshot = append(snapshot, *e)
		}
		t.st.mu.Unlock()

		if err != nil {
			yield(nil, err)
			return
		}
		for i := range snapshot {
			if !yield(&snapshot[i], nil) {
				return
			}
		}
	}
}

// Query matches issues with the built-in matcher (see Match) unless a query
// runner was configured, and yields them in pages of the configured size.
// Every range starts over, and pages are counted as calls when reached.
func (t *Testbed) Query(_ context.Context, expression string) iter.Seq2[[]*github.Issue, error] {
	return func(yield func([]*github.Issue, error) bool) {
		t.st.mu.Lock()
		t.st.queries = append(t.st.queries, expression)
		results := t.searchLocked(expression)
		pageSize := t.st.pageSize
		t.st.mu.Unlock()

		for page := 1; len(results) > 0; page++ {
			t.st.mu.Lock()
			t.st.calls++
			err := t.st.queryFailures[page]
			t.st.mu.Unlock()

			if err != nil {
				yield(nil, &github.QueryError{Query: expression, Page: page, Err: err})
				return
			}

			n := min(pageSize, len(results))
			if !yield(results[:n], nil) {
				return
			}
			results = results[n:]
		}
	}
}

func (t *Testbed) searchLocked(expression string) []*github.Issue {
	if t.st.queryRunner != nil {
		var out []*github.Issue
		for _, issue := range t.st.queryRunner(expression) {
			out = append(out, cloneIssue(issue))
		}
		return out
	}

	q := ParseQuery(expression)
	repo := t.repo
	if !q.Repo.IsZero() {
		repo = q.Repo
	}
	rs := t.st.repoFor(repo)

	numbers := make([]int, 0, len(rs.issues))
	for n := range rs.issues {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	var out []*github.Issue
	for _, n := range numbers {
		if q.Match(rs.issues[n]) {
			out = append(out, cloneIssue(rs.issues[n]))
		}
	}
	return out
}

func (t *Testbed) HasWriteAccess(_ context.Context, login string) (bool, error) {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	if err := t.begin("HasWriteAccess", 0); err != nil {
		return false, err
	}
	return t.st.writers[login], nil
}

func (t *Testbed) RepoHasLabel(_ context.Context, name string) (bool, error) {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	if err := t.begin("RepoHasLabel", 0); err != nil {
		return false, err
	}
	return t.repoState().labels[name], nil
}

func (t *Testbed) CreateLabel(_ context.Context, name, _, _ string) error {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	if err := t.begin("CreateLabel", 0); err != nil {
		return err
	}
	t.repoState().labels[name] = true
	t.record("CreateLabel", 0, name)
	return nil
}

func (t *Testbed) Dispatch(_ context.Context, eventType string, payload any) error {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	if err := t.begin("Dispatch", 0); err != nil {
		return err
	}
	t.st.dispatched = append(t.st.dispatched, Dispatch{Repo: t.repo, EventType: eventType, Payload: payload})
	t.record("Dispatch", 0, eventType)
	return nil
}

func (t *Testbed) ReadFile(_ context.Context, path string) ([]byte, error) {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	if err := t.begin("ReadFile", 0); err != nil {
		return nil, err
	}
	content, ok := t.repoState().files[path]
	if !ok {
		return nil, fmt.Errorf("reading %s: %w", path, notFound("File"))
	}
	return slices.Clone(content), nil
}

func (t *Testbed) CurrentRateLimit() github.RateLimit {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	return github.RateLimit{
		Limit:     5000,
		Remaining: 5000 - t.st.calls,
		Used:      t.st.calls,
		ResetAt:   t.st.now().Add(time.Hour),
		Calls:     t.st.calls,
	}
}

func (t *Testbed) RateLimits(context.Context) (map[string]github.RateLimit, error) {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	if err := t.begin("RateLimits", 0); err != nil {
		return nil, err
	}
	if t.st.rateLimits != nil {
		return t.st.rateLimits, nil
	}
	return map[string]github.RateLimit{
		"core":    {Limit: 5000, Remaining: 5000},
		"search":  {Limit: 30, Remaining: 30},
		"graphql": {Limit: 5000, Remaining: 5000},
	}, nil
}

func cloneIssue(issue *github.Issue) *github.Issue {
	c := *issue
	c.Labels = slices.Clone(issue.Labels)
	c.Assignees = slices.Clone(issue.Assignees)
	if issue.Milestone != nil {
		m := *issue.Milestone
		c.Milestone = &m
	}
	if issue.ClosedAt != nil {
		at := *issue.ClosedAt
		c.ClosedAt = &at
	}
	return &c
}
