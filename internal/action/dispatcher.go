package action

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/andywolf/triagebot/internal/github"
	"github.com/andywolf/triagebot/internal/logging"
)

// State is the dispatcher lifecycle state.
type State int

const (
	StateIdle State = iota
	StateDispatching
	StateHandlerRunning
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDispatching:
		return "dispatching"
	case StateHandlerRunning:
		return "handler-running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ErrAlreadyRun is returned by a second call to Run.
var ErrAlreadyRun = errors.New("action: dispatcher has already run")

// RunError is returned by Run after a failure has been escalated.
type RunError struct {
	Bot   string
	Event string // empty when the event could not be resolved
	Err   error
}

func (e *RunError) Error() string {
	if e.Event == "" {
		return fmt.Sprintf("%s: %v", e.Bot, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Bot, e.Event, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// PanicError wraps a value recovered from a panicking handler.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("handler panicked: %v", e.Value)
}

// escalated is implemented by errors whose parts were already posted to
// the diagnostics issue. Run still fails with them but only logs.
type escalated interface {
	Escalated() bool
}

func alreadyEscalated(err error) bool {
	var e escalated
	return errors.As(err, &e) && e.Escalated()
}

// Escalator receives failures and the end-of-run rate-limit report.
type Escalator interface {
	ReportFailure(ctx context.Context, message string, makeIssue bool)
	LogRateLimit(ctx context.Context)
}

// eventBinder is implemented by escalators that include the resolved
// event in their reports.
type eventBinder interface {
	BindEvent(issue *github.IssueRef, eventContext any)
}

// Config configures a Dispatcher.
type Config struct {
	Bot       Bot
	Source    EventSource
	Escalator Escalator

	// Diagnostics is the issue failures are reported to. Events on it are
	// ignored so a failing bot cannot feed on its own reports.
	Diagnostics *github.IssueRef

	Logger logging.Logger
}

// Dispatcher runs one bot for one event. It is single-use.
type Dispatcher struct {
	cfg Config

	mu    sync.Mutex
	state State
	event *Event
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	return &Dispatcher{cfg: cfg}
}

// State returns the current lifecycle state.
func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Event returns the resolved event, or nil before resolution.
func (d *Dispatcher) Event() *Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.event
}

func (d *Dispatcher) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

// Run resolves the event, invokes the matching handler at most once and
// escalates any failure exactly once. It returns nil when the handler
// succeeded or no handler matched, and a *RunError otherwise.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.mu.Lock()
	if d.state != StateIdle {
		d.mu.Unlock()
		return ErrAlreadyRun
	}
	d.state = StateDispatching
	d.mu.Unlock()

	if d.cfg.Escalator != nil {
		defer d.cfg.Escalator.LogRateLimit(context.WithoutCancel(ctx))
	}

	botName := d.cfg.Bot.Name()

	ev, err := d.cfg.Source.Event(ctx)
	if err != nil {
		return d.fail(ctx, &RunError{Bot: botName, Err: fmt.Errorf("resolving event: %w", err)})
	}

	d.mu.Lock()
	d.event = ev
	d.mu.Unlock()

	if b, ok := d.cfg.Escalator.(eventBinder); ok {
		b.BindEvent(ev.Issue(), ev.Context())
	}

	if diag := d.cfg.Diagnostics; diag != nil && ev.Issue() != nil && *ev.Issue() == *diag {
		d.cfg.Logger.Warningf("refusing to run on diagnostics issue %s to prevent cascading errors", diag)
		d.setState(StateSucceeded)
		return nil
	}

	handler := handlerFor(d.cfg.Bot, ev.Kind())
	if handler == nil {
		d.cfg.Logger.Infof("%s: no handler for %s (%s)", botName, ev, ev.Kind())
		d.setState(StateSucceeded)
		return nil
	}

	d.setState(StateHandlerRunning)
	d.cfg.Logger.Infof("%s: handling %s (%s)", botName, ev, ev.Kind())

	if err := invoke(ctx, handler, ev); err != nil {
		var pe *PanicError
		if errors.As(err, &pe) {
			d.cfg.Logger.Log(logging.SeverityError, pe.Error(), map[string]interface{}{"stack": string(pe.Stack)})
		}
		return d.fail(ctx, &RunError{Bot: botName, Event: ev.String(), Err: err})
	}

	d.setState(StateSucceeded)
	return nil
}

func (d *Dispatcher) fail(ctx context.Context, runErr *RunError) error {
	d.setState(StateFailed)
	if d.cfg.Escalator != nil {
		d.cfg.Escalator.ReportFailure(context.WithoutCancel(ctx), runErr.Error(), !alreadyEscalated(runErr.Err))
	} else {
		d.cfg.Logger.Errorf("%v", runErr)
	}
	return runErr
}

func invoke(ctx context.Context, h handlerFunc, ev *Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return h(ctx, ev)
}
