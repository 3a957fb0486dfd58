// Package debugger is the debug bridge: it keeps breakpoints and the pause state for each debugged
// session and hands the dispatcher the hooks that stop an execution at a safe point.
package debugger

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/llmspell/spellkernel/src/kernel/entity"
	"github.com/llmspell/spellkernel/src/kernel/internal/errors"
	"github.com/llmspell/spellkernel/src/kernel/internal/executor"
	tally "github.com/uber-go/tally/v4"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

//go:generate mockgen -source=debugger.go -destination=debuggermock/debugger.go -package=debuggermock

const (
	_configKey  = "debug"
	_threadID   = 1
	_eventQueue = 256
)

// Event names, as used by the Debug Adapter Protocol.
const (
	EventStopped    = "stopped"
	EventContinued  = "continued"
	EventTerminated = "terminated"
	EventOutput     = "output"
)

// Module is the Fx module for this package.
var Module = fx.Provide(New)

// Event is a debug event for the clients of a session.
type Event struct {
	SessionID string
	Name      string
	Body      map[string]any
}

// LaunchOptions configure a debug session.
type LaunchOptions struct {
	// Program is the script path the session debugs. Only one session may debug a path at a time.
	Program         string
	StopOnEntry     bool
	StopOnException bool
}

// Controller manages debug sessions. Commands that move execution require drive rights, which belong
// to the client that launched the session; inspection is open to every client.
type Controller interface {
	Launch(ctx context.Context, sessionID, clientID string, opts LaunchOptions) error
	// Detach ends the debug session and lets a paused execution run on.
	Detach(ctx context.Context, sessionID, clientID string) error
	// Release detaches every session launched by clientID and returns their ids.
	Release(ctx context.Context, clientID string) []string
	// Hooks returns the hooks to run an execution of sessionID with, or nil when it is not being debugged.
	Hooks(sessionID string) executor.Hooks
	// Program returns the script path a session was launched with.
	Program(sessionID string) (string, bool)

	SetBreakpoint(ctx context.Context, sessionID, clientID, source string, spec entity.BreakpointSpec) (entity.Breakpoint, error)
	// SetBreakpoints replaces all breakpoints of source.
	SetBreakpoints(ctx context.Context, sessionID, clientID, source string, specs []entity.BreakpointSpec) ([]entity.Breakpoint, error)
	RemoveBreakpoint(ctx context.Context, sessionID, clientID string, id int) error
	SetExceptionBreakpoints(ctx context.Context, sessionID, clientID string, enabled bool) error
	Breakpoints(ctx context.Context, sessionID string) ([]entity.Breakpoint, error)

	Continue(ctx context.Context, sessionID, clientID string) error
	StepInto(ctx context.Context, sessionID, clientID string) error
	StepOver(ctx context.Context, sessionID, clientID string) error
	StepOut(ctx context.Context, sessionID, clientID string) error
	Pause(ctx context.Context, sessionID, clientID string) error
	Terminate(ctx context.Context, sessionID, clientID string) error

	StackTrace(ctx context.Context, sessionID string) ([]entity.StackFrame, error)
	Scopes(ctx context.Context, sessionID string, frameID int) ([]entity.Scope, error)
	Variables(ctx context.Context, sessionID string, ref int) ([]entity.Variable, error)
	// Evaluate evaluates a CEL expression over the variables of a paused frame. Frame 0 is the innermost.
	Evaluate(ctx context.Context, sessionID string, frameID int, expr string) (entity.Variable, error)
	State(ctx context.Context, sessionID string) (entity.DebugState, error)

	// Events delivers stopped, continued, terminated, output and breakpoint events.
	Events() <-chan Event
}

// Config holds debug defaults.
type Config struct {
	StopOnException bool `yaml:"stopOnException"`
}

// Params are inbound parameters to initialize the controller.
type Params struct {
	fx.In

	Config config.Provider
	Logger *zap.SugaredLogger
	Stats  tally.Scope
}

type controller struct {
	logger *zap.SugaredLogger
	stats  tally.Scope
	cfg    Config
	env    *cel.Env
	events chan Event

	mu       sync.Mutex
	sessions map[string]*session
	// locks maps a script path to the session debugging it.
	locks  map[string]string
	nextBP int
}

// New creates the debug controller.
func New(p Params) (Controller, error) {
	var cfg Config
	if err := p.Config.Get(_configKey).Populate(&cfg); err != nil {
		return nil, fmt.Errorf("getting config field %q: %w", _configKey, err)
	}
	env, err := cel.NewEnv()
	if err != nil {
		return nil, fmt.Errorf("creating expression environment: %w", err)
	}
	return &controller{
		logger:   p.Logger,
		stats:    p.Stats.SubScope("debugger"),
		cfg:      cfg,
		env:      env,
		events:   make(chan Event, _eventQueue),
		sessions: make(map[string]*session),
		locks:    make(map[string]string),
	}, nil
}

func (c *controller) Events() <-chan Event {
	return c.events
}

func (c *controller) emit(e Event) {
	select {
	case c.events <- e:
	default:
		c.stats.Counter("events_dropped").Inc(1)
		c.logger.Warnw("debug event dropped", "session", e.SessionID, "event", e.Name)
	}
	if e.Name == EventStopped {
		c.stats.Tagged(map[string]string{"reason": fmt.Sprint(e.Body["reason"])}).Counter("stops").Inc(1)
	}
}

func (c *controller) Launch(ctx context.Context, sessionID, clientID string, opts LaunchOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.sessions[sessionID]; ok {
		return fmt.Errorf("session %s: %w", sessionID, errors.ErrAlreadyDebugging)
	}
	path := opts.Program
	if path != "" {
		path = filepath.Clean(path)
		if holder, ok := c.locks[path]; ok {
			return fmt.Errorf("%s is held by session %s: %w", path, holder, errors.ErrAlreadyDebugging)
		}
		c.locks[path] = sessionID
	}
	opts.StopOnException = opts.StopOnException || c.cfg.StopOnException
	c.sessions[sessionID] = newSession(sessionID, clientID, path, c.env, opts, c.emit)
	c.stats.Counter("launches").Inc(1)
	c.logger.Infow("debug session launched", "session", sessionID, "client", clientID, "program", path)
	return nil
}

func (c *controller) session(sessionID string) (*session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, errors.ErrNotDebugging)
	}
	return s, nil
}

// remove drops the session and releases its script lock.
func (c *controller) remove(s *session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessions[s.id] == s {
		delete(c.sessions, s.id)
	}
	if s.program != "" && c.locks[s.program] == s.id {
		delete(c.locks, s.program)
	}
}

func (c *controller) Detach(ctx context.Context, sessionID, clientID string) error {
	s, err := c.session(sessionID)
	if err != nil {
		return err
	}
	if err := s.authorize(clientID); err != nil {
		return err
	}
	s.detach()
	c.remove(s)
	c.logger.Infow("debug session detached", "session", sessionID)
	return nil
}

func (c *controller) Release(ctx context.Context, clientID string) []string {
	c.mu.Lock()
	var owned []*session
	for _, s := range c.sessions {
		if s.owner == clientID {
			owned = append(owned, s)
		}
	}
	c.mu.Unlock()

	ids := make([]string, 0, len(owned))
	for _, s := range owned {
		s.detach()
		c.remove(s)
		ids = append(ids, s.id)
	}
	if len(ids) > 0 {
		c.logger.Infow("debug sessions released", "client", clientID, "sessions", ids)
	}
	return ids
}

func (c *controller) Hooks(sessionID string) executor.Hooks {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.sessions[sessionID]; ok {
		return s
	}
	return nil
}

func (c *controller) Program(sessionID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[sessionID]
	if !ok || s.program == "" {
		return "", false
	}
	return s.program, true
}

func (c *controller) breakpointID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextBP++
	return c.nextBP
}

func (c *controller) SetBreakpoint(ctx context.Context, sessionID, clientID, source string, spec entity.BreakpointSpec) (entity.Breakpoint, error) {
	s, err := c.session(sessionID)
	if err != nil {
		return entity.Breakpoint{}, err
	}
	if err := s.authorize(clientID); err != nil {
		return entity.Breakpoint{}, err
	}
	id := c.breakpointID()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addBreakpoint(id, source, spec), nil
}

func (c *controller) SetBreakpoints(ctx context.Context, sessionID, clientID, source string, specs []entity.BreakpointSpec) ([]entity.Breakpoint, error) {
	s, err := c.session(sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(clientID); err != nil {
		return nil, err
	}
	ids := make([]int, len(specs))
	for i := range specs {
		ids[i] = c.breakpointID()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeSource(source)
	out := make([]entity.Breakpoint, 0, len(specs))
	for i, spec := range specs {
		out = append(out, s.addBreakpoint(ids[i], source, spec))
	}
	return out, nil
}

func (c *controller) RemoveBreakpoint(ctx context.Context, sessionID, clientID string, id int) error {
	s, err := c.session(sessionID)
	if err != nil {
		return err
	}
	if err := s.authorize(clientID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.breakpoints[id]; !ok {
		return &errors.DebugError{BreakpointID: id, Reason: "no such breakpoint"}
	}
	delete(s.breakpoints, id)
	return nil
}

func (c *controller) SetExceptionBreakpoints(ctx context.Context, sessionID, clientID string, enabled bool) error {
	s, err := c.session(sessionID)
	if err != nil {
		return err
	}
	if err := s.authorize(clientID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopOnException = enabled
	return nil
}

func (c *controller) Breakpoints(ctx context.Context, sessionID string) ([]entity.Breakpoint, error) {
	s, err := c.session(sessionID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entity.Breakpoint, 0, len(s.breakpoints))
	for _, id := range s.breakpointIDs() {
		out = append(out, s.breakpoints[id].Breakpoint)
	}
	return out, nil
}

func (c *controller) resume(sessionID, clientID string, step stepKind) error {
	s, err := c.session(sessionID)
	if err != nil {
		return err
	}
	return s.resumeWith(clientID, step)
}

func (c *controller) Continue(ctx context.Context, sessionID, clientID string) error {
	return c.resume(sessionID, clientID, stepNone)
}

func (c *controller) StepInto(ctx context.Context, sessionID, clientID string) error {
	return c.resume(sessionID, clientID, stepInto)
}

func (c *controller) StepOver(ctx context.Context, sessionID, clientID string) error {
	return c.resume(sessionID, clientID, stepOver)
}

func (c *controller) StepOut(ctx context.Context, sessionID, clientID string) error {
	return c.resume(sessionID, clientID, stepOut)
}

func (c *controller) Pause(ctx context.Context, sessionID, clientID string) error {
	s, err := c.session(sessionID)
	if err != nil {
		return err
	}
	return s.requestPause(clientID)
}

func (c *controller) Terminate(ctx context.Context, sessionID, clientID string) error {
	s, err := c.session(sessionID)
	if err != nil {
		return err
	}
	if err := s.authorize(clientID); err != nil {
		return err
	}
	s.terminate()
	c.remove(s)
	c.emit(Event{SessionID: sessionID, Name: EventTerminated, Body: map[string]any{}})
	c.logger.Infow("debug session terminated", "session", sessionID)
	return nil
}

func (c *controller) StackTrace(ctx context.Context, sessionID string) ([]entity.StackFrame, error) {
	s, err := c.session(sessionID)
	if err != nil {
		return nil, err
	}
	return s.stackTrace()
}

func (c *controller) Scopes(ctx context.Context, sessionID string, frameID int) ([]entity.Scope, error) {
	s, err := c.session(sessionID)
	if err != nil {
		return nil, err
	}
	return s.scopes(frameID)
}

func (c *controller) Variables(ctx context.Context, sessionID string, ref int) ([]entity.Variable, error) {
	s, err := c.session(sessionID)
	if err != nil {
		return nil, err
	}
	return s.variables(ref)
}

func (c *controller) Evaluate(ctx context.Context, sessionID string, frameID int, expr string) (entity.Variable, error) {
	s, err := c.session(sessionID)
	if err != nil {
		return entity.Variable{}, err
	}
	return s.evaluate(frameID, expr)
}

func (c *controller) State(ctx context.Context, sessionID string) (entity.DebugState, error) {
	s, err := c.session(sessionID)
	if err != nil {
		return entity.DebugState{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, nil
}

func stoppedEvent(sessionID string, st entity.DebugState) Event {
	body := map[string]any{
		"reason":            string(st.Reason),
		"threadId":          _threadID,
		"allThreadsStopped": true,
	}
	if st.Reason == entity.StopBreakpoint {
		body["hitBreakpointIds"] = []int{st.BreakpointID}
	}
	if st.Message != "" {
		body["description"] = st.Message
		body["text"] = st.Message
	}
	return Event{SessionID: sessionID, Name: EventStopped, Body: body}
}

func outputEvent(sessionID, text string) Event {
	return Event{SessionID: sessionID, Name: EventOutput, Body: map[string]any{"category": "console", "output": text}}
}
