package debugger

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/llmspell/spellkernel/src/kernel/entity"
	"github.com/llmspell/spellkernel/src/kernel/internal/errors"
	"github.com/llmspell/spellkernel/src/kernel/internal/executor"
)

const _baseFrame = "<module>"

type stepKind int

const (
	stepNone stepKind = iota
	stepInto
	stepOver
	stepOut
)

type command int

const (
	cmdContinue command = iota
	cmdStep
	cmdTerminate
)

type breakpoint struct {
	entity.Breakpoint
	condition *expression
	// evalFailed is set once the condition failed to evaluate.
	evalFailed bool
}

type frame struct {
	name   string
	source string
	line   int
}

// session is the debug state of one internal session. It implements executor.Hooks; the hooks run on
// the execution's goroutine and block there while paused, and commands from clients wake them through
// resume.
type session struct {
	id      string
	owner   string
	program string
	env     *cel.Env
	emit    func(Event)

	mu              sync.Mutex
	state           entity.DebugState
	breakpoints     map[int]*breakpoint
	stopOnEntry     bool
	stopOnException bool
	pauseRequested  bool
	step            stepKind
	stepDepth       int
	frames          []frame
	// paused holds what the stopped execution saw; refs are valid until it resumes.
	paused *executor.Vars
	refs   *references
	resume chan command
}

var _ executor.Hooks = (*session)(nil)

func newSession(id, owner, program string, env *cel.Env, opts LaunchOptions, emit func(Event)) *session {
	return &session{
		id:              id,
		owner:           owner,
		program:         program,
		env:             env,
		emit:            emit,
		state:           entity.DebugState{Kind: entity.DebugRunning},
		breakpoints:     make(map[int]*breakpoint),
		stopOnEntry:     opts.StopOnEntry,
		stopOnException: opts.StopOnException,
	}
}

func sameSource(a, b string) bool {
	return filepath.Clean(a) == filepath.Clean(b)
}

// Line decides whether to stop at loc and, if so, blocks until a client resumes the execution.
func (s *session) Line(ctx context.Context, loc executor.Location, vars executor.Vars) error {
	s.mu.Lock()
	if s.state.Kind == entity.DebugTerminated {
		s.mu.Unlock()
		return errors.ErrTerminated
	}
	s.moveTo(loc)

	// Breakpoints on the line count the hit even when another reason stops here.
	hit := s.hitBreakpoint(loc, vars)
	var stop entity.DebugState
	switch {
	case s.stopOnEntry:
		s.stopOnEntry = false
		stop = entity.DebugState{Kind: entity.DebugPaused, Reason: entity.StopEntry}
	case s.pauseRequested:
		stop = entity.DebugState{Kind: entity.DebugPaused, Reason: entity.StopPause}
	case s.stepDone():
		stop = entity.DebugState{Kind: entity.DebugPaused, Reason: entity.StopStep}
	case hit != 0:
		stop = entity.DebugState{Kind: entity.DebugPaused, Reason: entity.StopBreakpoint, BreakpointID: hit}
	}
	if stop.Kind != entity.DebugPaused {
		s.mu.Unlock()
		return nil
	}
	return s.pause(ctx, stop, vars)
}

// moveTo records loc as the current line of the innermost frame. Callers hold mu.
func (s *session) moveTo(loc executor.Location) {
	if len(s.frames) == 0 {
		s.frames = append(s.frames, frame{name: _baseFrame})
	}
	top := &s.frames[len(s.frames)-1]
	top.source = loc.Source
	top.line = loc.Line
}

func (s *session) depth() int {
	return len(s.frames)
}

func (s *session) stepDone() bool {
	switch s.step {
	case stepInto:
		return true
	case stepOver:
		return s.depth() <= s.stepDepth
	case stepOut:
		return s.depth() < s.stepDepth
	}
	return false
}

// hitBreakpoint returns the id of the breakpoint that stops at loc, or 0. Callers hold mu.
func (s *session) hitBreakpoint(loc executor.Location, vars executor.Vars) int {
	hit := 0
	for _, id := range s.breakpointIDs() {
		bp := s.breakpoints[id]
		if !bp.Enabled || bp.Line != loc.Line || !sameSource(bp.Source, loc.Source) {
			continue
		}
		if bp.condition != nil {
			ok, err := bp.condition.holds(activation(vars.Locals, vars.Globals))
			if err != nil {
				s.skipHit(bp, err)
				continue
			}
			if !ok {
				continue
			}
		}
		bp.HitCount++
		if bp.HitCount <= bp.IgnoreCount {
			continue
		}
		if hit == 0 {
			hit = id
		}
	}
	return hit
}

// skipHit passes over a breakpoint whose condition failed to evaluate at this hit, for instance
// on a name not yet defined. The client is warned the first time only.
func (s *session) skipHit(bp *breakpoint, err error) {
	if bp.evalFailed {
		return
	}
	bp.evalFailed = true
	derr := &errors.DebugError{BreakpointID: bp.ID, Reason: "condition " + bp.Condition + " failed", Err: err}
	s.emit(outputEvent(s.id, "warning: "+derr.Error()+"\n"))
}

// pause publishes the stop and waits for a command. It is entered with mu held and releases it.
func (s *session) pause(ctx context.Context, stop entity.DebugState, vars executor.Vars) error {
	resume := make(chan command, 1)
	s.state = stop
	s.pauseRequested = false
	s.step = stepNone
	s.paused = &vars
	s.refs = newReferences()
	s.resume = resume
	s.mu.Unlock()

	s.emit(stoppedEvent(s.id, stop))

	var cmd command
	select {
	case cmd = <-resume:
	case <-ctx.Done():
		s.mu.Lock()
		s.leavePause(entity.DebugRunning)
		s.mu.Unlock()
		return ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cmd == cmdTerminate {
		s.leavePause(entity.DebugTerminated)
		return errors.ErrTerminated
	}
	if s.step != stepNone {
		s.leavePause(entity.DebugStepping)
	} else {
		s.leavePause(entity.DebugRunning)
	}
	s.emit(Event{SessionID: s.id, Name: EventContinued, Body: map[string]any{"threadId": _threadID, "allThreadsContinued": true}})
	return nil
}

// leavePause clears the paused snapshot. Callers hold mu.
func (s *session) leavePause(kind entity.DebugStateKind) {
	s.state = entity.DebugState{Kind: kind}
	s.paused = nil
	s.refs = nil
	s.resume = nil
}

func (s *session) Enter(function string, loc executor.Location) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		s.frames = append(s.frames, frame{name: _baseFrame})
	}
	s.frames = append(s.frames, frame{name: function, source: loc.Source, line: loc.Line})
}

func (s *session) Leave() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) > 1 {
		s.frames = s.frames[:len(s.frames)-1]
	}
}

func (s *session) Exception(ctx context.Context, err error, loc executor.Location, vars executor.Vars) error {
	s.mu.Lock()
	if s.state.Kind == entity.DebugTerminated {
		s.mu.Unlock()
		return errors.ErrTerminated
	}
	if !s.stopOnException {
		s.mu.Unlock()
		return nil
	}
	s.moveTo(loc)
	stop := entity.DebugState{Kind: entity.DebugPaused, Reason: entity.StopException, Message: err.Error()}
	return s.pause(ctx, stop, vars)
}

// command wakes the paused execution. Callers hold mu.
func (s *session) send(cmd command) error {
	if s.state.Kind != entity.DebugPaused || s.resume == nil {
		return errors.ErrNotPaused
	}
	s.resume <- cmd
	s.resume = nil
	return nil
}

func (s *session) authorize(clientID string) error {
	if clientID != s.owner {
		return errors.ErrNoDriveRights
	}
	return nil
}

func (s *session) resumeWith(clientID string, step stepKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.authorize(clientID); err != nil {
		return err
	}
	if s.state.Kind != entity.DebugPaused {
		return errors.ErrNotPaused
	}
	s.step = step
	s.stepDepth = s.depth()
	if step == stepNone {
		return s.send(cmdContinue)
	}
	return s.send(cmdStep)
}

func (s *session) requestPause(clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.authorize(clientID); err != nil {
		return err
	}
	if s.state.Kind == entity.DebugPaused {
		return nil
	}
	s.pauseRequested = true
	return nil
}

// terminate stops the session for good. A paused execution is woken with ErrTerminated; a running one
// gets it at its next safe point.
func (s *session) terminate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Kind == entity.DebugPaused && s.resume != nil {
		s.resume <- cmdTerminate
		s.resume = nil
	}
	s.state = entity.DebugState{Kind: entity.DebugTerminated}
}

// detach lets the execution run on without stopping.
func (s *session) detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, bp := range s.breakpoints {
		bp.Enabled = false
	}
	s.stopOnException = false
	s.pauseRequested = false
	s.step = stepNone
	if s.state.Kind == entity.DebugPaused && s.resume != nil {
		s.resume <- cmdContinue
		s.resume = nil
	}
}

func (s *session) breakpointIDs() []int {
	ids := make([]int, 0, len(s.breakpoints))
	for id := range s.breakpoints {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (s *session) addBreakpoint(id int, source string, spec entity.BreakpointSpec) entity.Breakpoint {
	bp := &breakpoint{Breakpoint: entity.Breakpoint{
		ID:          id,
		Source:      source,
		Line:        spec.Line,
		Condition:   spec.Condition,
		IgnoreCount: spec.IgnoreCount,
		Enabled:     true,
		Verified:    spec.Line > 0,
	}}
	if spec.Line <= 0 {
		bp.Enabled = false
		bp.Message = (&errors.DebugError{BreakpointID: id, Reason: fmt.Sprintf("invalid line %d", spec.Line)}).Error()
	}
	if spec.Condition != "" && bp.Enabled {
		cond, err := compile(s.env, spec.Condition)
		if err != nil {
			bp.Enabled = false
			bp.Verified = false
			bp.Message = (&errors.DebugError{BreakpointID: id, Reason: "invalid condition " + spec.Condition, Err: err}).Error()
			s.emit(outputEvent(s.id, "warning: "+bp.Message+"\n"))
		} else {
			bp.condition = cond
		}
	}
	s.breakpoints[id] = bp
	return bp.Breakpoint
}

func (s *session) removeSource(source string) {
	for id, bp := range s.breakpoints {
		if sameSource(bp.Source, source) {
			delete(s.breakpoints, id)
		}
	}
}

func (s *session) stackTrace() ([]entity.StackFrame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Kind != entity.DebugPaused {
		return nil, errors.ErrNotPaused
	}
	out := make([]entity.StackFrame, 0, len(s.frames))
	for i := len(s.frames) - 1; i >= 0; i-- {
		f := s.frames[i]
		out = append(out, entity.StackFrame{ID: i + 1, Name: f.name, Source: f.source, Line: f.line})
	}
	return out, nil
}

// frameVars returns the variables visible in frame id. Only the innermost frame has locals.
func (s *session) frameVars(id int) (locals, globals map[string]any, err error) {
	if s.state.Kind != entity.DebugPaused || s.paused == nil {
		return nil, nil, errors.ErrNotPaused
	}
	if id < 1 || id > len(s.frames) {
		return nil, nil, &errors.DebugError{Reason: fmt.Sprintf("unknown frame %d", id)}
	}
	if id == len(s.frames) {
		locals = s.paused.Locals
	}
	return locals, s.paused.Globals, nil
}

func (s *session) scopes(frameID int) ([]entity.Scope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	locals, globals, err := s.frameVars(frameID)
	if err != nil {
		return nil, err
	}
	if locals == nil {
		locals = map[string]any{}
	}
	return []entity.Scope{
		{Name: "Locals", VariablesReference: s.refs.add(locals)},
		{Name: "Globals", VariablesReference: s.refs.add(globals), Expensive: true},
	}, nil
}

func (s *session) variables(ref int) ([]entity.Variable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Kind != entity.DebugPaused || s.refs == nil {
		return nil, errors.ErrNotPaused
	}
	v, ok := s.refs.get(ref)
	if !ok {
		return nil, &errors.DebugError{Reason: fmt.Sprintf("unknown variables reference %d", ref)}
	}
	return s.refs.variablesOf(v), nil
}

func (s *session) evaluate(frameID int, source string) (entity.Variable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if frameID == 0 {
		frameID = len(s.frames)
	}
	locals, globals, err := s.frameVars(frameID)
	if err != nil {
		return entity.Variable{}, err
	}
	expr, err := compile(s.env, source)
	if err != nil {
		return entity.Variable{}, &errors.DebugError{Reason: "invalid expression " + source, Err: err}
	}
	out, err := expr.eval(activation(locals, globals))
	if err != nil {
		return entity.Variable{}, &errors.DebugError{Reason: "evaluating " + source, Err: err}
	}
	return s.refs.variable(source, out.Value()), nil
}
