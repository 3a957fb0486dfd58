package debugger

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/llmspell/spellkernel/src/kernel/entity"
	"github.com/llmspell/spellkernel/src/kernel/internal/errors"
	"github.com/llmspell/spellkernel/src/kernel/internal/executor"
	"github.com/llmspell/spellkernel/src/kernel/internal/executor/executortest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tally "github.com/uber-go/tally/v4"
	"go.uber.org/config"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

const _eventWait = 2 * time.Second

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newController(t *testing.T, yaml string) *controller {
	t.Helper()
	provider, err := config.NewYAML(config.Source(strings.NewReader(yaml)))
	require.NoError(t, err)
	c, err := New(Params{
		Config: provider,
		Logger: zap.NewNop().Sugar(),
		Stats:  tally.NewTestScope("", nil),
	})
	require.NoError(t, err)
	return c.(*controller)
}

// nextEvent waits for the next event called name, skipping others.
func nextEvent(t *testing.T, c Controller, name string) Event {
	t.Helper()
	timeout := time.After(_eventWait)
	for {
		select {
		case e := <-c.Events():
			if e.Name == name {
				return e
			}
		case <-timeout:
			t.Fatalf("no %s event", name)
		}
	}
}

func noEvent(t *testing.T, c Controller, name string) {
	t.Helper()
	for {
		select {
		case e := <-c.Events():
			require.NotEqual(t, name, e.Name, "unexpected event %+v", e)
		default:
			return
		}
	}
}

func async(f func() error) <-chan error {
	done := make(chan error, 1)
	go func() { done <- f() }()
	return done
}

func wait(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(_eventWait):
		t.Fatal("execution did not finish")
	}
	return nil
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
		want    bool
	}{
		{
			name: "defaults",
			yaml: "{}",
		},
		{
			name: "stop on exception",
			yaml: "debug:\n  stopOnException: true\n",
			want: true,
		},
		{
			name:    "bad config",
			yaml:    "debug:\n  stopOnException: [1]\n",
			wantErr: `getting config field "debug"`,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			provider, err := config.NewYAML(config.Source(strings.NewReader(tt.yaml)))
			require.NoError(t, err)
			c, err := New(Params{Config: provider, Logger: zap.NewNop().Sugar(), Stats: tally.NoopScope})
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.(*controller).cfg.StopOnException)
		})
	}
}

func TestBreakpointStopsAtLine(t *testing.T) {
	ctx := context.Background()
	c := newController(t, "{}")
	require.NoError(t, c.Launch(ctx, "s1", "alice", LaunchOptions{Program: "s.lua"}))

	bp, err := c.SetBreakpoint(ctx, "s1", "alice", "s.lua", entity.BreakpointSpec{Line: 10})
	require.NoError(t, err)
	assert.True(t, bp.Verified)

	rt := executortest.New()
	sc, err := rt.NewContext(ctx, "s1")
	require.NoError(t, err)
	lines := make([]string, 12)
	for i := range lines {
		lines[i] = fmt.Sprintf("v%d = %d", i+1, i+1)
	}
	done := async(func() error {
		_, err := sc.Execute(ctx, executor.Request{Code: strings.Join(lines, "\n"), Source: "s.lua", Hooks: c.Hooks("s1")})
		return err
	})

	stopped := nextEvent(t, c, EventStopped)
	assert.Equal(t, "breakpoint", stopped.Body["reason"])
	assert.Equal(t, []int{bp.ID}, stopped.Body["hitBreakpointIds"])

	state, err := c.State(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "paused(breakpoint 1)", state.String())

	frames, err := c.StackTrace(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, entity.StackFrame{ID: 1, Name: "<module>", Source: "s.lua", Line: 10}, frames[0])

	scopes, err := c.Scopes(ctx, "s1", frames[0].ID)
	require.NoError(t, err)
	require.Len(t, scopes, 2)
	globals, err := c.Variables(ctx, "s1", scopes[1].VariablesReference)
	require.NoError(t, err)
	assert.Len(t, globals, 9)

	assert.ErrorIs(t, c.Continue(ctx, "s1", "bob"), errors.ErrNoDriveRights)
	require.NoError(t, c.Continue(ctx, "s1", "alice"))
	require.NoError(t, wait(t, done))
	nextEvent(t, c, EventContinued)

	bps, err := c.Breakpoints(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, bps[0].HitCount)

	_, err = c.StackTrace(ctx, "s1")
	assert.ErrorIs(t, err, errors.ErrNotPaused)
}

func TestConditionalBreakpointStopsOnce(t *testing.T) {
	ctx := context.Background()
	c := newController(t, "{}")
	require.NoError(t, c.Launch(ctx, "s1", "alice", LaunchOptions{}))
	bp, err := c.SetBreakpoint(ctx, "s1", "alice", "loop", entity.BreakpointSpec{Line: 3, Condition: "i == 5"})
	require.NoError(t, err)
	require.True(t, bp.Enabled)

	hooks := c.Hooks("s1")
	done := async(func() error {
		for i := 0; i < 10; i++ {
			vars := executor.Vars{Locals: map[string]any{"i": i}, Globals: map[string]any{}}
			if err := hooks.Line(ctx, executor.Location{Source: "loop", Line: 3}, vars); err != nil {
				return err
			}
		}
		return nil
	})

	nextEvent(t, c, EventStopped)
	v, err := c.Evaluate(ctx, "s1", 0, "i")
	require.NoError(t, err)
	assert.Equal(t, "5", v.Value)
	require.NoError(t, c.Continue(ctx, "s1", "alice"))
	require.NoError(t, wait(t, done))
	noEvent(t, c, EventStopped)

	bps, err := c.Breakpoints(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, bps[0].HitCount)
}

func TestIgnoreCount(t *testing.T) {
	ctx := context.Background()
	c := newController(t, "{}")
	require.NoError(t, c.Launch(ctx, "s1", "alice", LaunchOptions{}))
	_, err := c.SetBreakpoint(ctx, "s1", "alice", "loop", entity.BreakpointSpec{Line: 1, IgnoreCount: 2})
	require.NoError(t, err)

	hooks := c.Hooks("s1")
	var stoppedAt int
	done := async(func() error {
		for i := 0; i < 4; i++ {
			vars := executor.Vars{Locals: map[string]any{"i": i}}
			if err := hooks.Line(ctx, executor.Location{Source: "loop", Line: 1}, vars); err != nil {
				return err
			}
		}
		return nil
	})

	nextEvent(t, c, EventStopped)
	v, err := c.Evaluate(ctx, "s1", 0, "i")
	require.NoError(t, err)
	_, err = fmt.Sscan(v.Value, &stoppedAt)
	require.NoError(t, err)
	assert.Equal(t, 2, stoppedAt)
	require.NoError(t, c.Continue(ctx, "s1", "alice"))

	nextEvent(t, c, EventStopped)
	require.NoError(t, c.Continue(ctx, "s1", "alice"))
	require.NoError(t, wait(t, done))
}

func TestInvalidBreakpoints(t *testing.T) {
	ctx := context.Background()
	c := newController(t, "{}")
	require.NoError(t, c.Launch(ctx, "s1", "alice", LaunchOptions{}))

	tests := []struct {
		name string
		spec entity.BreakpointSpec
		want string
	}{
		{
			name: "malformed condition",
			spec: entity.BreakpointSpec{Line: 2, Condition: "i =="},
			want: "invalid condition",
		},
		{
			name: "bad line",
			spec: entity.BreakpointSpec{Line: 0},
			want: "invalid line 0",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			bp, err := c.SetBreakpoint(ctx, "s1", "alice", "cell", tt.spec)
			require.NoError(t, err)
			assert.False(t, bp.Enabled)
			assert.False(t, bp.Verified)
			assert.Contains(t, bp.Message, tt.want)
		})
	}

	out := nextEvent(t, c, EventOutput)
	assert.Contains(t, out.Body["output"], "warning: breakpoint")

	// Disabled breakpoints never stop the execution.
	err := c.Hooks("s1").Line(ctx, executor.Location{Source: "cell", Line: 2}, executor.Vars{})
	require.NoError(t, err)
	noEvent(t, c, EventStopped)
}

func TestConditionErrorSkipsHit(t *testing.T) {
	ctx := context.Background()
	c := newController(t, "{}")
	require.NoError(t, c.Launch(ctx, "s1", "alice", LaunchOptions{}))
	bp, err := c.SetBreakpoint(ctx, "s1", "alice", "cell", entity.BreakpointSpec{Line: 1, Condition: "total > 1"})
	require.NoError(t, err)
	require.True(t, bp.Enabled)

	h := c.Hooks("s1")
	loc := executor.Location{Source: "cell", Line: 1}
	require.NoError(t, h.Line(ctx, loc, executor.Vars{}))
	out := nextEvent(t, c, EventOutput)
	assert.Contains(t, out.Body["output"], "condition total > 1 failed")
	require.NoError(t, h.Line(ctx, loc, executor.Vars{}))
	noEvent(t, c, EventOutput)
	noEvent(t, c, EventStopped)

	bps, err := c.Breakpoints(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, bps[0].Enabled, "an evaluation error only skips the hit")
	assert.Zero(t, bps[0].HitCount)

	done := async(func() error {
		return h.Line(ctx, loc, executor.Vars{Globals: map[string]any{"total": 2}})
	})
	stopped := nextEvent(t, c, EventStopped)
	assert.Equal(t, "breakpoint", stopped.Body["reason"])
	require.NoError(t, c.Continue(ctx, "s1", "alice"))
	require.NoError(t, wait(t, done))
}

func TestOtherStopsCountBreakpointHits(t *testing.T) {
	tests := []struct {
		name   string
		opts   LaunchOptions
		pause  bool
		reason string
	}{
		{
			name:   "entry",
			opts:   LaunchOptions{StopOnEntry: true},
			reason: "entry",
		},
		{
			name:   "pause",
			pause:  true,
			reason: "pause",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			c := newController(t, "{}")
			require.NoError(t, c.Launch(ctx, "s1", "alice", tt.opts))
			_, err := c.SetBreakpoint(ctx, "s1", "alice", "cell", entity.BreakpointSpec{Line: 1})
			require.NoError(t, err)
			if tt.pause {
				require.NoError(t, c.Pause(ctx, "s1", "alice"))
			}

			done := async(func() error {
				return c.Hooks("s1").Line(ctx, executor.Location{Source: "cell", Line: 1}, executor.Vars{})
			})
			stopped := nextEvent(t, c, EventStopped)
			assert.Equal(t, tt.reason, stopped.Body["reason"])
			require.NoError(t, c.Continue(ctx, "s1", "alice"))
			require.NoError(t, wait(t, done))

			bps, err := c.Breakpoints(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, 1, bps[0].HitCount)
		})
	}
}

func TestSetBreakpointsReplacesSource(t *testing.T) {
	ctx := context.Background()
	c := newController(t, "{}")
	require.NoError(t, c.Launch(ctx, "s1", "alice", LaunchOptions{}))

	_, err := c.SetBreakpoints(ctx, "s1", "alice", "a.go", []entity.BreakpointSpec{{Line: 1}, {Line: 2}})
	require.NoError(t, err)
	_, err = c.SetBreakpoint(ctx, "s1", "alice", "b.go", entity.BreakpointSpec{Line: 7})
	require.NoError(t, err)
	replaced, err := c.SetBreakpoints(ctx, "s1", "alice", "a.go", []entity.BreakpointSpec{{Line: 5}})
	require.NoError(t, err)
	require.Len(t, replaced, 1)
	assert.Equal(t, 4, replaced[0].ID)

	bps, err := c.Breakpoints(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, bps, 2)
	assert.Equal(t, 7, bps[0].Line)
	assert.Equal(t, 5, bps[1].Line)

	require.NoError(t, c.RemoveBreakpoint(ctx, "s1", "alice", bps[0].ID))
	var derr *errors.DebugError
	assert.ErrorAs(t, c.RemoveBreakpoint(ctx, "s1", "alice", bps[0].ID), &derr)
	_, err = c.SetBreakpoints(ctx, "s1", "bob", "a.go", nil)
	assert.ErrorIs(t, err, errors.ErrNoDriveRights)
}

func TestStepping(t *testing.T) {
	ctx := context.Background()
	c := newController(t, "{}")
	require.NoError(t, c.Launch(ctx, "s1", "alice", LaunchOptions{}))
	_, err := c.SetBreakpoint(ctx, "s1", "alice", "main", entity.BreakpointSpec{Line: 1})
	require.NoError(t, err)
	_, err = c.SetBreakpoint(ctx, "s1", "alice", "main", entity.BreakpointSpec{Line: 2})
	require.NoError(t, err)

	h := c.Hooks("s1")
	at := func(source string, line int) error {
		return h.Line(ctx, executor.Location{Source: source, Line: line}, executor.Vars{})
	}
	done := async(func() error {
		steps := []func() error{
			func() error { return at("main", 1) },
			func() error { h.Enter("f", executor.Location{Source: "main", Line: 10}); return nil },
			func() error { return at("main", 11) },
			func() error { h.Leave(); return nil },
			func() error { return at("main", 2) },
			func() error { h.Enter("g", executor.Location{Source: "main", Line: 20}); return nil },
			func() error { return at("main", 21) },
			func() error { return at("main", 22) },
			func() error { h.Leave(); return nil },
			func() error { return at("main", 3) },
			func() error { return at("main", 4) },
		}
		for _, step := range steps {
			if err := step(); err != nil {
				return err
			}
		}
		return nil
	})

	top := func() entity.StackFrame {
		frames, err := c.StackTrace(ctx, "s1")
		require.NoError(t, err)
		return frames[0]
	}

	nextEvent(t, c, EventStopped)
	assert.Equal(t, 1, top().Line)

	require.NoError(t, c.StepOver(ctx, "s1", "alice"))
	stopped := nextEvent(t, c, EventStopped)
	assert.Equal(t, "step", stopped.Body["reason"])
	assert.Equal(t, 2, top().Line)

	require.NoError(t, c.StepInto(ctx, "s1", "alice"))
	nextEvent(t, c, EventStopped)
	frames, err := c.StackTrace(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, "g", frames[0].Name)
	assert.Equal(t, 21, frames[0].Line)
	assert.Equal(t, "<module>", frames[1].Name)

	require.NoError(t, c.StepOut(ctx, "s1", "alice"))
	nextEvent(t, c, EventStopped)
	assert.Equal(t, 3, top().Line)

	require.NoError(t, c.Continue(ctx, "s1", "alice"))
	require.NoError(t, wait(t, done))
	noEvent(t, c, EventStopped)

	bps, err := c.Breakpoints(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, bps, 2)
	assert.Equal(t, 1, bps[1].HitCount, "the step onto line 2 counts as a hit")
}

func TestPauseAndException(t *testing.T) {
	ctx := context.Background()
	c := newController(t, "{}")
	require.NoError(t, c.Launch(ctx, "s1", "alice", LaunchOptions{}))
	h := c.Hooks("s1")

	require.NoError(t, c.Pause(ctx, "s1", "alice"))
	done := async(func() error {
		return h.Line(ctx, executor.Location{Source: "cell", Line: 1}, executor.Vars{})
	})
	stopped := nextEvent(t, c, EventStopped)
	assert.Equal(t, "pause", stopped.Body["reason"])
	require.NoError(t, c.Continue(ctx, "s1", "alice"))
	require.NoError(t, wait(t, done))

	// Exceptions only stop once exception breakpoints are on.
	boom := &errors.RuntimeError{Name: "Panic", Value: "boom"}
	require.NoError(t, h.Exception(ctx, boom, executor.Location{Source: "cell", Line: 2}, executor.Vars{}))
	noEvent(t, c, EventStopped)

	require.NoError(t, c.SetExceptionBreakpoints(ctx, "s1", "alice", true))
	done = async(func() error {
		return h.Exception(ctx, boom, executor.Location{Source: "cell", Line: 2}, executor.Vars{})
	})
	stopped = nextEvent(t, c, EventStopped)
	assert.Equal(t, "exception", stopped.Body["reason"])
	assert.Equal(t, "Panic: boom", stopped.Body["description"])
	require.NoError(t, c.Continue(ctx, "s1", "alice"))
	require.NoError(t, wait(t, done))
}

func TestPauseWaitsForContext(t *testing.T) {
	c := newController(t, "{}")
	require.NoError(t, c.Launch(context.Background(), "s1", "alice", LaunchOptions{StopOnEntry: true}))

	ctx, cancel := context.WithCancel(context.Background())
	done := async(func() error {
		return c.Hooks("s1").Line(ctx, executor.Location{Source: "cell", Line: 1}, executor.Vars{})
	})
	stopped := nextEvent(t, c, EventStopped)
	assert.Equal(t, "entry", stopped.Body["reason"])
	cancel()
	assert.ErrorIs(t, wait(t, done), context.Canceled)

	state, err := c.State(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, entity.DebugRunning, state.Kind)
}

func TestTerminate(t *testing.T) {
	ctx := context.Background()
	c := newController(t, "{}")
	require.NoError(t, c.Launch(ctx, "s1", "alice", LaunchOptions{Program: "/tmp/s.go", StopOnEntry: true}))
	h := c.Hooks("s1")

	done := async(func() error {
		return h.Line(ctx, executor.Location{Source: "/tmp/s.go", Line: 1}, executor.Vars{})
	})
	nextEvent(t, c, EventStopped)
	assert.ErrorIs(t, c.Terminate(ctx, "s1", "bob"), errors.ErrNoDriveRights)
	require.NoError(t, c.Terminate(ctx, "s1", "alice"))
	assert.ErrorIs(t, wait(t, done), errors.ErrTerminated)
	nextEvent(t, c, EventTerminated)

	// The stale hooks keep refusing to run.
	assert.ErrorIs(t, h.Line(ctx, executor.Location{Source: "/tmp/s.go", Line: 2}, executor.Vars{}), errors.ErrTerminated)
	assert.Nil(t, c.Hooks("s1"))
	_, err := c.State(ctx, "s1")
	assert.ErrorIs(t, err, errors.ErrNotDebugging)

	require.NoError(t, c.Launch(ctx, "s2", "bob", LaunchOptions{Program: "/tmp/s.go"}))
}

func TestProgramLock(t *testing.T) {
	ctx := context.Background()
	c := newController(t, "{}")
	require.NoError(t, c.Launch(ctx, "s1", "alice", LaunchOptions{Program: "scripts/s.go"}))

	assert.ErrorIs(t, c.Launch(ctx, "s2", "bob", LaunchOptions{Program: "scripts/./s.go"}), errors.ErrAlreadyDebugging)
	assert.ErrorIs(t, c.Launch(ctx, "s1", "alice", LaunchOptions{}), errors.ErrAlreadyDebugging)

	program, ok := c.Program("s1")
	assert.True(t, ok)
	assert.Equal(t, "scripts/s.go", program)

	assert.ErrorIs(t, c.Detach(ctx, "s1", "bob"), errors.ErrNoDriveRights)
	require.NoError(t, c.Detach(ctx, "s1", "alice"))
	require.NoError(t, c.Launch(ctx, "s2", "bob", LaunchOptions{Program: "scripts/s.go"}))
	assert.ErrorIs(t, c.Detach(ctx, "s1", "alice"), errors.ErrNotDebugging)
}

func TestRelease(t *testing.T) {
	ctx := context.Background()
	c := newController(t, "{}")
	require.NoError(t, c.Launch(ctx, "s1", "alice", LaunchOptions{Program: "a.go"}))
	require.NoError(t, c.Launch(ctx, "s2", "alice", LaunchOptions{}))
	require.NoError(t, c.Launch(ctx, "s3", "bob", LaunchOptions{}))

	assert.Empty(t, c.Release(ctx, "carol"))
	assert.ElementsMatch(t, []string{"s1", "s2"}, c.Release(ctx, "alice"))
	assert.Nil(t, c.Hooks("s1"))
	assert.NotNil(t, c.Hooks("s3"))
	assert.NoError(t, c.Launch(ctx, "s4", "bob", LaunchOptions{Program: "a.go"}))
}

func TestDetachResumesPausedExecution(t *testing.T) {
	ctx := context.Background()
	c := newController(t, "{}")
	require.NoError(t, c.Launch(ctx, "s1", "alice", LaunchOptions{}))
	_, err := c.SetBreakpoint(ctx, "s1", "alice", "cell", entity.BreakpointSpec{Line: 1})
	require.NoError(t, err)
	h := c.Hooks("s1")

	done := async(func() error {
		for line := 1; line <= 3; line++ {
			if err := h.Line(ctx, executor.Location{Source: "cell", Line: line}, executor.Vars{}); err != nil {
				return err
			}
		}
		return h.Line(ctx, executor.Location{Source: "cell", Line: 1}, executor.Vars{})
	})
	nextEvent(t, c, EventStopped)
	require.NoError(t, c.Detach(ctx, "s1", "alice"))
	require.NoError(t, wait(t, done))
	noEvent(t, c, EventStopped)
}

func TestEvaluate(t *testing.T) {
	ctx := context.Background()
	c := newController(t, "{}")
	require.NoError(t, c.Launch(ctx, "s1", "alice", LaunchOptions{StopOnEntry: true}))

	vars := executor.Vars{
		Locals:  map[string]any{"items": []any{1, "two"}, "n": 10},
		Globals: map[string]any{"n": 3, "name": "ada"},
	}
	done := async(func() error {
		return c.Hooks("s1").Line(ctx, executor.Location{Source: "cell", Line: 1}, vars)
	})
	nextEvent(t, c, EventStopped)

	tests := []struct {
		expr    string
		want    string
		wantErr string
	}{
		{expr: "n + 1", want: "11"},
		{expr: "size(items)", want: "2"},
		{expr: `name + "!"`, want: `"ada!"`},
		{expr: "n >", wantErr: "invalid expression"},
		{expr: "nope", wantErr: "evaluating nope"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.expr, func(t *testing.T) {
			v, err := c.Evaluate(ctx, "s1", 0, tt.expr)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.Value)
		})
	}

	items, err := c.Evaluate(ctx, "s1", 0, "items")
	require.NoError(t, err)
	require.NotZero(t, items.VariablesReference)
	children, err := c.Variables(ctx, "s1", items.VariablesReference)
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, `"two"`, children[1].Value)

	_, err = c.Variables(ctx, "s1", 999)
	assert.ErrorContains(t, err, "unknown variables reference")
	_, err = c.Scopes(ctx, "s1", 5)
	assert.ErrorContains(t, err, "unknown frame")

	require.NoError(t, c.Continue(ctx, "s1", "alice"))
	require.NoError(t, wait(t, done))
}

func TestEventsAreDroppedWhenFull(t *testing.T) {
	stats := tally.NewTestScope("", nil)
	c := newController(t, "{}")
	c.stats = stats
	for i := 0; i < _eventQueue+3; i++ {
		c.emit(outputEvent("s1", "x"))
	}
	assert.Len(t, c.events, _eventQueue)
	assert.Equal(t, int64(3), stats.Snapshot().Counters()["events_dropped+"].Value())
}
