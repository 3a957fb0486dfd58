// Package executortest provides a scriptable in-memory Runtime for tests.
//
// Cells are line oriented. Each non-blank line is a safe point reported to Hooks and is one of:
//
//	name = value     bind a variable; integers are stored as int
//	print text       write text and a newline to stdout
//	eprint text      write text and a newline to stderr
//	display text     emit a text/plain display
//	sleep 50ms       wait, returning early when the context is done
//	hang 50ms        wait, ignoring the context
//	fail Name text   raise a script error
//	input prompt     ask for a line and bind it to answer
//	alloc 1048576    allocate and retain that many bytes
//	panic text       panic
//	name             make the variable's value the cell result
package executortest

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/llmspell/spellkernel/src/kernel/internal/errors"
	"github.com/llmspell/spellkernel/src/kernel/internal/executor"
)

// Runtime is a fake executor.Runtime.
type Runtime struct {
	// NoSnapshots makes contexts that cannot roll back.
	NoSnapshots bool
	// NewContextErr fails every NewContext call when set.
	NewContextErr error

	mu       sync.Mutex
	contexts map[string][]*Context
}

var _ executor.Runtime = (*Runtime)(nil)

// New returns a Runtime whose contexts support snapshots.
func New() *Runtime {
	return &Runtime{contexts: map[string][]*Context{}}
}

func (r *Runtime) Name() string { return "fake" }

func (r *Runtime) LanguageInfo() executor.LanguageInfo {
	return executor.LanguageInfo{Name: "fake", Version: "1.0", MimeType: "text/plain", FileExtension: ".fake"}
}

func (r *Runtime) NewContext(ctx context.Context, sessionID string) (executor.Context, error) {
	if r.NewContextErr != nil {
		return nil, r.NewContextErr
	}
	c := &Context{session: sessionID, vars: map[string]any{}}
	r.mu.Lock()
	r.contexts[sessionID] = append(r.contexts[sessionID], c)
	r.mu.Unlock()
	if r.NoSnapshots {
		return c, nil
	}
	return snapshotContext{c}, nil
}

// Contexts returns every context created for sessionID, oldest first.
func (r *Runtime) Contexts(sessionID string) []*Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Context(nil), r.contexts[sessionID]...)
}

// Latest returns the newest context for sessionID, or nil.
func (r *Runtime) Latest(sessionID string) *Context {
	cs := r.Contexts(sessionID)
	if len(cs) == 0 {
		return nil
	}
	return cs[len(cs)-1]
}

// Context is a fake session context.
type Context struct {
	session string

	mu       sync.Mutex
	vars     map[string]any
	retained [][]byte
	closed   bool
	running  int
	overlap  bool
}

// Var returns a bound variable.
func (c *Context) Var(name string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.vars[name]
	return v, ok
}

// Closed reports whether Close was called.
func (c *Context) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Overlapped reports whether two executions ever ran at the same time.
func (c *Context) Overlapped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.overlap
}

func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.retained = nil
	return nil
}

func (c *Context) Execute(ctx context.Context, req executor.Request) (executor.Outcome, error) {
	c.mu.Lock()
	c.running++
	if c.running > 1 {
		c.overlap = true
	}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.running--
		c.mu.Unlock()
	}()

	out := req.Output
	if out == nil {
		out = executor.NopOutput{}
	}
	var result executor.Outcome
	for i, raw := range strings.Split(req.Code, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		loc := executor.Location{Source: req.Source, Line: i + 1}
		if req.Hooks != nil {
			if err := req.Hooks.Line(ctx, loc, c.scope()); err != nil {
				return executor.Outcome{}, err
			}
		}
		if err := ctx.Err(); err != nil {
			return executor.Outcome{}, err
		}

		data, err := c.step(ctx, line, out)
		if err != nil {
			if _, ok := errors.AsRuntime(err); ok && req.Hooks != nil {
				if herr := req.Hooks.Exception(ctx, err, loc, c.scope()); herr != nil {
					return executor.Outcome{}, herr
				}
			}
			return executor.Outcome{}, err
		}
		result.Data = data
	}
	return result, nil
}

func (c *Context) step(ctx context.Context, line string, out executor.Output) (map[string]any, error) {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "print":
		out.Stdout(arg + "\n")
	case "eprint":
		out.Stderr(arg + "\n")
	case "display":
		out.Display(map[string]any{"text/plain": arg})
	case "sleep":
		d, err := time.ParseDuration(arg)
		if err != nil {
			return nil, scriptError("SyntaxError", err.Error())
		}
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	case "hang":
		d, err := time.ParseDuration(arg)
		if err != nil {
			return nil, scriptError("SyntaxError", err.Error())
		}
		time.Sleep(d)
	case "fail":
		name, msg, _ := strings.Cut(arg, " ")
		return nil, scriptError(name, msg)
	case "input":
		answer, err := out.Input(ctx, arg, false)
		if err != nil {
			return nil, scriptError("InputError", err.Error())
		}
		c.set("answer", answer)
	case "alloc":
		n, err := strconv.Atoi(arg)
		if err != nil {
			return nil, scriptError("SyntaxError", err.Error())
		}
		b := make([]byte, n)
		for i := range b {
			b[i] = 1
		}
		c.mu.Lock()
		c.retained = append(c.retained, b)
		c.mu.Unlock()
	case "panic":
		panic(arg)
	default:
		if name, value, ok := strings.Cut(line, "="); ok {
			c.set(strings.TrimSpace(name), parse(strings.TrimSpace(value)))
			return nil, nil
		}
		v, ok := c.Var(line)
		if !ok {
			return nil, scriptError("NameError", fmt.Sprintf("%s is not defined", line))
		}
		return map[string]any{"text/plain": fmt.Sprint(v)}, nil
	}
	return nil, nil
}

func (c *Context) set(name string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vars[name] = v
}

func (c *Context) scope() executor.Vars {
	c.mu.Lock()
	defer c.mu.Unlock()
	g := make(map[string]any, len(c.vars))
	for k, v := range c.vars {
		g[k] = v
	}
	return executor.Vars{Locals: map[string]any{}, Globals: g}
}

func (c *Context) Export() (map[string]any, error) {
	return c.scope().Globals, nil
}

func (c *Context) Import(vars map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range vars {
		// JSON round trips turn ints into float64.
		if f, ok := v.(float64); ok && f == float64(int(f)) {
			v = int(f)
		}
		c.vars[k] = v
	}
	return nil
}

func (c *Context) Inspect(code string, cursor int) (map[string]any, bool, error) {
	name := wordAt(code, cursor)
	v, ok := c.Var(name)
	if !ok {
		return nil, false, nil
	}
	return map[string]any{"text/plain": fmt.Sprintf("%s: %T = %v", name, v, v)}, true, nil
}

func (c *Context) Complete(code string, cursor int) ([]string, int, int, error) {
	if cursor > len(code) {
		cursor = len(code)
	}
	start := cursor
	for start > 0 && isIdent(code[start-1]) {
		start--
	}
	prefix := code[start:cursor]
	var matches []string
	for name := range c.scope().Globals {
		if strings.HasPrefix(name, prefix) {
			matches = append(matches, name)
		}
	}
	sort.Strings(matches)
	return matches, start, cursor, nil
}

func (c *Context) IsComplete(code string) (string, string) {
	if strings.HasSuffix(strings.TrimRight(code, " \t\n"), "\\") {
		return executor.Incomplete, "  "
	}
	return executor.Complete, ""
}

type snapshot struct {
	vars     map[string]any
	retained int
}

type snapshotContext struct{ *Context }

func (s snapshotContext) Snapshot() (executor.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vars := make(map[string]any, len(s.vars))
	for k, v := range s.vars {
		vars[k] = v
	}
	return snapshot{vars: vars, retained: len(s.retained)}, nil
}

func (s snapshotContext) Restore(snap executor.Snapshot) error {
	sn, ok := snap.(snapshot)
	if !ok {
		return fmt.Errorf("unexpected snapshot %T", snap)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vars = make(map[string]any, len(sn.vars))
	for k, v := range sn.vars {
		s.vars[k] = v
	}
	if sn.retained < len(s.retained) {
		s.retained = s.retained[:sn.retained]
	}
	return nil
}

// Unwrap returns the underlying fake context.
func Unwrap(c executor.Context) *Context {
	switch v := c.(type) {
	case *Context:
		return v
	case snapshotContext:
		return v.Context
	}
	return nil
}

func parse(s string) any {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return strings.Trim(s, `"`)
}

func scriptError(name, msg string) error {
	return &errors.RuntimeError{Name: name, Value: msg, Traceback: []string{name + ": " + msg}}
}

func wordAt(code string, cursor int) string {
	if cursor > len(code) {
		cursor = len(code)
	}
	start, end := cursor, cursor
	for start > 0 && isIdent(code[start-1]) {
		start--
	}
	for end < len(code) && isIdent(code[end]) {
		end++
	}
	return code[start:end]
}

func isIdent(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}
