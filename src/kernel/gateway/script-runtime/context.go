package scriptruntime

import (
	"context"
	stderrors "errors"
	"fmt"
	"go/scanner"
	"io"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/llmspell/spellkernel/src/kernel/internal/errors"
	"github.com/llmspell/spellkernel/src/kernel/internal/executor"
	"github.com/traefik/yaegi/interp"
	"go.uber.org/zap"
)

const _hookKey = _hookPkg + "/" + _hookPkg

// Error names reported to clients.
const (
	NameImportError  = "ImportError"
	NameSyntaxError  = "SyntaxError"
	NameCompileError = "CompileError"
	NamePanic        = "Panic"
	NameInputError   = "InputError"
)

// execution is the state of the cell being run.
type execution struct {
	ctx    context.Context
	cancel context.CancelFunc
	source string
	hooks  executor.Hooks
	output executor.Output

	mu    sync.Mutex
	abort error
}

// stop records err and cancels the evaluation, which the interpreter notices at its next check.
func (x *execution) stop(err error) {
	x.fail(err)
	x.cancel()
}

// fail records err without interrupting the statement being evaluated.
func (x *execution) fail(err error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.abort == nil {
		x.abort = err
	}
}

func (x *execution) aborted() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.abort
}

// declRecord is a declaration cell kept for replay into a rebuilt interpreter.
type declRecord struct {
	src   string
	names []string
}

type sessionContext struct {
	runtime   *runtimeImpl
	sessionID string
	logger    *zap.SugaredLogger

	interp  *interp.Interpreter
	current atomic.Pointer[execution]

	imports []string
	decls   []declRecord
	// rawCells counts cells that were evaluated whole and cannot be replayed.
	rawCells int
	// poisoned is set when an evaluation was cancelled and may still be unwinding.
	poisoned bool
	closed   bool
}

// reset replaces the interpreter with a fresh one holding only the default imports.
func (c *sessionContext) reset(ctx context.Context) error {
	i := interp.New(interp.Options{
		Stdout: &streamWriter{c: c, fallback: c.runtime.stray.Stream(c.sessionID, "stdout")},
		Stderr: &streamWriter{c: c, stderr: true, fallback: c.runtime.stray.Stream(c.sessionID, "stderr")},
		Stdin:  strings.NewReader(""),
	})
	if err := i.Use(c.runtime.symbols); err != nil {
		return fmt.Errorf("loading symbols: %w", err)
	}
	if err := i.Use(c.exports()); err != nil {
		return fmt.Errorf("loading hooks: %w", err)
	}

	boot := []string{strconv.Quote(_hookPkg), strconv.Quote(_userPkg)}
	for _, path := range c.runtime.defaultImports {
		boot = append(boot, strconv.Quote(path))
	}
	if _, err := i.EvalWithContext(ctx, "import (\n"+strings.Join(boot, "\n")+"\n)"); err != nil {
		return fmt.Errorf("loading default imports: %w", err)
	}

	c.interp = i
	c.imports = nil
	c.decls = nil
	c.rawCells = 0
	c.poisoned = false
	return nil
}

func (c *sessionContext) exports() interp.Exports {
	return interp.Exports{
		_hookKey: {
			"Line":  reflect.ValueOf(c.hookLine),
			"Enter": reflect.ValueOf(c.hookEnter),
			"Leave": reflect.ValueOf(c.hookLeave),
		},
		_userPkg + "/" + _userPkg: {
			"Input":    reflect.ValueOf(c.input),
			"Password": reflect.ValueOf(c.password),
			"Display":  reflect.ValueOf(c.display),
		},
	}
}

func (c *sessionContext) Execute(ctx context.Context, req executor.Request) (executor.Outcome, error) {
	if c.closed {
		return executor.Outcome{}, fmt.Errorf("session %s: context is closed", c.sessionID)
	}
	if c.poisoned {
		return executor.Outcome{}, &errors.SessionTaintedError{SessionID: c.sessionID}
	}
	output := req.Output
	if output == nil {
		output = executor.NopOutput{}
	}
	evalCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	x := &execution{ctx: evalCtx, cancel: cancel, source: req.Source, hooks: req.Hooks, output: output}
	c.current.Store(x)
	defer c.current.Store(nil)

	cell, err := parseCell(req.Code, req.Source, req.Hooks != nil)
	if err != nil {
		return executor.Outcome{}, &errors.RuntimeError{Name: NameSyntaxError, Value: err.Error()}
	}
	if err := c.runtime.checkImports(cell.imports); err != nil {
		return executor.Outcome{}, &errors.RuntimeError{Name: NameImportError, Value: err.Error()}
	}
	if cell.importSrc != "" {
		if _, err := c.eval(x, cell.importSrc, 1); err != nil {
			return executor.Outcome{}, err
		}
		c.imports = append(c.imports, cell.importSrc)
	}

	switch cell.kind {
	case declCell:
		if cell.decls == "" {
			return executor.Outcome{}, nil
		}
		if _, err := c.eval(x, cell.decls, 1); err != nil {
			return executor.Outcome{}, err
		}
		c.decls = append(c.decls, declRecord{src: cell.decls, names: cell.names})
		return executor.Outcome{}, nil
	case rawCell:
		c.rawCells++
		v, err := c.eval(x, cell.decls, 1)
		if err != nil {
			return executor.Outcome{}, err
		}
		return outcome(v, false), nil
	}

	var last reflect.Value
	for _, st := range cell.stmts {
		if err := c.safePoint(x, st.line, nil); err != nil {
			return executor.Outcome{}, err
		}
		v, err := c.eval(x, st.src, st.line)
		if err != nil {
			return executor.Outcome{}, err
		}
		if st.value && !c.isPackage(st.pkg) {
			last = v
		}
	}
	return outcome(last, true), nil
}

// isPackage reports whether name refers to an importable package rather than a variable.
func (c *sessionContext) isPackage(name string) bool {
	if name == "" {
		return false
	}
	if name == _userPkg {
		return true
	}
	if _, ok := c.runtime.packages[name]; !ok {
		return false
	}
	_, shadowed := c.interp.Globals()[name]
	return !shadowed
}

func outcome(v reflect.Value, wanted bool) executor.Outcome {
	if !wanted || !v.IsValid() || !v.CanInterface() {
		return executor.Outcome{}
	}
	if v.Kind() == reflect.Func {
		return executor.Outcome{}
	}
	return executor.Outcome{Data: map[string]any{"text/plain": display(v)}}
}

// safePoint runs the line hook for a top-level statement outside the interpreter.
func (c *sessionContext) safePoint(x *execution, line int, locals map[string]any) error {
	if abort := x.aborted(); abort != nil {
		return abort
	}
	if err := x.ctx.Err(); err != nil {
		return err
	}
	if x.hooks == nil {
		return nil
	}
	return x.hooks.Line(x.ctx, executor.Location{Source: x.source, Line: line}, executor.Vars{
		Locals:  locals,
		Globals: c.globals(),
	})
}

// eval evaluates src and classifies its failure. Script errors go through the exception hook.
func (c *sessionContext) eval(x *execution, src string, line int) (reflect.Value, error) {
	v, err := c.interp.EvalWithContext(x.ctx, src)
	ctxErr := x.ctx.Err()
	if err != nil && ctxErr != nil {
		// EvalWithContext returns on cancellation while the interpreter may still be unwinding.
		c.poisoned = true
	}
	if abort := x.aborted(); abort != nil {
		return v, abort
	}
	if err == nil {
		return v, nil
	}
	if ctxErr != nil {
		return v, ctxErr
	}

	rtErr := scriptError(err, x.source, line)
	if x.hooks != nil {
		if hookErr := x.hooks.Exception(x.ctx, rtErr, executor.Location{Source: x.source, Line: line}, executor.Vars{
			Globals: c.globals(),
		}); hookErr != nil {
			return v, hookErr
		}
	}
	return v, rtErr
}

func scriptError(err error, source string, line int) *errors.RuntimeError {
	where := []string{fmt.Sprintf("%s:%d", source, line)}
	var p interp.Panic
	if stderrors.As(err, &p) {
		value := fmt.Sprint(p.Value)
		if e, ok := p.Value.(error); ok {
			value = e.Error()
		}
		return &errors.RuntimeError{Name: NamePanic, Value: value, Traceback: where}
	}
	var list scanner.ErrorList
	if stderrors.As(err, &list) {
		return &errors.RuntimeError{Name: NameSyntaxError, Value: err.Error(), Traceback: where}
	}
	return &errors.RuntimeError{Name: NameCompileError, Value: err.Error(), Traceback: where}
}

// globals returns the interface values of the session's global variables.
func (c *sessionContext) globals() map[string]any {
	out := make(map[string]any)
	for name, v := range c.interp.Globals() {
		if strings.HasPrefix(name, "_") || !v.IsValid() || !v.CanInterface() {
			continue
		}
		out[name] = v.Interface()
	}
	return out
}

func (c *sessionContext) hookLine(source string, line int, locals map[string]interface{}) {
	x := c.current.Load()
	if x == nil {
		return
	}
	if x.ctx.Err() != nil || x.hooks == nil {
		return
	}
	err := x.hooks.Line(x.ctx, executor.Location{Source: source, Line: line}, executor.Vars{
		Locals:  locals,
		Globals: c.globals(),
	})
	if err != nil {
		x.stop(err)
	}
}

func (c *sessionContext) hookEnter(function, source string, line int) {
	if x := c.current.Load(); x != nil && x.hooks != nil {
		x.hooks.Enter(function, executor.Location{Source: source, Line: line})
	}
}

func (c *sessionContext) hookLeave() {
	if x := c.current.Load(); x != nil && x.hooks != nil {
		x.hooks.Leave()
	}
}

func (c *sessionContext) input(prompt string) string {
	return c.readInput(prompt, false)
}

func (c *sessionContext) password(prompt string) string {
	return c.readInput(prompt, true)
}

func (c *sessionContext) readInput(prompt string, password bool) string {
	x := c.current.Load()
	if x == nil {
		return ""
	}
	answer, err := x.output.Input(x.ctx, prompt, password)
	if err != nil {
		if x.ctx.Err() == nil {
			x.fail(&errors.RuntimeError{Name: NameInputError, Value: err.Error()})
		}
		return ""
	}
	return answer
}

func (c *sessionContext) display(data map[string]interface{}) {
	if x := c.current.Load(); x != nil {
		x.output.Display(data)
	}
}

func (c *sessionContext) Close() error {
	c.closed = true
	c.interp = nil
	return nil
}

// streamWriter sends interpreter output to the running execution, or to the stray log between executions.
type streamWriter struct {
	c        *sessionContext
	stderr   bool
	fallback io.Writer
}

func (w *streamWriter) Write(p []byte) (int, error) {
	x := w.c.current.Load()
	if x == nil {
		return w.fallback.Write(p)
	}
	if w.stderr {
		x.output.Stderr(string(p))
	} else {
		x.output.Stdout(string(p))
	}
	return len(p), nil
}
