package executor

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/llmspell/spellkernel/src/kernel/internal/errors"
	tally "github.com/uber-go/tally/v4"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

//go:generate mockgen -source=executor.go -destination=executormock/executor.go -package=executormock

// ErrInputUnavailable is returned by Output.Input when the request did not allow stdin.
var ErrInputUnavailable = errors.New("input is not available for this execution")

// Module provides the Executor.
var Module = fx.Provide(func(logger *zap.SugaredLogger, stats tally.Scope) Executor {
	return NewExecutor(WithLogger(logger), WithStats(stats.SubScope("executor")))
})

// Executor wraps the execution of cells to add logs and metrics to each one and to keep runtime
// panics from taking the kernel down.
type Executor interface {
	// Run executes req in c on behalf of sessionID.
	Run(ctx context.Context, sessionID string, c Context, req Request) (Outcome, error)
}

type executorImp struct {
	logger *zap.SugaredLogger
	stats  tally.Scope
}

// Option customizes the Executor.
type Option func(*executorImp)

// WithLogger overrides the default noop logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(e *executorImp) {
		e.logger = logger
	}
}

// WithStats overrides the default noop scope.
func WithStats(stats tally.Scope) Option {
	return func(e *executorImp) {
		e.stats = stats
	}
}

// NewExecutor creates an Executor.
func NewExecutor(opts ...Option) Executor {
	e := &executorImp{
		logger: zap.NewNop().Sugar(),
		stats:  tally.NoopScope,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *executorImp) Run(ctx context.Context, sessionID string, c Context, req Request) (out Outcome, err error) {
	e.logger.Debugw("Exec",
		"session", sessionID,
		"source", req.Source,
		"lines", strings.Count(req.Code, "\n")+1,
		"debugging", req.Hooks != nil,
	)

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Errorw("runtime panicked", "session", sessionID, "panic", r)
			e.stats.Counter("panics").Inc(1)
			err = &errors.RuntimeError{
				Name:      "RuntimePanic",
				Value:     fmt.Sprint(r),
				Traceback: strings.Split(strings.TrimSpace(string(debug.Stack())), "\n"),
			}
		}
		e.stats.Timer("latency").Record(time.Since(start))
		e.stats.Tagged(map[string]string{"outcome": outcome(err)}).Counter("runs").Inc(1)
	}()

	return c.Execute(ctx, req)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.IsTimeout(err):
		return "timeout"
	}
	if _, ok := errors.AsRuntime(err); ok {
		return "script_error"
	}
	return "error"
}
