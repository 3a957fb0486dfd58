// Package dispatcher owns the internal sessions and runs execute requests against them, one at a time
// per session, within each client's limits.
package dispatcher

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/llmspell/spellkernel/src/kernel/controller/debugger"
	"github.com/llmspell/spellkernel/src/kernel/entity"
	"github.com/llmspell/spellkernel/src/kernel/gateway/statestore"
	"github.com/llmspell/spellkernel/src/kernel/internal/clock"
	"github.com/llmspell/spellkernel/src/kernel/internal/errors"
	"github.com/llmspell/spellkernel/src/kernel/internal/executor"
	"github.com/llmspell/spellkernel/src/kernel/repository/client"
	tally "github.com/uber-go/tally/v4"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

//go:generate mockgen -source=dispatcher.go -destination=dispatchermock/dispatcher.go -package=dispatchermock

const (
	_configKey       = "dispatcher"
	_limitsConfigKey = "limits"

	_defaultWorkers     = 8
	_defaultHistorySize = 1000
	_defaultGrace       = 200 * time.Millisecond
	_defaultSample      = 50 * time.Millisecond
)

// Module provides the dispatcher.
var Module = fx.Provide(New)

// ExecuteRequest is one cell submitted by a client.
type ExecuteRequest struct {
	SessionID string
	ClientID  string
	Code      string
	// Source names the cell in debug locations. Defaults to the cell's execution count.
	Source       string
	Silent       bool
	StoreHistory bool
	// Timeout, when positive, shortens the client's wall-clock limit.
	Timeout time.Duration
	Output  executor.Output
	// OnStart is called with the execution count once the request has left the session queue.
	OnStart func(executionCount int)
}

// Controller runs executions and answers editor queries against internal sessions.
type Controller interface {
	// Execute runs req. The error is set when the request was rejected before it ran; failures of
	// the execution itself are reported in the result.
	Execute(ctx context.Context, req ExecuteRequest) (entity.ExecutionResult, error)
	// Interrupt cancels the running execution of a session, if any.
	Interrupt(ctx context.Context, sessionID string) error
	// ClearSession discards a session, its runtime state and its persisted state.
	ClearSession(ctx context.Context, sessionID string) error

	Inspect(ctx context.Context, sessionID, code string, cursor int) (data map[string]any, found bool, err error)
	Complete(ctx context.Context, sessionID, code string, cursor int) (matches []string, start, end int, err error)
	IsComplete(ctx context.Context, sessionID, code string) (status, indent string, err error)
	// History returns the last n cells of a session, or all of them when n is not positive.
	History(ctx context.Context, sessionID string, n int) ([]entity.HistoryEntry, error)
	Sessions(ctx context.Context) []entity.SessionInfo

	// Drain stops accepting executions and waits for the running ones. Once ctx is done the rest are
	// interrupted.
	Drain(ctx context.Context) error
	// Reset clears every session and accepts executions again.
	Reset(ctx context.Context) error
	Close() error
}

// Config is the dispatcher section of the configuration.
type Config struct {
	Workers          int `yaml:"workers"`
	HistorySize      int `yaml:"historySize"`
	InterruptGraceMs int `yaml:"interruptGraceMs"`
	MemorySampleMs   int `yaml:"memorySampleMs"`
}

// Params are the inputs to New.
type Params struct {
	fx.In

	Config   config.Provider
	Logger   *zap.SugaredLogger
	Stats    tally.Scope
	Clock    clock.Clock
	Runtime  executor.Runtime
	Executor executor.Executor
	Clients  client.Repository
	Store    statestore.Store
	Debugger debugger.Controller
}

type dispatcher struct {
	logger   *zap.SugaredLogger
	stats    tally.Scope
	clock    clock.Clock
	runtime  executor.Runtime
	executor executor.Executor
	clients  client.Repository
	store    statestore.Store
	debugger debugger.Controller

	historySize int
	grace       time.Duration
	sample      time.Duration
	maxTimeout  time.Duration
	workers     *semaphore.Weighted

	mu       sync.Mutex
	sessions map[string]*session
	draining bool
	closed   bool
	inflight sync.WaitGroup
}

// New creates the dispatcher.
func New(p Params) (Controller, error) {
	cfg := Config{}
	if err := p.Config.Get(_configKey).Populate(&cfg); err != nil {
		return nil, fmt.Errorf("getting config field %q: %w", _configKey, err)
	}
	limits := client.LimitsConfig{}
	if err := p.Config.Get(_limitsConfigKey).Populate(&limits); err != nil {
		return nil, fmt.Errorf("getting config field %q: %w", _limitsConfigKey, err)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = _defaultWorkers
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = _defaultHistorySize
	}

	return &dispatcher{
		logger:      p.Logger.With("component", "dispatcher"),
		stats:       p.Stats.SubScope("dispatcher"),
		clock:       p.Clock,
		runtime:     p.Runtime,
		executor:    p.Executor,
		clients:     p.Clients,
		store:       p.Store,
		debugger:    p.Debugger,
		historySize: cfg.HistorySize,
		grace:       durationOr(cfg.InterruptGraceMs, _defaultGrace),
		sample:      durationOr(cfg.MemorySampleMs, _defaultSample),
		maxTimeout:  limits.Limits().ExecutionTimeout,
		workers:     semaphore.NewWeighted(int64(cfg.Workers)),
		sessions:    make(map[string]*session),
	}, nil
}

func durationOr(ms int, def time.Duration) time.Duration {
	if ms <= 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

// admit registers an in-flight request unless the dispatcher stopped accepting work.
func (d *dispatcher) admit() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.draining || d.closed {
		return errors.ErrShuttingDown
	}
	d.inflight.Add(1)
	return nil
}

func (d *dispatcher) lookup(sessionID string) *session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessions[sessionID]
}

func (d *dispatcher) session(sessionID string) *session {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.sessions[sessionID]
	if !ok {
		s = newSession(sessionID, d.clock.Now())
		d.sessions[sessionID] = s
		d.stats.Gauge("sessions").Update(float64(len(d.sessions)))
	}
	return s
}

func (d *dispatcher) Execute(ctx context.Context, req ExecuteRequest) (entity.ExecutionResult, error) {
	if err := d.admit(); err != nil {
		return entity.ExecutionResult{}, err
	}
	defer d.inflight.Done()

	c, err := d.clients.Get(ctx, req.ClientID)
	if err != nil {
		return entity.ExecutionResult{}, err
	}
	lease, err := d.clients.Acquire(ctx, req.ClientID, entity.Cost{Executions: 1})
	if err != nil {
		return entity.ExecutionResult{}, err
	}
	defer lease.Release()

	s := d.session(req.SessionID)
	queuedAt := d.clock.Now()
	s.queued.Add(1)
	err = s.turn.Acquire(ctx, 1)
	s.queued.Add(-1)
	if err != nil {
		return d.aborted(err), nil
	}
	defer s.turn.Release(1)

	if err := d.workers.Acquire(ctx, 1); err != nil {
		return d.aborted(err), nil
	}
	defer d.workers.Release(1)
	d.stats.Timer("queue_wait").Record(d.clock.Since(queuedAt))

	if s.isClosed() {
		return d.aborted(fmt.Errorf("session %s was cleared: %w", s.id, errors.ErrInterrupted)), nil
	}
	if err := d.open(ctx, s); err != nil {
		return entity.ExecutionResult{}, err
	}
	if s.isTainted() {
		return entity.ExecutionResult{}, &errors.SessionTaintedError{SessionID: s.id}
	}

	res := d.run(ctx, s, req, c.Limits)
	d.stats.Tagged(map[string]string{"status": string(res.Status)}).Counter("executions").Inc(1)
	d.persist(context.WithoutCancel(ctx), s)
	return res, nil
}

func (d *dispatcher) aborted(err error) entity.ExecutionResult {
	d.stats.Tagged(map[string]string{"status": string(entity.StatusAborted)}).Counter("executions").Inc(1)
	return entity.ExecutionResult{Status: entity.StatusAborted, Err: err}
}

// timeout is the smallest positive limit among the kernel maximum, the client's limit and the
// request's own. Debugged executions have none, since they may sit paused indefinitely.
func (d *dispatcher) timeout(limits entity.ResourceLimits, req ExecuteRequest, debugging bool) time.Duration {
	if debugging {
		return 0
	}
	var out time.Duration
	for _, t := range []time.Duration{d.maxTimeout, limits.ExecutionTimeout, req.Timeout} {
		if t > 0 && (out == 0 || t < out) {
			out = t
		}
	}
	return out
}

type result struct {
	out executor.Outcome
	err error
}

// run executes one request. The caller holds the session's turn.
func (d *dispatcher) run(ctx context.Context, s *session, req ExecuteRequest, limits entity.ResourceLimits) entity.ExecutionResult {
	count := s.begin(req, d.historySize, d.clock.Now())
	if req.OnStart != nil {
		req.OnStart(count)
	}

	hooks := d.debugger.Hooks(s.id)
	source := req.Source
	if source == "" {
		source = fmt.Sprintf("<cell %d>", count)
	}
	output := req.Output
	if output == nil {
		output = executor.NopOutput{}
	}

	var snap executor.Snapshot
	if snapper, ok := s.rc.(executor.Snapshotter); ok {
		var err error
		if snap, err = snapper.Snapshot(); err != nil {
			d.logger.Warnw("snapshot failed, an aborted execution will taint the session", "session", s.id, "error", err)
			snap = nil
		}
	}

	execCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if timeout := d.timeout(limits, req, hooks != nil); timeout > 0 {
		timer := time.AfterFunc(timeout, func() {
			cancel(&errors.TimeoutError{SessionID: s.id, Timeout: timeout})
		})
		defer timer.Stop()
	}
	if limits.MaxMemoryBytes > 0 {
		stop := d.watchMemory(execCtx, s.id, limits.MaxMemoryBytes, cancel)
		defer stop()
	}
	s.setRunning(cancel)
	defer s.setRunning(nil)

	rc := s.rc
	done := make(chan result, 1)
	go func() {
		out, err := d.executor.Run(execCtx, s.id, rc, executor.Request{
			Code:   req.Code,
			Source: source,
			Hooks:  hooks,
			Output: output,
		})
		done <- result{out: out, err: err}
	}()

	var r result
	select {
	case r = <-done:
	case <-execCtx.Done():
		select {
		case r = <-done:
		case <-time.After(d.grace):
			d.abandon(s, rc, done)
			r = result{err: execCtx.Err()}
		}
	}

	switch {
	case r.err == nil:
		return entity.ExecutionResult{Status: entity.StatusOK, ExecutionCount: count, Data: r.out.Data}
	case execCtx.Err() != nil:
		cause := context.Cause(execCtx)
		d.count(cause)
		d.rollback(s, snap, cause)
		return entity.ExecutionResult{Status: entity.StatusError, ExecutionCount: count, Err: cause}
	}

	if _, ok := errors.AsRuntime(r.err); !ok {
		d.rollback(s, snap, r.err)
	}
	return entity.ExecutionResult{Status: entity.StatusError, ExecutionCount: count, Err: r.err}
}

func (d *dispatcher) count(cause error) {
	switch {
	case errors.IsTimeout(cause):
		d.stats.Counter("timeouts").Inc(1)
	case errors.Name(cause) == errors.NameMemoryLimit:
		d.stats.Counter("memory_limit_exceeded").Inc(1)
	case errors.Name(cause) == errors.NameInterrupted:
		d.stats.Counter("interrupts").Inc(1)
	}
}

// abandon gives up on an execution that ignored its cancellation. Its context is closed once the
// runtime finally returns, and the session continues on a fresh one.
func (d *dispatcher) abandon(s *session, rc executor.Context, done <-chan result) {
	d.stats.Counter("abandoned").Inc(1)
	d.logger.Warnw("execution did not stop within the grace period, abandoning it", "session", s.id, "grace", d.grace)
	go func() {
		<-done
		if err := rc.Close(); err != nil {
			d.logger.Warnw("closing abandoned runtime context", "session", s.id, "error", err)
		}
	}()

	fresh, err := d.runtime.NewContext(context.Background(), s.id)
	if err != nil {
		d.logger.Errorw("replacing abandoned runtime context", "session", s.id, "error", err)
		s.rc = nil
		return
	}
	s.rc = fresh
}

// rollback restores the state from before an aborted execution, or taints the session when that is
// not possible.
func (d *dispatcher) rollback(s *session, snap executor.Snapshot, cause error) {
	snapper, ok := s.rc.(executor.Snapshotter)
	if !ok || snap == nil {
		d.taint(s, cause)
		return
	}
	if err := snapper.Restore(snap); err != nil {
		d.logger.Warnw("restoring snapshot", "session", s.id, "error", err)
		d.taint(s, cause)
		return
	}
	d.stats.Counter("rollbacks").Inc(1)
	d.logger.Infow("session rolled back after aborted execution", "session", s.id, "cause", cause)
}

func (d *dispatcher) taint(s *session, cause error) {
	s.mu.Lock()
	s.tainted = true
	s.mu.Unlock()
	d.stats.Counter("taints").Inc(1)
	d.logger.Warnw("session tainted", "session", s.id, "cause", cause)
}

// open creates the runtime context of a session and restores its persisted state. The caller holds
// the session's turn.
func (d *dispatcher) open(ctx context.Context, s *session) error {
	if s.rc != nil || s.isTainted() {
		return nil
	}
	rc, err := d.runtime.NewContext(ctx, s.id)
	if err != nil {
		return fmt.Errorf("creating runtime context for session %s: %w", s.id, err)
	}
	s.rc = rc
	if !s.markLoaded() {
		return nil
	}

	state, ok, err := d.store.Get(ctx, s.id)
	if err != nil {
		d.logger.Warnw("loading persisted session", "session", s.id, "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	s.load(state, d.historySize)
	if importer, ok := rc.(executor.StateExporter); ok && len(state.Variables) > 0 {
		if err := importer.Import(state.Variables); err != nil {
			d.logger.Warnw("importing persisted variables", "session", s.id, "error", err)
		}
	}
	d.logger.Infow("session restored", "session", s.id, "executionCount", state.ExecutionCount, "store", d.store.Kind())
	return nil
}

// persist saves a session after an execution. Sessions cleared or discarded meanwhile are not
// written back. The caller holds the session's turn.
func (d *dispatcher) persist(ctx context.Context, s *session) {
	if d.store.Kind() == statestore.KindNone || s.rc == nil || s.isTainted() || s.isClosed() {
		return
	}
	state := s.state(d.clock.Now())
	if exporter, ok := s.rc.(executor.StateExporter); ok {
		vars, err := exporter.Export()
		if err != nil {
			d.logger.Warnw("exporting session variables", "session", s.id, "error", err)
		}
		state.Variables = vars
	}
	if err := d.store.Set(ctx, state); err != nil {
		d.stats.Counter("persist_errors").Inc(1)
		d.logger.Warnw("persisting session", "session", s.id, "error", err)
	}
}

func (d *dispatcher) Interrupt(ctx context.Context, sessionID string) error {
	s := d.lookup(sessionID)
	if s == nil {
		return nil
	}
	if s.interrupt(errors.ErrInterrupted) {
		d.logger.Infow("execution interrupted", "session", sessionID)
	}
	return nil
}

func (d *dispatcher) ClearSession(ctx context.Context, sessionID string) error {
	d.mu.Lock()
	s, ok := d.sessions[sessionID]
	delete(d.sessions, sessionID)
	d.stats.Gauge("sessions").Update(float64(len(d.sessions)))
	d.mu.Unlock()

	var err error
	if ok {
		err = d.discard(ctx, s)
	}
	if serr := d.store.Delete(ctx, sessionID); serr != nil {
		err = multierr.Append(err, fmt.Errorf("deleting persisted session %s: %w", sessionID, serr))
	}
	if err == nil {
		d.logger.Infow("session cleared", "session", sessionID)
	}
	return err
}

// discard closes a session that is no longer in the map. Requests still queued on it are aborted.
func (d *dispatcher) discard(ctx context.Context, s *session) error {
	s.close()
	s.interrupt(errors.ErrInterrupted)

	waitCtx, cancel := context.WithTimeout(ctx, 2*d.grace)
	defer cancel()
	if err := s.turn.Acquire(waitCtx, 1); err != nil {
		// The execution was abandoned or is still winding down; its context is closed by whoever
		// finishes with it.
		return nil
	}
	defer s.turn.Release(1)
	if s.rc == nil {
		return nil
	}
	rc := s.rc
	s.rc = nil
	if err := rc.Close(); err != nil {
		return fmt.Errorf("closing runtime context of session %s: %w", s.id, err)
	}
	return nil
}

// withContext runs f against a session's runtime context if it is idle. Editor queries never wait
// behind an execution.
func (d *dispatcher) withContext(ctx context.Context, sessionID string, f func(executor.Context) error) (bool, error) {
	d.mu.Lock()
	stopped := d.draining || d.closed
	d.mu.Unlock()
	if stopped {
		return false, errors.ErrShuttingDown
	}

	s := d.session(sessionID)
	if !s.turn.TryAcquire(1) {
		return false, nil
	}
	defer s.turn.Release(1)
	if s.isClosed() {
		return false, nil
	}
	if err := d.open(ctx, s); err != nil {
		return false, err
	}
	if s.rc == nil || s.isTainted() {
		return false, nil
	}
	return true, f(s.rc)
}

func (d *dispatcher) Inspect(ctx context.Context, sessionID, code string, cursor int) (data map[string]any, found bool, err error) {
	_, err = d.withContext(ctx, sessionID, func(rc executor.Context) error {
		inspector, ok := rc.(executor.Inspector)
		if !ok {
			return nil
		}
		data, found, err = inspector.Inspect(code, cursor)
		return err
	})
	return data, found, err
}

func (d *dispatcher) Complete(ctx context.Context, sessionID, code string, cursor int) (matches []string, start, end int, err error) {
	start, end = cursor, cursor
	_, err = d.withContext(ctx, sessionID, func(rc executor.Context) error {
		inspector, ok := rc.(executor.Inspector)
		if !ok {
			return nil
		}
		matches, start, end, err = inspector.Complete(code, cursor)
		return err
	})
	return matches, start, end, err
}

func (d *dispatcher) IsComplete(ctx context.Context, sessionID, code string) (status, indent string, err error) {
	status = executor.Unknown
	_, err = d.withContext(ctx, sessionID, func(rc executor.Context) error {
		if inspector, ok := rc.(executor.Inspector); ok {
			status, indent = inspector.IsComplete(code)
		}
		return nil
	})
	return status, indent, err
}

func (d *dispatcher) History(ctx context.Context, sessionID string, n int) ([]entity.HistoryEntry, error) {
	var history []entity.HistoryEntry
	if s := d.lookup(sessionID); s != nil && s.isLoaded() {
		history = s.historyCopy()
	} else {
		state, ok, err := d.store.Get(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("loading history of session %s: %w", sessionID, err)
		}
		if ok {
			history = state.History
		}
	}
	if n > 0 && len(history) > n {
		history = history[len(history)-n:]
	}
	return history, nil
}

func (d *dispatcher) Sessions(ctx context.Context) []entity.SessionInfo {
	d.mu.Lock()
	sessions := make([]*session, 0, len(d.sessions))
	for _, s := range d.sessions {
		sessions = append(sessions, s)
	}
	d.mu.Unlock()

	out := make([]entity.SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

func (d *dispatcher) Drain(ctx context.Context) error {
	d.mu.Lock()
	d.draining = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
	}

	d.logger.Warnw("drain deadline reached, interrupting running executions")
	for _, s := range d.all() {
		s.interrupt(errors.ErrShuttingDown)
	}
	select {
	case <-done:
	case <-time.After(2 * d.grace):
	}
	return fmt.Errorf("draining executions: %w", ctx.Err())
}

func (d *dispatcher) all() []*session {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*session, 0, len(d.sessions))
	for _, s := range d.sessions {
		out = append(out, s)
	}
	return out
}

func (d *dispatcher) Reset(ctx context.Context) error {
	var err error
	for _, s := range d.all() {
		err = multierr.Append(err, d.ClearSession(ctx, s.id))
	}

	d.mu.Lock()
	d.draining = false
	d.mu.Unlock()
	d.logger.Infow("dispatcher reset")
	return err
}

// Close discards every session but keeps their persisted state.
func (d *dispatcher) Close() error {
	d.mu.Lock()
	d.closed = true
	sessions := d.sessions
	d.sessions = make(map[string]*session)
	d.mu.Unlock()

	var err error
	for _, s := range sessions {
		err = multierr.Append(err, d.discard(context.Background(), s))
	}
	d.stats.Gauge("sessions").Update(0)
	return err
}
