package kernel

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	kernelclient "github.com/llmspell/spellkernel/src/kernel/client"
	"github.com/llmspell/spellkernel/src/kernel/controller/debugger"
	"github.com/llmspell/spellkernel/src/kernel/controller/dispatcher"
	"github.com/llmspell/spellkernel/src/kernel/entity"
	"github.com/llmspell/spellkernel/src/kernel/gateway/statestore"
	"github.com/llmspell/spellkernel/src/kernel/internal/clock"
	"github.com/llmspell/spellkernel/src/kernel/internal/connectionfile/connectionfilemock"
	"github.com/llmspell/spellkernel/src/kernel/internal/errors"
	"github.com/llmspell/spellkernel/src/kernel/internal/executor"
	"github.com/llmspell/spellkernel/src/kernel/internal/executor/executortest"
	"github.com/llmspell/spellkernel/src/kernel/internal/fs"
	"github.com/llmspell/spellkernel/src/kernel/internal/protocol"
	"github.com/llmspell/spellkernel/src/kernel/internal/protocol/jupyter"
	"github.com/llmspell/spellkernel/src/kernel/internal/protocol/protocolfx"
	"github.com/llmspell/spellkernel/src/kernel/internal/transport"
	"github.com/llmspell/spellkernel/src/kernel/internal/transport/inproc"
	"github.com/llmspell/spellkernel/src/kernel/repository/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tally "github.com/uber-go/tally/v4"
	"go.uber.org/config"
	"go.uber.org/fx/fxtest"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const _testConfig = `
kernel:
  name: spellkernel-test
  shutdownGracePeriodMs: 500
  sweepIntervalMs: 20
  heartbeatTimeoutMs: 60000
auth:
  enabled: false
  allowRegistration: true
limits:
  maxConcurrentExecutions: 0
  executionTimeoutMs: 0
dispatcher:
  workers: 4
  historySize: 100
  interruptGraceMs: 50
  memorySampleMs: 5
debug:
  stopOnException: false
stateStore:
  kind: none
`

const _authConfig = `
kernel:
  shutdownGracePeriodMs: 500
auth:
  enabled: true
  allowRegistration: true
`

const _waitFor = 5 * time.Second

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type harness struct {
	k          *kernel
	hub        *inproc.Hub
	rt         *executortest.Runtime
	clock      *clock.Manual
	clients    client.Repository
	dispatcher dispatcher.Controller
	stats      tally.TestScope
	logs       *observer.ObservedLogs
}

func newHarness(t *testing.T, yamls ...string) *harness {
	t.Helper()
	sources := []config.YAMLOption{config.Source(strings.NewReader(_testConfig))}
	for _, y := range yamls {
		sources = append(sources, config.Source(strings.NewReader(y)))
	}
	provider, err := config.NewYAML(sources...)
	require.NoError(t, err)

	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core).Sugar()
	stats := tally.NewTestScope("", nil)
	clk := clock.NewManual(time.Now())
	lifecycle := fxtest.NewLifecycle(t)

	clients, err := client.New(client.Params{
		Config:    provider,
		Logger:    logger,
		Stats:     stats,
		Clock:     clk,
		FS:        fs.New(),
		Lifecycle: lifecycle,
	})
	require.NoError(t, err)
	store, err := statestore.New(statestore.Params{
		Config:    provider,
		Lifecycle: lifecycle,
		Logger:    logger,
		FS:        fs.New(),
	})
	require.NoError(t, err)
	debug, err := debugger.New(debugger.Params{Config: provider, Logger: logger, Stats: stats})
	require.NoError(t, err)

	rt := executortest.New()
	d, err := dispatcher.New(dispatcher.Params{
		Config:   provider,
		Logger:   logger,
		Stats:    stats,
		Clock:    clk,
		Runtime:  rt,
		Executor: executor.NewExecutor(),
		Clients:  clients,
		Store:    store,
		Debugger: debug,
	})
	require.NoError(t, err)

	connFile := connectionfilemock.NewMockConnectionFile(gomock.NewController(t))
	connFile.EXPECT().Publish(gomock.Any()).Return(nil)
	connFile.EXPECT().UpdateField(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	proto, err := protocolfx.New(protocolfx.Params{Config: provider})
	require.NoError(t, err)
	hub := inproc.NewHub()
	k, err := New(Params{
		Config:         provider,
		Lifecycle:      lifecycle,
		Logger:         logger,
		Stats:          stats,
		Clock:          clk,
		FS:             fs.New(),
		Transport:      hub.Kernel(),
		Protocol:       proto.Protocol,
		Correlator:     proto.Correlator,
		ConnectionFile: connFile,
		Clients:        clients,
		Dispatcher:     d,
		Debugger:       debug,
		Runtime:        rt,
	})
	require.NoError(t, err)

	lifecycle.RequireStart()
	t.Cleanup(lifecycle.RequireStop)

	return &harness{
		k:          k.(*kernel),
		hub:        hub,
		rt:         rt,
		clock:      clk,
		clients:    clients,
		dispatcher: d,
		stats:      stats,
		logs:       logs,
	}
}

// connect attaches a new client to the kernel. It is closed before the kernel stops.
func (h *harness) connect(t *testing.T, identity string, opts ...kernelclient.Option) *kernelclient.Client {
	t.Helper()
	c := kernelclient.New(h.hub.Client(identity), jupyter.New(nil, protocol.NewCorrelator(64)), opts...)
	require.NoError(t, c.Connect(context.Background(), h.k.Endpoint()))
	t.Cleanup(func() { assert.NoError(t, c.Close()) })
	return c
}

func (h *harness) busy(sessionID string) bool {
	for _, s := range h.dispatcher.Sessions(context.Background()) {
		if s.SessionID == sessionID {
			return s.Busy
		}
	}
	return false
}

func (h *harness) queued(sessionID string) int {
	h.k.mu.Lock()
	defer h.k.mu.Unlock()
	if l, ok := h.k.lanes[sessionID]; ok {
		return len(l.jobs)
	}
	return 0
}

func (h *harness) counter(name string) int64 {
	for _, c := range h.stats.Snapshot().Counters() {
		if c.Name() == name && len(c.Tags()) == 0 {
			return c.Value()
		}
	}
	return 0
}

// iopubSteps keeps the broadcast part of flow.
func iopubSteps(flow []protocol.Step) []protocol.Step {
	var out []protocol.Step
	for _, s := range flow {
		if s.Channel == entity.ChannelIOPub {
			out = append(out, s)
		}
	}
	return out
}

func observedIOPub(resp *kernelclient.Response) []protocol.Step {
	var out []protocol.Step
	for _, s := range resp.Steps {
		if s.Channel == entity.ChannelIOPub {
			out = append(out, s)
		}
	}
	return out
}

func nextDebugEvent(t *testing.T, c *kernelclient.Client, name string) protocol.DebugEventContent {
	t.Helper()
	timeout := time.After(_waitFor)
	for {
		select {
		case msg := <-c.Events():
			if msg.Header.MsgType != protocol.DebugEvent {
				continue
			}
			var ev protocol.DebugEventContent
			require.NoError(t, msg.DecodeContent(&ev))
			if ev.Event == name {
				return ev
			}
		case <-timeout:
			require.FailNow(t, "timed out waiting for debug event", name)
		}
	}
}

func async[T any](f func() T) <-chan T {
	out := make(chan T, 1)
	go func() { out <- f() }()
	return out
}

func TestExecute(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	c := h.connect(t, "alice-1", kernelclient.WithClientID("alice"))

	ex, err := c.Execute(ctx, "x = 41\nprint hello\neprint careful\ndisplay chart\nx", kernelclient.ExecuteOptions{})
	require.NoError(t, err)

	assert.Equal(t, protocol.StatusOK, ex.Reply.Status)
	assert.Equal(t, 1, ex.Reply.ExecutionCount)
	assert.Equal(t, 1, ex.Count)
	assert.Equal(t, "hello\n", ex.Stdout)
	assert.Equal(t, "careful\n", ex.Stderr)
	assert.Equal(t, map[string]any{"text/plain": "41"}, ex.Result)
	assert.Equal(t, []map[string]any{{"text/plain": "chart"}}, ex.Displays)
	assert.Nil(t, ex.Error)

	flow := protocol.DefaultExecutionFlow(protocol.ExecuteRequest)
	assert.NoError(t, protocol.CheckSequence(iopubSteps(flow), entity.ChannelShell, observedIOPub(ex.Response)))
	assert.Equal(t, protocol.ExecuteReply, ex.Response.Reply.Header.MsgType)
	assert.Equal(t, ex.Response.Reply.Parent.MsgID, ex.Response.IOPub[0].Parent.MsgID)

	ex, err = c.Execute(ctx, "x", kernelclient.ExecuteOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, ex.Reply.ExecutionCount)
	assert.Equal(t, map[string]any{"text/plain": "41"}, ex.Result)

	assert.Positive(t, h.logs.FilterMessage("kernel started").Len())
}

func TestExecuteErrors(t *testing.T) {
	tests := []struct {
		name      string
		setup     string
		code      string
		opts      kernelclient.ExecuteOptions
		wantEname string
		wantX     string
	}{
		{
			name:      "script error",
			setup:     "x = 1",
			code:      "x = 2\nfail ValueError bad input",
			wantEname: "ValueError",
			wantX:     "2",
		},
		{
			name:      "timeout rolls back",
			setup:     "x = 1",
			code:      "x = 2\nsleep 2s",
			opts:      kernelclient.ExecuteOptions{TimeoutMs: 50},
			wantEname: errors.NameTimeout,
			wantX:     "1",
		},
		{
			name:      "undefined name",
			setup:     "x = 1",
			code:      "y",
			wantEname: "NameError",
			wantX:     "1",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t)
			c := h.connect(t, "alice-1")

			_, err := c.Execute(ctx, tt.setup, kernelclient.ExecuteOptions{})
			require.NoError(t, err)

			ex, err := c.Execute(ctx, tt.code, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, protocol.StatusError, ex.Reply.Status)
			assert.Equal(t, tt.wantEname, ex.Reply.Ename)
			require.NotNil(t, ex.Error)
			assert.Equal(t, tt.wantEname, ex.Error.Ename)

			flow := protocol.DefaultExecutionFlow(protocol.ExecuteRequest)
			assert.NoError(t, protocol.CheckSequence(iopubSteps(flow), entity.ChannelShell, observedIOPub(ex.Response)))

			ex, err = c.Execute(ctx, "x", kernelclient.ExecuteOptions{})
			require.NoError(t, err)
			assert.Equal(t, map[string]any{"text/plain": tt.wantX}, ex.Result)
		})
	}
}

func TestExecuteSilent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	c := h.connect(t, "alice-1")

	ex, err := c.Execute(ctx, "x = 3\nprint quiet\nx", kernelclient.ExecuteOptions{Silent: true})
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusOK, ex.Reply.Status)
	assert.Empty(t, ex.Stdout)
	assert.Nil(t, ex.Result)
	assert.Equal(t, []protocol.Step{
		{Channel: entity.ChannelIOPub, Type: protocol.Status},
		{Channel: entity.ChannelIOPub, Type: protocol.Status},
	}, observedIOPub(ex.Response))

	history, err := c.History(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestSessionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.connect(t, "alice-1", kernelclient.WithClientID("alice"))
	b := h.connect(t, "bob-1", kernelclient.WithClientID("bob"))

	_, err := a.Execute(ctx, "x = 1", kernelclient.ExecuteOptions{})
	require.NoError(t, err)
	ex, err := b.Execute(ctx, "x", kernelclient.ExecuteOptions{})
	require.NoError(t, err)
	assert.Equal(t, "NameError", ex.Reply.Ename)
	assert.Len(t, h.dispatcher.Sessions(ctx), 2)
}

func TestSessionOrdering(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	c := h.connect(t, "alice-1")

	var wg sync.WaitGroup
	results := make([]*kernelclient.Execution, 3)
	first := async(func() error {
		ex, err := c.Execute(ctx, "x = 1\nsleep 100ms", kernelclient.ExecuteOptions{})
		results[0] = ex
		return err
	})
	require.Eventually(t, func() bool { return h.busy(c.Session()) }, _waitFor, time.Millisecond)
	for i, code := range []string{"x = 2", "x"} {
		i, code := i, code
		wg.Add(1)
		go func() {
			defer wg.Done()
			ex, err := c.Execute(ctx, code, kernelclient.ExecuteOptions{})
			assert.NoError(t, err)
			results[i+1] = ex
		}()
		require.Eventually(t, func() bool { return h.queued(c.Session()) == i+1 }, _waitFor, time.Millisecond)
	}
	require.NoError(t, <-first)
	wg.Wait()

	assert.Equal(t, 1, results[0].Reply.ExecutionCount)
	assert.Equal(t, 2, results[1].Reply.ExecutionCount)
	assert.Equal(t, 3, results[2].Reply.ExecutionCount)
	assert.Equal(t, map[string]any{"text/plain": "2"}, results[2].Result)
	assert.False(t, h.rt.Latest(c.Session()).Overlapped())
}

func TestInterrupt(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	c := h.connect(t, "alice-1")

	done := async(func() *kernelclient.Execution {
		ex, err := c.Execute(ctx, "x = 1\nsleep 10s", kernelclient.ExecuteOptions{})
		assert.NoError(t, err)
		return ex
	})
	require.Eventually(t, func() bool { return h.busy(c.Session()) }, _waitFor, time.Millisecond)

	// The session turns busy just before the cell starts, so interrupt until it lands.
	var interrupted *kernelclient.Execution
	require.Eventually(t, func() bool {
		assert.NoError(t, c.Interrupt(ctx))
		select {
		case interrupted = <-done:
			return true
		case <-time.After(10 * time.Millisecond):
			return false
		}
	}, _waitFor, time.Millisecond)
	require.NotNil(t, interrupted)
	assert.Equal(t, protocol.StatusError, interrupted.Reply.Status)
	assert.Equal(t, errors.NameInterrupted, interrupted.Reply.Ename)

	ex, err := c.Execute(ctx, "x", kernelclient.ExecuteOptions{})
	require.NoError(t, err)
	assert.Equal(t, "NameError", ex.Reply.Ename)
}

func TestInput(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	var prompts []string
	c := h.connect(t, "alice-1", kernelclient.WithInput(func(prompt string, password bool) (string, error) {
		prompts = append(prompts, prompt)
		return "42", nil
	}))
	ex, err := c.Execute(ctx, "input your number\nanswer", kernelclient.ExecuteOptions{})
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusOK, ex.Reply.Status)
	assert.Equal(t, map[string]any{"text/plain": "42"}, ex.Result)
	assert.Equal(t, []string{"your number"}, prompts)

	other := h.connect(t, "bob-1", kernelclient.WithClientID("bob"))
	ex, err = other.Execute(ctx, "input anything", kernelclient.ExecuteOptions{})
	require.NoError(t, err)
	assert.Equal(t, "InputError", ex.Reply.Ename)
}

func TestInformationalRequests(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	c := h.connect(t, "alice-1")

	info, err := c.KernelInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusOK, info.Status)
	assert.Equal(t, protocol.Version, info.ProtocolVersion)
	assert.Equal(t, "fake", info.LanguageInfo.Name)
	assert.Equal(t, ".fake", info.LanguageInfo.FileExtension)
	assert.True(t, info.Debugger)

	_, err = c.Execute(ctx, "value = 1", kernelclient.ExecuteOptions{})
	require.NoError(t, err)
	_, err = c.Execute(ctx, "print two", kernelclient.ExecuteOptions{})
	require.NoError(t, err)

	tests := []struct {
		name    string
		t       protocol.MessageType
		content any
		check   func(t *testing.T, resp *kernelclient.Response)
	}{
		{
			name:    "inspect",
			t:       protocol.InspectRequest,
			content: protocol.InspectRequestContent{Code: "value", CursorPos: 2},
			check: func(t *testing.T, resp *kernelclient.Response) {
				var out protocol.InspectReplyContent
				require.NoError(t, resp.Reply.DecodeContent(&out))
				assert.True(t, out.Found)
				assert.Equal(t, "value: int = 1", out.Data["text/plain"])
			},
		},
		{
			name:    "complete",
			t:       protocol.CompleteRequest,
			content: protocol.CompleteRequestContent{Code: "va", CursorPos: 2},
			check: func(t *testing.T, resp *kernelclient.Response) {
				var out protocol.CompleteReplyContent
				require.NoError(t, resp.Reply.DecodeContent(&out))
				assert.Equal(t, []string{"value"}, out.Matches)
				assert.Equal(t, 0, out.CursorStart)
				assert.Equal(t, 2, out.CursorEnd)
			},
		},
		{
			name:    "is complete",
			t:       protocol.IsCompleteRequest,
			content: protocol.IsCompleteRequestContent{Code: "x = \\"},
			check: func(t *testing.T, resp *kernelclient.Response) {
				var out protocol.IsCompleteReplyContent
				require.NoError(t, resp.Reply.DecodeContent(&out))
				assert.Equal(t, executor.Incomplete, out.Status)
			},
		},
		{
			name:    "history",
			t:       protocol.HistoryRequest,
			content: protocol.HistoryRequestContent{HistAccessType: "tail", N: 1},
			check: func(t *testing.T, resp *kernelclient.Response) {
				var out protocol.HistoryReplyContent
				require.NoError(t, resp.Reply.DecodeContent(&out))
				require.Len(t, out.History, 1)
				assert.Equal(t, []any{c.Session(), float64(2), "print two"}, out.History[0])
			},
		},
		{
			name:    "comm info",
			t:       protocol.CommInfoRequest,
			content: protocol.CommInfoRequestContent{},
			check: func(t *testing.T, resp *kernelclient.Response) {
				var out protocol.CommInfoReplyContent
				require.NoError(t, resp.Reply.DecodeContent(&out))
				assert.Empty(t, out.Comms)
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			resp, err := c.Request(ctx, entity.ChannelShell, tt.t, tt.content)
			require.NoError(t, err)
			require.NoError(t, resp.Error())
			assert.Equal(t, tt.t.ReplyType(), resp.Reply.Header.MsgType)
			assert.NoError(t, protocol.CheckSequence(iopubSteps(protocol.DefaultExecutionFlow(tt.t)), entity.ChannelShell, observedIOPub(resp)))
			tt.check(t, resp)
		})
	}
}

func TestCommOpenIsClosed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	c := h.connect(t, "alice-1")

	resp, err := c.Request(ctx, entity.ChannelShell, protocol.CommOpen, protocol.CommContent{CommID: "c1", TargetName: "widgets"})
	require.NoError(t, err)
	assert.Nil(t, resp.Reply)
	assert.NoError(t, protocol.CheckSequence(protocol.DefaultExecutionFlow(protocol.CommOpen), entity.ChannelShell, resp.Steps))

	var closed protocol.CommContent
	require.Len(t, resp.IOPub, 3)
	require.NoError(t, resp.IOPub[1].DecodeContent(&closed))
	assert.Equal(t, "c1", closed.CommID)
}

func TestUnsupportedRequest(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	c := h.connect(t, "alice-1")

	resp, err := c.Request(ctx, entity.ChannelShell, protocol.MessageType("frobnicate_request"), nil)
	require.NoError(t, err)
	var replyErr *kernelclient.ReplyError
	require.ErrorAs(t, resp.Error(), &replyErr)
	assert.Equal(t, errors.NameUnsupportedMessage, replyErr.Name)

	// The kernel keeps serving.
	_, err = c.KernelInfo(ctx)
	assert.NoError(t, err)
}

func TestAuthentication(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, _authConfig)
	c := h.connect(t, "alice-1")

	ex, err := c.Execute(ctx, "x = 1", kernelclient.ExecuteOptions{})
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusError, ex.Reply.Status)
	assert.Equal(t, errors.NameAuth, ex.Reply.Ename)
	assert.Empty(t, h.dispatcher.Sessions(ctx))
	assert.Equal(t, int64(1), h.counter("kernel.auth_failures"))

	reg, err := c.Register(ctx, protocol.RegisterClientRequestContent{ClientID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, "alice", reg.ClientID)
	assert.NotEmpty(t, reg.Token)
	assert.Equal(t, reg.Token, c.Token())

	ex, err = c.Execute(ctx, "x = 1\nx", kernelclient.ExecuteOptions{})
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusOK, ex.Reply.Status)

	forged := h.connect(t, "mallory-1", kernelclient.WithToken("not-a-token"), kernelclient.WithSession(c.Session()))
	ex, err = forged.Execute(ctx, "x = 2", kernelclient.ExecuteOptions{})
	require.NoError(t, err)
	assert.Equal(t, errors.NameAuth, ex.Reply.Ename)

	resp, err := c.Request(ctx, entity.ChannelControl, protocol.DisconnectRequest, protocol.DisconnectRequestContent{ClientID: "bob"})
	require.NoError(t, err)
	var replyErr *kernelclient.ReplyError
	require.ErrorAs(t, resp.Error(), &replyErr)
	assert.Equal(t, errors.NameAuth, replyErr.Name)

	require.NoError(t, c.Disconnect(ctx))
	_, err = h.clients.Get(ctx, "alice")
	assert.Error(t, err)

	ex, err = c.Execute(ctx, "x", kernelclient.ExecuteOptions{})
	require.NoError(t, err)
	assert.Equal(t, errors.NameAuth, ex.Reply.Ename)
}

func TestRepliesOutliveCorrelationWindow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "kernel:\n  correlationWindow: 4\n")
	c := h.connect(t, "alice-1")

	done := async(func() *kernelclient.Execution {
		ex, err := c.Execute(ctx, "x = 1\nsleep 100ms\nx", kernelclient.ExecuteOptions{})
		assert.NoError(t, err)
		return ex
	})
	require.Eventually(t, func() bool { return h.busy(c.Session()) }, _waitFor, time.Millisecond)
	for i := 0; i < 10; i++ {
		_, err := c.KernelInfo(ctx)
		require.NoError(t, err)
	}

	var ex *kernelclient.Execution
	select {
	case ex = <-done:
	case <-time.After(_waitFor):
		require.FailNow(t, "execute reply never arrived")
	}
	require.NotNil(t, ex)
	assert.Equal(t, protocol.StatusOK, ex.Reply.Status)
	assert.Equal(t, map[string]any{"text/plain": "1"}, ex.Result)
	assert.Zero(t, h.counter("kernel.encode_errors"))
}

func TestRegistrationKeepsExistingClient(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, _authConfig)
	alice := h.connect(t, "alice-1")
	_, err := alice.Register(ctx, protocol.RegisterClientRequestContent{ClientID: "alice"})
	require.NoError(t, err)

	mallory := h.connect(t, "mallory-1")
	_, err = mallory.Register(ctx, protocol.RegisterClientRequestContent{ClientID: "alice"})
	var replyErr *kernelclient.ReplyError
	require.ErrorAs(t, err, &replyErr)
	assert.Equal(t, errors.NameAuth, replyErr.Name)
	assert.Empty(t, mallory.Token())
	assert.Equal(t, int64(1), h.counter("kernel.auth_failures"))

	ex, err := alice.Execute(ctx, "x = 1\nx", kernelclient.ExecuteOptions{})
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusOK, ex.Reply.Status)
}

func TestRegistrationDisabled(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, _authConfig, "auth:\n  allowRegistration: false\n")
	c := h.connect(t, "alice-1")

	_, err := c.Register(ctx, protocol.RegisterClientRequestContent{ClientID: "alice"})
	var replyErr *kernelclient.ReplyError
	require.ErrorAs(t, err, &replyErr)
	assert.Equal(t, errors.NameAuth, replyErr.Name)
	assert.Empty(t, c.Token())
}

func TestRegistrationLimits(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	c := h.connect(t, "alice-1", kernelclient.WithClientID("alice"))

	_, err := c.Register(ctx, protocol.RegisterClientRequestContent{ClientID: "alice", ExecutionTimeoutMs: 50})
	require.NoError(t, err)
	cs, err := h.clients.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 50*time.Millisecond, cs.Limits.ExecutionTimeout)

	ex, err := c.Execute(ctx, "sleep 2s", kernelclient.ExecuteOptions{})
	require.NoError(t, err)
	assert.Equal(t, errors.NameTimeout, ex.Reply.Ename)
}

func TestClearSessionAbortsQueuedWork(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	c := h.connect(t, "alice-1")

	_, err := c.Execute(ctx, "x = 1", kernelclient.ExecuteOptions{})
	require.NoError(t, err)

	running := async(func() *kernelclient.Execution {
		ex, err := c.Execute(ctx, "sleep 10s", kernelclient.ExecuteOptions{})
		assert.NoError(t, err)
		return ex
	})
	require.Eventually(t, func() bool { return h.busy(c.Session()) }, _waitFor, time.Millisecond)
	queued := async(func() *kernelclient.Execution {
		ex, err := c.Execute(ctx, "x = 2", kernelclient.ExecuteOptions{})
		assert.NoError(t, err)
		return ex
	})
	require.Eventually(t, func() bool { return h.queued(c.Session()) == 1 }, _waitFor, time.Millisecond)

	require.NoError(t, c.ClearSession(ctx))

	ex := <-queued
	require.NotNil(t, ex)
	assert.Equal(t, protocol.StatusAborted, ex.Reply.Status)
	assert.NoError(t, protocol.CheckSequence([]protocol.Step{
		{Channel: entity.ChannelIOPub, Type: protocol.Status},
		{Channel: entity.ChannelIOPub, Type: protocol.Status},
	}, entity.ChannelShell, observedIOPub(ex.Response)))

	ex = <-running
	require.NotNil(t, ex)
	assert.NotEqual(t, protocol.StatusOK, ex.Reply.Status)

	ex, err = c.Execute(ctx, "x", kernelclient.ExecuteOptions{})
	require.NoError(t, err)
	assert.Equal(t, "NameError", ex.Reply.Ename)
}

func TestDebugBreakpoint(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	c := h.connect(t, "alice-1")

	reply, err := c.Debug(ctx, 1, CommandInitialize, nil)
	require.NoError(t, err)
	assert.True(t, reply.Success)
	assert.Equal(t, 1, reply.RequestSeq)

	reply, err = c.Debug(ctx, 2, CommandAttach, nil)
	require.NoError(t, err)
	require.True(t, reply.Success, reply.Message)

	code := "a = 1\nprint hi\nb = 2\nb"
	reply, err = c.Debug(ctx, 3, CommandDumpCell, map[string]any{"code": code})
	require.NoError(t, err)
	require.True(t, reply.Success, reply.Message)
	path := reply.Body.(map[string]any)["sourcePath"].(string)
	assert.Equal(t, ".fake", filepath.Ext(path))
	t.Cleanup(func() { os.Remove(path) })

	reply, err = c.Debug(ctx, 4, CommandSetBreakpoints, map[string]any{
		"source":      map[string]any{"path": path},
		"breakpoints": []map[string]any{{"line": 2}},
	})
	require.NoError(t, err)
	require.True(t, reply.Success, reply.Message)
	bps := reply.Body.(map[string]any)["breakpoints"].([]any)
	require.Len(t, bps, 1)
	assert.Equal(t, true, bps[0].(map[string]any)["verified"])

	done := async(func() *kernelclient.Execution {
		ex, err := c.Execute(ctx, code, kernelclient.ExecuteOptions{})
		assert.NoError(t, err)
		return ex
	})
	stopped := nextDebugEvent(t, c, debugger.EventStopped)
	assert.Equal(t, "breakpoint", stopped.Body.(map[string]any)["reason"])

	reply, err = c.Debug(ctx, 5, CommandStackTrace, nil)
	require.NoError(t, err)
	require.True(t, reply.Success, reply.Message)
	frames := reply.Body.(map[string]any)["stackFrames"].([]any)
	require.NotEmpty(t, frames)
	assert.Equal(t, float64(2), frames[0].(map[string]any)["line"])

	reply, err = c.Debug(ctx, 6, CommandEvaluate, map[string]any{"expression": "a + 1", "frameId": 0})
	require.NoError(t, err)
	require.True(t, reply.Success, reply.Message)
	assert.Equal(t, "2", reply.Body.(map[string]any)["result"])

	reply, err = c.Debug(ctx, 7, CommandDebugInfo, nil)
	require.NoError(t, err)
	info := reply.Body.(map[string]any)
	assert.Equal(t, true, info["isStarted"])
	assert.Equal(t, []any{float64(_threadID)}, info["stoppedThreads"])

	reply, err = c.Debug(ctx, 8, CommandContinue, nil)
	require.NoError(t, err)
	require.True(t, reply.Success, reply.Message)

	select {
	case ex := <-done:
		require.NotNil(t, ex)
		assert.Equal(t, protocol.StatusOK, ex.Reply.Status)
		assert.Equal(t, "hi\n", ex.Stdout)
		assert.Equal(t, map[string]any{"text/plain": "2"}, ex.Result)
	case <-time.After(_waitFor):
		require.FailNow(t, "execution did not resume")
	}

	reply, err = c.Debug(ctx, 9, CommandDisconnect, nil)
	require.NoError(t, err)
	assert.True(t, reply.Success, reply.Message)
	assert.Nil(t, h.k.debugger.Hooks(c.Session()))
}

func TestDebugLaunch(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	c := h.connect(t, "alice-1")

	program := filepath.Join(t.TempDir(), "prog.fake")
	require.NoError(t, os.WriteFile(program, []byte("print launched\n"), 0o644))

	reply, err := c.Debug(ctx, 1, CommandLaunch, map[string]any{"program": program})
	require.NoError(t, err)
	require.True(t, reply.Success, reply.Message)

	other := h.connect(t, "bob-1", kernelclient.WithClientID("bob"))
	reply, err = other.Debug(ctx, 1, CommandLaunch, map[string]any{"program": program})
	require.NoError(t, err)
	assert.False(t, reply.Success)
	assert.Contains(t, reply.Message, errors.ErrAlreadyDebugging.Error())

	reply, err = c.Debug(ctx, 2, CommandConfigurationDone, nil)
	require.NoError(t, err)
	require.True(t, reply.Success, reply.Message)

	exited := nextDebugEvent(t, c, "exited")
	assert.Equal(t, float64(0), exited.Body.(map[string]any)["exitCode"])
	nextDebugEvent(t, c, debugger.EventTerminated)
	assert.Nil(t, h.k.debugger.Hooks(c.Session()))
}

func TestDebugErrors(t *testing.T) {
	tests := []struct {
		name    string
		command string
		args    any
		want    string
	}{
		{name: "unknown command", command: "rewind", want: errors.ErrUnsupportedMessage.Error()},
		{name: "continue without session", command: CommandContinue, want: errors.ErrNotDebugging.Error()},
		{name: "bad arguments", command: CommandSetBreakpoints, args: []int{1}, want: "invalid setBreakpoints arguments"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t)
			c := h.connect(t, "alice-1")

			reply, err := c.Debug(ctx, 1, tt.command, tt.args)
			require.NoError(t, err)
			assert.False(t, reply.Success)
			assert.Equal(t, tt.command, reply.Command)
			assert.Contains(t, reply.Message, tt.want)
		})
	}
}

func TestShutdown(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	c := h.connect(t, "alice-1")

	out, err := c.Shutdown(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusOK, out.Status)
	assert.False(t, out.Restart)

	select {
	case <-h.k.Done():
	case <-time.After(_waitFor):
		require.FailNow(t, "kernel did not finish")
	}
}

func TestRestart(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	c := h.connect(t, "alice-1")

	_, err := c.Execute(ctx, "x = 1", kernelclient.ExecuteOptions{})
	require.NoError(t, err)

	out, err := c.Shutdown(ctx, true)
	require.NoError(t, err)
	assert.True(t, out.Restart)
	require.Eventually(t, func() bool { return h.counter("kernel.restarts") == 1 }, _waitFor, time.Millisecond)

	select {
	case <-h.k.Done():
		require.FailNow(t, "restart stopped the kernel")
	default:
	}
	ex, err := c.Execute(ctx, "x", kernelclient.ExecuteOptions{})
	require.NoError(t, err)
	assert.Equal(t, "NameError", ex.Reply.Ename)
	assert.Equal(t, 1, ex.Reply.ExecutionCount)
}

func TestLostPeerIsReleased(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	c := kernelclient.New(h.hub.Client("alice-1"), jupyter.New(nil, protocol.NewCorrelator(64)), kernelclient.WithClientID("alice"))
	require.NoError(t, c.Connect(ctx, h.k.Endpoint()))

	reply, err := c.Debug(ctx, 1, CommandAttach, nil)
	require.NoError(t, err)
	require.True(t, reply.Success, reply.Message)
	require.NotNil(t, h.k.debugger.Hooks(c.Session()))

	require.NoError(t, c.Close())
	require.Eventually(t, func() bool {
		_, err := h.clients.Get(ctx, "alice")
		return err != nil
	}, _waitFor, time.Millisecond)
	assert.Nil(t, h.k.debugger.Hooks(c.Session()))
	assert.Equal(t, int64(1), h.counter("kernel.peers_lost"))
}

func TestReconnectKeepsSessionState(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	first := kernelclient.New(h.hub.Client("alice-1"), jupyter.New(nil, protocol.NewCorrelator(64)), kernelclient.WithClientID("alice"))
	require.NoError(t, first.Connect(ctx, h.k.Endpoint()))

	ex, err := first.Execute(ctx, "x = 1", kernelclient.ExecuteOptions{})
	require.NoError(t, err)
	require.Equal(t, protocol.StatusOK, ex.Reply.Status)
	require.NoError(t, first.Close())
	require.Eventually(t, func() bool { return h.counter("kernel.peers_lost") == 1 }, _waitFor, time.Millisecond)

	again := h.connect(t, "alice-2", kernelclient.WithClientID("alice"), kernelclient.WithSession(first.Session()))
	ex, err = again.Execute(ctx, "x", kernelclient.ExecuteOptions{})
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusOK, ex.Reply.Status)
	assert.Equal(t, map[string]any{"text/plain": "1"}, ex.Result)
	assert.Len(t, h.dispatcher.Sessions(ctx), 1)
}

func TestIdleClientsExpire(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	c := h.connect(t, "alice-1", kernelclient.WithClientID("alice"))

	_, err := c.KernelInfo(ctx)
	require.NoError(t, err)
	_, err = h.clients.Get(ctx, "alice")
	require.NoError(t, err)

	h.clock.Advance(2 * time.Minute)
	require.Eventually(t, func() bool {
		_, err := h.clients.Get(ctx, "alice")
		return err != nil
	}, _waitFor, 5*time.Millisecond)
	assert.Positive(t, h.logs.FilterMessage("client expired").Len())
}

func TestUndecodableMessageGetsErrorReply(t *testing.T) {
	tests := []struct {
		name   string
		frames [][]byte
		// ch is where the error is expected: back to the sender, or iopub when the sender cannot be
		// told apart from the payload.
		ch entity.Channel
	}{
		{
			name: "malformed header",
			frames: [][]byte{
				[]byte(jupyter.Delimiter), {}, []byte("not json"), []byte("{}"), []byte("{}"), []byte("{}"),
			},
			ch: entity.ChannelShell,
		},
		{
			name:   "missing delimiter",
			frames: [][]byte{[]byte("garbage")},
			ch:     entity.ChannelIOPub,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t)
			raw := h.hub.Client("raw-1")
			require.NoError(t, raw.Connect(ctx, h.k.Endpoint()))
			t.Cleanup(func() { raw.Close() })

			require.NoError(t, raw.Send(entity.ChannelShell, tt.frames))
			msg := recvRaw(t, raw, tt.ch)
			assert.Equal(t, protocol.Error, msg.Header.MsgType)
			var content protocol.ErrorContent
			require.NoError(t, msg.DecodeContent(&content))
			assert.Equal(t, protocol.StatusError, content.Status)
			assert.Equal(t, errors.NameProtocolDecode, content.Ename)
			assert.Equal(t, 1, h.logs.FilterMessage("rejecting undecodable message").Len())

			c := h.connect(t, "alice-1")
			_, err := c.KernelInfo(ctx)
			assert.NoError(t, err)
		})
	}
}

// recvRaw waits for one message on ch of a transport that has no client reading it.
func recvRaw(t *testing.T, tr transport.Transport, ch entity.Channel) *protocol.Message {
	t.Helper()
	var frames [][]byte
	require.Eventually(t, func() bool {
		f, ok, err := tr.Recv(ch)
		require.NoError(t, err)
		frames = f
		return ok
	}, _waitFor, time.Millisecond)
	msg, err := jupyter.New(nil, nil).Decode(ch, frames)
	require.NoError(t, err)
	return msg
}

func TestRequestTimeout(t *testing.T) {
	tests := []struct {
		name     string
		metadata string
		want     time.Duration
	}{
		{name: "absent", metadata: `{}`},
		{name: "set", metadata: `{"timeout_ms": 250}`, want: 250 * time.Millisecond},
		{name: "negative", metadata: `{"timeout_ms": -1}`},
		{name: "wrong type", metadata: `{"timeout_ms": "soon"}`},
		{name: "malformed", metadata: `[`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, requestTimeout(&protocol.Message{Metadata: []byte(tt.metadata)}))
		})
	}
}
