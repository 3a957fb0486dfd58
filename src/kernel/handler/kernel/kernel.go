// Package kernel serves clients over one transport and one wire protocol. It routes every request
// to the dispatcher, the debug bridge or the client registry and publishes the status and output
// messages that accompany them.
package kernel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/uuid"
	"github.com/llmspell/spellkernel/src/kernel/controller/debugger"
	"github.com/llmspell/spellkernel/src/kernel/controller/dispatcher"
	"github.com/llmspell/spellkernel/src/kernel/entity"
	"github.com/llmspell/spellkernel/src/kernel/internal/clock"
	"github.com/llmspell/spellkernel/src/kernel/internal/connectionfile"
	"github.com/llmspell/spellkernel/src/kernel/internal/core"
	"github.com/llmspell/spellkernel/src/kernel/internal/errors"
	"github.com/llmspell/spellkernel/src/kernel/internal/executor"
	"github.com/llmspell/spellkernel/src/kernel/internal/fs"
	"github.com/llmspell/spellkernel/src/kernel/internal/protocol"
	"github.com/llmspell/spellkernel/src/kernel/internal/transport"
	"github.com/llmspell/spellkernel/src/kernel/repository/client"
	tally "github.com/uber-go/tally/v4"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	_implementation = "spellkernel"
	_username       = "kernel"

	_defaultGracePeriod   = 5 * time.Second
	_defaultSweepInterval = 5 * time.Second
	// _eventBatch bounds how many debug events are forwarded per loop iteration.
	_eventBatch = 64
)

// Version is reported in kernel_info replies.
const Version = "0.1.0"

// Kernel is a running kernel.
type Kernel interface {
	// ID identifies this kernel instance in logs and the connection file.
	ID() string
	// Endpoint returns the endpoint bound at start.
	Endpoint() entity.ConnectionEndpoint
	// Done is closed once a client asked the kernel to shut down or the transport failed.
	Done() <-chan struct{}
}

// Params are the inputs to New.
type Params struct {
	fx.In

	Config     config.Provider
	Lifecycle  fx.Lifecycle
	Shutdowner fx.Shutdowner `optional:"true"`
	Logger     *zap.SugaredLogger
	Stats      tally.Scope
	Clock      clock.Clock
	FS         fs.KernelFS

	Transport      transport.Transport
	Endpoint       entity.ConnectionEndpoint
	Protocol       protocol.Protocol
	Correlator     *protocol.Correlator `optional:"true"`
	ConnectionFile connectionfile.ConnectionFile
	Clients        client.Repository
	Dispatcher     dispatcher.Controller
	Debugger       debugger.Controller
	Runtime        executor.Runtime
}

type kernel struct {
	id         string
	cfg        core.KernelConfig
	logger     *zap.SugaredLogger
	stats      tally.Scope
	clock      clock.Clock
	fs         fs.KernelFS
	shutdowner fx.Shutdowner

	transport  transport.Transport
	protocol   protocol.Protocol
	correlator *protocol.Correlator
	connFile   connectionfile.ConnectionFile
	clients    client.Repository
	dispatcher dispatcher.Controller
	debugger   debugger.Controller
	runtime    executor.Runtime

	endpoint entity.ConnectionEndpoint
	grace    time.Duration
	sweep    time.Duration

	// ctx is the parent of every execution; it outlives the loop so in-flight work can drain.
	ctx       context.Context
	cancel    context.CancelFunc
	stopLoop  context.CancelFunc
	loopDone  chan struct{}
	done      chan struct{}
	doneOnce  sync.Once
	work      sync.WaitGroup
	sendMu    sync.Mutex
	debugSeq  atomic.Int64
	mu        sync.Mutex
	peers     map[string]string
	lanes     map[string]*lane
	inputs    map[string]chan string
	debugReqs map[string]*protocol.Message
}

// New creates the kernel and registers its lifecycle. The transport is bound on start.
func New(p Params) (Kernel, error) {
	var cfg core.KernelConfig
	if err := p.Config.Get(core.KernelConfigKey).Populate(&cfg); err != nil {
		return nil, fmt.Errorf("getting config field %q: %w", core.KernelConfigKey, err)
	}
	if cfg.Name == "" {
		cfg.Name = _implementation
	}

	id := uuid.Must(uuid.NewV4()).String()
	ctx, cancel := context.WithCancel(context.Background())
	k := &kernel{
		id:         id,
		cfg:        cfg,
		logger:     p.Logger.With("kernel", id),
		stats:      p.Stats.SubScope("kernel"),
		clock:      p.Clock,
		fs:         p.FS,
		shutdowner: p.Shutdowner,
		transport:  p.Transport,
		protocol:   p.Protocol,
		correlator: p.Correlator,
		connFile:   p.ConnectionFile,
		clients:    p.Clients,
		dispatcher: p.Dispatcher,
		debugger:   p.Debugger,
		runtime:    p.Runtime,
		endpoint:   p.Endpoint,
		grace:      millis(cfg.ShutdownGracePeriodMs, _defaultGracePeriod),
		sweep:      millis(cfg.SweepIntervalMs, _defaultSweepInterval),
		ctx:        ctx,
		cancel:     cancel,
		loopDone:   make(chan struct{}),
		done:       make(chan struct{}),
		peers:      make(map[string]string),
		lanes:      make(map[string]*lane),
		inputs:     make(map[string]chan string),
		debugReqs:  make(map[string]*protocol.Message),
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: k.start,
		OnStop:  k.stop,
	})
	return k, nil
}

func millis(ms int, def time.Duration) time.Duration {
	if ms <= 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

func (k *kernel) ID() string { return k.id }

func (k *kernel) Endpoint() entity.ConnectionEndpoint {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.endpoint
}

func (k *kernel) Done() <-chan struct{} { return k.done }

func (k *kernel) start(ctx context.Context) error {
	want := k.endpoint
	want.Key = k.cfg.Key
	want.KernelName = k.cfg.Name
	if want.SignatureScheme == "" {
		want.SignatureScheme = entity.SignatureScheme
	}
	bound, err := k.transport.Bind(ctx, want)
	if err != nil {
		return fmt.Errorf("binding transport: %w", err)
	}
	k.mu.Lock()
	k.endpoint = bound
	k.mu.Unlock()

	if err := k.connFile.Publish(bound); err != nil {
		return multierr.Append(fmt.Errorf("publishing connection file: %w", err), k.transport.Close())
	}
	if err := multierr.Combine(
		k.connFile.UpdateField("kernel_id", k.id),
		k.connFile.UpdateField("protocol", k.protocol.Name()),
	); err != nil {
		k.logger.Warnw("updating connection file", zap.Error(err))
	}

	loopCtx, stopLoop := context.WithCancel(context.Background())
	k.stopLoop = stopLoop
	go k.loop(loopCtx)

	if msg, err := protocol.NewMessage(protocol.Status, k.id, _username, protocol.StatusContent{ExecutionState: protocol.StateStarting}); err == nil {
		msg.Identities = [][]byte{protocol.Topic(protocol.Status)}
		k.send(entity.ChannelIOPub, msg)
	}
	k.logger.Infow("kernel started",
		"transport", bound.Transport,
		"protocol", k.protocol.Name(),
		"ip", bound.IP,
		"shell_port", bound.ShellPort,
		"control_port", bound.ControlPort,
	)
	return nil
}

// stop ends the loop, lets in-flight executions finish within the grace period, then closes
// everything down.
func (k *kernel) stop(ctx context.Context) error {
	if k.stopLoop != nil {
		k.stopLoop()
		<-k.loopDone
	}
	k.abortLanes(errors.ErrShuttingDown)

	graceCtx, cancel := context.WithTimeout(ctx, k.grace)
	defer cancel()
	if err := k.dispatcher.Drain(graceCtx); err != nil {
		k.logger.Warnw("executions interrupted at shutdown", zap.Error(err))
	}
	waitGroup(graceCtx, &k.work)
	k.cancel()

	err := multierr.Combine(
		k.dispatcher.Close(),
		k.transport.Close(),
	)
	k.finish()
	k.logger.Infow("kernel stopped")
	return err
}

func waitGroup(ctx context.Context, wg *sync.WaitGroup) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// finish marks the kernel done.
func (k *kernel) finish() {
	k.doneOnce.Do(func() { close(k.done) })
}

// requestShutdown asks the application to stop, or stops the loop when running without one.
func (k *kernel) requestShutdown() {
	k.finish()
	if k.shutdowner != nil {
		go func() {
			if err := k.shutdowner.Shutdown(); err != nil {
				k.logger.Errorw("requesting shutdown", zap.Error(err))
			}
		}()
	}
}

func (k *kernel) loop(ctx context.Context) {
	defer close(k.loopDone)
	ticker := time.NewTicker(k.sweep)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return
		}
		progressed, err := k.poll(ctx)
		if err != nil {
			k.logger.Errorw("transport failed, shutting down", zap.Error(err))
			k.stats.Counter("fatal_errors").Inc(1)
			k.requestShutdown()
			return
		}
		if progressed {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-k.transport.Notify():
		case peer := <-k.transport.Lost():
			k.peerLost(ctx, peer)
		case ev := <-k.debugger.Events():
			k.forwardDebugEvent(ev)
		case <-ticker.C:
			k.sweepClients(ctx)
		}
	}
}

// poll makes one pass over the channels: control until empty, heartbeats, one shell message, then
// stdin replies and pending debug events. Only control and heartbeat failures are returned.
func (k *kernel) poll(ctx context.Context) (bool, error) {
	progressed := false
	for {
		frames, ok, err := k.transport.Recv(entity.ChannelControl)
		if err != nil {
			if errors.IsFatalTransport(err) {
				return progressed, fmt.Errorf("receiving on control: %w", err)
			}
			k.logger.Warnw("receiving on control", zap.Error(err))
			break
		}
		if !ok {
			break
		}
		k.handle(ctx, entity.ChannelControl, frames)
		progressed = true
	}

	if n, err := k.transport.Heartbeat(); err != nil {
		return progressed, fmt.Errorf("answering heartbeats: %w", err)
	} else if n > 0 {
		k.stats.Counter("heartbeats").Inc(int64(n))
	}

	frames, ok, err := k.transport.Recv(entity.ChannelShell)
	switch {
	case err != nil:
		k.logger.Warnw("receiving on shell", zap.Error(err))
	case ok:
		k.handle(ctx, entity.ChannelShell, frames)
		progressed = true
	}

	for {
		frames, ok, err := k.transport.Recv(entity.ChannelStdin)
		if err != nil {
			k.logger.Warnw("receiving on stdin", zap.Error(err))
			break
		}
		if !ok {
			break
		}
		k.handleStdin(frames)
		progressed = true
	}

	for i := 0; i < _eventBatch; i++ {
		select {
		case ev := <-k.debugger.Events():
			k.forwardDebugEvent(ev)
			continue
		default:
		}
		break
	}
	return progressed, nil
}

// handle decodes and routes one request.
func (k *kernel) handle(ctx context.Context, ch entity.Channel, frames [][]byte) {
	msg, err := k.protocol.Decode(ch, frames)
	if err != nil {
		k.rejectUndecodable(ch, err)
		return
	}
	k.stats.Tagged(map[string]string{
		"channel": string(ch),
		"type":    string(msg.Header.MsgType),
	}).Counter("messages").Inc(1)
	k.route(ctx, ch, msg)
}

// rejectUndecodable answers a message that could not be decoded with an error message. It goes back
// on ch to the sender when the codec recovered its routing frames, and to iopub otherwise.
func (k *kernel) rejectUndecodable(ch entity.Channel, err error) {
	k.stats.Tagged(map[string]string{"channel": string(ch)}).Counter("decode_errors").Inc(1)
	k.logger.Warnw("rejecting undecodable message", "channel", ch, zap.Error(err))

	msg, merr := protocol.NewMessage(protocol.Error, "", _username, protocol.NewErrorContent(err))
	if merr != nil {
		k.logger.Errorw("building decode error", zap.Error(merr))
		return
	}
	if de, ok := errors.AsProtocolDecode(err); ok && len(de.Identities) > 0 {
		msg.Identities = de.Identities
		k.send(ch, msg)
		return
	}
	msg.Identities = [][]byte{protocol.Topic(protocol.Error)}
	k.send(entity.ChannelIOPub, msg)
}

func (k *kernel) peerLost(ctx context.Context, peer string) {
	k.mu.Lock()
	id, ok := k.peers[peer]
	delete(k.peers, peer)
	k.mu.Unlock()
	k.stats.Counter("peers_lost").Inc(1)
	if !ok {
		return
	}
	k.logger.Infow("client connection lost", "client", id, "peer", peer)
	k.releaseClient(ctx, id)
	if err := k.clients.Disconnect(ctx, id); err != nil {
		k.logger.Debugw("disconnecting lost client", "client", id, zap.Error(err))
	}
}

func (k *kernel) sweepClients(ctx context.Context) {
	for _, id := range k.clients.Expire(ctx, k.clock.Now()) {
		k.stats.Counter("clients_expired").Inc(1)
		k.logger.Infow("client expired", "client", id)
		k.releaseClient(ctx, id)
	}
}

// releaseClient drops everything the kernel keeps for a departed client.
func (k *kernel) releaseClient(ctx context.Context, id string) {
	k.debugger.Release(ctx, id)
	k.mu.Lock()
	defer k.mu.Unlock()
	for peer, owner := range k.peers {
		if owner == id {
			delete(k.peers, peer)
		}
	}
}

// send encodes msg and hands it to the transport. Failures are logged: the peer may be gone.
func (k *kernel) send(ch entity.Channel, msg *protocol.Message) bool {
	k.sendMu.Lock()
	defer k.sendMu.Unlock()

	frames, err := k.protocol.Encode(ch, msg)
	if err != nil {
		k.stats.Counter("encode_errors").Inc(1)
		k.logger.Errorw("encoding message", "type", msg.Header.MsgType, "channel", ch, zap.Error(err))
		return false
	}
	if err := k.transport.Send(ch, frames); err != nil {
		k.stats.Counter("send_errors").Inc(1)
		k.logger.Warnw("sending message", "type", msg.Header.MsgType, "channel", ch, zap.Error(err))
		return false
	}
	return true
}

// broadcast publishes a message about parent on iopub.
func (k *kernel) broadcast(parent *protocol.Message, t protocol.MessageType, content any) {
	msg, err := protocol.NewBroadcast(parent, t, content)
	if err != nil {
		k.logger.Errorw("building broadcast", "type", t, zap.Error(err))
		return
	}
	k.send(entity.ChannelIOPub, msg)
}

func (k *kernel) status(parent *protocol.Message, state string) {
	k.broadcast(parent, protocol.Status, protocol.StatusContent{ExecutionState: state})
}

// reply answers req with content after checking it against the reply schema. A reply that does
// not validate is replaced by an error reply.
func (k *kernel) reply(req *request, content any) {
	raw, err := json.Marshal(content)
	if err != nil {
		k.replyError(req, fmt.Errorf("encoding reply: %w", err))
		return
	}
	if shape, ok := k.protocol.ResponseFlow(req.msg.Header.MsgType); ok {
		if err := shape.Validate(raw); err != nil {
			k.stats.Tagged(map[string]string{"type": string(req.msg.Header.MsgType)}).Counter("invalid_replies").Inc(1)
			k.logger.Errorw("reply does not match its schema", "type", req.msg.Header.MsgType, zap.Error(err))
			k.replyError(req, err)
			return
		}
	}
	k.sendReply(req, json.RawMessage(raw))
}

// replyError answers req with an error reply shaped for its type.
func (k *kernel) replyError(req *request, err error) {
	k.stats.Tagged(map[string]string{"type": string(req.msg.Header.MsgType)}).Counter("error_replies").Inc(1)
	e := protocol.NewErrorContent(err)
	var content any = e
	switch req.msg.Header.MsgType {
	case protocol.ExecuteRequest:
		content = protocol.ExecuteReplyContent{Status: e.Status, Ename: e.Ename, Evalue: e.Evalue, Traceback: e.Traceback}
	case protocol.DebugRequest:
		var dr protocol.DebugRequestContent
		_ = req.msg.DecodeContent(&dr)
		content = protocol.DebugReplyContent{
			Seq:        k.nextDebugSeq(),
			Type:       "response",
			RequestSeq: dr.Seq,
			Command:    dr.Command,
			Message:    err.Error(),
		}
	}
	k.sendReply(req, content)
}

func (k *kernel) sendReply(req *request, content any) {
	msg, err := protocol.NewReply(req.msg, req.msg.Header.MsgType.ReplyType(), content)
	if err != nil {
		k.logger.Errorw("building reply", "type", req.msg.Header.MsgType, zap.Error(err))
		return
	}
	k.send(req.channel, msg)
}

// pin keeps msg correlatable while its replies are produced off the loop.
func (k *kernel) pin(msg *protocol.Message) {
	if k.correlator != nil {
		k.correlator.Pin(msg.Header.Session, msg.Header.MsgID)
	}
}

func (k *kernel) unpin(msg *protocol.Message) {
	if k.correlator != nil {
		k.correlator.Unpin(msg.Header.Session, msg.Header.MsgID)
	}
}

func (k *kernel) nextDebugSeq() int {
	return int(k.debugSeq.Add(1))
}
