// Package zmq implements Transport over ZeroMQ sockets, the socket layout stock Jupyter
// clients expect: ROUTER for shell, control and stdin, PUB for iopub and REP for hb.
// Clients use DEALER, SUB and REQ respectively.
package zmq

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/go-zeromq/zmq4"
	"github.com/gofrs/uuid"
	"github.com/llmspell/spellkernel/src/kernel/entity"
	kerrors "github.com/llmspell/spellkernel/src/kernel/internal/errors"
	"github.com/llmspell/spellkernel/src/kernel/internal/transport"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Kind is the transport name written to the connection descriptor.
const Kind = "tcp"

// Option configures a ZeroMQ transport.
type Option func(*zmqTransport)

// WithIdentity sets the socket identity a client announces on its DEALER sockets.
func WithIdentity(identity string) Option {
	return func(t *zmqTransport) {
		t.identity = identity
	}
}

// WithLogger sets the logger used for socket lifecycle events.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(t *zmqTransport) {
		t.logger = logger
	}
}

type zmqTransport struct {
	inbox    *transport.Inbox
	logger   *zap.SugaredLogger
	identity string

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	sockets map[entity.Channel]zmq4.Socket
	writeMu map[entity.Channel]*sync.Mutex
	closed  bool
	wg      sync.WaitGroup
}

// New creates an unbound, unconnected ZeroMQ transport.
func New(opts ...Option) transport.Transport {
	ctx, cancel := context.WithCancel(context.Background())
	t := &zmqTransport{
		inbox:   transport.NewInbox(),
		logger:  zap.NewNop().Sugar(),
		ctx:     ctx,
		cancel:  cancel,
		sockets: make(map[entity.Channel]zmq4.Socket),
		writeMu: make(map[entity.Channel]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.identity == "" {
		t.identity = uuid.Must(uuid.NewV4()).String()
	}
	return t
}

func (t *zmqTransport) kernelSocket(ch entity.Channel) zmq4.Socket {
	switch ch {
	case entity.ChannelIOPub:
		return zmq4.NewPub(t.ctx)
	case entity.ChannelHeartbeat:
		return zmq4.NewRep(t.ctx)
	default:
		return zmq4.NewRouter(t.ctx, zmq4.WithID(zmq4.SocketIdentity("kernel")))
	}
}

func (t *zmqTransport) clientSocket(ch entity.Channel) zmq4.Socket {
	switch ch {
	case entity.ChannelIOPub:
		return zmq4.NewSub(t.ctx)
	case entity.ChannelHeartbeat:
		return zmq4.NewReq(t.ctx)
	default:
		return zmq4.NewDealer(t.ctx, zmq4.WithID(zmq4.SocketIdentity(t.identity)))
	}
}

func (t *zmqTransport) Bind(_ context.Context, endpoint entity.ConnectionEndpoint) (entity.ConnectionEndpoint, error) {
	bound := endpoint
	bound.Transport = Kind
	for _, ch := range entity.AllChannels {
		sock := t.kernelSocket(ch)
		if err := sock.Listen(fmt.Sprintf("tcp://%s", endpoint.Address(ch))); err != nil {
			sock.Close()
			t.Close()
			return endpoint, &kerrors.TransportError{Op: "bind", Channel: string(ch), Err: err}
		}
		if addr, ok := sock.Addr().(*net.TCPAddr); ok {
			bound = bound.WithPort(ch, addr.Port)
		}
		t.register(ch, sock)
	}
	t.logger.Infow("zmq transport bound", "ip", bound.IP, "shell_port", bound.ShellPort, "control_port", bound.ControlPort)
	return bound, nil
}

func (t *zmqTransport) Connect(_ context.Context, endpoint entity.ConnectionEndpoint) error {
	for _, ch := range entity.AllChannels {
		sock := t.clientSocket(ch)
		if err := sock.Dial(fmt.Sprintf("tcp://%s", endpoint.Address(ch))); err != nil {
			sock.Close()
			t.Close()
			return &kerrors.TransportError{Op: "connect", Channel: string(ch), Err: err}
		}
		if ch == entity.ChannelIOPub {
			if err := sock.SetOption(zmq4.OptionSubscribe, ""); err != nil {
				sock.Close()
				t.Close()
				return &kerrors.TransportError{Op: "connect", Channel: string(ch), Err: err}
			}
		}
		t.register(ch, sock)
	}
	return nil
}

func (t *zmqTransport) register(ch entity.Channel, sock zmq4.Socket) {
	t.mu.Lock()
	t.sockets[ch] = sock
	t.writeMu[ch] = &sync.Mutex{}
	t.mu.Unlock()

	// PUB sockets never receive.
	if sock.Type() == zmq4.Pub {
		return
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for {
			msg, err := sock.Recv()
			if err != nil {
				if t.ctx.Err() == nil && !errors.Is(err, context.Canceled) {
					t.logger.Debugw("zmq receive stopped", "channel", ch, "error", err)
				}
				return
			}
			if !t.inbox.Push(ch, msg.Frames) {
				return
			}
		}
	}()
}

func (t *zmqTransport) Send(ch entity.Channel, frames [][]byte) error {
	t.mu.Lock()
	sock, ok := t.sockets[ch]
	wmu := t.writeMu[ch]
	closed := t.closed
	t.mu.Unlock()
	if closed || !ok {
		return &kerrors.TransportError{Op: "send", Channel: string(ch), Err: kerrors.ErrChannelClosed}
	}

	wmu.Lock()
	defer wmu.Unlock()
	if err := sock.SendMulti(zmq4.NewMsgFrom(frames...)); err != nil {
		peer := ""
		if sock.Type() == zmq4.Router && len(frames) > 0 {
			peer = string(frames[0])
		}
		return &kerrors.TransportError{Op: "send", Channel: string(ch), Peer: peer, Err: err}
	}
	return nil
}

func (t *zmqTransport) Recv(ch entity.Channel) ([][]byte, bool, error) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return nil, false, &kerrors.TransportError{Op: "recv", Channel: string(ch), Err: kerrors.ErrChannelClosed}
	}
	frames, ok := t.inbox.Pop(ch)
	return frames, ok, nil
}

// Heartbeat echoes pings. REP sockets strip the envelope, so echoes go straight back.
func (t *zmqTransport) Heartbeat() (int, error) {
	t.mu.Lock()
	sock, ok := t.sockets[entity.ChannelHeartbeat]
	t.mu.Unlock()
	if !ok || sock.Type() != zmq4.Rep {
		return 0, nil
	}
	n := 0
	for {
		frames, ok := t.inbox.Pop(entity.ChannelHeartbeat)
		if !ok {
			return n, nil
		}
		if err := t.Send(entity.ChannelHeartbeat, frames); err != nil {
			return n, err
		}
		n++
	}
}

func (t *zmqTransport) Notify() <-chan struct{} { return t.inbox.Notify() }

// Lost never fires: ZeroMQ hides peer disconnects, so liveness relies on the heartbeat timeout.
func (t *zmqTransport) Lost() <-chan string { return t.inbox.Lost() }

func (t *zmqTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	sockets := t.sockets
	t.mu.Unlock()

	t.cancel()
	var err error
	for _, sock := range sockets {
		err = multierr.Append(err, sock.Close())
	}
	t.inbox.Close()
	t.wg.Wait()
	return err
}
