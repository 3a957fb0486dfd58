// Package tcp implements Transport over plain TCP, one listener per channel.
//
// Every connection opens with a hello message carrying the peer identity; afterwards each
// multipart message travels as a length-prefixed CBOR array of byte strings.
package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/gofrs/uuid"
	"github.com/llmspell/spellkernel/src/kernel/entity"
	kerrors "github.com/llmspell/spellkernel/src/kernel/internal/errors"
	"github.com/llmspell/spellkernel/src/kernel/internal/transport"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Kind is the transport name written to the connection descriptor.
const Kind = "tcp"

// Option configures a TCP transport.
type Option func(*tcpTransport)

// WithMaxFrameBytes bounds the size of one encoded message in either direction.
func WithMaxFrameBytes(n int) Option {
	return func(t *tcpTransport) {
		if n > 0 {
			t.maxFrameBytes = n
		}
	}
}

// WithIdentity sets the identity a client announces. A random one is used otherwise.
func WithIdentity(identity string) Option {
	return func(t *tcpTransport) {
		t.identity = identity
	}
}

// WithLogger sets the logger used for connection lifecycle events.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(t *tcpTransport) {
		t.logger = logger
	}
}

type peerConn struct {
	net.Conn
	identity string
	wmu      sync.Mutex
}

func (p *peerConn) write(frames [][]byte, maxBytes int) error {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	return WriteMessage(p.Conn, frames, maxBytes)
}

type tcpTransport struct {
	inbox         *transport.Inbox
	logger        *zap.SugaredLogger
	maxFrameBytes int
	identity      string

	mu        sync.Mutex
	listeners map[entity.Channel]net.Listener
	// peers holds accepted connections per channel keyed by identity (kernel side).
	peers map[entity.Channel]map[string]*peerConn
	// dialed holds the client side connection per channel.
	dialed map[entity.Channel]*peerConn
	// pending holds accepted connections that have not said hello yet.
	pending map[net.Conn]struct{}
	closed  bool

	group errgroup.Group
}

// New creates an unbound, unconnected TCP transport.
func New(opts ...Option) transport.Transport {
	t := &tcpTransport{
		inbox:         transport.NewInbox(),
		logger:        zap.NewNop().Sugar(),
		maxFrameBytes: DefaultMaxFrameBytes,
		listeners:     make(map[entity.Channel]net.Listener),
		peers:         make(map[entity.Channel]map[string]*peerConn),
		dialed:        make(map[entity.Channel]*peerConn),
		pending:       make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.identity == "" {
		t.identity = uuid.Must(uuid.NewV4()).String()
	}
	return t
}

func (t *tcpTransport) Bind(ctx context.Context, endpoint entity.ConnectionEndpoint) (entity.ConnectionEndpoint, error) {
	var lc net.ListenConfig
	bound := endpoint
	bound.Transport = Kind

	for _, ch := range entity.AllChannels {
		ln, err := lc.Listen(ctx, "tcp", endpoint.Address(ch))
		if err != nil {
			t.Close()
			return endpoint, &kerrors.TransportError{Op: "bind", Channel: string(ch), Err: err}
		}
		bound = bound.WithPort(ch, ln.Addr().(*net.TCPAddr).Port)

		t.mu.Lock()
		t.listeners[ch] = ln
		t.peers[ch] = make(map[string]*peerConn)
		t.mu.Unlock()

		ch := ch
		t.group.Go(func() error {
			t.acceptLoop(ch, ln)
			return nil
		})
	}
	t.logger.Infow("tcp transport bound", "ip", bound.IP, "shell_port", bound.ShellPort, "control_port", bound.ControlPort)
	return bound, nil
}

func (t *tcpTransport) acceptLoop(ch entity.Channel, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				t.logger.Warnw("accept failed", "channel", ch, "error", err)
			}
			return
		}
		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			conn.Close()
			return
		}
		t.pending[conn] = struct{}{}
		t.mu.Unlock()

		t.group.Go(func() error {
			t.serveConn(ch, conn)
			return nil
		})
	}
}

func (t *tcpTransport) serveConn(ch entity.Channel, conn net.Conn) {
	hello, err := ReadMessage(conn, t.maxFrameBytes)
	t.mu.Lock()
	delete(t.pending, conn)
	t.mu.Unlock()
	if err != nil || len(hello) != 1 || len(hello[0]) == 0 {
		t.logger.Warnw("rejecting connection without hello", "channel", ch, "remote", conn.RemoteAddr().String())
		conn.Close()
		return
	}
	peer := &peerConn{Conn: conn, identity: string(hello[0])}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		conn.Close()
		return
	}
	if old, ok := t.peers[ch][peer.identity]; ok {
		old.Close()
	}
	t.peers[ch][peer.identity] = peer
	t.mu.Unlock()

	for {
		frames, err := ReadMessage(conn, t.maxFrameBytes)
		if err != nil {
			break
		}
		routed := make([][]byte, 0, len(frames)+1)
		routed = append(routed, []byte(peer.identity))
		routed = append(routed, frames...)
		if !t.inbox.Push(ch, routed) {
			break
		}
	}

	t.mu.Lock()
	current := t.peers[ch][peer.identity] == peer
	if current {
		delete(t.peers[ch], peer.identity)
	}
	closed := t.closed
	t.mu.Unlock()
	conn.Close()

	if current && !closed {
		t.inbox.MarkLost(peer.identity)
	}
}

func (t *tcpTransport) Connect(ctx context.Context, endpoint entity.ConnectionEndpoint) error {
	var d net.Dialer
	for _, ch := range entity.AllChannels {
		conn, err := d.DialContext(ctx, "tcp", endpoint.Address(ch))
		if err != nil {
			t.Close()
			return &kerrors.TransportError{Op: "connect", Channel: string(ch), Err: err}
		}
		peer := &peerConn{Conn: conn, identity: t.identity}
		if err := peer.write([][]byte{[]byte(t.identity)}, t.maxFrameBytes); err != nil {
			conn.Close()
			t.Close()
			return &kerrors.TransportError{Op: "connect", Channel: string(ch), Err: err}
		}

		t.mu.Lock()
		t.dialed[ch] = peer
		t.mu.Unlock()

		ch := ch
		t.group.Go(func() error {
			for {
				frames, err := ReadMessage(conn, t.maxFrameBytes)
				if err != nil {
					t.mu.Lock()
					closed := t.closed
					t.mu.Unlock()
					if !closed {
						t.inbox.MarkLost(string(ch))
					}
					return nil
				}
				if !t.inbox.Push(ch, frames) {
					return nil
				}
			}
		})
	}
	return nil
}

func (t *tcpTransport) Send(ch entity.Channel, frames [][]byte) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return &kerrors.TransportError{Op: "send", Channel: string(ch), Err: kerrors.ErrChannelClosed}
	}
	if dialed, ok := t.dialed[ch]; ok {
		t.mu.Unlock()
		if err := dialed.write(frames, t.maxFrameBytes); err != nil {
			return &kerrors.TransportError{Op: "send", Channel: string(ch), Err: err}
		}
		return nil
	}

	if ch == entity.ChannelIOPub {
		subscribers := make([]*peerConn, 0, len(t.peers[ch]))
		for _, p := range t.peers[ch] {
			subscribers = append(subscribers, p)
		}
		t.mu.Unlock()
		for _, p := range subscribers {
			// A failed subscriber is dropped by its reader goroutine.
			if err := p.write(frames, t.maxFrameBytes); err != nil {
				p.Close()
			}
		}
		return nil
	}

	if len(frames) == 0 {
		t.mu.Unlock()
		return &kerrors.TransportError{Op: "send", Channel: string(ch), Err: fmt.Errorf("missing identity frame")}
	}
	identity := string(frames[0])
	peer, ok := t.peers[ch][identity]
	t.mu.Unlock()
	if !ok {
		return &kerrors.TransportError{Op: "send", Channel: string(ch), Peer: identity, Err: kerrors.ErrChannelClosed}
	}
	if err := peer.write(frames[1:], t.maxFrameBytes); err != nil {
		peer.Close()
		return &kerrors.TransportError{Op: "send", Channel: string(ch), Peer: identity, Err: err}
	}
	return nil
}

func (t *tcpTransport) Recv(ch entity.Channel) ([][]byte, bool, error) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return nil, false, &kerrors.TransportError{Op: "recv", Channel: string(ch), Err: kerrors.ErrChannelClosed}
	}
	frames, ok := t.inbox.Pop(ch)
	return frames, ok, nil
}

func (t *tcpTransport) Heartbeat() (int, error) {
	n := 0
	for {
		frames, ok := t.inbox.Pop(entity.ChannelHeartbeat)
		if !ok {
			return n, nil
		}
		if err := t.Send(entity.ChannelHeartbeat, frames); err != nil {
			t.logger.Debugw("heartbeat echo failed", "error", err)
		}
		n++
	}
}

func (t *tcpTransport) Notify() <-chan struct{} { return t.inbox.Notify() }

func (t *tcpTransport) Lost() <-chan string { return t.inbox.Lost() }

func (t *tcpTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true

	var err error
	for _, ln := range t.listeners {
		err = multierr.Append(err, ignoreClosed(ln.Close()))
	}
	for _, peers := range t.peers {
		for _, p := range peers {
			err = multierr.Append(err, ignoreClosed(p.Close()))
		}
	}
	for _, p := range t.dialed {
		err = multierr.Append(err, ignoreClosed(p.Close()))
	}
	for conn := range t.pending {
		err = multierr.Append(err, ignoreClosed(conn.Close()))
	}
	t.mu.Unlock()

	t.inbox.Close()
	t.group.Wait()
	return err
}

func ignoreClosed(err error) error {
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
