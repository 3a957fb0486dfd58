// Package inproc implements an in-memory Transport for embedding the kernel and for tests.
// A Hub joins one kernel side with any number of client sides.
package inproc

import (
	"context"
	"fmt"
	"sync"

	"github.com/llmspell/spellkernel/src/kernel/entity"
	"github.com/llmspell/spellkernel/src/kernel/internal/errors"
	"github.com/llmspell/spellkernel/src/kernel/internal/transport"
)

// Kind is the transport name written to the connection descriptor.
const Kind = "inproc"

// Hub connects a kernel side with its client sides.
type Hub struct {
	mu      sync.Mutex
	kernel  *kernelSide
	clients map[string]*clientSide
}

// NewHub creates a Hub with an unbound kernel side.
func NewHub() *Hub {
	h := &Hub{clients: make(map[string]*clientSide)}
	h.kernel = &kernelSide{hub: h, inbox: transport.NewInbox()}
	return h
}

// Kernel returns the kernel side of the hub.
func (h *Hub) Kernel() transport.Transport {
	return h.kernel
}

// Client returns a new client side identified by identity. It must be connected before use.
func (h *Hub) Client(identity string) transport.Transport {
	return &clientSide{hub: h, identity: identity, inbox: transport.NewInbox()}
}

func (h *Hub) client(identity string) (*clientSide, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[identity]
	return c, ok
}

func (h *Hub) subscribers() []*clientSide {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*clientSide, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, c)
	}
	return out
}

type kernelSide struct {
	hub   *Hub
	inbox *transport.Inbox

	mu     sync.Mutex
	bound  bool
	closed bool
}

func (k *kernelSide) Bind(_ context.Context, endpoint entity.ConnectionEndpoint) (entity.ConnectionEndpoint, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return endpoint, &errors.TransportError{Op: "bind", Channel: string(entity.ChannelControl), Err: errors.ErrChannelClosed}
	}
	k.bound = true
	endpoint.Transport = Kind
	return endpoint, nil
}

func (k *kernelSide) Connect(context.Context, entity.ConnectionEndpoint) error {
	return fmt.Errorf("kernel side of an inproc hub cannot connect")
}

func (k *kernelSide) isClosed() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.closed
}

func (k *kernelSide) Send(ch entity.Channel, frames [][]byte) error {
	if k.isClosed() {
		return &errors.TransportError{Op: "send", Channel: string(ch), Err: errors.ErrChannelClosed}
	}
	if ch == entity.ChannelIOPub {
		for _, c := range k.hub.subscribers() {
			c.inbox.Push(ch, transport.CloneFrames(frames))
		}
		return nil
	}
	if len(frames) == 0 {
		return &errors.TransportError{Op: "send", Channel: string(ch), Err: fmt.Errorf("missing identity frame")}
	}
	identity := string(frames[0])
	c, ok := k.hub.client(identity)
	if !ok || !c.inbox.Push(ch, transport.CloneFrames(frames[1:])) {
		return &errors.TransportError{Op: "send", Channel: string(ch), Peer: identity, Err: errors.ErrChannelClosed}
	}
	return nil
}

func (k *kernelSide) Recv(ch entity.Channel) ([][]byte, bool, error) {
	if k.isClosed() {
		return nil, false, &errors.TransportError{Op: "recv", Channel: string(ch), Err: errors.ErrChannelClosed}
	}
	frames, ok := k.inbox.Pop(ch)
	return frames, ok, nil
}

func (k *kernelSide) Heartbeat() (int, error) {
	n := 0
	for {
		frames, ok := k.inbox.Pop(entity.ChannelHeartbeat)
		if !ok {
			return n, nil
		}
		// A peer that vanished between ping and echo is reported through Lost.
		_ = k.Send(entity.ChannelHeartbeat, frames)
		n++
	}
}

func (k *kernelSide) Notify() <-chan struct{} { return k.inbox.Notify() }

func (k *kernelSide) Lost() <-chan string { return k.inbox.Lost() }

func (k *kernelSide) Close() error {
	k.mu.Lock()
	k.closed = true
	k.mu.Unlock()
	k.inbox.Close()
	return nil
}

type clientSide struct {
	hub      *Hub
	identity string
	inbox    *transport.Inbox

	mu        sync.Mutex
	connected bool
}

func (c *clientSide) Bind(_ context.Context, endpoint entity.ConnectionEndpoint) (entity.ConnectionEndpoint, error) {
	return endpoint, fmt.Errorf("client side of an inproc hub cannot bind")
}

func (c *clientSide) Connect(context.Context, entity.ConnectionEndpoint) error {
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()
	if _, exists := c.hub.clients[c.identity]; exists {
		return &errors.TransportError{Op: "connect", Channel: string(entity.ChannelShell), Peer: c.identity, Err: fmt.Errorf("identity already connected")}
	}
	c.hub.clients[c.identity] = c
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	return nil
}

func (c *clientSide) Send(ch entity.Channel, frames [][]byte) error {
	c.mu.Lock()
	connected := c.connected
	c.mu.Unlock()
	if !connected || c.hub.kernel.isClosed() {
		return &errors.TransportError{Op: "send", Channel: string(ch), Err: errors.ErrChannelClosed}
	}
	if ch == entity.ChannelIOPub {
		return &errors.TransportError{Op: "send", Channel: string(ch), Err: fmt.Errorf("iopub is receive-only for clients")}
	}
	routed := make([][]byte, 0, len(frames)+1)
	routed = append(routed, []byte(c.identity))
	routed = append(routed, transport.CloneFrames(frames)...)
	if !c.hub.kernel.inbox.Push(ch, routed) {
		return &errors.TransportError{Op: "send", Channel: string(ch), Err: errors.ErrChannelClosed}
	}
	return nil
}

func (c *clientSide) Recv(ch entity.Channel) ([][]byte, bool, error) {
	frames, ok := c.inbox.Pop(ch)
	return frames, ok, nil
}

func (c *clientSide) Heartbeat() (int, error) { return 0, nil }

func (c *clientSide) Notify() <-chan struct{} { return c.inbox.Notify() }

func (c *clientSide) Lost() <-chan string { return c.inbox.Lost() }

func (c *clientSide) Close() error {
	c.hub.mu.Lock()
	if c.hub.clients[c.identity] == c {
		delete(c.hub.clients, c.identity)
	}
	c.hub.mu.Unlock()

	c.mu.Lock()
	wasConnected := c.connected
	c.connected = false
	c.mu.Unlock()

	c.inbox.Close()
	if wasConnected {
		c.hub.kernel.inbox.MarkLost(c.identity)
	}
	return nil
}
