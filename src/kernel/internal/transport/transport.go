// Package transport moves opaque multi-part byte frames over the kernel's named channels.
//
// A bound (kernel side) transport behaves like a router: frames received on shell, control,
// stdin and hb are prefixed with one identity frame naming the peer, and frames sent on those
// channels are routed by their first frame, which is consumed. Frames sent on iopub are
// broadcast to every subscriber unchanged. A connected (client side) transport sends and
// receives frames as-is.
package transport

import (
	"context"

	"github.com/llmspell/spellkernel/src/kernel/entity"
)

//go:generate mockgen -source=transport.go -destination=transportmock/transport.go -package=transportmock

// Transport is the contract every wire transport implements.
type Transport interface {
	// Bind listens on every channel of endpoint. Ports set to zero are chosen by the system;
	// the returned endpoint carries the ports actually bound.
	Bind(ctx context.Context, endpoint entity.ConnectionEndpoint) (entity.ConnectionEndpoint, error)
	// Connect attaches to a bound kernel as a client.
	Connect(ctx context.Context, endpoint entity.ConnectionEndpoint) error
	// Send queues frames for delivery on ch.
	Send(ch entity.Channel, frames [][]byte) error
	// Recv returns the next frames received on ch without blocking. ok is false when nothing is queued.
	Recv(ch entity.Channel) (frames [][]byte, ok bool, err error)
	// Heartbeat echoes every pending liveness ping back to its sender and returns how many were answered.
	Heartbeat() (int, error)
	// Notify is signalled whenever frames become available on any channel.
	Notify() <-chan struct{}
	// Lost delivers the identity of peers whose connection dropped.
	Lost() <-chan string
	// Close releases every resource held by the transport.
	Close() error
}
