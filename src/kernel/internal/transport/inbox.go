package transport

import (
	"sync"

	"github.com/llmspell/spellkernel/src/kernel/entity"
)

const _lostBuffer = 64

// Inbox is a per-channel FIFO of received frames with a coalescing wake-up signal.
// Transports push from their reader goroutines; the orchestrator pops without blocking.
type Inbox struct {
	mu     sync.Mutex
	queues map[entity.Channel][][][]byte
	notify chan struct{}
	lost   chan string
	closed bool
}

// NewInbox creates an empty Inbox.
func NewInbox() *Inbox {
	return &Inbox{
		queues: make(map[entity.Channel][][][]byte),
		notify: make(chan struct{}, 1),
		lost:   make(chan string, _lostBuffer),
	}
}

// Push appends frames to the queue for ch. It returns false once the inbox is closed.
func (b *Inbox) Push(ch entity.Channel, frames [][]byte) bool {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false
	}
	b.queues[ch] = append(b.queues[ch], frames)
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
	return true
}

// Pop removes the oldest frames queued for ch.
func (b *Inbox) Pop(ch entity.Channel) ([][]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queues[ch]
	if len(q) == 0 {
		return nil, false
	}
	frames := q[0]
	q[0] = nil
	b.queues[ch] = q[1:]
	return frames, true
}

// Len reports how many messages are queued for ch.
func (b *Inbox) Len(ch entity.Channel) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[ch])
}

// Notify is signalled after every Push. Signals coalesce, so readers must drain all queues.
func (b *Inbox) Notify() <-chan struct{} {
	return b.notify
}

// MarkLost reports a dropped peer. Reports beyond the buffer are discarded; such peers are
// eventually removed by the heartbeat timeout instead.
func (b *Inbox) MarkLost(identity string) {
	select {
	case b.lost <- identity:
	default:
	}
}

// Lost delivers identities passed to MarkLost.
func (b *Inbox) Lost() <-chan string {
	return b.lost
}

// Close discards queued frames and rejects further pushes.
func (b *Inbox) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.queues = make(map[entity.Channel][][][]byte)
}

// CloneFrames deep-copies frames so a sender may reuse its buffers.
func CloneFrames(frames [][]byte) [][]byte {
	out := make([][]byte, len(frames))
	for i, f := range frames {
		out[i] = append([]byte(nil), f...)
	}
	return out
}
