package protocol

import (
	"sync"
)

const (
	// DefaultCorrelationWindow is how many request ids are remembered per session.
	DefaultCorrelationWindow = 1024
	maxTrackedSessions       = 4096
)

// Correlator remembers the ids of decoded messages per session so replies can be checked
// against a request the kernel actually received. Pinned ids stay remembered past the window
// until they are unpinned.
type Correlator struct {
	mu       sync.Mutex
	window   int
	sessions map[string]*idWindow
	order    []string
}

type idWindow struct {
	ids    map[string]struct{}
	order  []string
	pinned map[string]int
}

// evictable returns the index of the oldest id that is not pinned.
func (w *idWindow) evictable() (int, bool) {
	for i, id := range w.order {
		if w.pinned[id] == 0 {
			return i, true
		}
	}
	return 0, false
}

// NewCorrelator returns a Correlator keeping up to window ids per session.
func NewCorrelator(window int) *Correlator {
	if window <= 0 {
		window = DefaultCorrelationWindow
	}
	return &Correlator{
		window:   window,
		sessions: make(map[string]*idWindow),
	}
}

// Observe records h as received.
func (c *Correlator) Observe(h Header) {
	if h.MsgID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	w, ok := c.sessions[h.Session]
	if !ok {
		if len(c.order) >= maxTrackedSessions {
			c.evictSession()
		}
		w = &idWindow{ids: make(map[string]struct{}), pinned: make(map[string]int)}
		c.sessions[h.Session] = w
		c.order = append(c.order, h.Session)
	}
	if _, seen := w.ids[h.MsgID]; seen {
		return
	}
	for len(w.order) >= c.window {
		i, ok := w.evictable()
		if !ok {
			break
		}
		delete(w.ids, w.order[i])
		w.order = append(w.order[:i], w.order[i+1:]...)
	}
	w.ids[h.MsgID] = struct{}{}
	w.order = append(w.order, h.MsgID)
}

// evictSession drops the oldest session with nothing pinned.
func (c *Correlator) evictSession() {
	for i, s := range c.order {
		if len(c.sessions[s].pinned) == 0 {
			c.order = append(c.order[:i], c.order[i+1:]...)
			delete(c.sessions, s)
			return
		}
	}
}

// Pin keeps msgID remembered in session until a matching Unpin, however many messages arrive
// meanwhile. Ids that were never observed are ignored.
func (c *Correlator) Pin(session, msgID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.sessions[session]
	if !ok {
		return
	}
	if _, ok := w.ids[msgID]; !ok {
		return
	}
	w.pinned[msgID]++
}

// Unpin releases one Pin of msgID.
func (c *Correlator) Unpin(session, msgID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.sessions[session]
	if !ok || w.pinned[msgID] == 0 {
		return
	}
	if w.pinned[msgID]--; w.pinned[msgID] == 0 {
		delete(w.pinned, msgID)
	}
}

// Observed reports whether a message with msgID was received in session.
func (c *Correlator) Observed(session, msgID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.sessions[session]
	if !ok {
		return false
	}
	_, ok = w.ids[msgID]
	return ok
}

// Forget drops everything remembered for session.
func (c *Correlator) Forget(session string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.sessions[session]; !ok {
		return
	}
	delete(c.sessions, session)
	for i, s := range c.order {
		if s == session {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
