package dispatcher

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/llmspell/spellkernel/src/kernel/entity"
	"github.com/llmspell/spellkernel/src/kernel/internal/executor"
	"golang.org/x/sync/semaphore"
)

// session is an internal session. Executions take turns through a weight-one semaphore, which
// serves waiters in arrival order.
type session struct {
	id     string
	turn   *semaphore.Weighted
	queued atomic.Int32

	// rc belongs to whoever holds the turn.
	rc executor.Context

	mu       sync.Mutex
	loaded   bool
	count    int
	history  []entity.HistoryEntry
	tainted  bool
	closed   bool
	cancel   context.CancelCauseFunc
	lastUsed time.Time
}

func newSession(id string, now time.Time) *session {
	return &session{id: id, turn: semaphore.NewWeighted(1), lastUsed: now}
}

// begin assigns the execution count of req and records it in the history.
func (s *session) begin(req ExecuteRequest, historySize int, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsed = now
	if req.Silent {
		return s.count
	}
	s.count++
	if req.StoreHistory {
		s.history = append(s.history, entity.HistoryEntry{ExecutionCount: s.count, Code: req.Code})
		if len(s.history) > historySize {
			s.history = append([]entity.HistoryEntry(nil), s.history[len(s.history)-historySize:]...)
		}
	}
	return s.count
}

func (s *session) load(state *entity.SessionState, historySize int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count = state.ExecutionCount
	s.history = state.History
	if len(s.history) > historySize {
		s.history = s.history[len(s.history)-historySize:]
	}
}

// markLoaded reports whether this is the first time the session's persisted state is looked up.
func (s *session) markLoaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	first := !s.loaded
	s.loaded = true
	return first
}

func (s *session) isLoaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

func (s *session) state(now time.Time) *entity.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &entity.SessionState{
		SessionID:      s.id,
		ExecutionCount: s.count,
		History:        append([]entity.HistoryEntry(nil), s.history...),
		UpdatedAt:      now,
	}
}

func (s *session) historyCopy() []entity.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entity.HistoryEntry(nil), s.history...)
}

func (s *session) setRunning(cancel context.CancelCauseFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel = cancel
}

// interrupt cancels the running execution with cause and reports whether there was one.
func (s *session) interrupt(cause error) bool {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return false
	}
	cancel(cause)
	return true
}

func (s *session) isTainted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tainted
}

func (s *session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *session) info() entity.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return entity.SessionInfo{
		SessionID:      s.id,
		ExecutionCount: s.count,
		Tainted:        s.tainted,
		Busy:           s.cancel != nil,
		Queued:         int(s.queued.Load()),
		LastUsed:       s.lastUsed,
	}
}
