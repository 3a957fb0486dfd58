package dispatcher

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/llmspell/spellkernel/src/kernel/internal/errors"
)

// watchMemory samples heap growth from the start of an execution and cancels it with a
// MemoryLimitExceededError once the growth passes limit. The heap is shared by every session, so
// concurrent executions count against each other. stop must be called once the execution is over.
func (d *dispatcher) watchMemory(ctx context.Context, sessionID string, limit uint64, cancel context.CancelCauseFunc) (stop func()) {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	base := stats.HeapAlloc

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(d.sample)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
			}
			var now runtime.MemStats
			runtime.ReadMemStats(&now)
			if now.HeapAlloc <= base {
				continue
			}
			if used := now.HeapAlloc - base; used > limit {
				d.logger.Warnw("execution exceeded its memory limit", "session", sessionID, "used", used, "limit", limit)
				cancel(&errors.MemoryLimitExceededError{SessionID: sessionID, Limit: limit, Used: used})
				return
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}
