package mapper

import (
	"time"

	"github.com/llmspell/spellkernel/src/kernel/entity"
	"github.com/llmspell/spellkernel/src/kernel/internal/executor"
	"github.com/llmspell/spellkernel/src/kernel/internal/protocol"
)

// ResultToExecuteReply maps a dispatcher result to the execute_reply content.
func ResultToExecuteReply(res entity.ExecutionResult) protocol.ExecuteReplyContent {
	reply := protocol.ExecuteReplyContent{
		Status:         string(res.Status),
		ExecutionCount: res.ExecutionCount,
	}
	if res.Status == entity.StatusError && res.Err != nil {
		e := protocol.NewErrorContent(res.Err)
		reply.Ename, reply.Evalue, reply.Traceback = e.Ename, e.Evalue, e.Traceback
	}
	return reply
}

// HistoryToReply renders entries as (session, line, input) triples.
func HistoryToReply(session string, entries []entity.HistoryEntry) [][]any {
	out := make([][]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, []any{session, e.ExecutionCount, e.Code})
	}
	return out
}

// RegistrationToLimits maps the limits asked for in register_client_request. Zero fields take the
// kernel defaults.
func RegistrationToLimits(c protocol.RegisterClientRequestContent) *entity.ResourceLimits {
	limits := &entity.ResourceLimits{
		MaxConcurrentExecutions: c.MaxConcurrentExecutions,
		ExecutionTimeout:        time.Duration(c.ExecutionTimeoutMs) * time.Millisecond,
	}
	if c.MaxMemoryBytes > 0 {
		limits.MaxMemoryBytes = uint64(c.MaxMemoryBytes)
	}
	return limits
}

// LanguageInfoToProtocol maps the runtime's language description to kernel_info's.
func LanguageInfoToProtocol(l executor.LanguageInfo) protocol.LanguageInfo {
	return protocol.LanguageInfo{
		Name:           l.Name,
		Version:        l.Version,
		MimeType:       l.MimeType,
		FileExtension:  l.FileExtension,
		PygmentsLexer:  l.Name,
		CodemirrorMode: l.Name,
	}
}
