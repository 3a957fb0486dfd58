package mapper

import (
	"github.com/llmspell/spellkernel/src/kernel/entity"
	"github.com/llmspell/spellkernel/src/kernel/model"
)

// SessionStateToModel maps a SessionState entity to its stored form.
func SessionStateToModel(s *entity.SessionState) *model.SessionState {
	m := &model.SessionState{
		SessionID:      s.SessionID,
		ExecutionCount: s.ExecutionCount,
		History:        make([]model.HistoryRecord, 0, len(s.History)),
		Variables:      s.Variables,
		UpdatedAt:      s.UpdatedAt,
	}
	for _, h := range s.History {
		m.History = append(m.History, model.HistoryRecord{Line: h.ExecutionCount, Code: h.Code})
	}
	return m
}

// ModelToSessionState maps a stored session back to its entity.
func ModelToSessionState(m *model.SessionState) *entity.SessionState {
	s := &entity.SessionState{
		SessionID:      m.SessionID,
		ExecutionCount: m.ExecutionCount,
		History:        make([]entity.HistoryEntry, 0, len(m.History)),
		Variables:      m.Variables,
		UpdatedAt:      m.UpdatedAt,
	}
	for _, h := range m.History {
		s.History = append(s.History, entity.HistoryEntry{ExecutionCount: h.Line, Code: h.Code})
	}
	return s
}
