package entity

import "time"

// ExecutionStatus is the outcome reported in an execute reply.
type ExecutionStatus string

const (
	StatusOK      ExecutionStatus = "ok"
	StatusError   ExecutionStatus = "error"
	StatusAborted ExecutionStatus = "aborted"
)

// HistoryEntry is one executed cell.
type HistoryEntry struct {
	ExecutionCount int    `json:"execution_count"`
	Code           string `json:"code"`
}

// SessionState is the persisted form of an InternalSession.
type SessionState struct {
	SessionID      string         `json:"session_id"`
	ExecutionCount int            `json:"execution_count"`
	History        []HistoryEntry `json:"history"`
	Variables      map[string]any `json:"variables,omitempty"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// SessionInfo summarizes a live InternalSession.
type SessionInfo struct {
	SessionID      string    `json:"session_id"`
	ExecutionCount int       `json:"execution_count"`
	Tainted        bool      `json:"tainted"`
	Busy           bool      `json:"busy"`
	Queued         int       `json:"queued"`
	LastUsed       time.Time `json:"last_used"`
}

// ExecutionResult is what the dispatcher returns for one execute request.
type ExecutionResult struct {
	Status         ExecutionStatus
	ExecutionCount int
	// Data maps MIME type to a representation of the value of the last expression, if any.
	Data map[string]any
	// Err is set when Status is not ok.
	Err error
}
