// Package model holds the repository layer representations of kernel entities.
package model

import "time"

// Client is the repository layer model for a registered client.
type Client struct {
	ID                      string
	Token                   string
	MaxConcurrentExecutions int
	ExecutionTimeout        time.Duration
	MaxMemoryBytes          uint64
	ActiveExecutions        int
	RegisteredAt            time.Time
	LastSeen                time.Time
	// Provisioned clients were created from the tokens file and are revoked when their entry disappears.
	Provisioned bool
}

// SessionState is the store layer model of a persisted execution session.
type SessionState struct {
	SessionID      string          `json:"session_id"`
	ExecutionCount int             `json:"execution_count"`
	History        []HistoryRecord `json:"history"`
	Variables      map[string]any  `json:"variables,omitempty"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// HistoryRecord is one stored history line.
type HistoryRecord struct {
	Line int    `json:"line"`
	Code string `json:"code"`
}
