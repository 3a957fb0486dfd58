package entity

import "time"

// ResourceLimits bounds what a single client may consume. Zero values mean unlimited.
type ResourceLimits struct {
	MaxConcurrentExecutions int           `yaml:"maxConcurrentExecutions" json:"max_concurrent_executions"`
	ExecutionTimeout        time.Duration `yaml:"-" json:"execution_timeout"`
	MaxMemoryBytes          uint64        `yaml:"maxMemoryBytes" json:"max_memory_bytes"`
}

// Cost describes the resources a request is about to consume.
type Cost struct {
	Executions int
}

// ClientSession is a registered client connection.
type ClientSession struct {
	ID               string         `json:"id" zap:"id"`
	Token            string         `json:"-" zap:"-"`
	Limits           ResourceLimits `json:"limits" zap:"-"`
	ActiveExecutions int            `json:"active_executions" zap:"active_executions"`
	RegisteredAt     time.Time      `json:"registered_at" zap:"-"`
	LastSeen         time.Time      `json:"last_seen" zap:"-"`
}
