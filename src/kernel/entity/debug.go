package entity

import "fmt"

// StopReason explains why execution paused.
type StopReason string

const (
	StopBreakpoint StopReason = "breakpoint"
	StopStep       StopReason = "step"
	StopException  StopReason = "exception"
	StopEntry      StopReason = "entry"
	StopExit       StopReason = "exit"
	StopPause      StopReason = "pause"
)

// DebugStateKind enumerates the debug state machine.
type DebugStateKind int

const (
	DebugRunning DebugStateKind = iota
	DebugPaused
	DebugStepping
	DebugTerminated
)

func (k DebugStateKind) String() string {
	switch k {
	case DebugRunning:
		return "running"
	case DebugPaused:
		return "paused"
	case DebugStepping:
		return "stepping"
	case DebugTerminated:
		return "terminated"
	}
	return fmt.Sprintf("DebugStateKind(%d)", int(k))
}

// DebugState is the current state of a debug session. Reason, BreakpointID and Message are only set when paused.
type DebugState struct {
	Kind         DebugStateKind
	Reason       StopReason
	BreakpointID int
	Message      string
}

func (s DebugState) String() string {
	if s.Kind != DebugPaused {
		return s.Kind.String()
	}
	switch s.Reason {
	case StopBreakpoint:
		return fmt.Sprintf("paused(breakpoint %d)", s.BreakpointID)
	case StopException:
		return fmt.Sprintf("paused(exception: %s)", s.Message)
	}
	return fmt.Sprintf("paused(%s)", s.Reason)
}

// Breakpoint is a pause point at a source line.
type Breakpoint struct {
	ID          int    `json:"id"`
	Source      string `json:"source"`
	Line        int    `json:"line"`
	Condition   string `json:"condition,omitempty"`
	HitCount    int    `json:"hitCount"`
	IgnoreCount int    `json:"ignoreCount,omitempty"`
	Enabled     bool   `json:"enabled"`
	Verified    bool   `json:"verified"`
	Message     string `json:"message,omitempty"`
}

// BreakpointSpec is a requested breakpoint before the bridge assigns it an id.
type BreakpointSpec struct {
	Line        int
	Condition   string
	IgnoreCount int
}

// StackFrame is a snapshot of one activation record while paused.
type StackFrame struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Source string `json:"source"`
	Line   int    `json:"line"`
}

// Scope groups the variables of a frame.
type Scope struct {
	Name               string `json:"name"`
	VariablesReference int    `json:"variablesReference"`
	Expensive          bool   `json:"expensive"`
}

// Variable is a snapshot of a named value. A non-zero VariablesReference can be expanded lazily.
type Variable struct {
	Name               string `json:"name"`
	Value              string `json:"value"`
	Type               string `json:"type,omitempty"`
	VariablesReference int    `json:"variablesReference"`
}
