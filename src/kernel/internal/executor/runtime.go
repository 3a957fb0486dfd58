// Package executor defines the contract between the kernel and an embedded script runtime, and an
// Executor that runs cells against it with logging and metrics.
package executor

import (
	"context"
)

//go:generate mockgen -source=runtime.go -destination=executormock/runtime.go -package=executormock

// Runtime creates per-session execution contexts.
type Runtime interface {
	Name() string
	LanguageInfo() LanguageInfo
	// NewContext creates the persistent state for one internal session.
	NewContext(ctx context.Context, sessionID string) (Context, error)
}

// LanguageInfo describes the scripting language for kernel_info.
type LanguageInfo struct {
	Name          string
	Version       string
	MimeType      string
	FileExtension string
}

// Context is the persistent state of one session. Calls are never concurrent.
type Context interface {
	// Execute runs one cell. Script failures are returned as *errors.RuntimeError.
	// Implementations stop at the next safe point once ctx is done.
	Execute(ctx context.Context, req Request) (Outcome, error)
	Close() error
}

// Request is one cell to execute.
type Request struct {
	Code string
	// Source names the cell in locations reported to Hooks, e.g. a script path.
	Source string
	// Hooks is nil unless a debugger is attached.
	Hooks  Hooks
	Output Output
}

// Outcome is what a successful execution produced.
type Outcome struct {
	// Data maps MIME types to representations of the last expression's value. Nil when there is none.
	Data map[string]any
}

// Location is a position in a source.
type Location struct {
	Source string
	Line   int
}

// Vars are the variables visible at a safe point.
type Vars struct {
	Locals  map[string]any
	Globals map[string]any
}

// Hooks receive control at safe points while debugging. An error returned from Line or Exception
// aborts the execution with that error.
type Hooks interface {
	Line(ctx context.Context, loc Location, vars Vars) error
	Enter(function string, loc Location)
	Leave()
	Exception(ctx context.Context, err error, loc Location, vars Vars) error
}

// Output receives what a cell produces while it runs.
type Output interface {
	Stdout(text string)
	Stderr(text string)
	Display(data map[string]any)
	// Input asks the client for a line of text.
	Input(ctx context.Context, prompt string, password bool) (string, error)
}

// Snapshot is an opaque copy of a Context's state.
type Snapshot any

// Snapshotter is implemented by contexts that can roll back a failed execution. A Snapshot may be
// restored into any Context created by the same Runtime.
type Snapshotter interface {
	Snapshot() (Snapshot, error)
	Restore(Snapshot) error
}

// StateExporter is implemented by contexts whose variables can be persisted.
type StateExporter interface {
	// Export returns the variables that survive a round trip through JSON.
	Export() (map[string]any, error)
	Import(vars map[string]any) error
}

// Inspector is implemented by contexts that answer editor queries.
type Inspector interface {
	Inspect(code string, cursor int) (data map[string]any, found bool, err error)
	Complete(code string, cursor int) (matches []string, start, end int, err error)
	// IsComplete returns complete, incomplete, invalid or unknown, and the indent for a continuation line.
	IsComplete(code string) (status string, indent string)
}

// Completeness statuses.
const (
	Complete   = "complete"
	Incomplete = "incomplete"
	Invalid    = "invalid"
	Unknown    = "unknown"
)

// NopOutput discards output and refuses input.
type NopOutput struct{}

func (NopOutput) Stdout(string)          {}
func (NopOutput) Stderr(string)          {}
func (NopOutput) Display(map[string]any) {}
func (NopOutput) Input(context.Context, string, bool) (string, error) {
	return "", ErrInputUnavailable
}
