package mapper

import (
	"strconv"
	"strings"

	"github.com/llmspell/spellkernel/src/kernel/entity"
)

// DAPSource is a Debug Adapter Protocol source reference.
type DAPSource struct {
	Name string `json:"name,omitempty"`
	Path string `json:"path"`
}

// DAPSourceBreakpoint is one entry of setBreakpoints arguments.
type DAPSourceBreakpoint struct {
	Line         int    `json:"line"`
	Condition    string `json:"condition,omitempty"`
	HitCondition string `json:"hitCondition,omitempty"`
}

// DAPBreakpoint is a breakpoint as reported to the client.
type DAPBreakpoint struct {
	ID       int       `json:"id"`
	Verified bool      `json:"verified"`
	Line     int       `json:"line"`
	Message  string    `json:"message,omitempty"`
	Source   DAPSource `json:"source"`
}

// DAPStackFrame is one frame of a stackTrace response.
type DAPStackFrame struct {
	ID     int       `json:"id"`
	Name   string    `json:"name"`
	Line   int       `json:"line"`
	Column int       `json:"column"`
	Source DAPSource `json:"source"`
}

// DAPToBreakpointSpecs maps setBreakpoints entries. A hit condition of n means the breakpoint
// pauses on its nth hit.
func DAPToBreakpointSpecs(in []DAPSourceBreakpoint) []entity.BreakpointSpec {
	specs := make([]entity.BreakpointSpec, 0, len(in))
	for _, b := range in {
		spec := entity.BreakpointSpec{Line: b.Line, Condition: b.Condition}
		if n, err := strconv.Atoi(strings.TrimSpace(strings.TrimLeft(b.HitCondition, "=>"))); err == nil && n > 1 {
			spec.IgnoreCount = n - 1
		}
		specs = append(specs, spec)
	}
	return specs
}

// BreakpointsToDAP maps breakpoints to their client form.
func BreakpointsToDAP(bps []entity.Breakpoint) []DAPBreakpoint {
	out := make([]DAPBreakpoint, 0, len(bps))
	for _, bp := range bps {
		out = append(out, BreakpointToDAP(bp))
	}
	return out
}

// BreakpointToDAP maps one breakpoint to its client form.
func BreakpointToDAP(bp entity.Breakpoint) DAPBreakpoint {
	return DAPBreakpoint{
		ID:       bp.ID,
		Verified: bp.Verified && bp.Enabled,
		Line:     bp.Line,
		Message:  bp.Message,
		Source:   DAPSource{Path: bp.Source},
	}
}

// FramesToDAP maps a stack, innermost first.
func FramesToDAP(frames []entity.StackFrame) []DAPStackFrame {
	out := make([]DAPStackFrame, 0, len(frames))
	for _, f := range frames {
		out = append(out, DAPStackFrame{
			ID:     f.ID,
			Name:   f.Name,
			Line:   f.Line,
			Column: 1,
			Source: DAPSource{Path: f.Source},
		})
	}
	return out
}
