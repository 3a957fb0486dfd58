package kernel

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	stderr "errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/llmspell/spellkernel/src/kernel/controller/debugger"
	"github.com/llmspell/spellkernel/src/kernel/controller/dispatcher"
	"github.com/llmspell/spellkernel/src/kernel/entity"
	"github.com/llmspell/spellkernel/src/kernel/internal/errors"
	"github.com/llmspell/spellkernel/src/kernel/internal/protocol"
	"github.com/llmspell/spellkernel/src/kernel/mapper"
	"go.uber.org/zap"
)

const (
	_threadID = 1
	_cellDir  = "spellkernel-cells"
)

// Debug Adapter Protocol commands.
const (
	CommandInitialize              = "initialize"
	CommandLaunch                  = "launch"
	CommandAttach                  = "attach"
	CommandSetBreakpoints          = "setBreakpoints"
	CommandSetExceptionBreakpoints = "setExceptionBreakpoints"
	CommandConfigurationDone       = "configurationDone"
	CommandContinue                = "continue"
	CommandNext                    = "next"
	CommandStepIn                  = "stepIn"
	CommandStepOut                 = "stepOut"
	CommandPause                   = "pause"
	CommandStackTrace              = "stackTrace"
	CommandScopes                  = "scopes"
	CommandVariables               = "variables"
	CommandEvaluate                = "evaluate"
	CommandThreads                 = "threads"
	CommandDisconnect              = "disconnect"
	CommandTerminate               = "terminate"
	CommandDumpCell                = "dumpCell"
	CommandDebugInfo               = "debugInfo"
)

type launchArguments struct {
	Program     string `json:"program"`
	StopOnEntry bool   `json:"stopOnEntry"`
}

type setBreakpointsArguments struct {
	Source      mapper.DAPSource             `json:"source"`
	Breakpoints []mapper.DAPSourceBreakpoint `json:"breakpoints"`
}

type setExceptionBreakpointsArguments struct {
	Filters []string `json:"filters"`
}

type frameArguments struct {
	FrameID int `json:"frameId"`
}

type variablesArguments struct {
	VariablesReference int `json:"variablesReference"`
}

type evaluateArguments struct {
	Expression string `json:"expression"`
	FrameID    int    `json:"frameId"`
}

type dumpCellArguments struct {
	Code string `json:"code"`
}

// Debug answers a Debug Adapter Protocol request. Commands that fail are answered with
// success set to false and the reason in the message.
func (k *kernel) Debug(ctx context.Context, req *request) {
	var dr protocol.DebugRequestContent
	if err := k.decode(req, &dr); err != nil {
		return
	}
	k.setDebugRequest(req.session, req.msg)

	body, err := k.dap(ctx, req, dr)
	resp := protocol.DebugReplyContent{
		Seq:        k.nextDebugSeq(),
		Type:       "response",
		RequestSeq: dr.Seq,
		Success:    err == nil,
		Command:    dr.Command,
		Body:       body,
	}
	if err != nil {
		k.stats.Tagged(map[string]string{"command": dr.Command}).Counter("debug_errors").Inc(1)
		k.logger.Infow("debug command failed", "command", dr.Command, "session", req.session, zap.Error(err))
		resp.Message = err.Error()
		resp.Body = nil
	}
	k.reply(req, resp)
}

func (k *kernel) dap(ctx context.Context, req *request, dr protocol.DebugRequestContent) (any, error) {
	sid, cid := req.session, req.client

	switch dr.Command {
	case CommandInitialize:
		return capabilities(), nil

	case CommandAttach:
		return nil, k.debugger.Launch(ctx, sid, cid, debugger.LaunchOptions{})

	case CommandLaunch:
		var args launchArguments
		if err := arguments(dr, &args); err != nil {
			return nil, err
		}
		return nil, k.debugger.Launch(ctx, sid, cid, debugger.LaunchOptions{Program: args.Program, StopOnEntry: args.StopOnEntry})

	case CommandConfigurationDone:
		return nil, k.runProgram(req)

	case CommandSetBreakpoints:
		var args setBreakpointsArguments
		if err := arguments(dr, &args); err != nil {
			return nil, err
		}
		bps, err := k.debugger.SetBreakpoints(ctx, sid, cid, args.Source.Path, mapper.DAPToBreakpointSpecs(args.Breakpoints))
		if err != nil {
			return nil, err
		}
		return map[string]any{"breakpoints": mapper.BreakpointsToDAP(bps)}, nil

	case CommandSetExceptionBreakpoints:
		var args setExceptionBreakpointsArguments
		if err := arguments(dr, &args); err != nil {
			return nil, err
		}
		return nil, k.debugger.SetExceptionBreakpoints(ctx, sid, cid, len(args.Filters) > 0)

	case CommandContinue:
		if err := k.debugger.Continue(ctx, sid, cid); err != nil {
			return nil, err
		}
		return map[string]any{"allThreadsContinued": true}, nil

	case CommandNext:
		return nil, k.debugger.StepOver(ctx, sid, cid)

	case CommandStepIn:
		return nil, k.debugger.StepInto(ctx, sid, cid)

	case CommandStepOut:
		return nil, k.debugger.StepOut(ctx, sid, cid)

	case CommandPause:
		return nil, k.debugger.Pause(ctx, sid, cid)

	case CommandThreads:
		return map[string]any{"threads": []map[string]any{{"id": _threadID, "name": "main"}}}, nil

	case CommandStackTrace:
		frames, err := k.debugger.StackTrace(ctx, sid)
		if err != nil {
			return nil, err
		}
		return map[string]any{"stackFrames": mapper.FramesToDAP(frames), "totalFrames": len(frames)}, nil

	case CommandScopes:
		var args frameArguments
		if err := arguments(dr, &args); err != nil {
			return nil, err
		}
		scopes, err := k.debugger.Scopes(ctx, sid, args.FrameID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"scopes": scopes}, nil

	case CommandVariables:
		var args variablesArguments
		if err := arguments(dr, &args); err != nil {
			return nil, err
		}
		vars, err := k.debugger.Variables(ctx, sid, args.VariablesReference)
		if err != nil {
			return nil, err
		}
		return map[string]any{"variables": vars}, nil

	case CommandEvaluate:
		var args evaluateArguments
		if err := arguments(dr, &args); err != nil {
			return nil, err
		}
		v, err := k.debugger.Evaluate(ctx, sid, args.FrameID, args.Expression)
		if err != nil {
			return nil, err
		}
		return map[string]any{"result": v.Value, "type": v.Type, "variablesReference": v.VariablesReference}, nil

	case CommandDumpCell:
		var args dumpCellArguments
		if err := arguments(dr, &args); err != nil {
			return nil, err
		}
		path, err := k.dumpCell(args.Code)
		if err != nil {
			return nil, err
		}
		return map[string]any{"sourcePath": path}, nil

	case CommandDebugInfo:
		return k.debugInfo(ctx, sid), nil

	case CommandDisconnect:
		if err := k.debugger.Detach(ctx, sid, cid); err != nil && !stderr.Is(err, errors.ErrNotDebugging) {
			return nil, err
		}
		return nil, nil

	case CommandTerminate:
		return nil, k.debugger.Terminate(ctx, sid, cid)
	}
	return nil, fmt.Errorf("debug command %q: %w", dr.Command, errors.ErrUnsupportedMessage)
}

func arguments(dr protocol.DebugRequestContent, v any) error {
	if len(dr.Arguments) == 0 {
		return nil
	}
	if err := json.Unmarshal(dr.Arguments, v); err != nil {
		return &errors.DebugError{Reason: "invalid " + dr.Command + " arguments", Err: err}
	}
	return nil
}

func capabilities() map[string]any {
	return map[string]any{
		"supportsConfigurationDoneRequest":  true,
		"supportsConditionalBreakpoints":    true,
		"supportsHitConditionalBreakpoints": true,
		"supportsEvaluateForHovers":         true,
		"supportsTerminateRequest":          true,
		"supportsSetVariable":               false,
		"supportsStepBack":                  false,
		"exceptionBreakpointFilters": []map[string]any{
			{"filter": "raised", "label": "Raised Exceptions", "default": false},
		},
	}
}

// debugInfo reports the state a reconnecting frontend needs to restore its view.
func (k *kernel) debugInfo(ctx context.Context, sessionID string) map[string]any {
	started := k.debugger.Hooks(sessionID) != nil
	bySource := map[string][]mapper.DAPBreakpoint{}
	stopped := []int{}
	if started {
		bps, _ := k.debugger.Breakpoints(ctx, sessionID)
		for _, bp := range bps {
			bySource[bp.Source] = append(bySource[bp.Source], mapper.BreakpointToDAP(bp))
		}
		if st, err := k.debugger.State(ctx, sessionID); err == nil && st.Kind == entity.DebugPaused {
			stopped = append(stopped, _threadID)
		}
	}
	sources := make([]map[string]any, 0, len(bySource))
	for source, bps := range bySource {
		sources = append(sources, map[string]any{"source": source, "breakpoints": bps})
	}
	return map[string]any{
		"isStarted":      started,
		"hashMethod":     "sha256",
		"hashSeed":       0,
		"tmpFilePrefix":  cellDir() + string(filepath.Separator),
		"tmpFileSuffix":  k.runtime.LanguageInfo().FileExtension,
		"breakpoints":    sources,
		"stoppedThreads": stopped,
		"richRendering":  false,
		"exceptionPaths": []string{},
	}
}

// runProgram runs the script a session was launched with, once the client has finished
// configuring breakpoints. Attached sessions have no program and nothing happens.
func (k *kernel) runProgram(req *request) error {
	program, ok := k.debugger.Program(req.session)
	if !ok {
		return nil
	}
	code, err := k.fs.ReadFile(program)
	if err != nil {
		return &errors.DebugError{Reason: "reading " + program, Err: err}
	}

	k.pin(req.msg)
	k.enqueue(req.session, job{
		run: func() {
			defer k.unpin(req.msg)
			res, err := k.dispatcher.Execute(k.ctx, dispatcher.ExecuteRequest{
				SessionID: req.session,
				ClientID:  req.client,
				Code:      string(code),
				Source:    program,
				Output:    &output{k: k, parent: req.msg},
			})
			exitCode := 0
			if err != nil || res.Status != entity.StatusOK {
				exitCode = 1
				if err == nil {
					err = res.Err
				}
				k.logger.Infow("debugged program failed", "program", program, zap.Error(err))
			}
			k.publishDebugEvent(req.session, "exited", map[string]any{"exitCode": exitCode})
			if err := k.debugger.Detach(k.ctx, req.session, req.client); err == nil {
				k.publishDebugEvent(req.session, debugger.EventTerminated, map[string]any{})
			}
		},
		abort: func(err error) {
			defer k.unpin(req.msg)
			k.logger.Infow("debugged program not started", "program", program, zap.Error(err))
		},
	})
	return nil
}

// cellSource names the cell for the debugger when its session is being debugged, so breakpoints
// set on the dumped cell apply to it.
func (k *kernel) cellSource(sessionID, code string) string {
	if k.debugger.Hooks(sessionID) == nil {
		return ""
	}
	path, err := k.dumpCell(code)
	if err != nil {
		k.logger.Warnw("dumping cell", "session", sessionID, zap.Error(err))
	}
	return path
}

// dumpCell writes code to a file named after its hash and returns the path.
func (k *kernel) dumpCell(code string) (string, error) {
	sum := sha256.Sum256([]byte(code))
	path := filepath.Join(cellDir(), hex.EncodeToString(sum[:8])+k.runtime.LanguageInfo().FileExtension)
	if ok, err := k.fs.FileExists(path); err == nil && ok {
		return path, nil
	}
	if err := k.fs.MkdirAll(cellDir()); err != nil {
		return path, fmt.Errorf("creating cell directory: %w", err)
	}
	if err := k.fs.WriteFileAtomic(path, []byte(code), 0o644); err != nil {
		return path, fmt.Errorf("writing cell: %w", err)
	}
	return path, nil
}

func cellDir() string {
	return filepath.Join(os.TempDir(), _cellDir)
}

// setDebugRequest records the request debug events of a session are published about.
func (k *kernel) setDebugRequest(sessionID string, msg *protocol.Message) {
	k.pin(msg)
	k.mu.Lock()
	prev, ok := k.debugReqs[sessionID]
	k.debugReqs[sessionID] = msg
	k.mu.Unlock()
	if ok {
		k.unpin(prev)
	}
}

func (k *kernel) forwardDebugEvent(ev debugger.Event) {
	k.publishDebugEvent(ev.SessionID, ev.Name, ev.Body)
}

// publishDebugEvent broadcasts a debug event about the latest request of its session. Events for
// sessions no client has talked to are dropped.
func (k *kernel) publishDebugEvent(sessionID, name string, body map[string]any) {
	k.mu.Lock()
	parent, ok := k.debugReqs[sessionID]
	terminated := ok && name == debugger.EventTerminated
	if terminated {
		delete(k.debugReqs, sessionID)
	}
	k.mu.Unlock()
	if !ok {
		k.logger.Debugw("dropping debug event without a request", "session", sessionID, "event", name)
		return
	}
	if terminated {
		defer k.unpin(parent)
	}
	k.stats.Tagged(map[string]string{"event": name}).Counter("debug_events").Inc(1)
	k.broadcast(parent, protocol.DebugEvent, protocol.DebugEventContent{
		Seq:   k.nextDebugSeq(),
		Type:  "event",
		Event: name,
		Body:  body,
	})
}
