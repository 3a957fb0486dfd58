package protocol

import (
	"encoding/json"

	kerrors "github.com/llmspell/spellkernel/src/kernel/internal/errors"
)

// Reply statuses.
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusAborted = "aborted"
)

// Execution states announced on iopub.
const (
	StateStarting = "starting"
	StateBusy     = "busy"
	StateIdle     = "idle"
)

// LanguageInfo describes the scripting language.
type LanguageInfo struct {
	Name           string `json:"name"`
	Version        string `json:"version"`
	MimeType       string `json:"mimetype"`
	FileExtension  string `json:"file_extension"`
	PygmentsLexer  string `json:"pygments_lexer,omitempty"`
	CodemirrorMode string `json:"codemirror_mode,omitempty"`
}

// KernelInfoReplyContent answers kernel_info_request.
type KernelInfoReplyContent struct {
	Status                string       `json:"status"`
	ProtocolVersion       string       `json:"protocol_version"`
	Implementation        string       `json:"implementation"`
	ImplementationVersion string       `json:"implementation_version"`
	LanguageInfo          LanguageInfo `json:"language_info"`
	Banner                string       `json:"banner"`
	Debugger              bool         `json:"debugger"`
	HelpLinks             []HelpLink   `json:"help_links"`
}

// HelpLink is an entry in kernel_info help_links.
type HelpLink struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

// ExecuteRequestContent is the payload of execute_request.
type ExecuteRequestContent struct {
	Code            string            `json:"code"`
	Silent          bool              `json:"silent"`
	StoreHistory    *bool             `json:"store_history,omitempty"`
	UserExpressions map[string]string `json:"user_expressions,omitempty"`
	AllowStdin      bool              `json:"allow_stdin"`
	StopOnError     bool              `json:"stop_on_error"`
}

// ShouldStoreHistory applies the protocol default: store unless silent or told otherwise.
func (c ExecuteRequestContent) ShouldStoreHistory() bool {
	if c.StoreHistory != nil {
		return *c.StoreHistory
	}
	return !c.Silent
}

// ExecuteReplyContent answers execute_request.
type ExecuteReplyContent struct {
	Status          string         `json:"status"`
	ExecutionCount  int            `json:"execution_count"`
	Ename           string         `json:"ename,omitempty"`
	Evalue          string         `json:"evalue,omitempty"`
	Traceback       []string       `json:"traceback,omitempty"`
	UserExpressions map[string]any `json:"user_expressions,omitempty"`
	Payload         []any          `json:"payload,omitempty"`
}

// ExecuteInputContent rebroadcasts the code being run.
type ExecuteInputContent struct {
	Code           string `json:"code"`
	ExecutionCount int    `json:"execution_count"`
}

// ExecuteResultContent carries the value of the last expression.
type ExecuteResultContent struct {
	ExecutionCount int            `json:"execution_count"`
	Data           map[string]any `json:"data"`
	Metadata       map[string]any `json:"metadata"`
}

// DisplayDataContent carries rich output produced during execution.
type DisplayDataContent struct {
	Data      map[string]any `json:"data"`
	Metadata  map[string]any `json:"metadata"`
	Transient map[string]any `json:"transient,omitempty"`
}

// StreamContent carries stdout or stderr text.
type StreamContent struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// ErrorContent describes a failure, on iopub or inside an error reply.
type ErrorContent struct {
	Status    string   `json:"status,omitempty"`
	Ename     string   `json:"ename"`
	Evalue    string   `json:"evalue"`
	Traceback []string `json:"traceback"`
}

// StatusContent announces the kernel's execution state.
type StatusContent struct {
	ExecutionState string `json:"execution_state"`
}

// InputRequestContent asks the client for a line of input.
type InputRequestContent struct {
	Prompt   string `json:"prompt"`
	Password bool   `json:"password"`
}

// InputReplyContent carries the user's answer.
type InputReplyContent struct {
	Value string `json:"value"`
}

// InspectRequestContent asks for information about the name at a cursor.
type InspectRequestContent struct {
	Code        string `json:"code"`
	CursorPos   int    `json:"cursor_pos"`
	DetailLevel int    `json:"detail_level"`
}

// InspectReplyContent answers inspect_request.
type InspectReplyContent struct {
	Status   string         `json:"status"`
	Found    bool           `json:"found"`
	Data     map[string]any `json:"data"`
	Metadata map[string]any `json:"metadata"`
}

// CompleteRequestContent asks for completions at a cursor.
type CompleteRequestContent struct {
	Code      string `json:"code"`
	CursorPos int    `json:"cursor_pos"`
}

// CompleteReplyContent answers complete_request.
type CompleteReplyContent struct {
	Status      string         `json:"status"`
	Matches     []string       `json:"matches"`
	CursorStart int            `json:"cursor_start"`
	CursorEnd   int            `json:"cursor_end"`
	Metadata    map[string]any `json:"metadata"`
}

// IsCompleteRequestContent asks whether code is ready to run.
type IsCompleteRequestContent struct {
	Code string `json:"code"`
}

// IsCompleteReplyContent answers is_complete_request.
type IsCompleteReplyContent struct {
	Status string `json:"status"`
	Indent string `json:"indent,omitempty"`
}

// HistoryRequestContent selects history entries.
type HistoryRequestContent struct {
	Output         bool   `json:"output"`
	Raw            bool   `json:"raw"`
	HistAccessType string `json:"hist_access_type"`
	N              int    `json:"n"`
	Pattern        string `json:"pattern"`
	Unique         bool   `json:"unique"`
}

// HistoryReplyContent answers history_request. Entries are (session, line, input) triples.
type HistoryReplyContent struct {
	Status  string  `json:"status"`
	History [][]any `json:"history"`
}

// CommInfoRequestContent lists open comms, optionally for one target.
type CommInfoRequestContent struct {
	TargetName string `json:"target_name,omitempty"`
}

// CommInfoReplyContent answers comm_info_request.
type CommInfoReplyContent struct {
	Status string                    `json:"status"`
	Comms  map[string]CommInfoTarget `json:"comms"`
}

// CommInfoTarget names the target a comm was opened against.
type CommInfoTarget struct {
	TargetName string `json:"target_name"`
}

// CommContent covers comm_open, comm_msg and comm_close.
type CommContent struct {
	CommID     string          `json:"comm_id"`
	TargetName string          `json:"target_name,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// ShutdownContent is both the request and the reply payload of shutdown.
type ShutdownContent struct {
	Status  string `json:"status,omitempty"`
	Restart bool   `json:"restart"`
}

// StatusReplyContent is the bare reply used by interrupt, disconnect and clear_session.
type StatusReplyContent struct {
	Status string `json:"status"`
}

// RegisterClientRequestContent asks the kernel for a client credential.
type RegisterClientRequestContent struct {
	ClientID                string `json:"client_id"`
	MaxConcurrentExecutions int    `json:"max_concurrent_executions,omitempty"`
	ExecutionTimeoutMs      int    `json:"execution_timeout_ms,omitempty"`
	MaxMemoryBytes          int64  `json:"max_memory_bytes,omitempty"`
}

// RegisterClientReplyContent carries the issued token.
type RegisterClientReplyContent struct {
	Status   string `json:"status"`
	ClientID string `json:"client_id"`
	Token    string `json:"token"`
}

// DisconnectRequestContent names the client leaving. Empty means the sender.
type DisconnectRequestContent struct {
	ClientID string `json:"client_id,omitempty"`
}

// ClearSessionRequestContent names the session to reset. Empty means the sender's session.
type ClearSessionRequestContent struct {
	Session string `json:"session,omitempty"`
}

// DebugRequestContent is a Debug Adapter Protocol request.
type DebugRequestContent struct {
	Seq       int             `json:"seq"`
	Type      string          `json:"type"`
	Command   string          `json:"command"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// DebugReplyContent is a Debug Adapter Protocol response.
type DebugReplyContent struct {
	Seq        int    `json:"seq"`
	Type       string `json:"type"`
	RequestSeq int    `json:"request_seq"`
	Success    bool   `json:"success"`
	Command    string `json:"command"`
	Message    string `json:"message,omitempty"`
	Body       any    `json:"body,omitempty"`
}

// DebugEventContent is a Debug Adapter Protocol event.
type DebugEventContent struct {
	Seq   int    `json:"seq"`
	Type  string `json:"type"`
	Event string `json:"event"`
	Body  any    `json:"body,omitempty"`
}

// NewErrorContent renders err for an error reply or an iopub error message.
func NewErrorContent(err error) ErrorContent {
	c := ErrorContent{
		Status:    StatusError,
		Ename:     kerrors.Name(err),
		Evalue:    err.Error(),
		Traceback: []string{},
	}
	if rt, ok := kerrors.AsRuntime(err); ok {
		c.Ename = rt.Name
		c.Evalue = rt.Value
		if rt.Traceback != nil {
			c.Traceback = rt.Traceback
		}
	}
	return c
}
