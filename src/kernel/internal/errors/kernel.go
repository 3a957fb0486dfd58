package errors

import (
	stderr "errors"
	"fmt"
	"strings"
	"time"
)

// Error names carried in error replies.
const (
	NameTransport          = "TransportError"
	NameProtocolDecode     = "ProtocolDecodeError"
	NameAuth               = "AuthError"
	NameConcurrencyLimit   = "ConcurrencyLimitExceeded"
	NameTimeout            = "Timeout"
	NameMemoryLimit        = "MemoryLimitExceeded"
	NameSessionTainted     = "SessionTainted"
	NameDebug              = "DebugError"
	NameInterrupted        = "Interrupted"
	NameUnsupportedMessage = "UnsupportedMessage"
	NameKernel             = "KernelError"
)

// TransportError indicates a bind, connect, send or receive failure on a channel.
type TransportError struct {
	Op      string
	Channel string
	Peer    string
	Err     error
}

// Error is an implementation of the error interface.
func (e *TransportError) Error() string {
	if e.Peer != "" {
		return fmt.Sprintf("transport %s on %s (peer %s): %v", e.Op, e.Channel, e.Peer, e.Err)
	}
	return fmt.Sprintf("transport %s on %s: %v", e.Op, e.Channel, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolDecodeError indicates a malformed frame sequence.
type ProtocolDecodeError struct {
	Protocol string
	Reason   string
	Err      error
	// Identities are the routing frames that preceded the malformed part, nil when none could be
	// told apart.
	Identities [][]byte
}

// Error is an implementation of the error interface.
func (e *ProtocolDecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s decode: %s: %v", e.Protocol, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s decode: %s", e.Protocol, e.Reason)
}

func (e *ProtocolDecodeError) Unwrap() error { return e.Err }

// AuthError indicates a missing or invalid authentication token.
type AuthError struct {
	Reason string
}

// Error is an implementation of the error interface.
func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

// ConcurrencyLimitExceededError indicates the client already runs its maximum number of executions.
type ConcurrencyLimitExceededError struct {
	ClientID string
	Limit    int
}

// Error is an implementation of the error interface.
func (e *ConcurrencyLimitExceededError) Error() string {
	return fmt.Sprintf("client %q reached its limit of %d concurrent executions", e.ClientID, e.Limit)
}

// TimeoutError indicates an execution exceeded its wall-clock budget.
type TimeoutError struct {
	SessionID string
	Timeout   time.Duration
}

// Error is an implementation of the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("execution in session %q exceeded timeout of %s", e.SessionID, e.Timeout)
}

// MemoryLimitExceededError indicates an execution grew the heap beyond its ceiling.
type MemoryLimitExceededError struct {
	SessionID string
	Limit     uint64
	Used      uint64
}

// Error is an implementation of the error interface.
func (e *MemoryLimitExceededError) Error() string {
	return fmt.Sprintf("execution in session %q used %d bytes, limit is %d", e.SessionID, e.Used, e.Limit)
}

// SessionTaintedError indicates that a session could not be rolled back after an aborted execution.
type SessionTaintedError struct {
	SessionID string
}

// Error is an implementation of the error interface.
func (e *SessionTaintedError) Error() string {
	return fmt.Sprintf("session %q is tainted by an aborted execution and must be cleared", e.SessionID)
}

// DebugError indicates an invalid breakpoint, condition or debug command argument.
type DebugError struct {
	BreakpointID int
	Reason       string
	Err          error
}

// Error is an implementation of the error interface.
func (e *DebugError) Error() string {
	msg := e.Reason
	if e.BreakpointID != 0 {
		msg = fmt.Sprintf("breakpoint %d: %s", e.BreakpointID, e.Reason)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *DebugError) Unwrap() error { return e.Err }

// RuntimeError is a script-level failure reported by the runtime.
type RuntimeError struct {
	Name      string
	Value     string
	Traceback []string
}

// Error is an implementation of the error interface.
func (e *RuntimeError) Error() string {
	if len(e.Traceback) == 0 {
		return fmt.Sprintf("%s: %s", e.Name, e.Value)
	}
	return fmt.Sprintf("%s: %s\n%s", e.Name, e.Value, strings.Join(e.Traceback, "\n"))
}

// ClientNotFoundError indicates that no registered client matches the id.
type ClientNotFoundError struct {
	ClientID string
}

// Error is an implementation of the error interface.
func (e *ClientNotFoundError) Error() string {
	return fmt.Sprintf("client %q not found", e.ClientID)
}

// NotFoundClient returns the client id carried by a ClientNotFoundError, if err is one.
func NotFoundClient(err error) (string, bool) {
	var nf *ClientNotFoundError
	if stderr.As(err, &nf) {
		return nf.ClientID, true
	}
	return "", false
}

// AsProtocolDecode returns the ProtocolDecodeError wrapped in err, if any.
func AsProtocolDecode(err error) (*ProtocolDecodeError, bool) {
	var de *ProtocolDecodeError
	if stderr.As(err, &de) {
		return de, true
	}
	return nil, false
}

// AsRuntime returns the RuntimeError wrapped in err, if any.
func AsRuntime(err error) (*RuntimeError, bool) {
	var re *RuntimeError
	if stderr.As(err, &re) {
		return re, true
	}
	return nil, false
}

// IsAuth reports whether err is an AuthError.
func IsAuth(err error) bool {
	var ae *AuthError
	return stderr.As(err, &ae)
}

// IsTimeout reports whether err is a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return stderr.As(err, &te)
}

// IsFatalTransport reports whether err is a transport failure on a channel the kernel cannot run without.
func IsFatalTransport(err error) bool {
	var te *TransportError
	if !stderr.As(err, &te) {
		return false
	}
	return te.Peer == "" && (te.Channel == "control" || te.Channel == "hb")
}

// Name maps an error to the exception name reported to clients.
func Name(err error) string {
	var (
		transport *TransportError
		decode    *ProtocolDecodeError
		auth      *AuthError
		limit     *ConcurrencyLimitExceededError
		timeout   *TimeoutError
		memory    *MemoryLimitExceededError
		tainted   *SessionTaintedError
		debug     *DebugError
		runtime   *RuntimeError
	)
	switch {
	case err == nil:
		return ""
	case stderr.As(err, &runtime):
		return runtime.Name
	case stderr.As(err, &auth):
		return NameAuth
	case stderr.As(err, &limit):
		return NameConcurrencyLimit
	case stderr.As(err, &timeout):
		return NameTimeout
	case stderr.As(err, &memory):
		return NameMemoryLimit
	case stderr.As(err, &tainted):
		return NameSessionTainted
	case stderr.As(err, &debug), IsDebugControl(err):
		return NameDebug
	case stderr.As(err, &decode):
		return NameProtocolDecode
	case stderr.As(err, &transport):
		return NameTransport
	case stderr.Is(err, ErrInterrupted):
		return NameInterrupted
	case stderr.Is(err, ErrUnsupportedMessage):
		return NameUnsupportedMessage
	default:
		return NameKernel
	}
}
