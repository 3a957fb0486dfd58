package errors

import stderr "errors"

// New returns an error that formats as the given text.
// Each call to New returns a distinct error value even if the text is identical.
func New(msg string) error {
	return stderr.New(msg)
}

var (
	// ErrAlreadyDebugging reports that a debug launch targeted a script path or session that is already locked.
	ErrAlreadyDebugging = New("already being debugged")
	// ErrNoDriveRights reports that a client without drive rights issued a continue or step command.
	ErrNoDriveRights = New("client does not hold drive rights for this debug session")
	// ErrNotPaused reports that a command requiring a paused execution was issued while running.
	ErrNotPaused = New("execution is not paused")
	// ErrNotDebugging reports that no debug session is active for the session id.
	ErrNotDebugging = New("no active debug session")
	// ErrTerminated reports that the debug session was terminated and execution must stop.
	ErrTerminated = New("debug session terminated")
	// ErrUncorrelatedReply reports an attempt to encode a reply whose parent request was never decoded.
	ErrUncorrelatedReply = New("reply parent does not reference an observed request")
	// ErrShuttingDown reports that the kernel no longer accepts work.
	ErrShuttingDown = New("kernel is shutting down")
	// ErrUnsupportedMessage reports a well-formed message of a type the kernel does not handle.
	ErrUnsupportedMessage = New("unsupported message type")
	// ErrChannelClosed reports a send or receive on a closed transport.
	ErrChannelClosed = New("transport channel closed")
	// ErrInterrupted reports that an execution was stopped by an interrupt request.
	ErrInterrupted = New("execution interrupted")
)

// IsBadRequest reports whether the error was caused by the request itself rather than the kernel.
func IsBadRequest(e error) bool {
	var decode *ProtocolDecodeError
	var auth *AuthError
	return stderr.As(e, &decode) || stderr.As(e, &auth) || stderr.Is(e, ErrUnsupportedMessage)
}

// IsDebugControl reports whether the error is a debug command rejection that leaves the session untouched.
func IsDebugControl(e error) bool {
	return stderr.Is(e, ErrAlreadyDebugging) ||
		stderr.Is(e, ErrNoDriveRights) ||
		stderr.Is(e, ErrNotPaused) ||
		stderr.Is(e, ErrNotDebugging)
}
