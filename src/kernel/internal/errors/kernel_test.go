package errors

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCustomErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "transport", err: &TransportError{Op: "send", Channel: "shell", Err: ErrChannelClosed}},
		{name: "transport with peer", err: &TransportError{Op: "send", Channel: "shell", Peer: "p", Err: ErrChannelClosed}},
		{name: "decode", err: &ProtocolDecodeError{Protocol: "jupyter", Reason: "bad"}},
		{name: "auth", err: &AuthError{Reason: "missing token"}},
		{name: "limit", err: &ConcurrencyLimitExceededError{ClientID: "c", Limit: 1}},
		{name: "timeout", err: &TimeoutError{SessionID: "s", Timeout: time.Second}},
		{name: "memory", err: &MemoryLimitExceededError{SessionID: "s", Limit: 1, Used: 2}},
		{name: "tainted", err: &SessionTaintedError{SessionID: "s"}},
		{name: "debug", err: &DebugError{BreakpointID: 3, Reason: "bad condition", Err: New("parse")}},
		{name: "runtime", err: &RuntimeError{Name: "PanicError", Value: "boom", Traceback: []string{"line 1"}}},
		{name: "client not found", err: &ClientNotFoundError{ClientID: "c"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.err)
			assert.True(t, len(tt.err.Error()) > 0)
		})
	}
}

func TestName(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "runtime keeps script name", err: &RuntimeError{Name: "CompileError"}, want: "CompileError"},
		{name: "auth", err: fmt.Errorf("x: %w", &AuthError{}), want: NameAuth},
		{name: "limit", err: &ConcurrencyLimitExceededError{}, want: NameConcurrencyLimit},
		{name: "timeout", err: &TimeoutError{}, want: NameTimeout},
		{name: "memory", err: &MemoryLimitExceededError{}, want: NameMemoryLimit},
		{name: "tainted", err: &SessionTaintedError{}, want: NameSessionTainted},
		{name: "debug", err: &DebugError{}, want: NameDebug},
		{name: "debug sentinel", err: ErrNoDriveRights, want: NameDebug},
		{name: "decode", err: &ProtocolDecodeError{}, want: NameProtocolDecode},
		{name: "transport", err: &TransportError{Err: ErrChannelClosed}, want: NameTransport},
		{name: "interrupted", err: ErrInterrupted, want: NameInterrupted},
		{name: "unsupported", err: ErrUnsupportedMessage, want: NameUnsupportedMessage},
		{name: "other", err: New("x"), want: NameKernel},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Name(tt.err))
		})
	}
}

func TestAccessors(t *testing.T) {
	id, ok := NotFoundClient(fmt.Errorf("get: %w", &ClientNotFoundError{ClientID: "abc"}))
	require.True(t, ok)
	assert.Equal(t, "abc", id)

	_, ok = NotFoundClient(New("x"))
	assert.False(t, ok)

	re, ok := AsRuntime(fmt.Errorf("exec: %w", &RuntimeError{Name: "N", Value: "V"}))
	require.True(t, ok)
	assert.Equal(t, "V", re.Value)

	assert.True(t, IsAuth(&AuthError{}))
	assert.True(t, IsTimeout(&TimeoutError{}))
	assert.False(t, IsTimeout(&AuthError{}))
}
