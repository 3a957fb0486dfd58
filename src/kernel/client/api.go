package client

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/llmspell/spellkernel/src/kernel/entity"
	"github.com/llmspell/spellkernel/src/kernel/internal/protocol"
)

// KernelInfo asks the kernel to describe itself.
func (c *Client) KernelInfo(ctx context.Context) (protocol.KernelInfoReplyContent, error) {
	var out protocol.KernelInfoReplyContent
	resp, err := c.Request(ctx, entity.ChannelShell, protocol.KernelInfoRequest, nil)
	if err != nil {
		return out, err
	}
	err = decodeReply(resp, &out)
	return out, err
}

// Execution is the outcome of one execute request.
type Execution struct {
	Reply protocol.ExecuteReplyContent
	// Count is the execution count announced in execute_input.
	Count    int
	Stdout   string
	Stderr   string
	Result   map[string]any
	Displays []map[string]any
	// Error is the error published on iopub, if any.
	Error    *protocol.ErrorContent
	Response *Response
}

// ExecuteOptions adjust one execute request.
type ExecuteOptions struct {
	Silent     bool
	AllowStdin bool
	// TimeoutMs shortens the wall-clock limit of this execution.
	TimeoutMs int
}

// Execute runs code and collects its output until the kernel reports idle.
func (c *Client) Execute(ctx context.Context, code string, opts ExecuteOptions) (*Execution, error) {
	content := protocol.ExecuteRequestContent{Code: code, Silent: opts.Silent, AllowStdin: opts.AllowStdin || c.input != nil}
	msg, err := c.message(protocol.ExecuteRequest, content)
	if err != nil {
		return nil, err
	}
	if opts.TimeoutMs > 0 {
		if err := msg.SetMetadata(protocol.MetadataTimeout, opts.TimeoutMs); err != nil {
			return nil, err
		}
	}
	resp, err := c.send(ctx, entity.ChannelShell, msg)
	if err != nil {
		return nil, err
	}

	out := &Execution{Response: resp}
	if resp.Reply != nil {
		if err := resp.Reply.DecodeContent(&out.Reply); err != nil {
			return nil, err
		}
	}
	var stdout, stderr strings.Builder
	for _, m := range resp.IOPub {
		switch m.Header.MsgType {
		case protocol.ExecuteInput:
			var in protocol.ExecuteInputContent
			if err := m.DecodeContent(&in); err == nil {
				out.Count = in.ExecutionCount
			}
		case protocol.Stream:
			var s protocol.StreamContent
			if err := m.DecodeContent(&s); err != nil {
				continue
			}
			if s.Name == "stderr" {
				stderr.WriteString(s.Text)
			} else {
				stdout.WriteString(s.Text)
			}
		case protocol.DisplayData:
			var d protocol.DisplayDataContent
			if err := m.DecodeContent(&d); err == nil {
				out.Displays = append(out.Displays, d.Data)
			}
		case protocol.ExecuteResult:
			var r protocol.ExecuteResultContent
			if err := m.DecodeContent(&r); err == nil {
				out.Result = r.Data
			}
		case protocol.Error:
			var e protocol.ErrorContent
			if err := m.DecodeContent(&e); err == nil {
				out.Error = &e
			}
		}
	}
	out.Stdout, out.Stderr = stdout.String(), stderr.String()
	return out, nil
}

// Debug sends a Debug Adapter Protocol request. A failed command is reported in the reply, not
// as an error.
func (c *Client) Debug(ctx context.Context, seq int, command string, arguments any) (protocol.DebugReplyContent, error) {
	var out protocol.DebugReplyContent
	req := protocol.DebugRequestContent{Seq: seq, Type: "request", Command: command}
	if arguments != nil {
		raw, err := json.Marshal(arguments)
		if err != nil {
			return out, err
		}
		req.Arguments = raw
	}
	resp, err := c.Request(ctx, entity.ChannelControl, protocol.DebugRequest, req)
	if err != nil {
		return out, err
	}
	err = decodeReply(resp, &out)
	return out, err
}

// Register asks for a credential. On success the client sends it with every later request.
func (c *Client) Register(ctx context.Context, req protocol.RegisterClientRequestContent) (protocol.RegisterClientReplyContent, error) {
	var out protocol.RegisterClientReplyContent
	resp, err := c.Request(ctx, entity.ChannelControl, protocol.RegisterClientRequest, req)
	if err != nil {
		return out, err
	}
	if err := decodeReply(resp, &out); err != nil {
		return out, err
	}
	c.mu.Lock()
	c.token = out.Token
	c.mu.Unlock()
	return out, nil
}

// Interrupt cancels the running execution of the client's session.
func (c *Client) Interrupt(ctx context.Context) error {
	resp, err := c.Request(ctx, entity.ChannelControl, protocol.InterruptRequest, nil)
	if err != nil {
		return err
	}
	return resp.Error()
}

// ClearSession discards the state of the client's session.
func (c *Client) ClearSession(ctx context.Context) error {
	resp, err := c.Request(ctx, entity.ChannelControl, protocol.ClearSessionRequest, protocol.ClearSessionRequestContent{})
	if err != nil {
		return err
	}
	return resp.Error()
}

// History returns the last n cells of the client's session.
func (c *Client) History(ctx context.Context, n int) ([][]any, error) {
	var out protocol.HistoryReplyContent
	resp, err := c.Request(ctx, entity.ChannelShell, protocol.HistoryRequest, protocol.HistoryRequestContent{HistAccessType: "tail", N: n})
	if err != nil {
		return nil, err
	}
	err = decodeReply(resp, &out)
	return out.History, err
}

// Shutdown stops the kernel, or clears it when restart is set.
func (c *Client) Shutdown(ctx context.Context, restart bool) (protocol.ShutdownContent, error) {
	var out protocol.ShutdownContent
	resp, err := c.Request(ctx, entity.ChannelControl, protocol.ShutdownRequest, protocol.ShutdownContent{Restart: restart})
	if err != nil {
		return out, err
	}
	err = decodeReply(resp, &out)
	return out, err
}

// Disconnect tells the kernel the client is leaving.
func (c *Client) Disconnect(ctx context.Context) error {
	resp, err := c.Request(ctx, entity.ChannelControl, protocol.DisconnectRequest, protocol.DisconnectRequestContent{})
	if err != nil {
		return err
	}
	return resp.Error()
}
