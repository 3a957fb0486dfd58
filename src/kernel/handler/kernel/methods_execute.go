package kernel

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/llmspell/spellkernel/src/kernel/controller/dispatcher"
	"github.com/llmspell/spellkernel/src/kernel/entity"
	"github.com/llmspell/spellkernel/src/kernel/internal/errors"
	"github.com/llmspell/spellkernel/src/kernel/internal/executor"
	"github.com/llmspell/spellkernel/src/kernel/internal/protocol"
	"github.com/llmspell/spellkernel/src/kernel/mapper"
	"go.uber.org/zap"
)

// Execute queues the cell behind earlier requests of the same session. The reply is sent once it
// has run.
func (k *kernel) Execute(ctx context.Context, req *request) {
	var content protocol.ExecuteRequestContent
	if err := req.msg.DecodeContent(&content); err != nil {
		k.status(req.msg, protocol.StateBusy)
		k.replyError(req, k.decodeError(req, err))
		k.status(req.msg, protocol.StateIdle)
		return
	}
	if k.debugger.Hooks(req.session) != nil {
		k.setDebugRequest(req.session, req.msg)
	}
	k.pin(req.msg)
	k.enqueue(req.session, job{
		run: func() {
			defer k.unpin(req.msg)
			k.execute(req, content)
		},
		abort: func(err error) {
			defer k.unpin(req.msg)
			k.abortExecute(req, err)
		},
	})
}

func (k *kernel) execute(req *request, content protocol.ExecuteRequestContent) {
	k.status(req.msg, protocol.StateBusy)
	defer k.status(req.msg, protocol.StateIdle)

	res, err := k.dispatcher.Execute(k.ctx, dispatcher.ExecuteRequest{
		SessionID:    req.session,
		ClientID:     req.client,
		Code:         content.Code,
		Source:       k.cellSource(req.session, content.Code),
		Silent:       content.Silent,
		StoreHistory: content.ShouldStoreHistory(),
		Timeout:      requestTimeout(req.msg),
		Output:       &output{k: k, parent: req.msg, silent: content.Silent, allowStdin: content.AllowStdin},
		OnStart: func(count int) {
			if !content.Silent {
				k.broadcast(req.msg, protocol.ExecuteInput, protocol.ExecuteInputContent{Code: content.Code, ExecutionCount: count})
			}
		},
	})
	if err != nil {
		k.logger.Infow("execution rejected", "session", req.session, "client", req.client, zap.Error(err))
		k.broadcast(req.msg, protocol.Error, protocol.NewErrorContent(err))
		k.replyError(req, err)
		return
	}

	switch res.Status {
	case entity.StatusOK:
		if res.Data != nil && !content.Silent {
			k.broadcast(req.msg, protocol.ExecuteResult, protocol.ExecuteResultContent{
				ExecutionCount: res.ExecutionCount,
				Data:           res.Data,
				Metadata:       map[string]any{},
			})
		}
	case entity.StatusError:
		k.broadcast(req.msg, protocol.Error, protocol.NewErrorContent(res.Err))
	}
	k.reply(req, mapper.ResultToExecuteReply(res))
}

// abortExecute answers a queued execution that will not run.
func (k *kernel) abortExecute(req *request, err error) {
	k.status(req.msg, protocol.StateBusy)
	defer k.status(req.msg, protocol.StateIdle)
	k.logger.Infow("execution aborted before running", "session", req.session, zap.Error(err))
	k.reply(req, protocol.ExecuteReplyContent{Status: protocol.StatusAborted})
}

// requestTimeout reads the optional per-request limit from the metadata.
func requestTimeout(msg *protocol.Message) time.Duration {
	var md map[string]json.RawMessage
	if err := json.Unmarshal(msg.Metadata, &md); err != nil {
		return 0
	}
	var ms int64
	if raw, ok := md[protocol.MetadataTimeout]; !ok || json.Unmarshal(raw, &ms) != nil || ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

// output publishes what a cell produces as iopub messages about its request.
type output struct {
	k          *kernel
	parent     *protocol.Message
	silent     bool
	allowStdin bool
}

var _ executor.Output = (*output)(nil)

func (o *output) Stdout(text string) { o.stream("stdout", text) }

func (o *output) Stderr(text string) { o.stream("stderr", text) }

func (o *output) stream(name, text string) {
	if o.silent || text == "" {
		return
	}
	o.k.broadcast(o.parent, protocol.Stream, protocol.StreamContent{Name: name, Text: text})
}

func (o *output) Display(data map[string]any) {
	if o.silent {
		return
	}
	o.k.broadcast(o.parent, protocol.DisplayData, protocol.DisplayDataContent{Data: data, Metadata: map[string]any{}})
}

func (o *output) Input(ctx context.Context, prompt string, password bool) (string, error) {
	if !o.allowStdin {
		return "", executor.ErrInputUnavailable
	}
	return o.k.requestInput(ctx, o.parent, prompt, password)
}

// requestInput asks the client behind parent for a line on stdin and waits for the answer.
func (k *kernel) requestInput(ctx context.Context, parent *protocol.Message, prompt string, password bool) (string, error) {
	msg, err := protocol.NewReply(parent, protocol.InputRequest, protocol.InputRequestContent{Prompt: prompt, Password: password})
	if err != nil {
		return "", err
	}
	answer := make(chan string, 1)
	k.mu.Lock()
	k.inputs[msg.Header.MsgID] = answer
	k.mu.Unlock()
	defer func() {
		k.mu.Lock()
		delete(k.inputs, msg.Header.MsgID)
		k.mu.Unlock()
	}()

	if !k.send(entity.ChannelStdin, msg) {
		return "", fmt.Errorf("requesting input: %w", errors.ErrChannelClosed)
	}
	k.stats.Counter("input_requests").Inc(1)
	select {
	case v := <-answer:
		return v, nil
	case <-ctx.Done():
		return "", context.Cause(ctx)
	}
}

// handleStdin delivers an input_reply to the execution waiting for it.
func (k *kernel) handleStdin(frames [][]byte) {
	msg, err := k.protocol.Decode(entity.ChannelStdin, frames)
	if err != nil {
		k.rejectUndecodable(entity.ChannelStdin, err)
		return
	}
	if msg.Header.MsgType != protocol.InputReply || msg.Parent == nil {
		k.logger.Debugw("ignoring stdin message", "type", msg.Header.MsgType)
		return
	}
	var content protocol.InputReplyContent
	if err := msg.DecodeContent(&content); err != nil {
		k.logger.Warnw("malformed input_reply", zap.Error(err))
		return
	}

	k.mu.Lock()
	answer, ok := k.inputs[msg.Parent.MsgID]
	k.mu.Unlock()
	if !ok {
		k.logger.Debugw("input_reply for no pending request", "parent", msg.Parent.MsgID)
		return
	}
	select {
	case answer <- content.Value:
	default:
	}
}
