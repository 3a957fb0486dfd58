package kernel

import (
	"context"

	"github.com/llmspell/spellkernel/src/kernel/internal/errors"
	"github.com/llmspell/spellkernel/src/kernel/internal/protocol"
	"github.com/llmspell/spellkernel/src/kernel/mapper"
)

// KernelInfo describes the kernel and its language.
func (k *kernel) KernelInfo(ctx context.Context, req *request) {
	lang := k.runtime.LanguageInfo()
	k.reply(req, protocol.KernelInfoReplyContent{
		Status:                protocol.StatusOK,
		ProtocolVersion:       protocol.Version,
		Implementation:        _implementation,
		ImplementationVersion: Version,
		LanguageInfo:          mapper.LanguageInfoToProtocol(lang),
		Banner:                _implementation + " " + Version + " (" + lang.Name + " " + lang.Version + ")",
		Debugger:              true,
		HelpLinks:             []protocol.HelpLink{},
	})
}

// Inspect describes the name under the cursor.
func (k *kernel) Inspect(ctx context.Context, req *request) {
	var content protocol.InspectRequestContent
	if err := k.decode(req, &content); err != nil {
		return
	}
	data, found, err := k.dispatcher.Inspect(ctx, req.session, content.Code, content.CursorPos)
	if err != nil {
		k.replyError(req, err)
		return
	}
	if data == nil {
		data = map[string]any{}
	}
	k.reply(req, protocol.InspectReplyContent{
		Status:   protocol.StatusOK,
		Found:    found,
		Data:     data,
		Metadata: map[string]any{},
	})
}

// Complete lists completions at the cursor.
func (k *kernel) Complete(ctx context.Context, req *request) {
	var content protocol.CompleteRequestContent
	if err := k.decode(req, &content); err != nil {
		return
	}
	matches, start, end, err := k.dispatcher.Complete(ctx, req.session, content.Code, content.CursorPos)
	if err != nil {
		k.replyError(req, err)
		return
	}
	if matches == nil {
		matches = []string{}
	}
	k.reply(req, protocol.CompleteReplyContent{
		Status:      protocol.StatusOK,
		Matches:     matches,
		CursorStart: start,
		CursorEnd:   end,
		Metadata:    map[string]any{},
	})
}

// IsComplete tells a console whether to run the code or ask for another line.
func (k *kernel) IsComplete(ctx context.Context, req *request) {
	var content protocol.IsCompleteRequestContent
	if err := k.decode(req, &content); err != nil {
		return
	}
	status, indent, err := k.dispatcher.IsComplete(ctx, req.session, content.Code)
	if err != nil {
		k.replyError(req, err)
		return
	}
	k.reply(req, protocol.IsCompleteReplyContent{Status: status, Indent: indent})
}

// History returns the cells run in the sender's session. Only the tail access type is
// distinguished; every other type returns the whole history.
func (k *kernel) History(ctx context.Context, req *request) {
	var content protocol.HistoryRequestContent
	if err := k.decode(req, &content); err != nil {
		return
	}
	n := 0
	if content.HistAccessType == "tail" {
		n = content.N
	}
	entries, err := k.dispatcher.History(ctx, req.session, n)
	if err != nil {
		k.replyError(req, err)
		return
	}
	k.reply(req, protocol.HistoryReplyContent{
		Status:  protocol.StatusOK,
		History: mapper.HistoryToReply(req.session, entries),
	})
}

// CommInfo lists open comms. The kernel registers no comm targets, so there are none.
func (k *kernel) CommInfo(ctx context.Context, req *request) {
	k.reply(req, protocol.CommInfoReplyContent{
		Status: protocol.StatusOK,
		Comms:  map[string]protocol.CommInfoTarget{},
	})
}

// CommOpen refuses the comm by closing it straight away.
func (k *kernel) CommOpen(ctx context.Context, req *request) {
	var content protocol.CommContent
	if err := req.msg.DecodeContent(&content); err != nil {
		k.logger.Debugw("malformed comm_open", "error", err)
		return
	}
	k.logger.Debugw("closing comm for unknown target", "target", content.TargetName, "comm", content.CommID)
	k.broadcast(req.msg, protocol.CommClose, protocol.CommContent{CommID: content.CommID})
}

// decode reads the request content, answering with a decode error when it is malformed.
func (k *kernel) decode(req *request, v any) error {
	if err := req.msg.DecodeContent(v); err != nil {
		err = k.decodeError(req, err)
		k.replyError(req, err)
		return err
	}
	return nil
}

func (k *kernel) decodeError(req *request, err error) error {
	return &errors.ProtocolDecodeError{Protocol: k.protocol.Name(), Reason: "invalid " + string(req.msg.Header.MsgType) + " content", Err: err}
}
