package kernel

import (
	"context"
	"fmt"

	"github.com/llmspell/spellkernel/src/kernel/internal/errors"
	"github.com/llmspell/spellkernel/src/kernel/internal/protocol"
	"github.com/llmspell/spellkernel/src/kernel/mapper"
	"go.uber.org/zap"
)

// Shutdown stops the kernel, or with restart set, drains and clears every session and keeps
// serving. The reply is sent first so the client always gets it.
func (k *kernel) Shutdown(ctx context.Context, req *request) {
	var content protocol.ShutdownContent
	if err := k.decode(req, &content); err != nil {
		return
	}
	k.reply(req, protocol.ShutdownContent{Status: protocol.StatusOK, Restart: content.Restart})
	k.logger.Infow("shutdown requested", "client", req.client, "restart", content.Restart)

	if !content.Restart {
		k.requestShutdown()
		return
	}

	k.work.Add(1)
	go func() {
		defer k.work.Done()
		k.restart()
	}()
}

// restart aborts queued work, waits for running executions for the grace period and clears all
// sessions.
func (k *kernel) restart() {
	k.abortLanes(errors.ErrShuttingDown)
	ctx, cancel := context.WithTimeout(k.ctx, k.grace)
	defer cancel()
	if err := k.dispatcher.Drain(ctx); err != nil {
		k.logger.Warnw("executions interrupted by restart", zap.Error(err))
	}
	if err := k.dispatcher.Reset(k.ctx); err != nil {
		k.logger.Errorw("resetting sessions", zap.Error(err))
		return
	}
	k.stats.Counter("restarts").Inc(1)
	k.logger.Infow("kernel restarted")
}

// Interrupt cancels the running execution of the sender's session. Queued executions still run.
func (k *kernel) Interrupt(ctx context.Context, req *request) {
	if err := k.dispatcher.Interrupt(ctx, req.session); err != nil {
		k.replyError(req, err)
		return
	}
	k.stats.Counter("interrupts").Inc(1)
	k.reply(req, protocol.StatusReplyContent{Status: protocol.StatusOK})
}

// RegisterClient issues a credential. It is the only request accepted without one.
func (k *kernel) RegisterClient(ctx context.Context, req *request) {
	var content protocol.RegisterClientRequestContent
	if err := k.decode(req, &content); err != nil {
		return
	}
	if !k.clients.RegistrationAllowed() {
		k.stats.Counter("auth_failures").Inc(1)
		k.replyError(req, &errors.AuthError{Reason: "client registration is disabled"})
		return
	}
	id := content.ClientID
	if id == "" {
		id = req.msg.Identity()
	}
	c, err := k.clients.RegisterClient(ctx, id, req.msg.MetadataString(protocol.MetadataAuthToken), mapper.RegistrationToLimits(content))
	if err != nil {
		if errors.IsAuth(err) {
			k.stats.Counter("auth_failures").Inc(1)
		}
		k.replyError(req, err)
		return
	}
	k.bindPeer(req.msg.Identity(), c.ID)
	k.logger.Infow("client registered", "client", c.ID)
	k.reply(req, protocol.RegisterClientReplyContent{
		Status:   protocol.StatusOK,
		ClientID: c.ID,
		Token:    c.Token,
	})
}

// Disconnect removes a client and releases its debug sessions. With authentication enabled a
// client may only disconnect itself.
func (k *kernel) Disconnect(ctx context.Context, req *request) {
	var content protocol.DisconnectRequestContent
	if err := k.decode(req, &content); err != nil {
		return
	}
	id := content.ClientID
	if id == "" {
		id = req.client
	}
	if id != req.client && k.clients.AuthEnabled() {
		k.replyError(req, &errors.AuthError{Reason: fmt.Sprintf("cannot disconnect client %q", id)})
		return
	}
	k.releaseClient(ctx, id)
	if err := k.clients.Disconnect(ctx, id); err != nil {
		k.replyError(req, err)
		return
	}
	k.logger.Infow("client disconnected", "client", id)
	k.reply(req, protocol.StatusReplyContent{Status: protocol.StatusOK})
}

// ClearSession discards a session's state. Its queued executions are answered as aborted.
func (k *kernel) ClearSession(ctx context.Context, req *request) {
	var content protocol.ClearSessionRequestContent
	if err := k.decode(req, &content); err != nil {
		return
	}
	session := content.Session
	if session == "" {
		session = req.session
	}
	dropped := k.abortLane(session, errors.ErrInterrupted)
	if err := k.dispatcher.ClearSession(ctx, session); err != nil {
		k.replyError(req, err)
		return
	}
	k.logger.Infow("session cleared", "session", session, "client", req.client, "aborted", dropped)
	k.reply(req, protocol.StatusReplyContent{Status: protocol.StatusOK})
}
