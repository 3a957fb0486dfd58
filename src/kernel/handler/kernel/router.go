package kernel

import (
	"context"
	"fmt"

	"github.com/llmspell/spellkernel/src/kernel/entity"
	"github.com/llmspell/spellkernel/src/kernel/internal/errors"
	"github.com/llmspell/spellkernel/src/kernel/internal/protocol"
	"github.com/llmspell/spellkernel/src/kernel/mapper"
	"go.uber.org/zap"
)

// request is a decoded message together with who sent it.
type request struct {
	channel entity.Channel
	msg     *protocol.Message
	// client is the authenticated client id.
	client string
	// session is the internal session the request belongs to.
	session string
}

// route authenticates msg and hands it to the method for its type.
func (k *kernel) route(ctx context.Context, ch entity.Channel, msg *protocol.Message) {
	req := &request{channel: ch, msg: msg, session: msg.Header.Session}
	t := msg.Header.MsgType

	if t == protocol.RegisterClientRequest {
		k.RegisterClient(ctx, req)
		return
	}

	c, err := k.clients.Resolve(ctx, msg.MetadataString(protocol.MetadataClientID), msg.MetadataString(protocol.MetadataAuthToken))
	if err != nil {
		if errors.IsAuth(err) {
			k.stats.Counter("auth_failures").Inc(1)
		}
		k.logger.Infow("rejecting request", "type", t, "channel", ch, zap.Error(err))
		if !t.IsRequest() {
			return
		}
		if announcesStatus(k.protocol.ExecutionFlow(t)) {
			k.status(msg, protocol.StateBusy)
			defer k.status(msg, protocol.StateIdle)
		}
		k.replyError(req, err)
		return
	}
	req.client = c.ID
	k.bindPeer(msg.Identity(), c.ID)
	ctx = mapper.ClientIDToContext(ctx, c.ID)

	// Executions announce their own status once they leave the session queue.
	if t != protocol.ExecuteRequest && announcesStatus(k.protocol.ExecutionFlow(t)) {
		k.status(msg, protocol.StateBusy)
		defer k.status(msg, protocol.StateIdle)
	}
	sw := k.stats.Tagged(map[string]string{"type": string(t)}).Timer("latency").Start()
	defer sw.Stop()

	// Routing to each of the supported message types occurs here.
	switch t {
	// Informational requests.
	case protocol.KernelInfoRequest:
		k.KernelInfo(ctx, req)

	case protocol.InspectRequest:
		k.Inspect(ctx, req)

	case protocol.CompleteRequest:
		k.Complete(ctx, req)

	case protocol.IsCompleteRequest:
		k.IsComplete(ctx, req)

	case protocol.HistoryRequest:
		k.History(ctx, req)

	// Execution.
	case protocol.ExecuteRequest:
		k.Execute(ctx, req)

	// Debugging.
	case protocol.DebugRequest:
		k.Debug(ctx, req)

	// Comms. No comm targets are registered.
	case protocol.CommInfoRequest:
		k.CommInfo(ctx, req)

	case protocol.CommOpen:
		k.CommOpen(ctx, req)

	case protocol.CommMsg, protocol.CommClose:
		k.logger.Debugw("ignoring comm message", "type", t)

	// Lifecycle.
	case protocol.ShutdownRequest:
		k.Shutdown(ctx, req)

	case protocol.InterruptRequest:
		k.Interrupt(ctx, req)

	case protocol.DisconnectRequest:
		k.Disconnect(ctx, req)

	case protocol.ClearSessionRequest:
		k.ClearSession(ctx, req)

	default:
		k.stats.Tagged(map[string]string{"type": string(t)}).Counter("unsupported").Inc(1)
		if t.IsRequest() {
			k.replyError(req, fmt.Errorf("%s: %w", t, errors.ErrUnsupportedMessage))
			return
		}
		k.logger.Debugw("ignoring message", "type", t, "channel", ch)
	}
}

func announcesStatus(flow []protocol.Step) bool {
	return len(flow) > 0 && flow[0].Type == protocol.Status
}

// bindPeer remembers which client a transport peer belongs to, so a dropped connection can be
// traced back to it.
func (k *kernel) bindPeer(peer, clientID string) {
	if peer == "" {
		return
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.peers[peer] = clientID
}
