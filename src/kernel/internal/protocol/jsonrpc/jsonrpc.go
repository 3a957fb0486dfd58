// Package jsonrpc carries kernel messages as JSON-RPC 2.0 bodies, one per frame.
//
// Requests travel as calls whose method is the request type without its "_request" suffix and
// whose params are the request content plus "session", "username" and "auth_token". Replies
// travel as responses whose result is the reply content. Everything else, including iopub
// traffic, travels as notifications whose params wrap the content with its header fields.
package jsonrpc

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/gofrs/uuid"
	"github.com/llmspell/spellkernel/src/kernel/entity"
	kerrors "github.com/llmspell/spellkernel/src/kernel/internal/errors"
	"github.com/llmspell/spellkernel/src/kernel/internal/protocol"
	"go.lsp.dev/jsonrpc2"
)

// Name identifies the protocol.
const Name = "jsonrpc"

const maxOutstanding = 4096

type callParams struct {
	Session   string `json:"session"`
	Username  string `json:"username"`
	AuthToken string `json:"auth_token"`
}

type notificationParams struct {
	MsgID    string          `json:"msg_id"`
	Session  string          `json:"session"`
	Username string          `json:"username,omitempty"`
	Date     string          `json:"date,omitempty"`
	ParentID string          `json:"parent_id,omitempty"`
	Content  json.RawMessage `json:"content"`
}

type outstanding struct {
	typ     protocol.MessageType
	session string
}

type codec struct {
	correlator *protocol.Correlator

	mu sync.Mutex
	// received holds wire ids of decoded calls that still await a response.
	received map[string]jsonrpc2.ID
	// sent holds calls this side encoded that still await a response.
	sent map[string]outstanding
}

// New returns the JSON-RPC codec.
func New(correlator *protocol.Correlator) protocol.Protocol {
	if correlator == nil {
		correlator = protocol.NewCorrelator(0)
	}
	return &codec{
		correlator: correlator,
		received:   make(map[string]jsonrpc2.ID),
		sent:       make(map[string]outstanding),
	}
}

func (c *codec) Name() string { return Name }

func (c *codec) Decode(ch entity.Channel, frames [][]byte) (*protocol.Message, error) {
	msg, err := c.decode(frames)
	if de, ok := kerrors.AsProtocolDecode(err); ok && de.Identities == nil && len(frames) > 1 {
		de.Identities = frames[:len(frames)-1]
	}
	return msg, err
}

func (c *codec) decode(frames [][]byte) (*protocol.Message, error) {
	if len(frames) == 0 {
		return nil, decodeErr("no frames", nil)
	}
	body := frames[len(frames)-1]
	raw, err := jsonrpc2.DecodeMessage(body)
	if err != nil {
		return nil, decodeErr("body", err)
	}

	msg := &protocol.Message{
		Identities: frames[:len(frames)-1],
		Metadata:   json.RawMessage("{}"),
	}
	switch m := raw.(type) {
	case *jsonrpc2.Call:
		err = c.decodeCall(msg, m)
	case *jsonrpc2.Notification:
		err = decodeNotification(msg, m)
	case *jsonrpc2.Response:
		err = c.decodeResponse(msg, m)
	default:
		err = decodeErr(fmt.Sprintf("unexpected message %T", raw), nil)
	}
	if err != nil {
		return nil, err
	}
	msg.Header.Version = protocol.Version
	msg.Origin = protocol.NewOrigin(Name, msg, [][]byte{body})
	c.correlator.Observe(msg.Header)
	return msg, nil
}

func (c *codec) decodeCall(msg *protocol.Message, call *jsonrpc2.Call) error {
	params := call.Params()
	if len(params) == 0 || string(params) == "null" {
		params = json.RawMessage("{}")
	}
	var env callParams
	if err := json.Unmarshal(params, &env); err != nil {
		return decodeErr("params must be an object", err)
	}
	msgID := idString(call.ID())
	msg.Header = protocol.Header{
		MsgID:    msgID,
		Session:  env.Session,
		Username: env.Username,
		MsgType:  requestType(call.Method()),
	}
	msg.Content = params
	if env.AuthToken != "" {
		if err := msg.SetMetadata(protocol.MetadataAuthToken, env.AuthToken); err != nil {
			return decodeErr("metadata", err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	evictIfFull(c.received)
	c.received[msgID] = call.ID()
	return nil
}

func decodeNotification(msg *protocol.Message, n *jsonrpc2.Notification) error {
	var env notificationParams
	if params := n.Params(); len(params) > 0 {
		if err := json.Unmarshal(params, &env); err != nil {
			return decodeErr("params must be an object", err)
		}
	}
	if env.MsgID == "" {
		env.MsgID = uuid.Must(uuid.NewV4()).String()
	}
	msg.Header = protocol.Header{
		MsgID:    env.MsgID,
		Session:  env.Session,
		Username: env.Username,
		Date:     env.Date,
		MsgType:  protocol.MessageType(n.Method()),
	}
	if env.ParentID != "" {
		msg.Parent = &protocol.Header{MsgID: env.ParentID, Session: env.Session}
	}
	msg.Content = env.Content
	if len(msg.Content) == 0 {
		msg.Content = json.RawMessage("{}")
	}
	return nil
}

func (c *codec) decodeResponse(msg *protocol.Message, resp *jsonrpc2.Response) error {
	parentID := idString(resp.ID())
	c.mu.Lock()
	req, ok := c.sent[parentID]
	delete(c.sent, parentID)
	c.mu.Unlock()
	if !ok {
		return decodeErr(fmt.Sprintf("response %s does not answer a pending call", parentID), nil)
	}

	msg.Header = protocol.NewHeader(req.typ.ReplyType(), req.session, "")
	msg.Parent = &protocol.Header{MsgID: parentID, Session: req.session, MsgType: req.typ, Version: protocol.Version}
	if rerr := resp.Err(); rerr != nil {
		content, err := json.Marshal(protocol.ErrorContent{
			Status:    protocol.StatusError,
			Ename:     "JSONRPCError",
			Evalue:    rerr.Error(),
			Traceback: []string{},
		})
		if err != nil {
			return decodeErr("error response", err)
		}
		msg.Content = content
		return nil
	}
	msg.Content = resp.Result()
	if len(msg.Content) == 0 {
		msg.Content = json.RawMessage("{}")
	}
	return nil
}

func (c *codec) Encode(ch entity.Channel, msg *protocol.Message) ([][]byte, error) {
	if msg.Parent != nil && msg.Parent.MsgID != "" && !c.correlator.Observed(msg.Parent.Session, msg.Parent.MsgID) {
		return nil, fmt.Errorf("%s %s: %w", msg.Header.MsgType, msg.Parent.MsgID, kerrors.ErrUncorrelatedReply)
	}

	frames := make([][]byte, 0, len(msg.Identities)+1)
	frames = append(frames, msg.Identities...)
	if msg.Unchanged(Name) {
		return append(frames, msg.Origin.Parts...), nil
	}

	var (
		body []byte
		err  error
	)
	switch t := msg.Header.MsgType; {
	case t.IsRequest():
		body, err = c.encodeCall(msg)
	case t.IsReply() && msg.Parent != nil:
		body, err = c.encodeResponse(msg)
	default:
		body, err = encodeNotification(msg)
	}
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", msg.Header.MsgType, err)
	}
	return append(frames, body), nil
}

func (c *codec) encodeCall(msg *protocol.Message) ([]byte, error) {
	params := map[string]json.RawMessage{}
	if len(msg.Content) > 0 {
		if err := json.Unmarshal(msg.Content, &params); err != nil {
			return nil, err
		}
	}
	setString(params, "session", msg.Header.Session)
	setString(params, "username", msg.Header.Username)
	setString(params, "auth_token", msg.MetadataString(protocol.MetadataAuthToken))

	call, err := jsonrpc2.NewCall(jsonrpc2.NewStringID(msg.Header.MsgID), msg.Header.MsgType.Base(), params)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	evictIfFull(c.sent)
	c.sent[msg.Header.MsgID] = outstanding{typ: msg.Header.MsgType, session: msg.Header.Session}
	c.mu.Unlock()
	return json.Marshal(call)
}

func (c *codec) encodeResponse(msg *protocol.Message) ([]byte, error) {
	c.mu.Lock()
	id, ok := c.received[msg.Parent.MsgID]
	delete(c.received, msg.Parent.MsgID)
	c.mu.Unlock()
	if !ok {
		id = jsonrpc2.NewStringID(msg.Parent.MsgID)
	}
	content := msg.Content
	if len(content) == 0 {
		content = json.RawMessage("{}")
	}
	resp, err := jsonrpc2.NewResponse(id, content, nil)
	if err != nil {
		return nil, err
	}
	return json.Marshal(resp)
}

func encodeNotification(msg *protocol.Message) ([]byte, error) {
	params := notificationParams{
		MsgID:    msg.Header.MsgID,
		Session:  msg.Header.Session,
		Username: msg.Header.Username,
		Date:     msg.Header.Date,
		Content:  msg.Content,
	}
	if msg.Parent != nil {
		params.ParentID = msg.Parent.MsgID
	}
	if len(params.Content) == 0 {
		params.Content = json.RawMessage("{}")
	}
	n, err := jsonrpc2.NewNotification(string(msg.Header.MsgType), params)
	if err != nil {
		return nil, err
	}
	return json.Marshal(n)
}

func (c *codec) ExecutionFlow(t protocol.MessageType) []protocol.Step {
	return protocol.DefaultExecutionFlow(t)
}

func (c *codec) ResponseFlow(t protocol.MessageType) (protocol.ReplyShape, bool) {
	return protocol.DefaultResponseFlow(t)
}

func requestType(method string) protocol.MessageType {
	if strings.HasSuffix(method, "_request") {
		return protocol.MessageType(method)
	}
	return protocol.MessageType(method + "_request")
}

// idString renders a wire id as a msg_id: strings as-is, numbers in decimal. ID marshals through
// a pointer receiver.
func idString(id jsonrpc2.ID) string {
	b, err := json.Marshal(&id)
	if err != nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return s
	}
	return string(b)
}

func setString(m map[string]json.RawMessage, key, value string) {
	if value == "" {
		return
	}
	b, _ := json.Marshal(value)
	m[key] = b
}

func evictIfFull[V any](m map[string]V) {
	if len(m) < maxOutstanding {
		return
	}
	for k := range m {
		delete(m, k)
		return
	}
}

func decodeErr(reason string, err error) error {
	return &kerrors.ProtocolDecodeError{Protocol: Name, Reason: reason, Err: err}
}
