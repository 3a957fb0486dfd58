// Package protocol defines the kernel's wire message model and the contract a wire protocol
// implements. Concrete codecs live in sub-packages.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/llmspell/spellkernel/src/kernel/entity"
)

//go:generate mockgen -source=protocol.go -destination=protocolmock/protocol.go -package=protocolmock

// Version is the Jupyter messaging protocol version the message shapes follow.
const Version = "5.3"

// Metadata keys the kernel reads from requests.
const (
	MetadataAuthToken = "auth_token"
	MetadataClientID  = "client_id"
	// MetadataTimeout shortens the wall-clock limit of one execution, in milliseconds.
	MetadataTimeout = "timeout_ms"
)

// Protocol turns transport frames into Messages and back, and describes the reply sequence
// each request type produces.
type Protocol interface {
	// Name identifies the protocol in logs and the connection descriptor.
	Name() string
	// Decode parses frames received on ch. Identity frames added by the transport are kept on the Message.
	Decode(ch entity.Channel, frames [][]byte) (*Message, error)
	// Encode renders msg for sending on ch. Replies whose parent was never decoded are rejected.
	Encode(ch entity.Channel, msg *Message) ([][]byte, error)
	// ExecutionFlow lists the messages the kernel emits in answer to a request of type t.
	ExecutionFlow(t MessageType) []Step
	// ResponseFlow describes the direct reply to a request of type t.
	ResponseFlow(t MessageType) (ReplyShape, bool)
}

// Header identifies a message.
type Header struct {
	MsgID    string      `json:"msg_id"`
	Session  string      `json:"session"`
	Username string      `json:"username"`
	Date     string      `json:"date"`
	MsgType  MessageType `json:"msg_type"`
	Version  string      `json:"version"`
}

// Message is the protocol-level unit exchanged with clients.
type Message struct {
	// Identities are routing frames supplied by the transport; replies reuse the request's.
	Identities [][]byte
	Header     Header
	// Parent is the header of the request this message answers, nil for unsolicited messages.
	Parent   *Header
	Metadata json.RawMessage
	Content  json.RawMessage
	Buffers  [][]byte

	// Origin is set by Decode so an unmodified message re-encodes byte for byte.
	Origin *Origin
}

// Origin records how a decoded message looked on the wire.
type Origin struct {
	Protocol string
	Header   Header
	Parent   *Header
	Metadata []byte
	Content  []byte
	Buffers  [][]byte
	// Parts are the frames after the identities, exactly as received.
	Parts [][]byte
}

// NewOrigin snapshots msg as decoded by protocol from parts.
func NewOrigin(protocol string, msg *Message, parts [][]byte) *Origin {
	o := &Origin{
		Protocol: protocol,
		Header:   msg.Header,
		Metadata: msg.Metadata,
		Content:  msg.Content,
		Buffers:  msg.Buffers,
		Parts:    parts,
	}
	if msg.Parent != nil {
		p := *msg.Parent
		o.Parent = &p
	}
	return o
}

// Unchanged reports whether msg still matches what protocol decoded.
func (m *Message) Unchanged(protocol string) bool {
	o := m.Origin
	if o == nil || o.Protocol != protocol {
		return false
	}
	if m.Header != o.Header {
		return false
	}
	if (m.Parent == nil) != (o.Parent == nil) || (m.Parent != nil && *m.Parent != *o.Parent) {
		return false
	}
	if !bytes.Equal(m.Metadata, o.Metadata) || !bytes.Equal(m.Content, o.Content) {
		return false
	}
	if len(m.Buffers) != len(o.Buffers) {
		return false
	}
	for i := range m.Buffers {
		if !bytes.Equal(m.Buffers[i], o.Buffers[i]) {
			return false
		}
	}
	return true
}

// DecodeContent unmarshals the content payload into v.
func (m *Message) DecodeContent(v any) error {
	if len(m.Content) == 0 {
		return json.Unmarshal([]byte("{}"), v)
	}
	return json.Unmarshal(m.Content, v)
}

// MetadataString returns a string metadata value, or "" when absent.
func (m *Message) MetadataString(key string) string {
	if len(m.Metadata) == 0 {
		return ""
	}
	var md map[string]any
	if err := json.Unmarshal(m.Metadata, &md); err != nil {
		return ""
	}
	s, _ := md[key].(string)
	return s
}

// SetMetadata replaces one metadata key.
func (m *Message) SetMetadata(key string, value any) error {
	md := map[string]any{}
	if len(m.Metadata) > 0 {
		if err := json.Unmarshal(m.Metadata, &md); err != nil {
			return err
		}
	}
	md[key] = value
	raw, err := json.Marshal(md)
	if err != nil {
		return err
	}
	m.Metadata = raw
	return nil
}

// Identity returns the first identity frame as a string, "" when there is none.
func (m *Message) Identity() string {
	if len(m.Identities) == 0 {
		return ""
	}
	return string(m.Identities[0])
}

// NewHeader creates a header with a fresh id and the current time.
func NewHeader(t MessageType, session, username string) Header {
	return Header{
		MsgID:    uuid.Must(uuid.NewV4()).String(),
		Session:  session,
		Username: username,
		Date:     time.Now().UTC().Format(time.RFC3339Nano),
		MsgType:  t,
		Version:  Version,
	}
}

// NewMessage creates an unsolicited message.
func NewMessage(t MessageType, session, username string, content any) (*Message, error) {
	raw, err := marshalContent(content)
	if err != nil {
		return nil, err
	}
	return &Message{
		Header:   NewHeader(t, session, username),
		Metadata: json.RawMessage("{}"),
		Content:  raw,
	}, nil
}

// NewReply creates a message answering parent, routed back to the same identities.
func NewReply(parent *Message, t MessageType, content any) (*Message, error) {
	msg, err := NewMessage(t, parent.Header.Session, parent.Header.Username, content)
	if err != nil {
		return nil, err
	}
	p := parent.Header
	msg.Parent = &p
	msg.Identities = parent.Identities
	return msg, nil
}

// NewBroadcast creates an iopub message about parent. Broadcasts carry a topic frame instead of identities.
func NewBroadcast(parent *Message, t MessageType, content any) (*Message, error) {
	msg, err := NewReply(parent, t, content)
	if err != nil {
		return nil, err
	}
	msg.Identities = [][]byte{Topic(t)}
	return msg, nil
}

// Topic is the iopub topic frame for messages of type t.
func Topic(t MessageType) []byte {
	return []byte("kernel." + string(t))
}

func marshalContent(content any) (json.RawMessage, error) {
	switch c := content.(type) {
	case nil:
		return json.RawMessage("{}"), nil
	case json.RawMessage:
		return c, nil
	case []byte:
		return json.RawMessage(c), nil
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("encoding content: %w", err)
	}
	return raw, nil
}

// MessageType enumerates message kinds.
type MessageType string

// IsRequest reports whether t expects a reply.
func (t MessageType) IsRequest() bool {
	return strings.HasSuffix(string(t), "_request")
}

// IsReply reports whether t answers a request.
func (t MessageType) IsReply() bool {
	return strings.HasSuffix(string(t), "_reply")
}

// ReplyType maps a request type to its reply type.
func (t MessageType) ReplyType() MessageType {
	if t.IsReply() {
		return t
	}
	return MessageType(strings.TrimSuffix(string(t), "_request") + "_reply")
}

// Base strips the request or reply suffix.
func (t MessageType) Base() string {
	s := strings.TrimSuffix(string(t), "_request")
	return strings.TrimSuffix(s, "_reply")
}

// Message types handled by the kernel.
const (
	KernelInfoRequest     MessageType = "kernel_info_request"
	KernelInfoReply       MessageType = "kernel_info_reply"
	ExecuteRequest        MessageType = "execute_request"
	ExecuteReply          MessageType = "execute_reply"
	ExecuteInput          MessageType = "execute_input"
	ExecuteResult         MessageType = "execute_result"
	Stream                MessageType = "stream"
	DisplayData           MessageType = "display_data"
	Error                 MessageType = "error"
	Status                MessageType = "status"
	InputRequest          MessageType = "input_request"
	InputReply            MessageType = "input_reply"
	InspectRequest        MessageType = "inspect_request"
	InspectReply          MessageType = "inspect_reply"
	CompleteRequest       MessageType = "complete_request"
	CompleteReply         MessageType = "complete_reply"
	IsCompleteRequest     MessageType = "is_complete_request"
	IsCompleteReply       MessageType = "is_complete_reply"
	HistoryRequest        MessageType = "history_request"
	HistoryReply          MessageType = "history_reply"
	CommInfoRequest       MessageType = "comm_info_request"
	CommInfoReply         MessageType = "comm_info_reply"
	CommOpen              MessageType = "comm_open"
	CommMsg               MessageType = "comm_msg"
	CommClose             MessageType = "comm_close"
	DebugRequest          MessageType = "debug_request"
	DebugReply            MessageType = "debug_reply"
	DebugEvent            MessageType = "debug_event"
	ShutdownRequest       MessageType = "shutdown_request"
	ShutdownReply         MessageType = "shutdown_reply"
	InterruptRequest      MessageType = "interrupt_request"
	InterruptReply        MessageType = "interrupt_reply"
	RegisterClientRequest MessageType = "register_client_request"
	RegisterClientReply   MessageType = "register_client_reply"
	DisconnectRequest     MessageType = "disconnect_request"
	DisconnectReply       MessageType = "disconnect_reply"
	ClearSessionRequest   MessageType = "clear_session_request"
	ClearSessionReply     MessageType = "clear_session_reply"
)
