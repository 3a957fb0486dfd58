// Package jupyter implements the Jupyter multipart wire format with HMAC-SHA256 signatures.
package jupyter

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/llmspell/spellkernel/src/kernel/entity"
	kerrors "github.com/llmspell/spellkernel/src/kernel/internal/errors"
	"github.com/llmspell/spellkernel/src/kernel/internal/protocol"
)

const (
	// Name identifies the protocol.
	Name = "jupyter"
	// Delimiter separates routing identities from the signed message parts.
	Delimiter = "<IDS|MSG>"

	signedParts = 4
)

var emptyObject = []byte("{}")

type codec struct {
	key        []byte
	correlator *protocol.Correlator
}

// New returns the Jupyter codec. An empty key disables signing.
func New(key []byte, correlator *protocol.Correlator) protocol.Protocol {
	if correlator == nil {
		correlator = protocol.NewCorrelator(0)
	}
	return &codec{key: key, correlator: correlator}
}

func (c *codec) Name() string { return Name }

func (c *codec) Decode(ch entity.Channel, frames [][]byte) (*protocol.Message, error) {
	msg, err := c.decode(frames)
	if de, ok := kerrors.AsProtocolDecode(err); ok && de.Identities == nil {
		if idx := delimiterIndex(frames); idx > 0 {
			de.Identities = frames[:idx]
		}
	}
	return msg, err
}

func delimiterIndex(frames [][]byte) int {
	for i, f := range frames {
		if string(f) == Delimiter {
			return i
		}
	}
	return -1
}

func (c *codec) decode(frames [][]byte) (*protocol.Message, error) {
	idx := delimiterIndex(frames)
	if idx < 0 {
		return nil, decodeErr("missing delimiter", nil)
	}
	parts := frames[idx+1:]
	if len(parts) < 1+signedParts {
		return nil, decodeErr(fmt.Sprintf("expected at least %d frames after delimiter, got %d", 1+signedParts, len(parts)), nil)
	}
	signature, header, parent, metadata, content := parts[0], parts[1], parts[2], parts[3], parts[4]

	if len(c.key) > 0 {
		expected := c.sign(header, parent, metadata, content)
		if !hmac.Equal(expected, signature) {
			return nil, decodeErr("invalid signature", nil)
		}
	}

	msg := &protocol.Message{
		Identities: frames[:idx],
		Metadata:   json.RawMessage(metadata),
		Content:    json.RawMessage(content),
		Buffers:    parts[1+signedParts:],
	}
	if err := json.Unmarshal(header, &msg.Header); err != nil {
		return nil, decodeErr("header", err)
	}
	if msg.Header.MsgID == "" || msg.Header.MsgType == "" {
		return nil, decodeErr("header lacks msg_id or msg_type", nil)
	}
	var ph protocol.Header
	if len(bytes.TrimSpace(parent)) > 0 {
		if err := json.Unmarshal(parent, &ph); err != nil {
			return nil, decodeErr("parent header", err)
		}
	}
	if ph.MsgID != "" {
		msg.Parent = &ph
	}
	if !isObject(metadata) {
		return nil, decodeErr("metadata is not a JSON object", nil)
	}
	if !isObject(content) {
		return nil, decodeErr("content is not a JSON object", nil)
	}

	msg.Origin = protocol.NewOrigin(Name, msg, parts)
	c.correlator.Observe(msg.Header)
	return msg, nil
}

func (c *codec) Encode(ch entity.Channel, msg *protocol.Message) ([][]byte, error) {
	if msg.Parent != nil && msg.Parent.MsgID != "" && !c.correlator.Observed(msg.Parent.Session, msg.Parent.MsgID) {
		return nil, fmt.Errorf("%s %s: %w", msg.Header.MsgType, msg.Parent.MsgID, kerrors.ErrUncorrelatedReply)
	}

	frames := make([][]byte, 0, len(msg.Identities)+2+signedParts+len(msg.Buffers))
	frames = append(frames, msg.Identities...)
	frames = append(frames, []byte(Delimiter))

	if msg.Unchanged(Name) {
		return append(frames, msg.Origin.Parts...), nil
	}

	header, err := c.headerBytes(msg)
	if err != nil {
		return nil, err
	}
	parent := emptyObject
	if msg.Parent != nil {
		if parent, err = json.Marshal(msg.Parent); err != nil {
			return nil, fmt.Errorf("encoding parent header: %w", err)
		}
	}
	metadata := orEmpty(msg.Metadata)
	content := orEmpty(msg.Content)

	frames = append(frames, c.sign(header, parent, metadata, content), header, parent, metadata, content)
	return append(frames, msg.Buffers...), nil
}

// headerBytes reuses the received header bytes when the header was not touched.
func (c *codec) headerBytes(msg *protocol.Message) ([]byte, error) {
	if o := msg.Origin; o != nil && o.Protocol == Name && o.Header == msg.Header {
		return o.Parts[1], nil
	}
	b, err := json.Marshal(msg.Header)
	if err != nil {
		return nil, fmt.Errorf("encoding header: %w", err)
	}
	return b, nil
}

func (c *codec) ExecutionFlow(t protocol.MessageType) []protocol.Step {
	return protocol.DefaultExecutionFlow(t)
}

func (c *codec) ResponseFlow(t protocol.MessageType) (protocol.ReplyShape, bool) {
	return protocol.DefaultResponseFlow(t)
}

// sign returns the hex HMAC over the four signed parts, or an empty signature without a key.
func (c *codec) sign(parts ...[]byte) []byte {
	if len(c.key) == 0 {
		return []byte{}
	}
	mac := hmac.New(sha256.New, c.key)
	for _, p := range parts {
		mac.Write(p)
	}
	sum := mac.Sum(nil)
	out := make([]byte, hex.EncodedLen(len(sum)))
	hex.Encode(out, sum)
	return out
}

func orEmpty(b []byte) []byte {
	if len(b) == 0 {
		return emptyObject
	}
	return b
}

func isObject(b []byte) bool {
	b = bytes.TrimSpace(b)
	return len(b) >= 2 && b[0] == '{' && json.Valid(b)
}

func decodeErr(reason string, err error) error {
	return &kerrors.ProtocolDecodeError{Protocol: Name, Reason: reason, Err: err}
}
