package protocol

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// ReplyShape describes the direct reply to a request.
type ReplyShape struct {
	Type MessageType
	// Schema is a JSON schema for the reply content.
	Schema string
}

// Validate checks content against the shape's schema.
func (r ReplyShape) Validate(content []byte) error {
	schema, err := compiled(r.Type, r.Schema)
	if err != nil {
		return err
	}
	if len(content) == 0 {
		content = []byte("{}")
	}
	res, err := schema.Validate(gojsonschema.NewBytesLoader(content))
	if err != nil {
		return fmt.Errorf("validating %s: %w", r.Type, err)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("invalid %s content: %s", r.Type, strings.Join(msgs, "; "))
}

var (
	schemaMu    sync.Mutex
	schemaCache = map[MessageType]*gojsonschema.Schema{}
)

func compiled(t MessageType, src string) (*gojsonschema.Schema, error) {
	schemaMu.Lock()
	defer schemaMu.Unlock()
	if s, ok := schemaCache[t]; ok {
		return s, nil
	}
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		return nil, fmt.Errorf("compiling schema for %s: %w", t, err)
	}
	schemaCache[t] = s
	return s, nil
}

// DefaultResponseFlow returns the reply shape for request type t.
func DefaultResponseFlow(t MessageType) (ReplyShape, bool) {
	if !t.IsRequest() {
		return ReplyShape{}, false
	}
	rt := t.ReplyType()
	schema, ok := replySchemas[rt]
	if !ok {
		return ReplyShape{}, false
	}
	return ReplyShape{Type: rt, Schema: schema}, true
}

const statusProps = `"status": {"enum": ["ok", "error", "aborted"]},
		"ename": {"type": "string"},
		"evalue": {"type": "string"},
		"traceback": {"type": "array", "items": {"type": "string"}}`

func objectSchema(required string, props string) string {
	return `{
	"type": "object",
	"required": [` + required + `],
	"properties": {
		` + statusProps + props + `
	}
}`
}

var replySchemas = map[MessageType]string{
	KernelInfoReply: objectSchema(`"status", "protocol_version", "implementation", "language_info"`, `,
		"protocol_version": {"type": "string"},
		"implementation": {"type": "string"},
		"implementation_version": {"type": "string"},
		"language_info": {"type": "object", "required": ["name"], "properties": {"name": {"type": "string"}}}`),
	ExecuteReply: objectSchema(`"status", "execution_count"`, `,
		"execution_count": {"type": "integer", "minimum": 0}`),
	InspectReply: objectSchema(`"status", "found"`, `,
		"found": {"type": "boolean"},
		"data": {"type": "object"}`),
	CompleteReply: objectSchema(`"status", "matches", "cursor_start", "cursor_end"`, `,
		"matches": {"type": "array", "items": {"type": "string"}},
		"cursor_start": {"type": "integer"},
		"cursor_end": {"type": "integer"}`),
	IsCompleteReply: `{
	"type": "object",
	"required": ["status"],
	"properties": {
		"status": {"enum": ["complete", "incomplete", "invalid", "unknown"]},
		"indent": {"type": "string"}
	}
}`,
	HistoryReply: objectSchema(`"status", "history"`, `,
		"history": {"type": "array"}`),
	CommInfoReply: objectSchema(`"status", "comms"`, `,
		"comms": {"type": "object"}`),
	DebugReply: `{
	"type": "object",
	"required": ["type", "request_seq", "success", "command"],
	"properties": {
		"type": {"const": "response"},
		"seq": {"type": "integer"},
		"request_seq": {"type": "integer"},
		"success": {"type": "boolean"},
		"command": {"type": "string"},
		"message": {"type": "string"}
	}
}`,
	ShutdownReply: objectSchema(`"status", "restart"`, `,
		"restart": {"type": "boolean"}`),
	InterruptReply: objectSchema(`"status"`, ``),
	RegisterClientReply: objectSchema(`"status"`, `,
		"client_id": {"type": "string"},
		"token": {"type": "string"}`),
	DisconnectReply:   objectSchema(`"status"`, ``),
	ClearSessionReply: objectSchema(`"status"`, ``),
}
