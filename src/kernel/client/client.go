// Package client talks to a running kernel over a Transport and a Protocol. It is used by tools
// that drive the kernel and by the kernel's own end-to-end tests.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gofrs/uuid"
	"github.com/llmspell/spellkernel/src/kernel/entity"
	"github.com/llmspell/spellkernel/src/kernel/internal/errors"
	"github.com/llmspell/spellkernel/src/kernel/internal/protocol"
	"github.com/llmspell/spellkernel/src/kernel/internal/transport"
	"go.uber.org/zap"
)

const _eventQueue = 256

// InputFunc answers an input request from a running cell.
type InputFunc func(prompt string, password bool) (string, error)

// Client sends requests to one kernel and collects what the kernel publishes about them.
type Client struct {
	transport transport.Transport
	protocol  protocol.Protocol
	logger    *zap.SugaredLogger
	session   string
	username  string
	clientID  string
	input     InputFunc
	events    chan *protocol.Message

	mu      sync.Mutex
	token   string
	calls   map[string]*call
	reading bool

	stop chan struct{}
	done chan struct{}
}

// Option configures a Client.
type Option func(*Client)

// WithSession sets the session id sent with every request. A random one is used otherwise.
func WithSession(id string) Option {
	return func(c *Client) { c.session = id }
}

// WithClientID names the client when the kernel does not require tokens.
func WithClientID(id string) Option {
	return func(c *Client) { c.clientID = id }
}

// WithToken sets the credential sent with every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithInput answers input requests. Without it executions cannot read input.
func WithInput(f InputFunc) Option {
	return func(c *Client) { c.input = f }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a Client. Connect must be called before sending requests.
func New(t transport.Transport, p protocol.Protocol, opts ...Option) *Client {
	c := &Client{
		transport: t,
		protocol:  p,
		logger:    zap.NewNop().Sugar(),
		session:   uuid.Must(uuid.NewV4()).String(),
		username:  "client",
		events:    make(chan *protocol.Message, _eventQueue),
		calls:     make(map[string]*call),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Session returns the session id sent with every request.
func (c *Client) Session() string { return c.session }

// Token returns the current credential.
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Connect attaches to the kernel at endpoint and starts reading its messages.
func (c *Client) Connect(ctx context.Context, endpoint entity.ConnectionEndpoint) error {
	if err := c.transport.Connect(ctx, endpoint); err != nil {
		return fmt.Errorf("connecting to kernel: %w", err)
	}
	c.mu.Lock()
	c.reading = true
	c.mu.Unlock()
	go c.read()
	return nil
}

// Close stops reading and closes the transport.
func (c *Client) Close() error {
	c.mu.Lock()
	reading := c.reading
	c.reading = false
	c.mu.Unlock()
	if reading {
		close(c.stop)
		<-c.done
	}
	return c.transport.Close()
}

// Events delivers iopub messages that answer no pending request, and every debug event.
func (c *Client) Events() <-chan *protocol.Message { return c.events }

// Response is everything a kernel sent about one request.
type Response struct {
	// Reply is the direct reply, nil for messages that get none.
	Reply *protocol.Message
	// IOPub holds the broadcasts about the request in arrival order.
	IOPub []*protocol.Message
	// Steps lists the channel and type of every message above in arrival order.
	Steps []protocol.Step
}

// Error returns the failure carried by an error reply, or nil.
func (r *Response) Error() error {
	if r.Reply == nil {
		return nil
	}
	var e protocol.ErrorContent
	if err := r.Reply.DecodeContent(&e); err != nil || e.Status != protocol.StatusError {
		return nil
	}
	return &ReplyError{Name: e.Ename, Value: e.Evalue, Traceback: e.Traceback}
}

// ReplyError is an error reply from the kernel.
type ReplyError struct {
	Name      string
	Value     string
	Traceback []string
}

// Error is an implementation of the error interface.
func (e *ReplyError) Error() string {
	return e.Name + ": " + e.Value
}

type call struct {
	id   string
	ch   entity.Channel
	idle bool
	// wantIdle is set when the kernel closes the request with an idle status.
	wantIdle  bool
	wantReply bool
	resp      Response
	done      chan struct{}
}

func (c *call) complete() bool {
	return (c.resp.Reply != nil || !c.wantReply) && (c.idle || !c.wantIdle)
}

// wantsReply reports whether flow has a direct reply. Messages without a known flow are assumed
// to get one.
func wantsReply(flow []protocol.Step) bool {
	if len(flow) == 0 {
		return true
	}
	for _, s := range flow {
		if s.Channel == protocol.RequestChannel {
			return true
		}
	}
	return false
}

// Request sends a message on ch and waits until the kernel has answered it completely: the reply
// has arrived and, for requests announced with a busy status, the closing idle status too.
func (c *Client) Request(ctx context.Context, ch entity.Channel, t protocol.MessageType, content any) (*Response, error) {
	msg, err := c.message(t, content)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, ch, msg)
}

// message builds a request carrying the client's credentials.
func (c *Client) message(t protocol.MessageType, content any) (*protocol.Message, error) {
	msg, err := protocol.NewMessage(t, c.session, c.username, content)
	if err != nil {
		return nil, err
	}
	if token := c.Token(); token != "" {
		if err := msg.SetMetadata(protocol.MetadataAuthToken, token); err != nil {
			return nil, err
		}
	}
	if c.clientID != "" {
		if err := msg.SetMetadata(protocol.MetadataClientID, c.clientID); err != nil {
			return nil, err
		}
	}
	return msg, nil
}

func (c *Client) send(ctx context.Context, ch entity.Channel, msg *protocol.Message) (*Response, error) {
	flow := c.protocol.ExecutionFlow(msg.Header.MsgType)
	cl := &call{
		id:        msg.Header.MsgID,
		ch:        ch,
		wantIdle:  len(flow) > 1 && flow[len(flow)-1].Type == protocol.Status,
		wantReply: wantsReply(flow),
		done:      make(chan struct{}),
	}
	c.mu.Lock()
	c.calls[cl.id] = cl
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.calls, cl.id)
		c.mu.Unlock()
	}()

	frames, err := c.protocol.Encode(ch, msg)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", msg.Header.MsgType, err)
	}
	if err := c.transport.Send(ch, frames); err != nil {
		return nil, fmt.Errorf("sending %s: %w", msg.Header.MsgType, err)
	}

	select {
	case <-cl.done:
		c.mu.Lock()
		defer c.mu.Unlock()
		resp := cl.resp
		return &resp, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for %s: %w", msg.Header.MsgType.ReplyType(), ctx.Err())
	case <-c.stop:
		return nil, fmt.Errorf("waiting for %s: %w", msg.Header.MsgType.ReplyType(), errors.ErrChannelClosed)
	}
}

func (c *Client) read() {
	defer close(c.done)
	for {
		for c.poll() {
		}
		select {
		case <-c.stop:
			return
		case <-c.transport.Notify():
		}
	}
}

// poll handles at most one message per channel and reports whether there was any.
func (c *Client) poll() bool {
	progressed := false
	for _, ch := range []entity.Channel{entity.ChannelControl, entity.ChannelShell, entity.ChannelStdin, entity.ChannelIOPub} {
		frames, ok, err := c.transport.Recv(ch)
		if err != nil || !ok {
			continue
		}
		progressed = true
		msg, err := c.protocol.Decode(ch, frames)
		if err != nil {
			c.logger.Warnw("dropping undecodable message", "channel", ch, zap.Error(err))
			continue
		}
		c.dispatch(ch, msg)
	}
	return progressed
}

func (c *Client) dispatch(ch entity.Channel, msg *protocol.Message) {
	t := msg.Header.MsgType
	if ch == entity.ChannelStdin {
		if t == protocol.InputRequest {
			go c.answerInput(msg)
		}
		return
	}

	c.mu.Lock()
	var cl *call
	if msg.Parent != nil {
		cl = c.calls[msg.Parent.MsgID]
	}
	matched := cl != nil && !cl.complete()
	if matched {
		cl.resp.Steps = append(cl.resp.Steps, protocol.Step{Channel: ch, Type: t})
		if ch == entity.ChannelIOPub {
			cl.resp.IOPub = append(cl.resp.IOPub, msg)
			if t == protocol.Status && executionState(msg) == protocol.StateIdle {
				cl.idle = true
			}
		} else {
			cl.resp.Reply = msg
		}
		if cl.complete() {
			close(cl.done)
		}
	}
	c.mu.Unlock()

	if ch == entity.ChannelIOPub && (!matched || t == protocol.DebugEvent) {
		select {
		case c.events <- msg:
		default:
			c.logger.Warnw("dropping event, queue full", "type", t)
		}
	}
}

func executionState(msg *protocol.Message) string {
	var s protocol.StatusContent
	_ = msg.DecodeContent(&s)
	return s.ExecutionState
}

func (c *Client) answerInput(req *protocol.Message) {
	var content protocol.InputRequestContent
	if err := req.DecodeContent(&content); err != nil {
		c.logger.Warnw("malformed input request", zap.Error(err))
		return
	}
	value := ""
	if c.input != nil {
		v, err := c.input(content.Prompt, content.Password)
		if err != nil {
			c.logger.Warnw("answering input request", zap.Error(err))
		}
		value = v
	}
	reply, err := protocol.NewMessage(protocol.InputReply, c.session, c.username, protocol.InputReplyContent{Value: value})
	if err != nil {
		return
	}
	parent := req.Header
	reply.Parent = &parent
	frames, err := c.protocol.Encode(entity.ChannelStdin, reply)
	if err != nil {
		c.logger.Warnw("encoding input reply", zap.Error(err))
		return
	}
	if err := c.transport.Send(entity.ChannelStdin, frames); err != nil {
		c.logger.Warnw("sending input reply", zap.Error(err))
	}
}

// decodeReply returns the reply content, or the failure an error reply carries.
func decodeReply(resp *Response, v any) error {
	if err := resp.Error(); err != nil {
		return err
	}
	if resp.Reply == nil {
		return fmt.Errorf("no reply")
	}
	return json.Unmarshal(resp.Reply.Content, v)
}
