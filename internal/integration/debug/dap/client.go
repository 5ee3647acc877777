package dap

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	godap "github.com/google/go-dap"
)

// Client is a DAP client that communicates with a debug adapter.
//
// A receive goroutine decodes incoming messages; responses complete their
// pending request and events are passed to the event handler on that
// goroutine, in arrival order.
type Client struct {
	transport Transport
	seq       atomic.Int64

	pending   map[int]*pendingRequest
	pendingMu sync.Mutex

	onEvent   func(Event)
	onClose   func(error)
	handlerMu sync.RWMutex

	done      chan struct{}
	closeOnce sync.Once
	err       error
	errMu     sync.RWMutex
}

// pendingRequest tracks a request awaiting its response.
type pendingRequest struct {
	done      chan struct{}
	closeOnce sync.Once
	response  *Response
	err       error
}

func (p *pendingRequest) finish(resp *Response, err error) {
	p.closeOnce.Do(func() {
		p.response = resp
		p.err = err
		close(p.done)
	})
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithEventHandler sets the handler called for every event.
func WithEventHandler(fn func(Event)) ClientOption {
	return func(c *Client) {
		c.onEvent = fn
	}
}

// WithCloseHandler sets the handler called once when the receive loop ends.
// The error is nil when the client was closed locally.
func WithCloseHandler(fn func(error)) ClientOption {
	return func(c *Client) {
		c.onClose = fn
	}
}

// NewClient creates a client and starts its receive loop.
func NewClient(transport Transport, opts ...ClientOption) *Client {
	c := &Client{
		transport: transport,
		pending:   make(map[int]*pendingRequest),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.receiveLoop()
	return c
}

// OnEvent replaces the event handler.
func (c *Client) OnEvent(fn func(Event)) {
	c.handlerMu.Lock()
	c.onEvent = fn
	c.handlerMu.Unlock()
}

// Close closes the client and its transport.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.transport.Close()
	})
	return err
}

// Done is closed when Close has been called.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the receive error that ended the client, if any.
func (c *Client) Err() error {
	c.errMu.RLock()
	defer c.errMu.RUnlock()
	return c.err
}

func (c *Client) closing() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Client) receiveLoop() {
	var loopErr error
	defer func() {
		c.failPending(loopErr)

		c.handlerMu.RLock()
		onClose := c.onClose
		c.handlerMu.RUnlock()
		if onClose != nil {
			onClose(loopErr)
		}
	}()

	for {
		content, err := c.transport.Receive()
		if err != nil {
			if c.closing() {
				return
			}
			c.errMu.Lock()
			c.err = err
			c.errMu.Unlock()
			loopErr = err
			return
		}
		if c.closing() {
			return
		}
		c.handleMessage(content)
	}
}

func (c *Client) failPending(err error) {
	if err == nil {
		err = ErrClosed
	}

	c.pendingMu.Lock()
	pending := c.pending
	c.pending = make(map[int]*pendingRequest)
	c.pendingMu.Unlock()

	for _, req := range pending {
		req.finish(nil, err)
	}
}

func (c *Client) handleMessage(content []byte) {
	var env envelope
	if err := json.Unmarshal(content, &env); err != nil {
		return
	}

	switch env.Type {
	case TypeResponse:
		c.pendingMu.Lock()
		req, ok := c.pending[env.RequestSeq]
		delete(c.pending, env.RequestSeq)
		c.pendingMu.Unlock()

		if ok {
			req.finish(&Response{
				Seq:        env.Seq,
				RequestSeq: env.RequestSeq,
				Command:    env.Command,
				Success:    env.Success,
				Message:    env.Message,
				Body:       env.Body,
			}, nil)
		}
	case TypeEvent:
		c.handlerMu.RLock()
		onEvent := c.onEvent
		c.handlerMu.RUnlock()

		if onEvent != nil {
			onEvent(Event{Seq: env.Seq, Event: env.Event, Body: env.Body})
		}
	}
}

// Request sends a request and waits for its response. Unsuccessful
// responses are returned as *RequestError.
func (c *Client) Request(ctx context.Context, command string, args any) (*Response, error) {
	if c.closing() {
		return nil, ErrClosed
	}

	seq := int(c.seq.Add(1))
	content, err := json.Marshal(Request{
		Request: godap.Request{
			ProtocolMessage: godap.ProtocolMessage{Seq: seq, Type: TypeRequest},
			Command:         command,
		},
		Arguments: args,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", command, err)
	}

	pending := &pendingRequest{done: make(chan struct{})}
	c.pendingMu.Lock()
	c.pending[seq] = pending
	c.pendingMu.Unlock()

	if err := c.transport.Send(content); err != nil {
		c.forget(seq)
		return nil, fmt.Errorf("send %s request: %w", command, err)
	}

	select {
	case <-ctx.Done():
		c.forget(seq)
		return nil, ctx.Err()
	case <-pending.done:
		if pending.err != nil {
			return nil, pending.err
		}
		if !pending.response.Success {
			return pending.response, &RequestError{Command: command, Message: pending.response.Message}
		}
		return pending.response, nil
	}
}

func (c *Client) forget(seq int) {
	c.pendingMu.Lock()
	delete(c.pending, seq)
	c.pendingMu.Unlock()
}

// Initialize performs the initialize handshake.
func (c *Client) Initialize(ctx context.Context, args InitializeArguments) (*Capabilities, error) {
	resp, err := c.Request(ctx, "initialize", args)
	if err != nil {
		return nil, err
	}

	var caps Capabilities
	if len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, &caps); err != nil {
			return nil, fmt.Errorf("unmarshal capabilities: %w", err)
		}
	}
	return &caps, nil
}

// Launch starts the debuggee with adapter-specific arguments.
func (c *Client) Launch(ctx context.Context, args any) error {
	_, err := c.Request(ctx, "launch", args)
	return err
}

// Attach attaches to a running debuggee with adapter-specific arguments.
func (c *Client) Attach(ctx context.Context, args any) error {
	_, err := c.Request(ctx, "attach", args)
	return err
}

// ConfigurationDone signals the end of configuration.
func (c *Client) ConfigurationDone(ctx context.Context) error {
	_, err := c.Request(ctx, "configurationDone", nil)
	return err
}

// Disconnect ends the debug session.
func (c *Client) Disconnect(ctx context.Context, args DisconnectArguments) error {
	_, err := c.Request(ctx, "disconnect", args)
	return err
}

// Terminate asks the debuggee to terminate gracefully.
func (c *Client) Terminate(ctx context.Context, args TerminateArguments) error {
	_, err := c.Request(ctx, "terminate", args)
	return err
}
