// Package client provides a Go client for a remote lanes server via the
// Lanes Wire Protocol (LWP) over WebSocket.
//
// Usage:
//
//	c, err := client.Dial("ws://localhost:8080/lwp")
//	defer c.Close()
//
//	// Submit an image edit.
//	res, err := c.Submit(ctx, job.LaneImageEdit, workload.ImageEditRequest{...})
//	if errors.Is(err, lanes.ErrQueueFull) {
//	    // retry shortly
//	}
//
//	// Follow the job until it is terminal.
//	events, err := c.Follow(ctx, res.JobID)
//	for evt := range events {
//	    fmt.Printf("%d %s\n", evt.Seq, evt.Kind)
//	}
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/tavlicon/lanes"
	"github.com/tavlicon/lanes/job"
	"github.com/tavlicon/lanes/lwp"
)

// Error is an error frame returned by the server. It matches the lanes
// sentinel errors through errors.Is.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("lanes/client: %d %s", e.Code, e.Message)
}

// Is maps wire error codes onto lanes sentinel errors.
func (e *Error) Is(target error) bool {
	switch e.Code {
	case lwp.ErrCodeTooManyRequests:
		return target == lanes.ErrQueueFull
	case lwp.ErrCodeNotFound:
		return target == lanes.ErrJobNotFound
	case lwp.ErrCodeTimeout:
		return target == lanes.ErrTimeout
	case lwp.ErrCodeBadRequest:
		return target == lanes.ErrInvalidArgs
	case lwp.ErrCodeServiceUnavailable:
		return target == lanes.ErrNotStarted
	}
	return false
}

// Client is an LWP client that communicates with a remote lanes server.
type Client struct {
	url    string
	logger *slog.Logger

	// Reconnection.
	reconnect  bool
	maxRetries int
	baseDelay  time.Duration

	// Connection state.
	conn      net.Conn
	mu        sync.Mutex
	closed    atomic.Bool
	sessionID string

	// Request-response correlation.
	pending sync.Map // frameID → chan *lwp.Frame

	// Subscriptions. Sends and closes happen under subsMu.
	subsMu sync.Mutex
	subs   map[string]chan *job.Event
}

// Dial connects to an LWP server and opens a session.
func Dial(url string, opts ...Option) (*Client, error) {
	return DialContext(context.Background(), url, opts...)
}

// DialContext connects to an LWP server with a context.
func DialContext(ctx context.Context, url string, opts ...Option) (*Client, error) {
	c := &Client{
		url:        url,
		logger:     slog.Default(),
		maxRetries: 5,
		baseDelay:  time.Second,
		subs:       make(map[string]chan *job.Event),
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.connect(ctx); err != nil {
		return nil, fmt.Errorf("lanes/client: dial: %w", err)
	}

	go c.readLoop()

	return c, nil
}

// connect establishes the WebSocket connection and sends the hello
// frame. It reads the hello response directly since the readLoop has
// not started yet.
func (c *Client) connect(ctx context.Context) error {
	conn, _, _, err := ws.Dial(ctx, c.url)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	c.conn = conn

	hello, err := lwp.NewRequestFrame(lwp.GenerateFrameID(), lwp.MethodHello, lwp.HelloRequest{
		Format: lwp.CodecNameJSON,
	})
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("marshal hello: %w", err)
	}
	if writeErr := c.writeFrame(hello); writeErr != nil {
		_ = conn.Close()
		return fmt.Errorf("write hello frame: %w", writeErr)
	}

	type readResult struct {
		resp *lwp.Frame
		err  error
	}
	resultCh := make(chan readResult, 1)

	go func() {
		data, readErr := wsutil.ReadServerText(conn)
		if readErr != nil {
			resultCh <- readResult{err: fmt.Errorf("read hello response: %w", readErr)}
			return
		}
		var frame lwp.Frame
		if unmarshalErr := json.Unmarshal(data, &frame); unmarshalErr != nil {
			resultCh <- readResult{err: fmt.Errorf("unmarshal hello response: %w", unmarshalErr)}
			return
		}
		resultCh <- readResult{resp: &frame}
	}()

	select {
	case result := <-resultCh:
		if result.err != nil {
			_ = conn.Close()
			return result.err
		}
		resp := result.resp
		if resp.Type == lwp.FrameErr {
			_ = conn.Close()
			return frameError(resp)
		}
		var helloResp lwp.HelloResponse
		if len(resp.Data) > 0 {
			if unmarshalErr := json.Unmarshal(resp.Data, &helloResp); unmarshalErr != nil {
				c.logger.Warn("failed to unmarshal hello response", slog.String("error", unmarshalErr.Error()))
			}
		}
		c.sessionID = helloResp.SessionID
		c.logger.Debug("LWP client connected",
			slog.String("session_id", c.sessionID),
			slog.String("format", helloResp.Format),
		)
		return nil
	case <-ctx.Done():
		_ = conn.Close()
		return ctx.Err()
	case <-time.After(10 * time.Second):
		_ = conn.Close()
		return errors.New("hello timeout")
	}
}

// readLoop reads frames from the WebSocket and dispatches them.
func (c *Client) readLoop() {
	for {
		if c.closed.Load() {
			return
		}

		data, err := wsutil.ReadServerText(c.conn)
		if err != nil {
			if c.closed.Load() {
				return
			}
			c.logger.Warn("LWP client read error", slog.String("error", err.Error()))
			c.closeSubscriptions()
			if c.reconnect {
				c.tryReconnect()
			}
			return
		}

		var frame lwp.Frame
		if unmarshalErr := json.Unmarshal(data, &frame); unmarshalErr != nil {
			c.logger.Warn("LWP client: invalid frame", slog.String("error", unmarshalErr.Error()))
			continue
		}

		switch frame.Type {
		case lwp.FrameResponse, lwp.FrameErr:
			if val, ok := c.pending.Load(frame.CorrelID); ok {
				ch := val.(chan *lwp.Frame) //nolint:errcheck // pending map always stores chan *lwp.Frame
				select {
				case ch <- &frame:
				default:
				}
			}
		case lwp.FrameEvent:
			c.deliver(&frame)
		case lwp.FramePong:
			// Ignore pong frames.
		}
	}
}

// deliver routes an event frame to its subscription channel and closes
// the channel after the job's terminal event.
func (c *Client) deliver(frame *lwp.Frame) {
	var evt job.Event
	if err := json.Unmarshal(frame.Data, &evt); err != nil {
		c.logger.Warn("LWP client: invalid event", slog.String("error", err.Error()))
		return
	}

	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	ch, ok := c.subs[frame.Channel]
	if !ok {
		return
	}
	select {
	case ch <- &evt:
	default:
		c.logger.Warn("LWP client: subscriber too slow, event dropped",
			slog.String("channel", frame.Channel),
			slog.Uint64("seq", evt.Seq),
		)
	}
	if evt.Kind.Terminal() {
		delete(c.subs, frame.Channel)
		close(ch)
	}
}

// addSubscription registers a local channel for events. It fails when
// the channel is already subscribed.
func (c *Client) addSubscription(channel string, buffer int) (chan *job.Event, error) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	if _, ok := c.subs[channel]; ok {
		return nil, fmt.Errorf("lanes/client: already subscribed to %q", channel)
	}
	ch := make(chan *job.Event, buffer)
	c.subs[channel] = ch
	return ch, nil
}

// removeSubscription closes and forgets a local channel.
func (c *Client) removeSubscription(channel string) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	if ch, ok := c.subs[channel]; ok {
		delete(c.subs, channel)
		close(ch)
	}
}

// tryReconnect attempts to reconnect with exponential backoff.
func (c *Client) tryReconnect() {
	delay := c.baseDelay
	for i := range c.maxRetries {
		c.logger.Info("LWP client reconnecting",
			slog.Int("attempt", i+1),
			slog.Duration("delay", delay),
		)
		time.Sleep(delay)

		if err := c.connect(context.Background()); err != nil {
			c.logger.Warn("LWP client reconnect failed", slog.String("error", err.Error()))
			delay = min(delay*2, 30*time.Second)
			continue
		}

		c.logger.Info("LWP client reconnected")
		go c.readLoop()
		return
	}
	c.logger.Error("LWP client: max reconnection attempts reached")
}

// request sends a request frame and waits for the correlated response.
func (c *Client) request(ctx context.Context, method string, data any) (*lwp.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	frame := &lwp.Frame{
		ID:        lwp.GenerateFrameID(),
		Type:      lwp.FrameRequest,
		Method:    method,
		Timestamp: time.Now().UTC(),
	}

	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal request data: %w", err)
		}
		frame.Data = raw
	}

	respCh := make(chan *lwp.Frame, 1)
	c.pending.Store(frame.ID, respCh)
	defer c.pending.Delete(frame.ID)

	if err := c.writeFrame(frame); err != nil {
		return nil, err
	}

	select {
	case resp := <-respCh:
		if resp.Type == lwp.FrameErr {
			return nil, frameError(resp)
		}
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// call performs a request and decodes the response data into out.
func (c *Client) call(ctx context.Context, method string, data, out any) error {
	resp, err := c.request(ctx, method, data)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("unmarshal %s response: %w", method, err)
	}
	return nil
}

func frameError(frame *lwp.Frame) error {
	if frame.Error == nil {
		return &Error{Code: lwp.ErrCodeInternal, Message: "unknown error"}
	}
	return &Error{Code: frame.Error.Code, Message: frame.Error.Message}
}

// writeFrame JSON-encodes and sends a frame over the WebSocket.
func (c *Client) writeFrame(frame *lwp.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	return wsutil.WriteClientText(c.conn, data)
}

// SessionID returns the session ID assigned by the server.
func (c *Client) SessionID() string { return c.sessionID }

func (c *Client) closeSubscriptions() {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for channel, ch := range c.subs {
		delete(c.subs, channel)
		close(ch)
	}
}

// Close closes the client connection.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil // already closed
	}

	c.closeSubscriptions()

	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
