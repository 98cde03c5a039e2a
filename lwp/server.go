package lwp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/xraph/forge"

	"github.com/tavlicon/lanes/engine"
)

// Server is the LWP server that handles WebSocket, SSE, and HTTP RPC
// connections. Job subscriptions replay history then follow live events
// through the engine's stream.
type Server struct {
	eng          *engine.Engine
	handler      *Handler
	defaultCodec Codec
	conns        *ConnectionManager
	logger       *slog.Logger
	basePath     string
}

// NewServer creates a new LWP server.
func NewServer(eng *engine.Engine, handler *Handler, opts ...Option) *Server {
	s := &Server{
		eng:          eng,
		handler:      handler,
		defaultCodec: &JSONCodec{},
		conns:        NewConnectionManager(),
		logger:       slog.Default(),
		basePath:     "/lwp",
	}
	for _, opt := range opts {
		opt(s)
	}
	if handler != nil {
		handler.conns = s.conns
	}
	return s
}

// Connections returns the connection manager.
func (s *Server) Connections() *ConnectionManager { return s.conns }

// RegisterRoutes mounts LWP endpoints on a Forge router.
func (s *Server) RegisterRoutes(router forge.Router) {
	// Primary: WebSocket
	if err := router.WebSocket(s.basePath, s.handleWebSocket); err != nil {
		s.logger.Error("failed to register LWP WebSocket", slog.String("error", err.Error()))
	}

	// Fallback: SSE for a single job channel
	if err := router.EventStream(s.basePath+"/sse", s.handleSSE); err != nil {
		s.logger.Error("failed to register LWP SSE", slog.String("error", err.Error()))
	}

	// One-shot: HTTP RPC
	if err := router.POST(s.basePath+"/rpc", s.handleHTTPRPC); err != nil {
		s.logger.Error("failed to register LWP RPC", slog.String("error", err.Error()))
	}
}

// frameWriter serializes writes to a Forge connection shared by the
// request loop and the subscription forwarders.
type frameWriter struct {
	mu    sync.Mutex
	conn  forge.Connection
	codec Codec
}

func (w *frameWriter) write(frame *Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.codec.Name() == CodecNameJSON {
		return w.conn.WriteJSON(frame)
	}
	data, err := w.codec.Encode(frame)
	if err != nil {
		return err
	}
	return w.conn.Write(data)
}

// handleWebSocket is the main WebSocket connection handler.
func (s *Server) handleWebSocket(ctx forge.Context, conn forge.Connection) error {
	connID := conn.ID()
	s.logger.Info("LWP WebSocket connected", slog.String("conn_id", connID))

	// Wait for hello frame.
	helloData, readErr := conn.Read()
	if readErr != nil {
		return fmt.Errorf("lwp: read hello frame: %w", readErr)
	}

	// Hello frames are always JSON (before codec negotiation).
	var helloFrame Frame
	if err := json.Unmarshal(helloData, &helloFrame); err != nil {
		//nolint:errcheck // best-effort error response before disconnect
		conn.WriteJSON(NewErrorFrame("", ErrCodeBadRequest, "invalid hello frame"))
		return fmt.Errorf("lwp: unmarshal hello frame: %w", err)
	}
	if helloFrame.Method != MethodHello {
		//nolint:errcheck // best-effort error response before disconnect
		conn.WriteJSON(NewErrorFrame(helloFrame.ID, ErrCodeBadRequest, "first frame must be hello"))
		return fmt.Errorf("lwp: expected hello frame, got %q", helloFrame.Method)
	}

	var helloReq HelloRequest
	if len(helloFrame.Data) > 0 {
		if err := json.Unmarshal(helloFrame.Data, &helloReq); err != nil {
			//nolint:errcheck // best-effort error response before disconnect
			conn.WriteJSON(NewErrorFrame(helloFrame.ID, ErrCodeBadRequest, "invalid hello data"))
			return err
		}
	}

	// Negotiate codec.
	codec := s.defaultCodec
	if helloReq.Format != "" {
		codec = GetCodec(helloReq.Format)
	}
	w := &frameWriter{conn: conn, codec: codec}

	lwpConn := NewConnection(connID, codec)
	s.conns.Add(lwpConn)
	defer func() {
		lwpConn.Close()
		s.conns.Remove(connID)
		s.logger.Info("LWP WebSocket disconnected", slog.String("conn_id", connID))
	}()

	resp, respErr := NewResponseFrame(helloFrame.ID, HelloResponse{
		Format:    codec.Name(),
		SessionID: connID,
	})
	if respErr != nil {
		return fmt.Errorf("lwp: marshal hello response: %w", respErr)
	}
	if err := w.write(resp); err != nil {
		return err
	}

	s.logger.Debug("LWP session established",
		slog.String("conn_id", connID),
		slog.String("codec", codec.Name()),
	)

	// Frame processing loop.
	for {
		data, err := conn.Read()
		if err != nil {
			return nil // Connection closed.
		}

		lwpConn.Touch()

		frame, decErr := codec.Decode(data)
		if decErr != nil {
			errFrame := NewErrorFrame("", ErrCodeBadRequest, "invalid frame: "+decErr.Error())
			if writeErr := w.write(errFrame); writeErr != nil {
				s.logger.Warn("failed to write error frame", slog.String("error", writeErr.Error()))
			}
			continue
		}

		if frame.Type == FramePing {
			pong := &Frame{
				ID:        GenerateFrameID(),
				Type:      FramePong,
				CorrelID:  frame.ID,
				Timestamp: frame.Timestamp,
			}
			if writeErr := w.write(pong); writeErr != nil {
				s.logger.Warn("failed to write pong frame", slog.String("error", writeErr.Error()))
			}
			continue
		}

		respFrame := s.handler.Handle(ctx.Context(), frame, lwpConn)
		if respFrame == nil {
			continue
		}

		// Write the acknowledgement before the first replayed event.
		if writeErr := w.write(respFrame); writeErr != nil {
			s.logger.Warn("failed to write response frame", slog.String("error", writeErr.Error()))
			continue
		}

		if respFrame.Type != FrameResponse {
			continue
		}
		switch frame.Method {
		case MethodSubscribe:
			var subReq SubscribeRequest
			if json.Unmarshal(frame.Data, &subReq) == nil {
				s.subscribe(ctx.Context(), lwpConn, w, subReq.Channel)
			}
		case MethodUnsubscribe:
			var unsubReq UnsubscribeRequest
			if json.Unmarshal(frame.Data, &unsubReq) == nil {
				lwpConn.RemoveSubscription(unsubReq.Channel)
			}
		}
	}
}

// subscribe starts a forwarder that writes a job's events to the
// connection until the job is terminal, the client unsubscribes, or
// the connection closes.
func (s *Server) subscribe(parent context.Context, conn *Connection, w *frameWriter, channel string) {
	jobID, err := ParseChannel(channel)
	if err != nil {
		return
	}

	ctx, cancel := context.WithCancel(parent)
	if !conn.AddSubscription(channel, cancel) {
		cancel()
		return
	}

	events, err := s.eng.Stream(ctx, jobID)
	if err != nil {
		conn.RemoveSubscription(channel)
		s.logger.Warn("LWP subscribe failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}

	go func() {
		defer conn.RemoveSubscription(channel)
		for evt := range events {
			evtFrame, frameErr := NewEventFrame(channel, evt)
			if frameErr != nil {
				continue
			}
			if writeErr := w.write(evtFrame); writeErr != nil {
				return // Connection gone.
			}
		}
	}()
}

// handleSSE serves one job channel as read-only Server-Sent Events for
// clients that cannot establish WebSocket connections.
func (s *Server) handleSSE(ctx forge.Context, sseStream forge.Stream) error {
	channel := ctx.Query("channel")
	if channel == "" {
		return fmt.Errorf("lwp: SSE channel parameter required")
	}
	jobID, err := ParseChannel(channel)
	if err != nil {
		return err
	}

	events, err := s.eng.Stream(sseStream.Context(), jobID)
	if err != nil {
		return fmt.Errorf("lwp: SSE subscribe: %w", err)
	}

	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			evtFrame, frameErr := NewEventFrame(channel, evt)
			if frameErr != nil {
				continue
			}
			if sendErr := sseStream.SendJSON(string(evt.Kind), evtFrame); sendErr != nil {
				return sendErr
			}
			if flushErr := sseStream.Flush(); flushErr != nil {
				return flushErr
			}
		case <-sseStream.Context().Done():
			return nil
		}
	}
}

// handleHTTPRPC handles one-shot HTTP RPC requests. Subscriptions are
// acknowledged but not followed; use WebSocket or SSE to stream.
func (s *Server) handleHTTPRPC(ctx forge.Context) error {
	var frame Frame
	if err := ctx.Bind(&frame); err != nil {
		return ctx.Status(http.StatusBadRequest).JSON(NewErrorFrame("", ErrCodeBadRequest, "invalid request body"))
	}

	conn := NewConnection("rpc-"+GenerateFrameID(), &JSONCodec{})

	resp := s.handler.Handle(ctx.Context(), &frame, conn)
	if resp == nil {
		return ctx.NoContent(http.StatusNoContent)
	}

	status := http.StatusOK
	if resp.Type == FrameErr && resp.Error != nil {
		status = resp.Error.Code
		if status < 100 || status > 599 {
			status = http.StatusInternalServerError
		}
	}

	return ctx.Status(status).JSON(resp)
}
