package lwp

import "log/slog"

// Option configures an LWP Server.
type Option func(*Server)

// WithCodec sets the default codec for the LWP server.
// Clients can override it via the hello frame's format field.
func WithCodec(codec Codec) Option {
	return func(s *Server) { s.defaultCodec = codec }
}

// WithLogger sets the logger for the LWP server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithPath sets the base path for LWP endpoints.
// Default is "/lwp".
func WithPath(path string) Option {
	return func(s *Server) { s.basePath = path }
}
