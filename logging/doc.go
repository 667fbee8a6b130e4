// Package logging provides a minimal logging interface and adapters for chainkit.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that streamers, chains and tools use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - StructuredLogger with component/session context and domain helpers
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// All methods take slog style key/value pairs after the message.
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	streamer := stream.New(chain, func(o *stream.Options) { o.Logger = logger })
package logging
