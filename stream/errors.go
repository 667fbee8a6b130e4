package stream

import (
	"errors"
	"fmt"
)

var (
	// ErrTooManySessions is wrapped by StartupError when the session limit is reached.
	ErrTooManySessions = errors.New("stream: too many concurrent sessions")

	// ErrStreamerClosed is wrapped by StartupError after Shutdown.
	ErrStreamerClosed = errors.New("stream: streamer is shut down")

	// ErrSessionNotFound is returned by Stop for unknown or finished sessions.
	ErrSessionNotFound = errors.New("stream: session not found")

	// ErrChannelDrained is returned by Channel.Pop once the terminal event has
	// been consumed or the channel was discarded.
	ErrChannelDrained = errors.New("stream: channel drained")
)

// StartupError reports that a session could not be started. It is returned
// synchronously from Streamer.Stream; no Stream exists in that case.
type StartupError struct {
	Err error
}

// Error implements the error interface.
func (e *StartupError) Error() string {
	return fmt.Sprintf("stream: failed to start session: %v", e.Err)
}

// Unwrap returns the underlying cause.
func (e *StartupError) Unwrap() error { return e.Err }

// UpstreamError reports that the producer failed mid-stream. Tokens yielded
// before it remain valid.
type UpstreamError struct {
	SessionID string
	Detail    string
	Err       error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("stream: upstream error in session %s: %s", e.SessionID, e.Detail)
}

// Unwrap returns the producer's error.
func (e *UpstreamError) Unwrap() error { return e.Err }
