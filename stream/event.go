package stream

import "github.com/hupe1980/chainkit/model"

// Event is a single item on a Channel. Concrete event types implement the
// unexported isEvent marker enabling a closed set.
type Event interface{ isEvent() }

// TokenEvent carries one generated text fragment.
type TokenEvent struct {
	Text string
}

// isEvent implements the Event interface for TokenEvent.
func (TokenEvent) isEvent() {}

// EndEvent terminates a session normally. Response is the final aggregated
// model response when the producer supplied one.
type EndEvent struct {
	Response model.Response
}

// isEvent implements the Event interface for EndEvent.
func (EndEvent) isEvent() {}

// ErrorEvent terminates a session with an upstream failure.
type ErrorEvent struct {
	Err error
}

// isEvent implements the Event interface for ErrorEvent.
func (ErrorEvent) isEvent() {}

// IsTerminal reports whether e ends a session.
func IsTerminal(e Event) bool {
	switch e.(type) {
	case EndEvent, ErrorEvent:
		return true
	default:
		return false
	}
}
