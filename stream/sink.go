package stream

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/hupe1980/chainkit/callbacks"
	"github.com/hupe1980/chainkit/model"
)

var errUnknownUpstream = errors.New("unknown upstream error")

// Sink adapts model callbacks into writes on its own Channel. It never
// blocks the producer.
type Sink struct {
	ch       *Channel
	tokens   atomic.Int64
	dropped  atomic.Int64
	failed   atomic.Bool
	finished atomic.Bool
}

var _ callbacks.Handler = (*Sink)(nil)

// NewSink creates a sink writing to ch.
func NewSink(ch *Channel) *Sink {
	return &Sink{ch: ch}
}

// Channel returns the channel the sink writes to.
func (s *Sink) Channel() *Channel { return s.ch }

// OnLLMStart implements callbacks.Handler. Start carries no event.
func (s *Sink) OnLLMStart(context.Context, model.Request) {}

// OnLLMNewToken implements callbacks.Handler.
func (s *Sink) OnLLMNewToken(_ context.Context, token string) {
	if s.push(TokenEvent{Text: token}) {
		s.tokens.Add(1)
	}
}

// OnLLMEnd implements callbacks.Handler.
func (s *Sink) OnLLMEnd(_ context.Context, resp model.Response) {
	if s.push(EndEvent{Response: resp}) {
		s.finished.Store(true)
	}
}

// OnLLMError implements callbacks.Handler. A nil error is reported as an
// unknown upstream error so that the session still fails.
func (s *Sink) OnLLMError(_ context.Context, err error) {
	if err == nil {
		err = errUnknownUpstream
	}
	if s.push(ErrorEvent{Err: err}) {
		s.failed.Store(true)
	}
}

// Tokens returns the number of accepted token events.
func (s *Sink) Tokens() int { return int(s.tokens.Load()) }

// Dropped returns the number of events rejected by the channel.
func (s *Sink) Dropped() int { return int(s.dropped.Load()) }

// Outcome describes how the session terminated from the producer's side:
// "completed", "failed" or "running".
func (s *Sink) Outcome() string {
	switch {
	case s.finished.Load():
		return "completed"
	case s.failed.Load():
		return "failed"
	default:
		return "running"
	}
}

func (s *Sink) push(e Event) bool {
	if s.ch.Push(e) {
		return true
	}
	s.dropped.Add(1)
	return false
}
