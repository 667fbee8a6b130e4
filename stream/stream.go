package stream

import (
	"context"
	"errors"
	"iter"
	"sync/atomic"

	"github.com/hupe1980/chainkit/model"
)

// State is the lifecycle state of a Stream.
type State int32

const (
	// StateCreated is never observed by callers; Streamer.Stream returns
	// streams that are already running.
	StateCreated State = iota
	StateRunning
	StateCompleted
	StateFailed
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateClosed
}

// Stream is the consumer side of one session. It is a lazy sequence: Next
// blocks until the producer delivered the next event. A Stream is meant to be
// consumed from a single goroutine; State and ID are safe to call from any
// goroutine.
type Stream struct {
	id     string
	ctx    context.Context
	ch     *Channel
	cancel context.CancelFunc
	state  atomic.Int32

	token string
	err   error
	final *model.Response
}

func newStream(ctx context.Context, id string, ch *Channel, cancel context.CancelFunc) *Stream {
	s := &Stream{
		id:     id,
		ctx:    ctx,
		ch:     ch,
		cancel: cancel,
	}
	s.state.Store(int32(StateRunning))

	return s
}

// ID returns the session id.
func (s *Stream) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Stream) State() State { return State(s.state.Load()) }

// Next advances to the next token. It returns false once the session ended,
// failed or was closed, and keeps returning false afterwards.
func (s *Stream) Next() bool {
	if s.State() != StateRunning {
		return false
	}

	ev, err := s.ch.Pop(s.ctx)
	if err != nil {
		s.token = ""
		if errors.Is(err, ErrChannelDrained) {
			// Discarded by a concurrent Close.
			return false
		}
		if s.state.CompareAndSwap(int32(StateRunning), int32(StateFailed)) {
			s.err = err
		}
		s.abandon()

		return false
	}

	return s.accept(ev)
}

// accept applies a popped event. A token dequeued while a concurrent Close
// discarded the channel is not reported.
func (s *Stream) accept(ev Event) bool {
	switch e := ev.(type) {
	case TokenEvent:
		if s.State() != StateRunning {
			s.token = ""
			return false
		}
		s.token = e.Text
		return true
	case EndEvent:
		s.token = ""
		resp := e.Response
		s.final = &resp
		s.state.CompareAndSwap(int32(StateRunning), int32(StateCompleted))
	case ErrorEvent:
		s.token = ""
		if s.state.CompareAndSwap(int32(StateRunning), int32(StateFailed)) {
			s.err = &UpstreamError{SessionID: s.id, Detail: e.Err.Error(), Err: e.Err}
		}
	}

	return false
}

// Token returns the token produced by the last successful Next.
func (s *Stream) Token() string { return s.token }

// Err returns the error that ended the stream. It is nil while running,
// after normal completion and after Close. Upstream failures are reported
// as *UpstreamError.
func (s *Stream) Err() error { return s.err }

// Response returns the final response delivered with the end event, or nil
// when the stream did not complete normally.
func (s *Stream) Response() *model.Response { return s.final }

// All returns an iterator over the remaining tokens. On upstream failure it
// yields one final ("", err) pair. Breaking out of the loop closes the stream.
func (s *Stream) All() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for s.Next() {
			if !yield(s.Token(), nil) {
				_ = s.Close()
				return
			}
		}

		if err := s.Err(); err != nil {
			yield("", err)
		}
	}
}

// Collect drains the stream and returns every token received. Tokens
// received before a failure are returned together with the error.
func (s *Stream) Collect() ([]string, error) {
	var tokens []string
	for s.Next() {
		tokens = append(tokens, s.Token())
	}

	return tokens, s.Err()
}

// Close abandons the session. The producer's context is cancelled and queued
// events are discarded. Closing is not an error: Err stays nil. Close is
// idempotent and a no-op on streams that already terminated.
func (s *Stream) Close() error {
	if s.state.CompareAndSwap(int32(StateRunning), int32(StateClosed)) {
		s.abandon()
	}
	s.cancel()

	return nil
}

func (s *Stream) abandon() {
	s.cancel()
	s.ch.Discard()
}
