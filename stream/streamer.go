package stream

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/hupe1980/chainkit/callbacks"
	"github.com/hupe1980/chainkit/core"
	"github.com/hupe1980/chainkit/logging"
	"github.com/hupe1980/chainkit/model"
)

// Chain is the producer side of a session. Implementations invoke the
// handlers' token, end and error hooks while they generate and should return
// promptly once ctx is cancelled. chain.LLMChain implements it.
type Chain interface {
	Call(ctx context.Context, input map[string]any, handlers ...callbacks.Handler) (map[string]any, error)
}

// Config defines tuning parameters for a Streamer.
type Config struct {
	// MaxConcurrentSessions limits how many sessions may run at once.
	// Stream fails with a StartupError wrapping ErrTooManySessions when the
	// limit is reached. Set to 0 for unlimited.
	MaxConcurrentSessions int
}

// DefaultConfig provides the default Streamer configuration.
var DefaultConfig = Config{
	MaxConcurrentSessions: 10,
}

// Options configures a Streamer.
type Options struct {
	// Config contains operational parameters. Defaults to DefaultConfig.
	Config Config

	// Handlers are attached to every session after the session's Sink.
	// They are shared across sessions and must be safe for concurrent use.
	Handlers []callbacks.Handler

	// Logger defaults to a no-op logger.
	Logger logging.Logger
}

// Streamer starts stream sessions for a Chain and tracks the running ones.
type Streamer struct {
	chain    Chain
	config   Config
	handlers []callbacks.Handler
	logger   logging.Logger
	limiter  *core.SessionLimiter

	mu       sync.RWMutex
	sessions map[string]context.CancelFunc
	closed   bool
	wg       sync.WaitGroup
}

// New creates a Streamer for chain.
//
// Example:
//
//	s := stream.New(llmChain, func(o *stream.Options) {
//	    o.Config.MaxConcurrentSessions = 50
//	    o.Logger = logger
//	})
func New(chain Chain, optFns ...func(o *Options)) *Streamer {
	opts := Options{
		Config: DefaultConfig,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Streamer{
		chain:    chain,
		config:   opts.Config,
		handlers: slices.Clone(opts.Handlers),
		logger:   opts.Logger,
		limiter:  core.NewSessionLimiter(opts.Config.MaxConcurrentSessions),
		sessions: make(map[string]context.CancelFunc),
	}
}

// Stream starts a new session for input and returns its pull side without
// waiting for the first token. Startup problems are reported synchronously as
// *StartupError. Cancelling ctx cancels the session.
func (s *Streamer) Stream(ctx context.Context, input map[string]any) (*Stream, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, &StartupError{Err: ErrStreamerClosed}
	}

	if err := s.limiter.Acquire(); err != nil {
		s.mu.Unlock()
		s.logger.Warn("stream.session.rejected", "error", err)

		return nil, &StartupError{Err: fmt.Errorf("%w (max %d)", ErrTooManySessions, s.config.MaxConcurrentSessions)}
	}

	id := core.NewID()
	sessionCtx, cancel := context.WithCancel(ctx)
	s.sessions[id] = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	ch := NewChannel()
	sink := NewSink(ch)

	handlers := make([]callbacks.Handler, 0, len(s.handlers)+1)
	handlers = append(handlers, sink)
	handlers = append(handlers, s.handlers...)

	st := newStream(ctx, id, ch, cancel)
	logger := s.sessionLogger(id)

	logger.Info("stream.session.start", "session_id", id)

	go s.run(sessionCtx, id, input, sink, handlers, logger)

	return st, nil
}

// run executes the chain for one session. Whatever the chain does, the
// session's channel receives a terminal event before run returns.
func (s *Streamer) run(ctx context.Context, id string, input map[string]any, sink *Sink, handlers []callbacks.Handler, logger logging.Logger) {
	start := time.Now()

	defer s.finish(id)

	var err error

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stream: producer panic: %v", r)
			sink.OnLLMError(ctx, err)
		}

		logSession(logger, id, sink, time.Since(start), err)
	}()

	_, err = s.chain.Call(ctx, input, handlers...)
	if err != nil {
		sink.OnLLMError(ctx, err)
		return
	}

	sink.OnLLMEnd(ctx, model.Response{})
}

func (s *Streamer) finish(id string) {
	s.mu.Lock()
	if cancel, ok := s.sessions[id]; ok {
		cancel()
		delete(s.sessions, id)
	}
	s.limiter.Release()
	s.mu.Unlock()

	s.wg.Done()
}

// sessionLogger scopes structured loggers to one session.
func (s *Streamer) sessionLogger(id string) logging.Logger {
	if sl, ok := s.logger.(*logging.StructuredLogger); ok {
		return sl.WithSession(id)
	}

	return s.logger
}

func logSession(logger logging.Logger, id string, sink *Sink, dur time.Duration, err error) {
	if sl, ok := logger.(*logging.StructuredLogger); ok {
		sl.LogStreamSession(id, sink.Tokens(), dur, sink.Outcome(), err)
		return
	}

	args := []any{
		"session_id", id,
		"tokens", sink.Tokens(),
		"dropped", sink.Dropped(),
		"outcome", sink.Outcome(),
		"duration", dur,
	}

	if err != nil {
		logger.Error("stream.session.end", append(args, "error", err)...)
		return
	}

	logger.Info("stream.session.end", args...)
}

// Stop cancels a running session. The session's consumer observes an
// UpstreamError wrapping context.Canceled.
func (s *Streamer) Stop(sessionID string) error {
	s.mu.RLock()
	cancel, ok := s.sessions[sessionID]
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	cancel()

	s.sessionLogger(sessionID).Info("stream.session.stop", "session_id", sessionID)

	return nil
}

// ActiveSessions returns the ids of all running sessions in sorted order.
func (s *Streamer) ActiveSessions() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	slices.Sort(ids)

	return ids
}

// Shutdown rejects new sessions, cancels all running ones and waits until
// their producers returned or ctx is done.
func (s *Streamer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for _, cancel := range s.sessions {
		cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
