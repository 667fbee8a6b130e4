package callbacks

import (
	"context"
	"time"

	"github.com/hupe1980/chainkit/logging"
	"github.com/hupe1980/chainkit/model"
)

// Handler receives lifecycle notifications for a single model call.
//
// For every call a chain fires OnLLMStart once, OnLLMNewToken zero or more
// times in generation order and then exactly one of OnLLMEnd or OnLLMError.
type Handler interface {
	// OnLLMStart is invoked before the request is sent to the model.
	OnLLMStart(ctx context.Context, req model.Request)

	// OnLLMNewToken is invoked for every streamed text delta.
	OnLLMNewToken(ctx context.Context, token string)

	// OnLLMEnd is invoked with the final aggregated response.
	OnLLMEnd(ctx context.Context, resp model.Response)

	// OnLLMError is invoked when the model call fails.
	OnLLMError(ctx context.Context, err error)
}

// BaseHandler implements Handler with no-ops. Embed it to override only the
// hooks you care about.
type BaseHandler struct{}

// OnLLMStart implements Handler.
func (BaseHandler) OnLLMStart(context.Context, model.Request) {}

// OnLLMNewToken implements Handler.
func (BaseHandler) OnLLMNewToken(context.Context, string) {}

// OnLLMEnd implements Handler.
func (BaseHandler) OnLLMEnd(context.Context, model.Response) {}

// OnLLMError implements Handler.
func (BaseHandler) OnLLMError(context.Context, error) {}

// FuncHandler adapts plain functions to the Handler interface. Nil fields are
// skipped.
//
// Example:
//
//	h := &FuncHandler{
//	    Token: func(_ context.Context, tok string) { fmt.Print(tok) },
//	}
type FuncHandler struct {
	Start func(ctx context.Context, req model.Request)
	Token func(ctx context.Context, token string)
	End   func(ctx context.Context, resp model.Response)
	Error func(ctx context.Context, err error)
}

// OnLLMStart implements Handler.
func (h *FuncHandler) OnLLMStart(ctx context.Context, req model.Request) {
	if h.Start != nil {
		h.Start(ctx, req)
	}
}

// OnLLMNewToken implements Handler.
func (h *FuncHandler) OnLLMNewToken(ctx context.Context, token string) {
	if h.Token != nil {
		h.Token(ctx, token)
	}
}

// OnLLMEnd implements Handler.
func (h *FuncHandler) OnLLMEnd(ctx context.Context, resp model.Response) {
	if h.End != nil {
		h.End(ctx, resp)
	}
}

// OnLLMError implements Handler.
func (h *FuncHandler) OnLLMError(ctx context.Context, err error) {
	if h.Error != nil {
		h.Error(ctx, err)
	}
}

// Manager fans notifications out to a fixed list of handlers in registration
// order. A Manager is immutable after construction and therefore safe for
// concurrent use; each model call typically builds its own.
type Manager struct {
	handlers []Handler
}

// NewManager creates a manager dispatching to the given handlers. Nil handlers
// are ignored.
func NewManager(handlers ...Handler) *Manager {
	m := &Manager{handlers: make([]Handler, 0, len(handlers))}
	for _, h := range handlers {
		if h != nil {
			m.handlers = append(m.handlers, h)
		}
	}
	return m
}

// With returns a new Manager with additional handlers appended.
func (m *Manager) With(handlers ...Handler) *Manager {
	all := make([]Handler, 0, len(m.handlers)+len(handlers))
	all = append(all, m.handlers...)
	all = append(all, handlers...)
	return NewManager(all...)
}

// Len returns the number of registered handlers.
func (m *Manager) Len() int { return len(m.handlers) }

// OnLLMStart implements Handler.
func (m *Manager) OnLLMStart(ctx context.Context, req model.Request) {
	for _, h := range m.handlers {
		h.OnLLMStart(ctx, req)
	}
}

// OnLLMNewToken implements Handler.
func (m *Manager) OnLLMNewToken(ctx context.Context, token string) {
	for _, h := range m.handlers {
		h.OnLLMNewToken(ctx, token)
	}
}

// OnLLMEnd implements Handler.
func (m *Manager) OnLLMEnd(ctx context.Context, resp model.Response) {
	for _, h := range m.handlers {
		h.OnLLMEnd(ctx, resp)
	}
}

// OnLLMError implements Handler.
func (m *Manager) OnLLMError(ctx context.Context, err error) {
	for _, h := range m.handlers {
		h.OnLLMError(ctx, err)
	}
}

// LoggingHandler provides structured logging for model call lifecycle events.
// Token notifications are logged at debug level only.
type LoggingHandler struct {
	logger logging.Logger
	start  time.Time
	tokens int
}

// NewLoggingHandler creates a logging handler. A nil logger discards output.
// The handler keeps per-call counters, so use one instance per call.
func NewLoggingHandler(logger logging.Logger) *LoggingHandler {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &LoggingHandler{logger: logger}
}

// OnLLMStart implements Handler.
func (h *LoggingHandler) OnLLMStart(_ context.Context, req model.Request) {
	h.start = time.Now()
	h.tokens = 0
	h.logger.Debug("llm.call.start", "contents", len(req.Contents), "stream", req.Stream)
}

// OnLLMNewToken implements Handler.
func (h *LoggingHandler) OnLLMNewToken(_ context.Context, token string) {
	h.tokens++
	h.logger.Debug("llm.call.token", "index", h.tokens, "length", len(token))
}

// OnLLMEnd implements Handler.
func (h *LoggingHandler) OnLLMEnd(_ context.Context, resp model.Response) {
	h.logger.Info("llm.call.end", "finish_reason", resp.FinishReason, "tokens", h.tokens, "duration_ms", time.Since(h.start).Milliseconds())
}

// OnLLMError implements Handler.
func (h *LoggingHandler) OnLLMError(_ context.Context, err error) {
	h.logger.Error("llm.call.error", "error", err.Error(), "tokens", h.tokens, "duration_ms", time.Since(h.start).Milliseconds())
}
