// Package chain composes a prompt template with a model into a callable unit
// that reports its progress through callbacks.
package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/chainkit/callbacks"
	"github.com/hupe1980/chainkit/logging"
	"github.com/hupe1980/chainkit/model"
	"github.com/hupe1980/chainkit/prompt"
)

// OutputKey is the key under which LLMChain returns the generated text.
const OutputKey = "text"

// ErrNoFinalResponse is returned when a model closes its channels without
// producing a final response or an error.
var ErrNoFinalResponse = errors.New("chain: model finished without a final response")

// Options configures an LLMChain.
type Options struct {
	// Streaming asks the model for token deltas. Without it handlers only see
	// start and end/error.
	Streaming bool

	// Tools are advertised to the model on every call.
	Tools []model.ToolDefinition

	// Handlers are attached to every call, ahead of per-call handlers.
	Handlers []callbacks.Handler

	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// LLMChain formats its prompt with the call input and runs the model once.
// It is safe for concurrent use as long as the model is.
type LLMChain struct {
	model  model.Model
	prompt *prompt.ChatTemplate
	opts   Options
}

// NewLLMChain creates a chain. Streaming is enabled by default.
func NewLLMChain(m model.Model, p *prompt.ChatTemplate, optFns ...func(o *Options)) *LLMChain {
	opts := Options{
		Streaming: true,
		Logger:    logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &LLMChain{model: m, prompt: p, opts: opts}
}

// Call renders the prompt, runs the model and returns {"text": output}.
//
// Handlers receive OnLLMStart, one OnLLMNewToken per streamed delta and then
// exactly one of OnLLMEnd or OnLLMError. A prompt rendering failure is
// returned before any handler is notified.
func (c *LLMChain) Call(ctx context.Context, input map[string]any, handlers ...callbacks.Handler) (map[string]any, error) {
	contents, err := c.prompt.FormatMessages(input)
	if err != nil {
		return nil, fmt.Errorf("chain: format prompt: %w", err)
	}

	req := model.Request{
		Contents: contents,
		Tools:    c.opts.Tools,
		Stream:   c.opts.Streaming,
	}

	all := make([]callbacks.Handler, 0, len(c.opts.Handlers)+len(handlers))
	all = append(all, c.opts.Handlers...)
	all = append(all, handlers...)
	mgr := callbacks.NewManager(all...)

	info := c.model.Info()
	start := time.Now()

	c.opts.Logger.Debug("chain.call.start", "model", info.Name, "provider", info.Provider, "stream", req.Stream)
	mgr.OnLLMStart(ctx, req)

	resp, err := generate(ctx, c.model, req, mgr)
	logLLMCall(c.opts.Logger, info.Name, resp, time.Since(start), err)

	if err != nil {
		mgr.OnLLMError(ctx, err)
		return nil, err
	}

	mgr.OnLLMEnd(ctx, *resp)

	return map[string]any{OutputKey: resp.Content.Text()}, nil
}

// Run is a convenience wrapper returning only the generated text.
func (c *LLMChain) Run(ctx context.Context, input map[string]any, handlers ...callbacks.Handler) (string, error) {
	out, err := c.Call(ctx, input, handlers...)
	if err != nil {
		return "", err
	}

	text, _ := out[OutputKey].(string)

	return text, nil
}

// logLLMCall reports one model round trip. Structured loggers get the
// dedicated LLM call record.
func logLLMCall(logger logging.Logger, modelName string, resp *model.Response, dur time.Duration, err error) {
	tokens := 0
	if resp != nil && resp.Usage != nil {
		tokens = resp.Usage.TotalTokens
	}

	if sl, ok := logger.(*logging.StructuredLogger); ok {
		sl.LogLLMCall(modelName, tokens, dur, err == nil, err)
		return
	}

	if err != nil {
		logger.Error("chain.call.error", "model", modelName, "error", err.Error(), "duration_ms", dur.Milliseconds())
		return
	}

	finish := ""
	if resp != nil {
		finish = resp.FinishReason
	}

	logger.Info("chain.call.end", "model", modelName, "finish_reason", finish, "tokens", tokens, "duration_ms", dur.Milliseconds())
}

// generate drains the model channels, forwarding partial text to mgr in
// arrival order. Partials buffered ahead of an error are still delivered.
func generate(ctx context.Context, m model.Model, req model.Request, mgr *callbacks.Manager) (*model.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	respCh, errCh := m.Generate(ctx, req)

	var final *model.Response

	handle := func(r model.Response) {
		if r.Partial {
			if text := r.Content.Text(); text != "" {
				mgr.OnLLMNewToken(ctx, text)
			}
			return
		}
		final = &r
	}

	for respCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case r, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			handle(r)

		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err == nil {
				continue
			}
			// Flush deltas the model emitted before failing.
			for respCh != nil {
				select {
				case <-ctx.Done():
					return nil, err
				case r, ok := <-respCh:
					if !ok {
						respCh = nil
						continue
					}
					if r.Partial {
						handle(r)
					}
				}
			}
			return nil, err
		}
	}

	if final == nil {
		return nil, ErrNoFinalResponse
	}

	return final, nil
}
