package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/chainkit/callbacks"
	"github.com/hupe1980/chainkit/core"
	"github.com/hupe1980/chainkit/logging"
	"github.com/hupe1980/chainkit/model"
	"github.com/hupe1980/chainkit/prompt"
	"github.com/hupe1980/chainkit/tool"
)

// ErrMaxIterations is returned when the model keeps requesting tools beyond
// ToolOptions.MaxIterations.
var ErrMaxIterations = errors.New("chain: tool loop exceeded max iterations")

// ToolOptions configures a ToolChain.
type ToolOptions struct {
	// MaxIterations bounds the number of model rounds. Defaults to 8.
	MaxIterations int

	// Streaming asks the model for token deltas.
	Streaming bool

	// Handlers are attached to every call, ahead of per-call handlers.
	Handlers []callbacks.Handler

	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// ToolChain runs the model in a loop, executing every function call it
// requests and feeding the results back until it answers without calls.
//
// Handlers see OnLLMStart once per model round and tokens from every round,
// but only a single OnLLMEnd or OnLLMError for the whole call.
type ToolChain struct {
	model  model.Model
	prompt *prompt.ChatTemplate
	tools  []tool.Tool
	opts   ToolOptions
}

// NewToolChain creates a tool calling chain.
func NewToolChain(m model.Model, p *prompt.ChatTemplate, tools []tool.Tool, optFns ...func(o *ToolOptions)) *ToolChain {
	opts := ToolOptions{
		MaxIterations: 8,
		Streaming:     true,
		Logger:        logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &ToolChain{model: m, prompt: p, tools: tools, opts: opts}
}

// Call renders the prompt and runs the tool loop. It returns {"text": answer}.
func (c *ToolChain) Call(ctx context.Context, input map[string]any, handlers ...callbacks.Handler) (map[string]any, error) {
	contents, err := c.prompt.FormatMessages(input)
	if err != nil {
		return nil, fmt.Errorf("chain: format prompt: %w", err)
	}

	all := make([]callbacks.Handler, 0, len(c.opts.Handlers)+len(handlers))
	all = append(all, c.opts.Handlers...)
	all = append(all, handlers...)
	mgr := callbacks.NewManager(all...)

	defs := tool.Definitions(c.tools...)
	modelName := c.model.Info().Name
	start := time.Now()

	for round := 1; round <= c.opts.MaxIterations; round++ {
		req := model.Request{
			Contents: contents,
			Tools:    defs,
			Stream:   c.opts.Streaming,
		}

		mgr.OnLLMStart(ctx, req)

		callStart := time.Now()
		resp, err := generate(ctx, c.model, req, mgr)
		logLLMCall(c.opts.Logger, modelName, resp, time.Since(callStart), err)

		if err != nil {
			mgr.OnLLMError(ctx, err)
			return nil, err
		}

		calls := resp.Content.FunctionCalls()
		if len(calls) == 0 {
			mgr.OnLLMEnd(ctx, *resp)
			c.opts.Logger.Info("chain.tools.end", "rounds", round, "duration_ms", time.Since(start).Milliseconds())

			return map[string]any{OutputKey: resp.Content.Text()}, nil
		}

		contents = append(contents, resp.Content)

		for _, call := range calls {
			fr := tool.Dispatch(ctx, c.tools, call)
			c.opts.Logger.Debug("chain.tool", "round", round, "tool", call.Name, "failed", fr.Error != "")

			contents = append(contents, core.Content{
				Role:  "tool",
				Parts: []core.Part{core.FunctionResponsePart{FunctionResponse: fr}},
			})
		}
	}

	err = fmt.Errorf("%w (%d)", ErrMaxIterations, c.opts.MaxIterations)
	mgr.OnLLMError(ctx, err)

	return nil, err
}
