package testutil

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hupe1980/chainkit/callbacks"
	"github.com/hupe1980/chainkit/core"
	"github.com/hupe1980/chainkit/model"
)

// ScriptedChain drives callback handlers straight from a script, without a
// model in between. It satisfies stream.Chain.
type ScriptedChain struct {
	// Steps is replayed on every call unless Script is set.
	Steps []Step

	// Script derives the steps from the call input.
	Script func(input map[string]any) []Step

	// Gate, when non-nil, blocks the call until it is closed or the context
	// is cancelled.
	Gate <-chan struct{}

	// ReturnErr is returned from Call after the script ran.
	ReturnErr error

	// PanicWith makes Call panic after the script ran.
	PanicWith any

	calls  atomic.Int32
	exited atomic.Int32
}

// Calls reports how many times Call was entered.
func (c *ScriptedChain) Calls() int { return int(c.calls.Load()) }

// Exited reports how many calls have returned.
func (c *ScriptedChain) Exited() int { return int(c.exited.Load()) }

// Call implements stream.Chain. Between steps it checks ctx and returns
// ctx.Err() once cancelled.
func (c *ScriptedChain) Call(ctx context.Context, input map[string]any, handlers ...callbacks.Handler) (map[string]any, error) {
	c.calls.Add(1)
	defer c.exited.Add(1)

	if c.Gate != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.Gate:
		}
	}

	steps := c.Steps
	if c.Script != nil {
		steps = c.Script(input)
	}

	mgr := callbacks.NewManager(handlers...)
	mgr.OnLLMStart(ctx, model.Request{})

	var text string
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		switch {
		case s.Sleep > 0:
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.Sleep):
			}
		case s.Err != nil:
			mgr.OnLLMError(ctx, s.Err)
		case s.End:
			mgr.OnLLMEnd(ctx, model.Response{Content: core.NewTextContent("assistant", text), FinishReason: "stop"})
		default:
			text += s.Token
			mgr.OnLLMNewToken(ctx, s.Token)
		}
	}

	if c.PanicWith != nil {
		panic(c.PanicWith)
	}

	if c.ReturnErr != nil {
		return nil, c.ReturnErr
	}

	return map[string]any{"text": text}, nil
}
