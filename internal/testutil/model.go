package testutil

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hupe1980/chainkit/core"
	"github.com/hupe1980/chainkit/model"
)

// ScriptedModel replays fixed partial chunks followed by a final response, or
// by Err when set.
type ScriptedModel struct {
	Chunks []string
	Err    error
	Delay  time.Duration

	// SkipFinal closes the channels without a final response.
	SkipFinal bool

	// Usage is attached to the final response.
	Usage *model.TokenUsage

	calls   atomic.Int32
	lastReq atomic.Pointer[model.Request]
}

var _ model.Model = (*ScriptedModel)(nil)

// Calls reports how many times Generate was invoked.
func (m *ScriptedModel) Calls() int { return int(m.calls.Load()) }

// LastRequest returns the most recent request, or nil.
func (m *ScriptedModel) LastRequest() *model.Request { return m.lastReq.Load() }

// Generate implements model.Model.
func (m *ScriptedModel) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	m.calls.Add(1)
	m.lastReq.Store(&req)

	out := make(chan model.Response, len(m.Chunks)+1)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		for _, c := range m.Chunks {
			if m.Delay > 0 {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case <-time.After(m.Delay):
				}
			}
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case out <- model.Response{Partial: true, Content: core.NewTextContent("assistant", c)}:
			}
		}

		if m.Err != nil {
			errCh <- m.Err
			return
		}

		if m.SkipFinal {
			return
		}

		out <- model.Response{
			Partial:      false,
			Content:      core.NewTextContent("assistant", strings.Join(m.Chunks, "")),
			FinishReason: "stop",
			Usage:        m.Usage,
		}
	}()

	return out, errCh
}

// Info implements model.Model.
func (m *ScriptedModel) Info() model.Info {
	return model.Info{Name: "scripted", Provider: "test"}
}
