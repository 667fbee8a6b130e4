package callbacks

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/chainkit/model"
	"github.com/stretchr/testify/assert"
)

var (
	_ Handler = BaseHandler{}
	_ Handler = (*FuncHandler)(nil)
	_ Handler = (*Manager)(nil)
	_ Handler = (*LoggingHandler)(nil)
)

type recorder struct {
	BaseHandler
	name string
	log  *[]string
}

func (r *recorder) OnLLMNewToken(_ context.Context, token string) {
	*r.log = append(*r.log, r.name+":"+token)
}

func (r *recorder) OnLLMError(_ context.Context, err error) {
	*r.log = append(*r.log, r.name+":error:"+err.Error())
}

func TestManager_DispatchesInRegistrationOrder(t *testing.T) {
	var log []string
	m := NewManager(&recorder{name: "a", log: &log}, nil, &recorder{name: "b", log: &log})
	assert.Equal(t, 2, m.Len())

	ctx := context.Background()
	m.OnLLMStart(ctx, model.Request{})
	m.OnLLMNewToken(ctx, "x")
	m.OnLLMNewToken(ctx, "y")
	m.OnLLMError(ctx, errors.New("boom"))

	assert.Equal(t, []string{"a:x", "b:x", "a:y", "b:y", "a:error:boom", "b:error:boom"}, log)
}

func TestManager_WithDoesNotMutateOriginal(t *testing.T) {
	var log []string
	base := NewManager(&recorder{name: "a", log: &log})
	ext := base.With(&recorder{name: "b", log: &log})

	assert.Equal(t, 1, base.Len())
	assert.Equal(t, 2, ext.Len())
}

func TestFuncHandler_NilFieldsAreSkipped(t *testing.T) {
	var tokens []string
	var final string
	h := &FuncHandler{
		Token: func(_ context.Context, tok string) { tokens = append(tokens, tok) },
		End:   func(_ context.Context, resp model.Response) { final = resp.FinishReason },
	}

	ctx := context.Background()
	h.OnLLMStart(ctx, model.Request{})
	h.OnLLMNewToken(ctx, "hi")
	h.OnLLMError(ctx, errors.New("ignored"))
	h.OnLLMEnd(ctx, model.Response{FinishReason: "stop"})

	assert.Equal(t, []string{"hi"}, tokens)
	assert.Equal(t, "stop", final)
}

func TestLoggingHandler_CountsTokens(t *testing.T) {
	h := NewLoggingHandler(nil)
	ctx := context.Background()

	h.OnLLMStart(ctx, model.Request{Stream: true})
	h.OnLLMNewToken(ctx, "a")
	h.OnLLMNewToken(ctx, "b")
	h.OnLLMEnd(ctx, model.Response{})

	assert.Equal(t, 2, h.tokens)
}
