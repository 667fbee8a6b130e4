package stream

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/chainkit/model"
)

func TestSink_WritesEventsInOrder(t *testing.T) {
	ctx := context.Background()
	sink := NewSink(NewChannel())

	sink.OnLLMStart(ctx, model.Request{})
	sink.OnLLMNewToken(ctx, "Why")
	sink.OnLLMNewToken(ctx, "did")
	sink.OnLLMEnd(ctx, model.Response{FinishReason: "stop"})

	ch := sink.Channel()
	require.Equal(t, 3, ch.Len())

	ev, err := ch.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, TokenEvent{Text: "Why"}, ev)

	ev, err = ch.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, TokenEvent{Text: "did"}, ev)

	ev, err = ch.Pop(ctx)
	require.NoError(t, err)
	end, ok := ev.(EndEvent)
	require.True(t, ok)
	assert.Equal(t, "stop", end.Response.FinishReason)

	assert.Equal(t, 2, sink.Tokens())
	assert.Equal(t, "completed", sink.Outcome())
}

func TestSink_TerminalOnce(t *testing.T) {
	ctx := context.Background()
	sink := NewSink(NewChannel())

	sink.OnLLMNewToken(ctx, "a")
	sink.OnLLMError(ctx, errors.New("boom"))
	sink.OnLLMNewToken(ctx, "b")
	sink.OnLLMEnd(ctx, model.Response{})
	sink.OnLLMError(ctx, errors.New("again"))

	assert.Equal(t, 2, sink.Channel().Len())
	assert.Equal(t, 1, sink.Tokens())
	assert.Equal(t, 3, sink.Dropped())
	assert.Equal(t, "failed", sink.Outcome())
}

func TestSink_NilError(t *testing.T) {
	ctx := context.Background()
	sink := NewSink(NewChannel())

	sink.OnLLMError(ctx, nil)

	ev, err := sink.Channel().Pop(ctx)
	require.NoError(t, err)
	errEv, ok := ev.(ErrorEvent)
	require.True(t, ok)
	assert.Error(t, errEv.Err)
}

func TestSink_Isolation(t *testing.T) {
	ctx := context.Background()
	a := NewSink(NewChannel())
	b := NewSink(NewChannel())

	a.OnLLMNewToken(ctx, "a1")
	b.OnLLMNewToken(ctx, "b1")
	a.OnLLMEnd(ctx, model.Response{})

	assert.Equal(t, 2, a.Channel().Len())
	assert.Equal(t, 1, b.Channel().Len())
	assert.Equal(t, "running", b.Outcome())
}
