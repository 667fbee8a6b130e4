package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hupe1980/chainkit/callbacks"
	"github.com/hupe1980/chainkit/internal/testutil"
	"github.com/hupe1980/chainkit/logging"
	"github.com/hupe1980/chainkit/model"
	"github.com/hupe1980/chainkit/prompt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	events []string
}

func (h *recordingHandler) OnLLMStart(context.Context, model.Request) {
	h.events = append(h.events, "start")
}

func (h *recordingHandler) OnLLMNewToken(_ context.Context, token string) {
	h.events = append(h.events, "token:"+token)
}

func (h *recordingHandler) OnLLMEnd(_ context.Context, resp model.Response) {
	h.events = append(h.events, "end:"+resp.Content.Text())
}

func (h *recordingHandler) OnLLMError(_ context.Context, err error) {
	h.events = append(h.events, "error:"+err.Error())
}

var _ callbacks.Handler = (*recordingHandler)(nil)

func jokePrompt() *prompt.ChatTemplate {
	return prompt.MustFromMessages(prompt.Human("{content}"))
}

func TestLLMChain_CallStreamsTokensThenEnd(t *testing.T) {
	m := &testutil.ScriptedModel{Chunks: []string{"Why ", "did ", "the ", "chicken"}}
	c := NewLLMChain(m, jokePrompt())
	h := &recordingHandler{}

	out, err := c.Call(context.Background(), map[string]any{"content": "tell me a joke"}, h)
	require.NoError(t, err)

	assert.Equal(t, "Why did the chicken", out[OutputKey])
	assert.Equal(t, []string{
		"start",
		"token:Why ", "token:did ", "token:the ", "token:chicken",
		"end:Why did the chicken",
	}, h.events)

	req := m.LastRequest()
	require.NotNil(t, req)
	assert.True(t, req.Stream)
	assert.Equal(t, "tell me a joke", req.Contents[0].Text())
}

func TestLLMChain_ErrorAfterTokens(t *testing.T) {
	boom := errors.New("upstream exploded")
	m := &testutil.ScriptedModel{Chunks: []string{"a", "b"}, Err: boom}
	h := &recordingHandler{}

	_, err := NewLLMChain(m, jokePrompt()).Call(context.Background(), map[string]any{"content": "x"}, h)
	require.ErrorIs(t, err, boom)

	// Buffered deltas are flushed before the error is reported.
	assert.Equal(t, []string{"start", "token:a", "token:b", "error:upstream exploded"}, h.events)
}

func TestLLMChain_NoFinalResponse(t *testing.T) {
	m := &testutil.ScriptedModel{Chunks: []string{"a"}, SkipFinal: true}
	h := &recordingHandler{}

	_, err := NewLLMChain(m, jokePrompt()).Call(context.Background(), map[string]any{"content": "x"}, h)
	require.ErrorIs(t, err, ErrNoFinalResponse)
	assert.Equal(t, "error:"+ErrNoFinalResponse.Error(), h.events[len(h.events)-1])
}

func TestLLMChain_PromptErrorSkipsHandlers(t *testing.T) {
	m := &testutil.ScriptedModel{}
	h := &recordingHandler{}

	_, err := NewLLMChain(m, jokePrompt()).Call(context.Background(), map[string]any{}, h)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "format prompt")
	assert.Empty(t, h.events)
	assert.Equal(t, 0, m.Calls())
}

func TestLLMChain_ChainHandlersRunFirst(t *testing.T) {
	var order []string
	first := &callbacks.FuncHandler{Token: func(_ context.Context, tok string) { order = append(order, "chain:"+tok) }}
	second := &callbacks.FuncHandler{Token: func(_ context.Context, tok string) { order = append(order, "call:"+tok) }}

	m := &testutil.ScriptedModel{Chunks: []string{"t"}}
	c := NewLLMChain(m, jokePrompt(), func(o *Options) { o.Handlers = []callbacks.Handler{first} })

	_, err := c.Call(context.Background(), map[string]any{"content": "x"}, second)
	require.NoError(t, err)
	assert.Equal(t, []string{"chain:t", "call:t"}, order)
}

func TestLLMChain_NonStreaming(t *testing.T) {
	m := model.NewMockModel("mock", "local")
	m.AddResponse("tell me a joke", "Why did the chicken")
	h := &recordingHandler{}

	c := NewLLMChain(m, jokePrompt(), func(o *Options) { o.Streaming = false })
	text, err := c.Run(context.Background(), map[string]any{"content": "tell me a joke"}, h)
	require.NoError(t, err)

	assert.Equal(t, "Why did the chicken", text)
	assert.Equal(t, []string{"start", "end:Why did the chicken"}, h.events)
}

func TestLLMChain_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := &testutil.ScriptedModel{Chunks: []string{"a"}}
	_, err := NewLLMChain(m, jokePrompt()).Call(ctx, map[string]any{"content": "x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLLMChain_StructuredLoggerRecordsLLMCall(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelInfo, Format: "json", Output: buf})
	m := &testutil.ScriptedModel{Chunks: []string{"hi"}, Usage: &model.TokenUsage{PromptTokens: 3, CompletionTokens: 1, TotalTokens: 4}}

	_, err := NewLLMChain(m, jokePrompt(), func(o *Options) { o.Logger = logger }).
		Call(context.Background(), map[string]any{"content": "x"})
	require.NoError(t, err)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec))
	assert.Equal(t, "LLM call completed", rec["msg"])
	assert.Equal(t, "scripted", rec["model"])
	assert.EqualValues(t, 4, rec["token_count"])
	assert.Equal(t, true, rec["success"])
}
