package chainkit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/chainkit/chain"
	"github.com/hupe1980/chainkit/config"
	"github.com/hupe1980/chainkit/internal/testutil"
	"github.com/hupe1980/chainkit/model"
	"github.com/hupe1980/chainkit/model/anthropic"
	"github.com/hupe1980/chainkit/model/openai"
	"github.com/hupe1980/chainkit/prompt"
	"github.com/hupe1980/chainkit/stream"
)

func TestKit_StreamSync(t *testing.T) {
	c := &testutil.ScriptedChain{Steps: testutil.NewScript().Tokens("Why", "did", "the", "chicken").End().Build()}
	kit := New(c)

	tokens, err := kit.StreamSync(context.Background(), map[string]any{"content": "tell me a joke"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Why", "did", "the", "chicken"}, tokens)
}

func TestKit_StreamSyncError(t *testing.T) {
	c := &testutil.ScriptedChain{Steps: testutil.NewScript().Tokens("partial").Fail("rate limited").Build()}
	kit := New(c)

	tokens, err := kit.StreamSync(context.Background(), nil)
	assert.Equal(t, []string{"partial"}, tokens)

	var upErr *stream.UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, "rate limited", upErr.Detail)
}

func TestKit_MockModelJoke(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	m.AddResponse("tell me a joke", "Why did the chicken")

	kit := New(chain.NewLLMChain(m, prompt.MustFromMessages(prompt.Human("{content}"))))

	s, err := kit.Stream(context.Background(), map[string]any{"content": "tell me a joke"})
	require.NoError(t, err)

	var b strings.Builder
	n := 0
	for tok, err := range s.All() {
		require.NoError(t, err)
		b.WriteString(tok)
		n++
	}

	assert.Equal(t, 4, n)
	assert.Equal(t, "Why did the chicken", b.String())
	assert.Equal(t, stream.StateCompleted, s.State())
}

func TestKit_StopAndShutdown(t *testing.T) {
	c := &testutil.ScriptedChain{Gate: make(chan struct{})}
	kit := New(c, func(o *Options) { o.StreamConfig.MaxConcurrentSessions = 2 })

	s, err := kit.Stream(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{s.ID()}, kit.ActiveSessions())

	require.NoError(t, kit.Stop(s.ID()))
	_, err = s.Collect()
	assert.ErrorIs(t, err, context.Canceled)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, kit.Shutdown(ctx))

	_, err = kit.StreamSync(context.Background(), nil)
	assert.True(t, errors.Is(err, stream.ErrStreamerClosed))
}

func TestNewModelFromConfig(t *testing.T) {
	m, err := NewModelFromConfig(config.ModelConfig{Provider: config.ProviderOpenAI, APIKey: "test"})
	require.NoError(t, err)
	assert.IsType(t, &openai.Model{}, m)

	m, err = NewModelFromConfig(config.ModelConfig{Provider: config.ProviderAnthropic, APIKey: "test", Name: "claude-3-5-haiku-latest"})
	require.NoError(t, err)
	assert.IsType(t, &anthropic.Model{}, m)

	m, err = NewModelFromConfig(config.ModelConfig{Provider: config.ProviderMock})
	require.NoError(t, err)
	assert.Equal(t, "mock", m.Info().Name)

	_, err = NewModelFromConfig(config.ModelConfig{Provider: "cohere"})
	assert.Error(t, err)
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Model.Provider = config.ProviderMock
	cfg.Log.Level = "error"

	kit, err := NewFromConfig(cfg, nil)
	require.NoError(t, err)

	tokens, err := kit.StreamSync(context.Background(), map[string]any{"content": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: hi", strings.Join(tokens, ""))

	cfg.Model.Provider = "cohere"
	_, err = NewFromConfig(cfg, nil)
	assert.Error(t, err)
}

func TestNewEmbedderFromConfig(t *testing.T) {
	var gotModel, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotModel, _ = body["model"].(string)
		gotAuth = r.Header.Get("Authorization")

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","model":"text-embedding-3-large",
			"data":[{"object":"embedding","index":0,"embedding":[0.5,0.5]}],
			"usage":{"prompt_tokens":1,"total_tokens":1}}`)
	}))
	defer srv.Close()

	cfg := config.Default().Model
	cfg.APIKey = "sk-config"
	cfg.BaseURL = srv.URL + "/"
	cfg.EmbeddingModel = "text-embedding-3-large"

	e, err := NewEmbedderFromConfig(cfg)
	require.NoError(t, err)

	vec, err := e.EmbedQuery(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.5}, vec)
	assert.Equal(t, "text-embedding-3-large", gotModel)
	assert.Equal(t, "Bearer sk-config", gotAuth)
}

func TestNewEmbedderFromConfig_UnsupportedProvider(t *testing.T) {
	cfg := config.Default().Model
	cfg.Provider = config.ProviderAnthropic

	_, err := NewEmbedderFromConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not support embeddings")
}
