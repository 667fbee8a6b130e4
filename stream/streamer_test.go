package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/chainkit/callbacks"
	"github.com/hupe1980/chainkit/chain"
	"github.com/hupe1980/chainkit/internal/testutil"
	"github.com/hupe1980/chainkit/logging"
	"github.com/hupe1980/chainkit/prompt"
)

func unlimited(o *Options) { o.Config.MaxConcurrentSessions = 0 }

func TestStreamer_TellMeAJoke(t *testing.T) {
	m := &testutil.ScriptedModel{Chunks: []string{"Why", "did", "the", "chicken"}}
	c := chain.NewLLMChain(m, prompt.MustFromMessages(prompt.Human("{content}")))
	s := New(c)

	st, err := s.Stream(context.Background(), map[string]any{"content": "tell me a joke"})
	require.NoError(t, err)

	tokens, err := st.Collect()
	require.NoError(t, err)
	assert.Equal(t, []string{"Why", "did", "the", "chicken"}, tokens)
	assert.Equal(t, StateCompleted, st.State())

	require.NotNil(t, st.Response())
	assert.Equal(t, "Whydidthechicken", st.Response().Content.Text())

	req := m.LastRequest()
	require.NotNil(t, req)
	require.Len(t, req.Contents, 1)
	assert.Equal(t, "tell me a joke", req.Contents[0].Text())
}

func TestStreamer_OrderPreservation(t *testing.T) {
	c := &testutil.ScriptedChain{Steps: testutil.NewScript().Tokens("t1", "t2", "t3", "t4", "t5").End().Build()}
	s := New(c)

	st, err := s.Stream(context.Background(), nil)
	require.NoError(t, err)

	var got []string
	for tok, err := range st.All() {
		require.NoError(t, err)
		got = append(got, tok)
	}

	assert.Equal(t, []string{"t1", "t2", "t3", "t4", "t5"}, got)
	assert.NoError(t, st.Err())
}

func TestStreamer_SessionIsolation(t *testing.T) {
	c := &testutil.ScriptedChain{
		Script: func(input map[string]any) []testutil.Step {
			id := input["id"].(string)
			b := testutil.NewScript()
			for i := 0; i < 10; i++ {
				b.Tokens(fmt.Sprintf("%s-%d", id, i)).Sleep(time.Millisecond)
			}
			return b.End().Build()
		},
	}
	s := New(c, unlimited)

	const sessions = 8

	var wg sync.WaitGroup
	results := make([][]string, sessions)
	errs := make([]error, sessions)

	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			st, err := s.Stream(context.Background(), map[string]any{"id": fmt.Sprintf("s%d", i)})
			if err != nil {
				errs[i] = err
				return
			}
			results[i], errs[i] = st.Collect()
		}(i)
	}
	wg.Wait()

	for i := 0; i < sessions; i++ {
		require.NoError(t, errs[i])
		want := make([]string, 10)
		for j := range want {
			want[j] = fmt.Sprintf("s%d-%d", i, j)
		}
		assert.Equal(t, want, results[i])
	}
}

func TestStreamer_TerminationOnError(t *testing.T) {
	c := &testutil.ScriptedChain{Steps: testutil.NewScript().Tokens("t1", "t2").Fail("boom").Tokens("t3").Build()}
	s := New(c)

	st, err := s.Stream(context.Background(), nil)
	require.NoError(t, err)

	tokens, err := st.Collect()
	assert.Equal(t, []string{"t1", "t2"}, tokens)
	require.Error(t, err)

	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, "boom", upErr.Detail)
	assert.Equal(t, st.ID(), upErr.SessionID)
	assert.Equal(t, StateFailed, st.State())
}

func TestStreamer_AllYieldsErrorLast(t *testing.T) {
	c := &testutil.ScriptedChain{Steps: testutil.NewScript().Tokens("t1").Fail("boom").Build()}
	s := New(c)

	st, err := s.Stream(context.Background(), nil)
	require.NoError(t, err)

	var (
		tokens  []string
		lastErr error
	)
	for tok, err := range st.All() {
		if err != nil {
			lastErr = err
			continue
		}
		tokens = append(tokens, tok)
	}

	assert.Equal(t, []string{"t1"}, tokens)
	assert.ErrorContains(t, lastErr, "boom")
}

func TestStreamer_NoEventsAfterTerminal(t *testing.T) {
	c := &testutil.ScriptedChain{Steps: testutil.NewScript().Tokens("a1", "a2").End().Tokens("late").Fail("late error").Build()}
	s := New(c)

	st, err := s.Stream(context.Background(), nil)
	require.NoError(t, err)

	tokens, err := st.Collect()
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2"}, tokens)

	assert.False(t, st.Next())
	assert.False(t, st.Next())
	assert.NoError(t, st.Err())
	assert.Equal(t, StateCompleted, st.State())
}

func TestStreamer_NonBlockingStart(t *testing.T) {
	gate := make(chan struct{})
	c := &testutil.ScriptedChain{Gate: gate, Steps: testutil.NewScript().Tokens("x").End().Build()}
	s := New(c)

	start := time.Now()
	st, err := s.Stream(context.Background(), nil)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	assert.Equal(t, StateRunning, st.State())
	assert.Equal(t, 0, c.Exited())

	close(gate)

	tokens, err := st.Collect()
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, tokens)
}

func TestStreamer_StartupFailure(t *testing.T) {
	gate := make(chan struct{})
	c := &testutil.ScriptedChain{Gate: gate, Steps: testutil.NewScript().Tokens("x").End().Build()}
	s := New(c, func(o *Options) { o.Config.MaxConcurrentSessions = 1 })

	first, err := s.Stream(context.Background(), nil)
	require.NoError(t, err)

	second, err := s.Stream(context.Background(), nil)
	require.Error(t, err)
	assert.Nil(t, second)

	var startErr *StartupError
	require.ErrorAs(t, err, &startErr)
	assert.ErrorIs(t, err, ErrTooManySessions)
	assert.EqualError(t, err, "stream: failed to start session: stream: too many concurrent sessions (max 1)")

	close(gate)
	_, err = first.Collect()
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(s.ActiveSessions()) == 0 }, time.Second, 5*time.Millisecond)

	third, err := s.Stream(context.Background(), nil)
	require.NoError(t, err)
	tokens, err := third.Collect()
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, tokens)
}

func TestStreamer_ProducerPanic(t *testing.T) {
	c := &testutil.ScriptedChain{Steps: testutil.NewScript().Tokens("a").Build(), PanicWith: "kaboom"}
	s := New(c)

	st, err := s.Stream(context.Background(), nil)
	require.NoError(t, err)

	tokens, err := st.Collect()
	assert.Equal(t, []string{"a"}, tokens)
	assert.ErrorContains(t, err, "kaboom")
	assert.Equal(t, StateFailed, st.State())
}

func TestStreamer_ReturnedErrorWithoutCallback(t *testing.T) {
	errQuota := errors.New("quota exceeded")
	c := &testutil.ScriptedChain{Steps: testutil.NewScript().Tokens("a").Build(), ReturnErr: errQuota}
	s := New(c)

	st, err := s.Stream(context.Background(), nil)
	require.NoError(t, err)

	tokens, err := st.Collect()
	assert.Equal(t, []string{"a"}, tokens)
	assert.ErrorIs(t, err, errQuota)
}

func TestStreamer_FallbackEnd(t *testing.T) {
	c := &testutil.ScriptedChain{Steps: testutil.NewScript().Tokens("a", "b").Build()}
	s := New(c)

	st, err := s.Stream(context.Background(), nil)
	require.NoError(t, err)

	tokens, err := st.Collect()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tokens)
	assert.Equal(t, StateCompleted, st.State())
}

func TestStream_CloseAbandonsSession(t *testing.T) {
	c := &testutil.ScriptedChain{Steps: testutil.NewScript().Tokens("a").Sleep(time.Minute).Tokens("b").End().Build()}
	s := New(c)

	st, err := s.Stream(context.Background(), nil)
	require.NoError(t, err)

	require.True(t, st.Next())
	assert.Equal(t, "a", st.Token())

	require.NoError(t, st.Close())
	require.NoError(t, st.Close())

	assert.False(t, st.Next())
	assert.NoError(t, st.Err())
	assert.Equal(t, StateClosed, st.State())

	require.Eventually(t, func() bool { return c.Exited() == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(s.ActiveSessions()) == 0 }, time.Second, 5*time.Millisecond)
}

func TestStream_BreakClosesSession(t *testing.T) {
	c := &testutil.ScriptedChain{Steps: testutil.NewScript().Tokens("a", "b").Sleep(time.Minute).End().Build()}
	s := New(c)

	st, err := s.Stream(context.Background(), nil)
	require.NoError(t, err)

	for tok, err := range st.All() {
		require.NoError(t, err)
		assert.Equal(t, "a", tok)
		break
	}

	assert.Equal(t, StateClosed, st.State())
	assert.NoError(t, st.Err())
	require.Eventually(t, func() bool { return c.Exited() == 1 }, time.Second, 5*time.Millisecond)
}

func TestStream_CloseAfterCompletion(t *testing.T) {
	c := &testutil.ScriptedChain{Steps: testutil.NewScript().Tokens("a").End().Build()}
	s := New(c)

	st, err := s.Stream(context.Background(), nil)
	require.NoError(t, err)

	_, err = st.Collect()
	require.NoError(t, err)

	require.NoError(t, st.Close())
	assert.Equal(t, StateCompleted, st.State())
}

func TestStream_TokenDequeuedDuringClose(t *testing.T) {
	st := newStream(context.Background(), "s-1", NewChannel(), func() {})
	st.state.Store(int32(StateClosed))

	assert.False(t, st.accept(TokenEvent{Text: "late"}))
	assert.Empty(t, st.Token())
	assert.NoError(t, st.Err())
	assert.Equal(t, StateClosed, st.State())
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) lines(t *testing.T) []map[string]any {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(b.buf.Bytes()), []byte("\n")) {
		var m map[string]any
		require.NoError(t, json.Unmarshal(line, &m))
		out = append(out, m)
	}
	return out
}

func TestStreamer_StructuredSessionLogging(t *testing.T) {
	buf := &lockedBuffer{}
	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelInfo, Format: "json", Output: buf})
	c := &testutil.ScriptedChain{Steps: testutil.NewScript().Tokens("a", "b").End().Build()}
	s := New(c, func(o *Options) { o.Logger = logger })

	st, err := s.Stream(context.Background(), nil)
	require.NoError(t, err)
	_, err = st.Collect()
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(s.ActiveSessions()) == 0 }, time.Second, 5*time.Millisecond)

	lines := buf.lines(t)
	require.Len(t, lines, 2)
	assert.Equal(t, "stream.session.start", lines[0]["msg"])
	assert.Equal(t, st.ID(), lines[0]["session_id"])
	assert.Equal(t, "Stream session completed", lines[1]["msg"])
	assert.Equal(t, st.ID(), lines[1]["session_id"])
	assert.Equal(t, "completed", lines[1]["outcome"])
	assert.EqualValues(t, 2, lines[1]["token_count"])
}

func TestStreamer_Stop(t *testing.T) {
	c := &testutil.ScriptedChain{Gate: make(chan struct{})}
	s := New(c)

	st, err := s.Stream(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{st.ID()}, s.ActiveSessions())

	require.NoError(t, s.Stop(st.ID()))

	tokens, err := st.Collect()
	assert.Empty(t, tokens)

	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.ErrorIs(t, err, context.Canceled)

	require.Eventually(t, func() bool {
		return errors.Is(s.Stop(st.ID()), ErrSessionNotFound)
	}, time.Second, 5*time.Millisecond)
}

func TestStreamer_StopUnknown(t *testing.T) {
	s := New(&testutil.ScriptedChain{})

	err := s.Stop("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestStreamer_CallerContextCancelled(t *testing.T) {
	c := &testutil.ScriptedChain{Gate: make(chan struct{})}
	s := New(c)

	ctx, cancel := context.WithCancel(context.Background())
	st, err := s.Stream(ctx, nil)
	require.NoError(t, err)

	cancel()

	_, err = st.Collect()
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateFailed, st.State())
	require.Eventually(t, func() bool { return c.Exited() == 1 }, time.Second, 5*time.Millisecond)
}

func TestStreamer_Shutdown(t *testing.T) {
	c := &testutil.ScriptedChain{Gate: make(chan struct{})}
	s := New(c)

	st, err := s.Stream(context.Background(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	assert.Empty(t, s.ActiveSessions())

	_, err = st.Collect()
	assert.ErrorIs(t, err, context.Canceled)

	_, err = s.Stream(context.Background(), nil)
	var startErr *StartupError
	require.ErrorAs(t, err, &startErr)
	assert.ErrorIs(t, err, ErrStreamerClosed)
}

func TestStreamer_ExtraHandlers(t *testing.T) {
	var seen atomic.Int32
	h := &callbacks.FuncHandler{Token: func(context.Context, string) { seen.Add(1) }}

	c := &testutil.ScriptedChain{Steps: testutil.NewScript().Tokens("a", "b", "c").End().Build()}
	s := New(c, func(o *Options) { o.Handlers = []callbacks.Handler{h} })

	st, err := s.Stream(context.Background(), nil)
	require.NoError(t, err)

	_, err = st.Collect()
	require.NoError(t, err)
	assert.Equal(t, int32(3), seen.Load())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateRunning.Terminal())
}
