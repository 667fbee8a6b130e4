// Package chainkit provides a high-level façade over the streaming bridge.
// Most applications interact with this package by:
//  1. Building a chain (usually chain.LLMChain over a model and a prompt)
//  2. Creating a Kit via New() or NewFromConfig()
//  3. Pulling tokens with Stream, or collecting them with StreamSync
//
// The façade delegates session management to stream.Streamer while keeping
// setup and usage ergonomics concise.
package chainkit

import (
	"context"
	"fmt"
	"strings"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	sdkopenai "github.com/openai/openai-go"

	"github.com/hupe1980/chainkit/callbacks"
	"github.com/hupe1980/chainkit/chain"
	"github.com/hupe1980/chainkit/config"
	"github.com/hupe1980/chainkit/logging"
	"github.com/hupe1980/chainkit/model"
	"github.com/hupe1980/chainkit/model/anthropic"
	"github.com/hupe1980/chainkit/model/openai"
	"github.com/hupe1980/chainkit/prompt"
	"github.com/hupe1980/chainkit/stream"
)

// Options configures the Kit instance.
type Options struct {
	// StreamConfig holds the streaming bridge configuration.
	StreamConfig stream.Config

	// Handlers are attached to every session next to the session's sink.
	Handlers []callbacks.Handler

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Kit is the high-level façade aggregating a chain and its streamer.
type Kit struct {
	opts     Options
	streamer *stream.Streamer
}

// New creates a Kit streaming from c.
func New(c stream.Chain, optFns ...func(o *Options)) *Kit {
	opts := Options{
		StreamConfig: stream.DefaultConfig,
		Logger:       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	s := stream.New(c, func(o *stream.Options) {
		o.Config = opts.StreamConfig
		o.Handlers = opts.Handlers
		o.Logger = opts.Logger
	})

	return &Kit{opts: opts, streamer: s}
}

// NewFromConfig wires model, chain, streamer and logger from cfg. The prompt
// p defaults to a single human message "{content}".
func NewFromConfig(cfg config.Config, p *prompt.ChatTemplate) (*Kit, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m, err := NewModelFromConfig(cfg.Model)
	if err != nil {
		return nil, err
	}

	if p == nil {
		p = prompt.MustFromMessages(prompt.Human("{content}"))
	}

	logger := cfg.Log.NewLogger().WithComponent("chainkit")

	c := chain.NewLLMChain(m, p, func(o *chain.Options) {
		o.Streaming = cfg.Model.Streaming
		o.Logger = logger
	})

	return New(c, func(o *Options) {
		o.StreamConfig.MaxConcurrentSessions = cfg.Stream.MaxConcurrentSessions
		o.Logger = logger
	}), nil
}

// NewModelFromConfig creates the chat model selected by cfg.Provider.
func NewModelFromConfig(cfg config.ModelConfig) (model.Model, error) {
	switch strings.ToLower(cfg.Provider) {
	case config.ProviderOpenAI:
		return openai.NewModel(func(o *openai.Options) {
			if cfg.Name != "" {
				o.Model = cfg.Name
			}
			o.Temperature = cfg.Temperature
			if cfg.MaxTokens > 0 {
				o.MaxCompletionTokens = cfg.MaxTokens
			}
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
		}), nil
	case config.ProviderAnthropic:
		return anthropic.NewModel(func(o *anthropic.Options) {
			if cfg.Name != "" {
				o.Model = sdkanthropic.Model(cfg.Name)
			}
			o.Temperature = cfg.Temperature
			if cfg.MaxTokens > 0 {
				o.MaxTokens = cfg.MaxTokens
			}
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
		}), nil
	case config.ProviderMock:
		name := cfg.Name
		if name == "" {
			name = "mock"
		}
		return model.NewMockModel(name, config.ProviderMock), nil
	default:
		return nil, fmt.Errorf("chainkit: unsupported model provider %q", cfg.Provider)
	}
}

// NewEmbedderFromConfig builds the embedder used by retrievers. Only the
// OpenAI provider offers embeddings.
func NewEmbedderFromConfig(cfg config.ModelConfig) (*openai.Embedder, error) {
	if strings.ToLower(cfg.Provider) != config.ProviderOpenAI {
		return nil, fmt.Errorf("chainkit: provider %q does not support embeddings", cfg.Provider)
	}

	return openai.NewEmbedder(func(o *openai.EmbedderOptions) {
		if cfg.EmbeddingModel != "" {
			o.Model = sdkopenai.EmbeddingModel(cfg.EmbeddingModel)
		}
		o.APIKey = cfg.APIKey
		o.BaseURL = cfg.BaseURL
	}), nil
}

// Stream starts a session and returns its pull side immediately.
func (k *Kit) Stream(ctx context.Context, input map[string]any) (*stream.Stream, error) {
	return k.streamer.Stream(ctx, input)
}

// StreamSync is a synchronous helper that drains a session and returns every
// token. On failure the tokens received so far are returned with the error.
func (k *Kit) StreamSync(ctx context.Context, input map[string]any) ([]string, error) {
	s, err := k.streamer.Stream(ctx, input)
	if err != nil {
		return nil, err
	}

	return s.Collect()
}

// Stop cancels a running session.
func (k *Kit) Stop(sessionID string) error { return k.streamer.Stop(sessionID) }

// ActiveSessions lists the ids of running sessions.
func (k *Kit) ActiveSessions() []string { return k.streamer.ActiveSessions() }

// Shutdown cancels all sessions, rejects new ones and waits for producers to
// exit or ctx to be done.
func (k *Kit) Shutdown(ctx context.Context) error { return k.streamer.Shutdown(ctx) }
