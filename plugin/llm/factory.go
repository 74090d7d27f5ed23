package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lessonloop/assistant/plugin/intent"
	"github.com/lessonloop/assistant/plugin/persona"
)

// FactoryConfig selects and configures the completion backends. Backends
// without credentials are simply not constructed; the offline rule engine is
// always present so the chain can never be empty.
type FactoryConfig struct {
	// Preferred names the backend to try first ("openai", "deepseek",
	// "ollama", "offline"). Empty means priority order.
	Preferred string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	DeepSeekAPIKey  string
	DeepSeekBaseURL string
	DeepSeekModel   string

	OllamaServerURL string
	OllamaModel     string
}

// NewChain builds the fallback chain in priority order: openai, deepseek,
// ollama, offline. The preferred backend, when configured, moves to the
// front.
func NewChain(cfg FactoryConfig) (*Chain, error) {
	var providers []Provider

	if cfg.OpenAIAPIKey != "" {
		providers = append(providers, NewOpenAIProvider(&OpenAIConfig{
			BaseURL: cfg.OpenAIBaseURL,
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
		}))
	}
	if cfg.DeepSeekAPIKey != "" {
		providers = append(providers, NewDeepSeekProvider(&OpenAIConfig{
			BaseURL: cfg.DeepSeekBaseURL,
			APIKey:  cfg.DeepSeekAPIKey,
			Model:   cfg.DeepSeekModel,
		}))
	}
	if cfg.OllamaServerURL != "" {
		p, err := NewOllamaProvider(&OllamaConfig{
			ServerURL: cfg.OllamaServerURL,
			Model:     cfg.OllamaModel,
		})
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}

	offline, err := NewOfflineProvider()
	if err != nil {
		return nil, err
	}
	providers = append(providers, offline)

	if cfg.Preferred != "" {
		reordered, found := promote(providers, cfg.Preferred)
		if !found {
			return nil, fmt.Errorf("preferred provider %q is not configured", cfg.Preferred)
		}
		providers = reordered
	}

	return &Chain{providers: providers}, nil
}

func promote(providers []Provider, name string) ([]Provider, bool) {
	for i, p := range providers {
		if p.Name() == name {
			out := make([]Provider, 0, len(providers))
			out = append(out, p)
			out = append(out, providers[:i]...)
			out = append(out, providers[i+1:]...)
			return out, true
		}
	}
	return providers, false
}

// NewChainWith builds a chain over explicit backends, in the given order.
func NewChainWith(providers ...Provider) *Chain {
	return &Chain{providers: providers}
}

// Chain is the resilient completion front: it walks its backends in order,
// skipping unavailable ones and absorbing per-backend failures. Because the
// offline engine terminates every chain, a turn always gets an answer.
type Chain struct {
	providers []Provider
}

func (c *Chain) Providers() []Provider { return c.providers }

// Pick returns the first available backend. The offline engine guarantees a
// non-nil result.
func (c *Chain) Pick(ctx context.Context) Provider {
	for _, p := range c.providers {
		if p.IsAvailable(ctx) {
			return p
		}
	}
	return c.providers[len(c.providers)-1]
}

// Complete walks the chain until one backend succeeds.
func (c *Chain) Complete(ctx context.Context, req *Request) (*Response, string, error) {
	var lastErr error
	for _, p := range c.providers {
		if !p.IsAvailable(ctx) {
			continue
		}
		resp, err := p.Complete(ctx, req)
		if err == nil {
			return resp, p.Name(), nil
		}
		lastErr = err
		slog.Warn("completion backend failed, falling through",
			"provider", p.Name(), "error", err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, "", fmt.Errorf("all completion backends failed: %w", lastErr)
}

// CompleteWith runs the completion on the named backend only, with no
// fallback. Conversations pin their backend after the first successful turn,
// so a mid-conversation failure surfaces to the caller instead of silently
// handing the conversation to a different backend.
func (c *Chain) CompleteWith(ctx context.Context, name string, req *Request) (*Response, error) {
	for _, p := range c.providers {
		if p.Name() == name {
			return p.Complete(ctx, req)
		}
	}
	return nil, fmt.Errorf("completion backend %q is not configured", name)
}

// DetectIntent classifies on the first available backend. Every backend
// already degrades to the rule matcher internally, so this cannot fail a
// turn.
func (c *Chain) DetectIntent(ctx context.Context, text string, p persona.Persona) (*intent.Intent, error) {
	return c.Pick(ctx).DetectIntent(ctx, text, p)
}

// Stream opens a stream on the first backend that accepts the request.
// Failures after the stream starts are the caller's to surface; only
// stream-open errors fall through.
func (c *Chain) Stream(ctx context.Context, req *Request) (<-chan StreamChunk, string, error) {
	var lastErr error
	for _, p := range c.providers {
		if !p.IsAvailable(ctx) {
			continue
		}
		ch, err := p.Stream(ctx, req)
		if err == nil {
			return ch, p.Name(), nil
		}
		lastErr = err
		slog.Warn("stream backend failed, falling through",
			"provider", p.Name(), "error", err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, "", fmt.Errorf("all stream backends failed: %w", lastErr)
}
