package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/lessonloop/assistant/plugin/intent"
	"github.com/lessonloop/assistant/plugin/persona"
	"github.com/lessonloop/assistant/plugin/timeout"
	"github.com/lessonloop/assistant/plugin/tools"
)

// OpenAIConfig holds the configuration of an OpenAI-compatible backend.
type OpenAIConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	MaxRetries int
	Timeout    time.Duration
}

// availabilityProbeInterval bounds how often IsAvailable hits the remote
// model endpoint.
const availabilityProbeInterval = time.Minute

// openAICompatible serves any backend speaking the OpenAI chat completion
// protocol. DeepSeek reuses it with a different base URL and model.
type openAICompatible struct {
	name    string
	client  *openai.Client
	config  *OpenAIConfig
	matcher *intent.Matcher

	mu        sync.Mutex
	probedAt  time.Time
	reachable bool
}

// NewOpenAIProvider creates the OpenAI backend.
func NewOpenAIProvider(cfg *OpenAIConfig) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	return newOpenAICompatible("openai", cfg)
}

func newOpenAICompatible(name string, cfg *OpenAIConfig) *openAICompatible {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = timeout.ProviderCallTimeout
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = cfg.BaseURL

	return &openAICompatible{
		name:    name,
		client:  openai.NewClientWithConfig(clientConfig),
		config:  cfg,
		matcher: intent.MustDefaultMatcher(),
	}
}

func (p *openAICompatible) Name() string { return p.name }

// IsAvailable requires a configured key and a reachable model endpoint. The
// probe result is cached so availability checks stay cheap on the hot path.
func (p *openAICompatible) IsAvailable(ctx context.Context) bool {
	if p.config.APIKey == "" {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if time.Since(p.probedAt) < availabilityProbeInterval {
		return p.reachable
	}

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := p.client.ListModels(probeCtx)
	p.probedAt = time.Now()
	p.reachable = err == nil
	if err != nil {
		slog.Warn("provider unreachable", "provider", p.name, "error", err)
	}
	return p.reachable
}

func (p *openAICompatible) Complete(ctx context.Context, req *Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	var resp openai.ChatCompletionResponse
	err := p.doWithRetry(ctx, func() error {
		var callErr error
		resp, callErr = p.client.CreateChatCompletion(ctx, p.buildRequest(req, false))
		if callErr != nil {
			return callErr
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("empty chat response")
		}
		return nil
	})
	if err != nil {
		p.markUnreachable()
		return nil, fmt.Errorf("%s completion: %w", p.name, err)
	}

	choice := resp.Choices[0]
	out := &Response{
		Content: choice.Message.Content,
		Intent:  req.Intent,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		FinishReason: mapFinishReason(choice.FinishReason),
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, tools.Call{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	if len(out.ToolCalls) > 0 {
		out.FinishReason = FinishToolCall
	}
	return out, nil
}

func (p *openAICompatible) Stream(ctx context.Context, req *Request) (<-chan StreamChunk, error) {
	// Tool-bearing requests go through Complete so call arguments arrive
	// whole; only plain text is streamed token by token.
	if len(req.Tools) > 0 {
		resp, err := p.Complete(ctx, req)
		if err != nil {
			return nil, err
		}
		out := make(chan StreamChunk, 2)
		out <- StreamChunk{Content: resp.Content}
		out <- StreamChunk{Done: true}
		close(out)
		return out, nil
	}

	streamCtx, cancel := context.WithTimeout(ctx, timeout.StreamTimeout)
	stream, err := p.client.CreateChatCompletionStream(streamCtx, p.buildRequest(req, true))
	if err != nil {
		cancel()
		p.markUnreachable()
		return nil, fmt.Errorf("%s stream: %w", p.name, err)
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer cancel()
		defer stream.Close()
		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				out <- StreamChunk{Done: true}
				return
			}
			if err != nil {
				out <- StreamChunk{Done: true, Err: fmt.Errorf("%s stream: %w", p.name, err)}
				return
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			select {
			case out <- StreamChunk{Content: delta}:
			case <-streamCtx.Done():
				out <- StreamChunk{Done: true, Err: streamCtx.Err()}
				return
			}
		}
	}()
	return out, nil
}

// DetectIntent asks the model for a strict JSON classification. Any failure
// degrades to the rule matcher so a turn never dies on classification.
func (p *openAICompatible) DetectIntent(ctx context.Context, text string, persona persona.Persona) (*intent.Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout.IntentTimeout)
	defer cancel()

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: classifySystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: classifyUserPrompt(text, persona)},
		},
		Temperature: 0.1,
		MaxTokens:   200,
	})
	if err != nil || len(resp.Choices) == 0 {
		slog.Warn("intent classification fell back to rule matcher",
			"provider", p.name, "error", err)
		return p.matcher.Match(text), nil
	}
	return intent.ParseJSON(resp.Choices[0].Message.Content), nil
}

func (p *openAICompatible) buildRequest(req *Request, stream bool) openai.ChatCompletionRequest {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: BuildSystemPrompt(req.Persona, req.RetrievedContext)},
	}
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	// Replay the previous tool round so the backend can pair results with
	// the calls that produced them.
	if len(req.ToolResults) > 0 {
		assistant := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant}
		for _, call := range req.ToolCalls {
			assistant.ToolCalls = append(assistant.ToolCalls, openai.ToolCall{
				ID:   call.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      call.Name,
					Arguments: call.Arguments,
				},
			})
		}
		messages = append(messages, assistant)
		for _, result := range req.ToolResults {
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: result.ToolCallID,
				Content:    result.Content,
			})
		}
	}

	out := openai.ChatCompletionRequest{
		Model:       p.config.Model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      stream,
	}
	for _, def := range req.Tools {
		out.Tools = append(out.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		})
	}
	return out
}

func (p *openAICompatible) markUnreachable() {
	p.mu.Lock()
	p.probedAt = time.Now()
	p.reachable = false
	p.mu.Unlock()
}

// doWithRetry executes a function with exponential backoff retry.
func (p *openAICompatible) doWithRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < p.config.MaxRetries; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			if attempt < p.config.MaxRetries-1 {
				waitTime := time.Duration(math.Pow(2, float64(attempt))) * time.Second
				slog.Debug("provider request failed, retrying",
					"provider", p.name,
					"attempt", attempt+1,
					"wait_time", waitTime,
					"error", err)
				select {
				case <-time.After(waitTime):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
	return lastErr
}

func mapFinishReason(reason openai.FinishReason) FinishReason {
	switch reason {
	case openai.FinishReasonStop:
		return FinishStop
	case openai.FinishReasonLength:
		return FinishLength
	case openai.FinishReasonContentFilter:
		return FinishContentFilter
	case openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall:
		return FinishToolCall
	default:
		return FinishError
	}
}
