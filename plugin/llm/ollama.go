package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/lessonloop/assistant/plugin/intent"
	"github.com/lessonloop/assistant/plugin/persona"
	"github.com/lessonloop/assistant/plugin/timeout"
	"github.com/lessonloop/assistant/plugin/tools"
)

// OllamaConfig holds the configuration of a local Ollama server.
type OllamaConfig struct {
	ServerURL string
	Model     string
	Timeout   time.Duration
}

// ollamaProvider serves completions from a locally hosted model.
type ollamaProvider struct {
	model   llms.Model
	config  *OllamaConfig
	matcher *intent.Matcher
}

// NewOllamaProvider creates the Ollama backend.
func NewOllamaProvider(cfg *OllamaConfig) (Provider, error) {
	if cfg.ServerURL == "" {
		cfg.ServerURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "llama3.1"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = timeout.ProviderCallTimeout
	}

	model, err := ollama.New(
		ollama.WithServerURL(cfg.ServerURL),
		ollama.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("ollama client: %w", err)
	}

	return &ollamaProvider{
		model:   model,
		config:  cfg,
		matcher: intent.MustDefaultMatcher(),
	}, nil
}

func (p *ollamaProvider) Name() string { return "ollama" }

// IsAvailable probes the server with a minimal generation.
func (p *ollamaProvider) IsAvailable(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := p.model.GenerateContent(probeCtx,
		[]llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, "ping")},
		llms.WithMaxTokens(1),
	)
	if err != nil {
		slog.Debug("ollama unreachable", "server", p.config.ServerURL, "error", err)
		return false
	}
	return true
}

func (p *ollamaProvider) Complete(ctx context.Context, req *Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	resp, err := p.model.GenerateContent(ctx, p.convertMessages(req), p.callOptions(req)...)
	if err != nil {
		return nil, fmt.Errorf("ollama completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("ollama completion: empty response")
	}

	choice := resp.Choices[0]
	out := &Response{
		Content:      choice.Content,
		Intent:       req.Intent,
		FinishReason: FinishStop,
	}
	for _, tc := range choice.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, tools.Call{
			ID:        tc.ID,
			Name:      tc.FunctionCall.Name,
			Arguments: tc.FunctionCall.Arguments,
		})
	}
	if len(out.ToolCalls) > 0 {
		out.FinishReason = FinishToolCall
	}
	out.Usage = Usage{
		PromptTokens:     estimateTokens(req.LastUserMessage()),
		CompletionTokens: estimateTokens(choice.Content),
	}
	out.Usage.TotalTokens = out.Usage.PromptTokens + out.Usage.CompletionTokens
	return out, nil
}

func (p *ollamaProvider) Stream(ctx context.Context, req *Request) (<-chan StreamChunk, error) {
	streamCtx, cancel := context.WithTimeout(ctx, timeout.StreamTimeout)

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer cancel()

		opts := append(p.callOptions(req),
			llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
				select {
				case out <- StreamChunk{Content: string(chunk)}:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			}),
		)
		_, err := p.model.GenerateContent(streamCtx, p.convertMessages(req), opts...)
		if err != nil {
			out <- StreamChunk{Done: true, Err: fmt.Errorf("ollama stream: %w", err)}
			return
		}
		out <- StreamChunk{Done: true}
	}()
	return out, nil
}

// DetectIntent mirrors the remote backends: strict JSON classification with
// rule-matcher degradation on failure.
func (p *ollamaProvider) DetectIntent(ctx context.Context, text string, persona persona.Persona) (*intent.Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout.IntentTimeout)
	defer cancel()

	resp, err := p.model.GenerateContent(ctx,
		[]llms.MessageContent{
			llms.TextParts(llms.ChatMessageTypeSystem, classifySystemPrompt),
			llms.TextParts(llms.ChatMessageTypeHuman, classifyUserPrompt(text, persona)),
		},
		llms.WithTemperature(0.1),
		llms.WithMaxTokens(200),
	)
	if err != nil || len(resp.Choices) == 0 {
		slog.Warn("intent classification fell back to rule matcher",
			"provider", "ollama", "error", err)
		return p.matcher.Match(text), nil
	}
	return intent.ParseJSON(resp.Choices[0].Content), nil
}

func (p *ollamaProvider) convertMessages(req *Request) []llms.MessageContent {
	out := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, BuildSystemPrompt(req.Persona, req.RetrievedContext)),
	}
	for _, m := range req.Messages {
		role := llms.ChatMessageTypeHuman
		switch m.Role {
		case "system":
			role = llms.ChatMessageTypeSystem
		case "assistant":
			role = llms.ChatMessageTypeAI
		}
		out = append(out, llms.TextParts(role, m.Content))
	}
	for _, result := range req.ToolResults {
		out = append(out, llms.MessageContent{
			Role: llms.ChatMessageTypeTool,
			Parts: []llms.ContentPart{llms.ToolCallResponse{
				ToolCallID: result.ToolCallID,
				Name:       result.Name,
				Content:    result.Content,
			}},
		})
	}
	return out
}

func (p *ollamaProvider) callOptions(req *Request) []llms.CallOption {
	opts := []llms.CallOption{
		llms.WithMaxTokens(req.MaxTokens),
		llms.WithTemperature(float64(req.Temperature)),
	}
	if len(req.Tools) > 0 {
		llmTools := make([]llms.Tool, len(req.Tools))
		for i, def := range req.Tools {
			llmTools[i] = llms.Tool{
				Type: "function",
				Function: &llms.FunctionDefinition{
					Name:        def.Name,
					Description: def.Description,
					Parameters:  def.Parameters,
				},
			}
		}
		opts = append(opts, llms.WithTools(llmTools))
	}
	return opts
}
