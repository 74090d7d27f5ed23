// Package llm defines the completion-provider abstraction and its four
// interchangeable implementations: an offline rule engine and three remote
// LLM backends. The orchestration core never branches on backend identity;
// all format conversion stays local to each adapter.
package llm

import (
	"context"

	"github.com/lessonloop/assistant/plugin/intent"
	"github.com/lessonloop/assistant/plugin/persona"
	"github.com/lessonloop/assistant/plugin/tools"
)

// Message is one entry of the shared conversation format.
type Message struct {
	Role    string `json:"role"` // system, user, assistant, tool
	Content string `json:"content"`
}

// Request is the provider-agnostic completion request.
type Request struct {
	// Messages is the conversation history, oldest first.
	Messages []Message
	// Persona shapes the system prompt and, for the offline engine, the
	// reply itself.
	Persona persona.Persona
	// Exec identifies the actor for tool authorization.
	Exec tools.ExecContext
	// Intent is the prior classification of the latest user message.
	Intent *intent.Intent
	// Tools lists the definitions the provider may call, already filtered
	// to the actor's role.
	Tools []*tools.Definition
	// ToolCalls are the calls the assistant issued in the previous round,
	// replayed so remote backends can pair them with ToolResults.
	ToolCalls []tools.Call
	// ToolResults carries executed tool outcomes back for the follow-up
	// completion round.
	ToolResults []tools.Result
	// RetrievedContext is optional knowledge-base text to ground the reply.
	RetrievedContext string

	MaxTokens   int
	Temperature float32
}

// LastUserMessage returns the content of the newest user message.
func (r *Request) LastUserMessage() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == "user" {
			return r.Messages[i].Content
		}
	}
	return ""
}

// FinishReason tells the caller why generation stopped.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content_filter"
	FinishError         FinishReason = "error"
	FinishToolCall      FinishReason = "tool_call"
)

// Usage is the token accounting of one completion.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// Response is the provider-agnostic completion response.
type Response struct {
	Content      string
	Intent       *intent.Intent
	ToolCalls    []tools.Call
	Suggestions  []string
	Usage        Usage
	FinishReason FinishReason
}

// StreamChunk is one increment of a streaming completion. Done is set on
// the final chunk; Err, when non-nil, terminates the stream.
type StreamChunk struct {
	Content string
	Done    bool
	Err     error
}

// Provider is the completion backend contract. All four implementations
// must produce canonical intents: malformed classifier output degrades to
// intent.Fallback(), never an error that fails the turn.
type Provider interface {
	// Name identifies the backend ("offline", "openai", "deepseek", "ollama").
	Name() string
	// IsAvailable reports whether the backend can serve calls right now.
	IsAvailable(ctx context.Context) bool
	// Complete generates a full response for the request.
	Complete(ctx context.Context, req *Request) (*Response, error)
	// Stream generates a response incrementally. The returned channel is
	// closed after the Done chunk.
	Stream(ctx context.Context, req *Request) (<-chan StreamChunk, error)
	// DetectIntent classifies a user message.
	DetectIntent(ctx context.Context, text string, p persona.Persona) (*intent.Intent, error)
}

// estimateTokens is the rough 4-characters-per-token estimate used where a
// backend does not report usage.
func estimateTokens(text string) int {
	return len(text) / 4
}
