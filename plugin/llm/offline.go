package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/lessonloop/assistant/plugin/intent"
	"github.com/lessonloop/assistant/plugin/persona"
	"github.com/lessonloop/assistant/plugin/platform"
	"github.com/lessonloop/assistant/plugin/tools"
)

// OfflineProvider is the zero-cost rule engine. It is unconditionally
// available and therefore the terminal fallback: intent detection is ordered
// keyword matching, generation is template-based through the persona layer,
// composing live data fetched from the domain services.
type OfflineProvider struct {
	matcher *intent.Matcher
}

// NewOfflineProvider creates the rule engine over the default pattern table.
func NewOfflineProvider() (*OfflineProvider, error) {
	matcher, err := intent.NewMatcher(intent.DefaultPatterns())
	if err != nil {
		return nil, fmt.Errorf("offline provider pattern table: %w", err)
	}
	return &OfflineProvider{matcher: matcher}, nil
}

func (p *OfflineProvider) Name() string { return "offline" }

// IsAvailable always reports true; the system must never be unable to respond.
func (p *OfflineProvider) IsAvailable(context.Context) bool { return true }

func (p *OfflineProvider) DetectIntent(_ context.Context, text string, _ persona.Persona) (*intent.Intent, error) {
	return p.matcher.Match(text), nil
}

func (p *OfflineProvider) Complete(ctx context.Context, req *Request) (*Response, error) {
	if req.Persona == nil {
		return nil, fmt.Errorf("offline provider requires a persona")
	}

	it := req.Intent
	if it == nil {
		it = p.matcher.Match(req.LastUserMessage())
	}

	// Second round: tool results came back, summarize them.
	if len(req.ToolResults) > 0 {
		return p.summarizeToolResults(req, it), nil
	}

	// Emit a tool call when the intent names a concrete resource and the
	// role has the matching tool.
	if call, ok := p.toolCallFor(it, req.Tools); ok {
		return &Response{
			Intent:       it,
			ToolCalls:    []tools.Call{call},
			Usage:        Usage{PromptTokens: estimateTokens(req.LastUserMessage())},
			FinishReason: FinishToolCall,
		}, nil
	}

	result, err := req.Persona.HandleIntent(ctx, it, &persona.Context{
		Query:   req.Exec.QueryContext(),
		Message: req.LastUserMessage(),
	})
	if err != nil {
		return nil, fmt.Errorf("persona %s: %w", req.Persona.Name(), err)
	}

	usage := Usage{
		PromptTokens:     estimateTokens(req.LastUserMessage()),
		CompletionTokens: estimateTokens(result.Message),
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens

	return &Response{
		Content:      result.Message,
		Intent:       it,
		Suggestions:  result.Suggestions,
		Usage:        usage,
		FinishReason: FinishStop,
	}, nil
}

func (p *OfflineProvider) Stream(ctx context.Context, req *Request) (<-chan StreamChunk, error) {
	resp, err := p.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		for _, chunk := range splitChunks(resp.Content, 48) {
			select {
			case out <- StreamChunk{Content: chunk}:
			case <-ctx.Done():
				out <- StreamChunk{Done: true, Err: ctx.Err()}
				return
			}
		}
		out <- StreamChunk{Done: true}
	}()
	return out, nil
}

// toolCallFor maps resource-addressed intents onto tool calls, but only for
// tools the request actually offers (already role-filtered).
func (p *OfflineProvider) toolCallFor(it *intent.Intent, defs []*tools.Definition) (tools.Call, bool) {
	hasTool := func(name string) bool {
		for _, d := range defs {
			if d.Name == name {
				return true
			}
		}
		return false
	}

	if it.Category == intent.CategoryScheduling || it.Entities["bookingId"] != "" {
		if bookingID := it.Entities["bookingId"]; bookingID != "" && hasTool("get_booking_status") {
			args, _ := json.Marshal(map[string]string{"bookingId": bookingID})
			return tools.Call{
				ID:        uuid.NewString(),
				Name:      "get_booking_status",
				Arguments: string(args),
			}, true
		}
	}
	return tools.Call{}, false
}

// summarizeToolResults renders executed tool outcomes as natural language.
func (p *OfflineProvider) summarizeToolResults(req *Request, it *intent.Intent) *Response {
	var parts []string
	var suggestions []string

	for _, result := range req.ToolResults {
		if result.IsError {
			parts = append(parts, "I couldn't fetch that information just now — please try again in a moment.")
			suggestions = append(suggestions, "Try again", "Contact support")
			continue
		}
		switch result.Name {
		case "get_booking_status":
			var booking platform.Booking
			if err := json.Unmarshal([]byte(result.Content), &booking); err == nil {
				parts = append(parts, fmt.Sprintf("Your booking %s (%s) is %s, starting %s.",
					booking.BookingID, booking.Subject, booking.Status,
					booking.StartsAt.Format("Mon 2 Jan 15:04")))
				suggestions = append(suggestions, "Reschedule this lesson")
				continue
			}
		}
		parts = append(parts, "Here's what I found: "+result.Content)
	}

	content := strings.Join(parts, " ")
	return &Response{
		Content:      content,
		Intent:       it,
		Suggestions:  suggestions,
		Usage:        Usage{CompletionTokens: estimateTokens(content), TotalTokens: estimateTokens(content)},
		FinishReason: FinishStop,
	}
}

// splitChunks cuts s into rune-safe chunks of roughly size characters.
func splitChunks(s string, size int) []string {
	if s == "" {
		return nil
	}
	runes := []rune(s)
	var chunks []string
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
