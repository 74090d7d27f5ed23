package llm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lessonloop/assistant/plugin/intent"
	"github.com/lessonloop/assistant/plugin/persona"
	"github.com/lessonloop/assistant/plugin/platform"
	"github.com/lessonloop/assistant/plugin/tools"
)

func studentRequest(message string) *Request {
	svc := platform.NewStubService()
	return &Request{
		Messages: []Message{{Role: "user", Content: message}},
		Persona:  persona.NewStudentPersona(svc),
		Exec:     tools.ExecContext{ActorID: "student-1", Role: platform.RoleStudent},
	}
}

func TestOfflineProviderAlwaysAvailable(t *testing.T) {
	p, err := NewOfflineProvider()
	require.NoError(t, err)
	assert.True(t, p.IsAvailable(context.Background()))
	assert.Equal(t, "offline", p.Name())
}

func TestOfflineCompleteGreeting(t *testing.T) {
	p, err := NewOfflineProvider()
	require.NoError(t, err)

	resp, err := p.Complete(context.Background(), studentRequest("hi"))
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Content)
	assert.Equal(t, FinishStop, resp.FinishReason)
	require.NotNil(t, resp.Intent)
	assert.Equal(t, intent.CategoryGeneral, resp.Intent.Category)
}

func TestOfflineEmitsBookingStatusToolCall(t *testing.T) {
	p, err := NewOfflineProvider()
	require.NoError(t, err)

	req := studentRequest("what's the status of booking B123?")
	req.Tools = []*tools.Definition{{Name: "get_booking_status"}}

	resp, err := p.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, FinishToolCall, resp.FinishReason)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "get_booking_status", resp.ToolCalls[0].Name)
	assert.NotEmpty(t, resp.ToolCalls[0].ID)

	var args map[string]string
	require.NoError(t, json.Unmarshal([]byte(resp.ToolCalls[0].Arguments), &args))
	assert.Equal(t, "B123", args["bookingId"])
}

func TestOfflineSummarizesToolResults(t *testing.T) {
	p, err := NewOfflineProvider()
	require.NoError(t, err)

	svc := platform.NewStubService()
	booking, err := svc.BookingStatus(context.Background(),
		platform.QueryContext{ActorID: "student-1", Role: platform.RoleStudent}, "B123")
	require.NoError(t, err)
	payload, err := json.Marshal(booking)
	require.NoError(t, err)

	req := studentRequest("what's the status of booking B123?")
	req.ToolResults = []tools.Result{{
		ToolCallID: "call-1",
		Name:       "get_booking_status",
		Role:       "tool",
		Content:    string(payload),
	}}

	resp, err := p.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, FinishStop, resp.FinishReason)
	assert.Contains(t, resp.Content, "B123")
	assert.Contains(t, resp.Content, booking.Status)
}

func TestOfflineSummarizesFailedToolResult(t *testing.T) {
	p, err := NewOfflineProvider()
	require.NoError(t, err)

	req := studentRequest("what's the status of booking B999?")
	req.ToolResults = []tools.Result{{
		ToolCallID: "call-1",
		Name:       "get_booking_status",
		Role:       "tool",
		Content:    `{"error":"not_found","message":"booking B999 not found"}`,
		IsError:    true,
	}}

	resp, err := p.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Content)
	assert.NotContains(t, resp.Content, `"error"`)
}

func TestOfflineStreamReassemblesContent(t *testing.T) {
	p, err := NewOfflineProvider()
	require.NoError(t, err)

	req := studentRequest("hi")
	full, err := p.Complete(context.Background(), req)
	require.NoError(t, err)

	ch, err := p.Stream(context.Background(), req)
	require.NoError(t, err)

	var got string
	for chunk := range ch {
		require.NoError(t, chunk.Err)
		got += chunk.Content
	}
	assert.Equal(t, full.Content, got)
}

func TestBuildSystemPromptMentionsPersonaScope(t *testing.T) {
	p := persona.NewTutorPersona(platform.NewStubService())
	prompt := BuildSystemPrompt(p, "Payouts run every Friday.")
	assert.Contains(t, prompt, string(platform.RoleTutor))
	assert.Contains(t, prompt, p.Tone())
	assert.Contains(t, prompt, "Payouts run every Friday.")
	assert.Contains(t, prompt, string(intent.CategoryBilling))
}

// fakeProvider scripts availability and outcomes for chain tests.
type fakeProvider struct {
	name      string
	available bool
	err       error
	calls     int
}

func (f *fakeProvider) Name() string                     { return f.name }
func (f *fakeProvider) IsAvailable(context.Context) bool { return f.available }

func (f *fakeProvider) Complete(_ context.Context, _ *Request) (*Response, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &Response{Content: "from " + f.name, FinishReason: FinishStop}, nil
}

func (f *fakeProvider) Stream(ctx context.Context, req *Request) (<-chan StreamChunk, error) {
	resp, err := f.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	ch := make(chan StreamChunk, 2)
	ch <- StreamChunk{Content: resp.Content}
	ch <- StreamChunk{Done: true}
	close(ch)
	return ch, nil
}

func (f *fakeProvider) DetectIntent(_ context.Context, text string, _ persona.Persona) (*intent.Intent, error) {
	return intent.Fallback(), nil
}

func TestChainSkipsUnavailableAndAbsorbsFailures(t *testing.T) {
	down := &fakeProvider{name: "openai", available: false}
	broken := &fakeProvider{name: "deepseek", available: true, err: errors.New("upstream 500")}
	healthy := &fakeProvider{name: "ollama", available: true}
	chain := &Chain{providers: []Provider{down, broken, healthy}}

	resp, name, err := chain.Complete(context.Background(), studentRequest("hi"))
	require.NoError(t, err)
	assert.Equal(t, "ollama", name)
	assert.Equal(t, "from ollama", resp.Content)
	assert.Zero(t, down.calls)
	assert.Equal(t, 1, broken.calls)
}

func TestChainTerminatesAtOffline(t *testing.T) {
	broken := &fakeProvider{name: "openai", available: true, err: errors.New("timeout")}
	offline, err := NewOfflineProvider()
	require.NoError(t, err)
	chain := &Chain{providers: []Provider{broken, offline}}

	resp, name, err := chain.Complete(context.Background(), studentRequest("hi"))
	require.NoError(t, err)
	assert.Equal(t, "offline", name)
	assert.NotEmpty(t, resp.Content)
}

func TestChainAllBackendsFailed(t *testing.T) {
	broken := &fakeProvider{name: "openai", available: true, err: errors.New("timeout")}
	chain := &Chain{providers: []Provider{broken}}

	_, _, err := chain.Complete(context.Background(), studentRequest("hi"))
	require.Error(t, err)
	assert.ErrorContains(t, err, "timeout")
}

func TestChainCompleteWithPinnedBackend(t *testing.T) {
	broken := &fakeProvider{name: "openai", available: true, err: errors.New("upstream reset")}
	healthy := &fakeProvider{name: "ollama", available: true}
	chain := &Chain{providers: []Provider{broken, healthy}}

	// A pinned backend fails in place; no fallback to the next one.
	_, err := chain.CompleteWith(context.Background(), "openai", studentRequest("hi"))
	require.Error(t, err)
	assert.Zero(t, healthy.calls)

	resp, err := chain.CompleteWith(context.Background(), "ollama", studentRequest("hi"))
	require.NoError(t, err)
	assert.Equal(t, "from ollama", resp.Content)

	_, err = chain.CompleteWith(context.Background(), "claude", studentRequest("hi"))
	require.Error(t, err)
}

func TestNewChainOfflineOnly(t *testing.T) {
	chain, err := NewChain(FactoryConfig{})
	require.NoError(t, err)
	require.Len(t, chain.Providers(), 1)
	assert.Equal(t, "offline", chain.Providers()[0].Name())
	assert.Equal(t, "offline", chain.Pick(context.Background()).Name())
}

func TestNewChainPreferredMovesFirst(t *testing.T) {
	chain, err := NewChain(FactoryConfig{
		Preferred:    "offline",
		OpenAIAPIKey: "sk-test",
	})
	require.NoError(t, err)
	require.Len(t, chain.Providers(), 2)
	assert.Equal(t, "offline", chain.Providers()[0].Name())
	assert.Equal(t, "openai", chain.Providers()[1].Name())
}

func TestNewChainUnknownPreferred(t *testing.T) {
	_, err := NewChain(FactoryConfig{Preferred: "claude"})
	require.Error(t, err)
}
