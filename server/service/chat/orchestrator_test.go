package chat

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lessonloop/assistant/internal/profile"
	"github.com/lessonloop/assistant/plugin/intent"
	"github.com/lessonloop/assistant/plugin/llm"
	"github.com/lessonloop/assistant/plugin/persona"
	"github.com/lessonloop/assistant/plugin/platform"
	"github.com/lessonloop/assistant/plugin/ratelimit"
	"github.com/lessonloop/assistant/plugin/respcache"
	"github.com/lessonloop/assistant/plugin/tools"
	aerrors "github.com/lessonloop/assistant/server/internal/errors"
	"github.com/lessonloop/assistant/store"
	"github.com/lessonloop/assistant/store/db/sqlite"
)

type testRig struct {
	service *Service
	store   *store.Store
	svc     *platform.StubService
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()

	p := &profile.Profile{
		Mode:   "dev",
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "chat_test.db"),
	}
	driver, err := sqlite.NewDB(p)
	require.NoError(t, err)
	st := store.New(driver, p)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	svc := platform.NewStubService()
	registry, err := tools.NewBuiltinRegistry(svc)
	require.NoError(t, err)

	chain, err := llm.NewChain(llm.FactoryConfig{})
	require.NoError(t, err)

	service := NewService(
		persona.NewRegistry(svc),
		chain,
		registry,
		tools.NewExecutor(registry),
		ratelimit.New(ratelimit.NewMemoryCounterStore(), ratelimit.DefaultBudgets()),
		respcache.New(respcache.DefaultCapacity),
		st,
		1024,
	)
	t.Cleanup(service.Sessions().Close)

	return &testRig{service: service, store: st, svc: svc}
}

func (r *testRig) startSession(t *testing.T, actorID string, role platform.Role) *SessionInfo {
	t.Helper()
	info, err := r.service.StartSession(context.Background(), actorID, role, "", "en")
	require.NoError(t, err)
	return info
}

func TestStartSessionReturnsGreeting(t *testing.T) {
	rig := newTestRig(t)
	info := rig.startSession(t, "student-1", platform.RoleStudent)

	assert.NotEmpty(t, info.SessionID)
	assert.NotEmpty(t, info.Persona)
	assert.NotEmpty(t, info.Greeting)
}

func TestStartSessionRejectsUnknownRole(t *testing.T) {
	rig := newTestRig(t)
	_, err := rig.service.StartSession(context.Background(), "x", platform.Role("wizard"), "", "")
	require.Error(t, err)
	assert.Equal(t, aerrors.ErrCodeInvalidArgument, aerrors.CodeOf(err))
}

func TestProcessMessageUnknownSession(t *testing.T) {
	rig := newTestRig(t)
	_, err := rig.service.ProcessMessage(context.Background(), "sess-nope", "hello")
	require.Error(t, err)
	assert.Equal(t, aerrors.ErrCodeSessionNotFound, aerrors.CodeOf(err))
}

func TestProcessMessageOrdering(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	info := rig.startSession(t, "student-1", platform.RoleStudent)

	inputs := []string{"when is my next lesson?", "and how is my progress?", "great, thanks a lot for the details"}
	for _, msg := range inputs {
		reply, err := rig.service.ProcessMessage(ctx, info.SessionID, msg)
		require.NoError(t, err)
		assert.NotEmpty(t, reply.Content)
	}

	sess, err := rig.service.Sessions().Get(ctx, info.SessionID)
	require.NoError(t, err)

	// User turns appear in send order, each followed by its reply.
	var userTurns []string
	for _, turn := range sess.Turns {
		if turn.Role == store.MessageRoleUser {
			userTurns = append(userTurns, turn.Content)
		}
	}
	assert.Equal(t, inputs, userTurns)
}

func TestPermissionGateRefusesOutOfScopeCategory(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	info := rig.startSession(t, "student-1", platform.RoleStudent)

	// Organisation stats are outside the student persona's remit.
	reply, err := rig.service.ProcessMessage(ctx, info.SessionID, "show me the org stats for this month")
	require.NoError(t, err)
	assert.Equal(t, "policy", reply.Provider)
	assert.Contains(t, reply.Content, "can't help")

	// The refusal consumed no tool calls against the platform.
	sess, err := rig.service.Sessions().Get(ctx, info.SessionID)
	require.NoError(t, err)
	for _, turn := range sess.Turns {
		assert.NotEqual(t, store.MessageRoleTool, turn.Role)
	}
}

func TestToolRoundTrip(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	info := rig.startSession(t, "student-1", platform.RoleStudent)

	reply, err := rig.service.ProcessMessage(ctx, info.SessionID, "what is the status of booking B123?")
	require.NoError(t, err)
	assert.Contains(t, reply.Content, "B123")
	assert.Contains(t, reply.Content, "confirmed")

	sess, err := rig.service.Sessions().Get(ctx, info.SessionID)
	require.NoError(t, err)

	var toolTurns int
	for _, turn := range sess.Turns {
		if turn.Role == store.MessageRoleTool {
			toolTurns++
			assert.True(t, json.Valid([]byte(turn.Content)), "tool result must be valid JSON")
		}
	}
	assert.Equal(t, 1, toolTurns)
}

// failingProvider is always reachable but never completes.
type failingProvider struct{}

func (f *failingProvider) Name() string                     { return "failing" }
func (f *failingProvider) IsAvailable(context.Context) bool { return true }

func (f *failingProvider) Complete(context.Context, *llm.Request) (*llm.Response, error) {
	return nil, errors.New("upstream unavailable")
}

func (f *failingProvider) Stream(context.Context, *llm.Request) (<-chan llm.StreamChunk, error) {
	return nil, errors.New("upstream unavailable")
}

func (f *failingProvider) DetectIntent(_ context.Context, text string, _ persona.Persona) (*intent.Intent, error) {
	return intent.MustDefaultMatcher().Match(text), nil
}

func TestCachedPleasantrySkipsProvider(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	info := rig.startSession(t, "student-1", platform.RoleStudent)

	first, err := rig.service.ProcessMessage(ctx, info.SessionID, "hello")
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := rig.service.ProcessMessage(ctx, info.SessionID, "Hello!")
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Content, second.Content)
	assert.Equal(t, "cache", second.Provider)
}

func TestCachedGreetingIsPersonaScoped(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	student := rig.startSession(t, "student-1", platform.RoleStudent)
	studentReply, err := rig.service.ProcessMessage(ctx, student.SessionID, "hello")
	require.NoError(t, err)

	// A tutor saying hello right after must get the tutor greeting, not the
	// student's cached one.
	tutor := rig.startSession(t, "tutor-1", platform.RoleTutor)
	tutorReply, err := rig.service.ProcessMessage(ctx, tutor.SessionID, "hello")
	require.NoError(t, err)

	assert.False(t, tutorReply.Cached)
	assert.NotEqual(t, studentReply.Content, tutorReply.Content)
	assert.Contains(t, tutorReply.Content, "Tutor Assistant")
}

func TestEndSessionArchivesConversation(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	info := rig.startSession(t, "student-1", platform.RoleStudent)

	_, err := rig.service.ProcessMessage(ctx, info.SessionID, "when is my next lesson?")
	require.NoError(t, err)

	require.NoError(t, rig.service.EndSession(ctx, info.SessionID, "user_ended"))

	// The session is gone from the live cache.
	_, err = rig.service.ProcessMessage(ctx, info.SessionID, "still there?")
	require.Error(t, err)
	assert.Equal(t, aerrors.ErrCodeSessionNotFound, aerrors.CodeOf(err))

	conv, messages, err := rig.service.Transcript(ctx, info.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "user_ended", conv.EndReason)
	assert.Equal(t, "student-1", conv.ActorID)
	require.NotEmpty(t, messages)
	assert.Equal(t, store.MessageRoleUser, messages[0].Role)
	assert.Equal(t, "scheduling", messages[0].IntentCategory)
}

func TestEndSessionTwice(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	info := rig.startSession(t, "student-1", platform.RoleStudent)

	_, err := rig.service.ProcessMessage(ctx, info.SessionID, "hi")
	require.NoError(t, err)
	require.NoError(t, rig.service.EndSession(ctx, info.SessionID, ""))

	err = rig.service.EndSession(ctx, info.SessionID, "")
	require.Error(t, err)
	assert.Equal(t, aerrors.ErrCodeSessionNotFound, aerrors.CodeOf(err))
}

func TestMessageRateLimit(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	info := rig.startSession(t, "student-1", platform.RoleStudent)

	budget := ratelimit.DefaultBudgets()[ratelimit.ActionMessage]
	var limited bool
	for i := 0; i <= budget.Limit; i++ {
		_, err := rig.service.ProcessMessage(ctx, info.SessionID, "when is my next lesson?")
		if err != nil {
			assert.Equal(t, aerrors.ErrCodeRateLimitExceeded, aerrors.CodeOf(err))
			limited = true
			break
		}
	}
	assert.True(t, limited, "expected the message budget to exhaust")
}

func TestConcurrentMessagesSerializePerSession(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	info := rig.startSession(t, "student-1", platform.RoleStudent)

	const workers = 5
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, err := rig.service.ProcessMessage(ctx, info.SessionID, "when is my next lesson?")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	sess, err := rig.service.Sessions().Get(ctx, info.SessionID)
	require.NoError(t, err)

	// Each turn pair is intact: user, assistant, user, assistant, ...
	var sequence []store.MessageRole
	for _, turn := range sess.Turns {
		if turn.Role == store.MessageRoleTool {
			continue
		}
		sequence = append(sequence, turn.Role)
	}
	require.Len(t, sequence, workers*2)
	for i, role := range sequence {
		if i%2 == 0 {
			assert.Equal(t, store.MessageRoleUser, role, "turn %d", i)
		} else {
			assert.Equal(t, store.MessageRoleAssistant, role, "turn %d", i)
		}
	}
}

func TestProviderFailureRetainsUserMessage(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	info := rig.startSession(t, "student-1", platform.RoleStudent)

	// A chain whose only backend fails leaves the turn in an error state
	// but keeps the user message for retry.
	rig.service.chain = llm.NewChainWith(&failingProvider{})

	_, err := rig.service.ProcessMessage(ctx, info.SessionID, "when is my next lesson?")
	require.Error(t, err)
	assert.Equal(t, aerrors.ErrCodeProviderUnavailable, aerrors.CodeOf(err))

	sess, err := rig.service.Sessions().Get(ctx, info.SessionID)
	require.NoError(t, err)
	require.Len(t, sess.Turns, 1)
	assert.Equal(t, store.MessageRoleUser, sess.Turns[0].Role)
	assert.Equal(t, "when is my next lesson?", sess.Turns[0].Content)
}

// flakyProvider succeeds until fail is called, then errors on every call.
type flakyProvider struct {
	mu      sync.Mutex
	failing bool
}

func (f *flakyProvider) Name() string                     { return "flaky" }
func (f *flakyProvider) IsAvailable(context.Context) bool { return true }

func (f *flakyProvider) fail() {
	f.mu.Lock()
	f.failing = true
	f.mu.Unlock()
}

func (f *flakyProvider) Complete(context.Context, *llm.Request) (*llm.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return nil, errors.New("upstream reset")
	}
	return &llm.Response{Content: "All sorted.", FinishReason: llm.FinishStop}, nil
}

func (f *flakyProvider) Stream(context.Context, *llm.Request) (<-chan llm.StreamChunk, error) {
	return nil, errors.New("streaming not supported")
}

func (f *flakyProvider) DetectIntent(_ context.Context, text string, _ persona.Persona) (*intent.Intent, error) {
	return intent.MustDefaultMatcher().Match(text), nil
}

func TestMidConversationFailureDoesNotSwitchBackend(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	info := rig.startSession(t, "student-1", platform.RoleStudent)

	flaky := &flakyProvider{}
	offline, err := llm.NewOfflineProvider()
	require.NoError(t, err)
	rig.service.chain = llm.NewChainWith(flaky, offline)

	first, err := rig.service.ProcessMessage(ctx, info.SessionID, "when is my next lesson?")
	require.NoError(t, err)
	assert.Equal(t, "flaky", first.Provider)

	flaky.fail()

	// The conversation stays pinned to its backend: the failure surfaces as
	// retryable instead of silently answering from the offline engine.
	_, err = rig.service.ProcessMessage(ctx, info.SessionID, "and my progress?")
	require.Error(t, err)
	assert.Equal(t, aerrors.ErrCodeProviderFailed, aerrors.CodeOf(err))
	assert.True(t, aerrors.IsRetryable(err))

	sess, err := rig.service.Sessions().Get(ctx, info.SessionID)
	require.NoError(t, err)
	last := sess.Turns[len(sess.Turns)-1]
	assert.Equal(t, store.MessageRoleUser, last.Role)
	assert.Equal(t, "and my progress?", last.Content)
}

func TestToolExecutionConsumesBookingBudget(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	info := rig.startSession(t, "student-1", platform.RoleStudent)

	budgets := ratelimit.DefaultBudgets()
	budgets[ratelimit.ActionBookingAction] = ratelimit.Budget{Limit: 0, Window: time.Minute}
	rig.service.limiter = ratelimit.New(ratelimit.NewMemoryCounterStore(), budgets)

	reply, err := rig.service.ProcessMessage(ctx, info.SessionID, "what is the status of booking B123?")
	require.NoError(t, err, "a denied tool budget must not fail the turn")
	assert.NotEmpty(t, reply.Content)

	sess, err := rig.service.Sessions().Get(ctx, info.SessionID)
	require.NoError(t, err)
	var toolContents []string
	for _, turn := range sess.Turns {
		if turn.Role == store.MessageRoleTool {
			toolContents = append(toolContents, turn.Content)
		}
	}
	require.Len(t, toolContents, 1)
	assert.Contains(t, toolContents[0], "rate_limited")
}

func TestSessionGreetingAndCapabilities(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	info := rig.startSession(t, "tutor-1", platform.RoleTutor)

	g, err := rig.service.Greeting(ctx, info.SessionID)
	require.NoError(t, err)
	assert.Equal(t, info.Greeting, g.Greeting)
	assert.Equal(t, info.Persona, g.Persona)

	caps, err := rig.service.CapabilitiesForSession(ctx, info.SessionID)
	require.NoError(t, err)
	assert.Equal(t, platform.RoleTutor, caps.Role)
	assert.Contains(t, caps.Tools, "get_earnings_summary")

	_, err = rig.service.Greeting(ctx, "sess-nope")
	require.Error(t, err)
	assert.Equal(t, aerrors.ErrCodeSessionNotFound, aerrors.CodeOf(err))
}

func TestCapabilitiesForRole(t *testing.T) {
	rig := newTestRig(t)

	caps, err := rig.service.CapabilitiesForRole(platform.RoleTutor)
	require.NoError(t, err)
	assert.Contains(t, caps.Categories, intent.CategoryBilling)
	assert.Contains(t, caps.Tools, "get_earnings_summary")

	studentCaps, err := rig.service.CapabilitiesForRole(platform.RoleStudent)
	require.NoError(t, err)
	assert.NotContains(t, studentCaps.Tools, "get_earnings_summary")
	assert.NotContains(t, studentCaps.Tools, "get_org_stats")
}

func TestProcessMessageStreamRecordsTurn(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	info := rig.startSession(t, "student-1", platform.RoleStudent)

	ch, err := rig.service.ProcessMessageStream(ctx, info.SessionID, "when is my next lesson?")
	require.NoError(t, err)

	var streamed string
	for chunk := range ch {
		require.NoError(t, chunk.Err)
		streamed += chunk.Content
	}
	assert.NotEmpty(t, streamed)

	sess, err := rig.service.Sessions().Get(ctx, info.SessionID)
	require.NoError(t, err)
	last := sess.Turns[len(sess.Turns)-1]
	assert.Equal(t, store.MessageRoleAssistant, last.Role)
	assert.Equal(t, streamed, last.Content)
}

func TestStreamCancellationDiscardsPartialAndFreesSession(t *testing.T) {
	rig := newTestRig(t)
	info := rig.startSession(t, "student-1", platform.RoleStudent)

	streamCtx, cancel := context.WithCancel(context.Background())
	ch, err := rig.service.ProcessMessageStream(streamCtx, info.SessionID, "when is my next lesson?")
	require.NoError(t, err)

	// Take one chunk, then abandon the stream without draining it.
	<-ch
	cancel()

	// The session must not stay wedged behind the abandoned stream.
	done := make(chan *Reply, 1)
	go func() {
		reply, err := rig.service.ProcessMessage(context.Background(), info.SessionID, "hello")
		assert.NoError(t, err)
		done <- reply
	}()

	var reply *Reply
	select {
	case reply = <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("ProcessMessage blocked behind an abandoned stream")
	}
	require.NotNil(t, reply)

	// The partial streamed reply was discarded: the only assistant turn is
	// the follow-up message's.
	sess, err := rig.service.Sessions().Get(context.Background(), info.SessionID)
	require.NoError(t, err)
	var assistants []string
	for _, turn := range sess.Turns {
		if turn.Role == store.MessageRoleAssistant {
			assistants = append(assistants, turn.Content)
		}
	}
	require.Len(t, assistants, 1)
	assert.Equal(t, reply.Content, assistants[0])
}

func TestSubmitFeedbackOnArchivedMessage(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	info := rig.startSession(t, "student-1", platform.RoleStudent)

	reply, err := rig.service.ProcessMessage(ctx, info.SessionID, "when is my next lesson?")
	require.NoError(t, err)
	require.NoError(t, rig.service.EndSession(ctx, info.SessionID, ""))

	require.NoError(t, rig.service.SubmitFeedback(ctx, reply.MessageUID, 1, "helpful"))

	_, messages, err := rig.service.Transcript(ctx, info.SessionID)
	require.NoError(t, err)
	var found bool
	for _, m := range messages {
		if m.UID == reply.MessageUID {
			found = true
			assert.Equal(t, 1, m.FeedbackRating)
			assert.Equal(t, "helpful", m.FeedbackComment)
		}
	}
	assert.True(t, found)
}
