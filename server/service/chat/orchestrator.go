package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lessonloop/assistant/plugin/intent"
	"github.com/lessonloop/assistant/plugin/llm"
	"github.com/lessonloop/assistant/plugin/persona"
	"github.com/lessonloop/assistant/plugin/platform"
	"github.com/lessonloop/assistant/plugin/ratelimit"
	"github.com/lessonloop/assistant/plugin/respcache"
	"github.com/lessonloop/assistant/plugin/timeout"
	"github.com/lessonloop/assistant/plugin/tools"
	aerrors "github.com/lessonloop/assistant/server/internal/errors"
	"github.com/lessonloop/assistant/store"
)

// Reply is the outcome of one processed message.
type Reply struct {
	SessionID   string         `json:"sessionId"`
	MessageUID  string         `json:"messageUid"`
	Content     string         `json:"content"`
	Suggestions []string       `json:"suggestions,omitempty"`
	Intent      *intent.Intent `json:"intent,omitempty"`
	Persona     string         `json:"persona"`
	Provider    string         `json:"provider"`
	Cached      bool           `json:"cached"`
	Usage       llm.Usage      `json:"usage"`
}

// SessionInfo is the outward view of a started session.
type SessionInfo struct {
	SessionID string    `json:"sessionId"`
	Persona   string    `json:"persona"`
	Greeting  string    `json:"greeting"`
	StartedAt time.Time `json:"startedAt"`
}

// Capabilities describes what the assistant can do for a role.
type Capabilities struct {
	Role       platform.Role     `json:"role"`
	Persona    string            `json:"persona"`
	Categories []intent.Category `json:"categories"`
	Tools      []string          `json:"tools"`
}

// Service wires the conversation pipeline: rate limiting, response caching,
// intent classification, persona dispatch, completion with tool rounds, and
// archival.
type Service struct {
	personas  *persona.Registry
	chain     *llm.Chain
	tools     *tools.Registry
	executor  *tools.Executor
	limiter   *ratelimit.Limiter
	respCache *respcache.Cache
	sessions  *SessionManager
	archiver  *Archiver
	maxTokens int
}

// NewService assembles the chat service. Sessions dropped by the cache on
// expiry are archived through the archiver before they disappear.
func NewService(
	personas *persona.Registry,
	chain *llm.Chain,
	registry *tools.Registry,
	executor *tools.Executor,
	limiter *ratelimit.Limiter,
	respCache *respcache.Cache,
	st *store.Store,
	maxTokens int,
) *Service {
	archiver := NewArchiver(st)
	s := &Service{
		personas:  personas,
		chain:     chain,
		tools:     registry,
		executor:  executor,
		limiter:   limiter,
		respCache: respCache,
		archiver:  archiver,
		maxTokens: maxTokens,
	}
	s.sessions = NewSessionManager(archiver.ArchiveExpired)
	return s
}

// Sessions exposes the session manager, mainly for shutdown and tests.
func (s *Service) Sessions() *SessionManager { return s.sessions }

// Shutdown archives every live session and stops the session janitor.
func (s *Service) Shutdown(ctx context.Context) {
	for _, id := range s.sessions.cache.Keys(ctx) {
		sess, err := s.sessions.Get(ctx, id)
		if err != nil {
			continue
		}
		if err := s.archiver.Archive(ctx, sess, "shutdown"); err != nil {
			slog.Error("failed to archive session on shutdown", "session", id, "error", err)
		}
		s.sessions.Remove(ctx, id)
	}
	s.sessions.Close()
}

// StartSession opens a live session and returns the persona greeting.
func (s *Service) StartSession(ctx context.Context, actorID string, role platform.Role, orgID, locale string) (*SessionInfo, error) {
	if actorID == "" {
		return nil, aerrors.New(aerrors.ErrCodeInvalidArgument, "actorId is required")
	}
	if !role.IsValid() {
		return nil, aerrors.New(aerrors.ErrCodeInvalidArgument, fmt.Sprintf("unknown role %q", role))
	}

	if decision := s.limiter.CheckLimit(ctx, actorID, ratelimit.ActionSessionStart, orgID); !decision.Allowed {
		return nil, rateLimitError(decision)
	}

	p, ok := s.personas.ForRole(role)
	if !ok {
		return nil, aerrors.New(aerrors.ErrCodeInvalidArgument, fmt.Sprintf("no persona for role %q", role))
	}

	sess := s.sessions.Start(ctx, actorID, role, orgID, p.Name(), locale)
	slog.Info("session started", "session", sess.ID, "actor", actorID, "role", role, "persona", p.Name())

	return &SessionInfo{
		SessionID: sess.ID,
		Persona:   p.Name(),
		Greeting:  p.Greeting(),
		StartedAt: sess.StartedAt,
	}, nil
}

// EndSession archives and removes a live session. Ending an already ended
// or expired session yields SESSION_NOT_FOUND.
func (s *Service) EndSession(ctx context.Context, sessionID, reason string) error {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	mu := s.sessions.Lock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	sess.EndedAt = time.Now()
	if reason == "" {
		reason = "user_ended"
	}
	sess.EndReason = reason

	if err := s.archiver.Archive(ctx, sess, reason); err != nil {
		return aerrors.Wrap(aerrors.ErrCodeStoreUnavailable, "failed to archive conversation", err)
	}
	s.sessions.Remove(ctx, sessionID)
	return nil
}

// CapabilitiesForRole lists the categories and tools available to a role.
func (s *Service) CapabilitiesForRole(role platform.Role) (*Capabilities, error) {
	p, ok := s.personas.ForRole(role)
	if !ok {
		return nil, aerrors.New(aerrors.ErrCodeInvalidArgument, fmt.Sprintf("unknown role %q", role))
	}

	defs := s.tools.ForRole(role)
	names := make([]string, len(defs))
	for i, def := range defs {
		names[i] = def.Name
	}
	return &Capabilities{
		Role:       role,
		Persona:    p.Name(),
		Categories: p.Categories(),
		Tools:      names,
	}, nil
}

// Greeting returns the persona greeting for a live session.
func (s *Service) Greeting(ctx context.Context, sessionID string) (*SessionInfo, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	p, ok := s.personas.ForRole(sess.Role)
	if !ok {
		return nil, aerrors.New(aerrors.ErrCodeInvalidArgument, fmt.Sprintf("no persona for role %q", sess.Role))
	}
	return &SessionInfo{
		SessionID: sess.ID,
		Persona:   p.Name(),
		Greeting:  p.Greeting(),
		StartedAt: sess.StartedAt,
	}, nil
}

// CapabilitiesForSession lists the capabilities of a live session's role.
func (s *Service) CapabilitiesForSession(ctx context.Context, sessionID string) (*Capabilities, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.CapabilitiesForRole(sess.Role)
}

// SubmitFeedback records a rating on an archived message.
func (s *Service) SubmitFeedback(ctx context.Context, messageUID string, rating int, comment string) error {
	if messageUID == "" {
		return aerrors.New(aerrors.ErrCodeInvalidArgument, "messageUid is required")
	}
	if err := s.archiver.store.SubmitFeedback(ctx, &store.UpdateMessageFeedback{
		UID:     messageUID,
		Rating:  rating,
		Comment: comment,
	}); err != nil {
		return aerrors.Wrap(aerrors.ErrCodeStoreUnavailable, "failed to record feedback", err)
	}
	return nil
}

// Transcript returns the archived conversation with its messages.
func (s *Service) Transcript(ctx context.Context, conversationUID string) (*store.Conversation, []*store.ConversationMessage, error) {
	conv, err := s.archiver.store.GetConversationByUID(ctx, conversationUID)
	if err != nil {
		return nil, nil, aerrors.Wrap(aerrors.ErrCodeStoreUnavailable, "failed to load conversation", err)
	}
	if conv == nil {
		return nil, nil, aerrors.New(aerrors.ErrCodeSessionNotFound, "conversation not found: "+conversationUID)
	}
	messages, err := s.archiver.store.ListConversationMessages(ctx, conv.ID)
	if err != nil {
		return nil, nil, aerrors.Wrap(aerrors.ErrCodeStoreUnavailable, "failed to load transcript", err)
	}
	return conv, messages, nil
}

// ProcessMessage runs one full conversational turn.
func (s *Service) ProcessMessage(ctx context.Context, sessionID, message string) (*Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, aerrors.New(aerrors.ErrCodeInvalidArgument, "message is empty")
	}

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	// One turn at a time per session; concurrent sends serialize here.
	mu := s.sessions.Lock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	if sess.Ended() {
		return nil, aerrors.New(aerrors.ErrCodeConversationEnded, "conversation has ended")
	}

	if decision := s.limiter.CheckLimit(ctx, sess.ActorID, ratelimit.ActionMessage, sess.OrgID); !decision.Allowed {
		return nil, rateLimitError(decision)
	}
	s.sessions.Touch(ctx, sess)

	ctx, cancel := context.WithTimeout(ctx, timeout.TurnTimeout)
	defer cancel()

	// Pleasantries short-circuit before any classification or provider call.
	cacheKey, cacheable := s.respCache.Key(message, sess.PersonaName)
	if cacheable {
		if entry := s.respCache.Get(cacheKey); entry != nil {
			return s.finishTurn(sess, message, nil, entry.Content, entry.Suggestions, "cache", llm.Usage{}, true), nil
		}
	}

	base, ok := s.personas.ForRole(sess.Role)
	if !ok {
		return nil, aerrors.New(aerrors.ErrCodeInvalidArgument, fmt.Sprintf("no persona for role %q", sess.Role))
	}

	it, err := s.chain.DetectIntent(ctx, message, base)
	if err != nil || it == nil {
		it = intent.Fallback()
	}

	// The permission gate runs against the base persona before any provider
	// or tool is touched. Out-of-scope requests get a scoped refusal reply.
	base, active, allowed := s.personas.Select(sess.Role, it.Category, message)
	if !allowed {
		refusal := refusalMessage(base, it.Category)
		return s.finishTurn(sess, message, it, refusal, capabilitySuggestions(base), "policy", llm.Usage{}, false), nil
	}

	sess.Append(&Turn{Role: store.MessageRoleUser, Content: message, Intent: it})

	resp, providerName, err := s.complete(ctx, sess, active, it)
	if err != nil {
		// The user turn stays; the client may retry against the same session.
		return nil, err
	}

	if cacheable {
		s.respCache.Set(cacheKey, resp.Content, resp.Suggestions, it.Operation())
	}

	assistant := &Turn{
		Role:       store.MessageRoleAssistant,
		Content:    resp.Content,
		Intent:     it,
		Provider:   providerName,
		TokensUsed: resp.Usage.TotalTokens,
	}
	sess.Append(assistant)
	sess.Provider = providerName

	return &Reply{
		SessionID:   sess.ID,
		MessageUID:  assistant.UID,
		Content:     resp.Content,
		Suggestions: resp.Suggestions,
		Intent:      it,
		Persona:     sess.PersonaName,
		Provider:    providerName,
		Usage:       resp.Usage,
	}, nil
}

// ProcessMessageStream runs one turn with incremental delivery. The
// assistant turn is recorded only when the stream completes; a canceled or
// failed stream keeps the user turn and discards the partial reply.
func (s *Service) ProcessMessageStream(ctx context.Context, sessionID, message string) (<-chan llm.StreamChunk, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, aerrors.New(aerrors.ErrCodeInvalidArgument, "message is empty")
	}

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	mu := s.sessions.Lock(sessionID)
	mu.Lock()

	if sess.Ended() {
		mu.Unlock()
		return nil, aerrors.New(aerrors.ErrCodeConversationEnded, "conversation has ended")
	}
	if decision := s.limiter.CheckLimit(ctx, sess.ActorID, ratelimit.ActionMessage, sess.OrgID); !decision.Allowed {
		mu.Unlock()
		return nil, rateLimitError(decision)
	}
	s.sessions.Touch(ctx, sess)

	base, ok := s.personas.ForRole(sess.Role)
	if !ok {
		mu.Unlock()
		return nil, aerrors.New(aerrors.ErrCodeInvalidArgument, fmt.Sprintf("no persona for role %q", sess.Role))
	}

	it, err := s.chain.DetectIntent(ctx, message, base)
	if err != nil || it == nil {
		it = intent.Fallback()
	}

	base, active, allowed := s.personas.Select(sess.Role, it.Category, message)
	if !allowed {
		refusal := refusalMessage(base, it.Category)
		s.finishTurn(sess, message, it, refusal, nil, "policy", llm.Usage{}, false)
		mu.Unlock()
		out := make(chan llm.StreamChunk, 2)
		out <- llm.StreamChunk{Content: refusal}
		out <- llm.StreamChunk{Done: true}
		close(out)
		return out, nil
	}

	sess.Append(&Turn{Role: store.MessageRoleUser, Content: message, Intent: it})

	// Tool rounds cannot interleave with a live stream; streamed turns are
	// text-only and tool-bearing flows use the non-streaming endpoint.
	req := s.buildRequest(sess, active, it)
	req.Tools = nil
	upstream, providerName, err := s.chain.Stream(ctx, req)
	if err != nil {
		mu.Unlock()
		return nil, aerrors.Wrap(aerrors.ErrCodeProviderUnavailable, "no completion backend available", err)
	}

	out := make(chan llm.StreamChunk)
	go func() {
		defer close(out)
		defer mu.Unlock()

		// A consumer that stops draining must not wedge the session: every
		// forward selects on ctx.Done, and an abandoned stream releases the
		// session mutex with the partial reply discarded.
		send := func(chunk llm.StreamChunk) bool {
			select {
			case out <- chunk:
				return true
			case <-ctx.Done():
				return false
			}
		}
		drain := func() {
			go func() {
				for range upstream {
				}
			}()
		}

		var sb strings.Builder
		for chunk := range upstream {
			if chunk.Err != nil {
				slog.Warn("stream aborted, partial reply discarded",
					"session", sess.ID, "provider", providerName, "error", chunk.Err)
				send(chunk)
				drain()
				return
			}
			if !send(chunk) {
				slog.Warn("stream abandoned, partial reply discarded",
					"session", sess.ID, "provider", providerName)
				drain()
				return
			}
			sb.WriteString(chunk.Content)
			if chunk.Done {
				break
			}
		}
		if ctx.Err() != nil {
			slog.Warn("stream canceled, partial reply discarded",
				"session", sess.ID, "provider", providerName)
			return
		}

		content := sb.String()
		assistant := &Turn{
			Role:       store.MessageRoleAssistant,
			Content:    content,
			Intent:     it,
			Provider:   providerName,
			TokensUsed: len(content) / 4,
		}
		sess.Append(assistant)
		sess.Provider = providerName
	}()
	return out, nil
}

// complete runs the completion rounds, executing tool calls between rounds
// up to the round cap.
func (s *Service) complete(ctx context.Context, sess *Session, active persona.Persona, it *intent.Intent) (*llm.Response, string, error) {
	req := s.buildRequest(sess, active, it)

	var resp *llm.Response
	var providerName string
	var err error
	if sess.Provider != "" {
		// The conversation stays on the backend that answered its first
		// turn. A mid-conversation failure is a retryable error on that
		// backend, not a silent hand-off to a different one.
		providerName = sess.Provider
		resp, err = s.chain.CompleteWith(ctx, providerName, req)
		if err != nil {
			return nil, "", aerrors.Wrap(aerrors.ErrCodeProviderFailed,
				fmt.Sprintf("backend %s failed mid-conversation", providerName), err)
		}
	} else {
		resp, providerName, err = s.chain.Complete(ctx, req)
		if err != nil {
			return nil, "", aerrors.Wrap(aerrors.ErrCodeProviderUnavailable, "no completion backend available", err)
		}
	}

	for round := 0; resp.FinishReason == llm.FinishToolCall && len(resp.ToolCalls) > 0; round++ {
		if round >= timeout.MaxToolRounds {
			slog.Warn("tool round cap reached", "session", sess.ID, "rounds", round)
			break
		}

		results := make([]tools.Result, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			var result *tools.Result
			if decision := s.limiter.CheckLimit(ctx, sess.ActorID, toolAction(call.Name), sess.OrgID); !decision.Allowed {
				result = tools.RateLimited(call, decision.RetryAfter)
			} else {
				result = s.executor.Execute(ctx, call, s.execContext(sess))
			}
			sess.Append(&Turn{
				Role:     store.MessageRoleTool,
				Content:  result.Content,
				Provider: providerName,
			})
			results = append(results, *result)
		}

		req.ToolCalls = resp.ToolCalls
		req.ToolResults = results
		// The backend that emitted the tool calls finishes its own round.
		resp, err = s.chain.CompleteWith(ctx, providerName, req)
		if err != nil {
			return nil, "", aerrors.Wrap(aerrors.ErrCodeProviderFailed, "completion failed after tool execution", err)
		}
	}

	return resp, providerName, nil
}

func (s *Service) buildRequest(sess *Session, active persona.Persona, it *intent.Intent) *llm.Request {
	return &llm.Request{
		Messages:  sess.History(),
		Persona:   active,
		Exec:      s.execContext(sess),
		Intent:    it,
		Tools:     s.tools.ForRole(sess.Role),
		MaxTokens: s.maxTokens,
	}
}

func (s *Service) execContext(sess *Session) tools.ExecContext {
	return tools.ExecContext{
		ActorID:   sess.ActorID,
		Role:      sess.Role,
		OrgID:     sess.OrgID,
		SessionID: sess.ID,
	}
}

// finishTurn records a user turn and a provider-free assistant turn, used
// for cached replies and permission refusals.
func (s *Service) finishTurn(sess *Session, message string, it *intent.Intent, content string, suggestions []string, provider string, usage llm.Usage, cached bool) *Reply {
	sess.Append(&Turn{Role: store.MessageRoleUser, Content: message, Intent: it})
	assistant := &Turn{
		Role:     store.MessageRoleAssistant,
		Content:  content,
		Intent:   it,
		Provider: provider,
	}
	sess.Append(assistant)

	return &Reply{
		SessionID:   sess.ID,
		MessageUID:  assistant.UID,
		Content:     content,
		Suggestions: suggestions,
		Intent:      it,
		Persona:     sess.PersonaName,
		Provider:    provider,
		Cached:      cached,
	}
}

// toolAction maps a tool to the budget category its execution consumes.
// Unknown names map to the empty action, which the limiter always allows.
func toolAction(name string) ratelimit.Action {
	switch name {
	case "get_booking_status":
		return ratelimit.ActionBookingAction
	case "get_earnings_summary":
		return ratelimit.ActionPaymentAction
	case "list_upcoming_lessons", "get_progress_summary", "get_org_stats", "get_referral_link":
		return ratelimit.ActionSearch
	}
	return ""
}

func rateLimitError(decision ratelimit.Decision) error {
	return aerrors.New(aerrors.ErrCodeRateLimitExceeded,
		fmt.Sprintf("rate limit exceeded, retry in %s", decision.RetryAfter.Round(time.Second)))
}

// refusalMessage tells the user their request is outside the persona's
// remit, naming what the persona does handle.
func refusalMessage(base persona.Persona, category intent.Category) string {
	return fmt.Sprintf("I can't help with %s topics from this account. I can help you with %s.",
		category, joinCategoryList(base.Categories()))
}

func capabilitySuggestions(base persona.Persona) []string {
	categories := base.Categories()
	out := make([]string, 0, 2)
	for i, c := range categories {
		if i >= 2 {
			break
		}
		out = append(out, fmt.Sprintf("Ask about %s", c))
	}
	return out
}

func joinCategoryList(categories []intent.Category) string {
	parts := make([]string, len(categories))
	for i, c := range categories {
		parts[i] = string(c)
	}
	return strings.Join(parts, ", ")
}
