// Package chat orchestrates conversations: session lifecycle, intent
// classification, persona dispatch, completion with tool rounds, and
// archival of finished conversations.
package chat

import (
	"context"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/lessonloop/assistant/plugin/intent"
	"github.com/lessonloop/assistant/plugin/llm"
	"github.com/lessonloop/assistant/plugin/platform"
	aerrors "github.com/lessonloop/assistant/server/internal/errors"
	"github.com/lessonloop/assistant/store"
	"github.com/lessonloop/assistant/store/cache"
)

const (
	// SessionIdleTTL is the sliding inactivity window of a live session.
	SessionIdleTTL = 30 * time.Minute
	// SessionMaxAge is the hard ceiling; no session outlives it regardless
	// of activity.
	SessionMaxAge = 24 * time.Hour

	maxLiveSessions = 10000
)

// Turn is one in-memory conversation entry of a live session.
type Turn struct {
	UID        string
	Role       store.MessageRole
	Content    string
	Intent     *intent.Intent
	Provider   string
	TokensUsed int
	CreatedAt  time.Time
}

// Session is the live conversation state. It exists only in the session
// cache; the archival store receives it when the session ends or expires.
type Session struct {
	ID          string
	ActorID     string
	Role        platform.Role
	OrgID       string
	PersonaName string
	Locale      string
	Provider    string
	StartedAt   time.Time
	EndedAt     time.Time
	EndReason   string
	Turns       []*Turn
}

// Ended reports whether the session has been closed.
func (s *Session) Ended() bool {
	return !s.EndedAt.IsZero()
}

// Append adds a turn, stamping its UID and timestamp.
func (s *Session) Append(turn *Turn) {
	if turn.UID == "" {
		turn.UID = shortuuid.New()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}
	s.Turns = append(s.Turns, turn)
}

// History renders the user and assistant turns as provider messages, newest
// last. Tool turns are internal and stay out of replayed history.
func (s *Session) History() []llm.Message {
	out := make([]llm.Message, 0, len(s.Turns))
	for _, t := range s.Turns {
		if t.Role != store.MessageRoleUser && t.Role != store.MessageRoleAssistant {
			continue
		}
		out = append(out, llm.Message{Role: string(t.Role), Content: t.Content})
	}
	return out
}

// ExpireFunc receives sessions removed by TTL expiry or capacity pressure.
type ExpireFunc func(sess *Session, reason string)

// SessionManager owns the live session cache and the per-session locks that
// serialize concurrent turns on the same session.
type SessionManager struct {
	cache    *cache.Cache
	onExpire ExpireFunc

	locks sync.Map // session id -> *sync.Mutex
}

// NewSessionManager creates the manager. onExpire, when non-nil, is invoked
// for every session the cache drops on its own; explicit EndSession removal
// does not go through it.
func NewSessionManager(onExpire ExpireFunc) *SessionManager {
	m := &SessionManager{onExpire: onExpire}
	m.cache = cache.New(cache.Config{
		DefaultTTL:      SessionIdleTTL,
		CleanupInterval: time.Minute,
		MaxItems:        maxLiveSessions,
		OnEviction: func(key string, value any) {
			m.locks.Delete(key)
			if m.onExpire == nil {
				return
			}
			if sess, ok := value.(*Session); ok {
				m.onExpire(sess, "expired")
			}
		},
	})
	return m
}

// Start creates a live session for the actor.
func (m *SessionManager) Start(ctx context.Context, actorID string, role platform.Role, orgID, personaName, locale string) *Session {
	sess := &Session{
		ID:          shortuuid.New(),
		ActorID:     actorID,
		Role:        role,
		OrgID:       orgID,
		PersonaName: personaName,
		Locale:      locale,
		StartedAt:   time.Now(),
	}
	m.cache.Set(ctx, sess.ID, sess, SessionIdleTTL)
	return sess
}

// Get returns the live session or a SESSION_NOT_FOUND error. Unknown and
// expired sessions are indistinguishable by design.
func (m *SessionManager) Get(ctx context.Context, id string) (*Session, error) {
	value, ok := m.cache.Get(ctx, id)
	if !ok {
		return nil, aerrors.New(aerrors.ErrCodeSessionNotFound, "session not found or expired: "+id)
	}
	return value.(*Session), nil
}

// Touch slides the session's inactivity window, capped at the session's
// hard age ceiling.
func (m *SessionManager) Touch(ctx context.Context, sess *Session) bool {
	return m.cache.Touch(ctx, sess.ID, SessionIdleTTL, sess.StartedAt.Add(SessionMaxAge))
}

// Remove drops the session without invoking the expiry callback. The caller
// archives it explicitly.
func (m *SessionManager) Remove(ctx context.Context, id string) {
	m.cache.Delete(ctx, id)
	m.locks.Delete(id)
}

// Lock returns the mutex serializing turns of one session.
func (m *SessionManager) Lock(id string) *sync.Mutex {
	mu, _ := m.locks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Active returns the number of live sessions.
func (m *SessionManager) Active(ctx context.Context) int {
	return len(m.cache.Keys(ctx))
}

// Close stops the cache janitor.
func (m *SessionManager) Close() {
	m.cache.Close()
}
