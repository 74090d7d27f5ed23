package chat

import (
	"context"
	"log/slog"
	"time"

	"github.com/lessonloop/assistant/plugin/timeout"
	"github.com/lessonloop/assistant/store"
)

// Archiver moves finished sessions into the archival store.
type Archiver struct {
	store *store.Store
}

func NewArchiver(s *store.Store) *Archiver {
	return &Archiver{store: s}
}

// Archive persists a finished session. Sessions with no turns leave no
// trace. The underlying store upsert keeps this idempotent, so expiry and
// explicit end racing each other is harmless.
func (a *Archiver) Archive(ctx context.Context, sess *Session, reason string) error {
	if len(sess.Turns) == 0 {
		return nil
	}

	endedAt := sess.EndedAt
	if endedAt.IsZero() {
		endedAt = time.Now()
	}
	if sess.EndReason == "" {
		sess.EndReason = reason
	}

	conv := &store.Conversation{
		UID:          sess.ID,
		ActorID:      sess.ActorID,
		Role:         string(sess.Role),
		OrgID:        sess.OrgID,
		Persona:      sess.PersonaName,
		Provider:     sess.Provider,
		EndReason:    sess.EndReason,
		MessageCount: len(sess.Turns),
		StartedTs:    sess.StartedAt.Unix(),
		EndedTs:      endedAt.Unix(),
	}

	messages := make([]*store.ConversationMessage, 0, len(sess.Turns))
	for i, turn := range sess.Turns {
		msg := &store.ConversationMessage{
			UID:        turn.UID,
			Seq:        i + 1,
			Role:       turn.Role,
			Content:    turn.Content,
			Provider:   turn.Provider,
			TokensUsed: turn.TokensUsed,
			CreatedTs:  turn.CreatedAt.Unix(),
		}
		if turn.Intent != nil {
			msg.IntentCategory = string(turn.Intent.Category)
			msg.IntentAction = turn.Intent.Action
		}
		messages = append(messages, msg)
	}

	_, err := a.store.ArchiveConversation(ctx, conv, messages)
	if err != nil {
		slog.Error("conversation archival failed",
			"session", sess.ID, "reason", reason, "error", err)
		return err
	}
	slog.Info("conversation archived",
		"session", sess.ID, "turns", len(messages), "reason", sess.EndReason)
	return nil
}

// ArchiveExpired is the session-expiry callback. Expiry fires outside any
// request, so it gets its own deadline.
func (a *Archiver) ArchiveExpired(sess *Session, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout.TurnTimeout)
	defer cancel()
	_ = a.Archive(ctx, sess, reason)
}
