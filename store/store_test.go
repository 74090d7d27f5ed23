package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lessonloop/assistant/internal/profile"
	"github.com/lessonloop/assistant/store"
	"github.com/lessonloop/assistant/store/db/sqlite"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	p := &profile.Profile{
		Mode:   "dev",
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "assistant_test.db"),
	}
	driver, err := sqlite.NewDB(p)
	require.NoError(t, err)

	s := store.New(driver, p)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleConversation() (*store.Conversation, []*store.ConversationMessage) {
	now := time.Now().Unix()
	conv := &store.Conversation{
		UID:          "sess-abc123",
		ActorID:      "student-1",
		Role:         "student",
		Persona:      "study-buddy",
		Provider:     "offline",
		EndReason:    "user_ended",
		MessageCount: 2,
		StartedTs:    now - 60,
		EndedTs:      now,
	}
	messages := []*store.ConversationMessage{
		{
			UID:            "msg-1",
			Seq:            1,
			Role:           store.MessageRoleUser,
			Content:        "when is my next lesson?",
			IntentCategory: "scheduling",
			IntentAction:   "upcoming",
			CreatedTs:      now - 50,
		},
		{
			UID:        "msg-2",
			Seq:        2,
			Role:       store.MessageRoleAssistant,
			Content:    "Your next lesson is tomorrow at 16:00.",
			Provider:   "offline",
			TokensUsed: 12,
			CreatedTs:  now - 40,
		},
	}
	return conv, messages
}

func TestArchiveConversationRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, messages := sampleConversation()
	archived, err := s.ArchiveConversation(ctx, conv, messages)
	require.NoError(t, err)
	require.NotZero(t, archived.ID)

	got, err := s.GetConversationByUID(ctx, conv.UID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "student-1", got.ActorID)
	assert.Equal(t, 2, got.MessageCount)

	transcript, err := s.ListConversationMessages(ctx, archived.ID)
	require.NoError(t, err)
	require.Len(t, transcript, 2)
	assert.Equal(t, store.MessageRoleUser, transcript[0].Role)
	assert.Equal(t, "scheduling", transcript[0].IntentCategory)
	assert.Equal(t, 2, transcript[1].Seq)
}

func TestArchiveConversationIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, messages := sampleConversation()
	first, err := s.ArchiveConversation(ctx, conv, messages)
	require.NoError(t, err)

	// Re-archiving the same conversation must not duplicate anything.
	conv2, messages2 := sampleConversation()
	conv2.EndReason = "expired"
	second, err := s.ArchiveConversation(ctx, conv2, messages2)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "expired", second.EndReason)

	transcript, err := s.ListConversationMessages(ctx, first.ID)
	require.NoError(t, err)
	assert.Len(t, transcript, 2)

	list, err := s.ListConversations(ctx, &store.FindConversation{UID: &conv.UID})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestGetConversationByUIDMissing(t *testing.T) {
	s := newTestStore(t)

	got, err := s.GetConversationByUID(context.Background(), "sess-nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSubmitFeedback(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, messages := sampleConversation()
	archived, err := s.ArchiveConversation(ctx, conv, messages)
	require.NoError(t, err)

	err = s.SubmitFeedback(ctx, &store.UpdateMessageFeedback{
		UID:     "msg-2",
		Rating:  1,
		Comment: "clear answer",
	})
	require.NoError(t, err)

	transcript, err := s.ListConversationMessages(ctx, archived.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, transcript[1].FeedbackRating)
	assert.Equal(t, "clear answer", transcript[1].FeedbackComment)

	err = s.SubmitFeedback(ctx, &store.UpdateMessageFeedback{UID: "msg-2", Rating: 5})
	require.Error(t, err)

	err = s.SubmitFeedback(ctx, &store.UpdateMessageFeedback{UID: "msg-nope", Rating: 1})
	require.Error(t, err)
}
