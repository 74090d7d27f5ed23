package store

import (
	"context"
	"fmt"
	"time"

	"github.com/lessonloop/assistant/internal/profile"
	"github.com/lessonloop/assistant/store/cache"
)

// Store provides database access to archived conversations.
type Store struct {
	profile *profile.Profile
	driver  Driver

	// conversationCache keeps recently archived headers hot for the
	// transcript and feedback endpoints.
	conversationCache *cache.Cache
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
		conversationCache: cache.New(cache.Config{
			DefaultTTL:      10 * time.Minute,
			CleanupInterval: 5 * time.Minute,
			MaxItems:        1000,
		}),
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	s.conversationCache.Close()
	return s.driver.Close()
}

// GetConversationByUID returns the archived header, or nil when absent.
func (s *Store) GetConversationByUID(ctx context.Context, uid string) (*Conversation, error) {
	if cached, ok := s.conversationCache.Get(ctx, uid); ok {
		return cached.(*Conversation), nil
	}

	list, err := s.driver.ListConversations(ctx, &FindConversation{UID: &uid})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	s.conversationCache.Set(ctx, uid, list[0], 0)
	return list[0], nil
}

// ListConversations returns archived headers matching find.
func (s *Store) ListConversations(ctx context.Context, find *FindConversation) ([]*Conversation, error) {
	return s.driver.ListConversations(ctx, find)
}

// ListConversationMessages returns the archived transcript in seq order.
func (s *Store) ListConversationMessages(ctx context.Context, conversationID int32) ([]*ConversationMessage, error) {
	return s.driver.ListConversationMessages(ctx, &FindConversationMessage{ConversationID: &conversationID})
}

// ArchiveConversation persists a finished conversation. The operation is
// idempotent on the conversation UID: re-archiving an already stored
// conversation updates the header and never duplicates messages.
func (s *Store) ArchiveConversation(ctx context.Context, conv *Conversation, messages []*ConversationMessage) (*Conversation, error) {
	existing, err := s.GetConversationByUID(ctx, conv.UID)
	if err != nil {
		return nil, fmt.Errorf("look up conversation %s: %w", conv.UID, err)
	}

	if existing == nil {
		existing, err = s.driver.CreateConversation(ctx, conv)
		if err != nil {
			return nil, fmt.Errorf("create conversation %s: %w", conv.UID, err)
		}
	} else {
		existing, err = s.driver.UpdateConversation(ctx, &UpdateConversation{
			ID:           existing.ID,
			Persona:      &conv.Persona,
			Provider:     &conv.Provider,
			EndReason:    &conv.EndReason,
			MessageCount: &conv.MessageCount,
			EndedTs:      &conv.EndedTs,
		})
		if err != nil {
			return nil, fmt.Errorf("update conversation %s: %w", conv.UID, err)
		}
	}

	stored, err := s.driver.CountConversationMessages(ctx, existing.ID)
	if err != nil {
		return nil, fmt.Errorf("count messages of %s: %w", conv.UID, err)
	}
	if stored == 0 {
		for _, msg := range messages {
			msg.ConversationID = existing.ID
			if _, err := s.driver.CreateConversationMessage(ctx, msg); err != nil {
				return nil, fmt.Errorf("archive message %d of %s: %w", msg.Seq, conv.UID, err)
			}
		}
	}

	s.conversationCache.Set(ctx, existing.UID, existing, 0)
	return existing, nil
}

// SubmitFeedback records a rating on an archived message.
func (s *Store) SubmitFeedback(ctx context.Context, update *UpdateMessageFeedback) error {
	if update.Rating < -1 || update.Rating > 1 {
		return fmt.Errorf("rating must be -1, 0 or 1, got %d", update.Rating)
	}
	return s.driver.UpdateConversationMessageFeedback(ctx, update)
}
