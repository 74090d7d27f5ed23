package store

import (
	"context"
	"database/sql"
)

// Driver is the database driver contract. Both SQLite and PostgreSQL
// implement conversation archival in full; SQLite is the development
// default, PostgreSQL the production driver.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	IsInitialized(ctx context.Context) (bool, error)

	// Conversation model related methods.
	CreateConversation(ctx context.Context, create *Conversation) (*Conversation, error)
	ListConversations(ctx context.Context, find *FindConversation) ([]*Conversation, error)
	UpdateConversation(ctx context.Context, update *UpdateConversation) (*Conversation, error)
	DeleteConversation(ctx context.Context, delete *DeleteConversation) error

	// ConversationMessage model related methods.
	CreateConversationMessage(ctx context.Context, create *ConversationMessage) (*ConversationMessage, error)
	ListConversationMessages(ctx context.Context, find *FindConversationMessage) ([]*ConversationMessage, error)
	CountConversationMessages(ctx context.Context, conversationID int32) (int, error)
	UpdateConversationMessageFeedback(ctx context.Context, update *UpdateMessageFeedback) error
}
