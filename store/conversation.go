package store

// Conversation is the archived header of one finished conversation. Live
// conversations exist only in the session cache; a row appears here exactly
// once, when the conversation ends.
type Conversation struct {
	ID           int32
	UID          string
	ActorID      string
	Role         string
	OrgID        string
	Persona      string
	Provider     string
	EndReason    string
	MessageCount int
	StartedTs    int64
	EndedTs      int64
}

type FindConversation struct {
	ID      *int32
	UID     *string
	ActorID *string
	OrgID   *string
	Limit   int
}

type UpdateConversation struct {
	ID           int32
	Persona      *string
	Provider     *string
	EndReason    *string
	MessageCount *int
	EndedTs      *int64
}

type DeleteConversation struct {
	ID int32
}

type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleSystem    MessageRole = "system"
	MessageRoleTool      MessageRole = "tool"
)

// ConversationMessage is one archived turn entry. Seq preserves the exact
// conversation order; feedback lands on the message it rated.
type ConversationMessage struct {
	ID              int32
	UID             string
	ConversationID  int32
	Seq             int
	Role            MessageRole
	Content         string
	IntentCategory  string
	IntentAction    string
	Provider        string
	TokensUsed      int
	FeedbackRating  int // 1 up, -1 down, 0 none
	FeedbackComment string
	CreatedTs       int64
}

type FindConversationMessage struct {
	ID             *int32
	UID            *string
	ConversationID *int32
}

// UpdateMessageFeedback records a thumbs rating on an archived message.
type UpdateMessageFeedback struct {
	UID     string
	Rating  int
	Comment string
}
