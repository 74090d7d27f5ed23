package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lessonloop/assistant/store"
)

func (d *DB) CreateConversation(ctx context.Context, create *store.Conversation) (*store.Conversation, error) {
	fields := []string{"uid", "actor_id", "role", "org_id", "persona", "provider", "end_reason", "message_count", "started_ts", "ended_ts"}
	args := []any{create.UID, create.ActorID, create.Role, create.OrgID, create.Persona, create.Provider, create.EndReason, create.MessageCount, create.StartedTs, create.EndedTs}

	stmt := `INSERT INTO conversation (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)`
	result, err := d.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation id: %w", err)
	}
	create.ID = int32(id)
	return create, nil
}

func (d *DB) ListConversations(ctx context.Context, find *store.FindConversation) ([]*store.Conversation, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.UID != nil {
		where, args = append(where, "uid = ?"), append(args, *find.UID)
	}
	if find.ActorID != nil {
		where, args = append(where, "actor_id = ?"), append(args, *find.ActorID)
	}
	if find.OrgID != nil {
		where, args = append(where, "org_id = ?"), append(args, *find.OrgID)
	}

	query := `SELECT id, uid, actor_id, role, org_id, persona, provider, end_reason, message_count, started_ts, ended_ts
		FROM conversation WHERE ` + strings.Join(where, " AND ") + ` ORDER BY ended_ts DESC`
	if find.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	list := make([]*store.Conversation, 0)
	for rows.Next() {
		c := &store.Conversation{}
		if err := rows.Scan(&c.ID, &c.UID, &c.ActorID, &c.Role, &c.OrgID, &c.Persona, &c.Provider, &c.EndReason, &c.MessageCount, &c.StartedTs, &c.EndedTs); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}
	return list, nil
}

func (d *DB) UpdateConversation(ctx context.Context, update *store.UpdateConversation) (*store.Conversation, error) {
	set, args := []string{}, []any{}

	if update.Persona != nil {
		set, args = append(set, "persona = ?"), append(args, *update.Persona)
	}
	if update.Provider != nil {
		set, args = append(set, "provider = ?"), append(args, *update.Provider)
	}
	if update.EndReason != nil {
		set, args = append(set, "end_reason = ?"), append(args, *update.EndReason)
	}
	if update.MessageCount != nil {
		set, args = append(set, "message_count = ?"), append(args, *update.MessageCount)
	}
	if update.EndedTs != nil {
		set, args = append(set, "ended_ts = ?"), append(args, *update.EndedTs)
	}
	if len(set) == 0 {
		return nil, fmt.Errorf("no fields to update")
	}

	args = append(args, update.ID)
	stmt := `UPDATE conversation SET ` + strings.Join(set, ", ") + ` WHERE id = ?`
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return nil, fmt.Errorf("failed to update conversation: %w", err)
	}

	list, err := d.ListConversations(ctx, &store.FindConversation{ID: &update.ID})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("conversation not found")
	}
	return list[0], nil
}

func (d *DB) DeleteConversation(ctx context.Context, delete *store.DeleteConversation) error {
	// Delete messages first.
	if _, err := d.db.ExecContext(ctx, `DELETE FROM conversation_message WHERE conversation_id = ?`, delete.ID); err != nil {
		return fmt.Errorf("failed to delete conversation messages: %w", err)
	}
	result, err := d.db.ExecContext(ctx, `DELETE FROM conversation WHERE id = ?`, delete.ID)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("conversation not found")
	}
	return nil
}

func (d *DB) CreateConversationMessage(ctx context.Context, create *store.ConversationMessage) (*store.ConversationMessage, error) {
	fields := []string{"uid", "conversation_id", "seq", "role", "content", "intent_category", "intent_action", "provider", "tokens_used", "feedback_rating", "feedback_comment", "created_ts"}
	args := []any{create.UID, create.ConversationID, create.Seq, string(create.Role), create.Content, create.IntentCategory, create.IntentAction, create.Provider, create.TokensUsed, create.FeedbackRating, create.FeedbackComment, create.CreatedTs}

	stmt := `INSERT INTO conversation_message (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)`
	result, err := d.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation message id: %w", err)
	}
	create.ID = int32(id)
	return create, nil
}

func (d *DB) ListConversationMessages(ctx context.Context, find *store.FindConversationMessage) ([]*store.ConversationMessage, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.UID != nil {
		where, args = append(where, "uid = ?"), append(args, *find.UID)
	}
	if find.ConversationID != nil {
		where, args = append(where, "conversation_id = ?"), append(args, *find.ConversationID)
	}

	query := `SELECT id, uid, conversation_id, seq, role, content, intent_category, intent_action, provider, tokens_used, feedback_rating, feedback_comment, created_ts
		FROM conversation_message WHERE ` + strings.Join(where, " AND ") + ` ORDER BY seq ASC`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversation messages: %w", err)
	}
	defer rows.Close()

	list := make([]*store.ConversationMessage, 0)
	for rows.Next() {
		m := &store.ConversationMessage{}
		var role string
		if err := rows.Scan(&m.ID, &m.UID, &m.ConversationID, &m.Seq, &role, &m.Content, &m.IntentCategory, &m.IntentAction, &m.Provider, &m.TokensUsed, &m.FeedbackRating, &m.FeedbackComment, &m.CreatedTs); err != nil {
			return nil, fmt.Errorf("failed to scan conversation message: %w", err)
		}
		m.Role = store.MessageRole(role)
		list = append(list, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversation messages: %w", err)
	}
	return list, nil
}

func (d *DB) CountConversationMessages(ctx context.Context, conversationID int32) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conversation_message WHERE conversation_id = ?`, conversationID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count conversation messages: %w", err)
	}
	return count, nil
}

func (d *DB) UpdateConversationMessageFeedback(ctx context.Context, update *store.UpdateMessageFeedback) error {
	result, err := d.db.ExecContext(ctx,
		`UPDATE conversation_message SET feedback_rating = ?, feedback_comment = ? WHERE uid = ?`,
		update.Rating, update.Comment, update.UID,
	)
	if err != nil {
		return fmt.Errorf("failed to update message feedback: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
