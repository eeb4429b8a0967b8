package repo

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yanqian/ragserver/internal/domain/rag"
)

// PostgresConversationRepository persists conversations and their messages
// in Postgres.
type PostgresConversationRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresConversationRepository constructs the repository.
func NewPostgresConversationRepository(pool *pgxpool.Pool) *PostgresConversationRepository {
	return &PostgresConversationRepository{pool: pool}
}

// EnsureConversation inserts the conversation row if it does not already
// exist, idempotently.
func (r *PostgresConversationRepository) EnsureConversation(ctx context.Context, id rag.ConversationID) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO conversations (id, created_at, updated_at)
		VALUES ($1, NOW(), NOW())
		ON CONFLICT (id) DO NOTHING
	`, id)
	return err
}

// AppendMessage inserts a turn and bumps the parent conversation's
// updated_at.
func (r *PostgresConversationRepository) AppendMessage(ctx context.Context, msg rag.Message) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO conversation_messages (id, conversation_id, role, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, msg.ID, msg.ConversationID, msg.Role.String(), msg.Content, msg.CreatedAt)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `UPDATE conversations SET updated_at = NOW() WHERE id = $1`, msg.ConversationID)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ListMessages returns every message in a conversation, oldest first.
func (r *PostgresConversationRepository) ListMessages(ctx context.Context, id rag.ConversationID) ([]rag.Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, conversation_id, role, content, created_at
		FROM conversation_messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []rag.Message
	for rows.Next() {
		var (
			msg      rag.Message
			roleName string
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &roleName, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, err
		}
		msg.Role = parseMessageRole(roleName)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func parseMessageRole(raw string) rag.MessageRole {
	switch raw {
	case "user":
		return rag.MessageRoleUser
	case "assistant":
		return rag.MessageRoleAssistant
	default:
		return rag.MessageRoleSystem
	}
}

var _ rag.ConversationRepository = (*PostgresConversationRepository)(nil)
