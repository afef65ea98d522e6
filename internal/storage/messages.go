package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tasuku-ai/tasuku/internal/model"
)

// AppendMessage inserts a message and advances the parent conversation's
// updated_at in one transaction. Messages are append-only; there is no
// update or reorder path anywhere in this package.
func (db *DB) AppendMessage(ctx context.Context, conversationID uuid.UUID, role model.Role, content string) (model.Message, error) {
	m := model.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return model.Message{}, fmt.Errorf("storage: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING seq`,
		m.ID, m.ConversationID, m.Role, m.Content, m.CreatedAt,
	).Scan(&m.Seq)
	if err != nil {
		return model.Message{}, fmt.Errorf("storage: append message: %w", err)
	}

	// GREATEST keeps updated_at monotone even if this write's clock
	// reads behind a concurrent append's.
	if _, err := tx.Exec(ctx,
		`UPDATE conversations SET updated_at = GREATEST(updated_at, $2) WHERE id = $1`,
		m.ConversationID, m.CreatedAt,
	); err != nil {
		return model.Message{}, fmt.Errorf("storage: touch conversation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Message{}, fmt.Errorf("storage: commit append: %w", err)
	}
	return m, nil
}

// ListMessages returns every message in a conversation in creation order,
// ties broken by insertion order. This is the sole source of multi-turn
// context: the chat service reloads it on every turn instead of keeping
// any in-process history.
func (db *DB) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]model.Message, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, conversation_id, role, content, created_at, seq
		 FROM messages
		 WHERE conversation_id = $1
		 ORDER BY created_at ASC, seq ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list messages: %w", err)
	}
	defer rows.Close()

	msgs := []model.Message{}
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt, &m.Seq); err != nil {
			return nil, fmt.Errorf("storage: scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: iterate messages: %w", err)
	}
	return msgs, nil
}
