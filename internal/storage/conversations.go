package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tasuku-ai/tasuku/internal/model"
)

// ErrConversationForbidden is returned when a conversation exists but is
// owned by a different user. Unlike tasks, conversation ownership is NOT
// folded into not-found: conversation IDs are only ever minted by this
// service and handed to their owner, so distinguishing the two leaks
// nothing useful while giving clients an actionable signal.
var ErrConversationForbidden = errors.New("storage: conversation owned by another user")

// CreateConversation inserts an empty conversation owned by userID.
func (db *DB) CreateConversation(ctx context.Context, userID uuid.UUID, title *string) (model.Conversation, error) {
	now := time.Now().UTC()
	c := model.Conversation{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO conversations (id, user_id, title, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.UserID, c.Title, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return model.Conversation{}, fmt.Errorf("storage: create conversation: %w", err)
	}
	return c, nil
}

// GetConversation retrieves a conversation by id and verifies ownership.
// Returns ErrNotFound if no row exists, ErrConversationForbidden if the
// row belongs to a different user.
func (db *DB) GetConversation(ctx context.Context, userID, conversationID uuid.UUID) (model.Conversation, error) {
	var c model.Conversation
	err := db.pool.QueryRow(ctx,
		`SELECT id, user_id, title, created_at, updated_at
		 FROM conversations WHERE id = $1`,
		conversationID,
	).Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Conversation{}, ErrNotFound
		}
		return model.Conversation{}, fmt.Errorf("storage: get conversation: %w", err)
	}
	if c.UserID != userID {
		return model.Conversation{}, ErrConversationForbidden
	}
	return c, nil
}

// ListConversations returns all conversations owned by userID, most
// recently active first.
func (db *DB) ListConversations(ctx context.Context, userID uuid.UUID) ([]model.Conversation, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, user_id, title, created_at, updated_at
		 FROM conversations
		 WHERE user_id = $1
		 ORDER BY updated_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list conversations: %w", err)
	}
	defer rows.Close()

	convs := []model.Conversation{}
	for rows.Next() {
		var c model.Conversation
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan conversation: %w", err)
		}
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: iterate conversations: %w", err)
	}
	return convs, nil
}

// DeleteConversation permanently removes a conversation owned by userID.
// Messages go with it via ON DELETE CASCADE.
func (db *DB) DeleteConversation(ctx context.Context, userID, conversationID uuid.UUID) error {
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM conversations WHERE id = $1 AND user_id = $2`,
		conversationID, userID,
	)
	if err != nil {
		return fmt.Errorf("storage: delete conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
