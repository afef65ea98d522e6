package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MaxMessageLen bounds a single chat message. Matches the limit enforced
// on the /v1/chat request body so a persisted message can always be
// replayed through the same endpoint.
const MaxMessageLen = 50000

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Conversation groups the messages of one chat thread. UpdatedAt advances
// on every appended message, so listing by updated_at descending yields
// most-recently-active first.
type Conversation struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Title     *string   `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one turn fragment in a conversation. Messages are append-only:
// never mutated or reordered after insert. Ordering is created_at ascending
// with the serial seq column breaking ties between writes that land in the
// same clock tick.
type Message struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`

	// Seq is the insertion-order tiebreaker. Assigned by the database,
	// never set by callers.
	Seq int64 `json:"-"`
}

// ValidateMessageContent checks the 1–50,000 character content constraint.
func ValidateMessageContent(content string) error {
	if content == "" {
		return fmt.Errorf("message cannot be empty")
	}
	if len([]rune(content)) > MaxMessageLen {
		return fmt.Errorf("message exceeds maximum length of %d characters", MaxMessageLen)
	}
	return nil
}
