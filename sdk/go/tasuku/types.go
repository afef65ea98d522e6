package tasuku

import (
	"time"

	"github.com/google/uuid"
)

// Task is a stored task belonging to the authenticated user.
type Task struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	Title       string    `json:"title"`
	Description *string   `json:"description,omitempty"`
	IsCompleted bool      `json:"is_completed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Conversation is a chat thread between the user and the assistant.
type Conversation struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Title     *string   `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one persisted message in a conversation.
type Message struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// ToolCall records one tool invocation the assistant performed during a turn.
type ToolCall struct {
	ToolName   string         `json:"tool_name"`
	Parameters map[string]any `json:"parameters"`
	Result     map[string]any `json:"result"`
	Success    bool           `json:"success"`
}

// ChatTurn is the result of one conversational turn.
type ChatTurn struct {
	ConversationID   uuid.UUID  `json:"conversation_id"`
	AssistantMessage string     `json:"assistant_message"`
	ToolCalls        []ToolCall `json:"tool_calls"`
	CreatedAt        time.Time  `json:"created_at"`
}

// ConversationHistory is a conversation with its full message log.
type ConversationHistory struct {
	Conversation Conversation `json:"conversation"`
	Messages     []Message    `json:"messages"`
	Count        int          `json:"count"`
}

// UpdateTaskRequest carries the fields to change on a task.
// Nil fields are left untouched; at least one must be set.
type UpdateTaskRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}

// HealthResponse is the server's health report.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Postgres string `json:"postgres"`
	// Uptime is reported in whole seconds.
	Uptime int64 `json:"uptime"`
}
