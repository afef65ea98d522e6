package tasuku

import (
	"time"

	"github.com/google/uuid"
)

// Task is the public representation of a stored task.
// It is a curated view of the internal task model for use in extension
// interfaces. No internal package imports — safe to use from outside
// the module.
type Task struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Title       string
	Description *string
	IsCompleted bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ToolCall records one tool invocation performed during a chat turn.
type ToolCall struct {
	ToolName   string
	Parameters map[string]any
	Result     map[string]any
	Success    bool
}

// Turn is a completed conversational turn as delivered to TurnHooks.
type Turn struct {
	ConversationID   uuid.UUID
	UserID           uuid.UUID
	AssistantMessage string
	ToolCalls        []ToolCall
	CreatedAt        time.Time
}

// ToolError carries a structured failure out of an extension tool handler.
// The code and message are surfaced to the reasoning model inside the
// tool result envelope; any other error type maps to a generic code.
type ToolError struct {
	Code    string
	Message string
}

func (e *ToolError) Error() string {
	return e.Code + ": " + e.Message
}
