package model

import (
	"time"

	"github.com/google/uuid"
)

// APIResponse is the standard success envelope for all HTTP endpoints.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error code constants shared by the HTTP layer and the turn orchestration
// service. The tool adapter layer has its own smaller taxonomy (see
// internal/tools); the two meet in the chat service, which maps tool
// failures into plain language rather than re-raising their codes.
const (
	ErrCodeInvalidInput      = "VALIDATION_ERROR"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeInternalError     = "INTERNAL_ERROR"
	ErrCodeRateLimited       = "RATE_LIMITED"
	ErrCodeReasoningTimeout  = "REASONING_TIMEOUT"
	ErrCodeReasoningRejected = "REASONING_REJECTED"
)

// ChatRequest is the request body for POST /v1/chat.
// ConversationID is omitted to start a new conversation.
type ChatRequest struct {
	Message        string     `json:"message"`
	ConversationID *uuid.UUID `json:"conversation_id,omitempty"`
}

// ToolCall records one tool invocation performed during a turn.
// It exists only in the turn response and in logs; it is never stored.
type ToolCall struct {
	ToolName   string         `json:"tool_name"`
	Parameters map[string]any `json:"parameters"`
	Result     map[string]any `json:"result"`
	Success    bool           `json:"success"`
}

// ChatResponse is the response body for POST /v1/chat.
type ChatResponse struct {
	ConversationID   uuid.UUID  `json:"conversation_id"`
	AssistantMessage string     `json:"assistant_message"`
	ToolCalls        []ToolCall `json:"tool_calls"`
	CreatedAt        time.Time  `json:"created_at"`
}

// CreateTaskRequest is the request body for POST /v1/tasks.
type CreateTaskRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
}

// SignupRequest is the request body for POST /auth/signup.
type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the request body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse is returned by signup and login.
type TokenResponse struct {
	Token     string    `json:"token"`
	UserID    uuid.UUID `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}
