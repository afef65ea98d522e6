// Package chat provides the turn orchestration service: it reconstructs
// conversation context from the database, runs the reasoning agent, and
// persists the exchange. The service keeps no in-memory conversation
// state, so any instance can process any turn.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/tasuku-ai/tasuku/internal/agent"
	"github.com/tasuku-ai/tasuku/internal/model"
	"github.com/tasuku-ai/tasuku/internal/storage"
	"github.com/tasuku-ai/tasuku/internal/telemetry"
)

// Turn failure classes. The HTTP layer maps these onto response codes;
// everything else surfaces as an internal error.
var (
	// ErrReasoningTimeout covers both a reasoning call that ran out of
	// time and a loop that hit its iteration bound without converging.
	ErrReasoningTimeout = errors.New("chat: reasoning did not complete in time")

	// ErrReasoningRejected covers requests the reasoning service
	// refused outright (bad request, policy rejection).
	ErrReasoningRejected = errors.New("chat: reasoning service rejected the request")

	// ErrInvalidMessage marks a message that failed content validation.
	ErrInvalidMessage = errors.New("chat: invalid message")
)

// TurnRunner resolves one conversational turn. *agent.Orchestrator
// satisfies it.
type TurnRunner interface {
	Run(ctx context.Context, userID uuid.UUID, history []model.Message, userMessage string) (*agent.Result, error)
}

// Service encapsulates turn processing shared by the HTTP and MCP
// surfaces.
type Service struct {
	db     *storage.DB
	runner TurnRunner
	logger *slog.Logger

	turnDuration metric.Float64Histogram
	turnCounter  metric.Int64Counter
}

// New creates a chat Service.
func New(db *storage.DB, runner TurnRunner, logger *slog.Logger) *Service {
	meter := telemetry.Meter("tasuku/chat")
	turnDur, _ := meter.Float64Histogram("tasuku.chat.turn.duration",
		metric.WithDescription("Time to process one chat turn (ms)"),
		metric.WithUnit("ms"),
	)
	turns, _ := meter.Int64Counter("tasuku.chat.turns",
		metric.WithDescription("Processed chat turns by outcome"),
	)
	return &Service{
		db:           db,
		runner:       runner,
		logger:       logger,
		turnDuration: turnDur,
		turnCounter:  turns,
	}
}

// ProcessTurn handles one chat message end to end:
//
//  1. Validate the message.
//  2. Resolve the conversation (create one when no id is given).
//  3. Load the full message history.
//  4. Persist the user message before the agent runs, so the turn
//     survives a reasoning failure.
//  5. Run the agent with the reconstructed context.
//  6. Persist the assistant reply.
//  7. Return the structured response.
func (s *Service) ProcessTurn(ctx context.Context, userID uuid.UUID, req model.ChatRequest) (model.ChatResponse, error) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.String("tasuku.user_id", userID.String()))

	if err := model.ValidateMessageContent(req.Message); err != nil {
		return model.ChatResponse{}, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	conv, isNew, err := s.resolveConversation(ctx, userID, req.ConversationID)
	if err != nil {
		return model.ChatResponse{}, err
	}
	span.SetAttributes(attribute.String("tasuku.conversation_id", conv.ID.String()))

	history, err := s.db.ListMessages(ctx, conv.ID)
	if err != nil {
		return model.ChatResponse{}, fmt.Errorf("chat: load history: %w", err)
	}

	s.logger.Info("turn start",
		"user_id", userID,
		"conversation_id", conv.ID,
		"new_conversation", isNew,
		"history_len", len(history),
	)

	// The user message is durable before the agent runs: a reasoning
	// failure must not lose what the user said.
	if _, err := s.db.AppendMessage(ctx, conv.ID, model.RoleUser, req.Message); err != nil {
		return model.ChatResponse{}, fmt.Errorf("chat: persist user message: %w", err)
	}

	start := time.Now()
	result, err := s.runner.Run(ctx, userID, history, req.Message)
	s.turnDuration.Record(ctx, float64(time.Since(start).Milliseconds()))
	if err != nil {
		s.turnCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "error")))
		return model.ChatResponse{}, s.classifyAgentError(ctx, userID, conv.ID, err)
	}

	assistant, err := s.db.AppendMessage(ctx, conv.ID, model.RoleAssistant, result.AssistantMessage)
	if err != nil {
		return model.ChatResponse{}, fmt.Errorf("chat: persist assistant message: %w", err)
	}

	s.turnCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "ok")))
	s.logger.Info("turn complete",
		"user_id", userID,
		"conversation_id", conv.ID,
		"iterations", result.Iterations,
		"tool_calls", len(result.ToolCalls),
		"tokens_in", result.TokensIn,
		"tokens_out", result.TokensOut,
	)

	toolCalls := result.ToolCalls
	if toolCalls == nil {
		toolCalls = []model.ToolCall{}
	}
	return model.ChatResponse{
		ConversationID:   conv.ID,
		AssistantMessage: result.AssistantMessage,
		ToolCalls:        toolCalls,
		CreatedAt:        assistant.CreatedAt,
	}, nil
}

// resolveConversation returns the existing conversation when an id is
// supplied, creating a fresh untitled one otherwise. Storage errors
// pass through unchanged so the HTTP layer can distinguish a missing
// conversation from one owned by someone else.
func (s *Service) resolveConversation(ctx context.Context, userID uuid.UUID, id *uuid.UUID) (model.Conversation, bool, error) {
	if id != nil {
		conv, err := s.db.GetConversation(ctx, userID, *id)
		if err != nil {
			return model.Conversation{}, false, fmt.Errorf("chat: resolve conversation: %w", err)
		}
		return conv, false, nil
	}
	conv, err := s.db.CreateConversation(ctx, userID, nil)
	if err != nil {
		return model.Conversation{}, false, fmt.Errorf("chat: create conversation: %w", err)
	}
	return conv, true, nil
}

// classifyAgentError folds agent failures into the turn error taxonomy.
// The user message is already persisted at this point; only the reply
// is lost.
func (s *Service) classifyAgentError(ctx context.Context, userID, convID uuid.UUID, err error) error {
	s.logger.Error("turn failed",
		"user_id", userID,
		"conversation_id", convID,
		"error", err,
	)

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, agent.ErrMaxIterations):
		return fmt.Errorf("%w: %w", ErrReasoningTimeout, err)
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
		return fmt.Errorf("%w: %w", ErrReasoningRejected, err)
	}
	return fmt.Errorf("chat: agent: %w", err)
}
