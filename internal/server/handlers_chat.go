package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/tasuku-ai/tasuku/internal/ctxutil"
	"github.com/tasuku-ai/tasuku/internal/model"
	"github.com/tasuku-ai/tasuku/internal/service/chat"
	"github.com/tasuku-ai/tasuku/internal/storage"
)

// HandleChat handles POST /v1/chat: one conversational turn through the
// turn orchestration service.
func (h *Handlers) HandleChat(w http.ResponseWriter, r *http.Request) {
	userID := ctxutil.UserIDFromContext(r.Context())

	var req model.ChatRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	resp, err := h.chatSvc.ProcessTurn(r.Context(), userID, req)
	if err != nil {
		h.writeChatError(w, r, err)
		return
	}

	h.notifyTurnHooks(r.Context(), userID, resp)

	writeJSON(w, r, http.StatusOK, resp)
}

// notifyTurnHooks invokes registered hooks for a completed turn.
// A panicking hook must not take down the request.
func (h *Handlers) notifyTurnHooks(ctx context.Context, userID uuid.UUID, resp model.ChatResponse) {
	for _, hook := range h.turnHooks {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					h.logger.Error("turn hook panicked", "panic", rec)
				}
			}()
			hook(ctx, userID, resp)
		}()
	}
}

// writeChatError maps the turn error taxonomy onto HTTP responses.
func (h *Handlers) writeChatError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, chat.ErrInvalidMessage):
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "message must be between 1 and 50000 characters")
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "conversation not found")
	case errors.Is(err, storage.ErrConversationForbidden):
		writeError(w, r, http.StatusForbidden, model.ErrCodeForbidden, "you do not have access to this conversation")
	case errors.Is(err, chat.ErrReasoningTimeout):
		writeError(w, r, http.StatusGatewayTimeout, model.ErrCodeReasoningTimeout, "the assistant took too long to respond; your message was saved")
	case errors.Is(err, chat.ErrReasoningRejected):
		writeError(w, r, http.StatusBadGateway, model.ErrCodeReasoningRejected, "the assistant could not process this message; your message was saved")
	default:
		h.writeInternalError(w, r, "failed to process chat turn", err)
	}
}
