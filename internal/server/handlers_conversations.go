package server

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/tasuku-ai/tasuku/internal/ctxutil"
	"github.com/tasuku-ai/tasuku/internal/model"
)

func conversationIDFromPath(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("conversation_id"))
	return id, err == nil
}

// HandleListConversations handles GET /v1/conversations.
func (h *Handlers) HandleListConversations(w http.ResponseWriter, r *http.Request) {
	userID := ctxutil.UserIDFromContext(r.Context())

	convs, err := h.db.ListConversations(r.Context(), userID)
	if err != nil {
		h.writeInternalError(w, r, "failed to list conversations", err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"conversations": convs,
		"count":         len(convs),
	})
}

// HandleConversationMessages handles GET /v1/conversations/{conversation_id}/messages.
func (h *Handlers) HandleConversationMessages(w http.ResponseWriter, r *http.Request) {
	userID := ctxutil.UserIDFromContext(r.Context())
	convID, ok := conversationIDFromPath(r)
	if !ok {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "conversation_id must be a valid UUID")
		return
	}

	// Ownership check first; ListMessages itself is unscoped.
	conv, err := h.db.GetConversation(r.Context(), userID, convID)
	if err != nil {
		h.writeStorageError(w, r, err, "conversation not found")
		return
	}

	msgs, err := h.db.ListMessages(r.Context(), conv.ID)
	if err != nil {
		h.writeInternalError(w, r, "failed to list messages", err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"conversation": conv,
		"messages":     msgs,
		"count":        len(msgs),
	})
}

// HandleDeleteConversation handles DELETE /v1/conversations/{conversation_id}.
// Messages cascade with the conversation row.
func (h *Handlers) HandleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	userID := ctxutil.UserIDFromContext(r.Context())
	convID, ok := conversationIDFromPath(r)
	if !ok {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "conversation_id must be a valid UUID")
		return
	}

	if err := h.db.DeleteConversation(r.Context(), userID, convID); err != nil {
		h.writeStorageError(w, r, err, "conversation not found")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"conversation_id": convID,
		"deleted":         true,
	})
}
