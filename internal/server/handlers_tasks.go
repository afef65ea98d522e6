package server

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/tasuku-ai/tasuku/internal/ctxutil"
	"github.com/tasuku-ai/tasuku/internal/model"
)

// taskIDFromPath parses the {task_id} path value.
func taskIDFromPath(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("task_id"))
	return id, err == nil
}

// HandleCreateTask handles POST /v1/tasks.
func (h *Handlers) HandleCreateTask(w http.ResponseWriter, r *http.Request) {
	userID := ctxutil.UserIDFromContext(r.Context())

	var req model.CreateTaskRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	title := strings.TrimSpace(req.Title)
	if err := model.ValidateTitle(title); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	if err := model.ValidateDescription(req.Description); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	task, err := h.db.CreateTask(r.Context(), userID, title, req.Description)
	if err != nil {
		h.writeInternalError(w, r, "failed to create task", err)
		return
	}
	writeJSON(w, r, http.StatusCreated, task)
}

// HandleListTasks handles GET /v1/tasks.
func (h *Handlers) HandleListTasks(w http.ResponseWriter, r *http.Request) {
	userID := ctxutil.UserIDFromContext(r.Context())

	tasks, err := h.db.ListTasks(r.Context(), userID)
	if err != nil {
		h.writeInternalError(w, r, "failed to list tasks", err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"tasks": tasks,
		"count": len(tasks),
	})
}

// HandleGetTask handles GET /v1/tasks/{task_id}.
func (h *Handlers) HandleGetTask(w http.ResponseWriter, r *http.Request) {
	userID := ctxutil.UserIDFromContext(r.Context())
	taskID, ok := taskIDFromPath(r)
	if !ok {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "task_id must be a valid UUID")
		return
	}

	task, err := h.db.GetTask(r.Context(), userID, taskID)
	if err != nil {
		h.writeStorageError(w, r, err, "task not found")
		return
	}
	writeJSON(w, r, http.StatusOK, task)
}

// HandleUpdateTask handles PATCH /v1/tasks/{task_id}.
func (h *Handlers) HandleUpdateTask(w http.ResponseWriter, r *http.Request) {
	userID := ctxutil.UserIDFromContext(r.Context())
	taskID, ok := taskIDFromPath(r)
	if !ok {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "task_id must be a valid UUID")
		return
	}

	var upd model.TaskUpdate
	if err := decodeJSON(w, r, &upd, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if upd.IsEmpty() {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "at least one of title or description must be provided")
		return
	}
	if upd.Title != nil {
		title := strings.TrimSpace(*upd.Title)
		if err := model.ValidateTitle(title); err != nil {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
			return
		}
		upd.Title = &title
	}
	if err := model.ValidateDescription(upd.Description); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	task, err := h.db.UpdateTask(r.Context(), userID, taskID, upd)
	if err != nil {
		h.writeStorageError(w, r, err, "task not found")
		return
	}
	writeJSON(w, r, http.StatusOK, task)
}

// HandleDeleteTask handles DELETE /v1/tasks/{task_id}.
func (h *Handlers) HandleDeleteTask(w http.ResponseWriter, r *http.Request) {
	userID := ctxutil.UserIDFromContext(r.Context())
	taskID, ok := taskIDFromPath(r)
	if !ok {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "task_id must be a valid UUID")
		return
	}

	if err := h.db.DeleteTask(r.Context(), userID, taskID); err != nil {
		h.writeStorageError(w, r, err, "task not found")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"task_id": taskID,
		"deleted": true,
	})
}

// HandleToggleTask handles POST /v1/tasks/{task_id}/toggle.
func (h *Handlers) HandleToggleTask(w http.ResponseWriter, r *http.Request) {
	userID := ctxutil.UserIDFromContext(r.Context())
	taskID, ok := taskIDFromPath(r)
	if !ok {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "task_id must be a valid UUID")
		return
	}

	task, err := h.db.ToggleTaskComplete(r.Context(), userID, taskID)
	if err != nil {
		h.writeStorageError(w, r, err, "task not found")
		return
	}
	writeJSON(w, r, http.StatusOK, task)
}
