package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tasuku-ai/tasuku/internal/model"
	"github.com/tasuku-ai/tasuku/internal/storage"
)

func taskPayload(t model.Task) map[string]any {
	var desc any
	if t.Description != nil {
		desc = *t.Description
	}
	return map[string]any{
		"task_id":      t.ID.String(),
		"user_id":      t.UserID.String(),
		"title":        t.Title,
		"description":  desc,
		"is_completed": t.IsCompleted,
		"created_at":   t.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at":   t.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func storeFail(op string, err error) Envelope {
	if errors.Is(err, storage.ErrNotFound) {
		return Fail(CodeTaskNotFound, "task not found")
	}
	return Fail(CodeDatabase, fmt.Sprintf("failed to %s", op))
}

func parseTaskID(raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

func (r *Registry) addTaskTool() Tool {
	return Tool{
		Name:        "add_task",
		Description: "Create a new task for the current user. Requires a title; an optional longer description may be supplied.",
		Schema: map[string]any{
			"title": map[string]any{
				"type":        "string",
				"description": "Short task title, 1-200 characters",
			},
			"description": map[string]any{
				"type":        "string",
				"description": "Optional details, up to 1000 characters",
			},
		},
		Required: []string{"title"},
		Handler: func(ctx context.Context, userID uuid.UUID, input json.RawMessage) Envelope {
			var in struct {
				Title       string  `json:"title"`
				Description *string `json:"description"`
			}
			if err := json.Unmarshal(input, &in); err != nil {
				return Fail(CodeValidation, "invalid tool input")
			}
			title := strings.TrimSpace(in.Title)
			if err := model.ValidateTitle(title); err != nil {
				return Fail(CodeValidation, err.Error())
			}
			if err := model.ValidateDescription(in.Description); err != nil {
				return Fail(CodeValidation, err.Error())
			}
			task, err := r.store.CreateTask(ctx, userID, title, in.Description)
			if err != nil {
				return storeFail("create task", err)
			}
			return OK(taskPayload(task))
		},
	}
}

func (r *Registry) listTasksTool() Tool {
	return Tool{
		Name:        "list_tasks",
		Description: "List all tasks belonging to the current user, newest first, both open and completed.",
		Schema:      map[string]any{},
		Handler: func(ctx context.Context, userID uuid.UUID, _ json.RawMessage) Envelope {
			tasks, err := r.store.ListTasks(ctx, userID)
			if err != nil {
				return storeFail("list tasks", err)
			}
			items := make([]map[string]any, 0, len(tasks))
			for i := range tasks {
				items = append(items, taskPayload(tasks[i]))
			}
			return OK(map[string]any{
				"tasks": items,
				"count": len(items),
			})
		},
	}
}

func (r *Registry) completeTaskTool() Tool {
	return Tool{
		Name:        "complete_task",
		Description: "Toggle the completion state of one of the current user's tasks by its id.",
		Schema: map[string]any{
			"task_id": map[string]any{
				"type":        "string",
				"description": "UUID of the task to toggle",
			},
		},
		Required: []string{"task_id"},
		Handler: func(ctx context.Context, userID uuid.UUID, input json.RawMessage) Envelope {
			var in struct {
				TaskID string `json:"task_id"`
			}
			if err := json.Unmarshal(input, &in); err != nil {
				return Fail(CodeValidation, "invalid tool input")
			}
			id, ok := parseTaskID(in.TaskID)
			if !ok {
				return Fail(CodeValidation, "task_id must be a valid UUID")
			}
			task, err := r.store.ToggleTaskComplete(ctx, userID, id)
			if err != nil {
				return storeFail("update task", err)
			}
			return OK(taskPayload(task))
		},
	}
}

func (r *Registry) deleteTaskTool() Tool {
	return Tool{
		Name:        "delete_task",
		Description: "Permanently delete one of the current user's tasks by its id.",
		Schema: map[string]any{
			"task_id": map[string]any{
				"type":        "string",
				"description": "UUID of the task to delete",
			},
		},
		Required: []string{"task_id"},
		Handler: func(ctx context.Context, userID uuid.UUID, input json.RawMessage) Envelope {
			var in struct {
				TaskID string `json:"task_id"`
			}
			if err := json.Unmarshal(input, &in); err != nil {
				return Fail(CodeValidation, "invalid tool input")
			}
			id, ok := parseTaskID(in.TaskID)
			if !ok {
				return Fail(CodeValidation, "task_id must be a valid UUID")
			}
			if err := r.store.DeleteTask(ctx, userID, id); err != nil {
				return storeFail("delete task", err)
			}
			return OK(map[string]any{
				"task_id": id.String(),
				"message": "Task deleted successfully",
			})
		},
	}
}

func (r *Registry) updateTaskTool() Tool {
	return Tool{
		Name:        "update_task",
		Description: "Update the title and/or description of one of the current user's tasks. At least one field must be provided.",
		Schema: map[string]any{
			"task_id": map[string]any{
				"type":        "string",
				"description": "UUID of the task to update",
			},
			"title": map[string]any{
				"type":        "string",
				"description": "New title, 1-200 characters",
			},
			"description": map[string]any{
				"type":        "string",
				"description": "New details, up to 1000 characters",
			},
		},
		Required: []string{"task_id"},
		Handler: func(ctx context.Context, userID uuid.UUID, input json.RawMessage) Envelope {
			var in struct {
				TaskID      string  `json:"task_id"`
				Title       *string `json:"title"`
				Description *string `json:"description"`
			}
			if err := json.Unmarshal(input, &in); err != nil {
				return Fail(CodeValidation, "invalid tool input")
			}
			id, ok := parseTaskID(in.TaskID)
			if !ok {
				return Fail(CodeValidation, "task_id must be a valid UUID")
			}
			upd := model.TaskUpdate{Description: in.Description}
			if in.Title != nil {
				title := strings.TrimSpace(*in.Title)
				if err := model.ValidateTitle(title); err != nil {
					return Fail(CodeValidation, err.Error())
				}
				upd.Title = &title
			}
			if err := model.ValidateDescription(in.Description); err != nil {
				return Fail(CodeValidation, err.Error())
			}
			if upd.IsEmpty() {
				return Fail(CodeValidation, "at least one of title or description must be provided")
			}
			task, err := r.store.UpdateTask(ctx, userID, id, upd)
			if err != nil {
				return storeFail("update task", err)
			}
			return OK(taskPayload(task))
		},
	}
}
