package tools

import (
	"context"

	"github.com/google/uuid"

	"github.com/tasuku-ai/tasuku/internal/model"
)

// TaskStore is the slice of the storage layer the tool adapters need.
// *storage.DB satisfies it.
type TaskStore interface {
	CreateTask(ctx context.Context, userID uuid.UUID, title string, description *string) (model.Task, error)
	ListTasks(ctx context.Context, userID uuid.UUID) ([]model.Task, error)
	UpdateTask(ctx context.Context, userID, taskID uuid.UUID, update model.TaskUpdate) (model.Task, error)
	DeleteTask(ctx context.Context, userID, taskID uuid.UUID) error
	ToggleTaskComplete(ctx context.Context, userID, taskID uuid.UUID) (model.Task, error)
}
