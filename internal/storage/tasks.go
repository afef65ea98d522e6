package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tasuku-ai/tasuku/internal/model"
)

// CreateTask inserts a task owned by userID and returns it.
func (db *DB) CreateTask(ctx context.Context, userID uuid.UUID, title string, description *string) (model.Task, error) {
	now := time.Now().UTC()
	t := model.Task{
		ID:          uuid.New(),
		UserID:      userID,
		Title:       title,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO tasks (id, user_id, title, description, is_completed, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, t.UserID, t.Title, t.Description, t.IsCompleted, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return model.Task{}, fmt.Errorf("storage: create task: %w", err)
	}
	return t, nil
}

// ListTasks returns all tasks owned by userID, newest first. The (user_id,
// created_at DESC) index keeps this a single range scan; id breaks ties so
// the order is stable across calls.
func (db *DB) ListTasks(ctx context.Context, userID uuid.UUID) ([]model.Task, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, user_id, title, description, is_completed, created_at, updated_at
		 FROM tasks
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list tasks: %w", err)
	}
	defer rows.Close()

	return scanTasks(rows)
}

// GetTask retrieves one task by id, scoped to userID. A task owned by a
// different user resolves to ErrNotFound, same as a missing row.
func (db *DB) GetTask(ctx context.Context, userID, taskID uuid.UUID) (model.Task, error) {
	var t model.Task
	err := db.pool.QueryRow(ctx,
		`SELECT id, user_id, title, description, is_completed, created_at, updated_at
		 FROM tasks WHERE id = $1 AND user_id = $2`,
		taskID, userID,
	).Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.IsCompleted, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Task{}, ErrNotFound
		}
		return model.Task{}, fmt.Errorf("storage: get task: %w", err)
	}
	return t, nil
}

// UpdateTask applies a partial update to a task owned by userID and returns
// the updated row. COALESCE leaves unset fields unchanged.
func (db *DB) UpdateTask(ctx context.Context, userID, taskID uuid.UUID, update model.TaskUpdate) (model.Task, error) {
	var t model.Task
	err := db.pool.QueryRow(ctx,
		`UPDATE tasks
		 SET title = COALESCE($3, title),
		     description = COALESCE($4, description),
		     updated_at = $5
		 WHERE id = $1 AND user_id = $2
		 RETURNING id, user_id, title, description, is_completed, created_at, updated_at`,
		taskID, userID, update.Title, update.Description, time.Now().UTC(),
	).Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.IsCompleted, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Task{}, ErrNotFound
		}
		return model.Task{}, fmt.Errorf("storage: update task: %w", err)
	}
	return t, nil
}

// DeleteTask permanently removes a task owned by userID.
func (db *DB) DeleteTask(ctx context.Context, userID, taskID uuid.UUID) error {
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM tasks WHERE id = $1 AND user_id = $2`,
		taskID, userID,
	)
	if err != nil {
		return fmt.Errorf("storage: delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ToggleTaskComplete flips the completion flag of a task owned by userID
// and returns the updated row.
func (db *DB) ToggleTaskComplete(ctx context.Context, userID, taskID uuid.UUID) (model.Task, error) {
	var t model.Task
	err := db.pool.QueryRow(ctx,
		`UPDATE tasks
		 SET is_completed = NOT is_completed, updated_at = $3
		 WHERE id = $1 AND user_id = $2
		 RETURNING id, user_id, title, description, is_completed, created_at, updated_at`,
		taskID, userID, time.Now().UTC(),
	).Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.IsCompleted, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Task{}, ErrNotFound
		}
		return model.Task{}, fmt.Errorf("storage: toggle task: %w", err)
	}
	return t, nil
}

func scanTasks(rows pgx.Rows) ([]model.Task, error) {
	tasks := []model.Task{}
	for rows.Next() {
		var t model.Task
		if err := rows.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.IsCompleted, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: iterate tasks: %w", err)
	}
	return tasks, nil
}
