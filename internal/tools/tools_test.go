package tools

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tasuku-ai/tasuku/internal/model"
	"github.com/tasuku-ai/tasuku/internal/storage"
	"github.com/tasuku-ai/tasuku/internal/testutil"
)

// fakeStore is an in-memory TaskStore for handler tests. Integration
// coverage of the real queries lives in internal/storage.
type fakeStore struct {
	tasks map[uuid.UUID]*model.Task
	err   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{tasks: make(map[uuid.UUID]*model.Task)}
}

func (f *fakeStore) CreateTask(_ context.Context, userID uuid.UUID, title string, description *string) (model.Task, error) {
	if f.err != nil {
		return model.Task{}, f.err
	}
	now := time.Now().UTC()
	t := &model.Task{
		ID:          uuid.New(),
		UserID:      userID,
		Title:       title,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	f.tasks[t.ID] = t
	return *t, nil
}

func (f *fakeStore) ListTasks(_ context.Context, userID uuid.UUID) ([]model.Task, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []model.Task
	for _, t := range f.tasks {
		if t.UserID == userID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeStore) get(id, userID uuid.UUID) (*model.Task, error) {
	t, ok := f.tasks[id]
	if !ok || t.UserID != userID {
		return nil, storage.ErrNotFound
	}
	return t, nil
}

func (f *fakeStore) UpdateTask(_ context.Context, userID, taskID uuid.UUID, upd model.TaskUpdate) (model.Task, error) {
	if f.err != nil {
		return model.Task{}, f.err
	}
	t, err := f.get(taskID, userID)
	if err != nil {
		return model.Task{}, err
	}
	if upd.Title != nil {
		t.Title = *upd.Title
	}
	if upd.Description != nil {
		t.Description = upd.Description
	}
	t.UpdatedAt = time.Now().UTC()
	return *t, nil
}

func (f *fakeStore) DeleteTask(_ context.Context, userID, taskID uuid.UUID) error {
	if f.err != nil {
		return f.err
	}
	if _, err := f.get(taskID, userID); err != nil {
		return err
	}
	delete(f.tasks, taskID)
	return nil
}

func (f *fakeStore) ToggleTaskComplete(_ context.Context, userID, taskID uuid.UUID) (model.Task, error) {
	if f.err != nil {
		return model.Task{}, f.err
	}
	t, err := f.get(taskID, userID)
	if err != nil {
		return model.Task{}, err
	}
	t.IsCompleted = !t.IsCompleted
	t.UpdatedAt = time.Now().UTC()
	return *t, nil
}

func newTestRegistry(t *testing.T) (*Registry, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	return NewRegistry(store, testutil.TestLogger()), store
}

func call(t *testing.T, r *Registry, name string, userID uuid.UUID, input string) Envelope {
	t.Helper()
	return r.Call(context.Background(), name, userID, json.RawMessage(input))
}

func TestRegistryHasAllTools(t *testing.T) {
	r, _ := newTestRegistry(t)
	var names []string
	for _, tool := range r.All() {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{"add_task", "list_tasks", "complete_task", "delete_task", "update_task"}, names)
}

func TestAddTask(t *testing.T) {
	r, _ := newTestRegistry(t)
	userID := uuid.New()

	env := call(t, r, "add_task", userID, `{"title":"  Buy milk  ","description":"whole"}`)
	require.True(t, env.Success)
	assert.Equal(t, "Buy milk", env.Payload["title"])
	assert.Equal(t, "whole", env.Payload["description"])
	assert.Equal(t, userID.String(), env.Payload["user_id"])
	assert.Equal(t, false, env.Payload["is_completed"])
	assert.NotEmpty(t, env.Payload["task_id"])
}

func TestAddTaskValidation(t *testing.T) {
	r, _ := newTestRegistry(t)
	userID := uuid.New()

	for name, input := range map[string]string{
		"empty title":      `{"title":"   "}`,
		"missing title":    `{}`,
		"malformed input":  `{"title":`,
		"title too long":   `{"title":"` + longString(201) + `"}`,
		"description long": `{"title":"ok","description":"` + longString(1001) + `"}`,
	} {
		t.Run(name, func(t *testing.T) {
			env := call(t, r, "add_task", userID, input)
			require.False(t, env.Success)
			assert.Equal(t, CodeValidation, env.Err.Code)
		})
	}
}

func TestListTasksEnvelope(t *testing.T) {
	r, _ := newTestRegistry(t)
	userID := uuid.New()

	env := call(t, r, "list_tasks", userID, `{}`)
	require.True(t, env.Success)
	assert.Equal(t, 0, env.Payload["count"])

	call(t, r, "add_task", userID, `{"title":"one"}`)
	call(t, r, "add_task", userID, `{"title":"two"}`)

	env = call(t, r, "list_tasks", userID, `{}`)
	require.True(t, env.Success)
	assert.Equal(t, 2, env.Payload["count"])
	assert.Len(t, env.Payload["tasks"], 2)
}

func TestListTasksIsolatedPerUser(t *testing.T) {
	r, _ := newTestRegistry(t)
	alice, bob := uuid.New(), uuid.New()

	call(t, r, "add_task", alice, `{"title":"alice task"}`)

	env := call(t, r, "list_tasks", bob, `{}`)
	require.True(t, env.Success)
	assert.Equal(t, 0, env.Payload["count"])
}

func TestCompleteTaskToggles(t *testing.T) {
	r, _ := newTestRegistry(t)
	userID := uuid.New()

	created := call(t, r, "add_task", userID, `{"title":"toggle me"}`)
	require.True(t, created.Success)
	id := created.Payload["task_id"].(string)

	env := call(t, r, "complete_task", userID, `{"task_id":"`+id+`"}`)
	require.True(t, env.Success)
	assert.Equal(t, true, env.Payload["is_completed"])

	env = call(t, r, "complete_task", userID, `{"task_id":"`+id+`"}`)
	require.True(t, env.Success)
	assert.Equal(t, false, env.Payload["is_completed"])
}

func TestOwnershipFoldsIntoNotFound(t *testing.T) {
	r, _ := newTestRegistry(t)
	alice, bob := uuid.New(), uuid.New()

	created := call(t, r, "add_task", alice, `{"title":"private"}`)
	id := created.Payload["task_id"].(string)

	for _, name := range []string{"complete_task", "delete_task"} {
		env := call(t, r, name, bob, `{"task_id":"`+id+`"}`)
		require.False(t, env.Success, name)
		assert.Equal(t, CodeTaskNotFound, env.Err.Code, name)
	}
}

func TestDeleteTask(t *testing.T) {
	r, store := newTestRegistry(t)
	userID := uuid.New()

	created := call(t, r, "add_task", userID, `{"title":"ephemeral"}`)
	id := created.Payload["task_id"].(string)

	env := call(t, r, "delete_task", userID, `{"task_id":"`+id+`"}`)
	require.True(t, env.Success)
	assert.Equal(t, id, env.Payload["task_id"])
	assert.Equal(t, "Task deleted successfully", env.Payload["message"])
	assert.Empty(t, store.tasks)
}

func TestUpdateTask(t *testing.T) {
	r, _ := newTestRegistry(t)
	userID := uuid.New()

	created := call(t, r, "add_task", userID, `{"title":"old","description":"keep"}`)
	id := created.Payload["task_id"].(string)

	env := call(t, r, "update_task", userID, `{"task_id":"`+id+`","title":"new"}`)
	require.True(t, env.Success)
	assert.Equal(t, "new", env.Payload["title"])
	assert.Equal(t, "keep", env.Payload["description"])
}

func TestUpdateTaskRequiresAField(t *testing.T) {
	r, _ := newTestRegistry(t)
	userID := uuid.New()

	created := call(t, r, "add_task", userID, `{"title":"x"}`)
	id := created.Payload["task_id"].(string)

	env := call(t, r, "update_task", userID, `{"task_id":"`+id+`"}`)
	require.False(t, env.Success)
	assert.Equal(t, CodeValidation, env.Err.Code)
}

func TestInvalidTaskID(t *testing.T) {
	r, _ := newTestRegistry(t)
	userID := uuid.New()

	for _, name := range []string{"complete_task", "delete_task", "update_task"} {
		env := call(t, r, name, userID, `{"task_id":"not-a-uuid","title":"x"}`)
		require.False(t, env.Success, name)
		assert.Equal(t, CodeValidation, env.Err.Code, name)
	}
}

func TestUnknownTool(t *testing.T) {
	r, _ := newTestRegistry(t)
	env := call(t, r, "drop_database", uuid.New(), `{}`)
	require.False(t, env.Success)
	assert.Equal(t, CodeValidation, env.Err.Code)
}

func TestStoreFailureMapsToDatabaseError(t *testing.T) {
	r, store := newTestRegistry(t)
	store.err = assert.AnError

	env := call(t, r, "list_tasks", uuid.New(), `{}`)
	require.False(t, env.Success)
	assert.Equal(t, CodeDatabase, env.Err.Code)
}

func TestEnvelopeWireShape(t *testing.T) {
	ok := OK(map[string]any{"task_id": "abc"})
	data, err := json.Marshal(ok)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"task_id":"abc"}`, string(data))

	fail := Fail(CodeTaskNotFound, "task not found")
	data, err = json.Marshal(fail)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":false,"error":{"code":"TASK_NOT_FOUND","message":"task not found"}}`, string(data))
}

func longString(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'a'
	}
	return string(b)
}
