package storage_test

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tasuku-ai/tasuku/internal/model"
	"github.com/tasuku-ai/tasuku/internal/storage"
	"github.com/tasuku-ai/tasuku/internal/testutil"
)

// testDB holds a shared test database connection for all tests in this package.
var testDB *storage.DB

func TestMain(m *testing.M) {
	if os.Getenv("TASUKU_SKIP_INTEGRATION") != "" {
		os.Exit(0)
	}

	tc := testutil.MustStartPostgres()

	var err error
	testDB, err = tc.NewTestDB(context.Background(), testutil.TestLogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create test DB: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()
	testDB.Close()
	tc.Terminate()
	os.Exit(code)
}

// newTestUser registers a throwaway user so foreign keys hold.
func newTestUser(t *testing.T) model.User {
	t.Helper()
	u, err := testDB.CreateUser(context.Background(),
		fmt.Sprintf("user-%s@example.com", uuid.New().String()[:8]), "hash")
	require.NoError(t, err)
	return u
}

func strPtr(s string) *string { return &s }

func TestTaskCRUD(t *testing.T) {
	ctx := context.Background()
	user := newTestUser(t)

	created, err := testDB.CreateTask(ctx, user.ID, "Buy groceries", strPtr("Milk, eggs, bread"))
	require.NoError(t, err)
	assert.Equal(t, user.ID, created.UserID)
	assert.False(t, created.IsCompleted)

	got, err := testDB.GetTask(ctx, user.ID, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Buy groceries", got.Title)
	require.NotNil(t, got.Description)
	assert.Equal(t, "Milk, eggs, bread", *got.Description)

	updated, err := testDB.UpdateTask(ctx, user.ID, created.ID, model.TaskUpdate{Title: strPtr("Buy food")})
	require.NoError(t, err)
	assert.Equal(t, "Buy food", updated.Title)
	require.NotNil(t, updated.Description)
	assert.Equal(t, "Milk, eggs, bread", *updated.Description, "unset field must survive a partial update")
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt) || updated.UpdatedAt.Equal(created.UpdatedAt))

	toggled, err := testDB.ToggleTaskComplete(ctx, user.ID, created.ID)
	require.NoError(t, err)
	assert.True(t, toggled.IsCompleted)

	toggled, err = testDB.ToggleTaskComplete(ctx, user.ID, created.ID)
	require.NoError(t, err)
	assert.False(t, toggled.IsCompleted, "toggle must flip back")

	require.NoError(t, testDB.DeleteTask(ctx, user.ID, created.ID))
	_, err = testDB.GetTask(ctx, user.ID, created.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListTasksNewestFirst(t *testing.T) {
	ctx := context.Background()
	user := newTestUser(t)

	for _, title := range []string{"first", "second", "third"} {
		_, err := testDB.CreateTask(ctx, user.ID, title, nil)
		require.NoError(t, err)
	}

	tasks, err := testDB.ListTasks(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 3)

	// Newest first, and stable across calls.
	for i := 1; i < len(tasks); i++ {
		assert.False(t, tasks[i].CreatedAt.After(tasks[i-1].CreatedAt))
	}
	again, err := testDB.ListTasks(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, tasks, again)
}

func TestListTasksEmpty(t *testing.T) {
	user := newTestUser(t)
	tasks, err := testDB.ListTasks(context.Background(), user.ID)
	require.NoError(t, err)
	assert.NotNil(t, tasks)
	assert.Empty(t, tasks)
}

func TestTaskOwnershipFoldsIntoNotFound(t *testing.T) {
	ctx := context.Background()
	owner := newTestUser(t)
	intruder := newTestUser(t)

	task, err := testDB.CreateTask(ctx, owner.ID, "secret task", nil)
	require.NoError(t, err)

	_, err = testDB.GetTask(ctx, intruder.ID, task.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = testDB.ToggleTaskComplete(ctx, intruder.ID, task.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = testDB.DeleteTask(ctx, intruder.ID, task.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// The task is untouched and still owned by its user.
	got, err := testDB.GetTask(ctx, owner.ID, task.ID)
	require.NoError(t, err)
	assert.False(t, got.IsCompleted)
	assert.Equal(t, owner.ID, got.UserID)
}

func TestConversationOwnership(t *testing.T) {
	ctx := context.Background()
	owner := newTestUser(t)
	intruder := newTestUser(t)

	conv, err := testDB.CreateConversation(ctx, owner.ID, nil)
	require.NoError(t, err)

	_, err = testDB.GetConversation(ctx, owner.ID, conv.ID)
	require.NoError(t, err)

	_, err = testDB.GetConversation(ctx, intruder.ID, conv.ID)
	assert.ErrorIs(t, err, storage.ErrConversationForbidden)

	_, err = testDB.GetConversation(ctx, owner.ID, uuid.New())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMessageOrdering(t *testing.T) {
	ctx := context.Background()
	user := newTestUser(t)

	conv, err := testDB.CreateConversation(ctx, user.ID, nil)
	require.NoError(t, err)

	turns := []struct {
		role    model.Role
		content string
	}{
		{model.RoleUser, "add a task to buy milk"},
		{model.RoleAssistant, "Created task 'Buy milk'."},
		{model.RoleUser, "show my tasks"},
		{model.RoleAssistant, "You have 1 task: [ ] Buy milk"},
	}
	for _, turn := range turns {
		_, err := testDB.AppendMessage(ctx, conv.ID, turn.role, turn.content)
		require.NoError(t, err)
	}

	msgs, err := testDB.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, len(turns))

	for i, m := range msgs {
		assert.Equal(t, turns[i].role, m.Role)
		assert.Equal(t, turns[i].content, m.Content)
		if i > 0 {
			assert.False(t, m.CreatedAt.Before(msgs[i-1].CreatedAt))
			assert.Greater(t, m.Seq, msgs[i-1].Seq, "seq must strictly increase in insertion order")
		}
	}
}

func TestAppendMessageAdvancesConversation(t *testing.T) {
	ctx := context.Background()
	user := newTestUser(t)

	conv, err := testDB.CreateConversation(ctx, user.ID, nil)
	require.NoError(t, err)

	_, err = testDB.AppendMessage(ctx, conv.ID, model.RoleUser, "hello")
	require.NoError(t, err)

	after, err := testDB.GetConversation(ctx, user.ID, conv.ID)
	require.NoError(t, err)
	assert.False(t, after.UpdatedAt.Before(conv.UpdatedAt), "updated_at must advance monotonically")
}

func TestDeleteConversationCascades(t *testing.T) {
	ctx := context.Background()
	user := newTestUser(t)

	conv, err := testDB.CreateConversation(ctx, user.ID, nil)
	require.NoError(t, err)
	_, err = testDB.AppendMessage(ctx, conv.ID, model.RoleUser, "hello")
	require.NoError(t, err)

	require.NoError(t, testDB.DeleteConversation(ctx, user.ID, conv.ID))

	msgs, err := testDB.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	email := fmt.Sprintf("dup-%s@example.com", uuid.New().String()[:8])

	_, err := testDB.CreateUser(ctx, email, "hash")
	require.NoError(t, err)

	_, err = testDB.CreateUser(ctx, "  "+email+" ", "hash")
	assert.ErrorIs(t, err, storage.ErrEmailTaken, "email comparison must ignore case and padding")
}
