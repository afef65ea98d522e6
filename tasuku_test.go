package tasuku

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"testing/fstest"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tasuku-ai/tasuku/internal/model"
	"github.com/tasuku-ai/tasuku/internal/testutil"
)

var testDSN string

func TestMain(m *testing.M) {
	if os.Getenv("TASUKU_SKIP_INTEGRATION") != "" {
		os.Exit(0)
	}

	tc := testutil.MustStartPostgres()
	testDSN = tc.DSN

	code := m.Run()
	tc.Terminate()
	os.Exit(code)
}

func newTestApp(t *testing.T, opts ...Option) *App {
	t.Helper()
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	t.Setenv("TASUKU_RATE_LIMIT_ENABLED", "false")

	opts = append([]Option{
		WithDatabaseURL(testDSN),
		WithLogger(testutil.TestLogger()),
		WithVersion("test"),
	}, opts...)
	app, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Shutdown(context.Background()) })
	return app
}

func do(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAppServesAPI(t *testing.T) {
	app := newTestApp(t)
	h := app.Handler()

	rec := do(t, h, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var env struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "test", env.Data["version"])

	// The embedded OpenAPI contract is served without auth.
	rec = do(t, h, http.MethodGet, "/openapi.yaml", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "openapi:")
}

func TestAppExtensionPoints(t *testing.T) {
	pinged := false
	app := newTestApp(t,
		WithTool(Tool{
			Name:        "echo",
			Description: "Echoes its input back.",
			Schema: map[string]any{
				"text": map[string]any{"type": "string"},
			},
			Required: []string{"text"},
			Handler: func(_ context.Context, _ uuid.UUID, input json.RawMessage) (map[string]any, error) {
				return map[string]any{"echo": string(input)}, nil
			},
		}),
		WithExtraRoutes(func(mux *http.ServeMux) {
			mux.HandleFunc("GET /v1/ping", func(w http.ResponseWriter, r *http.Request) {
				pinged = true
				w.WriteHeader(http.StatusNoContent)
			})
		}),
		WithMiddleware(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("X-Test-Middleware", "1")
				next.ServeHTTP(w, r)
			})
		}),
	)
	h := app.Handler()

	// Registered middleware is outermost: it runs even for unauthenticated requests.
	rec := do(t, h, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-Test-Middleware"))

	// Extra routes sit behind the auth middleware.
	rec = do(t, h, http.MethodGet, "/v1/ping", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, pinged)

	email := fmt.Sprintf("ext-%s@example.com", uuid.New().String()[:8])
	rec = do(t, h, http.MethodPost, "/auth/signup", "", model.SignupRequest{
		Email: email, Password: "correct horse",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var env struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	token := env.Data["token"].(string)

	rec = do(t, h, http.MethodGet, "/v1/ping", token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, pinged)
}

func TestAppExtraMigrations(t *testing.T) {
	extra := fstest.MapFS{
		"900_extension_notes.sql": &fstest.MapFile{
			Data: []byte(`CREATE TABLE IF NOT EXISTS extension_notes (id SERIAL PRIMARY KEY, note TEXT NOT NULL)`),
		},
	}
	app := newTestApp(t, WithExtraMigrations(extra))

	var exists bool
	err := app.db.Pool().QueryRow(context.Background(),
		`SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name = 'extension_notes')`,
	).Scan(&exists)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestToInternalTool(t *testing.T) {
	calls := 0
	tool := toInternalTool(Tool{
		Name: "probe",
		Handler: func(_ context.Context, _ uuid.UUID, _ json.RawMessage) (map[string]any, error) {
			calls++
			switch calls {
			case 1:
				return map[string]any{"ok": true}, nil
			case 2:
				return nil, &ToolError{Code: "VALIDATION_ERROR", Message: "bad input"}
			default:
				return nil, fmt.Errorf("boom")
			}
		},
	})

	env := tool.Handler(context.Background(), uuid.New(), nil)
	require.True(t, env.Success)
	assert.Equal(t, true, env.Payload["ok"])

	env = tool.Handler(context.Background(), uuid.New(), nil)
	require.False(t, env.Success)
	assert.Equal(t, "VALIDATION_ERROR", env.Err.Code)
	assert.Equal(t, "bad input", env.Err.Message)

	env = tool.Handler(context.Background(), uuid.New(), nil)
	require.False(t, env.Success)
	assert.Equal(t, toolErrCode, env.Err.Code)
}

func TestToPublicTurn(t *testing.T) {
	userID := uuid.New()
	resp := model.ChatResponse{
		ConversationID:   uuid.New(),
		AssistantMessage: "added",
		ToolCalls: []model.ToolCall{
			{ToolName: "add_task", Parameters: map[string]any{"title": "milk"}, Success: true},
		},
		CreatedAt: time.Now().UTC(),
	}

	turn := toPublicTurn(userID, resp)
	assert.Equal(t, userID, turn.UserID)
	assert.Equal(t, resp.ConversationID, turn.ConversationID)
	assert.Equal(t, "added", turn.AssistantMessage)
	require.Len(t, turn.ToolCalls, 1)
	assert.Equal(t, "add_task", turn.ToolCalls[0].ToolName)
}
