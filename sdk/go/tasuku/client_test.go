package tasuku

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
)

// mockServer creates an httptest server that mimics the Tasuku API.
func mockServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	// Always register the login endpoint.
	if _, ok := handlers["POST /auth/login"]; !ok {
		mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"data": map[string]any{
					"token":      "test-token-xyz",
					"expires_at": time.Now().Add(1 * time.Hour).Format(time.RFC3339),
				},
			})
		})
	}

	for pattern, handler := range handlers {
		mux.HandleFunc(pattern, handler)
	}

	return httptest.NewServer(mux)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	c, err := NewClient(Config{
		BaseURL:  serverURL,
		Email:    "user@example.com",
		Password: "test-password",
		Timeout:  5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c
}

func TestNewClientValidation(t *testing.T) {
	cases := []Config{
		{Email: "a@b.c", Password: "x"},
		{BaseURL: "http://x", Password: "x"},
		{BaseURL: "http://x", Email: "a@b.c"},
	}
	for _, cfg := range cases {
		if _, err := NewClient(cfg); err == nil {
			t.Errorf("expected error for config %+v", cfg)
		}
	}
}

func TestCreateTaskSendsAuth(t *testing.T) {
	taskID := uuid.New()

	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /v1/tasks": func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer test-token-xyz" {
				writeJSON(w, http.StatusUnauthorized, map[string]any{
					"error": map[string]any{"code": "UNAUTHORIZED", "message": "bad token"},
				})
				return
			}
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["title"] != "buy milk" {
				t.Errorf("expected title 'buy milk', got %v", body["title"])
			}
			writeJSON(w, http.StatusCreated, map[string]any{
				"data": Task{ID: taskID, Title: "buy milk"},
			})
		},
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	task, err := client.CreateTask(context.Background(), "buy milk", nil)
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if task.ID != taskID {
		t.Errorf("expected task ID %s, got %s", taskID, task.ID)
	}
}

func TestListTasksUnwrapsEnvelope(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /v1/tasks": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"data": map[string]any{
					"tasks": []Task{
						{ID: uuid.New(), Title: "one"},
						{ID: uuid.New(), Title: "two", IsCompleted: true},
					},
					"count": 2,
				},
			})
		},
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	tasks, err := client.ListTasks(context.Background())
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
	if !tasks[1].IsCompleted {
		t.Error("expected second task to be completed")
	}
}

func TestChatStartsAndContinuesConversation(t *testing.T) {
	convID := uuid.New()

	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /v1/chat": func(w http.ResponseWriter, r *http.Request) {
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)

			if _, ok := body["conversation_id"]; ok && body["conversation_id"] != convID.String() {
				t.Errorf("unexpected conversation_id %v", body["conversation_id"])
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"data": ChatTurn{
					ConversationID:   convID,
					AssistantMessage: "Added 'buy milk' to your list.",
					ToolCalls: []ToolCall{
						{ToolName: "add_task", Success: true},
					},
				},
			})
		},
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	turn, err := client.Chat(context.Background(), "add buy milk", nil)
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if turn.ConversationID != convID {
		t.Errorf("expected conversation ID %s, got %s", convID, turn.ConversationID)
	}
	if len(turn.ToolCalls) != 1 || turn.ToolCalls[0].ToolName != "add_task" {
		t.Errorf("unexpected tool calls: %+v", turn.ToolCalls)
	}

	// Follow-up on the same conversation.
	if _, err := client.Chat(context.Background(), "thanks", &convID); err != nil {
		t.Fatalf("follow-up Chat failed: %v", err)
	}
}

func TestTokenRefreshOnExpiry(t *testing.T) {
	var logins atomic.Int32

	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /auth/login": func(w http.ResponseWriter, r *http.Request) {
			logins.Add(1)
			writeJSON(w, http.StatusOK, map[string]any{
				"data": map[string]any{
					// Already inside the refresh margin, so every request re-authenticates.
					"token":      "short-lived",
					"expires_at": time.Now().Add(5 * time.Second).Format(time.RFC3339),
				},
			})
		},
		"GET /v1/tasks": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"data": map[string]any{"tasks": []Task{}, "count": 0},
			})
		},
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	for range 3 {
		if _, err := client.ListTasks(context.Background()); err != nil {
			t.Fatalf("ListTasks failed: %v", err)
		}
	}

	if got := logins.Load(); got != 3 {
		t.Errorf("expected 3 logins for expiring tokens, got %d", got)
	}
}

func TestSignupCachesToken(t *testing.T) {
	var logins atomic.Int32

	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /auth/signup": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusCreated, map[string]any{
				"data": map[string]any{
					"token":      "signup-token",
					"expires_at": time.Now().Add(1 * time.Hour).Format(time.RFC3339),
				},
			})
		},
		"POST /auth/login": func(w http.ResponseWriter, r *http.Request) {
			logins.Add(1)
			writeJSON(w, http.StatusOK, map[string]any{
				"data": map[string]any{
					"token":      "login-token",
					"expires_at": time.Now().Add(1 * time.Hour).Format(time.RFC3339),
				},
			})
		},
		"GET /v1/tasks": func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer signup-token" {
				t.Errorf("expected signup token, got %q", r.Header.Get("Authorization"))
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"data": map[string]any{"tasks": []Task{}, "count": 0},
			})
		},
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	if err := client.Signup(context.Background()); err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	if _, err := client.ListTasks(context.Background()); err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if logins.Load() != 0 {
		t.Error("expected no login after signup issued a token")
	}
}

func TestErrorHelpers(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /v1/tasks/{task_id}": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusNotFound, map[string]any{
				"error": map[string]any{"code": "NOT_FOUND", "message": "task not found"},
			})
		},
		"POST /v1/chat": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusGatewayTimeout, map[string]any{
				"error": map[string]any{"code": "REASONING_TIMEOUT", "message": "too slow"},
			})
		},
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	_, err := client.GetTask(context.Background(), uuid.New())
	if !IsNotFound(err) {
		t.Errorf("expected IsNotFound, got %v", err)
	}

	_, err = client.Chat(context.Background(), "hi", nil)
	if !IsReasoningUnavailable(err) {
		t.Errorf("expected IsReasoningUnavailable, got %v", err)
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Code != "REASONING_TIMEOUT" {
		t.Errorf("expected REASONING_TIMEOUT code, got %v", err)
	}
}

func TestDeleteConversationNoContent(t *testing.T) {
	convID := uuid.New()
	srv := mockServer(t, map[string]http.HandlerFunc{
		"DELETE /v1/conversations/{conversation_id}": func(w http.ResponseWriter, r *http.Request) {
			if r.PathValue("conversation_id") != convID.String() {
				t.Errorf("unexpected path id %s", r.PathValue("conversation_id"))
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"data": map[string]any{"conversation_id": convID, "deleted": true},
			})
		},
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	if err := client.DeleteConversation(context.Background(), convID); err != nil {
		t.Fatalf("DeleteConversation failed: %v", err)
	}
}

func TestHealthSkipsAuth(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /auth/login": func(w http.ResponseWriter, r *http.Request) {
			t.Error("health check must not authenticate")
		},
		"GET /health": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"data": HealthResponse{Status: "healthy", Version: "1.0"},
			})
		},
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	health, err := client.Health(context.Background())
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if health.Status != "healthy" {
		t.Errorf("expected healthy, got %q", health.Status)
	}
}
