package tasuku

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the Tasuku server (e.g. "http://localhost:8080").
	BaseURL string

	// Email and Password are the account credentials. The client logs in
	// lazily and refreshes the token before it expires.
	Email    string
	Password string

	// HTTPClient is an optional custom HTTP client. If nil, a default client
	// with a 30-second timeout is used.
	HTTPClient *http.Client

	// Timeout applies to individual API requests. Defaults to 30 seconds.
	Timeout time.Duration
}

// Client is an HTTP client for the Tasuku API.
// All methods are safe for concurrent use.
type Client struct {
	baseURL  string
	client   *http.Client
	tokenMgr *tokenManager
}

// NewClient creates a Client from the given configuration.
// Returns an error if BaseURL, Email, or Password is empty.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("tasuku: BaseURL is required")
	}
	if cfg.Email == "" {
		return nil, fmt.Errorf("tasuku: Email is required")
	}
	if cfg.Password == "" {
		return nil, fmt.Errorf("tasuku: Password is required")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:  baseURL,
		client:   httpClient,
		tokenMgr: newTokenManager(baseURL, cfg.Email, cfg.Password, httpClient),
	}, nil
}

// Signup registers the account from the client's configuration and caches
// the issued token. Call once for a fresh account; afterwards the client
// logs in with the same credentials as needed.
func (c *Client) Signup(ctx context.Context) error {
	body, err := json.Marshal(loginRequest{Email: c.tokenMgr.email, Password: c.tokenMgr.password})
	if err != nil {
		return fmt.Errorf("tasuku: marshal signup request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/signup", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("tasuku: create signup request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("tasuku: signup request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("tasuku: read signup response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp.StatusCode, bodyBytes)
	}

	var envelope tokenEnvelope
	if err := json.Unmarshal(bodyBytes, &envelope); err != nil {
		return fmt.Errorf("tasuku: decode signup response: %w", err)
	}
	c.tokenMgr.setToken(envelope.Data.Token, envelope.Data.ExpiresAt)
	return nil
}

// ---------------------------------------------------------------------------
// Tasks
// ---------------------------------------------------------------------------

// CreateTask creates a task. Description may be nil.
func (c *Client) CreateTask(ctx context.Context, title string, description *string) (*Task, error) {
	body := map[string]any{"title": title}
	if description != nil {
		body["description"] = *description
	}
	var resp Task
	if err := c.post(ctx, "/v1/tasks", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListTasks returns all of the caller's tasks, newest first.
func (c *Client) ListTasks(ctx context.Context) ([]Task, error) {
	var resp struct {
		Tasks []Task `json:"tasks"`
	}
	if err := c.get(ctx, "/v1/tasks", &resp); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

// GetTask retrieves one task by id.
func (c *Client) GetTask(ctx context.Context, taskID uuid.UUID) (*Task, error) {
	var resp Task
	if err := c.get(ctx, "/v1/tasks/"+taskID.String(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateTask changes a task's title and/or description.
// At least one field of req must be set.
func (c *Client) UpdateTask(ctx context.Context, taskID uuid.UUID, req UpdateTaskRequest) (*Task, error) {
	var resp Task
	if err := c.patch(ctx, "/v1/tasks/"+taskID.String(), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ToggleTask flips the task's completion state and returns the updated task.
func (c *Client) ToggleTask(ctx context.Context, taskID uuid.UUID) (*Task, error) {
	var resp Task
	if err := c.post(ctx, "/v1/tasks/"+taskID.String()+"/toggle", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteTask removes a task.
func (c *Client) DeleteTask(ctx context.Context, taskID uuid.UUID) error {
	return c.doDelete(ctx, "/v1/tasks/"+taskID.String(), nil)
}

// ---------------------------------------------------------------------------
// Chat
// ---------------------------------------------------------------------------

// Chat sends one message to the assistant. Pass a nil conversationID to
// start a new conversation; the returned turn carries the id to continue it.
func (c *Client) Chat(ctx context.Context, message string, conversationID *uuid.UUID) (*ChatTurn, error) {
	body := map[string]any{"message": message}
	if conversationID != nil {
		body["conversation_id"] = conversationID.String()
	}
	var resp ChatTurn
	if err := c.post(ctx, "/v1/chat", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListConversations returns the caller's conversations, most recently
// updated first.
func (c *Client) ListConversations(ctx context.Context) ([]Conversation, error) {
	var resp struct {
		Conversations []Conversation `json:"conversations"`
	}
	if err := c.get(ctx, "/v1/conversations", &resp); err != nil {
		return nil, err
	}
	return resp.Conversations, nil
}

// ConversationMessages retrieves a conversation with its full message log.
func (c *Client) ConversationMessages(ctx context.Context, conversationID uuid.UUID) (*ConversationHistory, error) {
	var resp ConversationHistory
	if err := c.get(ctx, "/v1/conversations/"+conversationID.String()+"/messages", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteConversation removes a conversation and all of its messages.
func (c *Client) DeleteConversation(ctx context.Context, conversationID uuid.UUID) error {
	return c.doDelete(ctx, "/v1/conversations/"+conversationID.String(), nil)
}

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

// Health checks the server's health status. This endpoint does not require
// authentication and will work even if the client has invalid credentials.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.getNoAuth(ctx, "/health", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ---------------------------------------------------------------------------
// HTTP transport
// ---------------------------------------------------------------------------

// apiEnvelope is the server's standard response wrapper.
type apiEnvelope struct {
	Data json.RawMessage `json:"data"`
}

// apiErrorEnvelope is the server's standard error response wrapper.
type apiErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) post(ctx context.Context, path string, body any, dest any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("tasuku: marshal request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("tasuku: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doRequest(ctx, req, dest)
}

func (c *Client) patch(ctx context.Context, path string, body any, dest any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("tasuku: marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("tasuku: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doRequest(ctx, req, dest)
}

func (c *Client) get(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("tasuku: create request: %w", err)
	}

	return c.doRequest(ctx, req, dest)
}

func (c *Client) doDelete(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("tasuku: create request: %w", err)
	}

	return c.doRequest(ctx, req, dest)
}

func (c *Client) getNoAuth(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("tasuku: create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("tasuku: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return handleResponse(resp, dest)
}

func (c *Client) doRequest(ctx context.Context, req *http.Request, dest any) error {
	token, err := c.tokenMgr.getToken(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("tasuku: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return handleResponse(resp, dest)
}

func handleResponse(resp *http.Response, dest any) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("tasuku: read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp.StatusCode, bodyBytes)
	}

	// 204 No Content — nothing to decode.
	if resp.StatusCode == http.StatusNoContent || dest == nil {
		return nil
	}

	// Unwrap the server's { "data": ... } envelope.
	var envelope apiEnvelope
	if err := json.Unmarshal(bodyBytes, &envelope); err != nil {
		return fmt.Errorf("tasuku: decode response envelope: %w", err)
	}

	if envelope.Data == nil {
		// Fallback: some endpoints may not wrap in "data".
		return json.Unmarshal(bodyBytes, dest)
	}

	return json.Unmarshal(envelope.Data, dest)
}

func parseErrorResponse(statusCode int, body []byte) *Error {
	apiErr := &Error{StatusCode: statusCode}

	var envelope apiErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	} else {
		apiErr.Code = http.StatusText(statusCode)
		apiErr.Message = string(body)
	}

	return apiErr
}
