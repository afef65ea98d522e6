package tasuku

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
)

// ToolHandler executes one extension tool call. The user id comes from the
// caller's verified identity, never from the tool input. On success the
// returned map becomes the tool result payload; a returned *ToolError keeps
// its code in the failure envelope, any other error maps to a generic code.
type ToolHandler func(ctx context.Context, userID uuid.UUID, input json.RawMessage) (map[string]any, error)

// Tool is an extension tool registered via WithTool. It is exposed to the
// reasoning model alongside the built-in task tools and over MCP.
// Registering a built-in tool name replaces that tool.
type Tool struct {
	Name        string
	Description string
	// Schema is the JSON-schema property map for the tool input.
	Schema   map[string]any
	Required []string
	Handler  ToolHandler
}

// TurnHook receives every completed chat turn after it has been persisted.
// Hooks run synchronously on the request path; keep them fast or hand off
// to a goroutine internally.
type TurnHook interface {
	TurnCompleted(ctx context.Context, turn Turn)
}

// RouteRegistrar registers additional routes on the shared HTTP mux.
// Registered routes sit behind the standard middleware chain, so every
// request reaching them carries verified auth claims.
type RouteRegistrar func(mux *http.ServeMux)

// Middleware wraps the entire HTTP handler chain.
type Middleware func(http.Handler) http.Handler
