package tools

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
)

// Handler executes one tool call for the given user. The user id comes
// from the caller's verified identity, never from the tool input.
type Handler func(ctx context.Context, userID uuid.UUID, input json.RawMessage) Envelope

// Tool is one entry in the registry: a name, a description for the
// reasoning model, a JSON-schema property map, and the handler.
type Tool struct {
	Name        string
	Description string
	Schema      map[string]any
	Required    []string
	Handler     Handler
}

// Registry holds the task tools in a stable order.
type Registry struct {
	store  TaskStore
	logger *slog.Logger
	tools  []Tool
	byName map[string]int
}

// NewRegistry builds the registry with all five task tools registered.
func NewRegistry(store TaskStore, logger *slog.Logger) *Registry {
	r := &Registry{
		store:  store,
		logger: logger,
		byName: make(map[string]int),
	}
	r.Register(r.addTaskTool())
	r.Register(r.listTasksTool())
	r.Register(r.completeTaskTool())
	r.Register(r.deleteTaskTool())
	r.Register(r.updateTaskTool())
	return r
}

// Register adds a tool to the registry. Registering a name that already
// exists replaces the earlier entry in place.
func (r *Registry) Register(t Tool) {
	if i, ok := r.byName[t.Name]; ok {
		r.tools[i] = t
		return
	}
	r.tools = append(r.tools, t)
	r.byName[t.Name] = len(r.tools) - 1
}

// All returns the registered tools in registration order.
func (r *Registry) All() []Tool {
	return r.tools
}

// Call dispatches a named tool. An unknown name is a validation
// failure rather than an error: the reasoning model sees the envelope
// and can correct itself.
func (r *Registry) Call(ctx context.Context, name string, userID uuid.UUID, input json.RawMessage) Envelope {
	i, ok := r.byName[name]
	if !ok {
		return Fail(CodeValidation, "unknown tool: "+name)
	}
	env := r.tools[i].Handler(ctx, userID, input)
	if !env.Success {
		r.logger.Warn("tool call failed",
			"tool", name,
			"user_id", userID,
			"code", env.Err.Code,
		)
	}
	return env
}
