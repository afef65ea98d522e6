// Package mcp implements the Model Context Protocol server for Tasuku.
//
// It exposes the same five task tools the conversational agent uses,
// so MCP-compatible clients can operate on tasks directly. Both
// surfaces share one tool registry; the only difference is transport.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/tasuku-ai/tasuku/internal/ctxutil"
	"github.com/tasuku-ai/tasuku/internal/tools"
)

// Server wraps the MCP server around the shared tool registry.
type Server struct {
	mcpServer *mcpserver.MCPServer
	registry  *tools.Registry
	logger    *slog.Logger
}

// New creates and configures an MCP server with all task tools
// registered.
func New(registry *tools.Registry, version string, logger *slog.Logger) *Server {
	s := &Server{
		registry: registry,
		logger:   logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"tasuku",
		version,
		mcpserver.WithToolCapabilities(true),
	)

	s.registerTools()
	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	for _, t := range s.registry.All() {
		schema, err := json.Marshal(map[string]any{
			"type":       "object",
			"properties": t.Schema,
			"required":   t.Required,
		})
		if err != nil {
			// Schemas are static literals; this cannot fail at runtime.
			panic(fmt.Sprintf("mcp: marshal schema for %s: %v", t.Name, err))
		}
		s.mcpServer.AddTool(
			mcplib.NewToolWithRawSchema(t.Name, t.Description, schema),
			s.handleTool(t.Name),
		)
	}
}

// handleTool adapts one registry tool to the MCP call interface. The
// acting user comes from the authenticated context, never from tool
// arguments.
func (s *Server) handleTool(name string) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		userID := ctxutil.UserIDFromContext(ctx)
		if userID == uuid.Nil {
			env := tools.Fail(tools.CodeAuthorization, "no authenticated user on this connection")
			return envelopeResult(env)
		}

		args, err := json.Marshal(request.GetArguments())
		if err != nil {
			env := tools.Fail(tools.CodeValidation, "invalid tool arguments")
			return envelopeResult(env)
		}

		env := s.registry.Call(ctx, name, userID, args)
		return envelopeResult(env)
	}
}

func envelopeResult(env tools.Envelope) (*mcplib.CallToolResult, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal result: %w", err)
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
		IsError: !env.Success,
	}, nil
}
