package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/google/uuid"

	"github.com/tasuku-ai/tasuku/internal/model"
	"github.com/tasuku-ai/tasuku/internal/tools"
)

const maxResponseTokens = 4096

// emptyReplyFallback stands in when the model ends its turn without any
// text block, which the API permits after tool-only output. Persisted
// messages must carry non-empty content.
const emptyReplyFallback = "Done. Let me know if you need anything else."

// ErrMaxIterations is returned when the model keeps requesting tools
// past the configured iteration bound without producing a final reply.
var ErrMaxIterations = errors.New("agent: reasoning did not converge")

// reasoner is the slice of the API client the loop needs. Split out so
// tests can substitute scripted responses.
type reasoner interface {
	createMessage(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error)
}

// Result is the outcome of one fully resolved turn.
type Result struct {
	AssistantMessage string
	ToolCalls        []model.ToolCall
	Iterations       int
	TokensIn         int64
	TokensOut        int64
}

// Orchestrator drives the tool-use loop for a single turn. It holds no
// conversation state of its own: every run receives the full history
// and produces a complete result.
type Orchestrator struct {
	reasoner      reasoner
	registry      *tools.Registry
	model         anthropic.Model
	maxIterations int
	timeout       time.Duration
	logger        *slog.Logger
}

// Config configures an Orchestrator.
type Config struct {
	Client        *Client
	Registry      *tools.Registry
	MaxIterations int
	Timeout       time.Duration
	Logger        *slog.Logger
}

// New builds an orchestrator around an API client and tool registry.
func New(cfg Config) *Orchestrator {
	maxIter := cfg.MaxIterations
	if maxIter <= 0 {
		maxIter = 10
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Orchestrator{
		reasoner:      cfg.Client,
		registry:      cfg.Registry,
		model:         cfg.Client.Model(),
		maxIterations: maxIter,
		timeout:       timeout,
		logger:        cfg.Logger,
	}
}

// Run resolves one turn: the prior history plus the new user message go
// to the model, requested tools execute under userID, and the loop
// continues until the model stops asking for tools.
func (o *Orchestrator) Run(ctx context.Context, userID uuid.UUID, history []model.Message, userMessage string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	messages := buildHistory(history)
	messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(userMessage)))

	result := &Result{}
	start := time.Now()

	for result.Iterations < o.maxIterations {
		result.Iterations++

		resp, err := o.reasoner.createMessage(ctx, anthropic.MessageNewParams{
			Model:     o.model,
			MaxTokens: maxResponseTokens,
			System: []anthropic.TextBlockParam{
				{Text: systemPrompt},
			},
			Messages: messages,
			Tools:    o.toolDefinitions(),
		})
		if err != nil {
			return nil, fmt.Errorf("agent: reasoning call: %w", err)
		}

		result.TokensIn += resp.Usage.InputTokens
		result.TokensOut += resp.Usage.OutputTokens

		var assistantBlocks []anthropic.ContentBlockParamUnion
		var toolResultBlocks []anthropic.ContentBlockParamUnion
		var textOutput string

		for _, block := range resp.Content {
			switch variant := block.AsAny().(type) {
			case anthropic.TextBlock:
				textOutput += variant.Text
				assistantBlocks = append(assistantBlocks, anthropic.NewTextBlock(variant.Text))

			case anthropic.ToolUseBlock:
				assistantBlocks = append(assistantBlocks,
					anthropic.NewToolUseBlock(variant.ID, variant.Input, variant.Name))

				env := o.registry.Call(ctx, variant.Name, userID, variant.Input)
				result.ToolCalls = append(result.ToolCalls, recordCall(variant.Name, variant.Input, env))

				payload, err := json.Marshal(env)
				if err != nil {
					return nil, fmt.Errorf("agent: encode tool result: %w", err)
				}
				toolResultBlocks = append(toolResultBlocks,
					anthropic.NewToolResultBlock(variant.ID, string(payload), !env.Success))
			}
		}

		if resp.StopReason == anthropic.StopReasonEndTurn {
			if textOutput == "" {
				o.logger.Warn("model ended turn without text", "user_id", userID)
				textOutput = emptyReplyFallback
			}
			result.AssistantMessage = textOutput
			o.logger.Info("turn resolved",
				"user_id", userID,
				"iterations", result.Iterations,
				"tool_calls", len(result.ToolCalls),
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return result, nil
		}

		messages = append(messages, anthropic.NewAssistantMessage(assistantBlocks...))
		if len(toolResultBlocks) > 0 {
			messages = append(messages, anthropic.NewUserMessage(toolResultBlocks...))
		}
	}

	return nil, fmt.Errorf("agent: %d iterations: %w", o.maxIterations, ErrMaxIterations)
}

// buildHistory converts persisted messages into API message params.
// System messages are skipped: the system prompt is supplied separately
// on every call.
func buildHistory(history []model.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case model.RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case model.RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return out
}

func (o *Orchestrator) toolDefinitions() []anthropic.ToolUnionParam {
	defs := make([]anthropic.ToolUnionParam, 0, len(o.registry.All()))
	for _, t := range o.registry.All() {
		defs = append(defs, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: t.Schema,
					Required:   t.Required,
				},
			},
		})
	}
	return defs
}

func recordCall(name string, input json.RawMessage, env tools.Envelope) model.ToolCall {
	params := map[string]any{}
	if len(input) > 0 {
		// Best effort: malformed input already produced a validation
		// failure in the envelope.
		_ = json.Unmarshal(input, &params)
	}
	return model.ToolCall{
		ToolName:   name,
		Parameters: params,
		Result:     env.AsMap(),
		Success:    env.Success,
	}
}
