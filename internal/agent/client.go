// Package agent runs the conversational reasoning loop: it sends the
// conversation to the Anthropic Messages API, executes any tool calls
// the model requests against the task tool registry, and feeds results
// back until the model produces a final reply.
package agent

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultModel is used when no model is configured.
const DefaultModel = anthropic.ModelClaudeSonnet4_5_20250929

// Client wraps the Anthropic SDK client.
type Client struct {
	inner anthropic.Client
	model anthropic.Model
}

// NewClient builds an API client. The key is required; an empty model
// falls back to DefaultModel.
func NewClient(apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("agent: API key is required")
	}
	m := anthropic.Model(model)
	if model == "" {
		m = DefaultModel
	}
	return &Client{
		inner: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model: m,
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() anthropic.Model {
	return c.model
}

func (c *Client) createMessage(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	return c.inner.Messages.New(ctx, params)
}
