// Package openaiclient wraps the official OpenAI Go SDK's Responses API to
// implement llm.LLMClient. Tool-calling conversion is dropped: section
// generators only ever need plain text completions.
package openaiclient

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"mcp-commit-story/pkg/agent/llm"
	"mcp-commit-story/pkg/agent/llm/resilient"
	"mcp-commit-story/pkg/logx"
)

const DefaultModel = "o3-mini"

// Client wraps the official OpenAI client to implement llm.LLMClient.
type Client struct {
	client openai.Client
	model  string
}

// New creates a resilient client (circuit breaker + retry) using the default model.
func New(apiKey string) llm.LLMClient {
	return NewWithLogger(apiKey, nil)
}

// NewWithLogger creates a resilient client with prompt logging.
func NewWithLogger(apiKey string, logger *logx.Logger) llm.LLMClient {
	return resilient.WrapWithLogger(NewWithModel(apiKey, DefaultModel), logger)
}

// NewWithModel creates a bare client pinned to a specific model, without the
// resiliency wrapping New applies.
func NewWithModel(apiKey, model string) *Client {
	return &Client{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func inputText(messages []llm.CompletionMessage) string {
	var text string
	for i := range messages {
		msg := &messages[i]
		switch msg.Role {
		case llm.RoleSystem:
			text += "System: " + msg.Content + "\n\n"
		case llm.RoleAssistant:
			text += "Assistant: " + msg.Content + "\n\n"
		default:
			text += msg.Content
		}
	}
	return text
}

// Complete implements llm.LLMClient using the Responses API.
func (c *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	params := responses.ResponseNewParams{
		Model:           c.model,
		MaxOutputTokens: openai.Int(int64(in.MaxTokens)),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(inputText(in.Messages))},
	}

	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, fmt.Errorf("openai responses request failed: %w", err)
	}
	if resp == nil {
		return llm.CompletionResponse{}, fmt.Errorf("empty response from openai responses api")
	}

	return llm.CompletionResponse{Content: resp.OutputText()}, nil
}

// Stream implements llm.LLMClient by completing the request and replaying it
// as chunks; the Responses API's native streaming surface is still in flux
// upstream, so section generators get the same interface without depending
// on it.
func (c *Client) Stream(ctx context.Context, in llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk, 2)
	go func() {
		defer close(ch)
		resp, err := c.Complete(ctx, in)
		if err != nil {
			ch <- llm.StreamChunk{Error: err}
			return
		}
		ch <- llm.StreamChunk{Content: resp.Content}
		ch <- llm.StreamChunk{Done: true}
	}()
	return ch, nil
}

// GetDefaultConfig implements llm.LLMClient.
func (c *Client) GetDefaultConfig() llm.ModelDefaults {
	return llm.ModelDefaults{Name: c.model, MaxTokens: 4096, Temperature: 1.0}
}
