// Package resilient composes a concrete llm.LLMClient with the full
// resiliency stack: circuit breaker on the inside, retry with backoff on
// the outside (so a breaker rejection is never itself retried), and
// optional prompt logging on failure.
package resilient

import (
	"context"
	"time"

	"mcp-commit-story/pkg/agent/llm"
	"mcp-commit-story/pkg/agent/llm/promptlog"
	"mcp-commit-story/pkg/agent/resilience"
	"mcp-commit-story/pkg/breaker"
	"mcp-commit-story/pkg/logx"
)

// Wrap returns base wrapped with a circuit breaker and retry logic, with no
// prompt logging.
func Wrap(base llm.LLMClient) llm.LLMClient {
	return WrapWithLogger(base, nil)
}

// WrapWithLogger returns base wrapped with a circuit breaker, retry logic,
// and (if logger is non-nil) prompt logging on failed final attempts.
func WrapWithLogger(base llm.LLMClient, logger *logx.Logger) llm.LLMClient {
	cb := breaker.New(base, breaker.DefaultConfig, logger)

	retryConfig := resilience.DefaultRetryConfig
	retryConfig.MaxRetries = 2 // circuit breaker already shields sustained failures

	retryable := resilience.NewRetryableClientWithLogger(cb, retryConfig, logger)

	if logger == nil {
		return retryable
	}
	return &loggingClient{inner: retryable, log: promptlog.New(promptlog.DefaultConfig, logger)}
}

// loggingClient records prompt content alongside the retryable client's result.
type loggingClient struct {
	inner llm.LLMClient
	log   *promptlog.Logger
}

func (c *loggingClient) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	start := time.Now()
	resp, err := c.inner.Complete(ctx, req)
	duration := time.Since(start)

	if err != nil {
		c.log.LogRequest(ctx, req, err, 0, true, duration)
	} else {
		c.log.LogSuccess(ctx, req, resp, 0, duration)
	}
	return resp, err
}

func (c *loggingClient) Stream(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	return c.inner.Stream(ctx, req)
}

func (c *loggingClient) GetDefaultConfig() llm.ModelDefaults {
	return c.inner.GetDefaultConfig()
}
