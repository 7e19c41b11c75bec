// Package promptlog conditionally logs LLM prompts for debugging: prompts
// are sanitized before logging and, by default, only surfaced once a call
// has exhausted its retries rather than on every attempt.
package promptlog

import (
	"context"
	"errors"
	"time"

	"mcp-commit-story/pkg/agent/llm"
	"mcp-commit-story/pkg/agent/llmerrors"
	"mcp-commit-story/pkg/logx"
	"mcp-commit-story/pkg/utils"
)

// Mode defines when prompts should be logged.
type Mode string

const (
	Off       Mode = "off"
	OnFailure Mode = "on_failure"
	FinalOnly Mode = "final_only"
)

// Config configures prompt logging behavior.
type Config struct {
	Mode        Mode
	MaxChars    int
	IncludeHash bool
}

// DefaultConfig provides sensible defaults.
var DefaultConfig = Config{
	Mode:        FinalOnly,
	MaxChars:    4000,
	IncludeHash: true,
}

// Logger handles conditional logging of prompts based on configuration.
type Logger struct {
	logger  *logx.Logger
	config  Config
	counter *utils.TokenCounter
}

// New creates a new prompt logger with the given configuration.
func New(config Config, logger *logx.Logger) *Logger {
	counter, err := utils.NewTokenCounter("gpt-4")
	if err != nil {
		counter = nil
	}
	return &Logger{config: config, logger: logger, counter: counter}
}

// approxTokenCount estimates text's token count via tiktoken, falling back
// to the char/4 heuristic if no counter could be built.
func (pl *Logger) approxTokenCount(text string) int {
	if pl.counter == nil {
		return len(text) / 4
	}
	return pl.counter.CountTokens(text)
}

// LogRequest logs a prompt request if conditions are met.
func (pl *Logger) LogRequest(_ context.Context, req llm.CompletionRequest, err error, attempt int, isFinalAttempt bool, duration time.Duration) {
	if pl.config.Mode == Off {
		return
	}

	shouldLog := false
	switch pl.config.Mode {
	case OnFailure:
		shouldLog = err != nil
	case FinalOnly:
		shouldLog = err != nil && isFinalAttempt
	}
	if !shouldLog {
		return
	}

	promptContent := extractPromptContent(req)
	sanitized := llmerrors.SanitizePrompt(promptContent, pl.config.MaxChars)

	errorType := llmerrors.TypeOf(err)
	var statusCode int
	var llmErr *llmerrors.Error
	if errors.As(err, &llmErr) {
		statusCode = llmErr.StatusCode
	}

	approxTokens := pl.approxTokenCount(promptContent)

	pl.logger.Warn(
		"LLM request failed, prompt logged for debugging: type=%s status=%d attempt=%d final=%v duration_ms=%d prompt_chars=%d approx_tokens=%d max_tokens=%d messages=%d error=%v prompt=%s",
		errorType.String(), statusCode, attempt, isFinalAttempt, duration.Milliseconds(),
		len(promptContent), approxTokens, req.MaxTokens, len(req.Messages), err, sanitized,
	)
}

// LogSuccess logs successful requests at debug level for metrics.
func (pl *Logger) LogSuccess(_ context.Context, req llm.CompletionRequest, resp llm.CompletionResponse, attempt int, duration time.Duration) {
	promptLength := calculatePromptLength(req)
	approxTokens := pl.approxTokenCount(extractPromptContent(req))

	pl.logger.Debug(
		"LLM request succeeded: attempt=%d duration_ms=%d prompt_chars=%d approx_tokens=%d response_chars=%d max_tokens=%d",
		attempt, duration.Milliseconds(), promptLength, approxTokens, len(resp.Content), req.MaxTokens,
	)
}

func extractPromptContent(req llm.CompletionRequest) string {
	var content string
	for i := range req.Messages {
		msg := &req.Messages[i]
		if i > 0 {
			content += "\n\n"
		}
		content += "[" + string(msg.Role) + "]: " + msg.Content
	}
	return content
}

func calculatePromptLength(req llm.CompletionRequest) int {
	total := 0
	for i := range req.Messages {
		total += len(req.Messages[i].Content)
	}
	return total
}
