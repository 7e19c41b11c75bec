package promptlog

import (
	"context"
	"fmt"
	"testing"
	"time"

	"mcp-commit-story/pkg/agent/llm"
	"mcp-commit-story/pkg/logx"
)

func TestLogRequestSkippedWhenOff(t *testing.T) {
	pl := New(Config{Mode: Off}, logx.NewLogger("test"))
	req := llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("hi")})
	pl.LogRequest(context.Background(), req, fmt.Errorf("boom"), 0, true, time.Millisecond)
}

func TestLogRequestFinalOnlySkipsNonFinalAttempt(t *testing.T) {
	pl := New(Config{Mode: FinalOnly, MaxChars: 100}, logx.NewLogger("test"))
	req := llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("hi")})
	pl.LogRequest(context.Background(), req, fmt.Errorf("boom"), 0, false, time.Millisecond)
}

func TestLogRequestFinalAttemptLogs(t *testing.T) {
	pl := New(Config{Mode: FinalOnly, MaxChars: 100}, logx.NewLogger("test"))
	req := llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("hi")})
	pl.LogRequest(context.Background(), req, fmt.Errorf("boom"), 2, true, time.Millisecond)
}

func TestLogSuccess(t *testing.T) {
	pl := New(DefaultConfig, logx.NewLogger("test"))
	req := llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("hi")})
	resp := llm.CompletionResponse{Content: "ok"}
	pl.LogSuccess(context.Background(), req, resp, 0, time.Millisecond)
}
