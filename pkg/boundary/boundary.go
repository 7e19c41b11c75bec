// Package boundary implements the AI boundary filter: a single LLM call
// that trims a ChatWindow down to the slice of conversation belonging to
// one commit, following spec's confidence-banded policy (>=8 strict trim,
// 5-7 trim-and-flag-ambiguous, <5 or error keep-whole).
package boundary

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"mcp-commit-story/pkg/agent/llm"
	"mcp-commit-story/pkg/logx"
	"mcp-commit-story/pkg/model"
	"mcp-commit-story/pkg/utils"
)

const (
	strictTrimThreshold   = 8
	ambiguousTrimMinimum  = 5
	maxConversationTokens = 3000 // bound the prompt for very long windows
)

// Filter trims a ChatWindow to the portion relevant to commit, using client
// for the single boundary-detection call. It never returns an error: any
// failure to resolve a clean boundary falls back to the untrimmed window.
type Filter struct {
	client  llm.LLMClient
	logger  *logx.Logger
	counter *utils.TokenCounter
}

// New creates a Filter backed by client.
func New(client llm.LLMClient, logger *logx.Logger) *Filter {
	counter, err := utils.NewTokenCounter("gpt-4")
	if err != nil {
		counter = nil
	}
	return &Filter{client: client, logger: logger, counter: counter}
}

// countTokens estimates text's token count via tiktoken, falling back to
// the char/4 heuristic if no counter could be built.
func (f *Filter) countTokens(text string) int {
	if f.counter == nil {
		return len(text) / 4
	}
	return f.counter.CountTokens(text)
}

type boundaryResponse struct {
	FirstBubbleID string `json:"first_bubble_id"`
	LastBubbleID  string `json:"last_bubble_id"`
	Confidence    int    `json:"confidence"`
}

// Apply runs the boundary filter against window for the given commit,
// returning a (possibly trimmed) window with QualityMetadata updated.
func (f *Filter) Apply(ctx context.Context, window model.ChatWindow, commit model.Commit, previousEntryMD string) model.ChatWindow {
	if len(window.Messages) == 0 {
		return window
	}

	if f.client == nil {
		window.Quality.BoundaryNote = "boundary filter skipped: no LLM client configured"
		return window
	}

	req := llm.NewCompletionRequest([]llm.CompletionMessage{
		llm.NewSystemMessage(systemPrompt),
		llm.NewUserMessage(f.buildUserPrompt(window, commit, previousEntryMD)),
	})
	req.Temperature = 0
	req.MaxTokens = 256

	resp, err := f.client.Complete(ctx, req)
	if err != nil {
		window.Quality.BoundaryNote = fmt.Sprintf("boundary filter call failed, keeping whole window: %v", err)
		if f.logger != nil {
			f.logger.Warn("boundary filter call failed: %v", err)
		}
		return window
	}

	parsed, ok := parseResponse(resp.Content)
	if !ok {
		window.Quality.BoundaryNote = "boundary filter returned unparseable response, keeping whole window"
		return window
	}

	return f.applyDecision(window, parsed)
}

func (f *Filter) applyDecision(window model.ChatWindow, decision boundaryResponse) model.ChatWindow {
	switch {
	case decision.Confidence < ambiguousTrimMinimum:
		window.Quality.BoundaryNote = fmt.Sprintf("confidence %d below threshold, keeping whole window", decision.Confidence)
		return window

	case decision.Confidence < strictTrimThreshold:
		trimmed, ok := trimToBoundary(window, decision.FirstBubbleID, decision.LastBubbleID)
		if !ok {
			window.Quality.BoundaryNote = "ambiguous boundary bubbleIds did not resolve, keeping whole window"
			if f.logger != nil {
				f.logger.Warn("boundary bubbleIds %q..%q did not resolve, keeping whole window", decision.FirstBubbleID, decision.LastBubbleID)
			}
			return window
		}
		trimmed.Quality.Ambiguous = true
		trimmed.Quality.BoundaryNote = fmt.Sprintf("trimmed with ambiguous confidence %d", decision.Confidence)
		return trimmed

	default:
		trimmed, ok := trimToBoundary(window, decision.FirstBubbleID, decision.LastBubbleID)
		if !ok {
			window.Quality.BoundaryNote = "boundary bubbleIds did not resolve, keeping whole window"
			if f.logger != nil {
				f.logger.Warn("boundary bubbleIds %q..%q did not resolve, keeping whole window", decision.FirstBubbleID, decision.LastBubbleID)
			}
			return window
		}
		trimmed.Quality.BoundaryNote = fmt.Sprintf("strictly trimmed with confidence %d", decision.Confidence)
		return trimmed
	}
}

// trimToBoundary returns the slice of window.Messages between first and
// last bubbleId, inclusive. ok is false if either id cannot be found.
func trimToBoundary(window model.ChatWindow, firstBubbleID, lastBubbleID string) (model.ChatWindow, bool) {
	firstIdx, lastIdx := -1, -1
	for i := range window.Messages {
		if window.Messages[i].BubbleID == firstBubbleID {
			firstIdx = i
		}
		if window.Messages[i].BubbleID == lastBubbleID {
			lastIdx = i
		}
	}
	if firstIdx == -1 || lastIdx == -1 || firstIdx > lastIdx {
		return model.ChatWindow{}, false
	}

	trimmed := window
	trimmed.Messages = append([]model.ChatMessage{}, window.Messages[firstIdx:lastIdx+1]...)
	trimmed.Quality.MessagesAfterFilter = len(trimmed.Messages)
	return trimmed, true
}

func parseResponse(content string) (boundaryResponse, bool) {
	content = extractJSON(content)
	var parsed boundaryResponse
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return boundaryResponse{}, false
	}
	if parsed.FirstBubbleID == "" || parsed.LastBubbleID == "" {
		return boundaryResponse{}, false
	}
	return parsed, true
}

// extractJSON strips markdown code fences a model sometimes wraps its JSON in.
func extractJSON(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}

const systemPrompt = `You identify which portion of a chat conversation belongs to a specific git commit's work. Respond with JSON only: {"first_bubble_id": "...", "last_bubble_id": "...", "confidence": <1-10>}. confidence reflects how sure you are that the boundaries you chose exclude conversation belonging to earlier or unrelated work.`

func (f *Filter) buildUserPrompt(window model.ChatWindow, commit model.Commit, previousEntryMD string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Commit %s: %s\n\n", commit.ShortHash(), commit.Message)
	if previousEntryMD != "" {
		b.WriteString("Previous journal entry (for context on what's already covered):\n")
		b.WriteString(previousEntryMD)
		b.WriteString("\n\n")
	}
	b.WriteString("Conversation (bubbleId: speaker: text):\n")

	usedTokens := 0
	for i := range window.Messages {
		msg := &window.Messages[i]
		line := fmt.Sprintf("%s: %s: %s\n", msg.BubbleID, msg.Speaker, msg.Text)
		lineTokens := f.countTokens(line)
		if usedTokens+lineTokens > maxConversationTokens {
			break
		}
		b.WriteString(line)
		usedTokens += lineTokens
	}

	return b.String()
}
