package chatdb

import (
	"encoding/json"

	"mcp-commit-story/pkg/model"
)

// bubbleRecord is the on-disk JSON shape of one chat bubble value. type 1 is
// a user message, type 2 is the assistant's reply; other fields (thinking
// steps, tool calls) are present in real records but intentionally not
// unmarshaled here since they are never surfaced as conversational text.
type bubbleRecord struct {
	Type      int    `json:"type"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// parseBubbleValue decodes a raw bubble value into a ChatMessage. It
// returns ok=false for records with no usable text (tool-only or
// reasoning-only bubbles), matching the "skip at extraction" rule.
func parseBubbleValue(raw []byte) (model.ChatMessage, bool) {
	var rec bubbleRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return model.ChatMessage{}, false
	}
	if rec.Text == "" {
		return model.ChatMessage{}, false
	}

	speaker := model.SpeakerAssistant
	if rec.Type == 1 {
		speaker = model.SpeakerUser
	}

	return model.ChatMessage{
		Speaker:     speaker,
		Text:        rec.Text,
		TimestampMs: rec.Timestamp,
	}, true
}
