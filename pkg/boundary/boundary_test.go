package boundary

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mcp-commit-story/pkg/agent/llm"
	"mcp-commit-story/pkg/model"
)

type stubClient struct {
	content string
	err     error
}

func (s *stubClient) Complete(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
	if s.err != nil {
		return llm.CompletionResponse{}, s.err
	}
	return llm.CompletionResponse{Content: s.content}, nil
}

func (s *stubClient) Stream(_ context.Context, _ llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk)
	close(ch)
	return ch, nil
}

func (s *stubClient) GetDefaultConfig() llm.ModelDefaults { return llm.ModelDefaults{} }

func testWindow() model.ChatWindow {
	base := time.Now()
	msgs := []model.ChatMessage{
		{BubbleID: "b1", Speaker: model.SpeakerUser, Text: "earlier unrelated thing", TimestampMs: base.Add(-time.Hour).UnixMilli()},
		{BubbleID: "b2", Speaker: model.SpeakerUser, Text: "let's start the feature", TimestampMs: base.UnixMilli()},
		{BubbleID: "b3", Speaker: model.SpeakerAssistant, Text: "sure, here's a plan", TimestampMs: base.Add(time.Minute).UnixMilli()},
		{BubbleID: "b4", Speaker: model.SpeakerUser, Text: "looks good, ship it", TimestampMs: base.Add(2 * time.Minute).UnixMilli()},
	}
	return model.ChatWindow{Messages: msgs, Quality: model.QualityMetadata{MessagesTotal: len(msgs)}}
}

func TestApplyStrictTrimAboveThreshold(t *testing.T) {
	client := &stubClient{content: `{"first_bubble_id":"b2","last_bubble_id":"b4","confidence":9}`}
	f := New(client, nil)

	result := f.Apply(context.Background(), testWindow(), model.Commit{Hash: "abc123"}, "")

	require.Len(t, result.Messages, 3)
	require.Equal(t, "b2", result.Messages[0].BubbleID)
	require.False(t, result.Quality.Ambiguous)
}

func TestApplyTrimsAndFlagsAmbiguousMidRange(t *testing.T) {
	client := &stubClient{content: `{"first_bubble_id":"b2","last_bubble_id":"b4","confidence":6}`}
	f := New(client, nil)

	result := f.Apply(context.Background(), testWindow(), model.Commit{Hash: "abc123"}, "")

	require.Len(t, result.Messages, 3)
	require.True(t, result.Quality.Ambiguous)
}

func TestApplyKeepsWholeWindowBelowMinimum(t *testing.T) {
	client := &stubClient{content: `{"first_bubble_id":"b2","last_bubble_id":"b4","confidence":3}`}
	f := New(client, nil)

	result := f.Apply(context.Background(), testWindow(), model.Commit{Hash: "abc123"}, "")

	require.Len(t, result.Messages, 4)
	require.False(t, result.Quality.Ambiguous)
}

func TestApplyKeepsWholeWindowOnClientError(t *testing.T) {
	client := &stubClient{err: require.AnError}
	f := New(client, nil)

	result := f.Apply(context.Background(), testWindow(), model.Commit{Hash: "abc123"}, "")

	require.Len(t, result.Messages, 4)
	require.Contains(t, result.Quality.BoundaryNote, "keeping whole window")
}

func TestApplyKeepsWholeWindowOnUnresolvableBubbleIDs(t *testing.T) {
	client := &stubClient{content: `{"first_bubble_id":"nope","last_bubble_id":"also-nope","confidence":9}`}
	f := New(client, nil)

	result := f.Apply(context.Background(), testWindow(), model.Commit{Hash: "abc123"}, "")

	require.Len(t, result.Messages, 4)
	require.Contains(t, result.Quality.BoundaryNote, "did not resolve")
}

func TestApplyKeepsWholeWindowOnUnparseableResponse(t *testing.T) {
	client := &stubClient{content: "not json at all"}
	f := New(client, nil)

	result := f.Apply(context.Background(), testWindow(), model.Commit{Hash: "abc123"}, "")

	require.Len(t, result.Messages, 4)
	require.Contains(t, result.Quality.BoundaryNote, "unparseable")
}

func TestApplyHandlesEmptyWindow(t *testing.T) {
	f := New(&stubClient{}, nil)
	result := f.Apply(context.Background(), model.ChatWindow{}, model.Commit{Hash: "abc123"}, "")
	require.Empty(t, result.Messages)
}

func TestApplyHandlesMarkdownFencedResponse(t *testing.T) {
	client := &stubClient{content: "```json\n{\"first_bubble_id\":\"b2\",\"last_bubble_id\":\"b3\",\"confidence\":9}\n```"}
	f := New(client, nil)

	result := f.Apply(context.Background(), testWindow(), model.Commit{Hash: "abc123"}, "")
	require.Len(t, result.Messages, 2)
}
