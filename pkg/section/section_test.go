package section

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mcp-commit-story/pkg/agent/llm"
	"mcp-commit-story/pkg/model"
)

type stubClient struct {
	respond func(req llm.CompletionRequest) (string, error)
}

func (s *stubClient) Complete(_ context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	content, err := s.respond(req)
	if err != nil {
		return llm.CompletionResponse{}, err
	}
	return llm.CompletionResponse{Content: content}, nil
}

func (s *stubClient) Stream(_ context.Context, _ llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk)
	close(ch)
	return ch, nil
}

func (s *stubClient) GetDefaultConfig() llm.ModelDefaults { return llm.ModelDefaults{} }

func testContext() model.JournalContext {
	return model.JournalContext{
		Commit: model.Commit{
			Hash:    "abcdef1234567890",
			Message: "add retry logic",
			Files:   []model.FileChange{{Path: "retry.go", Type: "go", Additions: 20, Deletions: 3}},
		},
		Chat: model.ChatWindow{Messages: []model.ChatMessage{
			{BubbleID: "b1", Speaker: model.SpeakerUser, Text: "let's add retry because the API flakes", TimestampMs: 1},
			{BubbleID: "b2", Speaker: model.SpeakerAssistant, Text: "ugh this is so annoying!!", TimestampMs: 2},
			{BubbleID: "b3", Speaker: model.SpeakerUser, Text: "the root cause is a timeout, so let's back off exponentially", TimestampMs: 3},
		}},
	}
}

func TestGenerateAllSectionsOK(t *testing.T) {
	client := &stubClient{respond: func(_ llm.CompletionRequest) (string, error) {
		return "some generated content", nil
	}}

	sections := Generate(context.Background(), testContext(), client, nil)
	require.Len(t, sections, len(model.SectionOrder))
	for i, s := range sections {
		require.Equal(t, model.SectionOrder[i], s.Name)
	}
}

func TestGenerateFallsBackOnLLMError(t *testing.T) {
	client := &stubClient{respond: func(_ llm.CompletionRequest) (string, error) {
		return "", require.AnError
	}}

	sections := Generate(context.Background(), testContext(), client, nil)
	for _, s := range sections {
		if s.Name == model.SectionCommitDetails || s.Name == model.SectionDiscussionNotes {
			continue
		}
		require.Equal(t, model.StatusFallback, s.Status, s.Name)
	}
}

func TestGenerateHandlesNilClient(t *testing.T) {
	sections := Generate(context.Background(), testContext(), nil, nil)
	for _, s := range sections {
		if s.Name == model.SectionCommitDetails || s.Name == model.SectionDiscussionNotes {
			continue
		}
		require.Equal(t, model.StatusFallback, s.Status, s.Name)
	}
}

func TestGenerateOmitsEmptyFrustrationsAndTone(t *testing.T) {
	client := &stubClient{respond: func(req llm.CompletionRequest) (string, error) {
		return "NONE", nil
	}}

	sections := Generate(context.Background(), testContext(), client, nil)
	for _, s := range sections {
		if s.Name == model.SectionFrustrations || s.Name == model.SectionTone {
			require.Empty(t, s.Text)
			require.Equal(t, model.StatusOK, s.Status)
		}
	}
}

func TestCommitDetailsNeverCallsLLM(t *testing.T) {
	sec := commitDetails(testContext().Commit)
	require.Equal(t, model.StatusOK, sec.Status)
	require.Contains(t, sec.Text, "retry.go")
	require.Contains(t, sec.Text, "+20/-3")
}

func TestDiscussionNotesPrefersAnalyticalOverEmotional(t *testing.T) {
	sec := discussionNotes(testContext().Chat)
	require.Equal(t, model.StatusOK, sec.Status)
	require.Contains(t, sec.Text, "root cause")
	require.Contains(t, sec.Text, "let's add retry")
}

func TestDiscussionNotesHandlesEmptyWindow(t *testing.T) {
	sec := discussionNotes(model.ChatWindow{})
	require.Equal(t, model.StatusOK, sec.Status)
	require.Empty(t, sec.Text)
}

func TestDiscussionNotesPreservesChronologicalOrder(t *testing.T) {
	chat := model.ChatWindow{Messages: []model.ChatMessage{
		{BubbleID: "b1", Speaker: model.SpeakerUser, Text: "because reason one"},
		{BubbleID: "b2", Speaker: model.SpeakerUser, Text: "because reason two"},
		{BubbleID: "b3", Speaker: model.SpeakerUser, Text: "because reason three"},
	}}
	sec := discussionNotes(chat)
	idxOne := indexOf(sec.Text, "reason one")
	idxTwo := indexOf(sec.Text, "reason two")
	idxThree := indexOf(sec.Text, "reason three")
	require.True(t, idxOne < idxTwo && idxTwo < idxThree)
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

func TestGenerateReturnsAllSectionsUnderExpiredDeadline(t *testing.T) {
	client := &stubClient{respond: func(_ llm.CompletionRequest) (string, error) {
		time.Sleep(10 * time.Millisecond)
		return "content", nil
	}}
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()

	sections := Generate(ctx, testContext(), client, nil)
	require.Len(t, sections, len(model.SectionOrder))
}
