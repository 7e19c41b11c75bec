package openaiclient

import (
	"testing"

	"github.com/stretchr/testify/require"

	"mcp-commit-story/pkg/agent/llm"
)

func TestNewWithModelUsesGivenModel(t *testing.T) {
	c := NewWithModel("test-key", "gpt-4o")
	require.Equal(t, "gpt-4o", c.GetDefaultConfig().Name)
}

func TestNewReturnsResilientClient(t *testing.T) {
	client := New("test-key")
	require.NotNil(t, client)
	require.Equal(t, DefaultModel, client.GetDefaultConfig().Name)
}

func TestInputTextFormatsRolesForResponsesAPI(t *testing.T) {
	got := inputText([]llm.CompletionMessage{
		llm.NewSystemMessage("be terse"),
		llm.NewUserMessage("hello"),
		{Role: llm.RoleAssistant, Content: "hi there"},
	})
	require.Equal(t, "System: be terse\n\nhelloAssistant: hi there\n\n", got)
}
