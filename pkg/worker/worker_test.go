package worker

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"mcp-commit-story/pkg/config"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}

	run("init", "-q")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "Test User")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0644))
	run("add", ".")
	run("commit", "-q", "-m", "initial commit")

	return dir
}

func headHash(t *testing.T, dir string) string {
	t.Helper()
	cmd := exec.Command("git", "rev-parse", "HEAD")
	cmd.Dir = dir
	out, err := cmd.Output()
	require.NoError(t, err)
	return string(out[:len(out)-1])
}

func testConfig(journalPath string) *config.Config {
	cfg := &config.Config{}
	cfg.Journal.Path = journalPath
	cfg.Journal.Background = false
	cfg.AI.Provider = "openai"
	cfg.AI.TotalBudgetSeconds = 30
	cfg.Chat.LookbackHours = 48
	cfg.Chat.MaxMessages = 200
	return cfg
}

func TestRunProducesJournalEntryWithFallbackSectionsWhenNoLLMConfigured(t *testing.T) {
	dir := initRepo(t)
	hash := headHash(t, dir)

	w := New(dir, testConfig("journal"), nil, nil)
	result := w.Run(context.Background(), hash)

	require.Equal(t, StateDone, result.Outcome)
	require.NoError(t, result.Err)
	require.FileExists(t, result.EntryPath)

	data, err := os.ReadFile(result.EntryPath)
	require.NoError(t, err)
	require.Contains(t, string(data), "initial commit")
	require.Contains(t, string(data), "main.go")
}

func TestRunAbortsOnMalformedCommitHash(t *testing.T) {
	dir := initRepo(t)

	w := New(dir, testConfig("journal"), nil, nil)
	result := w.Run(context.Background(), "not-a-hash!!")

	require.Equal(t, StateAborted, result.Outcome)
	require.Error(t, result.Err)
}

func TestRunAbortsWhenJournalPathEscapesRepoRoot(t *testing.T) {
	dir := initRepo(t)
	hash := headHash(t, dir)

	w := New(dir, testConfig("../outside"), nil, nil)
	result := w.Run(context.Background(), hash)

	require.Equal(t, StateAborted, result.Outcome)
	require.Error(t, result.Err)
}

func TestRunAbortsOnUnknownCommit(t *testing.T) {
	dir := initRepo(t)

	w := New(dir, testConfig("journal"), nil, nil)
	result := w.Run(context.Background(), "deadbeefcafe")

	require.Equal(t, StateAborted, result.Outcome)
	require.Error(t, result.Err)
}

func TestRunIsIdempotentForSameCommit(t *testing.T) {
	dir := initRepo(t)
	hash := headHash(t, dir)

	w := New(dir, testConfig("journal"), nil, nil)
	first := w.Run(context.Background(), hash)
	require.Equal(t, StateDone, first.Outcome)

	second := w.Run(context.Background(), hash)
	require.Equal(t, StateDone, second.Outcome)

	data, err := os.ReadFile(second.EntryPath)
	require.NoError(t, err)
	require.Equal(t, 1, countOccurrences(string(data), "<!-- commit:"+hash))
}

func countOccurrences(haystack, needle string) int {
	count := 0
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			count++
		}
	}
	return count
}

func TestStateMachineRejectsInvalidTransition(t *testing.T) {
	sm := newStateMachine()
	err := sm.transitionTo(StateGenerating)
	require.Error(t, err)
	require.Equal(t, StateStart, sm.Current())
}

func TestStateMachineAllowsAbortFromAnyState(t *testing.T) {
	sm := newStateMachine()
	require.NoError(t, sm.transitionTo(StateCollecting))
	require.NoError(t, sm.transitionTo(StateAborted))
	require.Equal(t, StateAborted, sm.Current())
}

func TestStateMachineFollowsLinearPipeline(t *testing.T) {
	sm := newStateMachine()
	require.NoError(t, sm.transitionTo(StateCollecting))
	require.NoError(t, sm.transitionTo(StateFiltering))
	require.NoError(t, sm.transitionTo(StateGenerating))
	require.NoError(t, sm.transitionTo(StateAssembling))
	require.NoError(t, sm.transitionTo(StateTriggeringSummary))
	require.NoError(t, sm.transitionTo(StateDone))
	require.Len(t, sm.history(), 6)
}
