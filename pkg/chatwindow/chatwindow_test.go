package chatwindow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mcp-commit-story/pkg/model"
)

func msg(composerID string, t time.Time, idx int, dbPath, text string) model.ChatMessage {
	return model.ChatMessage{
		Speaker:       model.SpeakerUser,
		Text:          text,
		TimestampMs:   t.UnixMilli(),
		ComposerID:    composerID,
		OriginalIndex: idx,
		DatabasePath:  dbPath,
	}
}

func TestBuildEmptyWindowHasZeroConfidence(t *testing.T) {
	w := Build(nil, time.Now().Add(-time.Hour), time.Now(), nil)
	require.Equal(t, 0, w.Quality.ConfidenceScore)
	require.Empty(t, w.Messages)
}

func TestBuildSingleSessionFullConfidence(t *testing.T) {
	now := time.Now()
	messages := []model.ChatMessage{
		msg("c1", now.Add(-30*time.Minute), 0, "db1", "hi"),
		msg("c1", now.Add(-20*time.Minute), 1, "db1", "hello back"),
	}

	w := Build(messages, now.Add(-time.Hour), now, nil)
	require.Equal(t, 10, w.Quality.ConfidenceScore)
	require.Equal(t, 1, w.Quality.SessionCount)
	require.Len(t, w.Messages, 2)
}

func TestBuildExcludesSessionsOutsideWindow(t *testing.T) {
	now := time.Now()
	messages := []model.ChatMessage{
		msg("c1", now.Add(-3*time.Hour), 0, "db1", "old session"),
		msg("c2", now.Add(-10*time.Minute), 0, "db1", "recent session"),
	}

	w := Build(messages, now.Add(-time.Hour), now, nil)
	require.Len(t, w.Messages, 1)
	require.Equal(t, "recent session", w.Messages[0].Text)
}

func TestBuildDeterministicTieBreak(t *testing.T) {
	now := time.Now()
	sameTime := now.Add(-10 * time.Minute)
	messages := []model.ChatMessage{
		msg("c2", sameTime, 0, "dbB", "from c2"),
		msg("c1", sameTime, 0, "dbA", "from c1"),
	}

	w := Build(messages, now.Add(-time.Hour), now, nil)
	require.Len(t, w.Messages, 2)
	require.Equal(t, "from c1", w.Messages[0].Text, "composerId is the tie-break after equal timestamps")
}

func TestBuildRecordsFailedDatabases(t *testing.T) {
	now := time.Now()
	statuses := []model.DatabaseStatus{
		{Path: "/a/state.vscdb", Scanned: true},
		{Path: "/b/state.vscdb", Scanned: false, Reason: model.FailureOpenError},
	}

	w := Build(nil, now.Add(-time.Hour), now, statuses)
	require.Equal(t, 1, w.Quality.DatabasesScanned)
	require.Len(t, w.Quality.DatabasesFailed, 1)
	require.Equal(t, "/b/state.vscdb", w.Quality.DatabasesFailed[0].Path)
}
