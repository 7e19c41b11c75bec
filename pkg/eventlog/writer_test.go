package eventlog

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewWriter(t *testing.T) {
	tmpDir := t.TempDir()

	writer, err := NewWriter(tmpDir, 24)
	require.NoError(t, err)
	defer writer.Close()

	_, err = os.Stat(tmpDir)
	require.NoError(t, err)

	currentFile := writer.GetCurrentLogFile()
	require.NotEmpty(t, currentFile)

	_, err = os.Stat(currentFile)
	require.NoError(t, err)
}

func TestWriteStageAndRead(t *testing.T) {
	tmpDir := t.TempDir()

	writer, err := NewWriter(tmpDir, 24)
	require.NoError(t, err)
	defer writer.Close()

	evt := StageEvent{
		Timestamp:  time.Now(),
		RunID:      "run-1",
		CommitHash: "abc1234",
		Stage:      "collecting",
		Outcome:    "ok",
		Duration:   250 * time.Millisecond,
	}

	require.NoError(t, writer.WriteStage(evt))

	evt2 := evt
	evt2.Stage = "filtering"
	evt2.Outcome = "fallback"
	require.NoError(t, writer.WriteStage(evt2))

	events, err := ReadStages(writer.GetCurrentLogFile())
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "collecting", events[0].Stage)
	require.Equal(t, "filtering", events[1].Stage)
	require.Equal(t, "fallback", events[1].Outcome)
}

func TestListLogFiles(t *testing.T) {
	tmpDir := t.TempDir()

	writer, err := NewWriter(tmpDir, 24)
	require.NoError(t, err)
	defer writer.Close()

	require.NoError(t, writer.WriteStage(StageEvent{
		Timestamp: time.Now(),
		RunID:     "run-1",
		Stage:     "assembling",
		Outcome:   "ok",
	}))

	files, err := ListLogFiles(tmpDir)
	require.NoError(t, err)
	require.Len(t, files, 1)
}
