package journalread

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPreviousEntryReturnsEmptyWhenDirMissing(t *testing.T) {
	text := PreviousEntry(filepath.Join(t.TempDir(), "nope"), time.Now(), 0)
	require.Empty(t, text)
}

func TestPreviousEntryFindsMostRecentOnOrBeforeTarget(t *testing.T) {
	root := t.TempDir()
	dailyDir := filepath.Join(root, "daily")
	require.NoError(t, os.MkdirAll(dailyDir, 0755))

	require.NoError(t, os.WriteFile(filepath.Join(dailyDir, "2026-07-28-journal.md"), []byte("### 9:00 AM — Commit abc1234\nold entry\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dailyDir, "2026-07-29-journal.md"), []byte("### 9:00 AM — Commit def5678\nnewer entry\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dailyDir, "2026-07-31-journal.md"), []byte("### 9:00 AM — Commit fff0000\nfuture relative to target\n"), 0644))

	target, err := time.Parse("2006-01-02", "2026-07-30")
	require.NoError(t, err)

	text := PreviousEntry(root, target, 0)
	require.Contains(t, text, "newer entry")
	require.NotContains(t, text, "future relative to target")
}

func TestPreviousEntryBoundsToTailBytes(t *testing.T) {
	root := t.TempDir()
	dailyDir := filepath.Join(root, "daily")
	require.NoError(t, os.MkdirAll(dailyDir, 0755))

	big := make([]byte, 20*1024)
	for i := range big {
		big[i] = 'x'
	}
	require.NoError(t, os.WriteFile(filepath.Join(dailyDir, "2026-07-31-journal.md"), big, 0644))

	text := PreviousEntry(root, time.Now(), 1024)
	require.LessOrEqual(t, len(text), 1024)
}
