package journal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mcp-commit-story/pkg/model"
)

func testEntry(hash, text string, ts time.Time) model.JournalEntry {
	return model.JournalEntry{
		CommitHash: hash,
		Timestamp:  ts,
		Sections: []model.Section{
			{Name: model.SectionSummary, Text: text, Status: model.StatusOK},
			{Name: model.SectionCommitDetails, Text: "1 file changed", Status: model.StatusOK},
		},
	}
}

func TestAppendCreatesFileOnFirstEntry(t *testing.T) {
	dir := t.TempDir()
	a := NewAssembler(dir)
	ts := time.Date(2026, 7, 31, 14, 45, 0, 0, time.UTC)

	path, err := a.Append(testEntry("abc123def456", "did some work", ts))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "daily", "2026-07-31-journal.md"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "did some work")
	require.Contains(t, string(data), "### 2:45 PM — Commit abc123d")
}

func TestAppendAddsSeparatorBetweenEntries(t *testing.T) {
	dir := t.TempDir()
	a := NewAssembler(dir)
	ts := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)

	_, err := a.Append(testEntry("hash0001", "first", ts))
	require.NoError(t, err)
	_, err = a.Append(testEntry("hash0002", "second", ts.Add(time.Hour)))
	require.NoError(t, err)

	data, err := os.ReadFile(a.EntryPath(ts))
	require.NoError(t, err)
	require.Contains(t, string(data), "\n---\n")
	require.Contains(t, string(data), "first")
	require.Contains(t, string(data), "second")
}

func TestAppendIsIdempotentForSameCommit(t *testing.T) {
	dir := t.TempDir()
	a := NewAssembler(dir)
	ts := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)

	_, err := a.Append(testEntry("hash0001", "first", ts))
	require.NoError(t, err)
	_, err = a.Append(testEntry("hash0001", "first again", ts))
	require.NoError(t, err)

	data, err := os.ReadFile(a.EntryPath(ts))
	require.NoError(t, err)
	require.NotContains(t, string(data), "first again")
}

func TestAppendSkipsEmptySections(t *testing.T) {
	dir := t.TempDir()
	a := NewAssembler(dir)
	ts := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)

	entry := model.JournalEntry{
		CommitHash: "hash0001",
		Timestamp:  ts,
		Sections: []model.Section{
			{Name: model.SectionSummary, Text: "work happened", Status: model.StatusOK},
			{Name: model.SectionFrustrations, Status: model.StatusOK},
		},
	}
	_, err := a.Append(entry)
	require.NoError(t, err)

	data, err := os.ReadFile(a.EntryPath(ts))
	require.NoError(t, err)
	require.NotContains(t, string(data), string(model.SectionFrustrations))
}

func TestRenderSectionBodyFlattensStructuredFields(t *testing.T) {
	sec := model.Section{
		Name: model.SectionTechnicalSynopsis,
		Fields: map[string]any{
			"Approach": "rewrote the retry loop",
			"Files":    []any{"retry.go", "client.go"},
		},
	}
	rendered := renderSectionBody(sec)
	require.Contains(t, rendered, "**Approach**: rewrote the retry loop")
	require.Contains(t, rendered, "**Files**:\n- retry.go\n- client.go")
}

func TestEntryPathUsesLocalCommitDate(t *testing.T) {
	a := NewAssembler("/tmp/journals")
	ts := time.Date(2026, 1, 2, 23, 0, 0, 0, time.UTC)
	require.Equal(t, filepath.Join("/tmp/journals", "daily", "2026-01-02-journal.md"), a.EntryPath(ts))
}
