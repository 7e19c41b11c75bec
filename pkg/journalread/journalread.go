// Package journalread locates and reads the most recent prior journal entry
// so its text can be handed to the boundary filter and section generators
// as continuity context. It never fails a caller: a missing or unreadable
// journal directory simply yields an empty string, matching the pipeline's
// rule that historical context is a hint, never a hard dependency.
package journalread

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// DefaultTailBytes bounds how much of the most recent file is returned.
const DefaultTailBytes = 8 * 1024

var entryFilePattern = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})-journal\.md$`)

// PreviousEntry returns the tail of the most recent journal file dated on or
// before target, within journalRoot/daily. It returns "" on any error or
// when no qualifying file exists — callers are never expected to check an
// error return for this.
func PreviousEntry(journalRoot string, target time.Time, tailBytes int) string {
	if tailBytes <= 0 {
		tailBytes = DefaultTailBytes
	}

	dailyDir := filepath.Join(journalRoot, "daily")
	entries, err := os.ReadDir(dailyDir)
	if err != nil {
		return ""
	}

	targetDate := target.Format("2006-01-02")
	best := ""
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := entryFilePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		date := m[1]
		if date > targetDate {
			continue
		}
		if date > best {
			best = date
		}
	}
	if best == "" {
		return ""
	}

	path := filepath.Join(dailyDir, best+"-journal.md")
	return tailOf(path, tailBytes)
}

func tailOf(path string, tailBytes int) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return ""
	}

	size := info.Size()
	start := int64(0)
	if size > int64(tailBytes) {
		start = size - int64(tailBytes)
	}

	if _, err := f.Seek(start, 0); err != nil {
		return ""
	}

	buf := make([]byte, size-start)
	if _, err := f.Read(buf); err != nil {
		return ""
	}

	text := string(buf)
	if start > 0 {
		// Drop a partial line/entry fragment at the start of the truncated
		// read so the returned text begins cleanly.
		if idx := strings.Index(text, "\n---\n"); idx >= 0 {
			text = text[idx+len("\n---\n"):]
		}
	}
	return text
}

// ReflectionExtractor pulls verbatim "### HH:MM AM/PM — Reflection" blocks
// out of a day's journal markdown. Markdown parsing itself is out of scope
// here; this interface lets pkg/journal's summary builder supply its own
// implementation while journalread stays focused on file location.
type ReflectionExtractor interface {
	Extract(markdown string) []ReflectionBlock
}

// ReflectionBlock is one verbatim reflection, header included.
type ReflectionBlock struct {
	HeaderTimestamp string
	Body            string
}
