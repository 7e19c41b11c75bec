// Package journal implements the journal assembler (C9): renders a
// JournalEntry's sections to markdown in canonical order and appends it to
// the day's journal file, plus the daily-summary trigger (C10).
package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"mcp-commit-story/pkg/model"
)

// Assembler renders and persists journal entries under a journal root.
type Assembler struct {
	root string
}

// NewAssembler creates an Assembler rooted at root (spec.md's journal.path).
func NewAssembler(root string) *Assembler {
	return &Assembler{root: root}
}

// EntryPath returns the daily journal file path for a given local timestamp.
func (a *Assembler) EntryPath(t time.Time) string {
	return filepath.Join(a.root, "daily", t.Format("2006-01-02")+"-journal.md")
}

func entryHeader(hash string) string {
	return "<!-- commit:" + hash + " -->"
}

// Append renders entry and appends it to its day's journal file, creating
// the file and directory on demand. Idempotent: if an entry for the same
// commit hash already exists in the target file, Append is a no-op.
func (a *Assembler) Append(entry model.JournalEntry) (string, error) {
	path := a.EntryPath(entry.Timestamp)

	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to read existing journal file %s: %w", path, err)
	}

	header := entryHeader(entry.CommitHash)
	if len(existing) > 0 && strings.Contains(string(existing), header) {
		return path, nil
	}

	rendered := renderEntry(entry, header)

	var final string
	switch {
	case len(existing) == 0:
		final = rendered
	default:
		final = strings.TrimRight(string(existing), "\n") + "\n\n---\n\n" + rendered
	}

	if err := atomicWriteFile(path, []byte(final)); err != nil {
		return "", fmt.Errorf("failed to write journal entry: %w", err)
	}
	return path, nil
}

func renderEntry(entry model.JournalEntry, header string) string {
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n")
	fmt.Fprintf(&b, "### %s — Commit %s\n\n", entry.Timestamp.Format("3:04 PM"), shortHash(entry.CommitHash))

	for _, name := range model.SectionOrder {
		sec := findSection(entry.Sections, name)
		if sec == nil || sec.IsEmpty() {
			continue
		}
		fmt.Fprintf(&b, "#### %s\n\n", name)
		b.WriteString(renderSectionBody(*sec))
		b.WriteString("\n\n")
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

func shortHash(hash string) string {
	if len(hash) <= 7 {
		return hash
	}
	return hash[:7]
}

func findSection(sections []model.Section, name model.SectionName) *model.Section {
	for i := range sections {
		if sections[i].Name == name {
			return &sections[i]
		}
	}
	return nil
}

// renderSectionBody flattens a section's content to markdown: prose is
// passed through, and a structured Fields response is flattened with field
// detection - explicit keys become bold leads, list values become bullets.
func renderSectionBody(sec model.Section) string {
	if sec.Text != "" {
		return sec.Text
	}

	keys := make([]string, 0, len(sec.Fields))
	for k := range sec.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		v := sec.Fields[k]
		switch val := v.(type) {
		case []any:
			fmt.Fprintf(&b, "**%s**:\n", k)
			for _, item := range val {
				fmt.Fprintf(&b, "- %s\n", formatFieldValue(item))
			}
		case []string:
			fmt.Fprintf(&b, "**%s**:\n", k)
			for _, item := range val {
				fmt.Fprintf(&b, "- %s\n", item)
			}
		default:
			fmt.Fprintf(&b, "**%s**: %s\n", k, formatFieldValue(v))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatFieldValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
