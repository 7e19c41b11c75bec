// Package model defines the shared data types that flow through the journal
// generation pipeline: commit metadata, reconstructed chat history, and the
// structured journal entries synthesized from them.
package model

import "time"

// FileChange describes one file touched by a commit.
type FileChange struct {
	Path      string
	Type      string // extension-derived classification, e.g. "go", "markdown", "config"
	Additions int
	Deletions int
}

// Commit is the immutable git context collected for one commit.
type Commit struct {
	Hash          string
	Author        string
	Timestamp     time.Time // UTC
	Message       string
	Files         []FileChange
	Diffs         map[string]string // path -> diff text, each bounded and possibly "[TRUNCATED]"-suffixed
	DiffTruncated bool              // true if any diff was cut by the per-file or total byte cap, or files were skipped once the total cap was reached
}

// ShortHash returns the conventional 7-character abbreviation used in entry headers.
func (c Commit) ShortHash() string {
	if len(c.Hash) <= 7 {
		return c.Hash
	}
	return c.Hash[:7]
}

// Speaker identifies who authored a ChatMessage.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// ChatMessage is one sanitized bubble extracted from an editor chat database.
type ChatMessage struct {
	Speaker       Speaker
	Text          string
	TimestampMs   int64
	ComposerID    string
	BubbleID      string
	OriginalIndex int    // position within its source database's raw result set; tie-break key
	DatabasePath  string // secondary tie-break key per spec.md open question
}

// ChatSession groups the messages belonging to one editor composer/conversation.
type ChatSession struct {
	ComposerID    string
	CreatedAt     time.Time
	LastUpdatedAt time.Time
	Messages      []ChatMessage
}

// OverlapsWindow reports whether the session overlaps the commit window
// W=[windowStart, windowEnd] per spec.md §3: lastUpdatedAt > W.start && createdAt < W.end.
func (s ChatSession) OverlapsWindow(windowStart, windowEnd time.Time) bool {
	return s.LastUpdatedAt.After(windowStart) && s.CreatedAt.Before(windowEnd)
}

// DatabaseFailureReason classifies why a single chat database could not be scanned.
type DatabaseFailureReason string

const (
	FailureOpenError  DatabaseFailureReason = "open_error"
	FailureQueryError DatabaseFailureReason = "query_error"
	FailureParseError DatabaseFailureReason = "parse_error"
	FailureTimeout    DatabaseFailureReason = "timeout"
	FailurePermission DatabaseFailureReason = "permission"
)

// DatabaseStatus records the outcome of scanning one workspace database.
type DatabaseStatus struct {
	Path    string
	Scanned bool
	Reason  DatabaseFailureReason
	Err     error
}

// QualityMetadata is attached to every ChatWindow describing how it was built.
type QualityMetadata struct {
	DatabasesScanned    int
	DatabasesFailed     []DatabaseStatus
	MessagesTotal       int
	MessagesAfterFilter int
	SessionCount        int
	ConfidenceScore     int    // 0-10; 0 means degenerate/empty window
	Ambiguous           bool   // set by the boundary filter when confidence is 5-7
	BoundaryNote        string // human-readable note on why the window was/wasn't trimmed
}

// ChatWindow is the merged, chronologically sorted view of all chat overlapping a commit.
type ChatWindow struct {
	Messages []ChatMessage
	Quality  QualityMetadata
}

// ConfigView is the subset of configuration every section generator and the
// boundary filter are allowed to see; it intentionally excludes secrets.
type ConfigView struct {
	Provider    string
	Model       string
	MaxMessages int
	JournalPath string
}

// JournalContext is the single input handed to every section generator.
type JournalContext struct {
	Commit          Commit
	Chat            ChatWindow
	PreviousEntryMD string
	Config          ConfigView
}

// GeneratorStatus records how a Section's content was produced.
type GeneratorStatus string

const (
	StatusOK       GeneratorStatus = "ok"
	StatusFallback GeneratorStatus = "fallback"
	StatusEmpty    GeneratorStatus = "empty"
)

// SectionName enumerates the seven fixed section names, in canonical order.
type SectionName string

const (
	SectionSummary           SectionName = "Summary"
	SectionTechnicalSynopsis SectionName = "Technical Synopsis"
	SectionAccomplishments   SectionName = "Accomplishments"
	SectionFrustrations      SectionName = "Frustrations / Challenges"
	SectionTone              SectionName = "Tone / Mood"
	SectionDiscussionNotes   SectionName = "Discussion Notes"
	SectionCommitDetails     SectionName = "Commit Details"
)

// SectionOrder is the canonical rendering order for a journal entry.
var SectionOrder = []SectionName{
	SectionSummary,
	SectionTechnicalSynopsis,
	SectionAccomplishments,
	SectionFrustrations,
	SectionTone,
	SectionDiscussionNotes,
	SectionCommitDetails,
}

// Section is one tagged part of a journal entry, either free text or a
// structured dict that the assembler flattens with field detection.
type Section struct {
	Name   SectionName
	Text   string         // set when the generator returned prose
	Fields map[string]any // set when the generator returned a structured response
	Status GeneratorStatus
}

// IsEmpty reports whether the section carries no renderable content.
func (s Section) IsEmpty() bool {
	return s.Text == "" && len(s.Fields) == 0
}

// JournalEntry is one commit's worth of journal content.
type JournalEntry struct {
	CommitHash string
	Timestamp  time.Time
	Sections   []Section
}

// Reflection is a human-authored, timestamped block preserved verbatim into summaries.
type Reflection struct {
	HeaderTimestamp string // e.g. "2:45 PM", as it appeared in the header
	Body            string // verbatim markdown body, including the header line
}

// DailySummary is the roll-up for one calendar date.
type DailySummary struct {
	Date        string // YYYY-MM-DD
	Sections    []Section
	Reflections []Reflection
}
