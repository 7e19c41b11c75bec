package journal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"mcp-commit-story/pkg/agent/llm"
	"mcp-commit-story/pkg/journalread"
	"mcp-commit-story/pkg/logx"
	"mcp-commit-story/pkg/model"
)

// ReflectionExtractor pulls verbatim "### HH:MM AM/PM — Reflection" blocks
// out of a day's journal markdown, preserving header and body exactly.
type ReflectionExtractor struct{}

var _ journalread.ReflectionExtractor = ReflectionExtractor{}

var reflectionHeader = regexp.MustCompile(`(?m)^### (.+) — Reflection\s*$`)

// Extract implements journalread.ReflectionExtractor.
func (ReflectionExtractor) Extract(markdown string) []journalread.ReflectionBlock {
	headerIdx := reflectionHeader.FindAllStringSubmatchIndex(markdown, -1)
	if len(headerIdx) == 0 {
		return nil
	}

	blocks := make([]journalread.ReflectionBlock, 0, len(headerIdx))
	for i, loc := range headerIdx {
		end := len(markdown)
		if i+1 < len(headerIdx) {
			end = headerIdx[i+1][0]
		}
		body := strings.TrimRight(markdown[loc[0]:end], "\n")
		header := strings.TrimSpace(markdown[loc[2]:loc[3]])
		blocks = append(blocks, journalread.ReflectionBlock{
			HeaderTimestamp: header,
			Body:            body,
		})
	}
	return blocks
}

var journalFilePattern = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})-journal\.md$`)

// SummaryTrigger implements the daily-summary trigger (C10): stateless,
// idempotent by the presence of the summary file on disk.
type SummaryTrigger struct {
	root      string
	client    llm.LLMClient
	logger    *logx.Logger
	extractor journalread.ReflectionExtractor
}

// NewSummaryTrigger creates a trigger rooted at the same journal root the
// assembler writes entries under.
func NewSummaryTrigger(root string, client llm.LLMClient, logger *logx.Logger) *SummaryTrigger {
	return &SummaryTrigger{root: root, client: client, logger: logger, extractor: ReflectionExtractor{}}
}

func (s *SummaryTrigger) summaryPath(date string) string {
	return filepath.Join(s.root, "summaries", "daily", date+"-summary.md")
}

// RunPending generates summaries for every date that has a later-dated
// journal file on disk (proof that date is over) and a journal file of its
// own but no summary file yet, oldest first. The most recent date on disk
// is never eligible, since no later file exists yet to prove it has ended.
// Never returns an error for a single date's failure; it logs and continues
// to the next date.
func (s *SummaryTrigger) RunPending(ctx context.Context) error {
	dailyDir := filepath.Join(s.root, "daily")
	entries, err := os.ReadDir(dailyDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to list journal directory %s: %w", dailyDir, err)
	}

	var dates []string
	for _, e := range entries {
		m := journalFilePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		dates = append(dates, m[1])
	}
	sort.Strings(dates)

	// A date is eligible only once a later date's journal file exists: that
	// later file is what proves the day in question is actually over,
	// without relying on the worker's wall clock.
	var pending []string
	for i, date := range dates {
		if i == len(dates)-1 {
			break
		}
		if _, err := os.Stat(s.summaryPath(date)); err == nil {
			continue // already summarized
		}
		pending = append(pending, date)
	}

	for _, date := range pending {
		if err := s.generateOne(ctx, date); err != nil && s.logger != nil {
			s.logger.Warn("daily summary generation failed for %s: %v", date, err)
		}
	}
	return nil
}

func (s *SummaryTrigger) generateOne(ctx context.Context, date string) error {
	path := filepath.Join(s.root, "daily", date+"-journal.md")
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read journal file %s: %w", path, err)
	}
	markdown := string(data)

	reflections := extractReflections(s.extractor, markdown)
	sections := s.generateSections(ctx, date, markdown)

	summary := model.DailySummary{Date: date, Sections: sections, Reflections: reflections}
	rendered := renderSummary(summary)

	if err := atomicWriteFile(s.summaryPath(date), []byte(rendered)); err != nil {
		return fmt.Errorf("failed to write summary file: %w", err)
	}
	return nil
}

func extractReflections(extractor journalread.ReflectionExtractor, markdown string) []model.Reflection {
	blocks := extractor.Extract(markdown)
	reflections := make([]model.Reflection, 0, len(blocks))
	for _, b := range blocks {
		reflections = append(reflections, model.Reflection{HeaderTimestamp: b.HeaderTimestamp, Body: b.Body})
	}
	return reflections
}

func (s *SummaryTrigger) generateSections(ctx context.Context, date, markdown string) []model.Section {
	if s.client == nil {
		return []model.Section{{Name: model.SectionSummary, Text: fmt.Sprintf("Summary unavailable: no LLM client configured for %s.", date), Status: model.StatusFallback}}
	}

	req := llm.NewCompletionRequest([]llm.CompletionMessage{
		llm.NewSystemMessage("You summarize a day's worth of software engineering journal entries into a concise narrative. Do not invent facts not present in the entries."),
		llm.NewUserMessage(fmt.Sprintf("Journal entries for %s:\n\n%s\n\nWrite a concise daily summary.", date, markdown)),
	})

	resp, err := s.client.Complete(ctx, req)
	if err != nil || strings.TrimSpace(resp.Content) == "" {
		return []model.Section{{Name: model.SectionSummary, Text: fmt.Sprintf("Summary generation failed for %s; see daily entries.", date), Status: model.StatusFallback}}
	}
	return []model.Section{{Name: model.SectionSummary, Text: strings.TrimSpace(resp.Content), Status: model.StatusOK}}
}

func renderSummary(summary model.DailySummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Daily Summary — %s\n\n", summary.Date)

	for _, sec := range summary.Sections {
		if sec.IsEmpty() {
			continue
		}
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", sec.Name, renderSectionBody(sec))
	}

	if len(summary.Reflections) > 0 {
		b.WriteString("## Reflections\n\n")
		for _, r := range summary.Reflections {
			b.WriteString(r.Body)
			b.WriteString("\n\n")
		}
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}
