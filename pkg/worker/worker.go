package worker

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"mcp-commit-story/pkg/agent/llm"
	"mcp-commit-story/pkg/agent/llm/anthropicclient"
	"mcp-commit-story/pkg/agent/llm/openaiclient"
	"mcp-commit-story/pkg/agent/llm/resilient"
	"mcp-commit-story/pkg/boundary"
	"mcp-commit-story/pkg/chatdb"
	"mcp-commit-story/pkg/chatwindow"
	"mcp-commit-story/pkg/config"
	"mcp-commit-story/pkg/eventlog"
	"mcp-commit-story/pkg/gitctx"
	"mcp-commit-story/pkg/journal"
	"mcp-commit-story/pkg/journalread"
	"mcp-commit-story/pkg/logx"
	"mcp-commit-story/pkg/model"
	"mcp-commit-story/pkg/sanitize"
	"mcp-commit-story/pkg/section"
	"mcp-commit-story/pkg/werrors"
)

// DefaultBudget is the worker-wide wall-clock cap, spec.md's ai.total_budget_seconds default.
const DefaultBudget = 180 * time.Second

// DefaultLookbackHours filters out chat databases untouched since this long ago.
const DefaultLookbackHours = 48

// Result is what one Run produces. The worker never returns an error to its
// caller in the detached path; Result.Err is informational, for logging.
type Result struct {
	Outcome   State
	EntryPath string
	Err       error
}

// Worker runs the full C1->C10 pipeline for one commit.
type Worker struct {
	repoRoot    string
	journalRoot string
	cfg         *config.Config
	logger      *logx.Logger
	events      *eventlog.Writer

	llmClient llm.LLMClient

	gitCollector   *gitctx.Collector
	chatScanner    *chatdb.Scanner
	boundaryFilter *boundary.Filter
	assembler      *journal.Assembler
	summaryTrigger *journal.SummaryTrigger
	sanitizer      sanitize.Scanner
}

// New builds a Worker rooted at repoRoot using cfg. events may be nil, in
// which case stage events are not persisted.
func New(repoRoot string, cfg *config.Config, logger *logx.Logger, events *eventlog.Writer) *Worker {
	journalRoot := filepath.Join(repoRoot, cfg.Journal.Path)
	llmClient := buildLLMClient(cfg, logger)

	return &Worker{
		repoRoot:       repoRoot,
		journalRoot:    journalRoot,
		cfg:            cfg,
		logger:         logger,
		events:         events,
		llmClient:      llmClient,
		gitCollector:   gitctx.NewCollector(repoRoot, gitctx.DefaultPerFileDiffCap, gitctx.DefaultTotalDiffCap, cfg.Git.ExcludePatterns),
		chatScanner:    chatdb.NewScanner(chatdb.DefaultMaxConcurrentOpens, chatdb.DefaultBusyTimeout),
		boundaryFilter: boundary.New(llmClient, logger),
		assembler:      journal.NewAssembler(journalRoot),
		summaryTrigger: journal.NewSummaryTrigger(journalRoot, llmClient, logger),
		sanitizer:      sanitize.NewRegexScanner(),
	}
}

func buildLLMClient(cfg *config.Config, logger *logx.Logger) llm.LLMClient {
	if cfg.APIKeyUnresolved && logger != nil {
		logger.Warn("ai.api_key references an unset environment variable; running in fallback-only mode")
	}
	if cfg.AI.APIKey == "" || cfg.APIKeyUnresolved {
		return nil
	}

	switch cfg.AI.Provider {
	case "anthropic":
		m := cfg.AI.Model
		if m == "" {
			m = anthropicclient.DefaultModel
		}
		return resilient.WrapWithLogger(anthropicclient.NewWithModel(cfg.AI.APIKey, m), logger)
	default: // "openai" and anything unrecognized default to openai, per config's provider-specific default
		m := cfg.AI.Model
		if m == "" {
			m = openaiclient.DefaultModel
		}
		return resilient.WrapWithLogger(openaiclient.NewWithModel(cfg.AI.APIKey, m), logger)
	}
}

// validCommitHash accepts the hex-digit commit hashes git produces, short or
// full length; anything else is data-integrity territory (spec.md §7).
func validCommitHash(hash string) bool {
	if len(hash) < 4 || len(hash) > 40 {
		return false
	}
	for _, r := range hash {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}
	return true
}

func (w *Worker) emitStage(runID, commitHash string, stage State, outcome string, duration time.Duration, detail string) {
	if w.logger != nil {
		w.logger.Info("stage=%s outcome=%s duration=%s commit=%s detail=%s", stage, outcome, duration, commitHash, detail)
	}
	if w.events == nil {
		return
	}
	if err := w.events.WriteStage(eventlog.StageEvent{
		Timestamp:  time.Now(),
		RunID:      runID,
		CommitHash: commitHash,
		Stage:      string(stage),
		Outcome:    outcome,
		Duration:   duration,
		Detail:     detail,
	}); err != nil && w.logger != nil {
		w.logger.Warn("failed to write stage event: %v", err)
	}
}

// Run drives the worker's state machine to completion for one commit. It
// never panics and never returns a non-nil error through Result.Err in a way
// that leaves on-disk state inconsistent: either the entry is fully appended
// (with fallbacks where needed) or nothing is written.
func (w *Worker) Run(ctx context.Context, commitHash string) Result {
	runID := uuid.New().String()
	sm := newStateMachine()

	if !validCommitHash(commitHash) {
		werr := werrors.New(werrors.KindDataIntegrity, string(StateStart), "worker", fmt.Errorf("malformed commit hash %q", commitHash))
		sm.transitionTo(StateAborted)
		w.emitStage(runID, commitHash, StateAborted, "aborted", 0, werr.Error())
		return Result{Outcome: StateAborted, Err: werr}
	}

	if !withinRoot(w.repoRoot, w.journalRoot) {
		werr := werrors.New(werrors.KindDataIntegrity, string(StateStart), "worker", fmt.Errorf("journal path %q escapes repository root", w.cfg.Journal.Path))
		sm.transitionTo(StateAborted)
		w.emitStage(runID, commitHash, StateAborted, "aborted", 0, werr.Error())
		return Result{Outcome: StateAborted, Err: werr}
	}

	budget := time.Duration(w.cfg.AI.TotalBudgetSeconds) * time.Second
	if budget <= 0 {
		budget = DefaultBudget
	}
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	if err := sm.transitionTo(StateCollecting); err != nil {
		return Result{Outcome: StateAborted, Err: err}
	}
	start := time.Now()
	commit, chatWindow, previousEntryMD, collectErr := w.collect(ctx, commitHash)
	if collectErr != nil && werrors.IsFatal(collectErr) {
		sm.transitionTo(StateAborted)
		w.emitStage(runID, commitHash, StateAborted, "aborted", time.Since(start), collectErr.Error())
		return Result{Outcome: StateAborted, Err: collectErr}
	}
	outcome := "ok"
	if collectErr != nil {
		outcome = "fallback"
	}
	w.emitStage(runID, commitHash, StateCollecting, outcome, time.Since(start), detailOf(collectErr))

	if err := sm.transitionTo(StateFiltering); err != nil {
		return Result{Outcome: StateAborted, Err: err}
	}
	start = time.Now()
	chatWindow = w.boundaryFilter.Apply(ctx, chatWindow, commit, previousEntryMD)
	w.emitStage(runID, commitHash, StateFiltering, "ok", time.Since(start), chatWindow.Quality.BoundaryNote)

	if err := sm.transitionTo(StateGenerating); err != nil {
		return Result{Outcome: StateAborted, Err: err}
	}
	start = time.Now()
	jctx := model.JournalContext{
		Commit:          commit,
		Chat:            chatWindow,
		PreviousEntryMD: previousEntryMD,
		Config:          w.cfg.View(),
	}
	sections := section.Generate(ctx, jctx, w.llmClient, w.logger)
	w.emitStage(runID, commitHash, StateGenerating, generationOutcome(sections), time.Since(start), "")

	if err := sm.transitionTo(StateAssembling); err != nil {
		return Result{Outcome: StateAborted, Err: err}
	}
	start = time.Now()
	entry := model.JournalEntry{CommitHash: commit.Hash, Timestamp: commit.Timestamp.Local(), Sections: sections}
	entryPath, assembleErr := w.assembler.Append(entry)
	if assembleErr != nil {
		werr := werrors.New(werrors.KindFatal, string(StateAssembling), "journal", assembleErr)
		sm.transitionTo(StateAborted)
		w.emitStage(runID, commitHash, StateAborted, "aborted", time.Since(start), werr.Error())
		return Result{Outcome: StateAborted, Err: werr}
	}
	w.emitStage(runID, commitHash, StateAssembling, "ok", time.Since(start), entryPath)

	if err := sm.transitionTo(StateTriggeringSummary); err != nil {
		return Result{Outcome: StateDone, EntryPath: entryPath}
	}
	start = time.Now()
	summaryOutcome := "ok"
	if err := w.summaryTrigger.RunPending(ctx); err != nil {
		summaryOutcome = "fallback"
		if w.logger != nil {
			w.logger.Warn("daily summary trigger failed: %v", err)
		}
	}
	w.emitStage(runID, commitHash, StateTriggeringSummary, summaryOutcome, time.Since(start), "")

	sm.transitionTo(StateDone)
	return Result{Outcome: StateDone, EntryPath: entryPath}
}

// collect runs C4 (git) and C1/C2/C3 (chat) concurrently, then C5 (previous
// entry) inline since it is a cheap local read. A chat-side failure is
// recoverable-local (the window degrades to empty); a git-side failure is
// fatal since there is no commit to journal.
func (w *Worker) collect(ctx context.Context, commitHash string) (model.Commit, model.ChatWindow, string, error) {
	var (
		commit model.Commit
		gitErr error
		window model.ChatWindow
		wg     sync.WaitGroup
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		c, err := w.gitCollector.Collect(ctx, commitHash)
		commit = c
		gitErr = err
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		window = w.collectChat(ctx, commitHash)
	}()

	wg.Wait()

	if gitErr != nil {
		return model.Commit{}, model.ChatWindow{}, "", werrors.New(werrors.KindFatal, string(StateCollecting), "gitctx", gitErr)
	}

	commit.Message = w.redact(commit.Message)

	previousEntryMD := journalread.PreviousEntry(w.journalRoot, commit.Timestamp, journalread.DefaultTailBytes)

	return commit, window, previousEntryMD, nil
}

// collectChat resolves commitHash's real commit window, [t_prev_commit,
// t_commit] (spec.md §3), and scans chat databases against it. lookback is
// used only for the separate §4.1 staleness filter (which databases are
// even worth opening), never for the window itself.
func (w *Worker) collectChat(ctx context.Context, commitHash string) model.ChatWindow {
	lookback := time.Duration(w.cfg.Chat.LookbackHours) * time.Hour
	if lookback <= 0 {
		lookback = DefaultLookbackHours * time.Hour
	}

	paths, err := chatdb.DiscoverDatabases()
	if err != nil {
		return model.ChatWindow{}
	}
	paths = chatdb.FilterByAge(paths, lookback)

	windowStart, windowEnd, err := w.gitCollector.CommitWindow(ctx, commitHash, lookback)
	if err != nil {
		return model.ChatWindow{}
	}

	results := w.chatScanner.ScanAll(ctx, paths, windowStart, windowEnd)

	var messages []model.ChatMessage
	statuses := make([]model.DatabaseStatus, 0, len(results))
	for _, r := range results {
		statuses = append(statuses, r.Status)
		for _, m := range r.Messages {
			m.Text = w.redact(m.Text)
			messages = append(messages, m)
		}
	}

	if maxMessages := w.cfg.Chat.MaxMessages; maxMessages > 0 && len(messages) > maxMessages {
		messages = messages[len(messages)-maxMessages:]
	}

	return chatwindow.Build(messages, windowStart, windowEnd, statuses)
}

func (w *Worker) redact(text string) string {
	if text == "" {
		return text
	}
	redacted, _, err := w.sanitizer.Redact(context.Background(), text)
	if err != nil {
		return text
	}
	return redacted
}

func generationOutcome(sections []model.Section) string {
	for _, s := range sections {
		if s.Name == model.SectionCommitDetails || s.Name == model.SectionDiscussionNotes {
			continue
		}
		if s.Status == model.StatusOK {
			return "ok"
		}
	}
	return "fallback"
}

func detailOf(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func withinRoot(repoRoot, journalRoot string) bool {
	repoAbs, err1 := filepath.Abs(repoRoot)
	journalAbs, err2 := filepath.Abs(journalRoot)
	if err1 != nil || err2 != nil {
		return false
	}
	rel, err := filepath.Rel(repoAbs, journalAbs)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
