// Command mcp-commit-story-worker is the post-commit hook's subprocess: it
// runs the journal generation pipeline for one commit and, unless invoked
// with --sync or configured with journal.background set to false, detaches
// itself so the hook returns immediately.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"mcp-commit-story/pkg/config"
	"mcp-commit-story/pkg/eventlog"
	"mcp-commit-story/pkg/logx"
	"mcp-commit-story/pkg/worker"
)

const (
	exitConfigError    = 1
	exitRepoNotFound   = 2
	exitBudgetExceeded = 3
	exitAllFallback    = 4
)

func main() {
	var (
		repoRoot string
		commit   string
		sync     bool
		detached bool
	)
	flag.StringVar(&repoRoot, "repo", "", "repository root (default: current directory)")
	flag.StringVar(&commit, "commit", "", "commit hash to journal (default: git rev-parse HEAD)")
	flag.BoolVar(&sync, "sync", false, "run synchronously and surface a non-zero exit code on failure, for debugging")
	flag.BoolVar(&detached, "detached", false, "internal: marks the re-exec'd child, never set by a caller")
	flag.Parse()

	// Non-zero exit codes are surfaced only under --sync; the hook path
	// always exits 0.
	exit := func(code int) {
		if !sync {
			code = 0
		}
		os.Exit(code)
	}

	if repoRoot == "" {
		wd, err := os.Getwd()
		if err != nil {
			fmt.Fprintf(os.Stderr, "mcp-commit-story-worker: resolve working directory: %v\n", err)
			exit(exitRepoNotFound)
		}
		repoRoot = wd
	}

	if commit == "" {
		resolved, err := headCommit(repoRoot)
		if err != nil {
			fmt.Fprintf(os.Stderr, "mcp-commit-story-worker: resolve HEAD: %v\n", err)
			exit(exitRepoNotFound)
		}
		commit = resolved
	}

	cfgPath, err := config.Discover(repoRoot)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mcp-commit-story-worker: discover config: %v\n", err)
		exit(exitConfigError)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mcp-commit-story-worker: load config: %v\n", err)
		exit(exitConfigError)
	}

	// The hook never blocks the commit: unless -sync was passed and this is
	// not already the re-exec'd child, detach and let the parent return.
	if !sync && !detached && cfg.Journal.Background {
		if err := detach(repoRoot, commit, cfg.Journal.Path); err != nil {
			fmt.Fprintf(os.Stderr, "mcp-commit-story-worker: detach: %v\n", err)
			// Detachment failing is not the hook's problem; fall through
			// and run inline rather than losing the journal entry.
		} else {
			return
		}
	}

	logger := logx.NewLogger("worker")
	events, err := eventlog.NewWriter(filepath.Join(repoRoot, cfg.Journal.Path, "logs"), 24)
	if err != nil {
		logger.Warn("failed to open event log, stage events will not be persisted: %v", err)
		events = nil
	}

	w := worker.New(repoRoot, cfg, logger, events)
	result := w.Run(context.Background(), commit)

	if !sync {
		os.Exit(0)
	}

	switch result.Outcome {
	case worker.StateDone:
		os.Exit(0)
	default:
		if result.Err != nil {
			fmt.Fprintf(os.Stderr, "mcp-commit-story-worker: %v\n", result.Err)
		}
		os.Exit(exitBudgetExceeded)
	}
}

func headCommit(repoRoot string) (string, error) {
	cmd := exec.Command("git", "rev-parse", "HEAD")
	cmd.Dir = repoRoot
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	hash := string(out)
	for len(hash) > 0 && (hash[len(hash)-1] == '\n' || hash[len(hash)-1] == '\r') {
		hash = hash[:len(hash)-1]
	}
	return hash, nil
}

// detach re-execs this binary with --detached, stdio redirected to a log
// file and a new session so the child outlives the hook's process group,
// then returns immediately without waiting for it.
func detach(repoRoot, commit, journalPath string) error {
	logDir := filepath.Join(repoRoot, journalPath, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	logFile, err := os.OpenFile(filepath.Join(logDir, "worker.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open worker log: %w", err)
	}
	defer logFile.Close()

	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable path: %w", err)
	}

	cmd := exec.Command(self, "--repo", repoRoot, "--commit", commit, "--detached")
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start detached worker: %w", err)
	}
	return nil
}
