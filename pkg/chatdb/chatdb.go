// Package chatdb discovers and queries the local SQLite databases editors
// such as Cursor and VS Code keep under their workspace storage directory,
// extracting chat bubbles into model.ChatMessage values. Discovery paths
// are platform-specific; querying uses modernc.org/sqlite opened read-only
// with a busy timeout, bounded to a fixed number of concurrent opens via
// pkg/concurrency, using a singleton-DSN idiom common to SQLite drivers
// (file:%s?...&_busy_timeout=...) but inverted for read-only, per-file use.
package chatdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"mcp-commit-story/pkg/concurrency"
	"mcp-commit-story/pkg/logx"
	"mcp-commit-story/pkg/model"
)

// DefaultMaxConcurrentOpens bounds how many SQLite files are opened at once.
const DefaultMaxConcurrentOpens = 8

// DefaultBusyTimeout is applied to every connection via the DSN.
const DefaultBusyTimeout = 5 * time.Second

// Editors is the set of workspace-storage directory names probed on disk.
// Generalized beyond a single editor since the storage layout is shared by
// every VS Code-family fork.
var Editors = []string{"Cursor", "Code", "Code - Insiders", "Windsurf"}

// DiscoverDatabases returns every state.vscdb path under the platform's
// workspace storage roots for the known editors, sorted for determinism.
func DiscoverDatabases() ([]string, error) {
	roots, err := storageRoots()
	if err != nil {
		return nil, err
	}

	var found []string
	for _, root := range roots {
		matches, err := filepath.Glob(filepath.Join(root, "*", "state.vscdb"))
		if err != nil {
			continue
		}
		found = append(found, matches...)
	}

	sort.Strings(found)
	return found, nil
}

func storageRoots() ([]string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	var bases []string
	switch {
	case runtime.GOOS == "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		for _, editor := range Editors {
			bases = append(bases, filepath.Join(appData, editor, "User", "workspaceStorage"))
		}
	case runtime.GOOS == "darwin":
		for _, editor := range Editors {
			bases = append(bases, filepath.Join(home, "Library", "Application Support", editor, "User", "workspaceStorage"))
		}
	default:
		// Linux, and WSL's view of the Windows side under /mnt/c.
		for _, editor := range Editors {
			bases = append(bases, filepath.Join(home, ".config", editor, "User", "workspaceStorage"))
		}
		if wslRoots, ok := wslWindowsRoots(); ok {
			for _, editor := range Editors {
				for _, winHome := range wslRoots {
					bases = append(bases, filepath.Join(winHome, "AppData", "Roaming", editor, "User", "workspaceStorage"))
				}
			}
		}
	}
	return bases, nil
}

func wslWindowsRoots() ([]string, bool) {
	entries, err := os.ReadDir("/mnt/c/Users")
	if err != nil {
		return nil, false
	}
	var roots []string
	for _, e := range entries {
		if e.IsDir() {
			roots = append(roots, filepath.Join("/mnt/c/Users", e.Name()))
		}
	}
	return roots, len(roots) > 0
}

// FilterByAge drops databases whose mtime is older than lookback, unless
// lookback is <= 0 (disabled).
func FilterByAge(paths []string, lookback time.Duration) []string {
	if lookback <= 0 {
		return paths
	}
	cutoff := time.Now().Add(-lookback)

	var kept []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			kept = append(kept, p)
		}
	}
	return kept
}

// RawMessage is one bubble record as read from a database, before session
// grouping or window filtering.
type RawMessage struct {
	model.ChatMessage
}

// Scanner queries a bounded set of databases concurrently and returns every
// bubble found, plus a DatabaseStatus per database attempted.
type Scanner struct {
	maxConcurrentOpens int
	busyTimeout        time.Duration
	log                *logx.Logger
}

// NewScanner builds a Scanner. maxConcurrentOpens and busyTimeout fall back
// to the documented defaults when <= 0.
func NewScanner(maxConcurrentOpens int, busyTimeout time.Duration) *Scanner {
	if maxConcurrentOpens <= 0 {
		maxConcurrentOpens = DefaultMaxConcurrentOpens
	}
	if busyTimeout <= 0 {
		busyTimeout = DefaultBusyTimeout
	}
	return &Scanner{
		maxConcurrentOpens: maxConcurrentOpens,
		busyTimeout:        busyTimeout,
		log:                logx.NewLogger("chatdb"),
	}
}

// ScanResult bundles one database's messages with its outcome.
type ScanResult struct {
	Status   model.DatabaseStatus
	Messages []model.ChatMessage
}

// ScanAll opens every path concurrently (bounded) and queries bubbles whose
// timestamp falls in [windowStart, windowEnd]. A single database's failure
// never aborts the others; it is recorded in the returned status.
func (s *Scanner) ScanAll(ctx context.Context, paths []string, windowStart, windowEnd time.Time) []ScanResult {
	sem := concurrency.NewSemaphore(s.maxConcurrentOpens)
	results := make([]ScanResult, len(paths))

	var wg sync.WaitGroup
	for i, path := range paths {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()

			if err := sem.Acquire(ctx); err != nil {
				results[i] = ScanResult{Status: model.DatabaseStatus{Path: path, Scanned: false, Reason: model.FailureTimeout, Err: err}}
				return
			}
			defer sem.Release()

			msgs, status := s.scanOne(ctx, path, windowStart, windowEnd)
			results[i] = ScanResult{Status: status, Messages: msgs}
		}(i, path)
	}
	wg.Wait()

	return results
}

func (s *Scanner) scanOne(ctx context.Context, path string, windowStart, windowEnd time.Time) ([]model.ChatMessage, model.DatabaseStatus) {
	status := model.DatabaseStatus{Path: path}

	dsn := fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(%d)&_pragma=query_only(1)",
		path, s.busyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		status.Reason = model.FailureOpenError
		status.Err = err
		return nil, status
	}
	defer db.Close()

	queryCtx, cancel := context.WithTimeout(ctx, s.busyTimeout)
	defer cancel()

	rows, err := db.QueryContext(queryCtx,
		`SELECT key, value FROM cursorDiskKV WHERE key LIKE 'bubbleId:%' ORDER BY rowid`)
	if err != nil {
		status.Reason = model.FailureQueryError
		status.Err = err
		return nil, status
	}
	defer rows.Close()

	var messages []model.ChatMessage
	index := 0
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			status.Reason = model.FailureParseError
			status.Err = err
			return messages, status
		}

		composerID, bubbleID, ok := parseBubbleKey(key)
		if !ok {
			continue
		}

		msg, ok := parseBubbleValue(value)
		if !ok {
			continue
		}
		if msg.Text == "" {
			continue
		}

		msgTime := time.UnixMilli(msg.TimestampMs)
		if msgTime.Before(windowStart) || msgTime.After(windowEnd) {
			index++
			continue
		}

		msg.ComposerID = composerID
		msg.BubbleID = bubbleID
		msg.OriginalIndex = index
		msg.DatabasePath = path
		messages = append(messages, msg)
		index++
	}
	if err := rows.Err(); err != nil {
		status.Reason = model.FailureQueryError
		status.Err = err
		return messages, status
	}

	status.Scanned = true
	return messages, status
}

// parseBubbleKey splits a "bubbleId:<composerId>:<bubbleId>" key.
func parseBubbleKey(key string) (composerID, bubbleID string, ok bool) {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) != 3 || parts[0] != "bubbleId" {
		return "", "", false
	}
	return parts[1], parts[2], true
}
