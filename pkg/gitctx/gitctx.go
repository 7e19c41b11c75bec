// Package gitctx collects the immutable commit context the rest of the
// pipeline operates on: metadata, per-file stats, and byte-capped diffs. It
// shells out to the git binary for this introspection rather than linking
// a full git implementation, since only a handful of plumbing commands are
// needed.
package gitctx

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"mcp-commit-story/pkg/logx"
	"mcp-commit-story/pkg/model"
)

// EmptyTreeHash is git's canonical hash for an empty tree, used as the diff
// base for a repository's initial commit.
const EmptyTreeHash = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"

// DefaultPerFileDiffCap and DefaultTotalDiffCap are the byte limits from the
// configuration table; callers may override them.
const (
	DefaultPerFileDiffCap = 10 * 1024
	DefaultTotalDiffCap   = 200 * 1024
)

// Truncated is appended to any diff that hit the per-file cap.
const Truncated = "\n[TRUNCATED]"

// Collector gathers Commit values from a repository working directory.
type Collector struct {
	repoRoot        string
	perFileDiffCap  int
	totalDiffCap    int
	excludePatterns []string
	log             *logx.Logger
}

// NewCollector builds a Collector rooted at repoRoot. perFileDiffCap and
// totalDiffCap fall back to the documented defaults when <= 0.
func NewCollector(repoRoot string, perFileDiffCap, totalDiffCap int, excludePatterns []string) *Collector {
	if perFileDiffCap <= 0 {
		perFileDiffCap = DefaultPerFileDiffCap
	}
	if totalDiffCap <= 0 {
		totalDiffCap = DefaultTotalDiffCap
	}
	return &Collector{
		repoRoot:        repoRoot,
		perFileDiffCap:  perFileDiffCap,
		totalDiffCap:    totalDiffCap,
		excludePatterns: excludePatterns,
		log:             logx.NewLogger("gitctx"),
	}
}

// Collect returns the Commit value for hash.
func (c *Collector) Collect(ctx context.Context, hash string) (model.Commit, error) {
	meta, err := c.metadata(ctx, hash)
	if err != nil {
		return model.Commit{}, fmt.Errorf("collect commit metadata: %w", err)
	}

	if meta.Timestamp.After(time.Now().Add(5 * time.Minute)) {
		c.log.Warn("commit %s has a future-dated timestamp %s; accepting it anyway", meta.ShortHash(), meta.Timestamp)
	}

	parent, err := c.parentHash(ctx, hash)
	if err != nil {
		return model.Commit{}, fmt.Errorf("resolve parent commit: %w", err)
	}

	files, err := c.fileStats(ctx, parent, hash)
	if err != nil {
		return model.Commit{}, fmt.Errorf("collect file stats: %w", err)
	}
	meta.Files = files

	diffs, truncatedTotal, err := c.diffs(ctx, parent, hash, files)
	if err != nil {
		return model.Commit{}, fmt.Errorf("collect diffs: %w", err)
	}
	meta.Diffs = diffs
	meta.DiffTruncated = truncatedTotal

	return meta, nil
}

// CommitWindow returns the commit-time boundaries used to correlate chat
// sessions with hash: [t_prev_commit, t_commit] (spec §3). If hash has no
// parent (the repository's initial commit), there is no previous commit
// time to anchor the window, so it starts lookback before the commit
// instead.
func (c *Collector) CommitWindow(ctx context.Context, hash string, lookback time.Duration) (start, end time.Time, err error) {
	end, err = c.commitTime(ctx, hash)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("resolve commit time: %w", err)
	}

	parent, err := c.parentHash(ctx, hash)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("resolve parent commit: %w", err)
	}
	if parent == EmptyTreeHash {
		return end.Add(-lookback), end, nil
	}

	start, err = c.commitTime(ctx, parent)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("resolve parent commit time: %w", err)
	}
	return start, end, nil
}

func (c *Collector) commitTime(ctx context.Context, hash string) (time.Time, error) {
	out, err := c.git(ctx, "show", "-s", "--format=%aI", hash)
	if err != nil {
		return time.Time{}, err
	}
	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(out))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse commit timestamp %q: %w", out, err)
	}
	return ts.UTC(), nil
}

func (c *Collector) metadata(ctx context.Context, hash string) (model.Commit, error) {
	const sep = "\x1f"
	format := strings.Join([]string{"%H", "%an", "%aI", "%B"}, sep)
	out, err := c.git(ctx, "show", "-s", "--format="+format, hash)
	if err != nil {
		return model.Commit{}, err
	}

	fields := strings.SplitN(strings.TrimRight(out, "\n"), sep, 4)
	if len(fields) < 4 {
		return model.Commit{}, fmt.Errorf("unexpected git show output for %s", hash)
	}

	ts, err := time.Parse(time.RFC3339, fields[2])
	if err != nil {
		return model.Commit{}, fmt.Errorf("parse commit timestamp %q: %w", fields[2], err)
	}

	return model.Commit{
		Hash:      fields[0],
		Author:    fields[1],
		Timestamp: ts.UTC(),
		Message:   fields[3],
	}, nil
}

func (c *Collector) parentHash(ctx context.Context, hash string) (string, error) {
	out, err := c.git(ctx, "rev-parse", hash+"^")
	if err != nil {
		return EmptyTreeHash, nil
	}
	return strings.TrimSpace(out), nil
}

func (c *Collector) fileStats(ctx context.Context, parent, hash string) ([]model.FileChange, error) {
	out, err := c.git(ctx, "diff", "--numstat", parent, hash)
	if err != nil {
		return nil, err
	}

	var files []model.FileChange
	for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 3)
		if len(parts) != 3 {
			continue
		}
		path := parts[2]
		if c.excluded(path) {
			continue
		}
		files = append(files, model.FileChange{
			Path:      path,
			Type:      classifyExtension(path),
			Additions: parseNumstat(parts[0]),
			Deletions: parseNumstat(parts[1]),
		})
	}
	return files, nil
}

func (c *Collector) diffs(ctx context.Context, parent, hash string, files []model.FileChange) (map[string]string, bool, error) {
	diffs := make(map[string]string, len(files))
	totalUsed := 0
	truncatedTotal := false

	for _, f := range files {
		if totalUsed >= c.totalDiffCap {
			truncatedTotal = true
			break
		}

		out, err := c.git(ctx, "diff", parent, hash, "--", f.Path)
		if err != nil {
			return nil, false, err
		}

		remaining := c.totalDiffCap - totalUsed
		limit := c.perFileDiffCap
		if remaining < limit {
			limit = remaining
		}

		text := out
		if len(text) > limit {
			text = text[:limit] + Truncated
			truncatedTotal = true
		}

		diffs[f.Path] = text
		totalUsed += len(text)
	}

	return diffs, truncatedTotal, nil
}

func (c *Collector) excluded(path string) bool {
	for _, pattern := range c.excludePatterns {
		if ok, _ := filepath.Match(pattern, path); ok {
			return true
		}
		if strings.HasSuffix(pattern, "/**") && strings.HasPrefix(path, strings.TrimSuffix(pattern, "**")) {
			return true
		}
	}
	return false
}

func (c *Collector) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = c.repoRoot

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, stderr.String())
	}
	return stdout.String(), nil
}

func parseNumstat(field string) int {
	if field == "-" {
		return 0
	}
	n, err := strconv.Atoi(field)
	if err != nil {
		return 0
	}
	return n
}

var extensionTypes = map[string]string{
	".go":   "go",
	".md":   "markdown",
	".mod":  "config",
	".sum":  "config",
	".yaml": "config",
	".yml":  "config",
	".json": "config",
	".toml": "config",
	".js":   "javascript",
	".ts":   "typescript",
	".py":   "python",
	".sh":   "shell",
	".sql":  "sql",
}

func classifyExtension(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if t, ok := extensionTypes[ext]; ok {
		return t
	}
	if ext == "" {
		return "other"
	}
	return strings.TrimPrefix(ext, ".")
}
