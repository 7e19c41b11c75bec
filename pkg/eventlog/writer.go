// Package eventlog provides structured logging of hook-worker pipeline stages to daily rotated JSON files.
package eventlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// StageEvent records the outcome of a single pipeline stage for one worker run.
type StageEvent struct {
	Timestamp  time.Time     `json:"timestamp"`
	RunID      string        `json:"run_id"`
	CommitHash string        `json:"commit_hash"`
	Stage      string        `json:"stage"`
	Outcome    string        `json:"outcome"` // "ok", "fallback", "aborted"
	Duration   time.Duration `json:"duration_ns"`
	Detail     string        `json:"detail,omitempty"`
}

// Writer handles structured logging of stage events to daily rotated JSONL files.
type Writer struct {
	logDir       string
	currentFile  *os.File
	currentDate  string
	mu           sync.Mutex
	rotationHour int // Stored from NewWriter but not consulted; rotation happens whenever the local date changes
}

// NewWriter creates a new event log writer with daily rotation in the specified directory.
func NewWriter(logDir string, rotationHours int) (*Writer, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	if rotationHours <= 0 {
		rotationHours = 24
	}

	writer := &Writer{
		logDir:       logDir,
		rotationHour: rotationHours,
	}

	if err := writer.rotateIfNeeded(); err != nil {
		return nil, fmt.Errorf("failed to initialize log file: %w", err)
	}

	return writer, nil
}

// WriteStage appends a stage event to the current log file with automatic rotation.
func (w *Writer) WriteStage(evt StageEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.rotateIfNeeded(); err != nil {
		return fmt.Errorf("failed to rotate log file: %w", err)
	}

	jsonData, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to serialize stage event: %w", err)
	}

	if _, err := w.currentFile.Write(jsonData); err != nil {
		return fmt.Errorf("failed to write stage event: %w", err)
	}
	if _, err := w.currentFile.WriteString("\n"); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	if err := w.currentFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync log file: %w", err)
	}

	return nil
}

func (w *Writer) rotateIfNeeded() error {
	newDate := time.Now().Format("2006-01-02")
	if w.currentFile == nil || w.currentDate != newDate {
		return w.rotate(newDate)
	}
	return nil
}

func (w *Writer) rotate(newDate string) error {
	if w.currentFile != nil {
		if err := w.currentFile.Close(); err != nil {
			return fmt.Errorf("failed to close current log file: %w", err)
		}
	}

	filename := fmt.Sprintf("stages-%s.jsonl", newDate)
	path := filepath.Join(w.logDir, filename)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	w.currentFile = file
	w.currentDate = newDate
	return nil
}

// Close closes the current log file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentFile != nil {
		err := w.currentFile.Close()
		w.currentFile = nil
		if err != nil {
			return fmt.Errorf("failed to close event log file: %w", err)
		}
	}
	return nil
}

// GetCurrentLogFile returns the path of the currently active log file.
func (w *Writer) GetCurrentLogFile() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentFile == nil {
		return ""
	}
	return filepath.Join(w.logDir, fmt.Sprintf("stages-%s.jsonl", w.currentDate))
}

// ReadStages reads and parses stage events from a specific log file.
func ReadStages(logFilePath string) ([]StageEvent, error) {
	data, err := os.ReadFile(logFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}

	var events []StageEvent
	start := 0
	for i, b := range data {
		if b != '\n' {
			continue
		}
		if i > start {
			var evt StageEvent
			if err := json.Unmarshal(data[start:i], &evt); err != nil {
				return nil, fmt.Errorf("failed to parse stage event: %w", err)
			}
			events = append(events, evt)
		}
		start = i + 1
	}
	if start < len(data) {
		var evt StageEvent
		if err := json.Unmarshal(data[start:], &evt); err != nil {
			return nil, fmt.Errorf("failed to parse final stage event: %w", err)
		}
		events = append(events, evt)
	}

	return events, nil
}

// ListLogFiles returns all stage log files in the log directory.
func ListLogFiles(logDir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(logDir, "stages-*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("failed to list log files: %w", err)
	}
	return files, nil
}
