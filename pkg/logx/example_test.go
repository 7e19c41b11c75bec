package logx

import (
	"fmt"
	"testing"
)

func ExampleLogger_worker_usage() {
	fmt.Println("=== Worker Logging Demo ===")

	worker := NewLogger("worker")
	worker.Info("Starting worker")
	worker.Debug("Loading configuration from %s", ".mcp-commit-storyrc.yaml")

	chatdb := NewLogger("chatdb")
	section := NewLogger("section")

	chatdb.Info("Scanning %d databases", 3)
	chatdb.Warn("Database open failed, continuing: %s", "permission denied")

	section.Info("Generating section: %s", "Summary")
	section.Error("Section generation failed, falling back: %s", "circuit breaker open")

	summaryLogger := section.WithAgentID("section-summary")
	summaryLogger.Info("Running fallback content generation")

	worker.Info("Pipeline complete")

	fmt.Println("=== End Demo ===")
}

func TestWorkerUsage(t *testing.T) {
	ExampleLogger_worker_usage()
}
