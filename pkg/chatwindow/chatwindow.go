// Package chatwindow groups raw chat messages into sessions, filters those
// sessions to the ones overlapping a commit's time window, and merges the
// survivors into one deterministically ordered ChatWindow.
package chatwindow

import (
	"sort"
	"time"

	"mcp-commit-story/pkg/model"
)

// Build groups messages by ComposerID into sessions, keeps only the
// sessions overlapping [windowStart, windowEnd], and returns the merged,
// chronologically sorted window plus its quality metadata. databaseStatuses
// records every database attempted during collection, scanned or not.
func Build(messages []model.ChatMessage, windowStart, windowEnd time.Time, databaseStatuses []model.DatabaseStatus) model.ChatWindow {
	sessions := groupSessions(messages)

	var overlapping []model.ChatSession
	for _, session := range sessions {
		if session.OverlapsWindow(windowStart, windowEnd) {
			overlapping = append(overlapping, session)
		}
	}

	var merged []model.ChatMessage
	for _, session := range overlapping {
		merged = append(merged, session.Messages...)
	}

	sortMessages(merged)

	failed := failedStatuses(databaseStatuses)
	quality := model.QualityMetadata{
		DatabasesScanned:    len(databaseStatuses) - len(failed),
		DatabasesFailed:     failed,
		MessagesTotal:       len(messages),
		MessagesAfterFilter: len(merged),
		SessionCount:        len(overlapping),
	}

	switch {
	case len(merged) == 0:
		quality.ConfidenceScore = 0
		quality.BoundaryNote = "no chat activity overlapped the commit window"
	case len(overlapping) == 1:
		quality.ConfidenceScore = 10
		quality.BoundaryNote = "single session overlapped the window; passed through whole"
	default:
		quality.ConfidenceScore = 10
	}

	return model.ChatWindow{Messages: merged, Quality: quality}
}

// groupSessions buckets messages by ComposerID and derives each session's
// CreatedAt/LastUpdatedAt from its message timestamps.
func groupSessions(messages []model.ChatMessage) []model.ChatSession {
	byComposer := make(map[string]*model.ChatSession)
	var order []string

	for _, msg := range messages {
		session, ok := byComposer[msg.ComposerID]
		if !ok {
			session = &model.ChatSession{ComposerID: msg.ComposerID}
			byComposer[msg.ComposerID] = session
			order = append(order, msg.ComposerID)
		}

		ts := time.UnixMilli(msg.TimestampMs)
		if session.CreatedAt.IsZero() || ts.Before(session.CreatedAt) {
			session.CreatedAt = ts
		}
		if ts.After(session.LastUpdatedAt) {
			session.LastUpdatedAt = ts
		}
		session.Messages = append(session.Messages, msg)
	}

	sessions := make([]model.ChatSession, 0, len(order))
	for _, composerID := range order {
		sessions = append(sessions, *byComposer[composerID])
	}
	return sessions
}

// sortMessages orders by (timestamp, composerId, originalIndex, databasePath)
// — the last key resolves ties two databases could otherwise report
// identically, per the documented open question on tie-break ordering.
func sortMessages(messages []model.ChatMessage) {
	sort.SliceStable(messages, func(i, j int) bool {
		a, b := messages[i], messages[j]
		if a.TimestampMs != b.TimestampMs {
			return a.TimestampMs < b.TimestampMs
		}
		if a.ComposerID != b.ComposerID {
			return a.ComposerID < b.ComposerID
		}
		if a.OriginalIndex != b.OriginalIndex {
			return a.OriginalIndex < b.OriginalIndex
		}
		return a.DatabasePath < b.DatabasePath
	})
}

func failedStatuses(statuses []model.DatabaseStatus) []model.DatabaseStatus {
	var failed []model.DatabaseStatus
	for _, s := range statuses {
		if !s.Scanned {
			failed = append(failed, s)
		}
	}
	return failed
}
