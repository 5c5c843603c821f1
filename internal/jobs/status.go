// Package jobs schedules and polls image-to-note conversion jobs.
package jobs

import "strings"

// Status is the local lifecycle state of a conversion task.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusSubmitting Status = "submitting"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// active reports whether the status counts against the concurrency ceiling.
func (s Status) active() bool {
	return s == StatusSubmitting || s == StatusInProgress
}

// NormalizeRemoteStatus maps the server's loosely-typed status vocabulary
// onto the local enum. This is the only place raw server status strings are
// interpreted; they must not leak past this boundary.
//
// The pipeline reports many intermediate stages (RECEIVED, STORED, QUEUED,
// OCR_PENDING, OCR_DONE, AI_PENDING, AI_DONE); all of them, and anything
// unrecognized, mean the job is still pending.
func NormalizeRemoteStatus(raw string) Status {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PERSISTED", "COMPLETED":
		return StatusCompleted
	case "FAILED", "ERROR":
		return StatusFailed
	default:
		return StatusInProgress
	}
}
