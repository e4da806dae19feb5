package build

import (
	"time"
)

// Phase names a step of a generation pass.
type Phase string

const (
	PhaseTemplates Phase = "templates"
	PhasePages     Phase = "pages"
	PhaseComplete  Phase = "complete"
)

// Status is the outcome of a generation pass.
type Status string

const (
	// StatusSuccess means every file rendered.
	StatusSuccess Status = "success"
	// StatusPartial means the pass completed but some files failed.
	StatusPartial Status = "partial"
	// StatusFailed means a walk failed and no reload was sent.
	StatusFailed Status = "failed"
	// StatusCancelled means the pass stopped at shutdown.
	StatusCancelled Status = "cancelled"
)

// Completed reports whether the pass reached the reload step.
func (s Status) Completed() bool {
	return s == StatusSuccess || s == StatusPartial
}

// FileFailure records one file that could not be processed.
type FileFailure struct {
	Phase Phase  `json:"phase"`
	File  string `json:"file"`
	Error string `json:"error"`
}

// PassResult describes one generation pass.
type PassResult struct {
	ID        string        `json:"id"`
	Reason    string        `json:"reason"`
	Status    Status        `json:"status"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration_ns"`

	Templates     int `json:"templates"`
	PagesRendered int `json:"pages_rendered"`
	PagesSkipped  int `json:"pages_skipped"`

	Failures    []FileFailure `json:"failures,omitempty"`
	Fingerprint string        `json:"fingerprint,omitempty"`
	Revision    string        `json:"revision,omitempty"`
	// Error is set when the pass failed as a whole.
	Error string `json:"error,omitempty"`
}
