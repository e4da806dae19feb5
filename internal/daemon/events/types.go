package events

import (
	"time"

	"git.home.luguber.info/inful/sitegen/internal/build"
)

// Rebuild request reasons.
const (
	ReasonStartup   = "startup"
	ReasonFSChange  = "fs_change"
	ReasonScheduled = "scheduled"
	ReasonManual    = "manual"
)

// RebuildRequested asks for a full generation pass soon.
type RebuildRequested struct {
	Reason      string
	Path        string
	Op          string
	RequestedAt time.Time
}

// RebuildNow is emitted by the debouncer once it decides a pass should start.
type RebuildNow struct {
	TriggeredAt   time.Time
	RequestCount  int
	LastReason    string
	LastPath      string
	FirstRequest  time.Time
	LastRequest   time.Time
	DebounceCause string // "immediate", "quiet", "max_delay" or "after_running"
}

// PassCompleted is emitted after every generation pass, whatever its outcome.
type PassCompleted struct {
	Result *build.PassResult
}
