package daemon

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"git.home.luguber.info/inful/sitegen/internal/daemon/events"
	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegen/internal/logfields"
	"git.home.luguber.info/inful/sitegen/internal/metrics"
)

// Debounce causes reported on RebuildNow.
const (
	CauseImmediate    = "immediate"
	CauseQuiet        = "quiet"
	CauseMaxDelay     = "max_delay"
	CauseAfterRunning = "after_running"
)

type DebouncerConfig struct {
	// QuietWindow is how long the source must stay unchanged before a pass
	// starts. Zero emits a RebuildNow for every request.
	QuietWindow time.Duration
	MaxDelay    time.Duration

	// CheckPassRunning reports whether a pass is currently running. While it
	// is, requests collapse into exactly one follow-up pass.
	CheckPassRunning func() bool

	// PollInterval controls how often completion of a running pass is polled.
	PollInterval time.Duration

	Recorder metrics.Recorder
	Logger   *slog.Logger
}

// Debouncer coalesces bursts of RebuildRequested events into a single
// RebuildNow:
//   - quiet window debounce
//   - max delay (cannot postpone indefinitely)
//   - if a pass is already running, queue exactly one follow-up
//
// Run must be called from a single goroutine.
type Debouncer struct {
	bus *events.Bus
	cfg DebouncerConfig

	mu        sync.Mutex
	readyOnce sync.Once
	ready     chan struct{}

	pending         bool
	pendingAfterRun bool
	pollingAfterRun bool
	firstRequestAt  time.Time
	lastRequestAt   time.Time
	lastReason      string
	lastPath        string
	requestCount    int
}

func NewDebouncer(bus *events.Bus, cfg DebouncerConfig) (*Debouncer, error) {
	if bus == nil {
		return nil, ferrors.ValidationError("bus is required").Build()
	}
	if cfg.QuietWindow < 0 {
		return nil, ferrors.ValidationError("quiet window must be >= 0").Build()
	}
	if cfg.QuietWindow > 0 && cfg.MaxDelay <= 0 {
		return nil, ferrors.ValidationError("max delay must be > 0").Build()
	}
	if cfg.QuietWindow > 0 && cfg.MaxDelay < cfg.QuietWindow {
		return nil, ferrors.ValidationError("max delay must not be shorter than the quiet window").
			WithContext("quiet_window", cfg.QuietWindow.String()).
			WithContext("max_delay", cfg.MaxDelay.String()).
			Build()
	}
	if cfg.CheckPassRunning == nil {
		cfg.CheckPassRunning = func() bool { return false }
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 25 * time.Millisecond
	}
	if cfg.Recorder == nil {
		cfg.Recorder = metrics.NoopRecorder{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Debouncer{bus: bus, cfg: cfg, ready: make(chan struct{})}, nil
}

// Ready is closed once Run has subscribed to events.
func (d *Debouncer) Ready() <-chan struct{} {
	return d.ready
}

func newStoppedTimer() *time.Timer {
	t := time.NewTimer(time.Hour)
	t.Stop()
	return t
}

func resetTimer(t *time.Timer, after time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(after)
}

func (d *Debouncer) Run(ctx context.Context) error {
	if ctx == nil {
		return ferrors.ValidationError("context cannot be nil").Build()
	}

	reqCh, unsubscribe := events.Subscribe[events.RebuildRequested](d.bus, 64)
	defer unsubscribe()

	d.readyOnce.Do(func() { close(d.ready) })

	quietTimer := newStoppedTimer()
	maxTimer := newStoppedTimer()
	pollTimer := newStoppedTimer()
	defer quietTimer.Stop()
	defer maxTimer.Stop()
	defer pollTimer.Stop()

	var quietC, maxC, pollC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case req, ok := <-reqCh:
			if !ok {
				return nil
			}
			d.cfg.Recorder.IncRebuildRequest(req.Reason)
			first := d.onRequest(req)

			if d.cfg.QuietWindow == 0 {
				d.tryEmit(ctx, CauseImmediate)
				break
			}

			resetTimer(quietTimer, d.cfg.QuietWindow)
			quietC = quietTimer.C
			if first {
				resetTimer(maxTimer, d.cfg.MaxDelay)
				maxC = maxTimer.C
			}

		case <-quietC:
			if d.tryEmit(ctx, CauseQuiet) {
				quietC, maxC = nil, nil
			}

		case <-maxC:
			if d.tryEmit(ctx, CauseMaxDelay) {
				quietC, maxC = nil, nil
			}

		case <-pollC:
			pollC = nil
			if d.tryEmitAfterRunning(ctx) {
				quietC, maxC = nil, nil
				continue
			}
			resetTimer(pollTimer, d.cfg.PollInterval)
			pollC = pollTimer.C
		}

		if pollC == nil && d.shouldPollAfterRun() {
			resetTimer(pollTimer, d.cfg.PollInterval)
			pollC = pollTimer.C
		}
	}
}

// onRequest records req and reports whether it opened a new burst.
func (d *Debouncer) onRequest(req events.RebuildRequested) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := req.RequestedAt
	if now.IsZero() {
		now = time.Now()
	}

	first := !d.pending
	if first {
		d.pending = true
		d.firstRequestAt = now
		d.requestCount = 0
	}

	d.lastRequestAt = now
	d.lastReason = req.Reason
	d.lastPath = req.Path
	d.requestCount++
	return first
}

func (d *Debouncer) shouldPollAfterRun() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pendingAfterRun && !d.pollingAfterRun
}

// tryEmit publishes RebuildNow unless a pass is running. It reports whether
// the pending burst was consumed.
func (d *Debouncer) tryEmit(ctx context.Context, cause string) bool {
	d.mu.Lock()
	if !d.pending {
		d.mu.Unlock()
		return true
	}

	if d.cfg.CheckPassRunning() {
		d.pendingAfterRun = true
		d.mu.Unlock()
		return false
	}

	evt := events.RebuildNow{
		TriggeredAt:   time.Now(),
		RequestCount:  d.requestCount,
		LastReason:    d.lastReason,
		LastPath:      d.lastPath,
		FirstRequest:  d.firstRequestAt,
		LastRequest:   d.lastRequestAt,
		DebounceCause: cause,
	}
	d.pending = false
	d.pendingAfterRun = false
	d.pollingAfterRun = false
	d.mu.Unlock()

	if err := d.bus.Publish(ctx, evt); err != nil && ctx.Err() == nil {
		d.cfg.Logger.Warn("Failed to publish rebuild",
			logfields.Reason(evt.LastReason),
			logfields.Error(err))
	}
	return true
}

func (d *Debouncer) tryEmitAfterRunning(ctx context.Context) bool {
	d.mu.Lock()
	if !d.pendingAfterRun {
		d.mu.Unlock()
		return true
	}
	d.pollingAfterRun = true
	d.mu.Unlock()

	if d.cfg.CheckPassRunning() {
		return false
	}
	return d.tryEmit(ctx, CauseAfterRunning)
}
