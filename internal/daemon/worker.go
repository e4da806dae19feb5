package daemon

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"git.home.luguber.info/inful/sitegen/internal/build"
	"git.home.luguber.info/inful/sitegen/internal/daemon/events"
	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegen/internal/logfields"
)

// PassRunner runs one generation pass.
type PassRunner interface {
	Run(ctx context.Context, reason string) (*build.PassResult, error)
}

// Worker executes passes one at a time as RebuildNow events arrive and
// publishes a PassCompleted for each.
type Worker struct {
	bus    *events.Bus
	runner PassRunner
	logger *slog.Logger

	passMu    sync.Mutex
	running   atomic.Bool
	readyOnce sync.Once
	ready     chan struct{}
}

func NewWorker(bus *events.Bus, runner PassRunner, logger *slog.Logger) (*Worker, error) {
	if bus == nil {
		return nil, ferrors.ValidationError("bus is required").Build()
	}
	if runner == nil {
		return nil, ferrors.ValidationError("pass runner is required").Build()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{bus: bus, runner: runner, logger: logger, ready: make(chan struct{})}, nil
}

// Running reports whether a pass is in progress.
func (w *Worker) Running() bool { return w.running.Load() }

// Ready is closed once Run has subscribed to events.
func (w *Worker) Ready() <-chan struct{} { return w.ready }

// Run consumes RebuildNow events until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	nowCh, unsubscribe := events.Subscribe[events.RebuildNow](w.bus, 1)
	defer unsubscribe()

	w.readyOnce.Do(func() { close(w.ready) })

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-nowCh:
			if !ok {
				return nil
			}
			w.logger.Debug("Starting rebuild",
				logfields.Reason(evt.LastReason),
				logfields.Count(evt.RequestCount),
				slog.String("debounce_cause", evt.DebounceCause))
			w.RunPass(ctx, evt.LastReason)
		}
	}
}

// RunPass runs a single pass synchronously and publishes its result.
func (w *Worker) RunPass(ctx context.Context, reason string) *build.PassResult {
	w.passMu.Lock()
	w.running.Store(true)
	result, err := w.runner.Run(ctx, reason)
	w.running.Store(false)
	w.passMu.Unlock()

	if err != nil && ctx.Err() == nil {
		w.logger.Debug("Pass returned error",
			logfields.Reason(reason),
			logfields.Error(err))
	}
	if result == nil {
		return nil
	}
	if pubErr := w.bus.Publish(ctx, events.PassCompleted{Result: result}); pubErr != nil && ctx.Err() == nil {
		w.logger.Warn("Failed to publish pass result",
			logfields.PassID(result.ID),
			logfields.Error(pubErr))
	}
	return result
}
