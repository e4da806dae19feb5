package daemon

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/sitegen/internal/daemon/events"
	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegen/internal/logfields"
)

// Scheduler publishes periodic full-rebuild requests.
type Scheduler struct {
	scheduler gocron.Scheduler
	bus       *events.Bus
	logger    *slog.Logger
}

// NewScheduler creates a stopped scheduler that publishes to bus.
func NewScheduler(bus *events.Bus, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryRuntime, "failed to create scheduler").Build()
	}
	return &Scheduler{scheduler: s, bus: bus, logger: logger}, nil
}

// ScheduleRebuild requests a pass every interval and returns the job id.
func (s *Scheduler) ScheduleRebuild(ctx context.Context, interval time.Duration) (string, error) {
	if interval <= 0 {
		return "", ferrors.ValidationError("rebuild interval must be > 0").Build()
	}
	job, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.requestRebuild, ctx),
		gocron.WithName("periodic-rebuild"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryRuntime, "failed to schedule periodic rebuild").
			WithContext("interval", interval.String()).
			Build()
	}
	s.logger.Info("Scheduled periodic rebuild", slog.String("interval", interval.String()))
	return job.ID().String(), nil
}

func (s *Scheduler) requestRebuild(ctx context.Context) {
	evt := events.RebuildRequested{Reason: events.ReasonScheduled, RequestedAt: time.Now()}
	if err := s.bus.Publish(ctx, evt); err != nil && ctx.Err() == nil {
		s.logger.Warn("Failed to request scheduled rebuild", logfields.Error(err))
	}
}

func (s *Scheduler) Start() {
	s.scheduler.Start()
}

func (s *Scheduler) Stop() error {
	return s.scheduler.Shutdown()
}
