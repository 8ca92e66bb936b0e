package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/weather-lookup-cache/internal/weather"
)

// Refresher runs one sweep over the stored weather records.
type Refresher interface {
	RefreshAll(ctx context.Context) (weather.SweepReport, error)
}

// Scheduler periodically refreshes every stored weather record.
type Scheduler struct {
	scheduler *gocron.Scheduler
	refresher Refresher
	interval  time.Duration
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new Scheduler.
func New(interval time.Duration, refresher Refresher, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := gocron.NewScheduler(time.UTC)
	// A tick that lands while a sweep is still running is skipped, not queued.
	s.SingletonModeAll()

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		scheduler: s,
		refresher: refresher,
		interval:  interval,
		logger:    logger.With("component", "scheduler"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
// The first sweep runs immediately.
func (s *Scheduler) Start() error {
	interval := s.interval
	if interval <= 0 {
		interval = time.Hour
	}

	_, err := s.scheduler.Every(interval).Do(s.run)
	if err != nil {
		return err
	}

	s.logger.Info("refresh job scheduled", "interval", interval)
	s.scheduler.StartAsync()
	return nil
}

// RunNow runs a sweep on the caller's goroutine.
func (s *Scheduler) RunNow(ctx context.Context) (weather.SweepReport, error) {
	return s.refresher.RefreshAll(ctx)
}

func (s *Scheduler) run() {
	s.logger.Debug("running weather refresh job")

	_, err := s.refresher.RefreshAll(s.ctx)
	switch {
	case errors.Is(err, weather.ErrSweepInProgress):
		s.logger.Info("refresh skipped: previous sweep still running")
	case errors.Is(err, context.Canceled):
		s.logger.Info("refresh interrupted by shutdown")
	case err != nil:
		s.logger.Error("refresh job failed", "error", err)
	}
}

// Stop stops the scheduler and cancels the sweep in flight, if any.
func (s *Scheduler) Stop() {
	s.cancel()
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
