package scheduler

import (
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// Reloader re-issues the most recent forecast query.
type Reloader interface {
	Reload() string
}

// Scheduler periodically reloads the forecast. It only triggers refreshes;
// the controller still publishes Loading first and drops superseded results.
type Scheduler struct {
	scheduler *gocron.Scheduler
	target    Reloader
	interval  time.Duration
	logger    *slog.Logger
}

// New creates a new Scheduler. A non-positive interval disables it.
func New(target Reloader, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		target:    target,
		interval:  interval,
		logger:    logger,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
// The first run happens one interval from now; the controller has already
// refreshed once on construction.
func (s *Scheduler) Start() error {
	if s.interval <= 0 {
		s.logger.Info("scheduler: auto refresh disabled")
		return nil
	}

	_, err := s.scheduler.Every(s.interval).WaitForSchedule().Do(s.run)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.logger.Info("scheduler: auto refresh enabled", "interval", s.interval)
	return nil
}

func (s *Scheduler) run() {
	id := s.target.Reload()
	s.logger.Debug("scheduler: reload triggered", "cycle", id)
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
