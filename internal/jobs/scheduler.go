package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Scheduler runs the background jobs on fixed intervals.
type Scheduler struct {
	scheduler gocron.Scheduler
	cancel    context.CancelFunc
}

// NewScheduler registers the risk refresh to run every interval. Runs never overlap:
// a pass still in progress when the next one is due pushes it back.
func NewScheduler(refresher *RiskRefresher, interval time.Duration) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("creating scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func(ctx context.Context) {
			if _, err := refresher.Run(ctx); err != nil {
				slog.Error("risk refresh pass failed", "error", err)
			}
		}, ctx),
		gocron.WithName("risk-refresh"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		cancel()
		_ = s.Shutdown()
		return nil, fmt.Errorf("registering risk refresh job: %w", err)
	}

	return &Scheduler{scheduler: s, cancel: cancel}, nil
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	slog.Info("starting background job scheduler", "jobs", len(s.scheduler.Jobs()))
	s.scheduler.Start()
}

// Stop cancels running passes and waits for them to return.
func (s *Scheduler) Stop() error {
	slog.Info("stopping background job scheduler")
	s.cancel()
	return s.scheduler.Shutdown()
}
