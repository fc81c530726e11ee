package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/AmazingeventParis/Kooki/internal/logger"
)

// Reconciler settles donations whose webhooks were lost.
type Reconciler interface {
	ReconcilePending(ctx context.Context) error
}

// Scheduler runs the periodic background jobs.
type Scheduler struct {
	scheduler  gocron.Scheduler
	reconciler Reconciler
	interval   time.Duration
}

func New(reconciler Reconciler, interval time.Duration) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		scheduler:  s,
		reconciler: reconciler,
		interval:   interval,
	}, nil
}

// Start registers the jobs and launches the scheduler. The reconcile job is
// singleton-scheduled: a run that outlasts the interval is never overlapped.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			runCtx, cancel := context.WithTimeout(ctx, s.interval)
			defer cancel()
			if err := s.reconciler.ReconcilePending(runCtx); err != nil {
				logger.Log.Errorf("scheduler: donation reconcile failed: %v", err)
			}
		}),
		gocron.WithName("donation_reconcile"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return err
	}

	s.scheduler.Start()
	logger.Log.WithField("interval", s.interval.String()).Info("scheduler started")
	return nil
}

// Shutdown stops the scheduler and waits for running jobs.
func (s *Scheduler) Shutdown() error {
	return s.scheduler.Shutdown()
}
