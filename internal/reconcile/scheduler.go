package reconcile

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// PollFunc checks one payment attempt with the provider.
type PollFunc func(ctx context.Context, externalID string) error

type SchedulerConfig struct {
	Delay     time.Duration
	Workers   int
	QueueSize int
}

type recheck struct {
	externalID string
	due        time.Time
}

// Scheduler polls payment attempts a fixed delay after they were sent. Jobs
// live in memory only; anything lost on restart is picked up by the Sweeper.
type Scheduler struct {
	cfg    SchedulerConfig
	queue  chan recheck
	logger *slog.Logger
	now    func() time.Time
}

func NewScheduler(cfg SchedulerConfig, logger *slog.Logger) *Scheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	return &Scheduler{
		cfg:    cfg,
		queue:  make(chan recheck, cfg.QueueSize),
		logger: logger.With("component", "recheck_scheduler"),
		now:    time.Now,
	}
}

// Schedule queues a poll without blocking. When the queue is full the recheck
// is dropped.
func (s *Scheduler) Schedule(externalID string) {
	select {
	case s.queue <- recheck{externalID: externalID, due: s.now().Add(s.cfg.Delay)}:
	default:
		s.logger.Warn("recheck queue full, dropping status check", "external_id", externalID)
	}
}

// Run drains the queue with cfg.Workers goroutines until ctx is done.
func (s *Scheduler) Run(ctx context.Context, poll PollFunc) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < s.cfg.Workers; i++ {
		g.Go(func() error {
			s.work(ctx, poll)
			return nil
		})
	}
	return g.Wait()
}

func (s *Scheduler) work(ctx context.Context, poll PollFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.queue:
			if !sleepUntil(ctx, job.due, s.now) {
				return
			}
			if err := poll(ctx, job.externalID); err != nil {
				s.logger.WarnContext(ctx, "scheduled status check failed",
					"external_id", job.externalID,
					"error", err,
				)
			}
		}
	}
}

func sleepUntil(ctx context.Context, due time.Time, now func() time.Time) bool {
	wait := due.Sub(now())
	if wait <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
