package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dejobratic/storefront/internal/orders/ports"
	"golang.org/x/sync/errgroup"
)

type SweeperConfig struct {
	Interval    time.Duration
	MinAge      time.Duration
	BatchSize   int
	Concurrency int
}

// SweepStats summarises one pass.
type SweepStats struct {
	Checked int
	Failed  int
}

// Sweeper periodically polls attempts that have stayed pending longer than
// MinAge. It only asks the provider; it never fails an attempt on its own.
type Sweeper struct {
	repo   ports.OrderRepository
	poll   PollFunc
	cfg    SweeperConfig
	logger *slog.Logger
	now    func() time.Time
}

func NewSweeper(repo ports.OrderRepository, poll PollFunc, cfg SweeperConfig, logger *slog.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Sweeper{
		repo:   repo,
		poll:   poll,
		cfg:    cfg,
		logger: logger.With("component", "pending_sweeper"),
		now:    time.Now,
	}
}

// SweepOnce polls one batch of stale pending attempts. Individual poll
// failures are counted and logged, not returned.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepStats, error) {
	pending, err := s.repo.ListPendingTransactions(ctx, s.now().Add(-s.cfg.MinAge), s.cfg.BatchSize)
	if err != nil {
		return SweepStats{}, fmt.Errorf("list pending transactions: %w", err)
	}

	var failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, p := range pending {
		g.Go(func() error {
			if err := s.poll(gctx, p.ExternalID); err != nil {
				failed.Add(1)
				s.logger.WarnContext(gctx, "sweep status check failed",
					"order_id", p.OrderID,
					"external_id", p.ExternalID,
					"pending_since", p.CreatedAt,
					"error", err,
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	stats := SweepStats{Checked: len(pending), Failed: int(failed.Load())}
	if stats.Checked > 0 {
		s.logger.InfoContext(ctx, "pending sweep finished", "checked", stats.Checked, "failed", stats.Failed)
	}
	return stats, ctx.Err()
}

// Run sweeps every Interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.ErrorContext(ctx, "pending sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
