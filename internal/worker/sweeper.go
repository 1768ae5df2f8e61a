package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// StaleSweeper re-queues uploads whose valuation never finished.
type StaleSweeper interface {
	SweepStale(ctx context.Context, age time.Duration, limit int) (int, error)
}

// SweepConfig controls the cron sweeper.
type SweepConfig struct {
	Schedule string
	Age      time.Duration
	Batch    int
}

// StartSweeper schedules the stale valuation sweep and returns the running
// cron; callers Stop it on shutdown.
func StartSweeper(svc StaleSweeper, cfg SweepConfig, log *zap.Logger) (*cron.Cron, error) {
	c := cron.New(cron.WithLocation(time.UTC))
	_, err := c.AddFunc(cfg.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		Sweep(ctx, svc, cfg, log)
	})
	if err != nil {
		return nil, fmt.Errorf("schedule valuation sweep: %w", err)
	}
	c.Start()
	log.Info("valuation sweeper started", zap.String("schedule", cfg.Schedule), zap.Duration("age", cfg.Age))
	return c, nil
}

// Sweep runs one pass of the sweeper.
func Sweep(ctx context.Context, svc StaleSweeper, cfg SweepConfig, log *zap.Logger) {
	n, err := svc.SweepStale(ctx, cfg.Age, cfg.Batch)
	if err != nil {
		log.Error("valuation sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		log.Info("requeued stale valuations", zap.Int("uploads", n))
	}
}
