package reconcile

import (
	"context"
	"time"

	"orderpay-be/internal/logger"

	"go.uber.org/zap"
)

// RunSweeper calls SweepUnreconciled every interval until ctx is done.
func RunSweeper(ctx context.Context, svc Operations, interval, grace time.Duration) {
	log := logger.FromCtx(ctx).With(zap.String("layer", "sweeper"))
	log.Info("sweeper started", zap.Duration("interval", interval), zap.Duration("grace", grace))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("sweeper stopped")
			return
		case <-ticker.C:
			if _, err := svc.SweepUnreconciled(ctx, grace); err != nil && ctx.Err() == nil {
				log.Error("sweep failed", zap.Error(err))
			}
		}
	}
}
