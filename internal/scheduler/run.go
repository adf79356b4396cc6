package scheduler

import (
	"context"
	"time"

	obslogger "github.com/smallbiznis/ledgerbridge/internal/observability/logger"
	"go.uber.org/zap"
)

// runStats accumulates what one scheduler run did across accounts.
type runStats struct {
	id        string
	processed int
	deferred  int
	failed    int
}

type runStatsKey struct{}

func withRunStats(ctx context.Context, stats *runStats) context.Context {
	return context.WithValue(ctx, runStatsKey{}, stats)
}

func runStatsFrom(ctx context.Context) *runStats {
	if stats, ok := ctx.Value(runStatsKey{}).(*runStats); ok {
		return stats
	}
	return &runStats{}
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func (s *Scheduler) logRunFinish(ctx context.Context, job, outcome string, stats *runStats, elapsed time.Duration) {
	fields := []zap.Field{
		zap.String("job", job),
		zap.String("run_id", stats.id),
		zap.String("outcome", outcome),
		zap.Duration("elapsed", elapsed),
		zap.Int("processed", stats.processed),
		zap.Int("deferred", stats.deferred),
		zap.Int("failed_accounts", stats.failed),
	}
	if stats.failed > 0 {
		s.logger(ctx).Warn("scheduler.run.finish", fields...)
		return
	}
	s.logger(ctx).Info("scheduler.run.finish", fields...)
}
