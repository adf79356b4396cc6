package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ledgerbridge/internal/clock"
	obsmetrics "github.com/smallbiznis/ledgerbridge/internal/observability/metrics"
	"github.com/smallbiznis/ledgerbridge/internal/pipeline"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const JobSyncAccounts = "sync_accounts"

var ErrInvalidConfig = errors.New("scheduler_invalid_config")

// AccountRunner runs one batch for every configured account.
type AccountRunner interface {
	ProcessAllAccounts(ctx context.Context) ([]pipeline.BatchResult, error)
}

type Params struct {
	fx.In

	Runner *pipeline.Runner
	GenID  *snowflake.Node
	Clock  clock.Clock
	Log    *zap.Logger
	Config Config                `optional:"true"`
	Pusher *obsmetrics.RunPusher `optional:"true"`
}

type Scheduler struct {
	runner  AccountRunner
	genID   *snowflake.Node
	clock   clock.Clock
	log     *zap.Logger
	metrics *obsmetrics.SchedulerMetrics
	pusher  *obsmetrics.RunPusher
	cfg     Config
}

func New(p Params) (*Scheduler, error) {
	if p.Runner == nil {
		return nil, ErrInvalidConfig
	}
	s, err := NewWith(p.Runner, p.GenID, p.Clock, p.Log, p.Config)
	if err != nil {
		return nil, err
	}
	s.pusher = p.Pusher
	return s, nil
}

func NewWith(runner AccountRunner, genID *snowflake.Node, clk clock.Clock, log *zap.Logger, cfg Config) (*Scheduler, error) {
	if runner == nil || genID == nil || clk == nil || log == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		runner:  runner,
		genID:   genID,
		clock:   clk,
		log:     log.Named("scheduler"),
		metrics: obsmetrics.Scheduler(),
		cfg:     cfg.withDefaults(),
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	stats := &runStats{id: s.genID.Generate().String()}
	ctx = withRunStats(ctx, stats)
	s.logger(ctx).Info("scheduler.run.start", zap.String("job", name), zap.String("run_id", stats.id))

	err := fn(ctx)
	elapsed := s.clock.Now().Sub(start)

	// A timed-out run stops between documents and resumes from the cursors next tick.
	outcome := obsmetrics.RunOutcomeOK
	switch {
	case err == nil:
		s.metrics.SetLastSuccess(name, s.clock.Now())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		outcome = obsmetrics.RunOutcomeTimeout
	default:
		outcome = obsmetrics.RunOutcomeFailed
	}
	s.metrics.ObserveRun(name, outcome, elapsed)
	s.logRunFinish(ctx, name, outcome, stats, elapsed)
	s.pusher.Flush(context.WithoutCancel(parent))

	if outcome == obsmetrics.RunOutcomeFailed {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// RunOnce syncs every account a single time.
func (s *Scheduler) RunOnce(parent context.Context) error {
	return s.runJob(parent, JobSyncAccounts, s.cfg.JobTimeout, s.SyncAccountsJob)
}

// RunForever runs immediately, then once per interval until ctx is done.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	planned := s.clock.Now()

	for {
		s.metrics.ObserveTickLag(s.clock.Now().Sub(planned))
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler.run.failed", zap.Error(err))
		}
		planned = planned.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SyncAccountsJob processes one batch per account and document type. Accounts
// already being synced elsewhere are deferred to the next tick rather than
// reported as errors.
func (s *Scheduler) SyncAccountsJob(ctx context.Context) error {
	stats := runStatsFrom(ctx)
	log := s.logger(ctx)

	results, err := s.runner.ProcessAllAccounts(ctx)
	for _, result := range results {
		stats.processed += result.Processed
		s.metrics.AddDocumentsProcessed(JobSyncAccounts, result.DocType, result.Processed)
		if result.Canceled {
			log.Info("scheduler.batch.interrupted",
				zap.String("account_id", result.AccountID),
				zap.String("doc_type", result.DocType),
				zap.Int64("cursor", result.CursorEnd),
			)
		}
	}

	var rest []error
	for _, part := range splitJoined(err) {
		if errors.Is(part, pipeline.ErrAccountBusy) {
			stats.deferred++
			s.metrics.IncAccountDeferred(JobSyncAccounts)
			continue
		}
		if ctx.Err() != nil && errors.Is(part, ctx.Err()) {
			rest = append(rest, part)
			continue
		}
		class := pipeline.ClassifySyncError(part)
		stats.failed++
		s.metrics.IncAccountError(JobSyncAccounts, class)
		log.Error("scheduler.account.failed", zap.String("class", class), zap.Error(part))
		rest = append(rest, part)
	}
	if len(rest) > 0 {
		return errors.Join(rest...)
	}
	return ctx.Err()
}

func splitJoined(err error) []error {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}
