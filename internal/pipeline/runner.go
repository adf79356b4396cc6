package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	accountdomain "github.com/smallbiznis/ledgerbridge/internal/account/domain"
	"github.com/smallbiznis/ledgerbridge/internal/cegid"
	"github.com/smallbiznis/ledgerbridge/internal/holded"
	obslogger "github.com/smallbiznis/ledgerbridge/internal/observability/logger"
	"github.com/smallbiznis/ledgerbridge/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
)

const maxParallelAccounts = 4

// SourceFactory returns the source client for an account.
type SourceFactory func(account accountdomain.Account) Source

// TargetFactory returns a fresh target client, with its own token and
// sub-account session, for an account.
type TargetFactory func(account accountdomain.Account) Target

// AccountLocker keeps two runs of the same account from overlapping.
type AccountLocker interface {
	TryLockAccount(ctx context.Context, account string) (string, bool, error)
	ReleaseAccount(ctx context.Context, account, token string) error
}

type authenticator interface {
	Authenticate(ctx context.Context) (*oauth2.Token, error)
}

// Runner fans batches out over accounts and their document types.
type Runner struct {
	driver   *Driver
	accounts accountdomain.Service
	sources  SourceFactory
	targets  TargetFactory
	locker   AccountLocker
	log      *zap.Logger
}

type RunnerParams struct {
	fx.In

	Driver   *Driver
	Accounts accountdomain.Service
	Sources  SourceFactory
	Targets  TargetFactory
	Guard    *ratelimit.SyncGuard `optional:"true"`
	Log      *zap.Logger
}

func NewRunner(p RunnerParams) *Runner {
	r := &Runner{
		driver:   p.Driver,
		accounts: p.Accounts,
		sources:  p.Sources,
		targets:  p.Targets,
		log:      p.Log.Named("pipeline").With(zap.String("component", "runner")),
	}
	if p.Guard != nil {
		r.locker = p.Guard
	}
	return r
}

// NewRunnerWith builds a runner from explicit dependencies. locker may be nil.
func NewRunnerWith(driver *Driver, accounts accountdomain.Service, sources SourceFactory, targets TargetFactory, locker AccountLocker, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		driver:   driver,
		accounts: accounts,
		sources:  sources,
		targets:  targets,
		locker:   locker,
		log:      log.Named("pipeline").With(zap.String("component", "runner")),
	}
}

func NewSourceFactory(f *holded.Factory) SourceFactory {
	return func(account accountdomain.Account) Source {
		return f.ForAccount(account.HoldedAPIKey)
	}
}

func NewTargetFactory(f *cegid.Factory) TargetFactory {
	return func(account accountdomain.Account) Target {
		return f.ForCompany(account.CegidCompanyCode)
	}
}

// ProcessAllAccounts runs one batch per configured account and document type.
// A failing account never stops the others; their errors are joined.
func (r *Runner) ProcessAllAccounts(ctx context.Context) ([]BatchResult, error) {
	accounts, err := r.accounts.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	r.log.Info("pipeline.run.start", zap.Int("accounts", len(accounts)))

	var (
		mu      sync.Mutex
		results []BatchResult
		errs    []error
	)
	var g errgroup.Group
	g.SetLimit(maxParallelAccounts)
	for _, account := range accounts {
		g.Go(func() error {
			batch, err := r.ProcessAccount(ctx, account)
			mu.Lock()
			defer mu.Unlock()
			results = append(results, batch...)
			if err != nil {
				errs = append(errs, fmt.Errorf("account %s: %w", account.Name, err))
			}
			return nil
		})
	}
	_ = g.Wait()

	err = errors.Join(errs...)
	r.log.Info("pipeline.run.finish",
		zap.Int("accounts", len(accounts)),
		zap.Int("batches", len(results)),
		zap.Int("errors", len(errs)),
	)
	return results, err
}

// ProcessAccountByID runs every document type of one account.
func (r *Runner) ProcessAccountByID(ctx context.Context, id string) ([]BatchResult, error) {
	account, err := r.accounts.Get(ctx, id)
	if err != nil {
		if errors.Is(err, accountdomain.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return r.ProcessAccount(ctx, account)
}

// ProcessAccount runs every document type of account concurrently, sharing one
// target client so the token and sub-account snapshot are reused.
func (r *Runner) ProcessAccount(ctx context.Context, account accountdomain.Account) ([]BatchResult, error) {
	log := obslogger.WithContext(ctx, r.log).With(
		zap.String("account_id", account.ID),
		zap.String("account_name", account.Name),
	)

	if r.locker != nil {
		token, ok, err := r.locker.TryLockAccount(ctx, account.ID)
		if err != nil {
			return nil, fmt.Errorf("lock account: %w", err)
		}
		if !ok {
			log.Warn("pipeline.account.busy")
			return nil, ErrAccountBusy
		}
		defer func() {
			if err := r.locker.ReleaseAccount(context.WithoutCancel(ctx), account.ID, token); err != nil {
				log.Warn("pipeline.account.unlock_failed", zap.Error(err))
			}
		}()
	}

	source := r.sources(account)
	target := r.targets(account)
	if auth, ok := target.(authenticator); ok {
		if _, err := auth.Authenticate(ctx); err != nil {
			log.Error("pipeline.account.auth_failed", zap.Error(err))
			return nil, fmt.Errorf("authenticate: %w", err)
		}
	}

	results := make([]BatchResult, len(account.DocTypes))
	errs := make([]error, len(account.DocTypes))
	var g errgroup.Group
	for i, docType := range account.DocTypes {
		g.Go(func() error {
			results[i], errs[i] = r.driver.ProcessAccount(ctx, source, target, account, docType)
			return nil
		})
	}
	_ = g.Wait()
	return results, errors.Join(errs...)
}
