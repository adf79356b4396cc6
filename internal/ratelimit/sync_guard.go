package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gosimple/slug"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/ledgerbridge/internal/config"
	"go.uber.org/zap"
)

const (
	keySyncAccountLock = "sync:lock:account:%s"
	keyExportTrigger   = "sync:export:account:%s"

	defaultLockTTL     = 15 * time.Minute
	defaultExportRate  = 0.2
	defaultExportBurst = 2
)

// SyncGuard serializes runs of the same account across processes and throttles
// dashboard-triggered exports. Without Redis, locking is a no-op and exports
// are throttled per process.
type SyncGuard struct {
	locker  *Locker
	limiter *Limiter
	local   *localLimiter
	log     *zap.Logger

	lockTTL     time.Duration
	exportRate  float64
	exportBurst int

	mu     sync.Mutex
	leases map[string]context.CancelFunc
}

func NewSyncGuard(cfg config.Config, client *redis.Client, log *zap.Logger) *SyncGuard {
	if log == nil {
		log = zap.NewNop()
	}
	g := &SyncGuard{
		locker:      NewLocker(client),
		limiter:     NewLimiter(client),
		log:         log.Named("ratelimit.guard"),
		lockTTL:     cfg.Sync.LockTTL,
		exportRate:  cfg.Dashboard.ExportRate,
		exportBurst: cfg.Dashboard.ExportBurst,
		leases:      map[string]context.CancelFunc{},
	}
	if g.lockTTL <= 0 {
		g.lockTTL = defaultLockTTL
	}
	if g.exportRate <= 0 {
		g.exportRate = defaultExportRate
	}
	if g.exportBurst <= 0 {
		g.exportBurst = defaultExportBurst
	}
	if client == nil {
		g.local = newLocalLimiter(g.exportRate, g.exportBurst)
	}
	return g
}

// Enabled reports whether the guard coordinates through Redis.
func (g *SyncGuard) Enabled() bool {
	return g != nil && g.locker != nil
}

// TryLockAccount takes the run lease of an account and keeps it alive until
// ReleaseAccount. It returns an empty token and true when Redis is absent.
func (g *SyncGuard) TryLockAccount(ctx context.Context, account string) (string, bool, error) {
	if !g.Enabled() {
		return "", true, nil
	}
	key := accountLockKey(account)
	token, ok, err := g.locker.Acquire(ctx, key, g.lockTTL)
	if err != nil || !ok {
		return "", ok, err
	}

	renewCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	g.mu.Lock()
	g.leases[token] = cancel
	g.mu.Unlock()
	go g.keepAlive(renewCtx, key, token)

	return token, true, nil
}

func (g *SyncGuard) keepAlive(ctx context.Context, key, token string) {
	ticker := time.NewTicker(g.lockTTL / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			held, err := g.locker.Extend(ctx, key, token, g.lockTTL)
			if err != nil {
				g.log.Warn("ratelimit.lease.extend_failed", zap.String("key", key), zap.Error(err))
				continue
			}
			if !held {
				g.log.Warn("ratelimit.lease.lost", zap.String("key", key))
				return
			}
		}
	}
}

func (g *SyncGuard) ReleaseAccount(ctx context.Context, account, token string) error {
	if !g.Enabled() || token == "" {
		return nil
	}
	g.mu.Lock()
	if cancel, ok := g.leases[token]; ok {
		cancel()
		delete(g.leases, token)
	}
	g.mu.Unlock()
	return g.locker.Release(ctx, accountLockKey(account), token)
}

// AllowExport admits one dashboard export of account.
func (g *SyncGuard) AllowExport(ctx context.Context, account string) (*RateLimitResult, error) {
	if g == nil {
		return &RateLimitResult{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyExportTrigger, accountSlug(account))
	if g.limiter == nil {
		return g.local.Allow(key), nil
	}
	return g.limiter.Allow(ctx, key, g.exportRate, g.exportBurst)
}

func accountLockKey(account string) string {
	return fmt.Sprintf(keySyncAccountLock, accountSlug(account))
}

func accountSlug(account string) string {
	s := slug.Make(strings.TrimSpace(account))
	if s == "" {
		return "unknown"
	}
	return s
}
