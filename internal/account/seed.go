package account

import (
	"context"
	"strings"
	"time"

	"github.com/smallbiznis/ledgerbridge/internal/account/domain"
	"github.com/smallbiznis/ledgerbridge/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const seedTimeout = 30 * time.Second

// SeedRequests converts the entries of an accounts file into create requests.
func SeedRequests(file config.AccountsFile) []domain.CreateAccountRequest {
	reqs := make([]domain.CreateAccountRequest, 0, len(file.Accounts))
	for _, seed := range file.Accounts {
		mode := domain.Mode(strings.TrimSpace(seed.Mode))
		if mode == "" {
			mode = domain.ModeLegacy
		}
		reqs = append(reqs, domain.CreateAccountRequest{
			Name:             seed.Name,
			HoldedAPIKey:     seed.HoldedAPIKey,
			CegidCompanyCode: seed.CegidCompanyCode,
			Mode:             mode,
			DocTypes:         seed.DocTypes,
			DocumentCounter:  seed.DocumentCounter,
		})
	}
	return reqs
}

// registerSeed imports the accounts file at startup and again after every
// reload of the file.
func registerSeed(lc fx.Lifecycle, holder *config.AccountsFileHolder, svc domain.Service, log *zap.Logger) {
	log = log.Named("account.seed")
	apply := func(file config.AccountsFile) {
		if len(file.Accounts) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), seedTimeout)
		defer cancel()
		created, err := svc.Import(ctx, SeedRequests(file))
		if err != nil {
			log.Error("account.seed.failed", zap.Error(err))
			return
		}
		log.Info("account.seed.applied",
			zap.Int("accounts", len(file.Accounts)),
			zap.Int("created", created),
		)
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			apply(holder.Get())
			holder.OnChange(apply)
			return nil
		},
	})
}
