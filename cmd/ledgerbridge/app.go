package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ledgerbridge/internal/account"
	accountdomain "github.com/smallbiznis/ledgerbridge/internal/account/domain"
	"github.com/smallbiznis/ledgerbridge/internal/cegid"
	"github.com/smallbiznis/ledgerbridge/internal/clock"
	"github.com/smallbiznis/ledgerbridge/internal/config"
	"github.com/smallbiznis/ledgerbridge/internal/holded"
	"github.com/smallbiznis/ledgerbridge/internal/migration"
	"github.com/smallbiznis/ledgerbridge/internal/observability"
	"github.com/smallbiznis/ledgerbridge/internal/offset"
	"github.com/smallbiznis/ledgerbridge/internal/pipeline"
	"github.com/smallbiznis/ledgerbridge/internal/providers/pdf"
	"github.com/smallbiznis/ledgerbridge/internal/ratelimit"
	"github.com/smallbiznis/ledgerbridge/internal/transform"
	"github.com/smallbiznis/ledgerbridge/pkg/db"
	"go.uber.org/fx"
)

const stopTimeout = 15 * time.Second

var errAccountRequired = errors.New("account_required")

// startApp builds the same dependency graph as the worker, without the
// scheduler, and populates targets from it.
func startApp(ctx context.Context, targets ...any) (func(), error) {
	app := fx.New(
		fx.NopLogger,
		config.Module,
		observability.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		migration.Module,
		clock.Module,

		offset.Module,
		account.Module,
		transform.Module,
		holded.Module,
		cegid.Module,
		pdf.Module,
		ratelimit.Module,
		pipeline.Module,

		fx.Populate(targets...),
	)
	if err := app.Start(ctx); err != nil {
		return nil, err
	}
	return func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		_ = app.Stop(stopCtx)
	}, nil
}

func registerSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(3)
}

// resolveAccount accepts an account id or an exact company name.
func resolveAccount(ctx context.Context, accounts accountdomain.Service, ref string) (accountdomain.Account, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return accountdomain.Account{}, errAccountRequired
	}
	account, err := accounts.Get(ctx, ref)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, accountdomain.ErrNotFound) && !errors.Is(err, accountdomain.ErrInvalidID) {
		return accountdomain.Account{}, err
	}

	all, listErr := accounts.List(ctx)
	if listErr != nil {
		return accountdomain.Account{}, listErr
	}
	for _, candidate := range all {
		if strings.EqualFold(candidate.Name, ref) {
			return candidate, nil
		}
	}
	return accountdomain.Account{}, fmt.Errorf("account %q: %w", ref, accountdomain.ErrNotFound)
}
