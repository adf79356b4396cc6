package account

import (
	"github.com/smallbiznis/ledgerbridge/internal/account/repository"
	"github.com/smallbiznis/ledgerbridge/internal/account/service"
	"go.uber.org/fx"
)

var Module = fx.Module("account.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Invoke(registerSeed),
)
