package pipeline

import (
	"github.com/smallbiznis/ledgerbridge/internal/pipeline/runlog"
	"go.uber.org/fx"
)

var Module = fx.Module("pipeline",
	runlog.Module,
	fx.Provide(NewSourceFactory),
	fx.Provide(NewTargetFactory),
	fx.Provide(NewDriver),
	fx.Provide(NewRunner),
)
