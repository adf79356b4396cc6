package runlog

import "go.uber.org/fx"

var Module = fx.Module("pipeline.runlog",
	fx.Provide(Provide),
	fx.Provide(NewRecorder),
)
