package holded

import "go.uber.org/fx"

var Module = fx.Module("holded",
	fx.Provide(NewFactory),
)
