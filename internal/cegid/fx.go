package cegid

import "go.uber.org/fx"

var Module = fx.Module("cegid",
	fx.Provide(NewFactory),
)
