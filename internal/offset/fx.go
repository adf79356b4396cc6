package offset

import "go.uber.org/fx"

var Module = fx.Module("offset",
	fx.Provide(NewGormStore),
)
