package migration

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, log *zap.Logger) error {
		log.Info("store.migrate", zap.String("dialect", conn.Dialector.Name()))
		return Apply(conn)
	}),
)
