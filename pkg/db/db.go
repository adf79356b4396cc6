package db

import (
	"database/sql"
	"fmt"

	obslogger "github.com/smallbiznis/ledgerbridge/internal/observability/logger"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormprometheus "gorm.io/plugin/prometheus"
)

var Module = fx.Module("db",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
)

// New opens the database with tracing and query metrics installed.
func New(lc fx.Lifecycle, cfg Config, log *zap.Logger) (*gorm.DB, error) {
	dialector, err := cfg.Dialector()
	if err != nil {
		return nil, err
	}
	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:         obslogger.NewGormLogger(log, obslogger.DefaultGormLoggerConfig()),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Type, err)
	}

	plugins := []gorm.Plugin{
		otelgorm.NewPlugin(otelgorm.WithDBName(cfg.Name)),
		gormprometheus.New(gormprometheus.Config{DBName: cfg.Name, RefreshInterval: 15}),
	}
	for _, plugin := range plugins {
		if err := conn.Use(plugin); err != nil {
			return nil, fmt.Errorf("install gorm plugin %s: %w", plugin.Name(), err)
		}
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	applyPool(sqlDB, cfg)
	if lc != nil {
		lc.Append(fx.StopHook(sqlDB.Close))
	}

	log.Info("store.connected", zap.String("type", cfg.Type), zap.String("name", cfg.Name))
	return conn, nil
}

func applyPool(sqlDB *sql.DB, cfg Config) {
	if cfg.MaxIdleConn > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConn)
	}
	if cfg.MaxOpenConn > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConn)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
}
