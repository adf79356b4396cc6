package migration

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	accountdomain "github.com/smallbiznis/ledgerbridge/internal/account/domain"
	"github.com/smallbiznis/ledgerbridge/internal/offset"
	"github.com/smallbiznis/ledgerbridge/internal/pipeline/runlog"
	"gorm.io/gorm"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

var errNoConnection = errors.New("migration: database connection is required")

// Models lists the tables managed by AutoMigrate on non-Postgres databases.
func Models() []any {
	return []any{
		&offset.CursorRow{},
		&offset.CounterRow{},
		&accountdomain.Account{},
		&runlog.DocumentRun{},
	}
}

// Apply brings the schema up to date. Postgres runs the versioned SQL files;
// sqlite and mysql go through gorm AutoMigrate.
func Apply(conn *gorm.DB) error {
	if conn == nil {
		return errNoConnection
	}
	if conn.Dialector.Name() != "postgres" {
		return AutoMigrate(conn)
	}
	return RunMigrations(conn)
}

// RunMigrations applies the embedded SQL files. The migrator is not closed
// because that would close the shared pool.
func RunMigrations(conn *gorm.DB) error {
	if conn == nil {
		return errNoConnection
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	files, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("migration: open embedded files: %w", err)
	}
	source, err := iofs.New(files, ".")
	if err != nil {
		return fmt.Errorf("migration: source: %w", err)
	}
	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: "ledgerbridge_schema_migrations"})
	if err != nil {
		return fmt.Errorf("migration: driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migration: init: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration: up: %w", err)
	}
	return nil
}

// AutoMigrate creates the schema through gorm.
func AutoMigrate(conn *gorm.DB) error {
	if conn == nil {
		return errNoConnection
	}
	if err := conn.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("migration: auto migrate: %w", err)
	}
	return nil
}
