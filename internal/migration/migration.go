package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/smallbiznis/givingdesk/internal/config"
	"github.com/smallbiznis/givingdesk/internal/donation/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Run prepares the donation tables for the configured driver. Postgres uses
// the versioned SQL files; mysql and sqlite are created from the GORM models.
func Run(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
	if conn == nil {
		return nil
	}
	if cfg.Store.Driver != config.StoreDriverPostgres {
		log.Info("auto-migrating donation tables", zap.String("driver", cfg.Store.Driver))
		return conn.AutoMigrate(repository.Models()...)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return RunMigrations(sqlDB)
}

func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Closing the migrator would close the shared *sql.DB.

	return nil
}
