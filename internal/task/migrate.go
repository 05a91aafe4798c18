package task

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

type MigrationConfig struct {
	DBName     string
	MaxRetries int
	RetryDelay time.Duration
}

// RunMigrations brings the schema to the latest version.
func RunMigrations(sqlDB *sql.DB, cfg MigrationConfig, logger logrus.FieldLogger) error {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}

	if err := waitForDatabase(sqlDB, cfg.MaxRetries, cfg.RetryDelay, logger); err != nil {
		return fmt.Errorf("database not ready: %w", err)
	}

	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{
		DatabaseName:          cfg.DBName,
		MigrationsTable:       "schema_migrations",
		MultiStatementEnabled: true,
		MultiStatementMaxSize: 10 * 1 << 20, // 10 MB
	})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, cfg.DBName, driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("database schema is up to date")
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read migration version: %w", err)
	}
	logger.WithFields(logrus.Fields{"version": version, "dirty": dirty}).Info("database migrations applied")
	return nil
}

func waitForDatabase(db *sql.DB, maxRetries int, retryDelay time.Duration, logger logrus.FieldLogger) error {
	var err error
	for i := 0; i < maxRetries; i++ {
		if err = db.Ping(); err == nil {
			return nil
		}
		if i < maxRetries-1 {
			logger.WithFields(logrus.Fields{"attempt": i + 1, "max": maxRetries}).Warn("database not ready, retrying")
			time.Sleep(retryDelay)
		}
	}
	return err
}
