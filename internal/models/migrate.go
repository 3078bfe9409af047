package models

import (
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"gorm.io/gorm"
)

// MigrateAdapter drives the SQL migrations in migrations/ over the
// gorm connection
type MigrateAdapter struct {
	db *gorm.DB
}

// NewMigrateAdapter creates a new migration adapter
func NewMigrateAdapter(db *gorm.DB) *MigrateAdapter {
	return &MigrateAdapter{db: db}
}

// RunMigrations applies all pending migrations
func (m *MigrateAdapter) RunMigrations() error {
	return m.RunMigrationsFrom("file://migrations")
}

// RunMigrationsFrom applies all pending migrations from the given
// source URL
func (m *MigrateAdapter) RunMigrationsFrom(sourceURL string) error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("could not get sql.DB from gorm: %w", err)
	}

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	migration, err := migrate.NewWithDatabaseInstance(sourceURL, "postgres", driver)
	if err != nil {
		return fmt.Errorf("could not create migration instance: %w", err)
	}

	if err := migration.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

// MigrationVersion reports the current migration version
func (m *MigrateAdapter) MigrationVersion() (uint, bool, error) {
	sqlDB, err := m.db.DB()
	if err != nil {
		return 0, false, err
	}

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		return 0, false, err
	}

	migration, err := migrate.NewWithDatabaseInstance("file://migrations", "postgres", driver)
	if err != nil {
		return 0, false, err
	}

	version, dirty, err := migration.Version()
	if err == migrate.ErrNilVersion {
		return 0, false, nil
	}
	return version, dirty, err
}
