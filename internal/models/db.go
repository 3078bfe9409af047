package models

import (
	"fmt"
	"os"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB holds the database connection and all model managers
type DB struct {
	*gorm.DB
	Users       *UserManager
	Companies   *CompanyManager
	Projects    *ProjectManager
	Workbooks   *WorkbookManager
	Sheets      *SheetManager
	Columns     *ColumnManager
	Rows        *RowManager
	Permissions *PermissionManager
	OpLog       *OperationLogManager
}

// NewDB creates a new database connection from DB_STRING and
// initializes all managers
func NewDB() (*DB, error) {
	dsn := os.Getenv("DB_STRING")
	if dsn == "" {
		return nil, fmt.Errorf("DB_STRING environment variable not set")
	}
	return OpenDB(dsn)
}

// OpenDB creates a new database connection from an explicit DSN
func OpenDB(dsn string) (*DB, error) {
	config := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	gormDB, err := gorm.Open(postgres.Open(dsn), config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return wrap(gormDB), nil
}

func wrap(gormDB *gorm.DB) *DB {
	return &DB{
		DB:          gormDB,
		Users:       NewUserManager(gormDB),
		Companies:   NewCompanyManager(gormDB),
		Projects:    NewProjectManager(gormDB),
		Workbooks:   NewWorkbookManager(gormDB),
		Sheets:      NewSheetManager(gormDB),
		Columns:     NewColumnManager(gormDB),
		Rows:        NewRowManager(gormDB),
		Permissions: NewPermissionManager(gormDB),
		OpLog:       NewOperationLogManager(gormDB),
	}
}

// AutoMigrate runs GORM auto-migration for all models
func (db *DB) AutoMigrate() error {
	return db.DB.AutoMigrate(
		&User{},
		&Company{},
		&Project{},
		&ProjectMembership{},
		&Workbook{},
		&WorkbookAssignment{},
		&Sheet{},
		&Column{},
		&Row{},
		&AgentRowPermission{},
		&OperationLog{},
	)
}

// Transaction runs a function within a database transaction
func (db *DB) Transaction(fn func(*DB) error) error {
	return db.DB.Transaction(func(tx *gorm.DB) error {
		return fn(wrap(tx))
	})
}

// Close closes the database connection
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Exists checks if a record exists
func Exists[T any](db *gorm.DB, query string, args ...interface{}) (bool, error) {
	var count int64
	err := db.Model(new(T)).Where(query, args...).Count(&count).Error
	return count > 0, err
}

// BulkCreate creates multiple records in batches
func BulkCreate[T any](db *gorm.DB, objects []T) error {
	if len(objects) == 0 {
		return nil
	}
	return db.CreateInBatches(objects, 100).Error
}
