package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/joho/godotenv/autoload"

	"callgrid/internal/models"
)

// Service exposes the schema store and row store to the rest of the
// service. It is the only seam the gateway talks to for persistence.
type Service interface {
	// Health returns connection health and statistics.
	Health() map[string]string

	// Close terminates the database connections.
	Close() error

	// Models exposes the model managers for entity CRUD that needs no
	// store-level invariants (companies, projects, memberships).
	Models() *models.DB

	// Schema store
	GetSheet(sheetID uuid.UUID) (*models.Sheet, error)
	SheetColumns(sheetID uuid.UUID) ([]models.Column, error)
	CreateColumn(col *models.Column) error
	UpdateColumn(sheetID, columnID uuid.UUID, patch ColumnPatch) (*models.Column, error)
	DeleteColumn(sheetID, columnID uuid.UUID) error
	ReorderColumns(sheetID uuid.UUID, orderedIDs []uuid.UUID) error

	// Row store
	ListRows(sheetID uuid.UUID, page, limit, skip int) ([]models.Row, error)
	GetRow(sheetID uuid.UUID, rowNumber int) (*models.Row, error)
	CreateRow(sheetID uuid.UUID, data models.JSONB) (*models.Row, error)
	PatchRow(sheetID uuid.UUID, rowNumber int, partial models.JSONB) (*models.Row, error)
	DeleteRow(sheetID uuid.UUID, rowNumber int) error
	ImportRows(sheetID uuid.UUID, rows []models.JSONB) (int, error)
}

type service struct {
	gorm *models.DB
	db   *sql.DB
}

var dbInstance *service

// New connects using DB_STRING and returns the shared service
// instance.
func New() Service {
	if dbInstance != nil {
		return dbInstance
	}

	dsn := os.Getenv("DB_STRING")

	gormDB, err := models.OpenDB(dsn)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatalf("failed to open health connection: %v", err)
	}

	dbInstance = &service{gorm: gormDB, db: db}
	return dbInstance
}

// NewFromDB wraps an existing gorm connection. Used by tests.
func NewFromDB(gormDB *models.DB) Service {
	sqlDB, err := gormDB.DB.DB()
	if err != nil {
		log.Fatalf("failed to get sql.DB from gorm: %v", err)
	}
	return &service{gorm: gormDB, db: sqlDB}
}

func (s *service) Models() *models.DB {
	return s.gorm
}

// Health checks the connection and reports pool statistics.
func (s *service) Health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	stats := make(map[string]string)

	if err := s.db.PingContext(ctx); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		return stats
	}

	stats["status"] = "up"
	stats["message"] = "It's healthy"

	dbStats := s.db.Stats()
	stats["open_connections"] = strconv.Itoa(dbStats.OpenConnections)
	stats["in_use"] = strconv.Itoa(dbStats.InUse)
	stats["idle"] = strconv.Itoa(dbStats.Idle)
	stats["wait_count"] = strconv.FormatInt(dbStats.WaitCount, 10)
	stats["wait_duration"] = dbStats.WaitDuration.String()

	if dbStats.OpenConnections > 40 {
		stats["message"] = "The database is experiencing heavy load."
	}
	if dbStats.WaitCount > 1000 {
		stats["message"] = "The database has a high number of wait events, indicating potential bottlenecks."
	}

	return stats
}

func (s *service) Close() error {
	dbInstance = nil

	// The health connection is distinct from the gorm pool unless the
	// service was built with NewFromDB.
	if sqlDB, err := s.gorm.DB.DB(); err == nil && sqlDB == s.db {
		return s.db.Close()
	}

	if err := s.gorm.Close(); err != nil {
		return err
	}
	return s.db.Close()
}
