package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OperationLog is the coarse audit record appended after every
// successful mutation through the gateway. Audit surfaces consume it
// elsewhere; this service only writes and lists it.
type OperationLog struct {
	ID       uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ActorID  int       `gorm:"column:actor_id;not null;index" json:"actor_id"`
	Op       string    `gorm:"column:op;not null" json:"op"`
	SheetID  uuid.UUID `gorm:"type:uuid;not null;index" json:"sheet_id"`
	DataKey  string    `gorm:"column:data_key" json:"data_key,omitempty"`
	OldValue JSONB     `gorm:"column:old_value;type:jsonb" json:"old_value,omitempty"`
	NewValue JSONB     `gorm:"column:new_value;type:jsonb" json:"new_value,omitempty"`
	FileHash string    `gorm:"column:file_hash" json:"file_hash,omitempty"`
	At       time.Time `gorm:"column:at;not null" json:"at"`
}

// TableName specifies the table name for the OperationLog model
func (OperationLog) TableName() string {
	return "operation_logs"
}

// BeforeCreate stamps the entry time if not set
func (l *OperationLog) BeforeCreate(tx *gorm.DB) error {
	if l.At.IsZero() {
		l.At = time.Now()
	}
	return nil
}

// OperationLogManager provides ORM methods for OperationLog
type OperationLogManager struct {
	db *gorm.DB
}

// NewOperationLogManager creates a new OperationLogManager instance
func NewOperationLogManager(db *gorm.DB) *OperationLogManager {
	return &OperationLogManager{db: db}
}

// Append writes a log entry
func (m *OperationLogManager) Append(entry *OperationLog) error {
	return m.db.Create(entry).Error
}

// ForSheet retrieves the newest entries for a sheet
func (m *OperationLogManager) ForSheet(sheetID uuid.UUID, limit int) ([]OperationLog, error) {
	if limit <= 0 {
		limit = 100
	}
	var entries []OperationLog
	err := m.db.Where("sheet_id = ?", sheetID).
		Order("at DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}
