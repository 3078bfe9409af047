package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Row is one record of a sheet. RowNumber is 1-based and unique within
// the sheet; numbers are never reused after a delete so that agent row
// ranges stay stable. Data maps column data keys to cell values.
type Row struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SheetID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_sheet_row_number" json:"sheet_id"`
	RowNumber int       `gorm:"column:row_number;not null;uniqueIndex:uq_sheet_row_number" json:"row_number"`
	Data      JSONB     `gorm:"column:data;type:jsonb;default:'{}'" json:"data"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

// TableName specifies the table name for the Row model
func (Row) TableName() string {
	return "sheet_rows"
}

// RowManager provides ORM methods for Row
type RowManager struct {
	db *gorm.DB
}

// NewRowManager creates a new RowManager instance
func NewRowManager(db *gorm.DB) *RowManager {
	return &RowManager{db: db}
}

// Create creates a new row
func (m *RowManager) Create(row *Row) error {
	return m.db.Create(row).Error
}

// Get retrieves a row by sheet and row number
func (m *RowManager) Get(sheetID uuid.UUID, rowNumber int) (*Row, error) {
	var row Row
	err := m.db.First(&row, "sheet_id = ? AND row_number = ?", sheetID, rowNumber).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Page retrieves rows of a sheet ordered by row number. skip is an
// extra offset applied beneath page*limit; both exist in the observed
// contract, so the effective offset is (page-1)*limit + skip.
func (m *RowManager) Page(sheetID uuid.UUID, page, limit, skip int) ([]Row, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 50
	}
	if skip < 0 {
		skip = 0
	}

	var rows []Row
	err := m.db.Where("sheet_id = ?", sheetID).
		Order("row_number ASC").
		Offset((page-1)*limit + skip).
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// MaxRowNumber returns the highest row number in the sheet, 0 when empty
func (m *RowManager) MaxRowNumber(sheetID uuid.UUID) (int, error) {
	var max int
	err := m.db.Model(&Row{}).
		Where("sheet_id = ?", sheetID).
		Select("COALESCE(MAX(row_number), 0)").
		Scan(&max).Error
	return max, err
}

// Count returns the number of rows in the sheet
func (m *RowManager) Count(sheetID uuid.UUID) (int64, error) {
	var count int64
	err := m.db.Model(&Row{}).Where("sheet_id = ?", sheetID).Count(&count).Error
	return count, err
}

// Update saves the row
func (m *RowManager) Update(row *Row) error {
	return m.db.Save(row).Error
}

// Delete hard deletes a row. Remaining rows keep their numbers.
func (m *RowManager) Delete(sheetID uuid.UUID, rowNumber int) error {
	return m.db.Unscoped().
		Where("sheet_id = ? AND row_number = ?", sheetID, rowNumber).
		Delete(&Row{}).Error
}

// ValueInUse checks whether any row of the sheet stores the given
// value under the data key. Used for phone pool integrity.
func (m *RowManager) ValueInUse(sheetID uuid.UUID, dataKey, value string) (bool, error) {
	var count int64
	err := m.db.Model(&Row{}).
		Where("sheet_id = ? AND data->>? = ?", sheetID, dataKey, value).
		Count(&count).Error
	return count > 0, err
}

// AnyValueForKey checks whether any row of the sheet has a value under
// the data key at all.
func (m *RowManager) AnyValueForKey(sheetID uuid.UUID, dataKey string) (bool, error) {
	var count int64
	// jsonb_exists instead of the ? operator, which collides with
	// placeholder syntax.
	err := m.db.Model(&Row{}).
		Where("sheet_id = ? AND jsonb_exists(data, ?)", sheetID, dataKey).
		Count(&count).Error
	return count > 0, err
}
