package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Sheet is a tabular dataset with its own column schema and rows.
// ProjectID is denormalized from the workbook so permission lookups
// never need a join through workbooks.
type Sheet struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	WorkbookID  uuid.UUID `gorm:"type:uuid;not null;index" json:"workbook_id"`
	ProjectID   uuid.UUID `gorm:"type:uuid;not null;index" json:"project_id"`
	Name        string    `gorm:"column:name;not null" json:"name"`
	Description string    `gorm:"column:description" json:"description"`
	BaseModel

	// Associations
	Workbook    Workbook             `gorm:"foreignKey:WorkbookID" json:"workbook,omitempty"`
	Columns     []Column             `gorm:"foreignKey:SheetID" json:"columns,omitempty"`
	Permissions []AgentRowPermission `gorm:"foreignKey:SheetID" json:"permissions,omitempty"`
}

// TableName specifies the table name for the Sheet model
func (Sheet) TableName() string {
	return "sheets"
}

// BeforeCreate fills ProjectID from the owning workbook when the
// caller only supplied WorkbookID.
func (s *Sheet) BeforeCreate(tx *gorm.DB) error {
	if s.ProjectID == uuid.Nil && s.WorkbookID != uuid.Nil {
		var workbook Workbook
		if err := tx.First(&workbook, "id = ?", s.WorkbookID).Error; err != nil {
			return err
		}
		s.ProjectID = workbook.ProjectID
	}
	return nil
}

// SheetManager provides ORM methods for Sheet
type SheetManager struct {
	db *gorm.DB
}

// NewSheetManager creates a new SheetManager instance
func NewSheetManager(db *gorm.DB) *SheetManager {
	return &SheetManager{db: db}
}

// Create creates a new sheet
func (m *SheetManager) Create(sheet *Sheet) error {
	return m.db.Create(sheet).Error
}

// liveScope restricts sheet lookups to sheets whose workbook and
// project are both live. Soft deleting a parent hides the whole
// subtree.
func (m *SheetManager) liveScope() *gorm.DB {
	return m.db.Model(&Sheet{}).Select("sheets.*").
		Joins("JOIN workbooks ON workbooks.id = sheets.workbook_id AND workbooks.deleted_at IS NULL").
		Joins("JOIN projects ON projects.id = sheets.project_id AND projects.deleted_at IS NULL")
}

// Get retrieves a live sheet by ID
func (m *SheetManager) Get(id uuid.UUID) (*Sheet, error) {
	var sheet Sheet
	err := m.liveScope().First(&sheet, "sheets.id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &sheet, nil
}

// GetWithColumns retrieves a sheet together with its live columns
// ordered by display rank, ties broken by insertion time.
func (m *SheetManager) GetWithColumns(id uuid.UUID) (*Sheet, error) {
	var sheet Sheet
	err := m.liveScope().Preload("Columns", func(db *gorm.DB) *gorm.DB {
		return db.Order("display_order ASC, created_at ASC")
	}).First(&sheet, "sheets.id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &sheet, nil
}

// ForWorkbook retrieves all live sheets under a workbook
func (m *SheetManager) ForWorkbook(workbookID uuid.UUID) ([]Sheet, error) {
	var sheets []Sheet
	err := m.db.Where("workbook_id = ?", workbookID).Find(&sheets).Error
	return sheets, err
}

// Update saves the sheet
func (m *SheetManager) Update(sheet *Sheet) error {
	return m.db.Save(sheet).Error
}

// Delete soft deletes a sheet
func (m *SheetManager) Delete(id uuid.UUID) error {
	return m.db.Delete(&Sheet{}, "id = ?", id).Error
}
