package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Workbook groups sheets under a project ("Excel" in the dashboard UI).
// Assigning an agent to a workbook is the coarse access grant; sheet
// level assignments and row ranges refine it.
type Workbook struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ProjectID   uuid.UUID `gorm:"type:uuid;not null;index" json:"project_id"`
	Name        string    `gorm:"column:name;not null" json:"name"`
	Description string    `gorm:"column:description" json:"description"`
	BaseModel

	// Associations
	Project     Project              `gorm:"foreignKey:ProjectID" json:"project,omitempty"`
	Sheets      []Sheet              `gorm:"foreignKey:WorkbookID" json:"sheets,omitempty"`
	Assignments []WorkbookAssignment `gorm:"foreignKey:WorkbookID" json:"assignments,omitempty"`
}

// TableName specifies the table name for the Workbook model
func (Workbook) TableName() string {
	return "workbooks"
}

// WorkbookAssignment grants an agent access to a workbook
type WorkbookAssignment struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	WorkbookID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_workbook_agent" json:"workbook_id"`
	AgentID    int       `gorm:"not null;uniqueIndex:uq_workbook_agent" json:"agent_id"`
	CreatedAt  time.Time `gorm:"column:created_at" json:"created_at"`
}

// TableName specifies the table name for the WorkbookAssignment model
func (WorkbookAssignment) TableName() string {
	return "workbook_assignments"
}

// WorkbookManager provides ORM methods for Workbook
type WorkbookManager struct {
	db *gorm.DB
}

// NewWorkbookManager creates a new WorkbookManager instance
func NewWorkbookManager(db *gorm.DB) *WorkbookManager {
	return &WorkbookManager{db: db}
}

// Create creates a new workbook
func (m *WorkbookManager) Create(workbook *Workbook) error {
	return m.db.Create(workbook).Error
}

// Get retrieves a live workbook by ID. A workbook under a soft
// deleted project is not addressable.
func (m *WorkbookManager) Get(id uuid.UUID) (*Workbook, error) {
	var workbook Workbook
	err := m.db.Select("workbooks.*").
		Joins("JOIN projects ON projects.id = workbooks.project_id AND projects.deleted_at IS NULL").
		First(&workbook, "workbooks.id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &workbook, nil
}

// ForProject retrieves all live workbooks under a project
func (m *WorkbookManager) ForProject(projectID uuid.UUID) ([]Workbook, error) {
	var workbooks []Workbook
	err := m.db.Where("project_id = ?", projectID).Find(&workbooks).Error
	return workbooks, err
}

// Update saves the workbook
func (m *WorkbookManager) Update(workbook *Workbook) error {
	return m.db.Save(workbook).Error
}

// Delete soft deletes a workbook
func (m *WorkbookManager) Delete(id uuid.UUID) error {
	return m.db.Delete(&Workbook{}, "id = ?", id).Error
}

// AssignAgent grants an agent access to the workbook
func (w *Workbook) AssignAgent(db *gorm.DB, agentID int) error {
	var count int64
	db.Model(&WorkbookAssignment{}).
		Where("workbook_id = ? AND agent_id = ?", w.ID, agentID).
		Count(&count)
	if count > 0 {
		return nil
	}
	return db.Create(&WorkbookAssignment{WorkbookID: w.ID, AgentID: agentID}).Error
}

// UnassignAgent revokes an agent's access to the workbook
func (w *Workbook) UnassignAgent(db *gorm.DB, agentID int) error {
	return db.Where("workbook_id = ? AND agent_id = ?", w.ID, agentID).
		Delete(&WorkbookAssignment{}).Error
}

// HasAgent checks whether the agent is assigned to the workbook
func (w *Workbook) HasAgent(db *gorm.DB, agentID int) (bool, error) {
	var count int64
	err := db.Model(&WorkbookAssignment{}).
		Where("workbook_id = ? AND agent_id = ?", w.ID, agentID).
		Count(&count).Error
	return count > 0, err
}
