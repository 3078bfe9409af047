package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AgentRowPermission grants an agent view/edit scope over an inclusive
// row number range of one sheet. Multiple ranges per agent union;
// ranges only grant, never deny.
type AgentRowPermission struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SheetID   uuid.UUID `gorm:"type:uuid;not null;index" json:"sheet_id"`
	AgentID   int       `gorm:"not null;index" json:"agent_id"`
	StartRow  int       `gorm:"column:start_row;not null" json:"start_row"`
	EndRow    int       `gorm:"column:end_row;not null" json:"end_row"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

// TableName specifies the table name for the AgentRowPermission model
func (AgentRowPermission) TableName() string {
	return "agent_row_permissions"
}

// Covers reports whether rowNumber falls inside the range.
func (p AgentRowPermission) Covers(rowNumber int) bool {
	return rowNumber >= p.StartRow && rowNumber <= p.EndRow
}

// PermissionManager provides ORM methods for AgentRowPermission
type PermissionManager struct {
	db *gorm.DB
}

// NewPermissionManager creates a new PermissionManager instance
func NewPermissionManager(db *gorm.DB) *PermissionManager {
	return &PermissionManager{db: db}
}

// Create creates a new permission range
func (m *PermissionManager) Create(perm *AgentRowPermission) error {
	return m.db.Create(perm).Error
}

// ForSheet retrieves all permission ranges of a sheet
func (m *PermissionManager) ForSheet(sheetID uuid.UUID) ([]AgentRowPermission, error) {
	var perms []AgentRowPermission
	err := m.db.Where("sheet_id = ?", sheetID).
		Order("agent_id ASC, start_row ASC").
		Find(&perms).Error
	return perms, err
}

// ForAgent retrieves the agent's ranges within a sheet
func (m *PermissionManager) ForAgent(sheetID uuid.UUID, agentID int) ([]AgentRowPermission, error) {
	var perms []AgentRowPermission
	err := m.db.Where("sheet_id = ? AND agent_id = ?", sheetID, agentID).
		Order("start_row ASC").
		Find(&perms).Error
	return perms, err
}

// ReplaceForAgent swaps the agent's ranges within a sheet for the
// supplied set in one transaction
func (m *PermissionManager) ReplaceForAgent(sheetID uuid.UUID, agentID int, ranges []AgentRowPermission) error {
	return m.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("sheet_id = ? AND agent_id = ?", sheetID, agentID).
			Delete(&AgentRowPermission{}).Error; err != nil {
			return err
		}
		for i := range ranges {
			ranges[i].ID = uuid.Nil
			ranges[i].SheetID = sheetID
			ranges[i].AgentID = agentID
			if err := tx.Create(&ranges[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete removes a permission range
func (m *PermissionManager) Delete(id uuid.UUID) error {
	return m.db.Delete(&AgentRowPermission{}, "id = ?", id).Error
}
