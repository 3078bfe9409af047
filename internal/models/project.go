package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Project is a campaign under a company. Supervisors and agents are
// attached through ProjectMembership rows.
type Project struct {
	ID          uuid.UUID        `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CompanyID   uuid.UUID        `gorm:"type:uuid;not null;index" json:"company_id"`
	Name        string           `gorm:"column:name;not null" json:"name"`
	Description string           `gorm:"column:description" json:"description"`
	Type        ProjectType      `gorm:"column:project_type;type:project_type;not null;default:'outbound'" json:"project_type"`
	Direction   ProjectDirection `gorm:"column:project_direction;type:project_direction;not null;default:'call'" json:"project_direction"`
	Campaign    CampaignKind     `gorm:"column:campaign_kind;type:campaign_kind;not null;default:'telesales'" json:"campaign_kind"`
	BaseModel

	// Associations
	Company     Company             `gorm:"foreignKey:CompanyID" json:"company,omitempty"`
	Memberships []ProjectMembership `gorm:"foreignKey:ProjectID" json:"memberships,omitempty"`
	Workbooks   []Workbook          `gorm:"foreignKey:ProjectID" json:"workbooks,omitempty"`
}

// TableName specifies the table name for the Project model
func (Project) TableName() string {
	return "projects"
}

// ProjectMembership attaches a supervisor or agent to a project
type ProjectMembership struct {
	ID        uuid.UUID   `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ProjectID uuid.UUID   `gorm:"type:uuid;not null;uniqueIndex:uq_project_member" json:"project_id"`
	UserID    int         `gorm:"not null;uniqueIndex:uq_project_member" json:"user_id"`
	Role      ProjectRole `gorm:"column:role;type:project_role;not null" json:"role"`
	CreatedAt time.Time   `gorm:"column:created_at" json:"created_at"`

	// Associations
	Project Project `gorm:"foreignKey:ProjectID" json:"project,omitempty"`
	User    User    `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// TableName specifies the table name for the ProjectMembership model
func (ProjectMembership) TableName() string {
	return "project_memberships"
}

// ProjectManager provides ORM methods for Project
type ProjectManager struct {
	db *gorm.DB
}

// NewProjectManager creates a new ProjectManager instance
func NewProjectManager(db *gorm.DB) *ProjectManager {
	return &ProjectManager{db: db}
}

// Create creates a new project
func (m *ProjectManager) Create(project *Project) error {
	return m.db.Create(project).Error
}

// Get retrieves a live project by ID
func (m *ProjectManager) Get(id uuid.UUID) (*Project, error) {
	var project Project
	err := m.db.First(&project, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &project, nil
}

// ForCompany retrieves all live projects under a company
func (m *ProjectManager) ForCompany(companyID uuid.UUID) ([]Project, error) {
	var projects []Project
	err := m.db.Where("company_id = ?", companyID).Find(&projects).Error
	return projects, err
}

// Update saves the project
func (m *ProjectManager) Update(project *Project) error {
	return m.db.Save(project).Error
}

// Delete soft deletes a project
func (m *ProjectManager) Delete(id uuid.UUID) error {
	return m.db.Delete(&Project{}, "id = ?", id).Error
}

// AddMember attaches a user to the project, updating the role if the
// membership already exists
func (p *Project) AddMember(db *gorm.DB, userID int, role ProjectRole) error {
	var existing ProjectMembership
	err := db.Where("project_id = ? AND user_id = ?", p.ID, userID).First(&existing).Error
	if err == nil {
		existing.Role = role
		return db.Save(&existing).Error
	}

	membership := &ProjectMembership{
		ProjectID: p.ID,
		UserID:    userID,
		Role:      role,
	}
	return db.Create(membership).Error
}

// RemoveMember detaches a user from the project
func (p *Project) RemoveMember(db *gorm.DB, userID int) error {
	return db.Where("project_id = ? AND user_id = ?", p.ID, userID).
		Delete(&ProjectMembership{}).Error
}

// HasSupervisor checks whether userID supervises this project
func (p *Project) HasSupervisor(db *gorm.DB, userID int) (bool, error) {
	var count int64
	err := db.Model(&ProjectMembership{}).
		Where("project_id = ? AND user_id = ? AND role = ?", p.ID, userID, ProjectRoleSupervisor).
		Count(&count).Error
	return count > 0, err
}

// GetMembers retrieves all members of the project with the given role
func (p *Project) GetMembers(db *gorm.DB, role ProjectRole) ([]User, error) {
	var users []User
	err := db.Joins("JOIN project_memberships ON project_memberships.user_id = users.id").
		Where("project_memberships.project_id = ? AND project_memberships.role = ?", p.ID, role).
		Find(&users).Error
	return users, err
}

// SupervisedProjectIDs returns the ids of every project the user supervises
func (m *ProjectManager) SupervisedProjectIDs(userID int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := m.db.Model(&ProjectMembership{}).
		Where("user_id = ? AND role = ?", userID, ProjectRoleSupervisor).
		Pluck("project_id", &ids).Error
	return ids, err
}
