package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Company is the tenant root. Everything else hangs off a company
// through its projects.
type Company struct {
	ID     uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name   string    `gorm:"column:name;not null" json:"name"`
	Domain string    `gorm:"column:domain;uniqueIndex;not null" json:"domain"`
	BaseModel

	// Associations
	Projects []Project `gorm:"foreignKey:CompanyID" json:"projects,omitempty"`
}

// TableName specifies the table name for the Company model
func (Company) TableName() string {
	return "companies"
}

// CompanyManager provides ORM methods for Company
type CompanyManager struct {
	db *gorm.DB
}

// NewCompanyManager creates a new CompanyManager instance
func NewCompanyManager(db *gorm.DB) *CompanyManager {
	return &CompanyManager{db: db}
}

// Create creates a new company
func (m *CompanyManager) Create(company *Company) error {
	return m.db.Create(company).Error
}

// Get retrieves a company by ID
func (m *CompanyManager) Get(id uuid.UUID) (*Company, error) {
	var company Company
	err := m.db.First(&company, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &company, nil
}

// All retrieves all companies
func (m *CompanyManager) All() ([]Company, error) {
	var companies []Company
	err := m.db.Find(&companies).Error
	return companies, err
}

// Update saves the company
func (m *CompanyManager) Update(company *Company) error {
	return m.db.Save(company).Error
}

// Delete soft deletes a company
func (m *CompanyManager) Delete(id uuid.UUID) error {
	return m.db.Delete(&Company{}, "id = ?", id).Error
}
