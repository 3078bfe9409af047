package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Custom types to match PostgreSQL enums
type UserRole string
type ProjectRole string
type ProjectType string
type ProjectDirection string
type CampaignKind string
type ColumnType string

const (
	// Global user roles
	RoleAdmin      UserRole = "admin"
	RoleSupervisor UserRole = "supervisor"
	RoleAgent      UserRole = "agent"
	RolePartner    UserRole = "partner"

	// Project membership roles
	ProjectRoleSupervisor ProjectRole = "supervisor"
	ProjectRoleAgent      ProjectRole = "agent"

	// Project types
	ProjectOutbound ProjectType = "outbound"
	ProjectInbound  ProjectType = "inbound"

	// Project directions
	DirectionCall   ProjectDirection = "call"
	DirectionSocial ProjectDirection = "social"

	// Campaign kinds
	CampaignSurvey        CampaignKind = "survey"
	CampaignTelesales     CampaignKind = "telesales"
	CampaignTelemarketing CampaignKind = "telemarketing"

	// Column types
	ColumnText   ColumnType = "text"
	ColumnNumber ColumnType = "number"
	ColumnDate   ColumnType = "date"
	ColumnSelect ColumnType = "select"
	ColumnPhone  ColumnType = "phone"
)

// BaseModel contains common fields for all models
type BaseModel struct {
	CreatedAt time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index;column:deleted_at" json:"deleted_at,omitempty"`
}

// JSONB handles JSON data storage
type JSONB map[string]interface{}

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return "{}", nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	default:
		return errors.New("unsupported type for JSONB")
	}
}

// StringList stores a JSON array of strings in a jsonb column
type StringList []string

// Value implements the driver.Valuer interface
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	return json.Marshal(l)
}

// Scan implements the sql.Scanner interface
func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return errors.New("unsupported type for StringList")
	}
}

// Contains reports whether s is an element of the list.
func (l StringList) Contains(s string) bool {
	for _, v := range l {
		if v == s {
			return true
		}
	}
	return false
}
