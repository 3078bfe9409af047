package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SelectOption is one selectable value of a select column
type SelectOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
	Color string `json:"color,omitempty"`
}

// SelectOptions stores the option list in a jsonb column
type SelectOptions []SelectOption

// Value implements the driver.Valuer interface
func (o SelectOptions) Value() (driver.Value, error) {
	if o == nil {
		return "[]", nil
	}
	return json.Marshal(o)
}

// Scan implements the sql.Scanner interface
func (o *SelectOptions) Scan(value interface{}) error {
	if value == nil {
		*o = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, o)
	case string:
		return json.Unmarshal([]byte(v), o)
	default:
		return errors.New("unsupported type for SelectOptions")
	}
}

// ByValue returns the option with the given value, if any.
func (o SelectOptions) ByValue(value string) (SelectOption, bool) {
	for _, opt := range o {
		if opt.Value == value {
			return opt, true
		}
	}
	return SelectOption{}, false
}

// Column is a typed field definition applied to every row of a sheet.
// DataKey is the stable machine key rows store values under; Name is
// only for display and import header matching.
type Column struct {
	ID             uuid.UUID     `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SheetID        uuid.UUID     `gorm:"type:uuid;not null;index" json:"sheet_id"`
	Name           string        `gorm:"column:name;not null" json:"name"`
	DataKey        string        `gorm:"column:data_key;not null" json:"data_key"`
	Type           ColumnType    `gorm:"column:column_type;type:column_type;not null;default:'text'" json:"type"`
	// No gorm-side defaults on the flags: a zero value here is an
	// intentional false, not a missing value.
	VisibleToUser  bool          `gorm:"column:visible_to_user" json:"visible_to_user"`
	EditableByUser bool          `gorm:"column:editable_by_user" json:"editable_by_user"`
	IsRequired     bool          `gorm:"column:is_required" json:"is_required"`
	DisplayOrder   int           `gorm:"column:display_order;default:0" json:"order"`
	Options        SelectOptions `gorm:"column:options;type:jsonb;default:'[]'" json:"options,omitempty"`
	PhoneNumbers   StringList    `gorm:"column:phone_numbers;type:jsonb;default:'[]'" json:"phone_numbers,omitempty"`
	BaseModel
}

// TableName specifies the table name for the Column model
func (Column) TableName() string {
	return "sheet_columns"
}

// ColumnManager provides ORM methods for Column
type ColumnManager struct {
	db *gorm.DB
}

// NewColumnManager creates a new ColumnManager instance
func NewColumnManager(db *gorm.DB) *ColumnManager {
	return &ColumnManager{db: db}
}

// Create creates a new column
func (m *ColumnManager) Create(column *Column) error {
	return m.db.Create(column).Error
}

// Get retrieves a live column by ID
func (m *ColumnManager) Get(id uuid.UUID) (*Column, error) {
	var column Column
	err := m.db.First(&column, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &column, nil
}

// GetInSheet retrieves a live column by ID scoped to a sheet
func (m *ColumnManager) GetInSheet(sheetID, id uuid.UUID) (*Column, error) {
	var column Column
	err := m.db.First(&column, "id = ? AND sheet_id = ?", id, sheetID).Error
	if err != nil {
		return nil, err
	}
	return &column, nil
}

// ForSheet retrieves all live columns of a sheet in display order
func (m *ColumnManager) ForSheet(sheetID uuid.UUID) ([]Column, error) {
	var columns []Column
	err := m.db.Where("sheet_id = ?", sheetID).
		Order("display_order ASC, created_at ASC").
		Find(&columns).Error
	return columns, err
}

// DataKeyExists checks whether another live column in the sheet
// already uses the data key
func (m *ColumnManager) DataKeyExists(sheetID uuid.UUID, dataKey string, excludeID uuid.UUID) (bool, error) {
	var count int64
	query := m.db.Model(&Column{}).
		Where("sheet_id = ? AND data_key = ?", sheetID, dataKey)
	if excludeID != uuid.Nil {
		query = query.Where("id != ?", excludeID)
	}
	err := query.Count(&count).Error
	return count > 0, err
}

// Update saves the column
func (m *ColumnManager) Update(column *Column) error {
	return m.db.Save(column).Error
}

// Delete soft deletes a column
func (m *ColumnManager) Delete(id uuid.UUID) error {
	return m.db.Delete(&Column{}, "id = ?", id).Error
}
