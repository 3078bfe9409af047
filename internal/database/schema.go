package database

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"callgrid/internal/models"
)

// ColumnPatch is a partial column update. Nil fields are untouched.
type ColumnPatch struct {
	Name           *string               `json:"name,omitempty"`
	DataKey        *string               `json:"data_key,omitempty"`
	Type           *models.ColumnType    `json:"type,omitempty"`
	VisibleToUser  *bool                 `json:"visible_to_user,omitempty"`
	EditableByUser *bool                 `json:"editable_by_user,omitempty"`
	IsRequired     *bool                 `json:"is_required,omitempty"`
	DisplayOrder   *int                  `json:"order,omitempty"`
	Options        *models.SelectOptions `json:"options,omitempty"`
	PhoneNumbers   *models.StringList    `json:"phone_numbers,omitempty"`
}

// GetSheet retrieves a live sheet with its columns.
func (s *service) GetSheet(sheetID uuid.UUID) (*models.Sheet, error) {
	sheet, err := s.gorm.Sheets.GetWithColumns(sheetID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return sheet, err
}

// SheetColumns retrieves the live columns of a sheet in display order.
func (s *service) SheetColumns(sheetID uuid.UUID) ([]models.Column, error) {
	return s.gorm.Columns.ForSheet(sheetID)
}

func validateOptions(opts models.SelectOptions) error {
	seen := make(map[string]bool, len(opts))
	for _, opt := range opts {
		if seen[opt.Value] {
			return ErrInvalidOptions
		}
		seen[opt.Value] = true
	}
	return nil
}

// CreateColumn creates a column, enforcing data key uniqueness within
// the sheet and option value uniqueness within the column.
func (s *service) CreateColumn(col *models.Column) error {
	if _, err := s.gorm.Sheets.Get(col.SheetID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}

	taken, err := s.gorm.Columns.DataKeyExists(col.SheetID, col.DataKey, uuid.Nil)
	if err != nil {
		return err
	}
	if taken {
		return ErrDuplicateDataKey
	}

	if col.Type == models.ColumnSelect {
		if err := validateOptions(col.Options); err != nil {
			return err
		}
	} else {
		col.Options = nil
	}
	if col.Type != models.ColumnPhone {
		col.PhoneNumbers = nil
	}

	if col.DisplayOrder == 0 {
		existing, err := s.gorm.Columns.ForSheet(col.SheetID)
		if err != nil {
			return err
		}
		col.DisplayOrder = len(existing) + 1
	}

	return s.gorm.Columns.Create(col)
}

// UpdateColumn applies a partial update. Changing the type away from
// select clears options; away from phone clears the pool only when no
// committed row references a pool entry. Shrinking the pool fails
// with PoolInUse when a removed number is still referenced.
func (s *service) UpdateColumn(sheetID, columnID uuid.UUID, patch ColumnPatch) (*models.Column, error) {
	col, err := s.gorm.Columns.GetInSheet(sheetID, columnID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if patch.DataKey != nil && *patch.DataKey != col.DataKey {
		taken, err := s.gorm.Columns.DataKeyExists(sheetID, *patch.DataKey, col.ID)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, ErrDuplicateDataKey
		}
		col.DataKey = *patch.DataKey
	}

	if patch.Name != nil {
		col.Name = *patch.Name
	}
	if patch.VisibleToUser != nil {
		col.VisibleToUser = *patch.VisibleToUser
	}
	if patch.EditableByUser != nil {
		col.EditableByUser = *patch.EditableByUser
	}
	if patch.IsRequired != nil {
		col.IsRequired = *patch.IsRequired
	}
	if patch.DisplayOrder != nil {
		col.DisplayOrder = *patch.DisplayOrder
	}

	if patch.Type != nil && *patch.Type != col.Type {
		oldType := col.Type
		if oldType == models.ColumnPhone {
			// Leaving phone only works when the pool is no longer
			// referenced by any committed value.
			for _, number := range col.PhoneNumbers {
				used, err := s.gorm.Rows.ValueInUse(sheetID, col.DataKey, number)
				if err != nil {
					return nil, err
				}
				if used {
					return nil, ErrPoolInUse
				}
			}
			col.PhoneNumbers = nil
		}
		if oldType == models.ColumnSelect {
			col.Options = nil
		}
		col.Type = *patch.Type
	}

	if patch.Options != nil {
		if col.Type != models.ColumnSelect {
			return nil, ErrInvalidOptions
		}
		if err := validateOptions(*patch.Options); err != nil {
			return nil, err
		}
		col.Options = *patch.Options
	}

	if patch.PhoneNumbers != nil {
		if col.Type != models.ColumnPhone {
			return nil, ErrPoolInUse
		}
		next := *patch.PhoneNumbers
		for _, number := range col.PhoneNumbers {
			if next.Contains(number) {
				continue
			}
			used, err := s.gorm.Rows.ValueInUse(sheetID, col.DataKey, number)
			if err != nil {
				return nil, err
			}
			if used {
				return nil, ErrPoolInUse
			}
		}
		col.PhoneNumbers = next
	}

	if err := s.gorm.Columns.Update(col); err != nil {
		return nil, err
	}
	return col, nil
}

// DeleteColumn soft deletes a column of the sheet.
func (s *service) DeleteColumn(sheetID, columnID uuid.UUID) error {
	if _, err := s.gorm.Columns.GetInSheet(sheetID, columnID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	return s.gorm.Columns.Delete(columnID)
}

// ReorderColumns rewrites display order sequentially from 1 following
// orderedIDs. Columns missing from the list keep their relative order
// after the listed ones.
func (s *service) ReorderColumns(sheetID uuid.UUID, orderedIDs []uuid.UUID) error {
	cols, err := s.gorm.Columns.ForSheet(sheetID)
	if err != nil {
		return err
	}

	byID := make(map[uuid.UUID]*models.Column, len(cols))
	for i := range cols {
		byID[cols[i].ID] = &cols[i]
	}

	return s.gorm.Transaction(func(tx *models.DB) error {
		rank := 0
		for _, id := range orderedIDs {
			col, ok := byID[id]
			if !ok {
				return ErrNotFound
			}
			rank++
			if err := tx.DB.Model(&models.Column{}).
				Where("id = ?", col.ID).
				Update("display_order", rank).Error; err != nil {
				return err
			}
			delete(byID, id)
		}
		// Unlisted columns follow, keeping their previous order.
		for i := range cols {
			col := &cols[i]
			if _, left := byID[col.ID]; !left {
				continue
			}
			rank++
			if err := tx.DB.Model(&models.Column{}).
				Where("id = ?", col.ID).
				Update("display_order", rank).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
