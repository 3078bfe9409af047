package database

import (
	"errors"
	"hash/fnv"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"callgrid/internal/models"
)

// sheetLockKey derives the advisory lock key serializing row number
// assignment per sheet.
func sheetLockKey(sheetID uuid.UUID) int64 {
	h := fnv.New64a()
	h.Write(sheetID[:])
	return int64(h.Sum64())
}

func lockSheet(tx *gorm.DB, sheetID uuid.UUID) error {
	return tx.Exec("SELECT pg_advisory_xact_lock(?)", sheetLockKey(sheetID)).Error
}

// ListRows returns one page of rows ordered by row number. skip is an
// extra offset layered under page*limit.
func (s *service) ListRows(sheetID uuid.UUID, page, limit, skip int) ([]models.Row, error) {
	if _, err := s.gorm.Sheets.Get(sheetID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.gorm.Rows.Page(sheetID, page, limit, skip)
}

// GetRow retrieves one row by number.
func (s *service) GetRow(sheetID uuid.UUID, rowNumber int) (*models.Row, error) {
	row, err := s.gorm.Rows.Get(sheetID, rowNumber)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return row, err
}

// checkRequired rejects data missing any required column's key.
func checkRequired(cols []models.Column, data models.JSONB) error {
	for _, col := range cols {
		if !col.IsRequired {
			continue
		}
		if v, ok := data[col.DataKey]; !ok || v == nil {
			return ErrMissingRequiredField
		}
	}
	return nil
}

// CreateRow appends a row with the next row number. Numbering is
// serialized per sheet with an advisory lock so concurrent inserts
// never collide; deleted numbers are not reused.
func (s *service) CreateRow(sheetID uuid.UUID, data models.JSONB) (*models.Row, error) {
	if _, err := s.gorm.Sheets.Get(sheetID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	cols, err := s.gorm.Columns.ForSheet(sheetID)
	if err != nil {
		return nil, err
	}
	if err := checkRequired(cols, data); err != nil {
		return nil, err
	}

	if data == nil {
		data = models.JSONB{}
	}

	var row *models.Row
	err = s.gorm.Transaction(func(tx *models.DB) error {
		if err := lockSheet(tx.DB, sheetID); err != nil {
			return err
		}
		max, err := tx.Rows.MaxRowNumber(sheetID)
		if err != nil {
			return err
		}
		row = &models.Row{
			SheetID:   sheetID,
			RowNumber: max + 1,
			Data:      data,
		}
		return tx.Rows.Create(row)
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

// PatchRow merges partial into the row's data. Values are expected to
// be already validated by the column type protocol; last write wins.
func (s *service) PatchRow(sheetID uuid.UUID, rowNumber int, partial models.JSONB) (*models.Row, error) {
	row, err := s.GetRow(sheetID, rowNumber)
	if err != nil {
		return nil, err
	}

	if row.Data == nil {
		row.Data = models.JSONB{}
	}
	for key, value := range partial {
		if value == nil {
			delete(row.Data, key)
			continue
		}
		row.Data[key] = value
	}

	if err := s.gorm.Rows.Update(row); err != nil {
		return nil, err
	}
	return row, nil
}

// DeleteRow hard deletes a row. Remaining numbers keep their gaps so
// agent row ranges stay stable.
func (s *service) DeleteRow(sheetID uuid.UUID, rowNumber int) error {
	if _, err := s.GetRow(sheetID, rowNumber); err != nil {
		return err
	}
	return s.gorm.Rows.Delete(sheetID, rowNumber)
}

// ImportRows commits pre-validated rows in one transaction, numbering
// them sequentially after the current maximum. The sheet lock is held
// for the whole import so concurrent inserts cannot interleave.
// Returns the number of rows committed.
func (s *service) ImportRows(sheetID uuid.UUID, rows []models.JSONB) (int, error) {
	if _, err := s.gorm.Sheets.Get(sheetID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	err := s.gorm.Transaction(func(tx *models.DB) error {
		if err := lockSheet(tx.DB, sheetID); err != nil {
			return err
		}
		max, err := tx.Rows.MaxRowNumber(sheetID)
		if err != nil {
			return err
		}
		batch := make([]models.Row, 0, len(rows))
		for i, data := range rows {
			batch = append(batch, models.Row{
				SheetID:   sheetID,
				RowNumber: max + i + 1,
				Data:      data,
			})
		}
		return models.BulkCreate(tx.DB, batch)
	})
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}
