package gateway

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/xuri/excelize/v2"

	"callgrid/internal/coltype"
	"callgrid/internal/database"
	"callgrid/internal/models"
	"callgrid/internal/permission"
)

func (g *Gateway) applyImport(ctx context.Context, user *models.User, sheet *models.Sheet, actor permission.Actor, op ImportRowsOp) (*ImportResult, error) {
	if !actor.CanManageSchema() {
		return nil, database.ErrForbidden
	}

	rows, err := parseImportFile(sheet.Columns, op.Filename, op.Content)
	if err != nil {
		return nil, err
	}

	count, err := g.db.ImportRows(sheet.ID, rows)
	if err != nil {
		return nil, err
	}

	fileHash := ""
	if g.s3 != nil {
		result, err := g.s3.ArchiveImport(ctx, sheet.ID, op.Filename, op.Content)
		if err != nil {
			// The rows are committed; archival is best effort.
			log.Printf("failed to archive import file for sheet %s: %v", sheet.ID, err)
		} else {
			fileHash = result.FileHash
		}
	}

	g.logOp(user, op, sheet.ID, "", nil, models.JSONB{"rows_imported": count}, fileHash)
	return &ImportResult{RowsImported: count, FileHash: fileHash}, nil
}

// parseImportFile turns an uploaded tabular file into validated row
// data maps. The first record is the header; each header cell must
// exactly match a column name to be mapped, unmatched headers are
// ignored. The first bad cell aborts the whole file.
func parseImportFile(cols []models.Column, filename string, content []byte) ([]models.JSONB, error) {
	var records [][]string
	var err error

	switch {
	case strings.HasSuffix(strings.ToLower(filename), ".xlsx"):
		records, err = readXLSX(content)
	case strings.HasSuffix(strings.ToLower(filename), ".csv"):
		records, err = readCSV(content)
	default:
		return nil, fmt.Errorf("unsupported import file type: %s", filename)
	}
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("import file is empty")
	}

	byName := make(map[string]*models.Column, len(cols))
	for i := range cols {
		byName[cols[i].Name] = &cols[i]
	}

	header := records[0]
	mapped := make([]*models.Column, len(header))
	for i, name := range header {
		mapped[i] = byName[strings.TrimSpace(name)]
	}

	rows := make([]models.JSONB, 0, len(records)-1)
	for idx, record := range records[1:] {
		rowIndex := idx + 1 // 1-based data row index

		data := models.JSONB{}
		for i, cell := range record {
			if i >= len(mapped) || mapped[i] == nil {
				continue
			}
			col := mapped[i]
			if strings.TrimSpace(cell) == "" {
				continue
			}
			coerced, err := coltype.Validate(col, cell)
			if err != nil {
				reason := err.Error()
				if verr, ok := err.(*coltype.ValidationError); ok {
					reason = verr.Reason
				}
				return nil, &database.ImportError{Row: rowIndex, DataKey: col.DataKey, Reason: reason}
			}
			data[col.DataKey] = coerced
		}

		for i := range cols {
			col := &cols[i]
			if !col.IsRequired {
				continue
			}
			if _, ok := data[col.DataKey]; !ok {
				return nil, &database.ImportError{Row: rowIndex, DataKey: col.DataKey, Reason: "required field is missing"}
			}
		}

		rows = append(rows, data)
	}

	return rows, nil
}

func readXLSX(content []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("xlsx file has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read xlsx rows: %w", err)
	}
	return rows, nil
}

func readCSV(content []byte) ([][]string, error) {
	reader := csv.NewReader(bytes.NewReader(content))
	reader.FieldsPerRecord = -1

	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}
		records = append(records, record)
	}
	return records, nil
}
