package gateway

import (
	"github.com/google/uuid"

	"callgrid/internal/database"
	"callgrid/internal/models"
)

// Op is one mutation applied through the gateway. Every op passes the
// same pipeline: resolve permission, validate values, delegate to the
// store, append an operation log entry.
type Op interface {
	// Name is the operation tag written to the log.
	Name() string
}

// CreateRowOp appends a row with the given data.
type CreateRowOp struct {
	Data models.JSONB
}

func (CreateRowOp) Name() string { return "createRow" }

// PatchRowOp merges a partial data map into a row.
type PatchRowOp struct {
	RowNumber int
	Data      models.JSONB
}

func (PatchRowOp) Name() string { return "patchRow" }

// PatchCellOp writes a single cell.
type PatchCellOp struct {
	RowNumber int
	Key       string
	Value     interface{}
}

func (PatchCellOp) Name() string { return "patchCell" }

// DeleteRowOp hard deletes a row.
type DeleteRowOp struct {
	RowNumber int
}

func (DeleteRowOp) Name() string { return "deleteRow" }

// CreateColumnOp adds a column to the sheet.
type CreateColumnOp struct {
	Def *models.Column
}

func (CreateColumnOp) Name() string { return "createColumn" }

// UpdateColumnOp partially updates a column.
type UpdateColumnOp struct {
	ColumnID uuid.UUID
	Patch    database.ColumnPatch
}

func (UpdateColumnOp) Name() string { return "updateColumn" }

// DeleteColumnOp soft deletes a column.
type DeleteColumnOp struct {
	ColumnID uuid.UUID
}

func (DeleteColumnOp) Name() string { return "deleteColumn" }

// ReorderColumnsOp rewrites display order following the id list.
type ReorderColumnsOp struct {
	OrderedIDs []uuid.UUID
}

func (ReorderColumnsOp) Name() string { return "reorderColumns" }

// ImportRowsOp bulk loads a tabular file. Filename selects the parser
// (.xlsx or .csv); the whole file commits atomically or not at all.
type ImportRowsOp struct {
	Filename string
	Content  []byte
}

func (ImportRowsOp) Name() string { return "importRows" }
