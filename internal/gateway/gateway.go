// Package gateway is the single authorized entry point over sheet
// data. Reads resolve permissions, fetch, and format; writes resolve
// permissions, validate through the column type protocol, persist,
// and append to the operation log. Other subsystems never touch the
// stores directly.
package gateway

import (
	"context"
	"log"

	"github.com/google/uuid"

	"callgrid/internal/coltype"
	"callgrid/internal/database"
	"callgrid/internal/models"
	"callgrid/internal/permission"
	"callgrid/internal/storage"
)

// Gateway combines the permission resolver, the column type protocol,
// and the schema/row stores.
type Gateway struct {
	db database.Service
	s3 *storage.S3Service
}

// New creates a gateway. s3 may be nil; import archival is then
// skipped.
func New(db database.Service, s3 *storage.S3Service) *Gateway {
	return &Gateway{db: db, s3: s3}
}

// Query selects a row page. A negative Limit skips the row query
// entirely and returns only the visible schema.
type Query struct {
	Page  int
	Limit int
	Skip  int
}

// ColumnView is a column definition as one viewer sees it. The phone
// pool is masked for agents and partners.
type ColumnView struct {
	ID             uuid.UUID            `json:"id"`
	Name           string               `json:"name"`
	DataKey        string               `json:"data_key"`
	Type           models.ColumnType    `json:"type"`
	VisibleToUser  bool                 `json:"visible_to_user"`
	EditableByUser bool                 `json:"editable_by_user"`
	IsRequired     bool                 `json:"is_required"`
	Order          int                  `json:"order"`
	Options        models.SelectOptions `json:"options,omitempty"`
	PhoneNumbers   []string             `json:"phone_numbers,omitempty"`
}

// RowView is one row as one viewer sees it: invisible columns are
// absent, phone values masked per role.
type RowView struct {
	RowNumber int                    `json:"row_number"`
	Data      map[string]interface{} `json:"data"`
}

// SheetPage is the result of a gateway read.
type SheetPage struct {
	SheetID uuid.UUID    `json:"sheet_id"`
	Name    string       `json:"name"`
	Columns []ColumnView `json:"columns"`
	Rows    []RowView    `json:"rows"`
	Page    int          `json:"page"`
	Limit   int          `json:"limit"`
}

// ImportResult reports a committed bulk import.
type ImportResult struct {
	RowsImported int    `json:"rows_imported"`
	FileHash     string `json:"file_hash,omitempty"`
}

// actorFor assembles the per-request permission snapshot for one user
// over one sheet. Everything is read fresh; nothing is cached across
// requests.
func (g *Gateway) actorFor(user *models.User, sheet *models.Sheet) (permission.Actor, error) {
	actor := permission.Actor{ID: user.ID, Role: user.Role}
	m := g.db.Models()

	switch user.Role {
	case models.RoleSupervisor:
		supervises, err := models.Exists[models.ProjectMembership](m.DB,
			"project_id = ? AND user_id = ? AND role = ?",
			sheet.ProjectID, user.ID, models.ProjectRoleSupervisor)
		if err != nil {
			return actor, err
		}
		actor.Supervises = supervises

	case models.RoleAgent, models.RolePartner:
		assigned, err := models.Exists[models.WorkbookAssignment](m.DB,
			"workbook_id = ? AND agent_id = ?", sheet.WorkbookID, user.ID)
		if err != nil {
			return actor, err
		}
		actor.Assigned = assigned

		if user.Role == models.RoleAgent {
			perms, err := m.Permissions.ForAgent(sheet.ID, user.ID)
			if err != nil {
				return actor, err
			}
			actor.Ranges = permission.RangesOf(perms)
		}
	}

	return actor, nil
}

// openSheet loads the sheet and the caller's actor snapshot, failing
// not-found when the caller may not see the sheet at all.
func (g *Gateway) openSheet(user *models.User, sheetID uuid.UUID) (*models.Sheet, permission.Actor, error) {
	sheet, err := g.db.GetSheet(sheetID)
	if err != nil {
		return nil, permission.Actor{}, err
	}
	actor, err := g.actorFor(user, sheet)
	if err != nil {
		return nil, actor, err
	}
	if !actor.CanAccessSheet() {
		return nil, actor, database.ErrNotFound
	}
	return sheet, actor, nil
}

func columnView(col *models.Column, viewer models.UserRole) ColumnView {
	view := ColumnView{
		ID:             col.ID,
		Name:           col.Name,
		DataKey:        col.DataKey,
		Type:           col.Type,
		VisibleToUser:  col.VisibleToUser,
		EditableByUser: col.EditableByUser,
		IsRequired:     col.IsRequired,
		Order:          col.DisplayOrder,
		Options:        col.Options,
	}
	if col.Type == models.ColumnPhone {
		if viewer == models.RoleAdmin || viewer == models.RoleSupervisor {
			view.PhoneNumbers = col.PhoneNumbers
		} else {
			masked := make([]string, len(col.PhoneNumbers))
			for i, n := range col.PhoneNumbers {
				masked[i] = coltype.MaskPhone(n)
			}
			view.PhoneNumbers = masked
		}
	}
	return view
}

// rowView formats a stored row for one viewer, keeping only the
// visible columns.
func rowView(visible []models.Column, viewer models.UserRole, row *models.Row) RowView {
	data := make(map[string]interface{}, len(visible))
	for i := range visible {
		col := &visible[i]
		value, ok := row.Data[col.DataKey]
		if !ok {
			continue
		}
		data[col.DataKey] = coltype.Present(col, value, viewer)
	}
	return RowView{RowNumber: row.RowNumber, Data: data}
}

// Get returns one filtered page of rows and the visible column
// schema. Rows outside an agent's granted ranges are omitted
// entirely, not disabled.
func (g *Gateway) Get(user *models.User, sheetID uuid.UUID, q Query) (*SheetPage, error) {
	sheet, actor, err := g.openSheet(user, sheetID)
	if err != nil {
		return nil, err
	}

	visible := permission.VisibleColumns(actor, sheet.Columns)
	views := make([]ColumnView, len(visible))
	for i := range visible {
		views[i] = columnView(&visible[i], user.Role)
	}

	rowViews := make([]RowView, 0)
	if q.Limit >= 0 {
		rows, err := g.db.ListRows(sheetID, q.Page, q.Limit, q.Skip)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			if !actor.CanSeeRow(row.RowNumber) {
				continue
			}
			rowViews = append(rowViews, rowView(visible, user.Role, &row))
		}
	}

	page := q.Page
	if page < 1 {
		page = 1
	}
	limit := q.Limit
	if limit == 0 {
		limit = 50
	}
	if limit < 0 {
		limit = 0
	}

	return &SheetPage{
		SheetID: sheet.ID,
		Name:    sheet.Name,
		Columns: views,
		Rows:    rowViews,
		Page:    page,
		Limit:   limit,
	}, nil
}

// Apply runs one mutation through the full pipeline. The returned
// value depends on the op: the created row, the updated column, the
// import result, or nil.
func (g *Gateway) Apply(ctx context.Context, user *models.User, sheetID uuid.UUID, op Op) (interface{}, error) {
	sheet, actor, err := g.openSheet(user, sheetID)
	if err != nil {
		return nil, err
	}

	switch v := op.(type) {
	case CreateRowOp:
		return g.applyCreateRow(user, sheet, actor, v)
	case PatchRowOp:
		if cell, ok := asCellPatch(sheet.Columns, v); ok {
			return g.applyPatchRow(user, sheet, actor, cell.RowNumber, models.JSONB{cell.Key: cell.Value}, cell)
		}
		return g.applyPatchRow(user, sheet, actor, v.RowNumber, v.Data, v)
	case PatchCellOp:
		return g.applyPatchRow(user, sheet, actor, v.RowNumber, models.JSONB{v.Key: v.Value}, v)
	case DeleteRowOp:
		return g.applyDeleteRow(user, sheet, actor, v)
	case CreateColumnOp:
		return g.applyCreateColumn(user, sheet, actor, v)
	case UpdateColumnOp:
		return g.applyUpdateColumn(user, sheet, actor, v)
	case DeleteColumnOp:
		return g.applyDeleteColumn(user, sheet, actor, v)
	case ReorderColumnsOp:
		return g.applyReorderColumns(user, sheet, actor, v)
	case ImportRowsOp:
		return g.applyImport(ctx, user, sheet, actor, v)
	}
	return nil, database.ErrForbidden
}

// asCellPatch detects the {key, value} single-cell convention on a
// patch body. A body of exactly those two keys is only a cell patch
// when the sheet does not itself define key/value columns, so such
// schemas keep plain partial-map semantics.
func asCellPatch(cols []models.Column, op PatchRowOp) (PatchCellOp, bool) {
	if len(op.Data) != 2 {
		return PatchCellOp{}, false
	}
	key, ok := op.Data["key"].(string)
	if !ok {
		return PatchCellOp{}, false
	}
	value, ok := op.Data["value"]
	if !ok {
		return PatchCellOp{}, false
	}
	for i := range cols {
		if cols[i].DataKey == "key" || cols[i].DataKey == "value" {
			return PatchCellOp{}, false
		}
	}
	return PatchCellOp{RowNumber: op.RowNumber, Key: key, Value: value}, true
}

func (g *Gateway) applyCreateRow(user *models.User, sheet *models.Sheet, actor permission.Actor, op CreateRowOp) (*RowView, error) {
	// Adding rows is a schema-manager action: an agent's grants are
	// row ranges, and a fresh row lands outside every grant.
	if !actor.CanManageSchema() {
		return nil, database.ErrForbidden
	}

	data, err := g.validateData(sheet.Columns, op.Data)
	if err != nil {
		return nil, err
	}

	row, err := g.db.CreateRow(sheet.ID, data)
	if err != nil {
		return nil, err
	}

	g.logOp(user, op, sheet.ID, "", nil, models.JSONB(row.Data), "")
	view := rowView(permission.VisibleColumns(actor, sheet.Columns), user.Role, row)
	return &view, nil
}

func (g *Gateway) applyPatchRow(user *models.User, sheet *models.Sheet, actor permission.Actor, rowNumber int, partial models.JSONB, op Op) (*RowView, error) {
	// Row scoping holds regardless of what the body carries; an empty
	// patch must not turn into a read of a row the caller may not see.
	if !actor.CanSeeRow(rowNumber) {
		return nil, database.ErrNotFound
	}

	byKey := make(map[string]*models.Column, len(sheet.Columns))
	for i := range sheet.Columns {
		byKey[sheet.Columns[i].DataKey] = &sheet.Columns[i]
	}

	validated := make(models.JSONB, len(partial))
	for key, raw := range partial {
		col, ok := byKey[key]
		if !ok {
			return nil, &coltype.ValidationError{DataKey: key, Reason: "unknown column"}
		}

		cap := permission.Resolve(actor, col, rowNumber)
		if !cap.View {
			// The cell does not exist as far as this caller knows.
			return nil, database.ErrNotFound
		}
		if !cap.Edit {
			return nil, database.ErrReadOnlyField
		}

		coerced, err := coltype.Validate(col, raw)
		if err != nil {
			return nil, err
		}
		validated[key] = coerced
	}

	old, err := g.db.GetRow(sheet.ID, rowNumber)
	if err != nil {
		return nil, err
	}
	oldData := models.JSONB{}
	for key := range validated {
		if v, ok := old.Data[key]; ok {
			oldData[key] = v
		}
	}

	row, err := g.db.PatchRow(sheet.ID, rowNumber, validated)
	if err != nil {
		return nil, err
	}

	dataKey := ""
	if cell, ok := op.(PatchCellOp); ok {
		dataKey = cell.Key
	}
	g.logOp(user, op, sheet.ID, dataKey, oldData, validated, "")

	view := rowView(permission.VisibleColumns(actor, sheet.Columns), user.Role, row)
	return &view, nil
}

func (g *Gateway) applyDeleteRow(user *models.User, sheet *models.Sheet, actor permission.Actor, op DeleteRowOp) (interface{}, error) {
	if !actor.CanManageSchema() {
		return nil, database.ErrForbidden
	}

	old, err := g.db.GetRow(sheet.ID, op.RowNumber)
	if err != nil {
		return nil, err
	}
	if err := g.db.DeleteRow(sheet.ID, op.RowNumber); err != nil {
		return nil, err
	}

	g.logOp(user, op, sheet.ID, "", models.JSONB(old.Data), nil, "")
	return nil, nil
}

func (g *Gateway) applyCreateColumn(user *models.User, sheet *models.Sheet, actor permission.Actor, op CreateColumnOp) (*models.Column, error) {
	if !actor.CanManageSchema() {
		return nil, database.ErrForbidden
	}

	op.Def.SheetID = sheet.ID
	if err := g.db.CreateColumn(op.Def); err != nil {
		return nil, err
	}

	g.logOp(user, op, sheet.ID, op.Def.DataKey, nil, nil, "")
	return op.Def, nil
}

func (g *Gateway) applyUpdateColumn(user *models.User, sheet *models.Sheet, actor permission.Actor, op UpdateColumnOp) (*models.Column, error) {
	if !actor.CanManageSchema() {
		return nil, database.ErrForbidden
	}

	col, err := g.db.UpdateColumn(sheet.ID, op.ColumnID, op.Patch)
	if err != nil {
		return nil, err
	}

	g.logOp(user, op, sheet.ID, col.DataKey, nil, nil, "")
	return col, nil
}

func (g *Gateway) applyDeleteColumn(user *models.User, sheet *models.Sheet, actor permission.Actor, op DeleteColumnOp) (interface{}, error) {
	if !actor.CanManageSchema() {
		return nil, database.ErrForbidden
	}

	dataKey := ""
	for i := range sheet.Columns {
		if sheet.Columns[i].ID == op.ColumnID {
			dataKey = sheet.Columns[i].DataKey
		}
	}

	if err := g.db.DeleteColumn(sheet.ID, op.ColumnID); err != nil {
		return nil, err
	}

	g.logOp(user, op, sheet.ID, dataKey, nil, nil, "")
	return nil, nil
}

func (g *Gateway) applyReorderColumns(user *models.User, sheet *models.Sheet, actor permission.Actor, op ReorderColumnsOp) (interface{}, error) {
	if !actor.CanManageSchema() {
		return nil, database.ErrForbidden
	}

	if err := g.db.ReorderColumns(sheet.ID, op.OrderedIDs); err != nil {
		return nil, err
	}

	g.logOp(user, op, sheet.ID, "", nil, nil, "")
	return nil, nil
}

// validateData runs every supplied pair through the column type
// protocol. Unknown keys are rejected.
func (g *Gateway) validateData(cols []models.Column, data models.JSONB) (models.JSONB, error) {
	byKey := make(map[string]*models.Column, len(cols))
	for i := range cols {
		byKey[cols[i].DataKey] = &cols[i]
	}

	out := make(models.JSONB, len(data))
	for key, raw := range data {
		col, ok := byKey[key]
		if !ok {
			return nil, &coltype.ValidationError{DataKey: key, Reason: "unknown column"}
		}
		coerced, err := coltype.Validate(col, raw)
		if err != nil {
			return nil, err
		}
		out[key] = coerced
	}
	return out, nil
}

// OperationLog lists the newest audit entries of a sheet. Supervisor
// and admin only.
func (g *Gateway) OperationLog(user *models.User, sheetID uuid.UUID, limit int) ([]models.OperationLog, error) {
	_, actor, err := g.openSheet(user, sheetID)
	if err != nil {
		return nil, err
	}
	if !actor.CanManageSchema() {
		return nil, database.ErrForbidden
	}
	return g.db.Models().OpLog.ForSheet(sheetID, limit)
}

// SheetPermissions lists the agent row ranges of a sheet. Supervisor
// and admin only.
func (g *Gateway) SheetPermissions(user *models.User, sheetID uuid.UUID) ([]models.AgentRowPermission, error) {
	_, actor, err := g.openSheet(user, sheetID)
	if err != nil {
		return nil, err
	}
	if !actor.CanManageSchema() {
		return nil, database.ErrForbidden
	}
	return g.db.Models().Permissions.ForSheet(sheetID)
}

// ReplaceAgentRanges swaps one agent's row ranges on a sheet.
// Supervisor and admin only.
func (g *Gateway) ReplaceAgentRanges(user *models.User, sheetID uuid.UUID, agentID int, ranges []models.AgentRowPermission) error {
	_, actor, err := g.openSheet(user, sheetID)
	if err != nil {
		return err
	}
	if !actor.CanManageSchema() {
		return database.ErrForbidden
	}
	if err := g.db.Models().Permissions.ReplaceForAgent(sheetID, agentID, ranges); err != nil {
		return err
	}
	g.logOp(user, replacePermissionsOp{}, sheetID, "", nil, nil, "")
	return nil
}

type replacePermissionsOp struct{}

func (replacePermissionsOp) Name() string { return "replacePermissions" }

// logOp appends an operation log entry. Failures are logged and
// swallowed; the mutation already succeeded.
func (g *Gateway) logOp(user *models.User, op Op, sheetID uuid.UUID, dataKey string, oldValue, newValue models.JSONB, fileHash string) {
	entry := &models.OperationLog{
		ActorID:  user.ID,
		Op:       op.Name(),
		SheetID:  sheetID,
		DataKey:  dataKey,
		OldValue: oldValue,
		NewValue: newValue,
		FileHash: fileHash,
	}
	if err := g.db.Models().OpLog.Append(entry); err != nil {
		log.Printf("failed to append operation log for %s on sheet %s: %v", op.Name(), sheetID, err)
	}
}
