// Package permission computes effective capabilities over sheet cells.
// The resolver is pure: every fact it needs (role, supervision,
// assignment, row ranges) arrives in the Actor snapshot, assembled
// fresh per request by the gateway. Nothing here reads shared state.
package permission

import "callgrid/internal/models"

// RowRange is an inclusive row number range.
type RowRange struct {
	Start int `json:"start_row"`
	End   int `json:"end_row"`
}

// Covers reports whether rowNumber falls inside the range.
func (r RowRange) Covers(rowNumber int) bool {
	return rowNumber >= r.Start && rowNumber <= r.End
}

// Actor is a per-request snapshot of who is asking, scoped to one
// sheet. Supervises is true when the actor supervises the sheet's
// owning project; Assigned when an agent holds a workbook assignment
// for the sheet; Ranges are the agent's row grants on the sheet.
type Actor struct {
	ID         int
	Role       models.UserRole
	Supervises bool
	Assigned   bool
	Ranges     []RowRange
}

// Capability is the effective right set over one cell.
type Capability struct {
	View bool `json:"view"`
	Edit bool `json:"edit"`
	Dial bool `json:"dial"`
}

// InRange reports whether any of the actor's ranges covers the row.
// Overlapping ranges union; there are no deny ranges.
func (a Actor) InRange(rowNumber int) bool {
	for _, r := range a.Ranges {
		if r.Covers(rowNumber) {
			return true
		}
	}
	return false
}

// CanAccessSheet reports whether the actor may see the sheet at all.
// A false answer surfaces externally as not-found, never as forbidden.
func (a Actor) CanAccessSheet() bool {
	switch a.Role {
	case models.RoleAdmin:
		return true
	case models.RoleSupervisor:
		return a.Supervises
	case models.RoleAgent:
		return a.Assigned
	case models.RolePartner:
		return a.Assigned
	}
	return false
}

// CanManageSchema reports whether the actor may mutate columns, the
// phone pool, and agent row permissions of the sheet.
func (a Actor) CanManageSchema() bool {
	switch a.Role {
	case models.RoleAdmin:
		return true
	case models.RoleSupervisor:
		return a.Supervises
	}
	return false
}

// CanSeeRow reports whether the actor may see the row at all. Agents
// are scoped to their granted ranges; everyone else with sheet access
// sees every row.
func (a Actor) CanSeeRow(rowNumber int) bool {
	if !a.CanAccessSheet() {
		return false
	}
	if a.Role == models.RoleAgent {
		return a.InRange(rowNumber)
	}
	return true
}

// Resolve computes the capability of the actor over one cell.
// Column visibility and row range scoping compose by intersection:
// failing either leaves the cell entirely out of view.
func Resolve(a Actor, col *models.Column, rowNumber int) Capability {
	if !a.CanAccessSheet() {
		return Capability{}
	}

	switch a.Role {
	case models.RoleAdmin:
		return Capability{View: true, Edit: true, Dial: col.Type == models.ColumnPhone}

	case models.RoleSupervisor:
		return Capability{View: true, Edit: true, Dial: col.Type == models.ColumnPhone}

	case models.RoleAgent:
		if !col.VisibleToUser || !a.InRange(rowNumber) {
			return Capability{}
		}
		cap := Capability{View: true}
		// Phone cells are never agent-editable; the agent may only
		// trigger a dial against the masked value.
		if col.Type == models.ColumnPhone {
			cap.Dial = true
		} else if col.EditableByUser {
			cap.Edit = true
		}
		return cap

	case models.RolePartner:
		if !col.VisibleToUser {
			return Capability{}
		}
		return Capability{View: true}
	}

	return Capability{}
}

// VisibleColumns filters cols down to what the actor may see.
func VisibleColumns(a Actor, cols []models.Column) []models.Column {
	if a.Role == models.RoleAdmin || (a.Role == models.RoleSupervisor && a.Supervises) {
		return cols
	}
	out := make([]models.Column, 0, len(cols))
	for _, c := range cols {
		if c.VisibleToUser {
			out = append(out, c)
		}
	}
	return out
}

// RangesOf converts stored permission rows into resolver ranges.
func RangesOf(perms []models.AgentRowPermission) []RowRange {
	ranges := make([]RowRange, 0, len(perms))
	for _, p := range perms {
		ranges = append(ranges, RowRange{Start: p.StartRow, End: p.EndRow})
	}
	return ranges
}
