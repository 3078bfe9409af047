package permission

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"callgrid/internal/models"
)

func col(typ models.ColumnType, visible, editable bool) *models.Column {
	return &models.Column{
		DataKey:        "k",
		Type:           typ,
		VisibleToUser:  visible,
		EditableByUser: editable,
	}
}

func TestCanAccessSheet(t *testing.T) {
	assert.True(t, Actor{Role: models.RoleAdmin}.CanAccessSheet())

	assert.True(t, Actor{Role: models.RoleSupervisor, Supervises: true}.CanAccessSheet())
	assert.False(t, Actor{Role: models.RoleSupervisor}.CanAccessSheet())

	assert.True(t, Actor{Role: models.RoleAgent, Assigned: true}.CanAccessSheet())
	assert.False(t, Actor{Role: models.RoleAgent}.CanAccessSheet())

	assert.True(t, Actor{Role: models.RolePartner, Assigned: true}.CanAccessSheet())
	assert.False(t, Actor{Role: models.RolePartner}.CanAccessSheet())
}

func TestCanManageSchema(t *testing.T) {
	assert.True(t, Actor{Role: models.RoleAdmin}.CanManageSchema())
	assert.True(t, Actor{Role: models.RoleSupervisor, Supervises: true}.CanManageSchema())
	assert.False(t, Actor{Role: models.RoleSupervisor}.CanManageSchema())
	assert.False(t, Actor{Role: models.RoleAgent, Assigned: true}.CanManageSchema())
	assert.False(t, Actor{Role: models.RolePartner, Assigned: true}.CanManageSchema())
}

func TestAgentRowScope(t *testing.T) {
	agent := Actor{
		Role:     models.RoleAgent,
		Assigned: true,
		Ranges:   []RowRange{{Start: 1, End: 5}, {Start: 10, End: 12}},
	}

	assert.True(t, agent.CanSeeRow(1))
	assert.True(t, agent.CanSeeRow(5))
	assert.False(t, agent.CanSeeRow(6))
	assert.True(t, agent.CanSeeRow(11))
	assert.False(t, agent.CanSeeRow(13))

	// Overlapping grants union.
	agent.Ranges = append(agent.Ranges, RowRange{Start: 4, End: 8})
	assert.True(t, agent.CanSeeRow(7))

	// Everyone else with access sees every row.
	assert.True(t, Actor{Role: models.RoleSupervisor, Supervises: true}.CanSeeRow(99999))
	assert.True(t, Actor{Role: models.RolePartner, Assigned: true}.CanSeeRow(99999))
}

func TestResolveAdminAndSupervisor(t *testing.T) {
	for _, a := range []Actor{
		{Role: models.RoleAdmin},
		{Role: models.RoleSupervisor, Supervises: true},
	} {
		// Hidden, read-only columns are still fully theirs.
		cap := Resolve(a, col(models.ColumnText, false, false), 1)
		assert.Equal(t, Capability{View: true, Edit: true}, cap)

		cap = Resolve(a, col(models.ColumnPhone, true, true), 1)
		assert.Equal(t, Capability{View: true, Edit: true, Dial: true}, cap)
	}
}

func TestResolveAgent(t *testing.T) {
	agent := Actor{Role: models.RoleAgent, Assigned: true, Ranges: []RowRange{{Start: 1, End: 5}}}

	cap := Resolve(agent, col(models.ColumnText, true, true), 3)
	assert.Equal(t, Capability{View: true, Edit: true}, cap)

	// Editable flag off: view only.
	cap = Resolve(agent, col(models.ColumnText, true, false), 3)
	assert.Equal(t, Capability{View: true}, cap)

	// Hidden column: nothing, even in range.
	cap = Resolve(agent, col(models.ColumnText, false, true), 3)
	assert.Equal(t, Capability{}, cap)

	// Out of range: nothing, even on a visible editable column.
	cap = Resolve(agent, col(models.ColumnText, true, true), 9)
	assert.Equal(t, Capability{}, cap)

	// Phone cells: dial but never edit, regardless of the editable flag.
	cap = Resolve(agent, col(models.ColumnPhone, true, true), 3)
	assert.Equal(t, Capability{View: true, Dial: true}, cap)
}

func TestResolvePartnerReadOnly(t *testing.T) {
	partner := Actor{Role: models.RolePartner, Assigned: true}

	cap := Resolve(partner, col(models.ColumnText, true, true), 1)
	assert.Equal(t, Capability{View: true}, cap)

	cap = Resolve(partner, col(models.ColumnPhone, true, true), 1)
	assert.Equal(t, Capability{View: true}, cap)

	cap = Resolve(partner, col(models.ColumnText, false, true), 1)
	assert.Equal(t, Capability{}, cap)
}

// Agent edit requires every gate at once: sheet access, column
// visibility, the editable flag, row range, and a non-phone type.
// Exercised over randomized inputs.
func TestAgentEditConjunction(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	types := []models.ColumnType{
		models.ColumnText, models.ColumnNumber, models.ColumnDate,
		models.ColumnSelect, models.ColumnPhone,
	}

	for i := 0; i < 2000; i++ {
		assigned := rng.Intn(2) == 0
		visible := rng.Intn(2) == 0
		editable := rng.Intn(2) == 0
		typ := types[rng.Intn(len(types))]

		start := 1 + rng.Intn(20)
		end := start + rng.Intn(20)
		row := 1 + rng.Intn(50)

		agent := Actor{
			Role:     models.RoleAgent,
			Assigned: assigned,
			Ranges:   []RowRange{{Start: start, End: end}},
		}
		cap := Resolve(agent, col(typ, visible, editable), row)

		inRange := row >= start && row <= end
		wantView := assigned && visible && inRange
		wantEdit := wantView && editable && typ != models.ColumnPhone
		wantDial := wantView && typ == models.ColumnPhone

		assert.Equal(t, wantView, cap.View, "view i=%d", i)
		assert.Equal(t, wantEdit, cap.Edit, "edit i=%d", i)
		assert.Equal(t, wantDial, cap.Dial, "dial i=%d", i)

		// Edit and dial never exceed view.
		assert.False(t, cap.Edit && !cap.View)
		assert.False(t, cap.Dial && !cap.View)
	}
}

func TestVisibleColumns(t *testing.T) {
	cols := []models.Column{
		*col(models.ColumnText, true, true),
		*col(models.ColumnNumber, false, true),
		*col(models.ColumnPhone, true, false),
	}

	assert.Len(t, VisibleColumns(Actor{Role: models.RoleAdmin}, cols), 3)
	assert.Len(t, VisibleColumns(Actor{Role: models.RoleSupervisor, Supervises: true}, cols), 3)
	assert.Len(t, VisibleColumns(Actor{Role: models.RoleAgent, Assigned: true}, cols), 2)
	assert.Len(t, VisibleColumns(Actor{Role: models.RolePartner, Assigned: true}, cols), 2)
}

func TestRangesOf(t *testing.T) {
	perms := []models.AgentRowPermission{
		{StartRow: 1, EndRow: 5},
		{StartRow: 10, EndRow: 10},
	}
	ranges := RangesOf(perms)
	assert.Equal(t, []RowRange{{Start: 1, End: 5}, {Start: 10, End: 10}}, ranges)
}
