package gateway

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"callgrid/internal/coltype"
	"callgrid/internal/database"
	"callgrid/internal/models"
)

var testDSN string

func mustStartPostgresContainer() (func(context.Context, ...testcontainers.TerminateOption) error, string, error) {
	var (
		dbName = "test_db"
		dbPwd  = "password"
		dbUser = "user"
	)

	dbContainer, err := postgres.Run(
		context.Background(),
		"postgres:latest",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPwd),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Second)),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start postgres container: %w", err)
	}

	host, err := dbContainer.Host(context.Background())
	if err != nil {
		return dbContainer.Terminate, "", fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := dbContainer.MappedPort(context.Background(), "5432/tcp")
	if err != nil {
		return dbContainer.Terminate, "", fmt.Errorf("failed to get container mapped port: %w", err)
	}

	connStr := fmt.Sprintf("postgresql://%s:%s@%s:%s/%s?sslmode=disable", dbUser, dbPwd, host, port.Port(), dbName)

	return dbContainer.Terminate, connStr, nil
}

func TestMain(m *testing.M) {
	teardown, dsn, err := mustStartPostgresContainer()
	if err != nil {
		log.Fatalf("could not start postgres container for tests: %v", err)
	}
	testDSN = dsn

	gormDB, err := models.OpenDB(dsn)
	if err != nil {
		log.Fatalf("failed to open migration connection: %v", err)
	}
	if err := models.NewMigrateAdapter(gormDB.DB).RunMigrationsFrom("file://../../migrations"); err != nil {
		log.Fatalf("failed to run migrations on test database: %v", err)
	}
	if err := gormDB.Close(); err != nil {
		log.Printf("warning: failed to close migration connection: %v", err)
	}

	exitCode := m.Run()

	if teardown != nil {
		if err := teardown(context.Background()); err != nil {
			log.Fatalf("could not teardown postgres container: %v", err)
		}
	}
	os.Exit(exitCode)
}

// fixture is a sheet wired with one user per role, an agent row grant
// of 1-5, and a column of every kind.
type fixture struct {
	gw    *Gateway
	svc   database.Service
	m     *models.DB
	sheet *models.Sheet

	admin      *models.User
	supervisor *models.User
	agent      *models.User
	partner    *models.User

	cols map[string]*models.Column
}

func newUser(t *testing.T, m *models.DB, role models.UserRole) *models.User {
	t.Helper()
	user := &models.User{
		Email: fmt.Sprintf("%s+%s@example.com", role, uuid.NewString()),
		Name:  fmt.Sprintf("Test %s", role),
		Role:  role,
	}
	require.NoError(t, m.Users.Create(user))
	return user
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	gormDB, err := models.OpenDB(testDSN)
	require.NoError(t, err)
	t.Cleanup(func() { gormDB.Close() })

	svc := database.NewFromDB(gormDB)
	f := &fixture{
		gw:   New(svc, nil),
		svc:  svc,
		m:    gormDB,
		cols: make(map[string]*models.Column),
	}

	f.admin = newUser(t, gormDB, models.RoleAdmin)
	f.supervisor = newUser(t, gormDB, models.RoleSupervisor)
	f.agent = newUser(t, gormDB, models.RoleAgent)
	f.partner = newUser(t, gormDB, models.RolePartner)

	company := &models.Company{Name: "Fixture Co", Domain: fmt.Sprintf("%s.example.com", uuid.NewString())}
	require.NoError(t, gormDB.Companies.Create(company))

	project := &models.Project{CompanyID: company.ID, Name: "Fixture Project"}
	require.NoError(t, gormDB.Projects.Create(project))
	require.NoError(t, project.AddMember(gormDB.DB, f.supervisor.ID, models.ProjectRoleSupervisor))

	workbook := &models.Workbook{ProjectID: project.ID, Name: "Fixture Workbook"}
	require.NoError(t, gormDB.Workbooks.Create(workbook))
	require.NoError(t, workbook.AssignAgent(gormDB.DB, f.agent.ID))
	require.NoError(t, workbook.AssignAgent(gormDB.DB, f.partner.ID))

	sheet := &models.Sheet{WorkbookID: workbook.ID, Name: "Fixture Sheet"}
	require.NoError(t, gormDB.Sheets.Create(sheet))
	f.sheet = sheet

	defs := []*models.Column{
		{SheetID: sheet.ID, Name: "Full Name", DataKey: "name", Type: models.ColumnText,
			VisibleToUser: true, EditableByUser: true},
		{SheetID: sheet.ID, Name: "Status", DataKey: "status", Type: models.ColumnSelect,
			VisibleToUser: true, EditableByUser: true,
			Options: models.SelectOptions{
				{Value: "new", Label: "New"},
				{Value: "callback", Label: "Callback"},
				{Value: "refused", Label: "Refused"},
			}},
		{SheetID: sheet.ID, Name: "Score", DataKey: "score", Type: models.ColumnNumber,
			VisibleToUser: true, EditableByUser: false},
		{SheetID: sheet.ID, Name: "Internal Note", DataKey: "secret", Type: models.ColumnText,
			VisibleToUser: false, EditableByUser: true},
		{SheetID: sheet.ID, Name: "Line", DataKey: "line", Type: models.ColumnPhone,
			VisibleToUser: true, EditableByUser: true,
			PhoneNumbers: models.StringList{"994501234563", "994502223344"}},
	}
	for _, def := range defs {
		require.NoError(t, svc.CreateColumn(def))
		f.cols[def.DataKey] = def
	}

	for i := 1; i <= 10; i++ {
		_, err := svc.CreateRow(sheet.ID, models.JSONB{
			"name":   fmt.Sprintf("Lead %d", i),
			"status": "new",
			"score":  float64(i),
			"secret": "do not show",
			"line":   "994501234563",
		})
		require.NoError(t, err)
	}

	require.NoError(t, gormDB.Permissions.ReplaceForAgent(sheet.ID, f.agent.ID, []models.AgentRowPermission{
		{SheetID: sheet.ID, AgentID: f.agent.ID, StartRow: 1, EndRow: 5},
	}))

	return f
}

func TestAgentCellPatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// In range: the write lands.
	out, err := f.gw.Apply(ctx, f.agent, f.sheet.ID, PatchCellOp{RowNumber: 3, Key: "status", Value: "callback"})
	require.NoError(t, err)

	// The write response is the agent's view, not the stored row:
	// hidden columns absent, phone masked, select resolved.
	view := out.(*RowView)
	assert.Equal(t, 3, view.RowNumber)
	assert.NotContains(t, view.Data, "secret")
	assert.Equal(t, "99450******3", view.Data["line"])
	status := view.Data["status"].(map[string]interface{})
	assert.Equal(t, "callback", status["value"])

	row, err := f.svc.GetRow(f.sheet.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, "callback", row.Data["status"])

	// Out of range: indistinguishable from a missing row.
	_, err = f.gw.Apply(ctx, f.agent, f.sheet.ID, PatchCellOp{RowNumber: 9, Key: "status", Value: "callback"})
	assert.ErrorIs(t, err, database.ErrNotFound)

	// Unknown option: rejected by the column type, row untouched.
	_, err = f.gw.Apply(ctx, f.agent, f.sheet.ID, PatchCellOp{RowNumber: 3, Key: "status", Value: "lost"})
	var verr *coltype.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "status", verr.DataKey)

	row, err = f.svc.GetRow(f.sheet.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, "callback", row.Data["status"])

	// The successful patch left an audit entry.
	entries, err := f.gw.OperationLog(f.supervisor, f.sheet.ID, 10)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	found := false
	for _, e := range entries {
		if e.Op == "patchCell" && e.DataKey == "status" && e.ActorID == f.agent.ID {
			found = true
		}
	}
	assert.True(t, found, "expected a patchCell audit entry")
}

func TestEmptyPatchRespectsRowScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// An empty body on an out-of-range row must not become a read.
	_, err := f.gw.Apply(ctx, f.agent, f.sheet.ID, PatchRowOp{RowNumber: 9, Data: models.JSONB{}})
	assert.ErrorIs(t, err, database.ErrNotFound)

	// In range it is a no-op, and the response is still the filtered
	// view.
	out, err := f.gw.Apply(ctx, f.agent, f.sheet.ID, PatchRowOp{RowNumber: 2, Data: models.JSONB{}})
	require.NoError(t, err)
	view := out.(*RowView)
	assert.NotContains(t, view.Data, "secret")
	assert.Equal(t, "99450******3", view.Data["line"])
}

func TestPatchRowCellConvention(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// {key, value} routes to the named column.
	_, err := f.gw.Apply(ctx, f.supervisor, f.sheet.ID, PatchRowOp{
		RowNumber: 1,
		Data:      models.JSONB{"key": "status", "value": "refused"},
	})
	require.NoError(t, err)

	row, err := f.svc.GetRow(f.sheet.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "refused", row.Data["status"])

	// Once the sheet defines key/value columns of its own, the same
	// body is a plain partial map again.
	for _, def := range []*models.Column{
		{SheetID: f.sheet.ID, Name: "Key", DataKey: "key", Type: models.ColumnText,
			VisibleToUser: true, EditableByUser: true},
		{SheetID: f.sheet.ID, Name: "Value", DataKey: "value", Type: models.ColumnText,
			VisibleToUser: true, EditableByUser: true},
	} {
		require.NoError(t, f.svc.CreateColumn(def))
	}

	_, err = f.gw.Apply(ctx, f.supervisor, f.sheet.ID, PatchRowOp{
		RowNumber: 1,
		Data:      models.JSONB{"key": "alpha", "value": "beta"},
	})
	require.NoError(t, err)

	row, err = f.svc.GetRow(f.sheet.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "alpha", row.Data["key"])
	assert.Equal(t, "beta", row.Data["value"])
	assert.Equal(t, "refused", row.Data["status"])
}

func TestGetSchemaOnly(t *testing.T) {
	f := newFixture(t)

	page, err := f.gw.Get(f.supervisor, f.sheet.ID, Query{Limit: -1})
	require.NoError(t, err)
	assert.Len(t, page.Columns, 5)
	assert.Empty(t, page.Rows)
}

func TestGetFiltersForAgent(t *testing.T) {
	f := newFixture(t)

	page, err := f.gw.Get(f.agent, f.sheet.ID, Query{Page: 1, Limit: 50})
	require.NoError(t, err)

	// Hidden columns are absent from the schema entirely.
	keys := make(map[string]ColumnView)
	for _, c := range page.Columns {
		keys[c.DataKey] = c
	}
	assert.Contains(t, keys, "name")
	assert.NotContains(t, keys, "secret")

	// The dial pool arrives masked.
	require.Contains(t, keys, "line")
	assert.Equal(t, []string{"99450******3", "99450******4"}, keys["line"].PhoneNumbers)

	// Rows outside the 1-5 grant are omitted, not disabled.
	require.Len(t, page.Rows, 5)
	for _, row := range page.Rows {
		assert.LessOrEqual(t, row.RowNumber, 5)
		assert.NotContains(t, row.Data, "secret")
		assert.Equal(t, "99450******3", row.Data["line"])

		// Select values resolve to their option.
		status := row.Data["status"].(map[string]interface{})
		assert.Equal(t, "new", status["value"])
		assert.Equal(t, "New", status["label"])
	}
}

func TestGetSupervisorSeesEverything(t *testing.T) {
	f := newFixture(t)

	page, err := f.gw.Get(f.supervisor, f.sheet.ID, Query{Page: 1, Limit: 50})
	require.NoError(t, err)

	assert.Len(t, page.Columns, 5)
	assert.Len(t, page.Rows, 10)
	assert.Equal(t, "994501234563", page.Rows[0].Data["line"])
}

func TestPartnerReadOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	page, err := f.gw.Get(f.partner, f.sheet.ID, Query{Page: 1, Limit: 50})
	require.NoError(t, err)

	// Partners see all rows of assigned workbooks, phones masked.
	assert.Len(t, page.Rows, 10)
	assert.Equal(t, "99450******3", page.Rows[0].Data["line"])

	// Every write, on any visible column, is refused.
	_, err = f.gw.Apply(ctx, f.partner, f.sheet.ID, PatchCellOp{RowNumber: 1, Key: "name", Value: "X"})
	assert.ErrorIs(t, err, database.ErrReadOnlyField)

	// Hidden columns do not exist for the partner.
	_, err = f.gw.Apply(ctx, f.partner, f.sheet.ID, PatchCellOp{RowNumber: 1, Key: "secret", Value: "X"})
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestAgentEditGates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Column marked not editable.
	_, err := f.gw.Apply(ctx, f.agent, f.sheet.ID, PatchCellOp{RowNumber: 2, Key: "score", Value: 99})
	assert.ErrorIs(t, err, database.ErrReadOnlyField)

	// Phone cells are never agent-writable, even with the editable flag.
	_, err = f.gw.Apply(ctx, f.agent, f.sheet.ID, PatchCellOp{RowNumber: 2, Key: "line", Value: "994502223344"})
	assert.ErrorIs(t, err, database.ErrReadOnlyField)

	// Hidden column: not even an error that admits it exists.
	_, err = f.gw.Apply(ctx, f.agent, f.sheet.ID, PatchCellOp{RowNumber: 2, Key: "secret", Value: "X"})
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestSheetAccessCollapsesToNotFound(t *testing.T) {
	f := newFixture(t)

	outsider := newUser(t, f.m, models.RoleAgent)
	_, err := f.gw.Get(outsider, f.sheet.ID, Query{})
	assert.ErrorIs(t, err, database.ErrNotFound)

	strangerSupervisor := newUser(t, f.m, models.RoleSupervisor)
	_, err = f.gw.Get(strangerSupervisor, f.sheet.ID, Query{})
	assert.ErrorIs(t, err, database.ErrNotFound)

	_, err = f.gw.Get(f.admin, uuid.New(), Query{})
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestSchemaMutationsAreManagerOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	def := &models.Column{Name: "Extra", DataKey: "extra", Type: models.ColumnText, VisibleToUser: true}
	_, err := f.gw.Apply(ctx, f.agent, f.sheet.ID, CreateColumnOp{Def: def})
	assert.ErrorIs(t, err, database.ErrForbidden)

	_, err = f.gw.Apply(ctx, f.agent, f.sheet.ID, DeleteRowOp{RowNumber: 1})
	assert.ErrorIs(t, err, database.ErrForbidden)

	_, err = f.gw.Apply(ctx, f.partner, f.sheet.ID, ImportRowsOp{Filename: "leads.csv", Content: []byte("Full Name\nX\n")})
	assert.ErrorIs(t, err, database.ErrForbidden)

	// The supervisor of the project may.
	created, err := f.gw.Apply(ctx, f.supervisor, f.sheet.ID, CreateColumnOp{Def: def})
	require.NoError(t, err)
	col := created.(*models.Column)
	assert.NotEqual(t, uuid.Nil, col.ID)

	_, err = f.gw.Apply(ctx, f.agent, f.sheet.ID, DeleteColumnOp{ColumnID: col.ID})
	assert.ErrorIs(t, err, database.ErrForbidden)

	_, err = f.gw.Apply(ctx, f.supervisor, f.sheet.ID, DeleteColumnOp{ColumnID: col.ID})
	require.NoError(t, err)

	cols, err := f.svc.SheetColumns(f.sheet.ID)
	require.NoError(t, err)
	for _, c := range cols {
		assert.NotEqual(t, col.ID, c.ID, "deleted column still listed")
	}
}

func TestCreateRowThroughGateway(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out, err := f.gw.Apply(ctx, f.admin, f.sheet.ID, CreateRowOp{Data: models.JSONB{"name": "Fresh", "status": "callback"}})
	require.NoError(t, err)
	view := out.(*RowView)
	assert.Equal(t, 11, view.RowNumber)

	// Validation runs on create too.
	_, err = f.gw.Apply(ctx, f.admin, f.sheet.ID, CreateRowOp{Data: models.JSONB{"status": "bogus"}})
	var verr *coltype.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestImportCSV(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	csvContent := "Full Name,Status,Ignored\nAysel,callback,x\nTural,refused,y\n"
	out, err := f.gw.Apply(ctx, f.supervisor, f.sheet.ID, ImportRowsOp{Filename: "leads.csv", Content: []byte(csvContent)})
	require.NoError(t, err)
	result := out.(*ImportResult)
	assert.Equal(t, 2, result.RowsImported)

	row, err := f.svc.GetRow(f.sheet.ID, 12)
	require.NoError(t, err)
	assert.Equal(t, "Tural", row.Data["name"])
	assert.Equal(t, "refused", row.Data["status"])
	assert.NotContains(t, row.Data, "Ignored")
}

func TestImportRejectsWholeFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	before, err := f.m.Rows.Count(f.sheet.ID)
	require.NoError(t, err)

	// Row 2 carries an unknown status; nothing of the file may land.
	csvContent := "Full Name,Status\nAysel,callback\nTural,bogus\n"
	_, err = f.gw.Apply(ctx, f.supervisor, f.sheet.ID, ImportRowsOp{Filename: "leads.csv", Content: []byte(csvContent)})

	var ierr *database.ImportError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, 2, ierr.Row)
	assert.Equal(t, "status", ierr.DataKey)

	after, err := f.m.Rows.Count(f.sheet.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestReplaceAgentRanges(t *testing.T) {
	f := newFixture(t)

	// Agents cannot read or write the grant table.
	_, err := f.gw.SheetPermissions(f.agent, f.sheet.ID)
	assert.ErrorIs(t, err, database.ErrForbidden)

	err = f.gw.ReplaceAgentRanges(f.supervisor, f.sheet.ID, f.agent.ID, []models.AgentRowPermission{
		{SheetID: f.sheet.ID, AgentID: f.agent.ID, StartRow: 6, EndRow: 8},
	})
	require.NoError(t, err)

	page, err := f.gw.Get(f.agent, f.sheet.ID, Query{Page: 1, Limit: 50})
	require.NoError(t, err)
	require.Len(t, page.Rows, 3)
	assert.Equal(t, 6, page.Rows[0].RowNumber)
	assert.Equal(t, 8, page.Rows[2].RowNumber)

	perms, err := f.gw.SheetPermissions(f.supervisor, f.sheet.ID)
	require.NoError(t, err)
	require.Len(t, perms, 1)
	assert.Equal(t, 6, perms[0].StartRow)
}
