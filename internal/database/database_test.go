package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"

	"callgrid/internal/models"
)

// mustStartPostgresContainer starts a postgres container and returns a
// teardown function, a connection string, and an error.
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
	teardown, testDbString, err := mustStartPostgresContainer()
	if err != nil {
		log.Fatalf("could not start postgres container for tests: %v", err)
	}

	if err := os.Setenv("DB_STRING", testDbString); err != nil {
		log.Fatalf("failed to set DB_STRING for tests: %v", err)
	}
	dbInstance = nil

	// Apply the SQL migrations once for the whole suite.
	gormDB, err := models.OpenDB(testDbString)
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

func TestNew(t *testing.T) {
	srv := New()
	if srv == nil {
		t.Fatal("New() returned nil")
	}
}

func TestHealth(t *testing.T) {
	srv := New()

	stats := srv.Health()

	if stats["status"] != "up" {
		t.Fatalf("expected status to be up, got %s (error: %s)", stats["status"], stats["error"])
	}
	if errMsg, ok := stats["error"]; ok {
		t.Fatalf("expected error not to be present, got: %s", errMsg)
	}
}

// makeSheet creates a full company/project/workbook/sheet chain so row
// and column tests run against an isolated sheet.
func makeSheet(t *testing.T, srv Service) *models.Sheet {
	t.Helper()
	m := srv.Models()

	company := &models.Company{Name: "Test Co", Domain: fmt.Sprintf("%s.example.com", uuid.NewString())}
	if err := m.Companies.Create(company); err != nil {
		t.Fatalf("failed to create company: %v", err)
	}

	project := &models.Project{
		CompanyID: company.ID,
		Name:      "Test Project",
		Type:      models.ProjectOutbound,
		Direction: models.DirectionCall,
		Campaign:  models.CampaignTelesales,
	}
	if err := m.Projects.Create(project); err != nil {
		t.Fatalf("failed to create project: %v", err)
	}

	workbook := &models.Workbook{ProjectID: project.ID, Name: "Test Workbook"}
	if err := m.Workbooks.Create(workbook); err != nil {
		t.Fatalf("failed to create workbook: %v", err)
	}

	sheet := &models.Sheet{WorkbookID: workbook.ID, Name: "Test Sheet"}
	if err := m.Sheets.Create(sheet); err != nil {
		t.Fatalf("failed to create sheet: %v", err)
	}
	if sheet.ProjectID != project.ID {
		t.Fatalf("expected sheet to inherit project id %s, got %s", project.ID, sheet.ProjectID)
	}
	return sheet
}

func TestCreateColumnDuplicateDataKey(t *testing.T) {
	srv := New()
	sheet := makeSheet(t, srv)

	first := &models.Column{SheetID: sheet.ID, Name: "Full Name", DataKey: "full_name", Type: models.ColumnText}
	if err := srv.CreateColumn(first); err != nil {
		t.Fatalf("first CreateColumn failed: %v", err)
	}
	if first.DisplayOrder != 1 {
		t.Errorf("expected display order 1, got %d", first.DisplayOrder)
	}

	dup := &models.Column{SheetID: sheet.ID, Name: "Name Again", DataKey: "full_name", Type: models.ColumnText}
	if err := srv.CreateColumn(dup); !errors.Is(err, ErrDuplicateDataKey) {
		t.Fatalf("expected ErrDuplicateDataKey, got %v", err)
	}
}

func TestRowNumberingSkipsDeleted(t *testing.T) {
	srv := New()
	sheet := makeSheet(t, srv)

	for i := 0; i < 4; i++ {
		if _, err := srv.CreateRow(sheet.ID, models.JSONB{"n": float64(i)}); err != nil {
			t.Fatalf("CreateRow %d failed: %v", i, err)
		}
	}

	if err := srv.DeleteRow(sheet.ID, 3); err != nil {
		t.Fatalf("DeleteRow failed: %v", err)
	}

	// Numbers {1,2,4} remain; the next row takes 5, never reusing 3.
	row, err := srv.CreateRow(sheet.ID, nil)
	if err != nil {
		t.Fatalf("CreateRow after delete failed: %v", err)
	}
	if row.RowNumber != 5 {
		t.Fatalf("expected row number 5, got %d", row.RowNumber)
	}

	if _, err := srv.GetRow(sheet.ID, 3); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for deleted row, got %v", err)
	}
}

func TestCreateRowRequiredField(t *testing.T) {
	srv := New()
	sheet := makeSheet(t, srv)

	col := &models.Column{SheetID: sheet.ID, Name: "Phone Owner", DataKey: "owner", Type: models.ColumnText, IsRequired: true}
	if err := srv.CreateColumn(col); err != nil {
		t.Fatalf("CreateColumn failed: %v", err)
	}

	if _, err := srv.CreateRow(sheet.ID, models.JSONB{}); !errors.Is(err, ErrMissingRequiredField) {
		t.Fatalf("expected ErrMissingRequiredField, got %v", err)
	}
	if _, err := srv.CreateRow(sheet.ID, models.JSONB{"owner": "Leyla"}); err != nil {
		t.Fatalf("CreateRow with required field failed: %v", err)
	}
}

func TestPatchRowMergesAndClears(t *testing.T) {
	srv := New()
	sheet := makeSheet(t, srv)

	row, err := srv.CreateRow(sheet.ID, models.JSONB{"a": "one", "b": "two"})
	if err != nil {
		t.Fatalf("CreateRow failed: %v", err)
	}

	patched, err := srv.PatchRow(sheet.ID, row.RowNumber, models.JSONB{"b": "three", "c": "four"})
	if err != nil {
		t.Fatalf("PatchRow failed: %v", err)
	}
	if patched.Data["a"] != "one" || patched.Data["b"] != "three" || patched.Data["c"] != "four" {
		t.Fatalf("unexpected merged data: %v", patched.Data)
	}

	// nil value removes the key.
	patched, err = srv.PatchRow(sheet.ID, row.RowNumber, models.JSONB{"a": nil})
	if err != nil {
		t.Fatalf("PatchRow with nil failed: %v", err)
	}
	if _, ok := patched.Data["a"]; ok {
		t.Fatalf("expected key a to be cleared, got %v", patched.Data)
	}
}

func TestPhonePoolIntegrity(t *testing.T) {
	srv := New()
	sheet := makeSheet(t, srv)

	col := &models.Column{
		SheetID:      sheet.ID,
		Name:         "Line",
		DataKey:      "line",
		Type:         models.ColumnPhone,
		PhoneNumbers: models.StringList{"994501234563", "994502223344"},
	}
	if err := srv.CreateColumn(col); err != nil {
		t.Fatalf("CreateColumn failed: %v", err)
	}

	if _, err := srv.CreateRow(sheet.ID, models.JSONB{"line": "994501234563"}); err != nil {
		t.Fatalf("CreateRow failed: %v", err)
	}

	// Removing a referenced number from the pool must fail.
	shrunk := models.StringList{"994502223344"}
	if _, err := srv.UpdateColumn(sheet.ID, col.ID, ColumnPatch{PhoneNumbers: &shrunk}); !errors.Is(err, ErrPoolInUse) {
		t.Fatalf("expected ErrPoolInUse, got %v", err)
	}

	// Removing an unreferenced number is fine.
	shrunk = models.StringList{"994501234563"}
	updated, err := srv.UpdateColumn(sheet.ID, col.ID, ColumnPatch{PhoneNumbers: &shrunk})
	if err != nil {
		t.Fatalf("UpdateColumn failed: %v", err)
	}
	if len(updated.PhoneNumbers) != 1 {
		t.Fatalf("expected pool of 1, got %v", updated.PhoneNumbers)
	}

	// Changing the type away from phone while a value references the
	// pool must also fail.
	text := models.ColumnText
	if _, err := srv.UpdateColumn(sheet.ID, col.ID, ColumnPatch{Type: &text}); !errors.Is(err, ErrPoolInUse) {
		t.Fatalf("expected ErrPoolInUse on type change, got %v", err)
	}
}

func TestUpdateColumnOptionsOnNonSelect(t *testing.T) {
	srv := New()
	sheet := makeSheet(t, srv)

	col := &models.Column{SheetID: sheet.ID, Name: "Note", DataKey: "note", Type: models.ColumnText}
	if err := srv.CreateColumn(col); err != nil {
		t.Fatalf("CreateColumn failed: %v", err)
	}

	opts := models.SelectOptions{{Value: "a", Label: "A"}}
	if _, err := srv.UpdateColumn(sheet.ID, col.ID, ColumnPatch{Options: &opts}); !errors.Is(err, ErrInvalidOptions) {
		t.Fatalf("expected ErrInvalidOptions, got %v", err)
	}
}

func TestImportRowsAtomicNumbering(t *testing.T) {
	srv := New()
	sheet := makeSheet(t, srv)

	if _, err := srv.CreateRow(sheet.ID, models.JSONB{"seed": true}); err != nil {
		t.Fatalf("CreateRow failed: %v", err)
	}

	batch := make([]models.JSONB, 10)
	for i := range batch {
		batch[i] = models.JSONB{"i": float64(i)}
	}
	n, err := srv.ImportRows(sheet.ID, batch)
	if err != nil {
		t.Fatalf("ImportRows failed: %v", err)
	}
	if n != 10 {
		t.Fatalf("expected 10 rows imported, got %d", n)
	}

	rows, err := srv.ListRows(sheet.ID, 1, 50, 0)
	if err != nil {
		t.Fatalf("ListRows failed: %v", err)
	}
	if len(rows) != 11 {
		t.Fatalf("expected 11 rows, got %d", len(rows))
	}
	for i, row := range rows {
		if row.RowNumber != i+1 {
			t.Fatalf("expected sequential numbering, got %d at index %d", row.RowNumber, i)
		}
	}
}

func TestListRowsPagination(t *testing.T) {
	srv := New()
	sheet := makeSheet(t, srv)

	batch := make([]models.JSONB, 25)
	for i := range batch {
		batch[i] = models.JSONB{"i": float64(i)}
	}
	if _, err := srv.ImportRows(sheet.ID, batch); err != nil {
		t.Fatalf("ImportRows failed: %v", err)
	}

	page2, err := srv.ListRows(sheet.ID, 2, 10, 0)
	if err != nil {
		t.Fatalf("ListRows page 2 failed: %v", err)
	}
	if len(page2) != 10 || page2[0].RowNumber != 11 {
		t.Fatalf("expected rows 11-20, got %d rows starting at %d", len(page2), page2[0].RowNumber)
	}

	// skip shifts the window under the page offset.
	skipped, err := srv.ListRows(sheet.ID, 1, 10, 3)
	if err != nil {
		t.Fatalf("ListRows with skip failed: %v", err)
	}
	if len(skipped) != 10 || skipped[0].RowNumber != 4 {
		t.Fatalf("expected rows 4-13, got %d rows starting at %d", len(skipped), skipped[0].RowNumber)
	}
}

func TestListRowsUnknownSheet(t *testing.T) {
	srv := New()

	if _, err := srv.ListRows(uuid.New(), 1, 10, 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSheetGoneAfterParentDeleted(t *testing.T) {
	srv := New()
	sheet := makeSheet(t, srv)

	if _, err := srv.GetSheet(sheet.ID); err != nil {
		t.Fatalf("failed to get sheet: %v", err)
	}

	if err := srv.Models().Projects.Delete(sheet.ProjectID); err != nil {
		t.Fatalf("failed to delete project: %v", err)
	}

	// Removing the project takes the whole subtree out of reach even
	// though the sheet row itself was never touched.
	if _, err := srv.GetSheet(sheet.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after project delete, got %v", err)
	}
	if _, err := srv.ListRows(sheet.ID, 1, 10, 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound listing rows, got %v", err)
	}
	if _, err := srv.Models().Workbooks.Get(sheet.WorkbookID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected workbook hidden, got %v", err)
	}

	deleted := makeSheet(t, srv)
	if err := srv.Models().Workbooks.Delete(deleted.WorkbookID); err != nil {
		t.Fatalf("failed to delete workbook: %v", err)
	}
	if _, err := srv.GetSheet(deleted.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after workbook delete, got %v", err)
	}
}

func TestReorderColumns(t *testing.T) {
	srv := New()
	sheet := makeSheet(t, srv)

	var ids []uuid.UUID
	for _, key := range []string{"a", "b", "c"} {
		col := &models.Column{SheetID: sheet.ID, Name: key, DataKey: key, Type: models.ColumnText}
		if err := srv.CreateColumn(col); err != nil {
			t.Fatalf("CreateColumn %s failed: %v", key, err)
		}
		ids = append(ids, col.ID)
	}

	// Move c first; a is unlisted and falls to the end.
	if err := srv.ReorderColumns(sheet.ID, []uuid.UUID{ids[2], ids[1]}); err != nil {
		t.Fatalf("ReorderColumns failed: %v", err)
	}

	cols, err := srv.SheetColumns(sheet.ID)
	if err != nil {
		t.Fatalf("SheetColumns failed: %v", err)
	}
	got := []string{cols[0].DataKey, cols[1].DataKey, cols[2].DataKey}
	want := []string{"c", "b", "a"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}

	if err := srv.ReorderColumns(sheet.ID, []uuid.UUID{uuid.New()}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown column id, got %v", err)
	}
}
