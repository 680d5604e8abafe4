package records

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

var recordRowColumns = []string{
	"id", "sync_id", "patient_name", "folder_number", "review_date",
	"hospital_name", "service_type", "service_details", "fee", "notes", "created_at",
}

func newMockRepo(t *testing.T) (*PostgresRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	return NewPostgresRepositoryWithDB(mock), mock
}

func TestPostgresRepository_CreateRecord(t *testing.T) {
	repo, mock := newMockRepo(t)
	createdAt := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO patients").
		WithArgs("A1", "Jane Roe", "2024-01-10").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("INSERT INTO records").
		WithArgs(pgxmock.AnyArg(), "Jane Roe", "A1", "2024-01-10", "General", "Consultation", "Consultation", float64(150), "").
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), createdAt))
	mock.ExpectCommit()

	rec, err := repo.CreateRecord(context.Background(), validInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.ID != 7 || !rec.CreatedAt.Equal(createdAt) {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.SyncID == "" {
		t.Fatalf("expected generated sync id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresRepository_CreateRecordReplayReturnsExisting(t *testing.T) {
	repo, mock := newMockRepo(t)
	createdAt := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	syncID := "0d9f5c4e-1111-4000-8000-000000000001"

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO patients").
		WithArgs("A1", "Jane Roe", "2024-01-10").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("INSERT INTO records").
		WithArgs(syncID, "Jane Roe", "A1", "2024-01-10", "General", "Consultation", "Consultation", float64(150), "").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("FROM records WHERE sync_id").
		WithArgs(syncID).
		WillReturnRows(pgxmock.NewRows(recordRowColumns).
			AddRow(int64(3), syncID, "Jane Roe", "A1", "2024-01-10", "General", "Consultation", "Consultation", float64(150), "", createdAt))
	mock.ExpectCommit()

	in := validInput()
	in.SyncID = syncID
	rec, err := repo.CreateRecord(context.Background(), in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.ID != 3 {
		t.Fatalf("expected existing id 3, got %d", rec.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresRepository_GetRecordNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("FROM records WHERE id").
		WithArgs(int64(9)).
		WillReturnError(pgx.ErrNoRows)

	if _, err := repo.GetRecord(context.Background(), 9); err != ErrRecordNotFound {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestPostgresRepository_ListRecordsWithFilter(t *testing.T) {
	repo, mock := newMockRepo(t)
	createdAt := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM records WHERE review_date >= \$1 AND service_type = \$2 ORDER BY review_date DESC`).
		WithArgs("2024-01-01", "NPWT").
		WillReturnRows(pgxmock.NewRows(recordRowColumns).
			AddRow(int64(2), "s-2", "John", "B2", "2024-01-12", "City", "NPWT", "NPWT 10x10", float64(80.5), "", createdAt).
			AddRow(int64(1), "s-1", "Jane", "A1", "2024-01-10", "General", "NPWT", "NPWT", float64(60), "dressing", createdAt))

	recs, err := repo.ListRecords(context.Background(), Filter{From: "2024-01-01", ServiceType: "NPWT"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 2 || recs[0].Fee != 80.5 || recs[1].Notes != "dressing" {
		t.Fatalf("unexpected records %+v", recs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresRepository_UpdateRecordNotFoundRollsBack(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO patients").
		WithArgs("A1", "Jane Roe", "2024-01-10").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("UPDATE records").
		WithArgs(int64(44), "Jane Roe", "A1", "2024-01-10", "General", "Consultation", "Consultation", float64(150), "").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	if _, err := repo.UpdateRecord(context.Background(), 44, validInput()); err != ErrRecordNotFound {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresRepository_DeleteMissingReturnsFalse(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("DELETE FROM records").
		WithArgs(int64(5)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	deleted, err := repo.DeleteRecord(context.Background(), 5)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted {
		t.Fatalf("expected deleted=false for missing id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresRepository_ListPatients(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("FROM patients").
		WillReturnRows(pgxmock.NewRows([]string{"folder_number", "patient_name", "first_visit"}).
			AddRow("A1", "Jane", "2024-01-05").
			AddRow("B2", "John", ""))

	patients, err := repo.ListPatients(context.Background())
	if err != nil {
		t.Fatalf("list patients: %v", err)
	}
	if len(patients) != 2 || patients["A1"].FirstVisit != "2024-01-05" {
		t.Fatalf("unexpected patients %+v", patients)
	}
}

func TestPostgresRepository_MergeDatasetCountsInserts(t *testing.T) {
	repo, mock := newMockRepo(t)
	createdAt := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)
	rec := Record{
		ID: 10, SyncID: "s-10", PatientName: "John", FolderNumber: "B2", ReviewDate: "2024-02-01",
		HospitalName: "City", ServiceType: "Consultation", ServiceDetails: "Consultation", Fee: 50, CreatedAt: createdAt,
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO patients").
		WithArgs("B2", "John", "2024-02-01").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO patients").
		WithArgs("B2", "John", "2024-02-01").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectExec("INSERT INTO records").
		WithArgs(int64(10), "s-10", "John", "B2", "2024-02-01", "City", "Consultation", "Consultation", float64(50), "", createdAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("SELECT setval").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectCommit()

	result, err := repo.MergeDataset(context.Background(), Dataset{
		Records:  []Record{rec},
		Patients: map[string]Patient{"B2": {FolderNumber: "B2", PatientName: "John", FirstVisit: "2024-02-01"}},
	})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if result != (MergeResult{RecordsAdded: 1, PatientsAdded: 1}) {
		t.Fatalf("unexpected result %+v", result)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresRepository_ReplaceDatasetTruncatesFirst(t *testing.T) {
	repo, mock := newMockRepo(t)
	createdAt := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)
	rec := Record{
		ID: 4, SyncID: "s-4", PatientName: "Ann", FolderNumber: "C3", ReviewDate: "2024-02-02",
		HospitalName: "General", ServiceType: "NPWT", ServiceDetails: "NPWT", Fee: 75, Notes: "n", CreatedAt: createdAt,
	}

	mock.ExpectBegin()
	mock.ExpectExec("TRUNCATE TABLE records, patients").
		WillReturnResult(pgxmock.NewResult("TRUNCATE", 0))
	mock.ExpectExec("INSERT INTO patients").
		WithArgs("C3", "Ann", "2024-02-02").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO records").
		WithArgs(int64(4), "s-4", "Ann", "C3", "2024-02-02", "General", "NPWT", "NPWT", float64(75), "n", createdAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("SELECT setval").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectCommit()

	if err := repo.ReplaceDataset(context.Background(), Dataset{Records: []Record{rec}}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
