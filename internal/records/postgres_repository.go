package records

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// recordsDB is the subset of pgxpool.Pool used by PostgresRepository.
type recordsDB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// execQuerier is satisfied by both the pool and a transaction.
type execQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const recordColumns = `id, sync_id, patient_name, folder_number, to_char(review_date, 'YYYY-MM-DD'),
	hospital_name, service_type, service_details, fee::float8, notes, created_at`

const upsertPatientSQL = `
	INSERT INTO patients (folder_number, patient_name, first_visit)
	VALUES ($1, $2, $3)
	ON CONFLICT (folder_number) DO UPDATE
	SET patient_name = EXCLUDED.patient_name,
	    first_visit = LEAST(patients.first_visit, EXCLUDED.first_visit)
`

const insertPatientIfAbsentSQL = `
	INSERT INTO patients (folder_number, patient_name, first_visit)
	VALUES ($1, $2, NULLIF($3, '')::date)
	ON CONFLICT (folder_number) DO NOTHING
`

const insertRecordWithIDSQL = `
	INSERT INTO records (id, sync_id, patient_name, folder_number, review_date, hospital_name,
		service_type, service_details, fee, notes, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT DO NOTHING
`

const resetSequenceSQL = `
	SELECT setval(pg_get_serial_sequence('records', 'id'), COALESCE((SELECT MAX(id) FROM records), 0) + 1, false)
`

// PostgresRepository stores records and patients in the relational database.
type PostgresRepository struct {
	db  recordsDB
	now func() time.Time
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("records: pgx pool required")
	}
	return NewPostgresRepositoryWithDB(pool)
}

// NewPostgresRepositoryWithDB allows injecting a mock database for testing.
func NewPostgresRepositoryWithDB(db recordsDB) *PostgresRepository {
	return &PostgresRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var fee float64
	if err := row.Scan(
		&rec.ID,
		&rec.SyncID,
		&rec.PatientName,
		&rec.FolderNumber,
		&rec.ReviewDate,
		&rec.HospitalName,
		&rec.ServiceType,
		&rec.ServiceDetails,
		&fee,
		&rec.Notes,
		&rec.CreatedAt,
	); err != nil {
		return Record{}, err
	}
	rec.Fee = Amount(fee)
	return rec, nil
}

// CreateRecord upserts the patient and inserts the record in one transaction.
// Replaying a sync id returns the row stored by the first call.
func (r *PostgresRepository) CreateRecord(ctx context.Context, in RecordInput) (*Record, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if in.SyncID == "" {
		in.SyncID = uuid.NewString()
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("records: begin create: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, upsertPatientSQL, in.FolderNumber, in.PatientName, in.ReviewDate); err != nil {
		return nil, fmt.Errorf("records: upsert patient: %w", err)
	}

	query := `
		INSERT INTO records (sync_id, patient_name, folder_number, review_date, hospital_name,
			service_type, service_details, fee, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (sync_id) DO NOTHING
		RETURNING id, created_at
	`
	rec := Record{SyncID: in.SyncID}
	in.Apply(&rec)
	err = tx.QueryRow(ctx, query,
		in.SyncID,
		in.PatientName,
		in.FolderNumber,
		in.ReviewDate,
		in.HospitalName,
		in.ServiceType,
		in.ServiceDetails,
		float64(in.Fee),
		in.Notes,
	).Scan(&rec.ID, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		existing, err := scanRecord(tx.QueryRow(ctx, `SELECT `+recordColumns+` FROM records WHERE sync_id = $1`, in.SyncID))
		if err != nil {
			return nil, fmt.Errorf("records: select by sync id: %w", err)
		}
		rec = existing
	} else if err != nil {
		return nil, fmt.Errorf("records: insert failed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("records: commit create: %w", err)
	}
	return &rec, nil
}

// GetRecord fetches a record by id.
func (r *PostgresRepository) GetRecord(ctx context.Context, id int64) (*Record, error) {
	rec, err := scanRecord(r.db.QueryRow(ctx, `SELECT `+recordColumns+` FROM records WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("records: select failed: %w", err)
	}
	return &rec, nil
}

// ListRecords returns every matching row ordered by review date then
// creation time, newest first.
func (r *PostgresRepository) ListRecords(ctx context.Context, filter Filter) ([]Record, error) {
	var clauses []string
	var args []any
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filter.Date != "" {
		add("review_date = $%d", filter.Date)
	}
	if filter.From != "" {
		add("review_date >= $%d", filter.From)
	}
	if filter.To != "" {
		add("review_date <= $%d", filter.To)
	}
	if filter.ServiceType != "" {
		add("service_type = $%d", filter.ServiceType)
	}
	if filter.Hospital != "" {
		add("hospital_name = $%d", filter.Hospital)
	}
	if filter.FolderNumber != "" {
		add("folder_number = $%d", filter.FolderNumber)
	}

	query := `SELECT ` + recordColumns + ` FROM records`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY review_date DESC, created_at DESC, id DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("records: list failed: %w", err)
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("records: scan failed: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("records: list rows: %w", err)
	}
	return out, nil
}

// UpdateRecord replaces the mutable fields of a record by id.
func (r *PostgresRepository) UpdateRecord(ctx context.Context, id int64, in RecordInput) (*Record, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("records: begin update: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, upsertPatientSQL, in.FolderNumber, in.PatientName, in.ReviewDate); err != nil {
		return nil, fmt.Errorf("records: upsert patient: %w", err)
	}

	query := `
		UPDATE records
		SET patient_name = $2, folder_number = $3, review_date = $4, hospital_name = $5,
			service_type = $6, service_details = $7, fee = $8, notes = $9
		WHERE id = $1
		RETURNING ` + recordColumns
	rec, err := scanRecord(tx.QueryRow(ctx, query,
		id,
		in.PatientName,
		in.FolderNumber,
		in.ReviewDate,
		in.HospitalName,
		in.ServiceType,
		in.ServiceDetails,
		float64(in.Fee),
		in.Notes,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("records: update failed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("records: commit update: %w", err)
	}
	return &rec, nil
}

// DeleteRecord removes a record by id.
func (r *PostgresRepository) DeleteRecord(ctx context.Context, id int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM records WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("records: delete failed: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListPatients returns the patient collection keyed by folder number.
func (r *PostgresRepository) ListPatients(ctx context.Context) (map[string]Patient, error) {
	rows, err := r.db.Query(ctx, `
		SELECT folder_number, patient_name, COALESCE(to_char(first_visit, 'YYYY-MM-DD'), '')
		FROM patients
		ORDER BY patient_name
	`)
	if err != nil {
		return nil, fmt.Errorf("records: list patients: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Patient)
	for rows.Next() {
		var p Patient
		if err := rows.Scan(&p.FolderNumber, &p.PatientName, &p.FirstVisit); err != nil {
			return nil, fmt.Errorf("records: scan patient: %w", err)
		}
		out[p.FolderNumber] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("records: patient rows: %w", err)
	}
	return out, nil
}

// MergeDataset inserts patients and records that are not already stored,
// keeping imported record ids.
func (r *PostgresRepository) MergeDataset(ctx context.Context, data Dataset) (MergeResult, error) {
	var result MergeResult

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return result, fmt.Errorf("records: begin merge: %w", err)
	}
	defer tx.Rollback(ctx)

	for folder, p := range data.Patients {
		added, err := r.insertPatientIfAbsent(ctx, tx, folder, p)
		if err != nil {
			return MergeResult{}, err
		}
		if added {
			result.PatientsAdded++
		}
	}
	for _, rec := range data.Records {
		added, err := r.insertPatientIfAbsent(ctx, tx, rec.FolderNumber, Patient{
			PatientName: rec.PatientName,
			FirstVisit:  rec.ReviewDate,
		})
		if err != nil {
			return MergeResult{}, err
		}
		if added {
			result.PatientsAdded++
		}
		inserted, err := r.insertRecordWithID(ctx, tx, rec)
		if err != nil {
			return MergeResult{}, err
		}
		if inserted {
			result.RecordsAdded++
		}
	}
	if _, err := tx.Exec(ctx, resetSequenceSQL); err != nil {
		return MergeResult{}, fmt.Errorf("records: reset sequence: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return MergeResult{}, fmt.Errorf("records: commit merge: %w", err)
	}
	return result, nil
}

// ReplaceDataset truncates both tables and loads data in one transaction.
func (r *PostgresRepository) ReplaceDataset(ctx context.Context, data Dataset) error {
	data = Replace(data)

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("records: begin replace: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `TRUNCATE TABLE records, patients RESTART IDENTITY`); err != nil {
		return fmt.Errorf("records: truncate: %w", err)
	}
	for folder, p := range data.Patients {
		if _, err := r.insertPatientIfAbsent(ctx, tx, folder, p); err != nil {
			return err
		}
	}
	for _, rec := range data.Records {
		if _, err := r.insertRecordWithID(ctx, tx, rec); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(ctx, resetSequenceSQL); err != nil {
		return fmt.Errorf("records: reset sequence: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("records: commit replace: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func (r *PostgresRepository) insertPatientIfAbsent(ctx context.Context, db execQuerier, folder string, p Patient) (bool, error) {
	if folder == "" {
		folder = p.FolderNumber
	}
	tag, err := db.Exec(ctx, insertPatientIfAbsentSQL, folder, p.PatientName, p.FirstVisit)
	if err != nil {
		return false, fmt.Errorf("records: insert patient %s: %w", folder, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresRepository) insertRecordWithID(ctx context.Context, db execQuerier, rec Record) (bool, error) {
	if rec.SyncID == "" {
		rec.SyncID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.now()
	}
	if rec.ServiceDetails == "" {
		rec.ServiceDetails = rec.ServiceType
	}
	tag, err := db.Exec(ctx, insertRecordWithIDSQL,
		rec.ID,
		rec.SyncID,
		rec.PatientName,
		rec.FolderNumber,
		rec.ReviewDate,
		rec.HospitalName,
		rec.ServiceType,
		rec.ServiceDetails,
		float64(rec.Fee),
		rec.Notes,
		rec.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("records: insert record %d: %w", rec.ID, err)
	}
	return tag.RowsAffected() > 0, nil
}
