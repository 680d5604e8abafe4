package records

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/practice-records/internal/observability/metrics"
	"github.com/wolfman30/practice-records/pkg/logging"
)

var recordsTracer = otel.Tracer("practice.internal.records")

// Auditor records mutations for the practice's audit trail.
type Auditor interface {
	LogRecordChange(ctx context.Context, action string, recordIDs []int64, folderNumber string) error
}

// Service applies audit, metrics and tracing around a Repository.
type Service struct {
	repo    Repository
	audit   Auditor
	metrics *metrics.RecordsMetrics
	logger  *logging.Logger
}

// NewService wires a records service. audit and m may be nil.
func NewService(repo Repository, audit Auditor, m *metrics.RecordsMetrics, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		repo:    repo,
		audit:   audit,
		metrics: m,
		logger:  logger,
	}
}

func (s *Service) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := recordsTracer.Start(ctx, "records."+op, trace.WithAttributes(attrs...))
	started := time.Now()
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		s.metrics.ObserveOperation(op, err, time.Since(started).Seconds())
	}
}

func (s *Service) logAudit(ctx context.Context, action string, ids []int64, folder string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.LogRecordChange(ctx, action, ids, folder); err != nil {
		s.logger.Warn("failed to write audit event", "error", err, "action", action)
	}
}

// Create stores a new record and upserts its patient.
func (s *Service) Create(ctx context.Context, in RecordInput) (rec *Record, err error) {
	ctx, done := s.start(ctx, "create", attribute.String("folder_number", in.FolderNumber))
	defer func() { done(err) }()

	rec, err = s.repo.CreateRecord(ctx, in)
	if err != nil {
		return nil, err
	}
	s.logger.Info("record created", "record_id", rec.ID, "folder_number", rec.FolderNumber, "review_date", rec.ReviewDate)
	s.logAudit(ctx, "record.created", []int64{rec.ID}, rec.FolderNumber)
	return rec, nil
}

// Get fetches one record.
func (s *Service) Get(ctx context.Context, id int64) (rec *Record, err error) {
	ctx, done := s.start(ctx, "get", attribute.Int64("record_id", id))
	defer func() { done(err) }()
	return s.repo.GetRecord(ctx, id)
}

// List returns filtered records, newest first.
func (s *Service) List(ctx context.Context, filter Filter) (recs []Record, err error) {
	ctx, done := s.start(ctx, "list")
	defer func() { done(err) }()

	if err = filter.Validate(); err != nil {
		return nil, err
	}
	return s.repo.ListRecords(ctx, filter)
}

// ListRecords satisfies the lister interfaces used by billing and backup.
func (s *Service) ListRecords(ctx context.Context, filter Filter) ([]Record, error) {
	return s.List(ctx, filter)
}

// Update replaces a record's mutable fields.
func (s *Service) Update(ctx context.Context, id int64, in RecordInput) (rec *Record, err error) {
	ctx, done := s.start(ctx, "update", attribute.Int64("record_id", id))
	defer func() { done(err) }()

	rec, err = s.repo.UpdateRecord(ctx, id, in)
	if err != nil {
		return nil, err
	}
	s.logger.Info("record updated", "record_id", rec.ID, "folder_number", rec.FolderNumber)
	s.logAudit(ctx, "record.updated", []int64{rec.ID}, rec.FolderNumber)
	return rec, nil
}

// Delete removes a record; deleting a missing id succeeds with false.
func (s *Service) Delete(ctx context.Context, id int64) (deleted bool, err error) {
	ctx, done := s.start(ctx, "delete", attribute.Int64("record_id", id))
	defer func() { done(err) }()

	deleted, err = s.repo.DeleteRecord(ctx, id)
	if err != nil {
		return false, err
	}
	if deleted {
		s.logger.Info("record deleted", "record_id", id)
		s.logAudit(ctx, "record.deleted", []int64{id}, "")
	}
	return deleted, nil
}

// Patients returns the patient collection keyed by folder number.
func (s *Service) Patients(ctx context.Context) (patients map[string]Patient, err error) {
	ctx, done := s.start(ctx, "list_patients")
	defer func() { done(err) }()
	return s.repo.ListPatients(ctx)
}

// ListPatients satisfies the dataset source interface used by backup.
func (s *Service) ListPatients(ctx context.Context) (map[string]Patient, error) {
	return s.Patients(ctx)
}

// History returns all visits for one folder, newest first.
func (s *Service) History(ctx context.Context, folderNumber string) ([]Record, error) {
	return s.List(ctx, Filter{FolderNumber: folderNumber})
}

// Merge imports records and patients that are not already stored.
func (s *Service) Merge(ctx context.Context, data Dataset) (result MergeResult, err error) {
	ctx, done := s.start(ctx, "merge", attribute.Int("incoming_records", len(data.Records)))
	defer func() { done(err) }()

	result, err = s.repo.MergeDataset(ctx, data)
	if err != nil {
		return MergeResult{}, err
	}
	s.metrics.ObserveImport("merge", result.RecordsAdded, result.PatientsAdded)
	s.logger.Info("backup merged", "records_added", result.RecordsAdded, "patients_added", result.PatientsAdded)
	s.logAudit(ctx, "backup.merged", nil, "")
	return result, nil
}

// Replace overwrites both collections.
func (s *Service) Replace(ctx context.Context, data Dataset) (err error) {
	ctx, done := s.start(ctx, "replace", attribute.Int("incoming_records", len(data.Records)))
	defer func() { done(err) }()

	if err = s.repo.ReplaceDataset(ctx, data); err != nil {
		return err
	}
	s.metrics.ObserveImport("replace", len(data.Records), len(data.Patients))
	s.logger.Info("backup restored", "records", len(data.Records), "patients", len(data.Patients))
	s.logAudit(ctx, "backup.replaced", nil, "")
	return nil
}

// Ping checks the backing store.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}
