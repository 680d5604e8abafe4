package backup

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/practice-records/internal/records"
	"github.com/wolfman30/practice-records/pkg/logging"
)

// Target is a dataset that can be exported and restored. *records.Service
// satisfies it.
type Target interface {
	ListRecords(ctx context.Context, filter records.Filter) ([]records.Record, error)
	ListPatients(ctx context.Context) (map[string]records.Patient, error)
	Merge(ctx context.Context, data records.Dataset) (records.MergeResult, error)
	Replace(ctx context.Context, data records.Dataset) error
}

// Service exports and imports backups against a Target.
type Service struct {
	target  Target
	archive *Archive
	logger  *logging.Logger
	now     func() time.Time
}

// NewService wires a backup service. archive may be nil.
func NewService(target Target, archive *Archive, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{target: target, archive: archive, logger: logger, now: time.Now}
}

// Export snapshots both collections.
func (s *Service) Export(ctx context.Context) (File, error) {
	recs, err := s.target.ListRecords(ctx, records.Filter{})
	if err != nil {
		return File{}, fmt.Errorf("backup: export records: %w", err)
	}
	patients, err := s.target.ListPatients(ctx)
	if err != nil {
		return File{}, fmt.Errorf("backup: export patients: %w", err)
	}
	return NewFile(records.Dataset{Records: recs, Patients: patients}, s.now()), nil
}

// Import merges or replaces according to req.Merge.
func (s *Service) Import(ctx context.Context, req ImportRequest) (ImportResult, error) {
	data := req.Dataset()
	if req.Merge {
		added, err := s.target.Merge(ctx, data)
		if err != nil {
			return ImportResult{}, fmt.Errorf("backup: merge: %w", err)
		}
		return ImportResult{
			Mode:          "merge",
			RecordsAdded:  added.RecordsAdded,
			PatientsAdded: added.PatientsAdded,
			Message:       fmt.Sprintf("Merged successfully: %d records, %d patients added", added.RecordsAdded, added.PatientsAdded),
		}, nil
	}
	if err := s.target.Replace(ctx, data); err != nil {
		return ImportResult{}, fmt.Errorf("backup: replace: %w", err)
	}
	return ImportResult{
		Mode:          "replace",
		RecordsAdded:  len(data.Records),
		PatientsAdded: len(data.Patients),
		Message:       fmt.Sprintf("Restored successfully: %d records, %d patients", len(data.Records), len(data.Patients)),
	}, nil
}

// ArchiveNow exports and uploads a backup, returning the object key.
func (s *Service) ArchiveNow(ctx context.Context) (string, error) {
	if !s.archive.Enabled() {
		return "", fmt.Errorf("%w: bucket not configured", ErrNoArchive)
	}
	f, err := s.Export(ctx)
	if err != nil {
		return "", err
	}
	return s.archive.Put(ctx, f)
}

// RestoreLatest imports the newest archived backup.
func (s *Service) RestoreLatest(ctx context.Context, merge bool) (ImportResult, string, error) {
	f, key, err := s.archive.Latest(ctx)
	if err != nil {
		return ImportResult{}, "", err
	}
	result, err := s.Import(ctx, ImportRequest{Records: f.Records, Patients: f.Patients, Merge: merge})
	return result, key, err
}
