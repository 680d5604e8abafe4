package records

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for record and patient storage. Every
// implementation keeps a patient row for each record's folder number.
type Repository interface {
	CreateRecord(ctx context.Context, in RecordInput) (*Record, error)
	GetRecord(ctx context.Context, id int64) (*Record, error)
	ListRecords(ctx context.Context, filter Filter) ([]Record, error)
	UpdateRecord(ctx context.Context, id int64, in RecordInput) (*Record, error)
	// DeleteRecord reports whether a row was removed. A missing id is not an error.
	DeleteRecord(ctx context.Context, id int64) (bool, error)
	ListPatients(ctx context.Context) (map[string]Patient, error)
	MergeDataset(ctx context.Context, data Dataset) (MergeResult, error)
	ReplaceDataset(ctx context.Context, data Dataset) error
	Ping(ctx context.Context) error
}

// InMemoryRepository keeps records in process memory.
type InMemoryRepository struct {
	mu       sync.RWMutex
	nextID   int64
	records  map[int64]Record
	bySyncID map[string]int64
	patients map[string]Patient
	now      func() time.Time
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		nextID:   1,
		records:  make(map[int64]Record),
		bySyncID: make(map[string]int64),
		patients: make(map[string]Patient),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateRecord stores a new record. A repeated sync id returns the stored row.
func (r *InMemoryRepository) CreateRecord(ctx context.Context, in RecordInput) (*Record, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if in.SyncID == "" {
		in.SyncID = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.bySyncID[in.SyncID]; ok {
		existing := r.records[id]
		return &existing, nil
	}

	rec := Record{ID: r.nextID, SyncID: in.SyncID, CreatedAt: r.now()}
	in.Apply(&rec)
	r.nextID++
	r.records[rec.ID] = rec
	r.bySyncID[rec.SyncID] = rec.ID
	ApplyPatient(r.patients, rec)
	return &rec, nil
}

// GetRecord retrieves a record by id
func (r *InMemoryRepository) GetRecord(ctx context.Context, id int64) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return &rec, nil
}

// ListRecords returns matching records, newest review date first.
func (r *InMemoryRepository) ListRecords(ctx context.Context, filter Filter) ([]Record, error) {
	r.mu.RLock()
	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		if filter.Matches(rec) {
			out = append(out, rec)
		}
	}
	r.mu.RUnlock()

	SortNewestFirst(out)
	return out, nil
}

// UpdateRecord replaces the mutable fields of an existing record.
func (r *InMemoryRepository) UpdateRecord(ctx context.Context, id int64, in RecordInput) (*Record, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	in.Apply(&rec)
	r.records[id] = rec
	ApplyPatient(r.patients, rec)
	return &rec, nil
}

// DeleteRecord removes a record if present.
func (r *InMemoryRepository) DeleteRecord(ctx context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return false, nil
	}
	delete(r.records, id)
	delete(r.bySyncID, rec.SyncID)
	return true, nil
}

// ListPatients returns a copy of the patient collection.
func (r *InMemoryRepository) ListPatients(ctx context.Context) (map[string]Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Patient, len(r.patients))
	for k, v := range r.patients {
		out[k] = v
	}
	return out, nil
}

// MergeDataset adds records and patients that are not already present.
func (r *InMemoryRepository) MergeDataset(ctx context.Context, data Dataset) (MergeResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	merged, result := Merge(r.snapshotLocked(), data)
	r.loadLocked(merged)
	return result, nil
}

// ReplaceDataset discards everything and loads data.
func (r *InMemoryRepository) ReplaceDataset(ctx context.Context, data Dataset) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.loadLocked(Replace(data))
	return nil
}

// Ping always succeeds.
func (r *InMemoryRepository) Ping(ctx context.Context) error {
	return nil
}

func (r *InMemoryRepository) snapshotLocked() Dataset {
	data := Dataset{
		Records:  make([]Record, 0, len(r.records)),
		Patients: make(map[string]Patient, len(r.patients)),
	}
	for _, rec := range r.records {
		data.Records = append(data.Records, rec)
	}
	SortNewestFirst(data.Records)
	for k, v := range r.patients {
		data.Patients[k] = v
	}
	return data
}

func (r *InMemoryRepository) loadLocked(data Dataset) {
	r.records = make(map[int64]Record, len(data.Records))
	r.bySyncID = make(map[string]int64, len(data.Records))
	r.patients = data.Patients
	if r.patients == nil {
		r.patients = make(map[string]Patient)
	}
	for _, rec := range data.Records {
		if rec.SyncID == "" {
			rec.SyncID = uuid.NewString()
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = r.now()
		}
		r.records[rec.ID] = rec
		r.bySyncID[rec.SyncID] = rec.ID
		if rec.ID >= r.nextID {
			r.nextID = rec.ID + 1
		}
	}
}
