package cloudsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/practice-records/internal/ledger"
	"github.com/wolfman30/practice-records/internal/localstore"
	"github.com/wolfman30/practice-records/internal/records"
	"github.com/wolfman30/practice-records/pkg/logging"
)

// Connectivity is the part of Monitor a Workspace consults before writing.
type Connectivity interface {
	Online() bool
}

type alwaysOffline struct{}

func (alwaysOffline) Online() bool { return false }

// Workspace is the practitioner-facing data API. Writes go to the remote
// store when online and always land in the local store; remote failures
// degrade to local-only persistence.
type Workspace struct {
	local  LocalStore
	remote RemoteStore
	conn   Connectivity
	logger *logging.Logger
	now    func() time.Time
}

// NewWorkspace builds a workspace. remote and conn may be nil for a purely
// local setup.
func NewWorkspace(local LocalStore, remote RemoteStore, conn Connectivity, logger *logging.Logger) *Workspace {
	if conn == nil || remote == nil {
		conn = alwaysOffline{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Workspace{local: local, remote: remote, conn: conn, logger: logger, now: time.Now}
}

// WriteResult reports where a write landed.
type WriteResult struct {
	Record     records.Record `json:"record"`
	RemoteSent bool           `json:"remoteSent"`
}

// AddRecord validates in, assigns a local id and sync id, and stores it.
func (w *Workspace) AddRecord(ctx context.Context, in records.RecordInput) (WriteResult, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		return WriteResult{}, err
	}
	rec := records.Record{
		ID:        w.now().UnixMilli(),
		SyncID:    in.SyncID,
		CreatedAt: w.now().UTC(),
	}
	if rec.SyncID == "" {
		rec.SyncID = uuid.NewString()
	}
	in.Apply(&rec)

	result := WriteResult{Record: rec}
	if w.conn.Online() {
		created, err := w.remote.CreateRecord(ctx, rec)
		if err != nil {
			w.logger.Warn("remote create failed, keeping record locally", "error", err, "sync_id", rec.SyncID)
		} else {
			result = WriteResult{Record: created, RemoteSent: true}
		}
	}
	for attempt := 0; ; attempt++ {
		_, _, err := w.local.Dispatch(ctx, ledger.AddRecord{Record: result.Record})
		if err == nil {
			return result, nil
		}
		// two captures inside the same millisecond
		if errors.Is(err, records.ErrDuplicateRecord) && !result.RemoteSent && attempt < 3 {
			result.Record.ID++
			continue
		}
		return WriteResult{}, fmt.Errorf("cloudsync: add record: %w", err)
	}
}

// UpdateRecord replaces the mutable fields of record id.
func (w *Workspace) UpdateRecord(ctx context.Context, id int64, in records.RecordInput) (WriteResult, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		return WriteResult{}, err
	}
	state, err := w.local.Load(ctx)
	if err != nil {
		return WriteResult{}, fmt.Errorf("cloudsync: update record: %w", err)
	}
	rec, ok := state.Find(id)
	if !ok {
		return WriteResult{}, records.ErrRecordNotFound
	}
	in.Apply(&rec)

	result := WriteResult{Record: rec}
	if w.conn.Online() {
		updated, err := w.remote.UpdateRecord(ctx, rec)
		if err != nil {
			w.logger.Warn("remote update failed, keeping change locally", "error", err, "record_id", id)
		} else {
			result = WriteResult{Record: updated, RemoteSent: true}
		}
	}
	if _, _, err := w.local.Dispatch(ctx, ledger.UpdateRecord{Record: result.Record}); err != nil {
		return WriteResult{}, fmt.Errorf("cloudsync: update record: %w", err)
	}
	return result, nil
}

// DeleteRecord removes id locally and, when online, remotely. A missing id is
// not an error.
func (w *Workspace) DeleteRecord(ctx context.Context, id int64) (bool, error) {
	if w.conn.Online() {
		if _, err := w.remote.DeleteRecord(ctx, id); err != nil {
			w.logger.Warn("remote delete failed", "error", err, "record_id", id)
		}
	}
	_, outcome, err := w.local.Dispatch(ctx, ledger.DeleteRecord{ID: id})
	if err != nil {
		return false, fmt.Errorf("cloudsync: delete record: %w", err)
	}
	return outcome.Deleted, nil
}

// Record returns one local record.
func (w *Workspace) Record(ctx context.Context, id int64) (records.Record, error) {
	state, err := w.local.Load(ctx)
	if err != nil {
		return records.Record{}, err
	}
	rec, ok := state.Find(id)
	if !ok {
		return records.Record{}, records.ErrRecordNotFound
	}
	return rec, nil
}

// ListRecords returns local records matching filter, newest first.
func (w *Workspace) ListRecords(ctx context.Context, filter records.Filter) ([]records.Record, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	state, err := w.local.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := filter.Apply(state.Records)
	records.SortNewestFirst(out)
	return out, nil
}

// Patients returns the local patient collection.
func (w *Workspace) Patients(ctx context.Context) (map[string]records.Patient, error) {
	state, err := w.local.Load(ctx)
	if err != nil {
		return nil, err
	}
	return state.Patients, nil
}

// Dataset returns both local collections.
func (w *Workspace) Dataset(ctx context.Context) (records.Dataset, error) {
	state, err := w.local.Load(ctx)
	if err != nil {
		return records.Dataset{}, err
	}
	return state.Dataset(), nil
}

// Import merges or replaces the local collections.
func (w *Workspace) Import(ctx context.Context, data records.Dataset, replace bool) (records.MergeResult, error) {
	_, outcome, err := w.local.Dispatch(ctx, ledger.ImportBackup{Data: data, Replace: replace})
	if err != nil {
		return records.MergeResult{}, fmt.Errorf("cloudsync: import: %w", err)
	}
	return outcome.Merge, nil
}

// Clear deletes every local record and patient.
func (w *Workspace) Clear(ctx context.Context) error {
	_, _, err := w.local.Dispatch(ctx, ledger.Clear{})
	return err
}

// SyncPatients re-derives patients from the local records.
func (w *Workspace) SyncPatients(ctx context.Context) (int, error) {
	state, _, err := w.local.Dispatch(ctx, ledger.SyncPatients{})
	if err != nil {
		return 0, err
	}
	return len(state.Patients), nil
}

// Stats reports local data volume.
func (w *Workspace) Stats(ctx context.Context) (localstore.Stats, error) {
	return w.local.Stats(ctx)
}

// IsNotFound reports whether err means the record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, records.ErrRecordNotFound)
}
