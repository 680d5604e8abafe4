// Package cloudsync keeps the local working copy and the hosted records
// database in step.
package cloudsync

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/practice-records/internal/ledger"
	"github.com/wolfman30/practice-records/internal/localstore"
	"github.com/wolfman30/practice-records/internal/observability/metrics"
	"github.com/wolfman30/practice-records/internal/records"
	"github.com/wolfman30/practice-records/pkg/logging"
)

var syncTracer = otel.Tracer("practice.internal.cloudsync")

// RemoteStore is the hosted side. *remote.Client satisfies it.
type RemoteStore interface {
	ListRecords(ctx context.Context) ([]records.Record, error)
	CreateRecord(ctx context.Context, rec records.Record) (records.Record, error)
	UpdateRecord(ctx context.Context, rec records.Record) (records.Record, error)
	DeleteRecord(ctx context.Context, id int64) (bool, error)
	ListPatients(ctx context.Context) (map[string]records.Patient, error)
	Ping(ctx context.Context) error
}

// LocalStore is the on-device side. *localstore.Store satisfies it.
type LocalStore interface {
	Load(ctx context.Context) (ledger.State, error)
	Dispatch(ctx context.Context, action ledger.Action) (ledger.State, ledger.Outcome, error)
	Stats(ctx context.Context) (localstore.Stats, error)
}

// Result counts what a reconciliation pass did.
type Result struct {
	Pending int `json:"pending"`
	Synced  int `json:"synced"`
	Failed  int `json:"failed"`
}

// Reconciler pushes local-only records to the remote store.
type Reconciler struct {
	local   LocalStore
	remote  RemoteStore
	metrics *metrics.SyncMetrics
	logger  *logging.Logger
	newID   func() string
}

// NewReconciler wires a reconciler. m may be nil.
func NewReconciler(local LocalStore, remote RemoteStore, m *metrics.SyncMetrics, logger *logging.Logger) *Reconciler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Reconciler{
		local:   local,
		remote:  remote,
		metrics: m,
		logger:  logger,
		newID:   func() string { return uuid.NewString() },
	}
}

type remoteIndex struct {
	syncIDs map[string]struct{}
	// natural keys of every remote record, and of those without a syncId
	allKeys    map[string]struct{}
	legacyKeys map[string]struct{}
}

func indexRemote(recs []records.Record) remoteIndex {
	idx := remoteIndex{
		syncIDs:    make(map[string]struct{}, len(recs)),
		allKeys:    make(map[string]struct{}, len(recs)),
		legacyKeys: make(map[string]struct{}),
	}
	for _, rec := range recs {
		key := rec.NaturalKey()
		idx.allKeys[key] = struct{}{}
		if rec.SyncID == "" {
			idx.legacyKeys[key] = struct{}{}
			continue
		}
		idx.syncIDs[rec.SyncID] = struct{}{}
	}
	return idx
}

func (idx remoteIndex) has(rec records.Record) bool {
	key := rec.NaturalKey()
	if rec.SyncID == "" {
		_, ok := idx.allKeys[key]
		return ok
	}
	if _, ok := idx.syncIDs[rec.SyncID]; ok {
		return true
	}
	_, ok := idx.legacyKeys[key]
	return ok
}

// Reconcile runs one pass. A failure to list remote records aborts the pass
// before anything local is touched; per-record push failures are counted and
// the record is kept locally. Records stored locally while the pass runs are
// left for the next one.
func (r *Reconciler) Reconcile(ctx context.Context) (result Result, err error) {
	ctx, span := syncTracer.Start(ctx, "cloudsync.reconcile")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(
			attribute.Int("sync.pending", result.Pending),
			attribute.Int("sync.synced", result.Synced),
			attribute.Int("sync.failed", result.Failed),
		)
		span.End()
		r.metrics.ObserveRun(result.Synced, result.Failed, err)
	}()

	remoteRecs, err := r.remote.ListRecords(ctx)
	if err != nil {
		return result, fmt.Errorf("cloudsync: list remote records: %w", err)
	}
	state, err := r.local.Load(ctx)
	if err != nil {
		return result, fmt.Errorf("cloudsync: load local state: %w", err)
	}

	idx := indexRemote(remoteRecs)
	seen := make(map[int64]struct{}, len(state.Records))
	var pending []records.Record
	for _, rec := range state.Records {
		seen[rec.ID] = struct{}{}
		if !idx.has(rec) {
			pending = append(pending, rec)
		}
	}
	result.Pending = len(pending)

	refreshed := make([]records.Record, 0, len(remoteRecs)+len(pending))
	for _, rec := range pending {
		if rec.SyncID == "" {
			rec.SyncID = r.newID()
		}
		created, err := r.remote.CreateRecord(ctx, rec)
		if err != nil {
			result.Failed++
			r.logger.Warn("failed to push local record", "error", err, "record_id", rec.ID, "folder_number", rec.FolderNumber)
			refreshed = append(refreshed, rec)
			continue
		}
		result.Synced++
		refreshed = append(refreshed, created)
	}
	refreshed = append(refreshed, remoteRecs...)
	records.SortNewestFirst(refreshed)

	if _, _, err := r.local.Dispatch(ctx, ledger.RefreshRecords{Records: refreshed, Seen: seen}); err != nil {
		return result, fmt.Errorf("cloudsync: refresh local records: %w", err)
	}

	r.logger.Info("reconciliation complete", "pending", result.Pending, "synced", result.Synced, "failed", result.Failed)
	return result, nil
}
