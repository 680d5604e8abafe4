package cloudsync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/practice-records/internal/ledger"
	"github.com/wolfman30/practice-records/internal/localstore"
	"github.com/wolfman30/practice-records/internal/records"
	"github.com/wolfman30/practice-records/pkg/logging"
)

type fakeRemote struct {
	mu        sync.Mutex
	records   []records.Record
	nextID    int64
	creates   int
	failFor   map[string]bool
	listErr   error
	pingErr   error
	deleted   []int64
	updateErr error
	onCreate  func()
}

func newFakeRemote(recs ...records.Record) *fakeRemote {
	return &fakeRemote{records: recs, nextID: 1000, failFor: map[string]bool{}}
}

func (f *fakeRemote) ListRecords(ctx context.Context) ([]records.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]records.Record(nil), f.records...), nil
}

func (f *fakeRemote) CreateRecord(ctx context.Context, rec records.Record) (records.Record, error) {
	if f.onCreate != nil {
		hook := f.onCreate
		f.onCreate = nil
		hook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.failFor[rec.FolderNumber] {
		return records.Record{}, errors.New("connection reset")
	}
	f.nextID++
	rec.ID = f.nextID
	f.records = append(f.records, rec)
	return rec, nil
}

func (f *fakeRemote) UpdateRecord(ctx context.Context, rec records.Record) (records.Record, error) {
	if f.updateErr != nil {
		return records.Record{}, f.updateErr
	}
	return rec, nil
}

func (f *fakeRemote) DeleteRecord(ctx context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return true, nil
}

func (f *fakeRemote) ListPatients(ctx context.Context) (map[string]records.Patient, error) {
	return map[string]records.Patient{}, nil
}

func (f *fakeRemote) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pingErr
}

func (f *fakeRemote) createCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates
}

func (f *fakeRemote) setPingErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pingErr = err
}

func newLocal(t *testing.T) *localstore.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return localstore.New(client, "test", logging.New("error"))
}

func visit(id int64, syncID, folder, date string) records.Record {
	return records.Record{
		ID:             id,
		SyncID:         syncID,
		PatientName:    "Patient " + folder,
		FolderNumber:   folder,
		ReviewDate:     date,
		HospitalName:   "General",
		ServiceType:    "Consultation",
		ServiceDetails: "Consultation",
		Fee:            100,
		CreatedAt:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func seed(t *testing.T, local *localstore.Store, recs ...records.Record) {
	t.Helper()
	for _, rec := range recs {
		_, _, err := local.Dispatch(context.Background(), ledger.AddRecord{Record: rec})
		require.NoError(t, err)
	}
}

func TestReconcilePushesOnlyLocalRecords(t *testing.T) {
	ctx := context.Background()
	local := newLocal(t)
	remote := newFakeRemote(visit(1, "s-1", "A1", "2024-01-10"))
	seed(t, local,
		visit(1700000000001, "s-1", "A1", "2024-01-10"),
		visit(1700000000002, "s-2", "B2", "2024-01-11"),
	)

	r := NewReconciler(local, remote, nil, logging.New("error"))
	result, err := r.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Pending: 1, Synced: 1}, result)

	state, err := local.Load(ctx)
	require.NoError(t, err)
	require.Len(t, state.Records, 2)
	for _, rec := range state.Records {
		assert.Less(t, rec.ID, int64(1700000000000), "local copy should carry server ids")
	}
	assert.Contains(t, state.Patients, "B2")
}

func TestReconcileIsIdempotent(t *testing.T) {
	ctx := context.Background()
	local := newLocal(t)
	remote := newFakeRemote()
	seed(t, local, visit(1700000000001, "s-1", "A1", "2024-01-10"))

	r := NewReconciler(local, remote, nil, logging.New("error"))
	_, err := r.Reconcile(ctx)
	require.NoError(t, err)
	second, err := r.Reconcile(ctx)
	require.NoError(t, err)

	assert.Equal(t, Result{}, second)
	assert.Equal(t, 1, remote.createCount())
}

func TestReconcileLegacyRecordsUseNaturalKey(t *testing.T) {
	ctx := context.Background()
	local := newLocal(t)
	remote := newFakeRemote(visit(5, "", "A1", "2024-01-10"))
	seed(t, local,
		visit(1700000000001, "", "A1", "2024-01-10"),
		visit(1700000000002, "", "A1", "2024-01-10"),
		visit(1700000000003, "", "C3", "2024-01-12"),
	)

	r := NewReconciler(local, remote, nil, logging.New("error"))
	result, err := r.Reconcile(ctx)
	require.NoError(t, err)

	// Both A1 visits share a natural key with the remote row, so neither is pushed.
	assert.Equal(t, Result{Pending: 1, Synced: 1}, result)
	remote.mu.Lock()
	pushed := remote.records[len(remote.records)-1]
	remote.mu.Unlock()
	assert.Equal(t, "C3", pushed.FolderNumber)
	assert.NotEmpty(t, pushed.SyncID)
}

func TestReconcileKeepsFailedPushesLocally(t *testing.T) {
	ctx := context.Background()
	local := newLocal(t)
	remote := newFakeRemote()
	remote.failFor["B2"] = true
	seed(t, local,
		visit(1700000000001, "s-1", "A1", "2024-01-10"),
		visit(1700000000002, "s-2", "B2", "2024-01-11"),
	)

	r := NewReconciler(local, remote, nil, logging.New("error"))
	result, err := r.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Pending: 2, Synced: 1, Failed: 1}, result)

	state, err := local.Load(ctx)
	require.NoError(t, err)
	require.Len(t, state.Records, 2)
	kept, ok := state.Find(1700000000002)
	require.True(t, ok)
	assert.Equal(t, "s-2", kept.SyncID)
}

func TestReconcileKeepsRecordsWrittenDuringPass(t *testing.T) {
	ctx := context.Background()
	local := newLocal(t)
	remote := newFakeRemote()
	seed(t, local, visit(1700000000001, "s-1", "A1", "2024-01-10"))
	remote.onCreate = func() {
		_, _, err := local.Dispatch(ctx, ledger.AddRecord{Record: visit(1700000000999, "s-9", "Z9", "2024-01-12")})
		require.NoError(t, err)
	}

	r := NewReconciler(local, remote, nil, logging.New("error"))
	result, err := r.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Pending: 1, Synced: 1}, result)

	state, err := local.Load(ctx)
	require.NoError(t, err)
	require.Len(t, state.Records, 2)
	_, ok := state.Find(1700000000999)
	assert.True(t, ok, "record stored mid-pass must survive the refresh")
	_, ok = state.Find(1700000000001)
	assert.False(t, ok, "pushed record is replaced by the server copy")
	assert.Contains(t, state.Patients, "Z9")

	next, err := r.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Pending: 1, Synced: 1}, next)
	assert.Equal(t, 2, remote.createCount())
}

func TestReconcileAbortsWhenRemoteListFails(t *testing.T) {
	ctx := context.Background()
	local := newLocal(t)
	remote := newFakeRemote()
	remote.listErr = errors.New("timeout")
	seed(t, local, visit(1700000000001, "s-1", "A1", "2024-01-10"))

	r := NewReconciler(local, remote, nil, logging.New("error"))
	_, err := r.Reconcile(ctx)
	require.Error(t, err)
	assert.Zero(t, remote.createCount())

	state, err := local.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000001), state.Records[0].ID)
}

func TestMonitorReconcilesOncePerTransition(t *testing.T) {
	ctx := context.Background()
	local := newLocal(t)
	remote := newFakeRemote()
	seed(t, local, visit(1700000000001, "s-1", "A1", "2024-01-10"))

	tick := make(chan time.Time)
	mon, err := NewMonitor(MonitorConfig{
		Pinger:     remote,
		Reconciler: NewReconciler(local, remote, nil, logging.New("error")),
		Logger:     logging.New("error"),
		Tick:       tick,
	})
	require.NoError(t, err)
	assert.Equal(t, StateUnknown, mon.State())

	assert.Equal(t, StateOnline, mon.Check(ctx))
	assert.Equal(t, 1, remote.createCount())
	_, at, _ := mon.LastSync()
	assert.False(t, at.IsZero())

	mon.Check(ctx)
	seed(t, local, visit(1700000000009, "s-9", "B2", "2024-01-12"))
	mon.Check(ctx)
	assert.Equal(t, 1, remote.createCount(), "staying online must not reconcile")

	remote.setPingErr(errors.New("no route"))
	assert.Equal(t, StateOffline, mon.Check(ctx))
	_, err = mon.SyncNow(ctx)
	assert.ErrorIs(t, err, ErrOffline)

	remote.setPingErr(nil)
	mon.Check(ctx)
	assert.Equal(t, 2, remote.createCount())

	result, err := mon.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{}, result)
}

func TestMonitorRunChecksOnTickAndStops(t *testing.T) {
	local := newLocal(t)
	remote := newFakeRemote()
	remote.setPingErr(errors.New("down"))

	tick := make(chan time.Time, 1)
	stopped := make(chan struct{})
	mon, err := NewMonitor(MonitorConfig{
		Pinger:     remote,
		Reconciler: NewReconciler(local, remote, nil, logging.New("error")),
		Logger:     logging.New("error"),
		Tick:       tick,
		Stop:       func() { close(stopped) },
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		mon.Run(ctx)
		close(done)
	}()

	waitFor(t, 250*time.Millisecond, func() bool { return mon.State() == StateOffline })
	remote.setPingErr(nil)
	tick <- time.Now()
	waitFor(t, 250*time.Millisecond, func() bool { return mon.Online() })

	cancel()
	waitFor(t, 250*time.Millisecond, func() bool {
		select {
		case <-done:
		default:
			return false
		}
		select {
		case <-stopped:
			return true
		default:
			return false
		}
	})
}

func TestMonitorBuildsTickerOnlyInRun(t *testing.T) {
	local := newLocal(t)
	remote := newFakeRemote()
	mon, err := NewMonitor(MonitorConfig{
		Pinger:     remote,
		Reconciler: NewReconciler(local, remote, nil, logging.New("error")),
		Logger:     logging.New("error"),
		Interval:   5 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Nil(t, mon.tick)
	assert.Nil(t, mon.stop)

	remote.setPingErr(errors.New("down"))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		mon.Run(ctx)
		close(done)
	}()

	waitFor(t, time.Second, func() bool { return mon.State() == StateOffline })
	remote.setPingErr(nil)
	waitFor(t, time.Second, func() bool { return mon.Online() })

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestWorkspaceAddFallsBackToLocal(t *testing.T) {
	ctx := context.Background()
	local := newLocal(t)
	remote := newFakeRemote()
	remote.failFor["A1"] = true
	ws := NewWorkspace(local, remote, onlineFlag(true), logging.New("error"))

	in := records.RecordInput{
		PatientName: "Jane", FolderNumber: "A1", ReviewDate: "2024-01-10",
		HospitalName: "General", ServiceType: "Consultation", Fee: 150,
	}
	res, err := ws.AddRecord(ctx, in)
	require.NoError(t, err)
	assert.False(t, res.RemoteSent)
	assert.NotEmpty(t, res.Record.SyncID)
	assert.Equal(t, "Consultation", res.Record.ServiceDetails)

	in.FolderNumber = "B2"
	res, err = ws.AddRecord(ctx, in)
	require.NoError(t, err)
	assert.True(t, res.RemoteSent)
	assert.Equal(t, int64(1001), res.Record.ID)

	recs, err := ws.ListRecords(ctx, records.Filter{})
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestWorkspaceOfflineWritesStayLocal(t *testing.T) {
	ctx := context.Background()
	local := newLocal(t)
	remote := newFakeRemote()
	ws := NewWorkspace(local, remote, onlineFlag(false), logging.New("error"))

	_, err := ws.AddRecord(ctx, records.RecordInput{FolderNumber: "A1"})
	assert.ErrorIs(t, err, records.ErrMissingPatientName)

	res, err := ws.AddRecord(ctx, records.RecordInput{
		PatientName: "Jane", FolderNumber: "A1", ReviewDate: "2024-01-10",
		HospitalName: "General", ServiceType: "NPWT", Fee: 80,
	})
	require.NoError(t, err)
	assert.Zero(t, remote.createCount())

	upd := records.InputFrom(res.Record)
	upd.Fee = 90
	updated, err := ws.UpdateRecord(ctx, res.Record.ID, upd)
	require.NoError(t, err)
	assert.Equal(t, records.Amount(90), updated.Record.Fee)

	_, err = ws.UpdateRecord(ctx, 42, upd)
	assert.True(t, IsNotFound(err))

	deleted, err := ws.DeleteRecord(ctx, 42)
	require.NoError(t, err)
	assert.False(t, deleted)
	deleted, err = ws.DeleteRecord(ctx, res.Record.ID)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Empty(t, remote.deleted)
}

func TestWorkspaceImportClearAndStats(t *testing.T) {
	ctx := context.Background()
	local := newLocal(t)
	ws := NewWorkspace(local, nil, nil, logging.New("error"))

	data := records.Dataset{Records: []records.Record{
		visit(1, "s-1", "A1", "2024-01-10"),
		visit(2, "s-2", "A1", "2024-01-02"),
	}}
	result, err := ws.Import(ctx, data, false)
	require.NoError(t, err)
	assert.Equal(t, records.MergeResult{RecordsAdded: 2, PatientsAdded: 1}, result)

	n, err := ws.SyncPatients(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	patients, err := ws.Patients(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02", patients["A1"].FirstVisit)

	stats, err := ws.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Records)

	require.NoError(t, ws.Clear(ctx))
	ds, err := ws.Dataset(ctx)
	require.NoError(t, err)
	assert.Empty(t, ds.Records)
	assert.Empty(t, ds.Patients)
}

type onlineFlag bool

func (o onlineFlag) Online() bool { return bool(o) }

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}
