package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/practice-records/internal/config"
	"github.com/wolfman30/practice-records/internal/records"
	"github.com/wolfman30/practice-records/pkg/logging"
)

func TestBuildRedisClientDisabled(t *testing.T) {
	assert.Nil(t, BuildRedisClient(context.Background(), &appconfig.Config{}, nil, true))
	assert.Nil(t, BuildRedisClient(context.Background(), nil, nil, false))
}

func TestBuildRedisClientVerifies(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &appconfig.Config{RedisAddr: mr.Addr()}
	client := BuildRedisClient(context.Background(), cfg, logging.New("error"), true)
	require.NotNil(t, client)
	defer client.Close()

	mr.Close()
	assert.Nil(t, BuildRedisClient(context.Background(), cfg, logging.New("error"), true))
}

func TestConnectPostgresPoolEmptyURLReturnsNil(t *testing.T) {
	assert.Nil(t, ConnectPostgresPool(context.Background(), "", logging.New("error")))
}

func TestBuildAPIMemoryBackend(t *testing.T) {
	cfg := &appconfig.Config{RecordsBackend: "memory", AppVersion: "2.0"}
	api, err := BuildAPI(context.Background(), cfg, nil, logging.New("error"))
	require.NoError(t, err)
	defer api.Close()

	rr := httptest.NewRecorder()
	api.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	_, err = api.Records.Create(context.Background(), records.RecordInput{
		PatientName: "Jane", FolderNumber: "A1", ReviewDate: "2024-01-10",
		HospitalName: "General", ServiceType: "Consultation", Fee: 150,
	})
	require.NoError(t, err)

	rr = httptest.NewRecorder()
	api.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "practice_records_operations_total")
}

func TestNewWorkspaceLocalOnly(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cfg := &appconfig.Config{LocalKeyPrefix: "test"}

	ws, err := NewWorkspace(cfg, client, nil, logging.New("error"))
	require.NoError(t, err)
	defer ws.Close()

	assert.Nil(t, ws.Monitor)
	assert.Nil(t, ws.Remote)

	res, err := ws.AddRecord(context.Background(), records.RecordInput{
		PatientName: "Jane", FolderNumber: "A1", ReviewDate: "2024-01-10",
		HospitalName: "General", ServiceType: "Consultation", Fee: 150,
	})
	require.NoError(t, err)
	assert.False(t, res.RemoteSent)
	assert.True(t, mr.Exists("test:patientRecords"))
}

func TestNewWorkspaceWithRemote(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cfg := &appconfig.Config{LocalKeyPrefix: "test", RemoteBaseURL: "http://127.0.0.1:1"}

	ws, err := NewWorkspace(cfg, client, prometheus.NewRegistry(), logging.New("error"))
	require.NoError(t, err)
	defer ws.Close()

	assert.NotNil(t, ws.Monitor)
	assert.NotNil(t, ws.Remote)
	assert.False(t, ws.Monitor.Online())
}
