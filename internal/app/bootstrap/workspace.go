package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/practice-records/internal/cloudsync"
	appconfig "github.com/wolfman30/practice-records/internal/config"
	"github.com/wolfman30/practice-records/internal/localstore"
	"github.com/wolfman30/practice-records/internal/observability/metrics"
	"github.com/wolfman30/practice-records/internal/remote"
	"github.com/wolfman30/practice-records/pkg/logging"
)

// ErrLocalStoreUnavailable is returned when Redis cannot be reached.
var ErrLocalStoreUnavailable = errors.New("bootstrap: local store unavailable")

// Workspace bundles the practitioner-side stores.
type Workspace struct {
	*cloudsync.Workspace
	Local   *localstore.Store
	Remote  *remote.Client
	Monitor *cloudsync.Monitor

	redis *redis.Client
}

// Close releases the Redis connection.
func (w *Workspace) Close() {
	if w.redis != nil {
		_ = w.redis.Close()
	}
}

// BuildWorkspace connects the local Redis store and, when REMOTE_BASE_URL is
// set, the remote API with a connectivity monitor. reg may be nil.
func BuildWorkspace(ctx context.Context, cfg *appconfig.Config, reg prometheus.Registerer, logger *logging.Logger) (*Workspace, error) {
	client := BuildRedisClient(ctx, cfg, logger, true)
	if client == nil {
		return nil, ErrLocalStoreUnavailable
	}
	return NewWorkspace(cfg, client, reg, logger)
}

// NewWorkspace wires a workspace on an existing Redis client.
func NewWorkspace(cfg *appconfig.Config, client *redis.Client, reg prometheus.Registerer, logger *logging.Logger) (*Workspace, error) {
	local := localstore.New(client, cfg.LocalKeyPrefix, logger)
	ws := &Workspace{Local: local, redis: client}

	rc, err := remote.New(remote.Config{
		BaseURL:    cfg.RemoteBaseURL,
		Token:      cfg.RemoteToken,
		Timeout:    cfg.RemoteTimeout,
		RetryCount: cfg.RemoteRetryCount,
	}, logger)
	switch {
	case errors.Is(err, remote.ErrNotConfigured):
		logger.Info("remote not configured; running local-only")
		ws.Workspace = cloudsync.NewWorkspace(local, nil, nil, logger)
		return ws, nil
	case err != nil:
		return nil, fmt.Errorf("bootstrap: remote client: %w", err)
	}

	var syncMetrics *metrics.SyncMetrics
	if reg != nil {
		syncMetrics = metrics.NewSyncMetrics(reg)
	}
	monitor, err := cloudsync.NewMonitor(cloudsync.MonitorConfig{
		Pinger:     rc,
		Reconciler: cloudsync.NewReconciler(local, rc, syncMetrics, logger),
		Metrics:    syncMetrics,
		Logger:     logger,
		Interval:   cfg.ConnectivityCheckInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: monitor: %w", err)
	}

	ws.Remote = rc
	ws.Monitor = monitor
	ws.Workspace = cloudsync.NewWorkspace(local, rc, monitor, logger)
	return ws, nil
}
