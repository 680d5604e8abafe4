package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/wolfman30/practice-records/pkg/logging"
)

// Pinger probes a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Version  string `json:"version,omitempty"`
	Time     string `json:"time"`
	Error    string `json:"error,omitempty"`
}

// HealthHandler reports process and database liveness.
type HealthHandler struct {
	db      Pinger
	version string
	timeout time.Duration
	logger  *logging.Logger
	now     func() time.Time
}

// NewHealthHandler builds the handler. db may be nil for memory-backed runs.
func NewHealthHandler(db Pinger, version string, logger *logging.Logger) *HealthHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &HealthHandler{
		db:      db,
		version: version,
		timeout: 2 * time.Second,
		logger:  logger,
		now:     time.Now,
	}
}

// ServeHTTP handles GET /health.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:   "ok",
		Database: "connected",
		Version:  h.version,
		Time:     h.now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK

	if h.db == nil {
		resp.Database = "not configured"
	} else {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			h.logger.Warn("health check: database ping failed", "error", err)
			resp.Status = "unavailable"
			resp.Database = "unreachable"
			resp.Error = err.Error()
			status = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
