package backup

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/practice-records/internal/records"
	"github.com/wolfman30/practice-records/pkg/logging"
)

// Handler serves /api/backup.
type Handler struct {
	svc    *Service
	logger *logging.Logger
}

// NewHandler builds the backup handler.
func NewHandler(svc *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// ExportResponse wraps a full backup file.
type ExportResponse struct {
	Success bool `json:"success"`
	Data    File `json:"data"`
}

// ImportResponse reports what an import changed.
type ImportResponse struct {
	Success bool `json:"success"`
	ImportResult
}

// ArchiveResponse names the stored object.
type ArchiveResponse struct {
	Success bool   `json:"success"`
	Key     string `json:"key"`
}

// Routes mounts under /api/backup.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.MethodNotAllowed(records.MethodNotAllowed)
	r.Get("/", h.Export)
	r.Post("/", h.Import)
	r.Post("/archive", h.Archive)
	return r
}

// Export handles GET /api/backup.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	f, err := h.svc.Export(r.Context())
	if err != nil {
		h.logger.Error("failed to export backup", "error", err)
		records.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	records.WriteJSON(w, http.StatusOK, ExportResponse{Success: true, Data: f})
}

// Import handles POST /api/backup.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	req, err := DecodeImportRequest(r.Body)
	if err != nil {
		records.WriteError(w, http.StatusBadRequest, ErrMalformedBackup.Error())
		return
	}

	result, err := h.svc.Import(r.Context(), req)
	if err != nil {
		h.logger.Error("failed to import backup", "error", err, "merge", req.Merge)
		records.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	records.WriteJSON(w, http.StatusOK, ImportResponse{Success: true, ImportResult: result})
}

// Archive handles POST /api/backup/archive.
func (h *Handler) Archive(w http.ResponseWriter, r *http.Request) {
	key, err := h.svc.ArchiveNow(r.Context())
	if err != nil {
		h.logger.Error("failed to archive backup", "error", err)
		status := http.StatusInternalServerError
		if errors.Is(err, ErrNoArchive) {
			status = http.StatusServiceUnavailable
		}
		records.WriteError(w, status, err.Error())
		return
	}
	records.WriteJSON(w, http.StatusOK, ArchiveResponse{Success: true, Key: key})
}
