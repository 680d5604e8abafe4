package records

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/practice-records/pkg/logging"
)

// Handler serves the records and patients API. Every response carries a
// "success" flag.
type Handler struct {
	svc    *Service
	logger *logging.Logger
}

// NewHandler creates a new records handler
func NewHandler(svc *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		svc:    svc,
		logger: logger,
	}
}

// RecordsRoutes mounts under /api/records.
func (h *Handler) RecordsRoutes() http.Handler {
	r := chi.NewRouter()
	r.MethodNotAllowed(MethodNotAllowed)
	r.Get("/", h.ListRecords)
	r.Post("/", h.CreateRecord)
	r.Put("/", h.UpdateRecord)
	r.Delete("/", h.DeleteRecord)
	r.Get("/{id}", h.GetRecord)
	r.Put("/{id}", h.UpdateRecord)
	r.Delete("/{id}", h.DeleteRecord)
	return r
}

// ListRecordsResponse is the response for listing records
type ListRecordsResponse struct {
	Success bool     `json:"success"`
	Records []Record `json:"records"`
	Count   int      `json:"count"`
}

// RecordResponse wraps a single record.
type RecordResponse struct {
	Success bool    `json:"success"`
	Record  *Record `json:"record"`
}

// DeleteResponse reports the outcome of a delete.
type DeleteResponse struct {
	Success bool   `json:"success"`
	Deleted bool   `json:"deleted"`
	Message string `json:"message"`
}

// PatientsResponse carries the patient collection keyed by folder number.
type PatientsResponse struct {
	Success  bool               `json:"success"`
	Patients map[string]Patient `json:"patients"`
	Count    int                `json:"count"`
}

// ErrorResponse is the failure envelope.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// ListRecords handles GET /api/records
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	recs, err := h.svc.List(r.Context(), FilterFromQuery(r.URL.Query()))
	if err != nil {
		h.writeServiceError(w, "list records", err)
		return
	}
	WriteJSON(w, http.StatusOK, ListRecordsResponse{Success: true, Records: recs, Count: len(recs)})
}

// GetRecord handles GET /api/records/{id}
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		WriteError(w, http.StatusBadRequest, "invalid record id")
		return
	}
	rec, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, "get record", err)
		return
	}
	WriteJSON(w, http.StatusOK, RecordResponse{Success: true, Record: rec})
}

// CreateRecord handles POST /api/records
func (h *Handler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	var in RecordInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.logger.Error("failed to decode request", "error", err)
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	rec, err := h.svc.Create(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, "create record", err)
		return
	}
	WriteJSON(w, http.StatusCreated, RecordResponse{Success: true, Record: rec})
}

// UpdateRecord handles PUT /api/records/{id} and PUT /api/records with the id
// in the body.
func (h *Handler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	var in RecordInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.logger.Error("failed to decode request", "error", err)
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	id := in.ID
	if raw := chi.URLParam(r, "id"); raw != "" {
		parsed, ok := parseID(raw)
		if !ok {
			WriteError(w, http.StatusBadRequest, "invalid record id")
			return
		}
		id = parsed
	}
	if id <= 0 {
		WriteError(w, http.StatusBadRequest, "Record ID required")
		return
	}

	rec, err := h.svc.Update(r.Context(), id, in)
	if err != nil {
		h.writeServiceError(w, "update record", err)
		return
	}
	WriteJSON(w, http.StatusOK, RecordResponse{Success: true, Record: rec})
}

// DeleteRecord handles DELETE /api/records/{id} and DELETE /api/records?id=.
// A missing id still succeeds.
func (h *Handler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	if raw == "" {
		raw = r.URL.Query().Get("id")
	}
	if strings.TrimSpace(raw) == "" {
		WriteError(w, http.StatusBadRequest, "Record ID required")
		return
	}
	id, ok := parseID(raw)
	if !ok {
		WriteError(w, http.StatusBadRequest, "invalid record id")
		return
	}

	deleted, err := h.svc.Delete(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, "delete record", err)
		return
	}
	msg := "Record deleted"
	if !deleted {
		msg = "Record not found; nothing to delete"
	}
	WriteJSON(w, http.StatusOK, DeleteResponse{Success: true, Deleted: deleted, Message: msg})
}

// ListPatients handles GET /api/patients
func (h *Handler) ListPatients(w http.ResponseWriter, r *http.Request) {
	patients, err := h.svc.Patients(r.Context())
	if err != nil {
		h.writeServiceError(w, "list patients", err)
		return
	}
	WriteJSON(w, http.StatusOK, PatientsResponse{Success: true, Patients: patients, Count: len(patients)})
}

func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case IsValidation(err):
		WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrRecordNotFound):
		WriteError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Error("failed to "+op, "error", err)
		WriteError(w, http.StatusInternalServerError, err.Error())
	}
}

// MethodNotAllowed writes the 405 envelope.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes the failure envelope.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorResponse{Success: false, Error: msg})
}

func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
