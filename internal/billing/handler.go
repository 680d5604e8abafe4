package billing

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/practice-records/internal/records"
	"github.com/wolfman30/practice-records/pkg/logging"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// RecordSource supplies records and patients. *records.Service satisfies it.
type RecordSource interface {
	ListRecords(ctx context.Context, filter records.Filter) ([]records.Record, error)
	ListPatients(ctx context.Context) (map[string]records.Patient, error)
}

// Handler serves billing summaries and spreadsheet reports.
type Handler struct {
	source RecordSource
	logger *logging.Logger
	now    func() time.Time
}

// NewHandler builds a billing handler. A nil logger uses the default.
func NewHandler(source RecordSource, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{source: source, logger: logger, now: time.Now}
}

// DailyResponse is the body of GET /api/summary/daily.
type DailyResponse struct {
	Success bool         `json:"success"`
	Summary DailySummary `json:"summary"`
}

// RangeResponse is the body of GET /api/summary/range.
type RangeResponse struct {
	Success bool        `json:"success"`
	Report  RangeReport `json:"report"`
}

// HistoryResponse is the body of GET /api/patients/{folder}/history.
type HistoryResponse struct {
	Success bool           `json:"success"`
	History PatientHistory `json:"history"`
}

func (h *Handler) dailyFromRequest(r *http.Request) (DailySummary, int, error) {
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		date = h.now().Format(records.DateLayout)
	}
	if !records.IsDate(date) {
		return DailySummary{}, http.StatusBadRequest, records.ErrInvalidReviewDate
	}
	hospital := strings.TrimSpace(r.URL.Query().Get("hospital"))
	recs, err := h.source.ListRecords(r.Context(), records.Filter{Date: date, Hospital: hospital})
	if err != nil {
		return DailySummary{}, http.StatusInternalServerError, err
	}
	return Daily(recs, date, hospital), http.StatusOK, nil
}

func (h *Handler) rangeFromRequest(r *http.Request) (RangeReport, int, error) {
	filter := records.FilterFromQuery(r.URL.Query())
	filter.Date = ""
	if err := filter.Validate(); err != nil {
		return RangeReport{}, http.StatusBadRequest, err
	}
	recs, err := h.source.ListRecords(r.Context(), filter)
	if err != nil {
		return RangeReport{}, http.StatusInternalServerError, err
	}
	return DateRange(recs, filter), http.StatusOK, nil
}

// Daily handles GET /api/summary/daily. The date defaults to today.
func (h *Handler) Daily(w http.ResponseWriter, r *http.Request) {
	summary, status, err := h.dailyFromRequest(r)
	if err != nil {
		h.fail(w, status, "daily summary", err)
		return
	}
	records.WriteJSON(w, http.StatusOK, DailyResponse{Success: true, Summary: summary})
}

// Range handles GET /api/summary/range.
func (h *Handler) Range(w http.ResponseWriter, r *http.Request) {
	report, status, err := h.rangeFromRequest(r)
	if err != nil {
		h.fail(w, status, "range summary", err)
		return
	}
	records.WriteJSON(w, http.StatusOK, RangeResponse{Success: true, Report: report})
}

// DailyXLSX handles GET /api/reports/daily.xlsx.
func (h *Handler) DailyXLSX(w http.ResponseWriter, r *http.Request) {
	summary, status, err := h.dailyFromRequest(r)
	if err != nil {
		h.fail(w, status, "daily report", err)
		return
	}
	data, err := RenderDailyXLSX(summary)
	if err != nil {
		h.fail(w, http.StatusInternalServerError, "daily report", err)
		return
	}
	writeXLSX(w, "daily-"+summary.Date+".xlsx", data)
}

// RangeXLSX handles GET /api/reports/range.xlsx.
func (h *Handler) RangeXLSX(w http.ResponseWriter, r *http.Request) {
	report, status, err := h.rangeFromRequest(r)
	if err != nil {
		h.fail(w, status, "range report", err)
		return
	}
	data, err := RenderRangeXLSX(report)
	if err != nil {
		h.fail(w, http.StatusInternalServerError, "range report", err)
		return
	}
	name := "records"
	if report.From != "" {
		name += "-" + report.From
	}
	if report.To != "" {
		name += "-" + report.To
	}
	writeXLSX(w, name+".xlsx", data)
}

// History handles GET /api/patients/{folder}/history.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	folder := strings.TrimSpace(chi.URLParam(r, "folder"))
	if folder == "" {
		records.WriteError(w, http.StatusBadRequest, records.ErrMissingFolderNumber.Error())
		return
	}
	recs, err := h.source.ListRecords(r.Context(), records.Filter{FolderNumber: folder})
	if err != nil {
		h.fail(w, http.StatusInternalServerError, "patient history", err)
		return
	}
	patients, err := h.source.ListPatients(r.Context())
	if err != nil {
		h.fail(w, http.StatusInternalServerError, "patient history", err)
		return
	}
	if _, ok := patients[folder]; !ok && len(recs) == 0 {
		records.WriteError(w, http.StatusNotFound, "patient not found")
		return
	}
	records.WriteJSON(w, http.StatusOK, HistoryResponse{Success: true, History: History(recs, patients, folder)})
}

func (h *Handler) fail(w http.ResponseWriter, status int, op string, err error) {
	if status >= http.StatusInternalServerError {
		h.logger.Error("failed to build "+op, "error", err)
	}
	records.WriteError(w, status, err.Error())
}

func writeXLSX(w http.ResponseWriter, filename string, data []byte) {
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
