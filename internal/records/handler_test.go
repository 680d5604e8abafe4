package records

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/practice-records/pkg/logging"
)

func newTestHandler(t *testing.T, repo Repository) http.Handler {
	t.Helper()
	logger := logging.New("error")
	h := NewHandler(NewService(repo, nil, nil, logger), logger)
	r := chi.NewRouter()
	r.Mount("/api/records", h.RecordsRoutes())
	r.Get("/api/patients", h.ListPatients)
	return r
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHandler_CreateAndList(t *testing.T) {
	h := newTestHandler(t, NewInMemoryRepository())

	w := doJSON(t, h, http.MethodPost, "/api/records", validInput())
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}
	var created RecordResponse
	if err := json.NewDecoder(w.Body).Decode(&created); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !created.Success || created.Record == nil || created.Record.ID == 0 {
		t.Fatalf("unexpected create response %+v", created)
	}

	w = doJSON(t, h, http.MethodGet, "/api/records?service=Consultation", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	var list ListRecordsResponse
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !list.Success || list.Count != 1 {
		t.Fatalf("unexpected list response %+v", list)
	}

	w = doJSON(t, h, http.MethodGet, "/api/patients", nil)
	var patients PatientsResponse
	if err := json.NewDecoder(w.Body).Decode(&patients); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if patients.Patients["A1"].FirstVisit != "2024-01-10" {
		t.Fatalf("unexpected patients %+v", patients.Patients)
	}
}

func TestHandler_CreateValidationError(t *testing.T) {
	h := newTestHandler(t, NewInMemoryRepository())
	in := validInput()
	in.ReviewDate = "yesterday"

	w := doJSON(t, h, http.MethodPost, "/api/records", in)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	var resp ErrorResponse
	_ = json.NewDecoder(w.Body).Decode(&resp)
	if resp.Success || resp.Error != ErrInvalidReviewDate.Error() {
		t.Fatalf("unexpected error response %+v", resp)
	}
}

func TestHandler_CreateInvalidBody(t *testing.T) {
	h := newTestHandler(t, NewInMemoryRepository())
	req := httptest.NewRequest(http.MethodPost, "/api/records", strings.NewReader("{"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestHandler_UpdateByPathAndBody(t *testing.T) {
	repo := NewInMemoryRepository()
	rec, err := repo.CreateRecord(context.Background(), validInput())
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	h := newTestHandler(t, repo)

	in := validInput()
	in.Fee = 200
	w := doJSON(t, h, http.MethodPut, "/api/records/1", in)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	in.ID = rec.ID
	in.Notes = "follow-up"
	w = doJSON(t, h, http.MethodPut, "/api/records", in)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	got, _ := repo.GetRecord(context.Background(), rec.ID)
	if got.Fee != 200 || got.Notes != "follow-up" {
		t.Fatalf("unexpected stored record %+v", got)
	}

	w = doJSON(t, h, http.MethodPut, "/api/records/77", in)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}

func TestHandler_DeleteMissingSucceeds(t *testing.T) {
	repo := NewInMemoryRepository()
	if _, err := repo.CreateRecord(context.Background(), validInput()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	h := newTestHandler(t, repo)

	w := doJSON(t, h, http.MethodDelete, "/api/records?id=404", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	var resp DeleteResponse
	_ = json.NewDecoder(w.Body).Decode(&resp)
	if !resp.Success || resp.Deleted {
		t.Fatalf("unexpected delete response %+v", resp)
	}
	recs, _ := repo.ListRecords(context.Background(), Filter{})
	if len(recs) != 1 {
		t.Fatalf("expected collection untouched, got %d records", len(recs))
	}

	w = doJSON(t, h, http.MethodDelete, "/api/records/1", nil)
	_ = json.NewDecoder(w.Body).Decode(&resp)
	if !resp.Deleted {
		t.Fatalf("expected delete by path to remove the record")
	}

	w = doJSON(t, h, http.MethodDelete, "/api/records", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	h := newTestHandler(t, NewInMemoryRepository())
	w := doJSON(t, h, http.MethodPatch, "/api/records", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, w.Code)
	}
	var resp ErrorResponse
	_ = json.NewDecoder(w.Body).Decode(&resp)
	if resp.Success || resp.Error != "Method not allowed" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

type failingRepository struct {
	*InMemoryRepository
}

func (f failingRepository) ListRecords(ctx context.Context, filter Filter) ([]Record, error) {
	return nil, errors.New("connection refused")
}

func TestHandler_ListReportsRawError(t *testing.T) {
	h := newTestHandler(t, failingRepository{NewInMemoryRepository()})
	w := doJSON(t, h, http.MethodGet, "/api/records", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}
	if !strings.Contains(w.Body.String(), "connection refused") {
		t.Fatalf("expected raw error message, got %s", w.Body.String())
	}
}
