// Package backup exports and restores the full records dataset as a JSON
// document.
package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/wolfman30/practice-records/internal/records"
)

// AppVersion is stamped on every export.
const AppVersion = "2.0"

// ErrMalformedBackup is returned for input that is not a backup document.
var ErrMalformedBackup = errors.New("backup: malformed backup file")

// File is the on-disk and over-the-wire backup format.
type File struct {
	Records    []records.Record           `json:"records"`
	Patients   map[string]records.Patient `json:"patients"`
	ExportDate time.Time                  `json:"exportDate"`
	AppVersion string                     `json:"appVersion"`
}

// NewFile stamps data for export.
func NewFile(data records.Dataset, now time.Time) File {
	f := File{
		Records:    data.Records,
		Patients:   data.Patients,
		ExportDate: now.UTC(),
		AppVersion: AppVersion,
	}
	if f.Records == nil {
		f.Records = []records.Record{}
	}
	if f.Patients == nil {
		f.Patients = map[string]records.Patient{}
	}
	return f
}

// Dataset returns the collections carried by f.
func (f File) Dataset() records.Dataset {
	return records.Dataset{Records: f.Records, Patients: f.Patients}
}

// Encode writes f as indented JSON.
func Encode(w io.Writer, f File) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("backup: encode: %w", err)
	}
	return nil
}

// Decode reads a backup document. Any JSON shape error is reported as
// ErrMalformedBackup.
func Decode(r io.Reader) (File, error) {
	var f File
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return File{}, fmt.Errorf("%w: %v", ErrMalformedBackup, err)
	}
	if f.Records == nil && f.Patients == nil {
		return File{}, fmt.Errorf("%w: no records or patients", ErrMalformedBackup)
	}
	if f.Patients == nil {
		f.Patients = map[string]records.Patient{}
	}
	return f, nil
}

// ImportRequest is the body of POST /api/backup.
type ImportRequest struct {
	Records  []records.Record           `json:"records"`
	Patients map[string]records.Patient `json:"patients"`
	Merge    bool                       `json:"merge"`
}

// DecodeImportRequest reads an import body.
func DecodeImportRequest(r io.Reader) (ImportRequest, error) {
	var req ImportRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return ImportRequest{}, fmt.Errorf("%w: %v", ErrMalformedBackup, err)
	}
	if req.Records == nil && req.Patients == nil {
		return ImportRequest{}, fmt.Errorf("%w: no records or patients", ErrMalformedBackup)
	}
	return req, nil
}

// Dataset returns the collections carried by the request.
func (r ImportRequest) Dataset() records.Dataset {
	patients := r.Patients
	if patients == nil {
		patients = map[string]records.Patient{}
	}
	return records.Dataset{Records: r.Records, Patients: patients}
}

// ImportResult reports an import.
type ImportResult struct {
	Mode          string `json:"mode"`
	RecordsAdded  int    `json:"recordsAdded"`
	PatientsAdded int    `json:"patientsAdded"`
	Message       string `json:"message"`
}
