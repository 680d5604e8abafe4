package records

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the calendar-date format used for review dates and first visits.
const DateLayout = "2006-01-02"

// Amount is a fee in the practice currency. It decodes from either a JSON
// number or a numeric string, since DECIMAL columns are often exported as text.
type Amount float64

// UnmarshalJSON accepts 150, 150.5 and "150.50".
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*a = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("records: invalid fee %q", s)
		}
		*a = Amount(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*a = Amount(v)
	return nil
}

// Cents returns the amount in minor units, rounded half away from zero.
func (a Amount) Cents() int64 {
	return int64(math.Round(float64(a) * 100))
}

// FromCents converts minor units back to an Amount.
func FromCents(cents int64) Amount {
	return Amount(float64(cents) / 100)
}

// Record is one billable patient visit.
type Record struct {
	ID             int64     `json:"id"`
	SyncID         string    `json:"syncId,omitempty"`
	PatientName    string    `json:"patientName"`
	FolderNumber   string    `json:"folderNumber"`
	ReviewDate     string    `json:"reviewDate"`
	HospitalName   string    `json:"hospitalName"`
	ServiceType    string    `json:"serviceType"`
	ServiceDetails string    `json:"serviceDetails"`
	Fee            Amount    `json:"fee"`
	Notes          string    `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// NaturalKey identifies a visit by folder, date and service. It is not unique:
// two same-day visits for one service share it.
func (r Record) NaturalKey() string {
	return r.FolderNumber + "|" + r.ReviewDate + "|" + r.ServiceType
}

// Patient is a folder-number-identified individual.
type Patient struct {
	FolderNumber string `json:"folderNumber"`
	PatientName  string `json:"patientName"`
	FirstVisit   string `json:"firstVisit"`
}

// RecordInput carries the mutable fields of a record for create and update.
type RecordInput struct {
	ID             int64  `json:"id,omitempty"`
	SyncID         string `json:"syncId,omitempty"`
	PatientName    string `json:"patientName"`
	FolderNumber   string `json:"folderNumber"`
	ReviewDate     string `json:"reviewDate"`
	HospitalName   string `json:"hospitalName"`
	ServiceType    string `json:"serviceType"`
	ServiceDetails string `json:"serviceDetails"`
	Fee            Amount `json:"fee"`
	Notes          string `json:"notes,omitempty"`
}

// Normalize trims every text field and defaults the service details to the
// service type.
func (in *RecordInput) Normalize() {
	in.SyncID = strings.TrimSpace(in.SyncID)
	in.PatientName = strings.TrimSpace(in.PatientName)
	in.FolderNumber = strings.TrimSpace(in.FolderNumber)
	in.ReviewDate = strings.TrimSpace(in.ReviewDate)
	in.HospitalName = strings.TrimSpace(in.HospitalName)
	in.ServiceType = strings.TrimSpace(in.ServiceType)
	in.ServiceDetails = strings.TrimSpace(in.ServiceDetails)
	in.Notes = strings.TrimSpace(in.Notes)
	if in.ServiceDetails == "" {
		in.ServiceDetails = in.ServiceType
	}
}

// Validate checks required fields.
func (in *RecordInput) Validate() error {
	if in.PatientName == "" {
		return ErrMissingPatientName
	}
	if in.FolderNumber == "" {
		return ErrMissingFolderNumber
	}
	if !IsDate(in.ReviewDate) {
		return ErrInvalidReviewDate
	}
	if in.HospitalName == "" {
		return ErrMissingHospital
	}
	if in.ServiceType == "" {
		return ErrMissingServiceType
	}
	if in.Fee < 0 || math.IsNaN(float64(in.Fee)) {
		return ErrNegativeFee
	}
	return nil
}

// Apply copies the input's mutable fields onto rec, leaving identity and
// creation time untouched.
func (in *RecordInput) Apply(rec *Record) {
	rec.PatientName = in.PatientName
	rec.FolderNumber = in.FolderNumber
	rec.ReviewDate = in.ReviewDate
	rec.HospitalName = in.HospitalName
	rec.ServiceType = in.ServiceType
	rec.ServiceDetails = in.ServiceDetails
	rec.Fee = in.Fee
	rec.Notes = in.Notes
}

// InputFrom builds an input from an existing record.
func InputFrom(rec Record) RecordInput {
	return RecordInput{
		ID:             rec.ID,
		SyncID:         rec.SyncID,
		PatientName:    rec.PatientName,
		FolderNumber:   rec.FolderNumber,
		ReviewDate:     rec.ReviewDate,
		HospitalName:   rec.HospitalName,
		ServiceType:    rec.ServiceType,
		ServiceDetails: rec.ServiceDetails,
		Fee:            rec.Fee,
		Notes:          rec.Notes,
	}
}

// IsDate reports whether s is a valid YYYY-MM-DD calendar date.
func IsDate(s string) bool {
	if len(s) != len(DateLayout) {
		return false
	}
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// Dataset is the full pair of collections held by a store.
type Dataset struct {
	Records  []Record           `json:"records"`
	Patients map[string]Patient `json:"patients"`
}
