// Package ledger holds the client-side record collections as an immutable
// state value and the actions that transform it.
package ledger

import (
	"fmt"
	"maps"

	"github.com/wolfman30/practice-records/internal/records"
)

// State is the pair of collections persisted by the local store. Records are
// kept newest-added first.
type State struct {
	Records  []records.Record           `json:"records"`
	Patients map[string]records.Patient `json:"patients"`
}

// Empty returns a state with no records and no patients.
func Empty() State {
	return State{Records: []records.Record{}, Patients: map[string]records.Patient{}}
}

// Dataset exposes the state as a records.Dataset.
func (s State) Dataset() records.Dataset {
	return records.Dataset{Records: s.Records, Patients: s.Patients}
}

// Find returns the record with id.
func (s State) Find(id int64) (records.Record, bool) {
	for _, rec := range s.Records {
		if rec.ID == id {
			return rec, true
		}
	}
	return records.Record{}, false
}

func (s State) clone() State {
	out := State{
		Records:  append([]records.Record(nil), s.Records...),
		Patients: maps.Clone(s.Patients),
	}
	if out.Records == nil {
		out.Records = []records.Record{}
	}
	if out.Patients == nil {
		out.Patients = map[string]records.Patient{}
	}
	return out
}

// Outcome reports what an action changed.
type Outcome struct {
	Deleted bool
	Merge   records.MergeResult
}

// Action is a state transition.
type Action interface {
	apply(State) (State, Outcome, error)
}

// Reduce applies a to s and returns the new state. s is never modified.
func Reduce(s State, a Action) (State, Outcome, error) {
	if a == nil {
		return s, Outcome{}, fmt.Errorf("ledger: nil action")
	}
	return a.apply(s.clone())
}

// AddRecord prepends a new record and upserts its patient.
type AddRecord struct {
	Record records.Record
}

func (a AddRecord) apply(s State) (State, Outcome, error) {
	if _, ok := s.Find(a.Record.ID); ok {
		return s, Outcome{}, fmt.Errorf("ledger: add %d: %w", a.Record.ID, records.ErrDuplicateRecord)
	}
	s.Records = append([]records.Record{a.Record}, s.Records...)
	records.ApplyPatient(s.Patients, a.Record)
	return s, Outcome{}, nil
}

// UpdateRecord replaces the record with the same id.
type UpdateRecord struct {
	Record records.Record
}

func (a UpdateRecord) apply(s State) (State, Outcome, error) {
	for i, rec := range s.Records {
		if rec.ID == a.Record.ID {
			s.Records[i] = a.Record
			records.ApplyPatient(s.Patients, a.Record)
			return s, Outcome{}, nil
		}
	}
	return s, Outcome{}, fmt.Errorf("ledger: update %d: %w", a.Record.ID, records.ErrRecordNotFound)
}

// DeleteRecord removes the record with ID. A missing id leaves state as is.
type DeleteRecord struct {
	ID int64
}

func (a DeleteRecord) apply(s State) (State, Outcome, error) {
	for i, rec := range s.Records {
		if rec.ID == a.ID {
			s.Records = append(s.Records[:i], s.Records[i+1:]...)
			return s, Outcome{Deleted: true}, nil
		}
	}
	return s, Outcome{}, nil
}

// RefreshRecords swaps in a fresh record collection and derives patients.
//
// Seen holds the ids of the stored records the collection was built from.
// When it is set, stored records missing from Seen were written after that
// snapshot; they stay in front of Records unless Records already carries the
// same syncId. A nil Seen replaces everything.
type RefreshRecords struct {
	Records []records.Record
	Seen    map[int64]struct{}
}

func (a RefreshRecords) apply(s State) (State, Outcome, error) {
	next := make([]records.Record, 0, len(a.Records))
	if a.Seen != nil {
		incoming := make(map[string]struct{}, len(a.Records))
		for _, rec := range a.Records {
			if rec.SyncID != "" {
				incoming[rec.SyncID] = struct{}{}
			}
		}
		for _, rec := range s.Records {
			if _, ok := a.Seen[rec.ID]; ok {
				continue
			}
			if _, ok := incoming[rec.SyncID]; ok && rec.SyncID != "" {
				continue
			}
			next = append(next, rec)
		}
	}
	s.Records = append(next, a.Records...)
	s.Patients = records.SyncPatients(s.Patients, s.Records)
	return s, Outcome{}, nil
}

// ImportBackup merges into or replaces the state.
type ImportBackup struct {
	Data    records.Dataset
	Replace bool
}

func (a ImportBackup) apply(s State) (State, Outcome, error) {
	if a.Replace {
		data := records.Replace(a.Data)
		return State{Records: data.Records, Patients: data.Patients}, Outcome{}, nil
	}
	merged, result := records.Merge(s.Dataset(), a.Data)
	return State{Records: merged.Records, Patients: merged.Patients}, Outcome{Merge: result}, nil
}

// SyncPatients re-derives patients from every record.
type SyncPatients struct{}

func (SyncPatients) apply(s State) (State, Outcome, error) {
	s.Patients = records.SyncPatients(s.Patients, s.Records)
	return s, Outcome{}, nil
}

// Clear deletes all data.
type Clear struct{}

func (Clear) apply(State) (State, Outcome, error) {
	return Empty(), Outcome{}, nil
}
