package records

import "maps"

// ApplyPatient upserts the patient referenced by rec: the name is overwritten
// and the first visit becomes the earlier of the stored and incoming dates.
func ApplyPatient(patients map[string]Patient, rec Record) {
	if rec.FolderNumber == "" {
		return
	}
	existing, ok := patients[rec.FolderNumber]
	if !ok {
		patients[rec.FolderNumber] = Patient{
			FolderNumber: rec.FolderNumber,
			PatientName:  rec.PatientName,
			FirstVisit:   rec.ReviewDate,
		}
		return
	}
	existing.FolderNumber = rec.FolderNumber
	existing.PatientName = rec.PatientName
	if existing.FirstVisit == "" || (rec.ReviewDate != "" && rec.ReviewDate < existing.FirstVisit) {
		existing.FirstVisit = rec.ReviewDate
	}
	patients[rec.FolderNumber] = existing
}

// SyncPatients returns a copy of patients with every record applied in order.
func SyncPatients(patients map[string]Patient, recs []Record) map[string]Patient {
	out := maps.Clone(patients)
	if out == nil {
		out = make(map[string]Patient, len(recs))
	}
	for _, rec := range recs {
		ApplyPatient(out, rec)
	}
	return out
}

// MergeResult counts what a merge import added.
type MergeResult struct {
	RecordsAdded  int `json:"recordsAdded"`
	PatientsAdded int `json:"patientsAdded"`
}

// Merge adds incoming records whose id is not present and incoming patients
// whose folder number is not present. Existing entries are never modified.
// Patients referenced only by imported records are derived afterwards so every
// record keeps a patient.
func Merge(existing, incoming Dataset) (Dataset, MergeResult) {
	var result MergeResult

	ids := make(map[int64]struct{}, len(existing.Records))
	out := Dataset{
		Records:  make([]Record, 0, len(existing.Records)+len(incoming.Records)),
		Patients: maps.Clone(existing.Patients),
	}
	if out.Patients == nil {
		out.Patients = make(map[string]Patient)
	}
	for _, rec := range existing.Records {
		ids[rec.ID] = struct{}{}
		out.Records = append(out.Records, rec)
	}

	var added []Record
	for _, rec := range incoming.Records {
		if _, ok := ids[rec.ID]; ok {
			continue
		}
		ids[rec.ID] = struct{}{}
		out.Records = append(out.Records, rec)
		added = append(added, rec)
		result.RecordsAdded++
	}

	for folder, patient := range incoming.Patients {
		if _, ok := out.Patients[folder]; ok {
			continue
		}
		if patient.FolderNumber == "" {
			patient.FolderNumber = folder
		}
		out.Patients[folder] = patient
		result.PatientsAdded++
	}

	for _, rec := range added {
		if _, ok := out.Patients[rec.FolderNumber]; ok || rec.FolderNumber == "" {
			continue
		}
		ApplyPatient(out.Patients, rec)
		result.PatientsAdded++
	}

	return out, result
}

// Replace returns incoming as the new dataset, deriving any patient missing
// for a record.
func Replace(incoming Dataset) Dataset {
	out := Dataset{
		Records:  append([]Record(nil), incoming.Records...),
		Patients: make(map[string]Patient, len(incoming.Patients)),
	}
	for folder, patient := range incoming.Patients {
		if patient.FolderNumber == "" {
			patient.FolderNumber = folder
		}
		out.Patients[folder] = patient
	}
	for _, rec := range out.Records {
		if _, ok := out.Patients[rec.FolderNumber]; !ok {
			ApplyPatient(out.Patients, rec)
		}
	}
	return out
}
