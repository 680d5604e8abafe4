// Package billing aggregates records into daily and date-range revenue
// summaries.
package billing

import (
	"sort"
	"strings"

	"github.com/wolfman30/practice-records/internal/records"
)

// ServiceTotal is one row of a per-service breakdown.
type ServiceTotal struct {
	ServiceType string         `json:"serviceType"`
	Count       int            `json:"count"`
	Revenue     records.Amount `json:"revenue"`
}

// HospitalTotal is one row of a per-hospital breakdown.
type HospitalTotal struct {
	Hospital string         `json:"hospital"`
	Count    int            `json:"count"`
	Revenue  records.Amount `json:"revenue"`
}

// DayTotal is one row of a per-day breakdown.
type DayTotal struct {
	Date    string         `json:"date"`
	Count   int            `json:"count"`
	Revenue records.Amount `json:"revenue"`
}

// DailySummary is the end-of-day billing view.
type DailySummary struct {
	Date           string           `json:"date"`
	Hospital       string           `json:"hospital,omitempty"`
	Records        []records.Record `json:"records"`
	TotalVisits    int              `json:"totalVisits"`
	UniquePatients int              `json:"uniquePatients"`
	TotalRevenue   records.Amount   `json:"totalRevenue"`
	ServiceTypes   int              `json:"serviceTypes"`
	ByService      []ServiceTotal   `json:"byService"`
}

// RangeReport summarises records between two optional dates.
type RangeReport struct {
	Title          string           `json:"title"`
	From           string           `json:"from,omitempty"`
	To             string           `json:"to,omitempty"`
	Records        []records.Record `json:"records"`
	TotalVisits    int              `json:"totalVisits"`
	UniquePatients int              `json:"uniquePatients"`
	TotalRevenue   records.Amount   `json:"totalRevenue"`
	ByService      []ServiceTotal   `json:"byService"`
	ByHospital     []HospitalTotal  `json:"byHospital"`
	ByDay          []DayTotal       `json:"byDay"`
}

// PatientHistory lists every visit of one folder.
type PatientHistory struct {
	FolderNumber string           `json:"folderNumber"`
	PatientName  string           `json:"patientName"`
	FirstVisit   string           `json:"firstVisit,omitempty"`
	Records      []records.Record `json:"records"`
	TotalVisits  int              `json:"totalVisits"`
	TotalRevenue records.Amount   `json:"totalRevenue"`
}

// tally accumulates counts and cents keyed in first-seen order.
type tally struct {
	order []string
	count map[string]int
	cents map[string]int64
}

func newTally() *tally {
	return &tally{count: map[string]int{}, cents: map[string]int64{}}
}

func (t *tally) add(key string, fee records.Amount) {
	if _, ok := t.count[key]; !ok {
		t.order = append(t.order, key)
	}
	t.count[key]++
	t.cents[key] += fee.Cents()
}

func (t *tally) services() []ServiceTotal {
	out := make([]ServiceTotal, 0, len(t.order))
	for _, k := range t.order {
		out = append(out, ServiceTotal{ServiceType: k, Count: t.count[k], Revenue: records.FromCents(t.cents[k])})
	}
	return out
}

func (t *tally) hospitals() []HospitalTotal {
	out := make([]HospitalTotal, 0, len(t.order))
	for _, k := range t.order {
		out = append(out, HospitalTotal{Hospital: k, Count: t.count[k], Revenue: records.FromCents(t.cents[k])})
	}
	return out
}

func (t *tally) days() []DayTotal {
	out := make([]DayTotal, 0, len(t.order))
	for _, k := range t.order {
		out = append(out, DayTotal{Date: k, Count: t.count[k], Revenue: records.FromCents(t.cents[k])})
	}
	return out
}

func totals(recs []records.Record) (visits, patients int, revenue records.Amount) {
	folders := make(map[string]struct{}, len(recs))
	var cents int64
	for _, rec := range recs {
		folders[rec.FolderNumber] = struct{}{}
		cents += rec.Fee.Cents()
	}
	return len(recs), len(folders), records.FromCents(cents)
}

// Daily summarises the records of date, optionally limited to one hospital.
// Records are ordered by patient name.
func Daily(recs []records.Record, date, hospital string) DailySummary {
	filtered := records.Filter{Date: date, Hospital: hospital}.Apply(recs)

	services := newTally()
	for _, rec := range filtered {
		services.add(rec.ServiceType, rec.Fee)
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return strings.ToLower(filtered[i].PatientName) < strings.ToLower(filtered[j].PatientName)
	})

	s := DailySummary{
		Date:      date,
		Hospital:  hospital,
		Records:   filtered,
		ByService: services.services(),
	}
	s.TotalVisits, s.UniquePatients, s.TotalRevenue = totals(filtered)
	s.ServiceTypes = len(s.ByService)
	return s
}

// DateRange summarises the records passing filter, oldest first. The Date
// field of filter is ignored.
func DateRange(recs []records.Record, filter records.Filter) RangeReport {
	filter.Date = ""
	filtered := filter.Apply(recs)
	records.SortOldestFirst(filtered)

	services, hospitals, days := newTally(), newTally(), newTally()
	for _, rec := range filtered {
		services.add(rec.ServiceType, rec.Fee)
		hospitals.add(rec.HospitalName, rec.Fee)
		days.add(rec.ReviewDate, rec.Fee)
	}

	r := RangeReport{
		Title:      rangeTitle(filter.From, filter.To),
		From:       filter.From,
		To:         filter.To,
		Records:    filtered,
		ByService:  services.services(),
		ByHospital: hospitals.hospitals(),
		ByDay:      days.days(),
	}
	r.TotalVisits, r.UniquePatients, r.TotalRevenue = totals(filtered)
	return r
}

func rangeTitle(from, to string) string {
	switch {
	case from != "" && to != "":
		return "Date Range Report: " + from + " - " + to
	case from != "":
		return "Records from " + from
	case to != "":
		return "Records up to " + to
	default:
		return "All Records Report"
	}
}

// History collects every record of folder, newest first.
func History(recs []records.Record, patients map[string]records.Patient, folder string) PatientHistory {
	filtered := records.Filter{FolderNumber: folder}.Apply(recs)
	records.SortNewestFirst(filtered)

	h := PatientHistory{FolderNumber: folder, Records: filtered}
	if p, ok := patients[folder]; ok {
		h.PatientName = p.PatientName
		h.FirstVisit = p.FirstVisit
	} else if len(filtered) > 0 {
		h.PatientName = filtered[0].PatientName
	}
	h.TotalVisits, _, h.TotalRevenue = totals(filtered)
	return h
}
