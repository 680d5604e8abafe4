package records

import (
	"net/url"
	"sort"
	"strings"
)

// Filter narrows a record listing. Empty fields match everything; From and To
// are inclusive YYYY-MM-DD bounds.
type Filter struct {
	Date         string
	From         string
	To           string
	ServiceType  string
	Hospital     string
	FolderNumber string
}

// FilterFromQuery reads date, from, to, service, hospital and folder.
func FilterFromQuery(q url.Values) Filter {
	return Filter{
		Date:         strings.TrimSpace(q.Get("date")),
		From:         strings.TrimSpace(q.Get("from")),
		To:           strings.TrimSpace(q.Get("to")),
		ServiceType:  strings.TrimSpace(q.Get("service")),
		Hospital:     strings.TrimSpace(q.Get("hospital")),
		FolderNumber: strings.TrimSpace(q.Get("folder")),
	}
}

// Validate rejects malformed date bounds.
func (f Filter) Validate() error {
	for _, d := range []string{f.Date, f.From, f.To} {
		if d != "" && !IsDate(d) {
			return ErrInvalidReviewDate
		}
	}
	return nil
}

// Matches reports whether rec passes the filter.
func (f Filter) Matches(rec Record) bool {
	if f.Date != "" && rec.ReviewDate != f.Date {
		return false
	}
	if f.From != "" && rec.ReviewDate < f.From {
		return false
	}
	if f.To != "" && rec.ReviewDate > f.To {
		return false
	}
	if f.ServiceType != "" && rec.ServiceType != f.ServiceType {
		return false
	}
	if f.Hospital != "" && rec.HospitalName != f.Hospital {
		return false
	}
	if f.FolderNumber != "" && rec.FolderNumber != f.FolderNumber {
		return false
	}
	return true
}

// Apply returns the matching records in their original order.
func (f Filter) Apply(recs []Record) []Record {
	out := make([]Record, 0, len(recs))
	for _, rec := range recs {
		if f.Matches(rec) {
			out = append(out, rec)
		}
	}
	return out
}

// SortNewestFirst orders by review date descending, then creation time
// descending, matching the listing order of the records API.
func SortNewestFirst(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].ReviewDate != recs[j].ReviewDate {
			return recs[i].ReviewDate > recs[j].ReviewDate
		}
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.After(recs[j].CreatedAt)
		}
		return recs[i].ID > recs[j].ID
	})
}

// SortOldestFirst orders by review date ascending, then creation time.
func SortOldestFirst(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].ReviewDate != recs[j].ReviewDate {
			return recs[i].ReviewDate < recs[j].ReviewDate
		}
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.Before(recs[j].CreatedAt)
		}
		return recs[i].ID < recs[j].ID
	})
}
