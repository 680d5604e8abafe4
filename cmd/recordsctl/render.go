package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/wolfman30/practice-records/internal/billing"
	"github.com/wolfman30/practice-records/internal/localstore"
	"github.com/wolfman30/practice-records/internal/records"
)

func money(a records.Amount) string {
	return fmt.Sprintf("%.2f", float64(a))
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.2f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.2f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	t := tablewriter.NewWriter(w)
	t.SetHeader(header)
	t.SetAutoFormatHeaders(false)
	t.SetAutoWrapText(false)
	t.SetBorder(false)
	return t
}

func renderRecords(w io.Writer, recs []records.Record) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "No records found.")
		return
	}
	t := newTable(w, "ID", "Date", "Folder", "Patient", "Hospital", "Service", "Fee")
	var total records.Amount
	for _, rec := range recs {
		t.Append([]string{
			strconv.FormatInt(rec.ID, 10),
			rec.ReviewDate,
			rec.FolderNumber,
			rec.PatientName,
			rec.HospitalName,
			rec.ServiceType,
			money(rec.Fee),
		})
		total += rec.Fee
	}
	t.SetFooter([]string{"", "", "", "", "", strconv.Itoa(len(recs)) + " visits", money(total)})
	t.Render()
}

func renderRecord(w io.Writer, rec records.Record) {
	t := tablewriter.NewWriter(w)
	t.SetBorder(false)
	t.SetAutoWrapText(false)
	t.SetColumnAlignment([]int{tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_LEFT})
	t.AppendBulk([][]string{
		{"ID", strconv.FormatInt(rec.ID, 10)},
		{"Sync ID", rec.SyncID},
		{"Patient", rec.PatientName},
		{"Folder", rec.FolderNumber},
		{"Date", rec.ReviewDate},
		{"Hospital", rec.HospitalName},
		{"Service", rec.ServiceType},
		{"Details", rec.ServiceDetails},
		{"Fee", money(rec.Fee)},
		{"Notes", rec.Notes},
	})
	t.Render()
}

func renderPatients(w io.Writer, patients map[string]records.Patient) {
	if len(patients) == 0 {
		fmt.Fprintln(w, "No patients found.")
		return
	}
	folders := make([]string, 0, len(patients))
	for folder := range patients {
		folders = append(folders, folder)
	}
	sort.Strings(folders)

	t := newTable(w, "Folder", "Patient", "First visit")
	for _, folder := range folders {
		p := patients[folder]
		t.Append([]string{folder, p.PatientName, p.FirstVisit})
	}
	t.Render()
}

func renderHistory(w io.Writer, h billing.PatientHistory) {
	if h.TotalVisits == 0 {
		fmt.Fprintf(w, "No visits for folder %s.\n", h.FolderNumber)
		return
	}
	fmt.Fprintf(w, "%s (folder %s), first visit %s\n", h.PatientName, h.FolderNumber, h.FirstVisit)
	fmt.Fprintf(w, "%d visits, %s total\n\n", h.TotalVisits, money(h.TotalRevenue))
	t := newTable(w, "Date", "Hospital", "Service", "Details", "Fee")
	for _, rec := range h.Records {
		t.Append([]string{rec.ReviewDate, rec.HospitalName, rec.ServiceType, rec.ServiceDetails, money(rec.Fee)})
	}
	t.Render()
}

func renderServices(w io.Writer, totals []billing.ServiceTotal) {
	t := newTable(w, "Service", "Visits", "Revenue")
	for _, s := range totals {
		t.Append([]string{s.ServiceType, strconv.Itoa(s.Count), money(s.Revenue)})
	}
	t.Render()
}

func renderDaily(w io.Writer, s billing.DailySummary) {
	title := "Daily summary " + s.Date
	if s.Hospital != "" {
		title += " at " + s.Hospital
	}
	fmt.Fprintln(w, title)
	fmt.Fprintf(w, "Visits %d, patients %d, service types %d, revenue %s\n\n",
		s.TotalVisits, s.UniquePatients, s.ServiceTypes, money(s.TotalRevenue))
	if s.TotalVisits == 0 {
		fmt.Fprintln(w, "No records for this day.")
		return
	}
	renderRecords(w, s.Records)
	fmt.Fprintln(w)
	renderServices(w, s.ByService)
}

func renderRange(w io.Writer, r billing.RangeReport) {
	fmt.Fprintln(w, r.Title)
	fmt.Fprintf(w, "Visits %d, patients %d, revenue %s\n\n", r.TotalVisits, r.UniquePatients, money(r.TotalRevenue))
	if r.TotalVisits == 0 {
		fmt.Fprintln(w, "No records in this range.")
		return
	}
	renderServices(w, r.ByService)
	fmt.Fprintln(w)

	t := newTable(w, "Hospital", "Visits", "Revenue")
	for _, h := range r.ByHospital {
		t.Append([]string{h.Hospital, strconv.Itoa(h.Count), money(h.Revenue)})
	}
	t.Render()
	fmt.Fprintln(w)

	t = newTable(w, "Date", "Visits", "Revenue")
	for _, d := range r.ByDay {
		t.Append([]string{d.Date, strconv.Itoa(d.Count), money(d.Revenue)})
	}
	t.Render()
}

func renderStats(w io.Writer, s localstore.Stats) {
	t := tablewriter.NewWriter(w)
	t.SetBorder(false)
	t.AppendBulk([][]string{
		{"Records", strconv.Itoa(s.Records)},
		{"Patients", strconv.Itoa(s.Patients)},
		{"Storage", formatBytes(s.Bytes)},
	})
	t.Render()
}
