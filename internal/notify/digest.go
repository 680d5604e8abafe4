package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/wolfman30/practice-records/internal/billing"
	"github.com/wolfman30/practice-records/internal/records"
	"github.com/wolfman30/practice-records/pkg/logging"
)

// ErrNoRecipients is returned when a digest has nowhere to go.
var ErrNoRecipients = errors.New("notify: no digest recipients configured")

// RecordSource lists the records a digest is built from.
type RecordSource interface {
	ListRecords(ctx context.Context, filter records.Filter) ([]records.Record, error)
}

// DigestService emails the end-of-day billing summary.
type DigestService struct {
	email      EmailSender
	source     RecordSource
	recipients []string
	logger     *logging.Logger
}

// NewDigestService wires a digest sender.
func NewDigestService(email EmailSender, source RecordSource, recipients []string, logger *logging.Logger) *DigestService {
	if logger == nil {
		logger = logging.Default()
	}
	var to []string
	for _, r := range recipients {
		if r = strings.TrimSpace(r); r != "" {
			to = append(to, r)
		}
	}
	return &DigestService{email: email, source: source, recipients: to, logger: logger}
}

// SendDaily builds the summary for date and mails it to every recipient in
// one message. A day without records still produces a digest.
func (s *DigestService) SendDaily(ctx context.Context, date time.Time) (billing.DailySummary, error) {
	if len(s.recipients) == 0 {
		return billing.DailySummary{}, ErrNoRecipients
	}
	day := date.Format(records.DateLayout)
	recs, err := s.source.ListRecords(ctx, records.Filter{Date: day})
	if err != nil {
		return billing.DailySummary{}, fmt.Errorf("notify: list records: %w", err)
	}
	summary := billing.Daily(recs, day, "")
	msg := Message{
		To:       s.recipients,
		Subject:  DigestSubject(summary),
		Text:     DigestText(summary),
		HTML:     DigestHTML(summary),
		Category: CategoryDigest,
	}
	if err := s.email.Send(ctx, msg); err != nil {
		s.logger.Error("notify: failed to send digest", "error", err, "recipients", len(s.recipients), "date", day)
		return summary, fmt.Errorf("notify: digest: %w", err)
	}
	s.logger.Info("notify: digest sent", "recipients", len(s.recipients), "date", day, "visits", summary.TotalVisits)
	return summary, nil
}

func money(a records.Amount) string {
	return fmt.Sprintf("%.2f", float64(a))
}

// DigestSubject is the subject line for a daily summary.
func DigestSubject(s billing.DailySummary) string {
	return fmt.Sprintf("Daily summary %s: %d visits, %s", s.Date, s.TotalVisits, money(s.TotalRevenue))
}

// DigestText renders the plain-text body.
func DigestText(s billing.DailySummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Billing summary for %s\n\n", s.Date)
	fmt.Fprintf(&b, "Visits: %d\nPatients: %d\nRevenue: %s\n", s.TotalVisits, s.UniquePatients, money(s.TotalRevenue))
	if len(s.Records) == 0 {
		b.WriteString("\nNo records for this day.\n")
		return b.String()
	}
	b.WriteString("\nBy service:\n")
	for _, svc := range s.ByService {
		fmt.Fprintf(&b, "  %s  x%d  %s\n", svc.ServiceType, svc.Count, money(svc.Revenue))
	}
	b.WriteString("\nVisits:\n")
	for _, rec := range s.Records {
		fmt.Fprintf(&b, "  %s (%s)  %s  %s  %s\n", rec.PatientName, rec.FolderNumber, rec.HospitalName, rec.ServiceType, money(rec.Fee))
	}
	return b.String()
}

const cellStyle = `style="padding: 6px 8px; border-bottom: 1px solid #e5e7eb;"`

// DigestHTML renders the HTML body. All record text is escaped.
func DigestHTML(s billing.DailySummary) string {
	var b strings.Builder
	b.WriteString(`<div style="font-family: sans-serif; max-width: 640px;">`)
	fmt.Fprintf(&b, `<h2>Billing summary for %s</h2>`, html.EscapeString(s.Date))
	fmt.Fprintf(&b, `<p><strong>%d</strong> visits, <strong>%d</strong> patients, <strong>%s</strong> revenue.</p>`,
		s.TotalVisits, s.UniquePatients, money(s.TotalRevenue))
	if len(s.Records) == 0 {
		b.WriteString(`<p>No records for this day.</p></div>`)
		return b.String()
	}
	b.WriteString(`<table style="border-collapse: collapse; margin: 16px 0;">`)
	b.WriteString(`<tr><th align="left">Patient</th><th align="left">Folder</th><th align="left">Hospital</th><th align="left">Service</th><th align="right">Fee</th></tr>`)
	for _, rec := range s.Records {
		fmt.Fprintf(&b, `<tr><td %[1]s>%[2]s</td><td %[1]s>%[3]s</td><td %[1]s>%[4]s</td><td %[1]s>%[5]s</td><td %[1]s align="right">%[6]s</td></tr>`,
			cellStyle,
			html.EscapeString(rec.PatientName),
			html.EscapeString(rec.FolderNumber),
			html.EscapeString(rec.HospitalName),
			html.EscapeString(rec.ServiceType),
			money(rec.Fee))
	}
	b.WriteString(`</table><h3>By service</h3><ul>`)
	for _, svc := range s.ByService {
		fmt.Fprintf(&b, `<li>%s: %d (%s)</li>`, html.EscapeString(svc.ServiceType), svc.Count, money(svc.Revenue))
	}
	b.WriteString(`</ul></div>`)
	return b.String()
}
