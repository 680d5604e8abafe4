package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/wolfman30/practice-records/pkg/logging"
)

const (
	defaultFromName = "Practice Records"

	// CategoryDigest tags the end-of-day summary.
	CategoryDigest = "daily-digest"
)

var errNoAddress = errors.New("notify: message has no recipients")

// EmailSender delivers one message to all of its recipients.
type EmailSender interface {
	Send(ctx context.Context, msg Message) error
}

// Message is a report mail. Each address in To receives its own copy and
// never sees the others.
type Message struct {
	To       []string
	Subject  string
	Text     string
	HTML     string
	Category string
}

// recipients returns the trimmed, de-duplicated addresses in To.
func (m Message) recipients() []string {
	seen := make(map[string]struct{}, len(m.To))
	out := make([]string, 0, len(m.To))
	for _, addr := range m.To {
		addr = strings.TrimSpace(addr)
		key := strings.ToLower(addr)
		if addr == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, addr)
	}
	return out
}

func fromName(name string) string {
	if strings.TrimSpace(name) == "" {
		return defaultFromName
	}
	return name
}

type sendGridClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridSender delivers through the SendGrid v3 API in a single request,
// one personalization per recipient.
type SendGridSender struct {
	client    sendGridClient
	fromEmail string
	fromName  string
	logger    *logging.Logger
}

// SendGridConfig holds configuration for SendGrid.
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// NewSendGridSender returns nil without an API key.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}
	return newSendGridSender(sendgrid.NewSendClient(cfg.APIKey), cfg, logger)
}

func newSendGridSender(client sendGridClient, cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &SendGridSender{
		client:    client,
		fromEmail: cfg.FromEmail,
		fromName:  fromName(cfg.FromName),
		logger:    logger,
	}
}

func (s *SendGridSender) build(msg Message, to []string) *mail.SGMailV3 {
	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail(s.fromName, s.fromEmail))
	m.Subject = msg.Subject
	for _, addr := range to {
		p := mail.NewPersonalization()
		p.AddTos(mail.NewEmail("", addr))
		m.AddPersonalizations(p)
	}
	text := msg.Text
	if text == "" {
		text = msg.Subject
	}
	m.AddContent(mail.NewContent("text/plain", text))
	if msg.HTML != "" {
		m.AddContent(mail.NewContent("text/html", msg.HTML))
	}
	if msg.Category != "" {
		m.AddCategories(msg.Category)
	}
	return m
}

// Send delivers msg. A status of 400 or above is an error.
func (s *SendGridSender) Send(ctx context.Context, msg Message) error {
	if s == nil || s.client == nil {
		return errors.New("notify: sendgrid client not configured")
	}
	to := msg.recipients()
	if len(to) == 0 {
		return errNoAddress
	}

	resp, err := s.client.SendWithContext(ctx, s.build(msg, to))
	if err != nil {
		s.logger.Error("sendgrid send failed", "error", err, "recipients", len(to))
		return fmt.Errorf("notify: sendgrid send failed: %w", err)
	}
	if resp.StatusCode >= 400 {
		s.logger.Error("sendgrid returned error status", "status", resp.StatusCode, "body", resp.Body)
		return fmt.Errorf("notify: sendgrid returned status %d", resp.StatusCode)
	}

	s.logger.Info("email sent via sendgrid", "recipients", len(to), "subject", msg.Subject, "category", msg.Category, "status", resp.StatusCode)
	return nil
}

// StubEmailSender logs messages instead of sending them and keeps a copy of
// each one.
type StubEmailSender struct {
	logger *logging.Logger

	mu   sync.Mutex
	sent []Message
}

// NewStubEmailSender builds the sender used when no provider is configured.
func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(ctx context.Context, msg Message) error {
	to := msg.recipients()
	if len(to) == 0 {
		return errNoAddress
	}
	msg.To = to
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()
	s.logger.Info("stub email sender: would send email", "to", strings.Join(to, ","), "subject", msg.Subject, "category", msg.Category)
	return nil
}

// Sent returns the messages seen so far.
func (s *StubEmailSender) Sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.sent...)
}

var (
	_ EmailSender = (*SendGridSender)(nil)
	_ EmailSender = (*StubEmailSender)(nil)
)
