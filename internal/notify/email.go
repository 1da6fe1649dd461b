package notify

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/wolfman30/booking-assistant/pkg/logging"
)

// CategoryBookingDesk tags every message the assistant sends so desk mail can
// be filtered in SendGrid activity.
const CategoryBookingDesk = "booking-desk"

// EmailSender delivers one desk message.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is a message to the booking desk. Tags become SendGrid
// custom args so a delivery can be traced back to its appointment.
type EmailMessage struct {
	To         string
	ToName     string
	Subject    string
	Body       string
	HTML       string
	Categories []string
	Tags       map[string]string
}

// SendGridSender delivers desk messages through the SendGrid v3 API.
type SendGridSender struct {
	client  *sendgrid.Client
	from    *mail.Email
	replyTo *mail.Email
	logger  *logging.Logger
}

// SendGridConfig holds the sender identity. ReplyTo defaults to FromEmail.
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
	ReplyTo   string
}

// NewSendGridSender returns nil when no API key is configured.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = "Booking Desk"
	}
	if cfg.ReplyTo == "" {
		cfg.ReplyTo = cfg.FromEmail
	}
	return &SendGridSender{
		client:  sendgrid.NewSendClient(cfg.APIKey),
		from:    mail.NewEmail(cfg.FromName, cfg.FromEmail),
		replyTo: mail.NewEmail(cfg.FromName, cfg.ReplyTo),
		logger:  logger,
	}
}

// Send delivers msg. Any 4xx or 5xx response is an error.
func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s.client == nil {
		return fmt.Errorf("notify: sendgrid client not configured")
	}

	resp, err := s.client.SendWithContext(ctx, s.build(msg))
	if err != nil {
		s.logger.Error("desk email failed", "error", err, "to", msg.To)
		return fmt.Errorf("notify: sendgrid send: %w", err)
	}
	if resp.StatusCode >= 400 {
		s.logger.Error("desk email rejected", "status", resp.StatusCode, "body", resp.Body, "to", msg.To)
		return fmt.Errorf("notify: sendgrid returned status %d", resp.StatusCode)
	}

	s.logger.Info("desk email sent", "to", msg.To, "subject", msg.Subject, "status", resp.StatusCode)
	return nil
}

// build assembles the v3 payload. Plain text is always present; HTML is
// added when the message carries it.
func (s *SendGridSender) build(msg EmailMessage) *mail.SGMailV3 {
	m := mail.NewV3Mail()
	m.SetFrom(s.from)
	if s.replyTo != nil && s.replyTo.Address != "" {
		m.SetReplyTo(s.replyTo)
	}
	m.Subject = msg.Subject

	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail(msg.ToName, msg.To))
	keys := make([]string, 0, len(msg.Tags))
	for k := range msg.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		p.SetCustomArg(k, msg.Tags[k])
	}
	m.AddPersonalizations(p)

	m.AddContent(mail.NewContent("text/plain", msg.Body))
	if msg.HTML != "" {
		m.AddContent(mail.NewContent("text/html", msg.HTML))
	}
	categories := []string{CategoryBookingDesk}
	for _, c := range msg.Categories {
		if c != "" {
			categories = append(categories, c)
		}
	}
	m.AddCategories(categories...)
	return m
}

// StubEmailSender records desk messages and logs them. It stands in when
// SendGrid is not configured.
type StubEmailSender struct {
	logger *logging.Logger

	mu   sync.Mutex
	sent []EmailMessage
}

// NewStubEmailSender creates a sender that only records and logs.
func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(_ context.Context, msg EmailMessage) error {
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()
	s.logger.Info("desk email not sent, sendgrid disabled", "to", msg.To, "subject", msg.Subject, "tags", msg.Tags)
	return nil
}

// Sent returns the recorded messages.
func (s *StubEmailSender) Sent() []EmailMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]EmailMessage(nil), s.sent...)
}
