package mailer

import (
	"errors"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"github.com/felicity-fest/backend/config"
	"github.com/felicity-fest/backend/pkg/queue"
)

// ErrUnknownTemplate is returned for an email type the mailer cannot render.
var ErrUnknownTemplate = errors.New("unknown email template")

// Mailer sends confirmation emails over SMTP.
type Mailer struct {
	cfg    config.EmailConfig
	logger *zap.Logger
}

// New creates a mailer. With no SMTP host configured, Send logs and drops
// the message instead of failing, so local setups work without a mail server.
func New(cfg config.EmailConfig, logger *zap.Logger) *Mailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mailer{cfg: cfg, logger: logger}
}

// Send renders the template for the payload's email type and delivers it.
func (m *Mailer) Send(payload queue.EmailPayload) error {
	subject, body, err := render(payload)
	if err != nil {
		return err
	}

	if m.cfg.SMTPHost == "" {
		m.logger.Info("smtp not configured, dropping email",
			zap.String("to", payload.RecipientEmail),
			zap.String("subject", subject))
		return nil
	}

	msg := m.compose(payload.RecipientEmail, subject, body)
	addr := fmt.Sprintf("%s:%d", m.cfg.SMTPHost, m.cfg.SMTPPort)
	var auth smtp.Auth
	if m.cfg.SMTPUser != "" {
		auth = smtp.PlainAuth("", m.cfg.SMTPUser, m.cfg.SMTPPass, m.cfg.SMTPHost)
	}
	if err := smtp.SendMail(addr, auth, m.cfg.FromAddress, []string{payload.RecipientEmail}, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

func (m *Mailer) compose(to, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s <%s>\r\n", m.cfg.FromName, m.cfg.FromAddress)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

func render(p queue.EmailPayload) (subject, body string, err error) {
	switch p.EmailType {
	case queue.EmailFreeTicket:
		subject = fmt.Sprintf("You're registered for %s", p.EventName)
		body = freeTicketBody(p)
	case queue.EmailPaidTicket:
		subject = fmt.Sprintf("Payment approved for %s", p.EventName)
		body = paidTicketBody(p)
	case queue.EmailMerchandiseOrder:
		subject = fmt.Sprintf("Your %s order is confirmed", p.EventName)
		body = merchandiseBody(p)
	default:
		return "", "", fmt.Errorf("%w: %q", ErrUnknownTemplate, p.EmailType)
	}
	return subject, body, nil
}

func greeting(p queue.EmailPayload) string {
	if p.FirstName != "" {
		return "Hi " + p.FirstName + ",\n\n"
	}
	return "Hi,\n\n"
}

func ticketBlock(p queue.EmailPayload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ticket ID: %s\n", p.TicketID)
	if p.QRCodeURL != "" {
		fmt.Fprintf(&b, "Your QR code: %s\n", p.QRCodeURL)
	}
	if !p.StartDate.IsZero() {
		fmt.Fprintf(&b, "Event starts: %s\n", p.StartDate.Format("Mon, 02 Jan 2006 15:04 MST"))
	}
	return b.String()
}

func freeTicketBody(p queue.EmailPayload) string {
	var b strings.Builder
	b.WriteString(greeting(p))
	fmt.Fprintf(&b, "You are registered for %s.\n\n", p.EventName)
	b.WriteString(ticketBlock(p))
	b.WriteString("\nShow the QR code at the venue for check-in.\n\nSee you there!\n")
	return b.String()
}

func paidTicketBody(p queue.EmailPayload) string {
	var b strings.Builder
	b.WriteString(greeting(p))
	fmt.Fprintf(&b, "Your payment for %s has been approved.\n\n", p.EventName)
	if p.AmountPaid > 0 {
		fmt.Fprintf(&b, "Amount paid: %d\n", p.AmountPaid)
	}
	b.WriteString(ticketBlock(p))
	if p.OrganizerNote != "" {
		fmt.Fprintf(&b, "\nNote from the organizer: %s\n", p.OrganizerNote)
	}
	b.WriteString("\nShow the QR code at the venue for check-in.\n\nSee you there!\n")
	return b.String()
}

func merchandiseBody(p queue.EmailPayload) string {
	var b strings.Builder
	b.WriteString(greeting(p))
	fmt.Fprintf(&b, "Your order for %s is confirmed.\n\n", p.EventName)
	if p.VariantName != "" {
		fmt.Fprintf(&b, "Item: %s\n", p.VariantName)
	}
	if p.Quantity > 0 {
		fmt.Fprintf(&b, "Quantity: %d\n", p.Quantity)
	}
	if p.AmountPaid > 0 {
		fmt.Fprintf(&b, "Amount paid: %d\n", p.AmountPaid)
	}
	fmt.Fprintf(&b, "Order reference: %s\n", p.TicketID)
	if p.OrganizerNote != "" {
		fmt.Fprintf(&b, "\nNote from the organizer: %s\n", p.OrganizerNote)
	}
	b.WriteString("\nCollect your order at the distribution desk with this reference.\n")
	return b.String()
}
