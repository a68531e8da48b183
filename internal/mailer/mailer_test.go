package mailer

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felicity-fest/backend/config"
	"github.com/felicity-fest/backend/pkg/queue"
)

func payload(emailType string) queue.EmailPayload {
	return queue.EmailPayload{
		EmailType:      emailType,
		EventID:        uuid.New(),
		RegistrationID: uuid.New(),
		RecipientEmail: "asha@example.com",
		FirstName:      "Asha",
		EventName:      "Hackathon",
		TicketID:       "TKT-0011223344",
		QRCodeURL:      "https://qr.test/TKT-0011223344",
		StartDate:      time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}
}

func TestRenderFreeTicket(t *testing.T) {
	subject, body, err := render(payload(queue.EmailFreeTicket))
	require.NoError(t, err)
	assert.Contains(t, subject, "Hackathon")
	assert.Contains(t, body, "Hi Asha")
	assert.Contains(t, body, "TKT-0011223344")
	assert.Contains(t, body, "https://qr.test/TKT-0011223344")
}

func TestRenderPaidTicket(t *testing.T) {
	p := payload(queue.EmailPaidTicket)
	p.AmountPaid = 300
	p.OrganizerNote = "verified"
	subject, body, err := render(p)
	require.NoError(t, err)
	assert.Contains(t, subject, "Payment approved")
	assert.Contains(t, body, "Amount paid: 300")
	assert.Contains(t, body, "verified")
}

func TestRenderMerchandiseOrder(t *testing.T) {
	p := payload(queue.EmailMerchandiseOrder)
	p.VariantName = "Hoodie M"
	p.Quantity = 2
	p.AmountPaid = 1600
	subject, body, err := render(p)
	require.NoError(t, err)
	assert.Contains(t, subject, "order is confirmed")
	assert.Contains(t, body, "Item: Hoodie M")
	assert.Contains(t, body, "Quantity: 2")
	assert.Contains(t, body, "Order reference: TKT-0011223344")
}

func TestRenderUnknownTemplate(t *testing.T) {
	_, _, err := render(queue.EmailPayload{EmailType: "party_invite"})
	assert.ErrorIs(t, err, ErrUnknownTemplate)
}

func TestSendWithoutSMTPDropsQuietly(t *testing.T) {
	m := New(config.EmailConfig{FromAddress: "noreply@test", FromName: "Fest"}, nil)
	assert.NoError(t, m.Send(payload(queue.EmailFreeTicket)))
}
