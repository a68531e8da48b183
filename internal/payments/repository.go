package payments

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felicity-fest/backend/internal/models"
	"github.com/felicity-fest/backend/internal/registrations"
)

// ErrNotFound is returned when the registration does not exist under the event.
var ErrNotFound = registrations.ErrNotFound

// Repository handles payment-decision persistence on registrations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a payments repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetForEvent returns a registration only if it belongs to the event.
func (r *Repository) GetForEvent(ctx context.Context, id, eventID uuid.UUID) (*models.Registration, error) {
	const q = `SELECT id, event_id, participant_id, status,
			form_responses, variant_id, quantity,
			COALESCE(payment_proof_url,''), COALESCE(payment_note,''), amount_paid,
			COALESCE(ticket_id,''), COALESCE(qr_code_url,''),
			attended, attended_at, COALESCE(attendance_note,''), attendance_log,
			created_at, updated_at
		FROM registrations WHERE id = $1 AND event_id = $2`
	return registrations.ScanRegistration(r.pool.QueryRow(ctx, q, id, eventID))
}

// Approve persists an approval decision: status, final amount, the issued
// ticket, and the organizer's note in one statement.
func (r *Repository) Approve(ctx context.Context, reg *models.Registration) error {
	const q = `UPDATE registrations
		SET status = $2, amount_paid = $3, ticket_id = NULLIF($4,''),
			qr_code_url = NULLIF($5,''), payment_note = NULLIF($6,''), updated_at = NOW()
		WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, reg.ID, reg.Status, reg.AmountPaid,
		reg.TicketID, reg.QRCodeURL, reg.PaymentNote)
	return err
}

// Reject marks a registration Rejected with an optional note.
func (r *Repository) Reject(ctx context.Context, id uuid.UUID, note string) error {
	const q = `UPDATE registrations
		SET status = $2, payment_note = NULLIF($3,''), updated_at = NOW()
		WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id, models.RegistrationRejected, note)
	return err
}

var _ Store = (*Repository)(nil)
