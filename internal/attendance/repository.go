package attendance

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felicity-fest/backend/internal/models"
	"github.com/felicity-fest/backend/internal/registrations"
)

// ErrNotFound is returned when the registration or ticket does not exist
// under the event.
var ErrNotFound = registrations.ErrNotFound

const regColumns = `id, event_id, participant_id, status,
	form_responses, variant_id, quantity,
	COALESCE(payment_proof_url,''), COALESCE(payment_note,''), amount_paid,
	COALESCE(ticket_id,''), COALESCE(qr_code_url,''),
	attended, attended_at, COALESCE(attendance_note,''), attendance_log,
	created_at, updated_at`

// Repository handles attendance persistence on registrations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an attendance repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetForEvent returns a registration only if it belongs to the event.
func (r *Repository) GetForEvent(ctx context.Context, id, eventID uuid.UUID) (*models.Registration, error) {
	return registrations.ScanRegistration(r.pool.QueryRow(ctx,
		`SELECT `+regColumns+` FROM registrations WHERE id = $1 AND event_id = $2`, id, eventID))
}

// GetByTicket resolves a scanned ticket within the event.
func (r *Repository) GetByTicket(ctx context.Context, eventID uuid.UUID, ticketID string) (*models.Registration, error) {
	return registrations.ScanRegistration(r.pool.QueryRow(ctx,
		`SELECT `+regColumns+` FROM registrations WHERE event_id = $1 AND ticket_id = $2`, eventID, ticketID))
}

// SetAttendance writes the attendance flag plus note and appends the audit
// entry to the log in one statement. The log is append-only; nothing ever
// rewrites earlier entries.
func (r *Repository) SetAttendance(ctx context.Context, id uuid.UUID, attended bool, attendedAt *time.Time, note string, entry models.AttendanceEntry) error {
	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal attendance entry: %w", err)
	}
	const q = `UPDATE registrations
		SET attended = $2, attended_at = $3, attendance_note = NULLIF($4,''),
			attendance_log = attendance_log || $5::jsonb, updated_at = NOW()
		WHERE id = $1`
	_, err = r.pool.Exec(ctx, q, id, attended, attendedAt, note, entryJSON)
	return err
}

var _ Store = (*Repository)(nil)
