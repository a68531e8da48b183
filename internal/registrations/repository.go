package registrations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felicity-fest/backend/internal/models"
)

// ErrNotFound is returned when a registration does not exist or is not owned
// by the caller.
var ErrNotFound = errors.New("registration not found")

const regColumns = `id, event_id, participant_id, status,
	form_responses, variant_id, quantity,
	COALESCE(payment_proof_url,''), COALESCE(payment_note,''), amount_paid,
	COALESCE(ticket_id,''), COALESCE(qr_code_url,''),
	attended, attended_at, COALESCE(attendance_note,''), attendance_log,
	created_at, updated_at`

// Repository handles registration persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a registrations repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ScanRegistration scans one registration row, decoding the JSONB columns.
func ScanRegistration(row pgx.Row) (*models.Registration, error) {
	var reg models.Registration
	var formResponses, attendanceLog []byte
	err := row.Scan(&reg.ID, &reg.EventID, &reg.ParticipantID, &reg.Status,
		&formResponses, &reg.VariantID, &reg.Quantity,
		&reg.PaymentProofURL, &reg.PaymentNote, &reg.AmountPaid,
		&reg.TicketID, &reg.QRCodeURL,
		&reg.Attended, &reg.AttendedAt, &reg.AttendanceNote, &attendanceLog,
		&reg.CreatedAt, &reg.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(formResponses) > 0 {
		if err := json.Unmarshal(formResponses, &reg.FormResponses); err != nil {
			return nil, fmt.Errorf("unmarshal form responses: %w", err)
		}
	}
	if len(attendanceLog) > 0 {
		if err := json.Unmarshal(attendanceLog, &reg.AttendanceLog); err != nil {
			return nil, fmt.Errorf("unmarshal attendance log: %w", err)
		}
	}
	return &reg, nil
}

// Create inserts a registration.
func (r *Repository) Create(ctx context.Context, reg *models.Registration) error {
	formResponses, err := json.Marshal(reg.FormResponses)
	if err != nil {
		return fmt.Errorf("marshal form responses: %w", err)
	}
	if reg.Quantity == 0 {
		reg.Quantity = 1
	}
	const q = `INSERT INTO registrations
			(event_id, participant_id, status, form_responses, variant_id, quantity,
			amount_paid, ticket_id, qr_code_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8,''), NULLIF($9,''))
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, reg.EventID, reg.ParticipantID, reg.Status,
		formResponses, reg.VariantID, reg.Quantity,
		reg.AmountPaid, reg.TicketID, reg.QRCodeURL).
		Scan(&reg.ID, &reg.CreatedAt, &reg.UpdatedAt)
}

// GetByID returns a registration by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	return ScanRegistration(r.pool.QueryRow(ctx,
		`SELECT `+regColumns+` FROM registrations WHERE id = $1`, id))
}

// GetOwnedByParticipant returns a registration only if it belongs to the participant.
func (r *Repository) GetOwnedByParticipant(ctx context.Context, id, participantID uuid.UUID) (*models.Registration, error) {
	return ScanRegistration(r.pool.QueryRow(ctx,
		`SELECT `+regColumns+` FROM registrations WHERE id = $1 AND participant_id = $2`, id, participantID))
}

// FindByEventAndParticipant returns the participant's registration for the
// event, or ErrNotFound. One registration per (event, participant) is the
// Normal-path invariant, enforced here at the application layer.
func (r *Repository) FindByEventAndParticipant(ctx context.Context, eventID, participantID uuid.UUID) (*models.Registration, error) {
	return ScanRegistration(r.pool.QueryRow(ctx,
		`SELECT `+regColumns+` FROM registrations WHERE event_id = $1 AND participant_id = $2 LIMIT 1`,
		eventID, participantID))
}

// Delete removes a registration. Only the Rejected-then-retry flow deletes.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM registrations WHERE id = $1`, id)
	return err
}

// SumPurchased returns the total quantity the participant has already
// purchased for this event, excluding rejected and cancelled orders so a
// rejected purchase does not burn the limit.
func (r *Repository) SumPurchased(ctx context.Context, eventID, participantID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(quantity), 0) FROM registrations
		WHERE event_id = $1 AND participant_id = $2 AND status NOT IN ('Rejected', 'Cancelled')`,
		eventID, participantID).Scan(&n)
	return n, err
}

// RegistrantRow is a registration joined with its participant's contact details.
type RegistrantRow struct {
	models.Registration
	Participant models.UserPublic `json:"participant"`
}

// ListByEvent returns all registrations for an event with participant info, newest first.
func (r *Repository) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]RegistrantRow, error) {
	const q = `SELECT r.id, r.event_id, r.participant_id, r.status,
			r.form_responses, r.variant_id, r.quantity,
			COALESCE(r.payment_proof_url,''), COALESCE(r.payment_note,''), r.amount_paid,
			COALESCE(r.ticket_id,''), COALESCE(r.qr_code_url,''),
			r.attended, r.attended_at, COALESCE(r.attendance_note,''), r.attendance_log,
			r.created_at, r.updated_at,
			u.email, COALESCE(u.first_name,''), COALESCE(u.last_name,'')
		FROM registrations r
		JOIN users u ON u.id = r.participant_id
		WHERE r.event_id = $1
		ORDER BY r.created_at DESC`
	rows, err := r.pool.Query(ctx, q, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []RegistrantRow
	for rows.Next() {
		var row RegistrantRow
		var formResponses, attendanceLog []byte
		err := rows.Scan(&row.ID, &row.EventID, &row.ParticipantID, &row.Status,
			&formResponses, &row.VariantID, &row.Quantity,
			&row.PaymentProofURL, &row.PaymentNote, &row.AmountPaid,
			&row.TicketID, &row.QRCodeURL,
			&row.Attended, &row.AttendedAt, &row.AttendanceNote, &attendanceLog,
			&row.CreatedAt, &row.UpdatedAt,
			&row.Participant.Email, &row.Participant.FirstName, &row.Participant.LastName)
		if err != nil {
			return nil, err
		}
		if len(formResponses) > 0 {
			if err := json.Unmarshal(formResponses, &row.FormResponses); err != nil {
				return nil, fmt.Errorf("unmarshal form responses: %w", err)
			}
		}
		if len(attendanceLog) > 0 {
			if err := json.Unmarshal(attendanceLog, &row.AttendanceLog); err != nil {
				return nil, fmt.Errorf("unmarshal attendance log: %w", err)
			}
		}
		row.Participant.ID = row.ParticipantID
		row.Participant.Role = models.RoleParticipant
		list = append(list, row)
	}
	return list, rows.Err()
}

// SetPaymentProof stores the uploaded proof URL on a registration.
func (r *Repository) SetPaymentProof(ctx context.Context, id uuid.UUID, proofURL string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE registrations SET payment_proof_url = $2, updated_at = NOW() WHERE id = $1`, id, proofURL)
	return err
}

var _ Store = (*Repository)(nil)
