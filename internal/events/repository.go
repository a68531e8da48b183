package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felicity-fest/backend/internal/models"
)

// ErrNotFound is returned when an event does not exist or is not owned by the caller.
var ErrNotFound = errors.New("event not found")

const eventColumns = `id, name, description, event_type, status, organizer_id,
	registration_deadline, start_date, end_date,
	eligibility, registration_limit, registration_fee, tags,
	form_fields, form_locked, purchase_limit_per_participant,
	registration_count, revenue, recent_registrations,
	created_at, updated_at`

// Repository handles event persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an event repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanEvent(row pgx.Row) (*models.Event, error) {
	var ev models.Event
	var formFields []byte
	err := row.Scan(&ev.ID, &ev.Name, &ev.Description, &ev.EventType, &ev.Status, &ev.OrganizerID,
		&ev.RegistrationDeadline, &ev.StartDate, &ev.EndDate,
		&ev.Eligibility, &ev.RegistrationLimit, &ev.RegistrationFee, &ev.Tags,
		&formFields, &ev.FormLocked, &ev.PurchaseLimitPerParticipant,
		&ev.RegistrationCount, &ev.Revenue, &ev.RecentRegistrations,
		&ev.CreatedAt, &ev.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(formFields) > 0 {
		if err := json.Unmarshal(formFields, &ev.FormFields); err != nil {
			return nil, fmt.Errorf("unmarshal form fields: %w", err)
		}
	}
	return &ev, nil
}

// Create inserts an event (always Draft) plus its merchandise variants.
func (r *Repository) Create(ctx context.Context, ev *models.Event) error {
	formFields, err := json.Marshal(ev.FormFields)
	if err != nil {
		return fmt.Errorf("marshal form fields: %w", err)
	}
	if ev.Tags == nil {
		ev.Tags = []string{}
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const q = `INSERT INTO events (name, description, event_type, status, organizer_id,
			registration_deadline, start_date, end_date,
			eligibility, registration_limit, registration_fee, tags,
			form_fields, purchase_limit_per_participant)
		VALUES ($1, $2, $3, 'Draft', $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, status, created_at, updated_at`
	err = tx.QueryRow(ctx, q, ev.Name, ev.Description, ev.EventType, ev.OrganizerID,
		ev.RegistrationDeadline, ev.StartDate, ev.EndDate,
		ev.Eligibility, ev.RegistrationLimit, ev.RegistrationFee, ev.Tags,
		formFields, ev.PurchaseLimitPerParticipant).
		Scan(&ev.ID, &ev.Status, &ev.CreatedAt, &ev.UpdatedAt)
	if err != nil {
		return err
	}

	for i := range ev.Variants {
		v := &ev.Variants[i]
		err = tx.QueryRow(ctx,
			`INSERT INTO event_variants (event_id, name, stock, price) VALUES ($1, $2, $3, $4) RETURNING id`,
			ev.ID, v.Name, v.Stock, v.Price).Scan(&v.ID)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// GetByID returns an event with its variants.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	ev, err := scanEvent(r.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadVariants(ctx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// GetOwned returns an event only if it belongs to the organizer. Non-owners
// get ErrNotFound, never a hint that the event exists.
func (r *Repository) GetOwned(ctx context.Context, id, organizerID uuid.UUID) (*models.Event, error) {
	ev, err := scanEvent(r.pool.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1 AND organizer_id = $2`, id, organizerID))
	if err != nil {
		return nil, err
	}
	if err := r.loadVariants(ctx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

func (r *Repository) loadVariants(ctx context.Context, ev *models.Event) error {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, stock, price FROM event_variants WHERE event_id = $1 ORDER BY name`, ev.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var v models.Variant
		if err := rows.Scan(&v.ID, &v.Name, &v.Stock, &v.Price); err != nil {
			return err
		}
		ev.Variants = append(ev.Variants, v)
	}
	return rows.Err()
}

// Save persists the mutable fields after a state-machine Apply. Counters are
// never written here; they only move through the atomic increment methods.
func (r *Repository) Save(ctx context.Context, ev *models.Event) error {
	formFields, err := json.Marshal(ev.FormFields)
	if err != nil {
		return fmt.Errorf("marshal form fields: %w", err)
	}
	const q = `UPDATE events SET name = $1, description = $2, status = $3,
			registration_deadline = $4, start_date = $5, end_date = $6,
			eligibility = $7, registration_limit = $8, registration_fee = $9, tags = $10,
			form_fields = $11, purchase_limit_per_participant = $12, updated_at = NOW()
		WHERE id = $13`
	_, err = r.pool.Exec(ctx, q, ev.Name, ev.Description, ev.Status,
		ev.RegistrationDeadline, ev.StartDate, ev.EndDate,
		ev.Eligibility, ev.RegistrationLimit, ev.RegistrationFee, ev.Tags,
		formFields, ev.PurchaseLimitPerParticipant, ev.ID)
	return err
}

// Filter narrows the public event listing.
type Filter struct {
	Search      string
	EventType   models.EventType
	Eligibility models.Eligibility
	DateFrom    *time.Time
	DateTo      *time.Time
	Organizers  []uuid.UUID // followedOnly: restrict to these organizer IDs
	Trending    bool        // top 5 by recent registrations
}

// List returns Published/Ongoing events matching the filter, without form
// fields or variants (lightweight for browsing).
func (r *Repository) List(ctx context.Context, f Filter) ([]models.Event, error) {
	q := `SELECT ` + eventColumns + ` FROM events WHERE status IN ('Published', 'Ongoing')`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Search != "" {
		p := arg("%" + f.Search + "%")
		q += fmt.Sprintf(` AND (name ILIKE %s OR description ILIKE %s OR EXISTS (
			SELECT 1 FROM unnest(tags) tag WHERE tag ILIKE %s))`, p, p, p)
	}
	if f.EventType != "" {
		q += ` AND event_type = ` + arg(string(f.EventType))
	}
	if f.Eligibility != "" {
		q += ` AND eligibility IN (` + arg(string(f.Eligibility)) + `, 'All')`
	}
	if f.DateFrom != nil {
		q += ` AND start_date >= ` + arg(*f.DateFrom)
	}
	if f.DateTo != nil {
		q += ` AND start_date <= ` + arg(*f.DateTo)
	}
	if len(f.Organizers) > 0 {
		q += ` AND organizer_id = ANY(` + arg(f.Organizers) + `)`
	}
	if f.Trending {
		q += ` ORDER BY recent_registrations DESC LIMIT 5`
	} else {
		q += ` ORDER BY start_date ASC`
	}

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		ev.FormFields = nil
		list = append(list, *ev)
	}
	return list, rows.Err()
}

// ListByOrganizer returns every event of the organizer, any status, newest first.
func (r *Repository) ListByOrganizer(ctx context.Context, organizerID uuid.UUID) ([]models.Event, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+eventColumns+` FROM events WHERE organizer_id = $1 ORDER BY created_at DESC`, organizerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *ev)
	}
	return list, rows.Err()
}

// IncrementCounters atomically adjusts the denormalized event counters.
// Expressed as DB-side increments so concurrent registrations never lose updates.
func (r *Repository) IncrementCounters(ctx context.Context, eventID uuid.UUID, registrations, recent, revenue int) error {
	const q = `UPDATE events SET
			registration_count = registration_count + $2,
			recent_registrations = recent_registrations + $3,
			revenue = revenue + $4,
			updated_at = NOW()
		WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, eventID, registrations, recent, revenue)
	return err
}

// LockForm marks the registration form immutable. Set at the first
// registration and never cleared.
func (r *Repository) LockForm(ctx context.Context, eventID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE events SET form_locked = TRUE, updated_at = NOW() WHERE id = $1`, eventID)
	return err
}

// ReserveStock decrements variant stock if enough remains. Returns false when
// stock is insufficient; the conditional update closes the purchase race.
func (r *Repository) ReserveStock(ctx context.Context, variantID uuid.UUID, quantity int) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE event_variants SET stock = stock - $2 WHERE id = $1 AND stock >= $2`, variantID, quantity)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// RestoreStock returns reserved stock to a variant after a rejected purchase.
func (r *Repository) RestoreStock(ctx context.Context, variantID uuid.UUID, quantity int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE event_variants SET stock = stock + $2 WHERE id = $1`, variantID, quantity)
	return err
}

// ResetRecentRegistrations zeroes the trending counter across all events.
// Invoked periodically by the worker.
func (r *Repository) ResetRecentRegistrations(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `UPDATE events SET recent_registrations = 0 WHERE recent_registrations <> 0`)
	return err
}
