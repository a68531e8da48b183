package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felicity-fest/backend/internal/models"
)

const userColumns = `id, email, password_hash, role,
	COALESCE(first_name,''), COALESCE(last_name,''), COALESCE(participant_type,''), COALESCE(college,''), COALESCE(contact_number,''), interests,
	COALESCE(organizer_name,''), COALESCE(category,''), COALESCE(description,''), COALESCE(contact_email,''), COALESCE(discord_webhook,''), is_approved,
	created_at, updated_at`

// Repository handles user persistence. All three roles share the users table,
// selected by the role discriminator column.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an auth repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.Password, &u.Role,
		&u.FirstName, &u.LastName, &u.ParticipantType, &u.College, &u.ContactNumber, &u.Interests,
		&u.OrganizerName, &u.Category, &u.Description, &u.ContactEmail, &u.DiscordWebhook, &u.IsApproved,
		&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByID returns a user by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetByEmail returns a user by email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

// CreateParticipant inserts a participant account.
func (r *Repository) CreateParticipant(ctx context.Context, u *models.User) error {
	const q = `INSERT INTO users (email, password_hash, role, first_name, last_name, participant_type, college, contact_number, interests)
		VALUES ($1, $2, 'participant', $3, $4, $5, $6, NULLIF($7,''), $8)
		RETURNING id, created_at, updated_at`
	if u.Interests == nil {
		u.Interests = []string{}
	}
	u.Role = models.RoleParticipant
	return r.pool.QueryRow(ctx, q, u.Email, u.Password, u.FirstName, u.LastName, string(u.ParticipantType), u.College, u.ContactNumber, u.Interests).
		Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
}

// CreateAdmin inserts an admin account.
func (r *Repository) CreateAdmin(ctx context.Context, email, passwordHash string) (*models.User, error) {
	const q = `INSERT INTO users (email, password_hash, role) VALUES ($1, $2, 'admin')
		RETURNING ` + userColumns
	return scanUser(r.pool.QueryRow(ctx, q, email, passwordHash))
}

// CountAdmins returns how many admin accounts exist.
func (r *Repository) CountAdmins(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE role = 'admin'`).Scan(&n)
	return n, err
}

// FollowedOrganizers returns the organizer IDs a participant follows.
func (r *Repository) FollowedOrganizers(ctx context.Context, participantID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT organizer_id FROM participant_follows WHERE participant_id = $1`, participantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
