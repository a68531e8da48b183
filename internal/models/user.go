package models

import (
	"time"

	"github.com/google/uuid"
)

// Role represents an account role in the platform.
type Role string

const (
	RoleParticipant Role = "participant"
	RoleOrganizer   Role = "organizer"
	RoleAdmin       Role = "admin"
)

// ParticipantType distinguishes institute members from outside participants.
type ParticipantType string

const (
	ParticipantIIIT    ParticipantType = "IIIT"
	ParticipantNonIIIT ParticipantType = "Non-IIIT"
)

// User is a platform account. One table holds all three roles, selected by
// the Role discriminator; the role-specific fields are null for other roles.
type User struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	Password string    `json:"-"`
	Role     Role      `json:"role"`

	// Participant fields
	FirstName       string          `json:"first_name,omitempty"`
	LastName        string          `json:"last_name,omitempty"`
	ParticipantType ParticipantType `json:"participant_type,omitempty"`
	College         string          `json:"college,omitempty"`
	ContactNumber   string          `json:"contact_number,omitempty"`
	Interests       []string        `json:"interests,omitempty"`

	// Organizer fields
	OrganizerName  string `json:"organizer_name,omitempty"`
	Category       string `json:"category,omitempty"`
	Description    string `json:"description,omitempty"`
	ContactEmail   string `json:"contact_email,omitempty"`
	DiscordWebhook string `json:"-"`
	IsApproved     bool   `json:"is_approved"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserPublic is User without credentials for API responses.
type UserPublic struct {
	ID            uuid.UUID `json:"id"`
	Email         string    `json:"email"`
	Role          Role      `json:"role"`
	FirstName     string    `json:"first_name,omitempty"`
	LastName      string    `json:"last_name,omitempty"`
	OrganizerName string    `json:"organizer_name,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// ToPublic converts User to UserPublic.
func (u *User) ToPublic() UserPublic {
	return UserPublic{
		ID:            u.ID,
		Email:         u.Email,
		Role:          u.Role,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		OrganizerName: u.OrganizerName,
		CreatedAt:     u.CreatedAt,
	}
}
