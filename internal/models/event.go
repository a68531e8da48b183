package models

import (
	"time"

	"github.com/google/uuid"
)

// EventType distinguishes ticketed events from merchandise sales.
type EventType string

const (
	EventNormal      EventType = "Normal"
	EventMerchandise EventType = "Merchandise"
)

// EventStatus is the lifecycle state of an event.
type EventStatus string

const (
	StatusDraft     EventStatus = "Draft"
	StatusPublished EventStatus = "Published"
	StatusOngoing   EventStatus = "Ongoing"
	StatusCompleted EventStatus = "Completed"
	StatusCancelled EventStatus = "Cancelled"
)

// Eligibility restricts who may register for a Normal event.
type Eligibility string

const (
	EligibilityIIIT    Eligibility = "IIIT Only"
	EligibilityNonIIIT Eligibility = "Non-IIIT Only"
	EligibilityAll     Eligibility = "All"
)

// FormField is one organizer-defined field on a Normal event's registration form.
type FormField struct {
	ID       string   `json:"id"`
	Label    string   `json:"label"`
	Type     string   `json:"type"` // text, textarea, dropdown, checkbox, radio, file
	Options  []string `json:"options,omitempty"`
	Required bool     `json:"required"`
	Order    int      `json:"order"`
}

// Variant is one purchasable SKU of a Merchandise event (size/colour etc.).
// Stock only moves through atomic increments so concurrent purchases stay safe.
type Variant struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Stock int       `json:"stock"`
	Price int       `json:"price"`
}

// Event is an organizer-owned activity participants register for or buy from.
type Event struct {
	ID          uuid.UUID   `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	EventType   EventType   `json:"event_type"`
	Status      EventStatus `json:"status"`
	OrganizerID uuid.UUID   `json:"organizer_id"`

	RegistrationDeadline time.Time `json:"registration_deadline"`
	StartDate            time.Time `json:"start_date"`
	EndDate              time.Time `json:"end_date"`

	Eligibility       Eligibility `json:"eligibility"`
	RegistrationLimit *int        `json:"registration_limit"` // nil = unlimited
	RegistrationFee   int         `json:"registration_fee"`

	Tags []string `json:"tags"`

	// Normal-only
	FormFields []FormField `json:"form_fields,omitempty"`
	FormLocked bool        `json:"form_locked"`

	// Merchandise-only
	Variants                    []Variant `json:"variants,omitempty"`
	PurchaseLimitPerParticipant int       `json:"purchase_limit_per_participant"`

	// Denormalized stats, mutated only via atomic increments.
	RegistrationCount   int `json:"registration_count"`
	Revenue             int `json:"revenue"`
	RecentRegistrations int `json:"recent_registrations"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// VariantByID returns the variant with the given id, or nil.
func (e *Event) VariantByID(id uuid.UUID) *Variant {
	for i := range e.Variants {
		if e.Variants[i].ID == id {
			return &e.Variants[i]
		}
	}
	return nil
}

// OpenForRegistration reports whether the event accepts registrations in its
// current status. Deadline and capacity are checked separately.
func (e *Event) OpenForRegistration() bool {
	return e.Status == StatusPublished || e.Status == StatusOngoing
}

// PubliclyVisible reports whether non-owners may view the event detail.
func (e *Event) PubliclyVisible() bool {
	switch e.Status {
	case StatusPublished, StatusOngoing, StatusCompleted:
		return true
	}
	return false
}
