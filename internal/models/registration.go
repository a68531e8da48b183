package models

import (
	"time"

	"github.com/google/uuid"
)

// RegistrationStatus is the state of one participant's claim on an event.
// Free Normal registrations are Confirmed immediately; paid Normal and all
// Merchandise registrations start Pending until an organizer resolves them.
type RegistrationStatus string

const (
	RegistrationConfirmed RegistrationStatus = "Confirmed"
	RegistrationPending   RegistrationStatus = "Pending"
	RegistrationApproved  RegistrationStatus = "Approved"
	RegistrationRejected  RegistrationStatus = "Rejected"
	RegistrationCancelled RegistrationStatus = "Cancelled"
)

// FormResponse is a participant's answer to one organizer-defined form field.
type FormResponse struct {
	FieldID  string `json:"field_id"`
	Label    string `json:"label"`
	Response string `json:"response"`
}

// AttendanceAction is a manual-override action on attendance.
type AttendanceAction string

const (
	AttendanceMark   AttendanceAction = "mark"
	AttendanceUnmark AttendanceAction = "unmark"
)

// AttendanceEntry is one append-only audit record of a manual attendance override.
type AttendanceEntry struct {
	Action    AttendanceAction `json:"action"`
	Note      string           `json:"note"`
	ActorID   uuid.UUID        `json:"actor_id"`
	Timestamp time.Time        `json:"timestamp"`
}

// Registration is one participant's registration or merchandise order.
type Registration struct {
	ID            uuid.UUID          `json:"id"`
	EventID       uuid.UUID          `json:"event_id"`
	ParticipantID uuid.UUID          `json:"participant_id"`
	Status        RegistrationStatus `json:"status"`

	// Normal-only
	FormResponses []FormResponse `json:"form_responses,omitempty"`

	// Merchandise-only
	VariantID *uuid.UUID `json:"variant_id,omitempty"`
	Quantity  int        `json:"quantity"`

	// Payment
	PaymentProofURL string `json:"payment_proof_url,omitempty"`
	PaymentNote     string `json:"payment_note,omitempty"`
	AmountPaid      int    `json:"amount_paid"`

	// Ticket. A ticketId, once assigned, never changes.
	TicketID  string `json:"ticket_id,omitempty"`
	QRCodeURL string `json:"qr_code_url,omitempty"`

	// Attendance
	Attended       bool              `json:"attended"`
	AttendedAt     *time.Time        `json:"attended_at,omitempty"`
	AttendanceNote string            `json:"attendance_note,omitempty"`
	AttendanceLog  []AttendanceEntry `json:"attendance_log,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
