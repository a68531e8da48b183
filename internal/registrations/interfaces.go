package registrations

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/felicity-fest/backend/internal/events"
	"github.com/felicity-fest/backend/internal/models"
	"github.com/felicity-fest/backend/internal/ticket"
	"github.com/felicity-fest/backend/pkg/queue"
)

// EventStore defines the event operations the registration engine needs.
// Counter and stock movements are atomic DB-side increments.
type EventStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
	GetOwned(ctx context.Context, id, organizerID uuid.UUID) (*models.Event, error)
	IncrementCounters(ctx context.Context, eventID uuid.UUID, registrations, recent, revenue int) error
	LockForm(ctx context.Context, eventID uuid.UUID) error
	ReserveStock(ctx context.Context, variantID uuid.UUID, quantity int) (bool, error)
	RestoreStock(ctx context.Context, variantID uuid.UUID, quantity int) error
}

// Store defines registration persistence.
type Store interface {
	Create(ctx context.Context, reg *models.Registration) error
	GetOwnedByParticipant(ctx context.Context, id, participantID uuid.UUID) (*models.Registration, error)
	FindByEventAndParticipant(ctx context.Context, eventID, participantID uuid.UUID) (*models.Registration, error)
	Delete(ctx context.Context, id uuid.UUID) error
	SumPurchased(ctx context.Context, eventID, participantID uuid.UUID) (int, error)
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]RegistrantRow, error)
	SetPaymentProof(ctx context.Context, id uuid.UUID, proofURL string) error
}

// UserStore provides participant lookups for eligibility and email dispatch.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// EmailQueue enqueues fire-and-forget confirmation emails.
type EmailQueue interface {
	EnqueueEmail(ctx context.Context, payload queue.EmailPayload) error
}

// ProofStorage issues pre-signed upload URLs for payment proofs.
type ProofStorage interface {
	GeneratePresignedUploadURL(ctx context.Context, bucket, key, contentType string, expires time.Duration) (string, error)
	PresignExpire() time.Duration
	ProofsBucket() string
	PublicObjectURL(bucket, key string) string
}

// QRRenderer produces the stored QR image reference for a ticket.
type QRRenderer interface {
	Render(payload ticket.QRPayload) (string, error)
}

var _ EventStore = (*events.Repository)(nil)
