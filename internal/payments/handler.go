package payments

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/felicity-fest/backend/internal/middleware"
	"github.com/felicity-fest/backend/internal/models"
	"github.com/felicity-fest/backend/internal/ticket"
	"github.com/felicity-fest/backend/pkg/queue"
	"github.com/felicity-fest/backend/pkg/response"
)

// Store defines payment-decision persistence.
type Store interface {
	GetForEvent(ctx context.Context, id, eventID uuid.UUID) (*models.Registration, error)
	Approve(ctx context.Context, reg *models.Registration) error
	Reject(ctx context.Context, id uuid.UUID, note string) error
}

// EventStore defines the event operations the approval workflow needs.
type EventStore interface {
	GetOwned(ctx context.Context, id, organizerID uuid.UUID) (*models.Event, error)
	IncrementCounters(ctx context.Context, eventID uuid.UUID, registrations, recent, revenue int) error
	RestoreStock(ctx context.Context, variantID uuid.UUID, quantity int) error
}

// UserStore provides participant lookups for email dispatch.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// EmailQueue enqueues fire-and-forget confirmation emails.
type EmailQueue interface {
	EnqueueEmail(ctx context.Context, payload queue.EmailPayload) error
}

// QRRenderer produces the stored QR image reference for a ticket.
type QRRenderer interface {
	Render(payload ticket.QRPayload) (string, error)
}

// Handler handles the organizer payment-approval endpoints.
type Handler struct {
	store    Store
	events   EventStore
	users    UserStore
	emails   EmailQueue
	renderer QRRenderer
	logger   *zap.Logger
}

// NewHandler creates a payments handler.
func NewHandler(store Store, events EventStore, users UserStore, emails EmailQueue, renderer QRRenderer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, events: events, users: users, emails: emails, renderer: renderer, logger: logger}
}

// DecisionRequest is the body for PATCH .../approve-payment.
type DecisionRequest struct {
	Action string `json:"action" binding:"required"`
	Note   string `json:"note"`
}

// Resolve handles PATCH /events/:id/registrations/:regId/approve-payment:
// a single endpoint resolving a Pending payment either way.
func (h *Handler) Resolve(c *gin.Context) {
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	switch req.Action {
	case "approve":
		h.approve(c, req)
	case "reject":
		h.reject(c, req)
	default:
		response.BadRequest(c, "action must be approve or reject")
	}
}

// resolve loads the owned event and its Pending registration, writing the
// error response itself on failure.
func (h *Handler) resolve(c *gin.Context) (*models.Event, *models.Registration, bool) {
	organizerID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return nil, nil, false
	}
	regID, err := uuid.Parse(c.Param("regId"))
	if err != nil {
		response.BadRequest(c, "invalid registration id")
		return nil, nil, false
	}

	ev, err := h.events.GetOwned(c.Request.Context(), eventID, organizerID)
	if err != nil {
		response.NotFound(c, "event not found")
		return nil, nil, false
	}
	reg, err := h.store.GetForEvent(c.Request.Context(), regID, eventID)
	if err != nil {
		response.NotFound(c, "registration not found")
		return nil, nil, false
	}
	if reg.Status != models.RegistrationPending {
		response.BadRequest(c, "only pending payments can be resolved")
		return nil, nil, false
	}
	return ev, reg, true
}

// approve issues the ticket if the registration does not carry one yet,
// records revenue, and for Merchandise moves the registration count that was
// deferred at purchase time.
func (h *Handler) approve(c *gin.Context, req DecisionRequest) {
	ev, reg, ok := h.resolve(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	amountPaid := reg.AmountPaid
	if amountPaid == 0 && ev.EventType == models.EventNormal {
		amountPaid = ev.RegistrationFee
	}

	if reg.TicketID == "" {
		ticketID, err := ticket.NewID()
		if err != nil {
			response.Internal(c, "failed to generate ticket")
			return
		}
		reg.TicketID = ticketID
	}
	if reg.QRCodeURL == "" {
		qrURL, err := h.renderer.Render(ticket.QRPayload{
			TicketID:      reg.TicketID,
			EventID:       ev.ID,
			ParticipantID: reg.ParticipantID,
			EventName:     ev.Name,
		})
		if err != nil {
			response.Internal(c, "failed to generate ticket QR")
			return
		}
		reg.QRCodeURL = qrURL
	}

	reg.Status = models.RegistrationApproved
	reg.AmountPaid = amountPaid
	reg.PaymentNote = req.Note

	if err := h.store.Approve(ctx, reg); err != nil {
		h.logger.Error("approve payment failed", zap.Error(err), zap.String("registration_id", reg.ID.String()))
		response.Internal(c, "failed to approve payment")
		return
	}

	// Merchandise orders only count as registrations once approved; Normal
	// registrations were counted at creation. The trending counter never
	// moves at approval time.
	regDelta := 0
	if ev.EventType == models.EventMerchandise {
		regDelta = 1
	}
	if err := h.events.IncrementCounters(ctx, ev.ID, regDelta, 0, amountPaid); err != nil {
		h.logger.Error("increment counters failed", zap.Error(err), zap.String("event_id", ev.ID.String()))
	}

	h.sendConfirmation(ctx, ev, reg)

	response.OKWithMessage(c, "Payment approved", gin.H{"registration": reg})
}

// reject releases a rejected Merchandise order's reserved stock; a rejected
// Normal registration keeps its counter contribution until the participant
// retries.
func (h *Handler) reject(c *gin.Context, req DecisionRequest) {
	ev, reg, ok := h.resolve(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if ev.EventType == models.EventMerchandise && reg.VariantID != nil {
		if err := h.events.RestoreStock(ctx, *reg.VariantID, reg.Quantity); err != nil {
			h.logger.Error("restore stock failed", zap.Error(err), zap.String("variant_id", reg.VariantID.String()))
			response.Internal(c, "failed to reject payment")
			return
		}
	}

	if err := h.store.Reject(ctx, reg.ID, req.Note); err != nil {
		h.logger.Error("reject payment failed", zap.Error(err), zap.String("registration_id", reg.ID.String()))
		response.Internal(c, "failed to reject payment")
		return
	}
	reg.Status = models.RegistrationRejected
	reg.PaymentNote = req.Note

	response.OKWithMessage(c, "Payment rejected", gin.H{"registration": reg})
}

func (h *Handler) sendConfirmation(ctx context.Context, ev *models.Event, reg *models.Registration) {
	if h.emails == nil {
		return
	}
	participant, err := h.users.GetByID(ctx, reg.ParticipantID)
	if err != nil || participant.Email == "" {
		return
	}

	payload := queue.EmailPayload{
		EventID:        ev.ID,
		RegistrationID: reg.ID,
		RecipientEmail: participant.Email,
		FirstName:      participant.FirstName,
		EventName:      ev.Name,
		TicketID:       reg.TicketID,
		QRCodeURL:      reg.QRCodeURL,
		StartDate:      ev.StartDate,
		AmountPaid:     reg.AmountPaid,
		OrganizerNote:  reg.PaymentNote,
	}
	if ev.EventType == models.EventMerchandise {
		payload.EmailType = queue.EmailMerchandiseOrder
		payload.Quantity = reg.Quantity
		if reg.VariantID != nil {
			if v := ev.VariantByID(*reg.VariantID); v != nil {
				payload.VariantName = v.Name
			}
		}
	} else {
		payload.EmailType = queue.EmailPaidTicket
	}

	if err := h.emails.EnqueueEmail(ctx, payload); err != nil {
		h.logger.Warn("enqueue confirmation email failed", zap.Error(err), zap.String("registration_id", reg.ID.String()))
	}
}
