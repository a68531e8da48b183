package registrations

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/felicity-fest/backend/internal/middleware"
	"github.com/felicity-fest/backend/internal/models"
	"github.com/felicity-fest/backend/internal/ticket"
	"github.com/felicity-fest/backend/pkg/queue"
	"github.com/felicity-fest/backend/pkg/response"
	"github.com/felicity-fest/backend/pkg/storage"
)

// RegisterRequest is the body for POST /events/:id/register.
type RegisterRequest struct {
	FormResponses []models.FormResponse `json:"form_responses"`
}

// PurchaseRequest is the body for POST /events/:id/purchase.
type PurchaseRequest struct {
	VariantID uuid.UUID `json:"variant_id" binding:"required"`
	Quantity  int       `json:"quantity"`
}

// UploadPaymentRequest is the body for PATCH .../upload-payment.
type UploadPaymentRequest struct {
	PaymentProofURL string `json:"payment_proof_url" binding:"required"`
}

// ProofUploadURLRequest is the body for POST .../proof-upload-url.
type ProofUploadURLRequest struct {
	Filename    string `json:"filename" binding:"required"`
	ContentType string `json:"content_type"`
}

// Handler handles registration HTTP endpoints.
type Handler struct {
	store    Store
	events   EventStore
	users    UserStore
	emails   EmailQueue
	proofs   ProofStorage
	renderer QRRenderer
	logger   *zap.Logger
}

// NewHandler creates a registrations handler. proofs may be nil when S3 is
// not configured; the proof-upload-url endpoint then reports unavailable.
func NewHandler(store Store, events EventStore, users UserStore, emails EmailQueue, proofs ProofStorage, renderer QRRenderer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, events: events, users: users, emails: emails, proofs: proofs, renderer: renderer, logger: logger}
}

// Register handles POST /events/:id/register (Normal events).
// Free events confirm instantly with a ticket; paid events create a Pending
// registration awaiting payment proof. Either way the event counters move at
// creation time.
func (h *Handler) Register(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	ctx := c.Request.Context()

	ev, err := h.events.GetByID(ctx, eventID)
	if err != nil {
		response.NotFound(c, "event not found")
		return
	}
	if ev.EventType != models.EventNormal {
		response.BadRequest(c, "use /purchase for Merchandise events")
		return
	}
	if err := checkOpen(ev, time.Now()); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := checkCapacity(ev); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	participantID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	participant, err := h.users.GetByID(ctx, participantID)
	if err != nil {
		response.Unauthorized(c, "account not found")
		return
	}
	if err := checkEligibility(ev, participant.ParticipantType); err != nil {
		response.Forbidden(c, err.Error())
		return
	}

	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	// One registration per (event, participant). A Rejected attempt is
	// deleted and its counter contribution reversed so the participant
	// can try again; anything else blocks re-registration.
	existing, err := h.store.FindByEventAndParticipant(ctx, ev.ID, participantID)
	if err == nil {
		if existing.Status != models.RegistrationRejected {
			response.BadRequest(c, ErrAlreadyRegistered.Error())
			return
		}
		if err := h.store.Delete(ctx, existing.ID); err != nil {
			h.logger.Error("delete rejected registration failed", zap.Error(err))
			response.Internal(c, "failed to register")
			return
		}
		if err := h.events.IncrementCounters(ctx, ev.ID, -1, 0, 0); err != nil {
			h.logger.Error("decrement counter failed", zap.Error(err), zap.String("event_id", ev.ID.String()))
			response.Internal(c, "failed to register")
			return
		}
	} else if !errors.Is(err, ErrNotFound) {
		response.Internal(c, "failed to register")
		return
	}

	isPaid := ev.RegistrationFee > 0

	reg := &models.Registration{
		EventID:       ev.ID,
		ParticipantID: participantID,
		FormResponses: req.FormResponses,
		Status:        models.RegistrationPending,
	}
	if !isPaid {
		// Free path: ticket and QR are issued immediately.
		ticketID, err := ticket.NewID()
		if err != nil {
			response.Internal(c, "failed to generate ticket")
			return
		}
		qrURL, err := h.renderer.Render(ticket.QRPayload{
			TicketID:      ticketID,
			EventID:       ev.ID,
			ParticipantID: participantID,
			EventName:     ev.Name,
		})
		if err != nil {
			response.Internal(c, "failed to generate ticket QR")
			return
		}
		reg.Status = models.RegistrationConfirmed
		reg.TicketID = ticketID
		reg.QRCodeURL = qrURL
		reg.AmountPaid = ev.RegistrationFee
	}

	if err := h.store.Create(ctx, reg); err != nil {
		h.logger.Error("create registration failed", zap.Error(err), zap.String("event_id", ev.ID.String()))
		response.Internal(c, "failed to register")
		return
	}

	// Paid registrations count toward registrationCount at creation time,
	// before approval; revenue waits for payment approval.
	if err := h.events.IncrementCounters(ctx, ev.ID, 1, 1, 0); err != nil {
		h.logger.Error("increment counters failed", zap.Error(err), zap.String("event_id", ev.ID.String()))
	}
	if !ev.FormLocked {
		if err := h.events.LockForm(ctx, ev.ID); err != nil {
			h.logger.Error("lock form failed", zap.Error(err), zap.String("event_id", ev.ID.String()))
		}
	}

	if !isPaid && h.emails != nil && participant.Email != "" {
		if err := h.emails.EnqueueEmail(ctx, queue.EmailPayload{
			EmailType:      queue.EmailFreeTicket,
			EventID:        ev.ID,
			RegistrationID: reg.ID,
			RecipientEmail: participant.Email,
			FirstName:      participant.FirstName,
			EventName:      ev.Name,
			TicketID:       reg.TicketID,
			QRCodeURL:      reg.QRCodeURL,
			StartDate:      ev.StartDate,
		}); err != nil {
			h.logger.Warn("enqueue confirmation email failed", zap.Error(err))
		}
	}

	msg := "Registered successfully"
	if isPaid {
		msg = "Registered! Please upload payment proof to confirm."
	}
	response.CreatedWithMessage(c, msg, gin.H{"registration": reg})
}

// Purchase handles POST /events/:id/purchase (Merchandise events).
// Stock is reserved immediately; registrationCount moves only at approval.
func (h *Handler) Purchase(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	ctx := c.Request.Context()

	ev, err := h.events.GetByID(ctx, eventID)
	if err != nil {
		response.NotFound(c, "event not found")
		return
	}
	if ev.EventType != models.EventMerchandise {
		response.BadRequest(c, "use /register for Normal events")
		return
	}
	if err := checkOpen(ev, time.Now()); err != nil {
		if errors.Is(err, ErrNotOpen) {
			response.BadRequest(c, "event is not open for purchase")
			return
		}
		response.BadRequest(c, "purchase deadline has passed")
		return
	}

	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	participantID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	variant := ev.VariantByID(req.VariantID)

	prior, err := h.store.SumPurchased(ctx, ev.ID, participantID)
	if err != nil {
		response.Internal(c, "failed to check purchase limit")
		return
	}
	if err := checkPurchase(ev, variant, req.Quantity, prior); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	// Reserve stock up front; rejection restores it. The conditional update
	// is the authoritative stock check under concurrency.
	ok, err := h.events.ReserveStock(ctx, variant.ID, req.Quantity)
	if err != nil {
		response.Internal(c, "failed to reserve stock")
		return
	}
	if !ok {
		response.BadRequest(c, ErrInsufficientStock.Error())
		return
	}

	ticketID, err := ticket.NewID()
	if err != nil {
		response.Internal(c, "failed to generate ticket")
		return
	}
	reg := &models.Registration{
		EventID:       ev.ID,
		ParticipantID: participantID,
		Status:        models.RegistrationPending,
		VariantID:     &variant.ID,
		Quantity:      req.Quantity,
		TicketID:      ticketID,
		AmountPaid:    variant.Price * req.Quantity,
	}
	if err := h.store.Create(ctx, reg); err != nil {
		h.logger.Error("create purchase failed", zap.Error(err), zap.String("event_id", ev.ID.String()))
		// Hand the reserved stock back so a failed insert cannot leak inventory.
		if restoreErr := h.events.RestoreStock(ctx, variant.ID, req.Quantity); restoreErr != nil {
			h.logger.Error("restore stock after failed purchase", zap.Error(restoreErr),
				zap.String("variant_id", variant.ID.String()))
		}
		response.Internal(c, "failed to create purchase")
		return
	}

	response.CreatedWithMessage(c, "Purchase created. Please upload payment proof.", gin.H{"registration": reg})
}

// UploadPayment handles PATCH /events/:id/registrations/:regId/upload-payment.
func (h *Handler) UploadPayment(c *gin.Context) {
	regID, err := uuid.Parse(c.Param("regId"))
	if err != nil {
		response.BadRequest(c, "invalid registration id")
		return
	}
	var req UploadPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "payment_proof_url is required")
		return
	}

	participantID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	reg, err := h.store.GetOwnedByParticipant(c.Request.Context(), regID, participantID)
	if err != nil {
		response.NotFound(c, "registration not found")
		return
	}

	if err := h.store.SetPaymentProof(c.Request.Context(), reg.ID, req.PaymentProofURL); err != nil {
		h.logger.Error("set payment proof failed", zap.Error(err))
		response.Internal(c, "failed to upload payment proof")
		return
	}
	reg.PaymentProofURL = req.PaymentProofURL
	response.OKWithMessage(c, "Payment proof uploaded", gin.H{"registration": reg})
}

// ProofUploadURL handles POST /events/:id/registrations/:regId/proof-upload-url.
// Returns a pre-signed S3 PUT URL plus the public URL to store via upload-payment.
func (h *Handler) ProofUploadURL(c *gin.Context) {
	if h.proofs == nil {
		response.ServiceUnavailable(c, "proof storage is not configured")
		return
	}
	eventID := c.Param("id")
	regID, err := uuid.Parse(c.Param("regId"))
	if err != nil {
		response.BadRequest(c, "invalid registration id")
		return
	}
	var req ProofUploadURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "filename is required")
		return
	}
	if !storage.ValidateProofFileType(req.ContentType, req.Filename) {
		response.BadRequest(c, "unsupported proof file type")
		return
	}

	participantID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	reg, err := h.store.GetOwnedByParticipant(c.Request.Context(), regID, participantID)
	if err != nil {
		response.NotFound(c, "registration not found")
		return
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = storage.ContentTypeForFilename(req.Filename)
	}
	key := storage.ProofKey(eventID, reg.ID.String(), req.Filename)
	uploadURL, err := h.proofs.GeneratePresignedUploadURL(c.Request.Context(),
		h.proofs.ProofsBucket(), key, contentType, h.proofs.PresignExpire())
	if err != nil {
		h.logger.Error("presign proof upload failed", zap.Error(err))
		response.Internal(c, "failed to create upload URL")
		return
	}

	response.OK(c, gin.H{
		"upload_url":        uploadURL,
		"payment_proof_url": h.proofs.PublicObjectURL(h.proofs.ProofsBucket(), key),
		"expires_in_sec":    int(h.proofs.PresignExpire().Seconds()),
	})
}

// ListByEvent handles GET /events/:id/registrations (organizer only).
func (h *Handler) ListByEvent(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	organizerID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	if _, err := h.events.GetOwned(c.Request.Context(), eventID, organizerID); err != nil {
		response.NotFound(c, "event not found")
		return
	}

	list, err := h.store.ListByEvent(c.Request.Context(), eventID)
	if err != nil {
		h.logger.Error("list registrations failed", zap.Error(err))
		response.Internal(c, "failed to list registrations")
		return
	}
	response.OK(c, gin.H{"count": len(list), "registrations": list})
}
