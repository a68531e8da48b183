package attendance

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/felicity-fest/backend/internal/middleware"
	"github.com/felicity-fest/backend/internal/models"
	"github.com/felicity-fest/backend/pkg/response"
)

// Store defines attendance persistence.
type Store interface {
	GetForEvent(ctx context.Context, id, eventID uuid.UUID) (*models.Registration, error)
	GetByTicket(ctx context.Context, eventID uuid.UUID, ticketID string) (*models.Registration, error)
	SetAttendance(ctx context.Context, id uuid.UUID, attended bool, attendedAt *time.Time, note string, entry models.AttendanceEntry) error
}

// EventStore provides the ownership check for all attendance endpoints.
type EventStore interface {
	GetOwned(ctx context.Context, id, organizerID uuid.UUID) (*models.Event, error)
}

// Handler handles the organizer attendance endpoints.
type Handler struct {
	store  Store
	events EventStore
	logger *zap.Logger
}

// NewHandler creates an attendance handler.
func NewHandler(store Store, events EventStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, events: events, logger: logger}
}

// MarkRequest is the optional body for the direct attendance mark.
type MarkRequest struct {
	Note string `json:"note"`
}

// OverrideRequest is the body for the manual attendance override.
type OverrideRequest struct {
	Action string `json:"action" binding:"required"`
	Note   string `json:"note"`
}

// ownedEvent parses :id and checks the caller owns the event.
func (h *Handler) ownedEvent(c *gin.Context) (*models.Event, bool) {
	organizerID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return nil, false
	}
	ev, err := h.events.GetOwned(c.Request.Context(), eventID, organizerID)
	if err != nil {
		response.NotFound(c, "event not found")
		return nil, false
	}
	return ev, true
}

func ticketed(reg *models.Registration) bool {
	return reg.Status == models.RegistrationConfirmed || reg.Status == models.RegistrationApproved
}

// Mark handles PATCH /events/:id/registrations/:regId/attendance. Marking a
// participant who is already checked in is an error here; the scan endpoint
// is the idempotent path.
func (h *Handler) Mark(c *gin.Context) {
	ev, ok := h.ownedEvent(c)
	if !ok {
		return
	}
	regID, err := uuid.Parse(c.Param("regId"))
	if err != nil {
		response.BadRequest(c, "invalid registration id")
		return
	}
	reg, err := h.store.GetForEvent(c.Request.Context(), regID, ev.ID)
	if err != nil {
		response.NotFound(c, "registration not found")
		return
	}
	if !ticketed(reg) {
		response.BadRequest(c, "registration is not confirmed")
		return
	}
	if reg.Attended {
		response.BadRequest(c, "participant is already marked attended")
		return
	}

	var req MarkRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid request: "+err.Error())
			return
		}
	}

	if err := h.mark(c, reg, req.Note); err != nil {
		response.Internal(c, "failed to mark attendance")
		return
	}
	response.OKWithMessage(c, "Attendance marked", gin.H{"registration": reg})
}

// Scan handles GET /events/:id/registrations/scan/:ticketId: resolves a
// scanned or hand-typed ticket within the event and checks the participant
// in. A second scan of the same ticket is reported, not rejected, so gate
// volunteers see who already entered and when.
func (h *Handler) Scan(c *gin.Context) {
	ev, ok := h.ownedEvent(c)
	if !ok {
		return
	}
	ticketID := strings.TrimSpace(c.Param("ticketId"))
	if ticketID == "" {
		response.BadRequest(c, "ticket id is required")
		return
	}

	reg, err := h.store.GetByTicket(c.Request.Context(), ev.ID, ticketID)
	if err != nil {
		response.NotFound(c, "ticket not found for this event")
		return
	}
	if !ticketed(reg) {
		response.BadRequest(c, "registration is not confirmed")
		return
	}
	if reg.Attended {
		response.OKWithMessage(c, "Ticket already scanned", gin.H{
			"already_scanned": true,
			"attended_at":     reg.AttendedAt,
			"registration":    reg,
		})
		return
	}

	if err := h.mark(c, reg, ""); err != nil {
		response.Internal(c, "failed to mark attendance")
		return
	}
	response.OKWithMessage(c, "Attendance marked", gin.H{
		"already_scanned": false,
		"registration":    reg,
	})
}

// Override handles PATCH /events/:id/registrations/:regId/manual-attend.
// Corrections in either direction require a non-empty note; every override is
// recorded in the audit log.
func (h *Handler) Override(c *gin.Context) {
	ev, ok := h.ownedEvent(c)
	if !ok {
		return
	}
	regID, err := uuid.Parse(c.Param("regId"))
	if err != nil {
		response.BadRequest(c, "invalid registration id")
		return
	}
	var req OverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Note) == "" {
		response.BadRequest(c, "a note is required for attendance overrides")
		return
	}
	action := models.AttendanceAction(req.Action)
	if action != models.AttendanceMark && action != models.AttendanceUnmark {
		response.BadRequest(c, "action must be mark or unmark")
		return
	}

	reg, err := h.store.GetForEvent(c.Request.Context(), regID, ev.ID)
	if err != nil {
		response.NotFound(c, "registration not found")
		return
	}

	now := time.Now()
	entry := models.AttendanceEntry{
		Action:    action,
		Note:      req.Note,
		ActorID:   c.MustGet(middleware.ContextUserID).(uuid.UUID),
		Timestamp: now,
	}

	attended := action == models.AttendanceMark
	var attendedAt *time.Time
	if attended {
		attendedAt = &now
	}
	if err := h.store.SetAttendance(c.Request.Context(), reg.ID, attended, attendedAt, req.Note, entry); err != nil {
		h.logger.Error("attendance override failed", zap.Error(err), zap.String("registration_id", reg.ID.String()))
		response.Internal(c, "failed to override attendance")
		return
	}
	reg.Attended = attended
	reg.AttendedAt = attendedAt
	reg.AttendanceNote = req.Note
	reg.AttendanceLog = append(reg.AttendanceLog, entry)

	response.OKWithMessage(c, "Attendance updated", gin.H{"registration": reg})
}

// mark performs the shared check-in write and updates reg in place.
func (h *Handler) mark(c *gin.Context, reg *models.Registration, note string) error {
	now := time.Now()
	entry := models.AttendanceEntry{
		Action:    models.AttendanceMark,
		Note:      note,
		ActorID:   c.MustGet(middleware.ContextUserID).(uuid.UUID),
		Timestamp: now,
	}
	if err := h.store.SetAttendance(c.Request.Context(), reg.ID, true, &now, note, entry); err != nil {
		h.logger.Error("mark attendance failed", zap.Error(err), zap.String("registration_id", reg.ID.String()))
		return err
	}
	reg.Attended = true
	reg.AttendedAt = &now
	reg.AttendanceNote = note
	reg.AttendanceLog = append(reg.AttendanceLog, entry)
	return nil
}
