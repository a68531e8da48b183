package events

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/felicity-fest/backend/internal/middleware"
	"github.com/felicity-fest/backend/internal/models"
	"github.com/felicity-fest/backend/pkg/response"
)

// Store defines event persistence used by the handler.
type Store interface {
	Create(ctx context.Context, ev *models.Event) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
	GetOwned(ctx context.Context, id, organizerID uuid.UUID) (*models.Event, error)
	Save(ctx context.Context, ev *models.Event) error
	List(ctx context.Context, f Filter) ([]models.Event, error)
	ListByOrganizer(ctx context.Context, organizerID uuid.UUID) ([]models.Event, error)
}

// UserStore provides the account lookups the event endpoints need.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FollowedOrganizers(ctx context.Context, participantID uuid.UUID) ([]uuid.UUID, error)
}

// Handler handles event HTTP endpoints.
type Handler struct {
	store    Store
	users    UserStore
	notifier Notifier
	logger   *zap.Logger
}

// NewHandler creates an event handler.
func NewHandler(store Store, users UserStore, notifier Notifier, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, users: users, notifier: notifier, logger: logger}
}

// CreateRequest is the body for POST /events.
type CreateRequest struct {
	Name                 string             `json:"name" binding:"required"`
	Description          string             `json:"description" binding:"required"`
	EventType            string             `json:"event_type" binding:"required"`
	RegistrationDeadline time.Time          `json:"registration_deadline" binding:"required"`
	StartDate            time.Time          `json:"start_date" binding:"required"`
	EndDate              time.Time          `json:"end_date" binding:"required"`
	Eligibility          string             `json:"eligibility"`
	RegistrationLimit    *int               `json:"registration_limit"`
	RegistrationFee      int                `json:"registration_fee"`
	Tags                 []string           `json:"tags"`
	FormFields           []models.FormField `json:"form_fields"`
	Variants             []models.Variant   `json:"variants"`
	PurchaseLimit        int                `json:"purchase_limit_per_participant"`
}

// organizer loads the calling organizer and rejects disabled accounts.
func (h *Handler) organizer(c *gin.Context) (*models.User, bool) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	user, err := h.users.GetByID(c.Request.Context(), userID)
	if err != nil {
		response.Unauthorized(c, "account not found")
		return nil, false
	}
	if user.Role == models.RoleOrganizer && !user.IsApproved {
		response.Forbidden(c, "your account has been disabled; contact the admin")
		return nil, false
	}
	return user, true
}

// Create handles POST /events (organizer only). Events always start as Draft.
func (h *Handler) Create(c *gin.Context) {
	user, ok := h.organizer(c)
	if !ok {
		return
	}

	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	var eventType models.EventType
	switch req.EventType {
	case string(models.EventNormal):
		eventType = models.EventNormal
	case string(models.EventMerchandise):
		eventType = models.EventMerchandise
	default:
		response.BadRequest(c, "event_type must be Normal or Merchandise")
		return
	}

	eligibility := models.EligibilityAll
	switch req.Eligibility {
	case "", string(models.EligibilityAll):
	case string(models.EligibilityIIIT):
		eligibility = models.EligibilityIIIT
	case string(models.EligibilityNonIIIT):
		eligibility = models.EligibilityNonIIIT
	default:
		response.BadRequest(c, "invalid eligibility")
		return
	}

	if req.RegistrationFee < 0 {
		response.BadRequest(c, "registration_fee cannot be negative")
		return
	}

	purchaseLimit := req.PurchaseLimit
	if purchaseLimit <= 0 {
		purchaseLimit = 1
	}

	ev := &models.Event{
		Name:                        req.Name,
		Description:                 req.Description,
		EventType:                   eventType,
		OrganizerID:                 user.ID,
		RegistrationDeadline:        req.RegistrationDeadline,
		StartDate:                   req.StartDate,
		EndDate:                     req.EndDate,
		Eligibility:                 eligibility,
		RegistrationLimit:           req.RegistrationLimit,
		RegistrationFee:             req.RegistrationFee,
		Tags:                        req.Tags,
		PurchaseLimitPerParticipant: purchaseLimit,
	}
	// The other type's sub-schema never applies.
	if eventType == models.EventNormal {
		ev.FormFields = req.FormFields
	} else {
		ev.Variants = req.Variants
		for _, v := range ev.Variants {
			if v.Stock < 0 || v.Price < 0 {
				response.BadRequest(c, "variant stock and price cannot be negative")
				return
			}
		}
	}

	if err := h.store.Create(c.Request.Context(), ev); err != nil {
		h.logger.Error("create event failed", zap.Error(err))
		response.Internal(c, "failed to create event")
		return
	}
	response.Created(c, ev)
}

// Update handles PATCH /events/:id: status transitions and field edits under
// the locking rules.
func (h *Handler) Update(c *gin.Context) {
	user, ok := h.organizer(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	ev, err := h.store.GetOwned(c.Request.Context(), id, user.ID)
	if err != nil {
		response.NotFound(c, "event not found")
		return
	}

	var upd Update
	if err := c.ShouldBindJSON(&upd); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	if err := Apply(ev, upd, time.Now()); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			response.BadRequest(c, err.Error())
			return
		}
		response.Internal(c, err.Error())
		return
	}

	if err := h.store.Save(c.Request.Context(), ev); err != nil {
		h.logger.Error("save event failed", zap.Error(err), zap.String("event_id", ev.ID.String()))
		response.Internal(c, "failed to update event")
		return
	}
	response.OK(c, ev)
}

// Publish handles PATCH /events/:id/publish (Draft -> Published). The only
// transition with an external side effect: a best-effort webhook announcement.
func (h *Handler) Publish(c *gin.Context) {
	user, ok := h.organizer(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	ev, err := h.store.GetOwned(c.Request.Context(), id, user.ID)
	if err != nil {
		response.NotFound(c, "event not found")
		return
	}
	if ev.Status != models.StatusDraft {
		response.BadRequest(c, "only Draft events can be published")
		return
	}

	ev.Status = models.StatusPublished
	if err := h.store.Save(c.Request.Context(), ev); err != nil {
		h.logger.Error("publish event failed", zap.Error(err), zap.String("event_id", ev.ID.String()))
		response.Internal(c, "failed to publish event")
		return
	}

	if user.DiscordWebhook != "" && h.notifier != nil {
		// Fire and forget: a webhook failure never rolls back the publish.
		go func(url string, published models.Event) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := h.notifier.NotifyPublished(ctx, url, &published); err != nil {
				h.logger.Warn("publish webhook failed", zap.Error(err), zap.String("event_id", published.ID.String()))
			}
		}(user.DiscordWebhook, *ev)
	}

	response.OK(c, ev)
}

// List handles GET /events: public browsing with search, filters, and trending.
func (h *Handler) List(c *gin.Context) {
	f := Filter{
		Search:      c.Query("search"),
		EventType:   models.EventType(c.Query("event_type")),
		Eligibility: models.Eligibility(c.Query("eligibility")),
		Trending:    c.Query("trending") == "true",
	}
	if v := c.Query("date_from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			response.BadRequest(c, "invalid date_from")
			return
		}
		f.DateFrom = &t
	}
	if v := c.Query("date_to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			response.BadRequest(c, "invalid date_to")
			return
		}
		f.DateTo = &t
	}
	if c.Query("followed_only") == "true" {
		if uid, exists := c.Get(middleware.ContextUserID); exists {
			followed, err := h.users.FollowedOrganizers(c.Request.Context(), uid.(uuid.UUID))
			if err == nil && len(followed) > 0 {
				f.Organizers = followed
			}
		}
	}

	list, err := h.store.List(c.Request.Context(), f)
	if err != nil {
		h.logger.Error("list events failed", zap.Error(err))
		response.Internal(c, "failed to list events")
		return
	}

	// Trending keeps its popularity order. Otherwise a logged-in participant
	// sees events matching their interests first.
	if !f.Trending {
		if uid, exists := c.Get(middleware.ContextUserID); exists {
			user, err := h.users.GetByID(c.Request.Context(), uid.(uuid.UUID))
			if err == nil && user.Role == models.RoleParticipant {
				rankByInterests(list, user.Interests)
			}
		}
	}

	response.OK(c, gin.H{"count": len(list), "events": list})
}

// rankByInterests stable-sorts events so those whose tags overlap the
// participant's interests come first. Matching is case-insensitive and
// substring in either direction, so a "Tech" interest matches a
// "technology" tag. Events with equal overlap keep their date order.
func rankByInterests(list []models.Event, interests []string) {
	if len(interests) == 0 {
		return
	}
	lowered := make([]string, 0, len(interests))
	for _, s := range interests {
		lowered = append(lowered, strings.ToLower(s))
	}
	overlap := func(ev *models.Event) int {
		n := 0
		for _, tag := range ev.Tags {
			t := strings.ToLower(tag)
			for _, in := range lowered {
				if strings.Contains(t, in) || strings.Contains(in, t) {
					n++
					break
				}
			}
		}
		return n
	}
	sort.SliceStable(list, func(i, j int) bool {
		return overlap(&list[i]) > overlap(&list[j])
	})
}

// GetByID handles GET /events/:id. Draft and Cancelled events are not public.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	ev, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, "event not found")
		return
	}
	if !ev.PubliclyVisible() {
		response.Forbidden(c, "event is not publicly accessible")
		return
	}
	response.OK(c, ev)
}

// MyEvents handles GET /events/organizer/my-events: every event of the caller, any status.
func (h *Handler) MyEvents(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	list, err := h.store.ListByOrganizer(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("list my events failed", zap.Error(err))
		response.Internal(c, "failed to list events")
		return
	}
	response.OK(c, gin.H{"count": len(list), "events": list})
}

// OrganizerGetByID handles GET /events/organizer/:id: owner detail at any status.
func (h *Handler) OrganizerGetByID(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	ev, err := h.store.GetOwned(c.Request.Context(), id, userID)
	if err != nil {
		response.NotFound(c, "event not found")
		return
	}
	response.OK(c, ev)
}
