package registrations

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/felicity-fest/backend/internal/middleware"
	"github.com/felicity-fest/backend/internal/models"
	"github.com/felicity-fest/backend/internal/ticket"
	"github.com/felicity-fest/backend/pkg/queue"
)

type mockEventStore struct{ mock.Mock }

func (m *mockEventStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Event), args.Error(1)
}

func (m *mockEventStore) GetOwned(ctx context.Context, id, organizerID uuid.UUID) (*models.Event, error) {
	args := m.Called(ctx, id, organizerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Event), args.Error(1)
}

func (m *mockEventStore) IncrementCounters(ctx context.Context, eventID uuid.UUID, registrations, recent, revenue int) error {
	return m.Called(ctx, eventID, registrations, recent, revenue).Error(0)
}

func (m *mockEventStore) LockForm(ctx context.Context, eventID uuid.UUID) error {
	return m.Called(ctx, eventID).Error(0)
}

func (m *mockEventStore) ReserveStock(ctx context.Context, variantID uuid.UUID, quantity int) (bool, error) {
	args := m.Called(ctx, variantID, quantity)
	return args.Bool(0), args.Error(1)
}

func (m *mockEventStore) RestoreStock(ctx context.Context, variantID uuid.UUID, quantity int) error {
	return m.Called(ctx, variantID, quantity).Error(0)
}

type mockStore struct{ mock.Mock }

func (m *mockStore) Create(ctx context.Context, reg *models.Registration) error {
	args := m.Called(ctx, reg)
	if args.Error(0) == nil && reg.ID == uuid.Nil {
		reg.ID = uuid.New()
	}
	return args.Error(0)
}

func (m *mockStore) GetOwnedByParticipant(ctx context.Context, id, participantID uuid.UUID) (*models.Registration, error) {
	args := m.Called(ctx, id, participantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Registration), args.Error(1)
}

func (m *mockStore) FindByEventAndParticipant(ctx context.Context, eventID, participantID uuid.UUID) (*models.Registration, error) {
	args := m.Called(ctx, eventID, participantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Registration), args.Error(1)
}

func (m *mockStore) Delete(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockStore) SumPurchased(ctx context.Context, eventID, participantID uuid.UUID) (int, error) {
	args := m.Called(ctx, eventID, participantID)
	return args.Int(0), args.Error(1)
}

func (m *mockStore) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]RegistrantRow, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]RegistrantRow), args.Error(1)
}

func (m *mockStore) SetPaymentProof(ctx context.Context, id uuid.UUID, proofURL string) error {
	return m.Called(ctx, id, proofURL).Error(0)
}

type mockUserStore struct{ mock.Mock }

func (m *mockUserStore) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

type mockEmailQueue struct{ mock.Mock }

func (m *mockEmailQueue) EnqueueEmail(ctx context.Context, payload queue.EmailPayload) error {
	return m.Called(ctx, payload).Error(0)
}

type stubRenderer struct{}

func (stubRenderer) Render(p ticket.QRPayload) (string, error) {
	return "https://qr.test/" + p.TicketID, nil
}

type fixture struct {
	store  *mockStore
	events *mockEventStore
	users  *mockUserStore
	emails *mockEmailQueue
	h      *Handler
}

func newFixture() *fixture {
	f := &fixture{
		store:  &mockStore{},
		events: &mockEventStore{},
		users:  &mockUserStore{},
		emails: &mockEmailQueue{},
	}
	f.h = NewHandler(f.store, f.events, f.users, f.emails, nil, stubRenderer{}, nil)
	return f
}

func perform(h gin.HandlerFunc, method, path string, body any, userID uuid.UUID, params gin.Params) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	var buf *bytes.Buffer
	if body != nil {
		raw, _ := json.Marshal(body)
		buf = bytes.NewBuffer(raw)
	} else {
		buf = bytes.NewBuffer(nil)
	}
	req, _ := http.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	if body == nil {
		req.ContentLength = 0
	}
	c.Request = req
	c.Params = params
	c.Set(middleware.ContextUserID, userID)
	h(c)
	return w
}

func normalEvent() *models.Event {
	return &models.Event{
		ID:                   uuid.New(),
		Name:                 "Quiz Night",
		EventType:            models.EventNormal,
		Status:               models.StatusPublished,
		Eligibility:          models.EligibilityAll,
		RegistrationDeadline: time.Now().Add(24 * time.Hour),
		StartDate:            time.Now().Add(48 * time.Hour),
	}
}

func participant(id uuid.UUID) *models.User {
	return &models.User{
		ID:              id,
		Email:           "p@example.com",
		Role:            models.RoleParticipant,
		FirstName:       "Asha",
		ParticipantType: models.ParticipantIIIT,
	}
}

func eventParams(ev *models.Event) gin.Params {
	return gin.Params{{Key: "id", Value: ev.ID.String()}}
}

func TestRegisterFreeEvent(t *testing.T) {
	f := newFixture()
	ev := normalEvent()
	uid := uuid.New()

	f.events.On("GetByID", mock.Anything, ev.ID).Return(ev, nil)
	f.users.On("GetByID", mock.Anything, uid).Return(participant(uid), nil)
	f.store.On("FindByEventAndParticipant", mock.Anything, ev.ID, uid).Return(nil, ErrNotFound)
	f.store.On("Create", mock.Anything, mock.MatchedBy(func(r *models.Registration) bool {
		return r.Status == models.RegistrationConfirmed && r.TicketID != "" && r.QRCodeURL != ""
	})).Return(nil)
	f.events.On("IncrementCounters", mock.Anything, ev.ID, 1, 1, 0).Return(nil)
	f.events.On("LockForm", mock.Anything, ev.ID).Return(nil)
	f.emails.On("EnqueueEmail", mock.Anything, mock.MatchedBy(func(p queue.EmailPayload) bool {
		return p.EmailType == queue.EmailFreeTicket && p.RecipientEmail == "p@example.com"
	})).Return(nil)

	w := perform(f.h.Register, http.MethodPost, "/events/"+ev.ID.String()+"/register", nil, uid, eventParams(ev))

	assert.Equal(t, http.StatusCreated, w.Code)
	f.store.AssertExpectations(t)
	f.events.AssertExpectations(t)
	f.emails.AssertExpectations(t)
}

func TestRegisterPaidEventStaysPending(t *testing.T) {
	f := newFixture()
	ev := normalEvent()
	ev.RegistrationFee = 150
	uid := uuid.New()

	f.events.On("GetByID", mock.Anything, ev.ID).Return(ev, nil)
	f.users.On("GetByID", mock.Anything, uid).Return(participant(uid), nil)
	f.store.On("FindByEventAndParticipant", mock.Anything, ev.ID, uid).Return(nil, ErrNotFound)
	f.store.On("Create", mock.Anything, mock.MatchedBy(func(r *models.Registration) bool {
		return r.Status == models.RegistrationPending && r.TicketID == "" && r.AmountPaid == 0
	})).Return(nil)
	// Counted at creation; revenue waits for approval.
	f.events.On("IncrementCounters", mock.Anything, ev.ID, 1, 1, 0).Return(nil)
	f.events.On("LockForm", mock.Anything, ev.ID).Return(nil)

	w := perform(f.h.Register, http.MethodPost, "/events/"+ev.ID.String()+"/register", nil, uid, eventParams(ev))

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "payment proof")
	f.emails.AssertNotCalled(t, "EnqueueEmail", mock.Anything, mock.Anything)
	f.store.AssertExpectations(t)
	f.events.AssertExpectations(t)
}

func TestRegisterDuplicateBlocked(t *testing.T) {
	f := newFixture()
	ev := normalEvent()
	uid := uuid.New()

	f.events.On("GetByID", mock.Anything, ev.ID).Return(ev, nil)
	f.users.On("GetByID", mock.Anything, uid).Return(participant(uid), nil)
	f.store.On("FindByEventAndParticipant", mock.Anything, ev.ID, uid).
		Return(&models.Registration{ID: uuid.New(), Status: models.RegistrationConfirmed}, nil)

	w := perform(f.h.Register, http.MethodPost, "/events/"+ev.ID.String()+"/register", nil, uid, eventParams(ev))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	f.store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRegisterRejectedRetryDecrementsAndRecreates(t *testing.T) {
	f := newFixture()
	ev := normalEvent()
	ev.RegistrationFee = 150
	uid := uuid.New()
	rejectedID := uuid.New()

	f.events.On("GetByID", mock.Anything, ev.ID).Return(ev, nil)
	f.users.On("GetByID", mock.Anything, uid).Return(participant(uid), nil)
	f.store.On("FindByEventAndParticipant", mock.Anything, ev.ID, uid).
		Return(&models.Registration{ID: rejectedID, Status: models.RegistrationRejected}, nil)
	f.store.On("Delete", mock.Anything, rejectedID).Return(nil)
	f.events.On("IncrementCounters", mock.Anything, ev.ID, -1, 0, 0).Return(nil)
	f.store.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.events.On("IncrementCounters", mock.Anything, ev.ID, 1, 1, 0).Return(nil)
	f.events.On("LockForm", mock.Anything, ev.ID).Return(nil)

	w := perform(f.h.Register, http.MethodPost, "/events/"+ev.ID.String()+"/register", nil, uid, eventParams(ev))

	assert.Equal(t, http.StatusCreated, w.Code)
	f.store.AssertExpectations(t)
	f.events.AssertExpectations(t)
}

func TestRegisterLimitReached(t *testing.T) {
	f := newFixture()
	ev := normalEvent()
	limit := 50
	ev.RegistrationLimit = &limit
	ev.RegistrationCount = 50
	uid := uuid.New()

	f.events.On("GetByID", mock.Anything, ev.ID).Return(ev, nil)

	w := perform(f.h.Register, http.MethodPost, "/events/"+ev.ID.String()+"/register", nil, uid, eventParams(ev))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "limit")
}

func TestRegisterWrongEventType(t *testing.T) {
	f := newFixture()
	ev := normalEvent()
	ev.EventType = models.EventMerchandise

	f.events.On("GetByID", mock.Anything, ev.ID).Return(ev, nil)

	w := perform(f.h.Register, http.MethodPost, "/events/"+ev.ID.String()+"/register", nil, uuid.New(), eventParams(ev))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "purchase")
}

func TestRegisterEligibilityRejected(t *testing.T) {
	f := newFixture()
	ev := normalEvent()
	ev.Eligibility = models.EligibilityIIIT
	uid := uuid.New()
	p := participant(uid)
	p.ParticipantType = models.ParticipantNonIIIT

	f.events.On("GetByID", mock.Anything, ev.ID).Return(ev, nil)
	f.users.On("GetByID", mock.Anything, uid).Return(p, nil)

	w := perform(f.h.Register, http.MethodPost, "/events/"+ev.ID.String()+"/register", nil, uid, eventParams(ev))

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func merchEvent() *models.Event {
	ev := normalEvent()
	ev.EventType = models.EventMerchandise
	ev.PurchaseLimitPerParticipant = 2
	ev.Variants = []models.Variant{
		{ID: uuid.New(), Name: "Hoodie M", Stock: 10, Price: 800},
	}
	return ev
}

func TestPurchaseReservesStockWithoutCounting(t *testing.T) {
	f := newFixture()
	ev := merchEvent()
	uid := uuid.New()
	variant := ev.Variants[0]

	f.events.On("GetByID", mock.Anything, ev.ID).Return(ev, nil)
	f.store.On("SumPurchased", mock.Anything, ev.ID, uid).Return(0, nil)
	f.events.On("ReserveStock", mock.Anything, variant.ID, 2).Return(true, nil)
	f.store.On("Create", mock.Anything, mock.MatchedBy(func(r *models.Registration) bool {
		return r.Status == models.RegistrationPending &&
			r.VariantID != nil && *r.VariantID == variant.ID &&
			r.Quantity == 2 && r.AmountPaid == 1600 && r.TicketID != ""
	})).Return(nil)

	body := PurchaseRequest{VariantID: variant.ID, Quantity: 2}
	w := perform(f.h.Purchase, http.MethodPost, "/events/"+ev.ID.String()+"/purchase", body, uid, eventParams(ev))

	require.Equal(t, http.StatusCreated, w.Code)
	// Merchandise orders never move the registration counter before approval.
	f.events.AssertNotCalled(t, "IncrementCounters", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.store.AssertExpectations(t)
	f.events.AssertExpectations(t)
}

func TestPurchaseInsufficientStock(t *testing.T) {
	f := newFixture()
	ev := merchEvent()
	uid := uuid.New()
	variant := ev.Variants[0]

	f.events.On("GetByID", mock.Anything, ev.ID).Return(ev, nil)
	f.store.On("SumPurchased", mock.Anything, ev.ID, uid).Return(0, nil)
	f.events.On("ReserveStock", mock.Anything, variant.ID, 2).Return(false, nil)

	body := PurchaseRequest{VariantID: variant.ID, Quantity: 2}
	w := perform(f.h.Purchase, http.MethodPost, "/events/"+ev.ID.String()+"/purchase", body, uid, eventParams(ev))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "stock")
	f.store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestPurchaseLimitAcrossOrders(t *testing.T) {
	f := newFixture()
	ev := merchEvent()
	uid := uuid.New()
	variant := ev.Variants[0]

	f.events.On("GetByID", mock.Anything, ev.ID).Return(ev, nil)
	f.store.On("SumPurchased", mock.Anything, ev.ID, uid).Return(2, nil)

	body := PurchaseRequest{VariantID: variant.ID, Quantity: 1}
	w := perform(f.h.Purchase, http.MethodPost, "/events/"+ev.ID.String()+"/purchase", body, uid, eventParams(ev))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	f.events.AssertNotCalled(t, "ReserveStock", mock.Anything, mock.Anything, mock.Anything)
}

func TestPurchaseUnknownVariant(t *testing.T) {
	f := newFixture()
	ev := merchEvent()
	uid := uuid.New()

	f.events.On("GetByID", mock.Anything, ev.ID).Return(ev, nil)
	f.store.On("SumPurchased", mock.Anything, ev.ID, uid).Return(0, nil)

	body := PurchaseRequest{VariantID: uuid.New(), Quantity: 1}
	w := perform(f.h.Purchase, http.MethodPost, "/events/"+ev.ID.String()+"/purchase", body, uid, eventParams(ev))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "variant")
}

func TestUploadPaymentRequiresOwnership(t *testing.T) {
	f := newFixture()
	ev := normalEvent()
	uid := uuid.New()
	regID := uuid.New()

	f.store.On("GetOwnedByParticipant", mock.Anything, regID, uid).Return(nil, ErrNotFound)

	params := gin.Params{
		{Key: "id", Value: ev.ID.String()},
		{Key: "regId", Value: regID.String()},
	}
	body := UploadPaymentRequest{PaymentProofURL: "https://bucket/proofs/x.jpg"}
	w := perform(f.h.UploadPayment, http.MethodPatch, "/events/x/registrations/y/upload-payment", body, uid, params)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUploadPaymentStoresProof(t *testing.T) {
	f := newFixture()
	ev := normalEvent()
	uid := uuid.New()
	reg := &models.Registration{ID: uuid.New(), EventID: ev.ID, ParticipantID: uid, Status: models.RegistrationPending}

	f.store.On("GetOwnedByParticipant", mock.Anything, reg.ID, uid).Return(reg, nil)
	f.store.On("SetPaymentProof", mock.Anything, reg.ID, "https://bucket/proofs/x.jpg").Return(nil)

	params := gin.Params{
		{Key: "id", Value: ev.ID.String()},
		{Key: "regId", Value: reg.ID.String()},
	}
	body := UploadPaymentRequest{PaymentProofURL: "https://bucket/proofs/x.jpg"}
	w := perform(f.h.UploadPayment, http.MethodPatch, "/events/x/registrations/y/upload-payment", body, uid, params)

	assert.Equal(t, http.StatusOK, w.Code)
	f.store.AssertExpectations(t)
}
