package attendance

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
)

type mockStore struct{ mock.Mock }

func (m *mockStore) GetForEvent(ctx context.Context, id, eventID uuid.UUID) (*models.Registration, error) {
	args := m.Called(ctx, id, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Registration), args.Error(1)
}

func (m *mockStore) GetByTicket(ctx context.Context, eventID uuid.UUID, ticketID string) (*models.Registration, error) {
	args := m.Called(ctx, eventID, ticketID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Registration), args.Error(1)
}

func (m *mockStore) SetAttendance(ctx context.Context, id uuid.UUID, attended bool, attendedAt *time.Time, note string, entry models.AttendanceEntry) error {
	return m.Called(ctx, id, attended, attendedAt, note, entry).Error(0)
}

type mockEventStore struct{ mock.Mock }

func (m *mockEventStore) GetOwned(ctx context.Context, id, organizerID uuid.UUID) (*models.Event, error) {
	args := m.Called(ctx, id, organizerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Event), args.Error(1)
}

type fixture struct {
	store  *mockStore
	events *mockEventStore
	h      *Handler
}

func newFixture() *fixture {
	f := &fixture{store: &mockStore{}, events: &mockEventStore{}}
	f.h = NewHandler(f.store, f.events, nil)
	return f
}

func perform(h gin.HandlerFunc, method string, body any, organizerID uuid.UUID, params gin.Params) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	raw, _ := json.Marshal(body)
	req, _ := http.NewRequest(method, "/", bytes.NewBuffer(raw))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = params
	c.Set(middleware.ContextUserID, organizerID)
	h(c)
	return w
}

func ownedEvent(organizerID uuid.UUID) *models.Event {
	return &models.Event{
		ID:          uuid.New(),
		Name:        "Dance Battle",
		EventType:   models.EventNormal,
		Status:      models.StatusOngoing,
		OrganizerID: organizerID,
	}
}

func confirmedReg(ev *models.Event) *models.Registration {
	return &models.Registration{
		ID:            uuid.New(),
		EventID:       ev.ID,
		ParticipantID: uuid.New(),
		Status:        models.RegistrationConfirmed,
		TicketID:      "TKT-0123456789",
	}
}

func regParams(ev *models.Event, reg *models.Registration) gin.Params {
	return gin.Params{
		{Key: "id", Value: ev.ID.String()},
		{Key: "regId", Value: reg.ID.String()},
	}
}

func TestMarkAttendance(t *testing.T) {
	f := newFixture()
	orgID := uuid.New()
	ev := ownedEvent(orgID)
	reg := confirmedReg(ev)

	f.events.On("GetOwned", mock.Anything, ev.ID, orgID).Return(ev, nil)
	f.store.On("GetForEvent", mock.Anything, reg.ID, ev.ID).Return(reg, nil)
	f.store.On("SetAttendance", mock.Anything, reg.ID, true, mock.Anything, "",
		mock.MatchedBy(func(e models.AttendanceEntry) bool {
			return e.Action == models.AttendanceMark && e.ActorID == orgID
		})).Return(nil)

	w := perform(f.h.Mark, http.MethodPatch, nil, orgID, regParams(ev, reg))

	require.Equal(t, http.StatusOK, w.Code)
	f.store.AssertExpectations(t)
}

func TestMarkAttendanceStoresOptionalNote(t *testing.T) {
	f := newFixture()
	orgID := uuid.New()
	ev := ownedEvent(orgID)
	reg := confirmedReg(ev)

	f.events.On("GetOwned", mock.Anything, ev.ID, orgID).Return(ev, nil)
	f.store.On("GetForEvent", mock.Anything, reg.ID, ev.ID).Return(reg, nil)
	f.store.On("SetAttendance", mock.Anything, reg.ID, true, mock.Anything, "walk-in at gate 2",
		mock.MatchedBy(func(e models.AttendanceEntry) bool {
			return e.Action == models.AttendanceMark && e.Note == "walk-in at gate 2"
		})).Return(nil)

	w := perform(f.h.Mark, http.MethodPatch,
		MarkRequest{Note: "walk-in at gate 2"}, orgID, regParams(ev, reg))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "walk-in at gate 2", reg.AttendanceNote)
	f.store.AssertExpectations(t)
}

func TestMarkAlreadyAttendedFails(t *testing.T) {
	f := newFixture()
	orgID := uuid.New()
	ev := ownedEvent(orgID)
	reg := confirmedReg(ev)
	now := time.Now()
	reg.Attended = true
	reg.AttendedAt = &now

	f.events.On("GetOwned", mock.Anything, ev.ID, orgID).Return(ev, nil)
	f.store.On("GetForEvent", mock.Anything, reg.ID, ev.ID).Return(reg, nil)

	w := perform(f.h.Mark, http.MethodPatch, nil, orgID, regParams(ev, reg))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	f.store.AssertNotCalled(t, "SetAttendance", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMarkPendingRegistrationFails(t *testing.T) {
	f := newFixture()
	orgID := uuid.New()
	ev := ownedEvent(orgID)
	reg := confirmedReg(ev)
	reg.Status = models.RegistrationPending

	f.events.On("GetOwned", mock.Anything, ev.ID, orgID).Return(ev, nil)
	f.store.On("GetForEvent", mock.Anything, reg.ID, ev.ID).Return(reg, nil)

	w := perform(f.h.Mark, http.MethodPatch, nil, orgID, regParams(ev, reg))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func scanParams(ev *models.Event, ticketID string) gin.Params {
	return gin.Params{
		{Key: "id", Value: ev.ID.String()},
		{Key: "ticketId", Value: ticketID},
	}
}

func TestScanChecksIn(t *testing.T) {
	f := newFixture()
	orgID := uuid.New()
	ev := ownedEvent(orgID)
	reg := confirmedReg(ev)

	f.events.On("GetOwned", mock.Anything, ev.ID, orgID).Return(ev, nil)
	f.store.On("GetByTicket", mock.Anything, ev.ID, reg.TicketID).Return(reg, nil)
	f.store.On("SetAttendance", mock.Anything, reg.ID, true, mock.Anything, "", mock.Anything).Return(nil)

	w := perform(f.h.Scan, http.MethodGet, nil, orgID, scanParams(ev, reg.TicketID))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"already_scanned":false`)
	f.store.AssertExpectations(t)
}

func TestScanSecondTimeIsReportedNotRejected(t *testing.T) {
	f := newFixture()
	orgID := uuid.New()
	ev := ownedEvent(orgID)
	reg := confirmedReg(ev)
	scannedAt := time.Now().Add(-10 * time.Minute)
	reg.Attended = true
	reg.AttendedAt = &scannedAt

	f.events.On("GetOwned", mock.Anything, ev.ID, orgID).Return(ev, nil)
	f.store.On("GetByTicket", mock.Anything, ev.ID, reg.TicketID).Return(reg, nil)

	w := perform(f.h.Scan, http.MethodGet, nil, orgID, scanParams(ev, reg.TicketID))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"already_scanned":true`)
	assert.Contains(t, w.Body.String(), "attended_at")
	f.store.AssertNotCalled(t, "SetAttendance", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestScanUnknownTicket(t *testing.T) {
	f := newFixture()
	orgID := uuid.New()
	ev := ownedEvent(orgID)

	f.events.On("GetOwned", mock.Anything, ev.ID, orgID).Return(ev, nil)
	f.store.On("GetByTicket", mock.Anything, ev.ID, "TKT-DEADBEEF00").Return(nil, ErrNotFound)

	w := perform(f.h.Scan, http.MethodGet, nil, orgID, scanParams(ev, "TKT-DEADBEEF00"))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOverrideRequiresNote(t *testing.T) {
	f := newFixture()
	orgID := uuid.New()
	ev := ownedEvent(orgID)
	reg := confirmedReg(ev)

	f.events.On("GetOwned", mock.Anything, ev.ID, orgID).Return(ev, nil)

	for _, note := range []string{"", "   "} {
		w := perform(f.h.Override, http.MethodPatch,
			OverrideRequest{Action: "unmark", Note: note}, orgID, regParams(ev, reg))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}
	f.store.AssertNotCalled(t, "SetAttendance", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestOverrideUnmarkAppendsAuditEntry(t *testing.T) {
	f := newFixture()
	orgID := uuid.New()
	ev := ownedEvent(orgID)
	reg := confirmedReg(ev)
	now := time.Now()
	reg.Attended = true
	reg.AttendedAt = &now

	f.events.On("GetOwned", mock.Anything, ev.ID, orgID).Return(ev, nil)
	f.store.On("GetForEvent", mock.Anything, reg.ID, ev.ID).Return(reg, nil)
	f.store.On("SetAttendance", mock.Anything, reg.ID, false, (*time.Time)(nil), "scanned the wrong person",
		mock.MatchedBy(func(e models.AttendanceEntry) bool {
			return e.Action == models.AttendanceUnmark &&
				e.Note == "scanned the wrong person" && e.ActorID == orgID
		})).Return(nil)

	w := perform(f.h.Override, http.MethodPatch,
		OverrideRequest{Action: "unmark", Note: "scanned the wrong person"}, orgID, regParams(ev, reg))

	require.Equal(t, http.StatusOK, w.Code)
	f.store.AssertExpectations(t)
}

func TestOverrideInvalidAction(t *testing.T) {
	f := newFixture()
	orgID := uuid.New()
	ev := ownedEvent(orgID)
	reg := confirmedReg(ev)

	f.events.On("GetOwned", mock.Anything, ev.ID, orgID).Return(ev, nil)

	w := perform(f.h.Override, http.MethodPatch,
		OverrideRequest{Action: "toggle", Note: "whoops"}, orgID, regParams(ev, reg))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
