package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"scheduling-service/internal/apperror"
	"scheduling-service/internal/availability"
	"scheduling-service/internal/booking"
	"scheduling-service/internal/interval"
	"scheduling-service/internal/models"
)

var (
	secret = []byte("test-secret")
	now    = time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
)

func at(h, m int) time.Time { return time.Date(2026, 3, 10, h, m, 0, 0, time.UTC) }

type fakeStore struct {
	mu       sync.Mutex
	hosts    map[string]models.Host
	types    map[string]models.MeetingType
	bookings map[string]models.Booking
	accounts []models.CalendarAccount
}

func newFakeStore() *fakeStore {
	h := models.Host{
		ID: "h1", Slug: "ada", Name: "Ada", Email: "ada@example.com", Plan: models.PlanPro,
		Windows: []models.AvailabilityWindow{{Key: "w1", Start: at(9, 0), End: at(12, 0)}},
	}
	bob := models.Host{ID: "h2", Slug: "bob", ExternalID: "ext-bob", Name: "Bob", Email: "bob@example.com"}
	return &fakeStore{
		hosts:    map[string]models.Host{h.ID: h, bob.ID: bob},
		types:    map[string]models.MeetingType{"h1/deep-dive": {ID: "mt1", HostID: "h1", Name: "Deep dive", Slug: "deep-dive", DurationMinutes: 90}},
		bookings: map[string]models.Booking{},
	}
}

func (s *fakeStore) HostBySlug(_ context.Context, slug string) (models.Host, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.hosts {
		if h.Slug == slug {
			return h, nil
		}
	}
	return models.Host{}, apperror.NotFound("host not found")
}

func (s *fakeStore) HostByID(_ context.Context, id string) (models.Host, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.hosts[id]; ok {
		return h, nil
	}
	return models.Host{}, apperror.NotFound("host not found")
}

func (s *fakeStore) HostByExternalID(_ context.Context, externalID string) (models.Host, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.hosts {
		if h.ExternalID != "" && h.ExternalID == externalID {
			return h, nil
		}
	}
	return models.Host{}, apperror.NotFound("host not found")
}

func (s *fakeStore) MeetingType(_ context.Context, hostID, slug string) (models.MeetingType, error) {
	if mt, ok := s.types[hostID+"/"+slug]; ok {
		return mt, nil
	}
	return models.MeetingType{}, apperror.NotFound("meeting type not found")
}

func (s *fakeStore) SaveCalendarAccount(_ context.Context, a models.CalendarAccount) (models.CalendarAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = "acc1"
	a.IsDefault = len(s.accounts) == 0
	s.accounts = append(s.accounts, a)
	return a, nil
}

func (s *fakeStore) CountBookingsInRange(context.Context, string, interval.Interval) (int, error) {
	return 0, nil
}

func (s *fakeStore) BookingsInRange(_ context.Context, hostID string, rng interval.Interval) ([]models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Booking
	for _, b := range s.bookings {
		if b.HostID == hostID && b.Active() && interval.Overlaps(b.Span(), rng) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *fakeStore) CreateBooking(_ context.Context, b models.Booking, release []string) (models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range release {
		if old, ok := s.bookings[id]; ok && old.Active() {
			old.Status = models.BookingCancelled
			s.bookings[id] = old
		}
	}
	s.bookings[b.ID] = b
	return b, nil
}

func (s *fakeStore) Booking(_ context.Context, id string) (models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.bookings[id]; ok {
		return b, nil
	}
	return models.Booking{}, apperror.NotFound("booking not found")
}

func (s *fakeStore) ListBookings(_ context.Context, hostID string, _ *interval.Interval) ([]models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Booking{}
	for _, b := range s.bookings {
		if b.HostID == hostID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *fakeStore) SetBookingStatus(_ context.Context, id string, from, to models.BookingStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return apperror.NotFound("booking not found")
	}
	if b.Status != from {
		return apperror.Conflict("booking is not " + string(from))
	}
	b.Status = to
	s.bookings[id] = b
	return nil
}

func (s *fakeStore) ReplaceAvailability(_ context.Context, hostID string, windows []models.AvailabilityWindow) ([]models.AvailabilityWindow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.hosts[hostID]
	h.Windows = windows
	s.hosts[hostID] = h
	return windows, nil
}

func (s *fakeStore) UpcomingEventBookings(context.Context, interval.Interval) ([]models.Booking, error) {
	return nil, nil
}

func newTestApp(t *testing.T) (*gin.Engine, *fakeStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := newFakeStore()
	logger := zaptest.NewLogger(t)
	clock := func() time.Time { return now }
	resolver := &availability.Resolver{Store: store, Logger: logger, Now: clock}
	a := &App{
		Store:    store,
		Resolver: resolver,
		Bookings: &booking.Service{Store: store, Resolver: resolver, Logger: logger, Now: clock},
		Logger:   logger,

		JWTSecret:          secret,
		StaticTokens:       []string{"static-token"},
		DefaultSlotMinutes: 30,
		Now:                clock,
	}
	return NewRouter(a, RouterOptions{RateLimitPerMin: 1000}), store
}

func do(t *testing.T, r http.Handler, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func bearer(t *testing.T, hostID string) http.Header {
	t.Helper()
	tok, err := IssueToken(secret, hostID, time.Hour)
	require.NoError(t, err)
	return http.Header{"Authorization": {"Bearer " + tok}}
}

func TestSlotsEndpoint(t *testing.T) {
	r, _ := newTestApp(t)

	w := do(t, r, http.MethodGet, "/api/hosts/ada/slots?date=2026-03-10", nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var slots []interval.Interval
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &slots))
	assert.Len(t, slots, 6)

	w = do(t, r, http.MethodGet, "/api/hosts/ada/slots?date=2026-03-10&meeting_type=deep-dive", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &slots))
	assert.Len(t, slots, 2)
}

func TestSlotsEndpointErrors(t *testing.T) {
	r, _ := newTestApp(t)

	cases := []struct {
		path string
		code int
	}{
		{"/api/hosts/ada/slots", http.StatusBadRequest},
		{"/api/hosts/ada/slots?date=10-03-2026", http.StatusBadRequest},
		{"/api/hosts/ada/slots?date=2026-03-10&duration=20", http.StatusBadRequest},
		{"/api/hosts/nobody/slots?date=2026-03-10", http.StatusNotFound},
		{"/api/hosts/ada/slots?date=2026-03-10&meeting_type=missing", http.StatusNotFound},
	}
	for _, tc := range cases {
		w := do(t, r, http.MethodGet, tc.path, nil, nil)
		assert.Equal(t, tc.code, w.Code, tc.path)
		assert.Contains(t, w.Body.String(), `"error"`)
	}
}

func TestDatesEndpoint(t *testing.T) {
	r, _ := newTestApp(t)

	w := do(t, r, http.MethodGet, "/api/hosts/ada/dates?start=2026-03-08&end=2026-03-12", nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `["2026-03-10"]`, w.Body.String())
}

func TestCreateBookingEndpoint(t *testing.T) {
	r, store := newTestApp(t)
	body := map[string]any{
		"start":       at(10, 0),
		"end":         at(10, 30),
		"guest_name":  "Grace",
		"guest_email": "grace@example.com",
	}

	w := do(t, r, http.MethodPost, "/api/hosts/ada/bookings", body, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "confirmed", resp["status"])
	assert.Equal(t, "skipped", resp["calendar_event"])
	assert.Len(t, store.bookings, 1)

	w = do(t, r, http.MethodPost, "/api/hosts/ada/bookings", body, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	body["guest_email"] = "not-an-email"
	w = do(t, r, http.MethodPost, "/api/hosts/ada/bookings", body, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHostRoutesRequireAuth(t *testing.T) {
	r, _ := newTestApp(t)

	w := do(t, r, http.MethodGet, "/api/availability", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, r, http.MethodGet, "/api/availability", nil, http.Header{"Authorization": {"Bearer nope"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, r, http.MethodGet, "/api/availability", nil, http.Header{"Authorization": {"Bearer static-token"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, r, http.MethodGet, "/api/availability", nil, http.Header{
		"Authorization": {"Bearer static-token"},
		"X-Host-Id":     {"h1"},
	})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBearerSubjectResolution(t *testing.T) {
	r, _ := newTestApp(t)

	w := do(t, r, http.MethodGet, "/api/availability", nil, bearer(t, "ext-bob"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = do(t, r, http.MethodGet, "/api/availability", nil, bearer(t, "h1"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"key":"w1"`)

	w = do(t, r, http.MethodGet, "/api/availability", nil, bearer(t, "stranger"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStateIsNotABearerToken(t *testing.T) {
	r, _ := newTestApp(t)
	state, err := SignState(secret, "h1")
	require.NoError(t, err)

	w := do(t, r, http.MethodGet, "/api/availability", nil, http.Header{"Authorization": {"Bearer " + state}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	hostID, err := VerifyState(secret, state)
	require.NoError(t, err)
	assert.Equal(t, "h1", hostID)
}

func TestAvailabilityRoundTrip(t *testing.T) {
	r, _ := newTestApp(t)
	auth := bearer(t, "h1")
	windows := []models.AvailabilityWindow{
		{Start: at(13, 0), End: at(17, 0)},
		{Start: at(8, 0), End: at(9, 0), Recurrence: "FREQ=WEEKLY;BYDAY=MO"},
	}

	w := do(t, r, http.MethodPut, "/api/availability", windows, auth)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, r, http.MethodGet, "/api/availability", nil, auth)
	require.Equal(t, http.StatusOK, w.Code)
	var got []models.AvailabilityWindow
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.True(t, got[0].Start.Equal(at(13, 0)))
	assert.NotEmpty(t, got[0].Key)
	assert.Equal(t, "FREQ=WEEKLY;BYDAY=MO", got[1].Recurrence)

	w = do(t, r, http.MethodPut, "/api/availability", []models.AvailabilityWindow{{Start: at(17, 0), End: at(13, 0)}}, auth)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCancelAndExport(t *testing.T) {
	r, store := newTestApp(t)
	store.bookings["b1"] = models.Booking{
		ID: "b1", HostID: "h1", Start: at(10, 0), End: at(10, 30),
		GuestName: "Grace", GuestEmail: "grace@example.com", Status: models.BookingConfirmed,
	}
	auth := bearer(t, "h1")

	w := do(t, r, http.MethodGet, "/api/bookings/b1/ics", nil, auth)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/calendar")
	assert.Contains(t, w.Body.String(), "BEGIN:VEVENT")

	w = do(t, r, http.MethodGet, "/api/bookings/b1/ics", nil, bearer(t, "ext-bob"))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, r, http.MethodDelete, "/api/bookings/b1", nil, auth)
	require.Equal(t, http.StatusOK, w.Code)
	w = do(t, r, http.MethodDelete, "/api/bookings/b1", nil, auth)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, r, http.MethodGet, "/api/bookings", nil, auth)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"cancelled"`)

	w = do(t, r, http.MethodGet, "/api/bookings?from=yesterday", nil, auth)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCalendarAuthNotConfigured(t *testing.T) {
	r, _ := newTestApp(t)
	w := do(t, r, http.MethodGet, "/api/calendar/auth", nil, bearer(t, "h1"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimit(2, zaptest.NewLogger(t)))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := []int{}
	for range 3 {
		codes = append(codes, do(t, r, http.MethodGet, "/", nil, nil).Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestLimiterStoreDropsIdleClients(t *testing.T) {
	clock := now
	store := newLimiterStore(10)
	store.now = func() time.Time { return clock }

	store.get("10.0.0.1")
	store.get("10.0.0.2")
	clock = clock.Add(2 * time.Minute)
	store.get("10.0.0.2")
	clock = clock.Add(2 * time.Minute)
	store.get("10.0.0.3")

	assert.Len(t, store.limiters, 2)
	assert.NotContains(t, store.limiters, "10.0.0.1")
	assert.Contains(t, store.limiters, "10.0.0.2")
}
