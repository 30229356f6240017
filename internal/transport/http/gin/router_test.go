package httpgin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/kirinyoku/bookit/internal/domain"
	"github.com/kirinyoku/bookit/internal/metrics"
	"github.com/kirinyoku/bookit/internal/repository/memory"
	redisrepo "github.com/kirinyoku/bookit/internal/repository/redis"
	"github.com/kirinyoku/bookit/internal/service"
	"github.com/kirinyoku/bookit/internal/service/catalog"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router *gin.Engine
	svcs   *service.Services
	m      *metrics.Metrics
}

func newTestServer(t *testing.T, deps Deps) *testServer {
	t.Helper()

	store := memory.NewStore()
	m := metrics.New()
	svcs := service.NewServices(store, nil, nil, m, nil, service.Config{})

	deps.Services = svcs
	deps.Metrics = m

	return &testServer{router: NewRouter(deps), svcs: svcs, m: m}
}

func intp(v int) *int { return &v }

func (s *testServer) seedActivity(t *testing.T, available int) *domain.Activity {
	t.Helper()

	a, err := s.svcs.Catalog.Create(context.Background(), catalog.CreateActivityInput{
		Title:       "Kayaking",
		Location:    "Udupi, Karnataka",
		Description: "Curated small-group experience.",
		Price:       decimal.NewNullDecimal(decimal.NewFromInt(999)),
		Slots: []catalog.SlotDateInput{{
			Date: "Oct 22",
			Times: []catalog.TimeSlotInput{
				{Time: "07:00 am", TotalCapacity: intp(10), AvailableCapacity: intp(available)},
			},
		}},
	})
	require.NoError(t, err)

	return a
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	return w
}

type envelope struct {
	Success        bool            `json:"success"`
	Message        string          `json:"message"`
	Data           json.RawMessage `json:"data"`
	Count          *int            `json:"count"`
	AvailableSlots *int            `json:"availableSlots"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())

	return env
}

func bookingBody(a *domain.Activity, email string, qty int) map[string]any {
	return map[string]any{
		"experienceId": a.ID.String(),
		"userName":     "Jane Doe",
		"userEmail":    email,
		"userPhone":    "9999999999",
		"date":         "Oct 22",
		"time":         "07:00 am",
		"quantity":     qty,
		"price":        999,
		"subtotal":     999 * qty,
		"taxes":        59,
		"discount":     0,
		"total":        999*qty + 59,
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, Deps{})

	w := s.do(t, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Server is running")

	w = s.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestExperiences_CreateListGet(t *testing.T) {
	s := newTestServer(t, Deps{})

	w := s.do(t, http.MethodPost, "/api/experiences", map[string]any{
		"title":       "Sunrise Trek",
		"location":    "Coorg",
		"description": "Early morning hike.",
		"price":       899,
		"slots": []map[string]any{
			{"date": "Oct 22", "times": []map[string]any{{"time": "07:00 am", "totalCapacity": 10, "availableCapacity": 0}}},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created domain.Activity
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &created))
	assert.Equal(t, domain.SlotSoldOut, created.Slots[0].Times[0].Status)
	assert.True(t, decimal.NewFromInt(59).Equal(created.Taxes))

	w = s.do(t, http.MethodGet, "/api/experiences?search=coorg", nil)
	require.Equal(t, http.StatusOK, w.Code)
	env := decode(t, w)
	require.NotNil(t, env.Count)
	assert.Equal(t, 1, *env.Count)
	assert.NotContains(t, string(env.Data), `"slots"`)

	w = s.do(t, http.MethodGet, "/api/experiences?search=goa", nil)
	env = decode(t, w)
	assert.Equal(t, 0, *env.Count)
	assert.JSONEq(t, `[]`, string(env.Data))

	w = s.do(t, http.MethodGet, "/api/experiences/"+created.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"slots"`)
	tag := w.Header().Get("ETag")
	require.NotEmpty(t, tag)
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))

	w = s.do(t, http.MethodGet, "/api/experiences/"+created.ID.String(), nil, "If-None-Match", tag)
	assert.Equal(t, http.StatusNotModified, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestExperiences_Errors(t *testing.T) {
	s := newTestServer(t, Deps{})

	w := s.do(t, http.MethodPost, "/api/experiences", map[string]any{"title": "No price", "location": "x", "description": "y"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	env := decode(t, w)
	assert.False(t, env.Success)
	assert.Contains(t, env.Message, "price is required")

	w = s.do(t, http.MethodGet, "/api/experiences/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/experiences/2b1f6f0e-4a53-4c83-9a5d-8f0f4f4a4a4a", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Experience not found", decode(t, w).Message)
}

func TestUpdateSlot(t *testing.T) {
	s := newTestServer(t, Deps{})
	a := s.seedActivity(t, 3)
	path := "/api/experiences/" + a.ID.String() + "/slots/update"

	w := s.do(t, http.MethodPut, path, map[string]any{"date": "Oct 22", "time": "07:00 am", "quantity": 2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got domain.Activity
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &got))
	assert.Equal(t, 1, got.Slots[0].Times[0].AvailableCapacity)

	w = s.do(t, http.MethodPut, path, map[string]any{"date": "Oct 22", "time": "07:00 am", "quantity": 2})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	env := decode(t, w)
	require.NotNil(t, env.AvailableSlots)
	assert.Equal(t, 1, *env.AvailableSlots)

	w = s.do(t, http.MethodPut, path, map[string]any{"date": "Dec 25", "time": "07:00 am", "quantity": 1})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Slot date not found", decode(t, w).Message)

	w = s.do(t, http.MethodPut, path, map[string]any{"date": "Oct 22", "time": "11:00 pm", "quantity": 1})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Time slot not found", decode(t, w).Message)

	w = s.do(t, http.MethodPut, path, map[string]any{"date": "Oct 22"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Missing required fields", decode(t, w).Message)
}

func TestBookings_CreateGetList(t *testing.T) {
	s := newTestServer(t, Deps{})
	a := s.seedActivity(t, 5)

	w := s.do(t, http.MethodPost, "/api/bookings", bookingBody(a, "Jane@Example.com", 2))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	env := decode(t, w)
	assert.True(t, env.Success)
	assert.Equal(t, "Booking confirmed successfully", env.Message)

	var resp struct {
		BookingRef string         `json:"bookingRef"`
		Booking    domain.Booking `json:"booking"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Len(t, resp.BookingRef, 8)
	assert.Equal(t, "jane@example.com", resp.Booking.UserEmail)
	assert.Equal(t, domain.BookingConfirmed, resp.Booking.Status)

	w = s.do(t, http.MethodGet, "/api/experiences/"+a.ID.String(), nil)
	var got domain.Activity
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &got))
	assert.Equal(t, 3, got.Slots[0].Times[0].AvailableCapacity)

	w = s.do(t, http.MethodGet, "/api/bookings/"+resp.BookingRef, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"title":"Kayaking"`)

	w = s.do(t, http.MethodGet, "/api/bookings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, *decode(t, w).Count)

	assert.Equal(t, float64(1), testutil.ToFloat64(s.m.Bookings.WithLabelValues("confirmed")))
}

func TestBookings_Errors(t *testing.T) {
	s := newTestServer(t, Deps{})
	a := s.seedActivity(t, 2)

	tests := []struct {
		name    string
		mutate  func(body map[string]any)
		status  int
		message string
	}{
		{"missing name", func(b map[string]any) { delete(b, "userName") }, http.StatusBadRequest, "Missing required fields"},
		{"zero quantity", func(b map[string]any) { b["quantity"] = 0 }, http.StatusBadRequest, "Quantity must be at least 1"},
		{"bad experience id", func(b map[string]any) { b["experienceId"] = "nope" }, http.StatusBadRequest, "Invalid experienceId"},
		{"unknown experience", func(b map[string]any) { b["experienceId"] = "2b1f6f0e-4a53-4c83-9a5d-8f0f4f4a4a4a" }, http.StatusNotFound, "Experience not found"},
		{"unknown date", func(b map[string]any) { b["date"] = "Dec 25" }, http.StatusBadRequest, "Selected date not available"},
		{"unknown time", func(b map[string]any) { b["time"] = "11:00 pm" }, http.StatusBadRequest, "Selected time not available"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := bookingBody(a, "jane@example.com", 1)
			tt.mutate(body)

			w := s.do(t, http.MethodPost, "/api/bookings", body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.message, decode(t, w).Message)
		})
	}

	w := s.do(t, http.MethodPost, "/api/bookings", bookingBody(a, "jane@example.com", 3))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	env := decode(t, w)
	assert.Equal(t, "Not enough available slots", env.Message)
	require.NotNil(t, env.AvailableSlots)
	assert.Equal(t, 2, *env.AvailableSlots)

	w = s.do(t, http.MethodPost, "/api/bookings", bookingBody(a, "jane@example.com", 1))
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.do(t, http.MethodPost, "/api/bookings", bookingBody(a, "JANE@example.com", 1))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "You already have a booking for this slot", decode(t, w).Message)

	w = s.do(t, http.MethodGet, "/api/bookings/bad", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/bookings/ZZZZ9999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Booking not found", decode(t, w).Message)
}

func TestBookings_ConcurrentLastUnit(t *testing.T) {
	s := newTestServer(t, Deps{})
	a := s.seedActivity(t, 1)

	const workers = 10

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		codes = map[int]int{}
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w := s.do(t, http.MethodPost, "/api/bookings", bookingBody(a, fmt.Sprintf("user%d@example.com", i), 1))
			mu.Lock()
			codes[w.Code]++
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, codes[http.StatusCreated])
	assert.Equal(t, workers-1, codes[http.StatusBadRequest])
}

func TestBookings_IdempotencyKeyReplays(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	s := newTestServer(t, Deps{Idem: redisrepo.NewIdempotencyStore(rdb, time.Hour)})
	a := s.seedActivity(t, 5)

	first := s.do(t, http.MethodPost, "/api/bookings", bookingBody(a, "jane@example.com", 1), "Idempotency-Key", "abc-123")
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	assert.Equal(t, "abc-123", first.Header().Get("Idempotency-Key"))

	second := s.do(t, http.MethodPost, "/api/bookings", bookingBody(a, "jane@example.com", 1), "Idempotency-Key", "abc-123")
	require.Equal(t, http.StatusCreated, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	w := s.do(t, http.MethodGet, "/api/bookings", nil)
	assert.Equal(t, 1, *decode(t, w).Count)

	key := redisrepo.KeyIdempotency("bookings", "in-flight")
	require.NoError(t, mr.Set(key, "LOCK"))

	w = s.do(t, http.MethodPost, "/api/bookings", bookingBody(a, "john@example.com", 1), "Idempotency-Key", "in-flight")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestBookings_IdempotencyKeyReleasedOnFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	s := newTestServer(t, Deps{Idem: redisrepo.NewIdempotencyStore(rdb, time.Hour)})
	a := s.seedActivity(t, 1)

	w := s.do(t, http.MethodPost, "/api/bookings", bookingBody(a, "jane@example.com", 2), "Idempotency-Key", "retry-me")
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, mr.Exists(redisrepo.KeyIdempotency("bookings", "retry-me")))

	w = s.do(t, http.MethodPost, "/api/bookings", bookingBody(a, "jane@example.com", 1), "Idempotency-Key", "retry-me")
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	l, err := redisrepo.NewLimiter(rdb, map[string]redisrepo.Rule{ScopePromo: {Limit: 2, Window: time.Minute}})
	require.NoError(t, err)
	s := newTestServer(t, Deps{Limiter: l})

	body := map[string]any{"code": "NOPE", "subtotal": 1000}
	for i := 0; i < 2; i++ {
		w := s.do(t, http.MethodPost, "/api/promo/validate", body)
		assert.Equal(t, http.StatusNotFound, w.Code)
	}

	w := s.do(t, http.MethodPost, "/api/promo/validate", body)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "Too many requests, please try again later", decode(t, w).Message)
}

func TestRateLimit_BookerCountedByNormalizedEmail(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	l, err := redisrepo.NewLimiter(rdb, map[string]redisrepo.Rule{
		ScopeBookings: {Limit: 100, Window: time.Minute},
		ScopeBooker:   {Limit: 1, Window: 10 * time.Minute},
	})
	require.NoError(t, err)

	s := newTestServer(t, Deps{Limiter: l, Idem: redisrepo.NewIdempotencyStore(rdb, time.Hour)})
	a := s.seedActivity(t, 10)

	w := s.do(t, http.MethodPost, "/api/bookings", bookingBody(a, "jane@example.com", 1), "Idempotency-Key", "first")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// A replay is served from the idempotency store and costs nothing.
	w = s.do(t, http.MethodPost, "/api/bookings", bookingBody(a, "jane@example.com", 1), "Idempotency-Key", "first")
	assert.Equal(t, http.StatusCreated, w.Code)

	w = s.do(t, http.MethodPost, "/api/bookings", bookingBody(a, "  JANE@Example.com", 1))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	w = s.do(t, http.MethodPost, "/api/bookings", bookingBody(a, "bob@example.com", 1))
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestPromo_CreateValidateList(t *testing.T) {
	s := newTestServer(t, Deps{})

	w := s.do(t, http.MethodPost, "/api/promo", map[string]any{
		"code":          "save10",
		"type":          "percentage",
		"value":         10,
		"minOrderValue": 500,
		"maxDiscount":   200,
		"expiryDate":    time.Now().AddDate(1, 0, 0).Format(time.DateOnly),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/promo", map[string]any{"code": "SAVE10", "type": "flat", "value": 5})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/promo/validate", map[string]any{"code": "save10", "subtotal": 3000})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	env := decode(t, w)
	assert.Equal(t, "Promo code applied successfully", env.Message)

	var q struct {
		Code     string          `json:"code"`
		Discount decimal.Decimal `json:"discount"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &q))
	assert.Equal(t, "SAVE10", q.Code)
	assert.True(t, decimal.NewFromInt(200).Equal(q.Discount), q.Discount.String())

	w = s.do(t, http.MethodPost, "/api/promo/validate", map[string]any{"code": "SAVE10", "subtotal": 400})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Minimum order value of ₹500 required", decode(t, w).Message)

	w = s.do(t, http.MethodPost, "/api/promo/validate", map[string]any{"subtotal": 400})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Promo code is required", decode(t, w).Message)

	w = s.do(t, http.MethodPost, "/api/promo/validate", map[string]any{"code": "UNKNOWN", "subtotal": 400})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Invalid promo code", decode(t, w).Message)

	w = s.do(t, http.MethodGet, "/api/promo", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, *decode(t, w).Count)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, Deps{})

	s.do(t, http.MethodGet, "/healthz", nil)

	w := s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `bookit_http_requests_total{route="/healthz",status="200"} 1`)
}
