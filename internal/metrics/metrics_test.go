package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.BookingOutcome("confirmed")
	m.BookingOutcome("confirmed")
	m.BookingOutcome("duplicate")
	m.ReservationOutcome("insufficient_capacity")
	m.PromoOutcome("applied")
	m.ObserveRequest("/api/bookings", "201", 0.01)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Bookings.WithLabelValues("confirmed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Bookings.WithLabelValues("duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SlotReservations.WithLabelValues("insufficient_capacity")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PromoValidations.WithLabelValues("applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("/api/bookings", "201")))
}

func TestHandlerExposesNamespace(t *testing.T) {
	m := New()
	m.BookingOutcome("confirmed")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `bookit_bookings_total{outcome="confirmed"} 1`)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.BookingOutcome("confirmed")
		m.ReservationOutcome("reserved")
		m.PromoOutcome("applied")
		m.ObserveRequest("/", "200", 0)
	})
}
