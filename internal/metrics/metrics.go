// Package metrics exposes the service's prometheus collectors. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bookit"

type Metrics struct {
	registry *prometheus.Registry

	Requests         *prometheus.CounterVec
	Latency          *prometheus.HistogramVec
	Bookings         *prometheus.CounterVec
	SlotReservations *prometheus.CounterVec
	PromoValidations *prometheus.CounterVec
}

func New() *Metrics {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"route", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})
	bookings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bookings_total",
		Help:      "Booking attempts by outcome.",
	}, []string{"outcome"})
	reservations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "slot_reservations_total",
		Help:      "Slot capacity reservations by outcome.",
	}, []string{"outcome"})
	promos := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "promo_validations_total",
		Help:      "Promo code validations by outcome.",
	}, []string{"outcome"})

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		requests, latency, bookings, reservations, promos,
	)

	return &Metrics{
		registry:         reg,
		Requests:         requests,
		Latency:          latency,
		Bookings:         bookings,
		SlotReservations: reservations,
		PromoValidations: promos,
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(route, status).Inc()
	m.Latency.WithLabelValues(route).Observe(seconds)
}

func (m *Metrics) BookingOutcome(outcome string) {
	if m == nil {
		return
	}
	m.Bookings.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ReservationOutcome(outcome string) {
	if m == nil {
		return
	}
	m.SlotReservations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) PromoOutcome(outcome string) {
	if m == nil {
		return
	}
	m.PromoValidations.WithLabelValues(outcome).Inc()
}
