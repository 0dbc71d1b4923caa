// Package metrics owns the Prometheus collectors exported at /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors on a private registry. A nil *Metrics is a no-op.
type Metrics struct {
	registry            *prometheus.Registry
	handler             http.Handler
	requestDuration     *prometheus.HistogramVec
	requestTotal        *prometheus.CounterVec
	registrationsTotal  *prometheus.CounterVec
	paymentTransitions  *prometheus.CounterVec
	escrowReleasesTotal prometheus.Counter
	jobsTotal           *prometheus.CounterVec
}

// New registers all collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	registrationsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "camp_registrations_total",
		Help: "Registration attempts by outcome",
	}, []string{"outcome"})

	paymentTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_transitions_total",
		Help: "Payment status transitions",
	}, []string{"to"})

	escrowReleasesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "escrow_releases_total",
		Help: "Payments released from escrow",
	})

	jobsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_jobs_total",
		Help: "Background jobs processed by type and result",
	}, []string{"type", "result"})

	registry.MustRegister(
		requestDuration, requestTotal, registrationsTotal, paymentTransitions,
		escrowReleasesTotal, jobsTotal,
		collectors.NewGoCollector(),
	)

	return &Metrics{
		registry:            registry,
		handler:             promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:     requestDuration,
		requestTotal:        requestTotal,
		registrationsTotal:  registrationsTotal,
		paymentTransitions:  paymentTransitions,
		escrowReleasesTotal: escrowReleasesTotal,
		jobsTotal:           jobsTotal,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records one served request.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, code).Inc()
}

// RegistrationAttempt counts a registration by outcome (created, full, duplicate, error).
func (m *Metrics) RegistrationAttempt(outcome string) {
	if m == nil {
		return
	}
	m.registrationsTotal.WithLabelValues(outcome).Inc()
}

// PaymentTransition counts a payment entering status to.
func (m *Metrics) PaymentTransition(to string) {
	if m == nil {
		return
	}
	m.paymentTransitions.WithLabelValues(to).Inc()
}

// EscrowReleased adds n released payments.
func (m *Metrics) EscrowReleased(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.escrowReleasesTotal.Add(float64(n))
}

// JobProcessed counts a worker job result (ok, retry, dead).
func (m *Metrics) JobProcessed(jobType, result string) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(jobType, result).Inc()
}
