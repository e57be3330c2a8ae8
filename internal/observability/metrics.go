package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes the service's Prometheus collectors.
type Metrics struct {
	httpRequests    *prometheus.CounterVec
	httpErrors      *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	TicketsCreated  prometheus.Counter
	TicketsAssigned prometheus.Counter
	OpenTickets     prometheus.Gauge
	BreachedTickets prometheus.Gauge
}

// NewMetrics registers collectors on the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		httpRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_http_requests_total",
			Help: "HTTP requests served, by path, method and status.",
		}, []string{"path", "method", "status"}),
		httpErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_http_errors_total",
			Help: "Requests that ended in a domain error, by error code.",
		}, []string{"path", "method", "code"}),
		requestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "helpdesk_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method"}),
		TicketsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "helpdesk_tickets_created_total",
			Help: "Tickets created since process start.",
		}),
		TicketsAssigned: promauto.NewCounter(prometheus.CounterOpts{
			Name: "helpdesk_tickets_assigned_total",
			Help: "Tickets auto-assigned to an agent at creation.",
		}),
		OpenTickets: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "helpdesk_tickets_open",
			Help: "Tickets currently open or in progress.",
		}),
		BreachedTickets: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "helpdesk_tickets_sla_breached",
			Help: "Unresolved tickets currently past their SLA deadline.",
		}),
	}
}

// RecordRequest increments request counters.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.httpErrors.WithLabelValues(path, method, code).Inc()
}
