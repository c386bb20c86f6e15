// Package telemetry exposes Prometheus metrics for the practice-management
// server: HTTP request durations plus counters for the flows the front desk
// cares about (queue transitions, encounters, chatbot traffic, outbound
// webhook deliveries).
package telemetry

import (
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector on its own registry so multiple instances
// can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	RequestDuration *prometheus.HistogramVec

	TransitionsAccepted *prometheus.CounterVec
	TransitionsDenied   *prometheus.CounterVec
	EncountersOpened    prometheus.Counter
	EncountersResumed   prometheus.Counter
	ChatbotRequests     *prometheus.CounterVec
	WebhookDeliveries   *prometheus.CounterVec
	QueueDepth          *prometheus.GaugeVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.010, 0.025, 0.050, 0.100, 0.250, 0.500, 1.0, 2.5, 5.0},
		}, []string{"method", "route", "status"}),

		TransitionsAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "queue_transitions_accepted_total",
			Help: "Queue status transitions applied, by source and target status",
		}, []string{"from", "to"}),

		TransitionsDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "queue_transitions_denied_total",
			Help: "Queue status transitions rejected by the validator",
		}, []string{"from", "to"}),

		EncountersOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "encounters_opened_total",
			Help: "Encounters newly created",
		}),

		EncountersResumed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "encounters_resumed_total",
			Help: "Open encounters resumed instead of duplicated",
		}),

		ChatbotRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatbot_requests_total",
			Help: "Patient portal chatbot requests, by outcome",
		}, []string{"outcome"}),

		WebhookDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webhook_deliveries_total",
			Help: "Outbound integration deliveries, by target and outcome",
		}, []string{"target", "outcome"}),

		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Patients currently in each queue status",
		}, []string{"status"}),
	}

	m.registry.MustRegister(
		m.RequestDuration,
		m.TransitionsAccepted,
		m.TransitionsDenied,
		m.EncountersOpened,
		m.EncountersResumed,
		m.ChatbotRequests,
		m.WebhookDeliveries,
		m.QueueDepth,
	)

	return m
}

// Middleware records request durations labeled by method, route pattern and
// status code.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			timer := prometheus.NewTimer(prometheus.ObserverFunc(func(v float64) {
				route := c.Path()
				if route == "" {
					route = c.Request().URL.Path
				}
				m.RequestDuration.WithLabelValues(
					c.Request().Method,
					route,
					strconv.Itoa(c.Response().Status),
				).Observe(v)
			}))
			defer timer.ObserveDuration()
			return next(c)
		}
	}
}

// Handler serves the registry in Prometheus text exposition format.
func (m *Metrics) Handler() echo.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return func(c echo.Context) error {
		h.ServeHTTP(c.Response(), c.Request())
		return nil
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
