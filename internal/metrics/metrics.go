// Package metrics holds the worker and API prometheus collectors.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var durationBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60}

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	gatherer      prometheus.Gatherer
	checks        *prometheus.CounterVec
	checkDuration *prometheus.HistogramVec
	budget        *prometheus.GaugeVec
	notifications *prometheus.CounterVec
}

// New registers the collectors on reg. Collectors already registered there
// are reused.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		gatherer: reg,
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulsewatch",
			Name:      "checks_total",
			Help:      "Completed checks by protocol and outcome status",
		}, []string{"protocol", "status"}),
		checkDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pulsewatch",
			Name:      "check_duration_seconds",
			Help:      "Wall time of one check execution",
			Buckets:   durationBuckets,
		}, []string{"protocol"}),
		budget: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "pulsewatch",
			Name:      "slo_budget_remaining_percent",
			Help:      "Error budget remaining in the current period",
		}, []string{"slo_id"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulsewatch",
			Name:      "notifications_enqueued_total",
			Help:      "Notification jobs pushed to a channel queue",
		}, []string{"channel_type"}),
	}
	m.checks = register(reg, m.checks)
	m.checkDuration = register(reg, m.checkDuration)
	m.budget = register(reg, m.budget)
	m.notifications = register(reg, m.notifications)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

func (m *Metrics) ObserveCheck(protocol, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.checks.WithLabelValues(protocol, status).Inc()
	m.checkDuration.WithLabelValues(protocol).Observe(d.Seconds())
}

func (m *Metrics) SetBudgetRemaining(sloID string, pct float64) {
	if m == nil {
		return
	}
	m.budget.WithLabelValues(sloID).Set(pct)
}

func (m *Metrics) NotificationEnqueued(channelType string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(channelType).Inc()
}

// Handler exposes the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
