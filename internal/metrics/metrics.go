// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so several instances can coexist in tests.
// All methods are safe on a nil receiver.
type Metrics struct {
	reg        *prometheus.Registry
	joins      *prometheus.CounterVec
	identifies *prometheus.CounterVec
	sessions   *prometheus.CounterVec
	extraction *prometheus.HistogramVec
	requests   *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		joins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_join_attempts_total",
			Help: "Join attempts by outcome kind.",
		}, []string{"outcome"}),
		identifies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_identify_total",
			Help: "1:N identification requests by result.",
		}, []string{"recognized"}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_session_transitions_total",
			Help: "Session lifecycle transitions.",
		}, []string{"transition"}),
		extraction: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "attendance_extraction_duration_seconds",
			Help:    "Face embedding extraction latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_http_requests_total",
			Help: "HTTP requests by method and status code.",
		}, []string{"method", "code"}),
	}
	reg.MustRegister(
		m.joins, m.identifies, m.sessions, m.extraction, m.requests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) JoinAttempt(outcome string) {
	if m == nil {
		return
	}
	m.joins.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Identify(recognized bool) {
	if m == nil {
		return
	}
	v := "false"
	if recognized {
		v = "true"
	}
	m.identifies.WithLabelValues(v).Inc()
}

func (m *Metrics) SessionTransition(transition string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(transition).Inc()
}

func (m *Metrics) Extraction(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.extraction.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *Metrics) Request(method string, code int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, strconv.Itoa(code)).Inc()
}
