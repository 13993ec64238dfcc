// Package metrics provides Prometheus metrics for the mediation bridge
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Request metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Load/show metrics
	LoadsTotal   *prometheus.CounterVec
	LoadDuration *prometheus.HistogramVec
	ShowsTotal   *prometheus.CounterVec
	ShowDuration *prometheus.HistogramVec

	// Resolution slot metrics
	AbsorbedTerminals prometheus.Counter
	AbandonedAwaits   prometheus.Counter

	// Side-channel metrics
	SideEventsTotal *prometheus.CounterVec

	// Partner SDK metrics
	SetupTotal     *prometheus.CounterVec
	ConsentSignals *prometheus.CounterVec

	// Handle registry metrics
	ActiveHandles prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "mediation"
	}

	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Number of HTTP requests currently being served",
			},
		),

		LoadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "loads_total",
				Help:      "Total number of ad load attempts",
			},
			[]string{"format", "route", "status"},
		),
		LoadDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "load_duration_seconds",
				Help:      "Ad load duration in seconds",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2, 5, 10, 30},
			},
			[]string{"format"},
		),
		ShowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "shows_total",
				Help:      "Total number of ad show attempts",
			},
			[]string{"format", "status"},
		),
		ShowDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "show_duration_seconds",
				Help:      "Ad show duration in seconds",
				Buckets:   []float64{.005, .025, .1, .25, .5, 1, 2, 5},
			},
			[]string{"format"},
		),

		AbsorbedTerminals: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "absorbed_terminals_total",
				Help:      "Duplicate or late terminal callbacks silently dropped",
			},
		),
		AbandonedAwaits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "abandoned_awaits_total",
				Help:      "Operations abandoned by caller cancellation before resolution",
			},
		),

		SideEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "side_events_total",
				Help:      "Side-channel events forwarded to the host listener",
			},
			[]string{"kind", "format"},
		),

		SetupTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "setup_total",
				Help:      "Partner SDK setup attempts",
			},
			[]string{"status"},
		),
		ConsentSignals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "consent_signals_total",
				Help:      "Consent signals propagated to the partner SDK",
			},
			[]string{"type", "has_consent"},
		),

		ActiveHandles: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_handles",
				Help:      "Number of live ad handles in the registry",
			},
		),
	}

	// Register all metrics
	prometheus.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.LoadsTotal,
		m.LoadDuration,
		m.ShowsTotal,
		m.ShowDuration,
		m.AbsorbedTerminals,
		m.AbandonedAwaits,
		m.SideEventsTotal,
		m.SetupTotal,
		m.ConsentSignals,
		m.ActiveHandles,
	)

	return m
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns HTTP middleware that records request metrics
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.RequestsInFlight.Inc()
		defer m.RequestsInFlight.Dec()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(wrapped.statusCode)

		m.RequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		m.RequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// RecordLoad records the outcome of one load attempt
func (m *Metrics) RecordLoad(format, route, status string, duration time.Duration) {
	m.LoadsTotal.WithLabelValues(format, route, status).Inc()
	m.LoadDuration.WithLabelValues(format).Observe(duration.Seconds())
}

// RecordShow records the outcome of one show attempt
func (m *Metrics) RecordShow(format, status string, duration time.Duration) {
	m.ShowsTotal.WithLabelValues(format, status).Inc()
	m.ShowDuration.WithLabelValues(format).Observe(duration.Seconds())
}

// RecordSideEvent records a forwarded side-channel event
func (m *Metrics) RecordSideEvent(kind, format string) {
	m.SideEventsTotal.WithLabelValues(kind, format).Inc()
}

// RecordSetup records a partner SDK setup attempt
func (m *Metrics) RecordSetup(status string) {
	m.SetupTotal.WithLabelValues(status).Inc()
}

// RecordConsentSignal records a consent signal pushed to the partner
func (m *Metrics) RecordConsentSignal(signalType string, hasConsent bool) {
	consent := "no"
	if hasConsent {
		consent = "yes"
	}
	m.ConsentSignals.WithLabelValues(signalType, consent).Inc()
}

// AddAbsorbedTerminals adds to the absorbed terminal callback counter
func (m *Metrics) AddAbsorbedTerminals(n int) {
	if n > 0 {
		m.AbsorbedTerminals.Add(float64(n))
	}
}

// IncAbandonedAwait increments the abandoned-await counter
func (m *Metrics) IncAbandonedAwait() {
	m.AbandonedAwaits.Inc()
}
