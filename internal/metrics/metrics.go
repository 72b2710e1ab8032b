// internal/metrics/metrics.go
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/OmkarPadhy/AQI-Dashboard/internal/data"
	"github.com/OmkarPadhy/AQI-Dashboard/internal/exposure"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	registry          *prometheus.Registry
	readingsTotal     *prometheus.CounterVec
	rejectedTotal     prometheus.Counter
	alertsTotal       *prometheus.CounterVec
	alertLogSize      prometheus.Gauge
	exposureIndex     prometheus.Gauge
	riskLevel         prometheus.Gauge
	ingestErrors      *prometheus.CounterVec
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		readingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_readings_total",
			Help: "Readings accepted by the pipeline, by source.",
		}, []string{"source"}),
		rejectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monitor_readings_rejected_total",
			Help: "Readings rejected by validation.",
		}),
		alertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_alerts_total",
			Help: "Alerts generated, by quantity and severity.",
		}, []string{"quantity", "severity"}),
		alertLogSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "monitor_alert_log_size",
			Help: "Current number of entries in the alert log.",
		}),
		exposureIndex: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "monitor_exposure_index",
			Help: "Cumulative exposure index of the current window.",
		}),
		riskLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "monitor_risk_level",
			Help: "Risk level of the current window (0 safe, 1 moderate, 2 unsafe).",
		}),
		ingestErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_ingest_errors_total",
			Help: "Ingestion backend failures, by operation.",
		}, []string{"operation"}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		m.readingsTotal,
		m.rejectedTotal,
		m.alertsTotal,
		m.alertLogSize,
		m.exposureIndex,
		m.riskLevel,
		m.ingestErrors,
		m.httpRequestsTotal,
		m.httpDuration,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry (tests gather from it).
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) ReadingAccepted(source string) {
	if m == nil {
		return
	}
	m.readingsTotal.WithLabelValues(source).Inc()
}

func (m *Metrics) ReadingRejected() {
	if m == nil {
		return
	}
	m.rejectedTotal.Inc()
}

func (m *Metrics) AlertsGenerated(alerts []data.Alert) {
	if m == nil {
		return
	}
	for _, a := range alerts {
		m.alertsTotal.WithLabelValues(string(a.Quantity), string(a.Severity)).Inc()
	}
}

func (m *Metrics) SetAlertLogSize(n int) {
	if m == nil {
		return
	}
	m.alertLogSize.Set(float64(n))
}

func (m *Metrics) ObserveAssessment(a exposure.Assessment) {
	if m == nil {
		return
	}
	m.exposureIndex.Set(a.ExposureIndex)
	m.riskLevel.Set(float64(a.Level))
}

func (m *Metrics) IngestError(operation string) {
	if m == nil {
		return
	}
	m.ingestErrors.WithLabelValues(operation).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler records request count and latency under route.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
