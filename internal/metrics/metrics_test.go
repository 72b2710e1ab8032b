package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OmkarPadhy/AQI-Dashboard/internal/data"
	"github.com/OmkarPadhy/AQI-Dashboard/internal/exposure"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.ReadingAccepted("simulator")
	m.ReadingAccepted("simulator")
	m.ReadingRejected()
	m.AlertsGenerated([]data.Alert{
		{Quantity: data.PM25, Severity: data.SeverityCritical},
		{Quantity: data.PM25, Severity: data.SeverityCritical},
		{Quantity: data.Gas, Severity: data.SeverityWarning},
	})
	m.SetAlertLogSize(3)
	m.ObserveAssessment(exposure.Assessment{ExposureIndex: 410, Level: exposure.Unsafe})
	m.IngestError("fetch_window")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.readingsTotal.WithLabelValues("simulator")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejectedTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.alertsTotal.WithLabelValues("pm25", "critical")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.alertLogSize))
	assert.Equal(t, 410.0, testutil.ToFloat64(m.exposureIndex))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.riskLevel))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ingestErrors.WithLabelValues("fetch_window")))
}

func TestMetrics_HandlerAndWrap(t *testing.T) {
	m := New()
	h := m.WrapHandler("/api/alerts", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/alerts", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("/api/alerts", "418")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "http_requests_total")
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ReadingAccepted("x")
		m.ReadingRejected()
		m.AlertsGenerated([]data.Alert{{}})
		m.SetAlertLogSize(1)
		m.ObserveAssessment(exposure.Assessment{})
		m.IngestError("subscribe")
	})
}
