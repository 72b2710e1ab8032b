package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/OmkarPadhy/AQI-Dashboard/internal/data"
)

type recordingHub struct {
	mu     sync.Mutex
	alerts []interface{}
}

func (h *recordingHub) BroadcastAlert(alert interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.alerts = append(h.alerts, alert)
}

type recordingNotifier struct {
	mu      sync.Mutex
	batches [][]data.Alert
	err     error
}

func (n *recordingNotifier) Name() string { return "recording" }

func (n *recordingNotifier) Notify(_ context.Context, alerts []data.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.batches = append(n.batches, alerts)
	return n.err
}

func sampleAlerts() []data.Alert {
	return []data.Alert{
		{ID: "a-1", Severity: data.SeverityCritical, Quantity: data.PM25, Value: 95, Limit: 90, Timestamp: time.Unix(1700000000, 0).UTC()},
		{ID: "a-2", Severity: data.SeverityWarning, Quantity: data.Humidity, Value: 75, Limit: 70, Timestamp: time.Unix(1700000000, 0).UTC()},
	}
}

func TestAlerter_ProcessAlerts(t *testing.T) {
	hub := &recordingHub{}
	ok := &recordingNotifier{}
	failing := &recordingNotifier{err: errors.New("down")}
	a := NewAlerter(hub, zap.NewNop(), ok, failing)

	a.ProcessAlerts(sampleAlerts())
	a.Wait()

	assert.Len(t, hub.alerts, 2)
	require.Len(t, ok.batches, 1)
	assert.Len(t, ok.batches[0], 2)
	assert.Len(t, failing.batches, 1)
}

func TestAlerter_NoAlertsIsNoop(t *testing.T) {
	hub := &recordingHub{}
	n := &recordingNotifier{}
	a := NewAlerter(hub, zap.NewNop(), n)

	a.ProcessAlerts(nil)
	a.Wait()

	assert.Empty(t, hub.alerts)
	assert.Empty(t, n.batches)
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaNotifier_Notify(t *testing.T) {
	w := &fakeWriter{}
	k := &KafkaNotifier{writer: w, topic: "monitor.alerts", logger: zap.NewNop()}

	require.NoError(t, k.Notify(context.Background(), sampleAlerts()))
	require.Len(t, w.msgs, 2)
	assert.Equal(t, "pm25", string(w.msgs[0].Key))
	assert.Equal(t, "critical", string(w.msgs[0].Headers[0].Value))

	var decoded data.Alert
	require.NoError(t, json.Unmarshal(w.msgs[1].Value, &decoded))
	assert.Equal(t, "a-2", decoded.ID)

	require.NoError(t, k.Close())
	assert.True(t, w.closed)
}

func TestKafkaNotifier_WriteError(t *testing.T) {
	k := &KafkaNotifier{writer: &fakeWriter{err: errors.New("no brokers")}, topic: "t", logger: zap.NewNop()}
	assert.ErrorContains(t, k.Notify(context.Background(), sampleAlerts()), "no brokers")
}

func TestWebhookNotifier_Notify(t *testing.T) {
	var received webhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	n := NewWebhookNotifier(server.URL, time.Second, zap.NewNop())
	require.NoError(t, n.Notify(context.Background(), sampleAlerts()))
	require.Len(t, received.Alerts, 2)
	assert.Equal(t, "a-1", received.Alerts[0].ID)
}

func TestWebhookNotifier_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	n := NewWebhookNotifier(server.URL, time.Second, zap.NewNop())
	assert.ErrorContains(t, n.Notify(context.Background(), sampleAlerts()), "400")
}
