package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/OmkarPadhy/AQI-Dashboard/internal/alertlog"
	"github.com/OmkarPadhy/AQI-Dashboard/internal/anomaly"
	"github.com/OmkarPadhy/AQI-Dashboard/internal/cache"
	"github.com/OmkarPadhy/AQI-Dashboard/internal/data"
	"github.com/OmkarPadhy/AQI-Dashboard/internal/exposure"
	"github.com/OmkarPadhy/AQI-Dashboard/internal/ingest"
	"github.com/OmkarPadhy/AQI-Dashboard/internal/metrics"
	"github.com/OmkarPadhy/AQI-Dashboard/internal/storage"
	"github.com/OmkarPadhy/AQI-Dashboard/internal/thresholds"
	"github.com/OmkarPadhy/AQI-Dashboard/internal/websocket"
)

var t0 = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

type recordingBroadcaster struct {
	mu       sync.Mutex
	messages []string
}

func (b *recordingBroadcaster) Broadcast(msgType string, _ interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, msgType)
}

func (b *recordingBroadcaster) types() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.messages...)
}

type recordingAlerter struct {
	batches [][]data.Alert
}

func (a *recordingAlerter) ProcessAlerts(alerts []data.Alert) { a.batches = append(a.batches, alerts) }

type fixture struct {
	monitor     *Monitor
	broadcaster *recordingBroadcaster
	alerter     *recordingAlerter
	archive     *storage.Archive
	redis       *miniredis.Miniredis
	alertCache  *cache.AlertCache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	table, err := thresholds.FromPreset(thresholds.PresetAirQuality, nil)
	require.NoError(t, err)

	seq := 0
	detector := anomaly.NewDetector(table,
		anomaly.WithClock(func() time.Time { return t0 }),
		anomaly.WithIDGenerator(func() string { seq++; return fmt.Sprintf("alert-%d", seq) }),
	)

	archive, err := storage.NewArchive(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { archive.Close() })

	mr := miniredis.RunT(t)
	alertCache := cache.NewAlertCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "monitor:alerts", time.Hour, zap.NewNop())

	f := &fixture{
		broadcaster: &recordingBroadcaster{},
		alerter:     &recordingAlerter{},
		archive:     archive,
		redis:       mr,
		alertCache:  alertCache,
	}
	f.monitor = New(Options{
		Store:          storage.NewMemoryStore(20),
		Detector:       detector,
		Log:            alertlog.New(3),
		Archive:        archive,
		History:        archive,
		Cache:          alertCache,
		Alerter:        f.alerter,
		Broadcaster:    f.broadcaster,
		Metrics:        metrics.New(),
		Logger:         zap.NewNop(),
		Primary:        data.PM25,
		WindowSize:     10,
		DefaultProfile: exposure.ProfileNormal,
		Clock:          func() time.Time { return t0 },
	})
	return f
}

func reading(at time.Time, pm25 float64) data.Reading {
	return data.Reading{Timestamp: at, Source: "test", DeviceID: "dev-1", Values: map[data.Quantity]float64{data.PM25: pm25, data.Humidity: 50}}
}

func TestMonitor_IngestCriticalReading(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.monitor.Ingest(ctx, reading(t0, 95)))

	alerts := f.monitor.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, data.SeverityCritical, alerts[0].Severity)
	assert.Equal(t, data.PM25, alerts[0].Quantity)
	require.Len(t, f.alerter.batches, 1)
	assert.Equal(t, []string{websocket.TypeData, websocket.TypeAssessment}, f.broadcaster.types())

	cached, err := f.alertCache.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, cached, 1)

	archived, err := f.archive.FetchWindow(ctx, t0, t0)
	require.NoError(t, err)
	assert.Len(t, archived, 1)
}

func TestMonitor_IngestRejectsInvalid(t *testing.T) {
	f := newFixture(t)
	err := f.monitor.Ingest(context.Background(), data.Reading{Timestamp: t0})
	assert.ErrorIs(t, err, data.ErrEmptyReading)
	assert.Empty(t, f.monitor.Latest(0))
	assert.Empty(t, f.broadcaster.types())
}

func TestMonitor_AlertLogIsBounded(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, f.monitor.Ingest(context.Background(), reading(t0.Add(time.Duration(i)*time.Second), 95)))
	}
	alerts := f.monitor.Alerts()
	require.Len(t, alerts, 3)
	assert.Equal(t, "alert-5", alerts[0].ID, "newest first")
}

func TestMonitor_Assessment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.monitor.Assessment("")
	require.NoError(t, err)
	assert.Zero(t, a.ExposureIndex)
	assert.True(t, a.Collecting)

	for i := 0; i < 6; i++ {
		require.NoError(t, f.monitor.Ingest(ctx, reading(t0.Add(time.Duration(i)*10*time.Second), 50)))
	}

	a, err = f.monitor.Assessment("asthma")
	require.NoError(t, err)
	assert.False(t, a.Collecting)
	assert.Equal(t, 300.0, a.ExposureIndex)
	assert.InDelta(t, 420.0, a.Risk, 1e-9)
	assert.Equal(t, exposure.Moderate, a.Level)
	require.NotNil(t, a.MinutesToUnsafe)

	_, err = f.monitor.Assessment("athlete")
	assert.ErrorIs(t, err, exposure.ErrUnknownProfile)
}

func TestMonitor_ClearAlerts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.monitor.Ingest(ctx, reading(t0, 95)))

	f.monitor.ClearAlerts(ctx)
	f.monitor.ClearAlerts(ctx)

	assert.Empty(t, f.monitor.Alerts())
	assert.False(t, f.redis.Exists("monitor:alerts"))
	assert.Contains(t, f.broadcaster.types(), websocket.TypeAlertsCleared)
}

func TestMonitor_RestoreAlerts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.alertCache.Save(ctx, []data.Alert{{ID: "x-1"}, {ID: "x-2"}}))

	require.NoError(t, f.monitor.RestoreAlerts(ctx))
	alerts := f.monitor.Alerts()
	require.Len(t, alerts, 2)
	assert.Equal(t, "x-1", alerts[0].ID)
}

func TestMonitor_StatusAndQuantityStatus(t *testing.T) {
	f := newFixture(t)

	s := f.monitor.Status(t0)
	assert.False(t, s.Online)
	assert.Nil(t, s.LastReading)
	assert.Empty(t, f.monitor.QuantityStatus())

	require.NoError(t, f.monitor.Ingest(context.Background(), reading(t0, 70)))

	assert.True(t, f.monitor.Status(t0.Add(9*time.Second)).Online)
	assert.False(t, f.monitor.Status(t0.Add(10*time.Second)).Online)

	qs := f.monitor.QuantityStatus()
	assert.Equal(t, thresholds.StatusWarning, qs[data.PM25])
	assert.Equal(t, thresholds.StatusNormal, qs[data.Humidity])
}

func TestMonitor_History(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, f.monitor.Ingest(ctx, reading(t0.Add(time.Duration(i)*time.Minute), 20)))
	}

	got, err := f.monitor.History(ctx, t0, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, got, 2)

	bare := New(Options{Store: storage.NewMemoryStore(10), Log: alertlog.New(1)})
	got, err = bare.History(ctx, t0, t0)
	assert.ErrorIs(t, err, ingest.ErrIngestionUnavailable)
	assert.NotNil(t, got)
}

type stubSource struct {
	name     string
	err      error
	readings []data.Reading
	released chan struct{}
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Subscribe(_ context.Context, onInsert func(data.Reading)) (ingest.Unsubscribe, error) {
	if s.err != nil {
		return nil, s.err
	}
	for _, r := range s.readings {
		onInsert(r)
	}
	return func() { close(s.released) }, nil
}

func TestMonitor_RunFallsBackAndReleases(t *testing.T) {
	f := newFixture(t)
	live := &stubSource{name: "postgres", err: errors.New("unavailable")}
	mock := &stubSource{name: "simulator", readings: []data.Reading{reading(t0, 20)}, released: make(chan struct{})}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.monitor.Run(ctx, live, mock) }()

	require.Eventually(t, func() bool { return f.monitor.Status(t0).Source == "simulator" }, time.Second, 5*time.Millisecond)
	assert.True(t, f.monitor.Status(t0).Fallback)
	assert.Len(t, f.monitor.Latest(0), 1)

	cancel()
	require.NoError(t, <-done)
	select {
	case <-mock.released:
	default:
		t.Fatal("subscription not released")
	}
}

func TestMonitor_RunWithoutFallbackFails(t *testing.T) {
	f := newFixture(t)
	live := &stubSource{name: "mqtt", err: errors.New("refused")}
	err := f.monitor.Run(context.Background(), live, nil)
	assert.ErrorContains(t, err, "refused")
}
