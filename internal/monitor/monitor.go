// internal/monitor/monitor.go
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/OmkarPadhy/AQI-Dashboard/internal/alertlog"
	"github.com/OmkarPadhy/AQI-Dashboard/internal/anomaly"
	"github.com/OmkarPadhy/AQI-Dashboard/internal/data"
	"github.com/OmkarPadhy/AQI-Dashboard/internal/exposure"
	"github.com/OmkarPadhy/AQI-Dashboard/internal/ingest"
	"github.com/OmkarPadhy/AQI-Dashboard/internal/metrics"
	"github.com/OmkarPadhy/AQI-Dashboard/internal/storage"
	"github.com/OmkarPadhy/AQI-Dashboard/internal/thresholds"
	"github.com/OmkarPadhy/AQI-Dashboard/internal/websocket"
)

// OnlineWindow is how fresh the last reading must be for the sensor to count as online.
const OnlineWindow = 10 * time.Second

// Archiver persists accepted readings.
type Archiver interface {
	Insert(ctx context.Context, r data.Reading) error
}

// AlertStore keeps a copy of the alert log outside the process.
type AlertStore interface {
	Save(ctx context.Context, alerts []data.Alert) error
	Load(ctx context.Context) ([]data.Alert, error)
	Clear(ctx context.Context) error
}

// Broadcaster pushes typed messages to dashboards.
type Broadcaster interface {
	Broadcast(msgType string, payload interface{})
}

// AlertProcessor fans out newly logged alerts.
type AlertProcessor interface {
	ProcessAlerts(alerts []data.Alert)
}

// Options wires a Monitor. Store, Detector and Log are required; the rest may be nil.
type Options struct {
	Store       *storage.MemoryStore
	Detector    *anomaly.Detector
	Log         *alertlog.Log
	Archive     Archiver
	History     ingest.WindowFetcher
	Cache       AlertStore
	Alerter     AlertProcessor
	Broadcaster Broadcaster
	Metrics     *metrics.Metrics
	Logger      *zap.Logger

	Primary        data.Quantity
	WindowSize     int
	DefaultProfile exposure.RiskProfile
	Clock          func() time.Time
}

// Monitor runs every reading through validation, storage, alerting and exposure
// assessment, and answers the dashboard's queries.
type Monitor struct {
	ingestMu sync.Mutex

	store       *storage.MemoryStore
	detector    *anomaly.Detector
	log         *alertlog.Log
	archive     Archiver
	history     ingest.WindowFetcher
	cache       AlertStore
	alerter     AlertProcessor
	broadcaster Broadcaster
	metrics     *metrics.Metrics
	logger      *zap.Logger

	primary        data.Quantity
	windowSize     int
	defaultProfile exposure.RiskProfile
	now            func() time.Time

	stateMu  sync.RWMutex
	source   string
	fallback bool
}

func New(opts Options) *Monitor {
	m := &Monitor{
		store:          opts.Store,
		detector:       opts.Detector,
		log:            opts.Log,
		archive:        opts.Archive,
		history:        opts.History,
		cache:          opts.Cache,
		alerter:        opts.Alerter,
		broadcaster:    opts.Broadcaster,
		metrics:        opts.Metrics,
		logger:         opts.Logger,
		primary:        opts.Primary,
		windowSize:     opts.WindowSize,
		defaultProfile: opts.DefaultProfile,
		now:            opts.Clock,
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.primary == "" {
		m.primary = data.PM25
	}
	if m.windowSize < exposure.MinSamples {
		m.windowSize = exposure.MinSamples
	}
	if m.defaultProfile == "" {
		m.defaultProfile = exposure.ProfileNormal
	}
	return m
}

func (m *Monitor) broadcast(msgType string, payload interface{}) {
	if m.broadcaster != nil {
		m.broadcaster.Broadcast(msgType, payload)
	}
}

// Ingest evaluates one reading. Readings are processed one at a time.
func (m *Monitor) Ingest(ctx context.Context, reading data.Reading) error {
	if err := reading.Validate(); err != nil {
		m.metrics.ReadingRejected()
		return fmt.Errorf("rejected reading: %w", err)
	}
	if reading.Timestamp.IsZero() {
		reading.Timestamp = m.now().UTC()
	}

	m.ingestMu.Lock()
	defer m.ingestMu.Unlock()

	m.store.Add(reading)
	if m.archive != nil {
		if err := m.archive.Insert(ctx, reading); err != nil {
			m.logger.Warn("Failed to archive reading", zap.Error(err))
		}
	}

	added := m.log.Append(m.detector.Check(reading))
	m.metrics.AlertsGenerated(added)
	m.metrics.SetAlertLogSize(m.log.Len())
	if len(added) > 0 {
		if m.alerter != nil {
			m.alerter.ProcessAlerts(added)
		}
		m.saveAlerts(ctx)
	}

	m.broadcast(websocket.TypeData, reading)
	if a, err := m.assess(m.defaultProfile); err == nil {
		m.metrics.ObserveAssessment(a)
		m.broadcast(websocket.TypeAssessment, a)
	}
	m.metrics.ReadingAccepted(reading.Source)
	return nil
}

func (m *Monitor) saveAlerts(ctx context.Context) {
	if m.cache == nil {
		return
	}
	if err := m.cache.Save(ctx, m.log.Snapshot()); err != nil {
		m.logger.Warn("Failed to cache alert log", zap.Error(err))
	}
}

// RestoreAlerts seeds the alert log from the cache.
func (m *Monitor) RestoreAlerts(ctx context.Context) error {
	if m.cache == nil {
		return nil
	}
	alerts, err := m.cache.Load(ctx)
	if err != nil {
		return fmt.Errorf("load cached alerts: %w", err)
	}
	m.log.Restore(alerts)
	m.metrics.SetAlertLogSize(m.log.Len())
	m.logger.Info("Restored alert log from cache", zap.Int("count", m.log.Len()))
	return nil
}

// Run subscribes to source, falling back to fallback when the subscription cannot
// be established, and ingests readings until ctx is cancelled. The subscription is
// always released before Run returns.
func (m *Monitor) Run(ctx context.Context, source, fallback ingest.Source) error {
	onInsert := func(r data.Reading) {
		if err := m.Ingest(ctx, r); err != nil {
			m.logger.Warn("Dropping reading", zap.String("source", r.Source), zap.Error(err))
		}
	}

	active := source
	unsub, err := source.Subscribe(ctx, onInsert)
	if err != nil {
		if fallback == nil {
			return fmt.Errorf("subscribe %s: %w", source.Name(), err)
		}
		m.logger.Warn("Live source unavailable, falling back",
			zap.String("source", source.Name()),
			zap.String("fallback", fallback.Name()),
			zap.Error(err),
		)
		active = fallback
		if unsub, err = fallback.Subscribe(ctx, onInsert); err != nil {
			return fmt.Errorf("subscribe %s: %w", fallback.Name(), err)
		}
	}
	defer unsub()

	m.stateMu.Lock()
	m.source = active.Name()
	m.fallback = active != source
	m.stateMu.Unlock()
	m.logger.Info("Ingestion running", zap.String("source", active.Name()))

	<-ctx.Done()
	m.logger.Info("Ingestion stopping", zap.String("source", active.Name()))
	return nil
}

// Assessment evaluates the current window for profile; an empty profile means the
// configured default.
func (m *Monitor) Assessment(profile string) (exposure.Assessment, error) {
	p := m.defaultProfile
	if profile != "" {
		parsed, err := exposure.ParseRiskProfile(profile)
		if err != nil {
			return exposure.Assessment{}, err
		}
		p = parsed
	}
	return m.assess(p)
}

func (m *Monitor) assess(p exposure.RiskProfile) (exposure.Assessment, error) {
	return exposure.Assess(m.store.GetRecent(m.windowSize), m.primary, p)
}

// Alerts returns the alert log, newest first.
func (m *Monitor) Alerts() []data.Alert {
	return m.log.Snapshot()
}

// ClearAlerts empties the alert log everywhere it is kept.
func (m *Monitor) ClearAlerts(ctx context.Context) {
	m.log.Clear()
	m.metrics.SetAlertLogSize(0)
	if m.cache != nil {
		if err := m.cache.Clear(ctx); err != nil {
			m.logger.Warn("Failed to clear cached alerts", zap.Error(err))
		}
	}
	m.broadcast(websocket.TypeAlertsCleared, nil)
}

// Latest returns up to limit of the newest readings, oldest first.
func (m *Monitor) Latest(limit int) []data.Reading {
	return m.store.GetRecent(limit)
}

// Status summarises sensor liveness and the ingestion mode.
type Status struct {
	Online      bool       `json:"online"`
	LastReading *time.Time `json:"last_reading,omitempty"`
	Source      string     `json:"source"`
	Fallback    bool       `json:"fallback"`
	Readings    int        `json:"readings"`
	Alerts      int        `json:"alerts"`
}

func (m *Monitor) Status(now time.Time) Status {
	m.stateMu.RLock()
	s := Status{Source: m.source, Fallback: m.fallback}
	m.stateMu.RUnlock()

	s.Readings = m.store.Len()
	s.Alerts = m.log.Len()
	if latest, ok := m.store.Latest(); ok {
		ts := latest.Timestamp
		s.LastReading = &ts
		s.Online = now.Sub(ts) < OnlineWindow
	}
	return s
}

// QuantityStatus classifies every quantity of the latest reading.
func (m *Monitor) QuantityStatus() map[data.Quantity]thresholds.Status {
	latest, ok := m.store.Latest()
	if !ok {
		return map[data.Quantity]thresholds.Status{}
	}
	return m.detector.Status(latest)
}

// History loads [from, to] from the history backend. On failure the result is
// empty, never nil.
func (m *Monitor) History(ctx context.Context, from, to time.Time) ([]data.Reading, error) {
	if m.history == nil {
		return []data.Reading{}, fmt.Errorf("%w: no history backend configured", ingest.ErrIngestionUnavailable)
	}
	readings, err := m.history.FetchWindow(ctx, from, to)
	if err != nil {
		if !errors.Is(err, ingest.ErrIngestionUnavailable) {
			m.metrics.IngestError("fetch_window")
		}
		return []data.Reading{}, err
	}
	return readings, nil
}
