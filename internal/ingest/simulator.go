// internal/ingest/simulator.go
package ingest

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/OmkarPadhy/AQI-Dashboard/internal/data"
)

const (
	VariantAirQuality = "air_quality"
	VariantVitals     = "vitals"

	SourceSimulator = "simulator"

	airSpikeEvery     = 35 // pm25 and gas spike
	climateSpikeEvery = 50 // temperature and humidity spike
	vitalsSpikeEvery  = 35 // patient turns critical for one tick
)

// Simulator produces plausible readings from a seeded generator. The same seed
// always yields the same sequence.
type Simulator struct {
	variant  string
	interval time.Duration
	deviceID string
	now      func() time.Time
	logger   *zap.Logger

	mu   sync.Mutex
	rng  *rand.Rand
	tick int
}

func NewSimulator(variant string, interval time.Duration, seed int64, deviceID string, logger *zap.Logger) (*Simulator, error) {
	switch variant {
	case "", VariantAirQuality:
		variant = VariantAirQuality
	case VariantVitals:
	default:
		return nil, fmt.Errorf("unknown simulator variant %q", variant)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("simulator interval must be positive, got %s", interval)
	}
	return &Simulator{
		variant:  variant,
		interval: interval,
		deviceID: deviceID,
		now:      time.Now,
		logger:   logger,
		rng:      rand.New(rand.NewSource(seed)),
	}, nil
}

func (s *Simulator) Name() string { return SourceSimulator }

// Next produces the following reading of the sequence.
func (s *Simulator) Next() data.Reading {
	s.mu.Lock()
	defer s.mu.Unlock()

	var values map[data.Quantity]float64
	if s.variant == VariantVitals {
		values = s.vitals()
	} else {
		values = s.airQuality()
	}
	s.tick++

	return data.Reading{
		Timestamp: s.now().UTC(),
		Source:    SourceSimulator,
		DeviceID:  s.deviceID,
		Values:    values,
	}
}

// between returns a value in [base, base+spread).
func (s *Simulator) between(base, spread float64) float64 {
	return round2(base + s.rng.Float64()*spread)
}

// jitter returns base +/- spread/2.
func (s *Simulator) jitter(base, spread float64) float64 {
	return round2(base + (s.rng.Float64()-0.5)*spread)
}

func (s *Simulator) airQuality() map[data.Quantity]float64 {
	v := map[data.Quantity]float64{
		data.PM25:        s.between(25, 5),
		data.PM10:        s.between(55, 8),
		data.Temperature: s.between(25, 1),
		data.Humidity:    s.between(50, 4),
		data.Gas:         s.between(150, 20),
		data.Light:       s.between(300, 100),
	}
	if s.tick != 0 && s.tick%airSpikeEvery == 0 {
		v[data.PM25] = s.between(85, 20)
		v[data.Gas] = s.between(480, 80)
	}
	if s.tick != 0 && s.tick%climateSpikeEvery == 0 {
		v[data.Temperature] = s.between(38, 3)
		v[data.Humidity] = s.between(75, 8)
	}
	return v
}

type vitalsBase struct {
	temp, spo2, bpm float64
}

var (
	stableVitals   = vitalsBase{temp: 36.8, spo2: 98, bpm: 72}
	criticalVitals = vitalsBase{temp: 39.1, spo2: 88, bpm: 115}
)

func (s *Simulator) vitals() map[data.Quantity]float64 {
	base := stableVitals
	critical := s.tick != 0 && s.tick%vitalsSpikeEvery == 0
	if critical {
		base = criticalVitals
	}

	v := map[data.Quantity]float64{
		data.BodyTemperature: s.jitter(base.temp, 0.8),
		data.SpO2:            math.Round(clamp(s.jitter(base.spo2, 6), 85, 100)),
		data.BPM:             math.Round(clamp(s.jitter(base.bpm, 20), 50, 150)),
		data.RespiratoryRate: s.between(16, 8),
	}
	if critical {
		v[data.Systolic] = s.between(160, 20)
		v[data.Diastolic] = s.between(95, 15)
	} else {
		v[data.Systolic] = s.between(120, 20)
		v[data.Diastolic] = s.between(80, 10)
	}
	return v
}

// Subscribe emits one reading per interval until the subscription is released or
// ctx is cancelled.
func (s *Simulator) Subscribe(ctx context.Context, onInsert func(data.Reading)) (Unsubscribe, error) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				onInsert(s.Next())
			}
		}
	}()

	s.logger.Info("Simulator started",
		zap.String("variant", s.variant),
		zap.Duration("interval", s.interval),
		zap.String("device_id", s.deviceID),
	)

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
			s.logger.Info("Simulator stopped")
		})
	}, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
