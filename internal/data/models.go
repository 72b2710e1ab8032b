// internal/data/models.go
package data

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// Quantity names one measured value in a Reading.
type Quantity string

// Air-quality quantities
const (
	PM25        Quantity = "pm25"
	PM10        Quantity = "pm10"
	Temperature Quantity = "temperature"
	Humidity    Quantity = "humidity"
	Gas         Quantity = "gas"
	Light       Quantity = "light"
)

// Vitals quantities
const (
	BodyTemperature Quantity = "body_temperature"
	SpO2            Quantity = "spo2"
	BPM             Quantity = "bpm"
	RespiratoryRate Quantity = "respiratory_rate"
	Systolic        Quantity = "systolic"
	Diastolic       Quantity = "diastolic"
)

var (
	ErrEmptyReading = errors.New("reading has no values")
	ErrNonFinite    = errors.New("reading value is not finite")
)

// Reading is a timestamped set of measurements from one source. A quantity that is
// absent from Values is not being reported by the sensor.
type Reading struct {
	Timestamp time.Time            `json:"timestamp"`
	Source    string               `json:"source,omitempty"`    // "simulator", "postgres", "mqtt", "http"
	DeviceID  string               `json:"device_id,omitempty"` // Optional identifier
	Values    map[Quantity]float64 `json:"values"`
}

// Value returns the measurement for q and whether the sensor reported it.
func (r Reading) Value(q Quantity) (float64, bool) {
	v, ok := r.Values[q]
	return v, ok
}

// Quantities returns the reported quantities in name order.
func (r Reading) Quantities() []Quantity {
	qs := make([]Quantity, 0, len(r.Values))
	for q := range r.Values {
		qs = append(qs, q)
	}
	sort.Slice(qs, func(i, j int) bool { return qs[i] < qs[j] })
	return qs
}

// Validate checks that the reading carries at least one finite value.
func (r Reading) Validate() error {
	if len(r.Values) == 0 {
		return ErrEmptyReading
	}
	for q, v := range r.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s: %w", q, ErrNonFinite)
		}
	}
	return nil
}

// Severity of an Alert.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert - a single threshold breach. Never mutated after creation.
type Alert struct {
	ID        string    `json:"id"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Quantity  Quantity  `json:"quantity"` // Which quantity triggered the alert
	Value     float64   `json:"value"`    // The offending value
	Limit     float64   `json:"limit"`    // The bound that was crossed
	DeviceID  string    `json:"device_id,omitempty"`
}
