// internal/anomaly/detector.go
package anomaly

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/OmkarPadhy/AQI-Dashboard/internal/data"
	"github.com/OmkarPadhy/AQI-Dashboard/internal/thresholds"
)

// Detector turns readings into alerts using the shared threshold table. It keeps no
// state between calls.
type Detector struct {
	table *thresholds.Table
	now   func() time.Time
	newID func() string
}

type Option func(*Detector)

// WithClock overrides the clock used to stamp alerts.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// WithIDGenerator overrides alert identifier generation.
func WithIDGenerator(newID func() string) Option {
	return func(d *Detector) { d.newID = newID }
}

func NewDetector(table *thresholds.Table, opts ...Option) *Detector {
	d := &Detector{
		table: table,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Check emits one alert per quantity of the reading that breaches its bounds, in
// table order. Quantities without bounds are skipped.
func (d *Detector) Check(reading data.Reading) []data.Alert {
	var alerts []data.Alert
	stamp := d.now()

	for _, q := range d.table.Quantities() {
		value, ok := reading.Value(q)
		if !ok {
			continue
		}
		bounds, _ := d.table.Lookup(q)
		breach := bounds.Evaluate(value)
		if breach.Status == thresholds.StatusNormal {
			continue
		}

		alerts = append(alerts, data.Alert{
			ID:        d.newID(),
			Severity:  severityOf(breach.Status),
			Message:   message(bounds.Label, value, breach),
			Timestamp: stamp,
			Quantity:  q,
			Value:     value,
			Limit:     breach.Limit,
			DeviceID:  reading.DeviceID,
		})
	}
	return alerts
}

// Status classifies every reported quantity of the reading.
func (d *Detector) Status(reading data.Reading) map[data.Quantity]thresholds.Status {
	out := make(map[data.Quantity]thresholds.Status, len(reading.Values))
	for q, v := range reading.Values {
		out[q] = d.table.Classify(q, v)
	}
	return out
}

func severityOf(s thresholds.Status) data.Severity {
	if s == thresholds.StatusCritical {
		return data.SeverityCritical
	}
	return data.SeverityWarning
}

func message(label string, value float64, b thresholds.Breach) string {
	direction := "below"
	if b.Above {
		direction = "above"
	}
	level := "High"
	if !b.Above {
		level = "Low"
	}
	if b.Status == thresholds.StatusCritical {
		level = "Critical"
	}
	return fmt.Sprintf("%s %s: %.2f is %s the limit of %.2f", level, label, value, direction, b.Limit)
}
