package thresholds

import (
	"fmt"

	"github.com/OmkarPadhy/AQI-Dashboard/internal/data"
)

const (
	PresetAirQuality = "air_quality"
	PresetVitals     = "vitals"
)

func f(v float64) *float64 { return &v }

// AirQuality bounds for the environmental monitor.
func AirQuality() map[data.Quantity]Bounds {
	return map[data.Quantity]Bounds{
		data.PM25:        {Label: "PM2.5", Max: f(60), CriticalMax: f(90)},
		data.PM10:        {Label: "PM10", Max: f(150), CriticalMax: f(250)},
		data.Temperature: {Label: "Temperature", Max: f(32), CriticalMax: f(35)},
		data.Humidity:    {Label: "Humidity", Max: f(70)},
		data.Gas:         {Label: "Smoke / gas", Max: f(220), CriticalMax: f(400)},
	}
}

// Vitals bounds for the patient monitor.
func Vitals() map[data.Quantity]Bounds {
	return map[data.Quantity]Bounds{
		data.BodyTemperature: {Label: "Body temperature", Min: f(36.0), Max: f(37.5), CriticalMin: f(35.0), CriticalMax: f(40.0)},
		data.SpO2:            {Label: "SpO2", Min: f(95), CriticalMin: f(88)},
		data.BPM:             {Label: "Heart rate", Min: f(60), Max: f(100), CriticalMin: f(50), CriticalMax: f(120)},
		data.RespiratoryRate: {Label: "Respiratory rate", Min: f(12), Max: f(20), CriticalMin: f(8), CriticalMax: f(25)},
		data.Systolic:        {Label: "Systolic pressure", Max: f(140), CriticalMax: f(180)},
		data.Diastolic:       {Label: "Diastolic pressure", Max: f(90), CriticalMax: f(110)},
	}
}

// FromPreset builds the canonical table from a preset name, replacing whole entries
// with any overrides.
func FromPreset(preset string, overrides map[data.Quantity]Bounds) (*Table, error) {
	var base map[data.Quantity]Bounds
	switch preset {
	case PresetAirQuality, "":
		base = AirQuality()
	case PresetVitals:
		base = Vitals()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPreset, preset)
	}
	for q, b := range overrides {
		base[q] = b
	}
	return New(base)
}
