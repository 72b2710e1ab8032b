package thresholds

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OmkarPadhy/AQI-Dashboard/internal/data"
)

func TestBounds_Evaluate(t *testing.T) {
	spo2 := Vitals()[data.SpO2]

	tests := []struct {
		name   string
		value  float64
		status Status
		limit  float64
		above  bool
	}{
		{"normal", 97, StatusNormal, 0, false},
		{"at warning bound", 95, StatusNormal, 0, false},
		{"warning low", 92, StatusWarning, 95, false},
		{"critical low", 85, StatusCritical, 88, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := spo2.Evaluate(tt.value)
			assert.Equal(t, tt.status, got.Status)
			assert.Equal(t, tt.limit, got.Limit)
			assert.Equal(t, tt.above, got.Above)
		})
	}
}

func TestNew_RejectsInconsistentBounds(t *testing.T) {
	_, err := New(map[data.Quantity]Bounds{
		data.PM25: {Max: f(90), CriticalMax: f(60)},
	})
	assert.ErrorIs(t, err, ErrInvalidBounds)

	_, err = New(map[data.Quantity]Bounds{data.PM25: {Label: "empty"}})
	assert.ErrorIs(t, err, ErrInvalidBounds)
}

func TestTable_IsImmutable(t *testing.T) {
	src := AirQuality()
	table, err := New(src)
	require.NoError(t, err)

	*src[data.PM25].CriticalMax = 1
	b, ok := table.Lookup(data.PM25)
	require.True(t, ok)
	assert.Equal(t, 90.0, *b.CriticalMax)

	*b.CriticalMax = 2
	again, _ := table.Lookup(data.PM25)
	assert.Equal(t, 90.0, *again.CriticalMax)
}

func TestTable_OrderAndClassify(t *testing.T) {
	table, err := FromPreset(PresetAirQuality, nil)
	require.NoError(t, err)

	assert.Equal(t, []data.Quantity{data.Gas, data.Humidity, data.PM10, data.PM25, data.Temperature}, table.Quantities())
	assert.Equal(t, StatusCritical, table.Classify(data.PM25, 95))
	assert.Equal(t, StatusWarning, table.Classify(data.Humidity, 71))
	assert.Equal(t, StatusNormal, table.Classify(data.Light, 10000))
}

func TestFromPreset_Overrides(t *testing.T) {
	table, err := FromPreset(PresetVitals, map[data.Quantity]Bounds{
		data.BPM: {Label: "Pulse", Max: f(110)},
	})
	require.NoError(t, err)

	b, ok := table.Lookup(data.BPM)
	require.True(t, ok)
	assert.Equal(t, "Pulse", b.Label)
	assert.Nil(t, b.CriticalMax)

	_, err = FromPreset("marine", nil)
	assert.ErrorIs(t, err, ErrUnknownPreset)
}
